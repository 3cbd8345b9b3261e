package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	pendingKey    = "rewardengine:queue:pending"
	processingKey = "rewardengine:queue:processing"
	deadlinesKey  = "rewardengine:queue:deadlines"
	jobsKey       = "rewardengine:queue:jobs"
)

// RedisQueue implements the durable FIFO on top of a Redis list for
// pending work and a second list for in-flight work, with a sorted set
// tracking each in-flight job's visibility deadline (BRPOPLPUSH-style
// reliable queue pattern).
type RedisQueue struct {
	client goredis.UniversalClient
}

func NewRedisQueue(client goredis.UniversalClient) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, jobsKey, job.ID, raw)
	pipe.RPush(ctx, pendingKey, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Reserve(ctx context.Context, visibilityTimeout time.Duration) (Reservation, error) {
	jobID, err := q.client.LMove(ctx, pendingKey, processingKey, "LEFT", "RIGHT").Result()
	if err == goredis.Nil {
		return Reservation{}, ErrEmpty
	}
	if err != nil {
		return Reservation{}, fmt.Errorf("reserve job: %w", err)
	}

	raw, err := q.client.HGet(ctx, jobsKey, jobID).Result()
	if err != nil {
		return Reservation{}, fmt.Errorf("load reserved job %s: %w", jobID, err)
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return Reservation{}, fmt.Errorf("decode reserved job %s: %w", jobID, err)
	}

	deadline := time.Now().Add(visibilityTimeout)
	if err := q.client.ZAdd(ctx, deadlinesKey, goredis.Z{Score: float64(deadline.UnixNano()), Member: jobID}).Err(); err != nil {
		return Reservation{}, fmt.Errorf("record visibility deadline: %w", err)
	}

	return Reservation{Job: job, Receipt: jobID}, nil
}

func (q *RedisQueue) Ack(ctx context.Context, receipt string) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, processingKey, 1, receipt)
	pipe.ZRem(ctx, deadlinesKey, receipt)
	pipe.HDel(ctx, jobsKey, receipt)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ack job %s: %w", receipt, err)
	}
	return nil
}

func (q *RedisQueue) RecoverExpired(ctx context.Context) (int, error) {
	nowNano := float64(time.Now().UnixNano())
	expired, err := q.client.ZRangeByScore(ctx, deadlinesKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%f", nowNano),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan expired reservations: %w", err)
	}

	recovered := 0
	for _, jobID := range expired {
		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, processingKey, 1, jobID)
		pipe.RPush(ctx, pendingKey, jobID)
		pipe.ZRem(ctx, deadlinesKey, jobID)
		if _, err := pipe.Exec(ctx); err != nil {
			return recovered, fmt.Errorf("recover job %s: %w", jobID, err)
		}
		recovered++
	}
	return recovered, nil
}
