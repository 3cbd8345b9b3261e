package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type pendingEntry struct {
	job Job
}

type processingEntry struct {
	job      Job
	deadline time.Time
}

// MemoryQueue is an in-process FIFO for local development and tests. It
// implements the same visibility-timeout contract as the Redis-backed
// queue.
type MemoryQueue struct {
	mu         sync.Mutex
	pending    []pendingEntry
	processing map[string]processingEntry
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{processing: make(map[string]processingEntry)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, pendingEntry{job: job})
	return nil
}

func (q *MemoryQueue) Reserve(_ context.Context, visibilityTimeout time.Duration) (Reservation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return Reservation{}, ErrEmpty
	}
	entry := q.pending[0]
	q.pending = q.pending[1:]

	receipt := uuid.NewString()
	q.processing[receipt] = processingEntry{job: entry.job, deadline: time.Now().Add(visibilityTimeout)}
	return Reservation{Job: entry.job, Receipt: receipt}, nil
}

func (q *MemoryQueue) Ack(_ context.Context, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.processing, receipt)
	return nil
}

func (q *MemoryQueue) RecoverExpired(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	recovered := 0
	for receipt, entry := range q.processing {
		if now.Before(entry.deadline) {
			continue
		}
		delete(q.processing, receipt)
		q.pending = append(q.pending, pendingEntry{job: entry.job})
		recovered++
	}
	return recovered, nil
}
