package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"rewardengine/internal/cohort"
	"rewardengine/internal/config"
	"rewardengine/internal/contentindex"
	"rewardengine/internal/lock"
	"rewardengine/internal/queue"
	"rewardengine/internal/scorestore"
)

// stores bundles the persistence backends the rest of the app depends
// on, chosen per-backend from environment configuration the same way
// the reference repo's gateway app picks Postgres over in-memory stores
// (internal/gateway/app/stores.go): a durable dependency present means
// use it, absent means fall back to an in-process equivalent so local
// development and tests never need real infrastructure.
type stores struct {
	score         scorestore.Store
	index         contentindex.Index
	queue         queue.Queue
	blobs         contentindex.BlobStore
	locker        lock.Locker
	cohortResults cohort.ResultStore
}

func initStores(cfg *config.Config) (*stores, error) {
	ctx := context.Background()

	s := &stores{}

	if cfg.DatabaseURL != "" {
		pg, err := scorestore.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres score store: %w", err)
		}
		s.score = scorestore.NewCachedStore(pg, 0, 0)
		s.locker = lock.NewPostgresLock(pg.DB())
		cohortResults, err := cohort.NewPostgresResultStore(pg.DB())
		if err != nil {
			return nil, fmt.Errorf("init cohort result store: %w", err)
		}
		s.cohortResults = cohortResults
	} else {
		s.score = scorestore.NewMemoryStore()
		s.locker = lock.NewProcessLock()
		s.cohortResults = cohort.NewMemoryResultStore()
	}

	index, err := contentindex.NewChromemIndex(cfg.VectorPath, cfg.Scoring.DuplicateDistanceThreshold, nil)
	if err != nil {
		return nil, fmt.Errorf("init content index: %w", err)
	}
	s.index = index

	if cfg.RedisURL != "" {
		q, err := newRedisQueue(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("init redis queue: %w", err)
		}
		s.queue = q
	} else {
		s.queue = queue.NewMemoryQueue()
	}

	if cfg.Artifact.CanUseS3() {
		blobs, err := contentindex.NewS3BlobStore(contentindex.S3Config{
			Endpoint:  cfg.Artifact.Endpoint,
			Region:    cfg.Artifact.Region,
			AccessKey: cfg.Artifact.AccessKey,
			SecretKey: cfg.Artifact.SecretKey,
			Bucket:    cfg.Artifact.Bucket,
			UseSSL:    cfg.Artifact.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("init s3 blob store: %w", err)
		}
		s.blobs = blobs
	} else {
		s.blobs = contentindex.NewMemoryBlobStore()
	}

	return s, nil
}

func newRedisQueue(ctx context.Context, redisURL string) (*queue.RedisQueue, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return queue.NewRedisQueue(client), nil
}
