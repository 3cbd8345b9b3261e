package intake

import (
	"context"
	"log"
	"sync"
	"time"

	"rewardengine/internal/config"
	"rewardengine/internal/contentindex"
	"rewardengine/internal/queue"
	"rewardengine/internal/scoring"
	"rewardengine/internal/scorestore"
	"rewardengine/internal/validator"
	"rewardengine/internal/webhook"
)

// WorkerPool drains submit_post jobs from the queue, running the
// validator (C6), the scoring engine (C7), and the webhook dispatcher
// (C11) for each one (spec.md §4.8, §4.9).
type WorkerPool struct {
	queue      queue.Queue
	validator  *validator.Validator
	engine     *scoring.Engine
	dispatcher *webhook.Dispatcher
	blobs      contentindex.BlobStore

	poolSize          int
	visibilityTimeout time.Duration
	pollInterval      time.Duration
}

func NewWorkerPool(q queue.Queue, v *validator.Validator, engine *scoring.Engine, dispatcher *webhook.Dispatcher, blobs contentindex.BlobStore, poolSize int, visibilityTimeout time.Duration) *WorkerPool {
	if poolSize <= 0 {
		poolSize = 4
	}
	return &WorkerPool{
		queue:             q,
		validator:         v,
		engine:            engine,
		dispatcher:        dispatcher,
		blobs:             blobs,
		poolSize:          poolSize,
		visibilityTimeout: visibilityTimeout,
		pollInterval:      500 * time.Millisecond,
	}
}

// Run starts poolSize workers plus a single reaper goroutine, blocking
// until ctx is cancelled.
func (p *WorkerPool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(p.poolSize)
	for i := 0; i < p.poolSize; i++ {
		go func() {
			defer wg.Done()
			p.workerLoop(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.reaperLoop(ctx)
	}()

	wg.Wait()
}

func (p *WorkerPool) workerLoop(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drainOnce(ctx)
		}
	}
}

func (p *WorkerPool) drainOnce(ctx context.Context) {
	for {
		reservation, err := p.queue.Reserve(ctx, p.visibilityTimeout)
		if err == queue.ErrEmpty {
			return
		}
		if err != nil {
			log.Printf("intake worker: reserve job: %v", err)
			return
		}
		p.process(ctx, reservation)
	}
}

func (p *WorkerPool) reaperLoop(ctx context.Context) {
	ticker := time.NewTicker(p.visibilityTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := p.queue.RecoverExpired(ctx); err != nil {
				log.Printf("intake worker: recover expired reservations: %v", err)
			} else if n > 0 {
				log.Printf("intake worker: recovered %d expired reservation(s)", n)
			}
		}
	}
}

// process runs one job to completion: validate, score, dispatch, ack.
// A worker crash between the C3 insert and the C7 commit is safe:
// redelivery re-runs the validator, which rejects the post because the
// already-inserted copy matches it as a near-duplicate (and, should the
// duplicate check not fire, the insert fails on the post_id conflict),
// so no double award occurs (spec.md §8 scenario 5).
func (p *WorkerPool) process(ctx context.Context, reservation queue.Reservation) {
	job := reservation.Job

	decision, err := p.validator.Validate(ctx, contentindex.Post{
		PostID:  job.PostID,
		UserID:  job.Interactor,
		Content: job.Content,
		Image:   job.Image,
	})
	if err != nil {
		log.Printf("intake worker: validate post_id=%s: %v", job.PostID, err)
		p.dispatch(ctx, job, webhook.Validation{
			Approved: false,
			Reason:   "validation unavailable",
			PostID:   job.PostID,
		})
		if err := p.queue.Ack(ctx, reservation.Receipt); err != nil {
			log.Printf("intake worker: ack failed validation post_id=%s: %v", job.PostID, err)
		}
		return
	}
	if !decision.Accepted {
		p.dispatch(ctx, job, webhook.Validation{
			Approved: false,
			Reason:   decision.Reason,
			PostID:   job.PostID,
		})
		if err := p.queue.Ack(ctx, reservation.Receipt); err != nil {
			log.Printf("intake worker: ack rejected post_id=%s: %v", job.PostID, err)
		}
		return
	}

	if p.blobs != nil && len(job.Image) > 0 {
		if err := p.blobs.Put(ctx, job.PostID, job.Image); err != nil {
			log.Printf("intake worker: store image post_id=%s: %v", job.PostID, err)
		}
	}

	result, err := p.engine.Apply(ctx, job.Interactor, config.CategoryPost, scoring.PostContext{
		Quality:     decision.Quality,
		Originality: decision.Originality,
	})
	if err != nil {
		log.Printf("intake worker: apply score post_id=%s: %v", job.PostID, err)
		p.dispatch(ctx, job, webhook.Validation{
			Approved: false,
			Reason:   "scoring unavailable",
			PostID:   job.PostID,
		})
		if err := p.queue.Ack(ctx, reservation.Receipt); err != nil {
			log.Printf("intake worker: ack failed scoring post_id=%s: %v", job.PostID, err)
		}
		return
	}

	if result.Outcome == scoring.OutcomeAccepted && result.Delta > 0 {
		award := scorestore.PostAward{
			PostID:       job.PostID,
			UserID:       job.Interactor,
			AwardedDelta: result.Delta,
			AwardedAt:    result.Timestamp,
		}
		if err := p.engine.RecordPostAward(ctx, award); err != nil {
			log.Printf("intake worker: record post award post_id=%s: %v", job.PostID, err)
		}
	}

	reason := ""
	if decision.Degraded {
		reason = "quality scorer degraded"
	}
	p.dispatch(ctx, job, webhook.Validation{
		Approved:          true,
		SignificanceScore: result.Delta,
		Reason:            reason,
		FinalUserScore:    result.NormalizedScore,
		PostID:            job.PostID,
	})

	if err := p.queue.Ack(ctx, reservation.Receipt); err != nil {
		log.Printf("intake worker: ack post_id=%s: %v", job.PostID, err)
	}
}

func (p *WorkerPool) dispatch(ctx context.Context, job queue.Job, v webhook.Validation) {
	p.dispatcher.Deliver(ctx, job.WebhookURL, webhook.Payload{
		CreatorAddress:    job.Creator,
		InteractorAddress: job.Interactor,
		Validation:        v,
	})
}
