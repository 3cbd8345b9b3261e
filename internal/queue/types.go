// Package queue implements the Task Queue (C8): a durable FIFO of post
// submission jobs with visibility-timeout semantics, so a worker crash
// mid-job makes the job visible again for another worker to pick up
// (spec.md §4.8). Callers must be idempotent on PostID since redelivery
// means at-least-once processing.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrEmpty is returned by Reserve when no job is currently pending.
var ErrEmpty = errors.New("queue: no job available")

// Job is the full payload a submit_post call hands to the worker pool
// (spec.md §4.9): content to validate plus where to deliver the result.
type Job struct {
	ID         string    `json:"id"`
	Creator    string    `json:"creator"`
	Interactor string    `json:"interactor"`
	Content    string    `json:"content"`
	PostID     string    `json:"post_id"`
	WebhookURL string    `json:"webhook_url"`
	Image      []byte    `json:"image,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Reservation is a job handed to a worker along with the receipt it
// must present to Ack when done.
type Reservation struct {
	Job     Job
	Receipt string
}

// Queue is a durable FIFO with visibility-timeout redelivery.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Reserve pops the next pending job, making it invisible to other
	// reservers for visibilityTimeout. Returns ErrEmpty if none pending.
	Reserve(ctx context.Context, visibilityTimeout time.Duration) (Reservation, error)
	// Ack permanently removes a job after its work has committed.
	Ack(ctx context.Context, receipt string) error
	// RecoverExpired re-queues any reservation whose visibility timeout
	// has elapsed without an Ack. Returns the number recovered.
	RecoverExpired(ctx context.Context) (int, error)
}
