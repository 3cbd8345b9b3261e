// Package intake implements the Intake Router (C9): the synchronous
// entry point for like/comment/tip/crypto/referral actions, the
// asynchronous submit_post path, and post deletion with exact refund
// (spec.md §4.9).
package intake

import (
	"context"
	"fmt"
	"time"

	"rewardengine/internal/config"
	"rewardengine/internal/contentindex"
	"rewardengine/internal/queue"
	"rewardengine/internal/scoring"
)

// OneTimeBonus names the conventional one-time events layered on top of
// the generic apply_one_time contract (spec.md §4.7): registration and
// identity verification each credit a fixed bonus at most once per
// user's lifetime.
type OneTimeBonus string

const (
	BonusRegistration OneTimeBonus = "registration"
	BonusVerification OneTimeBonus = "verification"
)

// ActionType is the tagged variant for the synchronous interaction
// kinds (spec.md §9 "polymorphism over interaction kinds").
type ActionType string

const (
	ActionLike     ActionType = "like"
	ActionComment  ActionType = "comment"
	ActionTip      ActionType = "tip"
	ActionCrypto   ActionType = "crypto"
	ActionReferral ActionType = "referral"
)

var actionCategories = map[ActionType]config.Category{
	ActionLike:     config.CategoryLike,
	ActionComment:  config.CategoryComment,
	ActionTip:      config.CategoryTip,
	ActionCrypto:   config.CategoryCrypto,
	ActionReferral: config.CategoryReferral,
}

func (a ActionType) category() (config.Category, bool) {
	c, ok := actionCategories[a]
	return c, ok
}

// SubmitActionRequest is submit_action's input (spec.md §4.9). Points
// are always awarded to Interactor; Creator receives nothing directly
// (spec.md §9 open question — contract preserved as-is).
type SubmitActionRequest struct {
	Creator    string
	Interactor string
	Type       ActionType
}

// SubmitActionResult mirrors the sync webhook validation block.
type SubmitActionResult struct {
	Approved     bool
	Significance float64
	Reason       string
	FinalScore   float64
}

// SubmitPostRequest is submit_post's input (spec.md §4.9).
type SubmitPostRequest struct {
	Creator    string
	Interactor string
	Content    string
	PostID     string
	WebhookURL string
	Image      []byte
}

// DeletePostStatus enumerates delete_post outcomes (spec.md §4.9, §6).
type DeletePostStatus string

const (
	DeletePostOK        DeletePostStatus = "deleted"
	DeletePostNotFound  DeletePostStatus = "not_found"
	DeletePostForbidden DeletePostStatus = "forbidden"
)

// Router wires C6/C7/C8/C3 into the three intake operations.
type Router struct {
	engine *scoring.Engine
	index  contentindex.Index
	queue  queue.Queue
	blobs  contentindex.BlobStore
	rules  config.ScoringConfig
}

func New(engine *scoring.Engine, index contentindex.Index, q queue.Queue, blobs contentindex.BlobStore, rules config.ScoringConfig) *Router {
	return &Router{engine: engine, index: index, queue: q, blobs: blobs, rules: rules}
}

// CreditOneTimeBonus awards the fixed registration or verification bonus
// to userID, at most once per user for that bonus's lifetime (spec.md
// §4.7 "one-time events").
func (r *Router) CreditOneTimeBonus(ctx context.Context, userID string, bonus OneTimeBonus) (scoring.Result, error) {
	var points float64
	switch bonus {
	case BonusRegistration:
		points = r.rules.RegistrationBonus
	case BonusVerification:
		points = r.rules.VerificationBonus
	default:
		return scoring.Result{}, fmt.Errorf("unknown one-time bonus %q", bonus)
	}
	result, err := r.engine.ApplyOneTime(ctx, userID, string(bonus), points)
	if err != nil {
		return scoring.Result{}, fmt.Errorf("apply %s bonus: %w", bonus, err)
	}
	return result, nil
}

// SubmitAction applies the interaction directly under the interactor's
// account and returns synchronously (spec.md §4.9).
func (r *Router) SubmitAction(ctx context.Context, req SubmitActionRequest) (SubmitActionResult, error) {
	category, ok := req.Type.category()
	if !ok {
		return SubmitActionResult{}, fmt.Errorf("unknown action type %q", req.Type)
	}

	result, err := r.engine.Apply(ctx, req.Interactor, category, scoring.PostContext{})
	if err != nil {
		return SubmitActionResult{}, fmt.Errorf("apply %s action: %w", category, err)
	}

	switch result.Outcome {
	case scoring.OutcomeAccepted:
		return SubmitActionResult{Approved: true, Significance: result.Delta, FinalScore: result.NormalizedScore}, nil
	case scoring.OutcomeCapped:
		return SubmitActionResult{Approved: true, Significance: 0, Reason: result.Reason, FinalScore: result.NormalizedScore}, nil
	default:
		return SubmitActionResult{Approved: false, Reason: result.Reason, FinalScore: result.NormalizedScore}, nil
	}
}

// SubmitPost enqueues a job for the worker pool and returns immediately
// (spec.md §4.9).
func (r *Router) SubmitPost(ctx context.Context, req SubmitPostRequest) error {
	job := queue.Job{
		Creator:    req.Creator,
		Interactor: req.Interactor,
		Content:    req.Content,
		PostID:     req.PostID,
		WebhookURL: req.WebhookURL,
		Image:      req.Image,
		EnqueuedAt: time.Now(),
	}
	if err := r.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("enqueue post job: %w", err)
	}
	return nil
}

// DeletePost deletes the post from the content index and, on success,
// refunds the originally-awarded delta and removes the matching
// timestamp (spec.md §4.9).
func (r *Router) DeletePost(ctx context.Context, postID, userID string) (DeletePostStatus, error) {
	err := r.index.Delete(ctx, postID, userID)
	switch err {
	case nil:
		// fall through to refund
	case contentindex.ErrNotFound:
		return DeletePostNotFound, nil
	case contentindex.ErrUserMismatch:
		return DeletePostForbidden, nil
	default:
		return "", fmt.Errorf("delete from content index: %w", err)
	}

	if r.blobs != nil {
		if err := r.blobs.Delete(ctx, postID); err != nil {
			return "", fmt.Errorf("delete post image: %w", err)
		}
	}

	award, found, err := r.engine.TakePostAward(ctx, postID)
	if err != nil {
		return "", fmt.Errorf("look up post award: %w", err)
	}
	if !found {
		// Refund when delta unknown: subtract 0, never go negative
		// (spec.md §7).
		return DeletePostOK, nil
	}

	if _, err := r.engine.RefundPost(ctx, award.UserID, award.AwardedDelta, award.AwardedAt); err != nil {
		return "", fmt.Errorf("refund post award: %w", err)
	}
	return DeletePostOK, nil
}
