// Package scoring implements the Scoring Engine (C7): applying point
// deltas to the ledger under daily-limit and monthly-cap rules.
package scoring

import (
	"context"
	"fmt"
	"time"

	"rewardengine/internal/config"
	"rewardengine/internal/scorestore"
)

// Outcome classifies how an apply call resolved, per spec.md §4.7/§7.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeLimited  Outcome = "limited"
	OutcomeCapped   Outcome = "capped"
)

// Result is returned by Apply and ApplyOneTime.
type Result struct {
	Outcome         Outcome
	Delta           float64
	NormalizedScore float64
	Reason          string
	// Timestamp is the moment the timestamp was recorded, set only when
	// Outcome is accepted. Callers that need an exact refund (C9 post
	// delete) persist this alongside the delta.
	Timestamp time.Time
}

// PostContext carries the inputs the post-scoring formula needs; only
// meaningful when applying config.CategoryPost.
type PostContext struct {
	Quality     int     // 0..10, from the quality scorer (C5)
	Originality float64 // already clamped to [0,1] by the validator (C6)
}

// Engine applies point deltas under daily-limit and monthly-cap rules
// (spec.md §4.7). All mutation goes through Store.UpsertAtomic, which
// serializes concurrent callers for the same user_id.
type Engine struct {
	store  scorestore.Store
	rules  config.ScoringConfig
	nowFn  func() time.Time
}

func New(store scorestore.Store, rules config.ScoringConfig) *Engine {
	return &Engine{store: store, rules: rules, nowFn: time.Now}
}

// Apply records one accepted interaction of category c for userID,
// subject to the daily limit and monthly cap (spec.md §4.7 steps 1-7).
func (e *Engine) Apply(ctx context.Context, userID string, c config.Category, post PostContext) (Result, error) {
	if !c.Valid() {
		return Result{}, fmt.Errorf("unknown category %q", c)
	}
	now := e.nowFn().UTC()
	rule := e.rules.Rule(c)

	var result Result
	_, err := e.store.UpsertAtomic(ctx, userID, now, func(r *scorestore.Record) error {
		cutoff := now.Add(-24 * time.Hour)
		if r.CountSince(c, cutoff) >= rule.DailyLimit {
			result = Result{Outcome: OutcomeLimited, Delta: 0, Reason: "daily limit", NormalizedScore: normalizedScore(r, e.rules)}
			return nil
		}

		delta := deltaFor(c, rule, post, e.rules)
		remaining := rule.MonthlyCap - r.Points[c]
		if remaining < delta {
			delta = remaining
		}
		if delta < 0 {
			delta = 0
		}
		if delta == 0 {
			result = Result{Outcome: OutcomeCapped, Delta: 0, Reason: "capped", NormalizedScore: normalizedScore(r, e.rules)}
			return nil
		}

		r.Points[c] += delta
		r.Timestamps[c] = append(r.Timestamps[c], now)
		r.LastActiveDate = dateOnly(now)

		result = Result{Outcome: OutcomeAccepted, Delta: delta, NormalizedScore: normalizedScore(r, e.rules), Timestamp: now}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// ApplyOneTime credits points for eventID at most once in the user's
// lifetime (spec.md §4.7 "One-time events").
func (e *Engine) ApplyOneTime(ctx context.Context, userID, eventID string, points float64) (Result, error) {
	if eventID == "" {
		return Result{}, fmt.Errorf("event_id is required")
	}
	now := e.nowFn().UTC()

	var result Result
	_, err := e.store.UpsertAtomic(ctx, userID, now, func(r *scorestore.Record) error {
		if _, seen := r.OneTimeEvents[eventID]; seen {
			result = Result{Outcome: OutcomeAccepted, Delta: 0, NormalizedScore: normalizedScore(r, e.rules)}
			return nil
		}
		totalCap := e.rules.TotalMonthlyCap()
		remaining := totalCap - r.SumPoints() - r.OneTimePoints
		delta := points
		if delta > remaining {
			delta = remaining
		}
		if delta < 0 {
			delta = 0
		}
		r.OneTimeEvents[eventID] = struct{}{}
		r.OneTimePoints += delta
		result = Result{Outcome: OutcomeAccepted, Delta: delta, NormalizedScore: normalizedScore(r, e.rules)}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// RecordPostAward persists the sidecar mapping from an accepted post to
// the delta it was awarded, so delete_post (C9) can refund exactly
// (spec.md §4.9, §6).
func (e *Engine) RecordPostAward(ctx context.Context, award scorestore.PostAward) error {
	return e.store.RecordPostAward(ctx, award)
}

// TakePostAward looks up and removes the sidecar award for postID.
func (e *Engine) TakePostAward(ctx context.Context, postID string) (scorestore.PostAward, bool, error) {
	return e.store.TakePostAward(ctx, postID)
}

// RefundPost reverses a previously-awarded post delta: subtracts it from
// the user's posts total (never going negative) and removes the
// matching timestamp so daily-limit accounting is restored (spec.md
// §4.9, §7 "Refund when delta unknown").
func (e *Engine) RefundPost(ctx context.Context, userID string, delta float64, awardedAt time.Time) (Result, error) {
	now := e.nowFn().UTC()
	var result Result
	_, err := e.store.UpsertAtomic(ctx, userID, now, func(r *scorestore.Record) error {
		r.Points[config.CategoryPost] -= delta
		if r.Points[config.CategoryPost] < 0 {
			r.Points[config.CategoryPost] = 0
		}
		removeTimestamp(r, config.CategoryPost, awardedAt)
		result = Result{Outcome: OutcomeAccepted, Delta: -delta, NormalizedScore: normalizedScore(r, e.rules)}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

func removeTimestamp(r *scorestore.Record, c config.Category, at time.Time) {
	ts := r.Timestamps[c]
	for i, t := range ts {
		if t.Equal(at) {
			r.Timestamps[c] = append(ts[:i], ts[i+1:]...)
			return
		}
	}
}

// CurrentScore returns the normalized score for userID without mutating
// the ledger, used to populate the "current_score" field on limited/capped
// responses when a caller wants it outside of Apply's own result.
func (e *Engine) CurrentScore(ctx context.Context, userID string) (float64, error) {
	r, ok, err := e.store.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return normalizedScore(r, e.rules), nil
}

func deltaFor(c config.Category, rule config.CategoryRule, post PostContext, rules config.ScoringConfig) float64 {
	if c != config.CategoryPost {
		return rule.PointValue
	}
	quality := post.Quality
	if quality < 0 {
		quality = 0
	}
	if quality > 10 {
		quality = 10
	}
	originality := post.Originality
	if originality > 1 {
		originality = 1
	}
	if originality < 0 {
		originality = 0
	}
	return rules.PostBase + (float64(quality)/10.0)*rules.PostQualityBonusMax + originality*rules.PostOriginalityBonusMax
}

// normalizedScore is (sum_of_six_totals / total_monthly_cap) * 100,
// clamped to [0,100] (spec.md §4.7, §8 P3).
func normalizedScore(r *scorestore.Record, rules config.ScoringConfig) float64 {
	totalCap := rules.TotalMonthlyCap()
	if totalCap <= 0 {
		return 0
	}
	score := (r.SumPoints() / totalCap) * 100
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
