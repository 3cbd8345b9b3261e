// Package scorestore implements the durable per-user scoring ledger (C2):
// per-category point totals, per-category daily timestamp histories,
// streak, historical engagement score, and the one-time event log.
package scorestore

import (
	"context"
	"time"

	"rewardengine/internal/config"
)

// Record is the User Score Record from spec.md §3.
type Record struct {
	UserID string

	Points     map[config.Category]float64
	Timestamps map[config.Category][]time.Time

	OneTimePoints float64
	OneTimeEvents map[string]struct{}

	LastResetDate  time.Time // truncated to UTC midnight
	LastActiveDate time.Time // truncated to UTC midnight, zero if never active

	ConsecutiveActivityDays int
	HistoricalEngagementScore float64
}

// NewRecord returns a freshly created record for a first-time user, dated
// as of now.
func NewRecord(userID string, now time.Time) *Record {
	r := &Record{
		UserID:        userID,
		Points:        make(map[config.Category]float64, len(config.AllCategories)),
		Timestamps:    make(map[config.Category][]time.Time, len(config.AllCategories)),
		OneTimeEvents: make(map[string]struct{}),
		LastResetDate: dateOnly(now),
	}
	for _, c := range config.AllCategories {
		r.Points[c] = 0
		r.Timestamps[c] = nil
	}
	return r
}

// Clone deep-copies the record so callers (and the cache) never share
// mutable slices/maps across goroutines.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := &Record{
		UserID:                    r.UserID,
		OneTimePoints:             r.OneTimePoints,
		LastResetDate:             r.LastResetDate,
		LastActiveDate:            r.LastActiveDate,
		ConsecutiveActivityDays:   r.ConsecutiveActivityDays,
		HistoricalEngagementScore: r.HistoricalEngagementScore,
	}
	out.Points = make(map[config.Category]float64, len(r.Points))
	for k, v := range r.Points {
		out.Points[k] = v
	}
	out.Timestamps = make(map[config.Category][]time.Time, len(r.Timestamps))
	for k, v := range r.Timestamps {
		cp := make([]time.Time, len(v))
		copy(cp, v)
		out.Timestamps[k] = cp
	}
	out.OneTimeEvents = make(map[string]struct{}, len(r.OneTimeEvents))
	for k := range r.OneTimeEvents {
		out.OneTimeEvents[k] = struct{}{}
	}
	return out
}

// SumPoints returns the sum of the six category totals.
func (r *Record) SumPoints() float64 {
	var total float64
	for _, c := range config.AllCategories {
		total += r.Points[c]
	}
	return total
}

// CountSince returns the number of timestamps in category c at or after
// cutoff.
func (r *Record) CountSince(c config.Category, cutoff time.Time) int {
	n := 0
	for _, ts := range r.Timestamps[c] {
		if ts.After(cutoff) || ts.Equal(cutoff) {
			n++
		}
	}
	return n
}

// LifetimeCount returns the length of the category's timestamp history.
func (r *Record) LifetimeCount(c config.Category) int {
	return len(r.Timestamps[c])
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ApplyMonthResetIfDue resets the six point totals and one-time fields
// when now crosses into a new calendar month relative to
// r.LastResetDate. Timestamp histories and streak survive the reset
// (spec.md §3, §4.2).
func (r *Record) ApplyMonthResetIfDue(now time.Time) {
	if r.LastResetDate.IsZero() {
		r.LastResetDate = dateOnly(now)
		return
	}
	if r.LastResetDate.Year() == now.Year() && r.LastResetDate.Month() == now.Month() {
		return
	}
	for _, c := range config.AllCategories {
		r.Points[c] = 0
	}
	r.OneTimePoints = 0
	r.OneTimeEvents = make(map[string]struct{})
	r.LastResetDate = dateOnly(now)
}

// PostAward is a sidecar record mapping an accepted post to the delta it
// was awarded, so a later delete can refund exactly (spec.md §4.9, §6).
type PostAward struct {
	PostID       string
	UserID       string
	AwardedDelta float64
	AwardedAt    time.Time
}

// Store is the durable ledger contract (C2). Get returns (nil, false, nil)
// when the user has no record yet. UpsertAtomic is the sole mutation path:
// it loads (or creates) the record, applies month-reset if due, calls
// mutate, and persists the result atomically with respect to concurrent
// callers for the same user_id.
type Store interface {
	Get(ctx context.Context, userID string) (*Record, bool, error)
	UpsertAtomic(ctx context.Context, userID string, now time.Time, mutate func(*Record) error) (*Record, error)
	Scan(ctx context.Context, visit func(*Record) error) error

	RecordPostAward(ctx context.Context, award PostAward) error
	TakePostAward(ctx context.Context, postID string) (PostAward, bool, error)
}
