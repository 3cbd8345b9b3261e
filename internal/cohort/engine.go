// Package cohort implements the Cohort Engine (C10): the once-daily
// qualification job that marks per-category qualification, updates the
// streak/historical-engagement-score pair, and builds the empathy
// cohorts (spec.md §4.10).
package cohort

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"rewardengine/internal/config"
	"rewardengine/internal/lock"
	"rewardengine/internal/scorestore"
)

const lockName = "cohort-engine-daily-run"

// CategoryResult is the per-category output of one run (spec.md §4.10).
type CategoryResult struct {
	Qualified []string
	Empathy   []string
}

// Result is the full output of one cohort run, keyed by category.
type Result struct {
	RunAt      time.Time
	Categories map[config.Category]CategoryResult
}

// userSnapshot is the subset of Record state the cohort computation
// needs, captured under the store's own read path so the run works
// from a single consistent pass over users (spec.md §4.10 "atomically
// snapshot").
type userSnapshot struct {
	userID               string
	qualifiedBy          map[config.Category]bool
	allQualified         bool
	preResetStreak       int
	priorHistoricalScore float64
	lifetimeCounts       map[config.Category]int
}

// Engine runs the daily qualification job.
type Engine struct {
	store  scorestore.Store
	rules  config.ScoringConfig
	locker lock.Locker
	nowFn  func() time.Time
}

func New(store scorestore.Store, rules config.ScoringConfig, locker lock.Locker) *Engine {
	return &Engine{store: store, rules: rules, locker: locker, nowFn: time.Now}
}

// ErrAlreadyRunning is returned when another instance currently holds
// the single-instance lock.
var ErrAlreadyRunning = fmt.Errorf("cohort engine: a run is already in progress")

// Run executes one full pass. It takes the single-instance lock for its
// entire duration, so a second concurrent call anywhere in the
// deployment fails fast with ErrAlreadyRunning rather than double
// counting streaks (spec.md §5).
func (e *Engine) Run(ctx context.Context) (Result, error) {
	held, ok, err := e.locker.TryAcquire(ctx, lockName)
	if err != nil {
		return Result{}, fmt.Errorf("acquire cohort lock: %w", err)
	}
	if !ok {
		return Result{}, ErrAlreadyRunning
	}
	defer held.Release(ctx)

	now := e.nowFn().UTC()
	cutoff := now.Add(-24 * time.Hour)

	snapshots, err := e.snapshotAndUpdateStreaks(ctx, now, cutoff)
	if err != nil {
		return Result{}, err
	}

	categories := make(map[config.Category]CategoryResult, len(config.AllCategories))
	for _, c := range config.AllCategories {
		categories[c] = buildCategoryCohort(c, snapshots, e.rules)
	}

	return Result{RunAt: now, Categories: categories}, nil
}

// snapshotAndUpdateStreaks walks every user record once. For each user
// it determines per-category qualification from the current timestamp
// history, then performs the two-phase streak update: the pre-reset
// streak is captured before any zeroing so a non-fully-qualified user's
// empathy score still reflects the streak they had going into today
// (spec.md §9).
func (e *Engine) snapshotAndUpdateStreaks(ctx context.Context, now, cutoff time.Time) ([]userSnapshot, error) {
	var userIDs []string
	if err := e.store.Scan(ctx, func(r *scorestore.Record) error {
		userIDs = append(userIDs, r.UserID)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("scan user ids: %w", err)
	}

	snapshots := make([]userSnapshot, 0, len(userIDs))
	for _, userID := range userIDs {
		var snap userSnapshot
		_, err := e.store.UpsertAtomic(ctx, userID, now, func(r *scorestore.Record) error {
			snap = userSnapshot{
				userID:         r.UserID,
				qualifiedBy:    make(map[config.Category]bool, len(config.AllCategories)),
				lifetimeCounts: make(map[config.Category]int, len(config.AllCategories)),
				allQualified:   true,
			}

			for _, c := range config.AllCategories {
				count := r.CountSince(c, cutoff)
				qualified := count >= e.rules.Rule(c).DailyLimit
				snap.qualifiedBy[c] = qualified
				snap.lifetimeCounts[c] = r.LifetimeCount(c)
				if !qualified {
					snap.allQualified = false
				}
			}

			preResetStreak := r.ConsecutiveActivityDays
			snap.preResetStreak = preResetStreak

			// Only a user who qualified in every category extends the
			// streak and zeroes the historical score. Everyone else,
			// including active-but-partial users, resets the streak and
			// gets a recomputed historical score (spec.md §4.10).
			if snap.allQualified {
				r.ConsecutiveActivityDays = preResetStreak + 1
				r.HistoricalEngagementScore = 0
				snap.priorHistoricalScore = 0
			} else {
				historical := historicalEngagementScore(preResetStreak, snap.lifetimeCounts, e.rules)
				r.ConsecutiveActivityDays = 0
				r.HistoricalEngagementScore = historical
				snap.priorHistoricalScore = historical
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("update streak for user %s: %w", userID, err)
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

func historicalEngagementScore(preResetStreak int, lifetimeCounts map[config.Category]int, rules config.ScoringConfig) float64 {
	streakComponent := float64(preResetStreak) * rules.EmpathyStreakWeight
	var activityComponent float64
	for _, c := range config.AllCategories {
		activityComponent += float64(lifetimeCounts[c]) * rules.Rule(c).EmpathyWeight
	}
	return streakComponent + activityComponent
}

// buildCategoryCohort computes qualified_c and empathy_c for one
// category from the already-updated snapshots (spec.md §4.10).
func buildCategoryCohort(c config.Category, snapshots []userSnapshot, rules config.ScoringConfig) CategoryResult {
	var qualified []string
	var nonQualified []userSnapshot
	for _, s := range snapshots {
		if s.qualifiedBy[c] {
			qualified = append(qualified, s.userID)
		} else {
			nonQualified = append(nonQualified, s)
		}
	}
	sort.Strings(qualified)

	candidates := make([]userSnapshot, 0, len(nonQualified))
	for _, s := range nonQualified {
		if s.priorHistoricalScore > 0 {
			candidates = append(candidates, s)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].priorHistoricalScore != candidates[j].priorHistoricalScore {
			return candidates[i].priorHistoricalScore > candidates[j].priorHistoricalScore
		}
		return candidates[i].userID < candidates[j].userID
	})

	// P8 (spec.md §8) fixes the denominator as non-qualified users with
	// score > 0, not the whole non-qualified pool; §4.10's "excluding
	// zero-score users" prose is satisfied by candidates already being
	// score>0-only.
	selectionFraction := rules.EmpathySelectionFraction
	empathyCount := int(math.Ceil(selectionFraction * float64(len(candidates))))
	if empathyCount > len(candidates) {
		empathyCount = len(candidates)
	}

	empathy := make([]string, 0, empathyCount)
	for i := 0; i < empathyCount; i++ {
		empathy = append(empathy, candidates[i].userID)
	}

	return CategoryResult{Qualified: qualified, Empathy: empathy}
}
