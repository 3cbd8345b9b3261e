package scorestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rewardengine/internal/config"
)

func TestUpsertAtomic_CreatesRecordOnFirstCall(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	r, err := s.UpsertAtomic(context.Background(), "user1", now, func(r *Record) error {
		r.Points[config.CategoryLike] += 0.1
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 0.1, r.Points[config.CategoryLike])
}

func TestUpsertAtomic_ResetsOnNewMonthButKeepsTimestamps(t *testing.T) {
	s := NewMemoryStore()
	jan := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.UpsertAtomic(context.Background(), "user1", jan, func(r *Record) error {
		r.Points[config.CategoryLike] = 5
		r.Timestamps[config.CategoryLike] = append(r.Timestamps[config.CategoryLike], jan)
		return nil
	})
	require.NoError(t, err)

	r, err := s.UpsertAtomic(context.Background(), "user1", feb, func(r *Record) error { return nil })
	require.NoError(t, err)
	require.Equal(t, 0.0, r.Points[config.CategoryLike])
	require.Len(t, r.Timestamps[config.CategoryLike], 1)
}

func TestUpsertAtomic_PropagatesMutateError(t *testing.T) {
	s := NewMemoryStore()
	sentinel := errSentinel("boom")
	_, err := s.UpsertAtomic(context.Background(), "user1", time.Now(), func(r *Record) error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
}

func TestRecordAndTakePostAward_RoundTrips(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	award := PostAward{PostID: "post1", UserID: "user1", AwardedDelta: 1.2, AwardedAt: time.Now()}
	require.NoError(t, s.RecordPostAward(ctx, award))

	got, found, err := s.TakePostAward(ctx, "post1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 1.2, got.AwardedDelta)

	_, found, err = s.TakePostAward(ctx, "post1")
	require.NoError(t, err)
	require.False(t, found, "award should be consumed after take")
}

type errSentinel string

func (e errSentinel) Error() string { return string(e) }
