package cohort

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rewardengine/internal/config"
)

func TestMemoryResultStore_LatestResultIsEmptyBeforeAnySave(t *testing.T) {
	s := NewMemoryResultStore()
	_, found, err := s.LatestResult(context.Background())
	require.NoError(t, err)
	require.False(t, found)
}

func TestMemoryResultStore_SaveThenLatestRoundTrips(t *testing.T) {
	s := NewMemoryResultStore()
	want := Result{
		RunAt: time.Now(),
		Categories: map[config.Category]CategoryResult{
			config.CategoryLike: {Qualified: []string{"u1"}, Empathy: []string{"u2"}},
		},
	}
	require.NoError(t, s.SaveResult(context.Background(), want))

	got, found, err := s.LatestResult(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, got.RunAt.Equal(want.RunAt))
	require.Len(t, got.Categories[config.CategoryLike].Qualified, 1)
}

func TestMemoryResultStore_SaveOverwritesPreviousLatest(t *testing.T) {
	s := NewMemoryResultStore()
	first := Result{RunAt: time.Now().Add(-time.Hour)}
	second := Result{RunAt: time.Now()}
	require.NoError(t, s.SaveResult(context.Background(), first))
	require.NoError(t, s.SaveResult(context.Background(), second))

	got, _, err := s.LatestResult(context.Background())
	require.NoError(t, err)
	require.True(t, got.RunAt.Equal(second.RunAt))
}
