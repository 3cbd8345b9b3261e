package scorestore

import (
	"context"
	"time"

	"rewardengine/internal/cache"
)

// CachedStore wraps an origin Store with a read-through LRU+TTL cache for
// Get, invalidating the entry on every UpsertAtomic. Scan and the post
// award ledger always go straight to the origin: the cohort engine (C10)
// must see authoritative state, and award bookkeeping is not a hot path.
type CachedStore struct {
	origin Store
	hot    *cache.LRUTTL[string, *Record]
}

// DefaultCacheTTL balances staleness against load on the origin store for
// a ledger that is read on every synchronous interaction.
const DefaultCacheTTL = 5 * time.Second

func NewCachedStore(origin Store, maxEntries int, ttl time.Duration) *CachedStore {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedStore{
		origin: origin,
		hot:    cache.NewLRUTTL[string, *Record](maxEntries, ttl),
	}
}

func (s *CachedStore) Get(ctx context.Context, userID string) (*Record, bool, error) {
	if r, ok := s.hot.Get(userID); ok {
		return r.Clone(), true, nil
	}
	r, ok, err := s.origin.Get(ctx, userID)
	if err != nil || !ok {
		return r, ok, err
	}
	s.hot.Set(userID, r.Clone())
	return r, true, nil
}

func (s *CachedStore) UpsertAtomic(ctx context.Context, userID string, now time.Time, mutate func(*Record) error) (*Record, error) {
	r, err := s.origin.UpsertAtomic(ctx, userID, now, mutate)
	if err != nil {
		s.hot.Delete(userID)
		return nil, err
	}
	s.hot.Set(userID, r.Clone())
	return r, nil
}

func (s *CachedStore) Scan(ctx context.Context, visit func(*Record) error) error {
	return s.origin.Scan(ctx, visit)
}

func (s *CachedStore) RecordPostAward(ctx context.Context, award PostAward) error {
	return s.origin.RecordPostAward(ctx, award)
}

func (s *CachedStore) TakePostAward(ctx context.Context, postID string) (PostAward, bool, error) {
	return s.origin.TakePostAward(ctx, postID)
}
