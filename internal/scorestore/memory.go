package scorestore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store, used for local development and the
// test suite. A single mutex guards the whole map; UpsertAtomic holds it
// for the duration of the mutator, which gives per-user_id serialization
// (spec.md §5) since no other goroutine can interleave a read or write.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	awards  map[string]PostAward
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		awards:  make(map[string]PostAward),
	}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[userID]
	if !ok {
		return nil, false, nil
	}
	return r.Clone(), true, nil
}

func (s *MemoryStore) UpsertAtomic(_ context.Context, userID string, now time.Time, mutate func(*Record) error) (*Record, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[userID]
	if !ok {
		r = NewRecord(userID, now)
	}
	r.ApplyMonthResetIfDue(now)

	if err := mutate(r); err != nil {
		return nil, err
	}
	s.records[userID] = r
	return r.Clone(), nil
}

func (s *MemoryStore) Scan(_ context.Context, visit func(*Record) error) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	snapshots := make([]*Record, 0, len(ids))
	for _, id := range ids {
		snapshots = append(snapshots, s.records[id].Clone())
	}
	s.mu.Unlock()

	for _, r := range snapshots {
		if err := visit(r); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) RecordPostAward(_ context.Context, award PostAward) error {
	if award.PostID == "" {
		return fmt.Errorf("post_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.awards[award.PostID] = award
	return nil
}

func (s *MemoryStore) TakePostAward(_ context.Context, postID string) (PostAward, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	award, ok := s.awards[postID]
	if !ok {
		return PostAward{}, false, nil
	}
	delete(s.awards, postID)
	return award, true, nil
}
