package cohort

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"rewardengine/internal/config"
)

// ResultStore persists cohort run output so the read-only admin views
// (spec.md §6) have something to serve between runs.
type ResultStore interface {
	SaveResult(ctx context.Context, result Result) error
	LatestResult(ctx context.Context) (Result, bool, error)
}

// MemoryResultStore keeps only the most recent run in memory.
type MemoryResultStore struct {
	mu     sync.RWMutex
	latest *Result
}

func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{}
}

func (s *MemoryResultStore) SaveResult(_ context.Context, result Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := result
	s.latest = &cp
	return nil
}

func (s *MemoryResultStore) LatestResult(_ context.Context) (Result, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return Result{}, false, nil
	}
	return *s.latest, true, nil
}

// serializedResult is the JSON-friendly shape stored per run.
type serializedResult struct {
	RunAt      time.Time                             `json:"run_at"`
	Categories map[config.Category]CategoryResult `json:"categories"`
}

// PostgresResultStore persists every run in an append-only history
// table, keyed by run_at, so admin views can also inspect prior runs.
type PostgresResultStore struct {
	db *sql.DB
}

func NewPostgresResultStore(db *sql.DB) (*PostgresResultStore, error) {
	s := &PostgresResultStore{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresResultStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS cohort_run_history (
	run_at TIMESTAMPTZ PRIMARY KEY,
	categories JSONB NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("ensure cohort_run_history schema: %w", err)
	}
	return nil
}

func (s *PostgresResultStore) SaveResult(ctx context.Context, result Result) error {
	raw, err := json.Marshal(result.Categories)
	if err != nil {
		return fmt.Errorf("marshal cohort result: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cohort_run_history (run_at, categories) VALUES ($1, $2)
		 ON CONFLICT (run_at) DO UPDATE SET categories = EXCLUDED.categories`,
		result.RunAt, raw)
	if err != nil {
		return fmt.Errorf("save cohort result: %w", err)
	}
	return nil
}

func (s *PostgresResultStore) LatestResult(ctx context.Context) (Result, bool, error) {
	var runAt time.Time
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT run_at, categories FROM cohort_run_history ORDER BY run_at DESC LIMIT 1`,
	).Scan(&runAt, &raw)
	if err == sql.ErrNoRows {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("load latest cohort result: %w", err)
	}
	var categories map[config.Category]CategoryResult
	if err := json.Unmarshal(raw, &categories); err != nil {
		return Result{}, false, fmt.Errorf("decode latest cohort result: %w", err)
	}
	return Result{RunAt: runAt, Categories: categories}, true, nil
}
