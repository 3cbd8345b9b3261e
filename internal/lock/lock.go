// Package lock provides the single-instance-run guarantee the Cohort
// Engine (C10) needs: it must not run concurrently with itself
// (spec.md §5).
package lock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"sync"
)

// Locker is a non-blocking exclusive lock keyed by name. TryAcquire
// returns (false, nil) when another holder currently owns the lock,
// never blocking the caller.
type Locker interface {
	TryAcquire(ctx context.Context, name string) (Lock, bool, error)
}

// Lock is held until Release is called.
type Lock interface {
	Release(ctx context.Context) error
}

// ProcessLock is an in-memory Locker for single-process deployments and
// tests; it does not coordinate across processes.
type ProcessLock struct {
	mu      sync.Mutex
	holders map[string]struct{}
}

func NewProcessLock() *ProcessLock {
	return &ProcessLock{holders: make(map[string]struct{})}
}

func (l *ProcessLock) TryAcquire(_ context.Context, name string) (Lock, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.holders[name]; held {
		return nil, false, nil
	}
	l.holders[name] = struct{}{}
	return &processHeldLock{parent: l, name: name}, true, nil
}

type processHeldLock struct {
	parent *ProcessLock
	name   string
}

func (h *processHeldLock) Release(_ context.Context) error {
	h.parent.mu.Lock()
	defer h.parent.mu.Unlock()
	delete(h.parent.holders, h.name)
	return nil
}

// PostgresLock uses pg_try_advisory_lock so multiple scheduler
// instances across processes and hosts contend for the same key.
type PostgresLock struct {
	db *sql.DB
}

func NewPostgresLock(db *sql.DB) *PostgresLock {
	return &PostgresLock{db: db}
}

func (l *PostgresLock) TryAcquire(ctx context.Context, name string) (Lock, bool, error) {
	key := lockKey(name)
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&acquired); err != nil {
		conn.Close()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Close()
		return nil, false, nil
	}
	return &postgresHeldLock{conn: conn, key: key}, true, nil
}

type postgresHeldLock struct {
	conn *sql.Conn
	key  int64
}

func (h *postgresHeldLock) Release(ctx context.Context) error {
	defer h.conn.Close()
	if _, err := h.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", h.key); err != nil {
		return fmt.Errorf("release advisory lock: %w", err)
	}
	return nil
}

// lockKey hashes name into the int64 space pg_advisory_lock expects.
func lockKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}
