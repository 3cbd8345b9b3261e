package scorestore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"rewardengine/internal/config"
)

// PostgresStore is the durable Postgres-backed Store, opened with the
// jackc/pgx/v5 stdlib driver ("pgx") the same way the reference repo
// opens its ent-backed database connection (sql.Open("pgx", dsn)) —
// here queried directly with database/sql instead of through a
// generated ORM client.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool against dsn and ensures the
// schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PostgresStore{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying connection pool so other components
// (cohort result history, the advisory lock) can share it instead of
// opening a second pool against the same DSN.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS user_scores (
			user_id TEXT PRIMARY KEY,
			points JSONB NOT NULL DEFAULT '{}',
			timestamps JSONB NOT NULL DEFAULT '{}',
			one_time_points DOUBLE PRECISION NOT NULL DEFAULT 0,
			one_time_events JSONB NOT NULL DEFAULT '[]',
			last_reset_date DATE NOT NULL,
			last_active_date DATE,
			consecutive_activity_days INTEGER NOT NULL DEFAULT 0,
			historical_engagement_score DOUBLE PRECISION NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS post_award_ledger (
			post_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			awarded_delta DOUBLE PRECISION NOT NULL,
			awarded_at TIMESTAMPTZ NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// jsonColumn adapts an arbitrary JSON-able value to database/sql's
// Scanner/Valuer, used for the timestamp-history and one-time-event
// columns instead of native Postgres array columns.
type jsonColumn struct {
	target any
}

func (j *jsonColumn) Scan(src any) error {
	if src == nil {
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported json column source type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, j.target)
}

type jsonValue struct {
	value any
}

func (j jsonValue) Value() (driver.Value, error) {
	b, err := json.Marshal(j.value)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (*Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT points, timestamps, one_time_points, one_time_events,
		       last_reset_date, last_active_date, consecutive_activity_days,
		       historical_engagement_score
		FROM user_scores WHERE user_id = $1`, userID)
	r, err := scanRecord(userID, row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return r, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(userID string, row rowScanner) (*Record, error) {
	r := NewRecord(userID, time.Now())
	var lastActiveDate sql.NullTime
	pointsRaw := make(map[config.Category]float64)
	tsRaw := make(map[config.Category][]time.Time)
	var oneTimeEventList []string

	err := row.Scan(
		&jsonColumn{target: &pointsRaw},
		&jsonColumn{target: &tsRaw},
		&r.OneTimePoints,
		&jsonColumn{target: &oneTimeEventList},
		&r.LastResetDate,
		&lastActiveDate,
		&r.ConsecutiveActivityDays,
		&r.HistoricalEngagementScore,
	)
	if err != nil {
		return nil, err
	}

	for _, c := range config.AllCategories {
		r.Points[c] = pointsRaw[c]
		r.Timestamps[c] = tsRaw[c]
	}
	for _, e := range oneTimeEventList {
		r.OneTimeEvents[e] = struct{}{}
	}
	if lastActiveDate.Valid {
		r.LastActiveDate = lastActiveDate.Time
	}
	return r, nil
}

func (s *PostgresStore) UpsertAtomic(ctx context.Context, userID string, now time.Time, mutate func(*Record) error) (*Record, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_scores (user_id, last_reset_date) VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`, userID, dateOnly(now)); err != nil {
		return nil, fmt.Errorf("ensure user row: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		SELECT points, timestamps, one_time_points, one_time_events,
		       last_reset_date, last_active_date, consecutive_activity_days,
		       historical_engagement_score
		FROM user_scores WHERE user_id = $1 FOR UPDATE`, userID)
	r, err := scanRecord(userID, row)
	if err != nil {
		return nil, fmt.Errorf("load row for update: %w", err)
	}

	r.ApplyMonthResetIfDue(now)
	if err := mutate(r); err != nil {
		return nil, err
	}

	oneTimeEventList := make([]string, 0, len(r.OneTimeEvents))
	for e := range r.OneTimeEvents {
		oneTimeEventList = append(oneTimeEventList, e)
	}
	var lastActive any
	if !r.LastActiveDate.IsZero() {
		lastActive = r.LastActiveDate
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE user_scores SET
			points = $2, timestamps = $3, one_time_points = $4, one_time_events = $5,
			last_reset_date = $6, last_active_date = $7, consecutive_activity_days = $8,
			historical_engagement_score = $9
		WHERE user_id = $1`,
		userID,
		jsonValue{r.Points},
		jsonValue{r.Timestamps},
		r.OneTimePoints,
		jsonValue{oneTimeEventList},
		r.LastResetDate,
		lastActive,
		r.ConsecutiveActivityDays,
		r.HistoricalEngagementScore,
	)
	if err != nil {
		return nil, fmt.Errorf("persist row: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return r.Clone(), nil
}

func (s *PostgresStore) Scan(ctx context.Context, visit func(*Record) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, points, timestamps, one_time_points, one_time_events,
		       last_reset_date, last_active_date, consecutive_activity_days,
		       historical_engagement_score
		FROM user_scores ORDER BY user_id`)
	if err != nil {
		return fmt.Errorf("scan users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		var lastActiveDate sql.NullTime
		r := &Record{OneTimeEvents: make(map[string]struct{})}
		pointsRaw := make(map[config.Category]float64)
		tsRaw := make(map[config.Category][]time.Time)
		var oneTimeEventList []string

		if err := rows.Scan(
			&userID,
			&jsonColumn{target: &pointsRaw},
			&jsonColumn{target: &tsRaw},
			&r.OneTimePoints,
			&jsonColumn{target: &oneTimeEventList},
			&r.LastResetDate,
			&lastActiveDate,
			&r.ConsecutiveActivityDays,
			&r.HistoricalEngagementScore,
		); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		r.UserID = userID
		r.Points = make(map[config.Category]float64, len(config.AllCategories))
		r.Timestamps = make(map[config.Category][]time.Time, len(config.AllCategories))
		for _, c := range config.AllCategories {
			r.Points[c] = pointsRaw[c]
			r.Timestamps[c] = tsRaw[c]
		}
		for _, e := range oneTimeEventList {
			r.OneTimeEvents[e] = struct{}{}
		}
		if lastActiveDate.Valid {
			r.LastActiveDate = lastActiveDate.Time
		}
		if err := visit(r); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *PostgresStore) RecordPostAward(ctx context.Context, award PostAward) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO post_award_ledger (post_id, user_id, awarded_delta, awarded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (post_id) DO UPDATE SET user_id = $2, awarded_delta = $3, awarded_at = $4`,
		award.PostID, award.UserID, award.AwardedDelta, award.AwardedAt)
	if err != nil {
		return fmt.Errorf("record post award: %w", err)
	}
	return nil
}

func (s *PostgresStore) TakePostAward(ctx context.Context, postID string) (PostAward, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PostAward{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var award PostAward
	err = tx.QueryRowContext(ctx, `
		SELECT post_id, user_id, awarded_delta, awarded_at FROM post_award_ledger
		WHERE post_id = $1 FOR UPDATE`, postID).
		Scan(&award.PostID, &award.UserID, &award.AwardedDelta, &award.AwardedAt)
	if err == sql.ErrNoRows {
		return PostAward{}, false, nil
	}
	if err != nil {
		return PostAward{}, false, fmt.Errorf("load post award: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM post_award_ledger WHERE post_id = $1`, postID); err != nil {
		return PostAward{}, false, fmt.Errorf("delete post award: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return PostAward{}, false, fmt.Errorf("commit: %w", err)
	}
	return award, true, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
