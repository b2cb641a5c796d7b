package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/blueprintforge/blueprintd/internal/blueprint"
)

// Store implements blueprint.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// Config holds connection pool settings.
type Config struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// New opens a PostgreSQL-backed blueprint store using the provided DSN.
func New(dsn string, cfg Config) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS blueprints (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	prompt TEXT NOT NULL,
	platform TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL CHECK(status IN ('generating','complete','error')),
	score INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_blueprints_user_created ON blueprints(user_id, created_at DESC);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new record with status=generating and empty content.
func (s *Store) Create(ctx context.Context, params blueprint.NewRecordParams) (blueprint.Record, error) {
	if strings.TrimSpace(params.Prompt) == "" {
		return blueprint.Record{}, errors.New("blueprint create requires prompt")
	}
	if strings.TrimSpace(params.Platform) == "" {
		return blueprint.Record{}, errors.New("blueprint create requires platform")
	}
	now := time.Now().UTC()
	rec := blueprint.Record{
		ID:        uuid.NewString(),
		UserID:    params.UserID,
		Prompt:    params.Prompt,
		Platform:  params.Platform,
		Status:    blueprint.StatusGenerating,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO blueprints(id, user_id, prompt, platform, content, status, created_at, updated_at)
VALUES($1, $2, $3, $4, '', $5, $6, $7)`,
		rec.ID,
		rec.UserID,
		rec.Prompt,
		rec.Platform,
		string(rec.Status),
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return blueprint.Record{}, wrapUnavailable(err)
	}
	return rec, nil
}

// UpdateContent replaces a record's content and status and returns the
// updated row.
func (s *Store) UpdateContent(ctx context.Context, id, content string, status blueprint.Status) (blueprint.Record, error) {
	if !status.Valid() {
		return blueprint.Record{}, fmt.Errorf("invalid status %q", status)
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE blueprints SET content = $1, status = $2, updated_at = $3 WHERE id = $4`,
		content,
		string(status),
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return blueprint.Record{}, wrapUnavailable(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return blueprint.Record{}, blueprint.ErrNotFound
	}
	return s.GetByID(ctx, id)
}

// SetScore stores a quality score on a finished record.
func (s *Store) SetScore(ctx context.Context, id string, score int) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE blueprints SET score = $1, updated_at = $2 WHERE id = $3`,
		score,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return wrapUnavailable(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return blueprint.ErrNotFound
	}
	return nil
}

// GetByID fetches one record.
func (s *Store) GetByID(ctx context.Context, id string) (blueprint.Record, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, user_id, prompt, platform, content, status, score, created_at, updated_at
FROM blueprints WHERE id = $1`, id)
	var rec blueprint.Record
	var status string
	err := row.Scan(&rec.ID, &rec.UserID, &rec.Prompt, &rec.Platform, &rec.Content, &status, &rec.Score, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return blueprint.Record{}, blueprint.ErrNotFound
	}
	if err != nil {
		return blueprint.Record{}, wrapUnavailable(err)
	}
	rec.Status = blueprint.Status(status)
	return rec, nil
}

// ListForUser returns the latest records for a user.
func (s *Store) ListForUser(ctx context.Context, userID string, limit int) ([]blueprint.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, prompt, platform, content, status, score, created_at, updated_at
FROM blueprints
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	defer rows.Close()

	var list []blueprint.Record
	for rows.Next() {
		var rec blueprint.Record
		var status string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Prompt, &rec.Platform, &rec.Content, &status, &rec.Score, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Status = blueprint.Status(status)
		list = append(list, rec)
	}
	return list, rows.Err()
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blueprints WHERE id = $1`, id)
	if err != nil {
		return wrapUnavailable(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return blueprint.ErrNotFound
	}
	return nil
}

func wrapUnavailable(err error) error {
	return fmt.Errorf("%w: %v", blueprint.ErrStoreUnavailable, err)
}
