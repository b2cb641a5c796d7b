package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/blueprintforge/blueprintd/internal/blueprint"
)

// Store implements blueprint.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite store at the given path.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create blueprint directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
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
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	prompt TEXT NOT NULL,
	platform TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL CHECK(status IN ('generating','complete','error')),
	score INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
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
VALUES(?, ?, ?, ?, '', ?, ?, ?)`,
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
UPDATE blueprints SET content = ?, status = ?, updated_at = ? WHERE id = ?`,
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
UPDATE blueprints SET score = ?, updated_at = ? WHERE id = ?`,
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
FROM blueprints WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return blueprint.Record{}, blueprint.ErrNotFound
	}
	if err != nil {
		return blueprint.Record{}, wrapUnavailable(err)
	}
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
WHERE user_id = ?
ORDER BY created_at DESC
LIMIT ?`, userID, limit)
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	defer rows.Close()

	var list []blueprint.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blueprints WHERE id = ?`, id)
	if err != nil {
		return wrapUnavailable(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return blueprint.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (blueprint.Record, error) {
	var rec blueprint.Record
	var status string
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Prompt, &rec.Platform, &rec.Content, &status, &rec.Score, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return blueprint.Record{}, err
	}
	rec.Status = blueprint.Status(status)
	return rec, nil
}

func wrapUnavailable(err error) error {
	return fmt.Errorf("%w: %v", blueprint.ErrStoreUnavailable, err)
}
