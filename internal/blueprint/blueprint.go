package blueprint

import (
	"context"
	"errors"
	"time"
)

// Status tracks a record's lifecycle. A record is created as generating and
// transitions exactly once to complete or error.
type Status string

const (
	StatusGenerating Status = "generating"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusGenerating, StatusComplete, StatusError:
		return true
	}
	return false
}

// Record is one generated blueprint. Content accumulates while the status is
// generating and is frozen by the terminal update.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Prompt    string    `json:"prompt"`
	Platform  string    `json:"platform"`
	Content   string    `json:"content"`
	Status    Status    `json:"status"`
	Score     int       `json:"score,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRecordParams carries the fields needed to allocate a record.
type NewRecordParams struct {
	UserID   string
	Prompt   string
	Platform string
}

var (
	// ErrNotFound indicates the record id does not exist.
	ErrNotFound = errors.New("blueprint not found")
	// ErrStoreUnavailable indicates the backing database cannot be reached.
	ErrStoreUnavailable = errors.New("blueprint store unavailable")
)

// Store defines persistence behaviour for blueprint records. Each record has
// a single writer per generation run; the store itself is the only holder of
// record state.
type Store interface {
	Create(ctx context.Context, params NewRecordParams) (Record, error)
	UpdateContent(ctx context.Context, id, content string, status Status) (Record, error)
	SetScore(ctx context.Context, id string, score int) error
	GetByID(ctx context.Context, id string) (Record, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]Record, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
