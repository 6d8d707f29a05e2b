package sessions

import (
	"context"
	"time"
)

// SessionRow is the durable representation of a session, as handed back by
// the persistence layer during bulk load.
type SessionRow struct {
	ID        string
	Token     string
	UserID    string
	CreatedAt time.Time
}

// Repo is the persistence collaborator for sessions. The durable store is
// the source of truth on restart; the in-memory store is authoritative while
// the process lives.
type Repo interface {
	// CreateSessionRow durably inserts a new session for (token, userID)
	// and returns the assigned id and creation timestamp.
	CreateSessionRow(ctx context.Context, token, userID string) (id string, createdAt time.Time, err error)

	// UpdateSessionToken durably replaces the token of an existing session.
	UpdateSessionToken(ctx context.Context, id, token string) error

	// DeleteSessionRow removes a session row, reporting whether one existed.
	DeleteSessionRow(ctx context.Context, id string) (bool, error)

	// ListSessionRows returns all durable sessions, for bulk load at start.
	ListSessionRows(ctx context.Context) ([]SessionRow, error)
}
