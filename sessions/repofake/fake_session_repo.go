// Package repofake provides an in-memory sessions.Repo for tests.
package repofake

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/authkit-go/authkit/sessions"
)

// FakeSessionRepo is a thread-safe in-memory implementation of sessions.Repo.
// Error fields, when set, are returned by the corresponding method to let
// tests exercise persistence failure paths.
type FakeSessionRepo struct {
	mu   sync.RWMutex
	rows map[string]sessions.SessionRow

	CreateErr error
	UpdateErr error
	DeleteErr error
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		rows: make(map[string]sessions.SessionRow),
	}
}

func (r *FakeSessionRepo) CreateSessionRow(_ context.Context, token, userID string) (string, time.Time, error) {
	if r.CreateErr != nil {
		return "", time.Time{}, r.CreateErr
	}
	if token == "" || userID == "" {
		return "", time.Time{}, errors.New("token and userID are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	row := sessions.SessionRow{
		ID:        uuid.New().String(),
		Token:     token,
		UserID:    userID,
		CreatedAt: time.Now(),
	}
	r.rows[row.ID] = row
	return row.ID, row.CreatedAt, nil
}

func (r *FakeSessionRepo) UpdateSessionToken(_ context.Context, id, token string) error {
	if r.UpdateErr != nil {
		return r.UpdateErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok {
		return errors.New("session row not found")
	}
	row.Token = token
	r.rows[id] = row
	return nil
}

func (r *FakeSessionRepo) DeleteSessionRow(_ context.Context, id string) (bool, error) {
	if r.DeleteErr != nil {
		return false, r.DeleteErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.rows[id]
	delete(r.rows, id)
	return ok, nil
}

func (r *FakeSessionRepo) ListSessionRows(_ context.Context) ([]sessions.SessionRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]sessions.SessionRow, 0, len(r.rows))
	for _, row := range r.rows {
		out = append(out, row)
	}
	return out, nil
}

// Seed inserts a row directly, for bulk-load tests.
func (r *FakeSessionRepo) Seed(row sessions.SessionRow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[row.ID] = row
}

// Has reports whether a row with the given id is stored.
func (r *FakeSessionRepo) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rows[id]
	return ok
}

// Count returns the number of stored rows.
func (r *FakeSessionRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}
