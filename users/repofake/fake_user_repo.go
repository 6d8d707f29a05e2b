// Package repofake provides an in-memory users.Repo for tests.
package repofake

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/authkit-go/authkit/users"
)

// FakeUserRepo is a thread-safe in-memory implementation of users.Repo.
// Error fields, when set, are returned by the corresponding method to let
// tests exercise persistence failure paths.
type FakeUserRepo struct {
	mu    sync.RWMutex
	byID  map[string]*users.User
	now   func() time.Time

	CreateErr error
	DeleteErr error
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		byID: make(map[string]*users.User),
		now:  time.Now,
	}
}

func (r *FakeUserRepo) GetByEmail(_ context.Context, email string) (*users.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.byID {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *FakeUserRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *FakeUserRepo) Create(_ context.Context, fields users.NewUser) (*users.User, error) {
	if r.CreateErr != nil {
		return nil, r.CreateErr
	}
	if fields.Email == "" {
		return nil, errors.New("email is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u := &users.User{
		ID:            uuid.New().String(),
		Email:         fields.Email,
		Username:      fields.Username,
		Name:          fields.Name,
		Image:         fields.Image,
		EmailVerified: fields.EmailVerified,
		Roles:         append([]string(nil), fields.Roles...),
		CreatedAt:     r.now(),
	}
	r.byID[u.ID] = u

	cp := *u
	return &cp, nil
}

func (r *FakeUserRepo) UpdateRoles(_ context.Context, roles []string, userID string) (*users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[userID]
	if !ok {
		return nil, errors.New("user not found")
	}
	u.Roles = append([]string(nil), roles...)

	cp := *u
	return &cp, nil
}

func (r *FakeUserRepo) Delete(_ context.Context, id string) error {
	if r.DeleteErr != nil {
		return r.DeleteErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byID, id)
	return nil
}

// Count returns the number of stored users.
func (r *FakeUserRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
