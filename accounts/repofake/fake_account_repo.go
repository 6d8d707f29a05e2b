// Package repofake provides an in-memory accounts.Repo for tests.
package repofake

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/authkit-go/authkit/accounts"
)

type compositeKey struct {
	userID   string
	provider string
}

// FakeAccountRepo is a thread-safe in-memory implementation of accounts.Repo.
// Error fields, when set, are returned by the corresponding method to let
// tests exercise persistence failure paths.
type FakeAccountRepo struct {
	mu       sync.RWMutex
	accounts map[compositeKey]*accounts.Account

	CreateErr       error
	UpdateTokensErr error

	// Call counters for asserting the exactly-one-of linking policy.
	Creates      int
	TokenUpdates int
}

func NewFakeAccountRepo() *FakeAccountRepo {
	return &FakeAccountRepo{
		accounts: make(map[compositeKey]*accounts.Account),
	}
}

func (r *FakeAccountRepo) GetByCompositeKey(_ context.Context, userID, providerID string) (*accounts.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[compositeKey{userID, providerID}]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *FakeAccountRepo) Create(_ context.Context, fields accounts.NewAccount) (*accounts.Account, error) {
	if r.CreateErr != nil {
		return nil, r.CreateErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a := &accounts.Account{
		ID:                uuid.New().String(),
		UserID:            fields.UserID,
		Provider:          fields.Provider,
		ProviderAccountID: fields.ProviderAccountID,
		PasswordHash:      fields.PasswordHash,
		AccessToken:       fields.AccessToken,
		RefreshToken:      fields.RefreshToken,
		ExpiresIn:         fields.ExpiresIn,
		CreatedAt:         time.Now(),
	}
	r.accounts[compositeKey{a.UserID, a.Provider}] = a
	r.Creates++

	cp := *a
	return &cp, nil
}

func (r *FakeAccountRepo) UpdatePassword(_ context.Context, userID, hash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.accounts {
		if a.UserID == userID && a.PasswordHash != "" {
			a.PasswordHash = hash
			return true, nil
		}
	}
	return false, nil
}

func (r *FakeAccountRepo) UpdateTokens(_ context.Context, access, refresh string, expiresIn int64, userID, providerID string) (bool, error) {
	if r.UpdateTokensErr != nil {
		return false, r.UpdateTokensErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[compositeKey{userID, providerID}]
	if !ok {
		return false, nil
	}
	a.AccessToken = access
	a.RefreshToken = refresh
	a.ExpiresIn = expiresIn
	r.TokenUpdates++
	return true, nil
}
