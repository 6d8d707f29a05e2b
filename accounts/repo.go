package accounts

import "context"

// Repo is the persistence collaborator for accounts. GetByCompositeKey
// returns (nil, nil) when no row matches; errors are reserved for store
// failures.
type Repo interface {
	GetByCompositeKey(ctx context.Context, userID, providerID string) (*Account, error)
	Create(ctx context.Context, fields NewAccount) (*Account, error)
	UpdatePassword(ctx context.Context, userID, hash string) (bool, error)
	UpdateTokens(ctx context.Context, access, refresh string, expiresIn int64, userID, providerID string) (bool, error)
}
