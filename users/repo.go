package users

import "context"

// Repo is the persistence collaborator for users. Lookup methods return
// (nil, nil) when no row matches; errors are reserved for store failures.
type Repo interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, fields NewUser) (*User, error)
	UpdateRoles(ctx context.Context, roles []string, userID string) (*User, error)
	Delete(ctx context.Context, id string) error
}
