// Package accounts models the provider-specific link between a user and a
// credential: a password hash for the local provider, or an external identity
// with its OAuth tokens for an OIDC provider.
package accounts

import "time"

// Account links a user to a provider-specific secret or external identity.
// Owned by the persistence layer.
type Account struct {
	ID                string
	UserID            string
	Provider          string // provider id, e.g. "emailPassword" or "google"
	ProviderAccountID string // provider-scoped subject, empty for the local provider
	PasswordHash      string // set only for the local provider
	AccessToken       string
	RefreshToken      string
	ExpiresIn         int64 // access token lifetime in seconds, as reported by the provider
	CreatedAt         time.Time
}

// NewAccount holds the fields needed to create an account row.
type NewAccount struct {
	UserID            string
	Provider          string
	ProviderAccountID string
	PasswordHash      string
	AccessToken       string
	RefreshToken      string
	ExpiresIn         int64
}
