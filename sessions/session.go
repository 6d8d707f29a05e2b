// Package sessions implements the session lifecycle engine: an in-memory
// dual-indexed registry of live sessions with TTL-based lazy eviction,
// backed by a durable persistence collaborator.
package sessions

import (
	"time"

	"github.com/authkit-go/authkit/users"
)

// Session represents one authenticated browser/client instance.
type Session struct {
	// ID is assigned by the persistence layer at creation and stays
	// immutable for the session's lifetime, including across rotation.
	ID string

	// Token is the opaque bearer credential and sole means of presenting
	// the session. It changes on rotation.
	Token string

	// User is a read copy of the authenticated principal; the persistence
	// layer owns the authoritative record.
	User users.User

	// CreatedAt anchors the absolute TTL. It never changes on rotation,
	// so rotation extends idle validity only, never absolute validity.
	CreatedAt time.Time

	// LastActivity anchors the idle TTL and is bumped on every successful
	// authenticated access.
	LastActivity time.Time
}
