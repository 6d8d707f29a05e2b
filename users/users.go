package users

import (
	"time"
)

// Default roles assigned to newly created users.
const RoleUser = "user"

// User is the authenticated principal. The authoritative copy is owned by the
// persistence layer; in-memory sessions hold a read copy.
type User struct {
	ID            string     `json:"id,omitempty"`
	Email         string     `json:"email,omitempty"`
	Username      string     `json:"username,omitempty"`
	Name          string     `json:"name,omitempty"`
	Image         string     `json:"image,omitempty"`
	EmailVerified *time.Time `json:"email_verified,omitempty"` // nil when the email has not been verified
	Roles         []string   `json:"roles,omitempty"`
	CreatedAt     time.Time  `json:"created_at,omitempty"`
}

// NewUser holds the fields needed to create a user row.
type NewUser struct {
	Email         string
	Username      string
	Name          string
	Image         string
	EmailVerified *time.Time
	Roles         []string
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
