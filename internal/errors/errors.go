package errors

import (
	"errors"
	"fmt"
)

// Common error types for the authentication core
var (
	// Persistence errors
	ErrPersistence = errors.New("persistence failure")
	ErrIntegrity   = errors.New("integrity violation")

	// Protocol violations - always fail closed, never auto-recovered
	ErrInvalidSignature = errors.New("invalid signature")
	ErrStateMismatch    = errors.New("state mismatch")
	ErrInvalidIDToken   = errors.New("invalid id token")

	// Transient network-facing failures - safe to retry at the caller's discretion
	ErrDiscoveryUnavailable = errors.New("provider discovery unavailable")
	ErrTokenExchangeFailed  = errors.New("token exchange failed")

	// Multi-step persistence sequences - best-effort compensation, not transactions
	ErrRegistrationFailed = errors.New("registration failed")
	ErrAccountLink        = errors.New("account link failed")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrTokenCollision  = errors.New("session token collision")

	// Provider errors
	ErrUnknownProvider = errors.New("unknown provider")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
