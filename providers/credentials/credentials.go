// Package credentials implements local email/password authentication:
// login verification against a stored bcrypt hash, and registration with
// best-effort compensation of partially applied persistence steps.
package credentials

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/authkit-go/authkit/accounts"
	apperrors "github.com/authkit-go/authkit/internal/errors"
	"github.com/authkit-go/authkit/users"
)

// ProviderID identifies the local email/password provider in account rows
// and route paths.
const ProviderID = "emailPassword"

// dummyHash is a valid bcrypt hash compared against on the unknown-email and
// missing-account paths, so a negative login costs the same as a wrong
// password and the two outcomes stay indistinguishable from outside.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Service provides email/password login and registration on top of the
// persistence collaborators.
type Service struct {
	users    users.Repo
	accounts accounts.Repo
	cost     int
	log      zerolog.Logger
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithCost sets the bcrypt work factor used for new password hashes.
func WithCost(cost int) ServiceOption {
	return func(s *Service) {
		s.cost = cost
	}
}

// WithLogger sets the service logger.
func WithLogger(log zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.log = log
	}
}

// NewService initializes the credentials provider with its repositories.
func NewService(userRepo users.Repo, accountRepo accounts.Repo, options ...ServiceOption) (*Service, error) {
	if userRepo == nil {
		return nil, errors.New("[credentials.NewService] user repo is required")
	}
	if accountRepo == nil {
		return nil, errors.New("[credentials.NewService] account repo is required")
	}

	s := &Service{
		users:    userRepo,
		accounts: accountRepo,
		cost:     bcrypt.DefaultCost,
		log:      zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Login returns the user whose email/password pair matches, or (nil, nil)
// for every negative outcome: unknown email, no credentials account, or a
// wrong password. The negative paths are deliberately shaped alike so a
// caller cannot use them to enumerate accounts.
func (s *Service) Login(ctx context.Context, email, password string) (*users.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrPersistence, err.Error())
	}
	if user == nil {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return nil, nil
	}

	account, err := s.accounts.GetByCompositeKey(ctx, user.ID, ProviderID)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrPersistence, err.Error())
	}
	if account == nil || account.PasswordHash == "" {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return nil, nil
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, nil
	}

	return user, nil
}

// Register hashes the password and creates the user plus its linked
// credentials account. If the account step fails after the user row was
// created, the user row is deleted again so no credential-less account is
// left behind; the compensation is best-effort, not a transaction. When a
// user with the email already exists, a credentials account is linked to it
// instead of creating a duplicate user.
func (s *Service) Register(ctx context.Context, newUser users.NewUser, password string) (*users.User, error) {
	existing, err := s.users.GetByEmail(ctx, newUser.Email)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrPersistence, err.Error())
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Register] hash password")
	}

	if existing != nil {
		if _, err := s.accounts.Create(ctx, accounts.NewAccount{
			UserID:       existing.ID,
			Provider:     ProviderID,
			PasswordHash: hash,
		}); err != nil {
			return nil, errors.Wrapf(apperrors.ErrRegistrationFailed, "[Service.Register] link account for %s: %v", newUser.Email, err)
		}
		return existing, nil
	}

	created, err := s.users.Create(ctx, newUser)
	if err != nil {
		return nil, errors.Wrapf(apperrors.ErrRegistrationFailed, "[Service.Register] create user %s: %v", newUser.Email, err)
	}

	if _, err := s.accounts.Create(ctx, accounts.NewAccount{
		UserID:       created.ID,
		Provider:     ProviderID,
		PasswordHash: hash,
	}); err != nil {
		// No account was created, so the user row must not survive.
		if delErr := s.users.Delete(ctx, created.ID); delErr != nil {
			s.log.Error().Err(delErr).Str("user_id", created.ID).Msg("failed to compensate orphaned user row")
		}
		return nil, errors.Wrapf(apperrors.ErrRegistrationFailed, "[Service.Register] create account for %s: %v", newUser.Email, err)
	}

	return created, nil
}

// HashPassword hashes a password with the configured work factor.
func (s *Service) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	return string(bytes), err
}
