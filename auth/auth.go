// Package auth wires the providers and the session store into one
// explicitly constructed service object. It owns the account resolution
// policy that turns a verified OIDC profile into exactly one persistence
// mutation, and the session-level operations built on rotation.
package auth

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/authkit-go/authkit/accounts"
	"github.com/authkit-go/authkit/internal/config"
	apperrors "github.com/authkit-go/authkit/internal/errors"
	"github.com/authkit-go/authkit/providers/credentials"
	"github.com/authkit-go/authkit/providers/oidc"
	"github.com/authkit-go/authkit/sessions"
	"github.com/authkit-go/authkit/users"
)

// ProviderType discriminates the provider variant.
type ProviderType string

const (
	ProviderTypeCredentials ProviderType = "credentials"
	ProviderTypeOIDC        ProviderType = "oidc"
)

// Provider is a tagged variant over the two provider capabilities: exactly
// one of Credentials or OIDC is set, matching Type.
type Provider struct {
	ID          string
	Type        ProviderType
	Credentials *credentials.Service
	OIDC        *oidc.Provider
}

// Repos holds all repository dependencies for the Service.
type Repos struct {
	Users    users.Repo
	Accounts accounts.Repo
	Sessions sessions.Repo
}

// Service is the authentication core: provider registry, session store, and
// the policies gluing them together.
type Service struct {
	repos     Repos
	providers map[string]Provider
	store     *sessions.Store
	log       zerolog.Logger
	nowTime   func() time.Time
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(log zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.log = log
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// New builds the Service from configuration: one provider per config entry
// and a session store with the configured TTLs.
func New(cfg *config.Config, repos Repos, options ...ServiceOption) (*Service, error) {
	if repos.Users == nil {
		return nil, errors.New("[auth.New] Users repo is required")
	}
	if repos.Accounts == nil {
		return nil, errors.New("[auth.New] Accounts repo is required")
	}
	if repos.Sessions == nil {
		return nil, errors.New("[auth.New] Sessions repo is required")
	}
	if cfg == nil {
		return nil, errors.New("[auth.New] config is required")
	}

	s := &Service{
		repos:     repos,
		providers: make(map[string]Provider),
		log:       zerolog.Nop(),
		nowTime:   time.Now,
	}
	for _, opt := range options {
		opt(s)
	}

	store, err := sessions.NewStore(repos.Sessions, repos.Users,
		sessions.WithTTLs(cfg.Options.IdleTTL, cfg.Options.AbsoluteTTL),
		sessions.WithNowTime(s.nowTime),
		sessions.WithLogger(s.log),
	)
	if err != nil {
		return nil, err
	}
	s.store = store

	secret := []byte(cfg.Options.StateSecret)
	for _, pc := range cfg.Providers {
		switch pc.Type {
		case config.TypeCredentials:
			svc, err := credentials.NewService(repos.Users, repos.Accounts,
				credentials.WithCost(cfg.Options.BcryptCost),
				credentials.WithLogger(s.log),
			)
			if err != nil {
				return nil, err
			}
			s.providers[pc.ID] = Provider{ID: pc.ID, Type: ProviderTypeCredentials, Credentials: svc}

		case config.TypeOIDC:
			p, err := oidc.NewProvider(oidc.ProviderConfig{
				ID:           pc.ID,
				Issuer:       pc.Issuer,
				ClientID:     pc.ClientID,
				ClientSecret: pc.ClientSecret,
				RedirectURI:  pc.RedirectURI,
				Scopes:       pc.Scopes,
			}, secret, oidc.WithLogger(s.log))
			if err != nil {
				return nil, err
			}
			s.providers[pc.ID] = Provider{ID: pc.ID, Type: ProviderTypeOIDC, OIDC: p}

		default:
			return nil, errors.Errorf("[auth.New] provider %q has unknown type %q", pc.ID, pc.Type)
		}
	}

	return s, nil
}

// Provider looks up a configured provider by id.
func (s *Service) Provider(id string) (Provider, error) {
	p, ok := s.providers[id]
	if !ok {
		return Provider{}, errors.Wrapf(apperrors.ErrUnknownProvider, "[Service.Provider] %q", id)
	}
	return p, nil
}

// Sessions exposes the session store.
func (s *Service) Sessions() *sessions.Store {
	return s.store
}

// LoadSessions bulk-loads durable sessions into the in-memory store at
// process start.
func (s *Service) LoadSessions(ctx context.Context) error {
	rows, err := s.repos.Sessions.ListSessionRows(ctx)
	if err != nil {
		return errors.Wrap(apperrors.ErrPersistence, err.Error())
	}
	return s.store.LoadFromPersistence(ctx, rows)
}

// ResolveOIDCAccount maps a verified OIDC callback result onto a user,
// applying exactly one of: create-user (with its link), update-link, or
// create-link. Any persistence failure aborts the attempt with
// ErrAccountLink and no session is created by the caller.
func (s *Service) ResolveOIDCAccount(ctx context.Context, providerID string, res *oidc.CallbackResult) (*users.User, error) {
	profile := res.Profile

	user, err := s.repos.Users.GetByEmail(ctx, profile.Email)
	if err != nil {
		return nil, errors.Wrapf(apperrors.ErrAccountLink, "[Service.ResolveOIDCAccount] user lookup: %v", err)
	}

	if user == nil {
		var verifiedAt *time.Time
		if profile.EmailVerified {
			now := s.nowTime()
			verifiedAt = &now
		}

		user, err = s.repos.Users.Create(ctx, users.NewUser{
			Email:         profile.Email,
			Username:      usernameFromEmail(profile.Email),
			Name:          profile.Name,
			Image:         profile.Image,
			EmailVerified: verifiedAt,
			Roles:         []string{users.RoleUser},
		})
		if err != nil {
			return nil, errors.Wrapf(apperrors.ErrAccountLink, "[Service.ResolveOIDCAccount] create user: %v", err)
		}

		if _, err := s.repos.Accounts.Create(ctx, accounts.NewAccount{
			UserID:            user.ID,
			Provider:          providerID,
			ProviderAccountID: profile.ID,
			AccessToken:       res.Tokens.AccessToken,
			RefreshToken:      res.Tokens.RefreshToken,
			ExpiresIn:         res.Tokens.ExpiresIn,
		}); err != nil {
			// Do not leave a user without any linked account behind.
			if delErr := s.repos.Users.Delete(ctx, user.ID); delErr != nil {
				s.log.Error().Err(delErr).Str("user_id", user.ID).Msg("failed to compensate user row after link failure")
			}
			return nil, errors.Wrapf(apperrors.ErrAccountLink, "[Service.ResolveOIDCAccount] create link: %v", err)
		}
		return user, nil
	}

	account, err := s.repos.Accounts.GetByCompositeKey(ctx, user.ID, providerID)
	if err != nil {
		return nil, errors.Wrapf(apperrors.ErrAccountLink, "[Service.ResolveOIDCAccount] account lookup: %v", err)
	}

	if account != nil {
		if _, err := s.repos.Accounts.UpdateTokens(ctx,
			res.Tokens.AccessToken, res.Tokens.RefreshToken, res.Tokens.ExpiresIn,
			user.ID, providerID,
		); err != nil {
			return nil, errors.Wrapf(apperrors.ErrAccountLink, "[Service.ResolveOIDCAccount] update link: %v", err)
		}
		return user, nil
	}

	if _, err := s.repos.Accounts.Create(ctx, accounts.NewAccount{
		UserID:            user.ID,
		Provider:          providerID,
		ProviderAccountID: profile.ID,
		AccessToken:       res.Tokens.AccessToken,
		RefreshToken:      res.Tokens.RefreshToken,
		ExpiresIn:         res.Tokens.ExpiresIn,
	}); err != nil {
		return nil, errors.Wrapf(apperrors.ErrAccountLink, "[Service.ResolveOIDCAccount] create link: %v", err)
	}
	return user, nil
}

// CompleteOIDCLogin resolves the account and creates a session for it,
// returning the post-login redirect target from the original state payload.
func (s *Service) CompleteOIDCLogin(ctx context.Context, providerID string, res *oidc.CallbackResult) (*sessions.Session, string, error) {
	user, err := s.ResolveOIDCAccount(ctx, providerID, res)
	if err != nil {
		return nil, "", err
	}

	session, err := s.store.Create(ctx, *user)
	if err != nil {
		return nil, "", err
	}
	return session, res.RedirectTo, nil
}

// Authenticate resolves a bearer token to its live session, or (nil, nil)
// when the token is unknown or expired.
func (s *Service) Authenticate(ctx context.Context, token string) (*sessions.Session, error) {
	if token == "" {
		return nil, nil
	}
	return s.store.GetByToken(ctx, token)
}

// RotateSession reissues the session's token, keeping its identity. Returns
// (nil, nil) when the session no longer exists.
func (s *Service) RotateSession(ctx context.Context, sessionID string) (*sessions.Session, error) {
	return s.store.Rotate(ctx, sessionID)
}

// UpdatePassword re-hashes and stores a new password for the session's user,
// then rotates the session so the old token stops resolving.
func (s *Service) UpdatePassword(ctx context.Context, session *sessions.Session, newPassword string) (*sessions.Session, error) {
	p, err := s.Provider(credentials.ProviderID)
	if err != nil {
		return nil, err
	}

	hash, err := p.Credentials.HashPassword(newPassword)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.UpdatePassword] hash password")
	}

	updated, err := s.repos.Accounts.UpdatePassword(ctx, session.User.ID, hash)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrPersistence, err.Error())
	}
	if !updated {
		return nil, errors.Wrapf(apperrors.ErrIntegrity, "[Service.UpdatePassword] no credentials account for user %s", session.User.ID)
	}

	rotated, err := s.store.Rotate(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if rotated == nil {
		return nil, errors.Wrapf(apperrors.ErrSessionNotFound, "[Service.UpdatePassword] session %s", session.ID)
	}
	return rotated, nil
}

// UpdateRoles replaces the user's roles and rotates the session so the new
// privileges take effect under a fresh token.
func (s *Service) UpdateRoles(ctx context.Context, session *sessions.Session, roles []string) (*sessions.Session, error) {
	if _, err := s.repos.Users.UpdateRoles(ctx, roles, session.User.ID); err != nil {
		return nil, errors.Wrap(apperrors.ErrPersistence, err.Error())
	}

	rotated, err := s.store.Rotate(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if rotated == nil {
		return nil, errors.Wrapf(apperrors.ErrSessionNotFound, "[Service.UpdateRoles] session %s", session.ID)
	}
	return rotated, nil
}

func usernameFromEmail(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
