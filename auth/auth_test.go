package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	accountrepofake "github.com/authkit-go/authkit/accounts/repofake"
	"github.com/authkit-go/authkit/auth"
	"github.com/authkit-go/authkit/internal/config"
	apperrors "github.com/authkit-go/authkit/internal/errors"
	"github.com/authkit-go/authkit/providers/credentials"
	"github.com/authkit-go/authkit/providers/oidc"
	sessionrepofake "github.com/authkit-go/authkit/sessions/repofake"
	"github.com/authkit-go/authkit/users"
	userrepofake "github.com/authkit-go/authkit/users/repofake"
)

const (
	testUserEmail    = "john.doe@example.com"
	testUserPassword = "password123"
	testProviderID   = "google"
	testSubject      = "idp-subject-1"
)

type testFixture struct {
	userRepo    *userrepofake.FakeUserRepo
	accountRepo *accountrepofake.FakeAccountRepo
	sessionRepo *sessionrepofake.FakeSessionRepo
	service     *auth.Service
}

func testConfig() *config.Config {
	return &config.Config{
		AppName: "authkit-test",
		Options: config.Options{
			IdleTTL:     time.Hour,
			AbsoluteTTL: 24 * time.Hour,
			StateSecret: "test-state-secret",
			SameSite:    "lax",
			BcryptCost:  4,
		},
		Providers: []config.Provider{
			{ID: credentials.ProviderID, Type: config.TypeCredentials},
			{
				ID:          testProviderID,
				Type:        config.TypeOIDC,
				Issuer:      "https://accounts.google.com",
				ClientID:    "test-client-1",
				RedirectURI: "http://localhost:3000/callback",
				Scopes:      []string{"openid", "profile", "email"},
			},
		},
	}
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		userRepo:    userrepofake.NewFakeUserRepo(),
		accountRepo: accountrepofake.NewFakeAccountRepo(),
		sessionRepo: sessionrepofake.NewFakeSessionRepo(),
	}

	service, err := auth.New(testConfig(), auth.Repos{
		Users:    f.userRepo,
		Accounts: f.accountRepo,
		Sessions: f.sessionRepo,
	})
	require.NoError(t, err)
	f.service = service

	return f
}

func testCallbackResult() *oidc.CallbackResult {
	return &oidc.CallbackResult{
		Tokens: oidc.Tokens{
			AccessToken:  "test-access-token",
			RefreshToken: "test-refresh-token",
			ExpiresIn:    3600,
		},
		Profile: oidc.Profile{
			ID:            testSubject,
			Email:         testUserEmail,
			EmailVerified: true,
			Name:          "John Doe",
		},
		RedirectTo: "/dashboard",
	}
}

func TestNewRequiresRepos(t *testing.T) {
	cfg := testConfig()
	ur := userrepofake.NewFakeUserRepo()
	ar := accountrepofake.NewFakeAccountRepo()
	sr := sessionrepofake.NewFakeSessionRepo()

	_, err := auth.New(cfg, auth.Repos{Accounts: ar, Sessions: sr})
	require.Error(t, err)

	_, err = auth.New(cfg, auth.Repos{Users: ur, Sessions: sr})
	require.Error(t, err)

	_, err = auth.New(cfg, auth.Repos{Users: ur, Accounts: ar})
	require.Error(t, err)

	_, err = auth.New(nil, auth.Repos{Users: ur, Accounts: ar, Sessions: sr})
	require.Error(t, err)
}

func TestProviderLookup(t *testing.T) {
	f := setupTestFixture(t)

	p, err := f.service.Provider(credentials.ProviderID)
	require.NoError(t, err)
	require.Equal(t, auth.ProviderTypeCredentials, p.Type)
	require.NotNil(t, p.Credentials)

	p, err = f.service.Provider(testProviderID)
	require.NoError(t, err)
	require.Equal(t, auth.ProviderTypeOIDC, p.Type)
	require.NotNil(t, p.OIDC)

	_, err = f.service.Provider("github")
	require.ErrorIs(t, err, apperrors.ErrUnknownProvider)
}

func TestResolveOIDCAccountCreatesUserAndLink(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	user, err := f.service.ResolveOIDCAccount(ctx, testProviderID, testCallbackResult())
	require.NoError(t, err)
	require.Equal(t, testUserEmail, user.Email)
	require.Equal(t, "john.doe", user.Username)
	require.NotNil(t, user.EmailVerified)
	require.Equal(t, []string{users.RoleUser}, user.Roles)

	require.Equal(t, 1, f.userRepo.Count())
	require.Equal(t, 1, f.accountRepo.Creates)

	account, err := f.accountRepo.GetByCompositeKey(ctx, user.ID, testProviderID)
	require.NoError(t, err)
	require.NotNil(t, account)
	require.Equal(t, testSubject, account.ProviderAccountID)
	require.Equal(t, "test-access-token", account.AccessToken)
}

func TestResolveOIDCAccountUpdatesExistingLink(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	first, err := f.service.ResolveOIDCAccount(ctx, testProviderID, testCallbackResult())
	require.NoError(t, err)

	res := testCallbackResult()
	res.Tokens.AccessToken = "refreshed-access-token"

	second, err := f.service.ResolveOIDCAccount(ctx, testProviderID, res)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	// Exactly one mutation per login: the second resolution updated the
	// existing link instead of creating anything.
	require.Equal(t, 1, f.userRepo.Count())
	require.Equal(t, 1, f.accountRepo.Creates)
	require.Equal(t, 1, f.accountRepo.TokenUpdates)

	account, err := f.accountRepo.GetByCompositeKey(ctx, first.ID, testProviderID)
	require.NoError(t, err)
	require.Equal(t, "refreshed-access-token", account.AccessToken)
}

func TestResolveOIDCAccountLinksToExistingUser(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	// The user exists already (say, registered with a password).
	existing, err := f.userRepo.Create(ctx, users.NewUser{
		Email: testUserEmail,
		Roles: []string{users.RoleUser},
	})
	require.NoError(t, err)

	user, err := f.service.ResolveOIDCAccount(ctx, testProviderID, testCallbackResult())
	require.NoError(t, err)
	require.Equal(t, existing.ID, user.ID)

	require.Equal(t, 1, f.userRepo.Count())
	require.Equal(t, 1, f.accountRepo.Creates)
	require.Equal(t, 0, f.accountRepo.TokenUpdates)
}

func TestResolveOIDCAccountCompensatesUserOnLinkFailure(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	f.accountRepo.CreateErr = errors.New("accounts table unavailable")

	_, err := f.service.ResolveOIDCAccount(ctx, testProviderID, testCallbackResult())
	require.ErrorIs(t, err, apperrors.ErrAccountLink)

	// The freshly created user row must not survive the failed link.
	require.Equal(t, 0, f.userRepo.Count())
}

func TestCompleteOIDCLogin(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	session, redirectTo, err := f.service.CompleteOIDCLogin(ctx, testProviderID, testCallbackResult())
	require.NoError(t, err)
	require.Equal(t, "/dashboard", redirectTo)
	require.NotEmpty(t, session.Token)

	authenticated, err := f.service.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	require.NotNil(t, authenticated)
	require.Equal(t, session.ID, authenticated.ID)
}

func TestCompleteOIDCLoginNoSessionOnFailure(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	f.accountRepo.CreateErr = errors.New("accounts table unavailable")

	_, _, err := f.service.CompleteOIDCLogin(ctx, testProviderID, testCallbackResult())
	require.ErrorIs(t, err, apperrors.ErrAccountLink)
	require.Equal(t, 0, f.service.Sessions().Len())
}

func TestAuthenticateEmptyToken(t *testing.T) {
	f := setupTestFixture(t)

	session, err := f.service.Authenticate(context.Background(), "")
	require.NoError(t, err)
	require.Nil(t, session)
}

func TestUpdatePassword(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	p, err := f.service.Provider(credentials.ProviderID)
	require.NoError(t, err)

	user, err := p.Credentials.Register(ctx, users.NewUser{
		Email: testUserEmail,
		Roles: []string{users.RoleUser},
	}, testUserPassword)
	require.NoError(t, err)

	session, err := f.service.Sessions().Create(ctx, *user)
	require.NoError(t, err)
	oldToken := session.Token

	rotated, err := f.service.UpdatePassword(ctx, session, "a-new-password")
	require.NoError(t, err)
	require.Equal(t, session.ID, rotated.ID)
	require.NotEqual(t, oldToken, rotated.Token)

	// The old token is dead, the new credentials work.
	stale, err := f.service.Authenticate(ctx, oldToken)
	require.NoError(t, err)
	require.Nil(t, stale)

	loggedIn, err := p.Credentials.Login(ctx, testUserEmail, "a-new-password")
	require.NoError(t, err)
	require.NotNil(t, loggedIn)

	denied, err := p.Credentials.Login(ctx, testUserEmail, testUserPassword)
	require.NoError(t, err)
	require.Nil(t, denied)
}

func TestUpdatePasswordWithoutCredentialsAccount(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	// An OIDC-only user has no credentials account to update.
	user, err := f.service.ResolveOIDCAccount(ctx, testProviderID, testCallbackResult())
	require.NoError(t, err)

	session, err := f.service.Sessions().Create(ctx, *user)
	require.NoError(t, err)

	_, err = f.service.UpdatePassword(ctx, session, "a-new-password")
	require.ErrorIs(t, err, apperrors.ErrIntegrity)
}

func TestUpdateRoles(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	user, err := f.userRepo.Create(ctx, users.NewUser{
		Email: testUserEmail,
		Roles: []string{users.RoleUser},
	})
	require.NoError(t, err)

	session, err := f.service.Sessions().Create(ctx, *user)
	require.NoError(t, err)
	oldToken := session.Token

	rotated, err := f.service.UpdateRoles(ctx, session, []string{users.RoleUser, "admin"})
	require.NoError(t, err)
	require.NotEqual(t, oldToken, rotated.Token)

	stored, err := f.userRepo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, []string{users.RoleUser, "admin"}, stored.Roles)
}
