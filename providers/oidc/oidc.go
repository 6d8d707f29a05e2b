// Package oidc implements the relying-party side of the OIDC
// authorization-code flow with PKCE: authorization URL construction with
// signed state, callback validation, code exchange, and ID token
// verification against the provider's JWKS.
package oidc

import (
	"context"
	"sync"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	apperrors "github.com/authkit-go/authkit/internal/errors"
	"github.com/authkit-go/authkit/tokens"
)

// ProviderConfig is the static per-provider configuration.
type ProviderConfig struct {
	ID           string
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
}

// Provider runs the PKCE authorization-code flow against one identity
// provider. Instances are safe for concurrent use: per-attempt state lives
// in the signed cookie and verifier handed to the client, and the discovery
// cache below is the only shared mutable state.
type Provider struct {
	cfg         ProviderConfig
	stateSecret []byte
	log         zerolog.Logger

	// Discovery document and JWKS handle, fetched at most once per process
	// lifetime and cached. A failed fetch leaves the cache empty so the
	// next attempt retries.
	mu         sync.Mutex
	discovered *gooidc.Provider
	oauthCfg   *oauth2.Config
	verifier   *gooidc.IDTokenVerifier
}

// ProviderOption defines a function type to modify the Provider instance.
type ProviderOption func(*Provider)

// WithLogger sets the provider logger.
func WithLogger(log zerolog.Logger) ProviderOption {
	return func(p *Provider) {
		p.log = log
	}
}

// NewProvider initializes an OIDC provider. Discovery is deferred to the
// first authorization attempt so construction never performs network I/O.
func NewProvider(cfg ProviderConfig, stateSecret []byte, options ...ProviderOption) (*Provider, error) {
	if cfg.ID == "" || cfg.Issuer == "" || cfg.ClientID == "" || cfg.RedirectURI == "" {
		return nil, errors.New("[oidc.NewProvider] id, issuer, clientId and redirectURI are required")
	}
	if len(stateSecret) < 8 {
		return nil, errors.New("[oidc.NewProvider] state secret must be at least 8 bytes")
	}

	p := &Provider{
		cfg:         cfg,
		stateSecret: stateSecret,
		log:         zerolog.Nop(),
	}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

// ID returns the provider identifier.
func (p *Provider) ID() string {
	return p.cfg.ID
}

// Authorization is what BeginAuthorization hands back to the transport
// layer. StateCookie and CodeVerifier must travel to the client as separate
// opaque secrets (two HTTP-only cookies); the verifier never appears in the
// authorization URL.
type Authorization struct {
	URL          string
	StateCookie  string
	CodeVerifier string
}

// BeginAuthorization starts a login attempt: it generates the PKCE pair and
// a fresh state/nonce, signs the state payload, and builds the provider's
// authorization URL.
func (p *Provider) BeginAuthorization(ctx context.Context, redirectTo string) (*Authorization, error) {
	oauthCfg, _, err := p.discover(ctx)
	if err != nil {
		return nil, err
	}

	verifier, err := tokens.NewCodeVerifier()
	if err != nil {
		return nil, errors.Wrap(err, "[Provider.BeginAuthorization]")
	}
	challenge := tokens.CodeChallenge(verifier)

	state, nonce, err := tokens.NewStateNonce()
	if err != nil {
		return nil, errors.Wrap(err, "[Provider.BeginAuthorization]")
	}

	stateCookie, err := tokens.SignState(tokens.StatePayload{
		State:      state,
		Nonce:      nonce,
		RedirectTo: redirectTo,
		ProviderID: p.cfg.ID,
	}, p.stateSecret)
	if err != nil {
		return nil, errors.Wrap(err, "[Provider.BeginAuthorization] sign state")
	}

	url := oauthCfg.AuthCodeURL(
		state,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oauth2.SetAuthURLParam("nonce", nonce),
	)

	return &Authorization{
		URL:          url,
		StateCookie:  stateCookie,
		CodeVerifier: verifier,
	}, nil
}

// CallbackRequest carries the provider redirect parameters together with the
// client-held secrets issued by BeginAuthorization.
type CallbackRequest struct {
	Code         string
	State        string // state parameter from the callback query
	StateCookie  string // signed state payload from the cookie
	CodeVerifier string
}

// Tokens holds the provider tokens returned by the exchange.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	ExpiresIn    int64
}

// Claims are the verified ID token claims the flow cares about.
type Claims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	Nonce         string `json:"nonce"`
}

// Profile is the normalized identity derived from verified claims.
type Profile struct {
	ID            string
	Email         string
	EmailVerified bool
	Name          string
	Image         string
}

// CallbackResult is the outcome of a validated callback.
type CallbackResult struct {
	Tokens     Tokens
	Claims     Claims
	Profile    Profile
	RedirectTo string
}

// HandleCallback validates a provider redirect end to end: state cookie
// signature and ownership, state equality, code exchange with the PKCE
// verifier, and ID token verification (signature, aud, iss, nonce). Every
// check fails closed; no field of the payload or token is trusted before
// its verification step has passed.
func (p *Provider) HandleCallback(ctx context.Context, req CallbackRequest) (*CallbackResult, error) {
	payload, err := tokens.VerifyState(req.StateCookie, p.stateSecret)
	if err != nil {
		return nil, errors.Wrap(err, "[Provider.HandleCallback]")
	}
	if payload.ProviderID != p.cfg.ID {
		return nil, errors.Wrapf(apperrors.ErrStateMismatch, "[Provider.HandleCallback] state issued for provider %q", payload.ProviderID)
	}
	if payload.State == "" || payload.State != req.State {
		return nil, errors.Wrap(apperrors.ErrStateMismatch, "[Provider.HandleCallback] query state does not match signed state")
	}

	oauthCfg, verifier, err := p.discover(ctx)
	if err != nil {
		return nil, err
	}

	oauthToken, err := oauthCfg.Exchange(ctx, req.Code,
		oauth2.SetAuthURLParam("code_verifier", req.CodeVerifier),
	)
	if err != nil {
		p.log.Warn().Err(err).Str("provider", p.cfg.ID).Msg("token exchange rejected")
		return nil, errors.Wrapf(apperrors.ErrTokenExchangeFailed, "[Provider.HandleCallback] %v", err)
	}

	rawIDToken, ok := oauthToken.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.Wrap(apperrors.ErrTokenExchangeFailed, "[Provider.HandleCallback] no id_token in response")
	}

	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		p.log.Warn().Err(err).Str("provider", p.cfg.ID).Msg("id token verification failed")
		return nil, errors.Wrapf(apperrors.ErrInvalidIDToken, "[Provider.HandleCallback] %v", err)
	}

	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrapf(apperrors.ErrInvalidIDToken, "[Provider.HandleCallback] claims: %v", err)
	}
	if claims.Nonce != payload.Nonce {
		p.log.Warn().Str("provider", p.cfg.ID).Msg("id token nonce mismatch")
		return nil, errors.Wrap(apperrors.ErrInvalidIDToken, "[Provider.HandleCallback] nonce mismatch")
	}

	redirectTo := payload.RedirectTo
	if redirectTo == "" {
		redirectTo = "/"
	}

	var expiresIn int64
	if v, ok := oauthToken.Extra("expires_in").(float64); ok {
		expiresIn = int64(v)
	}

	return &CallbackResult{
		Tokens: Tokens{
			AccessToken:  oauthToken.AccessToken,
			RefreshToken: oauthToken.RefreshToken,
			IDToken:      rawIDToken,
			ExpiresIn:    expiresIn,
		},
		Claims: claims,
		Profile: Profile{
			ID:            claims.Subject,
			Email:         claims.Email,
			EmailVerified: claims.EmailVerified,
			Name:          claims.Name,
			Image:         claims.Picture,
		},
		RedirectTo: redirectTo,
	}, nil
}

// discover returns the cached OAuth2 config and ID token verifier, fetching
// the provider's discovery document on first use. Concurrent first-access
// races are tolerated by construction: the fetch runs under the mutex and
// the cached value is idempotent, so last-write-wins is benign.
func (p *Provider) discover(ctx context.Context) (*oauth2.Config, *gooidc.IDTokenVerifier, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.discovered != nil {
		return p.oauthCfg, p.verifier, nil
	}

	provider, err := gooidc.NewProvider(ctx, p.cfg.Issuer)
	if err != nil {
		// Leave the cache empty so a later attempt can retry.
		return nil, nil, errors.Wrapf(apperrors.ErrDiscoveryUnavailable, "[Provider.discover] %s: %v", p.cfg.Issuer, err)
	}

	p.discovered = provider
	p.oauthCfg = &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  p.cfg.RedirectURI,
		Scopes:       p.cfg.Scopes,
	}
	p.verifier = provider.Verifier(&gooidc.Config{
		ClientID: p.cfg.ClientID,
	})

	return p.oauthCfg, p.verifier, nil
}
