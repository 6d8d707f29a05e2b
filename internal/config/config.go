// Package config loads and validates the service configuration from the
// environment. Provider entries may also be supplied programmatically when
// the core is embedded as a library.
package config

import (
	"net/http"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// Provider type discriminators.
const (
	TypeCredentials = "credentials"
	TypeOIDC        = "oidc"
)

// Provider is one configured authentication provider.
type Provider struct {
	ID           string
	Type         string // TypeCredentials or TypeOIDC
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
}

// Options are the global authentication options.
type Options struct {
	IdleTTL     time.Duration `env:"AUTH_IDLE_TTL" envDefault:"168h"`
	AbsoluteTTL time.Duration `env:"AUTH_ABSOLUTE_TTL" envDefault:"720h"`
	StateSecret string        `env:"AUTH_STATE_SECRET,required"`
	SameSite    string        `env:"AUTH_SAME_SITE" envDefault:"lax"`
	BcryptCost  int           `env:"AUTH_BCRYPT_COST" envDefault:"10"`
}

// Config is the full service configuration.
type Config struct {
	AppName     string `env:"APP_NAME" envDefault:"authkit"`
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`

	// Google OIDC provider, enabled when a client id is configured.
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string `env:"GOOGLE_REDIRECT_URI"`

	Options   Options
	Providers []Provider `env:"-"`
}

// Load parses the configuration from the environment, assembles the provider
// list, and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Wrap(err, "[config.Load] parse environment")
	}

	// The local provider is always available.
	cfg.Providers = append(cfg.Providers, Provider{
		ID:   "emailPassword",
		Type: TypeCredentials,
	})

	if cfg.GoogleClientID != "" {
		cfg.Providers = append(cfg.Providers, Provider{
			ID:           "google",
			Type:         TypeOIDC,
			Issuer:       "https://accounts.google.com",
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURI:  cfg.GoogleRedirectURI,
			Scopes:       []string{"openid", "profile", "email"},
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants the rest of the core relies on.
func (c *Config) Validate() error {
	if len(c.Options.StateSecret) < 8 {
		return errors.New("[config.Validate] stateSecret must be at least 8 characters")
	}

	switch c.Options.SameSite {
	case "lax", "strict", "none":
	default:
		return errors.Errorf("[config.Validate] sameSite must be one of lax, strict, none; got %q", c.Options.SameSite)
	}

	if c.Options.BcryptCost < 4 || c.Options.BcryptCost > 31 {
		return errors.Errorf("[config.Validate] bcryptCost out of range: %d", c.Options.BcryptCost)
	}

	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.ID == "" {
			return errors.New("[config.Validate] provider id is required")
		}
		if seen[p.ID] {
			return errors.Errorf("[config.Validate] duplicate provider id %q", p.ID)
		}
		seen[p.ID] = true

		switch p.Type {
		case TypeCredentials:
		case TypeOIDC:
			if p.Issuer == "" || p.ClientID == "" || p.RedirectURI == "" {
				return errors.Errorf("[config.Validate] oidc provider %q missing issuer, clientId or redirectURI", p.ID)
			}
		default:
			return errors.Errorf("[config.Validate] provider %q has unknown type %q", p.ID, p.Type)
		}
	}

	return nil
}

// SameSite maps the configured sameSite mode to its http constant.
func (o Options) SameSiteMode() http.SameSite {
	switch o.SameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
