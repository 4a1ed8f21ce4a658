package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModeOAuth uses OAuth/OIDC for authentication.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses mock/dev authentication (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText accepts "oauth" or "mock", case-insensitively.
func (a *AuthMode) UnmarshalText(text []byte) error {
	switch m := AuthMode(strings.ToLower(strings.TrimSpace(string(text)))); m {
	case AuthModeOAuth, AuthModeMock:
		*a = m
		return nil
	default:
		return fmt.Errorf("invalid AUTH_MODE %q: want oauth or mock", text)
	}
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"kaamsathi"`
	ClientSecret string `env:"CLIENT_SECRET" envDefault:"kaamsathi"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email groups"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
	LogoutURL    string `env:"LOGOUT_URL"`
}

// missing names the settings the OIDC login flow cannot start without.
func (c OAuthConfig) missing() []string {
	var out []string
	for name, v := range map[string]string{
		"OAUTH_DISCOVERY_URL": c.DiscoveryURL,
		"OAUTH_CLIENT_ID":     c.ClientID,
		"OAUTH_CLIENT_SECRET": c.ClientSecret,
	} {
		if strings.TrimSpace(v) == "" {
			out = append(out, name)
		}
	}
	return out
}

// DevAuthConfig is the default persona for AUTH_MODE=mock.
type DevAuthConfig struct {
	UserID string   `env:"USER_ID" envDefault:"dev-user"`
	Email  string   `env:"EMAIL"   envDefault:"dev@example.com"`
	Name   string   `env:"NAME"    envDefault:"Dev User"`
	Groups []string `env:"GROUPS"  envDefault:"workers"         envSeparator:";"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which authentication provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oauth"`

	// OAuth configuration (used when Mode=oauth).
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// AdminGroup is the IdP group granting the admin role.
	AdminGroup string `env:"ADMIN_GROUP,required"`

	// EmployerGroup is the IdP group granting the employer role.
	EmployerGroup string `env:"EMPLOYER_GROUP,required"`

	// WorkerGroup is the IdP group granting the worker role.
	WorkerGroup string `env:"WORKER_GROUP,required"`

	// SessionTTL bounds the lifetime of API sessions issued after login.
	SessionTTL time.Duration `env:"AUTH_SESSION_TTL" envDefault:"24h"`
}

// Validate checks the settings the selected mode depends on. Role groups must
// be distinct, otherwise a worker group member could be mapped to admin.
func (c AuthConfig) Validate() error {
	var errs []error
	if c.Mode == AuthModeOAuth {
		if m := c.OAuth.missing(); len(m) > 0 {
			slices.Sort(m)
			errs = append(errs, fmt.Errorf("oauth mode requires %s", strings.Join(m, ", ")))
		}
	}
	seen := map[string]string{}
	for _, g := range []struct{ env, name string }{
		{"ADMIN_GROUP", c.AdminGroup},
		{"EMPLOYER_GROUP", c.EmployerGroup},
		{"WORKER_GROUP", c.WorkerGroup},
	} {
		if g.name == "" {
			continue
		}
		if prev, ok := seen[g.name]; ok {
			errs = append(errs, fmt.Errorf("%s and %s both name group %q", prev, g.env, g.name))
			continue
		}
		seen[g.name] = g.env
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("AUTH_SESSION_TTL must be positive"))
	}
	return errors.Join(errs...)
}
