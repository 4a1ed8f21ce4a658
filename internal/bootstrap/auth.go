package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/kaamsathi/kaamsathi-api/config"
	"github.com/kaamsathi/kaamsathi-api/internal/adapters/authroles"
	"github.com/kaamsathi/kaamsathi-api/internal/adapters/devauth"
	"github.com/kaamsathi/kaamsathi-api/internal/adapters/oidc"
	redisadapter "github.com/kaamsathi/kaamsathi-api/internal/adapters/redis"
	"github.com/kaamsathi/kaamsathi-api/internal/observability/statsd"
	"github.com/kaamsathi/kaamsathi-api/internal/ports"
	"github.com/kaamsathi/kaamsathi-api/internal/service"
	"github.com/redis/go-redis/v9"
)

// AuthConfig contains configuration for auth service.
type AuthConfig struct {
	Auth        config.AuthConfig
	RedisClient redis.UniversalClient
	Users       *service.UserService
	Logger      *slog.Logger
	Metrics     statsd.Sink
}

// BuildAuthService creates an auth service based on the configured auth mode.
// Unlike a dashboard, the API cannot run without auth, so misconfiguration is an error.
func BuildAuthService(cfg AuthConfig) (*service.AuthService, error) {
	if cfg.RedisClient == nil {
		return nil, errors.New("auth requires a redis client for sessions")
	}
	if cfg.Users == nil {
		return nil, errors.New("auth requires the user service")
	}

	opts := service.AuthServiceOptions{
		Sessions: redisadapter.NewSessionStoreWithPrefix(cfg.RedisClient, "session:"),
		Roles: authroles.StaticRoleMapper{
			AdminGroup:    cfg.Auth.AdminGroup,
			EmployerGroup: cfg.Auth.EmployerGroup,
			WorkerGroup:   cfg.Auth.WorkerGroup,
		},
		Users:      cfg.Users,
		SessionTTL: cfg.Auth.SessionTTL,
		Logger:     cfg.Logger,
		Metrics:    cfg.Metrics,
	}

	provider, verifier, err := buildAuthProvider(cfg)
	if err != nil {
		return nil, err
	}
	opts.Provider = provider
	opts.Verifier = verifier

	return service.NewAuthService(opts)
}

//nolint:ireturn // the provider is chosen at runtime by auth mode.
func buildAuthProvider(cfg AuthConfig) (ports.AuthProvider, ports.TokenVerifier, error) {
	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		prov, err := devauth.NewProvider(devAuthConfig(cfg.Auth))
		if err != nil {
			return nil, nil, fmt.Errorf("create dev auth provider: %w", err)
		}
		if cfg.Logger != nil {
			cfg.Logger.Warn("mock authentication enabled; do not use in production",
				"dev_user", cfg.Auth.DevAuth.UserID)
		}
		return prov, nil, nil

	case config.AuthModeOAuth:
		if err := cfg.Auth.Validate(); err != nil {
			return nil, nil, err
		}
		oauth := cfg.Auth.OAuth
		prov, err := oidc.NewProvider(oidc.ProviderConfig{
			ClientID:     oauth.ClientID,
			ClientSecret: oauth.ClientSecret,
			RedirectURL:  oauth.RedirectURL,
			Scope:        oauth.Scope,
			DiscoveryURL: oauth.DiscoveryURL,
			LogoutURL:    oauth.LogoutURL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create OIDC provider: %w", err)
		}
		return prov, prov, nil

	default:
		return nil, nil, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
}

// devAuthConfig exposes the configured identity as the default persona plus
// one persona per marketplace role. Their subjects match the seeded accounts.
func devAuthConfig(auth config.AuthConfig) devauth.Config {
	return devauth.Config{
		Default: devauth.Persona{
			UserID: auth.DevAuth.UserID,
			Email:  auth.DevAuth.Email,
			Name:   auth.DevAuth.Name,
			Groups: auth.DevAuth.Groups,
		},
		Personas: []devauth.Persona{
			{Key: "worker", UserID: "dev-user", Email: "dev@example.com", Name: "Ravi Kumar", Groups: []string{auth.WorkerGroup}},
			{Key: "employer", UserID: "dev-employer", Email: "employer@kaamsathi.dev", Name: "Sunita Builders", Groups: []string{auth.EmployerGroup}},
			{Key: "admin", UserID: "dev-admin", Email: "admin@kaamsathi.dev", Name: "Asha Admin", Groups: []string{auth.AdminGroup}},
		},
		SessionDuration: auth.SessionTTL,
	}
}
