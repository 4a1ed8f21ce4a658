package bootstrap

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/jmespath-community/go-jmespath"
	"github.com/joho/godotenv"

	"github.com/kaamsathi/kaamsathi-api/config"
)

// InitLogger installs the default logger at level and returns it. dev selects
// a text handler on stderr; otherwise records are JSON on stdout.
// Unknown levels fall back to info.
func InitLogger(level string, dev bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLogLevel(level)}
	var h slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if dev {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// ParseLogLevel maps a LOG_LEVEL value (debug, info, warn, error) to a slog level.
func ParseLogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// LoadConfig reads an optional .env file, then parses and sanitizes the environment.
func LoadConfig() (config.AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config.AppConfig{}, fmt.Errorf("load .env file: %w", err)
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.Sanitize()
	return cfg, nil
}

// ValidateServiceConfig checks that SERVICES names at least one mode and that
// every enabled mode has what it needs to start.
func ValidateServiceConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("service config is required")
	}
	services, err := cfg.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("invalid service configuration: %w", err)
	}
	if len(services) == 0 {
		return errors.New("no services enabled")
	}

	var errs []error
	if services[config.ServiceModeHTTP] {
		errs = append(errs, cfg.Auth.Validate())
		if _, err := cfg.HTTP.TrustedProxyPrefixes(); err != nil {
			errs = append(errs, err)
		}
	}
	if services[config.ServiceModeDispatcher] {
		errs = append(errs, validateDispatcher(cfg.Dispatcher))
	}
	return errors.Join(errs...)
}

func validateDispatcher(d config.DispatcherConfig) error {
	if !d.Enabled() {
		return errors.New("dispatcher: NOTIFY_WEBHOOK_URL is required")
	}
	u, err := url.Parse(d.WebhookURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("dispatcher: NOTIFY_WEBHOOK_URL must be an absolute http(s) URL, got %q", d.WebhookURL)
	}
	if d.BodyExpr != "" {
		if _, err = jmespath.Compile(d.BodyExpr); err != nil {
			return fmt.Errorf("dispatcher: NOTIFY_WEBHOOK_BODY_EXPR: %w", err)
		}
	}
	return nil
}

// GetEnabledServices lists the enabled modes in start order, or none when SERVICES is invalid.
func GetEnabledServices(cfg *config.AppConfig) []string {
	out := []string{}
	if cfg == nil {
		return out
	}
	services, err := cfg.GetEnabledServices()
	if err != nil {
		return out
	}
	for _, mode := range config.ValidServiceModes() {
		if services[mode] {
			out = append(out, string(mode))
		}
	}
	return out
}
