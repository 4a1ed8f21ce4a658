package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kaamsathi/kaamsathi-api/config"
	httpx "github.com/kaamsathi/kaamsathi-api/internal/http"
)

const defaultHTTPShutdownTimeout = 15 * time.Second

// NewHTTPServer builds the API server from the wired services. It does not listen.
func NewHTTPServer(cfg *config.AppConfig, svcs ServiceContainer, db *sql.DB, logger *slog.Logger) *http.Server {
	addr := cfg.HTTP.Addr
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:         addr,
		Handler:      httpx.NewRouter(routerServices(cfg, svcs, db, logger)),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
}

func routerServices(cfg *config.AppConfig, svcs ServiceContainer, db *sql.DB, logger *slog.Logger) httpx.RouterServices {
	rs := httpx.RouterServices{
		Users:           svcs.Users,
		Jobs:            svcs.Jobs,
		Applications:    svcs.Applications,
		Notifications:   svcs.Notifications,
		Messages:        svcs.Messages,
		CookieDomain:    cfg.HTTP.CookieDomain,
		FrontendURL:     cfg.HTTP.FrontendURL,
		DevLoginEnabled: cfg.Auth.Mode == config.AuthModeMock,
		Readiness:       map[string]httpx.HealthChecker{},
		Logger:          logger,
	}
	if svcs.Auth != nil {
		rs.Auth = svcs.Auth
	}
	if proxies, err := cfg.HTTP.TrustedProxyPrefixes(); err != nil {
		logger.Warn("ignoring trusted proxies", "error", err)
	} else {
		rs.TrustedProxies = proxies
	}
	if cfg.HTTP.CompressionEnabled {
		rs.Compression = &httpx.CompressionConfig{Level: cfg.HTTP.CompressionLevel, Logger: logger}
	}
	if db != nil {
		rs.Readiness["postgres"] = httpx.HealthFunc(db.PingContext)
	}
	if svcs.Cache != nil {
		rs.Readiness["redis"] = svcs.Cache
	}
	return rs
}

// serveHTTP listens until ctx is done, then drains in-flight requests for at
// most shutdownTimeout. A listener failure is returned immediately.
func serveHTTP(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger *slog.Logger) error {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultHTTPShutdownTimeout
	}
	listenErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		listenErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-listenErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down HTTP server", "timeout", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("HTTP server stopped")
	return nil
}
