package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kaamsathi/kaamsathi-api/config"
	"github.com/kaamsathi/kaamsathi-api/internal/adapters/dispatcher"
	"github.com/kaamsathi/kaamsathi-api/internal/adapters/reconciler"
	"github.com/kaamsathi/kaamsathi-api/internal/core"
	"github.com/kaamsathi/kaamsathi-api/internal/observability/statsd"
	"github.com/kaamsathi/kaamsathi-api/internal/service/failurenotifier"
)

// ReconcilerConfig contains configuration for the capacity reconciler.
type ReconcilerConfig struct {
	DB          *sql.DB
	Logger      *slog.Logger
	Config      config.ReconcilerConfig
	Marketplace config.MarketplaceConfig
	Cache       core.CacheRepository
	Metrics     statsd.Sink
	Alerts      *failurenotifier.Service
	DriftAlerts bool
}

// NewReconcilerRunner builds the reconciler runner shared by the server and the admin CLI.
func NewReconcilerRunner(cfg ReconcilerConfig) (*reconciler.Runner, error) {
	runner, err := reconciler.NewRunner(reconciler.RunnerOptions{
		DB:          cfg.DB,
		Config:      cfg.Config,
		Marketplace: cfg.Marketplace,
		Logger:      cfg.Logger,
		Cache:       cfg.Cache,
		Metrics:     cfg.Metrics,
		Alerts:      cfg.Alerts,
		DriftAlerts: cfg.DriftAlerts,
	})
	if err != nil {
		return nil, fmt.Errorf("create reconciler runner: %w", err)
	}
	return runner, nil
}

// RunReconciler starts the capacity reconciler and job expiry sweep.
func RunReconciler(ctx context.Context, cfg ReconcilerConfig) error {
	runner, err := NewReconcilerRunner(cfg)
	if err != nil {
		return err
	}
	return runner.Run(ctx)
}

// DispatcherConfig contains configuration for the notification webhook dispatcher.
type DispatcherConfig struct {
	DB      *sql.DB
	Logger  *slog.Logger
	Config  config.DispatcherConfig
	Metrics statsd.Sink
	Alerts  *failurenotifier.Service
	// LinkBase resolves relative action URLs in outbound payloads.
	LinkBase string
}

// RunDispatcher starts the outbound notification webhook dispatcher.
func RunDispatcher(ctx context.Context, cfg DispatcherConfig) error {
	runner, err := dispatcher.NewRunner(dispatcher.RunnerOptions{
		DB:       cfg.DB,
		Config:   cfg.Config,
		Logger:   cfg.Logger,
		Metrics:  cfg.Metrics,
		Alerts:   cfg.Alerts,
		LinkBase: cfg.LinkBase,
	})
	if err != nil {
		return fmt.Errorf("create dispatcher runner: %w", err)
	}
	return runner.Run(ctx)
}
