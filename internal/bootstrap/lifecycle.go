package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kaamsathi/kaamsathi-api/config"
)

// stopGrace bounds how long RunServices waits for workers after shutdown starts.
var stopGrace = 15 * time.Second

// RunConfig carries what RunServices needs to start the enabled services.
type RunConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	DB       *sql.DB
	Logger   *slog.Logger
}

// worker is one long-running component selected by SERVICES.
type worker struct {
	mode config.ServiceMode
	run  func(context.Context) error
}

func workers(rc *RunConfig, logger *slog.Logger) []worker {
	obs := rc.Services.Observability
	return []worker{
		{config.ServiceModeHTTP, func(ctx context.Context) error {
			if rc.Services.Auth == nil {
				return errors.New("http server requires the auth service")
			}
			srv := NewHTTPServer(rc.Config, rc.Services, rc.DB, logger)
			return serveHTTP(ctx, srv, rc.Config.HTTP.ShutdownTimeout, logger)
		}},
		{config.ServiceModeReconciler, func(ctx context.Context) error {
			cfg := ReconcilerConfig{
				DB:          rc.DB,
				Logger:      logger,
				Config:      rc.Config.Reconciler,
				Marketplace: rc.Config.Marketplace,
				Metrics:     obs.MetricsSink,
				Alerts:      obs.FailureNotifier,
				DriftAlerts: obs.CapacityDriftAlerts,
			}
			if rc.Services.Cache != nil {
				cfg.Cache = rc.Services.Cache
			}
			return RunReconciler(ctx, cfg)
		}},
		{config.ServiceModeDispatcher, func(ctx context.Context) error {
			return RunDispatcher(ctx, DispatcherConfig{
				DB:       rc.DB,
				Logger:   logger,
				Config:   rc.Config.Dispatcher,
				Metrics:  obs.MetricsSink,
				Alerts:   obs.FailureNotifier,
				LinkBase: rc.Config.HTTP.FrontendURL,
			})
		}},
	}
}

// RunServices runs every enabled service until ctx is cancelled or one of
// them fails. A failure cancels the others. Workers get stopGrace to exit
// once shutdown begins.
func RunServices(ctx context.Context, rc *RunConfig) error {
	if rc == nil || rc.Config == nil {
		return errors.New("run config with an AppConfig is required")
	}
	logger := rc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	enabled, err := rc.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	started := 0
	for _, w := range workers(rc, logger) {
		if !enabled[w.mode] {
			continue
		}
		started++
		g.Go(func() error {
			logger.Info("service started", "service", w.mode)
			err := w.run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", w.mode, err)
			}
			logger.Info("service stopped", "service", w.mode)
			return nil
		})
	}
	if started == 0 {
		return errors.New("no services enabled")
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-gctx.Done():
		logger.Info("shutting down services")
	}

	select {
	case err := <-done:
		return err
	case <-time.After(stopGrace + rc.Config.HTTP.ShutdownTimeout):
		return errors.New("timed out waiting for services to stop")
	}
}
