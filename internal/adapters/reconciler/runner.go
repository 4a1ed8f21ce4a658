// Package reconciler provides adapters for running the marketplace reconciler.
package reconciler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kaamsathi/kaamsathi-api/config"
	"github.com/kaamsathi/kaamsathi-api/internal/core"
	"github.com/kaamsathi/kaamsathi-api/internal/data"
	"github.com/kaamsathi/kaamsathi-api/internal/observability/statsd"
	"github.com/kaamsathi/kaamsathi-api/internal/service"
	"github.com/kaamsathi/kaamsathi-api/internal/service/failurenotifier"
)

// Runner provides a simple adapter to run the reconcile loop.
// It constructs the reconciler service from a database handle.
type Runner struct {
	reconciler *service.ReconcilerService
	logger     *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB          *sql.DB
	Config      config.ReconcilerConfig
	Marketplace config.MarketplaceConfig
	Logger      *slog.Logger

	// Optional dependency injection for testing/decoupling
	Repo          core.ReconcilerRepository
	Notifications core.NotificationRepository
	Cache         core.CacheRepository
	Metrics       statsd.Sink
	Alerts        *failurenotifier.Service
	DriftAlerts   bool
}

// NewRunner creates a new reconciler runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	svc, err := wireReconcilerService(opts)
	if err != nil {
		return nil, fmt.Errorf("wire reconciler service: %w", err)
	}

	return &Runner{reconciler: svc, logger: opts.Logger}, nil
}

func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil && (opts.Repo == nil || opts.Notifications == nil) {
		return errors.New("database connection is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

func wireReconcilerService(opts RunnerOptions) (*service.ReconcilerService, error) {
	repo := opts.Repo
	if repo == nil {
		repo = data.NewReconcilerRepo(opts.DB)
	}
	notifications := opts.Notifications
	if notifications == nil {
		notifications = data.NewNotificationRepo(opts.DB)
	}

	return service.NewReconcilerService(service.ReconcilerServiceOptions{
		Repo:          repo,
		Notifications: notifications,
		Config:        opts.Config,
		Marketplace:   opts.Marketplace,
		Cache:         opts.Cache,
		Logger:        opts.Logger,
		Metrics:       opts.Metrics,
		Alerts:        opts.Alerts,
		DriftAlerts:   opts.DriftAlerts,
	})
}

// Run starts the reconcile loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reconciler runner")
	return r.reconciler.Run(ctx)
}

// RunOnce performs a single reconcile pass.
func (r *Runner) RunOnce(ctx context.Context) (*service.ReconcileReport, error) {
	return r.reconciler.RunOnce(ctx)
}
