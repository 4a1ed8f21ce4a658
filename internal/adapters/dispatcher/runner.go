// Package dispatcher provides adapters for running the notification webhook dispatcher.
package dispatcher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kaamsathi/kaamsathi-api/config"
	"github.com/kaamsathi/kaamsathi-api/internal/core"
	"github.com/kaamsathi/kaamsathi-api/internal/data"
	"github.com/kaamsathi/kaamsathi-api/internal/observability/statsd"
	"github.com/kaamsathi/kaamsathi-api/internal/service"
	"github.com/kaamsathi/kaamsathi-api/internal/service/failurenotifier"
)

// Runner polls the notification outbox and posts to the configured webhook.
type Runner struct {
	dispatcher *service.NotificationDispatchService
	logger     *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Config config.DispatcherConfig
	Logger *slog.Logger
	// LinkBase turns relative action URLs into absolute links, e.g. the frontend origin.
	LinkBase string

	// Optional dependency injection for testing/decoupling
	Tx      core.UnitOfWork
	Client  *http.Client
	Metrics statsd.Sink
	Alerts  *failurenotifier.Service
}

// NewRunner creates a new dispatcher runner. It fails when no webhook URL is
// configured so a misconfigured deployment is caught at startup.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && opts.Tx == nil {
		return nil, errors.New("database connection is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	tx := opts.Tx
	if tx == nil {
		tx = data.NewTxManager(opts.DB)
	}

	svc, err := service.NewNotificationDispatchService(service.NotificationDispatchServiceOptions{
		Tx:       tx,
		Config:   opts.Config,
		Client:   opts.Client,
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
		Alerts:   opts.Alerts,
		LinkBase: opts.LinkBase,
	})
	if err != nil {
		return nil, fmt.Errorf("wire notification dispatcher: %w", err)
	}
	return &Runner{dispatcher: svc, logger: opts.Logger}, nil
}

// Run dispatches until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting dispatcher runner")
	return r.dispatcher.Run(ctx)
}
