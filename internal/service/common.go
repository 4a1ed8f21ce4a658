package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	domainauth "github.com/kaamsathi/kaamsathi-api/internal/domain/auth"
	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
	apperrors "github.com/kaamsathi/kaamsathi-api/internal/errors"
	"github.com/kaamsathi/kaamsathi-api/internal/observability/metrics"
	"github.com/kaamsathi/kaamsathi-api/internal/observability/statsd"
)

// Clock returns the current time. Services take one so tests can pin it.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// unreadInvalidator drops cached unread counts after notifications are
// written outside NotificationService.
type unreadInvalidator interface {
	InvalidateUnread(ctx context.Context, userIDs ...string)
}

// jobInvalidator drops cached job documents whose counters changed.
type jobInvalidator interface {
	InvalidateJob(ctx context.Context, jobIDs ...string)
}

// parseID normalizes a path identifier. Malformed ids can never match a row,
// so they report notFound instead of reaching the database.
func parseID(raw string, notFound error) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", notFound
	}
	return id.String(), nil
}

// invalid converts a request validation failure into a validation AppError.
func invalid(err error) error {
	return apperrors.Validation(err.Error())
}

func requireCaller(caller domainauth.Caller) error {
	if caller.Anonymous() {
		return apperrors.Unauthorized("authentication required")
	}
	return nil
}

// expiryFrom returns now+lifetime, or nil when lifetime is unset.
func expiryFrom(now time.Time, lifetime time.Duration) *time.Time {
	if lifetime <= 0 {
		return nil
	}
	t := now.Add(lifetime)
	return &t
}

// listAndCount runs a page query and its total concurrently.
func listAndCount[T any](
	ctx context.Context,
	page model.Page,
	list func(context.Context) ([]T, error),
	count func(context.Context) (int, error),
) (model.PageResult[T], error) {
	var (
		items []T
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = list(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = count(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.PageResult[T]{}, err
	}
	if items == nil {
		items = []T{}
	}
	return model.PageResult[T]{Items: items, Total: total, Page: page.Normalize()}, nil
}

func componentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", component)
}

func observe(sink statsd.Sink, name string, start time.Time, err error) {
	metrics.EmitOperation(sink, metrics.Operation{Name: name, Duration: time.Since(start), Err: err})
}
