package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/sync/errgroup"

	"github.com/kaamsathi/kaamsathi-api/config"
	"github.com/kaamsathi/kaamsathi-api/internal/core"
	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
	obserrors "github.com/kaamsathi/kaamsathi-api/internal/observability/errors"
	"github.com/kaamsathi/kaamsathi-api/internal/observability/metrics"
	"github.com/kaamsathi/kaamsathi-api/internal/observability/notify"
	"github.com/kaamsathi/kaamsathi-api/internal/observability/statsd"
	"github.com/kaamsathi/kaamsathi-api/internal/service/failurenotifier"
)

// JMESPathEvaluator abstracts JMESPath operations for testability.
type JMESPathEvaluator interface {
	Validate(expr string) error
	Evaluate(expr string, data any) (any, error)
}

// jmespathLibEvaluator implements JMESPathEvaluator using go-jmespath.
type jmespathLibEvaluator struct{}

func (jmespathLibEvaluator) Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	_, err := jmespath.Compile(expr)
	return err
}

func (jmespathLibEvaluator) Evaluate(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

// maxErrorBody bounds how much of a failed response is logged.
const maxErrorBody = 512

// NotificationDispatchServiceOptions groups dependencies for NotificationDispatchService.
type NotificationDispatchServiceOptions struct {
	Tx        core.UnitOfWork          // Required: claims and marks run in one transaction
	Config    config.DispatcherConfig  // Required: webhook target and batching
	Client    *http.Client             // Optional: defaults to a client with Config.Timeout
	Evaluator JMESPathEvaluator        // Optional: defaults to go-jmespath
	Clock     Clock                    // Optional: defaults to time.Now
	Logger    *slog.Logger             // Optional: structured logger
	Metrics   statsd.Sink              // Optional: metrics sink (StatsD-compatible)
	Alerts    *failurenotifier.Service // Optional: operator alerts when delivery stalls
	LinkBase  string                   // Optional: resolves relative action URLs to absolute links
}

// NotificationDispatchService pushes stored notifications to an external
// webhook. Rows stay claimed for the whole batch, so concurrent dispatchers
// never deliver the same notification twice. Failed rows back off
// exponentially and are dead-lettered after Config.MaxAttempts.
type NotificationDispatchService struct {
	tx      core.UnitOfWork
	config  config.DispatcherConfig
	client  *http.Client
	jems    JMESPathEvaluator
	clock   Clock
	logger  *slog.Logger
	metrics statsd.Sink
	alerts  *failurenotifier.Service
	base    *url.URL
}

// DispatchResult summarizes one batch.
type DispatchResult struct {
	Claimed      int
	Delivered    int
	Failed       int
	DeadLettered int
}

// NewNotificationDispatchService validates the webhook configuration and
// constructs the service.
func NewNotificationDispatchService(opts NotificationDispatchServiceOptions) (*NotificationDispatchService, error) {
	if opts.Tx == nil {
		return nil, errors.New("UnitOfWork is required")
	}
	cfg := opts.Config
	cfg.Sanitize()
	if !cfg.Enabled() {
		return nil, errors.New("webhook URL is required")
	}
	if err := validateWebhookURL(cfg.WebhookURL); err != nil {
		return nil, err
	}

	jems := opts.Evaluator
	if jems == nil {
		jems = jmespathLibEvaluator{}
	}
	if err := jems.Validate(cfg.BodyExpr); err != nil {
		return nil, fmt.Errorf("invalid body JMESPath: %w", err)
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	var base *url.URL
	if opts.LinkBase != "" {
		u, err := url.Parse(opts.LinkBase)
		if err != nil || !u.IsAbs() {
			return nil, fmt.Errorf("invalid link base %q", opts.LinkBase)
		}
		base = u
	}

	return &NotificationDispatchService{
		tx:      opts.Tx,
		config:  cfg,
		client:  client,
		jems:    jems,
		clock:   opts.Clock,
		logger:  componentLogger(opts.Logger, "notification_dispatch_service"),
		metrics: opts.Metrics,
		alerts:  opts.Alerts,
		base:    base,
	}, nil
}

func validateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid webhook URL scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("invalid webhook URL: missing host")
	}
	return nil
}

// Run polls for undelivered notifications until the context is cancelled.
func (s *NotificationDispatchService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting notification dispatcher",
		"interval", s.config.Interval,
		"batch_size", s.config.BatchSize,
		"concurrency", s.config.Concurrency,
	)
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		res, err := s.DispatchOnce(ctx)
		switch {
		case err != nil && !isContextCancellation(err):
			s.logger.ErrorContext(ctx, "notification dispatch failed", "error", err)
		case res.Claimed > 0:
			s.logger.DebugContext(ctx, "notification batch dispatched",
				"claimed", res.Claimed, "delivered", res.Delivered, "failed", res.Failed,
				"dead_lettered", res.DeadLettered)
		}
		s.raiseAlert(ctx, res, err)

		// A full batch means more are waiting; go again without sleeping.
		if err == nil && res.Claimed == s.config.BatchSize {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "notification dispatcher stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// raiseAlert reports a failed batch or one where no delivery succeeded.
func (s *NotificationDispatchService) raiseAlert(ctx context.Context, res DispatchResult, err error) {
	if !s.alerts.Enabled() || isContextCancellation(err) {
		return
	}
	payload := notify.FailurePayload{
		Component: "dispatcher",
		Operation: "dispatch",
		Severity:  notify.SeverityCritical,
		Metadata:  map[string]string{"webhook_host": webhookHost(s.config.WebhookURL)},
	}
	switch {
	case err != nil:
		payload.Summary = "notification dispatch failed"
		payload.Error = err.Error()
		payload.ErrorClass = obserrors.Classify(err)
	case res.Claimed > 0 && res.Delivered == 0:
		payload.Summary = fmt.Sprintf("webhook rejected all %d notifications in batch", res.Failed)
	case res.DeadLettered > 0:
		payload.Severity = notify.SeverityWarning
		payload.Operation = "dead_letter"
		payload.Summary = fmt.Sprintf("%d notifications dead-lettered after %d attempts",
			res.DeadLettered, s.config.MaxAttempts)
	default:
		return
	}
	s.alerts.NotifyFailure(ctx, payload)
}

func webhookHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

// DispatchOnce claims one batch of due rows, delivers it with bounded
// concurrency, stamps delivered_at on the 2xx responses and reschedules the
// rest, all inside one transaction.
func (s *NotificationDispatchService) DispatchOnce(ctx context.Context) (res DispatchResult, err error) {
	start := time.Now()
	defer func() { s.emitBatchMetrics(res, start, err) }()

	err = s.tx.WithinTx(ctx, func(repos core.TxRepositories) error {
		batch, claimErr := repos.Notifications.ClaimUndelivered(ctx, s.config.BatchSize, s.clock.now())
		if claimErr != nil {
			return claimErr
		}
		res.Claimed = len(batch)
		if len(batch) == 0 {
			return nil
		}

		delivered := s.deliverAll(ctx, batch)
		res.Delivered = len(delivered)
		res.Failed = res.Claimed - res.Delivered
		if len(delivered) > 0 {
			if _, markErr := repos.Notifications.MarkDelivered(ctx, delivered, s.clock.now()); markErr != nil {
				return markErr
			}
		}
		if res.Failed == 0 {
			return nil
		}
		dead, failErr := repos.Notifications.MarkDeliveryFailed(ctx, undelivered(batch, delivered), s.retry())
		if failErr != nil {
			return failErr
		}
		res.DeadLettered = len(dead)
		for _, id := range dead {
			s.logger.ErrorContext(ctx, "notification dead-lettered",
				"notification_id", id, "attempts", s.config.MaxAttempts)
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("dispatch notifications: %w", err)
	}
	return res, nil
}

func (s *NotificationDispatchService) retry() core.DeliveryRetry {
	return core.DeliveryRetry{
		At:          s.clock.now(),
		Backoff:     s.config.RetryBackoff,
		MaxBackoff:  s.config.MaxRetryBackoff,
		MaxAttempts: s.config.MaxAttempts,
	}
}

// undelivered returns the ids in batch missing from delivered.
func undelivered(batch []*model.Notification, delivered []string) []string {
	ok := make(map[string]bool, len(delivered))
	for _, id := range delivered {
		ok[id] = true
	}
	out := make([]string, 0, len(batch)-len(delivered))
	for _, n := range batch {
		if !ok[n.ID] {
			out = append(out, n.ID)
		}
	}
	return out
}

// deliverAll posts every notification and returns the ids that succeeded.
// Individual failures are logged, never returned, so one bad row cannot
// hold back the rest of the batch.
func (s *NotificationDispatchService) deliverAll(ctx context.Context, batch []*model.Notification) []string {
	var (
		mu        sync.Mutex
		delivered = make([]string, 0, len(batch))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for _, n := range batch {
		g.Go(func() error {
			if err := s.deliver(gctx, n); err != nil {
				s.logger.WarnContext(gctx, "notification delivery failed",
					"notification_id", n.ID,
					"type", n.Type,
					"error", err,
				)
				return nil
			}
			mu.Lock()
			delivered = append(delivered, n.ID)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return delivered
}

func (s *NotificationDispatchService) deliver(ctx context.Context, n *model.Notification) error {
	body, err := s.buildBody(n)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Notification-ID", n.ID)
	if s.config.AuthHeader != "" {
		req.Header.Set("Authorization", s.config.AuthHeader)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// buildBody renders the notification document, shaped by BodyExpr when set.
func (s *NotificationDispatchService) buildBody(n *model.Notification) ([]byte, error) {
	payload, err := json.Marshal(s.withAbsoluteLink(n))
	if err != nil {
		return nil, fmt.Errorf("marshal notification: %w", err)
	}
	if s.config.BodyExpr == "" {
		return payload, nil
	}
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("invalid payload JSON: %w", err)
	}
	shaped, err := s.jems.Evaluate(s.config.BodyExpr, doc)
	if err != nil {
		return nil, fmt.Errorf("evaluate body JMESPath: %w", err)
	}
	b, err := json.Marshal(shaped)
	if err != nil {
		return nil, fmt.Errorf("marshal derived body: %w", err)
	}
	return b, nil
}

// withAbsoluteLink returns n, or a copy whose relative action URL is resolved
// against the link base.
func (s *NotificationDispatchService) withAbsoluteLink(n *model.Notification) *model.Notification {
	if s.base == nil || n.ActionURL == nil {
		return n
	}
	ref, err := url.Parse(*n.ActionURL)
	if err != nil || ref.IsAbs() {
		return n
	}
	abs := s.base.ResolveReference(ref).String()
	out := *n
	out.ActionURL = &abs
	return &out
}

func (s *NotificationDispatchService) emitBatchMetrics(res DispatchResult, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	result := metrics.ResultFor(err)
	if err == nil && res.Claimed == 0 {
		result = metrics.ResultNoop
	}
	metrics.EmitOperation(s.metrics, metrics.Operation{
		Name:     "dispatcher.batch",
		Result:   result,
		Duration: time.Since(start),
		Err:      err,
	})
	if res.Delivered > 0 {
		s.metrics.Count("dispatcher.delivered", int64(res.Delivered), nil)
	}
	if res.Failed > 0 {
		s.metrics.Count("dispatcher.failed", int64(res.Failed), nil)
	}
	if res.DeadLettered > 0 {
		s.metrics.Count("dispatcher.dead_lettered", int64(res.DeadLettered), nil)
	}
}
