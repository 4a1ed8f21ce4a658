package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/kaamsathi/kaamsathi-api/config"
	"github.com/kaamsathi/kaamsathi-api/internal/core"
	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
	obserrors "github.com/kaamsathi/kaamsathi-api/internal/observability/errors"
	"github.com/kaamsathi/kaamsathi-api/internal/observability/metrics"
	"github.com/kaamsathi/kaamsathi-api/internal/observability/notify"
	"github.com/kaamsathi/kaamsathi-api/internal/observability/statsd"
	"github.com/kaamsathi/kaamsathi-api/internal/service/failurenotifier"
)

// maxBatchesPerStep stops a step that keeps returning full batches, so one
// tick can never spin forever on a misbehaving query.
const maxBatchesPerStep = 100

// ReconcilerServiceOptions groups dependencies for ReconcilerService.
type ReconcilerServiceOptions struct {
	Repo          core.ReconcilerRepository   // Required: batch maintenance queries
	Notifications core.NotificationRepository // Required: job expiry notices
	Config        config.ReconcilerConfig     // Required: interval, batch size, retention
	Marketplace   config.MarketplaceConfig    // Optional: notification lifetime
	Cache         core.CacheRepository        // Optional: expired jobs are evicted
	Unread        unreadInvalidator           // Optional: employers' unread counts
	Clock         Clock                       // Optional: defaults to time.Now
	Logger        *slog.Logger                // Optional: structured logger
	Metrics       statsd.Sink                 // Optional: metrics sink (StatsD-compatible)
	Alerts        *failurenotifier.Service    // Optional: operator alerts from the Run loop
	DriftAlerts   bool                        // Optional: warn operators when counters are corrected
}

// ReconcilerService keeps derived marketplace state honest.
//
// Each pass:
//   - persists status=expired for active jobs past expires_at and tells their employers
//   - rewrites drifted current_applicants counters from live applications
//   - reports applications whose employer_id disagrees with their job
//   - purges old soft-deleted or expired notifications
type ReconcilerService struct {
	repo          core.ReconcilerRepository
	notifications core.NotificationRepository
	config        config.ReconcilerConfig
	marketplace   config.MarketplaceConfig
	cache         core.CacheRepository
	unread        unreadInvalidator
	clock         Clock
	logger        *slog.Logger
	metrics       statsd.Sink
	alerts        *failurenotifier.Service
	driftAlerts   bool
}

// ReconcileReport summarizes one pass.
type ReconcileReport struct {
	Expired    int                   `json:"expired_jobs"`
	Drift      []model.CapacityDrift `json:"capacity_drift"`
	Mismatches int                   `json:"employer_mismatches"`
	Purged     int64                 `json:"purged_notifications"`
	Elapsed    time.Duration         `json:"elapsed"`
}

// NewReconcilerService constructs a new ReconcilerService.
func NewReconcilerService(opts ReconcilerServiceOptions) (*ReconcilerService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReconcilerRepository is required")
	}
	if opts.Notifications == nil {
		return nil, errors.New("NotificationRepository is required")
	}
	cfg := opts.Config
	cfg.Sanitize()

	logger := componentLogger(opts.Logger, "reconciler_service")
	logger.Debug("ReconcilerService initialized",
		"interval", cfg.Interval,
		"batch_size", cfg.BatchSize,
		"notification_retention", cfg.NotificationRetention,
	)

	return &ReconcilerService{
		repo:          opts.Repo,
		notifications: opts.Notifications,
		config:        cfg,
		marketplace:   opts.Marketplace,
		cache:         opts.Cache,
		unread:        opts.Unread,
		clock:         opts.Clock,
		logger:        logger,
		metrics:       opts.Metrics,
		alerts:        opts.Alerts,
		driftAlerts:   opts.DriftAlerts,
	}, nil
}

// Run starts the reconcile loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReconcilerService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting reconciler service", "interval", s.config.Interval)

	// Jitter keeps several replicas from hitting the database in lockstep.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.tick(ctx, "initial reconcile")

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reconciler service stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx, "reconcile")
		}
	}
}

func (s *ReconcilerService) tick(ctx context.Context, label string) {
	report, err := s.RunOnce(ctx)
	if err != nil {
		s.logPassError(ctx, err, label)
	}
	s.raiseAlerts(ctx, report, err)
}

// raiseAlerts turns a failed pass into a critical alert and corrected
// counters into a warning. Cancellation never alerts.
func (s *ReconcilerService) raiseAlerts(ctx context.Context, report *ReconcileReport, err error) {
	if !s.alerts.Enabled() || isContextCancellation(err) {
		return
	}
	if err != nil {
		meta := map[string]string{}
		if report != nil {
			meta["expired_jobs"] = strconv.Itoa(report.Expired)
			meta["purged_notifications"] = strconv.FormatInt(report.Purged, 10)
		}
		s.alerts.NotifyFailure(ctx, notify.FailurePayload{
			Component:  "reconciler",
			Operation:  "reconcile",
			Summary:    "reconcile pass failed",
			Error:      err.Error(),
			ErrorClass: obserrors.Classify(err),
			Severity:   notify.SeverityCritical,
			Metadata:   meta,
		})
	}
	if !s.driftAlerts || report == nil {
		return
	}
	for _, d := range report.Drift {
		s.alerts.NotifyFailure(ctx, notify.FailurePayload{
			Component: "reconciler",
			Operation: "capacity_drift",
			Summary:   fmt.Sprintf("applicant counter corrected from %d to %d", d.Stored, d.Recount),
			JobID:     d.JobID,
			Severity:  notify.SeverityWarning,
			Metadata: map[string]string{
				"stored":         strconv.Itoa(d.Stored),
				"recount":        strconv.Itoa(d.Recount),
				"max_applicants": strconv.Itoa(d.MaxSlots),
			},
		})
	}
}

// RunOnce performs a single pass. Steps run independently: one failing step
// does not skip the others, and their errors are joined.
func (s *ReconcilerService) RunOnce(ctx context.Context) (*ReconcileReport, error) {
	start := time.Now()
	report := &ReconcileReport{}

	steps := []reconcileStep{
		{label: "expire jobs", operation: "expire_jobs", fn: func(ctx context.Context) (int64, error) {
			n, err := s.expireJobs(ctx)
			report.Expired = n
			return int64(n), err
		}},
		{label: "recount applicants", operation: "recount_applicants", fn: func(ctx context.Context) (int64, error) {
			drift, err := s.recountApplicants(ctx)
			report.Drift = drift
			return int64(len(drift)), err
		}},
		{label: "check employer consistency", operation: "employer_mismatch", fn: func(ctx context.Context) (int64, error) {
			n, err := s.checkEmployerConsistency(ctx)
			report.Mismatches = n
			return int64(n), err
		}},
		{label: "purge notifications", operation: "purge_notifications", fn: func(ctx context.Context) (int64, error) {
			n, err := s.purgeNotifications(ctx)
			report.Purged = n
			return n, err
		}},
	}

	var (
		errs        []error
		allCanceled = true
	)
	for _, step := range steps {
		count, err := step.fn(ctx)
		s.emitStepMetric(step.operation, count, suppressContextCancellation(err))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.label, err))
			allCanceled = allCanceled && isContextCancellation(err)
		}
	}

	report.Elapsed = time.Since(start)
	s.emitPassMetrics(report, errors.Join(errs...))

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if allCanceled {
			return report, context.Canceled
		}
		return report, fmt.Errorf("reconcile failed: %w", joined)
	}
	return report, nil
}

type reconcileStep struct {
	label     string
	operation string
	fn        func(context.Context) (int64, error)
}

// expireJobs flips overdue jobs to expired in batches and notifies each
// employer. Notification failures are logged; the status change stands.
func (s *ReconcilerService) expireJobs(ctx context.Context) (int, error) {
	total := 0
	for range maxBatchesPerStep {
		now := s.clock.now()
		jobs, err := s.repo.ExpireJobs(ctx, now, s.config.BatchSize)
		if err != nil {
			return total, err
		}
		for _, job := range jobs {
			s.notifyExpired(ctx, job, now)
		}
		total += len(jobs)
		if len(jobs) < s.config.BatchSize {
			break
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}
	if total > 0 {
		s.logger.InfoContext(ctx, "expired jobs", "count", total)
	}
	return total, nil
}

func (s *ReconcilerService) notifyExpired(ctx context.Context, job *model.Job, now time.Time) {
	if s.cache != nil {
		if _, err := s.cache.Delete(ctx, core.JobKey(job.ID)); err != nil {
			s.logger.DebugContext(ctx, "job cache eviction failed", "job_id", job.ID, "error", err)
		}
	}
	notice := model.NewJobExpiredNotification(job, expiryFrom(now, s.marketplace.NotificationLifetime))
	if _, err := s.notifications.Create(ctx, &notice); err != nil {
		s.logger.WarnContext(ctx, "job expiry notification failed", "job_id", job.ID, "error", err)
		return
	}
	if s.unread != nil {
		s.unread.InvalidateUnread(ctx, job.EmployerID)
	}
}

// recountApplicants rewrites drifted counters until a batch comes back short.
func (s *ReconcilerService) recountApplicants(ctx context.Context) ([]model.CapacityDrift, error) {
	var all []model.CapacityDrift
	for range maxBatchesPerStep {
		drift, err := s.repo.RecountApplicants(ctx, s.config.BatchSize)
		if err != nil {
			return all, err
		}
		for _, d := range drift {
			s.logger.WarnContext(ctx, "applicant counter drift corrected",
				"job_id", d.JobID,
				"stored", d.Stored,
				"recount", d.Recount,
				"max_applicants", d.MaxSlots,
			)
		}
		all = append(all, drift...)
		if len(drift) < s.config.BatchSize {
			break
		}
		if ctx.Err() != nil {
			return all, ctx.Err()
		}
	}
	return all, nil
}

// checkEmployerConsistency reports denormalized employer ids that no longer
// match their job. Nothing is rewritten; the count is surfaced for operators.
func (s *ReconcilerService) checkEmployerConsistency(ctx context.Context) (int, error) {
	n, err := s.repo.EmployerMismatches(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.WarnContext(ctx, "applications with mismatched employer_id", "count", n)
	}
	if s.metrics != nil {
		s.metrics.Gauge("reconciler.employer_mismatches", float64(n), nil)
	}
	return n, nil
}

// purgeNotifications hard-deletes old notifications in batches.
func (s *ReconcilerService) purgeNotifications(ctx context.Context) (int64, error) {
	before := s.clock.now().Add(-s.config.NotificationRetention)
	var total int64
	for range maxBatchesPerStep {
		n, err := s.repo.PurgeNotifications(ctx, before, s.config.BatchSize)
		if err != nil {
			return total, err
		}
		total += n
		if n < int64(s.config.BatchSize) {
			break
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}
	if total > 0 {
		s.logger.InfoContext(ctx, "purged notifications", "count", total, "before", before)
	}
	return total, nil
}

func (s *ReconcilerService) emitPassMetrics(r *ReconcileReport, err error) {
	if s.metrics == nil {
		return
	}
	result := metrics.ResultSuccess
	switch {
	case err != nil:
		result = metrics.ResultError
	case r.Expired == 0 && len(r.Drift) == 0 && r.Purged == 0:
		result = metrics.ResultNoop
	}
	tags := map[string]string{"result": result}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}
	s.metrics.Count("reconciler.pass", 1, tags)
	if r.Elapsed > 0 {
		s.metrics.Timing("reconciler.pass_duration", r.Elapsed, metrics.CloneTags(tags))
	}
	if err == nil {
		s.metrics.Gauge("reconciler.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func (s *ReconcilerService) emitStepMetric(operation string, count int64, err error) {
	if s.metrics == nil {
		return
	}
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if count == 0 {
		result = metrics.ResultNoop
	}
	tags := map[string]string{"operation": operation, "result": result}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}
	s.metrics.Count("reconciler.step", 1, tags)
	if err == nil && count > 0 {
		s.metrics.Count("reconciler.rows", count, metrics.CloneTags(tags))
	}
}

// waitWithJitter sleeps for a random delay up to 10% of the interval.
func (s *ReconcilerService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter
	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

func (s *ReconcilerService) logPassError(ctx context.Context, err error, label string) {
	if isContextCancellation(err) {
		s.logger.DebugContext(ctx, label+" cancelled by context", "error", err)
		return
	}
	s.logger.ErrorContext(ctx, label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
