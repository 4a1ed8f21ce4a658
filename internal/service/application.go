package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kaamsathi/kaamsathi-api/config"
	"github.com/kaamsathi/kaamsathi-api/internal/core"
	domainauth "github.com/kaamsathi/kaamsathi-api/internal/domain/auth"
	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
	"github.com/kaamsathi/kaamsathi-api/internal/domain/workflow"
	apperrors "github.com/kaamsathi/kaamsathi-api/internal/errors"
	"github.com/kaamsathi/kaamsathi-api/internal/observability/statsd"
)

// ApplicationServiceOptions groups dependencies for ApplicationService.
type ApplicationServiceOptions struct {
	Tx      core.UnitOfWork            // Required: runs every workflow write
	Repo    core.ApplicationRepository // Required: read path
	Config  config.MarketplaceConfig   // Optional: notification lifetime
	Unread  unreadInvalidator          // Optional: drops cached unread counts after commit
	Jobs    jobInvalidator             // Optional: drops cached job documents after counter changes
	Clock   Clock                      // Optional: defaults to time.Now
	Logger  *slog.Logger               // Optional: structured logger
	Metrics statsd.Sink                // Optional: metrics sink (StatsD-compatible)
}

// ApplicationService owns the application workflow. Each state change runs the
// application write, its history row, job counter changes and notifications in
// one transaction.
type ApplicationService struct {
	tx      core.UnitOfWork
	repo    core.ApplicationRepository
	config  config.MarketplaceConfig
	unread  unreadInvalidator
	jobs    jobInvalidator
	clock   Clock
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewApplicationService constructs a new ApplicationService.
func NewApplicationService(opts ApplicationServiceOptions) (*ApplicationService, error) {
	if opts.Tx == nil {
		return nil, errors.New("UnitOfWork is required")
	}
	if opts.Repo == nil {
		return nil, errors.New("ApplicationRepository is required")
	}
	return &ApplicationService{
		tx:      opts.Tx,
		repo:    opts.Repo,
		config:  opts.Config,
		unread:  opts.Unread,
		jobs:    opts.Jobs,
		clock:   opts.Clock,
		logger:  componentLogger(opts.Logger, "application_service"),
		metrics: opts.Metrics,
	}, nil
}

// Submit applies the calling worker to a job.
func (s *ApplicationService) Submit(
	ctx context.Context,
	caller domainauth.Caller,
	req *model.SubmitApplicationRequest,
) (app *model.Application, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "application.submit", start, err) }()

	if err = requireCaller(caller); err != nil {
		return nil, err
	}
	if !caller.IsWorker() {
		return nil, apperrors.Forbidden("only workers can apply for jobs")
	}
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	req.CoverLetter = plainTextPtr(req.CoverLetter)
	req.ExperienceSummary = plainTextPtr(req.ExperienceSummary)
	req.Skills = plainTextAll(req.Skills)
	if err = req.Validate(); err != nil {
		return nil, invalid(err)
	}
	jobID, err := parseID(req.JobID, core.ErrJobNotFound)
	if err != nil {
		return nil, err
	}

	now := s.clock.now()
	var employerID string
	err = s.tx.WithinTx(ctx, func(r core.TxRepositories) error {
		job, err := r.Jobs.GetForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if !job.AcceptsApplications(now) {
			return core.ErrJobUnavailable
		}
		if job.IsFull() {
			return core.ErrJobFull
		}
		exists, err := r.Applications.ExistsForApplicant(ctx, job.ID, caller.UserID)
		if err != nil {
			return err
		}
		if exists {
			return core.ErrDuplicateApplication
		}
		reserved, err := r.Jobs.ReserveApplicantSlot(ctx, job.ID)
		if err != nil {
			return err
		}
		if !reserved {
			return core.ErrJobFull
		}

		app, err = r.Applications.Create(ctx, &model.Application{
			JobID:             job.ID,
			ApplicantID:       caller.UserID,
			EmployerID:        job.EmployerID,
			Status:            model.ApplicationStatusApplied,
			CoverLetter:       req.CoverLetter,
			ExpectedSalary:    req.ExpectedSalary,
			Availability:      req.Availability,
			WorkSchedule:      req.WorkSchedule,
			Skills:            req.Skills,
			ExperienceSummary: req.ExperienceSummary,
		})
		if err != nil {
			return err
		}
		entry := model.StatusHistoryEntry{
			ApplicationID: app.ID,
			Status:        model.ApplicationStatusApplied,
			ChangedAt:     now,
			ChangedBy:     caller.UserID,
		}
		if err := r.Applications.AppendHistory(ctx, &entry); err != nil {
			return err
		}
		app.StatusHistory = []model.StatusHistoryEntry{entry}

		applicantName, err := displayName(ctx, r, caller.UserID)
		if err != nil {
			return err
		}
		notice := model.NewJobApplicationNotification(app, job, applicantName, s.notificationExpiry(now))
		if _, err := r.Notifications.Create(ctx, &notice); err != nil {
			return fmt.Errorf("notify employer: %w", err)
		}
		employerID = job.EmployerID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, employerID)
	s.dropJob(ctx, app.JobID)
	s.logger.InfoContext(ctx, "application submitted",
		"application_id", app.ID,
		"job_id", app.JobID,
		"applicant_id", app.ApplicantID,
	)
	return app, nil
}

// List returns the caller's applications: a worker's own, those on an
// employer's jobs, or every application for admins.
func (s *ApplicationService) List(
	ctx context.Context,
	caller domainauth.Caller,
	opts model.ApplicationListOptions,
	page model.Page,
) (model.PageResult[*model.Application], error) {
	if err := scopeApplications(caller, &opts); err != nil {
		return model.PageResult[*model.Application]{}, err
	}
	if opts.Status != nil && !opts.Status.Valid() {
		return model.PageResult[*model.Application]{}, apperrors.ValidationField("status", "invalid status filter")
	}
	page = page.Normalize()
	opts.Limit, opts.Offset = page.Limit, page.Offset()

	return listAndCount(ctx, page,
		func(ctx context.Context) ([]*model.Application, error) { return s.repo.List(ctx, opts) },
		func(ctx context.Context) (int, error) { return s.repo.Count(ctx, opts) },
	)
}

// Get returns one application with its history and messages.
func (s *ApplicationService) Get(ctx context.Context, caller domainauth.Caller, id string) (*model.Application, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	appID, err := parseID(id, core.ErrApplicationNotFound)
	if err != nil {
		return nil, err
	}
	app, err := s.repo.GetByID(ctx, appID)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && !app.IsParticipant(caller.UserID) {
		return nil, apperrors.Forbidden("not authorized to view this application")
	}
	return app, nil
}

// UpdateStatus moves an application along the workflow on behalf of its employer.
func (s *ApplicationService) UpdateStatus(
	ctx context.Context,
	caller domainauth.Caller,
	id string,
	req *model.UpdateStatusRequest,
) (app *model.Application, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "application.transition", start, err) }()

	if err = requireEmployer(caller, "only employers can update application status"); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	req.Reason = plainTextPtr(req.Reason)
	req.Notes = plainTextPtr(req.Notes)
	if err = req.Validate(); err != nil {
		return nil, invalid(err)
	}
	appID, err := parseID(id, core.ErrApplicationNotFound)
	if err != nil {
		return nil, err
	}

	now := s.clock.now()
	var notified []string
	err = s.tx.WithinTx(ctx, func(r core.TxRepositories) error {
		app, err = r.Applications.GetForUpdate(ctx, appID)
		if err != nil {
			return err
		}
		if !caller.IsAdmin() && app.EmployerID != caller.UserID {
			return apperrors.Forbidden("not authorized to update this application")
		}
		next, err := workflow.Transition(app.Status, req.Status, workflow.ActorEmployer)
		if err != nil {
			return transitionError(err)
		}
		if next == model.ApplicationStatusOffered {
			app.Offer = offerFrom(req.Offer, now)
		}
		notified, err = s.applyTransition(ctx, r, transition{
			app:    app,
			to:     next,
			actor:  caller.UserID,
			reason: req.Reason,
			notes:  req.Notes,
			now:    now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, notified...)
	s.dropJob(ctx, app.JobID)
	return app, nil
}

// Withdraw lets the applicant pull an application that has not reached interview.
func (s *ApplicationService) Withdraw(
	ctx context.Context,
	caller domainauth.Caller,
	id string,
	req *model.WithdrawRequest,
) (app *model.Application, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "application.withdraw", start, err) }()

	if err = requireCaller(caller); err != nil {
		return nil, err
	}
	if req == nil {
		req = &model.WithdrawRequest{}
	}
	req.Reason = plainTextPtr(req.Reason)
	if err = req.Validate(); err != nil {
		return nil, invalid(err)
	}
	appID, err := parseID(id, core.ErrApplicationNotFound)
	if err != nil {
		return nil, err
	}

	now := s.clock.now()
	var notified []string
	err = s.tx.WithinTx(ctx, func(r core.TxRepositories) error {
		app, err = r.Applications.GetForUpdate(ctx, appID)
		if err != nil {
			return err
		}
		if app.ApplicantID != caller.UserID {
			return apperrors.Forbidden("only the applicant can withdraw this application")
		}
		if !app.Status.Withdrawable() {
			return core.ErrInvalidState
		}
		next, err := workflow.Transition(app.Status, model.ApplicationStatusWithdrawn, workflow.ActorApplicant)
		if err != nil {
			return transitionError(err)
		}
		app.IsWithdrawn = true
		app.WithdrawnAt = &now
		app.WithdrawnReason = req.Reason
		notified, err = s.applyTransition(ctx, r, transition{
			app:    app,
			to:     next,
			actor:  caller.UserID,
			reason: req.Reason,
			now:    now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, notified...)
	s.dropJob(ctx, app.JobID)
	return app, nil
}

// AddMessage appends a message to the application thread and notifies the
// other participant.
func (s *ApplicationService) AddMessage(
	ctx context.Context,
	caller domainauth.Caller,
	id string,
	req *model.AddMessageRequest,
) (*model.ApplicationMessage, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	req.Text = plainText(req.Text)
	if err := req.Validate(); err != nil {
		return nil, invalid(err)
	}
	appID, err := parseID(id, core.ErrApplicationNotFound)
	if err != nil {
		return nil, err
	}

	now := s.clock.now()
	var (
		msg       *model.ApplicationMessage
		recipient string
	)
	err = s.tx.WithinTx(ctx, func(r core.TxRepositories) error {
		app, err := r.Applications.GetForUpdate(ctx, appID)
		if err != nil {
			return err
		}
		if !app.IsParticipant(caller.UserID) {
			return core.ErrNotParticipant
		}
		msg, err = r.Applications.AddMessage(ctx, &model.ApplicationMessage{
			ApplicationID: app.ID,
			SenderID:      caller.UserID,
			Text:          req.Text,
		})
		if err != nil {
			return err
		}
		notice := model.NewApplicationMessageNotification(app, msg, s.notificationExpiry(now))
		if _, err := r.Notifications.Create(ctx, &notice); err != nil {
			return fmt.Errorf("notify counterpart: %w", err)
		}
		recipient = notice.RecipientID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, recipient)
	return msg, nil
}

// MarkMessagesRead flags the counterpart's messages as read and reports how
// many changed. Repeating the call changes nothing.
func (s *ApplicationService) MarkMessagesRead(ctx context.Context, caller domainauth.Caller, id string) (int, error) {
	if err := requireCaller(caller); err != nil {
		return 0, err
	}
	appID, err := parseID(id, core.ErrApplicationNotFound)
	if err != nil {
		return 0, err
	}

	var n int
	err = s.tx.WithinTx(ctx, func(r core.TxRepositories) error {
		app, err := r.Applications.GetForUpdate(ctx, appID)
		if err != nil {
			return err
		}
		if !app.IsParticipant(caller.UserID) {
			return core.ErrNotParticipant
		}
		n, err = r.Applications.MarkMessagesRead(ctx, app.ID, caller.UserID)
		return err
	})
	return n, err
}

// ScheduleInterview stores interview details and moves the application to
// interview-scheduled. Rescheduling repeats the transition.
func (s *ApplicationService) ScheduleInterview(
	ctx context.Context,
	caller domainauth.Caller,
	id string,
	req *model.ScheduleInterviewRequest,
) (app *model.Application, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "application.interview", start, err) }()

	if err = requireEmployer(caller, "only employers can schedule interviews"); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	req.Location = plainText(req.Location)
	req.Interviewer = plainText(req.Interviewer)
	req.Notes = plainText(req.Notes)
	now := s.clock.now()
	if err = req.Validate(now); err != nil {
		return nil, invalid(err)
	}
	appID, err := parseID(id, core.ErrApplicationNotFound)
	if err != nil {
		return nil, err
	}

	var notified []string
	err = s.tx.WithinTx(ctx, func(r core.TxRepositories) error {
		app, err = r.Applications.GetForUpdate(ctx, appID)
		if err != nil {
			return err
		}
		if !caller.IsAdmin() && app.EmployerID != caller.UserID {
			return apperrors.Forbidden("not authorized to update this application")
		}
		next, err := workflow.Transition(app.Status, model.ApplicationStatusInterviewScheduled, workflow.ActorEmployer)
		if err != nil {
			return transitionError(err)
		}
		iv := model.Interview{
			ScheduledAt: req.ScheduledAt.UTC(),
			Location:    req.Location,
			Type:        req.Type,
			Interviewer: req.Interviewer,
			Notes:       req.Notes,
		}
		app.Interview = &iv
		notified, err = s.applyTransition(ctx, r, transition{app: app, to: next, actor: caller.UserID, now: now})
		if err != nil {
			return err
		}
		title, err := jobTitle(ctx, r, app.JobID)
		if err != nil {
			return err
		}
		notice := model.NewInterviewNotification(app, title, iv, s.notificationExpiry(now))
		if _, err := r.Notifications.Create(ctx, &notice); err != nil {
			return fmt.Errorf("notify applicant: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, notified...)
	s.dropJob(ctx, app.JobID)
	return app, nil
}

// Evaluate records the employer's scores for an applicant.
func (s *ApplicationService) Evaluate(
	ctx context.Context,
	caller domainauth.Caller,
	id string,
	req *model.EvaluationRequest,
) (*model.Application, error) {
	if err := requireEmployer(caller, "only employers can evaluate applicants"); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	req.Notes = plainText(req.Notes)
	if err := req.Validate(); err != nil {
		return nil, invalid(err)
	}
	appID, err := parseID(id, core.ErrApplicationNotFound)
	if err != nil {
		return nil, err
	}

	now := s.clock.now()
	var app *model.Application
	err = s.tx.WithinTx(ctx, func(r core.TxRepositories) error {
		app, err = r.Applications.GetForUpdate(ctx, appID)
		if err != nil {
			return err
		}
		if !caller.IsAdmin() && app.EmployerID != caller.UserID {
			return apperrors.Forbidden("not authorized to evaluate this application")
		}
		app.Evaluation = &model.Evaluation{
			Skills:        req.Skills,
			Communication: req.Communication,
			Reliability:   req.Reliability,
			Notes:         req.Notes,
			EvaluatedBy:   caller.UserID,
			EvaluatedAt:   now,
		}
		return r.Applications.Update(ctx, app)
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

// Stats counts the caller's applications by status. Every status is present
// in the result, zero-filled.
func (s *ApplicationService) Stats(ctx context.Context, caller domainauth.Caller) (*model.ApplicationStats, error) {
	var opts model.ApplicationListOptions
	if err := scopeApplications(caller, &opts); err != nil {
		return nil, err
	}
	counts, err := s.repo.CountByStatus(ctx, opts)
	if err != nil {
		return nil, err
	}
	stats := &model.ApplicationStats{ByStatus: make(map[model.ApplicationStatus]int, len(model.ApplicationStatuses()))}
	for _, st := range model.ApplicationStatuses() {
		stats.ByStatus[st] = counts[st]
		stats.Total += counts[st]
	}
	return stats, nil
}

type transition struct {
	app    *model.Application
	to     model.ApplicationStatus
	actor  string
	reason *string
	notes  *string
	now    time.Time
}

// applyTransition is the single write path for status changes. It persists
// the status, appends history, adjusts job counters and raises notifications.
// It returns the notified recipients.
func (s *ApplicationService) applyTransition(ctx context.Context, r core.TxRepositories, t transition) ([]string, error) {
	from := t.app.Status
	t.app.Status = t.to
	t.app.LastUpdated = t.now
	if err := r.Applications.Update(ctx, t.app); err != nil {
		return nil, err
	}
	entry := model.StatusHistoryEntry{
		ApplicationID: t.app.ID,
		Status:        t.to,
		ChangedAt:     t.now,
		ChangedBy:     t.actor,
		Reason:        t.reason,
		Notes:         t.notes,
	}
	if err := r.Applications.AppendHistory(ctx, &entry); err != nil {
		return nil, err
	}
	t.app.StatusHistory = append(t.app.StatusHistory, entry)

	if t.to.ReleasesCapacity() && !from.ReleasesCapacity() {
		if err := r.Jobs.ReleaseApplicantSlot(ctx, t.app.JobID); err != nil {
			return nil, fmt.Errorf("release applicant slot: %w", err)
		}
	}
	if t.to == model.ApplicationStatusHired {
		if err := r.Jobs.IncrementPositionsFilled(ctx, t.app.JobID); err != nil {
			return nil, fmt.Errorf("increment positions filled: %w", err)
		}
	}

	title, err := jobTitle(ctx, r, t.app.JobID)
	if err != nil {
		return nil, err
	}
	exp := s.notificationExpiry(t.now)
	notices := []model.CreateNotificationRequest{
		model.NewApplicationStatusNotification(t.app, title, t.to, t.actor, exp),
	}
	switch t.to {
	case model.ApplicationStatusWithdrawn:
		notices = append(notices, model.NewWithdrawalNotification(t.app, title, exp))
	case model.ApplicationStatusOffered:
		if t.app.Offer != nil {
			notices = append(notices, model.NewOfferNotification(t.app, title, *t.app.Offer, exp))
		}
	}

	recipients := make([]string, 0, len(notices))
	for i := range notices {
		if _, err := r.Notifications.Create(ctx, &notices[i]); err != nil {
			return nil, fmt.Errorf("create %s notification: %w", notices[i].Type, err)
		}
		recipients = append(recipients, notices[i].RecipientID)
	}

	s.logger.InfoContext(ctx, "application status changed",
		"application_id", t.app.ID,
		"from", from,
		"to", t.to,
		"actor", t.actor,
	)
	if s.metrics != nil {
		s.metrics.Count("application.status", 1, map[string]string{"from": string(from), "to": string(t.to)})
	}
	return recipients, nil
}

func (s *ApplicationService) notificationExpiry(now time.Time) *time.Time {
	return expiryFrom(now, s.config.NotificationLifetime)
}

// displayName returns the user's name, or "" when the user is gone.
func displayName(ctx context.Context, r core.TxRepositories, userID string) (string, error) {
	if r.Users == nil {
		return "", nil
	}
	u, err := r.Users.GetByID(ctx, userID)
	if errors.Is(err, core.ErrUserNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return u.Name, nil
}

func (s *ApplicationService) invalidate(ctx context.Context, userIDs ...string) {
	if s.unread == nil || len(userIDs) == 0 {
		return
	}
	s.unread.InvalidateUnread(ctx, userIDs...)
}

func (s *ApplicationService) dropJob(ctx context.Context, jobID string) {
	if s.jobs != nil {
		s.jobs.InvalidateJob(ctx, jobID)
	}
}

func jobTitle(ctx context.Context, r core.TxRepositories, jobID string) (string, error) {
	job, err := r.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("load job %s: %w", jobID, err)
	}
	return job.Title, nil
}

func offerFrom(terms *model.OfferTerms, now time.Time) *model.Offer {
	if terms == nil {
		return &model.Offer{ExtendedAt: now}
	}
	return &model.Offer{
		Salary:     terms.Salary,
		StartDate:  terms.StartDate,
		Notes:      plainText(terms.Notes),
		ExtendedAt: now,
	}
}

func transitionError(err error) error {
	var invalidErr *workflow.InvalidTransitionError
	if errors.As(err, &invalidErr) {
		return apperrors.Rule(core.ErrInvalidTransition.Reason, invalidErr.Error())
	}
	var forbiddenErr *workflow.ForbiddenTransitionError
	if errors.As(err, &forbiddenErr) {
		return apperrors.Forbidden(forbiddenErr.Error())
	}
	return err
}

func scopeApplications(caller domainauth.Caller, opts *model.ApplicationListOptions) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	switch {
	case caller.IsAdmin():
	case caller.IsWorker():
		id := caller.UserID
		opts.ApplicantID = &id
	case caller.IsEmployer():
		id := caller.UserID
		opts.EmployerID = &id
	default:
		return apperrors.Forbidden("role cannot list applications")
	}
	return nil
}

func requireEmployer(caller domainauth.Caller, msg string) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if !caller.IsEmployer() && !caller.IsAdmin() {
		return apperrors.Forbidden(msg)
	}
	return nil
}
