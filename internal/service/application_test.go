package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/kaamsathi/kaamsathi-api/config"
	"github.com/kaamsathi/kaamsathi-api/internal/core"
	domainauth "github.com/kaamsathi/kaamsathi-api/internal/domain/auth"
	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
	apperrors "github.com/kaamsathi/kaamsathi-api/internal/errors"
	"github.com/kaamsathi/kaamsathi-api/internal/observability/statsd"
	"github.com/kaamsathi/kaamsathi-api/internal/testutil"
	"github.com/kaamsathi/kaamsathi-api/internal/testutil/memstore"
)

func newMockedApplicationService(t *testing.T, m *txMocks, unread *unreadSpy) *ApplicationService {
	t.Helper()
	opts := ApplicationServiceOptions{
		Tx:     m.tx,
		Repo:   m.applications,
		Config: config.MarketplaceConfig{NotificationLifetime: 24 * time.Hour},
		Clock:  fixedClock(),
	}
	if unread != nil {
		opts.Unread = unread
	}
	svc, err := NewApplicationService(opts)
	require.NoError(t, err)
	return svc
}

func openJob() *model.Job {
	return &model.Job{
		ID:                jobUUID,
		EmployerID:        employerID,
		Title:             "Mason",
		Status:            model.JobStatusActive,
		IsActive:          true,
		MaxApplicants:     3,
		CurrentApplicants: 1,
		ExpiresAt:         testNow.Add(24 * time.Hour),
	}
}

func storedApplication(status model.ApplicationStatus) *model.Application {
	return &model.Application{
		ID:          appUUID,
		JobID:       jobUUID,
		ApplicantID: workerID,
		EmployerID:  employerID,
		Status:      status,
	}
}

func TestNewApplicationService(t *testing.T) {
	_, err := NewApplicationService(ApplicationServiceOptions{})
	require.Error(t, err)

	m := newTxMocks(t)
	_, err = NewApplicationService(ApplicationServiceOptions{Tx: m.tx})
	require.Error(t, err)
}

func TestApplicationService_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("only workers may apply", func(t *testing.T) {
		svc := newMockedApplicationService(t, newTxMocks(t), nil)
		_, err := svc.Submit(ctx, employerCaller(), testutil.NewApplicationRequest(jobUUID))
		assert.True(t, apperrors.IsForbidden(err))

		_, err = svc.Submit(ctx, domainauth.Caller{}, testutil.NewApplicationRequest(jobUUID))
		assert.True(t, apperrors.IsUnauthorized(err))
	})

	t.Run("validation runs before any write", func(t *testing.T) {
		svc := newMockedApplicationService(t, newTxMocks(t), nil)
		req := testutil.NewApplicationRequest(jobUUID)
		req.Availability = ""
		_, err := svc.Submit(ctx, workerCaller(), req)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("malformed job id is not found", func(t *testing.T) {
		svc := newMockedApplicationService(t, newTxMocks(t), nil)
		_, err := svc.Submit(ctx, workerCaller(), testutil.NewApplicationRequest("not-a-uuid"))
		assert.ErrorIs(t, err, core.ErrJobNotFound)
	})

	t.Run("expired job is unavailable", func(t *testing.T) {
		m := newTxMocks(t)
		job := openJob()
		job.ExpiresAt = testNow.Add(-time.Minute)
		m.jobs.EXPECT().GetForUpdate(gomock.Any(), jobUUID).Return(job, nil)

		svc := newMockedApplicationService(t, m, nil)
		_, err := svc.Submit(ctx, workerCaller(), testutil.NewApplicationRequest(jobUUID))
		assert.ErrorIs(t, err, core.ErrJobUnavailable)
	})

	t.Run("full job is rejected without reserving", func(t *testing.T) {
		m := newTxMocks(t)
		job := openJob()
		job.CurrentApplicants = job.MaxApplicants
		m.jobs.EXPECT().GetForUpdate(gomock.Any(), jobUUID).Return(job, nil)

		svc := newMockedApplicationService(t, m, nil)
		_, err := svc.Submit(ctx, workerCaller(), testutil.NewApplicationRequest(jobUUID))
		assert.ErrorIs(t, err, core.ErrJobFull)
	})

	t.Run("lost reservation race reports full", func(t *testing.T) {
		m := newTxMocks(t)
		m.jobs.EXPECT().GetForUpdate(gomock.Any(), jobUUID).Return(openJob(), nil)
		m.applications.EXPECT().ExistsForApplicant(gomock.Any(), jobUUID, workerID).Return(false, nil)
		m.jobs.EXPECT().ReserveApplicantSlot(gomock.Any(), jobUUID).Return(false, nil)

		svc := newMockedApplicationService(t, m, nil)
		_, err := svc.Submit(ctx, workerCaller(), testutil.NewApplicationRequest(jobUUID))
		assert.ErrorIs(t, err, core.ErrJobFull)
	})

	t.Run("duplicate application", func(t *testing.T) {
		m := newTxMocks(t)
		m.jobs.EXPECT().GetForUpdate(gomock.Any(), jobUUID).Return(openJob(), nil)
		m.applications.EXPECT().ExistsForApplicant(gomock.Any(), jobUUID, workerID).Return(true, nil)

		svc := newMockedApplicationService(t, m, nil)
		_, err := svc.Submit(ctx, workerCaller(), testutil.NewApplicationRequest(jobUUID))
		assert.ErrorIs(t, err, core.ErrDuplicateApplication)
		assert.True(t, apperrors.IsRule(err))
	})

	t.Run("success writes application history and employer notification", func(t *testing.T) {
		m := newTxMocks(t)
		unread := &unreadSpy{}
		job := openJob()
		m.jobs.EXPECT().GetForUpdate(gomock.Any(), jobUUID).Return(job, nil)
		m.applications.EXPECT().ExistsForApplicant(gomock.Any(), jobUUID, workerID).Return(false, nil)
		m.jobs.EXPECT().ReserveApplicantSlot(gomock.Any(), jobUUID).Return(true, nil)
		m.applications.EXPECT().Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, app *model.Application) (*model.Application, error) {
				assert.Equal(t, employerID, app.EmployerID)
				assert.Equal(t, model.ApplicationStatusApplied, app.Status)
				assert.Equal(t, "Hard worker", *app.CoverLetter)
				out := *app
				out.ID = appUUID
				return &out, nil
			})
		m.applications.EXPECT().AppendHistory(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, e *model.StatusHistoryEntry) error {
				assert.Equal(t, appUUID, e.ApplicationID)
				assert.Equal(t, workerID, e.ChangedBy)
				return nil
			})
		m.users.EXPECT().GetByID(gomock.Any(), workerID).Return(&model.User{ID: workerID, Name: "Ravi"}, nil)
		m.notifications.EXPECT().Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req *model.CreateNotificationRequest) (*model.Notification, error) {
				assert.Equal(t, employerID, req.RecipientID)
				assert.Equal(t, model.NotificationTypeJobApplication, req.Type)
				assert.Equal(t, "Ravi applied for Mason.", req.Message)
				require.NotNil(t, req.ExpiresAt)
				assert.Equal(t, testNow.Add(24*time.Hour), *req.ExpiresAt)
				return &model.Notification{ID: "n1"}, nil
			})

		rec := &statsd.Recorder{}
		svc := newMockedApplicationService(t, m, unread)
		svc.metrics = rec
		req := testutil.NewApplicationRequest(jobUUID)
		cover := "<b>Hard</b> worker"
		req.CoverLetter = &cover

		app, err := svc.Submit(ctx, workerCaller(), req)
		require.NoError(t, err)
		assert.Equal(t, appUUID, app.ID)
		require.Len(t, app.StatusHistory, 1)
		assert.Equal(t, []string{employerID}, unread.all())
		assert.Len(t, rec.Find("application.submit.count"), 1)
	})

	t.Run("notification failure fails the submission", func(t *testing.T) {
		m := newTxMocks(t)
		m.jobs.EXPECT().GetForUpdate(gomock.Any(), jobUUID).Return(openJob(), nil)
		m.applications.EXPECT().ExistsForApplicant(gomock.Any(), jobUUID, workerID).Return(false, nil)
		m.jobs.EXPECT().ReserveApplicantSlot(gomock.Any(), jobUUID).Return(true, nil)
		m.applications.EXPECT().Create(gomock.Any(), gomock.Any()).Return(storedApplication(model.ApplicationStatusApplied), nil)
		m.applications.EXPECT().AppendHistory(gomock.Any(), gomock.Any()).Return(nil)
		m.users.EXPECT().GetByID(gomock.Any(), workerID).Return(nil, core.ErrUserNotFound)
		m.notifications.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, errors.New("insert failed"))

		svc := newMockedApplicationService(t, m, nil)
		_, err := svc.Submit(ctx, workerCaller(), testutil.NewApplicationRequest(jobUUID))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "notify employer")
	})
}

func TestApplicationService_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	req := func(s model.ApplicationStatus) *model.UpdateStatusRequest {
		return &model.UpdateStatusRequest{Status: s}
	}

	t.Run("workers cannot update status", func(t *testing.T) {
		svc := newMockedApplicationService(t, newTxMocks(t), nil)
		_, err := svc.UpdateStatus(ctx, workerCaller(), appUUID, req(model.ApplicationStatusShortlisted))
		assert.True(t, apperrors.IsForbidden(err))
	})

	t.Run("other employers are forbidden", func(t *testing.T) {
		m := newTxMocks(t)
		app := storedApplication(model.ApplicationStatusApplied)
		app.EmployerID = "someone-else"
		m.applications.EXPECT().GetForUpdate(gomock.Any(), appUUID).Return(app, nil)

		svc := newMockedApplicationService(t, m, nil)
		_, err := svc.UpdateStatus(ctx, employerCaller(), appUUID, req(model.ApplicationStatusShortlisted))
		assert.True(t, apperrors.IsForbidden(err))
	})

	t.Run("illegal jump is a rule violation", func(t *testing.T) {
		m := newTxMocks(t)
		m.applications.EXPECT().GetForUpdate(gomock.Any(), appUUID).Return(storedApplication(model.ApplicationStatusApplied), nil)

		svc := newMockedApplicationService(t, m, nil)
		_, err := svc.UpdateStatus(ctx, employerCaller(), appUUID, req(model.ApplicationStatusHired))
		assert.ErrorIs(t, err, core.ErrInvalidTransition)
		assert.Contains(t, err.Error(), "applied to hired")
	})

	t.Run("employer cannot withdraw", func(t *testing.T) {
		m := newTxMocks(t)
		m.applications.EXPECT().GetForUpdate(gomock.Any(), appUUID).Return(storedApplication(model.ApplicationStatusApplied), nil)

		svc := newMockedApplicationService(t, m, nil)
		_, err := svc.UpdateStatus(ctx, employerCaller(), appUUID, req(model.ApplicationStatusWithdrawn))
		assert.True(t, apperrors.IsForbidden(err))
	})

	t.Run("reject releases a slot and notifies the applicant", func(t *testing.T) {
		m := newTxMocks(t)
		unread := &unreadSpy{}
		m.applications.EXPECT().GetForUpdate(gomock.Any(), appUUID).Return(storedApplication(model.ApplicationStatusShortlisted), nil)
		m.applications.EXPECT().Update(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, app *model.Application) error {
				assert.Equal(t, model.ApplicationStatusRejected, app.Status)
				return nil
			})
		m.applications.EXPECT().AppendHistory(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, e *model.StatusHistoryEntry) error {
				assert.Equal(t, model.ApplicationStatusRejected, e.Status)
				assert.Equal(t, "Position filled", *e.Reason)
				return nil
			})
		m.jobs.EXPECT().ReleaseApplicantSlot(gomock.Any(), jobUUID).Return(nil)
		m.jobs.EXPECT().GetByID(gomock.Any(), jobUUID).Return(openJob(), nil)
		m.notifications.EXPECT().Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, n *model.CreateNotificationRequest) (*model.Notification, error) {
				assert.Equal(t, workerID, n.RecipientID)
				assert.Equal(t, model.NotificationTypeApplicationStatusChange, n.Type)
				assert.Equal(t, model.ApplicationStatusRejected, n.Data.Status)
				return &model.Notification{}, nil
			})

		svc := newMockedApplicationService(t, m, unread)
		reason := "Position filled"
		app, err := svc.UpdateStatus(ctx, employerCaller(), appUUID, &model.UpdateStatusRequest{
			Status: model.ApplicationStatusRejected,
			Reason: &reason,
		})
		require.NoError(t, err)
		assert.Equal(t, model.ApplicationStatusRejected, app.Status)
		assert.Equal(t, []string{workerID}, unread.all())
	})

	t.Run("hired fills a position and keeps the slot", func(t *testing.T) {
		m := newTxMocks(t)
		m.applications.EXPECT().GetForUpdate(gomock.Any(), appUUID).Return(storedApplication(model.ApplicationStatusOffered), nil)
		m.applications.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil)
		m.applications.EXPECT().AppendHistory(gomock.Any(), gomock.Any()).Return(nil)
		m.jobs.EXPECT().IncrementPositionsFilled(gomock.Any(), jobUUID).Return(nil)
		m.jobs.EXPECT().GetByID(gomock.Any(), jobUUID).Return(openJob(), nil)
		m.notifications.EXPECT().Create(gomock.Any(), gomock.Any()).Return(&model.Notification{}, nil)

		svc := newMockedApplicationService(t, m, nil)
		_, err := svc.UpdateStatus(ctx, adminCaller(), appUUID, req(model.ApplicationStatusHired))
		require.NoError(t, err)
	})

	t.Run("offer stores terms and raises an offer notification", func(t *testing.T) {
		m := newTxMocks(t)
		m.applications.EXPECT().GetForUpdate(gomock.Any(), appUUID).Return(storedApplication(model.ApplicationStatusInterviewed), nil)
		m.applications.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil)
		m.applications.EXPECT().AppendHistory(gomock.Any(), gomock.Any()).Return(nil)
		m.jobs.EXPECT().GetByID(gomock.Any(), jobUUID).Return(openJob(), nil)
		var types []model.NotificationType
		m.notifications.EXPECT().Create(gomock.Any(), gomock.Any()).Times(2).
			DoAndReturn(func(_ context.Context, n *model.CreateNotificationRequest) (*model.Notification, error) {
				types = append(types, n.Type)
				return &model.Notification{}, nil
			})

		svc := newMockedApplicationService(t, m, nil)
		app, err := svc.UpdateStatus(ctx, employerCaller(), appUUID, &model.UpdateStatusRequest{
			Status: model.ApplicationStatusOffered,
			Offer:  &model.OfferTerms{Salary: 18000},
		})
		require.NoError(t, err)
		require.NotNil(t, app.Offer)
		assert.Equal(t, int64(18000), app.Offer.Salary)
		assert.Equal(t, testNow, app.Offer.ExtendedAt)
		assert.Equal(t, []model.NotificationType{
			model.NotificationTypeApplicationStatusChange,
			model.NotificationTypeOfferExtended,
		}, types)
	})
}

func TestApplicationService_Withdraw(t *testing.T) {
	ctx := context.Background()

	t.Run("only the applicant may withdraw", func(t *testing.T) {
		m := newTxMocks(t)
		m.applications.EXPECT().GetForUpdate(gomock.Any(), appUUID).Return(storedApplication(model.ApplicationStatusApplied), nil)

		svc := newMockedApplicationService(t, m, nil)
		_, err := svc.Withdraw(ctx, domainauth.Caller{UserID: worker2ID, Role: domainauth.RoleWorker}, appUUID, nil)
		assert.True(t, apperrors.IsForbidden(err))
	})

	t.Run("not withdrawable after interview", func(t *testing.T) {
		m := newTxMocks(t)
		m.applications.EXPECT().GetForUpdate(gomock.Any(), appUUID).
			Return(storedApplication(model.ApplicationStatusInterviewScheduled), nil)

		svc := newMockedApplicationService(t, m, nil)
		_, err := svc.Withdraw(ctx, workerCaller(), appUUID, nil)
		assert.ErrorIs(t, err, core.ErrInvalidState)
	})

	t.Run("withdraw notifies both sides", func(t *testing.T) {
		m := newTxMocks(t)
		unread := &unreadSpy{}
		m.applications.EXPECT().GetForUpdate(gomock.Any(), appUUID).Return(storedApplication(model.ApplicationStatusUnderReview), nil)
		m.applications.EXPECT().Update(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, app *model.Application) error {
				assert.True(t, app.IsWithdrawn)
				assert.Equal(t, testNow, *app.WithdrawnAt)
				assert.Equal(t, "Found another job", *app.WithdrawnReason)
				return nil
			})
		m.applications.EXPECT().AppendHistory(gomock.Any(), gomock.Any()).Return(nil)
		m.jobs.EXPECT().ReleaseApplicantSlot(gomock.Any(), jobUUID).Return(nil)
		m.jobs.EXPECT().GetByID(gomock.Any(), jobUUID).Return(openJob(), nil)
		m.notifications.EXPECT().Create(gomock.Any(), gomock.Any()).Times(2).Return(&model.Notification{}, nil)

		svc := newMockedApplicationService(t, m, unread)
		reason := "Found another job"
		app, err := svc.Withdraw(ctx, workerCaller(), appUUID, &model.WithdrawRequest{Reason: &reason})
		require.NoError(t, err)
		assert.Equal(t, model.ApplicationStatusWithdrawn, app.Status)
		assert.ElementsMatch(t, []string{workerID, employerID}, unread.all())
	})
}

func TestApplicationService_Messages(t *testing.T) {
	ctx := context.Background()

	t.Run("non-participant is unauthorized", func(t *testing.T) {
		m := newTxMocks(t)
		m.applications.EXPECT().GetForUpdate(gomock.Any(), appUUID).Return(storedApplication(model.ApplicationStatusApplied), nil)

		svc := newMockedApplicationService(t, m, nil)
		_, err := svc.AddMessage(ctx, domainauth.Caller{UserID: worker2ID, Role: domainauth.RoleWorker}, appUUID,
			&model.AddMessageRequest{Text: "hello"})
		assert.ErrorIs(t, err, core.ErrNotParticipant)
		assert.True(t, apperrors.IsUnauthorized(err))
	})

	t.Run("markup-only text is empty", func(t *testing.T) {
		svc := newMockedApplicationService(t, newTxMocks(t), nil)
		_, err := svc.AddMessage(ctx, workerCaller(), appUUID, &model.AddMessageRequest{Text: "<br/>"})
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("message notifies the counterpart", func(t *testing.T) {
		m := newTxMocks(t)
		m.applications.EXPECT().GetForUpdate(gomock.Any(), appUUID).Return(storedApplication(model.ApplicationStatusApplied), nil)
		m.applications.EXPECT().AddMessage(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, msg *model.ApplicationMessage) (*model.ApplicationMessage, error) {
				out := *msg
				out.ID = "m1"
				return &out, nil
			})
		m.notifications.EXPECT().Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, n *model.CreateNotificationRequest) (*model.Notification, error) {
				assert.Equal(t, workerID, n.RecipientID)
				assert.Equal(t, model.NotificationTypeMessageReceived, n.Type)
				return &model.Notification{}, nil
			})

		svc := newMockedApplicationService(t, m, nil)
		msg, err := svc.AddMessage(ctx, employerCaller(), appUUID, &model.AddMessageRequest{Text: "Come tomorrow at 9"})
		require.NoError(t, err)
		assert.Equal(t, "m1", msg.ID)
	})
}

func TestApplicationService_ListAndStats(t *testing.T) {
	ctx := context.Background()

	t.Run("worker list is scoped to the applicant", func(t *testing.T) {
		m := newTxMocks(t)
		m.applications.EXPECT().List(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, opts model.ApplicationListOptions) ([]*model.Application, error) {
				require.NotNil(t, opts.ApplicantID)
				assert.Equal(t, workerID, *opts.ApplicantID)
				assert.Nil(t, opts.EmployerID)
				assert.Equal(t, 10, opts.Limit)
				assert.Equal(t, 10, opts.Offset)
				return []*model.Application{storedApplication(model.ApplicationStatusApplied)}, nil
			})
		m.applications.EXPECT().Count(gomock.Any(), gomock.Any()).Return(11, nil)

		svc := newMockedApplicationService(t, m, nil)
		res, err := svc.List(ctx, workerCaller(), model.ApplicationListOptions{}, model.Page{Page: 2})
		require.NoError(t, err)
		assert.Len(t, res.Items, 1)
		assert.Equal(t, 11, res.Total)
		assert.False(t, res.HasNext())
		assert.True(t, res.HasPrev())
	})

	t.Run("guest cannot list", func(t *testing.T) {
		svc := newMockedApplicationService(t, newTxMocks(t), nil)
		_, err := svc.List(ctx, domainauth.Caller{UserID: "x", Role: domainauth.RoleGuest}, model.ApplicationListOptions{}, model.Page{})
		assert.True(t, apperrors.IsForbidden(err))
	})

	t.Run("stats are zero-filled", func(t *testing.T) {
		m := newTxMocks(t)
		m.applications.EXPECT().CountByStatus(gomock.Any(), gomock.Any()).
			Return(map[model.ApplicationStatus]int{model.ApplicationStatusApplied: 2, model.ApplicationStatusHired: 1}, nil)

		svc := newMockedApplicationService(t, m, nil)
		stats, err := svc.Stats(ctx, employerCaller())
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Total)
		assert.Len(t, stats.ByStatus, len(model.ApplicationStatuses()))
		assert.Equal(t, 0, stats.ByStatus[model.ApplicationStatusRejected])
	})

	t.Run("get hides other people's applications", func(t *testing.T) {
		m := newTxMocks(t)
		m.applications.EXPECT().GetByID(gomock.Any(), appUUID).Return(storedApplication(model.ApplicationStatusApplied), nil)

		svc := newMockedApplicationService(t, m, nil)
		_, err := svc.Get(ctx, domainauth.Caller{UserID: worker2ID, Role: domainauth.RoleWorker}, appUUID)
		assert.True(t, apperrors.IsForbidden(err))
	})
}

// Scenario tests run the real service against the in-memory store.

type scenario struct {
	store    *memstore.Store
	svc      *ApplicationService
	employer domainauth.Caller
	worker   domainauth.Caller
	worker2  domainauth.Caller
	jobID    string
}

func newScenario(t *testing.T, maxApplicants int) *scenario {
	t.Helper()
	store := memstore.New(func() time.Time { return testNow })
	sc := &scenario{
		store:    store,
		employer: domainauth.Caller{UserID: store.SeedUser(model.UserTypeEmployer, "Sharma Builders"), Role: domainauth.RoleEmployer},
		worker:   domainauth.Caller{UserID: store.SeedUser(model.UserTypeWorker, "Ravi"), Role: domainauth.RoleWorker},
		worker2:  domainauth.Caller{UserID: store.SeedUser(model.UserTypeWorker, "Meena"), Role: domainauth.RoleWorker},
	}
	job, err := store.Repos().Jobs.Create(context.Background(),
		testutil.NewJobRequest(sc.employer.UserID).WithMaxApplicants(maxApplicants).Build())
	require.NoError(t, err)
	sc.jobID = job.ID

	svc, err := NewApplicationService(ApplicationServiceOptions{
		Tx:    store,
		Repo:  store.Repos().Applications,
		Clock: fixedClock(),
	})
	require.NoError(t, err)
	sc.svc = svc
	return sc
}

func (sc *scenario) counters() (current, applications int) {
	j := sc.store.Job(sc.jobID)
	return j.CurrentApplicants, j.Applications
}

func TestScenario_ApplyShortlistReject(t *testing.T) {
	ctx := context.Background()
	sc := newScenario(t, 5)

	cur, _ := sc.counters()
	assert.Equal(t, 0, cur)

	app, err := sc.svc.Submit(ctx, sc.worker, testutil.NewApplicationRequest(sc.jobID))
	require.NoError(t, err)
	assert.Equal(t, sc.employer.UserID, app.EmployerID)
	cur, total := sc.counters()
	assert.Equal(t, 1, cur)
	assert.Equal(t, 1, total)

	_, err = sc.svc.UpdateStatus(ctx, sc.employer, app.ID, &model.UpdateStatusRequest{Status: model.ApplicationStatusShortlisted})
	require.NoError(t, err)
	cur, _ = sc.counters()
	assert.Equal(t, 1, cur)

	_, err = sc.svc.UpdateStatus(ctx, sc.employer, app.ID, &model.UpdateStatusRequest{Status: model.ApplicationStatusRejected})
	require.NoError(t, err)
	cur, total = sc.counters()
	assert.Equal(t, 0, cur)
	assert.Equal(t, 1, total)

	history := sc.store.History(app.ID)
	require.Len(t, history, 3)
	for i, want := range []model.ApplicationStatus{
		model.ApplicationStatusApplied,
		model.ApplicationStatusShortlisted,
		model.ApplicationStatusRejected,
	} {
		assert.Equal(t, want, history[i].Status)
	}

	got, err := sc.svc.Get(ctx, sc.worker, app.ID)
	require.NoError(t, err)
	assert.Equal(t, history[len(history)-1].Status, got.Status)

	var statusChanges int
	for _, n := range sc.store.NotificationsFor(sc.worker.UserID) {
		if n.Type == model.NotificationTypeApplicationStatusChange {
			statusChanges++
		}
	}
	assert.Equal(t, 2, statusChanges)
	assert.Len(t, sc.store.NotificationsFor(sc.employer.UserID), 1)
}

func TestScenario_FullCapacityLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	sc := newScenario(t, 1)

	_, err := sc.svc.Submit(ctx, sc.worker, testutil.NewApplicationRequest(sc.jobID))
	require.NoError(t, err)

	_, err = sc.svc.Submit(ctx, sc.worker2, testutil.NewApplicationRequest(sc.jobID))
	assert.ErrorIs(t, err, core.ErrJobFull)

	cur, total := sc.counters()
	assert.Equal(t, 1, cur)
	assert.Equal(t, 1, total)
	assert.Len(t, sc.store.Applications(), 1)
	assert.Len(t, sc.store.NotificationsFor(sc.employer.UserID), 1)
}

func TestScenario_DuplicateSubmission(t *testing.T) {
	ctx := context.Background()
	sc := newScenario(t, 5)

	_, err := sc.svc.Submit(ctx, sc.worker, testutil.NewApplicationRequest(sc.jobID))
	require.NoError(t, err)
	_, err = sc.svc.Submit(ctx, sc.worker, testutil.NewApplicationRequest(sc.jobID))
	assert.ErrorIs(t, err, core.ErrDuplicateApplication)

	cur, _ := sc.counters()
	assert.Equal(t, 1, cur)
	assert.Len(t, sc.store.Applications(), 1)
}

func TestScenario_WithdrawOnlyOnce(t *testing.T) {
	ctx := context.Background()
	sc := newScenario(t, 5)

	app, err := sc.svc.Submit(ctx, sc.worker, testutil.NewApplicationRequest(sc.jobID))
	require.NoError(t, err)

	_, err = sc.svc.Withdraw(ctx, sc.worker, app.ID, nil)
	require.NoError(t, err)
	cur, _ := sc.counters()
	assert.Equal(t, 0, cur)

	_, err = sc.svc.Withdraw(ctx, sc.worker, app.ID, nil)
	assert.ErrorIs(t, err, core.ErrInvalidState)
	assert.Len(t, sc.store.History(app.ID), 2)
	cur, _ = sc.counters()
	assert.Equal(t, 0, cur)
}

func TestScenario_InterviewAndHire(t *testing.T) {
	ctx := context.Background()
	sc := newScenario(t, 5)

	app, err := sc.svc.Submit(ctx, sc.worker, testutil.NewApplicationRequest(sc.jobID))
	require.NoError(t, err)
	_, err = sc.svc.UpdateStatus(ctx, sc.employer, app.ID, &model.UpdateStatusRequest{Status: model.ApplicationStatusShortlisted})
	require.NoError(t, err)

	interview := &model.ScheduleInterviewRequest{ScheduledAt: testNow.Add(48 * time.Hour), Location: "Site office, Kothrud"}
	got, err := sc.svc.ScheduleInterview(ctx, sc.employer, app.ID, interview)
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationStatusInterviewScheduled, got.Status)
	require.NotNil(t, got.Interview)

	// Rescheduling is a self-transition.
	interview.ScheduledAt = testNow.Add(72 * time.Hour)
	_, err = sc.svc.ScheduleInterview(ctx, sc.employer, app.ID, interview)
	require.NoError(t, err)

	for _, st := range []model.ApplicationStatus{
		model.ApplicationStatusInterviewed,
		model.ApplicationStatusOffered,
		model.ApplicationStatusHired,
	} {
		_, err = sc.svc.UpdateStatus(ctx, sc.employer, app.ID, &model.UpdateStatusRequest{Status: st})
		require.NoError(t, err, st)
	}

	job := sc.store.Job(sc.jobID)
	assert.Equal(t, 1, job.CurrentApplicants)
	assert.Equal(t, 1, job.PositionsFilled)

	_, err = sc.svc.UpdateStatus(ctx, sc.employer, app.ID, &model.UpdateStatusRequest{Status: model.ApplicationStatusRejected})
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	var interviews int
	for _, n := range sc.store.NotificationsFor(sc.worker.UserID) {
		if n.Type == model.NotificationTypeInterviewScheduled {
			interviews++
		}
	}
	assert.Equal(t, 2, interviews)

	_, err = sc.svc.Evaluate(ctx, sc.employer, app.ID, &model.EvaluationRequest{Skills: 5, Communication: 4, Reliability: 5})
	require.NoError(t, err)
	got, err = sc.svc.Get(ctx, sc.employer, app.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Evaluation)
	assert.Equal(t, sc.employer.UserID, got.Evaluation.EvaluatedBy)
}

func TestScenario_MarkMessagesReadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	sc := newScenario(t, 5)

	app, err := sc.svc.Submit(ctx, sc.worker, testutil.NewApplicationRequest(sc.jobID))
	require.NoError(t, err)
	_, err = sc.svc.AddMessage(ctx, sc.employer, app.ID, &model.AddMessageRequest{Text: "Can you start Monday?"})
	require.NoError(t, err)
	_, err = sc.svc.AddMessage(ctx, sc.worker, app.ID, &model.AddMessageRequest{Text: "Yes"})
	require.NoError(t, err)

	n, err := sc.svc.MarkMessagesRead(ctx, sc.worker, app.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = sc.svc.MarkMessagesRead(ctx, sc.worker, app.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = sc.svc.MarkMessagesRead(ctx, sc.worker2, app.ID)
	assert.ErrorIs(t, err, core.ErrNotParticipant)
}
