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
	"github.com/kaamsathi/kaamsathi-api/internal/testutil"
	"github.com/kaamsathi/kaamsathi-api/internal/testutil/memstore"
)

type jobFixture struct {
	store    *memstore.Store
	cache    *memstore.Cache
	svc      *JobService
	employer domainauth.Caller
	worker   domainauth.Caller
}

func newJobFixture(t *testing.T) *jobFixture {
	t.Helper()
	now := func() time.Time { return testNow }
	store := memstore.New(now)
	cache := memstore.NewCache(now)
	svc, err := NewJobService(JobServiceOptions{
		Tx:     store,
		Repo:   store.Repos().Jobs,
		Cache:  cache,
		Config: config.MarketplaceConfig{DefaultJobLifetime: 30 * 24 * time.Hour, DefaultMaxApplicants: 25},
		Clock:  fixedClock(),
	})
	require.NoError(t, err)
	return &jobFixture{
		store:    store,
		cache:    cache,
		svc:      svc,
		employer: domainauth.Caller{UserID: store.SeedUser(model.UserTypeEmployer, "Sharma Builders"), Role: domainauth.RoleEmployer},
		worker:   domainauth.Caller{UserID: store.SeedUser(model.UserTypeWorker, "Ravi"), Role: domainauth.RoleWorker},
	}
}

func (f *jobFixture) post(t *testing.T, b *testutil.JobRequestBuilder) *model.Job {
	t.Helper()
	job, err := f.svc.Create(context.Background(), f.employer, b.Build())
	require.NoError(t, err)
	return job
}

func TestNewJobService(t *testing.T) {
	m := newTxMocks(t)
	_, err := NewJobService(JobServiceOptions{Repo: m.jobs})
	require.Error(t, err)
	_, err = NewJobService(JobServiceOptions{Tx: m.tx})
	require.Error(t, err)

	svc, err := NewJobService(JobServiceOptions{Tx: m.tx, Repo: m.jobs})
	require.NoError(t, err)
	assert.Equal(t, defaultJobCacheTTL, svc.cacheTTL)
	assert.Equal(t, model.DefaultJobLifetime, svc.config.DefaultJobLifetime)
}

func TestJobService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("fills defaults", func(t *testing.T) {
		f := newJobFixture(t)
		req := testutil.NewJobRequest("ignored").Build()
		req.MaxApplicants = 0
		req.Title = "<h1>Painter</h1> wanted"

		job, err := f.svc.Create(ctx, f.employer, req)
		require.NoError(t, err)
		assert.Equal(t, f.employer.UserID, job.EmployerID)
		assert.Equal(t, "Painter wanted", job.Title)
		assert.Equal(t, 25, job.MaxApplicants)
		assert.Equal(t, 1, job.PositionsAvailable)
		assert.Equal(t, model.JobStatusActive, job.Status)
		assert.Equal(t, testNow.Add(30*24*time.Hour), job.ExpiresAt)
	})

	t.Run("workers cannot post", func(t *testing.T) {
		f := newJobFixture(t)
		_, err := f.svc.Create(ctx, f.worker, testutil.NewJobRequest("").Build())
		assert.True(t, apperrors.IsForbidden(err))
	})

	t.Run("salary range is validated", func(t *testing.T) {
		f := newJobFixture(t)
		_, err := f.svc.Create(ctx, f.employer, testutil.NewJobRequest("").WithSalary(900, 500).Build())
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("expiry in the past is rejected", func(t *testing.T) {
		f := newJobFixture(t)
		_, err := f.svc.Create(ctx, f.employer, testutil.NewJobRequest("").WithExpiresAt(testNow.Add(-time.Hour)).Build())
		require.Error(t, err)
		assert.Equal(t, "expires_at", apperrors.GetField(err))
	})
}

func TestJobService_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("counts one view per viewer", func(t *testing.T) {
		f := newJobFixture(t)
		job := f.post(t, testutil.NewJobRequest(""))

		got, err := f.svc.Get(ctx, f.worker, job.ID, "")
		require.NoError(t, err)
		assert.Equal(t, 1, got.Views)

		_, err = f.svc.Get(ctx, f.worker, job.ID, "")
		require.NoError(t, err)
		_, err = f.svc.Get(ctx, domainauth.Caller{}, job.ID, "203.0.113.9")
		require.NoError(t, err)

		assert.Equal(t, 2, f.store.Job(job.ID).Views)
		assert.True(t, f.cache.Has(core.JobKey(job.ID)))
	})

	t.Run("owner views are not counted", func(t *testing.T) {
		f := newJobFixture(t)
		job := f.post(t, testutil.NewJobRequest(""))
		_, err := f.svc.Get(ctx, f.employer, job.ID, "")
		require.NoError(t, err)
		assert.Equal(t, 0, f.store.Job(job.ID).Views)
	})

	t.Run("lazy expiry", func(t *testing.T) {
		f := newJobFixture(t)
		job := f.post(t, testutil.NewJobRequest("").WithExpiresAt(testNow.Add(time.Minute)))

		later := testNow.Add(2 * time.Minute)
		f.svc.clock = func() time.Time { return later }
		got, err := f.svc.Get(ctx, f.worker, job.ID, "")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusExpired, got.Status)
	})

	t.Run("drafts are hidden from others", func(t *testing.T) {
		f := newJobFixture(t)
		job := f.post(t, testutil.NewJobRequest("").WithStatus(model.JobStatusDraft))

		_, err := f.svc.Get(ctx, f.worker, job.ID, "")
		assert.ErrorIs(t, err, core.ErrJobNotFound)

		got, err := f.svc.Get(ctx, f.employer, job.ID, "")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusDraft, got.Status)
	})

	t.Run("malformed id", func(t *testing.T) {
		f := newJobFixture(t)
		_, err := f.svc.Get(ctx, f.worker, "42", "")
		assert.ErrorIs(t, err, core.ErrJobNotFound)
	})

	t.Run("cache outage still counts views", func(t *testing.T) {
		f := newJobFixture(t)
		job := f.post(t, testutil.NewJobRequest(""))
		f.cache.Err = errors.New("connection refused")

		got, err := f.svc.Get(ctx, f.worker, job.ID, "")
		require.NoError(t, err)
		assert.Equal(t, 1, got.Views)
	})
}

func TestJobService_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("cannot lower max applicants below current", func(t *testing.T) {
		f := newJobFixture(t)
		job := f.post(t, testutil.NewJobRequest("").WithMaxApplicants(3))
		for i := 0; i < 2; i++ {
			ok, err := f.store.Repos().Jobs.ReserveApplicantSlot(ctx, job.ID)
			require.NoError(t, err)
			require.True(t, ok)
		}

		one := 1
		_, err := f.svc.Update(ctx, f.employer, job.ID, &model.UpdateJobRequest{MaxApplicants: &one})
		assert.ErrorIs(t, err, core.ErrApplicantsOverCap)
		assert.True(t, apperrors.IsRule(err))
		assert.Equal(t, 3, f.store.Job(job.ID).MaxApplicants)

		two := 2
		updated, err := f.svc.Update(ctx, f.employer, job.ID, &model.UpdateJobRequest{MaxApplicants: &two})
		require.NoError(t, err)
		assert.Equal(t, 2, updated.MaxApplicants)
	})

	t.Run("only the owner may edit", func(t *testing.T) {
		f := newJobFixture(t)
		job := f.post(t, testutil.NewJobRequest(""))
		other := domainauth.Caller{UserID: f.store.SeedUser(model.UserTypeEmployer, "Other Co"), Role: domainauth.RoleEmployer}

		title := "Hijacked"
		_, err := f.svc.Update(ctx, other, job.ID, &model.UpdateJobRequest{Title: &title})
		assert.True(t, apperrors.IsForbidden(err))

		_, err = f.svc.Update(ctx, adminCaller(), job.ID, &model.UpdateJobRequest{Title: &title})
		require.NoError(t, err)
	})

	t.Run("status cannot be set to expired", func(t *testing.T) {
		f := newJobFixture(t)
		job := f.post(t, testutil.NewJobRequest(""))
		st := model.JobStatusExpired
		_, err := f.svc.Update(ctx, f.employer, job.ID, &model.UpdateJobRequest{Status: &st})
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("update invalidates the cached document", func(t *testing.T) {
		f := newJobFixture(t)
		job := f.post(t, testutil.NewJobRequest(""))
		_, err := f.svc.Get(ctx, f.worker, job.ID, "")
		require.NoError(t, err)
		require.True(t, f.cache.Has(core.JobKey(job.ID)))

		st := model.JobStatusPaused
		_, err = f.svc.Update(ctx, f.employer, job.ID, &model.UpdateJobRequest{Status: &st})
		require.NoError(t, err)
		assert.False(t, f.cache.Has(core.JobKey(job.ID)))

		got, err := f.svc.Get(ctx, f.worker, job.ID, "")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusPaused, got.Status)
	})
}

func TestJobService_Search(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(t)
	f.post(t, testutil.NewJobRequest("").WithTitle("Electrician").WithCategory(model.JobCategoryElectrical).WithCity("Mumbai"))
	f.post(t, testutil.NewJobRequest("").WithTitle("Painter").WithCategory(model.JobCategoryPainting).Urgent())
	f.post(t, testutil.NewJobRequest("").WithTitle("Draft plumber").WithStatus(model.JobStatusDraft))

	res, err := f.svc.Search(ctx, model.JobSearchOptions{}, model.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)

	cat := model.JobCategoryElectrical
	res, err = f.svc.Search(ctx, model.JobSearchOptions{Category: &cat}, model.Page{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Electrician", res.Items[0].Title)

	res, err = f.svc.Search(ctx, model.JobSearchOptions{UrgentOnly: true}, model.Page{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Painter", res.Items[0].Title)

	_, err = f.svc.Search(ctx, model.JobSearchOptions{Sort: "views"}, model.Page{})
	assert.True(t, apperrors.IsValidation(err))

	// EmployerID is ignored on the public search.
	res, err = f.svc.Search(ctx, model.JobSearchOptions{EmployerID: &f.employer.UserID}, model.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)

	mine, err := f.svc.ListMine(ctx, f.employer, model.JobSearchOptions{}, model.Page{})
	require.NoError(t, err)
	assert.Equal(t, 3, mine.Total)

	_, err = f.svc.ListMine(ctx, f.worker, model.JobSearchOptions{}, model.Page{})
	assert.True(t, apperrors.IsForbidden(err))
}

func TestJobService_SavedJobs(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(t)
	job := f.post(t, testutil.NewJobRequest(""))

	saved, err := f.svc.Save(ctx, f.worker, job.ID)
	require.NoError(t, err)
	assert.True(t, saved)

	saved, err = f.svc.Save(ctx, f.worker, job.ID)
	require.NoError(t, err)
	assert.False(t, saved)
	assert.Equal(t, 1, f.store.Job(job.ID).Saves)

	list, err := f.svc.ListSaved(ctx, f.worker, model.Page{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, job.ID, list[0].ID)

	removed, err := f.svc.Unsave(ctx, f.worker, job.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, 0, f.store.Job(job.ID).Saves)

	_, err = f.svc.Save(ctx, f.employer, job.ID)
	assert.True(t, apperrors.IsForbidden(err))

	_, err = f.svc.Save(ctx, f.worker, "3f0c1e2d-5b6a-4978-8c9d-000000000000")
	assert.ErrorIs(t, err, core.ErrJobNotFound)
}

func TestJobService_UpdateRepositoryError(t *testing.T) {
	m := newTxMocks(t)
	svc, err := NewJobService(JobServiceOptions{Tx: m.tx, Repo: m.jobs, Clock: fixedClock()})
	require.NoError(t, err)

	m.jobs.EXPECT().GetForUpdate(gomock.Any(), jobUUID).Return(openJob(), nil)
	m.jobs.EXPECT().Update(gomock.Any(), jobUUID, gomock.Any()).Return(nil, errors.New("deadlock detected"))

	urgent := true
	_, err = svc.Update(context.Background(), employerCaller(), jobUUID, &model.UpdateJobRequest{IsUrgent: &urgent})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock")
}
