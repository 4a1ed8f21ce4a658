package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kaamsathi/kaamsathi-api/config"
	"github.com/kaamsathi/kaamsathi-api/internal/core"
	domainauth "github.com/kaamsathi/kaamsathi-api/internal/domain/auth"
	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
	apperrors "github.com/kaamsathi/kaamsathi-api/internal/errors"
	"github.com/kaamsathi/kaamsathi-api/internal/observability/statsd"
)

const (
	defaultJobCacheTTL = 2 * time.Minute
	// viewDedupeWindow is how long one viewer counts as a single view of a job.
	viewDedupeWindow = time.Hour
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Tx       core.UnitOfWork          // Required: locks the job row during updates
	Repo     core.JobRepository       // Required: job repository
	Cache    core.CacheRepository     // Optional: job documents and view dedupe markers
	CacheTTL time.Duration            // Optional: job document TTL (default 2m)
	Config   config.MarketplaceConfig // Optional: posting defaults
	Clock    Clock                    // Optional: defaults to time.Now
	Logger   *slog.Logger             // Optional: structured logger
	Metrics  statsd.Sink              // Optional: metrics sink (StatsD-compatible)
}

// JobService provides business logic for job postings: creation, edits,
// lazy expiry, view counting, search and saved jobs.
type JobService struct {
	tx       core.UnitOfWork
	repo     core.JobRepository
	cache    core.CacheRepository
	cacheTTL time.Duration
	config   config.MarketplaceConfig
	clock    Clock
	logger   *slog.Logger
	metrics  statsd.Sink
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Tx == nil {
		return nil, errors.New("UnitOfWork is required")
	}
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = defaultJobCacheTTL
	}
	cfg := opts.Config
	if cfg.DefaultJobLifetime <= 0 {
		cfg.DefaultJobLifetime = model.DefaultJobLifetime
	}
	if cfg.DefaultMaxApplicants <= 0 {
		cfg.DefaultMaxApplicants = 50
	}
	return &JobService{
		tx:       opts.Tx,
		repo:     opts.Repo,
		cache:    opts.Cache,
		cacheTTL: ttl,
		config:   cfg,
		clock:    opts.Clock,
		logger:   componentLogger(opts.Logger, "job_service"),
		metrics:  opts.Metrics,
	}, nil
}

// Create posts a job owned by the caller.
func (s *JobService) Create(
	ctx context.Context,
	caller domainauth.Caller,
	req *model.CreateJobRequest,
) (job *model.Job, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "job.create", start, err) }()

	if err = requireEmployer(caller, "only employers can post jobs"); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	req.Title = plainText(req.Title)
	req.Description = plainText(req.Description)
	req.LocationAddress = plainTextPtr(req.LocationAddress)
	req.Requirements.Skills = plainTextAll(req.Requirements.Skills)
	req.Requirements.Languages = plainTextAll(req.Requirements.Languages)
	req.EmployerID = caller.UserID
	if err = req.Validate(); err != nil {
		return nil, invalid(err)
	}

	now := s.clock.now()
	if req.MaxApplicants == 0 {
		req.MaxApplicants = s.config.DefaultMaxApplicants
	}
	if req.PositionsAvailable == 0 {
		req.PositionsAvailable = 1
	}
	if req.Status == "" {
		req.Status = model.JobStatusActive
	}
	if req.ExpiresAt == nil {
		req.ExpiresAt = expiryFrom(now, s.config.DefaultJobLifetime)
	} else if !req.ExpiresAt.After(now) {
		return nil, apperrors.ValidationField("expires_at", "expires_at must be in the future")
	}

	job, err = s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.logger.InfoContext(ctx, "job created",
		"job_id", job.ID,
		"employer_id", job.EmployerID,
		"status", job.Status,
	)
	return job, nil
}

// Get returns a job and counts the view once per viewer per hour. viewer
// identifies anonymous callers (usually the client address); signed-in
// callers are identified by user id. Drafts are only visible to their owner.
func (s *JobService) Get(ctx context.Context, caller domainauth.Caller, id, viewer string) (*model.Job, error) {
	jobID, err := parseID(id, core.ErrJobNotFound)
	if err != nil {
		return nil, err
	}
	job, err := s.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	owner := caller.IsAdmin() || (!caller.Anonymous() && job.EmployerID == caller.UserID)
	if job.Status == model.JobStatusDraft && !owner {
		return nil, core.ErrJobNotFound
	}
	job.ApplyExpiry(s.clock.now())

	if !owner && s.countView(ctx, job.ID, viewerKey(caller, viewer)) {
		job.Views++
	}
	return job, nil
}

// Update edits a job on behalf of its owner.
func (s *JobService) Update(
	ctx context.Context,
	caller domainauth.Caller,
	id string,
	req *model.UpdateJobRequest,
) (job *model.Job, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "job.update", start, err) }()

	if err = requireEmployer(caller, "only employers can edit jobs"); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	jobID, err := parseID(id, core.ErrJobNotFound)
	if err != nil {
		return nil, err
	}
	req.Title = plainTextPtr(req.Title)
	req.Description = plainTextPtr(req.Description)
	req.LocationAddress = plainTextPtr(req.LocationAddress)
	if req.Requirements != nil {
		req.Requirements.Skills = plainTextAll(req.Requirements.Skills)
		req.Requirements.Languages = plainTextAll(req.Requirements.Languages)
	}

	now := s.clock.now()
	err = s.tx.WithinTx(ctx, func(r core.TxRepositories) error {
		current, err := r.Jobs.GetForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if !caller.IsAdmin() && current.EmployerID != caller.UserID {
			return apperrors.Forbidden("not authorized to edit this job")
		}
		if req.MaxApplicants != nil && *req.MaxApplicants < current.CurrentApplicants {
			return core.ErrApplicantsOverCap
		}
		if err := req.Validate(current); err != nil {
			return invalid(err)
		}
		if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
			return apperrors.ValidationField("expires_at", "expires_at must be in the future")
		}
		job, err = r.Jobs.Update(ctx, jobID, *req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.InvalidateJob(ctx, jobID)
	job.ApplyExpiry(now)
	s.logger.InfoContext(ctx, "job updated", "job_id", job.ID, "status", job.Status)
	return job, nil
}

// Search lists open jobs matching opts. It needs no caller.
func (s *JobService) Search(
	ctx context.Context,
	opts model.JobSearchOptions,
	page model.Page,
) (model.PageResult[*model.Job], error) {
	opts.EmployerID = nil
	if err := normalizeJobSearch(&opts); err != nil {
		return model.PageResult[*model.Job]{}, err
	}
	return s.search(ctx, opts, page)
}

// ListMine lists the calling employer's jobs in every status.
func (s *JobService) ListMine(
	ctx context.Context,
	caller domainauth.Caller,
	opts model.JobSearchOptions,
	page model.Page,
) (model.PageResult[*model.Job], error) {
	if err := requireEmployer(caller, "only employers have job listings"); err != nil {
		return model.PageResult[*model.Job]{}, err
	}
	id := caller.UserID
	opts.EmployerID = &id
	if err := normalizeJobSearch(&opts); err != nil {
		return model.PageResult[*model.Job]{}, err
	}
	return s.search(ctx, opts, page)
}

func (s *JobService) search(
	ctx context.Context,
	opts model.JobSearchOptions,
	page model.Page,
) (model.PageResult[*model.Job], error) {
	now := s.clock.now()
	page = page.Normalize()
	opts.Limit, opts.Offset = page.Limit, page.Offset()
	opts.Now = now

	res, err := listAndCount(ctx, page,
		func(ctx context.Context) ([]*model.Job, error) { return s.repo.Search(ctx, opts) },
		func(ctx context.Context) (int, error) { return s.repo.Count(ctx, opts) },
	)
	if err != nil {
		return res, err
	}
	for _, j := range res.Items {
		j.ApplyExpiry(now)
	}
	return res, nil
}

// Save bookmarks a job for the calling worker. Saving twice is a no-op and
// reports false.
func (s *JobService) Save(ctx context.Context, caller domainauth.Caller, id string) (bool, error) {
	jobID, err := s.savable(ctx, caller, id)
	if err != nil {
		return false, err
	}
	saved, err := s.repo.Save(ctx, caller.UserID, jobID)
	if err != nil {
		return false, err
	}
	if saved {
		s.InvalidateJob(ctx, jobID)
	}
	return saved, nil
}

// Unsave removes a bookmark. Removing a missing bookmark reports false.
func (s *JobService) Unsave(ctx context.Context, caller domainauth.Caller, id string) (bool, error) {
	jobID, err := s.savable(ctx, caller, id)
	if err != nil {
		return false, err
	}
	removed, err := s.repo.Unsave(ctx, caller.UserID, jobID)
	if err != nil {
		return false, err
	}
	if removed {
		s.InvalidateJob(ctx, jobID)
	}
	return removed, nil
}

// ListSaved lists the calling worker's bookmarked jobs, newest bookmark first.
func (s *JobService) ListSaved(ctx context.Context, caller domainauth.Caller, page model.Page) ([]*model.Job, error) {
	if err := requireWorker(caller, "only workers can save jobs"); err != nil {
		return nil, err
	}
	page = page.Normalize()
	jobs, err := s.repo.ListSaved(ctx, caller.UserID, page.Limit, page.Offset())
	if err != nil {
		return nil, err
	}
	now := s.clock.now()
	for _, j := range jobs {
		j.ApplyExpiry(now)
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	return jobs, nil
}

func (s *JobService) savable(ctx context.Context, caller domainauth.Caller, id string) (string, error) {
	if err := requireWorker(caller, "only workers can save jobs"); err != nil {
		return "", err
	}
	jobID, err := parseID(id, core.ErrJobNotFound)
	if err != nil {
		return "", err
	}
	job, err := s.load(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.Status == model.JobStatusDraft {
		return "", core.ErrJobNotFound
	}
	return jobID, nil
}

// load reads a job through the document cache.
func (s *JobService) load(ctx context.Context, id string) (*model.Job, error) {
	if job := s.getCached(ctx, id); job != nil {
		return job, nil
	}
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.setCached(ctx, job)
	return job, nil
}

// countView reports whether this viewer's visit was counted.
func (s *JobService) countView(ctx context.Context, jobID, viewer string) bool {
	if s.cache != nil && viewer != "" {
		first, err := s.cache.SetIfNotExists(ctx, core.JobViewKey(jobID, viewer), []byte("1"), viewDedupeWindow)
		if err != nil {
			s.logger.WarnContext(ctx, "view dedupe unavailable", "job_id", jobID, "error", err)
		} else if !first {
			return false
		}
	}
	if err := s.repo.IncrementViews(ctx, jobID); err != nil {
		s.logger.WarnContext(ctx, "failed to count job view", "job_id", jobID, "error", err)
		return false
	}
	s.InvalidateJob(ctx, jobID)
	if s.metrics != nil {
		s.metrics.Count("job.view", 1, nil)
	}
	return true
}

func (s *JobService) getCached(ctx context.Context, id string) *model.Job {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, core.JobKey(id))
	if err != nil || raw == nil {
		return nil
	}
	var job model.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		s.logger.WarnContext(ctx, "discarding undecodable cached job", "job_id", id, "error", err)
		return nil
	}
	return &job
}

func (s *JobService) setCached(ctx context.Context, job *model.Job) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, core.JobKey(job.ID), raw, s.cacheTTL); err != nil {
		s.logger.DebugContext(ctx, "job cache write failed", "job_id", job.ID, "error", err)
	}
}

// InvalidateJob drops the cached documents of jobIDs. Callers that change job
// counters outside this service call it after their transaction commits.
func (s *JobService) InvalidateJob(ctx context.Context, jobIDs ...string) {
	if s.cache == nil {
		return
	}
	for _, id := range jobIDs {
		if id == "" {
			continue
		}
		if _, err := s.cache.Delete(ctx, core.JobKey(id)); err != nil {
			s.logger.WarnContext(ctx, "job cache invalidation failed", "job_id", id, "error", err)
		}
	}
}

func normalizeJobSearch(opts *model.JobSearchOptions) error {
	switch opts.Sort {
	case "":
		opts.Sort = model.JobSortPostedAt
	case model.JobSortPostedAt, model.JobSortSalary:
	default:
		return apperrors.ValidationField("sort", "sort must be posted_at or salary_max")
	}
	opts.Dir = strings.ToLower(strings.TrimSpace(opts.Dir))
	switch opts.Dir {
	case "":
		opts.Dir = "desc"
	case "asc", "desc":
	default:
		return apperrors.ValidationField("order", "order must be asc or desc")
	}
	if opts.Category != nil && !opts.Category.Valid() {
		return apperrors.ValidationField("category", "invalid category")
	}
	if opts.JobType != nil && !opts.JobType.Valid() {
		return apperrors.ValidationField("job_type", "invalid job_type")
	}
	if opts.MinSalary != nil && *opts.MinSalary < 0 {
		return apperrors.ValidationField("salary_min", "salary_min must be >= 0")
	}
	if opts.Q != nil {
		q := strings.TrimSpace(*opts.Q)
		if q == "" {
			opts.Q = nil
		} else {
			opts.Q = &q
		}
	}
	return nil
}

func viewerKey(caller domainauth.Caller, viewer string) string {
	if !caller.Anonymous() {
		return "user:" + caller.UserID
	}
	if viewer == "" {
		return ""
	}
	return "anon:" + viewer
}

func requireWorker(caller domainauth.Caller, msg string) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if !caller.IsWorker() {
		return apperrors.Forbidden(msg)
	}
	return nil
}
