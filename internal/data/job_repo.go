package data

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/kaamsathi/kaamsathi-api/internal/core"
	"github.com/kaamsathi/kaamsathi-api/internal/data/database"
	"github.com/kaamsathi/kaamsathi-api/internal/data/pgxutil"
	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
)

const (
	defaultMaxApplicants  = 50
	defaultJobSearchLimit = 10
)

// jobColumnList is the column set scanned into model.Job.
var jobColumnList = []string{
	"id", "employer_id", "title", "description", "category", "job_type",
	"salary_min", "salary_max", "salary_period", "location_city", "location_state", "location_address",
	"requirements", "max_applicants", "current_applicants", "positions_available", "positions_filled",
	"status", "is_active", "views", "applications", "saves", "is_urgent",
	"posted_at", "expires_at", "created_at", "updated_at",
}

var (
	jobColumns          = strings.Join(jobColumnList, ", ")
	jobQualifiedColumns = "j." + strings.Join(jobColumnList, ", j.")
)

// JobRepo provides database operations for job postings and their counters.
type JobRepo struct {
	exec         pgxutil.Executor
	timeProvider TimeProvider
}

// NewJobRepo creates a new JobRepo with real time provider.
func NewJobRepo(db *sql.DB) *JobRepo {
	return &JobRepo{exec: pgxutil.NewExecutor(db), timeProvider: RealTimeProvider{}}
}

// NewJobRepoWithTimeProvider creates a new JobRepo with a custom time provider (useful for tests).
func NewJobRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *JobRepo {
	return &JobRepo{exec: pgxutil.NewExecutor(db), timeProvider: tp}
}

func newJobRepo(exec pgxutil.Executor, tp TimeProvider) *JobRepo {
	return &JobRepo{exec: exec, timeProvider: tp}
}

// Create inserts a new job. EmployerID must already be set by the caller.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.EmployerID == "" {
		return nil, fmt.Errorf("create job: employer_id is required")
	}

	now := r.timeProvider.Now().UTC()
	maxApplicants := req.MaxApplicants
	if maxApplicants == 0 {
		maxApplicants = defaultMaxApplicants
	}
	positions := req.PositionsAvailable
	if positions == 0 {
		positions = 1
	}
	status := req.Status
	if status == "" {
		status = model.JobStatusActive
	}
	expiresAt := now.Add(model.DefaultJobLifetime)
	if req.ExpiresAt != nil {
		expiresAt = req.ExpiresAt.UTC()
	}

	var out model.Job
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		rows, err := q.Query(ctx, `
			INSERT INTO jobs (
				employer_id, title, description, category, job_type, salary_min, salary_max, salary_period,
				location_city, location_state, location_address, requirements, max_applicants,
				positions_available, status, is_urgent, posted_at, expires_at, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $17, $17
			) RETURNING `+jobColumns,
			req.EmployerID,
			req.Title,
			strings.TrimSpace(req.Description),
			req.Category,
			req.JobType,
			req.SalaryMin,
			req.SalaryMax,
			req.SalaryPeriod,
			strings.TrimSpace(req.LocationCity),
			strings.TrimSpace(req.LocationState),
			req.LocationAddress,
			req.Requirements,
			maxApplicants,
			positions,
			status,
			req.IsUrgent,
			now,
			expiresAt,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Job])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create job: %w", mapWriteErr(err))
	}
	return &out, nil
}

// GetByID retrieves a job by ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	return r.getOne(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
}

// GetForUpdate retrieves a job and locks its row until the transaction ends.
func (r *JobRepo) GetForUpdate(ctx context.Context, id string) (*model.Job, error) {
	if !r.exec.InTx() {
		return nil, errNotInTx("lock job")
	}
	return r.getOne(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id)
}

func (r *JobRepo) getOne(ctx context.Context, query, id string) (*model.Job, error) {
	var out model.Job
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		rows, err := q.Query(ctx, query, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Job])
		return err
	})
	if err != nil {
		return nil, mapReadErr(err, core.ErrJobNotFound)
	}
	return &out, nil
}

// Update applies a partial update to a job.
func (r *JobRepo) Update(ctx context.Context, id string, req model.UpdateJobRequest) (*model.Job, error) {
	setClause, args := r.buildUpdateClause(req)
	if setClause == "" {
		return r.GetByID(ctx, id)
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE jobs SET %s WHERE id = $%d RETURNING %s", setClause, len(args), jobColumns)

	var out model.Job
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		rows, err := q.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Job])
		return err
	})
	if err != nil {
		return nil, mapUpdateErr(err, core.ErrJobNotFound)
	}
	return &out, nil
}

// buildUpdateClause builds the SQL SET clause and args for updating a job based on the request.
func (r *JobRepo) buildUpdateClause(req model.UpdateJobRequest) (string, []any) {
	setParts := make([]string, 0, 12)
	args := make([]any, 0, 13)
	add := func(col string, v any) {
		args = append(args, v)
		setParts = append(setParts, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if req.Title != nil {
		add("title", strings.TrimSpace(*req.Title))
	}
	if req.Description != nil {
		add("description", strings.TrimSpace(*req.Description))
	}
	if req.SalaryMin != nil {
		add("salary_min", *req.SalaryMin)
	}
	if req.SalaryMax != nil {
		add("salary_max", *req.SalaryMax)
	}
	if req.LocationAddress != nil {
		add("location_address", *req.LocationAddress)
	}
	if req.Requirements != nil {
		add("requirements", *req.Requirements)
	}
	if req.MaxApplicants != nil {
		add("max_applicants", *req.MaxApplicants)
	}
	if req.PositionsAvailable != nil {
		add("positions_available", *req.PositionsAvailable)
	}
	if req.Status != nil {
		add("status", *req.Status)
	}
	if req.IsUrgent != nil {
		add("is_urgent", *req.IsUrgent)
	}
	if req.ExpiresAt != nil {
		add("expires_at", req.ExpiresAt.UTC())
	}
	if len(setParts) == 0 {
		return "", nil
	}
	add("updated_at", r.timeProvider.Now().UTC())
	return strings.Join(setParts, ", "), args
}

// Search lists jobs matching opts.
func (r *JobRepo) Search(ctx context.Context, opts model.JobSearchOptions) ([]*model.Job, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultJobSearchLimit
	}
	offset := max(opts.Offset, 0)

	qopts := []database.ListQueryOption{
		database.WithColumns(jobColumnList...),
		database.WithConditions(r.searchConditions(opts)...),
		database.WithLimit(limit),
		database.WithOffset(offset),
	}
	qopts = append(qopts, jobOrder(opts))
	query, args := database.BuildListQuery(database.NewListQueryOptions("jobs", qopts...))

	var rowsOut []model.Job
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		rows, err := q.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.Job])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search jobs: %w", err)
	}
	return toPtrs(rowsOut), nil
}

// Count returns the number of jobs matching opts, ignoring paging.
func (r *JobRepo) Count(ctx context.Context, opts model.JobSearchOptions) (int, error) {
	query, args := database.BuildListQuery(database.NewListQueryOptions("jobs",
		database.WithCountOnly(),
		database.WithConditions(r.searchConditions(opts)...),
	))
	var n int
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		return q.QueryRow(ctx, query, args...).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return n, nil
}

func (r *JobRepo) searchConditions(opts model.JobSearchOptions) []database.Condition {
	conds := make([]database.Condition, 0, 8)
	if opts.EmployerID != nil {
		conds = append(conds, database.WhereCond("employer_id", database.Equal, *opts.EmployerID))
	} else {
		now := opts.Now
		if now.IsZero() {
			now = r.timeProvider.Now()
		}
		conds = append(conds,
			database.WhereCond("status", database.Equal, model.JobStatusActive),
			database.WhereCond("is_active", database.Equal, true),
			database.WhereCond("expires_at", database.GreaterThan, now.UTC()),
		)
	}
	if opts.Q != nil && strings.TrimSpace(*opts.Q) != "" {
		conds = append(conds, database.WhereTextMatch(*opts.Q, "title", "description"))
	}
	if opts.Category != nil {
		conds = append(conds, database.WhereCond("category", database.Equal, *opts.Category))
	}
	if opts.JobType != nil {
		conds = append(conds, database.WhereCond("job_type", database.Equal, *opts.JobType))
	}
	if opts.City != nil && strings.TrimSpace(*opts.City) != "" {
		conds = append(conds, database.WhereCond("location_city", database.ILike, strings.TrimSpace(*opts.City)))
	}
	if opts.State != nil && strings.TrimSpace(*opts.State) != "" {
		conds = append(conds, database.WhereCond("location_state", database.ILike, strings.TrimSpace(*opts.State)))
	}
	if opts.MinSalary != nil {
		conds = append(conds, database.WhereCond("salary_max", database.GreaterThanOrEqual, *opts.MinSalary))
	}
	if opts.UrgentOnly {
		conds = append(conds, database.WhereCond("is_urgent", database.Equal, true))
	}
	return conds
}

func jobOrder(opts model.JobSearchOptions) database.ListQueryOption {
	col := string(model.JobSortPostedAt)
	if opts.Sort == model.JobSortSalary {
		col = string(model.JobSortSalary)
	}
	dir := "DESC"
	if strings.EqualFold(opts.Dir, "asc") {
		dir = "ASC"
	}
	return database.WithOrderBy(col, dir)
}

// IncrementViews bumps the view counter.
func (r *JobRepo) IncrementViews(ctx context.Context, id string) error {
	return r.execOne(ctx, core.ErrJobNotFound, `UPDATE jobs SET views = views + 1 WHERE id = $1`, id)
}

// ReserveApplicantSlot takes one applicant slot if the job is not full.
func (r *JobRepo) ReserveApplicantSlot(ctx context.Context, id string) (bool, error) {
	n, err := r.exec1(ctx, `
		UPDATE jobs
		SET current_applicants = current_applicants + 1,
		    applications = applications + 1,
		    updated_at = $2
		WHERE id = $1 AND current_applicants < max_applicants`,
		id, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("reserve applicant slot: %w", err)
	}
	return n == 1, nil
}

// ReleaseApplicantSlot frees one applicant slot, never going below zero.
func (r *JobRepo) ReleaseApplicantSlot(ctx context.Context, id string) error {
	return r.execOne(ctx, core.ErrJobNotFound, `
		UPDATE jobs
		SET current_applicants = GREATEST(current_applicants - 1, 0),
		    updated_at = $2
		WHERE id = $1`,
		id, r.timeProvider.Now().UTC())
}

// IncrementPositionsFilled records a hire against the job.
func (r *JobRepo) IncrementPositionsFilled(ctx context.Context, id string) error {
	return r.execOne(ctx, core.ErrJobNotFound, `
		UPDATE jobs
		SET positions_filled = positions_filled + 1,
		    updated_at = $2
		WHERE id = $1`,
		id, r.timeProvider.Now().UTC())
}

// Save bookmarks a job for userID. It reports false when already saved.
func (r *JobRepo) Save(ctx context.Context, userID, jobID string) (bool, error) {
	n, err := r.exec1(ctx, `
		WITH ins AS (
			INSERT INTO saved_jobs (user_id, job_id, created_at) VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
			RETURNING job_id
		)
		UPDATE jobs SET saves = saves + 1 WHERE id IN (SELECT job_id FROM ins)`,
		userID, jobID, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("save job: %w", mapWriteErr(err))
	}
	return n == 1, nil
}

// Unsave removes a bookmark. It reports false when nothing was saved.
func (r *JobRepo) Unsave(ctx context.Context, userID, jobID string) (bool, error) {
	n, err := r.exec1(ctx, `
		WITH del AS (
			DELETE FROM saved_jobs WHERE user_id = $1 AND job_id = $2
			RETURNING job_id
		)
		UPDATE jobs SET saves = GREATEST(saves - 1, 0) WHERE id IN (SELECT job_id FROM del)`,
		userID, jobID)
	if err != nil {
		return false, fmt.Errorf("unsave job: %w", err)
	}
	return n == 1, nil
}

// ListSaved lists a user's bookmarked jobs, most recently saved first.
func (r *JobRepo) ListSaved(ctx context.Context, userID string, limit, offset int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = defaultJobSearchLimit
	}
	var rowsOut []model.Job
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		rows, err := q.Query(ctx, `
			SELECT `+jobQualifiedColumns+`
			FROM saved_jobs s
			JOIN jobs j ON j.id = s.job_id
			WHERE s.user_id = $1
			ORDER BY s.created_at DESC
			LIMIT $2 OFFSET $3`,
			userID, limit, max(offset, 0))
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.Job])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list saved jobs: %w", err)
	}
	return toPtrs(rowsOut), nil
}

// exec1 runs a statement and returns the affected row count.
func (r *JobRepo) exec1(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		ct, err := q.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		n = ct.RowsAffected()
		return nil
	})
	return n, err
}

// execOne runs a statement that must touch exactly one row.
func (r *JobRepo) execOne(ctx context.Context, notFound error, query string, args ...any) error {
	n, err := r.exec1(ctx, query, args...)
	if err != nil {
		return mapWriteErr(err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
