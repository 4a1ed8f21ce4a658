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

var applicationColumnList = []string{
	"id", "job_id", "applicant_id", "employer_id", "status", "cover_letter", "expected_salary",
	"availability", "work_schedule", "skills", "experience_summary", "interview", "offer", "evaluation",
	"is_withdrawn", "withdrawn_at", "withdrawn_reason", "last_updated", "created_at",
}

var applicationColumns = strings.Join(applicationColumnList, ", ")

const (
	historyColumns            = "id, application_id, status, changed_at, changed_by, reason, notes"
	applicationMessageColumns = "id, application_id, sender_id, text, is_read, created_at"
	defaultApplicationLimit   = 10
)

// ApplicationRepo provides database operations for applications and their
// status history and messages.
type ApplicationRepo struct {
	exec         pgxutil.Executor
	timeProvider TimeProvider
}

// NewApplicationRepo creates a new ApplicationRepo with real time provider.
func NewApplicationRepo(db *sql.DB) *ApplicationRepo {
	return &ApplicationRepo{exec: pgxutil.NewExecutor(db), timeProvider: RealTimeProvider{}}
}

// NewApplicationRepoWithTimeProvider creates a new ApplicationRepo with a custom time provider (useful for tests).
func NewApplicationRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *ApplicationRepo {
	return &ApplicationRepo{exec: pgxutil.NewExecutor(db), timeProvider: tp}
}

func newApplicationRepo(exec pgxutil.Executor, tp TimeProvider) *ApplicationRepo {
	return &ApplicationRepo{exec: exec, timeProvider: tp}
}

// Create inserts an application. A second application for the same job and
// applicant fails with core.ErrDuplicateApplication.
func (r *ApplicationRepo) Create(ctx context.Context, app *model.Application) (*model.Application, error) {
	if app == nil {
		return nil, ErrNilRequest
	}
	now := r.timeProvider.Now().UTC()
	if app.Status == "" {
		app.Status = model.ApplicationStatusApplied
	}
	skills := app.Skills
	if skills == nil {
		skills = []string{}
	}

	var out model.Application
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		rows, err := q.Query(ctx, `
			INSERT INTO applications (
				job_id, applicant_id, employer_id, status, cover_letter, expected_salary, availability,
				work_schedule, skills, experience_summary, last_updated, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
			RETURNING `+applicationColumns,
			app.JobID, app.ApplicantID, app.EmployerID, app.Status, app.CoverLetter, app.ExpectedSalary,
			app.Availability, app.WorkSchedule, skills, app.ExperienceSummary, now,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Application])
		return err
	})
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return &out, nil
}

// GetByID retrieves an application with its status history and messages.
func (r *ApplicationRepo) GetByID(ctx context.Context, id string) (*model.Application, error) {
	var out model.Application
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		rows, err := q.Query(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)
		if err != nil {
			return err
		}
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Application])
		if err != nil {
			return err
		}
		if out.StatusHistory, err = queryHistory(ctx, q, id); err != nil {
			return err
		}
		out.Messages, err = queryApplicationMessages(ctx, q, id)
		return err
	})
	if err != nil {
		return nil, mapReadErr(err, core.ErrApplicationNotFound)
	}
	return &out, nil
}

// GetForUpdate locks the application row until the transaction ends.
func (r *ApplicationRepo) GetForUpdate(ctx context.Context, id string) (*model.Application, error) {
	if !r.exec.InTx() {
		return nil, errNotInTx("lock application")
	}
	var out model.Application
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		rows, err := q.Query(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Application])
		return err
	})
	if err != nil {
		return nil, mapReadErr(err, core.ErrApplicationNotFound)
	}
	return &out, nil
}

// ExistsForApplicant reports whether applicantID already applied to jobID.
func (r *ApplicationRepo) ExistsForApplicant(ctx context.Context, jobID, applicantID string) (bool, error) {
	var exists bool
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		return q.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM applications WHERE job_id = $1 AND applicant_id = $2)`,
			jobID, applicantID).Scan(&exists)
	})
	if err != nil {
		return false, fmt.Errorf("check existing application: %w", err)
	}
	return exists, nil
}

// List retrieves applications matching opts, newest first.
func (r *ApplicationRepo) List(ctx context.Context, opts model.ApplicationListOptions) ([]*model.Application, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultApplicationLimit
	}
	query, args := database.BuildListQuery(database.NewListQueryOptions("applications",
		database.WithColumns(applicationColumnList...),
		database.WithConditions(applicationConditions(opts)...),
		database.WithOrderBy("created_at", "DESC"),
		database.WithLimit(limit),
		database.WithOffset(max(opts.Offset, 0)),
	))

	var rowsOut []model.Application
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		rows, err := q.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.Application])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	return toPtrs(rowsOut), nil
}

// Count returns the number of applications matching opts, ignoring paging.
func (r *ApplicationRepo) Count(ctx context.Context, opts model.ApplicationListOptions) (int, error) {
	query, args := database.BuildListQuery(database.NewListQueryOptions("applications",
		database.WithCountOnly(),
		database.WithConditions(applicationConditions(opts)...),
	))
	var n int
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		return q.QueryRow(ctx, query, args...).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count applications: %w", err)
	}
	return n, nil
}

// CountByStatus groups the applications matching opts by status.
func (r *ApplicationRepo) CountByStatus(
	ctx context.Context,
	opts model.ApplicationListOptions,
) (map[model.ApplicationStatus]int, error) {
	opts.Status = nil
	inner, args := database.BuildListQuery(database.NewListQueryOptions("applications",
		database.WithColumns("status"),
		database.WithConditions(applicationConditions(opts)...),
	))
	query := "SELECT status, COUNT(*) FROM (" + inner + ") scoped GROUP BY status"

	out := make(map[model.ApplicationStatus]int)
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		rows, err := q.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				status model.ApplicationStatus
				n      int
			)
			if err := rows.Scan(&status, &n); err != nil {
				return err
			}
			out[status] = n
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count applications by status: %w", err)
	}
	return out, nil
}

func applicationConditions(opts model.ApplicationListOptions) []database.Condition {
	conds := make([]database.Condition, 0, 4)
	if opts.ApplicantID != nil {
		conds = append(conds, database.WhereCond("applicant_id", database.Equal, *opts.ApplicantID))
	}
	if opts.EmployerID != nil {
		conds = append(conds, database.WhereCond("employer_id", database.Equal, *opts.EmployerID))
	}
	if opts.JobID != nil {
		conds = append(conds, database.WhereCond("job_id", database.Equal, *opts.JobID))
	}
	if opts.Status != nil {
		conds = append(conds, database.WhereCond("status", database.Equal, *opts.Status))
	}
	return conds
}

// Update persists the mutable workflow fields of app and bumps last_updated.
func (r *ApplicationRepo) Update(ctx context.Context, app *model.Application) error {
	if app == nil {
		return ErrNilRequest
	}
	app.LastUpdated = r.timeProvider.Now().UTC()
	var n int64
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		ct, err := q.Exec(ctx, `
			UPDATE applications
			SET status = $1, interview = $2, offer = $3, evaluation = $4, is_withdrawn = $5,
			    withdrawn_at = $6, withdrawn_reason = $7, last_updated = $8
			WHERE id = $9`,
			app.Status, app.Interview, app.Offer, app.Evaluation, app.IsWithdrawn,
			app.WithdrawnAt, app.WithdrawnReason, app.LastUpdated, app.ID,
		)
		if err != nil {
			return err
		}
		n = ct.RowsAffected()
		return nil
	})
	if err != nil {
		return mapWriteErr(err)
	}
	if n == 0 {
		return core.ErrApplicationNotFound
	}
	return nil
}

// AppendHistory appends one status history row and fills entry.ID.
func (r *ApplicationRepo) AppendHistory(ctx context.Context, entry *model.StatusHistoryEntry) error {
	if entry == nil {
		return ErrNilRequest
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = r.timeProvider.Now().UTC()
	}
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		return q.QueryRow(ctx, `
			INSERT INTO application_status_history (application_id, status, changed_at, changed_by, reason, notes)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			entry.ApplicationID, entry.Status, entry.ChangedAt, entry.ChangedBy, entry.Reason, entry.Notes,
		).Scan(&entry.ID)
	})
	if err != nil {
		return fmt.Errorf("append status history: %w", mapWriteErr(err))
	}
	return nil
}

// History returns the status history of an application, oldest first.
func (r *ApplicationRepo) History(ctx context.Context, applicationID string) ([]model.StatusHistoryEntry, error) {
	var out []model.StatusHistoryEntry
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		var err error
		out, err = queryHistory(ctx, q, applicationID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load status history: %w", err)
	}
	return out, nil
}

// AddMessage appends a message to an application.
func (r *ApplicationRepo) AddMessage(
	ctx context.Context,
	msg *model.ApplicationMessage,
) (*model.ApplicationMessage, error) {
	if msg == nil {
		return nil, ErrNilRequest
	}
	var out model.ApplicationMessage
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		rows, err := q.Query(ctx, `
			INSERT INTO application_messages (application_id, sender_id, text, created_at)
			VALUES ($1, $2, $3, $4)
			RETURNING `+applicationMessageColumns,
			msg.ApplicationID, msg.SenderID, msg.Text, r.timeProvider.Now().UTC(),
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.ApplicationMessage])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("add application message: %w", mapWriteErr(err))
	}
	return &out, nil
}

// Messages returns an application's messages, oldest first.
func (r *ApplicationRepo) Messages(ctx context.Context, applicationID string) ([]model.ApplicationMessage, error) {
	var out []model.ApplicationMessage
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		var err error
		out, err = queryApplicationMessages(ctx, q, applicationID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load application messages: %w", err)
	}
	return out, nil
}

// MarkMessagesRead marks every unread message not sent by readerID as read.
func (r *ApplicationRepo) MarkMessagesRead(ctx context.Context, applicationID, readerID string) (int, error) {
	var n int64
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		ct, err := q.Exec(ctx, `
			UPDATE application_messages
			SET is_read = TRUE
			WHERE application_id = $1 AND sender_id <> $2 AND is_read = FALSE`,
			applicationID, readerID)
		if err != nil {
			return err
		}
		n = ct.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("mark application messages read: %w", err)
	}
	return int(n), nil
}

func queryHistory(ctx context.Context, q pgxutil.Querier, applicationID string) ([]model.StatusHistoryEntry, error) {
	rows, err := q.Query(ctx,
		`SELECT `+historyColumns+` FROM application_status_history WHERE application_id = $1 ORDER BY id`,
		applicationID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[model.StatusHistoryEntry])
}

func queryApplicationMessages(
	ctx context.Context,
	q pgxutil.Querier,
	applicationID string,
) ([]model.ApplicationMessage, error) {
	rows, err := q.Query(ctx,
		`SELECT `+applicationMessageColumns+` FROM application_messages WHERE application_id = $1 ORDER BY created_at, id`,
		applicationID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[model.ApplicationMessage])
}
