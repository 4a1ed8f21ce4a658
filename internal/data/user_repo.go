package data

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/kaamsathi/kaamsathi-api/internal/core"
	"github.com/kaamsathi/kaamsathi-api/internal/data/pgxutil"
	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
)

const userColumns = `id, external_id, user_type, name, email, phone, is_phone_verified, is_email_verified,
	is_active, is_blocked, worker_profile, employer_profile, last_login_at, created_at, updated_at`

// UserRepo provides database operations for users.
type UserRepo struct {
	exec         pgxutil.Executor
	timeProvider TimeProvider
}

// NewUserRepo creates a new UserRepo with real time provider.
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{exec: pgxutil.NewExecutor(db), timeProvider: RealTimeProvider{}}
}

// NewUserRepoWithTimeProvider creates a new UserRepo with a custom time provider (useful for tests).
func NewUserRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *UserRepo {
	return &UserRepo{exec: pgxutil.NewExecutor(db), timeProvider: tp}
}

func newUserRepo(exec pgxutil.Executor, tp TimeProvider) *UserRepo {
	return &UserRepo{exec: exec, timeProvider: tp}
}

// Upsert inserts the user on first login and refreshes last_login_at after that.
// An existing row keeps its user_type and name.
func (r *UserRepo) Upsert(ctx context.Context, req *model.UpsertUserRequest) (*model.User, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := r.timeProvider.Now().UTC()
	var email *string
	if e := strings.TrimSpace(req.Email); e != "" {
		email = &e
	}

	var out model.User
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		rows, err := q.Query(ctx, `
			INSERT INTO users (external_id, user_type, name, email, last_login_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5, $5)
			ON CONFLICT (external_id) DO UPDATE
			SET last_login_at = EXCLUDED.last_login_at,
			    email = COALESCE(users.email, EXCLUDED.email)
			RETURNING `+userColumns,
			req.ExternalID, req.Type, req.Name, email, now,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.User])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", mapWriteErr(err))
	}
	return &out, nil
}

// GetByID retrieves a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByExternalID retrieves a user by IdP subject.
func (r *UserRepo) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE external_id = $1`, externalID)
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg string) (*model.User, error) {
	var out model.User
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		rows, err := q.Query(ctx, query, arg)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.User])
		return err
	})
	if err != nil {
		return nil, mapReadErr(err, core.ErrUserNotFound)
	}
	return &out, nil
}

// UpdateProfile applies a self-service profile edit.
func (r *UserRepo) UpdateProfile(ctx context.Context, id string, req model.UpdateProfileRequest) (*model.User, error) {
	setParts := make([]string, 0, 6)
	args := make([]any, 0, 7)
	add := func(col string, v any) {
		args = append(args, v)
		setParts = append(setParts, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if req.Name != nil {
		add("name", strings.TrimSpace(*req.Name))
	}
	if req.Email != nil {
		add("email", strings.TrimSpace(*req.Email))
		setParts = append(setParts, "is_email_verified = FALSE")
	}
	if req.Phone != nil {
		add("phone", strings.TrimSpace(*req.Phone))
		setParts = append(setParts, "is_phone_verified = FALSE")
	}
	if req.WorkerProfile != nil {
		add("worker_profile", req.WorkerProfile)
	}
	if req.EmployerProfile != nil {
		add("employer_profile", req.EmployerProfile)
	}
	if len(setParts) == 0 {
		return r.GetByID(ctx, id)
	}
	add("updated_at", r.timeProvider.Now().UTC())
	args = append(args, id)
	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d RETURNING %s",
		strings.Join(setParts, ", "), len(args), userColumns)

	return r.updateOne(ctx, query, args...)
}

// SetBlocked flips the is_blocked flag.
func (r *UserRepo) SetBlocked(ctx context.Context, id string, blocked bool) (*model.User, error) {
	return r.updateOne(ctx,
		`UPDATE users SET is_blocked = $1, updated_at = $2 WHERE id = $3 RETURNING `+userColumns,
		blocked, r.timeProvider.Now().UTC(), id)
}

func (r *UserRepo) updateOne(ctx context.Context, query string, args ...any) (*model.User, error) {
	var out model.User
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		rows, err := q.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.User])
		return err
	})
	if err != nil {
		return nil, mapUpdateErr(err, core.ErrUserNotFound)
	}
	return &out, nil
}
