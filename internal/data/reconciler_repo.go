package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kaamsathi/kaamsathi-api/internal/data/pgxutil"
	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
)

// Advisory lock namespace for reconciler operations.
// Using two-arg pg_try_advisory_xact_lock(major, minor) for proper namespacing.
const (
	advisoryLockReconcilerMajor   = 2000
	advisoryLockReconcileCapacity = 1
	advisoryLockExpireJobs        = 2
	advisoryLockPurgeNotification = 3
)

// ReconcilerRepo implements batch maintenance queries for the background reconciler.
// Each batch runs in its own transaction guarded by an advisory lock so that
// several reconciler instances never work the same batch.
type ReconcilerRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewReconcilerRepo creates a new ReconcilerRepo with real time provider.
func NewReconcilerRepo(db *sql.DB) *ReconcilerRepo {
	return &ReconcilerRepo{DB: db, timeProvider: RealTimeProvider{}}
}

// NewReconcilerRepoWithTimeProvider creates a new ReconcilerRepo with a custom time provider (useful for tests).
func NewReconcilerRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *ReconcilerRepo {
	return &ReconcilerRepo{DB: db, timeProvider: tp}
}

// withLock runs fn in a pgx transaction once the advisory lock minor is held.
// It reports false without calling fn when another instance holds the lock.
func (r *ReconcilerRepo) withLock(ctx context.Context, minor int, fn func(pgx.Tx) error) (bool, error) {
	var locked bool
	err := pgxutil.Tx(ctx, r.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)",
			advisoryLockReconcilerMajor, minor).Scan(&locked); err != nil {
			return fmt.Errorf("acquire advisory lock: %w", err)
		}
		if !locked {
			return nil
		}
		return fn(tx)
	})
	return locked, err
}

// RecountApplicants rewrites current_applicants from the live non-terminal
// applications of up to limit drifted jobs. The recount is clamped to
// max_applicants so the capacity check constraint always holds.
func (r *ReconcilerRepo) RecountApplicants(ctx context.Context, limit int) ([]model.CapacityDrift, error) {
	var out []model.CapacityDrift
	_, err := r.withLock(ctx, advisoryLockReconcileCapacity, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			WITH live AS (
				SELECT j.id AS job_id,
				       j.current_applicants AS stored,
				       j.max_applicants AS max_slots,
				       COUNT(a.id) FILTER (
				           WHERE a.status NOT IN ('hired', 'rejected', 'withdrawn', 'expired')
				       )::int AS recount
				FROM jobs j
				LEFT JOIN applications a ON a.job_id = j.id
				GROUP BY j.id
			),
			drifted AS (
				SELECT job_id, stored, recount, max_slots
				FROM live
				WHERE stored <> LEAST(recount, max_slots)
				ORDER BY job_id
				LIMIT $1
			),
			fixed AS (
				UPDATE jobs j
				SET current_applicants = LEAST(d.recount, d.max_slots), updated_at = $2
				FROM drifted d
				WHERE j.id = d.job_id
				RETURNING j.id
			)
			SELECT d.job_id, d.stored, d.recount, d.max_slots
			FROM drifted d
			JOIN fixed f ON f.id = d.job_id`,
			limit, r.timeProvider.Now().UTC())
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.CapacityDrift])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("recount applicants: %w", err)
	}
	return out, nil
}

// ExpireJobs persists status=expired for active jobs whose expires_at has passed.
func (r *ReconcilerRepo) ExpireJobs(ctx context.Context, now time.Time, limit int) ([]*model.Job, error) {
	var rowsOut []model.Job
	_, err := r.withLock(ctx, advisoryLockExpireJobs, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			UPDATE jobs
			SET status = 'expired', updated_at = $1
			WHERE id IN (
				SELECT id FROM jobs
				WHERE status = 'active' AND expires_at <= $1
				ORDER BY expires_at
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)
			RETURNING `+jobColumns,
			now.UTC(), limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.Job])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("expire jobs: %w", err)
	}
	return toPtrs(rowsOut), nil
}

// EmployerMismatches counts applications whose denormalized employer_id no
// longer matches their job's employer.
func (r *ReconcilerRepo) EmployerMismatches(ctx context.Context) (int, error) {
	var n int
	err := pgxutil.Conn(ctx, r.DB, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx, `
			SELECT COUNT(*)
			FROM applications a
			JOIN jobs j ON j.id = a.job_id
			WHERE a.employer_id <> j.employer_id`).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count employer mismatches: %w", err)
	}
	return n, nil
}

// PurgeNotifications hard-deletes soft-deleted or expired notifications created before before.
func (r *ReconcilerRepo) PurgeNotifications(ctx context.Context, before time.Time, limit int) (int64, error) {
	var purged int64
	_, err := r.withLock(ctx, advisoryLockPurgeNotification, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `
			DELETE FROM notifications
			WHERE id IN (
				SELECT id FROM notifications
				WHERE created_at < $1
				  AND (is_deleted = TRUE OR (expires_at IS NOT NULL AND expires_at <= $2))
				ORDER BY created_at
				LIMIT $3
			)`,
			before.UTC(), r.timeProvider.Now().UTC(), limit)
		if err != nil {
			return err
		}
		purged = ct.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	return purged, nil
}
