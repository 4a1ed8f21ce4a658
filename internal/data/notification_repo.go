package data

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kaamsathi/kaamsathi-api/internal/core"
	"github.com/kaamsathi/kaamsathi-api/internal/data/database"
	"github.com/kaamsathi/kaamsathi-api/internal/data/pgxutil"
	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
)

var notificationColumnList = []string{
	"id", "recipient_id", "sender_id", "type", "title", "message", "data", "action_url", "priority",
	"is_read", "read_at", "is_deleted", "deleted_at", "expires_at", "delivered_at", "created_at",
}

var notificationColumns = strings.Join(notificationColumnList, ", ")

const defaultNotificationLimit = 20

// NotificationRepo provides database operations for notifications.
type NotificationRepo struct {
	exec         pgxutil.Executor
	timeProvider TimeProvider
}

// NewNotificationRepo creates a new NotificationRepo with real time provider.
func NewNotificationRepo(db *sql.DB) *NotificationRepo {
	return &NotificationRepo{exec: pgxutil.NewExecutor(db), timeProvider: RealTimeProvider{}}
}

// NewNotificationRepoWithTimeProvider creates a new NotificationRepo with a custom time provider (useful for tests).
func NewNotificationRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *NotificationRepo {
	return &NotificationRepo{exec: pgxutil.NewExecutor(db), timeProvider: tp}
}

func newNotificationRepo(exec pgxutil.Executor, tp TimeProvider) *NotificationRepo {
	return &NotificationRepo{exec: exec, timeProvider: tp}
}

// Create inserts a notification.
func (r *NotificationRepo) Create(
	ctx context.Context,
	req *model.CreateNotificationRequest,
) (*model.Notification, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var out model.Notification
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		rows, err := q.Query(ctx, `
			INSERT INTO notifications (
				recipient_id, sender_id, type, title, message, data, action_url, priority, expires_at,
				created_at, next_attempt_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
			RETURNING `+notificationColumns,
			req.RecipientID, req.SenderID, req.Type, req.Title, req.Message, req.Data, req.ActionURL,
			req.Priority, req.ExpiresAt, r.timeProvider.Now().UTC(),
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Notification])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", mapWriteErr(err))
	}
	return &out, nil
}

// List retrieves a recipient's visible notifications, newest first.
func (r *NotificationRepo) List(
	ctx context.Context,
	opts model.NotificationListOptions,
) ([]*model.Notification, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	query, args := database.BuildListQuery(database.NewListQueryOptions("notifications",
		database.WithColumns(notificationColumnList...),
		database.WithConditions(r.visibleConditions(opts)...),
		database.WithOrderBy("created_at", "DESC"),
		database.WithLimit(limit),
		database.WithOffset(max(opts.Offset, 0)),
	))

	var rowsOut []model.Notification
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		rows, err := q.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.Notification])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return toPtrs(rowsOut), nil
}

// Count returns the number of visible notifications matching opts.
func (r *NotificationRepo) Count(ctx context.Context, opts model.NotificationListOptions) (int, error) {
	query, args := database.BuildListQuery(database.NewListQueryOptions("notifications",
		database.WithCountOnly(),
		database.WithConditions(r.visibleConditions(opts)...),
	))
	var n int
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		return q.QueryRow(ctx, query, args...).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return n, nil
}

func (r *NotificationRepo) visibleConditions(opts model.NotificationListOptions) []database.Condition {
	now := opts.Now
	if now.IsZero() {
		now = r.timeProvider.Now()
	}
	conds := []database.Condition{
		database.WhereCond("recipient_id", database.Equal, opts.RecipientID),
		database.WhereCond("is_deleted", database.Equal, false),
		database.WhereRawCond("(expires_at IS NULL OR expires_at > $1)", now.UTC()),
	}
	if opts.UnreadOnly {
		conds = append(conds, database.WhereCond("is_read", database.Equal, false))
	}
	if opts.Type != nil {
		conds = append(conds, database.WhereCond("type", database.Equal, *opts.Type))
	}
	return conds
}

// MarkRead marks the given notifications read, or every unread one when ids is empty.
func (r *NotificationRepo) MarkRead(ctx context.Context, recipientID string, ids []string) (int, error) {
	now := r.timeProvider.Now().UTC()
	query := `
		UPDATE notifications SET is_read = TRUE, read_at = $2
		WHERE recipient_id = $1 AND is_read = FALSE AND is_deleted = FALSE`
	args := []any{recipientID, now}
	if len(ids) > 0 {
		query += ` AND id = ANY($3::uuid[])`
		args = append(args, ids)
	}
	n, err := r.exec1(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", mapWriteErr(err))
	}
	return int(n), nil
}

// MarkUnread clears the read flag. It reports false when the notification is
// missing, deleted or owned by someone else.
func (r *NotificationRepo) MarkUnread(ctx context.Context, recipientID, id string) (bool, error) {
	n, err := r.exec1(ctx, `
		UPDATE notifications SET is_read = FALSE, read_at = NULL
		WHERE id = $1 AND recipient_id = $2 AND is_deleted = FALSE`,
		id, recipientID)
	if err != nil {
		return false, fmt.Errorf("mark notification unread: %w", mapWriteErr(err))
	}
	return n == 1, nil
}

// SoftDelete hides one notification from its recipient.
func (r *NotificationRepo) SoftDelete(ctx context.Context, recipientID, id string) (bool, error) {
	n, err := r.exec1(ctx, `
		UPDATE notifications SET is_deleted = TRUE, deleted_at = $3
		WHERE id = $1 AND recipient_id = $2 AND is_deleted = FALSE`,
		id, recipientID, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("delete notification: %w", mapWriteErr(err))
	}
	return n == 1, nil
}

// SoftDeleteRead hides every read notification of a recipient.
func (r *NotificationRepo) SoftDeleteRead(ctx context.Context, recipientID string) (int, error) {
	n, err := r.exec1(ctx, `
		UPDATE notifications SET is_deleted = TRUE, deleted_at = $2
		WHERE recipient_id = $1 AND is_read = TRUE AND is_deleted = FALSE`,
		recipientID, r.timeProvider.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete read notifications: %w", err)
	}
	return int(n), nil
}

// ClaimUndelivered locks up to limit due notifications, oldest first.
func (r *NotificationRepo) ClaimUndelivered(ctx context.Context, limit int, now time.Time) ([]*model.Notification, error) {
	if !r.exec.InTx() {
		return nil, errNotInTx("claim notifications")
	}
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	var rowsOut []model.Notification
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		rows, err := q.Query(ctx, `
			SELECT `+notificationColumns+`
			FROM notifications
			WHERE delivered_at IS NULL AND delivery_failed_at IS NULL AND is_deleted = FALSE
			  AND next_attempt_at <= $2
			ORDER BY next_attempt_at, created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED`, limit, now.UTC())
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.Notification])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("claim undelivered notifications: %w", err)
	}
	return toPtrs(rowsOut), nil
}

// MarkDelivered stamps delivered_at on the given notifications.
func (r *NotificationRepo) MarkDelivered(ctx context.Context, ids []string, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := r.exec1(ctx,
		`UPDATE notifications SET delivered_at = $2 WHERE id = ANY($1::uuid[]) AND delivered_at IS NULL`,
		ids, at.UTC())
	if err != nil {
		return 0, fmt.Errorf("mark notifications delivered: %w", err)
	}
	return int(n), nil
}

// MarkDeliveryFailed bumps delivery_attempts and pushes next_attempt_at out
// by the doubled backoff. Rows reaching the attempt limit get
// delivery_failed_at and their ids are returned.
func (r *NotificationRepo) MarkDeliveryFailed(ctx context.Context, ids []string, retry core.DeliveryRetry) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var dead []string
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		rows, err := q.Query(ctx, `
			WITH failed AS (
				UPDATE notifications SET
					delivery_attempts = delivery_attempts + 1,
					next_attempt_at = $2::timestamptz + LEAST(
						$3::bigint * power(2, LEAST(delivery_attempts, 30))::bigint,
						$4::bigint) * interval '1 microsecond',
					delivery_failed_at = CASE WHEN delivery_attempts + 1 >= $5 THEN $2::timestamptz END
				WHERE id = ANY($1::uuid[]) AND delivered_at IS NULL AND delivery_failed_at IS NULL
				RETURNING id, delivery_failed_at
			)
			SELECT id::text FROM failed WHERE delivery_failed_at IS NOT NULL`,
			ids, retry.At.UTC(), retry.Backoff.Microseconds(), retry.MaxBackoff.Microseconds(), retry.MaxAttempts)
		if err != nil {
			return err
		}
		dead, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("mark notification delivery failed: %w", err)
	}
	return dead, nil
}

func (r *NotificationRepo) exec1(ctx context.Context, query string, args ...any) (int64, error) {
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
