package data

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/kaamsathi/kaamsathi-api/internal/data/pgxutil"
	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
)

const (
	messageColumns      = "id, sender_id, receiver_id, text, attachment_url, is_read, read_at, is_deleted, created_at"
	defaultMessageLimit = 50
)

// MessageRepo provides database operations for direct messages.
type MessageRepo struct {
	exec         pgxutil.Executor
	timeProvider TimeProvider
}

// NewMessageRepo creates a new MessageRepo with real time provider.
func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{exec: pgxutil.NewExecutor(db), timeProvider: RealTimeProvider{}}
}

// NewMessageRepoWithTimeProvider creates a new MessageRepo with a custom time provider (useful for tests).
func NewMessageRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *MessageRepo {
	return &MessageRepo{exec: pgxutil.NewExecutor(db), timeProvider: tp}
}

func newMessageRepo(exec pgxutil.Executor, tp TimeProvider) *MessageRepo {
	return &MessageRepo{exec: exec, timeProvider: tp}
}

// Create inserts a direct message from senderID.
func (r *MessageRepo) Create(
	ctx context.Context,
	senderID string,
	req *model.SendMessageRequest,
) (*model.Message, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	var out model.Message
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		rows, err := q.Query(ctx, `
			INSERT INTO messages (sender_id, receiver_id, text, attachment_url, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+messageColumns,
			senderID, req.ReceiverID, strings.TrimSpace(req.Text), req.AttachmentURL, r.timeProvider.Now().UTC(),
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Message])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create message: %w", mapWriteErr(err))
	}
	return &out, nil
}

// Conversation lists the messages exchanged between two users, newest first.
func (r *MessageRepo) Conversation(ctx context.Context, opts model.ConversationOptions) ([]*model.Message, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultMessageLimit
	}
	var rowsOut []model.Message
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		rows, err := q.Query(ctx, `
			SELECT `+messageColumns+`
			FROM messages
			WHERE ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
			  AND is_deleted = FALSE
			ORDER BY created_at DESC, id
			LIMIT $3 OFFSET $4`,
			opts.UserID, opts.OtherUserID, limit, max(opts.Offset, 0))
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.Message])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return toPtrs(rowsOut), nil
}

// CountConversation counts the visible messages between two users.
func (r *MessageRepo) CountConversation(ctx context.Context, opts model.ConversationOptions) (int, error) {
	var n int
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		return q.QueryRow(ctx, `
			SELECT COUNT(*)
			FROM messages
			WHERE ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
			  AND is_deleted = FALSE`,
			opts.UserID, opts.OtherUserID).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count conversation: %w", err)
	}
	return n, nil
}

const conversationsQuery = `
	WITH mine AS (
		SELECT m.*,
		       CASE WHEN m.sender_id = $1 THEN m.receiver_id ELSE m.sender_id END AS other_user_id
		FROM messages m
		WHERE (m.sender_id = $1 OR m.receiver_id = $1) AND m.is_deleted = FALSE
	),
	unread AS (
		SELECT other_user_id, COUNT(*) AS n
		FROM mine
		WHERE receiver_id = $1 AND is_read = FALSE
		GROUP BY other_user_id
	)
	SELECT DISTINCT ON (mine.other_user_id)
	       mine.other_user_id, mine.id, mine.sender_id, mine.receiver_id, mine.text, mine.attachment_url,
	       mine.is_read, mine.read_at, mine.is_deleted, mine.created_at, COALESCE(unread.n, 0)
	FROM mine
	LEFT JOIN unread ON unread.other_user_id = mine.other_user_id
	ORDER BY mine.other_user_id, mine.created_at DESC`

// Conversations returns one summary per counterpart, most recent conversation first.
func (r *MessageRepo) Conversations(ctx context.Context, userID string) ([]*model.ConversationSummary, error) {
	var out []*model.ConversationSummary
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		rows, err := q.Query(ctx, conversationsQuery, userID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var s model.ConversationSummary
			m := &s.LastMessage
			if err := rows.Scan(&s.OtherUserID, &m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &m.AttachmentURL,
				&m.IsRead, &m.ReadAt, &m.IsDeleted, &m.CreatedAt, &s.UnreadCount); err != nil {
				return err
			}
			s.ConversationID = model.ConversationID(userID, s.OtherUserID)
			out = append(out, &s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessage.CreatedAt.After(out[j].LastMessage.CreatedAt)
	})
	return out, nil
}

// MarkConversationRead marks messages from otherUserID to userID as read.
func (r *MessageRepo) MarkConversationRead(ctx context.Context, userID, otherUserID string) (int, error) {
	var n int64
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		ct, err := q.Exec(ctx, `
			UPDATE messages SET is_read = TRUE, read_at = $3
			WHERE receiver_id = $1 AND sender_id = $2 AND is_read = FALSE AND is_deleted = FALSE`,
			userID, otherUserID, r.timeProvider.Now().UTC())
		if err != nil {
			return err
		}
		n = ct.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	return int(n), nil
}

// SoftDelete hides a message. Only its sender may delete it.
func (r *MessageRepo) SoftDelete(ctx context.Context, senderID, id string) (bool, error) {
	var n int64
	err := r.exec.Run(ctx, func(q pgxutil.Querier) error {
		ct, err := q.Exec(ctx,
			`UPDATE messages SET is_deleted = TRUE WHERE id = $1 AND sender_id = $2 AND is_deleted = FALSE`,
			id, senderID)
		if err != nil {
			return err
		}
		n = ct.RowsAffected()
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	return n == 1, nil
}
