package service

import (
	"context"
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

// MessageServiceOptions groups dependencies for MessageService.
type MessageServiceOptions struct {
	Tx      core.UnitOfWork          // Required: message and notification are written together
	Repo    core.MessageRepository   // Required: read path
	Config  config.MarketplaceConfig // Optional: notification lifetime
	Unread  unreadInvalidator        // Optional: drops cached unread counts after commit
	Clock   Clock                    // Optional: defaults to time.Now
	Logger  *slog.Logger             // Optional: structured logger
	Metrics statsd.Sink              // Optional: metrics sink (StatsD-compatible)
}

// MessageService handles direct messages between users.
type MessageService struct {
	tx      core.UnitOfWork
	repo    core.MessageRepository
	config  config.MarketplaceConfig
	unread  unreadInvalidator
	clock   Clock
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewMessageService constructs a new MessageService.
func NewMessageService(opts MessageServiceOptions) (*MessageService, error) {
	if opts.Tx == nil {
		return nil, errors.New("UnitOfWork is required")
	}
	if opts.Repo == nil {
		return nil, errors.New("MessageRepository is required")
	}
	return &MessageService{
		tx:      opts.Tx,
		repo:    opts.Repo,
		config:  opts.Config,
		unread:  opts.Unread,
		clock:   opts.Clock,
		logger:  componentLogger(opts.Logger, "message_service"),
		metrics: opts.Metrics,
	}, nil
}

// Send delivers a direct message and notifies the receiver.
func (s *MessageService) Send(
	ctx context.Context,
	caller domainauth.Caller,
	req *model.SendMessageRequest,
) (msg *model.Message, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "message.send", start, err) }()

	if err = requireCaller(caller); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	req.Text = plainText(req.Text)
	if req.AttachmentURL != nil {
		u := strings.TrimSpace(*req.AttachmentURL)
		req.AttachmentURL = &u
	}
	if err = req.Validate(); err != nil {
		return nil, invalid(err)
	}
	receiverID, err := parseID(req.ReceiverID, core.ErrUserNotFound)
	if err != nil {
		return nil, err
	}
	if receiverID == caller.UserID {
		return nil, apperrors.ValidationField("receiver_id", "cannot send a message to yourself")
	}
	req.ReceiverID = receiverID

	now := s.clock.now()
	err = s.tx.WithinTx(ctx, func(r core.TxRepositories) error {
		if _, err := r.Users.GetByID(ctx, receiverID); err != nil {
			return err
		}
		senderName, err := displayName(ctx, r, caller.UserID)
		if err != nil {
			return err
		}
		msg, err = r.Messages.Create(ctx, caller.UserID, req)
		if err != nil {
			return err
		}
		notice := model.NewDirectMessageNotification(msg, senderName, expiryFrom(now, s.config.NotificationLifetime))
		if _, err := r.Notifications.Create(ctx, &notice); err != nil {
			return fmt.Errorf("notify receiver: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.unread != nil {
		s.unread.InvalidateUnread(ctx, receiverID)
	}
	s.logger.DebugContext(ctx, "direct message sent",
		"message_id", msg.ID,
		"conversation_id", msg.ConversationID(),
	)
	return msg, nil
}

// Conversation pages through the messages between the caller and otherUserID,
// newest first.
func (s *MessageService) Conversation(
	ctx context.Context,
	caller domainauth.Caller,
	otherUserID string,
	page model.Page,
) (model.PageResult[*model.Message], error) {
	if err := requireCaller(caller); err != nil {
		return model.PageResult[*model.Message]{}, err
	}
	other, err := parseID(otherUserID, core.ErrUserNotFound)
	if err != nil {
		return model.PageResult[*model.Message]{}, err
	}
	page = page.Normalize()
	opts := model.ConversationOptions{
		UserID:      caller.UserID,
		OtherUserID: other,
		Limit:       page.Limit,
		Offset:      page.Offset(),
	}
	return listAndCount(ctx, page,
		func(ctx context.Context) ([]*model.Message, error) { return s.repo.Conversation(ctx, opts) },
		func(ctx context.Context) (int, error) { return s.repo.CountConversation(ctx, opts) },
	)
}

// Conversations lists the caller's inbox: the latest message per counterpart.
func (s *MessageService) Conversations(ctx context.Context, caller domainauth.Caller) ([]*model.ConversationSummary, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	out, err := s.repo.Conversations(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	if out == nil {
		out = []*model.ConversationSummary{}
	}
	return out, nil
}

// MarkConversationRead marks every message otherUserID sent the caller as read.
func (s *MessageService) MarkConversationRead(ctx context.Context, caller domainauth.Caller, otherUserID string) (int, error) {
	if err := requireCaller(caller); err != nil {
		return 0, err
	}
	other, err := parseID(otherUserID, core.ErrUserNotFound)
	if err != nil {
		return 0, err
	}
	return s.repo.MarkConversationRead(ctx, caller.UserID, other)
}

// Delete soft-deletes a message the caller sent.
func (s *MessageService) Delete(ctx context.Context, caller domainauth.Caller, id string) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	mid, err := parseID(id, core.ErrMessageNotFound)
	if err != nil {
		return err
	}
	ok, err := s.repo.SoftDelete(ctx, caller.UserID, mid)
	if err != nil {
		return err
	}
	if !ok {
		return core.ErrMessageNotFound
	}
	return nil
}
