package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kaamsathi/kaamsathi-api/config"
	"github.com/kaamsathi/kaamsathi-api/internal/core"
	domainauth "github.com/kaamsathi/kaamsathi-api/internal/domain/auth"
	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
	apperrors "github.com/kaamsathi/kaamsathi-api/internal/errors"
	"github.com/kaamsathi/kaamsathi-api/internal/observability/statsd"
)

const defaultUnreadCountTTL = 30 * time.Second

// maxMarkReadIDs bounds one bulk mark-read request.
const maxMarkReadIDs = 500

// NotificationServiceOptions groups dependencies for NotificationService.
type NotificationServiceOptions struct {
	Repo      core.NotificationRepository // Required: notification repository
	Cache     core.CacheRepository        // Optional: unread count cache
	UnreadTTL time.Duration               // Optional: unread count TTL (default 30s)
	Config    config.MarketplaceConfig    // Optional: notification lifetime
	Clock     Clock                       // Optional: defaults to time.Now
	Logger    *slog.Logger                // Optional: structured logger
	Metrics   statsd.Sink                 // Optional: metrics sink (StatsD-compatible)
}

// NotificationService serves a recipient's notifications. Workflow services
// write notifications inside their own transactions and call InvalidateUnread
// afterwards.
type NotificationService struct {
	repo      core.NotificationRepository
	cache     core.CacheRepository
	unreadTTL time.Duration
	config    config.MarketplaceConfig
	clock     Clock
	logger    *slog.Logger
	metrics   statsd.Sink
}

// NewNotificationService constructs a new NotificationService.
func NewNotificationService(opts NotificationServiceOptions) (*NotificationService, error) {
	if opts.Repo == nil {
		return nil, errors.New("NotificationRepository is required")
	}
	ttl := opts.UnreadTTL
	if ttl <= 0 {
		ttl = defaultUnreadCountTTL
	}
	return &NotificationService{
		repo:      opts.Repo,
		cache:     opts.Cache,
		unreadTTL: ttl,
		config:    opts.Config,
		clock:     opts.Clock,
		logger:    componentLogger(opts.Logger, "notification_service"),
		metrics:   opts.Metrics,
	}, nil
}

// Create stores a notification outside any workflow transaction, for system
// messages and background jobs.
func (s *NotificationService) Create(ctx context.Context, req *model.CreateNotificationRequest) (*model.Notification, error) {
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	req.Title = plainText(req.Title)
	req.Message = plainText(req.Message)
	if err := req.Validate(); err != nil {
		return nil, invalid(err)
	}
	if req.ExpiresAt == nil {
		req.ExpiresAt = expiryFrom(s.clock.now(), s.config.NotificationLifetime)
	}
	n, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	s.InvalidateUnread(ctx, n.RecipientID)
	if s.metrics != nil {
		s.metrics.Count("notification.created", 1, map[string]string{"type": string(n.Type)})
	}
	return n, nil
}

// List returns the caller's visible notifications, newest first.
func (s *NotificationService) List(
	ctx context.Context,
	caller domainauth.Caller,
	opts model.NotificationListOptions,
	page model.Page,
) (model.PageResult[*model.Notification], error) {
	if err := requireCaller(caller); err != nil {
		return model.PageResult[*model.Notification]{}, err
	}
	if opts.Type != nil && !opts.Type.Valid() {
		return model.PageResult[*model.Notification]{}, apperrors.ValidationField("type", "invalid notification type")
	}
	page = page.Normalize()
	opts.RecipientID = caller.UserID
	opts.Limit, opts.Offset = page.Limit, page.Offset()
	opts.Now = s.clock.now()

	return listAndCount(ctx, page,
		func(ctx context.Context) ([]*model.Notification, error) { return s.repo.List(ctx, opts) },
		func(ctx context.Context) (int, error) { return s.repo.Count(ctx, opts) },
	)
}

// UnreadCount returns how many visible notifications the caller has not read.
func (s *NotificationService) UnreadCount(ctx context.Context, caller domainauth.Caller) (int, error) {
	if err := requireCaller(caller); err != nil {
		return 0, err
	}
	key := core.UnreadCountKey(caller.UserID)
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, key)
		if err == nil && raw != nil {
			if n, convErr := strconv.Atoi(string(raw)); convErr == nil {
				return n, nil
			}
		}
	}

	n, err := s.repo.Count(ctx, model.NotificationListOptions{
		RecipientID: caller.UserID,
		UnreadOnly:  true,
		Now:         s.clock.now(),
	})
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, []byte(strconv.Itoa(n)), s.unreadTTL); err != nil {
			s.logger.DebugContext(ctx, "unread count cache write failed", "user_id", caller.UserID, "error", err)
		}
	}
	return n, nil
}

// MarkRead marks the given notifications read, or all of them when ids is
// empty. Ids that are malformed or belong to someone else are skipped.
func (s *NotificationService) MarkRead(ctx context.Context, caller domainauth.Caller, ids []string) (int, error) {
	if err := requireCaller(caller); err != nil {
		return 0, err
	}
	if len(ids) > maxMarkReadIDs {
		return 0, apperrors.ValidationField("ids", fmt.Sprintf("at most %d ids per request", maxMarkReadIDs))
	}
	var valid []string
	for _, raw := range ids {
		if id, err := uuid.Parse(raw); err == nil {
			valid = append(valid, id.String())
		}
	}
	if len(ids) > 0 && len(valid) == 0 {
		return 0, nil
	}
	n, err := s.repo.MarkRead(ctx, caller.UserID, valid)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	if n > 0 {
		s.InvalidateUnread(ctx, caller.UserID)
	}
	return n, nil
}

// MarkUnread flips one notification back to unread.
func (s *NotificationService) MarkUnread(ctx context.Context, caller domainauth.Caller, id string) error {
	return s.mutateOne(ctx, caller, id, s.repo.MarkUnread)
}

// Delete soft-deletes one notification.
func (s *NotificationService) Delete(ctx context.Context, caller domainauth.Caller, id string) error {
	return s.mutateOne(ctx, caller, id, s.repo.SoftDelete)
}

// DeleteAllRead soft-deletes every read notification of the caller.
func (s *NotificationService) DeleteAllRead(ctx context.Context, caller domainauth.Caller) (int, error) {
	if err := requireCaller(caller); err != nil {
		return 0, err
	}
	n, err := s.repo.SoftDeleteRead(ctx, caller.UserID)
	if err != nil {
		return 0, fmt.Errorf("delete read notifications: %w", err)
	}
	return n, nil
}

// InvalidateUnread drops the cached unread counts of userIDs. Failures are
// logged; the entries expire on their own.
func (s *NotificationService) InvalidateUnread(ctx context.Context, userIDs ...string) {
	if s.cache == nil {
		return
	}
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if _, err := s.cache.Delete(ctx, core.UnreadCountKey(id)); err != nil {
			s.logger.WarnContext(ctx, "unread count invalidation failed", "user_id", id, "error", err)
		}
	}
}

func (s *NotificationService) mutateOne(
	ctx context.Context,
	caller domainauth.Caller,
	id string,
	fn func(ctx context.Context, recipientID, id string) (bool, error),
) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	nid, err := parseID(id, core.ErrNotificationNotFound)
	if err != nil {
		return err
	}
	ok, err := fn(ctx, caller.UserID, nid)
	if err != nil {
		return err
	}
	if !ok {
		return core.ErrNotificationNotFound
	}
	s.InvalidateUnread(ctx, caller.UserID)
	return nil
}
