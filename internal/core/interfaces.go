package core

import (
	"context"
	"time"

	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	// Upsert creates the user on first sight of an external identity and
	// refreshes last_login_at otherwise. The stored user_type is never changed.
	Upsert(ctx context.Context, req *model.UpsertUserRequest) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*model.User, error)
	UpdateProfile(ctx context.Context, id string, req model.UpdateProfileRequest) (*model.User, error)
	SetBlocked(ctx context.Context, id string, blocked bool) (*model.User, error)
}

// JobRepository defines the interface for job data operations.
// Counter mutations are single conditional statements so they are safe to
// race; callers run them inside a UnitOfWork alongside the triggering write.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	// GetForUpdate locks the job row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*model.Job, error)
	Update(ctx context.Context, id string, req model.UpdateJobRequest) (*model.Job, error)
	Search(ctx context.Context, opts model.JobSearchOptions) ([]*model.Job, error)
	Count(ctx context.Context, opts model.JobSearchOptions) (int, error)
	IncrementViews(ctx context.Context, id string) error
	// ReserveApplicantSlot bumps applications and current_applicants only while
	// current_applicants < max_applicants. It reports false when the job is full.
	ReserveApplicantSlot(ctx context.Context, id string) (bool, error)
	// ReleaseApplicantSlot decrements current_applicants, never below zero.
	ReleaseApplicantSlot(ctx context.Context, id string) error
	IncrementPositionsFilled(ctx context.Context, id string) error
	Save(ctx context.Context, userID, jobID string) (bool, error)
	Unsave(ctx context.Context, userID, jobID string) (bool, error)
	ListSaved(ctx context.Context, userID string, limit, offset int) ([]*model.Job, error)
}

// ApplicationRepository defines the interface for application data operations.
type ApplicationRepository interface {
	Create(ctx context.Context, app *model.Application) (*model.Application, error)
	// GetByID returns the application with its status history and messages.
	GetByID(ctx context.Context, id string) (*model.Application, error)
	// GetForUpdate locks the application row and skips child collections.
	GetForUpdate(ctx context.Context, id string) (*model.Application, error)
	ExistsForApplicant(ctx context.Context, jobID, applicantID string) (bool, error)
	List(ctx context.Context, opts model.ApplicationListOptions) ([]*model.Application, error)
	Count(ctx context.Context, opts model.ApplicationListOptions) (int, error)
	CountByStatus(ctx context.Context, opts model.ApplicationListOptions) (map[model.ApplicationStatus]int, error)
	// Update persists status, interview, offer, evaluation, withdrawal fields and last_updated.
	Update(ctx context.Context, app *model.Application) error
	AppendHistory(ctx context.Context, entry *model.StatusHistoryEntry) error
	History(ctx context.Context, applicationID string) ([]model.StatusHistoryEntry, error)
	AddMessage(ctx context.Context, msg *model.ApplicationMessage) (*model.ApplicationMessage, error)
	Messages(ctx context.Context, applicationID string) ([]model.ApplicationMessage, error)
	// MarkMessagesRead flags every message not sent by readerID and returns how many changed.
	MarkMessagesRead(ctx context.Context, applicationID, readerID string) (int, error)
}

// NotificationRepository defines the interface for notification data operations.
// Every query is scoped by recipient; rows belonging to others behave as missing.
type NotificationRepository interface {
	Create(ctx context.Context, req *model.CreateNotificationRequest) (*model.Notification, error)
	List(ctx context.Context, opts model.NotificationListOptions) ([]*model.Notification, error)
	Count(ctx context.Context, opts model.NotificationListOptions) (int, error)
	// MarkRead marks the given ids read, or every unread notification when ids is empty.
	MarkRead(ctx context.Context, recipientID string, ids []string) (int, error)
	MarkUnread(ctx context.Context, recipientID, id string) (bool, error)
	SoftDelete(ctx context.Context, recipientID, id string) (bool, error)
	SoftDeleteRead(ctx context.Context, recipientID string) (int, error)
	// ClaimUndelivered locks up to limit undelivered rows whose next attempt is
	// due at now, skipping rows locked by other dispatchers and dead-lettered
	// rows. Must run inside a UnitOfWork.
	ClaimUndelivered(ctx context.Context, limit int, now time.Time) ([]*model.Notification, error)
	MarkDelivered(ctx context.Context, ids []string, at time.Time) (int, error)
	// MarkDeliveryFailed counts a failed attempt on each row and schedules the
	// next one. It returns the ids that ran out of attempts.
	MarkDeliveryFailed(ctx context.Context, ids []string, retry DeliveryRetry) ([]string, error)
}

// DeliveryRetry schedules the next webhook attempt for a failed notification.
// The wait doubles per failed attempt from Backoff up to MaxBackoff. A row
// reaching MaxAttempts is dead-lettered and never claimed again.
type DeliveryRetry struct {
	At          time.Time
	Backoff     time.Duration
	MaxBackoff  time.Duration
	MaxAttempts int
}

// Delay returns the wait after the given number of failed attempts.
func (r DeliveryRetry) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 31 {
		return r.MaxBackoff
	}
	d := r.Backoff << (attempts - 1)
	if d <= 0 || d > r.MaxBackoff {
		return r.MaxBackoff
	}
	return d
}

// MessageRepository defines the interface for direct message data operations.
type MessageRepository interface {
	Create(ctx context.Context, senderID string, req *model.SendMessageRequest) (*model.Message, error)
	Conversation(ctx context.Context, opts model.ConversationOptions) ([]*model.Message, error)
	CountConversation(ctx context.Context, opts model.ConversationOptions) (int, error)
	Conversations(ctx context.Context, userID string) ([]*model.ConversationSummary, error)
	MarkConversationRead(ctx context.Context, userID, otherUserID string) (int, error)
	SoftDelete(ctx context.Context, senderID, id string) (bool, error)
}

// ReconcilerRepository defines the batch maintenance operations used by the
// background reconciler.
type ReconcilerRepository interface {
	// RecountApplicants rewrites current_applicants from live non-terminal
	// applications for up to limit drifted jobs and returns what changed.
	RecountApplicants(ctx context.Context, limit int) ([]model.CapacityDrift, error)
	// ExpireJobs persists status=expired for active jobs past expires_at.
	ExpireJobs(ctx context.Context, now time.Time, limit int) ([]*model.Job, error)
	// EmployerMismatches counts applications whose employer_id differs from their job's.
	EmployerMismatches(ctx context.Context) (int, error)
	// PurgeNotifications hard-deletes soft-deleted or expired notifications older than before.
	PurgeNotifications(ctx context.Context, before time.Time, limit int) (int64, error)
}

// TxRepositories are repositories bound to one open transaction.
type TxRepositories struct {
	Users         UserRepository
	Jobs          JobRepository
	Applications  ApplicationRepository
	Notifications NotificationRepository
	Messages      MessageRepository
}

// UnitOfWork runs fn inside a single database transaction. Returning an error
// from fn rolls back every write made through the supplied repositories.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(repos TxRepositories) error) error
}
