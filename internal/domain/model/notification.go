//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// NotificationType tags the event a notification reports.
type NotificationType string

const (
	NotificationTypeJobApplication          NotificationType = "job_application"
	NotificationTypeApplicationStatusChange NotificationType = "application_status_change"
	NotificationTypeInterviewScheduled      NotificationType = "interview_scheduled"
	NotificationTypeMessageReceived         NotificationType = "message_received"
	NotificationTypeJobPosted               NotificationType = "job_posted"
	NotificationTypeJobExpired              NotificationType = "job_expired"
	NotificationTypeOfferExtended           NotificationType = "offer_extended"
	NotificationTypeSystem                  NotificationType = "system"
)

// Valid reports whether the notification type is supported.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationTypeJobApplication, NotificationTypeApplicationStatusChange,
		NotificationTypeInterviewScheduled, NotificationTypeMessageReceived, NotificationTypeJobPosted,
		NotificationTypeJobExpired, NotificationTypeOfferExtended, NotificationTypeSystem:
		return true
	default:
		return false
	}
}

// NotificationPriority orders notifications for display and delivery.
type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "low"
	NotificationPriorityNormal NotificationPriority = "normal"
	NotificationPriorityHigh   NotificationPriority = "high"
)

// Valid reports whether the priority is supported.
func (p NotificationPriority) Valid() bool {
	return p == NotificationPriorityLow || p == NotificationPriorityNormal || p == NotificationPriorityHigh
}

// NotificationData back-references the entity that raised a notification.
type NotificationData struct {
	JobID         string            `json:"job_id,omitempty"`
	ApplicationID string            `json:"application_id,omitempty"`
	MessageID     string            `json:"message_id,omitempty"`
	Status        ApplicationStatus `json:"status,omitempty"`
}

// Notification is a per-recipient event record.
type Notification struct {
	ID          string               `json:"id"                     db:"id"`
	RecipientID string               `json:"recipient_id"           db:"recipient_id"`
	SenderID    *string              `json:"sender_id,omitempty"    db:"sender_id"`
	Type        NotificationType     `json:"type"                   db:"type"`
	Title       string               `json:"title"                  db:"title"`
	Message     string               `json:"message"                db:"message"`
	Data        NotificationData     `json:"data"                   db:"data"`
	ActionURL   *string              `json:"action_url,omitempty"   db:"action_url"`
	Priority    NotificationPriority `json:"priority"               db:"priority"`
	IsRead      bool                 `json:"is_read"                db:"is_read"`
	ReadAt      *time.Time           `json:"read_at,omitempty"      db:"read_at"`
	IsDeleted   bool                 `json:"-"                      db:"is_deleted"`
	DeletedAt   *time.Time           `json:"-"                      db:"deleted_at"`
	ExpiresAt   *time.Time           `json:"expires_at,omitempty"   db:"expires_at"`
	DeliveredAt *time.Time           `json:"delivered_at,omitempty" db:"delivered_at"`
	CreatedAt   time.Time            `json:"created_at"             db:"created_at"`
}

// Visible reports whether the notification is shown to its recipient at now.
func (n *Notification) Visible(now time.Time) bool {
	return !n.IsDeleted && (n.ExpiresAt == nil || now.Before(*n.ExpiresAt))
}

// CreateNotificationRequest represents parameters to create a Notification.
type CreateNotificationRequest struct {
	RecipientID string               `json:"recipient_id"`
	SenderID    *string              `json:"sender_id,omitempty"`
	Type        NotificationType     `json:"type"`
	Title       string               `json:"title"`
	Message     string               `json:"message"`
	Data        NotificationData     `json:"data"`
	ActionURL   *string              `json:"action_url,omitempty"`
	Priority    NotificationPriority `json:"priority,omitempty"`
	ExpiresAt   *time.Time           `json:"expires_at,omitempty"`
}

// Validate validates CreateNotificationRequest.
func (r *CreateNotificationRequest) Validate() error {
	if strings.TrimSpace(r.RecipientID) == "" {
		return errors.New("recipient_id is required")
	}
	if !r.Type.Valid() {
		return errors.New("invalid notification type")
	}
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("title is required")
	}
	if utf8.RuneCountInString(r.Title) > 200 {
		return errors.New("title cannot exceed 200 characters")
	}
	if utf8.RuneCountInString(r.Message) > 1000 {
		return errors.New("message cannot exceed 1000 characters")
	}
	if r.Priority == "" {
		r.Priority = NotificationPriorityNormal
	}
	if !r.Priority.Valid() {
		return errors.New("invalid priority")
	}
	return nil
}

// NotificationListOptions controls paging and filtering for a recipient's notifications.
// Soft-deleted and expired rows are always excluded.
type NotificationListOptions struct {
	RecipientID string
	UnreadOnly  bool
	Type        *NotificationType
	Limit       int
	Offset      int
	Now         time.Time
}
