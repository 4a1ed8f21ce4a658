//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Message is a direct message between two users.
type Message struct {
	ID            string     `json:"id"                       db:"id"`
	SenderID      string     `json:"sender_id"                db:"sender_id"`
	ReceiverID    string     `json:"receiver_id"              db:"receiver_id"`
	Text          string     `json:"text"                     db:"text"`
	AttachmentURL *string    `json:"attachment_url,omitempty" db:"attachment_url"`
	IsRead        bool       `json:"is_read"                  db:"is_read"`
	ReadAt        *time.Time `json:"read_at,omitempty"        db:"read_at"`
	IsDeleted     bool       `json:"-"                        db:"is_deleted"`
	CreatedAt     time.Time  `json:"created_at"               db:"created_at"`
}

// ConversationID returns the canonical id for the pair of users.
func (m *Message) ConversationID() string {
	return ConversationID(m.SenderID, m.ReceiverID)
}

// ConversationID sorts the two user ids and joins them with an underscore,
// so both participants derive the same id.
func ConversationID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}

// SendMessageRequest represents parameters to send a direct message.
type SendMessageRequest struct {
	ReceiverID    string  `json:"receiver_id"`
	Text          string  `json:"text"`
	AttachmentURL *string `json:"attachment_url,omitempty"`
}

// Validate validates SendMessageRequest.
func (r *SendMessageRequest) Validate() error {
	r.ReceiverID = strings.TrimSpace(r.ReceiverID)
	if r.ReceiverID == "" {
		return errors.New("receiver_id is required")
	}
	if r.AttachmentURL != nil {
		u, err := url.Parse(*r.AttachmentURL)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return errors.New("attachment_url must be an http(s) URL")
		}
		if strings.TrimSpace(r.Text) == "" {
			return nil
		}
	}
	return validateMessageText(r.Text)
}

// ConversationSummary is one row of a user's inbox.
type ConversationSummary struct {
	ConversationID string  `json:"conversation_id" db:"conversation_id"`
	OtherUserID    string  `json:"other_user_id"   db:"other_user_id"`
	LastMessage    Message `json:"last_message"    db:"-"`
	UnreadCount    int     `json:"unread_count"    db:"unread_count"`
}

// ConversationOptions pages through one conversation.
type ConversationOptions struct {
	UserID      string
	OtherUserID string
	Limit       int
	Offset      int
}
