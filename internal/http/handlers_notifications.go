package httpx

import (
	"net/http"

	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
	"github.com/kaamsathi/kaamsathi-api/internal/service"
)

// NotificationHandlers serves the caller's notification inbox.
type NotificationHandlers struct {
	Svc  *service.NotificationService
	errs errorResponder
}

// List pages through the caller's notifications, newest first.
func (h *NotificationHandlers) List(w http.ResponseWriter, r *http.Request) {
	opts := model.NotificationListOptions{
		UnreadOnly: parseBoolQuery(r, "unread"),
		Type:       optionalEnum[model.NotificationType](r, "type"),
	}
	res, err := h.Svc.List(r.Context(), callerFrom(r.Context()), opts, parsePage(r))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writePage(w, res)
}

// UnreadCount returns the caller's unread badge count.
func (h *NotificationHandlers) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.Svc.UnreadCount(r.Context(), callerFrom(r.Context()))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{"count": n})
}

type markReadRequest struct {
	IDs []string `json:"ids"`
}

// MarkRead marks the listed notifications read. An empty list marks all.
func (h *NotificationHandlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req markReadRequest
	if r.ContentLength != 0 && !DecodeJSON(w, r, &req) {
		return
	}
	n, err := h.Svc.MarkRead(r.Context(), callerFrom(r.Context()), req.IDs)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeCount(w, "Notifications marked as read", n)
}

// MarkOneRead marks a single notification read.
func (h *NotificationHandlers) MarkOneRead(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Svc.MarkRead(r.Context(), callerFrom(r.Context()), []string{r.PathValue("id")}); err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeMessage(w, "Notification marked as read", nil)
}

// MarkUnread flips a notification back to unread.
func (h *NotificationHandlers) MarkUnread(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.MarkUnread(r.Context(), callerFrom(r.Context()), r.PathValue("id")); err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeMessage(w, "Notification marked as unread", nil)
}

// Delete removes one notification.
func (h *NotificationHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Delete(r.Context(), callerFrom(r.Context()), r.PathValue("id")); err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeMessage(w, "Notification deleted", nil)
}

// DeleteAllRead clears every read notification.
func (h *NotificationHandlers) DeleteAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.Svc.DeleteAllRead(r.Context(), callerFrom(r.Context()))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeCount(w, "Read notifications deleted", n)
}
