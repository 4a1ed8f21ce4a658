package httpx

import (
	"net/http"

	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
	"github.com/kaamsathi/kaamsathi-api/internal/service"
)

// MessageHandlers serves direct messages between users.
type MessageHandlers struct {
	Svc  *service.MessageService
	errs errorResponder
}

// Send delivers a direct message from the caller.
func (h *MessageHandlers) Send(w http.ResponseWriter, r *http.Request) {
	var req model.SendMessageRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	msg, err := h.Svc.Send(r.Context(), callerFrom(r.Context()), &req)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, msg)
}

// Conversations lists one summary per conversation partner.
func (h *MessageHandlers) Conversations(w http.ResponseWriter, r *http.Request) {
	out, err := h.Svc.Conversations(r.Context(), callerFrom(r.Context()))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeList(w, out)
}

// Conversation pages through messages exchanged with one user.
func (h *MessageHandlers) Conversation(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.Conversation(r.Context(), callerFrom(r.Context()), r.PathValue("userId"), parsePage(r))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writePage(w, res)
}

// MarkConversationRead marks everything the other user sent as read.
func (h *MessageHandlers) MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.Svc.MarkConversationRead(r.Context(), callerFrom(r.Context()), r.PathValue("userId"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeCount(w, "Messages marked as read", n)
}

// Delete removes a message the caller sent.
func (h *MessageHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Delete(r.Context(), callerFrom(r.Context()), r.PathValue("id")); err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeMessage(w, "Message deleted", nil)
}
