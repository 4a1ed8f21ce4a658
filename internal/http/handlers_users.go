package httpx

import (
	"net/http"

	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
	"github.com/kaamsathi/kaamsathi-api/internal/service"
)

// UserHandlers serves the caller's profile and admin account controls.
type UserHandlers struct {
	Svc  *service.UserService
	errs errorResponder
}

// Me returns the calling user.
func (h *UserHandlers) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.Svc.GetMe(r.Context(), callerFrom(r.Context()))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeData(w, http.StatusOK, u)
}

// UpdateMe edits the calling user's profile.
func (h *UserHandlers) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateProfileRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	u, err := h.Svc.UpdateProfile(r.Context(), callerFrom(r.Context()), &req)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeData(w, http.StatusOK, u)
}

type blockRequest struct {
	Blocked bool `json:"blocked"`
}

// SetBlocked blocks or unblocks an account. Admin only.
func (h *UserHandlers) SetBlocked(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	u, err := h.Svc.SetBlocked(r.Context(), callerFrom(r.Context()), r.PathValue("id"), req.Blocked)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	msg := "User unblocked"
	if req.Blocked {
		msg = "User blocked"
	}
	writeMessage(w, msg, u)
}
