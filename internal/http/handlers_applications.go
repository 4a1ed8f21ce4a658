package httpx

import (
	"net/http"

	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
	"github.com/kaamsathi/kaamsathi-api/internal/service"
)

// ApplicationHandlers serves the application workflow.
type ApplicationHandlers struct {
	Svc  *service.ApplicationService
	errs errorResponder
}

// Submit applies the calling worker to a job.
func (h *ApplicationHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitApplicationRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	app, err := h.Svc.Submit(r.Context(), callerFrom(r.Context()), &req)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, app)
}

// List returns the applications visible to the caller.
func (h *ApplicationHandlers) List(w http.ResponseWriter, r *http.Request) {
	opts := model.ApplicationListOptions{
		ApplicantID: optionalQuery(r, "applicant_id"),
		EmployerID:  optionalQuery(r, "employer_id"),
		JobID:       optionalQuery(r, "job_id"),
		Status:      optionalEnum[model.ApplicationStatus](r, "status"),
	}
	res, err := h.Svc.List(r.Context(), callerFrom(r.Context()), opts, parsePage(r))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writePage(w, res)
}

// Get returns one application with its history and messages.
func (h *ApplicationHandlers) Get(w http.ResponseWriter, r *http.Request) {
	app, err := h.Svc.Get(r.Context(), callerFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeData(w, http.StatusOK, app)
}

// UpdateStatus moves an application through the employer review workflow.
func (h *ApplicationHandlers) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateStatusRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	app, err := h.Svc.UpdateStatus(r.Context(), callerFrom(r.Context()), r.PathValue("id"), &req)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeMessage(w, "Application status updated", app)
}

// Withdraw lets the applicant pull an application.
func (h *ApplicationHandlers) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req model.WithdrawRequest
	if r.ContentLength != 0 && !DecodeJSON(w, r, &req) {
		return
	}
	app, err := h.Svc.Withdraw(r.Context(), callerFrom(r.Context()), r.PathValue("id"), &req)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeMessage(w, "Application withdrawn", app)
}

// AddMessage appends a message to the application thread.
func (h *ApplicationHandlers) AddMessage(w http.ResponseWriter, r *http.Request) {
	var req model.AddMessageRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	msg, err := h.Svc.AddMessage(r.Context(), callerFrom(r.Context()), r.PathValue("id"), &req)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, msg)
}

// MarkMessagesRead marks the other party's thread messages read.
func (h *ApplicationHandlers) MarkMessagesRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.Svc.MarkMessagesRead(r.Context(), callerFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeCount(w, "Messages marked as read", n)
}

// ScheduleInterview books an interview and moves the application forward.
func (h *ApplicationHandlers) ScheduleInterview(w http.ResponseWriter, r *http.Request) {
	var req model.ScheduleInterviewRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	app, err := h.Svc.ScheduleInterview(r.Context(), callerFrom(r.Context()), r.PathValue("id"), &req)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeMessage(w, "Interview scheduled", app)
}

// Evaluate records the employer's scores for an applicant.
func (h *ApplicationHandlers) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req model.EvaluationRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	app, err := h.Svc.Evaluate(r.Context(), callerFrom(r.Context()), r.PathValue("id"), &req)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeMessage(w, "Evaluation saved", app)
}

// Stats counts the caller's applications by status.
func (h *ApplicationHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context(), callerFrom(r.Context()))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}
