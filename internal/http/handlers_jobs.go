package httpx

import (
	"net/http"

	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
	"github.com/kaamsathi/kaamsathi-api/internal/service"
)

// JobHandlers provides HTTP handlers for job postings and bookmarks.
type JobHandlers struct {
	Svc     *service.JobService
	proxies trustedProxies
	errs    errorResponder
}

// Search lists open jobs. It is public.
func (h *JobHandlers) Search(w http.ResponseWriter, r *http.Request) {
	opts, err := jobSearchFromQuery(r)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	res, err := h.Svc.Search(r.Context(), opts, parsePage(r))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writePage(w, res)
}

// ListMine lists the calling employer's jobs in every status.
func (h *JobHandlers) ListMine(w http.ResponseWriter, r *http.Request) {
	opts, err := jobSearchFromQuery(r)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	res, err := h.Svc.ListMine(r.Context(), callerFrom(r.Context()), opts, parsePage(r))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writePage(w, res)
}

// Get returns one job and counts the view.
func (h *JobHandlers) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.Svc.Get(r.Context(), callerFrom(r.Context()), r.PathValue("id"), h.proxies.clientAddr(r))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeData(w, http.StatusOK, job)
}

// Create posts a job for the calling employer.
func (h *JobHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	job, err := h.Svc.Create(r.Context(), callerFrom(r.Context()), &req)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, job)
}

// Update edits a job owned by the caller.
func (h *JobHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	job, err := h.Svc.Update(r.Context(), callerFrom(r.Context()), r.PathValue("id"), &req)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeData(w, http.StatusOK, job)
}

// Save bookmarks a job for the calling worker.
func (h *JobHandlers) Save(w http.ResponseWriter, r *http.Request) {
	added, err := h.Svc.Save(r.Context(), callerFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	if !added {
		writeMessage(w, "Job already saved", nil)
		return
	}
	writeMessage(w, "Job saved", nil)
}

// Unsave removes a bookmark.
func (h *JobHandlers) Unsave(w http.ResponseWriter, r *http.Request) {
	removed, err := h.Svc.Unsave(r.Context(), callerFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	if !removed {
		writeMessage(w, "Job was not saved", nil)
		return
	}
	writeMessage(w, "Job removed from saved", nil)
}

// ListSaved lists the calling worker's bookmarked jobs.
func (h *JobHandlers) ListSaved(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.Svc.ListSaved(r.Context(), callerFrom(r.Context()), parsePage(r))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeList(w, jobs)
}

func jobSearchFromQuery(r *http.Request) (model.JobSearchOptions, error) {
	minSalary, err := optionalInt64Query(r, "min_salary")
	if err != nil {
		return model.JobSearchOptions{}, err
	}
	q := r.URL.Query()
	return model.JobSearchOptions{
		Q:          optionalQuery(r, "q"),
		Category:   optionalEnum[model.JobCategory](r, "category"),
		JobType:    optionalEnum[model.JobType](r, "job_type"),
		City:       optionalQuery(r, "city"),
		State:      optionalQuery(r, "state"),
		MinSalary:  minSalary,
		UrgentOnly: parseBoolQuery(r, "urgent"),
		Sort:       model.JobSort(q.Get("sort")),
		Dir:        q.Get("dir"),
	}, nil
}
