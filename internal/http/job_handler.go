package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"worknest/internal/accounts"
	"worknest/internal/jobs"
)

const maxSearchQueryLength = 200

// JobHandler exposes job posts, saved jobs and applications.
type JobHandler struct {
	jobs     *jobs.Service
	accounts *accounts.Service
	logger   *slog.Logger
}

// NewJobHandler creates a JobHandler.
func NewJobHandler(jobSvc *jobs.Service, accountSvc *accounts.Service, logger *slog.Logger) *JobHandler {
	return &JobHandler{jobs: jobSvc, accounts: accountSvc, logger: logger}
}

// List handles GET /jobs.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if len(query) > maxSearchQueryLength {
		writeError(w, http.StatusBadRequest, "query too long")
		return
	}

	var limit int
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = value
	}

	posts, err := h.jobs.ListActive(r.Context(), query, limit)
	if err != nil {
		handleJobError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": nonNil(posts)})
}

// Create handles POST /jobs.
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var payload jobs.PostInput
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	post, err := h.jobs.CreatePost(r.Context(), actor, payload)
	if err != nil {
		handleJobError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

// Get handles GET /jobs/{id}. Anonymous callers only see active posts.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	var viewer *accounts.User
	if _, authenticated := SubjectFromContext(r.Context()); authenticated {
		if user, err := loadSubject(r, h.accounts); err == nil {
			viewer = &user
		}
	}

	post, err := h.jobs.GetPost(r.Context(), viewer, id)
	if err != nil {
		handleJobError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// Update handles PUT /jobs/{id}.
func (h *JobHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	var payload jobs.PostInput
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	post, err := h.jobs.UpdatePost(r.Context(), actor, id, payload)
	if err != nil {
		handleJobError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// Delete handles DELETE /jobs/{id}.
func (h *JobHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.jobs.DeletePost(r.Context(), actor, id); err != nil {
		handleJobError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MyJobs handles GET /my-jobs.
func (h *JobHandler) MyJobs(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	posts, err := h.jobs.MyPosts(r.Context(), actor)
	if err != nil {
		handleJobError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": nonNil(posts)})
}

// Save handles POST /jobs/{id}/save: 201 for a new bookmark, 200 when it already existed.
func (h *JobHandler) Save(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	saved, created, err := h.jobs.SaveJob(r.Context(), actor, id)
	if err != nil {
		handleJobError(w, err, h.logger)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, saved)
}

// Saved handles GET /saved-jobs.
func (h *JobHandler) Saved(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	saved, err := h.jobs.SavedJobs(r.Context(), actor)
	if err != nil {
		handleJobError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved_jobs": nonNil(saved)})
}

// Unsave handles DELETE /saved-jobs/{id}.
func (h *JobHandler) Unsave(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.jobs.UnsaveJob(r.Context(), actor, id); err != nil {
		handleJobError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Apply handles POST /jobs/{id}/apply.
func (h *JobHandler) Apply(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	var payload struct {
		CoverLetter string `json:"cover_letter"`
	}
	// The cover letter is optional, so an empty body is accepted.
	if err := decodeJSONBody(w, r, &payload); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, err)
		return
	}

	app, err := h.jobs.Apply(r.Context(), actor, id, payload.CoverLetter)
	if err != nil {
		handleJobError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

// MyApplications handles GET /my-applications.
func (h *JobHandler) MyApplications(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	apps, err := h.jobs.MyApplications(r.Context(), actor)
	if err != nil {
		handleJobError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applications": nonNil(apps)})
}

// PostApplications handles GET /jobs/{id}/applications.
func (h *JobHandler) PostApplications(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}
	apps, err := h.jobs.PostApplications(r.Context(), actor, id)
	if err != nil {
		handleJobError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applications": nonNil(apps)})
}

// CompanyApplications handles GET /company-applications.
func (h *JobHandler) CompanyApplications(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	apps, err := h.jobs.CompanyApplications(r.Context(), actor)
	if err != nil {
		handleJobError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applications": nonNil(apps)})
}

// UpdateApplicationStatus handles PATCH /applications/{id}/status.
func (h *JobHandler) UpdateApplicationStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	app, err := h.jobs.UpdateApplicationStatus(r.Context(), actor, id, jobs.ApplicationStatus(strings.TrimSpace(payload.Status)))
	if err != nil {
		handleJobError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// Stats handles GET /stats.
func (h *JobHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.jobs.Stats(r.Context())
	if err != nil {
		handleJobError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *JobHandler) actor(w http.ResponseWriter, r *http.Request) (accounts.User, bool) {
	user, err := loadSubject(r, h.accounts)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			unauthorized(w)
			return accounts.User{}, false
		}
		handleAccountError(w, err, h.logger)
		return accounts.User{}, false
	}
	return user, true
}

func handleJobError(w http.ResponseWriter, err error, logger *slog.Logger) {
	if writeFieldErrors(w, err) {
		return
	}
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, jobs.ErrForbidden):
		writeError(w, http.StatusForbidden, "you do not have permission to perform this action")
	case errors.Is(err, jobs.ErrAlreadyApplied):
		writeError(w, http.StatusConflict, "you have already applied to this job")
	case errors.Is(err, jobs.ErrNotActive):
		writeError(w, http.StatusBadRequest, "job post is not active")
	case errors.Is(err, jobs.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error("job service error", "error", err)
		writeError(w, http.StatusInternalServerError, "unexpected error")
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
