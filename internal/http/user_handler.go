package http

import (
	"errors"
	"log/slog"
	"net/http"

	"worknest/internal/accounts"
)

// UserHandler serves the authenticated user's profile and onboarding state.
type UserHandler struct {
	accounts *accounts.Service
	logger   *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(accountSvc *accounts.Service, logger *slog.Logger) *UserHandler {
	return &UserHandler{accounts: accountSvc, logger: logger}
}

// Get handles GET /user.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

// Update handles PATCH /user. Only name and email can change.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var payload struct {
		Name  *string `json:"name"`
		Email *string `json:"email"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	updated, err := h.accounts.UpdateProfile(r.Context(), user.ID, accounts.ProfileUpdate{
		Name:  payload.Name,
		Email: payload.Email,
	})
	if err != nil {
		handleAccountError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(updated))
}

// CompleteOnboarding handles POST /onboarding/complete.
func (h *UserHandler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	subject, _ := SubjectFromContext(r.Context())
	user, err := h.accounts.CompleteOnboarding(r.Context(), subject)
	if err != nil {
		h.handleSubjectError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": newUserResponse(user)})
}

// ResetOnboarding handles POST /onboarding/reset.
func (h *UserHandler) ResetOnboarding(w http.ResponseWriter, r *http.Request) {
	subject, _ := SubjectFromContext(r.Context())
	user, err := h.accounts.ResetOnboarding(r.Context(), subject)
	if err != nil {
		h.handleSubjectError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": newUserResponse(user)})
}

// CreateCompany handles POST /create-company.
func (h *UserHandler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	subject, _ := SubjectFromContext(r.Context())

	var payload accounts.CompanyInput
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	profile, user, err := h.accounts.CreateCompanyProfile(r.Context(), subject, payload)
	if err != nil {
		h.handleSubjectError(w, err)
		return
	}
	h.logger.Info("company onboarding completed", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"profile": profile, "user": newUserResponse(user)})
}

// CreateJobSeeker handles POST /create-jobseeker.
func (h *UserHandler) CreateJobSeeker(w http.ResponseWriter, r *http.Request) {
	subject, _ := SubjectFromContext(r.Context())

	var payload accounts.JobSeekerInput
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	profile, user, err := h.accounts.CreateJobSeekerProfile(r.Context(), subject, payload)
	if err != nil {
		h.handleSubjectError(w, err)
		return
	}
	h.logger.Info("job seeker onboarding completed", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"profile": profile, "user": newUserResponse(user)})
}

// Profile handles GET /user/profile and returns the profile matching the user's role.
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var (
		profile any
		err     error
	)
	switch user.Role {
	case accounts.RoleCompany:
		profile, err = h.accounts.CompanyProfile(r.Context(), user.ID)
	case accounts.RoleJobSeeker:
		profile, err = h.accounts.JobSeekerProfile(r.Context(), user.ID)
	default:
		err = accounts.ErrNotFound
	}
	if errors.Is(err, accounts.ErrNotFound) {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	if err != nil {
		handleAccountError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_type": user.Role, "profile": profile})
}

// currentUser loads the account behind the request subject. A valid token for a deleted
// account is treated as unauthenticated.
func (h *UserHandler) currentUser(w http.ResponseWriter, r *http.Request) (accounts.User, bool) {
	user, err := loadSubject(r, h.accounts)
	if err != nil {
		h.handleSubjectError(w, err)
		return accounts.User{}, false
	}
	return user, true
}

func (h *UserHandler) handleSubjectError(w http.ResponseWriter, err error) {
	if errors.Is(err, accounts.ErrNotFound) {
		unauthorized(w)
		return
	}
	handleAccountError(w, err, h.logger)
}

func loadSubject(r *http.Request, accountSvc *accounts.Service) (accounts.User, error) {
	subject, ok := SubjectFromContext(r.Context())
	if !ok {
		return accounts.User{}, accounts.ErrNotFound
	}
	return accountSvc.Get(r.Context(), subject)
}
