package jobs

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a job post, saved job or application cannot be located.
	ErrNotFound = errors.New("not found")
	// ErrValidation is returned when input validation fails.
	ErrValidation = errors.New("validation error")
	// ErrForbidden is returned when the caller lacks the capability or does not own the post.
	ErrForbidden = errors.New("forbidden")
	// ErrAlreadyApplied is returned for a second application to the same post.
	ErrAlreadyApplied = errors.New("already applied to this job")
	// ErrNotActive is returned when saving or applying to a post that is not active.
	ErrNotActive = errors.New("job post is not active")
)

// ValidationError carries field-level messages and unwraps to ErrValidation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// FieldErrors exposes the per-field messages to the transport layer.
func (e *ValidationError) FieldErrors() map[string]string {
	return e.Fields
}

// Status is the lifecycle state of a job post.
type Status string

const (
	StatusDraft   Status = "DRAFT"
	StatusActive  Status = "ACTIVE"
	StatusExpired Status = "EXPIRED"
)

// ApplicationStatus tracks the company's review of an application.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationReviewed ApplicationStatus = "reviewed"
	ApplicationAccepted ApplicationStatus = "accepted"
	ApplicationRejected ApplicationStatus = "rejected"
)

// Valid reports whether s is a known application status.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationPending, ApplicationReviewed, ApplicationAccepted, ApplicationRejected:
		return true
	}
	return false
}

// Post is a job listing owned by a company account.
type Post struct {
	ID              uuid.UUID `json:"id"`
	OwnerID         uuid.UUID `json:"company"`
	Title           string    `json:"job_title"`
	EmploymentType  string    `json:"employment_type"`
	Location        string    `json:"location"`
	SalaryFrom      int       `json:"salary_from"`
	SalaryTo        int       `json:"salary_to"`
	Description     string    `json:"job_description"`
	ListingDuration int       `json:"listing_duration"`
	Benefits        []string  `json:"benefits"`
	Status          Status    `json:"status"`
	Applications    int       `json:"applications"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ExpiresAt is the end of the listing period.
func (p Post) ExpiresAt() time.Time {
	return p.CreatedAt.Add(time.Duration(p.ListingDuration) * 24 * time.Hour)
}

// PostInput is the payload for creating or replacing a job post.
type PostInput struct {
	Title           string   `json:"job_title" validate:"required,max=255"`
	EmploymentType  string   `json:"employment_type" validate:"required,max=100"`
	Location        string   `json:"location" validate:"required,max=255"`
	SalaryFrom      int      `json:"salary_from" validate:"min=0"`
	SalaryTo        int      `json:"salary_to" validate:"min=0"`
	Description     string   `json:"job_description" validate:"required"`
	ListingDuration int      `json:"listing_duration" validate:"min=1,max=365"`
	Benefits        []string `json:"benefits" validate:"max=50,dive,required,max=100"`
	Status          Status   `json:"status" validate:"omitempty,oneof=DRAFT ACTIVE EXPIRED"`
}

// ListOptions filters post listings.
type ListOptions struct {
	OwnerID *uuid.UUID
	Status  *Status
	Query   string
	Limit   int
}

// SavedJob bookmarks an active post for a user.
type SavedJob struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"-"`
	JobID     uuid.UUID `json:"job"`
	Job       *Post     `json:"job_details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Application is a job seeker's application to a post.
type Application struct {
	ID          uuid.UUID         `json:"id"`
	UserID      uuid.UUID         `json:"applicant"`
	JobID       uuid.UUID         `json:"job"`
	JobTitle    string            `json:"job_title"`
	Status      ApplicationStatus `json:"status"`
	CoverLetter string            `json:"cover_letter"`
	AppliedAt   time.Time         `json:"applied_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Stats are the public listing counters.
type Stats struct {
	TotalActiveJobs int `json:"total_active_jobs"`
	TotalCompanies  int `json:"total_companies"`
}
