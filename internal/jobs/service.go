package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"worknest/internal/accounts"
	"worknest/internal/validation"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	maxCoverLetter   = 5000
)

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service exposes job posts, saved jobs and applications to authenticated accounts.
type Service struct {
	repo      Repository
	companies CompanyCounter
	validate  *validation.Validator
	now       func() time.Time
}

// NewService wires a Service. companies may be nil, in which case stats report zero companies.
func NewService(repo Repository, companies CompanyCounter, opts ...Option) *Service {
	svc := &Service{
		repo:      repo,
		companies: companies,
		validate:  validation.New(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// CreatePost publishes a post owned by actor. Only company accounts may post.
func (s *Service) CreatePost(ctx context.Context, actor accounts.User, input PostInput) (Post, error) {
	if !actor.Can(accounts.CapabilityPostJobs) {
		return Post{}, ErrForbidden
	}
	if err := s.validatePost(&input); err != nil {
		return Post{}, err
	}

	now := s.now().UTC()
	post := Post{
		ID:              uuid.New(),
		OwnerID:         actor.ID,
		Title:           input.Title,
		EmploymentType:  input.EmploymentType,
		Location:        input.Location,
		SalaryFrom:      input.SalaryFrom,
		SalaryTo:        input.SalaryTo,
		Description:     input.Description,
		ListingDuration: input.ListingDuration,
		Benefits:        input.Benefits,
		Status:          input.Status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return s.repo.CreatePost(ctx, post)
}

// ListActive returns active posts, optionally narrowed by a title/description search.
func (s *Service) ListActive(ctx context.Context, query string, limit int) ([]Post, error) {
	status := StatusActive
	return s.repo.ListPosts(ctx, ListOptions{
		Status: &status,
		Query:  strings.TrimSpace(query),
		Limit:  clampLimit(limit),
	})
}

// GetPost returns a post. Posts that are not active are only visible to their owner.
func (s *Service) GetPost(ctx context.Context, viewer *accounts.User, id uuid.UUID) (Post, error) {
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return Post{}, err
	}
	if post.Status != StatusActive && (viewer == nil || viewer.ID != post.OwnerID) {
		return Post{}, ErrNotFound
	}
	return post, nil
}

// UpdatePost replaces the editable fields of a post owned by actor.
func (s *Service) UpdatePost(ctx context.Context, actor accounts.User, id uuid.UUID, input PostInput) (Post, error) {
	post, err := s.ownedPost(ctx, actor, id)
	if err != nil {
		return Post{}, err
	}
	if err := s.validatePost(&input); err != nil {
		return Post{}, err
	}

	post.Title = input.Title
	post.EmploymentType = input.EmploymentType
	post.Location = input.Location
	post.SalaryFrom = input.SalaryFrom
	post.SalaryTo = input.SalaryTo
	post.Description = input.Description
	post.ListingDuration = input.ListingDuration
	post.Benefits = input.Benefits
	post.Status = input.Status
	post.UpdatedAt = s.now().UTC()
	return s.repo.UpdatePost(ctx, post)
}

// DeletePost removes a post owned by actor.
func (s *Service) DeletePost(ctx context.Context, actor accounts.User, id uuid.UUID) error {
	if _, err := s.ownedPost(ctx, actor, id); err != nil {
		return err
	}
	return s.repo.DeletePost(ctx, id)
}

// MyPosts lists every post owned by actor regardless of status.
func (s *Service) MyPosts(ctx context.Context, actor accounts.User) ([]Post, error) {
	if !actor.Can(accounts.CapabilityPostJobs) {
		return nil, ErrForbidden
	}
	return s.repo.ListPosts(ctx, ListOptions{OwnerID: &actor.ID})
}

// SaveJob bookmarks an active post. It reports whether a new bookmark was created.
func (s *Service) SaveJob(ctx context.Context, actor accounts.User, jobID uuid.UUID) (SavedJob, bool, error) {
	post, err := s.repo.GetPost(ctx, jobID)
	if err != nil {
		return SavedJob{}, false, err
	}
	if post.Status != StatusActive {
		return SavedJob{}, false, ErrNotActive
	}
	return s.repo.SaveJob(ctx, SavedJob{
		ID:        uuid.New(),
		UserID:    actor.ID,
		JobID:     jobID,
		CreatedAt: s.now().UTC(),
	})
}

// SavedJobs lists actor's bookmarks newest first.
func (s *Service) SavedJobs(ctx context.Context, actor accounts.User) ([]SavedJob, error) {
	return s.repo.ListSaved(ctx, actor.ID)
}

// UnsaveJob removes one of actor's bookmarks.
func (s *Service) UnsaveJob(ctx context.Context, actor accounts.User, savedID uuid.UUID) error {
	return s.repo.DeleteSaved(ctx, savedID, actor.ID)
}

// Apply submits actor's application to an active post. Only job seekers may apply, once per post.
func (s *Service) Apply(ctx context.Context, actor accounts.User, jobID uuid.UUID, coverLetter string) (Application, error) {
	if !actor.Can(accounts.CapabilityApplyToJobs) {
		return Application{}, ErrForbidden
	}
	coverLetter = strings.TrimSpace(coverLetter)
	if len(coverLetter) > maxCoverLetter {
		return Application{}, &ValidationError{Fields: map[string]string{
			"cover_letter": fmt.Sprintf("Ensure this field has no more than %d characters.", maxCoverLetter),
		}}
	}

	post, err := s.repo.GetPost(ctx, jobID)
	if err != nil {
		return Application{}, err
	}
	if post.Status != StatusActive {
		return Application{}, ErrNotActive
	}

	now := s.now().UTC()
	return s.repo.CreateApplication(ctx, Application{
		ID:          uuid.New(),
		UserID:      actor.ID,
		JobID:       jobID,
		Status:      ApplicationPending,
		CoverLetter: coverLetter,
		AppliedAt:   now,
		UpdatedAt:   now,
	})
}

// MyApplications lists the applications actor submitted.
func (s *Service) MyApplications(ctx context.Context, actor accounts.User) ([]Application, error) {
	return s.repo.ListApplicationsByUser(ctx, actor.ID)
}

// PostApplications lists applications to one of actor's posts.
func (s *Service) PostApplications(ctx context.Context, actor accounts.User, jobID uuid.UUID) ([]Application, error) {
	if !actor.Can(accounts.CapabilityManageApplications) {
		return nil, ErrForbidden
	}
	if _, err := s.ownedPost(ctx, actor, jobID); err != nil {
		return nil, err
	}
	return s.repo.ListApplicationsByJob(ctx, jobID)
}

// CompanyApplications lists applications across all of actor's posts.
func (s *Service) CompanyApplications(ctx context.Context, actor accounts.User) ([]Application, error) {
	if !actor.Can(accounts.CapabilityManageApplications) {
		return nil, ErrForbidden
	}
	return s.repo.ListApplicationsByOwner(ctx, actor.ID)
}

// UpdateApplicationStatus records the owner's review decision.
func (s *Service) UpdateApplicationStatus(ctx context.Context, actor accounts.User, id uuid.UUID, status ApplicationStatus) (Application, error) {
	if !actor.Can(accounts.CapabilityManageApplications) {
		return Application{}, ErrForbidden
	}
	if !status.Valid() {
		return Application{}, &ValidationError{Fields: map[string]string{
			"status": "Must be one of: pending reviewed accepted rejected.",
		}}
	}
	app, err := s.repo.GetApplication(ctx, id)
	if err != nil {
		return Application{}, err
	}
	if _, err := s.ownedPost(ctx, actor, app.JobID); err != nil {
		if errors.Is(err, ErrForbidden) {
			return Application{}, ErrNotFound
		}
		return Application{}, err
	}
	return s.repo.UpdateApplicationStatus(ctx, id, status, s.now().UTC())
}

// Stats reports the public listing counters.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	active, err := s.repo.CountActive(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{TotalActiveJobs: active}
	if s.companies != nil {
		if stats.TotalCompanies, err = s.companies.CountCompanies(ctx); err != nil {
			return Stats{}, err
		}
	}
	return stats, nil
}

// ExpireListings closes active posts whose listing period has ended.
func (s *Service) ExpireListings(ctx context.Context) (int64, error) {
	return s.repo.ExpirePosts(ctx, s.now().UTC())
}

func (s *Service) ownedPost(ctx context.Context, actor accounts.User, id uuid.UUID) (Post, error) {
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return Post{}, err
	}
	if post.OwnerID != actor.ID {
		return Post{}, ErrForbidden
	}
	return post, nil
}

func (s *Service) validatePost(input *PostInput) error {
	input.Title = strings.TrimSpace(input.Title)
	input.EmploymentType = strings.TrimSpace(input.EmploymentType)
	input.Location = strings.TrimSpace(input.Location)
	input.Description = strings.TrimSpace(input.Description)
	if input.Status == "" {
		input.Status = StatusActive
	}
	benefits := make([]string, 0, len(input.Benefits))
	for _, b := range input.Benefits {
		if b = strings.TrimSpace(b); b != "" {
			benefits = append(benefits, b)
		}
	}
	input.Benefits = benefits

	fields := s.validate.Struct(input)
	if input.SalaryTo < input.SalaryFrom {
		if fields == nil {
			fields = map[string]string{}
		}
		fields["salary_to"] = "Ensure this value is greater than or equal to salary_from."
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
