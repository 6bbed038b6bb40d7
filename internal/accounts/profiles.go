package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CompanyInput is the payload for company onboarding.
type CompanyInput struct {
	Name     string `json:"name" validate:"required,max=255"`
	Location string `json:"location" validate:"required,max=255"`
	Logo     string `json:"logo" validate:"omitempty,url,max=2048"`
	Website  string `json:"website" validate:"required,url,max=2048"`
	XAccount string `json:"x_account" validate:"omitempty,max=255"`
	About    string `json:"about" validate:"required"`
}

// JobSeekerInput is the payload for job seeker onboarding.
type JobSeekerInput struct {
	Name   string `json:"name" validate:"required,max=255"`
	About  string `json:"about" validate:"required"`
	Resume string `json:"resume" validate:"required,url,max=2048"`
}

// CreateCompanyProfile stores the company profile, assigns RoleCompany and completes
// onboarding in one step.
func (s *Service) CreateCompanyProfile(ctx context.Context, userID uuid.UUID, input CompanyInput) (CompanyProfile, User, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Location = strings.TrimSpace(input.Location)
	input.Logo = strings.TrimSpace(input.Logo)
	input.Website = strings.TrimSpace(input.Website)
	input.XAccount = strings.TrimSpace(input.XAccount)
	input.About = strings.TrimSpace(input.About)
	if fields := s.validate.Struct(input); fields != nil {
		return CompanyProfile{}, User{}, &ValidationError{Fields: fields}
	}

	if err := s.ensureRoleAvailable(ctx, userID, RoleCompany); err != nil {
		return CompanyProfile{}, User{}, err
	}

	now := s.now().UTC()
	profile := CompanyProfile{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      input.Name,
		Location:  input.Location,
		Logo:      input.Logo,
		Website:   input.Website,
		XAccount:  input.XAccount,
		About:     input.About,
		CreatedAt: now,
		UpdatedAt: now,
	}

	user, err := s.repo.CreateCompanyProfile(ctx, profile, now)
	if err != nil {
		return CompanyProfile{}, User{}, profileError("company", err)
	}
	return profile, user, nil
}

// CreateJobSeekerProfile stores the job seeker profile, assigns RoleJobSeeker and completes
// onboarding in one step.
func (s *Service) CreateJobSeekerProfile(ctx context.Context, userID uuid.UUID, input JobSeekerInput) (JobSeekerProfile, User, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.About = strings.TrimSpace(input.About)
	input.Resume = strings.TrimSpace(input.Resume)
	if fields := s.validate.Struct(input); fields != nil {
		return JobSeekerProfile{}, User{}, &ValidationError{Fields: fields}
	}

	if err := s.ensureRoleAvailable(ctx, userID, RoleJobSeeker); err != nil {
		return JobSeekerProfile{}, User{}, err
	}

	now := s.now().UTC()
	profile := JobSeekerProfile{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      input.Name,
		About:     input.About,
		Resume:    input.Resume,
		CreatedAt: now,
		UpdatedAt: now,
	}

	user, err := s.repo.CreateJobSeekerProfile(ctx, profile, now)
	if err != nil {
		return JobSeekerProfile{}, User{}, profileError("job seeker", err)
	}
	return profile, user, nil
}

// CompanyProfile returns the company profile owned by userID.
func (s *Service) CompanyProfile(ctx context.Context, userID uuid.UUID) (CompanyProfile, error) {
	return s.repo.GetCompanyProfile(ctx, userID)
}

// JobSeekerProfile returns the job seeker profile owned by userID.
func (s *Service) JobSeekerProfile(ctx context.Context, userID uuid.UUID) (JobSeekerProfile, error) {
	return s.repo.GetJobSeekerProfile(ctx, userID)
}

func (s *Service) ensureRoleAvailable(ctx context.Context, userID uuid.UUID, role Role) error {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.Role != RoleNone && user.Role != role {
		return ErrRoleConflict
	}
	return nil
}

func profileError(kind string, err error) error {
	switch {
	case errors.Is(err, ErrProfileExists), errors.Is(err, ErrRoleConflict), errors.Is(err, ErrNotFound):
		return err
	default:
		return fmt.Errorf("create %s profile: %w", kind, err)
	}
}
