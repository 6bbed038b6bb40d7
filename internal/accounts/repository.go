package accounts

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence for users, federated identities and onboarding profiles.
// Uniqueness (email, provider subject, one identity per provider, one profile per kind) is
// enforced by the implementation, not by callers.
type Repository interface {
	// User operations
	CreateUser(ctx context.Context, user User) (User, error)
	// CreateUserIfAbsent inserts user unless the email is taken, returning the stored row and
	// whether it was created.
	CreateUserIfAbsent(ctx context.Context, user User) (User, bool, error)
	GetUser(ctx context.Context, id uuid.UUID) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
	UpdateUser(ctx context.Context, user User) (User, error)
	CountByRole(ctx context.Context, role Role) (int, error)

	// Identity operations
	// LinkIdentity inserts identity unless (provider, external id) or (user, provider) is taken,
	// then returns the row stored for (provider, external id).
	LinkIdentity(ctx context.Context, identity FederatedIdentity) (FederatedIdentity, error)
	FindIdentity(ctx context.Context, provider, externalID string) (FederatedIdentity, error)

	// Profile operations. Creating a profile also assigns the role and completes onboarding.
	CreateCompanyProfile(ctx context.Context, profile CompanyProfile, at time.Time) (User, error)
	CreateJobSeekerProfile(ctx context.Context, profile JobSeekerProfile, at time.Time) (User, error)
	GetCompanyProfile(ctx context.Context, userID uuid.UUID) (CompanyProfile, error)
	GetJobSeekerProfile(ctx context.Context, userID uuid.UUID) (JobSeekerProfile, error)
}
