package accounts

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when an account or profile cannot be located.
	ErrNotFound = errors.New("account not found")
	// ErrValidation is returned when input validation fails.
	ErrValidation = errors.New("validation error")
	// ErrDuplicateEmail is returned when the normalized email is already registered.
	ErrDuplicateEmail = errors.New("a user with this email already exists")
	// ErrInvalidCredentials is returned for any failed password login.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrIdentityConflict is returned when a provider identity belongs to a different account,
	// or the account already links another identity of the same provider.
	ErrIdentityConflict = errors.New("federated identity conflict")
	// ErrProfileExists is returned when the user already has a profile of the requested kind.
	ErrProfileExists = errors.New("profile already exists")
	// ErrRoleConflict is returned when the user already holds the other role.
	ErrRoleConflict = errors.New("user already has a different role")
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

func fieldError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// Role is the explicit account kind. The zero value means no role has been chosen yet.
type Role string

const (
	RoleNone      Role = ""
	RoleCompany   Role = "COMPANY"
	RoleJobSeeker Role = "JOB_SEEKER"
)

// Valid reports whether r is one of the assignable roles.
func (r Role) Valid() bool {
	return r == RoleCompany || r == RoleJobSeeker
}

// Capability names an action gated on the account role.
type Capability string

const (
	CapabilityPostJobs           Capability = "post_jobs"
	CapabilityManageApplications Capability = "manage_applications"
	CapabilityApplyToJobs        Capability = "apply_to_jobs"
)

var roleCapabilities = map[Role][]Capability{
	RoleCompany:   {CapabilityPostJobs, CapabilityManageApplications},
	RoleJobSeeker: {CapabilityApplyToJobs},
}

// User is a registered account.
type User struct {
	ID                        uuid.UUID
	Email                     string
	Name                      string
	Role                      Role
	OnboardingCompleted       bool
	LastOnboardingCompletedAt *time.Time
	PasswordHash              string
	BillingCustomerID         string
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// HasPassword reports whether the account can log in with a local password.
func (u User) HasPassword() bool {
	return u.PasswordHash != ""
}

// Can reports whether the user's role grants the capability.
func (u User) Can(c Capability) bool {
	for _, granted := range roleCapabilities[u.Role] {
		if granted == c {
			return true
		}
	}
	return false
}

// FederatedIdentity links a user to an external OAuth provider subject.
type FederatedIdentity struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Provider   string
	ExternalID string
	Claims     map[string]any
	CreatedAt  time.Time
}

// CompanyProfile is created during company onboarding.
type CompanyProfile struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"-"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	Logo      string    `json:"logo"`
	Website   string    `json:"website"`
	XAccount  string    `json:"x_account"`
	About     string    `json:"about"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobSeekerProfile is created during job seeker onboarding.
type JobSeekerProfile struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"-"`
	Name      string    `json:"name"`
	About     string    `json:"about"`
	Resume    string    `json:"resume"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeEmail trims and lower-cases an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
