package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"worknest/internal/validation"
)

const (
	minPasswordLength = 8
	// bcrypt ignores input past 72 bytes; longer passwords are rejected instead of truncated.
	maxPasswordBytes = 72
	maxNameLength    = 255
)

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(s *Service) {
		s.hashCost = cost
	}
}

// Service implements the credential store: local accounts, password checks, federated links
// and onboarding state.
type Service struct {
	repo     Repository
	validate *validation.Validator
	now      func() time.Time
	hashCost int
}

// NewService wires a Service with the provided repository.
func NewService(repo Repository, opts ...Option) *Service {
	svc := &Service{
		repo:     repo,
		validate: validation.New(),
		now:      time.Now,
		hashCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Defaults seeds fields of accounts created implicitly by OAuth logins.
type Defaults struct {
	Name string
}

// ProfileUpdate carries the public fields a user may change. Nil fields are left untouched.
type ProfileUpdate struct {
	Name  *string
	Email *string
}

// CreateLocalAccount registers an email/password account.
func (s *Service) CreateLocalAccount(ctx context.Context, email, password, name string) (User, error) {
	email = NormalizeEmail(email)
	name = strings.TrimSpace(name)

	fields := map[string]string{}
	if !s.validate.Var(email, "required,email") {
		fields["email"] = "Enter a valid email address."
	}
	if len(password) < minPasswordLength {
		fields["password"] = fmt.Sprintf("Ensure this field has at least %d characters.", minPasswordLength)
	} else if len(password) > maxPasswordBytes {
		fields["password"] = fmt.Sprintf("Ensure this field has no more than %d bytes.", maxPasswordBytes)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		fields["name"] = fmt.Sprintf("Ensure this field has no more than %d characters.", maxNameLength)
	}
	if len(fields) > 0 {
		return User{}, &ValidationError{Fields: fields}
	}

	hash, err := hashPassword(password, s.hashCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := s.repo.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return User{}, ErrDuplicateEmail
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// Get returns the user with the given id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CountCompanies reports how many accounts completed company onboarding.
func (s *Service) CountCompanies(ctx context.Context) (int, error) {
	return s.repo.CountByRole(ctx, RoleCompany)
}

// FindByEmail returns the user registered under the normalized email.
func (s *Service) FindByEmail(ctx context.Context, email string) (User, error) {
	return s.repo.FindUserByEmail(ctx, NormalizeEmail(email))
}

// FindByIdentity returns the user linked to the provider subject, or ErrNotFound when the
// subject has never been linked.
func (s *Service) FindByIdentity(ctx context.Context, provider, externalID string) (User, error) {
	identity, err := s.repo.FindIdentity(ctx, strings.ToLower(strings.TrimSpace(provider)), strings.TrimSpace(externalID))
	if err != nil {
		return User{}, err
	}
	return s.repo.GetUser(ctx, identity.UserID)
}

// VerifyPassword reports whether plaintext matches the stored hash. Accounts without a local
// password never match.
func (s *Service) VerifyPassword(user User, plaintext string) bool {
	if !user.HasPassword() {
		return false
	}
	return checkPassword(user.PasswordHash, plaintext)
}

// Authenticate resolves an email/password pair to a user. Unknown emails and wrong passwords
// both yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := s.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return User{}, ErrInvalidCredentials
		}
		return User{}, fmt.Errorf("find user: %w", err)
	}

	if !s.VerifyPassword(user, password) {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// GetOrCreateByEmail returns the account for email, creating a bare one (no password, no role,
// onboarding incomplete) when none exists.
func (s *Service) GetOrCreateByEmail(ctx context.Context, email string, defaults Defaults) (User, bool, error) {
	email = NormalizeEmail(email)
	if !s.validate.Var(email, "required,email") {
		return User{}, false, fieldError("email", "Enter a valid email address.")
	}

	name := strings.TrimSpace(defaults.Name)
	name = truncateRunes(name, maxNameLength)

	now := s.now().UTC()
	candidate := User{
		ID:        uuid.New(),
		Email:     email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	user, created, err := s.repo.CreateUserIfAbsent(ctx, candidate)
	if err != nil {
		return User{}, false, fmt.Errorf("get or create user: %w", err)
	}
	return user, created, nil
}

// LinkFederatedIdentity records that user owns the provider subject. Repeated calls for the
// same user are idempotent; a subject owned by another user is ErrIdentityConflict.
func (s *Service) LinkFederatedIdentity(ctx context.Context, user User, provider, externalID string, claims map[string]any) (FederatedIdentity, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	externalID = strings.TrimSpace(externalID)
	if provider == "" {
		return FederatedIdentity{}, fieldError("provider", "This field is required.")
	}
	if externalID == "" {
		return FederatedIdentity{}, fieldError("external_id", "This field is required.")
	}

	identity := FederatedIdentity{
		ID:         uuid.New(),
		UserID:     user.ID,
		Provider:   provider,
		ExternalID: externalID,
		Claims:     claims,
		CreatedAt:  s.now().UTC(),
	}

	stored, err := s.repo.LinkIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, ErrIdentityConflict) {
			return FederatedIdentity{}, err
		}
		return FederatedIdentity{}, fmt.Errorf("link identity: %w", err)
	}

	if stored.UserID != user.ID {
		return FederatedIdentity{}, fmt.Errorf("%w: %s subject belongs to another account", ErrIdentityConflict, provider)
	}
	return stored, nil
}

// UpdateProfile applies changes to the user's public fields.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, input ProfileUpdate) (User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if utf8.RuneCountInString(name) > maxNameLength {
			return User{}, fieldError("name", fmt.Sprintf("Ensure this field has no more than %d characters.", maxNameLength))
		}
		user.Name = name
	}
	if input.Email != nil {
		email := NormalizeEmail(*input.Email)
		if !s.validate.Var(email, "required,email") {
			return User{}, fieldError("email", "Enter a valid email address.")
		}
		user.Email = email
	}

	user.UpdatedAt = s.now().UTC()
	return s.repo.UpdateUser(ctx, user)
}

// CompleteOnboarding marks onboarding as finished and stamps the completion time.
func (s *Service) CompleteOnboarding(ctx context.Context, id uuid.UUID) (User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}

	now := s.now().UTC()
	user.OnboardingCompleted = true
	user.LastOnboardingCompletedAt = &now
	user.UpdatedAt = now
	return s.repo.UpdateUser(ctx, user)
}

// ResetOnboarding clears the onboarding flag; the last completion time is kept.
func (s *Service) ResetOnboarding(ctx context.Context, id uuid.UUID) (User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}

	user.OnboardingCompleted = false
	user.UpdatedAt = s.now().UTC()
	return s.repo.UpdateUser(ctx, user)
}

// truncateRunes cuts s to at most n characters without splitting a multi-byte rune.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
