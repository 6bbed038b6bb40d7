package accounts

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

type identityKey struct {
	provider   string
	externalID string
}

type userProviderKey struct {
	userID   uuid.UUID
	provider string
}

// InMemoryRepository stores accounts in process memory, ideal for local development or tests.
// A single mutex makes every check-and-insert atomic.
type InMemoryRepository struct {
	mu         sync.RWMutex
	users      map[uuid.UUID]User
	byEmail    map[string]uuid.UUID
	identities map[identityKey]FederatedIdentity
	byProvider map[userProviderKey]identityKey
	companies  map[uuid.UUID]CompanyProfile
	seekers    map[uuid.UUID]JobSeekerProfile
}

// NewInMemoryRepository constructs a repository seeded with optional initial users.
func NewInMemoryRepository(initial []User) *InMemoryRepository {
	r := &InMemoryRepository{
		users:      make(map[uuid.UUID]User),
		byEmail:    make(map[string]uuid.UUID),
		identities: make(map[identityKey]FederatedIdentity),
		byProvider: make(map[userProviderKey]identityKey),
		companies:  make(map[uuid.UUID]CompanyProfile),
		seekers:    make(map[uuid.UUID]JobSeekerProfile),
	}
	for _, user := range initial {
		r.users[user.ID] = user
		r.byEmail[user.Email] = user.ID
	}
	return r
}

// CreateUser stores a new user, rejecting taken emails.
func (r *InMemoryRepository) CreateUser(_ context.Context, user User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return User{}, ErrDuplicateEmail
	}
	r.users[user.ID] = user
	r.byEmail[user.Email] = user.ID
	return user, nil
}

// CreateUserIfAbsent stores user unless its email is registered.
func (r *InMemoryRepository) CreateUserIfAbsent(_ context.Context, user User) (User, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, taken := r.byEmail[user.Email]; taken {
		return r.users[id], false, nil
	}
	r.users[user.ID] = user
	r.byEmail[user.Email] = user.ID
	return user, true, nil
}

// GetUser returns a user by ID.
func (r *InMemoryRepository) GetUser(_ context.Context, id uuid.UUID) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

// FindUserByEmail returns a user by normalized email.
func (r *InMemoryRepository) FindUserByEmail(_ context.Context, email string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return User{}, ErrNotFound
	}
	return r.users[id], nil
}

// UpdateUser replaces an existing user, keeping the email index consistent.
func (r *InMemoryRepository) UpdateUser(_ context.Context, user User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[user.ID]
	if !ok {
		return User{}, ErrNotFound
	}
	if user.Email != existing.Email {
		if _, taken := r.byEmail[user.Email]; taken {
			return User{}, ErrDuplicateEmail
		}
		delete(r.byEmail, existing.Email)
		r.byEmail[user.Email] = user.ID
	}
	r.users[user.ID] = user
	return user, nil
}

// CountByRole counts users holding role.
func (r *InMemoryRepository) CountByRole(_ context.Context, role Role) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int
	for _, user := range r.users {
		if user.Role == role {
			count++
		}
	}
	return count, nil
}

// LinkIdentity stores identity unless either uniqueness rule is already satisfied by another row.
func (r *InMemoryRepository) LinkIdentity(_ context.Context, identity FederatedIdentity) (FederatedIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[identity.UserID]; !ok {
		return FederatedIdentity{}, ErrNotFound
	}

	key := identityKey{provider: identity.Provider, externalID: identity.ExternalID}
	if existing, ok := r.identities[key]; ok {
		return cloneIdentity(existing), nil
	}

	upk := userProviderKey{userID: identity.UserID, provider: identity.Provider}
	if _, linked := r.byProvider[upk]; linked {
		return FederatedIdentity{}, ErrIdentityConflict
	}

	stored := cloneIdentity(identity)
	r.identities[key] = stored
	r.byProvider[upk] = key
	return cloneIdentity(stored), nil
}

// FindIdentity returns the identity stored for a provider subject.
func (r *InMemoryRepository) FindIdentity(_ context.Context, provider, externalID string) (FederatedIdentity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.identities[identityKey{provider: provider, externalID: externalID}]
	if !ok {
		return FederatedIdentity{}, ErrNotFound
	}
	return cloneIdentity(identity), nil
}

// CreateCompanyProfile stores the profile and updates the owner's role and onboarding state.
func (r *InMemoryRepository) CreateCompanyProfile(_ context.Context, profile CompanyProfile, at time.Time) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, err := r.assignRoleLocked(profile.UserID, RoleCompany, at, r.hasCompanyLocked)
	if err != nil {
		return User{}, err
	}
	r.companies[profile.UserID] = profile
	return user, nil
}

// CreateJobSeekerProfile stores the profile and updates the owner's role and onboarding state.
func (r *InMemoryRepository) CreateJobSeekerProfile(_ context.Context, profile JobSeekerProfile, at time.Time) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, err := r.assignRoleLocked(profile.UserID, RoleJobSeeker, at, r.hasSeekerLocked)
	if err != nil {
		return User{}, err
	}
	r.seekers[profile.UserID] = profile
	return user, nil
}

// GetCompanyProfile returns the company profile for a user.
func (r *InMemoryRepository) GetCompanyProfile(_ context.Context, userID uuid.UUID) (CompanyProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.companies[userID]
	if !ok {
		return CompanyProfile{}, ErrNotFound
	}
	return profile, nil
}

// GetJobSeekerProfile returns the job seeker profile for a user.
func (r *InMemoryRepository) GetJobSeekerProfile(_ context.Context, userID uuid.UUID) (JobSeekerProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.seekers[userID]
	if !ok {
		return JobSeekerProfile{}, ErrNotFound
	}
	return profile, nil
}

func (r *InMemoryRepository) hasCompanyLocked(userID uuid.UUID) bool {
	_, ok := r.companies[userID]
	return ok
}

func (r *InMemoryRepository) hasSeekerLocked(userID uuid.UUID) bool {
	_, ok := r.seekers[userID]
	return ok
}

func (r *InMemoryRepository) assignRoleLocked(userID uuid.UUID, role Role, at time.Time, exists func(uuid.UUID) bool) (User, error) {
	user, ok := r.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	if exists(userID) {
		return User{}, ErrProfileExists
	}
	if user.Role != RoleNone && user.Role != role {
		return User{}, ErrRoleConflict
	}

	user.Role = role
	user.OnboardingCompleted = true
	user.LastOnboardingCompletedAt = &at
	user.UpdatedAt = at
	r.users[userID] = user
	return user, nil
}

func cloneIdentity(identity FederatedIdentity) FederatedIdentity {
	if identity.Claims != nil {
		identity.Claims = maps.Clone(identity.Claims)
	}
	return identity
}
