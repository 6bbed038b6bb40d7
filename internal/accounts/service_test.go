package accounts

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *InMemoryRepository) {
	t.Helper()
	repo := NewInMemoryRepository(nil)
	svc := NewService(repo,
		WithHashCost(bcrypt.MinCost),
		WithClock(func() time.Time { return testNow }),
	)
	return svc, repo
}

func TestCreateLocalAccountNormalizesAndHashes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateLocalAccount(ctx, "  A@X.io ", "hunter22", " Ada ")
	require.NoError(t, err)

	assert.Equal(t, "a@x.io", user.Email)
	assert.Equal(t, "Ada", user.Name)
	assert.Equal(t, RoleNone, user.Role)
	assert.False(t, user.OnboardingCompleted)
	assert.NotEqual(t, "hunter22", user.PasswordHash)
	assert.True(t, svc.VerifyPassword(user, "hunter22"))
	assert.False(t, svc.VerifyPassword(user, "hunter23"))

	_, err = svc.CreateLocalAccount(ctx, "a@X.IO", "another-pass", "")
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestCreateLocalAccountValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateLocalAccount(context.Background(), "not-an-email", "short", "")
	require.ErrorIs(t, err, ErrValidation)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "password")
}

func TestCreateLocalAccountConcurrentSignupsOneWins(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	const attempts = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.CreateLocalAccount(ctx, "race@example.com", "password123", ""); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

func TestVerifyPasswordWithoutLocalPassword(t *testing.T) {
	svc, _ := newTestService(t)

	user, _, err := svc.GetOrCreateByEmail(context.Background(), "oauth@example.com", Defaults{})
	require.NoError(t, err)

	assert.False(t, user.HasPassword())
	assert.False(t, svc.VerifyPassword(user, ""))
	assert.False(t, svc.VerifyPassword(user, "anything"))
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateLocalAccount(ctx, "a@x.io", "hunter22", "")
	require.NoError(t, err)

	user, err := svc.Authenticate(ctx, "A@x.io", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)

	_, err = svc.Authenticate(ctx, "a@x.io", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody@x.io", "hunter22")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestGetOrCreateByEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, created, err := svc.GetOrCreateByEmail(ctx, "New@Example.com", Defaults{Name: "New User"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "new@example.com", user.Email)
	assert.Equal(t, "New User", user.Name)
	assert.False(t, user.OnboardingCompleted)
	assert.Equal(t, RoleNone, user.Role)

	again, created, err := svc.GetOrCreateByEmail(ctx, "new@example.com", Defaults{Name: "Other"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.ID, again.ID)
	assert.Equal(t, "New User", again.Name)
}

func TestGetOrCreateByEmailTruncatesLongNamesByCharacter(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	long := strings.Repeat("a", maxNameLength-1) + "éé"
	user, _, err := svc.GetOrCreateByEmail(ctx, "long@example.com", Defaults{Name: long})
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(user.Name))
	assert.Equal(t, maxNameLength, utf8.RuneCountInString(user.Name))
	assert.Equal(t, strings.Repeat("a", maxNameLength-1)+"é", user.Name)
}

func TestNameLengthCountsCharacters(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	accented := strings.Repeat("é", maxNameLength)
	user, err := svc.CreateLocalAccount(ctx, "e@x.io", "hunter22", accented)
	require.NoError(t, err)
	assert.Equal(t, accented, user.Name)

	updated, err := svc.UpdateProfile(ctx, user.ID, ProfileUpdate{Name: &accented})
	require.NoError(t, err)
	assert.Equal(t, accented, updated.Name)

	tooLong := accented + "é"
	_, err = svc.UpdateProfile(ctx, user.ID, ProfileUpdate{Name: &tooLong})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateLocalAccount(ctx, "f@x.io", "hunter22", tooLong)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGetOrCreateByEmailConcurrent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	const callers = 20
	ids := make([]uuid.UUID, callers)
	createdCount := make([]bool, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user, created, err := svc.GetOrCreateByEmail(ctx, "same@example.com", Defaults{})
			if err != nil {
				t.Errorf("get or create: %v", err)
				return
			}
			ids[i] = user.ID
			createdCount[i] = created
		}(i)
	}
	wg.Wait()

	creations := 0
	for i := range ids {
		assert.Equal(t, ids[0], ids[i])
		if createdCount[i] {
			creations++
		}
	}
	assert.Equal(t, 1, creations)
}

func TestLinkFederatedIdentity(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	owner, _, err := svc.GetOrCreateByEmail(ctx, "owner@example.com", Defaults{})
	require.NoError(t, err)
	other, _, err := svc.GetOrCreateByEmail(ctx, "other@example.com", Defaults{})
	require.NoError(t, err)

	first, err := svc.LinkFederatedIdentity(ctx, owner, "google", "sub-1", map[string]any{"email": "owner@example.com"})
	require.NoError(t, err)
	assert.Equal(t, owner.ID, first.UserID)

	t.Run("idempotent for the same user", func(t *testing.T) {
		again, err := svc.LinkFederatedIdentity(ctx, owner, "Google", "sub-1", nil)
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, "owner@example.com", again.Claims["email"])
	})

	t.Run("subject owned by another user", func(t *testing.T) {
		_, err := svc.LinkFederatedIdentity(ctx, other, "google", "sub-1", nil)
		assert.ErrorIs(t, err, ErrIdentityConflict)
	})

	t.Run("second subject for the same provider", func(t *testing.T) {
		_, err := svc.LinkFederatedIdentity(ctx, owner, "google", "sub-2", nil)
		assert.ErrorIs(t, err, ErrIdentityConflict)
	})

	t.Run("different provider is allowed", func(t *testing.T) {
		_, err := svc.LinkFederatedIdentity(ctx, owner, "github", "42", nil)
		assert.NoError(t, err)
	})

	t.Run("missing external id", func(t *testing.T) {
		_, err := svc.LinkFederatedIdentity(ctx, owner, "github", " ", nil)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateLocalAccount(ctx, "a@x.io", "hunter22", "")
	require.NoError(t, err)
	_, err = svc.CreateLocalAccount(ctx, "b@x.io", "hunter22", "")
	require.NoError(t, err)

	name := "Renamed"
	updated, err := svc.UpdateProfile(ctx, user.ID, ProfileUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "a@x.io", updated.Email)

	taken := "B@x.io"
	_, err = svc.UpdateProfile(ctx, user.ID, ProfileUpdate{Email: &taken})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	invalid := "nope"
	_, err = svc.UpdateProfile(ctx, user.ID, ProfileUpdate{Email: &invalid})
	assert.ErrorIs(t, err, ErrValidation)

	fresh := " C@x.io "
	updated, err = svc.UpdateProfile(ctx, user.ID, ProfileUpdate{Email: &fresh})
	require.NoError(t, err)
	assert.Equal(t, "c@x.io", updated.Email)

	found, err := svc.FindByEmail(ctx, "c@x.io")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	_, err = svc.FindByEmail(ctx, "a@x.io")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOnboardingCompleteAndReset(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateLocalAccount(ctx, "a@x.io", "hunter22", "")
	require.NoError(t, err)
	assert.Nil(t, user.LastOnboardingCompletedAt)

	completed, err := svc.CompleteOnboarding(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, completed.OnboardingCompleted)
	require.NotNil(t, completed.LastOnboardingCompletedAt)
	assert.Equal(t, testNow, *completed.LastOnboardingCompletedAt)

	reset, err := svc.ResetOnboarding(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, reset.OnboardingCompleted)
	require.NotNil(t, reset.LastOnboardingCompletedAt)

	_, err = svc.CompleteOnboarding(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateProfilesAssignRoleOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateLocalAccount(ctx, "acme@x.io", "hunter22", "")
	require.NoError(t, err)
	assert.False(t, user.Can(CapabilityPostJobs))

	company := CompanyInput{
		Name:     "Acme",
		Location: "Berlin",
		Website:  "https://acme.example.com",
		About:    "We build things.",
	}
	profile, updated, err := svc.CreateCompanyProfile(ctx, user.ID, company)
	require.NoError(t, err)
	assert.Equal(t, "Acme", profile.Name)
	assert.Equal(t, RoleCompany, updated.Role)
	assert.True(t, updated.OnboardingCompleted)
	assert.True(t, updated.Can(CapabilityPostJobs))
	assert.True(t, updated.Can(CapabilityManageApplications))
	assert.False(t, updated.Can(CapabilityApplyToJobs))

	_, _, err = svc.CreateCompanyProfile(ctx, user.ID, company)
	assert.ErrorIs(t, err, ErrProfileExists)

	_, _, err = svc.CreateJobSeekerProfile(ctx, user.ID, JobSeekerInput{
		Name:   "Ada",
		About:  "Engineer",
		Resume: "https://files.example.com/cv.pdf",
	})
	assert.ErrorIs(t, err, ErrRoleConflict)

	stored, err := svc.CompanyProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, profile.ID, stored.ID)
}

func TestCreateProfileValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateLocalAccount(ctx, "seeker@x.io", "hunter22", "")
	require.NoError(t, err)

	_, _, err = svc.CreateJobSeekerProfile(ctx, user.ID, JobSeekerInput{Name: "Ada", Resume: "not a url"})
	require.ErrorIs(t, err, ErrValidation)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "about")
	assert.Contains(t, verr.Fields, "resume")

	reloaded, err := svc.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, RoleNone, reloaded.Role)
}
