//go:build integration

package accounts

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"worknest/internal/platform/pgtest"
)

func TestMain(m *testing.M) {
	os.Exit(pgtest.Run(m))
}

func newPostgresService(t *testing.T) (*Service, *PostgresRepository) {
	t.Helper()
	repo := NewPostgresRepository(pgtest.DB(t))
	return NewService(repo, WithHashCost(bcrypt.MinCost), WithClock(func() time.Time { return testNow })), repo
}

func TestPostgresCreateLocalAccountRejectsDuplicateEmail(t *testing.T) {
	svc, repo := newPostgresService(t)
	ctx := context.Background()

	user, err := svc.CreateLocalAccount(ctx, "Alice@Example.com", "password123", "Alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Empty(t, user.Role)

	_, err = svc.CreateLocalAccount(ctx, "ALICE@example.com", "password123", "")
	require.ErrorIs(t, err, ErrDuplicateEmail)

	stored, err := repo.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasPassword())
	assert.WithinDuration(t, testNow, stored.CreatedAt, time.Millisecond)
}

func TestPostgresGetOrCreateByEmailConcurrent(t *testing.T) {
	svc, _ := newPostgresService(t)
	ctx := context.Background()

	const workers = 8
	ids := make([]uuid.UUID, workers)
	created := make([]bool, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user, ok, err := svc.GetOrCreateByEmail(ctx, "oauth@example.com", Defaults{Name: "OAuth User"})
			ids[i], created[i], errs[i] = user.ID, ok, err
		}()
	}
	wg.Wait()

	createdCount := 0
	for i := range workers {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
		if created[i] {
			createdCount++
		}
	}
	assert.Equal(t, 1, createdCount)
}

func TestPostgresLinkIdentity(t *testing.T) {
	svc, repo := newPostgresService(t)
	ctx := context.Background()

	owner, err := svc.CreateLocalAccount(ctx, "owner@example.com", "password123", "")
	require.NoError(t, err)
	other, err := svc.CreateLocalAccount(ctx, "other@example.com", "password123", "")
	require.NoError(t, err)

	claims := map[string]any{"login": "octocat", "id": float64(42)}
	first, err := svc.LinkFederatedIdentity(ctx, owner, "github", "42", claims)
	require.NoError(t, err)
	again, err := svc.LinkFederatedIdentity(ctx, owner, "github", "42", nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	stored, err := repo.FindIdentity(ctx, "github", "42")
	require.NoError(t, err)
	assert.Equal(t, "octocat", stored.Claims["login"])

	_, err = svc.LinkFederatedIdentity(ctx, other, "github", "42", nil)
	require.ErrorIs(t, err, ErrIdentityConflict)

	_, err = svc.LinkFederatedIdentity(ctx, owner, "github", "99", nil)
	require.ErrorIs(t, err, ErrIdentityConflict)
}

func TestPostgresProfilesAssignRoleOnce(t *testing.T) {
	svc, repo := newPostgresService(t)
	ctx := context.Background()

	user, err := svc.CreateLocalAccount(ctx, "hr@acme.test", "password123", "")
	require.NoError(t, err)

	_, updated, err := svc.CreateCompanyProfile(ctx, user.ID, CompanyInput{
		Name: "Acme", Location: "Berlin", Website: "https://acme.test", About: "Tools",
	})
	require.NoError(t, err)
	assert.Equal(t, RoleCompany, updated.Role)
	assert.True(t, updated.OnboardingCompleted)

	_, _, err = svc.CreateCompanyProfile(ctx, user.ID, CompanyInput{
		Name: "Acme", Location: "Berlin", Website: "https://acme.test", About: "Tools",
	})
	require.ErrorIs(t, err, ErrProfileExists)

	_, _, err = svc.CreateJobSeekerProfile(ctx, user.ID, JobSeekerInput{
		Name: "Dev", About: "Gopher", Resume: "https://cdn.example.com/cv.pdf",
	})
	require.ErrorIs(t, err, ErrRoleConflict)

	_, err = repo.GetJobSeekerProfile(ctx, user.ID)
	require.ErrorIs(t, err, ErrNotFound, "role conflict must roll back the profile insert")

	count, err := svc.CountCompanies(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPostgresUpdateProfileAndOnboarding(t *testing.T) {
	svc, repo := newPostgresService(t)
	ctx := context.Background()

	user, err := svc.CreateLocalAccount(ctx, "alice@example.com", "password123", "Alice")
	require.NoError(t, err)
	_, err = svc.CreateLocalAccount(ctx, "taken@example.com", "password123", "")
	require.NoError(t, err)

	name, email := "Alice Liddell", "Alice.New@Example.com"
	updated, err := svc.UpdateProfile(ctx, user.ID, ProfileUpdate{Name: &name, Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", updated.Name)
	assert.Equal(t, "alice.new@example.com", updated.Email)
	assert.True(t, updated.HasPassword())
	assert.WithinDuration(t, user.CreatedAt, updated.CreatedAt, time.Millisecond)

	taken := "taken@example.com"
	_, err = svc.UpdateProfile(ctx, user.ID, ProfileUpdate{Email: &taken})
	require.ErrorIs(t, err, ErrDuplicateEmail)

	completed, err := svc.CompleteOnboarding(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, completed.OnboardingCompleted)
	require.NotNil(t, completed.LastOnboardingCompletedAt)

	reset, err := svc.ResetOnboarding(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, reset.OnboardingCompleted)
	require.NotNil(t, reset.LastOnboardingCompletedAt)

	stored, err := repo.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, stored.OnboardingCompleted)
	assert.Equal(t, "alice.new@example.com", stored.Email)
}
