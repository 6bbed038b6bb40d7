package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worknest/internal/accounts"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type companyCounterStub struct {
	count int
}

func (c companyCounterStub) CountCompanies(context.Context) (int, error) {
	return c.count, nil
}

func newTestService(t *testing.T) (*Service, *InMemoryRepository) {
	t.Helper()
	repo := NewInMemoryRepository(nil)
	return NewService(repo, companyCounterStub{count: 3}, WithClock(func() time.Time { return testNow })), repo
}

func company() accounts.User {
	return accounts.User{ID: uuid.New(), Email: "hr@acme.test", Role: accounts.RoleCompany, OnboardingCompleted: true}
}

func seeker() accounts.User {
	return accounts.User{ID: uuid.New(), Email: "dev@example.com", Role: accounts.RoleJobSeeker, OnboardingCompleted: true}
}

func validInput() PostInput {
	return PostInput{
		Title:           "Backend Engineer",
		EmploymentType:  "Full-time",
		Location:        "Remote",
		SalaryFrom:      90000,
		SalaryTo:        120000,
		Description:     "Build APIs in Go.",
		ListingDuration: 30,
		Benefits:        []string{"Health", " ", "Equity"},
	}
}

func TestCreatePost(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := company()

	post, err := svc.CreatePost(ctx, owner, validInput())
	require.NoError(t, err)
	assert.Equal(t, owner.ID, post.OwnerID)
	assert.Equal(t, StatusActive, post.Status)
	assert.Equal(t, []string{"Health", "Equity"}, post.Benefits)
	assert.Equal(t, testNow, post.CreatedAt)
	assert.Equal(t, testNow.Add(30*24*time.Hour), post.ExpiresAt())
}

func TestCreatePostRequiresCompany(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreatePost(ctx, seeker(), validInput())
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.CreatePost(ctx, accounts.User{ID: uuid.New()}, validInput())
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCreatePostValidation(t *testing.T) {
	svc, _ := newTestService(t)
	input := validInput()
	input.Title = "  "
	input.SalaryTo = 1000
	input.ListingDuration = 0
	input.Status = "PAID"

	_, err := svc.CreatePost(context.Background(), company(), input)
	require.ErrorIs(t, err, ErrValidation)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "job_title")
	assert.Contains(t, verr.Fields, "salary_to")
	assert.Contains(t, verr.Fields, "listing_duration")
	assert.Contains(t, verr.Fields, "status")
}

func TestListActiveAndVisibility(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := company()

	active, err := svc.CreatePost(ctx, owner, validInput())
	require.NoError(t, err)

	draftInput := validInput()
	draftInput.Title = "Draft role"
	draftInput.Status = StatusDraft
	draft, err := svc.CreatePost(ctx, owner, draftInput)
	require.NoError(t, err)

	posts, err := svc.ListActive(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, active.ID, posts[0].ID)

	posts, err = svc.ListActive(ctx, "apis", 0)
	require.NoError(t, err)
	assert.Len(t, posts, 1)

	posts, err = svc.ListActive(ctx, "designer", 0)
	require.NoError(t, err)
	assert.Empty(t, posts)

	_, err = svc.GetPost(ctx, nil, draft.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	other := seeker()
	_, err = svc.GetPost(ctx, &other, draft.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := svc.GetPost(ctx, &owner, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, got.Status)

	mine, err := svc.MyPosts(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestUpdateAndDeleteRequireOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := company()
	rival := company()

	post, err := svc.CreatePost(ctx, owner, validInput())
	require.NoError(t, err)

	input := validInput()
	input.Title = "Senior Backend Engineer"

	_, err = svc.UpdatePost(ctx, rival, post.ID, input)
	assert.ErrorIs(t, err, ErrForbidden)

	updated, err := svc.UpdatePost(ctx, owner, post.ID, input)
	require.NoError(t, err)
	assert.Equal(t, "Senior Backend Engineer", updated.Title)

	assert.ErrorIs(t, svc.DeletePost(ctx, rival, post.ID), ErrForbidden)
	require.NoError(t, svc.DeletePost(ctx, owner, post.ID))
	assert.ErrorIs(t, svc.DeletePost(ctx, owner, post.ID), ErrNotFound)
}

func TestSaveJob(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := company()
	user := seeker()

	post, err := svc.CreatePost(ctx, owner, validInput())
	require.NoError(t, err)

	saved, created, err := svc.SaveJob(ctx, user, post.ID)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, saved.Job)
	assert.Equal(t, post.Title, saved.Job.Title)

	again, created, err := svc.SaveJob(ctx, user, post.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, saved.ID, again.ID)

	list, err := svc.SavedJobs(ctx, user)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, svc.UnsaveJob(ctx, seeker(), saved.ID), ErrNotFound)
	require.NoError(t, svc.UnsaveJob(ctx, user, saved.ID))

	draftInput := validInput()
	draftInput.Status = StatusDraft
	draft, err := svc.CreatePost(ctx, owner, draftInput)
	require.NoError(t, err)
	_, _, err = svc.SaveJob(ctx, user, draft.ID)
	assert.ErrorIs(t, err, ErrNotActive)

	_, _, err = svc.SaveJob(ctx, user, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApply(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	owner := company()
	user := seeker()

	post, err := svc.CreatePost(ctx, owner, validInput())
	require.NoError(t, err)

	_, err = svc.Apply(ctx, owner, post.ID, "")
	assert.ErrorIs(t, err, ErrForbidden)

	app, err := svc.Apply(ctx, user, post.ID, "  I love Go.  ")
	require.NoError(t, err)
	assert.Equal(t, ApplicationPending, app.Status)
	assert.Equal(t, "I love Go.", app.CoverLetter)
	assert.Equal(t, post.Title, app.JobTitle)

	_, err = svc.Apply(ctx, user, post.ID, "again")
	assert.ErrorIs(t, err, ErrAlreadyApplied)

	stored, err := repo.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Applications)

	mine, err := svc.MyApplications(ctx, user)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestConcurrentApplyCountsOnce(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	user := seeker()

	post, err := svc.CreatePost(ctx, company(), validInput())
	require.NoError(t, err)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Apply(ctx, user, post.ID, ""); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	stored, err := repo.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Applications)
}

func TestReviewApplications(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := company()
	rival := company()
	user := seeker()

	post, err := svc.CreatePost(ctx, owner, validInput())
	require.NoError(t, err)
	app, err := svc.Apply(ctx, user, post.ID, "")
	require.NoError(t, err)

	_, err = svc.PostApplications(ctx, rival, post.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	apps, err := svc.PostApplications(ctx, owner, post.ID)
	require.NoError(t, err)
	assert.Len(t, apps, 1)

	all, err := svc.CompanyApplications(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	none, err := svc.CompanyApplications(ctx, rival)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = svc.UpdateApplicationStatus(ctx, rival, app.ID, ApplicationAccepted)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.UpdateApplicationStatus(ctx, owner, app.ID, "hired")
	assert.ErrorIs(t, err, ErrValidation)

	updated, err := svc.UpdateApplicationStatus(ctx, owner, app.ID, ApplicationAccepted)
	require.NoError(t, err)
	assert.Equal(t, ApplicationAccepted, updated.Status)

	_, err = svc.UpdateApplicationStatus(ctx, user, app.ID, ApplicationRejected)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestStatsAndExpiry(t *testing.T) {
	repo := NewInMemoryRepository(nil)
	now := testNow
	svc := NewService(repo, companyCounterStub{count: 2}, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	short := validInput()
	short.ListingDuration = 1
	_, err := svc.CreatePost(ctx, company(), short)
	require.NoError(t, err)
	_, err = svc.CreatePost(ctx, company(), validInput())
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{TotalActiveJobs: 2, TotalCompanies: 2}, stats)

	now = testNow.Add(48 * time.Hour)
	expired, err := svc.ExpireListings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	stats, err = svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalActiveJobs)
}
