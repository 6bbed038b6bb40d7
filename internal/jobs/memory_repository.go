package jobs

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type userJobKey struct {
	userID uuid.UUID
	jobID  uuid.UUID
}

// InMemoryRepository keeps job data in process memory for local development and tests.
type InMemoryRepository struct {
	mu           sync.RWMutex
	posts        map[uuid.UUID]Post
	order        []uuid.UUID
	saved        map[uuid.UUID]SavedJob
	savedByKey   map[userJobKey]uuid.UUID
	applications map[uuid.UUID]Application
	appliedByKey map[userJobKey]uuid.UUID
}

// NewInMemoryRepository constructs a repository seeded with optional posts.
func NewInMemoryRepository(initial []Post) *InMemoryRepository {
	r := &InMemoryRepository{
		posts:        make(map[uuid.UUID]Post),
		saved:        make(map[uuid.UUID]SavedJob),
		savedByKey:   make(map[userJobKey]uuid.UUID),
		applications: make(map[uuid.UUID]Application),
		appliedByKey: make(map[userJobKey]uuid.UUID),
	}
	for _, post := range initial {
		r.posts[post.ID] = clonePost(post)
		r.order = append(r.order, post.ID)
	}
	return r
}

func (r *InMemoryRepository) CreatePost(_ context.Context, post Post) (Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.posts[post.ID] = clonePost(post)
	r.order = append(r.order, post.ID)
	return clonePost(post), nil
}

func (r *InMemoryRepository) GetPost(_ context.Context, id uuid.UUID) (Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	post, ok := r.posts[id]
	if !ok {
		return Post{}, ErrNotFound
	}
	return clonePost(post), nil
}

func (r *InMemoryRepository) UpdatePost(_ context.Context, post Post) (Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.posts[post.ID]
	if !ok {
		return Post{}, ErrNotFound
	}
	post.Applications = current.Applications
	post.CreatedAt = current.CreatedAt
	r.posts[post.ID] = clonePost(post)
	return clonePost(post), nil
}

// DeletePost removes a post together with its bookmarks and applications.
func (r *InMemoryRepository) DeletePost(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.posts[id]; !ok {
		return ErrNotFound
	}
	delete(r.posts, id)
	r.order = slices.DeleteFunc(r.order, func(existing uuid.UUID) bool { return existing == id })
	for savedID, saved := range r.saved {
		if saved.JobID == id {
			delete(r.saved, savedID)
			delete(r.savedByKey, userJobKey{saved.UserID, saved.JobID})
		}
	}
	for appID, app := range r.applications {
		if app.JobID == id {
			delete(r.applications, appID)
			delete(r.appliedByKey, userJobKey{app.UserID, app.JobID})
		}
	}
	return nil
}

// ListPosts returns matching posts newest first.
func (r *InMemoryRepository) ListPosts(_ context.Context, opts ListOptions) ([]Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(opts.Query))
	var result []Post
	for _, id := range r.order {
		post := r.posts[id]
		if opts.OwnerID != nil && post.OwnerID != *opts.OwnerID {
			continue
		}
		if opts.Status != nil && post.Status != *opts.Status {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(post.Title), query) &&
			!strings.Contains(strings.ToLower(post.Description), query) {
			continue
		}
		result = append(result, clonePost(post))
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

func (r *InMemoryRepository) CountActive(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int
	for _, post := range r.posts {
		if post.Status == StatusActive {
			count++
		}
	}
	return count, nil
}

func (r *InMemoryRepository) ExpirePosts(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired int64
	for id, post := range r.posts {
		if post.Status == StatusActive && post.ExpiresAt().Before(now) {
			post.Status = StatusExpired
			post.UpdatedAt = now
			r.posts[id] = post
			expired++
		}
	}
	return expired, nil
}

func (r *InMemoryRepository) SaveJob(_ context.Context, saved SavedJob) (SavedJob, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	post, ok := r.posts[saved.JobID]
	if !ok {
		return SavedJob{}, false, ErrNotFound
	}
	key := userJobKey{saved.UserID, saved.JobID}
	if id, exists := r.savedByKey[key]; exists {
		existing := r.saved[id]
		existing.Job = ptr(clonePost(post))
		return existing, false, nil
	}
	saved.Job = nil
	r.saved[saved.ID] = saved
	r.savedByKey[key] = saved.ID
	saved.Job = ptr(clonePost(post))
	return saved, true, nil
}

func (r *InMemoryRepository) ListSaved(_ context.Context, userID uuid.UUID) ([]SavedJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []SavedJob
	for _, saved := range r.saved {
		if saved.UserID != userID {
			continue
		}
		saved.Job = ptr(clonePost(r.posts[saved.JobID]))
		result = append(result, saved)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *InMemoryRepository) DeleteSaved(_ context.Context, id, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	saved, ok := r.saved[id]
	if !ok || saved.UserID != userID {
		return ErrNotFound
	}
	delete(r.saved, id)
	delete(r.savedByKey, userJobKey{saved.UserID, saved.JobID})
	return nil
}

func (r *InMemoryRepository) CreateApplication(_ context.Context, app Application) (Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	post, ok := r.posts[app.JobID]
	if !ok {
		return Application{}, ErrNotFound
	}
	key := userJobKey{app.UserID, app.JobID}
	if _, exists := r.appliedByKey[key]; exists {
		return Application{}, ErrAlreadyApplied
	}
	app.JobTitle = post.Title
	r.applications[app.ID] = app
	r.appliedByKey[key] = app.ID
	post.Applications++
	r.posts[post.ID] = post
	return app, nil
}

func (r *InMemoryRepository) GetApplication(_ context.Context, id uuid.UUID) (Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	app, ok := r.applications[id]
	if !ok {
		return Application{}, ErrNotFound
	}
	return r.withTitle(app), nil
}

func (r *InMemoryRepository) ListApplicationsByUser(_ context.Context, userID uuid.UUID) ([]Application, error) {
	return r.filterApplications(func(app Application) bool { return app.UserID == userID }), nil
}

func (r *InMemoryRepository) ListApplicationsByJob(_ context.Context, jobID uuid.UUID) ([]Application, error) {
	return r.filterApplications(func(app Application) bool { return app.JobID == jobID }), nil
}

func (r *InMemoryRepository) ListApplicationsByOwner(_ context.Context, ownerID uuid.UUID) ([]Application, error) {
	r.mu.RLock()
	owned := make(map[uuid.UUID]bool)
	for id, post := range r.posts {
		if post.OwnerID == ownerID {
			owned[id] = true
		}
	}
	r.mu.RUnlock()
	return r.filterApplications(func(app Application) bool { return owned[app.JobID] }), nil
}

func (r *InMemoryRepository) UpdateApplicationStatus(_ context.Context, id uuid.UUID, status ApplicationStatus, at time.Time) (Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	app, ok := r.applications[id]
	if !ok {
		return Application{}, ErrNotFound
	}
	app.Status = status
	app.UpdatedAt = at
	r.applications[id] = app
	return r.withTitle(app), nil
}

func (r *InMemoryRepository) filterApplications(keep func(Application) bool) []Application {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Application
	for _, app := range r.applications {
		if keep(app) {
			result = append(result, r.withTitle(app))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AppliedAt.After(result[j].AppliedAt)
	})
	return result
}

// withTitle refreshes the denormalized title; callers hold the lock.
func (r *InMemoryRepository) withTitle(app Application) Application {
	if post, ok := r.posts[app.JobID]; ok {
		app.JobTitle = post.Title
	}
	return app
}

func clonePost(post Post) Post {
	post.Benefits = slices.Clone(post.Benefits)
	return post
}

func ptr[T any](v T) *T {
	return &v
}
