package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository abstracts persistence for posts, saved jobs and applications.
type Repository interface {
	CreatePost(ctx context.Context, post Post) (Post, error)
	GetPost(ctx context.Context, id uuid.UUID) (Post, error)
	UpdatePost(ctx context.Context, post Post) (Post, error)
	DeletePost(ctx context.Context, id uuid.UUID) error
	ListPosts(ctx context.Context, opts ListOptions) ([]Post, error)
	CountActive(ctx context.Context) (int, error)
	// ExpirePosts moves active posts whose listing period ended before now to EXPIRED.
	ExpirePosts(ctx context.Context, now time.Time) (int64, error)

	// SaveJob stores the bookmark unless the user already saved the post.
	SaveJob(ctx context.Context, saved SavedJob) (SavedJob, bool, error)
	ListSaved(ctx context.Context, userID uuid.UUID) ([]SavedJob, error)
	DeleteSaved(ctx context.Context, id, userID uuid.UUID) error

	// CreateApplication stores the application and bumps the post's counter atomically.
	CreateApplication(ctx context.Context, app Application) (Application, error)
	GetApplication(ctx context.Context, id uuid.UUID) (Application, error)
	ListApplicationsByUser(ctx context.Context, userID uuid.UUID) ([]Application, error)
	ListApplicationsByJob(ctx context.Context, jobID uuid.UUID) ([]Application, error)
	ListApplicationsByOwner(ctx context.Context, ownerID uuid.UUID) ([]Application, error)
	UpdateApplicationStatus(ctx context.Context, id uuid.UUID, status ApplicationStatus, at time.Time) (Application, error)
}

// CompanyCounter reports how many company accounts exist.
type CompanyCounter interface {
	CountCompanies(ctx context.Context) (int, error)
}
