package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// PostgresRepository persists job data to a Postgres database.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository constructs a repository backed by sqlx.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const postColumns = `p.id, p.owner_id, p.job_title, p.employment_type, p.location, p.salary_from, p.salary_to,
	p.job_description, p.listing_duration, p.benefits, p.status, p.applications, p.created_at, p.updated_at`

type postRow struct {
	ID              uuid.UUID      `db:"id"`
	OwnerID         uuid.UUID      `db:"owner_id"`
	Title           string         `db:"job_title"`
	EmploymentType  string         `db:"employment_type"`
	Location        string         `db:"location"`
	SalaryFrom      int            `db:"salary_from"`
	SalaryTo        int            `db:"salary_to"`
	Description     string         `db:"job_description"`
	ListingDuration int            `db:"listing_duration"`
	Benefits        pq.StringArray `db:"benefits"`
	Status          string         `db:"status"`
	Applications    int            `db:"applications"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (row postRow) toPost() Post {
	benefits := []string(row.Benefits)
	if benefits == nil {
		benefits = []string{}
	}
	return Post{
		ID:              row.ID,
		OwnerID:         row.OwnerID,
		Title:           row.Title,
		EmploymentType:  row.EmploymentType,
		Location:        row.Location,
		SalaryFrom:      row.SalaryFrom,
		SalaryTo:        row.SalaryTo,
		Description:     row.Description,
		ListingDuration: row.ListingDuration,
		Benefits:        benefits,
		Status:          Status(row.Status),
		Applications:    row.Applications,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}

func (r *PostgresRepository) CreatePost(ctx context.Context, post Post) (Post, error) {
	insert := `INSERT INTO job_posts (id, owner_id, job_title, employment_type, location, salary_from, salary_to,
	job_description, listing_duration, benefits, status, applications, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, $12, $12)`

	_, err := r.db.ExecContext(ctx, insert,
		post.ID, post.OwnerID, post.Title, post.EmploymentType, post.Location, post.SalaryFrom, post.SalaryTo,
		post.Description, post.ListingDuration, pq.Array(post.Benefits), string(post.Status), post.CreatedAt,
	)
	if err != nil {
		if isViolation(err, pqForeignKeyViolation) {
			return Post{}, ErrForbidden
		}
		return Post{}, fmt.Errorf("insert job post: %w", err)
	}
	return r.GetPost(ctx, post.ID)
}

func (r *PostgresRepository) GetPost(ctx context.Context, id uuid.UUID) (Post, error) {
	var row postRow
	if err := r.db.GetContext(ctx, &row, "SELECT "+postColumns+" FROM job_posts p WHERE p.id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Post{}, ErrNotFound
		}
		return Post{}, fmt.Errorf("get job post: %w", err)
	}
	return row.toPost(), nil
}

func (r *PostgresRepository) UpdatePost(ctx context.Context, post Post) (Post, error) {
	update := `UPDATE job_posts p SET
	job_title = $2, employment_type = $3, location = $4, salary_from = $5, salary_to = $6,
	job_description = $7, listing_duration = $8, benefits = $9, status = $10, updated_at = $11
WHERE p.id = $1
RETURNING ` + postColumns

	var row postRow
	err := r.db.GetContext(ctx, &row, update,
		post.ID, post.Title, post.EmploymentType, post.Location, post.SalaryFrom, post.SalaryTo,
		post.Description, post.ListingDuration, pq.Array(post.Benefits), string(post.Status), post.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Post{}, ErrNotFound
		}
		return Post{}, fmt.Errorf("update job post: %w", err)
	}
	return row.toPost(), nil
}

// DeletePost removes the post; saved jobs and applications cascade.
func (r *PostgresRepository) DeletePost(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM job_posts WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete job post: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete job post rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPosts returns posts ordered by creation timestamp descending, filtered by the provided options.
func (r *PostgresRepository) ListPosts(ctx context.Context, opts ListOptions) ([]Post, error) {
	query := "SELECT " + postColumns + " FROM job_posts p"
	clauses := []string{}
	args := []any{}

	if opts.OwnerID != nil {
		clauses = append(clauses, fmt.Sprintf("p.owner_id = $%d", len(args)+1))
		args = append(args, *opts.OwnerID)
	}
	if opts.Status != nil {
		clauses = append(clauses, fmt.Sprintf("p.status = $%d", len(args)+1))
		args = append(args, string(*opts.Status))
	}
	if search := strings.TrimSpace(opts.Query); search != "" {
		n := len(args) + 1
		clauses = append(clauses, fmt.Sprintf("(p.job_title ILIKE $%d OR p.job_description ILIKE $%d)", n, n))
		args = append(args, "%"+search+"%")
	}

	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY p.created_at DESC, p.job_title ASC"
	if opts.Limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, opts.Limit)
	}

	rows := []postRow{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list job posts: %w", err)
	}
	posts := make([]Post, 0, len(rows))
	for _, row := range rows {
		posts = append(posts, row.toPost())
	}
	return posts, nil
}

func (r *PostgresRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT count(*) FROM job_posts WHERE status = $1", string(StatusActive)); err != nil {
		return 0, fmt.Errorf("count active job posts: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) ExpirePosts(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE job_posts SET status = $1, updated_at = $3
		WHERE status = $2 AND created_at + listing_duration * INTERVAL '1 day' < $3`,
		string(StatusExpired), string(StatusActive), now)
	if err != nil {
		return 0, fmt.Errorf("expire job posts: %w", err)
	}
	return res.RowsAffected()
}

// SaveJob inserts the bookmark; the unique (user_id, job_id) index makes repeated saves return the
// existing row.
func (r *PostgresRepository) SaveJob(ctx context.Context, saved SavedJob) (SavedJob, bool, error) {
	post, err := r.GetPost(ctx, saved.JobID)
	if err != nil {
		return SavedJob{}, false, err
	}

	var row savedRow
	err = r.db.GetContext(ctx, &row, `
		INSERT INTO saved_jobs (id, user_id, job_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, job_id) DO NOTHING
		RETURNING id, user_id, job_id, created_at`,
		saved.ID, saved.UserID, saved.JobID, saved.CreatedAt)
	created := true
	switch {
	case errors.Is(err, sql.ErrNoRows):
		created = false
		err = r.db.GetContext(ctx, &row,
			"SELECT id, user_id, job_id, created_at FROM saved_jobs WHERE user_id = $1 AND job_id = $2",
			saved.UserID, saved.JobID)
		if err != nil {
			return SavedJob{}, false, fmt.Errorf("load saved job: %w", err)
		}
	case err != nil:
		if isViolation(err, pqForeignKeyViolation) {
			return SavedJob{}, false, ErrNotFound
		}
		return SavedJob{}, false, fmt.Errorf("insert saved job: %w", err)
	}

	result := row.toSavedJob()
	result.Job = &post
	return result, created, nil
}

func (r *PostgresRepository) ListSaved(ctx context.Context, userID uuid.UUID) ([]SavedJob, error) {
	query := `SELECT s.id AS saved_id, s.user_id AS saved_user_id, s.created_at AS saved_at, ` + postColumns + `
FROM saved_jobs s
JOIN job_posts p ON p.id = s.job_id
WHERE s.user_id = $1
ORDER BY s.created_at DESC`

	rows := []savedWithPostRow{}
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("list saved jobs: %w", err)
	}
	result := make([]SavedJob, 0, len(rows))
	for _, row := range rows {
		post := row.postRow.toPost()
		result = append(result, SavedJob{
			ID:        row.SavedID,
			UserID:    row.SavedUserID,
			JobID:     post.ID,
			Job:       &post,
			CreatedAt: row.SavedAt,
		})
	}
	return result, nil
}

func (r *PostgresRepository) DeleteSaved(ctx context.Context, id, userID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM saved_jobs WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return fmt.Errorf("delete saved job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete saved job rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

const applicationSelect = `
SELECT a.id, a.user_id, a.job_id, p.job_title, a.status, a.cover_letter, a.applied_at, a.updated_at
FROM job_applications a
JOIN job_posts p ON p.id = a.job_id
`

// CreateApplication inserts the application and increments the post counter in one transaction.
func (r *PostgresRepository) CreateApplication(ctx context.Context, app Application) (Application, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Application{}, fmt.Errorf("begin application tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO job_applications (id, user_id, job_id, status, cover_letter, applied_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		app.ID, app.UserID, app.JobID, string(app.Status), app.CoverLetter, app.AppliedAt)
	if err != nil {
		switch {
		case isViolation(err, pqUniqueViolation):
			return Application{}, ErrAlreadyApplied
		case isViolation(err, pqForeignKeyViolation):
			return Application{}, ErrNotFound
		}
		return Application{}, fmt.Errorf("insert application: %w", err)
	}

	if err := tx.GetContext(ctx, &app.JobTitle,
		"UPDATE job_posts SET applications = applications + 1 WHERE id = $1 RETURNING job_title", app.JobID); err != nil {
		return Application{}, fmt.Errorf("bump application counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Application{}, fmt.Errorf("commit application: %w", err)
	}
	return app, nil
}

func (r *PostgresRepository) GetApplication(ctx context.Context, id uuid.UUID) (Application, error) {
	var row applicationRow
	if err := r.db.GetContext(ctx, &row, applicationSelect+" WHERE a.id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Application{}, ErrNotFound
		}
		return Application{}, fmt.Errorf("get application: %w", err)
	}
	return row.toApplication(), nil
}

func (r *PostgresRepository) ListApplicationsByUser(ctx context.Context, userID uuid.UUID) ([]Application, error) {
	return r.selectApplications(ctx, applicationSelect+" WHERE a.user_id = $1 ORDER BY a.applied_at DESC", userID)
}

func (r *PostgresRepository) ListApplicationsByJob(ctx context.Context, jobID uuid.UUID) ([]Application, error) {
	return r.selectApplications(ctx, applicationSelect+" WHERE a.job_id = $1 ORDER BY a.applied_at DESC", jobID)
}

func (r *PostgresRepository) ListApplicationsByOwner(ctx context.Context, ownerID uuid.UUID) ([]Application, error) {
	return r.selectApplications(ctx, applicationSelect+" WHERE p.owner_id = $1 ORDER BY a.applied_at DESC", ownerID)
}

func (r *PostgresRepository) UpdateApplicationStatus(ctx context.Context, id uuid.UUID, status ApplicationStatus, at time.Time) (Application, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE job_applications SET status = $2, updated_at = $3 WHERE id = $1", id, string(status), at)
	if err != nil {
		return Application{}, fmt.Errorf("update application status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Application{}, fmt.Errorf("update application rows: %w", err)
	}
	if affected == 0 {
		return Application{}, ErrNotFound
	}
	return r.GetApplication(ctx, id)
}

func (r *PostgresRepository) selectApplications(ctx context.Context, query string, args ...any) ([]Application, error) {
	rows := []applicationRow{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	result := make([]Application, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toApplication())
	}
	return result, nil
}

type savedRow struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	JobID     uuid.UUID `db:"job_id"`
	CreatedAt time.Time `db:"created_at"`
}

func (row savedRow) toSavedJob() SavedJob {
	return SavedJob{ID: row.ID, UserID: row.UserID, JobID: row.JobID, CreatedAt: row.CreatedAt}
}

type savedWithPostRow struct {
	SavedID     uuid.UUID `db:"saved_id"`
	SavedUserID uuid.UUID `db:"saved_user_id"`
	SavedAt     time.Time `db:"saved_at"`
	postRow
}

type applicationRow struct {
	ID          uuid.UUID `db:"id"`
	UserID      uuid.UUID `db:"user_id"`
	JobID       uuid.UUID `db:"job_id"`
	JobTitle    string    `db:"job_title"`
	Status      string    `db:"status"`
	CoverLetter string    `db:"cover_letter"`
	AppliedAt   time.Time `db:"applied_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (row applicationRow) toApplication() Application {
	return Application{
		ID:          row.ID,
		UserID:      row.UserID,
		JobID:       row.JobID,
		JobTitle:    row.JobTitle,
		Status:      ApplicationStatus(row.Status),
		CoverLetter: row.CoverLetter,
		AppliedAt:   row.AppliedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

func isViolation(err error, code string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == code
}
