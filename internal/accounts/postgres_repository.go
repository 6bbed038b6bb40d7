package accounts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, email, name, role, onboarding_completed, last_onboarding_completed_at,
	password_hash, billing_customer_id, created_at, updated_at`

// CreateUser inserts a new user. A taken email surfaces as ErrDuplicateEmail.
func (r *PostgresRepository) CreateUser(ctx context.Context, user User) (User, error) {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + userColumns

	var row userRow
	if err := r.db.GetContext(ctx, &row, query, userArgs(user)...); err != nil {
		if isViolation(err, pqUniqueViolation) {
			return User{}, ErrDuplicateEmail
		}
		return User{}, err
	}
	return row.toUser(), nil
}

// CreateUserIfAbsent inserts user unless the email exists, relying on the unique index so
// concurrent callers converge on one row.
func (r *PostgresRepository) CreateUserIfAbsent(ctx context.Context, user User) (User, bool, error) {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (email) DO NOTHING
		RETURNING ` + userColumns

	var row userRow
	err := r.db.GetContext(ctx, &row, query, userArgs(user)...)
	if err == nil {
		return row.toUser(), true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, false, err
	}

	existing, err := r.FindUserByEmail(ctx, user.Email)
	if err != nil {
		return User{}, false, err
	}
	return existing, false, nil
}

// GetUser looks up a user by ID.
func (r *PostgresRepository) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var row userRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return row.toUser(), nil
}

// FindUserByEmail looks up a user by normalized email.
func (r *PostgresRepository) FindUserByEmail(ctx context.Context, email string) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	var row userRow
	if err := r.db.GetContext(ctx, &row, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return row.toUser(), nil
}

// CountByRole counts users holding role.
func (r *PostgresRepository) CountByRole(ctx context.Context, role Role) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT count(*) FROM users WHERE role = $1", string(role)); err != nil {
		return 0, fmt.Errorf("count users by role: %w", err)
	}
	return count, nil
}

// UpdateUser writes the mutable user columns.
func (r *PostgresRepository) UpdateUser(ctx context.Context, user User) (User, error) {
	query := `
		UPDATE users
		SET email = $2, name = $3, role = $4, onboarding_completed = $5,
			last_onboarding_completed_at = $6, password_hash = $7, billing_customer_id = $8,
			updated_at = $9
		WHERE id = $1
		RETURNING ` + userColumns

	args := userArgs(user)
	// created_at is immutable.
	args = append(args[:8], user.UpdatedAt)

	var row userRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		if isViolation(err, pqUniqueViolation) {
			return User{}, ErrDuplicateEmail
		}
		return User{}, err
	}
	return row.toUser(), nil
}

// LinkIdentity inserts the identity if neither unique key is taken and returns the row that owns
// (provider, external_id). When the user already links another subject of the same provider no
// such row exists and ErrIdentityConflict is returned.
func (r *PostgresRepository) LinkIdentity(ctx context.Context, identity FederatedIdentity) (FederatedIdentity, error) {
	claims, err := json.Marshal(identity.Claims)
	if err != nil {
		return FederatedIdentity{}, fmt.Errorf("encode claims: %w", err)
	}
	if identity.Claims == nil {
		claims = []byte("{}")
	}

	const insert = `
		INSERT INTO federated_identities (id, user_id, provider, external_id, claims, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, insert,
		identity.ID,
		identity.UserID,
		identity.Provider,
		identity.ExternalID,
		types.JSONText(claims),
		identity.CreatedAt,
	); err != nil {
		if isViolation(err, pqForeignKeyViolation) {
			return FederatedIdentity{}, ErrNotFound
		}
		return FederatedIdentity{}, err
	}

	stored, err := r.FindIdentity(ctx, identity.Provider, identity.ExternalID)
	if errors.Is(err, ErrNotFound) {
		return FederatedIdentity{}, ErrIdentityConflict
	}
	return stored, err
}

// FindIdentity looks up an identity by provider subject.
func (r *PostgresRepository) FindIdentity(ctx context.Context, provider, externalID string) (FederatedIdentity, error) {
	const query = `
		SELECT id, user_id, provider, external_id, claims, created_at
		FROM federated_identities
		WHERE provider = $1 AND external_id = $2
	`

	var row identityRow
	if err := r.db.GetContext(ctx, &row, query, provider, externalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FederatedIdentity{}, ErrNotFound
		}
		return FederatedIdentity{}, err
	}
	return row.toIdentity()
}

// CreateCompanyProfile inserts the profile and assigns the role in one transaction.
func (r *PostgresRepository) CreateCompanyProfile(ctx context.Context, profile CompanyProfile, at time.Time) (User, error) {
	const insert = `
		INSERT INTO company_profiles (id, user_id, name, location, logo, website, x_account, about, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	return r.withProfile(ctx, profile.UserID, RoleCompany, at, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, insert,
			profile.ID, profile.UserID, profile.Name, profile.Location, profile.Logo,
			profile.Website, profile.XAccount, profile.About, profile.CreatedAt, profile.UpdatedAt,
		)
		return err
	})
}

// CreateJobSeekerProfile inserts the profile and assigns the role in one transaction.
func (r *PostgresRepository) CreateJobSeekerProfile(ctx context.Context, profile JobSeekerProfile, at time.Time) (User, error) {
	const insert = `
		INSERT INTO job_seeker_profiles (id, user_id, name, about, resume, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	return r.withProfile(ctx, profile.UserID, RoleJobSeeker, at, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, insert,
			profile.ID, profile.UserID, profile.Name, profile.About, profile.Resume,
			profile.CreatedAt, profile.UpdatedAt,
		)
		return err
	})
}

// GetCompanyProfile returns the company profile for a user.
func (r *PostgresRepository) GetCompanyProfile(ctx context.Context, userID uuid.UUID) (CompanyProfile, error) {
	const query = `
		SELECT id, user_id, name, location, logo, website, x_account, about, created_at, updated_at
		FROM company_profiles
		WHERE user_id = $1
	`

	var profile CompanyProfile
	row := r.db.QueryRowxContext(ctx, query, userID)
	if err := row.Scan(&profile.ID, &profile.UserID, &profile.Name, &profile.Location, &profile.Logo,
		&profile.Website, &profile.XAccount, &profile.About, &profile.CreatedAt, &profile.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CompanyProfile{}, ErrNotFound
		}
		return CompanyProfile{}, err
	}
	return profile, nil
}

// GetJobSeekerProfile returns the job seeker profile for a user.
func (r *PostgresRepository) GetJobSeekerProfile(ctx context.Context, userID uuid.UUID) (JobSeekerProfile, error) {
	const query = `
		SELECT id, user_id, name, about, resume, created_at, updated_at
		FROM job_seeker_profiles
		WHERE user_id = $1
	`

	var profile JobSeekerProfile
	row := r.db.QueryRowxContext(ctx, query, userID)
	if err := row.Scan(&profile.ID, &profile.UserID, &profile.Name, &profile.About, &profile.Resume,
		&profile.CreatedAt, &profile.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return JobSeekerProfile{}, ErrNotFound
		}
		return JobSeekerProfile{}, err
	}
	return profile, nil
}

func (r *PostgresRepository) withProfile(ctx context.Context, userID uuid.UUID, role Role, at time.Time, insert func(tx *sqlx.Tx) error) (User, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return User{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insert(tx); err != nil {
		switch {
		case isViolation(err, pqUniqueViolation):
			return User{}, ErrProfileExists
		case isViolation(err, pqForeignKeyViolation):
			return User{}, ErrNotFound
		default:
			return User{}, err
		}
	}

	query := `
		UPDATE users
		SET role = $2, onboarding_completed = TRUE, last_onboarding_completed_at = $3, updated_at = $3
		WHERE id = $1 AND (role IS NULL OR role = $2)
		RETURNING ` + userColumns

	var row userRow
	if err := tx.GetContext(ctx, &row, query, userID, string(role), at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrRoleConflict
		}
		return User{}, err
	}

	if err := tx.Commit(); err != nil {
		return User{}, fmt.Errorf("commit transaction: %w", err)
	}
	return row.toUser(), nil
}

func isViolation(err error, code string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == code
}

func userArgs(user User) []any {
	return []any{
		user.ID,
		user.Email,
		user.Name,
		nullString(string(user.Role)),
		user.OnboardingCompleted,
		user.LastOnboardingCompletedAt,
		nullString(user.PasswordHash),
		nullString(user.BillingCustomerID),
		user.CreatedAt,
		user.UpdatedAt,
	}
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

// userRow is a database row representation of User.
type userRow struct {
	ID                        uuid.UUID      `db:"id"`
	Email                     string         `db:"email"`
	Name                      string         `db:"name"`
	Role                      sql.NullString `db:"role"`
	OnboardingCompleted       bool           `db:"onboarding_completed"`
	LastOnboardingCompletedAt sql.NullTime   `db:"last_onboarding_completed_at"`
	PasswordHash              sql.NullString `db:"password_hash"`
	BillingCustomerID         sql.NullString `db:"billing_customer_id"`
	CreatedAt                 time.Time      `db:"created_at"`
	UpdatedAt                 time.Time      `db:"updated_at"`
}

func (r *userRow) toUser() User {
	user := User{
		ID:                  r.ID,
		Email:               r.Email,
		Name:                r.Name,
		Role:                Role(r.Role.String),
		OnboardingCompleted: r.OnboardingCompleted,
		PasswordHash:        r.PasswordHash.String,
		BillingCustomerID:   r.BillingCustomerID.String,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
	if r.LastOnboardingCompletedAt.Valid {
		at := r.LastOnboardingCompletedAt.Time
		user.LastOnboardingCompletedAt = &at
	}
	return user
}

// identityRow is a database row representation of FederatedIdentity.
type identityRow struct {
	ID         uuid.UUID      `db:"id"`
	UserID     uuid.UUID      `db:"user_id"`
	Provider   string         `db:"provider"`
	ExternalID string         `db:"external_id"`
	Claims     types.JSONText `db:"claims"`
	CreatedAt  time.Time      `db:"created_at"`
}

func (r *identityRow) toIdentity() (FederatedIdentity, error) {
	identity := FederatedIdentity{
		ID:         r.ID,
		UserID:     r.UserID,
		Provider:   r.Provider,
		ExternalID: r.ExternalID,
		CreatedAt:  r.CreatedAt,
	}
	if len(r.Claims) > 0 {
		if err := r.Claims.Unmarshal(&identity.Claims); err != nil {
			return FederatedIdentity{}, fmt.Errorf("decode claims: %w", err)
		}
	}
	return identity, nil
}
