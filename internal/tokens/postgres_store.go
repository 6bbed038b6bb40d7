package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, record Record) error {
	_, err := s.db.ExecContext(ctx, insertRecord,
		record.ID, record.UserID, record.FamilyID, record.IssuedAt, record.ExpiresAt, string(record.Status),
	)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	const query = `
		SELECT id, user_id, family_id, issued_at, expires_at, status, replaced_by, revoked_at
		FROM refresh_tokens
		WHERE id = $1
	`

	var row recordRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, err
	}
	return row.toRecord(), nil
}

// Rotate compares-and-sets the predecessor and inserts the successor in one transaction, so
// concurrent refreshes of the same token cannot both succeed.
func (s *PostgresStore) Rotate(ctx context.Context, id uuid.UUID, successor Record, at time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const rotate = `
		UPDATE refresh_tokens
		SET status = 'rotated', replaced_by = $2
		WHERE id = $1 AND status = 'issued' AND expires_at > $3
	`
	res, err := tx.ExecContext(ctx, rotate, id, successor.ID, at)
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStale
	}

	if _, err := tx.ExecContext(ctx, insertRecord,
		successor.ID, successor.UserID, successor.FamilyID, successor.IssuedAt, successor.ExpiresAt, string(successor.Status),
	); err != nil {
		return fmt.Errorf("insert successor: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Revoke(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	const query = `
		UPDATE refresh_tokens
		SET status = 'revoked', revoked_at = $2
		WHERE id = $1 AND status = 'issued'
	`
	res, err := s.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM refresh_tokens WHERE id = $1)`, id); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrRecordNotFound
	}
	return false, nil
}

func (s *PostgresStore) RevokeFamily(ctx context.Context, familyID uuid.UUID, at time.Time) (int64, error) {
	const query = `
		UPDATE refresh_tokens
		SET status = 'revoked', revoked_at = $2
		WHERE family_id = $1 AND status = 'issued'
	`
	res, err := s.db.ExecContext(ctx, query, familyID, at)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh token family: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return res.RowsAffected()
}

const insertRecord = `
	INSERT INTO refresh_tokens (id, user_id, family_id, issued_at, expires_at, status)
	VALUES ($1, $2, $3, $4, $5, $6)
`

// recordRow is a database row representation of Record.
type recordRow struct {
	ID         uuid.UUID     `db:"id"`
	UserID     uuid.UUID     `db:"user_id"`
	FamilyID   uuid.UUID     `db:"family_id"`
	IssuedAt   time.Time     `db:"issued_at"`
	ExpiresAt  time.Time     `db:"expires_at"`
	Status     string        `db:"status"`
	ReplacedBy uuid.NullUUID `db:"replaced_by"`
	RevokedAt  sql.NullTime  `db:"revoked_at"`
}

func (r *recordRow) toRecord() Record {
	record := Record{
		ID:        r.ID,
		UserID:    r.UserID,
		FamilyID:  r.FamilyID,
		IssuedAt:  r.IssuedAt,
		ExpiresAt: r.ExpiresAt,
		Status:    Status(r.Status),
	}
	if r.ReplacedBy.Valid {
		next := r.ReplacedBy.UUID
		record.ReplacedBy = &next
	}
	if r.RevokedAt.Valid {
		at := r.RevokedAt.Time
		record.RevokedAt = &at
	}
	return record
}
