package tokens

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists refresh token records.
type Store interface {
	Create(ctx context.Context, record Record) error
	Get(ctx context.Context, id uuid.UUID) (Record, error)
	// Rotate marks id as rotated and stores successor in one atomic step. It returns ErrStale
	// when id is not in the issued state, in which case nothing is written.
	Rotate(ctx context.Context, id uuid.UUID, successor Record, at time.Time) error
	// Revoke marks an issued record as revoked and reports whether it changed state.
	Revoke(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	RevokeFamily(ctx context.Context, familyID uuid.UUID, at time.Time) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
