package tokens

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned for tokens with a bad signature, format, type or unknown id.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpired is returned when a token is past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrRevoked is returned when a refresh token was revoked by logout or family revocation.
	ErrRevoked = errors.New("token revoked")
	// ErrTokenReuseDetected is returned when an already rotated refresh token is presented again.
	// The whole family is revoked before it is returned.
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")
)

var (
	// ErrRecordNotFound is returned by a Store when no record has the requested id.
	ErrRecordNotFound = errors.New("refresh token record not found")
	// ErrStale is returned by Store.Rotate when the predecessor is no longer issued.
	ErrStale = errors.New("refresh token no longer issued")
)

// Status is the lifecycle state of a refresh token record.
type Status string

const (
	StatusIssued  Status = "issued"
	StatusRotated Status = "rotated"
	StatusRevoked Status = "revoked"
)

// Record is the server-side state of one refresh token. The signed transport string carries
// its ID and FamilyID; only the record decides whether the token is still usable.
type Record struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	FamilyID   uuid.UUID
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Status     Status
	ReplacedBy *uuid.UUID
	RevokedAt  *time.Time
}

// Pair is an access token together with the refresh token of the same grant.
type Pair struct {
	UserID           uuid.UUID
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
