package tokens

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer = "worknest"

	typeAccess  = "access"
	typeRefresh = "refresh"

	// DefaultAccessTTL is the lifetime of access tokens.
	DefaultAccessTTL = time.Hour
	// DefaultRefreshTTL is the lifetime of refresh tokens.
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

// Recorder receives token lifecycle events. The metrics collector implements it.
type Recorder interface {
	RecordTokenIssued(kind string)
	RecordRefresh(outcome string)
	RecordReuseDetected()
}

type nopRecorder struct{}

func (nopRecorder) RecordTokenIssued(string) {}
func (nopRecorder) RecordRefresh(string)     {}
func (nopRecorder) RecordReuseDetected()     {}

// Config holds the signing key and lifetimes.
type Config struct {
	SigningKey []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Rotate issues a new refresh token on every refresh. When false the presented refresh
	// token is returned unchanged with a new access token.
	Rotate bool
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLogger sets the logger used for security events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder sets the lifecycle event recorder.
func WithRecorder(recorder Recorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.recorder = recorder
		}
	}
}

// Service mints, validates, rotates and revokes tokens.
type Service struct {
	store      Store
	key        []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	rotate     bool
	now        func() time.Time
	logger     *slog.Logger
	recorder   Recorder
}

// NewService creates a token Service. Zero lifetimes fall back to the defaults.
func NewService(store Store, cfg Config, opts ...Option) (*Service, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("token signing key is required")
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}

	svc := &Service{
		store:      store,
		key:        cfg.SigningKey,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		rotate:     cfg.Rotate,
		now:        time.Now,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		recorder:   nopRecorder{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// RefreshTTL returns the refresh token lifetime, used for cookie Max-Age.
func (s *Service) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// IssuePair starts a new refresh token family for userID.
func (s *Service) IssuePair(ctx context.Context, userID uuid.UUID) (Pair, error) {
	now := s.now().UTC()
	record := Record{
		ID:        uuid.New(),
		UserID:    userID,
		FamilyID:  uuid.New(),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.refreshTTL),
		Status:    StatusIssued,
	}

	refresh, err := s.signRefresh(record)
	if err != nil {
		return Pair{}, err
	}
	if err := s.store.Create(ctx, record); err != nil {
		return Pair{}, fmt.Errorf("store refresh token: %w", err)
	}

	pair, err := s.pairWithAccess(userID, now)
	if err != nil {
		return Pair{}, err
	}
	pair.RefreshToken = refresh
	pair.RefreshExpiresAt = record.ExpiresAt
	s.recorder.RecordTokenIssued(typeRefresh)
	return pair, nil
}

// Refresh exchanges a refresh token for a new pair. With rotation enabled the presented token
// becomes unusable; presenting it again revokes its whole family.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Pair, error) {
	pair, err := s.refresh(ctx, refreshToken)
	s.recorder.RecordRefresh(refreshOutcome(err))
	return pair, err
}

func (s *Service) refresh(ctx context.Context, refreshToken string) (Pair, error) {
	claims, err := s.parse(refreshToken, typeRefresh)
	if err != nil {
		return Pair{}, err
	}
	id, userID, familyID, err := claims.refreshIDs()
	if err != nil {
		return Pair{}, err
	}

	record, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return Pair{}, ErrInvalidToken
		}
		return Pair{}, fmt.Errorf("load refresh token: %w", err)
	}
	if record.UserID != userID || record.FamilyID != familyID {
		return Pair{}, ErrInvalidToken
	}

	now := s.now().UTC()
	if err := s.checkUsable(ctx, record, now); err != nil {
		return Pair{}, err
	}

	if !s.rotate {
		pair, err := s.pairWithAccess(record.UserID, now)
		if err != nil {
			return Pair{}, err
		}
		pair.RefreshToken = refreshToken
		pair.RefreshExpiresAt = record.ExpiresAt
		return pair, nil
	}

	successor := Record{
		ID:        uuid.New(),
		UserID:    record.UserID,
		FamilyID:  record.FamilyID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.refreshTTL),
		Status:    StatusIssued,
	}
	refresh, err := s.signRefresh(successor)
	if err != nil {
		return Pair{}, err
	}

	if err := s.store.Rotate(ctx, record.ID, successor, now); err != nil {
		if !errors.Is(err, ErrStale) {
			return Pair{}, fmt.Errorf("rotate refresh token: %w", err)
		}
		// Lost a race with another refresh, logout or family revocation; classify from the
		// current state.
		current, getErr := s.store.Get(ctx, record.ID)
		if getErr != nil {
			return Pair{}, fmt.Errorf("reload refresh token: %w", getErr)
		}
		if usableErr := s.checkUsable(ctx, current, now); usableErr != nil {
			return Pair{}, usableErr
		}
		return Pair{}, ErrRevoked
	}

	pair, err := s.pairWithAccess(record.UserID, now)
	if err != nil {
		return Pair{}, err
	}
	pair.RefreshToken = refresh
	pair.RefreshExpiresAt = successor.ExpiresAt
	s.recorder.RecordTokenIssued(typeRefresh)
	return pair, nil
}

// checkUsable maps a non-issued or expired record to its error. A rotated record means the
// token was replayed, so the family is revoked.
func (s *Service) checkUsable(ctx context.Context, record Record, now time.Time) error {
	switch record.Status {
	case StatusRotated:
		return s.reuseDetected(ctx, record, now)
	case StatusRevoked:
		return ErrRevoked
	}
	if !now.Before(record.ExpiresAt) {
		return ErrExpired
	}
	return nil
}

func (s *Service) reuseDetected(ctx context.Context, record Record, now time.Time) error {
	revoked, err := s.store.RevokeFamily(context.WithoutCancel(ctx), record.FamilyID, now)
	if err != nil {
		s.logger.Error("failed to revoke refresh token family",
			"family_id", record.FamilyID,
			"user_id", record.UserID,
			"error", err,
		)
	}
	s.logger.Warn("security event: refresh token reuse detected",
		"user_id", record.UserID,
		"family_id", record.FamilyID,
		"token_id", record.ID,
		"revoked", revoked,
	)
	s.recorder.RecordReuseDetected()
	return ErrTokenReuseDetected
}

// Revoke marks the refresh token as revoked. Revoking a token that is already rotated or
// revoked is not an error.
func (s *Service) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := s.parse(refreshToken, typeRefresh)
	if err != nil {
		return err
	}
	id, _, _, err := claims.refreshIDs()
	if err != nil {
		return err
	}

	changed, err := s.store.Revoke(ctx, id, s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if !changed {
		s.logger.Debug("refresh token already inactive", "token_id", id)
	}
	return nil
}

// ValidateAccess checks signature, expiry and token type of an access token and returns its
// subject. It never consults the store.
func (s *Service) ValidateAccess(accessToken string) (uuid.UUID, error) {
	claims, err := s.parse(accessToken, typeAccess)
	if err != nil {
		return uuid.Nil, err
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}

// PurgeExpired deletes refresh token records that expired before the given time.
func (s *Service) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	return s.store.DeleteExpired(ctx, before)
}

func (s *Service) pairWithAccess(userID uuid.UUID, now time.Time) (Pair, error) {
	expiresAt := now.Add(s.accessTTL)
	access, err := s.sign(tokenClaims{
		TokenType: typeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	if err != nil {
		return Pair{}, err
	}
	s.recorder.RecordTokenIssued(typeAccess)
	return Pair{
		UserID:          userID,
		AccessToken:     access,
		AccessExpiresAt: expiresAt,
	}, nil
}

func (s *Service) signRefresh(record Record) (string, error) {
	return s.sign(tokenClaims{
		TokenType: typeRefresh,
		Family:    record.FamilyID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   record.UserID.String(),
			ID:        record.ID.String(),
			IssuedAt:  jwt.NewNumericDate(record.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(record.ExpiresAt),
		},
	})
}

func (s *Service) sign(claims tokenClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", claims.TokenType, err)
	}
	return signed, nil
}

func (s *Service) parse(raw, tokenType string) (*tokenClaims, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}

	var claims tokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalidToken
	}
	if claims.TokenType != tokenType {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

// tokenClaims is the claim set shared by access and refresh tokens.
type tokenClaims struct {
	TokenType string `json:"token_type"`
	Family    string `json:"fam,omitempty"`
	jwt.RegisteredClaims
}

func (c *tokenClaims) refreshIDs() (id, userID, familyID uuid.UUID, err error) {
	if id, err = uuid.Parse(c.ID); err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, ErrInvalidToken
	}
	if userID, err = uuid.Parse(c.Subject); err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, ErrInvalidToken
	}
	if familyID, err = uuid.Parse(c.Family); err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, ErrInvalidToken
	}
	return id, userID, familyID, nil
}

func refreshOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrTokenReuseDetected):
		return "reuse"
	case errors.Is(err, ErrRevoked):
		return "revoked"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrInvalidToken):
		return "invalid"
	default:
		return "error"
	}
}
