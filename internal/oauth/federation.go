package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"worknest/internal/accounts"
)

// AccountLinker is the part of the account store a login needs.
type AccountLinker interface {
	FindByIdentity(ctx context.Context, provider, externalID string) (accounts.User, error)
	GetOrCreateByEmail(ctx context.Context, email string, defaults accounts.Defaults) (accounts.User, bool, error)
	LinkFederatedIdentity(ctx context.Context, user accounts.User, provider, externalID string, claims map[string]any) (accounts.FederatedIdentity, error)
}

// Recorder receives provider failures. The metrics collector implements it.
type Recorder interface {
	RecordOAuthFailure(provider, reason string)
}

type nopRecorder struct{}

func (nopRecorder) RecordOAuthFailure(string, string) {}

// LoginResult is the account a federated login resolved to.
type LoginResult struct {
	User    accounts.User
	Created bool
}

// FederationOption configures a Federation.
type FederationOption func(*Federation)

// WithIDTokenVerifier enables ID token logins.
func WithIDTokenVerifier(verifier IDTokenVerifier) FederationOption {
	return func(f *Federation) {
		f.idTokens = verifier
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) FederationOption {
	return func(f *Federation) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithRecorder sets the failure recorder.
func WithRecorder(recorder Recorder) FederationOption {
	return func(f *Federation) {
		if recorder != nil {
			f.recorder = recorder
		}
	}
}

// Federation routes provider calls by Kind and turns verified profiles into accounts.
type Federation struct {
	providers map[Kind]Provider
	accounts  AccountLinker
	idTokens  IDTokenVerifier
	logger    *slog.Logger
	recorder  Recorder
}

// NewFederation wires the given providers to the account store.
func NewFederation(linker AccountLinker, providers []Provider, opts ...FederationOption) *Federation {
	f := &Federation{
		providers: make(map[Kind]Provider, len(providers)),
		accounts:  linker,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		recorder:  nopRecorder{},
	}
	for _, p := range providers {
		f.providers[p.Name()] = p
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Provider returns the provider registered for kind.
func (f *Federation) Provider(kind Kind) (Provider, error) {
	p, ok := f.providers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, kind)
	}
	return p, nil
}

// ExchangeCode trades an authorization code for a provider access token.
func (f *Federation) ExchangeCode(ctx context.Context, kind Kind, code, redirectURI string) (string, error) {
	p, err := f.Provider(kind)
	if err != nil {
		return "", err
	}
	token, err := p.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		f.failed(kind, "exchange", err)
		return "", err
	}
	return token, nil
}

// CompleteLogin fetches the provider profile for accessToken and resolves it to an account.
// A linked provider subject always resolves to its account; otherwise the account is found or
// created by email and the subject is linked to it.
func (f *Federation) CompleteLogin(ctx context.Context, kind Kind, accessToken string) (LoginResult, error) {
	p, err := f.Provider(kind)
	if err != nil {
		return LoginResult{}, err
	}
	profile, err := p.FetchProfile(ctx, accessToken)
	if err != nil {
		f.failed(kind, "profile", err)
		return LoginResult{}, err
	}
	return f.complete(ctx, profile)
}

// CompleteCodeLogin exchanges the code and completes the login in one step.
func (f *Federation) CompleteCodeLogin(ctx context.Context, kind Kind, code, redirectURI string) (LoginResult, error) {
	token, err := f.ExchangeCode(ctx, kind, code, redirectURI)
	if err != nil {
		return LoginResult{}, err
	}
	return f.CompleteLogin(ctx, kind, token)
}

// CompleteIDTokenLogin verifies a Google ID token and completes the login from its claims.
func (f *Federation) CompleteIDTokenLogin(ctx context.Context, rawIDToken string) (LoginResult, error) {
	if f.idTokens == nil {
		err := fmt.Errorf("%w: google id token verification", ErrMissingCredentials)
		f.failed(Google, "id_token", err)
		return LoginResult{}, err
	}
	profile, err := f.idTokens.Verify(ctx, rawIDToken)
	if err != nil {
		f.failed(Google, "id_token", err)
		return LoginResult{}, err
	}
	return f.complete(ctx, profile)
}

func (f *Federation) complete(ctx context.Context, profile Profile) (LoginResult, error) {
	linked, err := f.accounts.FindByIdentity(ctx, string(profile.Provider), profile.ExternalID)
	switch {
	case err == nil:
		return LoginResult{User: linked}, nil
	case !errors.Is(err, accounts.ErrNotFound):
		return LoginResult{}, fmt.Errorf("resolve identity: %w", err)
	}

	user, created, err := f.accounts.GetOrCreateByEmail(ctx, profile.Email, accounts.Defaults{Name: profile.Name})
	if err != nil {
		return LoginResult{}, fmt.Errorf("resolve account: %w", err)
	}

	if _, err := f.accounts.LinkFederatedIdentity(ctx, user, string(profile.Provider), profile.ExternalID, profile.RawClaims); err != nil {
		if errors.Is(err, accounts.ErrIdentityConflict) {
			f.logger.Warn("federated identity conflict",
				"provider", profile.Provider,
				"user_id", user.ID,
			)
		}
		return LoginResult{}, err
	}

	if created {
		f.logger.Info("account created from federated login", "provider", profile.Provider, "user_id", user.ID)
	}
	return LoginResult{User: user, Created: created}, nil
}

func (f *Federation) failed(kind Kind, op string, err error) {
	reason := failureReason(err)
	f.recorder.RecordOAuthFailure(string(kind), reason)
	if reason == "misconfigured" {
		f.logger.Error("oauth provider not configured", "provider", kind, "op", op, "error", err)
		return
	}
	f.logger.Warn("oauth provider call failed", "provider", kind, "op", op, "reason", reason, "error", err)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return "misconfigured"
	case errors.Is(err, ErrUpstreamTimeout):
		return "timeout"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "unavailable"
	case errors.Is(err, ErrNoEmailAvailable), errors.Is(err, ErrUnverifiedEmail):
		return "email"
	case errors.Is(err, ErrInvalidIDToken):
		return "invalid_id_token"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "rejected"
	}
}
