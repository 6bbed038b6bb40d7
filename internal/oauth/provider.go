// Package oauth exchanges third-party OAuth credentials for verified identity claims and
// completes logins against the account store.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

var (
	// ErrUnknownProvider is returned for provider names other than google and github.
	ErrUnknownProvider = errors.New("unknown oauth provider")
	// ErrMissingCredentials is returned when this service has no client id/secret for the provider.
	ErrMissingCredentials = errors.New("oauth client credentials not configured")
	// ErrUpstreamRejected is returned when the provider refuses the code or token.
	ErrUpstreamRejected = errors.New("oauth provider rejected the request")
	// ErrUpstreamTimeout is returned when the provider does not answer in time.
	ErrUpstreamTimeout = errors.New("oauth provider timed out")
	// ErrUpstreamUnavailable is returned when the provider cannot be reached.
	ErrUpstreamUnavailable = errors.New("oauth provider unavailable")
	// ErrNoEmailAvailable is returned when no email address can be determined for the account.
	ErrNoEmailAvailable = errors.New("oauth provider returned no email address")
	// ErrUnverifiedEmail is returned when the provider reports the email as unverified.
	ErrUnverifiedEmail = errors.New("oauth provider email is not verified")
)

// DefaultTimeout bounds every outbound provider call.
const DefaultTimeout = 10 * time.Second

const maxResponseBytes = 1 << 20

// Kind selects a supported provider.
type Kind string

const (
	Google Kind = "google"
	GitHub Kind = "github"
)

// ParseKind maps a provider name to its Kind.
func ParseKind(name string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(name))) {
	case Google:
		return Google, nil
	case GitHub:
		return GitHub, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}

// Profile is the identity a provider vouches for.
type Profile struct {
	Provider   Kind
	ExternalID string
	Email      string
	Name       string
	RawClaims  map[string]any
}

// Provider is implemented by each supported identity provider.
type Provider interface {
	Name() Kind
	// ExchangeCode trades an authorization code for a provider access token.
	ExchangeCode(ctx context.Context, code, redirectURI string) (string, error)
	// FetchProfile loads the account behind a provider access token.
	FetchProfile(ctx context.Context, accessToken string) (Profile, error)
}

// Credentials are this service's registered client id and secret at a provider.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

func (c Credentials) configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// ProviderOption configures a provider.
type ProviderOption func(*client)

// WithHTTPClient sets the client used for all provider calls.
func WithHTTPClient(httpClient *http.Client) ProviderOption {
	return func(c *client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) ProviderOption {
	return func(c *client) {
		if timeout > 0 {
			c.http = &http.Client{Timeout: timeout}
		}
	}
}

// WithEndpoint overrides the token endpoint.
func WithEndpoint(endpoint oauth2.Endpoint) ProviderOption {
	return func(c *client) {
		c.endpoint = endpoint
	}
}

// WithAPIBaseURL overrides the base URL of the profile API.
func WithAPIBaseURL(base string) ProviderOption {
	return func(c *client) {
		c.apiBase = strings.TrimSuffix(base, "/")
	}
}

// client holds what both providers share: credentials, token endpoint and HTTP plumbing.
type client struct {
	kind     Kind
	creds    Credentials
	endpoint oauth2.Endpoint
	apiBase  string
	http     *http.Client
}

func newClient(kind Kind, creds Credentials, endpoint oauth2.Endpoint, apiBase string, opts []ProviderOption) *client {
	c := &client{
		kind:     kind,
		creds:    creds,
		endpoint: endpoint,
		apiBase:  apiBase,
		http:     &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

func (c *client) exchange(ctx context.Context, code, redirectURI string) (string, error) {
	if !c.creds.configured() {
		return "", fmt.Errorf("%w: %s", ErrMissingCredentials, c.kind)
	}
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("%w: empty authorization code", ErrUpstreamRejected)
	}

	cfg := oauth2.Config{
		ClientID:     c.creds.ClientID,
		ClientSecret: c.creds.ClientSecret,
		Endpoint:     c.endpoint,
		RedirectURL:  redirectURI,
	}

	token, err := cfg.Exchange(c.withHTTPClient(ctx), code)
	if err != nil {
		return "", classify(c.kind, "token exchange", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("%w: %s returned no access token", ErrUpstreamRejected, c.kind)
	}
	return token.AccessToken, nil
}

// getJSON performs an authenticated GET and decodes the body into dst. It returns the raw
// body so callers can keep the claims snapshot.
func (c *client) getJSON(ctx context.Context, path, accessToken string, header http.Header, dst any) ([]byte, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrUpstreamRejected)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", c.kind, err)
	}
	req.Header.Set("Accept", "application/json")
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	authed := oauth2.NewClient(c.withHTTPClient(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	authed.Timeout = c.http.Timeout

	resp, err := authed.Do(req)
	if err != nil {
		return nil, classify(c.kind, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classify(c.kind, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s %s returned status %d", ErrUpstreamRejected, c.kind, path, resp.StatusCode)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return nil, fmt.Errorf("%w: decode %s %s: %v", ErrUpstreamRejected, c.kind, path, err)
	}
	return body, nil
}

func classify(kind Kind, op string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %s %s: %v", ErrUpstreamTimeout, kind, op, err)
	case errors.Is(err, context.Canceled):
		return err
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: %s %s: %v", ErrUpstreamRejected, kind, op, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %s %s: %v", ErrUpstreamUnavailable, kind, op, err)
	}
	return fmt.Errorf("%w: %s %s: %v", ErrUpstreamRejected, kind, op, err)
}

func claimsFromBody(body []byte) map[string]any {
	claims := map[string]any{}
	_ = json.Unmarshal(body, &claims)
	return claims
}
