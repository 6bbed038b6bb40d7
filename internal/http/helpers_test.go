package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"worknest/internal/accounts"
	"worknest/internal/config"
	"worknest/internal/jobs"
	"worknest/internal/oauth"
	"worknest/internal/tokens"
)

var testSigningKey = []byte("test-signing-key-0123456789abcdef")

type testEnv struct {
	handler    http.Handler
	accounts   *accounts.Service
	tokens     *tokens.Service
	tokenStore *tokens.InMemoryStore
	jobs       *jobs.Service
}

type envOption func(*envSettings)

type envSettings struct {
	providers []oauth.Provider
	limiter   *IPRateLimiter
	recorder  Recorder
}

func withProviders(providers ...oauth.Provider) envOption {
	return func(s *envSettings) { s.providers = providers }
}

func withLimiter(limiter *IPRateLimiter) envOption {
	return func(s *envSettings) { s.limiter = limiter }
}

func withRecorder(recorder Recorder) envOption {
	return func(s *envSettings) { s.recorder = recorder }
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	settings := envSettings{}
	for _, opt := range opts {
		opt(&settings)
	}

	accountSvc := accounts.NewService(accounts.NewInMemoryRepository(nil), accounts.WithHashCost(bcrypt.MinCost))
	store := tokens.NewInMemoryStore()
	tokenSvc, err := tokens.NewService(store, tokens.Config{SigningKey: testSigningKey, Rotate: true})
	if err != nil {
		t.Fatalf("tokens.NewService: %v", err)
	}
	jobSvc := jobs.NewService(jobs.NewInMemoryRepository(nil), accountSvc)
	federation := oauth.NewFederation(accountSvc, settings.providers)

	cfg := config.Config{
		Environment:       "development",
		AllowedOrigins:    []string{"http://localhost:3000"},
		RefreshCookieName: "refresh_token",
	}
	handler := NewRouter(cfg, Services{
		Accounts:   accountSvc,
		Tokens:     tokenSvc,
		Federation: federation,
		Jobs:       jobSvc,
		Limiter:    settings.limiter,
		Recorder:   settings.recorder,
	}, discardLogger())

	return &testEnv{handler: handler, accounts: accountSvc, tokens: tokenSvc, tokenStore: store, jobs: jobSvc}
}

type request struct {
	method  string
	path    string
	body    any
	bearer  string
	cookies []*http.Cookie
}

func (e *testEnv) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader = http.NoBody
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	r := httptest.NewRequest(req.method, req.path, body)
	if req.body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if req.bearer != "" {
		r.Header.Set("Authorization", "Bearer "+req.bearer)
	}
	for _, c := range req.cookies {
		r.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, r)
	return rec
}

type sessionBody struct {
	AccessToken string `json:"access_token"`
	User        struct {
		ID                  string  `json:"id"`
		Email               string  `json:"email"`
		UserType            *string `json:"user_type"`
		OnboardingCompleted bool    `json:"onboarding_completed"`
	} `json:"user"`
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func refreshCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "refresh_token" {
			return c
		}
	}
	t.Fatalf("response carries no refresh_token cookie")
	return nil
}

// signup registers an account and returns its access token and refresh cookie.
func (e *testEnv) signup(t *testing.T, email string) (string, *http.Cookie) {
	t.Helper()
	rec := e.do(t, request{method: http.MethodPost, path: "/signup", body: map[string]string{
		"email": email, "password": "password123", "confirm_password": "password123",
	}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup %s: expected 201, got %d: %s", email, rec.Code, rec.Body.String())
	}
	return decodeBody[sessionBody](t, rec).AccessToken, refreshCookie(t, rec)
}

// onboard signs up an account and completes onboarding with the given profile endpoint.
func (e *testEnv) onboard(t *testing.T, email, endpoint string, profile map[string]string) string {
	t.Helper()
	token, _ := e.signup(t, email)
	rec := e.do(t, request{method: http.MethodPost, path: endpoint, bearer: token, body: profile})
	if rec.Code != http.StatusCreated {
		t.Fatalf("%s: expected 201, got %d: %s", endpoint, rec.Code, rec.Body.String())
	}
	return token
}

func companyProfile() map[string]string {
	return map[string]string{
		"name": "Acme", "location": "Berlin", "website": "https://acme.test", "about": "We build things.",
	}
}

func seekerProfile() map[string]string {
	return map[string]string{
		"name": "Dev", "about": "Gopher", "resume": "https://cdn.example.com/resume.pdf",
	}
}

type recorderStub struct {
	logins      []string
	signups     []string
	rateLimited []string
	requests    int
}

func (r *recorderStub) RecordLogin(method, outcome string) {
	r.logins = append(r.logins, method+":"+outcome)
}

func (r *recorderStub) RecordSignup(outcome string) {
	r.signups = append(r.signups, outcome)
}

func (r *recorderStub) RecordRateLimited(scope string) {
	r.rateLimited = append(r.rateLimited, scope)
}

func (r *recorderStub) RecordHTTPRequest(int, time.Duration) {
	r.requests++
}

type providerStub struct {
	kind     oauth.Kind
	profiles map[string]oauth.Profile
	err      error
}

func (p *providerStub) Name() oauth.Kind {
	return p.kind
}

func (p *providerStub) ExchangeCode(_ context.Context, code, _ string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	if _, ok := p.profiles[code]; ok {
		return code, nil
	}
	return "", oauth.ErrUpstreamRejected
}

func (p *providerStub) FetchProfile(_ context.Context, accessToken string) (oauth.Profile, error) {
	if p.err != nil {
		return oauth.Profile{}, p.err
	}
	profile, ok := p.profiles[accessToken]
	if !ok {
		return oauth.Profile{}, oauth.ErrUpstreamRejected
	}
	return profile, nil
}
