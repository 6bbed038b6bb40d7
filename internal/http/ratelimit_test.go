package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterRejectsAfterBurst(t *testing.T) {
	recorder := &recorderStub{}
	limiter := NewIPRateLimiter(2, recorder, discardLogger())
	t.Cleanup(limiter.Stop)

	handler := limiter.Middleware("login")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := range 2 {
		if rec := send("10.0.0.1:5000"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	rec := send("10.0.0.1:5001")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
	if len(recorder.rateLimited) != 1 || recorder.rateLimited[0] != "login" {
		t.Fatalf("unexpected rate limit records %v", recorder.rateLimited)
	}

	if rec := send("10.0.0.2:5000"); rec.Code != http.StatusOK {
		t.Fatalf("expected other clients unaffected, got %d", rec.Code)
	}
}

func TestRateLimiterCleanupEvictsIdleClients(t *testing.T) {
	limiter := NewIPRateLimiter(5, nil, discardLogger())
	t.Cleanup(limiter.Stop)

	limiter.allow("10.0.0.1")
	limiter.cleanup(time.Now())
	if len(limiter.limiters) != 1 {
		t.Fatalf("expected active client to be kept, got %d", len(limiter.limiters))
	}

	limiter.cleanup(time.Now().Add(limiter.idleTTL + time.Second))
	if len(limiter.limiters) != 0 {
		t.Fatalf("expected idle client to be evicted, got %d", len(limiter.limiters))
	}
}

func TestRouterAppliesLoginLimit(t *testing.T) {
	limiter := NewIPRateLimiter(1, nil, discardLogger())
	t.Cleanup(limiter.Stop)
	env := newTestEnv(t, withLimiter(limiter))

	body := map[string]string{"email": "nobody@example.com", "password": "whatever123"}
	if rec := env.do(t, request{method: http.MethodPost, path: "/login", body: body}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for first attempt, got %d", rec.Code)
	}
	if rec := env.do(t, request{method: http.MethodPost, path: "/login", body: body}); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for second attempt, got %d", rec.Code)
	}
}
