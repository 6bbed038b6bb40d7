package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"worknest/internal/accounts"
	"worknest/internal/config"
	"worknest/internal/jobs"
	"worknest/internal/oauth"
	"worknest/internal/tokens"
)

// Recorder is the metrics surface the HTTP layer reports to.
type Recorder interface {
	AuthRecorder
	RateLimitRecorder
	RequestRecorder
}

// Services bundles the domain services the router exposes.
type Services struct {
	Accounts   *accounts.Service
	Tokens     *tokens.Service
	Federation *oauth.Federation
	Jobs       *jobs.Service
	// Limiter guards credential endpoints. A nil limiter disables rate limiting.
	Limiter *IPRateLimiter
	// Recorder may be nil.
	Recorder Recorder
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// NewRouter wires application routes and middleware using chi.
func NewRouter(cfg config.Config, svc Services, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	var requests RequestRecorder
	var authRecorder AuthRecorder
	if svc.Recorder != nil {
		requests = svc.Recorder
		authRecorder = svc.Recorder
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(newSecurityHeadersMiddleware(cfg.Environment))
	r.Use(newSlogMiddleware(logger, requests))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"environment": cfg.Environment,
		})
	})
	if svc.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", svc.Metrics)
	}

	cookies := NewCookieConfig(cfg.RefreshCookieName, cfg.RefreshCookieDomain, cfg.Environment, svc.Tokens.RefreshTTL())
	authHandler := NewAuthHandler(svc.Accounts, svc.Tokens, cookies, authRecorder, logger)
	oauthHandler := NewOAuthHandler(svc.Federation, svc.Tokens, cookies, authRecorder, logger)
	userHandler := NewUserHandler(svc.Accounts, logger)
	jobHandler := NewJobHandler(svc.Jobs, svc.Accounts, logger)

	requireAuth := newBearerAuthMiddleware(svc.Tokens, logger)
	limited := func(scope string) func(http.Handler) http.Handler {
		if svc.Limiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return svc.Limiter.Middleware(scope)
	}

	r.With(limited("signup")).Post("/signup", authHandler.Signup)
	r.With(limited("login")).Post("/login", authHandler.Login)
	r.Post("/token/refresh", authHandler.Refresh)
	r.Route("/oauth/{provider}", func(r chi.Router) {
		r.Use(limited("oauth"))
		r.Post("/", oauthHandler.Login)
		r.Post("/exchange", oauthHandler.Exchange)
	})

	r.Get("/stats", jobHandler.Stats)
	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", jobHandler.List)
		r.With(newOptionalAuthMiddleware(svc.Tokens)).Get("/{id}", jobHandler.Get)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/", jobHandler.Create)
			r.Put("/{id}", jobHandler.Update)
			r.Delete("/{id}", jobHandler.Delete)
			r.Post("/{id}/save", jobHandler.Save)
			r.Post("/{id}/apply", jobHandler.Apply)
			r.Get("/{id}/applications", jobHandler.PostApplications)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)

		r.Post("/logout", authHandler.Logout)

		r.Get("/user", userHandler.Get)
		r.Patch("/user", userHandler.Update)
		r.Get("/user/profile", userHandler.Profile)
		r.Post("/onboarding/complete", userHandler.CompleteOnboarding)
		r.Post("/onboarding/reset", userHandler.ResetOnboarding)
		r.Post("/create-company", userHandler.CreateCompany)
		r.Post("/create-jobseeker", userHandler.CreateJobSeeker)

		r.Get("/my-jobs", jobHandler.MyJobs)
		r.Get("/saved-jobs", jobHandler.Saved)
		r.Delete("/saved-jobs/{id}", jobHandler.Unsave)
		r.Get("/my-applications", jobHandler.MyApplications)
		r.Get("/company-applications", jobHandler.CompanyApplications)
		r.Patch("/applications/{id}/status", jobHandler.UpdateApplicationStatus)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	return r
}
