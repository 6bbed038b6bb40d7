package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"worknest/internal/accounts"
	"worknest/internal/config"
	transporthttp "worknest/internal/http"
	"worknest/internal/janitor"
	"worknest/internal/jobs"
	"worknest/internal/metrics"
	"worknest/internal/oauth"
	"worknest/internal/platform/database"
	"worknest/internal/platform/logging"
	"worknest/internal/platform/migrate"
	"worknest/internal/tokens"
)

type stores struct {
	accounts accounts.Repository
	tokens   tokens.Store
	jobs     jobs.Repository
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel, cfg.Environment)

	repos, cleanup, err := buildStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	accountSvc := accounts.NewService(repos.accounts)
	tokenSvc, err := tokens.NewService(repos.tokens, tokens.Config{
		SigningKey: []byte(cfg.TokenSigningKey),
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
		Rotate:     cfg.RotateRefresh,
	}, tokens.WithLogger(logger), tokens.WithRecorder(collector))
	if err != nil {
		logger.Error("failed to initialize token service", "error", err)
		os.Exit(1)
	}

	federation, err := buildFederation(cfg, accountSvc, collector, logger)
	if err != nil {
		logger.Error("failed to initialize oauth federation", "error", err)
		os.Exit(1)
	}

	jobSvc := jobs.NewService(repos.jobs, accountSvc)

	if cfg.SeedDemoData {
		if cfg.UseInMemoryStore() {
			if err := seedDemoData(ctx, accountSvc, jobSvc); err != nil {
				logger.Error("failed to seed demo data", "error", err)
				os.Exit(1)
			}
			logger.Info("demo data seeded", "accounts", len(demoAccounts))
		} else {
			logger.Warn("SEED_DEMO_DATA ignored for postgres store")
		}
	}

	limiter := transporthttp.NewIPRateLimiter(cfg.LoginRatePerMinute, collector, logger)
	defer limiter.Stop()

	router := transporthttp.NewRouter(cfg, transporthttp.Services{
		Accounts:   accountSvc,
		Tokens:     tokenSvc,
		Federation: federation,
		Jobs:       jobSvc,
		Limiter:    limiter,
		Recorder:   collector,
		Metrics:    metrics.Handler(registry),
	}, logger)

	maintenance := janitor.New(cfg.JanitorInterval, logger,
		janitor.Task{Name: "purge_refresh_tokens", Run: func(ctx context.Context) (int64, error) {
			return tokenSvc.PurgeExpired(ctx, time.Now().UTC())
		}},
		janitor.Task{Name: "expire_listings", Run: jobSvc.ExpireListings},
	)
	go maintenance.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}

	go func() {
		logger.Info("WorkNest API listening", "addr", srv.Addr, "store", cfg.DataStore, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func buildStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (stores, func(), error) {
	if cfg.UseInMemoryStore() {
		logger.Info("using in-memory repositories")
		return stores{
			accounts: accounts.NewInMemoryRepository(nil),
			tokens:   tokens.NewInMemoryStore(),
			jobs:     jobs.NewInMemoryRepository(nil),
		}, nil, nil
	}

	db, err := database.NewPostgres(ctx, cfg.DatabaseURL, database.DefaultPoolOptions())
	if err != nil {
		return stores{}, nil, err
	}

	cleanup := func() {
		_ = db.Close()
	}

	if err := migrate.Apply(ctx, db, logger); err != nil {
		cleanup()
		return stores{}, nil, err
	}

	logger.Info("connected to postgres")
	return stores{
		accounts: accounts.NewPostgresRepository(db),
		tokens:   tokens.NewPostgresStore(db),
		jobs:     jobs.NewPostgresRepository(db),
	}, cleanup, nil
}

func buildFederation(cfg config.Config, accountSvc *accounts.Service, recorder oauth.Recorder, logger *slog.Logger) (*oauth.Federation, error) {
	providers := []oauth.Provider{
		oauth.NewGoogleProvider(oauth.Credentials{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
		}, oauth.WithTimeout(cfg.OAuthHTTPTimeout)),
		oauth.NewGitHubProvider(oauth.Credentials{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
		}, oauth.WithTimeout(cfg.OAuthHTTPTimeout)),
	}

	opts := []oauth.FederationOption{oauth.WithLogger(logger), oauth.WithRecorder(recorder)}
	if cfg.GoogleClientID != "" {
		verifier, err := oauth.NewGoogleIDTokenVerifier(cfg.GoogleClientID, &http.Client{Timeout: cfg.OAuthHTTPTimeout})
		if err != nil {
			return nil, err
		}
		opts = append(opts, oauth.WithIDTokenVerifier(verifier))
	} else {
		logger.Warn("AUTH_GOOGLE_CLIENT_ID not set; google id_token login disabled")
	}

	return oauth.NewFederation(accountSvc, providers, opts...), nil
}
