//go:build integration

// Package pgtest starts one disposable Postgres per test binary and hands tests a freshly
// truncated, fully migrated database.
package pgtest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"worknest/internal/platform/database"
	"worknest/internal/platform/migrate"
)

var (
	shared     *sqlx.DB
	skipReason string
)

// Run starts the container, applies migrations, runs the package's tests and tears
// everything down. Use it from TestMain.
func Run(m *testing.M) int {
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("worknest"),
		postgres.WithUsername("worknest"),
		postgres.WithPassword("worknest"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		skipReason = fmt.Sprintf("postgres container unavailable: %v", err)
		return m.Run()
	}
	defer func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			fmt.Fprintf(os.Stderr, "terminate postgres container: %v\n", err)
		}
	}()

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres connection string: %v\n", err)
		return 1
	}

	db, err := database.NewPostgres(ctx, dsn, database.DefaultPoolOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := migrate.Apply(ctx, db, logger); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	shared = db
	return m.Run()
}

// DB returns the shared database with every application table emptied.
func DB(t *testing.T) *sqlx.DB {
	t.Helper()
	if shared == nil {
		t.Skip(skipReason)
	}

	const truncate = `TRUNCATE users, federated_identities, company_profiles, job_seeker_profiles,
		refresh_tokens, job_posts, saved_jobs, job_applications CASCADE`
	if _, err := shared.ExecContext(t.Context(), truncate); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return shared
}
