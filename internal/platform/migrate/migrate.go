package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"worknest/migrations"
)

// goose keeps its FS, dialect and logger in package globals.
var setupMu sync.Mutex

func setup(logger *slog.Logger) error {
	goose.SetBaseFS(migrations.Files)
	goose.SetLogger(newGooseLogger(logger))
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("migrate: set goose dialect: %w", err)
	}
	return nil
}

// Apply runs any pending SQL migrations bundled with the binary.
func Apply(ctx context.Context, db *sqlx.DB, logger *slog.Logger) error {
	setupMu.Lock()
	defer setupMu.Unlock()

	if err := setup(logger); err != nil {
		return err
	}

	initialized, err := tableExists(ctx, db.DB, "users")
	if err != nil {
		return fmt.Errorf("migrate: check core tables: %w", err)
	}
	if !initialized && logger != nil {
		logger.Info("initializing empty database")
	}

	if err := goose.UpContext(ctx, db.DB, "."); err != nil {
		return fmt.Errorf("migrate: goose up: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, db.DB)
	if err != nil {
		return fmt.Errorf("migrate: read version: %w", err)
	}
	if logger != nil {
		logger.Info("database schema ready", "version", version)
	}
	return nil
}

// tableExists reports whether name exists in the current schema.
func tableExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_tables WHERE schemaname = current_schema() AND tablename = $1)`,
		name,
	).Scan(&exists)
	return exists, err
}
