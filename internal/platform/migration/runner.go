// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package migration wraps golang-migrate for the gateway schema.
//
// The API applies pending migrations on startup through [RunUp]. The operator
// CLI opens a [Runner] directly to step the schema up or down and inspect it.
package migration

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	// pgx5 driver registers the "pgx5" scheme for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	// file source reads .sql files from disk.
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Status is the schema version recorded in the database.
type Status struct {
	Version uint
	Dirty   bool

	// Empty is true when no migration was ever applied.
	Empty bool
}

// Runner applies migrations from one directory to one database.
type Runner struct {
	migrator *migrate.Migrate
	logger   *slog.Logger
}

// Open prepares a [Runner]. Close must be called when done.
func Open(dsn, migrationsPath string, logger *slog.Logger) (*Runner, error) {
	migrator, err := migrate.New("file://"+migrationsPath, pgx5DSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("migration_open_failed: %w", err)
	}
	migrator.Log = &migrateLogger{logger: logger}

	return &Runner{migrator: migrator, logger: logger}, nil
}

// Close releases the source and database handles.
func (runner *Runner) Close() {
	sourceErr, databaseErr := runner.migrator.Close()
	if sourceErr != nil {
		runner.logger.Error("migration_source_close_failed", slog.Any("error", sourceErr))
	}
	if databaseErr != nil {
		runner.logger.Error("migration_db_close_failed", slog.Any("error", databaseErr))
	}
}

// Status reports the current schema version.
func (runner *Runner) Status() (Status, error) {
	version, dirty, err := runner.migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{Empty: true}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("migration_version_failed: %w", err)
	}
	return Status{Version: version, Dirty: dirty}, nil
}

// Up applies every pending migration. A dirty schema is refused.
func (runner *Runner) Up() error {
	before, err := runner.cleanStatus()
	if err != nil {
		return err
	}

	if err := runner.migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			runner.logger.Info("migration_already_up_to_date", slog.Uint64("version", uint64(before.Version)))
			return nil
		}
		return fmt.Errorf("migration_up_failed: %w", err)
	}

	runner.logApplied(before)
	return nil
}

// Down rolls back steps migrations.
func (runner *Runner) Down(steps int) error {
	if steps < 1 {
		return fmt.Errorf("migration: steps must be at least 1")
	}

	before, err := runner.cleanStatus()
	if err != nil {
		return err
	}

	if err := runner.migrator.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration_down_failed: %w", err)
	}

	runner.logApplied(before)
	return nil
}

func (runner *Runner) cleanStatus() (Status, error) {
	status, err := runner.Status()
	if err != nil {
		return Status{}, err
	}
	if status.Dirty {
		return Status{}, fmt.Errorf("migration: database is dirty at version %d (manual intervention required)", status.Version)
	}
	return status, nil
}

func (runner *Runner) logApplied(before Status) {
	after, err := runner.Status()
	if err != nil {
		runner.logger.Warn("migration_version_unreadable", slog.Any("error", err))
		return
	}
	runner.logger.Info("migration_applied",
		slog.Uint64("from_version", uint64(before.Version)),
		slog.Uint64("to_version", uint64(after.Version)),
	)
}

// RunUp opens a [Runner], applies pending migrations and closes it.
func RunUp(dsn, migrationsPath string, logger *slog.Logger) error {
	runner, err := Open(dsn, migrationsPath, logger)
	if err != nil {
		return err
	}
	defer runner.Close()

	return runner.Up()
}

// pgx5DSN rewrites postgres:// and postgresql:// URLs to the pgx5:// scheme.
func pgx5DSN(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(dsn, prefix); ok {
			return "pgx5://" + rest
		}
	}
	return dsn
}

// migrateLogger adapts golang-migrate's logger to slog.
type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *migrateLogger) Verbose() bool {
	return false
}
