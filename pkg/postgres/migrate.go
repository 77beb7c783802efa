package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // register postgres driver
	_ "github.com/golang-migrate/migrate/v4/source/file"       // register file source driver
)

// MigrationResult reports the schema version before and after a run.
type MigrationResult struct {
	From  uint
	To    uint
	Dirty bool
}

// Applied reports whether the run moved the schema version.
func (r MigrationResult) Applied() bool { return r.From != r.To }

// MigrationSource turns a directory into a golang-migrate file:// source URL.
// Values that already carry a scheme are returned unchanged.
func MigrationSource(dir string) string {
	if strings.Contains(dir, "://") {
		return dir
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return "file://" + filepath.ToSlash(abs)
}

// RunMigrations applies every pending migration found in dir, which may be
// a plain directory or a source URL. An up-to-date schema is not an error.
func RunMigrations(dsn, dir string, logger *slog.Logger) (MigrationResult, error) {
	return runMigrations(dsn, dir, logger, "up", (*migrate.Migrate).Up)
}

// RunMigrationsDown rolls back every applied migration.
func RunMigrationsDown(dsn, dir string, logger *slog.Logger) (MigrationResult, error) {
	return runMigrations(dsn, dir, logger, "down", (*migrate.Migrate).Down)
}

func runMigrations(dsn, dir string, logger *slog.Logger, direction string, step func(*migrate.Migrate) error) (MigrationResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	source := MigrationSource(dir)

	m, err := migrate.New(source, dsn)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("postgres: create migrator for %s: %w", source, err)
	}
	defer m.Close()
	m.Log = &migrateLogger{logger: logger}

	var res MigrationResult
	res.From, _ = currentVersion(m)

	if err := step(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return res, fmt.Errorf("postgres: run migrations %s: %w", direction, err)
	}

	res.To, res.Dirty = currentVersion(m)
	logger.Info("migrations finished",
		slog.String("direction", direction),
		slog.Uint64("from_version", uint64(res.From)),
		slog.Uint64("to_version", uint64(res.To)),
		slog.Bool("dirty", res.Dirty),
	)
	return res, nil
}

// currentVersion treats a database with no applied migrations as version 0.
func currentVersion(m *migrate.Migrate) (uint, bool) {
	v, dirty, err := m.Version()
	if err != nil {
		return 0, false
	}
	return v, dirty
}

// migrateLogger routes golang-migrate output through slog.
type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "migrate"))
}

func (l *migrateLogger) Verbose() bool {
	return l.logger.Enabled(context.Background(), slog.LevelDebug)
}
