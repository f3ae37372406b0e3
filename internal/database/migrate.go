package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/cloo-solutions/storyrag/internal/logger"
	"github.com/cloo-solutions/storyrag/migrations"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Migrate applies all pending up migrations and returns the resulting
// schema version.
func Migrate(databaseURL string, log *logger.Logger) (uint, error) {
	return withMigrator(databaseURL, log, func(m *migrate.Migrate) error {
		return m.Up()
	})
}

// MigrateDown rolls back steps migrations.
func MigrateDown(databaseURL string, steps int, log *logger.Logger) (uint, error) {
	if steps <= 0 {
		return 0, fmt.Errorf("steps must be positive, got %d", steps)
	}
	return withMigrator(databaseURL, log, func(m *migrate.Migrate) error {
		return m.Steps(-steps)
	})
}

func withMigrator(databaseURL string, log *logger.Logger, run func(m *migrate.Migrate) error) (uint, error) {
	log = logger.OrNop(log)

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return 0, fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return 0, fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return 0, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return 0, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	runErr := run(m)
	if runErr != nil && !errors.Is(runErr, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to apply migrations: %w", runErr)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		log.Info("migrations: database has no applied migrations")
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("failed to get migration version: %w", err)
	case dirty:
		return version, fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	case errors.Is(runErr, migrate.ErrNoChange):
		log.Info("migrations: database is up to date", "version", version)
	default:
		log.Info("migrations: applied successfully", "version", version)
	}
	return version, nil
}
