package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// MigrationDirection selects whether migrations are applied or rolled back.
type MigrationDirection string

const (
	MigrateUp   MigrationDirection = "up"
	MigrateDown MigrationDirection = "down"
)

// RunMigrations applies every pending migration from migrationsPath.
// It is idempotent: an up-to-date database is not an error.
func RunMigrations(db *sql.DB, migrationsPath string, logger *zap.Logger) error {
	return Migrate(db, migrationsPath, MigrateUp, 0, logger)
}

// Migrate moves the schema in direction. steps > 0 limits the number of
// migrations applied or rolled back; 0 means all of them.
func Migrate(db *sql.DB, migrationsPath string, direction MigrationDirection, steps int, logger *zap.Logger) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("Failed to close migration source", zap.Error(srcErr))
		}
		if dbErr != nil {
			logger.Warn("Failed to close migration database", zap.Error(dbErr))
		}
	}()

	switch {
	case steps > 0 && direction == MigrateDown:
		err = m.Steps(-steps)
	case steps > 0:
		err = m.Steps(steps)
	case direction == MigrateDown:
		err = m.Down()
	default:
		err = m.Up()
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("No migrations to apply (database up-to-date)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations %s: %w", direction, err)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", verr)
	}
	logger.Info("Migrations applied",
		zap.String("direction", string(direction)),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty))
	return nil
}
