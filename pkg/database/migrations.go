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

// RunMigrations brings the warehouse DDL up to date: the operational,
// stage, history and star schemas all live in one database and migrate
// together. Idempotent; only pending migrations are applied.
func RunMigrations(db *sql.DB, migrationsPath string, logger *zap.Logger) error {
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

	from, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	if dirty {
		// A half-applied migration needs operator attention; retrying
		// blindly could leave the pipeline schemas inconsistent.
		return fmt.Errorf("warehouse is dirty at migration version %d, resolve manually", from)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("Warehouse schemas up to date",
				zap.Uint("version", from))
			return nil
		}
		return fmt.Errorf("failed to migrate warehouse schemas: %w", err)
	}

	to, _, _ := m.Version()
	logger.Info("Migrated warehouse schemas",
		zap.Uint("from_version", from),
		zap.Uint("to_version", to),
		zap.Strings("schemas", []string{
			"satellite_image_processing", "stage", "history", "star",
		}))
	return nil
}
