package migrations

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/uptrace/bun"
)

// MigrateOptions defines configuration options for migration
type MigrateOptions struct {
	// MigrationsDir is the directory containing migration files
	MigrationsDir string
	// AutoMigrate determines whether to run migrations automatically on startup
	AutoMigrate bool
}

// DefaultOptions returns the default migration options
func DefaultOptions() MigrateOptions {
	return MigrateOptions{
		MigrationsDir: "./internal/database/migrations",
		AutoMigrate:   true,
	}
}

// Runner handles database migrations
type Runner struct {
	bunDB    *bun.DB
	options  MigrateOptions
	migrator *migrate.Migrate
}

// NewRunner creates a new migration runner
func NewRunner(bunDB *bun.DB, opts MigrateOptions) *Runner {
	return &Runner{
		bunDB:   bunDB,
		options: opts,
	}
}

// Initialize prepares the migration system
func (r *Runner) Initialize() error {
	sqlDB := r.bunDB.DB

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres migration driver: %w", err)
	}

	if _, err := os.Stat(r.options.MigrationsDir); os.IsNotExist(err) {
		return fmt.Errorf("migrations directory does not exist: %s", r.options.MigrationsDir)
	}

	migrator, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", r.options.MigrationsDir),
		"postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	r.migrator = migrator
	return nil
}

// RunMigrations runs all pending migrations, repairing a dirty version
// marker first if a previous run died mid-migration.
func (r *Runner) RunMigrations() error {
	if r.migrator == nil {
		if err := r.Initialize(); err != nil {
			return err
		}
	}

	version, dirty, err := r.migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		log.Println("Detected dirty migration, attempting to fix...")
		if err := r.migrator.Force(int(version)); err != nil {
			return fmt.Errorf("failed to fix dirty migration: %w", err)
		}
	}

	if err := r.migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, _, err = r.migrator.Version()
	if err == nil {
		log.Printf("Current schema version: %d", version)
	} else if !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	return nil
}

// MigrateDown rolls back all migrations
func (r *Runner) MigrateDown() error {
	if r.migrator == nil {
		if err := r.Initialize(); err != nil {
			return err
		}
	}

	if err := r.migrator.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// Close frees resources associated with the migrator
func (r *Runner) Close() error {
	if r.migrator != nil {
		sourceErr, databaseErr := r.migrator.Close()
		if sourceErr != nil {
			return fmt.Errorf("error closing migrator source: %w", sourceErr)
		}
		if databaseErr != nil {
			return fmt.Errorf("error closing migrator database: %w", databaseErr)
		}
	}
	return nil
}
