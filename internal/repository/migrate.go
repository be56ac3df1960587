package repository

import (
	"errors"
	"fmt"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
)

// Migrate applies every pending up migration from sourceURL (e.g. file://migrations)
// over its own connection, and reports whether anything was applied.
func Migrate(dsn, sourceURL string) (bool, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return false, fmt.Errorf("open migration connection: %w", err)
	}

	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		db.Close()
		return false, fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		db.Close()
		return false, fmt.Errorf("create migrator: %w", err)
	}

	// Closing the migrator also closes db.
	upErr := m.Up()
	sourceErr, dbErr := m.Close()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return false, fmt.Errorf("apply migrations: %w", upErr)
	}
	if err := errors.Join(sourceErr, dbErr); err != nil {
		return false, fmt.Errorf("close migrator: %w", err)
	}

	return upErr == nil, nil
}
