package store

import (
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrateUp applies all pending schema migrations and returns the resulting
// schema version.
func migrateUp(db *sql.DB) (uint, error) {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return 0, err
	}

	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return 0, err
	}

	// Closing m would close db through the driver, so it is left open.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return 0, err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, err
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, err
	}
	if dirty {
		return version, errors.New("schema is dirty after migration")
	}
	return version, nil
}
