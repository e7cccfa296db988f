package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Each dialect keeps its own migration set; the column types differ.
//
//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFiles embed.FS

// runMigrations brings db up to the latest schema for driver. The
// connection stays open; closing it is the caller's job.
func runMigrations(db *sql.DB, driver string) error {
	var (
		target database.Driver
		err    error
	)

	switch driver {
	case DriverSQLite:
		// This driver works with modernc.org/sqlite as well
		target, err = sqlite.WithInstance(db, &sqlite.Config{})
	case DriverPostgres:
		target, err = migratepgx.WithInstance(db, &migratepgx.Config{})
	default:
		return fmt.Errorf("no migrations for driver %q", driver)
	}
	if err != nil {
		return err
	}

	src, err := iofs.New(migrationFiles, "migrations/"+driver)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, target)
	if err != nil {
		return err
	}

	// The postgres driver pins a dedicated connection that must go back
	// to the pool. Closing the sqlite driver would close db itself.
	if driver == DriverPostgres {
		defer m.Close()
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}
