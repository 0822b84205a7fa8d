package storage

import (
	"database/sql"
	"embed"
	"io/fs"

	"github.com/goliatone/go-errors"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Migrations returns the embedded migration files for driver.
func Migrations(driver string) (fs.FS, error) {
	dir := "migrations/sqlite"
	if driver == DriverPostgres {
		dir = "migrations/postgres"
	}
	return fs.Sub(migrationsFS, dir)
}

// Migrate applies every pending up migration to db. The handle stays open;
// only the embedded source is released afterwards.
func Migrate(db *sql.DB, driver string) error {
	var (
		dbDriver database.Driver
		err      error
		name     string
	)

	switch driver {
	case DriverPostgres:
		name = "postgres"
		dbDriver, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		name = "sqlite3"
		dbDriver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	}
	if err != nil {
		return errors.Wrap(err, errors.CategoryExternal, "create migration driver")
	}

	files, err := Migrations(driver)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "load migrations")
	}

	src, err := iofs.New(files, ".")
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "create migration source")
	}
	defer src.Close()

	m, err := migrate.NewWithInstance("iofs", src, name, dbDriver)
	if err != nil {
		return errors.Wrap(err, errors.CategoryExternal, "create migrator")
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, errors.CategoryExternal, "run migrations")
	}
	return nil
}
