// Package storage opens the ledger database and keeps its schema current.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/extra/bundebug"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config describes the database connection.
type Config struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	Debug           bool          `mapstructure:"debug"`
}

// DefaultConfig points at a local SQLite file.
func DefaultConfig() Config {
	return Config{
		Driver:          DriverSQLite,
		DSN:             "file:ledger.db?_foreign_keys=on&_busy_timeout=5000",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		AutoMigrate:     true,
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var problems []string

	switch c.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		problems = append(problems, fmt.Sprintf("driver %q must be %q or %q", c.Driver, DriverSQLite, DriverPostgres))
	}
	if strings.TrimSpace(c.DSN) == "" {
		problems = append(problems, "dsn is required")
	}
	if c.MaxOpenConns < 0 {
		problems = append(problems, "max_open_conns must be non-negative")
	}
	if c.MaxIdleConns < 0 {
		problems = append(problems, "max_idle_conns must be non-negative")
	}

	if len(problems) > 0 {
		return errors.New("invalid database config: "+strings.Join(problems, "; "), errors.CategoryValidation)
	}
	return nil
}

// Open connects to the configured database and returns a bun handle. When
// AutoMigrate is set the schema is brought up to date before returning.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*bun.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sqlDriver := "sqlite3"
	if cfg.Driver == DriverPostgres {
		sqlDriver = "postgres"
	}

	sqldb, err := sql.Open(sqlDriver, cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryExternal, "open database")
	}

	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	var db *bun.DB
	if cfg.Driver == DriverPostgres {
		db = bun.NewDB(sqldb, pgdialect.New())
	} else {
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.CategoryExternal, "ping database")
	}

	if cfg.AutoMigrate {
		if err := Migrate(db.DB, cfg.Driver); err != nil {
			db.Close()
			return nil, err
		}
	}

	if logger != nil {
		logger.Info("database ready", "driver", cfg.Driver, "auto_migrate", cfg.AutoMigrate)
	}
	return db, nil
}

// InTx runs fn inside a database transaction, committing when fn returns nil.
func InTx(ctx context.Context, db *bun.DB, fn func(ctx context.Context, tx bun.Tx) error) error {
	return db.RunInTx(ctx, &sql.TxOptions{}, fn)
}
