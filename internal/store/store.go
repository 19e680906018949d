// Package store implements the import storage collaborator on PostgreSQL
// (pgx) and SQLite (modernc.org/sqlite).
//
// Both stores run a batch in a single database transaction and map row
// savepoints onto SQL SAVEPOINT statements. Tables are created from the
// registered core table definitions by Migrate.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/JonMunkholm/carimport/internal/core"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store is the persistence interface used by the importer, the web server
// and the CLI.
type Store interface {
	core.Store
	core.RunLog

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a store.
type Config struct {
	Driver   string
	URL      string
	MaxConns int32
	MinConns int32
}

// Open connects to the configured database. The schema is not migrated.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverPostgres, "postgresql", "pgx":
		s, err := NewPostgres(ctx, cfg.URL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverSQLite, "sqlite3":
		s, err := NewSQLite(cfg.URL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("store: unsupported driver %q", cfg.Driver)
	}
}
