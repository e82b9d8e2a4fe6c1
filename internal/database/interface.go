package database

import (
	"context"
	"fmt"

	"github.com/CosmoTheDev/devops-atlas/internal/config"
)

// Querier is the subset of operations available both on a DB and inside a
// transaction started with InTx.
type Querier interface {
	// Select executes a query and scans rows into dest (slice pointer).
	Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error

	// Get executes a query expected to return a single row and scans into dest.
	// Returns sql.ErrNoRows when nothing matched.
	Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error

	// Exec executes a statement that returns no rows.
	Exec(ctx context.Context, query string, args ...interface{}) error

	// ExecCount executes a statement and returns the number of affected rows.
	ExecCount(ctx context.Context, query string, args ...interface{}) (int64, error)

	// Columns lists the column names of table.
	Columns(ctx context.Context, table string) ([]string, error)

	// UpsertValues inserts or replaces one row given explicit columns.
	UpsertValues(ctx context.Context, table string, cols []string, vals []interface{}, conflictCols []string) error
}

// DB is the SQL connection used by the document store's SQL engine.
// Implementations exist for SQLite (default) and MySQL.
type DB interface {
	Querier

	// InTx runs fn inside a transaction, committing when fn returns nil.
	InTx(ctx context.Context, fn func(q Querier) error) error

	// Migrate applies pending bootstrap migrations in order.
	Migrate(ctx context.Context) error

	// Ping verifies the database connection is alive.
	Ping(ctx context.Context) error

	// Close releases the database connection.
	Close() error

	// Driver returns the backend name: "sqlite" or "mysql".
	Driver() string

	// Dialect exposes the SQL flavour differences needed for DDL.
	Dialect() Dialect
}

// New returns a DB implementation matching cfg.Driver.
// SQLite is the default when driver is empty.
func New(cfg config.DatabaseConfig) (DB, error) {
	switch cfg.Driver {
	case "mysql":
		return NewMySQL(cfg)
	case "sqlite", "sqlite3", "":
		return NewSQLite(cfg)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q (supported: sqlite, mysql)", cfg.Driver)
	}
}
