package database

import (
	"fmt"
	"strings"
)

// Dialect captures the DDL and upsert differences between SQL backends.
type Dialect interface {
	Name() string
	// KeyColumnType is the column type for primary keys and index values.
	KeyColumnType() string
	// BodyColumnType is the column type for serialized record bodies.
	BodyColumnType() string
	// TableSuffix is appended to CREATE TABLE statements.
	TableSuffix() string
	// CreateIndexSQL builds a secondary index statement.
	CreateIndexSQL(name, table string, cols []string) string
	// UpsertSQL builds an insert-or-replace statement.
	UpsertSQL(table string, cols, conflictCols []string) string
	// Adapt rewrites migration SQL written for SQLite.
	Adapt(sql string) string
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string           { return "sqlite" }
func (sqliteDialect) KeyColumnType() string  { return "TEXT" }
func (sqliteDialect) BodyColumnType() string { return "TEXT" }
func (sqliteDialect) TableSuffix() string    { return "" }
func (sqliteDialect) CreateIndexSQL(name, table string, cols []string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", name, table, strings.Join(cols, ", "))
}

func (sqliteDialect) Adapt(sql string) string {
	return sql
}

func (sqliteDialect) UpsertSQL(table string, cols, conflictCols []string) string {
	updateCols := make([]string, 0, len(cols))
	for _, c := range nonConflict(cols, conflictCols) {
		updateCols = append(updateCols, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	// Internal DB helper: SQL identifiers are constructed from trusted struct tags/inputs; values are parameterized.
	// nosemgrep: go.lang.security.audit.database.string-formatted-query.string-formatted-query
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s)",
		table,
		strings.Join(cols, ", "),
		placeholders(len(cols)),
		strings.Join(conflictCols, ", "),
	)
	if len(updateCols) == 0 {
		return q + " DO NOTHING"
	}
	return q + " DO UPDATE SET " + strings.Join(updateCols, ", ")
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return "mysql" }

// InnoDB caps an index at 3072 bytes and secondary indexes pair an index
// column with the primary key, so each stays under 1536 bytes of utf8mb4.
// Keys compare byte-wise like SQLite's default collation.
func (mysqlDialect) KeyColumnType() string {
	return "VARCHAR(380) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin"
}

func (mysqlDialect) BodyColumnType() string { return "LONGTEXT" }
func (mysqlDialect) TableSuffix() string    { return " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4" }

func (mysqlDialect) CreateIndexSQL(name, table string, cols []string) string {
	return fmt.Sprintf("CREATE INDEX %s ON %s (%s)", name, table, strings.Join(cols, ", "))
}

func (mysqlDialect) UpsertSQL(table string, cols, conflictCols []string) string {
	updatePairs := make([]string, 0, len(cols))
	for _, c := range nonConflict(cols, conflictCols) {
		updatePairs = append(updatePairs, fmt.Sprintf("%s = VALUES(%s)", c, c))
	}
	if len(updatePairs) == 0 {
		// Keep the statement valid when every column is part of the key.
		updatePairs = append(updatePairs, fmt.Sprintf("%s = %s", cols[0], cols[0]))
	}
	// Internal DB helper: SQL identifiers are constructed from trusted struct tags/inputs; values are parameterized.
	// nosemgrep: go.lang.security.audit.database.string-formatted-query.string-formatted-query
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		table,
		strings.Join(cols, ", "),
		placeholders(len(cols)),
		strings.Join(updatePairs, ", "),
	)
}

// Adapt converts SQLite-specific SQL fragments to MySQL equivalents.
func (mysqlDialect) Adapt(sql string) string {
	// AUTOINCREMENT → AUTO_INCREMENT
	sql = strings.ReplaceAll(sql, "AUTOINCREMENT", "AUTO_INCREMENT")
	sql = strings.ReplaceAll(sql, "INTEGER PRIMARY KEY AUTO_INCREMENT",
		"INT NOT NULL AUTO_INCREMENT PRIMARY KEY")
	sql = strings.ReplaceAll(sql, " REAL ", " DOUBLE ")
	return sql
}

func nonConflict(cols, conflictCols []string) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		skip := false
		for _, cc := range conflictCols {
			if c == cc {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, c)
		}
	}
	return out
}

func placeholders(n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = "?"
	}
	return strings.Join(ps, ", ")
}
