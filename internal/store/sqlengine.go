package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/CosmoTheDev/devops-atlas/internal/database"
)

const (
	catalogTable = "store_catalog"
	metaTable    = "store_meta"
	versionKey   = "version"
	// noLimit stands in for an absent LIMIT; both dialects need one with OFFSET.
	noLimit = "9223372036854775807"
)

// SQLEngine keeps each collection in its own table: the primary key, the
// JSON body and one nullable column per secondary index.
type SQLEngine struct {
	db database.DB
}

// NewSQLEngine wraps an already migrated database.
func NewSQLEngine(db database.DB) *SQLEngine {
	return &SQLEngine{db: db}
}

func (e *SQLEngine) Name() string { return e.db.Driver() }

func (e *SQLEngine) Close() error { return e.db.Close() }

func tableName(collection string) string { return "doc_" + collection }

func indexColumn(index string) string { return "ix_" + index }

type catalogRow struct {
	Collection string `db:"collection"`
	IndexName  string `db:"index_name"`
}

func (e *SQLEngine) Catalog(ctx context.Context) (Catalog, error) {
	version, err := readVersion(ctx, e.db)
	if err != nil {
		return Catalog{}, err
	}
	var rows []catalogRow
	if err := e.db.Select(ctx, &rows, `SELECT collection, index_name FROM store_catalog`); err != nil {
		return Catalog{}, err
	}
	cat := Catalog{Version: version, Collections: make(map[string][]string)}
	for _, r := range rows {
		if r.IndexName == "" {
			if _, ok := cat.Collections[r.Collection]; !ok {
				cat.Collections[r.Collection] = nil
			}
			continue
		}
		cat.Collections[r.Collection] = append(cat.Collections[r.Collection], r.IndexName)
	}
	return cat, nil
}

func readVersion(ctx context.Context, q database.Querier) (int64, error) {
	var raw string
	err := q.Get(ctx, &raw, `SELECT meta_value FROM store_meta WHERE meta_key = ?`, versionKey)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading store version: %w", err)
	}
	return strconv.ParseInt(raw, 10, 64)
}

func (e *SQLEngine) Upgrade(ctx context.Context, u Upgrade) error {
	d := e.db.Dialect()
	table := tableName(u.Spec.Name)
	now := time.Now().UTC().Format(time.RFC3339)
	catalogCols := []string{"collection", "index_name", "key_path", "version", "created_at"}
	catalogKey := []string{"collection", "index_name"}

	return e.db.InTx(ctx, func(q database.Querier) error {
		current, err := readVersion(ctx, q)
		if err != nil {
			return err
		}
		if current >= u.Version {
			return fmt.Errorf("%w: version moved from %d to %d during upgrade", ErrVersionConflict, u.Version-1, current)
		}

		if u.CreateCollection {
			// nosemgrep: go.lang.security.audit.database.string-formatted-query.string-formatted-query
			ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (pk %s NOT NULL PRIMARY KEY, body %s NOT NULL)%s",
				table, d.KeyColumnType(), d.BodyColumnType(), d.TableSuffix())
			if err := q.Exec(ctx, ddl); err != nil {
				return fmt.Errorf("creating %s: %w", table, err)
			}
			if err := q.UpsertValues(ctx, catalogTable, catalogCols,
				[]interface{}{u.Spec.Name, "", u.Spec.KeyPath.String(), u.Version, now}, catalogKey); err != nil {
				return err
			}
		}

		if len(u.MissingIndexes) > 0 {
			cols, err := q.Columns(ctx, table)
			if err != nil {
				return err
			}
			have := make(map[string]bool, len(cols))
			for _, c := range cols {
				have[strings.ToLower(c)] = true
			}
			for _, ix := range u.MissingIndexes {
				col := indexColumn(ix.Name)
				if !have[strings.ToLower(col)] {
					// nosemgrep: go.lang.security.audit.database.string-formatted-query.string-formatted-query
					if err := q.Exec(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s NULL", table, col, d.KeyColumnType())); err != nil {
						return fmt.Errorf("adding index column %s.%s: %w", table, col, err)
					}
				}
				name := fmt.Sprintf("ix_%s_%s", u.Spec.Name, ix.Name)
				if err := q.Exec(ctx, d.CreateIndexSQL(name, table, []string{col, "pk"})); err != nil {
					return fmt.Errorf("creating index %s: %w", name, err)
				}
				if err := q.UpsertValues(ctx, catalogTable, catalogCols,
					[]interface{}{u.Spec.Name, ix.Name, ix.KeyPath.String(), u.Version, now}, catalogKey); err != nil {
					return err
				}
			}
			if err := backfillSQL(ctx, q, table, u); err != nil {
				return err
			}
		}

		return q.UpsertValues(ctx, metaTable, []string{"meta_key", "meta_value"},
			[]interface{}{versionKey, strconv.FormatInt(u.Version, 10)}, []string{"meta_key"})
	})
}

type bodyRow struct {
	PK   string `db:"pk"`
	Body string `db:"body"`
}

func backfillSQL(ctx context.Context, q database.Querier, table string, u Upgrade) error {
	var rows []bodyRow
	// nosemgrep: go.lang.security.audit.database.string-formatted-query.string-formatted-query
	if err := q.Select(ctx, &rows, fmt.Sprintf("SELECT pk, body FROM %s", table)); err != nil {
		return fmt.Errorf("reading %s for backfill: %w", table, err)
	}
	sets := make([]string, len(u.MissingIndexes))
	for i, ix := range u.MissingIndexes {
		sets[i] = indexColumn(ix.Name) + " = ?"
	}
	// nosemgrep: go.lang.security.audit.database.string-formatted-query.string-formatted-query
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE pk = ?", table, strings.Join(sets, ", "))
	for _, r := range rows {
		values, err := u.Backfill([]byte(r.Body))
		if err != nil {
			return fmt.Errorf("backfilling %s %s: %w", table, r.PK, err)
		}
		args := make([]interface{}, 0, len(u.MissingIndexes)+1)
		for _, ix := range u.MissingIndexes {
			args = append(args, nullable(values, ix.Name))
		}
		args = append(args, r.PK)
		if err := q.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("backfilling %s %s: %w", table, r.PK, err)
		}
	}
	return nil
}

func nullable(values map[string]string, index string) interface{} {
	if v, ok := values[index]; ok {
		return v
	}
	return nil
}

func (e *SQLEngine) Put(ctx context.Context, spec CollectionSpec, row Row) error {
	cols := []string{"pk", "body"}
	vals := []interface{}{row.PK, string(row.Body)}
	for _, ix := range spec.Indexes {
		cols = append(cols, indexColumn(ix.Name))
		vals = append(vals, nullable(row.Index, ix.Name))
	}
	return e.db.UpsertValues(ctx, tableName(spec.Name), cols, vals, []string{"pk"})
}

func (e *SQLEngine) Get(ctx context.Context, spec CollectionSpec, pk string) ([]byte, error) {
	var body string
	// nosemgrep: go.lang.security.audit.database.string-formatted-query.string-formatted-query
	err := e.db.Get(ctx, &body, fmt.Sprintf("SELECT body FROM %s WHERE pk = ?", tableName(spec.Name)), pk)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(body), nil
}

func where(index, value string) (string, []interface{}) {
	if index == "" {
		return "", nil
	}
	return " WHERE " + indexColumn(index) + " = ?", []interface{}{value}
}

func (e *SQLEngine) Scan(ctx context.Context, spec CollectionSpec, q ScanQuery) ([][]byte, error) {
	clause, args := where(q.Index, q.Value)
	limit := noLimit
	if q.Limit > 0 {
		limit = strconv.Itoa(q.Limit)
	}
	// nosemgrep: go.lang.security.audit.database.string-formatted-query.string-formatted-query
	query := fmt.Sprintf("SELECT pk, body FROM %s%s ORDER BY pk LIMIT %s OFFSET %d",
		tableName(spec.Name), clause, limit, q.Offset)
	var rows []bodyRow
	if err := e.db.Select(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([][]byte, len(rows))
	for i, r := range rows {
		out[i] = []byte(r.Body)
	}
	return out, nil
}

func (e *SQLEngine) Count(ctx context.Context, spec CollectionSpec, index, value string) (int, error) {
	clause, args := where(index, value)
	var n int
	// nosemgrep: go.lang.security.audit.database.string-formatted-query.string-formatted-query
	err := e.db.Get(ctx, &n, fmt.Sprintf("SELECT COUNT(*) FROM %s%s", tableName(spec.Name), clause), args...)
	return n, err
}

func (e *SQLEngine) Delete(ctx context.Context, spec CollectionSpec, pk string) error {
	// nosemgrep: go.lang.security.audit.database.string-formatted-query.string-formatted-query
	return e.db.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE pk = ?", tableName(spec.Name)), pk)
}

func (e *SQLEngine) DeleteByIndex(ctx context.Context, spec CollectionSpec, index, value string) (int, error) {
	clause, args := where(index, value)
	// nosemgrep: go.lang.security.audit.database.string-formatted-query.string-formatted-query
	n, err := e.db.ExecCount(ctx, fmt.Sprintf("DELETE FROM %s%s", tableName(spec.Name), clause), args...)
	return int(n), err
}
