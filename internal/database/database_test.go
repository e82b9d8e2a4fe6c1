package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CosmoTheDev/devops-atlas/internal/config"
)

func openTestDB(t *testing.T) DB {
	t.Helper()
	db, err := NewSQLite(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "atlas.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

type kv struct {
	Key   string `db:"k"`
	Value string `db:"v"`
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.Migrate(ctx))

	var n int
	require.NoError(t, db.Get(ctx, &n, `SELECT COUNT(*) FROM schema_migrations`))
	assert.Equal(t, 1, n)
}

func TestUpsertValuesReplaces(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.Exec(ctx, `CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)`))

	require.NoError(t, db.UpsertValues(ctx, "kv", []string{"k", "v"}, []interface{}{"a", "1"}, []string{"k"}))
	require.NoError(t, db.UpsertValues(ctx, "kv", []string{"k", "v"}, []interface{}{"a", "2"}, []string{"k"}))
	require.NoError(t, db.UpsertValues(ctx, "kv", []string{"k", "v"}, []interface{}{"b", "3"}, []string{"k"}))

	var rows []kv
	require.NoError(t, db.Select(ctx, &rows, `SELECT k, v FROM kv ORDER BY k`))
	assert.Equal(t, []kv{{"a", "2"}, {"b", "3"}}, rows)

	cols, err := db.Columns(ctx, "kv")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"k", "v"}, cols)

	n, err := db.ExecCount(ctx, `DELETE FROM kv WHERE k = ?`, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.Exec(ctx, `CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)`))

	boom := errors.New("boom")
	err := db.InTx(ctx, func(q Querier) error {
		require.NoError(t, q.Exec(ctx, `INSERT INTO kv (k, v) VALUES (?, ?)`, "a", "1"))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, db.Get(ctx, &n, `SELECT COUNT(*) FROM kv`))
	assert.Zero(t, n)

	require.NoError(t, db.InTx(ctx, func(q Querier) error {
		return q.Exec(ctx, `INSERT INTO kv (k, v) VALUES (?, ?)`, "a", "1")
	}))
	require.NoError(t, db.Get(ctx, &n, `SELECT COUNT(*) FROM kv`))
	assert.Equal(t, 1, n)
}
