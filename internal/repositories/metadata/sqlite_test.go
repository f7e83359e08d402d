package metadata

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE sync_metadata (
  key        TEXT PRIMARY KEY,
  value      TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`)
	require.NoError(t, err)
	return db
}

func TestSetAndGet_InsertThenGet(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "schema_version", "12"))

	v, ok, err := r.Get(ctx, "schema_version")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "12", v)
}

func TestGet_NotExists(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)

	v, ok, err := r.Get(context.Background(), "absent")
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, v)
}

func TestSet_UpsertOverwritesValue(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "last_sync", "old"))
	require.NoError(t, r.Set(ctx, "last_sync", "new"))

	v, _, err := r.Get(ctx, "last_sync")
	require.NoError(t, err)
	require.Equal(t, "new", v)
}

func TestList_ReturnsAllPairs(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "a", "1"))
	require.NoError(t, r.Set(ctx, "b", "2"))

	m, err := r.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, m)
}

func TestDelete_RemovesKey_AndIsIdempotent(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "x", "1"))
	require.NoError(t, r.Delete(ctx, "x"))

	_, ok, err := r.Get(ctx, "x")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, r.Delete(ctx, "x"))
}

func TestDeletePrefix_OnlyMatchingKeys(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "last_sync", "g"))
	require.NoError(t, r.Set(ctx, "last_sync:animali", "a"))
	require.NoError(t, r.Set(ctx, "last_sync:sedi", "s"))
	require.NoError(t, r.Set(ctx, "lastXsync:sedi", "underscore is literal"))

	require.NoError(t, r.DeletePrefix(ctx, "last_sync:"))

	m, err := r.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"last_sync": "g", "lastXsync:sedi": "underscore is literal"}, m)
}

func TestClear_RemovesAllKeys(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "a", "1"))
	require.NoError(t, r.Set(ctx, "b", "2"))
	require.NoError(t, r.Clear(ctx))

	m, err := r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestRepository_DBErrorsWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, _, err := r.Get(ctx, "k")
	require.ErrorContains(t, err, "failed to get metadata[k]")

	require.ErrorContains(t, r.Set(ctx, "k", "v"), "failed to set metadata[k]")
	require.ErrorContains(t, r.Delete(ctx, "k"), "failed to delete metadata[k]")
	require.ErrorContains(t, r.DeletePrefix(ctx, "k"), "failed to delete metadata[k*]")
	require.ErrorContains(t, r.Clear(ctx), "failed to clear metadata")

	_, err = r.List(ctx)
	require.ErrorContains(t, err, "failed to list metadata")
}
