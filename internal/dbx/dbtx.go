// Package dbx provides the small database helpers shared by the local store,
// the repositories and the migration controller: the DBTX interface
// implemented by both *sql.DB and *sql.Tx, a transaction runner, and Open,
// which configures the single shared SQLite handle.
package dbx

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// DBTX is the subset of database/sql used by the repositories.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
//
// The store uses a single connection, so fn must only talk to tx:
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    _, err := tx.ExecContext(ctx, "UPDATE animali SET ...")
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// pragmas applied to the shared connection right after opening.
// Foreign keys stay off: pending children may point at temporary parent ids
// until the push pipeline remaps them.
var pragmas = []string{
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = OFF",
}

// Open opens the local database at path (":memory:" is allowed) and
// configures it as a single shared handle.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: in-memory databases are per-connection and all writes
	// go through the same handle anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	stmts := pragmas
	if !isMemory(path) {
		stmts = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}
	for _, p := range stmts {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return db, nil
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// QuoteIdent quotes an SQL identifier for SQLite.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
