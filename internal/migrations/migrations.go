// Package migrations holds the goose migrations of the bookkeeping tables
// (sync_metadata and sync_outbox). Entity tables are not migrated here: they
// are rebuilt from the schema registry by the migrator package.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var Migrations embed.FS

var gooseMu sync.Mutex

// Run applies every pending bookkeeping migration.
func Run(ctx context.Context, db *sql.DB) error {
	// goose keeps its base FS and dialect in package globals.
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(Migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
