// Package testutil holds helpers shared by package tests: a controllable
// clock and a fully migrated in-memory database.
package testutil

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/dbx"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/migrations"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/schema"
	"github.com/stretchr/testify/require"
)

// StubClock returns a fixed time. Safe for concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewStubClock creates a StubClock set to the given time.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock set to 2024-01-15 10:30:00 UTC.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// OpenDB returns an in-memory database with the bookkeeping migrations
// applied and every table of registry created. It is closed on cleanup.
func OpenDB(t *testing.T, registry *schema.Registry) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := dbx.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migrations.Run(ctx, db))
	if registry != nil {
		for _, stmt := range registry.CreateSQL() {
			_, err := db.ExecContext(ctx, stmt)
			require.NoError(t, err, stmt)
		}
	}
	return db
}
