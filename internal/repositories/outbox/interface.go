package outbox

import (
	"context"
	"time"
)

// Operation is the kind of mutation recorded by an entry.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Entry statuses.
const (
	StatusPending = "pending"
	StatusSynced  = "synced"
	StatusError   = "error"
)

// Entry is one row of sync_outbox.
type Entry struct {
	ID           int64
	Table        string
	Operation    Operation
	RecordID     int64
	Payload      string
	Status       string
	ErrorMessage string
	Attempts     int
	CreatedAt    time.Time
	SyncedAt     *time.Time
}

// TableStats counts unsynced entries of one table.
type TableStats struct {
	Table   string
	Pending int
	Error   int
}

type Repository interface {
	Append(ctx context.Context, e *Entry) (int64, error)
	// LatestUnsynced returns the newest pending or error entry of a row, or nil.
	LatestUnsynced(ctx context.Context, table string, recordID int64) (*Entry, error)
	// MarkSynced marks the row's unsynced entries with id <= upTo as synced.
	MarkSynced(ctx context.Context, table string, recordID, upTo int64, at time.Time) error
	// MarkError marks the row's unsynced entries with id <= upTo as error,
	// records msg and bumps attempts.
	MarkError(ctx context.Context, table string, recordID, upTo int64, msg string) error
	// RewriteRecordID moves every entry of a row to newID, including the id
	// carried in the payload.
	RewriteRecordID(ctx context.Context, table string, oldID, newID int64) error
	// RewriteReference rewrites a foreign key field in the payloads of table's
	// entries from oldID to newID and returns the number of entries changed.
	RewriteReference(ctx context.Context, table, column string, oldID, newID int64) (int64, error)
	// PruneSynced deletes synced entries synced before the given time.
	PruneSynced(ctx context.Context, before time.Time) (int64, error)
	// DeleteOrphans deletes unsynced entries whose row no longer exists in its
	// table, and every entry of a table not listed in tables.
	DeleteOrphans(ctx context.Context, tables []string) (int64, error)
	CountUnsynced(ctx context.Context) (int, error)
	Stats(ctx context.Context) ([]TableStats, error)
	// List returns entries with the given status (all when empty), newest
	// first, at most limit (unbounded when limit <= 0).
	List(ctx context.Context, status string, limit int) ([]Entry, error)
}
