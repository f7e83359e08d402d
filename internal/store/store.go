package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/common"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/dbx"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/logging"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/repositories/metadata"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/repositories/outbox"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/schema"
)

// Record is one row keyed by column name. Values read from the database are
// nil, int64, float64, string or []byte.
type Record map[string]any

// ID returns the record id and whether it holds a usable integer.
func (r Record) ID() (int64, bool) {
	return ToInt64(r[schema.ColID])
}

// Filters are equality conditions; a nil value matches NULL.
type Filters map[string]any

// SelectOptions tunes Select.
type SelectOptions struct {
	OrderBy        string
	Desc           bool
	Limit          int
	Offset         int
	IncludeDeleted bool
}

// WriteOptions tunes Insert, Update and SoftDelete. The zero value marks the
// row pending and appends an outbox entry.
type WriteOptions struct {
	// SkipOutbox writes the row as already reconciled: no sync columns are
	// stamped and no outbox entry is appended.
	SkipOutbox bool
}

// Pending and Reconciled are the two write modes.
var (
	Pending    = WriteOptions{}
	Reconciled = WriteOptions{SkipOutbox: true}
)

// IsTemporaryID reports whether id was assigned locally.
func IsTemporaryID(id int64) bool { return id < 0 }

type Store struct {
	db       *sql.DB
	registry *schema.Registry
	logger   logging.Logger
	clock    common.Clock
	outbox   *outbox.SQLiteRepository
	metadata *metadata.SQLiteRepository

	mu      sync.RWMutex
	columns map[string]map[string]bool
}

func New(db *sql.DB, registry *schema.Registry, logger logging.Logger, clock common.Clock) *Store {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	if clock == nil {
		clock = common.RealClock{}
	}
	return &Store{
		db:       db,
		registry: registry,
		logger:   logger.With("component", "store"),
		clock:    clock,
		outbox:   outbox.NewSQLiteRepository(db),
		metadata: metadata.NewSQLiteRepository(db),
		columns:  make(map[string]map[string]bool),
	}
}

// Registry returns the schema registry the store was built with.
func (s *Store) Registry() *schema.Registry { return s.registry }

// Outbox returns the outbox repository bound to the shared handle.
func (s *Store) Outbox() outbox.Repository { return s.outbox }

// Metadata returns the metadata repository bound to the shared handle.
func (s *Store) Metadata() metadata.Repository { return s.metadata }

// Ping reports whether the underlying database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStoreClosed, err)
	}
	return nil
}

func (s *Store) now() string { return common.FormatTime(s.clock.Now()) }

func (s *Store) entity(ctx context.Context, table string) (*schema.Entity, bool) {
	e, ok := s.registry.Entity(table)
	if !ok {
		s.logger.Error(ctx, "unknown table", "table", table, "error", common.ErrUnknownTable)
	}
	return e, ok
}

// liveColumns returns the column set of table as reported by SQLite.
// It must not be called while a transaction holds the connection.
func (s *Store) liveColumns(ctx context.Context, table string) (map[string]bool, error) {
	s.mu.RLock()
	cols, ok := s.columns[table]
	s.mu.RUnlock()
	if ok {
		return cols, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect %s: %w", table, err)
	}
	defer rows.Close()

	cols = make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate columns of %s: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s does not exist", table)
	}

	s.mu.Lock()
	s.columns[table] = cols
	s.mu.Unlock()
	return cols, nil
}

// ToInt64 converts the numeric shapes produced by SQLite and encoding/json
// into an int64.
func ToInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

// normalize converts v to a value SQLite can bind. ok is false for shapes
// that are not storable primitives.
func normalize(v any) (any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, true
	case bool:
		if x {
			return int64(1), true
		}
		return int64(0), true
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return nil, false
		}
		return int64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, true
		}
		if f, err := x.Float64(); err == nil {
			return f, true
		}
		return nil, false
	case string:
		return x, true
	case []byte:
		return x, true
	case time.Time:
		return common.FormatTime(x), true
	}
	return nil, false
}

// storable is normalize plus JSON encoding of structured values, used for
// writes into JSON columns.
func storable(v any) (any, error) {
	if n, ok := normalize(v); ok {
		return n, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("unsupported value %T: %w", v, err)
	}
	return string(b), nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(Record, len(cols))
		for i, c := range cols {
			rec[c] = vals[i]
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func queryRecords(ctx context.Context, db dbx.DBTX, query string, args ...any) ([]Record, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}
