// Package migrator gates the entity tables on the registry's schema version.
// When the stored version differs, every entity table is dropped and
// recreated; unsynced rows of entities that opt in are carried across.
package migrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/archive"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/common"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/dbx"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/logging"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/repositories/metadata"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/repositories/outbox"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/schema"
)

var ErrMigrationFailed = errors.New("schema migration failed")

type State string

const (
	StateNoSchema        State = "no-schema"
	StateVersionMismatch State = "version-mismatch"
	StateRebuilding      State = "rebuilding"
	StateCurrent         State = "current"
)

// Result describes what Run did.
type Result struct {
	// From is the stored version before the run; 0 when none was stored.
	From    int
	To      int
	Rebuilt bool
	// Preserved counts unsynced rows carried across the rebuild; Lost counts
	// those the new schema rejected.
	Preserved int
	Lost      int
	Snapshot  string
}

type Migrator struct {
	db       *sql.DB
	registry *schema.Registry
	archiver archive.Archiver
	logger   logging.Logger
}

func New(db *sql.DB, registry *schema.Registry, archiver archive.Archiver, logger logging.Logger) *Migrator {
	if archiver == nil {
		archiver = archive.Nop{}
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Migrator{db: db, registry: registry, archiver: archiver, logger: logger.With("component", "migrator")}
}

// State reports the stored schema version and how it relates to the
// registry's.
func (m *Migrator) State(ctx context.Context) (State, int, error) {
	raw, ok, err := metadata.NewSQLiteRepository(m.db).Get(ctx, common.MetaSchemaVersion)
	if err != nil {
		return "", 0, err
	}
	if !ok {
		return StateNoSchema, 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		m.logger.Warn(ctx, "unreadable schema version", "value", raw)
		return StateVersionMismatch, 0, nil
	}
	if v != m.registry.Version {
		return StateVersionMismatch, v, nil
	}
	return StateCurrent, v, nil
}

// Run brings the entity tables to the registry version. It is a no-op when
// the stored version already matches.
func (m *Migrator) Run(ctx context.Context) (Result, error) {
	res := Result{To: m.registry.Version}

	state, from, err := m.State(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}
	res.From = from
	if state == StateCurrent {
		return res, nil
	}

	m.logger.Info(ctx, "rebuilding local schema", "state", string(state), "from", from, "to", res.To)

	existing, err := m.existingTables(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}

	if state == StateVersionMismatch && len(existing) > 0 {
		loc, err := m.archiver.Archive(ctx, m.db, "schema-v"+strconv.Itoa(from))
		if err != nil {
			m.logger.Warn(ctx, "pre-rebuild snapshot failed", "error", err)
		} else if loc != "" {
			res.Snapshot = loc
			m.logger.Info(ctx, "pre-rebuild snapshot written", "location", loc)
		}
	}

	backups, err := m.backup(ctx, existing)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}

	m.logger.Debug(ctx, "schema state", "state", string(StateRebuilding))
	err = dbx.WithTx(ctx, m.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, stmt := range m.registry.DropSQL() {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("drop: %w", err)
			}
		}
		for _, stmt := range m.registry.CreateSQL() {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create: %w", err)
			}
		}

		for _, b := range backups {
			for _, rec := range b.rows {
				if err := reinsert(ctx, tx, b.entity, rec); err != nil {
					m.logger.Error(ctx, "unsynced row dropped by rebuild", "table", b.entity.Name, "id", rec[schema.ColID], "error", err)
					res.Lost++
					continue
				}
				res.Preserved++
			}
		}

		var syncable []string
		for _, e := range m.registry.SyncOrder() {
			syncable = append(syncable, e.Name)
		}
		pruned, err := outbox.NewSQLiteRepository(tx).DeleteOrphans(ctx, syncable)
		if err != nil {
			return fmt.Errorf("outbox prune: %w", err)
		}
		if pruned > 0 {
			m.logger.Info(ctx, "pruned orphaned outbox entries", "count", pruned)
		}

		meta := metadata.NewSQLiteRepository(tx)
		for _, key := range []string{common.MetaLastSync, common.MetaInitialSyncCompleted} {
			if err := meta.Delete(ctx, key); err != nil {
				return err
			}
		}
		if err := meta.DeletePrefix(ctx, common.MetaEntityCheckpointPrefix); err != nil {
			return err
		}
		return meta.Set(ctx, common.MetaSchemaVersion, strconv.Itoa(res.To))
	})
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}

	res.Rebuilt = true
	m.logger.Info(ctx, "local schema rebuilt", "from", from, "to", res.To, "preserved", res.Preserved, "lost", res.Lost)
	return res, nil
}

type backup struct {
	entity *schema.Entity
	rows   []map[string]any
}

// existingTables maps each table present in the database to its columns.
func (m *Migrator) existingTables(ctx context.Context) (map[string]map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT m.name, p.name FROM sqlite_master m JOIN pragma_table_info(m.name) p WHERE m.type = 'table'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]map[string]bool)
	for rows.Next() {
		var table, col string
		if err := rows.Scan(&table, &col); err != nil {
			return nil, err
		}
		if out[table] == nil {
			out[table] = make(map[string]bool)
		}
		out[table][col] = true
	}
	return out, rows.Err()
}

// backup reads the pending and error rows of every preserved entity whose
// table already exists with sync tracking.
func (m *Migrator) backup(ctx context.Context, existing map[string]map[string]bool) ([]backup, error) {
	var out []backup
	for _, e := range m.registry.Preserved() {
		cols := existing[e.Name]
		if !cols[schema.ColSyncStatus] {
			continue
		}
		recs, err := selectUnsynced(ctx, m.db, e.Name)
		if err != nil {
			return nil, fmt.Errorf("backup %s: %w", e.Name, err)
		}
		if len(recs) > 0 {
			m.logger.Info(ctx, "preserving unsynced rows", "table", e.Name, "count", len(recs))
			out = append(out, backup{entity: e, rows: recs})
		}
	}
	return out, nil
}

func selectUnsynced(ctx context.Context, db dbx.DBTX, table string) ([]map[string]any, error) {
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+dbx.QuoteIdent(table)+
		" WHERE sync_status IN ('pending', 'error') ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(map[string]any, len(cols))
		for i, c := range cols {
			rec[c] = vals[i]
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// reinsert writes rec back as-is, keeping only columns the new schema knows.
func reinsert(ctx context.Context, tx dbx.DBTX, e *schema.Entity, rec map[string]any) error {
	known := make(map[string]bool)
	for _, c := range e.ColumnNames() {
		known[c] = true
	}
	var keys []string
	for k := range rec {
		if known[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	quoted := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		quoted[i] = dbx.QuoteIdent(k)
		args[i] = rec[k]
	}
	_, err := tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", dbx.QuoteIdent(e.Name),
		strings.Join(quoted, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ")), args...)
	return err
}
