package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/common"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/dbx"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/repositories/metadata"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/repositories/outbox"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/schema"
)

// prepare keeps the fields that are live columns of table, converts their
// values and, for pending writes, drops caller-provided sync columns.
func (s *Store) prepare(ctx context.Context, table string, cols map[string]bool, fields Record, pending bool) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if !cols[k] {
			s.logger.Debug(ctx, "dropping unknown field", "table", table, "field", k)
			continue
		}
		if pending && schema.IsSyncColumn(k) {
			continue
		}
		sv, err := storable(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = sv
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func payloadJSON(fields map[string]any) string {
	b, err := json.Marshal(fields)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// allocateTempID hands out the next temporary id from sync_metadata.
func allocateTempID(ctx context.Context, tx dbx.DBTX) (int64, error) {
	meta := metadata.NewSQLiteRepository(tx)
	raw, ok, err := meta.Get(ctx, common.MetaNextTempID)
	if err != nil {
		return 0, err
	}
	next := int64(-1)
	if ok {
		if next, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return 0, fmt.Errorf("corrupt %s %q: %w", common.MetaNextTempID, raw, err)
		}
	}
	if err := meta.Set(ctx, common.MetaNextTempID, strconv.FormatInt(next-1, 10)); err != nil {
		return 0, err
	}
	return next, nil
}

// Insert writes a new row and returns its id. Without an id, syncable
// entities get a temporary id. With the default options the row is marked
// pending and an insert entry is appended to the outbox.
func (s *Store) Insert(ctx context.Context, table string, rec Record, opts WriteOptions) (int64, bool) {
	e, ok := s.entity(ctx, table)
	if !ok {
		return 0, false
	}
	cols, err := s.liveColumns(ctx, table)
	if err != nil {
		s.logger.Error(ctx, "insert failed", "table", table, "error", err)
		return 0, false
	}
	pending := !opts.SkipOutbox && e.Syncable()
	fields, err := s.prepare(ctx, table, cols, rec, pending)
	if err != nil {
		s.logger.Error(ctx, "insert failed", "table", table, "error", err)
		return 0, false
	}
	if v, ok := fields[schema.ColID]; ok && v == nil {
		delete(fields, schema.ColID)
	}

	var id int64
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, has := fields[schema.ColID]; !has && e.Syncable() {
			tmp, err := allocateTempID(ctx, tx)
			if err != nil {
				return err
			}
			fields[schema.ColID] = tmp
		}
		if pending {
			fields[schema.ColSyncStatus] = schema.StatusPending
			fields[schema.ColLocalUpdatedAt] = s.now()
		}

		keys := sortedKeys(fields)
		quoted := make([]string, len(keys))
		args := make([]any, len(keys))
		for i, k := range keys {
			quoted[i] = dbx.QuoteIdent(k)
			args[i] = fields[k]
		}
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", dbx.QuoteIdent(table),
			strings.Join(quoted, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", "))
		if len(keys) == 0 {
			query = "INSERT INTO " + dbx.QuoteIdent(table) + " DEFAULT VALUES"
		}

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		if v, has := fields[schema.ColID]; has {
			id, _ = ToInt64(v)
		} else if id, err = res.LastInsertId(); err != nil {
			return err
		}

		if !pending {
			return nil
		}
		_, err = outbox.NewSQLiteRepository(tx).Append(ctx, &outbox.Entry{
			Table:     table,
			Operation: outbox.OpInsert,
			RecordID:  id,
			Payload:   payloadJSON(fields),
			CreatedAt: s.clock.Now(),
		})
		return err
	})
	if err != nil {
		s.logger.Error(ctx, "insert failed", "table", table, "error", err)
		return 0, false
	}
	return id, true
}

// Update changes fields of the row with id. With the default options the row
// is marked pending and an update entry is appended to the outbox.
func (s *Store) Update(ctx context.Context, table string, id int64, fields Record, opts WriteOptions) bool {
	e, ok := s.entity(ctx, table)
	if !ok {
		return false
	}
	cols, err := s.liveColumns(ctx, table)
	if err != nil {
		s.logger.Error(ctx, "update failed", "table", table, "id", id, "error", err)
		return false
	}
	pending := !opts.SkipOutbox && e.Syncable()
	set, err := s.prepare(ctx, table, cols, fields, pending)
	if err != nil {
		s.logger.Error(ctx, "update failed", "table", table, "id", id, "error", err)
		return false
	}
	delete(set, schema.ColID)
	payload := payloadJSON(set)
	if pending {
		set[schema.ColSyncStatus] = schema.StatusPending
		set[schema.ColLocalUpdatedAt] = s.now()
	}
	if len(set) == 0 {
		s.logger.Warn(ctx, "update without fields", "table", table, "id", id)
		return false
	}

	return s.exec(ctx, "update", table, id, set, pending, outbox.OpUpdate, payload)
}

// SoftDelete sets deleted_at on the row with id. Tables without deleted_at
// are refused.
func (s *Store) SoftDelete(ctx context.Context, table string, id int64, opts WriteOptions) bool {
	e, ok := s.entity(ctx, table)
	if !ok {
		return false
	}
	if !e.SoftDeletable() {
		s.logger.Error(ctx, "soft delete refused", "table", table, "id", id, "error", common.ErrNotSoftDeletable)
		return false
	}
	now := s.now()
	set := map[string]any{schema.ColDeletedAt: now}
	pending := !opts.SkipOutbox
	if pending {
		set[schema.ColSyncStatus] = schema.StatusPending
		set[schema.ColLocalUpdatedAt] = now
	}
	return s.exec(ctx, "soft delete", table, id, set, pending, outbox.OpDelete, payloadJSON(map[string]any{schema.ColID: id}))
}

func (s *Store) exec(ctx context.Context, what, table string, id int64, set map[string]any, pending bool, op outbox.Operation, payload string) bool {
	keys := sortedKeys(set)
	assigns := make([]string, len(keys))
	args := make([]any, 0, len(keys)+1)
	for i, k := range keys {
		assigns[i] = dbx.QuoteIdent(k) + " = ?"
		args = append(args, set[k])
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", dbx.QuoteIdent(table), strings.Join(assigns, ", "))

	found := false
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		found = true
		if !pending {
			return nil
		}
		_, err = outbox.NewSQLiteRepository(tx).Append(ctx, &outbox.Entry{
			Table:     table,
			Operation: op,
			RecordID:  id,
			Payload:   payload,
			CreatedAt: s.clock.Now(),
		})
		return err
	})
	if err != nil {
		s.logger.Error(ctx, what+" failed", "table", table, "id", id, "error", err)
		return false
	}
	if !found {
		s.logger.Warn(ctx, what+" matched no row", "table", table, "id", id)
	}
	return found
}

// MarkSynced flags the row as reconciled. seen is the local_updated_at value
// read before the push; a row edited since then stays pending.
func (s *Store) MarkSynced(ctx context.Context, table string, id int64, seen any) bool {
	if _, ok := s.entity(ctx, table); !ok {
		return false
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE "+dbx.QuoteIdent(table)+" SET sync_status = 'synced', synced_at = ? WHERE id = ? AND local_updated_at IS ?",
		s.now(), id, seen)
	if err != nil {
		s.logger.Error(ctx, "mark synced failed", "table", table, "id", id, "error", err)
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

// MarkError flags the row as failed; it is retried on the next push.
func (s *Store) MarkError(ctx context.Context, table string, id int64) bool {
	if _, ok := s.entity(ctx, table); !ok {
		return false
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE "+dbx.QuoteIdent(table)+" SET sync_status = 'error' WHERE id = ?", id)
	if err != nil {
		s.logger.Error(ctx, "mark error failed", "table", table, "id", id, "error", err)
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

// ReassignID replaces a temporary id with the id assigned by the remote
// service: the row itself, every foreign key in dependent tables and the
// outbox entries (record ids and payload fields) all move to newID in one
// transaction. It returns the number of dependent references rewritten.
func (s *Store) ReassignID(ctx context.Context, table string, oldID, newID int64) (int64, bool) {
	if _, ok := s.entity(ctx, table); !ok {
		return 0, false
	}
	var refs int64
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, "UPDATE "+dbx.QuoteIdent(table)+" SET id = ? WHERE id = ?", newID, oldID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%s[%d]: %w", table, oldID, common.ErrorNotFound)
		}

		if refs, err = s.moveReferences(ctx, tx, table, oldID, newID); err != nil {
			return err
		}
		return outbox.NewSQLiteRepository(tx).RewriteRecordID(ctx, table, oldID, newID)
	})
	if err != nil {
		s.logger.Error(ctx, "reassign id failed", "table", table, "old_id", oldID, "new_id", newID, "error", err)
		return 0, false
	}
	return refs, true
}
