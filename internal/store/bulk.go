package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/dbx"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/schema"
)

// BulkOptions tunes BulkUpsertWith.
type BulkOptions struct {
	// MarkSynced stamps every applied row as synced now, overriding any sync
	// columns carried by the records (deleted_at excepted).
	MarkSynced bool
	// PreserveUnsynced skips records whose local row is still pending or
	// error, so unpushed local edits are not overwritten.
	PreserveUnsynced bool
}

// BulkResult counts the outcome of a bulk upsert.
type BulkResult struct {
	Applied      int
	Failed       int
	Skipped      int
	Deduplicated int
}

// BulkUpsert inserts or replaces records by id in a single transaction.
// A failing record is counted and logged; the rest of the batch still applies.
func (s *Store) BulkUpsert(ctx context.Context, table string, records []Record, markSynced bool) BulkResult {
	return s.BulkUpsertWith(ctx, table, records, BulkOptions{MarkSynced: markSynced})
}

// BulkUpsertWith is BulkUpsert with explicit options.
func (s *Store) BulkUpsertWith(ctx context.Context, table string, records []Record, opts BulkOptions) BulkResult {
	var res BulkResult
	if len(records) == 0 {
		return res
	}
	e, ok := s.entity(ctx, table)
	if !ok {
		res.Failed = len(records)
		return res
	}
	cols, err := s.liveColumns(ctx, table)
	if err != nil {
		s.logger.Error(ctx, "bulk upsert failed", "table", table, "error", err)
		res.Failed = len(records)
		return res
	}

	if len(e.NaturalKey) > 0 {
		var dropped int
		records, dropped = collapseBatch(e, records)
		res.Deduplicated += dropped
	}

	now := s.now()
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, rec := range records {
			id, ok := rec.ID()
			if !ok {
				s.logger.Warn(ctx, "bulk upsert record without id", "table", table)
				res.Failed++
				continue
			}

			if opts.PreserveUnsynced {
				keep, err := hasUnsyncedRow(ctx, tx, table, id)
				if err != nil {
					s.logger.Error(ctx, "bulk upsert lookup failed", "table", table, "id", id, "error", err)
					res.Failed++
					continue
				}
				if keep {
					s.logger.Debug(ctx, "keeping unsynced local row", "table", table, "id", id)
					res.Skipped++
					continue
				}
			}

			fields, err := s.prepare(ctx, table, cols, rec, false)
			if err != nil {
				s.logger.Error(ctx, "bulk upsert record rejected", "table", table, "id", id, "error", err)
				res.Failed++
				continue
			}
			fields[schema.ColID] = id
			if opts.MarkSynced {
				delete(fields, schema.ColLocalUpdatedAt)
				fields[schema.ColSyncStatus] = schema.StatusSynced
				fields[schema.ColSyncedAt] = now
			}

			if _, err := tx.ExecContext(ctx, upsertSQL(table, fields), upsertArgs(fields)...); err != nil {
				s.logger.Error(ctx, "bulk upsert record failed", "table", table, "id", id, "error", err)
				res.Failed++
				continue
			}
			res.Applied++
		}

		if len(e.NaturalKey) > 0 {
			n, err := s.collapseGroups(ctx, tx, e)
			if err != nil {
				return fmt.Errorf("duplicate collapse: %w", err)
			}
			res.Deduplicated += n
		}
		return nil
	})
	if err != nil {
		s.logger.Error(ctx, "bulk upsert failed", "table", table, "error", err)
		return BulkResult{Failed: len(records)}
	}
	return res
}

func hasUnsyncedRow(ctx context.Context, tx dbx.DBTX, table string, id int64) (bool, error) {
	var status string
	err := tx.QueryRowContext(ctx, "SELECT sync_status FROM "+dbx.QuoteIdent(table)+" WHERE id = ?", id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status != schema.StatusSynced, nil
}

func upsertSQL(table string, fields map[string]any) string {
	keys := sortedKeys(fields)
	quoted := make([]string, len(keys))
	var updates []string
	for i, k := range keys {
		quoted[i] = dbx.QuoteIdent(k)
		if k != schema.ColID {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", quoted[i], quoted[i]))
		}
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO ",
		dbx.QuoteIdent(table), strings.Join(quoted, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", "))
	if len(updates) == 0 {
		return q + "NOTHING"
	}
	return q + "UPDATE SET " + strings.Join(updates, ", ")
}

func upsertArgs(fields map[string]any) []any {
	keys := sortedKeys(fields)
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = fields[k]
	}
	return args
}
