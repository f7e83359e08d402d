package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/dbx"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/repositories/outbox"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/schema"
)

// Duplicate collapse for entities declaring a natural key (animali by
// azienda_id + auricolare). Within a group of rows sharing the key, the
// survivor is chosen by:
//
//  1. most non-null domain fields;
//  2. newest updated_at;
//  3. highest id.
//
// Existing local rows compete with incoming ones. Only synced rows are ever
// removed; pending and error rows carry unpushed work and always survive.

func naturalKey(e *schema.Entity, rec Record) (string, bool) {
	parts := make([]string, len(e.NaturalKey))
	for i, k := range e.NaturalKey {
		v, ok := normalize(rec[k])
		if !ok || v == nil {
			return "", false
		}
		if s, isStr := v.(string); isStr {
			v = strings.TrimSpace(s)
		}
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "\x00"), true
}

func completeness(e *schema.Entity, rec Record) int {
	n := 0
	for _, c := range e.Columns {
		v := rec[c.Name]
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		n++
	}
	return n
}

// better reports whether a should survive over b.
func better(e *schema.Entity, a, b Record) bool {
	if ca, cb := completeness(e, a), completeness(e, b); ca != cb {
		return ca > cb
	}
	ua, _ := a[schema.ColUpdatedAt].(string)
	ub, _ := b[schema.ColUpdatedAt].(string)
	if ua != ub {
		return ua > ub
	}
	ia, _ := a.ID()
	ib, _ := b.ID()
	return ia > ib
}

// collapseBatch keeps one record per natural key, preserving input order of
// the survivors. Records without a complete key pass through.
func collapseBatch(e *schema.Entity, records []Record) ([]Record, int) {
	best := make(map[string]int)
	for i, rec := range records {
		key, ok := naturalKey(e, rec)
		if !ok {
			continue
		}
		if j, seen := best[key]; !seen || better(e, rec, records[j]) {
			best[key] = i
		}
	}

	out := make([]Record, 0, len(records))
	for i, rec := range records {
		key, ok := naturalKey(e, rec)
		if ok && best[key] != i {
			continue
		}
		out = append(out, rec)
	}
	return out, len(records) - len(out)
}

// collapseGroups resolves every natural-key group left in the table after
// an upsert. Local rows and freshly applied ones compete under the same
// tie-break; synced losers are deleted and references to them in dependent
// tables (and their pending outbox payloads) move to the survivor.
func (s *Store) collapseGroups(ctx context.Context, tx dbx.DBTX, e *schema.Entity) (int, error) {
	table := dbx.QuoteIdent(e.Name)
	conds := make([]string, len(e.NaturalKey))
	keyCols := make([]string, len(e.NaturalKey))
	for i, k := range e.NaturalKey {
		conds[i] = dbx.QuoteIdent(k) + " = ?"
		keyCols[i] = dbx.QuoteIdent(k)
	}
	keyWhere := strings.Join(conds, " AND ")
	groupBy := strings.Join(keyCols, ", ")

	dupes, err := queryRecords(ctx, tx, "SELECT "+groupBy+" FROM "+table+
		" WHERE deleted_at IS NULL GROUP BY "+groupBy+" HAVING COUNT(*) > 1")
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, group := range dupes {
		args := make([]any, len(e.NaturalKey))
		skip := false
		for i, k := range e.NaturalKey {
			if group[k] == nil {
				skip = true
				break
			}
			args[i] = group[k]
		}
		if skip {
			continue
		}
		rows, err := queryRecords(ctx, tx, "SELECT * FROM "+table+" WHERE "+keyWhere+" AND deleted_at IS NULL", args...)
		if err != nil {
			return removed, err
		}
		if len(rows) < 2 {
			continue
		}
		keeper := rows[0]
		for _, r := range rows[1:] {
			if better(e, r, keeper) {
				keeper = r
			}
		}
		keepID, _ := keeper.ID()
		for _, r := range rows {
			id, _ := r.ID()
			if id == keepID || r[schema.ColSyncStatus] != schema.StatusSynced {
				continue
			}
			refs, err := s.moveReferences(ctx, tx, e.Name, id, keepID)
			if err != nil {
				return removed, err
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id); err != nil {
				return removed, err
			}
			removed++
			s.logger.Info(ctx, "collapsed duplicate row", "table", e.Name, "removed_id", id, "kept_id", keepID, "references", refs)
		}
	}
	return removed, nil
}

// moveReferences points every dependent foreign key at oldID to newID.
func (s *Store) moveReferences(ctx context.Context, tx dbx.DBTX, table string, oldID, newID int64) (int64, error) {
	ob := outbox.NewSQLiteRepository(tx)
	var refs int64
	for _, dep := range s.registry.Dependents(table) {
		res, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?",
			dbx.QuoteIdent(dep.Entity.Name), dbx.QuoteIdent(dep.Column), dbx.QuoteIdent(dep.Column)), newID, oldID)
		if err != nil {
			return refs, fmt.Errorf("rewrite %s.%s: %w", dep.Entity.Name, dep.Column, err)
		}
		n, _ := res.RowsAffected()
		refs += n
		if _, err := ob.RewriteReference(ctx, dep.Entity.Name, dep.Column, oldID, newID); err != nil {
			return refs, err
		}
	}
	return refs, nil
}
