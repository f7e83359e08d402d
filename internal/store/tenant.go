package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/dbx"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/repositories/outbox"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/schema"
)

// FirstTenantID returns the lowest-id non-deleted tenant row.
func (s *Store) FirstTenantID(ctx context.Context) (int64, bool) {
	t := s.registry.Tenant()
	recs := s.Select(ctx, t.Name, nil, SelectOptions{Limit: 1})
	if len(recs) == 0 {
		return 0, false
	}
	return recs[0].ID()
}

// TenantExists reports whether a non-deleted tenant row with id exists.
func (s *Store) TenantExists(ctx context.Context, id int64) bool {
	return s.GetByID(ctx, s.registry.Tenant().Name, id) != nil
}

// PurgeOtherTenants hard-deletes every row that does not belong to tenantID,
// together with the outbox entries pointing at them. It returns the number of
// rows removed.
func (s *Store) PurgeOtherTenants(ctx context.Context, tenantID int64) (int64, bool) {
	var removed int64
	exec := func(ctx context.Context, tx dbx.DBTX, query string, args ...any) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		removed += n
		return nil
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var tables []string
		for _, e := range s.registry.Entities() {
			if e.Syncable() {
				tables = append(tables, e.Name)
			}
			switch {
			case e.IsTenant:
				if err := exec(ctx, tx, "DELETE FROM "+dbx.QuoteIdent(e.Name)+" WHERE id != ?", tenantID); err != nil {
					return err
				}
			case e.TenantColumn != "":
				col := dbx.QuoteIdent(e.TenantColumn)
				if err := exec(ctx, tx, "DELETE FROM "+dbx.QuoteIdent(e.Name)+" WHERE "+col+" IS NULL OR "+col+" != ?", tenantID); err != nil {
					return err
				}
			}
		}
		// Parent-scoped entities, parents first so that grandchildren see the
		// already purged parents.
		for _, e := range s.registry.Entities() {
			if e.TenantColumn != "" || e.IsTenant || e.ScopeColumn == "" {
				continue
			}
			q := "DELETE FROM " + dbx.QuoteIdent(e.Name) + " WHERE " + dbx.QuoteIdent(e.ScopeColumn) +
				" NOT IN (SELECT id FROM " + dbx.QuoteIdent(e.ScopeParent()) + ")"
			if err := exec(ctx, tx, q); err != nil {
				return err
			}
		}
		_, err := outbox.NewSQLiteRepository(tx).DeleteOrphans(ctx, tables)
		return err
	})
	if err != nil {
		s.logger.Error(ctx, "tenant purge failed", "azienda_id", tenantID, "error", err)
		return 0, false
	}
	return removed, true
}

// MissingRatio samples rows of table for the tenant that have keyCol set and
// returns the fraction whose derivedCol is NULL or empty, with the sample
// size. It backs the consistency heuristic of the orchestrator.
func (s *Store) MissingRatio(ctx context.Context, table, tenantCol string, tenantID int64, keyCol, derivedCol string) (float64, int) {
	if _, ok := s.entity(ctx, table); !ok {
		return 0, 0
	}
	t, k, d := dbx.QuoteIdent(tenantCol), dbx.QuoteIdent(keyCol), dbx.QuoteIdent(derivedCol)
	query := "SELECT COUNT(*), COALESCE(SUM(CASE WHEN " + d + " IS NULL OR TRIM(" + d + ") = '' THEN 1 ELSE 0 END), 0)" +
		" FROM " + dbx.QuoteIdent(table) +
		" WHERE " + t + " = ? AND " + k + " IS NOT NULL AND deleted_at IS NULL"

	var total, missing int
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(&total, &missing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.logger.Error(ctx, "consistency probe failed", "table", table, "error", err)
		return 0, 0
	}
	if total == 0 {
		return 0, 0
	}
	return float64(missing) / float64(total), total
}

// ClearEntities hard-deletes every row of every syncable entity. Used by a
// full reset before re-pulling.
func (s *Store) ClearEntities(ctx context.Context) bool {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		ents := s.registry.SyncOrder()
		for i := len(ents) - 1; i >= 0; i-- {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+dbx.QuoteIdent(ents[i].Name)+
				" WHERE sync_status = ?", schema.StatusSynced); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error(ctx, "clear entities failed", "error", err)
		return false
	}
	return true
}

// TenantIDs returns the ids of every non-deleted tenant row.
func (s *Store) TenantIDs(ctx context.Context) []int64 {
	return s.IDs(ctx, s.registry.Tenant().Name, nil)
}

// ListAnimaliBySede returns the animals housed at a site, ordered by ear tag.
func (s *Store) ListAnimaliBySede(ctx context.Context, sedeID int64) []Record {
	return s.Select(ctx, schema.Animali, Filters{"sede_id": sedeID}, SelectOptions{OrderBy: "auricolare"})
}
