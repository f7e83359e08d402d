package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/dbx"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/schema"
)

// where renders filters into a WHERE clause. Unknown columns and unsupported
// values are dropped and logged.
func (s *Store) where(ctx context.Context, table string, cols map[string]bool, filters Filters, includeDeleted bool) (string, []any) {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		conds []string
		args  []any
	)
	for _, k := range keys {
		if !cols[k] {
			s.logger.Warn(ctx, "dropping filter on unknown column", "table", table, "column", k)
			continue
		}
		v, ok := normalize(filters[k])
		if !ok {
			s.logger.Warn(ctx, "dropping unsupported filter value", "table", table, "column", k, "type", fmt.Sprintf("%T", filters[k]))
			continue
		}
		if v == nil {
			conds = append(conds, dbx.QuoteIdent(k)+" IS NULL")
			continue
		}
		conds = append(conds, dbx.QuoteIdent(k)+" = ?")
		args = append(args, v)
	}

	if !includeDeleted && cols[schema.ColDeletedAt] {
		conds = append(conds, dbx.QuoteIdent(schema.ColDeletedAt)+" IS NULL")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Select returns the rows of table matching filters. Soft-deleted rows are
// excluded unless opts.IncludeDeleted is set or the table has no deleted_at.
func (s *Store) Select(ctx context.Context, table string, filters Filters, opts SelectOptions) []Record {
	if _, ok := s.entity(ctx, table); !ok {
		return nil
	}
	cols, err := s.liveColumns(ctx, table)
	if err != nil {
		s.logger.Error(ctx, "select failed", "table", table, "error", err)
		return nil
	}

	where, args := s.where(ctx, table, cols, filters, opts.IncludeDeleted)
	query := "SELECT * FROM " + dbx.QuoteIdent(table) + where

	order := schema.ColID
	if opts.OrderBy != "" {
		if cols[opts.OrderBy] {
			order = opts.OrderBy
		} else {
			s.logger.Warn(ctx, "ignoring order by unknown column", "table", table, "column", opts.OrderBy)
		}
	}
	query += " ORDER BY " + dbx.QuoteIdent(order)
	if opts.Desc {
		query += " DESC"
	}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
		if opts.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", opts.Offset)
		}
	}

	recs, err := queryRecords(ctx, s.db, query, args...)
	if err != nil {
		s.logger.Error(ctx, "select failed", "table", table, "error", err)
		return nil
	}
	return recs
}

// GetByID returns the row with id, or nil when it does not exist or is
// soft-deleted.
func (s *Store) GetByID(ctx context.Context, table string, id int64) Record {
	recs := s.Select(ctx, table, Filters{schema.ColID: id}, SelectOptions{Limit: 1})
	if len(recs) == 0 {
		return nil
	}
	return recs[0]
}

// Count returns the number of non-deleted rows matching filters.
func (s *Store) Count(ctx context.Context, table string, filters Filters) int {
	if _, ok := s.entity(ctx, table); !ok {
		return 0
	}
	cols, err := s.liveColumns(ctx, table)
	if err != nil {
		s.logger.Error(ctx, "count failed", "table", table, "error", err)
		return 0
	}
	where, args := s.where(ctx, table, cols, filters, false)

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+dbx.QuoteIdent(table)+where, args...).Scan(&n); err != nil {
		s.logger.Error(ctx, "count failed", "table", table, "error", err)
		return 0
	}
	return n
}

// IDs returns the ids of non-deleted rows matching filters.
func (s *Store) IDs(ctx context.Context, table string, filters Filters) []int64 {
	recs := s.Select(ctx, table, filters, SelectOptions{})
	ids := make([]int64, 0, len(recs))
	for _, r := range recs {
		if id, ok := r.ID(); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// PendingRows returns the rows of table waiting for push (pending or error),
// soft-deleted ones included, oldest local change first.
func (s *Store) PendingRows(ctx context.Context, table string) []Record {
	if _, ok := s.entity(ctx, table); !ok {
		return nil
	}
	query := "SELECT * FROM " + dbx.QuoteIdent(table) +
		" WHERE sync_status IN ('pending', 'error') ORDER BY local_updated_at, id"
	recs, err := queryRecords(ctx, s.db, query)
	if err != nil {
		s.logger.Error(ctx, "pending rows query failed", "table", table, "error", err)
		return nil
	}
	return recs
}

// CountUnsynced returns the number of rows of table that are pending or error.
func (s *Store) CountUnsynced(ctx context.Context, table string) int {
	if _, ok := s.entity(ctx, table); !ok {
		return 0
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+dbx.QuoteIdent(table)+" WHERE sync_status IN ('pending', 'error')").Scan(&n)
	if err != nil {
		s.logger.Error(ctx, "count unsynced failed", "table", table, "error", err)
		return 0
	}
	return n
}
