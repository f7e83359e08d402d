package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/common"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const entryColumns = `id, table_name, operation, record_id, payload, status, error_message, attempts, created_at, synced_at`

func (r *SQLiteRepository) Append(ctx context.Context, e *Entry) (int64, error) {
	status := e.Status
	if status == "" {
		status = StatusPending
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_outbox (table_name, operation, record_id, payload, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.Table, string(e.Operation), e.RecordID, e.Payload, status, common.FormatTime(e.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to append outbox entry %s[%d]: %w", e.Table, e.RecordID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read outbox entry id: %w", err)
	}
	e.ID = id
	e.Status = status
	return id, nil
}

func (r *SQLiteRepository) LatestUnsynced(ctx context.Context, table string, recordID int64) (*Entry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM sync_outbox
		WHERE table_name = ? AND record_id = ? AND status != 'synced'
		ORDER BY id DESC LIMIT 1
	`, table, recordID)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox entry %s[%d]: %w", table, recordID, err)
	}
	return e, nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, table string, recordID, upTo int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_outbox SET status = 'synced', synced_at = ?, error_message = NULL
		WHERE table_name = ? AND record_id = ? AND id <= ? AND status != 'synced'
	`, common.FormatTime(at), table, recordID, upTo)
	if err != nil {
		return fmt.Errorf("failed to mark outbox %s[%d] synced: %w", table, recordID, err)
	}
	return nil
}

func (r *SQLiteRepository) MarkError(ctx context.Context, table string, recordID, upTo int64, msg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_outbox SET status = 'error', error_message = ?, attempts = attempts + 1
		WHERE table_name = ? AND record_id = ? AND id <= ? AND status != 'synced'
	`, msg, table, recordID, upTo)
	if err != nil {
		return fmt.Errorf("failed to mark outbox %s[%d] error: %w", table, recordID, err)
	}
	return nil
}

func (r *SQLiteRepository) RewriteRecordID(ctx context.Context, table string, oldID, newID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_outbox SET
			record_id = ?,
			payload = CASE WHEN json_valid(payload) THEN json_replace(payload, '$.id', ?) ELSE payload END
		WHERE table_name = ? AND record_id = ?
	`, newID, newID, table, oldID)
	if err != nil {
		return fmt.Errorf("failed to rewrite outbox %s[%d] -> %d: %w", table, oldID, newID, err)
	}
	return nil
}

func (r *SQLiteRepository) RewriteReference(ctx context.Context, table, column string, oldID, newID int64) (int64, error) {
	path := `$."` + column + `"`
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_outbox SET payload = json_replace(payload, ?, ?)
		WHERE table_name = ? AND json_valid(payload) AND json_extract(payload, ?) = ?
	`, path, newID, table, path, oldID)
	if err != nil {
		return 0, fmt.Errorf("failed to rewrite outbox %s.%s %d -> %d: %w", table, column, oldID, newID, err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) PruneSynced(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM sync_outbox WHERE status = 'synced' AND synced_at < ?
	`, common.FormatTime(before))
	if err != nil {
		return 0, fmt.Errorf("failed to prune outbox: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *SQLiteRepository) DeleteOrphans(ctx context.Context, tables []string) (int64, error) {
	var total int64

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tables)), ",")
	args := make([]any, len(tables))
	for i, t := range tables {
		args[i] = t
	}
	query := `DELETE FROM sync_outbox`
	if len(tables) > 0 {
		query += ` WHERE table_name NOT IN (` + placeholders + `)`
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete outbox entries of unknown tables: %w", err)
	}
	n, _ := res.RowsAffected()
	total += n

	for _, t := range tables {
		res, err := r.db.ExecContext(ctx, `
			DELETE FROM sync_outbox
			WHERE table_name = ? AND status != 'synced'
			  AND record_id NOT IN (SELECT id FROM `+dbx.QuoteIdent(t)+`)
		`, t)
		if err != nil {
			return total, fmt.Errorf("failed to delete orphan outbox entries of %s: %w", t, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (r *SQLiteRepository) CountUnsynced(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_outbox WHERE status != 'synced'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count outbox entries: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Stats(ctx context.Context) ([]TableStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT table_name,
		       SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END)
		FROM sync_outbox
		WHERE status != 'synced'
		GROUP BY table_name
		ORDER BY table_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to collect outbox stats: %w", err)
	}
	defer rows.Close()

	var out []TableStats
	for rows.Next() {
		var s TableStats
		if err := rows.Scan(&s.Table, &s.Pending, &s.Error); err != nil {
			return nil, fmt.Errorf("failed to scan outbox stats: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox stats: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) List(ctx context.Context, status string, limit int) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM sync_outbox`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox entries: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		e         Entry
		op        string
		payload   sql.NullString
		errMsg    sql.NullString
		createdAt string
		syncedAt  sql.NullString
	)
	if err := s.Scan(&e.ID, &e.Table, &op, &e.RecordID, &payload, &e.Status, &errMsg, &e.Attempts, &createdAt, &syncedAt); err != nil {
		return nil, err
	}
	e.Operation = Operation(op)
	e.Payload = payload.String
	e.ErrorMessage = errMsg.String

	t, err := common.ParseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("bad created_at %q: %w", createdAt, err)
	}
	e.CreatedAt = t
	if syncedAt.Valid {
		st, err := common.ParseTime(syncedAt.String)
		if err != nil {
			return nil, fmt.Errorf("bad synced_at %q: %w", syncedAt.String, err)
		}
		e.SyncedAt = &st
	}
	return &e, nil
}
