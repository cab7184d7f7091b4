package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/herdsync/engine/internal/models"
)

// Ping probes the storage handle with a trivial query. The bulk reconcile
// path calls this before opening its transaction so an unreachable store
// fails fast instead of partially applying.
func Ping(ctx context.Context, db *sql.DB) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return models.ErrStorageUnavailable
	}
	return nil
}

// reconcileRows rewrites server_id, owner and server_session_id for every
// record named in the batch response, keyed by device-local id, inside one
// transaction. Any id that matches no row aborts the whole batch: a mixed
// outcome must never survive a crash or a bad response.
func reconcileRows(ctx context.Context, db *sql.DB, table string, resp *models.BatchResponse) error {
	if err := Ping(ctx, db); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	query := `UPDATE ` + table + `
		SET server_id = $1, owner = $2, server_session_id = $3, updated_at = $4
		WHERE id = $5`

	for key, serverID := range resp.UnpostedRecordIDs {
		localID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return fmt.Errorf("reconcile: bad record key %q: %w", key, err)
		}
		res, err := tx.ExecContext(ctx, query, serverID, resp.Owner, resp.Session.ID, now, localID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("reconcile: no local row with id %d in %s", localID, table)
		}
	}

	return tx.Commit()
}

// postedServerIDs lists server ids already assigned to rows of one session.
func postedServerIDs(ctx context.Context, db *sql.DB, table string, sessionID int64) ([]int64, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT server_id FROM `+table+` WHERE device_session_id = $1 AND server_id > 0 ORDER BY server_id`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func countBySession(ctx context.Context, db *sql.DB, table string, sessionID int64) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+table+` WHERE device_session_id = $1`, sessionID).Scan(&count)
	return count, err
}

// TruncateAll wipes every engine table. Only the explicit user-initiated
// device reset calls this; the sync engine never does.
func TruncateAll(ctx context.Context, db *sql.DB) error {
	tables := []string{
		"records", "sessions",
		"weight_records", "weight_session",
		"heat_records", "heat_session",
		"breadcrumbs",
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return tx.Commit()
}
