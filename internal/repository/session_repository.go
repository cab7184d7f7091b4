package repository

import (
	"context"
	"database/sql"

	"github.com/herdsync/engine/internal/models"
	"github.com/herdsync/engine/internal/observability"
)

// sessionTables maps each family to its session table. The three tables
// share one shape, so a single repository serves them all.
var sessionTables = map[models.Family]string{
	models.FamilyPregnancy: "sessions",
	models.FamilyWeight:    "weight_session",
	models.FamilyHeat:      "heat_session",
}

// SessionRepository handles session persistence for one family.
type SessionRepository struct {
	db    *sql.DB
	table string
}

// NewSessionRepository creates the session repository for a family.
func NewSessionRepository(db *sql.DB, family models.Family) *SessionRepository {
	return &SessionRepository{db: db, table: sessionTables[family]}
}

// Insert creates the session row before any records exist.
func (r *SessionRepository) Insert(ctx context.Context, s *models.Session) (int64, error) {
	query := `INSERT INTO ` + r.table + ` (date, vet_name, server_session_id, record_count)
		VALUES ($1, $2, $3, $4) RETURNING id`
	err := r.db.QueryRowContext(ctx, query, s.Date, s.VetName, s.ServerSessionID, s.RecordCount).Scan(&s.ID)
	if err != nil {
		return 0, err
	}
	return s.ID, nil
}

// Get retrieves one session; nil when the row does not exist.
func (r *SessionRepository) Get(ctx context.Context, id int64) (*models.Session, error) {
	query := `SELECT id, date, vet_name, server_session_id, record_count FROM ` + r.table + ` WHERE id = $1`

	var s models.Session
	err := r.db.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.Date, &s.VetName, &s.ServerSessionID, &s.RecordCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// MarkSynced records the server-assigned session id and the denormalized
// record count. The server id is written only once; a session that already
// holds one keeps it.
func (r *SessionRepository) MarkSynced(ctx context.Context, id, serverSessionID int64, recordCount int) error {
	query := `UPDATE ` + r.table + `
		SET server_session_id = CASE WHEN server_session_id > 0 THEN server_session_id ELSE $1 END,
			record_count = $2
		WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, serverSessionID, recordCount, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		observability.Warnf("session mark-synced matched no row (table=%s id=%d)", r.table, id)
	}
	return nil
}

// UpdateRecordCount writes the denormalized record count. The finish path
// calls it even when the sync attempt is deferred, so the count is correct
// on the summary screen before the session ever reaches the server.
func (r *SessionRepository) UpdateRecordCount(ctx context.Context, id int64, recordCount int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE `+r.table+` SET record_count = $1 WHERE id = $2`, recordCount, id)
	return err
}

// Delete removes a session row. Only the empty-session cleanup path uses it.
func (r *SessionRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM `+r.table+` WHERE id = $1`, id)
	return err
}
