package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/herdsync/engine/internal/models"
	"github.com/herdsync/engine/internal/observability"
)

const pregnancyColumns = `id, owner, date, animal, gestation_days, tag, due_date,
	days_pregnant, time_unit, calf_count, pregnancy_status, note, updated_at,
	server_session_id, server_id, device_session_id`

// PregnancyRecordRepository handles pregnancy check persistence.
type PregnancyRecordRepository struct {
	db *sql.DB
}

// NewPregnancyRecordRepository creates a new PregnancyRecordRepository.
func NewPregnancyRecordRepository(db *sql.DB) *PregnancyRecordRepository {
	return &PregnancyRecordRepository{db: db}
}

func (r *PregnancyRecordRepository) Family() models.Family {
	return models.FamilyPregnancy
}

// Insert appends one row. ServerID and Owner stay 0 until a sync succeeds.
func (r *PregnancyRecordRepository) Insert(ctx context.Context, rec *models.PregnancyRecord) (int64, error) {
	rec.UpdatedAt = time.Now().UTC()
	query := `
		INSERT INTO records (owner, date, animal, gestation_days, tag, due_date,
			days_pregnant, time_unit, calf_count, pregnancy_status, note, updated_at,
			server_session_id, server_id, device_session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		rec.Owner, rec.Date, rec.Animal, rec.GestationDays, rec.Tag, nullTime(rec.DueDate),
		rec.DaysPregnant, rec.TimeUnit, rec.CalfCount, rec.PregnancyStatus, rec.Note, rec.UpdatedAt,
		rec.ServerSessionID, rec.ServerID, rec.DeviceSessionID,
	).Scan(&rec.ID)
	if err != nil {
		return 0, err
	}
	return rec.ID, nil
}

// Update overwrites the full row addressed by the device-local id. A miss
// (0 rows affected) is logged and swallowed; callers treat it as non-fatal.
func (r *PregnancyRecordRepository) Update(ctx context.Context, rec *models.PregnancyRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE records SET owner = $1, date = $2, animal = $3, gestation_days = $4,
			tag = $5, due_date = $6, days_pregnant = $7, time_unit = $8, calf_count = $9,
			pregnancy_status = $10, note = $11, updated_at = $12,
			server_session_id = $13, server_id = $14, device_session_id = $15
		WHERE id = $16
	`
	res, err := r.db.ExecContext(ctx, query,
		rec.Owner, rec.Date, rec.Animal, rec.GestationDays, rec.Tag, nullTime(rec.DueDate),
		rec.DaysPregnant, rec.TimeUnit, rec.CalfCount, rec.PregnancyStatus, rec.Note, rec.UpdatedAt,
		rec.ServerSessionID, rec.ServerID, rec.DeviceSessionID, rec.ID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		observability.Warnf("pregnancy record update matched no row (id=%d)", rec.ID)
	}
	return nil
}

// ListBySession returns the session's records, insertion order.
func (r *PregnancyRecordRepository) ListBySession(ctx context.Context, sessionID int64) ([]*models.PregnancyRecord, error) {
	return r.list(ctx, `SELECT `+pregnancyColumns+` FROM records WHERE device_session_id = $1 ORDER BY id`, sessionID)
}

// ListByTag returns every record ever captured for a tag, newest first.
func (r *PregnancyRecordRepository) ListByTag(ctx context.Context, tag string) ([]*models.PregnancyRecord, error) {
	return r.list(ctx, `SELECT `+pregnancyColumns+` FROM records WHERE tag = $1 ORDER BY date DESC`, tag)
}

// ListUnposted returns every record the server has never acknowledged.
func (r *PregnancyRecordRepository) ListUnposted(ctx context.Context) ([]*models.PregnancyRecord, error) {
	return r.list(ctx, `SELECT `+pregnancyColumns+` FROM records WHERE server_id = 0 ORDER BY device_session_id, id`)
}

// ListDueAfter returns records whose due date lies after the given moment.
func (r *PregnancyRecordRepository) ListDueAfter(ctx context.Context, now time.Time) ([]*models.PregnancyRecord, error) {
	return r.list(ctx, `SELECT `+pregnancyColumns+` FROM records WHERE due_date > $1 ORDER BY due_date`, now)
}

func (r *PregnancyRecordRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.PregnancyRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*models.PregnancyRecord{}
	for rows.Next() {
		var rec models.PregnancyRecord
		var due sql.NullTime
		if err := rows.Scan(
			&rec.ID, &rec.Owner, &rec.Date, &rec.Animal, &rec.GestationDays, &rec.Tag, &due,
			&rec.DaysPregnant, &rec.TimeUnit, &rec.CalfCount, &rec.PregnancyStatus, &rec.Note, &rec.UpdatedAt,
			&rec.ServerSessionID, &rec.ServerID, &rec.DeviceSessionID,
		); err != nil {
			return nil, err
		}
		if due.Valid {
			rec.DueDate = due.Time
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// Pending is the orchestrator-facing view of ListUnposted.
func (r *PregnancyRecordRepository) Pending(ctx context.Context) ([]models.PendingRecord, error) {
	recs, err := r.ListUnposted(ctx)
	if err != nil {
		return nil, err
	}
	pending := make([]models.PendingRecord, 0, len(recs))
	for _, rec := range recs {
		payload, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}
		pending = append(pending, models.PendingRecord{
			LocalID:   rec.ID,
			SessionID: rec.DeviceSessionID,
			Tag:       rec.Tag,
			Payload:   payload,
		})
	}
	return pending, nil
}

func (r *PregnancyRecordRepository) PostedServerIDs(ctx context.Context, sessionID int64) ([]int64, error) {
	return postedServerIDs(ctx, r.db, "records", sessionID)
}

func (r *PregnancyRecordRepository) CountBySession(ctx context.Context, sessionID int64) (int, error) {
	return countBySession(ctx, r.db, "records", sessionID)
}

func (r *PregnancyRecordRepository) Reconcile(ctx context.Context, resp *models.BatchResponse) error {
	return reconcileRows(ctx, r.db, "records", resp)
}

// nullTime maps the zero time to NULL so unset due dates stay unset.
func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
