package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/herdsync/engine/internal/models"
	"github.com/herdsync/engine/internal/observability"
)

const heatColumns = `id, owner, date, animal, gestation_days, tag, due_date,
	days_pregnant, time_unit, calf_count, pregnancy_status, note, updated_at,
	server_session_id, server_id, device_session_id`

// HeatRecordRepository handles heat-cycle observation persistence. The heat
// tables mirror the pregnancy tables column for column.
type HeatRecordRepository struct {
	db *sql.DB
}

// NewHeatRecordRepository creates a new HeatRecordRepository.
func NewHeatRecordRepository(db *sql.DB) *HeatRecordRepository {
	return &HeatRecordRepository{db: db}
}

func (r *HeatRecordRepository) Family() models.Family {
	return models.FamilyHeat
}

func (r *HeatRecordRepository) Insert(ctx context.Context, rec *models.HeatRecord) (int64, error) {
	rec.UpdatedAt = time.Now().UTC()
	query := `
		INSERT INTO heat_records (owner, date, animal, gestation_days, tag, due_date,
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

func (r *HeatRecordRepository) Update(ctx context.Context, rec *models.HeatRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE heat_records SET owner = $1, date = $2, animal = $3, gestation_days = $4,
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
		observability.Warnf("heat record update matched no row (id=%d)", rec.ID)
	}
	return nil
}

func (r *HeatRecordRepository) ListBySession(ctx context.Context, sessionID int64) ([]*models.HeatRecord, error) {
	return r.list(ctx, `SELECT `+heatColumns+` FROM heat_records WHERE device_session_id = $1 ORDER BY id`, sessionID)
}

func (r *HeatRecordRepository) ListByTag(ctx context.Context, tag string) ([]*models.HeatRecord, error) {
	return r.list(ctx, `SELECT `+heatColumns+` FROM heat_records WHERE tag = $1 ORDER BY date DESC`, tag)
}

func (r *HeatRecordRepository) ListUnposted(ctx context.Context) ([]*models.HeatRecord, error) {
	return r.list(ctx, `SELECT `+heatColumns+` FROM heat_records WHERE server_id = 0 ORDER BY device_session_id, id`)
}

func (r *HeatRecordRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.HeatRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*models.HeatRecord{}
	for rows.Next() {
		var rec models.HeatRecord
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

func (r *HeatRecordRepository) Pending(ctx context.Context) ([]models.PendingRecord, error) {
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

func (r *HeatRecordRepository) PostedServerIDs(ctx context.Context, sessionID int64) ([]int64, error) {
	return postedServerIDs(ctx, r.db, "heat_records", sessionID)
}

func (r *HeatRecordRepository) CountBySession(ctx context.Context, sessionID int64) (int, error) {
	return countBySession(ctx, r.db, "heat_records", sessionID)
}

func (r *HeatRecordRepository) Reconcile(ctx context.Context, resp *models.BatchResponse) error {
	return reconcileRows(ctx, r.db, "heat_records", resp)
}
