package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/herdsync/engine/internal/models"
	"github.com/herdsync/engine/internal/observability"
)

const weightColumns = `id, owner, tag, date, weight, sex, weight_unit, age_in_days,
	animal, time_unit, note, updated_at, server_session_id, server_id, device_session_id`

// WeightRecordRepository handles weighing persistence.
type WeightRecordRepository struct {
	db *sql.DB
}

// NewWeightRecordRepository creates a new WeightRecordRepository.
func NewWeightRecordRepository(db *sql.DB) *WeightRecordRepository {
	return &WeightRecordRepository{db: db}
}

func (r *WeightRecordRepository) Family() models.Family {
	return models.FamilyWeight
}

func (r *WeightRecordRepository) Insert(ctx context.Context, rec *models.WeightRecord) (int64, error) {
	rec.UpdatedAt = time.Now().UTC()
	query := `
		INSERT INTO weight_records (owner, tag, date, weight, sex, weight_unit, age_in_days,
			animal, time_unit, note, updated_at, server_session_id, server_id, device_session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		rec.Owner, rec.Tag, rec.Date, rec.Weight, rec.Sex, rec.WeightUnit, rec.AgeInDays,
		rec.Animal, rec.TimeUnit, rec.Note, rec.UpdatedAt, rec.ServerSessionID, rec.ServerID, rec.DeviceSessionID,
	).Scan(&rec.ID)
	if err != nil {
		return 0, err
	}
	return rec.ID, nil
}

func (r *WeightRecordRepository) Update(ctx context.Context, rec *models.WeightRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE weight_records SET owner = $1, tag = $2, date = $3, weight = $4, sex = $5,
			weight_unit = $6, age_in_days = $7, animal = $8, time_unit = $9, note = $10,
			updated_at = $11, server_session_id = $12, server_id = $13, device_session_id = $14
		WHERE id = $15
	`
	res, err := r.db.ExecContext(ctx, query,
		rec.Owner, rec.Tag, rec.Date, rec.Weight, rec.Sex, rec.WeightUnit, rec.AgeInDays,
		rec.Animal, rec.TimeUnit, rec.Note, rec.UpdatedAt, rec.ServerSessionID, rec.ServerID,
		rec.DeviceSessionID, rec.ID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		observability.Warnf("weight record update matched no row (id=%d)", rec.ID)
	}
	return nil
}

func (r *WeightRecordRepository) ListBySession(ctx context.Context, sessionID int64) ([]*models.WeightRecord, error) {
	return r.list(ctx, `SELECT `+weightColumns+` FROM weight_records WHERE device_session_id = $1 ORDER BY id`, sessionID)
}

func (r *WeightRecordRepository) ListByTag(ctx context.Context, tag string) ([]*models.WeightRecord, error) {
	return r.list(ctx, `SELECT `+weightColumns+` FROM weight_records WHERE tag = $1 ORDER BY date DESC`, tag)
}

func (r *WeightRecordRepository) ListUnposted(ctx context.Context) ([]*models.WeightRecord, error) {
	return r.list(ctx, `SELECT `+weightColumns+` FROM weight_records WHERE server_id = 0 ORDER BY device_session_id, id`)
}

func (r *WeightRecordRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.WeightRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*models.WeightRecord{}
	for rows.Next() {
		var rec models.WeightRecord
		if err := rows.Scan(
			&rec.ID, &rec.Owner, &rec.Tag, &rec.Date, &rec.Weight, &rec.Sex, &rec.WeightUnit,
			&rec.AgeInDays, &rec.Animal, &rec.TimeUnit, &rec.Note, &rec.UpdatedAt,
			&rec.ServerSessionID, &rec.ServerID, &rec.DeviceSessionID,
		); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func (r *WeightRecordRepository) Pending(ctx context.Context) ([]models.PendingRecord, error) {
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

func (r *WeightRecordRepository) PostedServerIDs(ctx context.Context, sessionID int64) ([]int64, error) {
	return postedServerIDs(ctx, r.db, "weight_records", sessionID)
}

func (r *WeightRecordRepository) CountBySession(ctx context.Context, sessionID int64) (int, error) {
	return countBySession(ctx, r.db, "weight_records", sessionID)
}

func (r *WeightRecordRepository) Reconcile(ctx context.Context, resp *models.BatchResponse) error {
	return reconcileRows(ctx, r.db, "weight_records", resp)
}
