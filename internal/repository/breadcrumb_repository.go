package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/herdsync/engine/internal/models"
)

// BreadcrumbRepository persists crash-recovery markers in a small key-value
// table, one row per family. A marker written at session creation and still
// present at launch means the previous run died mid-session.
type BreadcrumbRepository struct {
	db *sql.DB
}

// NewBreadcrumbRepository creates a new BreadcrumbRepository.
func NewBreadcrumbRepository(db *sql.DB) *BreadcrumbRepository {
	return &BreadcrumbRepository{db: db}
}

func (r *BreadcrumbRepository) Put(ctx context.Context, crumb *models.Breadcrumb) error {
	value, err := json.Marshal(crumb)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO breadcrumbs (family, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (family) DO UPDATE SET value = $2, updated_at = $3
	`
	_, err = r.db.ExecContext(ctx, query, string(crumb.SessionType), string(value), time.Now().UTC())
	return err
}

// Get returns the family's breadcrumb, or nil when none is stored.
func (r *BreadcrumbRepository) Get(ctx context.Context, family models.Family) (*models.Breadcrumb, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM breadcrumbs WHERE family = $1`, string(family)).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var crumb models.Breadcrumb
	if err := json.Unmarshal([]byte(value), &crumb); err != nil {
		return nil, err
	}
	return &crumb, nil
}

func (r *BreadcrumbRepository) Delete(ctx context.Context, family models.Family) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM breadcrumbs WHERE family = $1`, string(family))
	return err
}
