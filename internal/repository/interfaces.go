package repository

import (
	"context"

	"github.com/herdsync/engine/internal/models"
)

// RecordRepo is the storage contract the session tracker needs for one
// record family. Writes are phase one of the two-phase flow: a committed
// row is durable with server_id 0 before any network attempt happens.
type RecordRepo[T models.Syncable[T]] interface {
	Insert(ctx context.Context, rec T) (int64, error)
	Update(ctx context.Context, rec T) error
	ListBySession(ctx context.Context, sessionID int64) ([]T, error)
	ListByTag(ctx context.Context, tag string) ([]T, error)
}

// FamilyStore is the family-agnostic view the sync orchestrator works
// against: which rows are unposted, which server ids a session already
// holds, and the transactional reconcile that flips a batch from unposted
// to posted.
type FamilyStore interface {
	Family() models.Family

	// Pending returns every row with the unsynced sentinel (server_id = 0)
	// across all sessions, oldest session first.
	Pending(ctx context.Context) ([]models.PendingRecord, error)

	// PostedServerIDs returns the server ids of rows in the session that
	// the server has already acknowledged.
	PostedServerIDs(ctx context.Context, sessionID int64) ([]int64, error)

	// CountBySession counts all rows in the session, posted or not.
	CountBySession(ctx context.Context, sessionID int64) (int, error)

	// Reconcile applies a successful batch response in one all-or-nothing
	// transaction keyed by device-local id. A storage health probe runs
	// first; if it fails nothing is written and ErrStorageUnavailable is
	// returned.
	Reconcile(ctx context.Context, resp *models.BatchResponse) error
}

// SessionRepo persists session rows for one family.
type SessionRepo interface {
	Insert(ctx context.Context, s *models.Session) (int64, error)
	Get(ctx context.Context, id int64) (*models.Session, error)
	MarkSynced(ctx context.Context, id, serverSessionID int64, recordCount int) error
	UpdateRecordCount(ctx context.Context, id int64, recordCount int) error
	Delete(ctx context.Context, id int64) error
}

// BreadcrumbRepo is the lightweight key-value store holding one
// crash-recovery marker per family.
type BreadcrumbRepo interface {
	Put(ctx context.Context, crumb *models.Breadcrumb) error
	Get(ctx context.Context, family models.Family) (*models.Breadcrumb, error)
	Delete(ctx context.Context, family models.Family) error
}
