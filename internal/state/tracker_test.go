package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herdsync/engine/internal/lifecycle"
	"github.com/herdsync/engine/internal/models"
	"github.com/herdsync/engine/internal/repository"
)

type stubSubmitter struct {
	err   error
	calls []int64
}

func (s *stubSubmitter) SyncSession(ctx context.Context, family models.Family, sessionID int64) error {
	s.calls = append(s.calls, sessionID)
	return s.err
}

type trackerFixture struct {
	db       *sql.DB
	tracker  *Tracker[*models.PregnancyRecord]
	guard    *lifecycle.Guard
	submit   *stubSubmitter
	sessions *repository.SessionRepository
	crumbs   *repository.BreadcrumbRepository
	records  *repository.PregnancyRecordRepository
}

func setupTracker(t *testing.T) *trackerFixture {
	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &trackerFixture{
		db:       db,
		guard:    lifecycle.NewGuard(),
		submit:   &stubSubmitter{},
		sessions: repository.NewSessionRepository(db, models.FamilyPregnancy),
		crumbs:   repository.NewBreadcrumbRepository(db),
		records:  repository.NewPregnancyRecordRepository(db),
	}
	f.tracker = NewTracker(models.FamilyPregnancy, f.records, f.sessions, f.crumbs,
		f.guard, f.submit, PregnancyStats, PregnancyDraftFromCrumb)
	return f
}

func seedDraft() *models.PregnancyRecord {
	return &models.PregnancyRecord{Animal: "cattle", GestationDays: 283, TimeUnit: "days"}
}

func commitTag(t *testing.T, f *trackerFixture, tag string) *models.PregnancyRecord {
	rec, err := f.tracker.Commit(context.Background(),
		json.RawMessage(`{"tag":"`+tag+`","pregnancy_status":"pregnant","calf_count":1}`))
	require.NoError(t, err)
	return rec
}

func TestTrackerCreateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("opens a session with durable row and breadcrumb", func(t *testing.T) {
		f := setupTracker(t)

		session, err := f.tracker.CreateSession(ctx, "Dr. Ames", seedDraft())
		require.NoError(t, err)
		assert.Equal(t, PhaseActive, f.tracker.Phase())
		assert.True(t, f.guard.FamilyBusy(models.FamilyPregnancy))

		stored, err := f.sessions.Get(ctx, session.ID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, "Dr. Ames", stored.VetName)

		crumb, err := f.crumbs.Get(ctx, models.FamilyPregnancy)
		require.NoError(t, err)
		require.NotNil(t, crumb)
		assert.Equal(t, session.ID, crumb.DeviceSessionID)
		assert.Equal(t, "cattle", crumb.Animal)
		assert.Equal(t, 283, crumb.GestationDays)
	})

	t.Run("second create while active is rejected", func(t *testing.T) {
		f := setupTracker(t)

		_, err := f.tracker.CreateSession(ctx, "Dr. Ames", seedDraft())
		require.NoError(t, err)

		_, err = f.tracker.CreateSession(ctx, "Dr. Bell", seedDraft())
		assert.ErrorIs(t, err, models.ErrSessionActive)
	})
}

func TestTrackerCommit(t *testing.T) {
	ctx := context.Background()

	t.Run("commit persists and resets the draft", func(t *testing.T) {
		f := setupTracker(t)
		_, err := f.tracker.CreateSession(ctx, "Dr. Ames", seedDraft())
		require.NoError(t, err)

		rec := commitTag(t, f, "A-100")
		assert.Greater(t, rec.ID, int64(0))
		assert.Equal(t, "cattle", rec.Animal)

		// Draft keeps session context but loses the per-animal fields.
		draft, err := f.tracker.Draft()
		require.NoError(t, err)
		assert.Equal(t, "cattle", draft.Animal)
		assert.Equal(t, 283, draft.GestationDays)
		assert.Empty(t, draft.Tag)
		assert.Zero(t, draft.ID)

		stored, err := f.records.ListBySession(ctx, rec.DeviceSessionID)
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, "A-100", stored[0].Tag)

		assert.Equal(t, 1, f.tracker.Stats().Total)
	})

	t.Run("commit outside a session is rejected", func(t *testing.T) {
		f := setupTracker(t)

		_, err := f.tracker.Commit(ctx, json.RawMessage(`{"tag":"A-1"}`))
		assert.ErrorIs(t, err, models.ErrNoSession)
	})

	t.Run("duplicate tags are visible but not blocked", func(t *testing.T) {
		f := setupTracker(t)
		_, err := f.tracker.CreateSession(ctx, "Dr. Ames", seedDraft())
		require.NoError(t, err)

		commitTag(t, f, "A-100")
		assert.True(t, f.tracker.HasTag("A-100"))
		assert.False(t, f.tracker.HasTag("a-100"))
		assert.False(t, f.tracker.HasTag("A-200"))

		// A second commit with the same tag appends a new row; the check is
		// advisory and the user may override it.
		commitTag(t, f, "A-100")
		assert.Len(t, f.tracker.Committed(), 2)
	})
}

func TestTrackerRecall(t *testing.T) {
	ctx := context.Background()

	t.Run("recall loads the committed record for re-editing", func(t *testing.T) {
		f := setupTracker(t)
		_, err := f.tracker.CreateSession(ctx, "Dr. Ames", seedDraft())
		require.NoError(t, err)

		original := commitTag(t, f, "A-100")
		commitTag(t, f, "A-200")

		recalled, found := f.tracker.Recall("A-100")
		require.True(t, found)
		assert.Equal(t, original.ID, recalled.ID)

		// The next commit updates in place instead of appending.
		updated, err := f.tracker.Commit(ctx, json.RawMessage(`{"calf_count":2}`))
		require.NoError(t, err)
		assert.Equal(t, original.ID, updated.ID)
		assert.Len(t, f.tracker.Committed(), 2)

		stored, err := f.records.ListBySession(ctx, original.DeviceSessionID)
		require.NoError(t, err)
		require.Len(t, stored, 2)
		assert.Equal(t, 2, stored[0].CalfCount)
	})

	t.Run("recall miss returns a blank draft, not an error", func(t *testing.T) {
		f := setupTracker(t)
		_, err := f.tracker.CreateSession(ctx, "Dr. Ames", seedDraft())
		require.NoError(t, err)

		blank, found := f.tracker.Recall("Z-999")
		assert.False(t, found)
		require.NotNil(t, blank)
		assert.Empty(t, blank.Tag)
		assert.Equal(t, "cattle", blank.Animal)
	})
}

func TestTrackerFinish(t *testing.T) {
	ctx := context.Background()

	t.Run("empty session is deleted", func(t *testing.T) {
		f := setupTracker(t)
		session, err := f.tracker.CreateSession(ctx, "Dr. Ames", seedDraft())
		require.NoError(t, err)

		outcome, err := f.tracker.Finish(ctx)
		require.NoError(t, err)
		assert.True(t, outcome.Deleted)
		assert.Empty(t, f.submit.calls)

		stored, err := f.sessions.Get(ctx, session.ID)
		require.NoError(t, err)
		assert.Nil(t, stored)

		crumb, err := f.crumbs.Get(ctx, models.FamilyPregnancy)
		require.NoError(t, err)
		assert.Nil(t, crumb)
		assert.Equal(t, PhaseIdle, f.tracker.Phase())
		assert.False(t, f.guard.FamilyBusy(models.FamilyPregnancy))
	})

	t.Run("failed eager sync defers, never fails the finish", func(t *testing.T) {
		f := setupTracker(t)
		f.submit.err = errors.New("connection refused")

		session, err := f.tracker.CreateSession(ctx, "Dr. Ames", seedDraft())
		require.NoError(t, err)
		commitTag(t, f, "A-100")

		outcome, err := f.tracker.Finish(ctx)
		require.NoError(t, err)
		assert.False(t, outcome.Synced)
		assert.Equal(t, 1, outcome.Records)
		assert.Equal(t, []int64{session.ID}, f.submit.calls)

		// Count is durable even though the sync never happened.
		stored, err := f.sessions.Get(ctx, session.ID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, 1, stored.RecordCount)

		// Rows stay queued for the periodic path.
		pending, err := f.records.Pending(ctx)
		require.NoError(t, err)
		assert.Len(t, pending, 1)

		crumb, err := f.crumbs.Get(ctx, models.FamilyPregnancy)
		require.NoError(t, err)
		assert.Nil(t, crumb)
		assert.Equal(t, PhaseIdle, f.tracker.Phase())
	})

	t.Run("successful eager sync reports synced", func(t *testing.T) {
		f := setupTracker(t)

		_, err := f.tracker.CreateSession(ctx, "Dr. Ames", seedDraft())
		require.NoError(t, err)
		commitTag(t, f, "A-100")

		outcome, err := f.tracker.Finish(ctx)
		require.NoError(t, err)
		assert.True(t, outcome.Synced)
		assert.Len(t, f.submit.calls, 1)
	})

	t.Run("summary data survives the finish until the next session", func(t *testing.T) {
		f := setupTracker(t)

		session, err := f.tracker.CreateSession(ctx, "Dr. Ames", seedDraft())
		require.NoError(t, err)
		commitTag(t, f, "A-100")
		commitTag(t, f, "A-200")

		_, err = f.tracker.Finish(ctx)
		require.NoError(t, err)
		assert.Equal(t, PhaseIdle, f.tracker.Phase())

		// The summary screen reads the list, stats and session after the
		// close.
		assert.Len(t, f.tracker.Committed(), 2)
		assert.Equal(t, 2, f.tracker.Stats().Total)
		closed := f.tracker.ActiveSession()
		require.NotNil(t, closed)
		assert.Equal(t, session.ID, closed.ID)

		// Opening the next session is what clears them.
		_, err = f.tracker.CreateSession(ctx, "Dr. Bell", seedDraft())
		require.NoError(t, err)
		assert.Empty(t, f.tracker.Committed())
		assert.Equal(t, 0, f.tracker.Stats().Total)
	})

	t.Run("finish without a session is rejected", func(t *testing.T) {
		f := setupTracker(t)

		_, err := f.tracker.Finish(ctx)
		assert.ErrorIs(t, err, models.ErrNoSession)
	})
}

func TestTrackerRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("resumes a session left behind by a crash", func(t *testing.T) {
		f := setupTracker(t)

		session, err := f.tracker.CreateSession(ctx, "Dr. Ames", seedDraft())
		require.NoError(t, err)
		commitTag(t, f, "A-100")
		commitTag(t, f, "A-200")

		// Crash: a fresh tracker over the same database.
		reborn := NewTracker(models.FamilyPregnancy, f.records, f.sessions, f.crumbs,
			f.guard, f.submit, PregnancyStats, PregnancyDraftFromCrumb)

		resumed, err := reborn.Restore(ctx)
		require.NoError(t, err)
		assert.True(t, resumed)
		assert.Equal(t, PhaseActive, reborn.Phase())

		active := reborn.ActiveSession()
		require.NotNil(t, active)
		assert.Equal(t, session.ID, active.ID)
		assert.Len(t, reborn.Committed(), 2)
		assert.True(t, reborn.HasTag("A-100"))
		assert.Equal(t, 2, reborn.Stats().Total)
	})

	t.Run("no breadcrumb means nothing to resume", func(t *testing.T) {
		f := setupTracker(t)

		resumed, err := f.tracker.Restore(ctx)
		require.NoError(t, err)
		assert.False(t, resumed)
		assert.Equal(t, PhaseIdle, f.tracker.Phase())
	})

	t.Run("stale breadcrumb is discarded", func(t *testing.T) {
		f := setupTracker(t)
		require.NoError(t, f.crumbs.Put(ctx, &models.Breadcrumb{
			DeviceSessionID: 9999,
			SessionType:     models.FamilyPregnancy,
		}))

		resumed, err := f.tracker.Restore(ctx)
		require.NoError(t, err)
		assert.False(t, resumed)

		crumb, err := f.crumbs.Get(ctx, models.FamilyPregnancy)
		require.NoError(t, err)
		assert.Nil(t, crumb)
	})

	t.Run("restore with no commits rebuilds the draft from the breadcrumb", func(t *testing.T) {
		f := setupTracker(t)

		_, err := f.tracker.CreateSession(ctx, "Dr. Ames", seedDraft())
		require.NoError(t, err)

		reborn := NewTracker(models.FamilyPregnancy, f.records, f.sessions, f.crumbs,
			f.guard, f.submit, PregnancyStats, PregnancyDraftFromCrumb)
		resumed, err := reborn.Restore(ctx)
		require.NoError(t, err)
		require.True(t, resumed)

		draft, err := reborn.Draft()
		require.NoError(t, err)
		assert.Equal(t, "cattle", draft.Animal)
		assert.Equal(t, 283, draft.GestationDays)
	})
}
