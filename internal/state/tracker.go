// Package state holds the in-memory session state machine for one record
// family. A tracker moves Idle -> Active -> Finishing -> Idle; every commit
// is written to storage before it is reflected in memory, so the in-memory
// list is a cache of durable rows, never the other way around.
package state

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/herdsync/engine/internal/lifecycle"
	"github.com/herdsync/engine/internal/models"
	"github.com/herdsync/engine/internal/observability"
	"github.com/herdsync/engine/internal/repository"
)

// Phase is the tracker's lifecycle position.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseActive
	PhaseFinishing
)

func (p Phase) String() string {
	switch p {
	case PhaseActive:
		return "active"
	case PhaseFinishing:
		return "finishing"
	default:
		return "idle"
	}
}

// BatchSubmitter is the eager finish-path hook into the sync orchestrator.
// An error means the batch did not land; the rows stay unposted and the
// periodic path picks them up later.
type BatchSubmitter interface {
	SyncSession(ctx context.Context, family models.Family, sessionID int64) error
}

// StatsFunc recomputes session statistics from the committed list. It runs
// on every commit; storage is never queried for stats.
type StatsFunc[T models.Syncable[T]] func(records []T) models.SessionStats

// FinishOutcome is what the finish path reports to the caller.
type FinishOutcome struct {
	Session *models.Session     `json:"session,omitempty"`
	Stats   models.SessionStats `json:"stats"`
	Records int                 `json:"records"`
	Synced  bool                `json:"synced"`
	Deleted bool                `json:"deleted"`
}

// Tracker manages one family's open session. All methods are safe for
// concurrent use; operations serialize on one mutex so a commit can never
// interleave with a finish.
type Tracker[T models.Syncable[T]] struct {
	family    models.Family
	records   repository.RecordRepo[T]
	sessions  repository.SessionRepo
	crumbs    repository.BreadcrumbRepo
	guard     *lifecycle.Guard
	submit    BatchSubmitter
	stats     StatsFunc[T]
	fromCrumb func(*models.Breadcrumb) T
	log       *observability.Logger

	mu        sync.Mutex
	phase     Phase
	session   *models.Session
	draft     T
	committed []T
	current   models.SessionStats
}

// NewTracker wires a tracker for one family. fromCrumb rebuilds a blank
// draft from a crash-recovery breadcrumb when the committed list is empty.
func NewTracker[T models.Syncable[T]](
	family models.Family,
	records repository.RecordRepo[T],
	sessions repository.SessionRepo,
	crumbs repository.BreadcrumbRepo,
	guard *lifecycle.Guard,
	submit BatchSubmitter,
	stats StatsFunc[T],
	fromCrumb func(*models.Breadcrumb) T,
) *Tracker[T] {
	return &Tracker[T]{
		family:    family,
		records:   records,
		sessions:  sessions,
		crumbs:    crumbs,
		guard:     guard,
		submit:    submit,
		stats:     stats,
		fromCrumb: fromCrumb,
		log:       observability.GetLogger().WithField("family", family.String()),
	}
}

// SetSubmitter installs the finish-path submitter after construction. The
// orchestrator and the trackers reference each other, so one side has to be
// wired late.
func (t *Tracker[T]) SetSubmitter(s BatchSubmitter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.submit = s
}

// Phase returns the tracker's current lifecycle position.
func (t *Tracker[T]) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// ActiveSession returns a copy of the open session. After a finish it
// keeps returning the closed session so the summary view can read it;
// callers check Phase to tell the two apart.
func (t *Tracker[T]) ActiveSession() *models.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return nil
	}
	s := *t.session
	return &s
}

// Draft returns a copy of the working draft.
func (t *Tracker[T]) Draft() (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var zero T
	if t.phase != PhaseActive {
		return zero, models.ErrNoSession
	}
	return t.draft.Clone(), nil
}

// Committed returns a snapshot of the committed records in commit order.
// Like the statistics, the list survives a finish for the summary view
// and resets on the next CreateSession.
func (t *Tracker[T]) Committed() []T {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]T, len(t.committed))
	copy(out, t.committed)
	return out
}

// Stats returns the current session statistics. They survive a finish so
// the summary screen can read them, and reset on the next session.
func (t *Tracker[T]) Stats() models.SessionStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// CreateSession opens a new session. The session row and the crash-recovery
// breadcrumb are both durable before the tracker reports Active. seed
// carries the session-level context (animal kind, unit settings) every
// subsequent draft inherits.
func (t *Tracker[T]) CreateSession(ctx context.Context, vetName string, seed T) (*models.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.phase != PhaseIdle {
		return nil, models.ErrSessionActive
	}

	session := &models.Session{Date: time.Now().UTC(), VetName: vetName}
	id, err := t.sessions.Insert(ctx, session)
	if err != nil {
		return nil, err
	}

	seed.SetSessionID(id)
	animal, gestation := seed.CrumbMeta()
	crumb := &models.Breadcrumb{
		DeviceSessionID: id,
		SessionType:     t.family,
		Animal:          animal,
		GestationDays:   gestation,
	}
	if err := t.crumbs.Put(ctx, crumb); err != nil {
		// The session row exists without its marker; roll it back so a
		// crash cannot leave an unresumable session.
		if delErr := t.sessions.Delete(ctx, id); delErr != nil {
			t.log.Errorf("failed to roll back session %d after breadcrumb write: %v", id, delErr)
		}
		return nil, err
	}

	t.phase = PhaseActive
	t.session = session
	t.draft = seed
	t.committed = nil
	t.current = t.stats(nil)
	t.guard.SetFamilyBusy(t.family, true)

	t.log.Infof("session %d opened (vet=%s)", id, vetName)
	s := *session
	return &s, nil
}

// Commit merges partial edits onto the working draft, persists the result
// and resets the draft for the next animal. A draft with a device-local id
// updates its existing row; a fresh draft inserts a new one. The returned
// record is the durable form with its id assigned.
func (t *Tracker[T]) Commit(ctx context.Context, partial json.RawMessage) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	if t.phase != PhaseActive {
		return zero, models.ErrNoSession
	}

	merged := t.draft.Clone()
	if len(partial) > 0 {
		if err := json.Unmarshal(partial, merged); err != nil {
			return zero, err
		}
	}
	merged.SetSessionID(t.session.ID)

	if merged.LocalID() == 0 {
		id, err := t.records.Insert(ctx, merged)
		if err != nil {
			return zero, err
		}
		merged.SetLocalID(id)
		t.committed = append(t.committed, merged)
	} else {
		if err := t.records.Update(ctx, merged); err != nil {
			return zero, err
		}
		replaced := false
		for i, rec := range t.committed {
			if rec.LocalID() == merged.LocalID() {
				t.committed[i] = merged
				replaced = true
				break
			}
		}
		if !replaced {
			t.committed = append(t.committed, merged)
		}
	}

	t.current = t.stats(t.committed)
	t.draft = merged.ResetDraft()

	t.log.Debugf("committed record %d for tag %s (session %d, total %d)",
		merged.LocalID(), merged.AnimalTag(), t.session.ID, len(t.committed))
	return merged, nil
}

// Recall loads a previously committed record back into the draft so it can
// be re-edited; the next commit updates the existing row in place. A miss
// returns a blank draft and false, never an error. Tags match exactly and
// the most recent commit wins.
func (t *Tracker[T]) Recall(tag string) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	if t.phase != PhaseActive {
		return zero, false
	}

	for i := len(t.committed) - 1; i >= 0; i-- {
		if t.committed[i].AnimalTag() == tag {
			t.draft = t.committed[i].Clone()
			return t.draft.Clone(), true
		}
	}
	return t.draft.ResetDraft(), false
}

// HasTag reports whether a tag was already committed in this session.
// Matching is exact and case sensitive.
func (t *Tracker[T]) HasTag(tag string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rec := range t.committed {
		if rec.AnimalTag() == tag {
			return true
		}
	}
	return false
}

// Finish closes the session. An empty session is deleted outright. A
// session with records gets its count persisted and an eager sync attempt;
// a failed attempt is logged and deferred to the periodic path, never
// surfaced as a finish failure. The breadcrumb is removed unconditionally
// and the tracker returns to Idle whatever happens after the phase flip.
// The committed list and statistics stay readable for the summary view;
// the next CreateSession clears them.
func (t *Tracker[T]) Finish(ctx context.Context) (*FinishOutcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.phase != PhaseActive {
		return nil, models.ErrNoSession
	}
	t.phase = PhaseFinishing

	session := t.session
	defer func() {
		if err := t.crumbs.Delete(ctx, t.family); err != nil {
			t.log.Errorf("failed to delete breadcrumb for session %d: %v", session.ID, err)
		}
		t.phase = PhaseIdle
		t.guard.SetFamilyBusy(t.family, false)
	}()

	outcome := &FinishOutcome{Stats: t.current, Records: len(t.committed)}

	if len(t.committed) == 0 {
		if err := t.sessions.Delete(ctx, session.ID); err != nil {
			return nil, err
		}
		t.log.Infof("session %d had no records, deleted", session.ID)
		outcome.Deleted = true
		return outcome, nil
	}

	// The count is correct from this point on even if the device never
	// comes back online.
	rows, err := t.records.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	session.RecordCount = len(rows)
	if err := t.sessions.UpdateRecordCount(ctx, session.ID, session.RecordCount); err != nil {
		return nil, err
	}

	if t.submit != nil {
		if err := t.submit.SyncSession(ctx, t.family, session.ID); err != nil {
			t.log.Warnf("eager sync for session %d deferred: %v", session.ID, err)
		} else {
			outcome.Synced = true
		}
	}

	if refreshed, err := t.sessions.Get(ctx, session.ID); err == nil && refreshed != nil {
		session = refreshed
		t.session = refreshed
	}
	s := *session
	outcome.Session = &s

	t.log.Infof("session %d finished (records=%d synced=%t)", s.ID, outcome.Records, outcome.Synced)
	return outcome, nil
}

// Restore resumes a session left behind by a crash. It is called once at
// startup: a breadcrumb pointing at a live session row reloads the
// committed list and reopens the session; a stale breadcrumb is discarded.
func (t *Tracker[T]) Restore(ctx context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.phase != PhaseIdle {
		return false, models.ErrSessionActive
	}

	crumb, err := t.crumbs.Get(ctx, t.family)
	if err != nil {
		return false, err
	}
	if crumb == nil {
		return false, nil
	}

	session, err := t.sessions.Get(ctx, crumb.DeviceSessionID)
	if err != nil {
		return false, err
	}
	if session == nil {
		t.log.Warnf("breadcrumb points at missing session %d, discarding", crumb.DeviceSessionID)
		if err := t.crumbs.Delete(ctx, t.family); err != nil {
			return false, err
		}
		return false, nil
	}

	committed, err := t.records.ListBySession(ctx, session.ID)
	if err != nil {
		return false, err
	}

	t.phase = PhaseActive
	t.session = session
	t.committed = committed
	if len(committed) > 0 {
		t.draft = committed[len(committed)-1].ResetDraft()
	} else {
		t.draft = t.fromCrumb(crumb)
	}
	t.current = t.stats(committed)
	t.guard.SetFamilyBusy(t.family, true)

	t.log.Infof("resumed session %d with %d committed records", session.ID, len(committed))
	return true, nil
}
