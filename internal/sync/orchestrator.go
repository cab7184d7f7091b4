// Package sync moves durable local rows to the server and reconciles the
// server's answers back into storage. It is the only package that pairs the
// gateway with the repositories; the trackers hand it a session id and walk
// away.
package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	stdsync "sync"
	"time"

	"github.com/herdsync/engine/internal/gateway"
	"github.com/herdsync/engine/internal/lifecycle"
	"github.com/herdsync/engine/internal/models"
	"github.com/herdsync/engine/internal/observability"
	"github.com/herdsync/engine/internal/repository"
)

// FamilySet bundles the per-family storage views the orchestrator needs.
type FamilySet struct {
	Store    repository.FamilyStore
	Sessions repository.SessionRepo
}

// Status is the snapshot the daemon's status endpoint reports.
type Status struct {
	LastRun      time.Time             `json:"last_run,omitempty"`
	LastError    string                `json:"last_error,omitempty"`
	InFlight     bool                  `json:"in_flight"`
	PendingCount map[models.Family]int `json:"pending_count"`
}

// Orchestrator runs the two-phase sync: records are already durable with the
// unsynced sentinel when it sees them; it batches them per (family, session),
// submits each batch and applies the server's ids transactionally.
type Orchestrator struct {
	families map[models.Family]FamilySet
	client   *gateway.Client
	tokens   gateway.TokenProvider
	guard    lifecycle.Reader
	db       *sql.DB
	metrics  *observability.SyncMetrics
	notifier *SummaryNotifier
	log      *observability.Logger

	mu       stdsync.Mutex
	lastRun  time.Time
	lastErr  string
	inFlight bool
}

// NewOrchestrator wires the orchestrator. notifier and metrics may be nil;
// both are best-effort concerns.
func NewOrchestrator(
	families map[models.Family]FamilySet,
	client *gateway.Client,
	tokens gateway.TokenProvider,
	guard lifecycle.Reader,
	db *sql.DB,
	metrics *observability.SyncMetrics,
	notifier *SummaryNotifier,
) *Orchestrator {
	return &Orchestrator{
		families: families,
		client:   client,
		tokens:   tokens,
		guard:    guard,
		db:       db,
		metrics:  metrics,
		notifier: notifier,
		log:      observability.GetLogger().WithField("component", "sync"),
	}
}

// CheckForPending is the periodic entry point. Every guard is re-read on
// every call; a tick that arrives while the app is backgrounded, unmounted,
// signed out or mid-session is a silent no-op, never an error. A session
// open in any family holds the whole pass, not just that family: the
// finish path may be about to batch the same unposted rows.
func (o *Orchestrator) CheckForPending(ctx context.Context) {
	if !o.guard.Mounted() || !o.guard.Foreground() {
		return
	}
	if o.guard.AnyFamilyBusy() {
		o.log.Debug("periodic sync skipped: session in progress")
		return
	}
	if !o.authenticated(ctx) {
		return
	}
	if err := repository.Ping(ctx, o.db); err != nil {
		o.log.Debug("periodic sync skipped: storage unavailable")
		return
	}

	if err := o.runPass(ctx, false); err != nil {
		o.log.Warnf("periodic sync pass: %v", err)
	}
}

// TrySync is the user-initiated trigger. Unlike the periodic path it
// reports what happened: offline comes back as models.ErrOffline so the
// caller can tell the user, and it runs even when the app is backgrounded.
func (o *Orchestrator) TrySync(ctx context.Context) error {
	if !o.client.Online(ctx) {
		if o.metrics != nil {
			o.metrics.RecordOfflineSkip(ctx)
		}
		return models.ErrOffline
	}
	if !o.authenticated(ctx) {
		return models.ErrAuthExpired
	}
	if err := repository.Ping(ctx, o.db); err != nil {
		return err
	}
	return o.runPass(ctx, true)
}

// SyncSession is the eager finish path: one family, one session, right now.
// The caller holds that family's busy flag, so the per-family guard is not
// consulted.
func (o *Orchestrator) SyncSession(ctx context.Context, family models.Family, sessionID int64) error {
	set, ok := o.families[family]
	if !ok {
		return models.ErrUnknownFamily
	}

	pending, err := set.Store.Pending(ctx)
	if err != nil {
		return err
	}
	var batch []models.PendingRecord
	for _, rec := range pending {
		if rec.SessionID == sessionID {
			batch = append(batch, rec)
		}
	}
	return o.submitBatch(ctx, set, sessionID, batch)
}

// Status reports the orchestrator's last outcome and the live pending
// counts per family.
func (o *Orchestrator) Status(ctx context.Context) Status {
	o.mu.Lock()
	s := Status{
		LastRun:      o.lastRun,
		LastError:    o.lastErr,
		InFlight:     o.inFlight,
		PendingCount: make(map[models.Family]int, len(o.families)),
	}
	o.mu.Unlock()

	for family, set := range o.families {
		pending, err := set.Store.Pending(ctx)
		if err != nil {
			continue
		}
		s.PendingCount[family] = len(pending)
	}
	return s
}

// runPass walks every family, groups its unposted rows by session and
// submits one batch per (family, session). force skips the per-family busy
// guard; only the manual trigger sets it, and then only because the user
// asked while no session UI can be open.
func (o *Orchestrator) runPass(ctx context.Context, force bool) error {
	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return nil
	}
	o.inFlight = true
	o.mu.Unlock()

	var firstErr error
	for _, family := range models.Families() {
		set, ok := o.families[family]
		if !ok {
			continue
		}
		if !force && o.guard.FamilyBusy(family) {
			o.log.Debugf("skipping %s: session in progress", family)
			continue
		}
		if err := o.syncFamily(ctx, set); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			// Auth expiry invalidates every remaining batch in this pass.
			if errors.Is(err, models.ErrAuthExpired) {
				break
			}
		}
	}

	o.mu.Lock()
	o.lastRun = time.Now().UTC()
	o.lastErr = ""
	if firstErr != nil {
		o.lastErr = firstErr.Error()
	}
	o.inFlight = false
	o.mu.Unlock()
	return firstErr
}

func (o *Orchestrator) syncFamily(ctx context.Context, set FamilySet) error {
	pending, err := set.Store.Pending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	bySession := make(map[int64][]models.PendingRecord)
	order := []int64{}
	for _, rec := range pending {
		if _, seen := bySession[rec.SessionID]; !seen {
			order = append(order, rec.SessionID)
		}
		bySession[rec.SessionID] = append(bySession[rec.SessionID], rec)
	}

	for _, sessionID := range order {
		if err := o.submitBatch(ctx, set, sessionID, bySession[sessionID]); err != nil {
			return err
		}
	}
	return nil
}

// submitBatch runs one (family, session) batch end to end: build the
// request from unposted payloads plus already-posted server ids, submit,
// reconcile the response transactionally, then stamp the session row.
// A record is only ever marked posted after its server id is durable.
func (o *Orchestrator) submitBatch(ctx context.Context, set FamilySet, sessionID int64, pending []models.PendingRecord) error {
	family := set.Store.Family()
	ctx, span := observability.StartServiceSpan(ctx, "sync", "submit_batch")
	defer span.End()

	posted, err := set.Store.PostedServerIDs(ctx, sessionID)
	if err != nil {
		observability.RecordError(span, err)
		return err
	}

	req := models.BatchRequest{
		DeviceSessionPK: sessionID,
		PostedRecordIDs: posted,
		UnpostedRecords: make([]json.RawMessage, 0, len(pending)),
	}
	for _, rec := range pending {
		req.UnpostedRecords = append(req.UnpostedRecords, rec.Payload)
	}

	start := time.Now()
	res, err := o.client.Request(ctx, http.MethodPost,
		fmt.Sprintf("/api/v1/%s/sessions/sync", family), req)
	if err != nil {
		o.recordBatch(ctx, family, len(pending), start, err)
		observability.RecordError(span, err)
		return err
	}
	if res.Offline() {
		if o.metrics != nil {
			o.metrics.RecordOfflineSkip(ctx)
		}
		return models.ErrOffline
	}
	if !res.OK() {
		err := fmt.Errorf("batch rejected (status %d): %s", res.Status, res.Message)
		o.recordBatch(ctx, family, len(pending), start, err)
		observability.RecordError(span, err)
		return err
	}

	var resp models.BatchResponse
	if err := res.Decode(&resp); err != nil {
		err = fmt.Errorf("decode batch response: %w", err)
		o.recordBatch(ctx, family, len(pending), start, err)
		observability.RecordError(span, err)
		return err
	}

	if err := set.Store.Reconcile(ctx, &resp); err != nil {
		o.recordBatch(ctx, family, len(pending), start, err)
		observability.RecordError(span, err)
		return err
	}

	count, err := set.Store.CountBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := set.Sessions.MarkSynced(ctx, sessionID, resp.Session.ID, count); err != nil {
		return err
	}

	o.recordBatch(ctx, family, len(pending), start, nil)
	observability.SetSuccess(span)
	o.log.Infof("synced session %d: %d records posted, server session %d",
		sessionID, len(pending), resp.Session.ID)

	if o.notifier != nil {
		o.notifier.Notify(ctx, models.SessionSummary{
			ServerSessionID: resp.Session.ID,
			Family:          family,
			RecordCount:     count,
		})
	}
	return nil
}

func (o *Orchestrator) recordBatch(ctx context.Context, family models.Family, records int, start time.Time, err error) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordBatch(ctx, family.String(), records, time.Since(start), err)
}

func (o *Orchestrator) authenticated(ctx context.Context) bool {
	token, err := o.tokens.Token(ctx)
	return err == nil && token != ""
}
