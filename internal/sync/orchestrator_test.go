package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herdsync/engine/internal/gateway"
	"github.com/herdsync/engine/internal/lifecycle"
	"github.com/herdsync/engine/internal/models"
	"github.com/herdsync/engine/internal/repository"
)

type stubTokens struct {
	token   string
	cleared bool
}

func (s *stubTokens) Token(ctx context.Context) (string, error) { return s.token, nil }

func (s *stubTokens) Clear(ctx context.Context) error {
	s.cleared = true
	s.token = ""
	return nil
}

type orchestratorFixture struct {
	db       *sql.DB
	records  *repository.PregnancyRecordRepository
	sessions *repository.SessionRepository
	guard    *lifecycle.Guard
	tokens   *stubTokens
	orch     *Orchestrator
}

// fakeServer answers batch submissions by assigning sequential server ids
// starting at 101 to every unposted record, keyed by the "id" field in its
// payload.
func fakeServer(t *testing.T, requests *[]models.BatchRequest) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}

		var req models.BatchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if requests != nil {
			*requests = append(*requests, req)
		}

		resp := models.BatchResponse{Owner: 7}
		resp.Session.ID = 500
		resp.UnpostedRecordIDs = make(map[string]int64)
		for i, raw := range req.UnpostedRecords {
			var rec struct {
				ID int64 `json:"id"`
			}
			require.NoError(t, json.Unmarshal(raw, &rec))
			resp.UnpostedRecordIDs[strconv.FormatInt(rec.ID, 10)] = int64(101 + i)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func setupOrchestrator(t *testing.T, serverURL string, online bool) *orchestratorFixture {
	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &orchestratorFixture{
		db:       db,
		records:  repository.NewPregnancyRecordRepository(db),
		sessions: repository.NewSessionRepository(db, models.FamilyPregnancy),
		guard:    lifecycle.NewGuard(),
		tokens:   &stubTokens{token: "tok-1"},
	}
	f.guard.SetMounted(true)
	f.guard.SetForeground(true)

	probe := gateway.ProbeFunc(func(ctx context.Context) bool { return online })
	client := gateway.NewClient(serverURL, "device-1", f.tokens, probe,
		gateway.WithRetries(1),
		gateway.WithRetryDelay(time.Millisecond),
	)

	families := map[models.Family]FamilySet{
		models.FamilyPregnancy: {Store: f.records, Sessions: f.sessions},
	}
	f.orch = NewOrchestrator(families, client, f.tokens, f.guard, db, nil, nil)
	return f
}

func insertUnposted(t *testing.T, f *orchestratorFixture, sessionID int64, tag string) int64 {
	id, err := f.records.Insert(context.Background(), &models.PregnancyRecord{
		Date:            time.Now().UTC(),
		Animal:          "cattle",
		Tag:             tag,
		DeviceSessionID: sessionID,
	})
	require.NoError(t, err)
	return id
}

func TestOrchestratorTrySync(t *testing.T) {
	ctx := context.Background()

	t.Run("posts pending rows and reconciles server ids", func(t *testing.T) {
		var requests []models.BatchRequest
		srv := fakeServer(t, &requests)
		defer srv.Close()

		f := setupOrchestrator(t, srv.URL, true)
		sessionID, err := f.sessions.Insert(ctx, &models.Session{Date: time.Now().UTC()})
		require.NoError(t, err)
		insertUnposted(t, f, sessionID, "A-1")
		insertUnposted(t, f, sessionID, "A-2")

		require.NoError(t, f.orch.TrySync(ctx))

		require.Len(t, requests, 1)
		assert.Len(t, requests[0].UnpostedRecords, 2)
		assert.Equal(t, sessionID, requests[0].DeviceSessionPK)

		pending, err := f.records.Pending(ctx)
		require.NoError(t, err)
		assert.Empty(t, pending)

		session, err := f.sessions.Get(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, int64(500), session.ServerSessionID)
		assert.Equal(t, 2, session.RecordCount)
	})

	t.Run("already-posted rows travel as ids only", func(t *testing.T) {
		var requests []models.BatchRequest
		srv := fakeServer(t, &requests)
		defer srv.Close()

		f := setupOrchestrator(t, srv.URL, true)
		sessionID, err := f.sessions.Insert(ctx, &models.Session{Date: time.Now().UTC()})
		require.NoError(t, err)

		_, err = f.records.Insert(ctx, &models.PregnancyRecord{
			Date: time.Now().UTC(), Tag: "A-1", ServerID: 55, DeviceSessionID: sessionID,
		})
		require.NoError(t, err)
		insertUnposted(t, f, sessionID, "A-2")

		require.NoError(t, f.orch.TrySync(ctx))

		require.Len(t, requests, 1)
		assert.Equal(t, []int64{55}, requests[0].PostedRecordIDs)
		assert.Len(t, requests[0].UnpostedRecords, 1)
	})

	t.Run("offline comes back as a sentinel without burning retries", func(t *testing.T) {
		srv := fakeServer(t, nil)
		defer srv.Close()

		f := setupOrchestrator(t, srv.URL, false)
		sessionID, err := f.sessions.Insert(ctx, &models.Session{Date: time.Now().UTC()})
		require.NoError(t, err)
		insertUnposted(t, f, sessionID, "A-1")

		assert.ErrorIs(t, f.orch.TrySync(ctx), models.ErrOffline)

		pending, err := f.records.Pending(ctx)
		require.NoError(t, err)
		assert.Len(t, pending, 1)
	})

	t.Run("nothing pending is a clean no-op", func(t *testing.T) {
		var requests []models.BatchRequest
		srv := fakeServer(t, &requests)
		defer srv.Close()

		f := setupOrchestrator(t, srv.URL, true)
		require.NoError(t, f.orch.TrySync(ctx))
		assert.Empty(t, requests)
	})
}

func TestOrchestratorCheckForPending(t *testing.T) {
	ctx := context.Background()

	t.Run("backgrounded app skips the pass", func(t *testing.T) {
		var requests []models.BatchRequest
		srv := fakeServer(t, &requests)
		defer srv.Close()

		f := setupOrchestrator(t, srv.URL, true)
		sessionID, err := f.sessions.Insert(ctx, &models.Session{Date: time.Now().UTC()})
		require.NoError(t, err)
		insertUnposted(t, f, sessionID, "A-1")

		f.guard.SetForeground(false)
		f.orch.CheckForPending(ctx)
		assert.Empty(t, requests)

		// Foreground again: the same tick logic now proceeds.
		f.guard.SetForeground(true)
		f.orch.CheckForPending(ctx)
		assert.Len(t, requests, 1)
	})

	t.Run("busy family is left alone", func(t *testing.T) {
		var requests []models.BatchRequest
		srv := fakeServer(t, &requests)
		defer srv.Close()

		f := setupOrchestrator(t, srv.URL, true)
		sessionID, err := f.sessions.Insert(ctx, &models.Session{Date: time.Now().UTC()})
		require.NoError(t, err)
		insertUnposted(t, f, sessionID, "A-1")

		f.guard.SetFamilyBusy(models.FamilyPregnancy, true)
		f.orch.CheckForPending(ctx)
		assert.Empty(t, requests)
	})

	t.Run("a session in any family holds the whole pass", func(t *testing.T) {
		var requests []models.BatchRequest
		srv := fakeServer(t, &requests)
		defer srv.Close()

		f := setupOrchestrator(t, srv.URL, true)
		sessionID, err := f.sessions.Insert(ctx, &models.Session{Date: time.Now().UTC()})
		require.NoError(t, err)
		insertUnposted(t, f, sessionID, "A-1")

		// A weighing session is open; the pregnancy rows wait too.
		f.guard.SetFamilyBusy(models.FamilyWeight, true)
		f.orch.CheckForPending(ctx)
		assert.Empty(t, requests)

		f.guard.SetFamilyBusy(models.FamilyWeight, false)
		f.orch.CheckForPending(ctx)
		assert.Len(t, requests, 1)
	})

	t.Run("signed out means no pass", func(t *testing.T) {
		var requests []models.BatchRequest
		srv := fakeServer(t, &requests)
		defer srv.Close()

		f := setupOrchestrator(t, srv.URL, true)
		f.tokens.token = ""
		sessionID, err := f.sessions.Insert(ctx, &models.Session{Date: time.Now().UTC()})
		require.NoError(t, err)
		insertUnposted(t, f, sessionID, "A-1")

		f.orch.CheckForPending(ctx)
		assert.Empty(t, requests)
	})
}

func TestOrchestratorAuthExpiry(t *testing.T) {
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	f := setupOrchestrator(t, srv.URL, true)
	sessionID, err := f.sessions.Insert(ctx, &models.Session{Date: time.Now().UTC()})
	require.NoError(t, err)
	insertUnposted(t, f, sessionID, "A-1")

	assert.ErrorIs(t, f.orch.TrySync(ctx), models.ErrAuthExpired)
	assert.True(t, f.tokens.cleared)

	// Rows survive the expiry untouched.
	pending, err := f.records.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestOrchestratorStatus(t *testing.T) {
	ctx := context.Background()
	srv := fakeServer(t, nil)
	defer srv.Close()

	f := setupOrchestrator(t, srv.URL, true)
	sessionID, err := f.sessions.Insert(ctx, &models.Session{Date: time.Now().UTC()})
	require.NoError(t, err)
	insertUnposted(t, f, sessionID, "A-1")

	status := f.orch.Status(ctx)
	assert.Equal(t, 1, status.PendingCount[models.FamilyPregnancy])
	assert.False(t, status.InFlight)

	require.NoError(t, f.orch.TrySync(ctx))

	status = f.orch.Status(ctx)
	assert.Equal(t, 0, status.PendingCount[models.FamilyPregnancy])
	assert.False(t, status.LastRun.IsZero())
	assert.Empty(t, status.LastError)
}
