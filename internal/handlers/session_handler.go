package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/herdsync/engine/internal/models"
	"github.com/herdsync/engine/internal/repository"
	"github.com/herdsync/engine/internal/services"
	"github.com/herdsync/engine/internal/state"
)

// SessionHandler exposes one family's session tracker over HTTP. The
// daemon mounts one instance per family under /api/v1/{family}.
type SessionHandler[T models.Syncable[T]] struct {
	tracker *state.Tracker[T]
	records repository.RecordRepo[T]
	hub     *services.StatusHub
	blank   func() T
}

// NewSessionHandler creates a handler for one family. blank builds an
// empty draft the create-session body decodes into.
func NewSessionHandler[T models.Syncable[T]](
	tracker *state.Tracker[T],
	records repository.RecordRepo[T],
	hub *services.StatusHub,
	blank func() T,
) *SessionHandler[T] {
	return &SessionHandler[T]{tracker: tracker, records: records, hub: hub, blank: blank}
}

// Routes mounts the family's endpoints on a sub-router.
func (h *SessionHandler[T]) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/sessions", h.CreateSession)
	r.Get("/sessions/current", h.CurrentSession)
	r.Post("/sessions/finish", h.FinishSession)
	r.Post("/records", h.CommitRecord)
	r.Get("/records/recall", h.RecallRecord)
	r.Get("/records/duplicate", h.CheckDuplicate)
	r.Get("/records/history", h.TagHistory)
	return r
}

// CreateSession opens a session for this family.
func (h *SessionHandler[T]) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	seed := h.blank()
	if len(req.Draft) > 0 {
		if err := json.Unmarshal(req.Draft, seed); err != nil {
			writeError(w, http.StatusBadRequest, "invalid draft")
			return
		}
	}

	session, err := h.tracker.CreateSession(r.Context(), req.VetName, seed)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.hub.Publish(services.Event{Type: services.EventSessionOpened, Payload: session})
	writeJSON(w, http.StatusCreated, session)
}

// CurrentSession reports the tracker's phase, open session, stats and the
// committed list.
func (h *SessionHandler[T]) CurrentSession(w http.ResponseWriter, r *http.Request) {
	resp := models.SessionStateResponse{
		Phase:   h.tracker.Phase().String(),
		Session: h.tracker.ActiveSession(),
		Stats:   h.tracker.Stats(),
	}

	if resp.Session != nil {
		if data, err := json.Marshal(h.tracker.Committed()); err == nil {
			resp.Records = data
		}
		if draft, err := h.tracker.Draft(); err == nil {
			if data, err := json.Marshal(draft); err == nil {
				resp.Draft = data
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// CommitRecord merges the posted partial edits onto the draft and persists
// the result. The response is the durable record with its id assigned.
func (h *SessionHandler[T]) CommitRecord(w http.ResponseWriter, r *http.Request) {
	partial, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	rec, err := h.tracker.Commit(r.Context(), partial)
	if err != nil {
		if _, ok := err.(*json.SyntaxError); ok {
			writeError(w, http.StatusBadRequest, "invalid record payload")
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// RecallRecord loads a committed record back into the draft by tag.
func (h *SessionHandler[T]) RecallRecord(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag")
	if tag == "" {
		writeError(w, http.StatusBadRequest, "tag is required")
		return
	}

	rec, found := h.tracker.Recall(tag)
	data, err := json.Marshal(rec)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, models.RecallResponse{Found: found, Record: data})
}

// CheckDuplicate reports whether a tag was already committed this session.
func (h *SessionHandler[T]) CheckDuplicate(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag")
	if tag == "" {
		writeError(w, http.StatusBadRequest, "tag is required")
		return
	}
	writeJSON(w, http.StatusOK, models.DuplicateCheckResponse{
		Tag:       tag,
		Duplicate: h.tracker.HasTag(tag),
	})
}

// FinishSession closes the open session and reports the outcome, including
// whether the eager sync attempt landed.
func (h *SessionHandler[T]) FinishSession(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.tracker.Finish(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.hub.Publish(services.Event{Type: services.EventSessionClosed, Payload: outcome})
	if !outcome.Synced && !outcome.Deleted {
		h.hub.Publish(services.Event{Type: services.EventSyncDeferred})
	}
	writeJSON(w, http.StatusOK, outcome)
}

// TagHistory lists every stored record for a tag across all sessions.
func (h *SessionHandler[T]) TagHistory(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag")
	if tag == "" {
		writeError(w, http.StatusBadRequest, "tag is required")
		return
	}

	recs, err := h.records.ListByTag(r.Context(), tag)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}
