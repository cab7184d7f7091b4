package handlers

import (
	"net/http"

	"github.com/herdsync/engine/internal/services"
	"github.com/herdsync/engine/internal/sync"
)

// SyncHandler exposes the orchestrator's status and the manual trigger.
type SyncHandler struct {
	orchestrator *sync.Orchestrator
	hub          *services.StatusHub
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(orchestrator *sync.Orchestrator, hub *services.StatusHub) *SyncHandler {
	return &SyncHandler{orchestrator: orchestrator, hub: hub}
}

// GetStatus reports the last pass outcome and live pending counts.
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orchestrator.Status(r.Context()))
}

// TriggerSync runs a sync pass now, at the user's request. Offline comes
// back as 503 so the UI can say so instead of silently doing nothing.
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	h.hub.Publish(services.Event{Type: services.EventSyncStarted})
	if err := h.orchestrator.TrySync(r.Context()); err != nil {
		h.hub.Publish(services.Event{Type: services.EventSyncDeferred, Payload: err.Error()})
		writeDomainError(w, err)
		return
	}
	h.hub.Publish(services.Event{Type: services.EventSyncCompleted})
	writeJSON(w, http.StatusOK, h.orchestrator.Status(r.Context()))
}
