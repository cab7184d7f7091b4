package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/herdsync/engine/internal/lifecycle"
	"github.com/herdsync/engine/internal/models"
	"github.com/herdsync/engine/internal/observability"
)

// AppStateHandler lets the UI shell report lifecycle transitions. The
// periodic sync reads these flags fresh on every tick, so a background
// transition takes effect at the next tick without any re-registration.
type AppStateHandler struct {
	guard *lifecycle.Guard
	log   *observability.Logger
}

// NewAppStateHandler creates a new AppStateHandler
func NewAppStateHandler(guard *lifecycle.Guard) *AppStateHandler {
	return &AppStateHandler{
		guard: guard,
		log:   observability.GetLogger().WithField("component", "app_state"),
	}
}

// Update applies the reported transitions. Absent fields are untouched.
func (h *AppStateHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req models.AppStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Foreground != nil {
		h.guard.SetForeground(*req.Foreground)
		h.log.Debugf("foreground=%t", *req.Foreground)
	}
	if req.Mounted != nil {
		h.guard.SetMounted(*req.Mounted)
		h.log.Debugf("mounted=%t", *req.Mounted)
	}
	h.Get(w, r)
}

// Get reports the current lifecycle flags.
func (h *AppStateHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"foreground": h.guard.Foreground(),
		"mounted":    h.guard.Mounted(),
		"busy":       h.guard.AnyFamilyBusy(),
	})
}
