package handlers

import (
	"database/sql"
	"net/http"

	"github.com/herdsync/engine/internal/observability"
	"github.com/herdsync/engine/internal/repository"
)

// AdminHandler holds the destructive maintenance endpoints.
type AdminHandler struct {
	db  *sql.DB
	log *observability.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(db *sql.DB) *AdminHandler {
	return &AdminHandler{
		db:  db,
		log: observability.GetLogger().WithField("component", "admin"),
	}
}

// ResetDevice wipes every local table. Unsynced records are lost; the UI
// is expected to have confirmed twice before calling this.
func (h *AdminHandler) ResetDevice(w http.ResponseWriter, r *http.Request) {
	if err := repository.TruncateAll(r.Context(), h.db); err != nil {
		h.log.Errorf("device reset failed: %v", err)
		writeDomainError(w, err)
		return
	}
	h.log.Warn("device reset: all local tables wiped")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
