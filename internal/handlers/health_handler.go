package handlers

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/herdsync/engine/internal/models"
	"github.com/herdsync/engine/internal/repository"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db *sql.DB
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db *sql.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// HealthCheck reports daemon and storage health. The storage field goes
// degraded rather than failing the whole check; the UI decides what to do.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	storage := "ok"
	if err := repository.Ping(r.Context(), h.db); err != nil {
		storage = "unavailable"
	}

	writeJSON(w, http.StatusOK, models.HealthResponse{
		Status:    "healthy",
		Storage:   storage,
		Timestamp: time.Now().UTC(),
	})
}
