package handlers

import (
	"net/http"
	"time"

	"github.com/herdsync/engine/internal/repository"
)

// DueHandler serves the upcoming-calving view: pregnancy records whose due
// date lies in the future, across all sessions.
type DueHandler struct {
	records *repository.PregnancyRecordRepository
}

func NewDueHandler(records *repository.PregnancyRecordRepository) *DueHandler {
	return &DueHandler{records: records}
}

// ListDue returns records due after the current moment, soonest first.
func (h *DueHandler) ListDue(w http.ResponseWriter, r *http.Request) {
	records, err := h.records.ListDueAfter(r.Context(), time.Now().UTC())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}
