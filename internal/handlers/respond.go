package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/herdsync/engine/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg})
}

// writeDomainError maps the engine's sentinel errors onto HTTP statuses.
// Anything unrecognized is a 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrSessionActive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrNoSession):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrUnknownFamily):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrOffline):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, models.ErrAuthExpired):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, models.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
