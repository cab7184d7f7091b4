package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/herdsync/engine/internal/services"
)

// AuthHandler lets the UI shell deposit and revoke the remote API token.
type AuthHandler struct {
	credentials *services.CredentialService
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(credentials *services.CredentialService) *AuthHandler {
	return &AuthHandler{credentials: credentials}
}

// SetToken stores the bearer token obtained from the sign-in flow.
func (h *AuthHandler) SetToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := h.credentials.Set(r.Context(), req.Token); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": true})
}

// ClearToken signs the device out locally. Unsynced records stay put.
func (h *AuthHandler) ClearToken(w http.ResponseWriter, r *http.Request) {
	if err := h.credentials.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": false})
}

// Status reports whether the engine holds a token.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": h.credentials.Authenticated()})
}
