package models

import (
	"encoding/json"
	"time"
)

// CreateSessionRequest opens a session. Draft carries the session-level
// defaults (animal kind, gestation or unit settings) the first draft starts
// from.
type CreateSessionRequest struct {
	VetName string          `json:"vet_name"`
	Draft   json.RawMessage `json:"draft"`
}

// SessionStateResponse is the full view of one family's tracker.
type SessionStateResponse struct {
	Phase   string          `json:"phase"`
	Session *Session        `json:"session,omitempty"`
	Stats   SessionStats    `json:"stats"`
	Records json.RawMessage `json:"records,omitempty"`
	Draft   json.RawMessage `json:"draft,omitempty"`
}

// RecallResponse is returned by the tag-recall lookup.
type RecallResponse struct {
	Found  bool            `json:"found"`
	Record json.RawMessage `json:"record"`
}

// DuplicateCheckResponse answers "was this tag already committed".
type DuplicateCheckResponse struct {
	Tag       string `json:"tag"`
	Duplicate bool   `json:"duplicate"`
}

// AppStateRequest is how the UI shell reports lifecycle transitions.
type AppStateRequest struct {
	Foreground *bool `json:"foreground,omitempty"`
	Mounted    *bool `json:"mounted,omitempty"`
}

// HealthResponse is returned by health check
type HealthResponse struct {
	Status    string    `json:"status"`
	Storage   string    `json:"storage"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}
