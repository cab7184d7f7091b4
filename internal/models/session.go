package models

import "time"

// Session groups the records captured in one field outing. ServerSessionID
// is 0 until the first successful batch sync for the session and is never
// reassigned afterwards. RecordCount is denormalized at finish time.
type Session struct {
	ID              int64     `json:"id"`
	Date            time.Time `json:"date"`
	VetName         string    `json:"vet_name"`
	ServerSessionID int64     `json:"server_session_id"`
	RecordCount     int       `json:"record_count"`
}

// Synced reports whether the session has been assigned a server id.
func (s *Session) Synced() bool {
	return s.ServerSessionID > 0
}

// Breadcrumb is the crash-recovery marker persisted at session creation and
// removed unconditionally at session finish. A breadcrumb left behind means
// the app died mid-session and the session should be resumed on next launch.
type Breadcrumb struct {
	DeviceSessionID int64  `json:"device_session_pk"`
	SessionType     Family `json:"session_type"`
	Animal          string `json:"animal,omitempty"`
	GestationDays   int    `json:"gestation_days,omitempty"`
}
