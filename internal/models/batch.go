package models

import "encoding/json"

// BatchRequest is the outbound payload for one (family, session) sync batch.
// Unposted records travel as full payloads; records the server already
// accepted travel as ids only, so a retried batch never asks the server to
// re-create a record.
type BatchRequest struct {
	UnpostedRecords []json.RawMessage `json:"unposted_records"`
	PostedRecordIDs []int64           `json:"posted_record_ids"`
	DeviceSessionPK int64             `json:"device_session_pk"`
}

// BatchResponse is the server's answer to a successful batch submission.
// UnpostedRecordIDs maps each submitted device-local id (as a string key)
// to the server id it was assigned.
type BatchResponse struct {
	Session struct {
		ID int64 `json:"id"`
	} `json:"session"`
	UnpostedRecordIDs map[string]int64 `json:"unposted_record_ids"`
	Owner             int64            `json:"owner"`
}

// PendingRecord is the family-agnostic view of an unposted row, carrying
// just enough for the sync path: addressing ids plus the full payload the
// server expects.
type PendingRecord struct {
	LocalID   int64
	SessionID int64
	Tag       string
	Payload   json.RawMessage
}

// SessionSummary is the best-effort notification body sent after a session
// syncs. Failures sending it never fail the sync that already succeeded.
type SessionSummary struct {
	ServerSessionID int64  `json:"session_id"`
	Family          Family `json:"session_type"`
	RecordCount     int    `json:"record_count"`
	VetName         string `json:"vet_name,omitempty"`
}
