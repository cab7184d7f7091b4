package models

import "time"

// SessionStats are the running statistics shown while a session is open and
// on the summary screen afterwards. They are recomputed from the in-memory
// record list on every commit; storage is never queried for them.
type SessionStats struct {
	Total       int            `json:"total"`
	ByStatus    map[string]int `json:"by_status,omitempty"`
	DueDates    []time.Time    `json:"due_dates,omitempty"`
	TotalCalves int            `json:"total_calves,omitempty"`
	TotalWeight float64        `json:"total_weight,omitempty"`
	AvgWeight   float64        `json:"avg_weight,omitempty"`
}
