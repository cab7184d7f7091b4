package models

import "time"

// Syncable is the contract every record family satisfies. The engine never
// inspects domain fields; it addresses rows by the device-local id, decides
// posted/unposted from the server id sentinel (0 = never acknowledged) and
// reads the tag for duplicate checks and recall.
type Syncable[T any] interface {
	LocalID() int64
	SetLocalID(id int64)
	RemoteID() int64
	SessionID() int64
	SetSessionID(id int64)
	AnimalTag() string

	// ResetDraft returns a blank draft for the next animal, preserving
	// session-level context (animal kind, unit settings) but clearing
	// per-animal fields and identifiers.
	ResetDraft() T

	// Clone returns an independent copy of the record.
	Clone() T

	// CrumbMeta returns the session-level fields persisted in the
	// crash-recovery breadcrumb.
	CrumbMeta() (animal string, gestationDays int)
}

// PregnancyRecord is one pregnancy check for one tagged animal.
// ServerID and Owner stay 0 until the record is acknowledged by the server.
type PregnancyRecord struct {
	ID              int64     `json:"id"`
	Owner           int64     `json:"owner"`
	Date            time.Time `json:"date"`
	Animal          string    `json:"animal"`
	GestationDays   int       `json:"gestation_days"`
	Tag             string    `json:"tag"`
	DueDate         time.Time `json:"due_date"`
	DaysPregnant    int       `json:"days_pregnant"`
	TimeUnit        string    `json:"time_unit"`
	CalfCount       int       `json:"calf_count"`
	PregnancyStatus string    `json:"pregnancy_status"`
	Note            string    `json:"note"`
	UpdatedAt       time.Time `json:"updated_at"`
	ServerSessionID int64     `json:"server_session_id"`
	ServerID        int64     `json:"server_id"`
	DeviceSessionID int64     `json:"device_session_id"`
}

func (r *PregnancyRecord) LocalID() int64         { return r.ID }
func (r *PregnancyRecord) SetLocalID(id int64)    { r.ID = id }
func (r *PregnancyRecord) RemoteID() int64        { return r.ServerID }
func (r *PregnancyRecord) SessionID() int64       { return r.DeviceSessionID }
func (r *PregnancyRecord) SetSessionID(id int64)  { r.DeviceSessionID = id }
func (r *PregnancyRecord) AnimalTag() string      { return r.Tag }

// ResetDraft keeps the animal kind and gestation settings for the next entry.
func (r *PregnancyRecord) ResetDraft() *PregnancyRecord {
	return &PregnancyRecord{
		Animal:          r.Animal,
		GestationDays:   r.GestationDays,
		TimeUnit:        r.TimeUnit,
		DeviceSessionID: r.DeviceSessionID,
	}
}

func (r *PregnancyRecord) Clone() *PregnancyRecord {
	c := *r
	return &c
}

func (r *PregnancyRecord) CrumbMeta() (string, int) {
	return r.Animal, r.GestationDays
}

// WeightRecord is one weighing for one tagged animal.
type WeightRecord struct {
	ID              int64     `json:"id"`
	Owner           int64     `json:"owner"`
	Tag             string    `json:"tag"`
	Date            time.Time `json:"date"`
	Weight          float64   `json:"weight"`
	Sex             string    `json:"sex"`
	WeightUnit      string    `json:"weight_unit"`
	AgeInDays       int       `json:"age_in_days"`
	Animal          string    `json:"animal"`
	TimeUnit        string    `json:"time_unit"`
	Note            string    `json:"note"`
	UpdatedAt       time.Time `json:"updated_at"`
	ServerSessionID int64     `json:"server_session_id"`
	ServerID        int64     `json:"server_id"`
	DeviceSessionID int64     `json:"device_session_id"`
}

func (r *WeightRecord) LocalID() int64        { return r.ID }
func (r *WeightRecord) SetLocalID(id int64)   { r.ID = id }
func (r *WeightRecord) RemoteID() int64       { return r.ServerID }
func (r *WeightRecord) SessionID() int64      { return r.DeviceSessionID }
func (r *WeightRecord) SetSessionID(id int64) { r.DeviceSessionID = id }
func (r *WeightRecord) AnimalTag() string     { return r.Tag }

func (r *WeightRecord) ResetDraft() *WeightRecord {
	return &WeightRecord{
		Animal:          r.Animal,
		WeightUnit:      r.WeightUnit,
		TimeUnit:        r.TimeUnit,
		DeviceSessionID: r.DeviceSessionID,
	}
}

func (r *WeightRecord) Clone() *WeightRecord {
	c := *r
	return &c
}

func (r *WeightRecord) CrumbMeta() (string, int) {
	return r.Animal, 0
}

// HeatRecord is one heat-cycle observation. The heat tables mirror the
// pregnancy tables column for column.
type HeatRecord struct {
	ID              int64     `json:"id"`
	Owner           int64     `json:"owner"`
	Date            time.Time `json:"date"`
	Animal          string    `json:"animal"`
	GestationDays   int       `json:"gestation_days"`
	Tag             string    `json:"tag"`
	DueDate         time.Time `json:"due_date"`
	DaysPregnant    int       `json:"days_pregnant"`
	TimeUnit        string    `json:"time_unit"`
	CalfCount       int       `json:"calf_count"`
	PregnancyStatus string    `json:"pregnancy_status"`
	Note            string    `json:"note"`
	UpdatedAt       time.Time `json:"updated_at"`
	ServerSessionID int64     `json:"server_session_id"`
	ServerID        int64     `json:"server_id"`
	DeviceSessionID int64     `json:"device_session_id"`
}

func (r *HeatRecord) LocalID() int64        { return r.ID }
func (r *HeatRecord) SetLocalID(id int64)   { r.ID = id }
func (r *HeatRecord) RemoteID() int64       { return r.ServerID }
func (r *HeatRecord) SessionID() int64      { return r.DeviceSessionID }
func (r *HeatRecord) SetSessionID(id int64) { r.DeviceSessionID = id }
func (r *HeatRecord) AnimalTag() string     { return r.Tag }

func (r *HeatRecord) ResetDraft() *HeatRecord {
	return &HeatRecord{
		Animal:          r.Animal,
		GestationDays:   r.GestationDays,
		TimeUnit:        r.TimeUnit,
		DeviceSessionID: r.DeviceSessionID,
	}
}

func (r *HeatRecord) Clone() *HeatRecord {
	c := *r
	return &c
}

func (r *HeatRecord) CrumbMeta() (string, int) {
	return r.Animal, r.GestationDays
}
