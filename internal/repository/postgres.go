package repository

import (
	"database/sql"

	_ "github.com/lib/pq"
)

// NewPostgresDB creates and initializes a PostgreSQL-backed store. Used when
// the engine runs against a hosted database instead of the on-device file
// (desktop deployments, integration environments).
func NewPostgresDB(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if err := createPostgresTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createPostgresTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id BIGSERIAL PRIMARY KEY,
		date TIMESTAMP NOT NULL,
		vet_name TEXT NOT NULL DEFAULT '',
		server_session_id BIGINT NOT NULL DEFAULT 0,
		record_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS records (
		id BIGSERIAL PRIMARY KEY,
		owner BIGINT NOT NULL DEFAULT 0,
		date TIMESTAMP NOT NULL,
		animal TEXT NOT NULL DEFAULT '',
		gestation_days INTEGER NOT NULL DEFAULT 0,
		tag TEXT NOT NULL DEFAULT '',
		due_date TIMESTAMP,
		days_pregnant INTEGER NOT NULL DEFAULT 0,
		time_unit TEXT NOT NULL DEFAULT '',
		calf_count INTEGER NOT NULL DEFAULT 0,
		pregnancy_status TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
		server_session_id BIGINT NOT NULL DEFAULT 0,
		server_id BIGINT NOT NULL DEFAULT 0,
		device_session_id BIGINT NOT NULL REFERENCES sessions(id)
	);

	CREATE INDEX IF NOT EXISTS idx_records_session ON records(device_session_id);
	CREATE INDEX IF NOT EXISTS idx_records_server_id ON records(server_id);

	CREATE TABLE IF NOT EXISTS weight_session (
		id BIGSERIAL PRIMARY KEY,
		date TIMESTAMP NOT NULL,
		vet_name TEXT NOT NULL DEFAULT '',
		server_session_id BIGINT NOT NULL DEFAULT 0,
		record_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS weight_records (
		id BIGSERIAL PRIMARY KEY,
		owner BIGINT NOT NULL DEFAULT 0,
		tag TEXT NOT NULL DEFAULT '',
		date TIMESTAMP NOT NULL,
		weight DOUBLE PRECISION NOT NULL DEFAULT 0,
		sex TEXT NOT NULL DEFAULT '',
		weight_unit TEXT NOT NULL DEFAULT '',
		age_in_days INTEGER NOT NULL DEFAULT 0,
		animal TEXT NOT NULL DEFAULT '',
		time_unit TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
		server_session_id BIGINT NOT NULL DEFAULT 0,
		server_id BIGINT NOT NULL DEFAULT 0,
		device_session_id BIGINT NOT NULL REFERENCES weight_session(id)
	);

	CREATE INDEX IF NOT EXISTS idx_weight_records_session ON weight_records(device_session_id);
	CREATE INDEX IF NOT EXISTS idx_weight_records_server_id ON weight_records(server_id);

	CREATE TABLE IF NOT EXISTS heat_session (
		id BIGSERIAL PRIMARY KEY,
		date TIMESTAMP NOT NULL,
		vet_name TEXT NOT NULL DEFAULT '',
		server_session_id BIGINT NOT NULL DEFAULT 0,
		record_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS heat_records (
		id BIGSERIAL PRIMARY KEY,
		owner BIGINT NOT NULL DEFAULT 0,
		date TIMESTAMP NOT NULL,
		animal TEXT NOT NULL DEFAULT '',
		gestation_days INTEGER NOT NULL DEFAULT 0,
		tag TEXT NOT NULL DEFAULT '',
		due_date TIMESTAMP,
		days_pregnant INTEGER NOT NULL DEFAULT 0,
		time_unit TEXT NOT NULL DEFAULT '',
		calf_count INTEGER NOT NULL DEFAULT 0,
		pregnancy_status TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
		server_session_id BIGINT NOT NULL DEFAULT 0,
		server_id BIGINT NOT NULL DEFAULT 0,
		device_session_id BIGINT NOT NULL REFERENCES heat_session(id)
	);

	CREATE INDEX IF NOT EXISTS idx_heat_records_session ON heat_records(device_session_id);
	CREATE INDEX IF NOT EXISTS idx_heat_records_server_id ON heat_records(server_id);

	CREATE TABLE IF NOT EXISTS breadcrumbs (
		family TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);
	`

	_, err := db.Exec(schema)
	return err
}
