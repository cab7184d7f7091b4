package repository

import (
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteDB creates and initializes the on-device SQLite database.
// Safe to call on every app start: tables are created if missing and
// columns added by later schema versions are applied additively.
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// WAL keeps concurrent readers safe while the sync path writes.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	schema := `
	-- Pregnancy checks
	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner INTEGER NOT NULL DEFAULT 0,
		date DATETIME NOT NULL,
		animal TEXT NOT NULL DEFAULT '',
		gestation_days INTEGER NOT NULL DEFAULT 0,
		tag TEXT NOT NULL DEFAULT '',
		due_date DATETIME,
		days_pregnant INTEGER NOT NULL DEFAULT 0,
		time_unit TEXT NOT NULL DEFAULT '',
		calf_count INTEGER NOT NULL DEFAULT 0,
		pregnancy_status TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		server_session_id INTEGER NOT NULL DEFAULT 0,
		server_id INTEGER NOT NULL DEFAULT 0,
		device_session_id INTEGER NOT NULL REFERENCES sessions(id)
	);

	CREATE INDEX IF NOT EXISTS idx_records_session ON records(device_session_id);
	CREATE INDEX IF NOT EXISTS idx_records_server_id ON records(server_id);
	CREATE INDEX IF NOT EXISTS idx_records_tag ON records(tag);

	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date DATETIME NOT NULL,
		vet_name TEXT NOT NULL DEFAULT '',
		server_session_id INTEGER NOT NULL DEFAULT 0,
		record_count INTEGER NOT NULL DEFAULT 0
	);

	-- Weighings
	CREATE TABLE IF NOT EXISTS weight_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner INTEGER NOT NULL DEFAULT 0,
		tag TEXT NOT NULL DEFAULT '',
		date DATETIME NOT NULL,
		weight REAL NOT NULL DEFAULT 0,
		sex TEXT NOT NULL DEFAULT '',
		weight_unit TEXT NOT NULL DEFAULT '',
		age_in_days INTEGER NOT NULL DEFAULT 0,
		animal TEXT NOT NULL DEFAULT '',
		time_unit TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		server_session_id INTEGER NOT NULL DEFAULT 0,
		server_id INTEGER NOT NULL DEFAULT 0,
		device_session_id INTEGER NOT NULL REFERENCES weight_session(id)
	);

	CREATE INDEX IF NOT EXISTS idx_weight_records_session ON weight_records(device_session_id);
	CREATE INDEX IF NOT EXISTS idx_weight_records_server_id ON weight_records(server_id);
	CREATE INDEX IF NOT EXISTS idx_weight_records_tag ON weight_records(tag);

	CREATE TABLE IF NOT EXISTS weight_session (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date DATETIME NOT NULL,
		vet_name TEXT NOT NULL DEFAULT '',
		server_session_id INTEGER NOT NULL DEFAULT 0,
		record_count INTEGER NOT NULL DEFAULT 0
	);

	-- Heat cycles (mirror of the pregnancy tables)
	CREATE TABLE IF NOT EXISTS heat_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner INTEGER NOT NULL DEFAULT 0,
		date DATETIME NOT NULL,
		animal TEXT NOT NULL DEFAULT '',
		gestation_days INTEGER NOT NULL DEFAULT 0,
		tag TEXT NOT NULL DEFAULT '',
		due_date DATETIME,
		days_pregnant INTEGER NOT NULL DEFAULT 0,
		time_unit TEXT NOT NULL DEFAULT '',
		calf_count INTEGER NOT NULL DEFAULT 0,
		pregnancy_status TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		server_session_id INTEGER NOT NULL DEFAULT 0,
		server_id INTEGER NOT NULL DEFAULT 0,
		device_session_id INTEGER NOT NULL REFERENCES heat_session(id)
	);

	CREATE INDEX IF NOT EXISTS idx_heat_records_session ON heat_records(device_session_id);
	CREATE INDEX IF NOT EXISTS idx_heat_records_server_id ON heat_records(server_id);
	CREATE INDEX IF NOT EXISTS idx_heat_records_tag ON heat_records(tag);

	CREATE TABLE IF NOT EXISTS heat_session (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date DATETIME NOT NULL,
		vet_name TEXT NOT NULL DEFAULT '',
		server_session_id INTEGER NOT NULL DEFAULT 0,
		record_count INTEGER NOT NULL DEFAULT 0
	);

	-- Crash-recovery breadcrumbs, one row per family
	CREATE TABLE IF NOT EXISTS breadcrumbs (
		family TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := db.Exec(schema)
	return err
}

// migrations holds columns introduced after the initial schema. Additive
// only: an ALTER that fails because the column already exists is expected
// on upgraded installs and ignored.
var migrations = []string{
	"ALTER TABLE records ADD COLUMN note TEXT NOT NULL DEFAULT ''",
	"ALTER TABLE weight_records ADD COLUMN age_in_days INTEGER NOT NULL DEFAULT 0",
	"ALTER TABLE heat_records ADD COLUMN note TEXT NOT NULL DEFAULT ''",
}

func applyMigrations(db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			if isDuplicateColumn(err) {
				continue
			}
			return err
		}
	}
	return nil
}

func isDuplicateColumn(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column name")
}
