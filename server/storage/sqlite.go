package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO required)
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	BaseStore
}

const schemaVersion = 1

// NewSQLiteStore creates a new SQLite-backed store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists (unless in-memory)
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	// Build connection string with pragmas (skip for in-memory databases)
	connStr := dbPath
	if dbPath != ":memory:" {
		connStr += "?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=-64000&_foreign_keys=ON"
	} else {
		connStr += "?_foreign_keys=ON"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{
		BaseStore: BaseStore{
			db:      db,
			dialect: &SQLiteDialect{},
			dbPath:  dbPath,
		},
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	logInfo("Opened SQLite database", "path", dbPath)

	return store, nil
}

// initSchema creates tables if they don't exist
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Schema version tracking
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Tracked devices, created unowned at first agent contact
	CREATE TABLE IF NOT EXISTS devices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id TEXT NOT NULL UNIQUE,
		fingerprint_hash TEXT NOT NULL UNIQUE,
		owner_id TEXT,
		hostname TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		is_missing INTEGER NOT NULL DEFAULT 0,
		last_seen DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_lat REAL,
		last_lng REAL,
		current_wifi_ssid TEXT,
		battery_percent INTEGER,
		unlock_password TEXT,
		lock_message TEXT,
		pending_message_id TEXT,
		pending_message_text TEXT,
		geofence_enabled INTEGER NOT NULL DEFAULT 0,
		geofence_mode TEXT,
		geofence_wifi_ssid TEXT,
		geofence_signal_threshold INTEGER NOT NULL DEFAULT 0,
		geofence_center_lat REAL,
		geofence_center_lng REAL,
		geofence_radius_m REAL NOT NULL DEFAULT 0,
		os_family TEXT,
		os_version TEXT,
		architecture TEXT,
		hardware_json TEXT,
		agent_version TEXT,
		registered_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_devices_fingerprint ON devices(fingerprint_hash);
	CREATE INDEX IF NOT EXISTS idx_devices_owner ON devices(owner_id);
	CREATE INDEX IF NOT EXISTS idx_devices_last_seen ON devices(last_seen);

	-- Owner-approved wipe allowlist, synced from the agent
	CREATE TABLE IF NOT EXISTS approved_folders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id TEXT NOT NULL,
		path TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(device_id, path),
		FOREIGN KEY(device_id) REFERENCES devices(device_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_approved_device ON approved_folders(device_id);

	-- Remote wipe operations, at most one non-terminal per device
	CREATE TABLE IF NOT EXISTS wipe_operations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		operation_id TEXT NOT NULL UNIQUE,
		device_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		requested_paths TEXT NOT NULL,
		total_files INTEGER NOT NULL DEFAULT 0,
		files_deleted INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(device_id) REFERENCES devices(device_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_wipe_device ON wipe_operations(device_id);
	CREATE INDEX IF NOT EXISTS idx_wipe_status ON wipe_operations(status);

	-- Ephemeral directory-listing requests
	CREATE TABLE IF NOT EXISTS browse_requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL UNIQUE,
		device_id TEXT NOT NULL,
		path TEXT NOT NULL,
		pending INTEGER NOT NULL DEFAULT 1,
		items_json TEXT,
		error_message TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		resolved_at DATETIME,
		FOREIGN KEY(device_id) REFERENCES devices(device_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_browse_device ON browse_requests(device_id);
	CREATE INDEX IF NOT EXISTS idx_browse_pending ON browse_requests(device_id, pending);

	-- Per-device audit trail
	CREATE TABLE IF NOT EXISTS activity_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id TEXT NOT NULL,
		action TEXT NOT NULL,
		details TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(device_id) REFERENCES devices(device_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_activity_device ON activity_log(device_id);
	CREATE INDEX IF NOT EXISTS idx_activity_created ON activity_log(created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// Check/update schema version
	var currentVersion int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if currentVersion < schemaVersion {
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	}

	return nil
}
