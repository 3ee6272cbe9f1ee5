package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"lockwatch/common/config"

	// Import postgres driver
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store for PostgreSQL
type PostgresStore struct {
	BaseStore
}

const pgSchemaVersion = 1

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(cfg *config.DatabaseConfig) (*PostgresStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config required")
	}

	dsn := cfg.BuildDSN()
	if dsn == "" {
		return nil, fmt.Errorf("invalid database configuration: could not build DSN")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeSecs > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeSecs) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := &PostgresStore{
		BaseStore: BaseStore{
			db:      db,
			dialect: &PostgresDialect{},
			dbPath:  dsn,
		},
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize postgres schema: %w", err)
	}

	logInfo("Opened PostgreSQL database", "host", cfg.Host, "database", cfg.Name)

	return store, nil
}

// initSchema creates the database schema for PostgreSQL
func (s *PostgresStore) initSchema() error {
	schema := `
	-- Schema version tracking
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Tracked devices, created unowned at first agent contact
	CREATE TABLE IF NOT EXISTS devices (
		id BIGSERIAL PRIMARY KEY,
		device_id TEXT NOT NULL UNIQUE,
		fingerprint_hash TEXT NOT NULL UNIQUE,
		owner_id TEXT,
		hostname TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		is_missing BOOLEAN NOT NULL DEFAULT FALSE,
		last_seen TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_lat DOUBLE PRECISION,
		last_lng DOUBLE PRECISION,
		current_wifi_ssid TEXT,
		battery_percent INTEGER,
		unlock_password TEXT,
		lock_message TEXT,
		pending_message_id TEXT,
		pending_message_text TEXT,
		geofence_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		geofence_mode TEXT,
		geofence_wifi_ssid TEXT,
		geofence_signal_threshold INTEGER NOT NULL DEFAULT 0,
		geofence_center_lat DOUBLE PRECISION,
		geofence_center_lng DOUBLE PRECISION,
		geofence_radius_m DOUBLE PRECISION NOT NULL DEFAULT 0,
		os_family TEXT,
		os_version TEXT,
		architecture TEXT,
		hardware_json TEXT,
		agent_version TEXT,
		registered_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_devices_fingerprint ON devices(fingerprint_hash);
	CREATE INDEX IF NOT EXISTS idx_devices_owner ON devices(owner_id);
	CREATE INDEX IF NOT EXISTS idx_devices_last_seen ON devices(last_seen);

	-- Owner-approved wipe allowlist, synced from the agent
	CREATE TABLE IF NOT EXISTS approved_folders (
		id BIGSERIAL PRIMARY KEY,
		device_id TEXT NOT NULL REFERENCES devices(device_id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(device_id, path)
	);

	CREATE INDEX IF NOT EXISTS idx_approved_device ON approved_folders(device_id);

	-- Remote wipe operations, at most one non-terminal per device
	CREATE TABLE IF NOT EXISTS wipe_operations (
		id BIGSERIAL PRIMARY KEY,
		operation_id TEXT NOT NULL UNIQUE,
		device_id TEXT NOT NULL REFERENCES devices(device_id) ON DELETE CASCADE,
		status TEXT NOT NULL DEFAULT 'pending',
		requested_paths TEXT NOT NULL,
		total_files INTEGER NOT NULL DEFAULT 0,
		files_deleted INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_wipe_device ON wipe_operations(device_id);
	CREATE INDEX IF NOT EXISTS idx_wipe_status ON wipe_operations(status);

	-- Ephemeral directory-listing requests
	CREATE TABLE IF NOT EXISTS browse_requests (
		id BIGSERIAL PRIMARY KEY,
		request_id TEXT NOT NULL UNIQUE,
		device_id TEXT NOT NULL REFERENCES devices(device_id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		pending BOOLEAN NOT NULL DEFAULT TRUE,
		items_json TEXT,
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		resolved_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_browse_device ON browse_requests(device_id);
	CREATE INDEX IF NOT EXISTS idx_browse_pending ON browse_requests(device_id, pending);

	-- Per-device audit trail
	CREATE TABLE IF NOT EXISTS activity_log (
		id BIGSERIAL PRIMARY KEY,
		device_id TEXT NOT NULL REFERENCES devices(device_id) ON DELETE CASCADE,
		action TEXT NOT NULL,
		details TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_activity_device ON activity_log(device_id);
	CREATE INDEX IF NOT EXISTS idx_activity_created ON activity_log(created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	var currentVersion int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if currentVersion < pgSchemaVersion {
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, pgSchemaVersion); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	}

	return nil
}
