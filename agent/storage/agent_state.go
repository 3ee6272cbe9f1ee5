// Package storage persists the agent's local state between restarts:
// the registered device identity, the owner-curated approved folders,
// and the last status the agent applied.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// AgentStateStore handles storage of the agent's durable state
type AgentStateStore interface {
	// GetDeviceID returns the registered device id, empty when the
	// agent has never completed registration
	GetDeviceID() (string, error)
	// SetDeviceID records the server-assigned device id
	SetDeviceID(deviceID string) error
	// GetFingerprint returns the fingerprint used at registration
	GetFingerprint() (string, error)
	// SetFingerprint records the fingerprint used at registration
	SetFingerprint(fp string) error
	// GetApprovedFolders returns the locally held wipe allowlist
	GetApprovedFolders() ([]string, error)
	// SetApprovedFolders replaces the locally held wipe allowlist
	SetApprovedFolders(paths []string) error
	// GetLastStatus returns the last server status the agent applied
	GetLastStatus() (string, error)
	// SetLastStatus records the last server status the agent applied
	SetLastStatus(status string) error
	// SetValue stores any JSON-serializable value
	SetValue(key string, value interface{}) error
	// GetValue retrieves a value stored with SetValue
	GetValue(key string, dest interface{}) error
	// DeleteValue removes a stored value by key
	DeleteValue(key string) error
	// Close closes the database connection
	Close() error
}

const (
	keyDeviceID        = "device_id"
	keyFingerprint     = "fingerprint_hash"
	keyApprovedFolders = "approved_folders"
	keyLastStatus      = "last_status"
)

// SQLiteAgentState implements AgentStateStore using SQLite
type SQLiteAgentState struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewAgentStateStore creates an AgentStateStore with a SQLite backend
func NewAgentStateStore(dbPath string) (AgentStateStore, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open agent state database: %w", err)
	}

	store := &SQLiteAgentState{db: db}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteAgentState) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agent_state (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create agent_state schema: %w", err)
	}
	return nil
}

func (s *SQLiteAgentState) getString(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRow("SELECT value FROM agent_state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteAgentState) setString(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO agent_state (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// GetDeviceID returns the registered device id
func (s *SQLiteAgentState) GetDeviceID() (string, error) {
	return s.getString(keyDeviceID)
}

// SetDeviceID records the server-assigned device id
func (s *SQLiteAgentState) SetDeviceID(deviceID string) error {
	return s.setString(keyDeviceID, deviceID)
}

// GetFingerprint returns the fingerprint used at registration
func (s *SQLiteAgentState) GetFingerprint() (string, error) {
	return s.getString(keyFingerprint)
}

// SetFingerprint records the fingerprint used at registration
func (s *SQLiteAgentState) SetFingerprint(fp string) error {
	return s.setString(keyFingerprint, fp)
}

// GetApprovedFolders returns the locally held wipe allowlist
func (s *SQLiteAgentState) GetApprovedFolders() ([]string, error) {
	text, err := s.getString(keyApprovedFolders)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return []string{}, nil
	}

	lines := strings.Split(text, "\n")
	paths := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}

// SetApprovedFolders replaces the locally held wipe allowlist
func (s *SQLiteAgentState) SetApprovedFolders(paths []string) error {
	return s.setString(keyApprovedFolders, strings.Join(paths, "\n"))
}

// GetLastStatus returns the last server status the agent applied
func (s *SQLiteAgentState) GetLastStatus() (string, error) {
	return s.getString(keyLastStatus)
}

// SetLastStatus records the last server status the agent applied
func (s *SQLiteAgentState) SetLastStatus(status string) error {
	return s.setString(keyLastStatus, status)
}

// SetValue stores any JSON-serializable value
func (s *SQLiteAgentState) SetValue(key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return s.setString(key, string(jsonValue))
}

// GetValue retrieves a value stored with SetValue. dest is unchanged
// when the key does not exist.
func (s *SQLiteAgentState) GetValue(key string, dest interface{}) error {
	text, err := s.getString(key)
	if err != nil || text == "" {
		return err
	}
	if err := json.Unmarshal([]byte(text), dest); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return nil
}

// DeleteValue removes a stored value by key
func (s *SQLiteAgentState) DeleteValue(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM agent_state WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete value: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteAgentState) Close() error {
	return s.db.Close()
}
