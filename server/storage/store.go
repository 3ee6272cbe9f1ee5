package storage

import (
	"context"
	"errors"
	"time"

	"lockwatch/common/config"
	"lockwatch/common/protocol"
)

// Sentinel errors surfaced to the API layer. Handlers map these to
// HTTP status codes (404, 409).
var (
	ErrNotFound          = errors.New("not found")
	ErrDeviceOwned       = errors.New("device already claimed")
	ErrWipeConflict      = errors.New("a wipe operation is already in progress for this device")
	ErrNoApprovedFolders = errors.New("device has no approved folders")
	ErrPathNotApproved   = errors.New("requested path is not within an approved folder")
)

// Store is the canonical device-state store. It is the single source of
// truth: owner actions mutate it, the agent polls it.
type Store interface {
	// Devices
	RegisterDevice(ctx context.Context, req *protocol.RegisterRequest) (*Device, bool, error)
	GetDevice(ctx context.Context, deviceID string) (*Device, error)
	GetDeviceByFingerprint(ctx context.Context, fingerprintHash string) (*Device, error)
	ListDevices(ctx context.Context, ownerID string) ([]*Device, error)
	LinkDevice(ctx context.Context, deviceID, fingerprintHash, ownerID string) (*Device, error)
	UpdateDeviceStatus(ctx context.Context, deviceID, status string) error
	SetLockCommand(ctx context.Context, deviceID, password, message string) error
	SetPendingMessage(ctx context.Context, deviceID, messageID, text string) error
	AckPendingMessage(ctx context.Context, deviceID, messageID string) error
	SetGeofence(ctx context.Context, deviceID string, cfg protocol.GeofenceConfig) error
	SetMissing(ctx context.Context, deviceID string, missing bool) error
	ApplyStatusReport(ctx context.Context, deviceID string, report *protocol.StatusReport) error
	DeleteDevice(ctx context.Context, deviceID string) error

	// Approved folders
	ReplaceApprovedFolders(ctx context.Context, deviceID string, paths []string) error
	GetApprovedFolders(ctx context.Context, deviceID string) ([]string, error)

	// Wipe operations
	CreateWipeOperation(ctx context.Context, deviceID string, paths []string) (*WipeOperation, error)
	GetWipeOperation(ctx context.Context, operationID string) (*WipeOperation, error)
	GetLatestWipeOperation(ctx context.Context, deviceID string) (*WipeOperation, error)
	GetPendingWipeOperation(ctx context.Context, deviceID string) (*WipeOperation, error)
	UpdateWipeStatus(ctx context.Context, update *protocol.WipeStatusUpdate) error

	// Browse requests
	CreateBrowseRequest(ctx context.Context, deviceID, path string) (*BrowseRequest, error)
	GetPendingBrowseRequests(ctx context.Context, deviceID string) ([]*BrowseRequest, error)
	ResolveBrowseRequest(ctx context.Context, result *protocol.BrowseResult) error
	GetBrowseRequest(ctx context.Context, deviceID, path string) (*BrowseRequest, error)
	ExpireBrowseRequests(ctx context.Context, olderThan time.Duration) (int64, error)

	// Activity log
	AddActivity(ctx context.Context, deviceID, action, details string) error
	ListActivity(ctx context.Context, deviceID string, limit int) ([]*ActivityEntry, error)

	Close() error
}

// NewStore creates a Store implementation based on the database
// configuration. SQLite is the default; PostgreSQL is selected with
// driver = "postgres".
func NewStore(cfg *config.DatabaseConfig) (Store, error) {
	if cfg == nil {
		cfg = &config.DatabaseConfig{}
	}

	switch cfg.EffectiveDriver() {
	case "sqlite", "sqlite3":
		path := cfg.BuildDSN()
		if path == "" {
			path = "lockwatch.db"
		}
		return NewSQLiteStore(path)

	case "postgres", "postgresql":
		return NewPostgresStore(cfg)

	default:
		return nil, errors.New("unsupported database driver: " + cfg.Driver + " (supported: sqlite, postgres)")
	}
}
