package storage

import (
	"time"

	"lockwatch/common/protocol"
)

// Device is the canonical server-side record of a tracked device. It is
// created unowned at first agent contact and linked to an owner at most
// once.
type Device struct {
	ID              int64     `json:"-"`
	DeviceID        string    `json:"device_id"`
	FingerprintHash string    `json:"fingerprint_hash"`
	OwnerID         *string   `json:"owner_id,omitempty"`
	Hostname        string    `json:"hostname"`
	Status          string    `json:"status"`
	IsMissing       bool      `json:"is_missing"`
	LastSeen        time.Time `json:"last_seen"`
	LastLat         *float64  `json:"last_lat,omitempty"`
	LastLng         *float64  `json:"last_lng,omitempty"`
	CurrentWiFiSSID string    `json:"current_wifi_ssid,omitempty"`
	BatteryPercent  *int      `json:"battery_percent,omitempty"`

	// Owner-issued command parameters, delivered via the agent's poll
	UnlockPassword     string `json:"-"`
	LockMessage        string `json:"-"`
	PendingMessageID   string `json:"-"`
	PendingMessageText string `json:"-"`

	Geofence protocol.GeofenceConfig `json:"geofence"`

	OSFamily     string    `json:"os_family,omitempty"`
	OSVersion    string    `json:"os_version,omitempty"`
	Architecture string    `json:"architecture,omitempty"`
	HardwareJSON string    `json:"-"`
	AgentVersion string    `json:"agent_version,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Owned reports whether the device has been linked to an account
func (d *Device) Owned() bool {
	return d.OwnerID != nil && *d.OwnerID != ""
}

// State projects the device record into the snapshot the agent polls
func (d *Device) State() protocol.DeviceState {
	state := protocol.DeviceState{
		DeviceID:       d.DeviceID,
		Status:         d.Status,
		IsMissing:      d.IsMissing,
		UnlockPassword: d.UnlockPassword,
		LockMessage:    d.LockMessage,
		Geofence:       d.Geofence,
	}
	if d.PendingMessageID != "" {
		state.PendingMessage = &protocol.PendingMessage{
			ID:   d.PendingMessageID,
			Text: d.PendingMessageText,
		}
	}
	return state
}

// WipeOperation tracks one remote wipe from trigger to terminal status.
// At most one non-terminal operation may exist per device.
type WipeOperation struct {
	ID             int64     `json:"-"`
	OperationID    string    `json:"operation_id"`
	DeviceID       string    `json:"device_id"`
	Status         string    `json:"status"`
	RequestedPaths []string  `json:"requested_paths"`
	TotalFiles     int       `json:"total_files"`
	FilesDeleted   int       `json:"files_deleted"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Terminal reports whether the operation has finished
func (w *WipeOperation) Terminal() bool {
	return protocol.WipeTerminal(w.Status)
}

// ProgressPercentage derives completion from the file counters
func (w *WipeOperation) ProgressPercentage() float64 {
	if w.Status == protocol.WipeCompleted {
		return 100
	}
	if w.TotalFiles <= 0 {
		return 0
	}
	pct := float64(w.FilesDeleted) / float64(w.TotalFiles) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Snapshot projects the operation into its wire form
func (w *WipeOperation) Snapshot() protocol.WipeOperationSnapshot {
	return protocol.WipeOperationSnapshot{
		OperationID:        w.OperationID,
		DeviceID:           w.DeviceID,
		Status:             w.Status,
		RequestedPaths:     w.RequestedPaths,
		TotalFiles:         w.TotalFiles,
		FilesDeleted:       w.FilesDeleted,
		ProgressPercentage: w.ProgressPercentage(),
		ErrorMessage:       w.ErrorMessage,
		CreatedAt:          w.CreatedAt,
		UpdatedAt:          w.UpdatedAt,
	}
}

// BrowseRequest is a transient directory-listing request. The owner
// creates it pending, the agent resolves it, the dashboard polls it.
type BrowseRequest struct {
	ID         int64                 `json:"-"`
	RequestID  string                `json:"request_id"`
	DeviceID   string                `json:"device_id"`
	Path       string                `json:"path"`
	Pending    bool                  `json:"pending"`
	Items      []protocol.BrowseItem `json:"items,omitempty"`
	Error      string                `json:"error,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	ResolvedAt *time.Time            `json:"resolved_at,omitempty"`
}

// ActivityEntry is one row of the per-device audit trail
type ActivityEntry struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"device_id"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
