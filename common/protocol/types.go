// Package protocol defines the JSON wire types exchanged between the
// LockWatch agent and server. Both sides decode at the boundary into
// these structs; nothing downstream inspects raw JSON.
package protocol

import "time"

// Device status values. Transitions are driven by owner actions, the
// command executor, and the geofence monitor.
const (
	StatusActive  = "active"
	StatusMissing = "missing"
	StatusLocked  = "locked"
	StatusAlarm   = "alarm"
	StatusWiped   = "wiped"
)

// ValidStatus reports whether s is a known device status
func ValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusMissing, StatusLocked, StatusAlarm, StatusWiped:
		return true
	}
	return false
}

// OSInfo describes the agent's operating system
type OSInfo struct {
	Family   string `json:"family"`
	Version  string `json:"version,omitempty"`
	Arch     string `json:"arch,omitempty"`
	Hostname string `json:"hostname,omitempty"`
}

// HardwareInfo carries the raw identifiers the fingerprint was derived
// from, plus descriptive metadata shown on the dashboard. The server
// stores it verbatim; it is self-reported and not tamper-proof.
type HardwareInfo struct {
	MachineID    string   `json:"machine_id,omitempty"`
	SystemSerial string   `json:"system_serial,omitempty"`
	BoardSerial  string   `json:"board_serial,omitempty"`
	BIOSSerial   string   `json:"bios_serial,omitempty"`
	CPUID        string   `json:"cpu_id,omitempty"`
	MACAddresses []string `json:"mac_addresses,omitempty"`
	Model        string   `json:"model,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
}

// RegisterRequest is sent by the agent on first run (and safely on any
// retry) to establish or recover its device identity.
type RegisterRequest struct {
	FingerprintHash string       `json:"fingerprint_hash"`
	Hostname        string       `json:"hostname"`
	OS              OSInfo       `json:"os"`
	Hardware        HardwareInfo `json:"hardware"`
	AgentVersion    string       `json:"agent_version"`
}

// RegisterResponse returns the canonical device_id for the fingerprint.
// AlreadyRegistered is true when the fingerprint matched an existing
// device record.
type RegisterResponse struct {
	DeviceID          string `json:"device_id"`
	AlreadyRegistered bool   `json:"already_registered"`
	Linked            bool   `json:"linked"`
}

// LinkRequest associates an unowned device with an owner account.
// Either DeviceID or FingerprintHash identifies the device.
type LinkRequest struct {
	DeviceID        string `json:"device_id,omitempty"`
	FingerprintHash string `json:"fingerprint_hash,omitempty"`
	OwnerID         string `json:"owner_id"`
}

// GeofenceConfig is the owner-configured safe zone. WiFi mode watches
// SSID membership and signal strength; GPS mode watches distance from
// a reference point. Signal threshold and radius are deliberately
// separate fields.
type GeofenceConfig struct {
	Enabled                bool     `json:"enabled"`
	Mode                   string   `json:"mode,omitempty"` // "wifi" or "gps"
	WiFiSSID               string   `json:"wifi_ssid,omitempty"`
	SignalThresholdPercent int      `json:"signal_threshold_percent,omitempty"`
	CenterLat              *float64 `json:"center_lat,omitempty"`
	CenterLng              *float64 `json:"center_lng,omitempty"`
	RadiusM                float64  `json:"radius_m,omitempty"`
}

// Geofence modes
const (
	GeofenceModeWiFi = "wifi"
	GeofenceModeGPS  = "gps"
)

// PendingMessage is a one-shot owner message awaiting display on the
// device. The agent acknowledges it by ID so it is shown exactly once.
type PendingMessage struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// DeviceState is the canonical state snapshot the agent polls each
// tick. The agent compares Status against the last status it applied
// and acts only on transitions.
type DeviceState struct {
	DeviceID       string          `json:"device_id"`
	Status         string          `json:"status"`
	IsMissing      bool            `json:"is_missing"`
	UnlockPassword string          `json:"unlock_password,omitempty"`
	LockMessage    string          `json:"lock_message,omitempty"`
	PendingMessage *PendingMessage `json:"pending_message,omitempty"`
	Geofence       GeofenceConfig  `json:"geofence"`
}

// BreachReport describes why the agent's geofence monitor raised an
// alarm
type BreachReport struct {
	Reason        string   `json:"reason"` // "ssid_mismatch", "signal_low", "disconnected", "out_of_radius"
	ObservedSSID  string   `json:"observed_ssid,omitempty"`
	SignalPercent *int     `json:"signal_percent,omitempty"`
	DistanceM     *float64 `json:"distance_m,omitempty"`
}

// Breach reasons
const (
	BreachSSIDMismatch = "ssid_mismatch"
	BreachSignalLow    = "signal_low"
	BreachDisconnected = "disconnected"
	BreachOutOfRadius  = "out_of_radius"
)

// ActionResult reports the outcome of an executed command back to the
// server
type ActionResult struct {
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// StatusReport is the agent's periodic telemetry upload
type StatusReport struct {
	Lat            *float64      `json:"lat,omitempty"`
	Lng            *float64      `json:"lng,omitempty"`
	WiFiSSID       string        `json:"wifi_ssid,omitempty"`
	SignalPercent  *int          `json:"signal_percent,omitempty"`
	BatteryPercent *int          `json:"battery_percent,omitempty"`
	AgentVersion   string        `json:"agent_version,omitempty"`
	Breach         *BreachReport `json:"breach,omitempty"`
	ActionResult   *ActionResult `json:"action_result,omitempty"`
}

// MessageAck marks a pending message as displayed
type MessageAck struct {
	MessageID string `json:"message_id"`
}

// ApprovedFoldersSync replaces the server's copy of the device's
// owner-approved wipe allowlist
type ApprovedFoldersSync struct {
	Paths []string `json:"paths"`
}

// Wipe operation statuses
const (
	WipePending    = "pending"
	WipeInProgress = "in_progress"
	WipeCompleted  = "completed"
	WipeFailed     = "failed"
)

// WipeTerminal reports whether a wipe status is terminal
func WipeTerminal(status string) bool {
	return status == WipeCompleted || status == WipeFailed
}

// WipeTriggerRequest starts a wipe of selected approved paths
type WipeTriggerRequest struct {
	DeviceID string   `json:"device_id"`
	Paths    []string `json:"paths"`
}

// WipeOperationSnapshot is the server's view of a wipe operation,
// returned to owners polling for progress and to the agent discovering
// pending work.
type WipeOperationSnapshot struct {
	OperationID        string    `json:"operation_id"`
	DeviceID           string    `json:"device_id"`
	Status             string    `json:"status"`
	RequestedPaths     []string  `json:"requested_paths"`
	TotalFiles         int       `json:"total_files"`
	FilesDeleted       int       `json:"files_deleted"`
	ProgressPercentage float64   `json:"progress_percentage"`
	ErrorMessage       string    `json:"error_message,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// WipeStatusUpdate is posted by the agent as deletion proceeds
type WipeStatusUpdate struct {
	OperationID  string `json:"operation_id"`
	Status       string `json:"status"`
	TotalFiles   int    `json:"total_files"`
	FilesDeleted int    `json:"files_deleted"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// BrowseRequestPayload asks the device for a directory listing
type BrowseRequestPayload struct {
	Path string `json:"path"`
}

// BrowseItem is one entry in a directory listing
type BrowseItem struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	IsDir      bool      `json:"is_dir"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
}

// PendingBrowse is what the agent sees when polling for browse work
type PendingBrowse struct {
	RequestID string `json:"request_id"`
	Path      string `json:"path"`
}

// BrowseResult is posted by the agent after listing a directory
type BrowseResult struct {
	RequestID string       `json:"request_id"`
	DeviceID  string       `json:"device_id"`
	Path      string       `json:"path"`
	Items     []BrowseItem `json:"items"`
	Error     string       `json:"error,omitempty"`
}

// BrowseStatus is polled by the dashboard until Pending is false
type BrowseStatus struct {
	Pending bool         `json:"pending"`
	Items   []BrowseItem `json:"items,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// DeviceInfo is served by the agent's loopback discovery endpoint so a
// browser on the same machine can identify this device. Unauthenticated
// on purpose; the loopback bind is the trust boundary.
type DeviceInfo struct {
	DeviceID        string `json:"device_id"`
	FingerprintHash string `json:"fingerprint_hash"`
	Registered      bool   `json:"registered"`
	Status          string `json:"status"`
}

// ErrorResponse is the uniform error body for API failures
type ErrorResponse struct {
	Error string `json:"error"`
}
