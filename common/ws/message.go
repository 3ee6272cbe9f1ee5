package ws

import (
	"encoding/json"
	"time"
)

// Event is the message shape pushed to dashboard websocket clients.
// The dashboard never commands devices over this channel; it is a
// read-only change feed, the agent still pulls over HTTP.
type Event struct {
	Type      string                 `json:"type"`
	DeviceID  string                 `json:"device_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp,omitempty"`
}

// Marshal marshals the event to JSON bytes, stamping the time if unset
func (e *Event) Marshal() ([]byte, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return json.Marshal(e)
}

// Event type constants pushed by the server
const (
	EventDeviceRegistered = "device_registered"
	EventDeviceLinked     = "device_linked"
	EventStatusChanged    = "status_changed"
	EventLocationUpdate   = "location_update"
	EventGeofenceBreach   = "geofence_breach"
	EventWipeProgress     = "wipe_progress"
	EventBrowseResolved   = "browse_resolved"
	EventHeartbeat        = "heartbeat"
)
