package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"lockwatch/common/protocol"
	"lockwatch/common/ws"

	"github.com/google/uuid"
)

// handleTriggerAction applies an owner command to the device record.
// The agent picks the change up on its next poll; this handler never
// contacts the agent. POST /api/v1/trigger_action
func handleTriggerAction(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var envelope struct {
		DeviceID string `json:"device_id"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}

	// Decode once at the boundary; handlers downstream switch on the
	// validated variant
	action, err := protocol.DecodeAction(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	deviceID := envelope.DeviceID

	switch action.Type {
	case protocol.ActionLock:
		err = serverStore.SetLockCommand(ctx, deviceID, action.Password, action.LockMessage)
	case protocol.ActionAlarm:
		err = serverStore.UpdateDeviceStatus(ctx, deviceID, protocol.StatusAlarm)
	case protocol.ActionClearAlarm:
		err = serverStore.UpdateDeviceStatus(ctx, deviceID, protocol.StatusActive)
	case protocol.ActionMessage:
		err = serverStore.SetPendingMessage(ctx, deviceID, uuid.NewString(), action.Text)
	default:
		// wipe goes through its own endpoint with conflict checks
		writeError(w, http.StatusBadRequest, "action not supported here: "+action.Type)
		return
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}

	serverLogger.Info("Owner action queued", "device_id", deviceID, "action", action.Type)
	serverStore.AddActivity(ctx, deviceID, "action_triggered", action.Type)
	broadcastEvent(ws.EventStatusChanged, deviceID, map[string]interface{}{
		"action": action.Type,
	})

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleClearAlarm is the dedicated alarm-clear shortcut:
// POST /api/v1/clear_alarm
func handleClearAlarm(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		DeviceID string `json:"device_id"`
	}
	if err := decodeJSON(r, &req); err != nil || req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}

	if err := serverStore.UpdateDeviceStatus(r.Context(), req.DeviceID, protocol.StatusActive); err != nil {
		writeStoreError(w, err)
		return
	}

	serverLogger.Info("Alarm cleared", "device_id", req.DeviceID)
	serverStore.AddActivity(r.Context(), req.DeviceID, "alarm_cleared", "")
	broadcastEvent(ws.EventStatusChanged, req.DeviceID, map[string]interface{}{
		"status": protocol.StatusActive,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleSetGeofence stores the owner's safe-zone configuration:
// POST /api/v1/set_geofence
func handleSetGeofence(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		DeviceID string `json:"device_id"`
		protocol.GeofenceConfig
	}
	if err := decodeJSON(r, &req); err != nil || req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}

	cfg := req.GeofenceConfig
	if cfg.Enabled {
		switch cfg.Mode {
		case protocol.GeofenceModeWiFi, "":
			if cfg.WiFiSSID == "" && cfg.SignalThresholdPercent <= 0 {
				writeError(w, http.StatusBadRequest, "wifi geofence needs an ssid or a signal threshold")
				return
			}
		case protocol.GeofenceModeGPS:
			if cfg.CenterLat == nil || cfg.CenterLng == nil || cfg.RadiusM <= 0 {
				writeError(w, http.StatusBadRequest, "gps geofence needs center_lat, center_lng, and radius_m")
				return
			}
		default:
			writeError(w, http.StatusBadRequest, "unknown geofence mode: "+cfg.Mode)
			return
		}
	}

	if err := serverStore.SetGeofence(r.Context(), req.DeviceID, cfg); err != nil {
		writeStoreError(w, err)
		return
	}

	serverLogger.Info("Geofence updated",
		"device_id", req.DeviceID, "enabled", cfg.Enabled, "mode", cfg.Mode)
	serverStore.AddActivity(r.Context(), req.DeviceID, "geofence_updated", cfg.Mode)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleLinkDevice claims an unowned device for an account:
// POST /api/v1/link_device
func handleLinkDevice(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req protocol.LinkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}
	if req.DeviceID == "" && req.FingerprintHash == "" {
		writeError(w, http.StatusBadRequest, "device_id or fingerprint_hash is required")
		return
	}

	device, err := serverStore.LinkDevice(r.Context(), req.DeviceID, req.FingerprintHash, req.OwnerID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	serverLogger.Info("Device linked", "device_id", device.DeviceID, "owner_id", req.OwnerID)
	serverStore.AddActivity(r.Context(), device.DeviceID, "linked", "claimed by "+req.OwnerID)
	broadcastEvent(ws.EventDeviceLinked, device.DeviceID, map[string]interface{}{
		"owner_id": req.OwnerID,
	})
	writeJSON(w, http.StatusOK, device)
}

// handleDevices routes /api/v1/devices and /api/v1/devices/{id}[/...]
func handleDevices(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/devices")
	rest = strings.TrimPrefix(rest, "/")

	if rest == "" {
		handleDeviceList(w, r)
		return
	}

	parts := strings.SplitN(rest, "/", 2)
	deviceID := parts[0]
	sub := ""
	if len(parts) == 2 {
		sub = parts[1]
	}

	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			handleDeviceGet(w, r, deviceID)
		case http.MethodDelete:
			handleDeviceDelete(w, r, deviceID)
		default:
			writeError(w, http.StatusMethodNotAllowed, "GET or DELETE only")
		}
	case "state":
		handleDeviceState(w, r, deviceID)
	case "report":
		handleDeviceReport(w, r, deviceID)
	case "message_ack":
		handleMessageAck(w, r, deviceID)
	case "activity":
		handleDeviceActivity(w, r, deviceID)
	default:
		writeError(w, http.StatusNotFound, "unknown device endpoint")
	}
}

func handleDeviceList(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	devices, err := serverStore.ListDevices(r.Context(), r.URL.Query().Get("owner_id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func handleDeviceGet(w http.ResponseWriter, r *http.Request, deviceID string) {
	device, err := serverStore.GetDevice(r.Context(), deviceID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

func handleDeviceDelete(w http.ResponseWriter, r *http.Request, deviceID string) {
	if err := serverStore.DeleteDevice(r.Context(), deviceID); err != nil {
		writeStoreError(w, err)
		return
	}
	serverLogger.Info("Device deleted", "device_id", deviceID)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func handleDeviceActivity(w http.ResponseWriter, r *http.Request, deviceID string) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	limit := 50
	if val := r.URL.Query().Get("limit"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := serverStore.ListActivity(r.Context(), deviceID, limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
