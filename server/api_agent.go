package main

import (
	"net/http"
	"strings"

	"lockwatch/common/protocol"
	"lockwatch/common/ws"

	"github.com/Masterminds/semver/v3"
)

// handleAgentRegister is the agent's first (and repeat) contact.
// Registration is idempotent by fingerprint: the same hardware always
// gets the same device_id back, so a lost response is safe to retry.
func handleAgentRegister(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req protocol.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		serverLogger.Warn("Invalid JSON in agent register", "error", err)
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.FingerprintHash == "" {
		writeError(w, http.StatusBadRequest, "fingerprint_hash is required")
		return
	}

	if msg := checkAgentVersion(req.AgentVersion); msg != "" {
		serverLogger.Warn("Rejected outdated agent",
			"hostname", req.Hostname, "agent_version", req.AgentVersion)
		writeError(w, http.StatusUpgradeRequired, msg)
		return
	}

	device, created, err := serverStore.RegisterDevice(r.Context(), &req)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	if created {
		serverLogger.Info("Device registered",
			"device_id", device.DeviceID, "hostname", device.Hostname, "os", device.OSFamily)
		serverStore.AddActivity(r.Context(), device.DeviceID, "registered", "first agent contact")
		broadcastEvent(ws.EventDeviceRegistered, device.DeviceID, map[string]interface{}{
			"hostname": device.Hostname,
		})
	} else {
		serverLogger.Debug("Device re-registered", "device_id", device.DeviceID)
	}

	writeJSON(w, http.StatusOK, protocol.RegisterResponse{
		DeviceID:          device.DeviceID,
		AlreadyRegistered: !created,
		Linked:            device.Owned(),
	})
}

// checkAgentVersion enforces the configured minimum agent version.
// Unparseable versions (dev builds) pass the gate.
func checkAgentVersion(agentVersion string) string {
	if serverConfig == nil || serverConfig.Server.MinAgentVersion == "" {
		return ""
	}
	min, err := semver.NewVersion(serverConfig.Server.MinAgentVersion)
	if err != nil {
		return ""
	}
	v, err := semver.NewVersion(agentVersion)
	if err != nil {
		return ""
	}
	if v.LessThan(min) {
		return "agent version " + agentVersion + " is older than the required minimum " +
			serverConfig.Server.MinAgentVersion
	}
	return ""
}

// handleDeviceState serves the canonical state snapshot the agent
// polls each tick: GET /api/v1/devices/{id}/state
func handleDeviceState(w http.ResponseWriter, r *http.Request, deviceID string) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	device, err := serverStore.GetDevice(r.Context(), deviceID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, device.State())
}

// handleDeviceReport ingests the agent's periodic telemetry:
// POST /api/v1/devices/{id}/report
func handleDeviceReport(w http.ResponseWriter, r *http.Request, deviceID string) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var report protocol.StatusReport
	if err := decodeJSON(r, &report); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := serverStore.ApplyStatusReport(r.Context(), deviceID, &report); err != nil {
		writeStoreError(w, err)
		return
	}

	if report.Lat != nil && report.Lng != nil {
		broadcastEvent(ws.EventLocationUpdate, deviceID, map[string]interface{}{
			"lat": *report.Lat, "lng": *report.Lng,
		})
	}

	// A geofence breach escalates the device to alarm. The agent
	// reports the breach once per episode, so this fires once too.
	if report.Breach != nil {
		serverLogger.Warn("Geofence breach reported",
			"device_id", deviceID, "reason", report.Breach.Reason)
		if err := serverStore.UpdateDeviceStatus(r.Context(), deviceID, protocol.StatusAlarm); err != nil {
			serverLogger.Error("Failed to raise alarm after breach", "device_id", deviceID, "error", err)
		} else {
			serverStore.AddActivity(r.Context(), deviceID, "geofence_breach", report.Breach.Reason)
			broadcastEvent(ws.EventGeofenceBreach, deviceID, map[string]interface{}{
				"reason": report.Breach.Reason,
			})
		}
	}

	if result := report.ActionResult; result != nil {
		details := result.Action
		if !result.Success {
			details += " failed: " + result.Error
			serverLogger.Warn("Agent action failed",
				"device_id", deviceID, "action", result.Action, "error", result.Error)
		}
		serverStore.AddActivity(r.Context(), deviceID, "action_result", details)
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleMessageAck marks a one-shot message as displayed:
// POST /api/v1/devices/{id}/message_ack
func handleMessageAck(w http.ResponseWriter, r *http.Request, deviceID string) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var ack protocol.MessageAck
	if err := decodeJSON(r, &ack); err != nil || ack.MessageID == "" {
		writeError(w, http.StatusBadRequest, "message_id is required")
		return
	}

	if err := serverStore.AckPendingMessage(r.Context(), deviceID, ack.MessageID); err != nil {
		writeStoreError(w, err)
		return
	}
	serverLogger.Debug("Message acknowledged", "device_id", deviceID, "message_id", ack.MessageID)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleApprovedFolders replaces the device's wipe allowlist:
// POST /api/v1/approved_folders/{id}
func handleApprovedFolders(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	deviceID := strings.TrimPrefix(r.URL.Path, "/api/v1/approved_folders/")
	if deviceID == "" || strings.Contains(deviceID, "/") {
		writeError(w, http.StatusBadRequest, "device id missing from path")
		return
	}

	var sync protocol.ApprovedFoldersSync
	if err := decodeJSON(r, &sync); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := serverStore.ReplaceApprovedFolders(r.Context(), deviceID, sync.Paths); err != nil {
		writeStoreError(w, err)
		return
	}

	serverLogger.Info("Approved folders synced", "device_id", deviceID, "count", len(sync.Paths))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
