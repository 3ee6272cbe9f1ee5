package main

import (
	"net/http"
	"strings"

	"lockwatch/common/protocol"
	"lockwatch/common/ws"
)

// handleWipe routes everything under /api/v1/wipe/
func handleWipe(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/wipe/")
	parts := strings.SplitN(rest, "/", 2)
	op := parts[0]
	arg := ""
	if len(parts) == 2 {
		arg = parts[1]
	}

	switch op {
	case "trigger":
		handleWipeTrigger(w, r)
	case "status":
		handleWipeStatus(w, r, arg)
	case "pending":
		handleWipePending(w, r, arg)
	case "update_status":
		handleWipeUpdateStatus(w, r)
	case "request_browse":
		handleRequestBrowse(w, r, arg)
	case "browse":
		handleBrowsePoll(w, r, arg)
	case "browse_request":
		handleBrowsePendingForAgent(w, r, arg)
	case "browse_result":
		handleBrowseResult(w, r)
	default:
		writeError(w, http.StatusNotFound, "unknown wipe endpoint")
	}
}

// handleWipeTrigger starts a wipe operation. The store rejects the
// trigger when another operation is still non-terminal or the device
// has no approved folders. POST /api/v1/wipe/trigger
func handleWipeTrigger(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req protocol.WipeTriggerRequest
	if err := decodeJSON(r, &req); err != nil || req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}
	if len(req.Paths) == 0 {
		writeError(w, http.StatusBadRequest, "at least one path is required")
		return
	}

	wipeOp, err := serverStore.CreateWipeOperation(r.Context(), req.DeviceID, req.Paths)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	serverLogger.Info("Wipe triggered",
		"device_id", req.DeviceID, "operation_id", wipeOp.OperationID, "paths", len(req.Paths))
	serverStore.AddActivity(r.Context(), req.DeviceID, "wipe_triggered", strings.Join(req.Paths, ", "))
	broadcastEvent(ws.EventWipeProgress, req.DeviceID, map[string]interface{}{
		"operation_id": wipeOp.OperationID,
		"status":       wipeOp.Status,
	})

	writeJSON(w, http.StatusOK, wipeOp.Snapshot())
}

// handleWipeStatus serves the owner's progress view:
// GET /api/v1/wipe/status/{device_id}
func handleWipeStatus(w http.ResponseWriter, r *http.Request, deviceID string) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "device id missing from path")
		return
	}

	wipeOp, err := serverStore.GetLatestWipeOperation(r.Context(), deviceID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wipeOp.Snapshot())
}

// handleWipePending is polled by the agent for wipe work:
// GET /api/v1/wipe/pending/{device_id}
func handleWipePending(w http.ResponseWriter, r *http.Request, deviceID string) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "device id missing from path")
		return
	}

	wipeOp, err := serverStore.GetPendingWipeOperation(r.Context(), deviceID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wipeOp.Snapshot())
}

// handleWipeUpdateStatus ingests agent progress reports:
// POST /api/v1/wipe/update_status
func handleWipeUpdateStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var update protocol.WipeStatusUpdate
	if err := decodeJSON(r, &update); err != nil || update.OperationID == "" {
		writeError(w, http.StatusBadRequest, "operation_id is required")
		return
	}

	if err := serverStore.UpdateWipeStatus(r.Context(), &update); err != nil {
		writeStoreError(w, err)
		return
	}

	wipeOp, err := serverStore.GetWipeOperation(r.Context(), update.OperationID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	serverLogger.Info("Wipe progress",
		"operation_id", wipeOp.OperationID, "device_id", wipeOp.DeviceID,
		"status", wipeOp.Status, "deleted", wipeOp.FilesDeleted, "total", wipeOp.TotalFiles)

	// A completed wipe moves the device to its terminal status
	if wipeOp.Status == protocol.WipeCompleted {
		if err := serverStore.UpdateDeviceStatus(r.Context(), wipeOp.DeviceID, protocol.StatusWiped); err != nil {
			serverLogger.Error("Failed to mark device wiped", "device_id", wipeOp.DeviceID, "error", err)
		}
		serverStore.AddActivity(r.Context(), wipeOp.DeviceID, "wipe_completed", wipeOp.ErrorMessage)
	} else if wipeOp.Status == protocol.WipeFailed {
		serverStore.AddActivity(r.Context(), wipeOp.DeviceID, "wipe_failed", wipeOp.ErrorMessage)
	}

	broadcastEvent(ws.EventWipeProgress, wipeOp.DeviceID, map[string]interface{}{
		"operation_id": wipeOp.OperationID,
		"status":       wipeOp.Status,
		"progress":     wipeOp.ProgressPercentage(),
	})

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleRequestBrowse creates a pending directory-listing request:
// POST /api/v1/wipe/request_browse/{device_id}
func handleRequestBrowse(w http.ResponseWriter, r *http.Request, deviceID string) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "device id missing from path")
		return
	}

	var payload protocol.BrowseRequestPayload
	if err := decodeJSON(r, &payload); err != nil || payload.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	req, err := serverStore.CreateBrowseRequest(r.Context(), deviceID, payload.Path)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	serverLogger.Debug("Browse requested", "device_id", deviceID, "path", payload.Path)
	writeJSON(w, http.StatusOK, req)
}

// handleBrowsePoll is polled by the dashboard until the agent answers:
// GET /api/v1/wipe/browse/{device_id}?path=
func handleBrowsePoll(w http.ResponseWriter, r *http.Request, deviceID string) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	path := r.URL.Query().Get("path")
	if deviceID == "" || path == "" {
		writeError(w, http.StatusBadRequest, "device id and path are required")
		return
	}

	req, err := serverStore.GetBrowseRequest(r.Context(), deviceID, path)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, protocol.BrowseStatus{
		Pending: req.Pending,
		Items:   req.Items,
		Error:   req.Error,
	})
}

// handleBrowsePendingForAgent is polled by the agent for listing work:
// GET /api/v1/wipe/browse_request/{device_id}
func handleBrowsePendingForAgent(w http.ResponseWriter, r *http.Request, deviceID string) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "device id missing from path")
		return
	}

	requests, err := serverStore.GetPendingBrowseRequests(r.Context(), deviceID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	pending := make([]protocol.PendingBrowse, 0, len(requests))
	for _, req := range requests {
		pending = append(pending, protocol.PendingBrowse{RequestID: req.RequestID, Path: req.Path})
	}
	writeJSON(w, http.StatusOK, pending)
}

// handleBrowseResult resolves a pending browse request:
// POST /api/v1/wipe/browse_result
func handleBrowseResult(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var result protocol.BrowseResult
	if err := decodeJSON(r, &result); err != nil || result.RequestID == "" {
		writeError(w, http.StatusBadRequest, "request_id is required")
		return
	}

	if err := serverStore.ResolveBrowseRequest(r.Context(), &result); err != nil {
		writeStoreError(w, err)
		return
	}

	serverLogger.Debug("Browse resolved",
		"request_id", result.RequestID, "device_id", result.DeviceID, "items", len(result.Items))
	broadcastEvent(ws.EventBrowseResolved, result.DeviceID, map[string]interface{}{
		"path": result.Path,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
