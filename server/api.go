package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"lockwatch/common/protocol"
	"lockwatch/server/storage"
)

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		serverLogger.Debug("Failed to encode response", "error", err)
	}
}

// writeError sends the uniform JSON error body
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, protocol.ErrorResponse{Error: msg})
}

// writeStoreError maps storage sentinel errors onto HTTP statuses:
// unknown device is 404, claim and wipe conflicts are 409, a wipe
// trigger without approved folders is 400
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "device not found")
	case errors.Is(err, storage.ErrDeviceOwned):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrWipeConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrNoApprovedFolders):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrPathNotApproved):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		serverLogger.Error("Storage operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON reads the request body into dst
func decodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// requireMethod enforces the HTTP method, answering 405 otherwise
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeError(w, http.StatusMethodNotAllowed, method+" only")
		return false
	}
	return true
}
