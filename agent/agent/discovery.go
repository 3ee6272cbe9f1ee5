package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"lockwatch/common/protocol"
)

// DefaultDiscoveryPort is the loopback port local tooling probes to
// find a running agent
const DefaultDiscoveryPort = 9123

// Discovery is the agent's loopback-only HTTP endpoint. It lets local
// tooling identify the running agent and lets the person at the
// keyboard enter the unlock password. It binds 127.0.0.1 and rejects
// any non-loopback peer; beyond that it is unauthenticated, the trust
// boundary is physical access to the machine.
type Discovery struct {
	port   int
	locker *ScreenLocker
	info   func() protocol.DeviceInfo
	srv    *http.Server
}

// NewDiscovery creates the loopback endpoint. info is called per
// request so it reflects current registration state.
func NewDiscovery(port int, locker *ScreenLocker, info func() protocol.DeviceInfo) *Discovery {
	if port <= 0 {
		port = DefaultDiscoveryPort
	}
	return &Discovery{port: port, locker: locker, info: info}
}

// Start begins serving on 127.0.0.1 and returns once the listener is
// bound. Shut down with Stop.
func (d *Discovery) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/device-info", d.requireLoopback(d.handleDeviceInfo))
	mux.HandleFunc("/unlock", d.requireLoopback(d.handleUnlock))

	addr := fmt.Sprintf("127.0.0.1:%d", d.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind discovery endpoint on %s: %w", addr, err)
	}

	d.srv = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := d.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logError("Discovery endpoint failed", "error", err)
		}
	}()

	logInfo("Discovery endpoint listening", "addr", addr)
	return nil
}

// Stop shuts the endpoint down
func (d *Discovery) Stop(ctx context.Context) error {
	if d.srv == nil {
		return nil
	}
	return d.srv.Shutdown(ctx)
}

// requireLoopback rejects requests whose peer is not a loopback
// address. The bind address already restricts this; the check guards
// against misconfigured port forwards.
func (d *Discovery) requireLoopback(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil || !net.ParseIP(host).IsLoopback() {
			logWarn("Rejected non-loopback discovery request", "remote_addr", r.RemoteAddr)
			writeJSONError(w, http.StatusForbidden, "loopback only")
			return
		}
		next(w, r)
	}
}

func (d *Discovery) handleDeviceInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, d.info())
}

// UnlockRequest is the local password entry payload
type UnlockRequest struct {
	Password string `json:"password"`
}

// UnlockResponse reports whether the lock disengaged
type UnlockResponse struct {
	Unlocked bool   `json:"unlocked"`
	Message  string `json:"message,omitempty"`
}

func (d *Discovery) handleUnlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req UnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !d.locker.TryUnlock(req.Password) {
		writeJSON(w, http.StatusUnauthorized, UnlockResponse{Unlocked: false, Message: d.locker.Message()})
		return
	}
	writeJSON(w, http.StatusOK, UnlockResponse{Unlocked: true})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logDebug("Failed to encode response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, protocol.ErrorResponse{Error: msg})
}
