package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lockwatch/common/protocol"
)

// ServerClient is the agent's HTTP client for the LockWatch server.
// The agent is always the initiator; the server never connects in.
type ServerClient struct {
	baseURL string
	http    *http.Client
}

// NewServerClient creates a client for the given server base URL
func NewServerClient(baseURL string, timeout time.Duration) *ServerClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ServerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// doJSON performs a request with an optional JSON body and decodes the
// response into out when non-nil. Non-2xx responses are returned as
// errors carrying the server's error message.
func (c *ServerClient) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp protocol.ErrorResponse
		if derr := json.NewDecoder(resp.Body).Decode(&errResp); derr == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// APIError is a non-2xx server response
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 server response
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// Register submits the fingerprint and metadata, returning the
// canonical device_id. Safe to call repeatedly.
func (c *ServerClient) Register(ctx context.Context, req *protocol.RegisterRequest) (*protocol.RegisterResponse, error) {
	var resp protocol.RegisterResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/agent/register", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetState fetches the canonical device state for one poll tick
func (c *ServerClient) GetState(ctx context.Context, deviceID string) (*protocol.DeviceState, error) {
	var state protocol.DeviceState
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/devices/"+deviceID+"/state", nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Report uploads telemetry, breach notices, and action results
func (c *ServerClient) Report(ctx context.Context, deviceID string, report *protocol.StatusReport) error {
	return c.doJSON(ctx, http.MethodPost, "/api/v1/devices/"+deviceID+"/report", report, nil)
}

// AckMessage marks a one-shot owner message as displayed
func (c *ServerClient) AckMessage(ctx context.Context, deviceID, messageID string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/v1/devices/"+deviceID+"/message_ack",
		&protocol.MessageAck{MessageID: messageID}, nil)
}

// SyncApprovedFolders uploads the owner-curated wipe allowlist
func (c *ServerClient) SyncApprovedFolders(ctx context.Context, deviceID string, paths []string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/v1/approved_folders/"+deviceID,
		&protocol.ApprovedFoldersSync{Paths: paths}, nil)
}

// GetPendingWipe returns the wipe operation awaiting pickup, or nil
// when there is none
func (c *ServerClient) GetPendingWipe(ctx context.Context, deviceID string) (*protocol.WipeOperationSnapshot, error) {
	var snap protocol.WipeOperationSnapshot
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/wipe/pending/"+deviceID, nil, &snap)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &snap, nil
}

// UpdateWipeStatus reports wipe progress or a terminal outcome
func (c *ServerClient) UpdateWipeStatus(ctx context.Context, update *protocol.WipeStatusUpdate) error {
	return c.doJSON(ctx, http.MethodPost, "/api/v1/wipe/update_status", update, nil)
}

// GetPendingBrowse returns unresolved directory-listing requests
func (c *ServerClient) GetPendingBrowse(ctx context.Context, deviceID string) ([]protocol.PendingBrowse, error) {
	var pending []protocol.PendingBrowse
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/wipe/browse_request/"+deviceID, nil, &pending); err != nil {
		return nil, err
	}
	return pending, nil
}

// PostBrowseResult posts a directory listing back to the server
func (c *ServerClient) PostBrowseResult(ctx context.Context, result *protocol.BrowseResult) error {
	return c.doJSON(ctx, http.MethodPost, "/api/v1/wipe/browse_result", result, nil)
}
