package agent

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lockwatch/common/protocol"
)

func newTestDiscovery(t *testing.T, locker *ScreenLocker) *Discovery {
	t.Helper()
	return NewDiscovery(0, locker, func() protocol.DeviceInfo {
		return protocol.DeviceInfo{
			DeviceID:        "laptop-abc123",
			FingerprintHash: "deadbeef",
			Registered:      true,
			Status:          protocol.StatusActive,
		}
	})
}

func TestDiscoveryDeviceInfo(t *testing.T) {
	d := newTestDiscovery(t, NewScreenLocker())

	req := httptest.NewRequest(http.MethodGet, "/device-info", nil)
	req.RemoteAddr = "127.0.0.1:54321"
	rec := httptest.NewRecorder()
	d.requireLoopback(d.handleDeviceInfo)(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var info protocol.DeviceInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, "laptop-abc123", info.DeviceID)
	assert.True(t, info.Registered)
}

func TestDiscoveryRejectsNonLoopback(t *testing.T) {
	d := newTestDiscovery(t, NewScreenLocker())

	req := httptest.NewRequest(http.MethodGet, "/device-info", nil)
	req.RemoteAddr = "192.168.1.50:44444"
	rec := httptest.NewRecorder()
	d.requireLoopback(d.handleDeviceInfo)(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDiscoveryUnlockFlow(t *testing.T) {
	locker := &ScreenLocker{lockSession: func() error { return nil }}
	require.NoError(t, locker.Engage("Secret1", "return to owner"))
	d := newTestDiscovery(t, locker)

	post := func(password string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(UnlockRequest{Password: password})
		req := httptest.NewRequest(http.MethodPost, "/unlock", bytes.NewReader(body))
		req.RemoteAddr = "127.0.0.1:54321"
		rec := httptest.NewRecorder()
		d.requireLoopback(d.handleUnlock)(rec, req)
		return rec
	}

	// Wrong password stays locked and echoes the owner message
	rec := post("wrong")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var resp UnlockResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Unlocked)
	assert.Equal(t, "return to owner", resp.Message)
	assert.True(t, locker.Locked())

	rec = post("Secret1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, locker.Locked())
}

func TestDiscoveryUnlockBadBody(t *testing.T) {
	d := newTestDiscovery(t, NewScreenLocker())

	req := httptest.NewRequest(http.MethodPost, "/unlock", bytes.NewReader([]byte("{not json")))
	req.RemoteAddr = "127.0.0.1:54321"
	rec := httptest.NewRecorder()
	d.requireLoopback(d.handleUnlock)(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
