package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lockwatch/common/protocol"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func registerTestDevice(t *testing.T, store *SQLiteStore, fingerprint, hostname string) *Device {
	t.Helper()
	device, created, err := store.RegisterDevice(context.Background(), &protocol.RegisterRequest{
		FingerprintHash: fingerprint,
		Hostname:        hostname,
		OS:              protocol.OSInfo{Family: "linux", Version: "6.8"},
		Hardware:        protocol.HardwareInfo{SystemSerial: "SN12345678XYZ"},
		AgentVersion:    "1.0.0",
	})
	require.NoError(t, err)
	require.True(t, created)
	return device
}

func TestRegisterDeviceCreatesUnowned(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	device := registerTestDevice(t, store, "abc123", "laptop-01")

	assert.False(t, device.Owned())
	assert.Equal(t, protocol.StatusActive, device.Status)
	assert.Equal(t, "laptop-01", device.Hostname)
	assert.Contains(t, device.DeviceID, "laptop-01")

	fetched, err := store.GetDevice(ctx, device.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, "abc123", fetched.FingerprintHash)
}

func TestRegisterDeviceIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := registerTestDevice(t, store, "fp-same", "laptop-01")

	// Same fingerprint registers again (reboot): same device_id, no duplicate
	second, created, err := store.RegisterDevice(ctx, &protocol.RegisterRequest{
		FingerprintHash: "fp-same",
		Hostname:        "laptop-01",
		AgentVersion:    "1.0.1",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.DeviceID, second.DeviceID)

	devices, err := store.ListDevices(ctx, "")
	require.NoError(t, err)
	assert.Len(t, devices, 1)
	assert.Equal(t, "1.0.1", devices[0].AgentVersion, "re-registration refreshes metadata")
}

func TestDeviceIDCollisionGetsSuffix(t *testing.T) {
	store := newTestStore(t)

	// Same hostname and serial prefix, different fingerprints
	a := registerTestDevice(t, store, "fp-a", "laptop-01")
	b := registerTestDevice(t, store, "fp-b", "laptop-01")

	assert.NotEqual(t, a.DeviceID, b.DeviceID)
	assert.Contains(t, b.DeviceID, a.DeviceID)
}

func TestDeviceIDFallbackWithoutSerial(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	device, created, err := store.RegisterDevice(ctx, &protocol.RegisterRequest{
		FingerprintHash: "0123456789abcdef0123456789abcdef",
	})
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, "device-0123456789abcdef", device.DeviceID)
}

func TestRegisterRequiresFingerprint(t *testing.T) {
	store := newTestStore(t)
	_, _, err := store.RegisterDevice(context.Background(), &protocol.RegisterRequest{Hostname: "x"})
	assert.Error(t, err)
}

func TestLinkDevice(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	device := registerTestDevice(t, store, "fp-1", "laptop-01")

	linked, err := store.LinkDevice(ctx, device.DeviceID, "", "owner-1")
	require.NoError(t, err)
	require.True(t, linked.Owned())
	assert.Equal(t, "owner-1", *linked.OwnerID)

	// Linking an owned device fails, ownership is never reassigned
	_, err = store.LinkDevice(ctx, device.DeviceID, "", "owner-2")
	assert.ErrorIs(t, err, ErrDeviceOwned)

	current, err := store.GetDevice(ctx, device.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", *current.OwnerID)
}

func TestLinkDeviceByFingerprint(t *testing.T) {
	store := newTestStore(t)
	device := registerTestDevice(t, store, "fp-link", "laptop-01")

	linked, err := store.LinkDevice(context.Background(), "", "fp-link", "owner-1")
	require.NoError(t, err)
	assert.Equal(t, device.DeviceID, linked.DeviceID)
}

func TestLinkUnknownDevice(t *testing.T) {
	store := newTestStore(t)
	_, err := store.LinkDevice(context.Background(), "nope", "", "owner-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetLockCommand(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	device := registerTestDevice(t, store, "fp-1", "laptop-01")

	require.NoError(t, store.SetLockCommand(ctx, device.DeviceID, "Secret123", "Return me"))

	current, err := store.GetDevice(ctx, device.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusLocked, current.Status)
	assert.Equal(t, "Secret123", current.UnlockPassword)
	assert.Equal(t, "Return me", current.LockMessage)

	state := current.State()
	assert.Equal(t, protocol.StatusLocked, state.Status)
	assert.Equal(t, "Secret123", state.UnlockPassword)
}

func TestPendingMessageAck(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	device := registerTestDevice(t, store, "fp-1", "laptop-01")

	require.NoError(t, store.SetPendingMessage(ctx, device.DeviceID, "msg-1", "hello"))

	current, err := store.GetDevice(ctx, device.DeviceID)
	require.NoError(t, err)
	require.NotNil(t, current.State().PendingMessage)
	assert.Equal(t, "hello", current.State().PendingMessage.Text)

	// Ack with a stale id leaves the message pending
	assert.ErrorIs(t, store.AckPendingMessage(ctx, device.DeviceID, "msg-0"), ErrNotFound)

	require.NoError(t, store.AckPendingMessage(ctx, device.DeviceID, "msg-1"))
	current, err = store.GetDevice(ctx, device.DeviceID)
	require.NoError(t, err)
	assert.Nil(t, current.State().PendingMessage)
}

func TestSetGeofence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	device := registerTestDevice(t, store, "fp-1", "laptop-01")

	lat, lng := 51.5, -0.12
	cfg := protocol.GeofenceConfig{
		Enabled:                true,
		Mode:                   protocol.GeofenceModeWiFi,
		WiFiSSID:               "HomeNet",
		SignalThresholdPercent: 40,
		CenterLat:              &lat,
		CenterLng:              &lng,
		RadiusM:                150,
	}
	require.NoError(t, store.SetGeofence(ctx, device.DeviceID, cfg))

	current, err := store.GetDevice(ctx, device.DeviceID)
	require.NoError(t, err)
	assert.True(t, current.Geofence.Enabled)
	assert.Equal(t, "HomeNet", current.Geofence.WiFiSSID)
	assert.Equal(t, 40, current.Geofence.SignalThresholdPercent)
	assert.Equal(t, 150.0, current.Geofence.RadiusM)
	require.NotNil(t, current.Geofence.CenterLat)
	assert.Equal(t, 51.5, *current.Geofence.CenterLat)
}

func TestApplyStatusReport(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	device := registerTestDevice(t, store, "fp-1", "laptop-01")

	lat, lng := 48.85, 2.35
	battery := 73
	require.NoError(t, store.ApplyStatusReport(ctx, device.DeviceID, &protocol.StatusReport{
		Lat:            &lat,
		Lng:            &lng,
		WiFiSSID:       "CafeWiFi",
		BatteryPercent: &battery,
	}))

	current, err := store.GetDevice(ctx, device.DeviceID)
	require.NoError(t, err)
	require.NotNil(t, current.LastLat)
	assert.Equal(t, 48.85, *current.LastLat)
	assert.Equal(t, "CafeWiFi", current.CurrentWiFiSSID)
	require.NotNil(t, current.BatteryPercent)
	assert.Equal(t, 73, *current.BatteryPercent)

	// A report without location keeps the previous fix
	require.NoError(t, store.ApplyStatusReport(ctx, device.DeviceID, &protocol.StatusReport{WiFiSSID: ""}))
	current, err = store.GetDevice(ctx, device.DeviceID)
	require.NoError(t, err)
	require.NotNil(t, current.LastLat)
	assert.Equal(t, 48.85, *current.LastLat)
}

func TestStatusReportKeepsLastKnownSSID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	device := registerTestDevice(t, store, "fp-1", "laptop-01")

	require.NoError(t, store.ApplyStatusReport(ctx, device.DeviceID, &protocol.StatusReport{WiFiSSID: "HomeNet"}))

	// A device out of WiFi range reports an empty SSID; the last
	// known network must survive it
	require.NoError(t, store.ApplyStatusReport(ctx, device.DeviceID, &protocol.StatusReport{}))

	current, err := store.GetDevice(ctx, device.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, "HomeNet", current.CurrentWiFiSSID)

	// A new network replaces the old one
	require.NoError(t, store.ApplyStatusReport(ctx, device.DeviceID, &protocol.StatusReport{WiFiSSID: "CafeWiFi"}))
	current, err = store.GetDevice(ctx, device.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, "CafeWiFi", current.CurrentWiFiSSID)
}

func TestApprovedFoldersReplace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	device := registerTestDevice(t, store, "fp-1", "laptop-01")

	require.NoError(t, store.ReplaceApprovedFolders(ctx, device.DeviceID, []string{"/data/secrets", "/home/user/docs"}))

	paths, err := store.GetApprovedFolders(ctx, device.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, []string{"/data/secrets", "/home/user/docs"}, paths)

	// Replacement is total, not additive
	require.NoError(t, store.ReplaceApprovedFolders(ctx, device.DeviceID, []string{"/data/secrets"}))
	paths, err = store.GetApprovedFolders(ctx, device.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, []string{"/data/secrets"}, paths)
}

func TestCreateWipeOperation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	device := registerTestDevice(t, store, "fp-1", "laptop-01")
	require.NoError(t, store.ReplaceApprovedFolders(ctx, device.DeviceID, []string{"/data/secrets"}))

	op, err := store.CreateWipeOperation(ctx, device.DeviceID, []string{"/data/secrets"})
	require.NoError(t, err)
	assert.Equal(t, protocol.WipePending, op.Status)
	assert.NotEmpty(t, op.OperationID)
	assert.Equal(t, []string{"/data/secrets"}, op.RequestedPaths)
}

func TestWipeConflictWhileActive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	device := registerTestDevice(t, store, "fp-1", "laptop-01")
	require.NoError(t, store.ReplaceApprovedFolders(ctx, device.DeviceID, []string{"/data/secrets"}))

	op, err := store.CreateWipeOperation(ctx, device.DeviceID, []string{"/data/secrets"})
	require.NoError(t, err)

	// Pending blocks a second trigger
	_, err = store.CreateWipeOperation(ctx, device.DeviceID, []string{"/data/secrets"})
	assert.ErrorIs(t, err, ErrWipeConflict)

	// In progress still blocks
	require.NoError(t, store.UpdateWipeStatus(ctx, &protocol.WipeStatusUpdate{
		OperationID: op.OperationID, Status: protocol.WipeInProgress, TotalFiles: 10, FilesDeleted: 2,
	}))
	_, err = store.CreateWipeOperation(ctx, device.DeviceID, []string{"/data/secrets"})
	assert.ErrorIs(t, err, ErrWipeConflict)

	// Terminal status unblocks
	require.NoError(t, store.UpdateWipeStatus(ctx, &protocol.WipeStatusUpdate{
		OperationID: op.OperationID, Status: protocol.WipeCompleted, TotalFiles: 10, FilesDeleted: 10,
	}))
	_, err = store.CreateWipeOperation(ctx, device.DeviceID, []string{"/data/secrets"})
	assert.NoError(t, err)
}

func TestWipeRequiresApprovedFolders(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	device := registerTestDevice(t, store, "fp-1", "laptop-01")

	_, err := store.CreateWipeOperation(ctx, device.DeviceID, []string{"/data/secrets"})
	assert.ErrorIs(t, err, ErrNoApprovedFolders)
}

func TestWipeScreensUnapprovedTriggers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	device := registerTestDevice(t, store, "fp-1", "laptop-01")
	require.NoError(t, store.ReplaceApprovedFolders(ctx, device.DeviceID, []string{"/data/secrets"}))

	// No requested path under an approved folder: rejected outright
	_, err := store.CreateWipeOperation(ctx, device.DeviceID, []string{"/etc", "/home/user"})
	assert.ErrorIs(t, err, ErrPathNotApproved)

	// A mixed list goes through; the agent skips the bad path itself
	op, err := store.CreateWipeOperation(ctx, device.DeviceID, []string{"/data/secrets/tax", "/etc"})
	require.NoError(t, err)
	assert.Equal(t, protocol.WipePending, op.Status)
}

func TestWipeProgress(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	device := registerTestDevice(t, store, "fp-1", "laptop-01")
	require.NoError(t, store.ReplaceApprovedFolders(ctx, device.DeviceID, []string{"/data/secrets"}))

	op, err := store.CreateWipeOperation(ctx, device.DeviceID, []string{"/data/secrets"})
	require.NoError(t, err)

	require.NoError(t, store.UpdateWipeStatus(ctx, &protocol.WipeStatusUpdate{
		OperationID: op.OperationID, Status: protocol.WipeInProgress, TotalFiles: 200, FilesDeleted: 50,
	}))

	current, err := store.GetWipeOperation(ctx, op.OperationID)
	require.NoError(t, err)
	assert.Equal(t, 200, current.TotalFiles)
	assert.Equal(t, 50, current.FilesDeleted)
	assert.InDelta(t, 25.0, current.ProgressPercentage(), 0.01)

	// Pending endpoint only surfaces pending operations
	_, err = store.GetPendingWipeOperation(ctx, device.DeviceID)
	assert.ErrorIs(t, err, ErrNotFound)

	latest, err := store.GetLatestWipeOperation(ctx, device.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, op.OperationID, latest.OperationID)
}

func TestWipeFailureKeepsPartialProgress(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	device := registerTestDevice(t, store, "fp-1", "laptop-01")
	require.NoError(t, store.ReplaceApprovedFolders(ctx, device.DeviceID, []string{"/data/secrets"}))

	op, err := store.CreateWipeOperation(ctx, device.DeviceID, []string{"/data/secrets"})
	require.NoError(t, err)

	require.NoError(t, store.UpdateWipeStatus(ctx, &protocol.WipeStatusUpdate{
		OperationID:  op.OperationID,
		Status:       protocol.WipeFailed,
		TotalFiles:   100,
		FilesDeleted: 42,
		ErrorMessage: "permission denied: /data/secrets/locked.bin",
	}))

	current, err := store.GetWipeOperation(ctx, op.OperationID)
	require.NoError(t, err)
	assert.Equal(t, protocol.WipeFailed, current.Status)
	assert.Equal(t, 42, current.FilesDeleted)
	assert.Contains(t, current.ErrorMessage, "permission denied")
}

func TestBrowseRequestLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	device := registerTestDevice(t, store, "fp-1", "laptop-01")

	req, err := store.CreateBrowseRequest(ctx, device.DeviceID, "/data")
	require.NoError(t, err)
	assert.True(t, req.Pending)

	pending, err := store.GetPendingBrowseRequests(ctx, device.DeviceID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "/data", pending[0].Path)

	require.NoError(t, store.ResolveBrowseRequest(ctx, &protocol.BrowseResult{
		RequestID: req.RequestID,
		DeviceID:  device.DeviceID,
		Path:      "/data",
		Items: []protocol.BrowseItem{
			{Name: "secrets", Path: "/data/secrets", IsDir: true},
			{Name: "notes.txt", Path: "/data/notes.txt", SizeBytes: 1024},
		},
	}))

	resolved, err := store.GetBrowseRequest(ctx, device.DeviceID, "/data")
	require.NoError(t, err)
	assert.False(t, resolved.Pending)
	require.Len(t, resolved.Items, 2)
	assert.Equal(t, "secrets", resolved.Items[0].Name)
	assert.NotNil(t, resolved.ResolvedAt)

	pending, err = store.GetPendingBrowseRequests(ctx, device.DeviceID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestBrowseRequestSupersedesPending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	device := registerTestDevice(t, store, "fp-1", "laptop-01")

	first, err := store.CreateBrowseRequest(ctx, device.DeviceID, "/data")
	require.NoError(t, err)
	second, err := store.CreateBrowseRequest(ctx, device.DeviceID, "/data")
	require.NoError(t, err)
	assert.NotEqual(t, first.RequestID, second.RequestID)

	pending, err := store.GetPendingBrowseRequests(ctx, device.DeviceID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.RequestID, pending[0].RequestID)
}

func TestExpireBrowseRequests(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	device := registerTestDevice(t, store, "fp-1", "laptop-01")

	_, err := store.CreateBrowseRequest(ctx, device.DeviceID, "/data")
	require.NoError(t, err)

	// Nothing is old enough yet
	n, err := store.ExpireBrowseRequests(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Everything older than "now minus negative" is expired
	n, err = store.ExpireBrowseRequests(ctx, -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestActivityLog(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	device := registerTestDevice(t, store, "fp-1", "laptop-01")

	require.NoError(t, store.AddActivity(ctx, device.DeviceID, "lock", "owner triggered lock"))
	require.NoError(t, store.AddActivity(ctx, device.DeviceID, "alarm", ""))

	entries, err := store.ListActivity(ctx, device.DeviceID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "alarm", entries[0].Action, "newest first")
	assert.Equal(t, "lock", entries[1].Action)
}

func TestDeleteDeviceCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	device := registerTestDevice(t, store, "fp-1", "laptop-01")
	require.NoError(t, store.ReplaceApprovedFolders(ctx, device.DeviceID, []string{"/data/secrets"}))

	require.NoError(t, store.DeleteDevice(ctx, device.DeviceID))

	_, err := store.GetDevice(ctx, device.DeviceID)
	assert.ErrorIs(t, err, ErrNotFound)

	paths, err := store.GetApprovedFolders(ctx, device.DeviceID)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestUpdateDeviceStatusValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	device := registerTestDevice(t, store, "fp-1", "laptop-01")

	assert.Error(t, store.UpdateDeviceStatus(ctx, device.DeviceID, "exploded"))
	assert.NoError(t, store.UpdateDeviceStatus(ctx, device.DeviceID, protocol.StatusAlarm))
	assert.ErrorIs(t, store.UpdateDeviceStatus(ctx, "missing-device", protocol.StatusAlarm), ErrNotFound)
}
