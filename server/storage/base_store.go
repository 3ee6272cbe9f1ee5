package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"lockwatch/common/protocol"
)

// BaseStore provides the store operations shared by the SQLite and
// PostgreSQL backends. Queries are written with SQLite-style ?
// placeholders and converted at runtime for Postgres.
type BaseStore struct {
	db      *sql.DB
	dialect Dialect
	dbPath  string // path or DSN, for diagnostics
}

// NewBaseStore creates a BaseStore over an open connection
func NewBaseStore(db *sql.DB, dialect Dialect, dbPath string) *BaseStore {
	return &BaseStore{db: db, dialect: dialect, dbPath: dbPath}
}

// DB returns the underlying database connection
func (s *BaseStore) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect in use
func (s *BaseStore) Dialect() Dialect {
	return s.dialect
}

// Close closes the database connection
func (s *BaseStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *BaseStore) query(q string) string {
	if s.dialect.Name() == "postgres" {
		return ConvertPlaceholders(q)
	}
	return q
}

func (s *BaseStore) execContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.query(query), args...)
}

func (s *BaseStore) queryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.query(query), args...)
}

func (s *BaseStore) queryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, s.query(query), args...)
}

// ============================================================================
// Devices
// ============================================================================

const deviceColumns = `id, device_id, fingerprint_hash, owner_id, hostname, status, is_missing,
	last_seen, last_lat, last_lng, current_wifi_ssid, battery_percent,
	unlock_password, lock_message, pending_message_id, pending_message_text,
	geofence_enabled, geofence_mode, geofence_wifi_ssid, geofence_signal_threshold,
	geofence_center_lat, geofence_center_lng, geofence_radius_m,
	os_family, os_version, architecture, hardware_json, agent_version, registered_at`

func scanDevice(row interface{ Scan(...interface{}) error }) (*Device, error) {
	var d Device
	var ownerID, ssid, lockMsg, pendMsgID, pendMsgText sql.NullString
	var unlockPassword sql.NullString
	var lastLat, lastLng, centerLat, centerLng sql.NullFloat64
	var battery, signalThreshold sql.NullInt64
	var radiusM sql.NullFloat64
	var geofenceEnabled sql.NullBool
	var geofenceMode, geofenceSSID sql.NullString
	var osFamily, osVersion, arch, hardwareJSON, agentVersion sql.NullString

	err := row.Scan(
		&d.ID, &d.DeviceID, &d.FingerprintHash, &ownerID, &d.Hostname, &d.Status, &d.IsMissing,
		&d.LastSeen, &lastLat, &lastLng, &ssid, &battery,
		&unlockPassword, &lockMsg, &pendMsgID, &pendMsgText,
		&geofenceEnabled, &geofenceMode, &geofenceSSID, &signalThreshold,
		&centerLat, &centerLng, &radiusM,
		&osFamily, &osVersion, &arch, &hardwareJSON, &agentVersion, &d.RegisteredAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if ownerID.Valid && ownerID.String != "" {
		v := ownerID.String
		d.OwnerID = &v
	}
	if lastLat.Valid {
		v := lastLat.Float64
		d.LastLat = &v
	}
	if lastLng.Valid {
		v := lastLng.Float64
		d.LastLng = &v
	}
	if battery.Valid {
		v := int(battery.Int64)
		d.BatteryPercent = &v
	}
	d.CurrentWiFiSSID = ssid.String
	d.UnlockPassword = unlockPassword.String
	d.LockMessage = lockMsg.String
	d.PendingMessageID = pendMsgID.String
	d.PendingMessageText = pendMsgText.String

	d.Geofence.Enabled = geofenceEnabled.Bool
	d.Geofence.Mode = geofenceMode.String
	d.Geofence.WiFiSSID = geofenceSSID.String
	d.Geofence.SignalThresholdPercent = int(signalThreshold.Int64)
	if centerLat.Valid {
		v := centerLat.Float64
		d.Geofence.CenterLat = &v
	}
	if centerLng.Valid {
		v := centerLng.Float64
		d.Geofence.CenterLng = &v
	}
	d.Geofence.RadiusM = radiusM.Float64

	d.OSFamily = osFamily.String
	d.OSVersion = osVersion.String
	d.Architecture = arch.String
	d.HardwareJSON = hardwareJSON.String
	d.AgentVersion = agentVersion.String

	return &d, nil
}

// RegisterDevice implements the agent-first registration contract:
// look up by fingerprint and return the existing record, or create a
// new unowned device with a generated device_id. Safe to retry.
func (s *BaseStore) RegisterDevice(ctx context.Context, req *protocol.RegisterRequest) (*Device, bool, error) {
	if req.FingerprintHash == "" {
		return nil, false, fmt.Errorf("fingerprint_hash is required")
	}

	existing, err := s.GetDeviceByFingerprint(ctx, req.FingerprintHash)
	if err == nil {
		// Idempotent re-registration: refresh metadata and last_seen
		_, uerr := s.execContext(ctx, `
			UPDATE devices SET hostname = ?, os_family = ?, os_version = ?,
				architecture = ?, agent_version = ?, last_seen = `+s.dialect.CurrentTimestamp()+`
			WHERE device_id = ?`,
			req.Hostname, req.OS.Family, req.OS.Version, req.OS.Arch,
			req.AgentVersion, existing.DeviceID)
		if uerr != nil {
			logWarn("failed to refresh device metadata on re-registration", "device_id", existing.DeviceID, "error", uerr)
		}
		return existing, false, nil
	}
	if err != ErrNotFound {
		return nil, false, err
	}

	deviceID, err := s.generateDeviceID(ctx, req)
	if err != nil {
		return nil, false, err
	}

	hardwareJSON, err := json.Marshal(req.Hardware)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode hardware info: %w", err)
	}

	now := s.dialect.CurrentTimestamp()
	_, err = s.execContext(ctx, `
		INSERT INTO devices (
			device_id, fingerprint_hash, hostname, status, is_missing,
			last_seen, os_family, os_version, architecture, hardware_json,
			agent_version, registered_at
		) VALUES (?, ?, ?, ?, ?, `+now+`, ?, ?, ?, ?, ?, `+now+`)`,
		deviceID, req.FingerprintHash, req.Hostname, protocol.StatusActive, false,
		req.OS.Family, req.OS.Version, req.OS.Arch, string(hardwareJSON),
		req.AgentVersion)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create device: %w", err)
	}

	logInfo("Registered new device", "device_id", deviceID, "hostname", req.Hostname)

	device, err := s.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, false, err
	}
	return device, true, nil
}

// generateDeviceID derives a human-recognizable stable id from the
// hostname and a serial fragment, falling back to the fingerprint.
// Collisions get a numeric suffix.
func (s *BaseStore) generateDeviceID(ctx context.Context, req *protocol.RegisterRequest) (string, error) {
	var base string
	serial := req.Hardware.SystemSerial
	if serial == "" {
		serial = req.Hardware.MachineID
	}
	if req.Hostname != "" && serial != "" {
		frag := serial
		if len(frag) > 8 {
			frag = frag[:8]
		}
		base = sanitizeDeviceID(req.Hostname) + "-" + sanitizeDeviceID(frag)
	} else {
		frag := req.FingerprintHash
		if len(frag) > 16 {
			frag = frag[:16]
		}
		base = "device-" + frag
	}

	candidate := base
	for suffix := 2; ; suffix++ {
		var count int
		err := s.queryRowContext(ctx, `SELECT COUNT(*) FROM devices WHERE device_id = ?`, candidate).Scan(&count)
		if err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, suffix)
	}
}

func sanitizeDeviceID(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case r == ' ', r == '_', r == '.':
			b.WriteRune('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		out = "device"
	}
	return out
}

// GetDevice retrieves a device by its device_id
func (s *BaseStore) GetDevice(ctx context.Context, deviceID string) (*Device, error) {
	row := s.queryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE device_id = ?`, deviceID)
	return scanDevice(row)
}

// GetDeviceByFingerprint retrieves a device by its fingerprint hash
func (s *BaseStore) GetDeviceByFingerprint(ctx context.Context, fingerprintHash string) (*Device, error) {
	row := s.queryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE fingerprint_hash = ?`, fingerprintHash)
	return scanDevice(row)
}

// ListDevices returns devices, optionally filtered by owner
func (s *BaseStore) ListDevices(ctx context.Context, ownerID string) ([]*Device, error) {
	q := `SELECT ` + deviceColumns + ` FROM devices`
	var args []interface{}
	if ownerID != "" {
		q += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	q += ` ORDER BY last_seen DESC`

	rows, err := s.queryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// LinkDevice sets owner_id on an unowned device. Linking an already
// owned device fails with ErrDeviceOwned; ownership is never silently
// reassigned. The device may be identified by device_id or fingerprint.
func (s *BaseStore) LinkDevice(ctx context.Context, deviceID, fingerprintHash, ownerID string) (*Device, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner_id is required")
	}

	var device *Device
	var err error
	switch {
	case deviceID != "":
		device, err = s.GetDevice(ctx, deviceID)
	case fingerprintHash != "":
		device, err = s.GetDeviceByFingerprint(ctx, fingerprintHash)
	default:
		return nil, fmt.Errorf("device_id or fingerprint_hash is required")
	}
	if err != nil {
		return nil, err
	}

	if device.Owned() {
		return nil, ErrDeviceOwned
	}

	// Guard the unowned condition in the UPDATE itself so a concurrent
	// link cannot reassign ownership between the read and the write.
	res, err := s.execContext(ctx, `
		UPDATE devices SET owner_id = ?
		WHERE device_id = ? AND (owner_id IS NULL OR owner_id = '')`,
		ownerID, device.DeviceID)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrDeviceOwned
	}

	logInfo("Linked device to owner", "device_id", device.DeviceID, "owner_id", ownerID)
	return s.GetDevice(ctx, device.DeviceID)
}

// UpdateDeviceStatus sets the device status
func (s *BaseStore) UpdateDeviceStatus(ctx context.Context, deviceID, status string) error {
	if !protocol.ValidStatus(status) {
		return fmt.Errorf("invalid status: %s", status)
	}
	res, err := s.execContext(ctx, `UPDATE devices SET status = ? WHERE device_id = ?`, status, deviceID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// SetLockCommand stores the owner's lock parameters and moves the
// device to locked. The agent observes the transition on its next poll.
func (s *BaseStore) SetLockCommand(ctx context.Context, deviceID, password, message string) error {
	if password == "" {
		return fmt.Errorf("unlock password is required")
	}
	res, err := s.execContext(ctx, `
		UPDATE devices SET status = ?, unlock_password = ?, lock_message = ?
		WHERE device_id = ?`,
		protocol.StatusLocked, password, message, deviceID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// SetPendingMessage stores a one-shot message for the agent to display
func (s *BaseStore) SetPendingMessage(ctx context.Context, deviceID, messageID, text string) error {
	res, err := s.execContext(ctx, `
		UPDATE devices SET pending_message_id = ?, pending_message_text = ?
		WHERE device_id = ?`,
		messageID, text, deviceID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// AckPendingMessage clears the pending message, but only if the agent
// acknowledges the same message id that is currently pending
func (s *BaseStore) AckPendingMessage(ctx context.Context, deviceID, messageID string) error {
	res, err := s.execContext(ctx, `
		UPDATE devices SET pending_message_id = '', pending_message_text = ''
		WHERE device_id = ? AND pending_message_id = ?`,
		deviceID, messageID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// SetGeofence stores the owner's geofence configuration
func (s *BaseStore) SetGeofence(ctx context.Context, deviceID string, cfg protocol.GeofenceConfig) error {
	var centerLat, centerLng interface{}
	if cfg.CenterLat != nil {
		centerLat = *cfg.CenterLat
	}
	if cfg.CenterLng != nil {
		centerLng = *cfg.CenterLng
	}
	res, err := s.execContext(ctx, `
		UPDATE devices SET geofence_enabled = ?, geofence_mode = ?, geofence_wifi_ssid = ?,
			geofence_signal_threshold = ?, geofence_center_lat = ?, geofence_center_lng = ?,
			geofence_radius_m = ?
		WHERE device_id = ?`,
		cfg.Enabled, cfg.Mode, cfg.WiFiSSID,
		cfg.SignalThresholdPercent, centerLat, centerLng,
		cfg.RadiusM, deviceID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// SetMissing flags or unflags a device as missing
func (s *BaseStore) SetMissing(ctx context.Context, deviceID string, missing bool) error {
	status := protocol.StatusActive
	if missing {
		status = protocol.StatusMissing
	}
	res, err := s.execContext(ctx, `
		UPDATE devices SET is_missing = ?, status = ? WHERE device_id = ?`,
		missing, status, deviceID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// ApplyStatusReport folds agent telemetry into the device record
func (s *BaseStore) ApplyStatusReport(ctx context.Context, deviceID string, report *protocol.StatusReport) error {
	var lat, lng, battery interface{}
	if report.Lat != nil {
		lat = *report.Lat
	}
	if report.Lng != nil {
		lng = *report.Lng
	}
	if report.BatteryPercent != nil {
		battery = *report.BatteryPercent
	}

	res, err := s.execContext(ctx, `
		UPDATE devices SET last_seen = `+s.dialect.CurrentTimestamp()+`,
			last_lat = COALESCE(?, last_lat),
			last_lng = COALESCE(?, last_lng),
			current_wifi_ssid = CASE WHEN ? <> '' THEN ? ELSE current_wifi_ssid END,
			battery_percent = COALESCE(?, battery_percent),
			agent_version = CASE WHEN ? <> '' THEN ? ELSE agent_version END
		WHERE device_id = ?`,
		lat, lng, report.WiFiSSID, report.WiFiSSID, battery,
		report.AgentVersion, report.AgentVersion, deviceID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// DeleteDevice removes a device and its dependent records
func (s *BaseStore) DeleteDevice(ctx context.Context, deviceID string) error {
	res, err := s.execContext(ctx, `DELETE FROM devices WHERE device_id = ?`, deviceID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ============================================================================
// Approved folders
// ============================================================================

// ReplaceApprovedFolders replaces the server's copy of the device's
// wipe allowlist with the agent-synced set
func (s *BaseStore) ReplaceApprovedFolders(ctx context.Context, deviceID string, paths []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.query(`DELETE FROM approved_folders WHERE device_id = ?`), deviceID); err != nil {
		return err
	}
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			s.query(`INSERT INTO approved_folders (device_id, path) VALUES (?, ?)`),
			deviceID, path); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetApprovedFolders returns the device's approved paths
func (s *BaseStore) GetApprovedFolders(ctx context.Context, deviceID string) ([]string, error) {
	rows, err := s.queryContext(ctx,
		`SELECT path FROM approved_folders WHERE device_id = ? ORDER BY path`, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// ============================================================================
// Wipe operations
// ============================================================================

const wipeColumns = `id, operation_id, device_id, status, requested_paths,
	total_files, files_deleted, error_message, created_at, updated_at`

func scanWipe(row interface{ Scan(...interface{}) error }) (*WipeOperation, error) {
	var w WipeOperation
	var pathsJSON string
	var errMsg sql.NullString

	err := row.Scan(&w.ID, &w.OperationID, &w.DeviceID, &w.Status, &pathsJSON,
		&w.TotalFiles, &w.FilesDeleted, &errMsg, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if pathsJSON != "" {
		if err := json.Unmarshal([]byte(pathsJSON), &w.RequestedPaths); err != nil {
			return nil, fmt.Errorf("corrupt requested_paths for operation %s: %w", w.OperationID, err)
		}
	}
	w.ErrorMessage = errMsg.String
	return &w, nil
}

// CreateWipeOperation validates and records a new wipe. It rejects the
// trigger when another non-terminal operation exists for the device or
// when the device has no approved folders at all.
func (s *BaseStore) CreateWipeOperation(ctx context.Context, deviceID string, paths []string) (*WipeOperation, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("at least one path is required")
	}
	if _, err := s.GetDevice(ctx, deviceID); err != nil {
		return nil, err
	}

	approved, err := s.GetApprovedFolders(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if len(approved) == 0 {
		return nil, ErrNoApprovedFolders
	}

	// The server screens the trigger against its synced copy of the
	// allowlist and rejects an operation with no approved path at all.
	// Individual bad paths still go through: the agent re-validates
	// every path against its own copy and skips rejects loudly there.
	anyApproved := false
	for _, p := range paths {
		if withinApproved(p, approved) {
			anyApproved = true
			break
		}
	}
	if !anyApproved {
		return nil, ErrPathNotApproved
	}

	var active int
	err = s.queryRowContext(ctx, `
		SELECT COUNT(*) FROM wipe_operations
		WHERE device_id = ? AND status IN (?, ?)`,
		deviceID, protocol.WipePending, protocol.WipeInProgress).Scan(&active)
	if err != nil {
		return nil, err
	}
	if active > 0 {
		return nil, ErrWipeConflict
	}

	pathsJSON, err := json.Marshal(paths)
	if err != nil {
		return nil, err
	}

	operationID := uuid.NewString()
	now := s.dialect.CurrentTimestamp()
	_, err = s.execContext(ctx, `
		INSERT INTO wipe_operations (operation_id, device_id, status, requested_paths,
			total_files, files_deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, 0, `+now+`, `+now+`)`,
		operationID, deviceID, protocol.WipePending, string(pathsJSON))
	if err != nil {
		return nil, err
	}

	logInfo("Created wipe operation", "operation_id", operationID, "device_id", deviceID, "paths", len(paths))
	return s.GetWipeOperation(ctx, operationID)
}

// withinApproved reports whether path equals or sits under one of the
// approved folders, comparing normalized forward-slash forms
func withinApproved(path string, approved []string) bool {
	n := normalizeWipePath(path)
	if n == "" {
		return false
	}
	for _, folder := range approved {
		f := normalizeWipePath(folder)
		if f != "" && (n == f || strings.HasPrefix(n, f+"/")) {
			return true
		}
	}
	return false
}

func normalizeWipePath(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	p = strings.TrimRight(p, "/")
	if len(p) >= 2 && p[1] == ':' {
		p = strings.ToLower(p)
	}
	return p
}

// GetWipeOperation retrieves a wipe operation by id
func (s *BaseStore) GetWipeOperation(ctx context.Context, operationID string) (*WipeOperation, error) {
	row := s.queryRowContext(ctx,
		`SELECT `+wipeColumns+` FROM wipe_operations WHERE operation_id = ?`, operationID)
	return scanWipe(row)
}

// GetLatestWipeOperation returns the most recent operation for a device
func (s *BaseStore) GetLatestWipeOperation(ctx context.Context, deviceID string) (*WipeOperation, error) {
	row := s.queryRowContext(ctx, `
		SELECT `+wipeColumns+` FROM wipe_operations
		WHERE device_id = ? ORDER BY id DESC `+s.dialect.LimitOffset(1, 0), deviceID)
	return scanWipe(row)
}

// GetPendingWipeOperation returns the operation awaiting agent pickup,
// if any
func (s *BaseStore) GetPendingWipeOperation(ctx context.Context, deviceID string) (*WipeOperation, error) {
	row := s.queryRowContext(ctx, `
		SELECT `+wipeColumns+` FROM wipe_operations
		WHERE device_id = ? AND status = ? ORDER BY id DESC `+s.dialect.LimitOffset(1, 0),
		deviceID, protocol.WipePending)
	return scanWipe(row)
}

// UpdateWipeStatus applies an agent progress or completion report
func (s *BaseStore) UpdateWipeStatus(ctx context.Context, update *protocol.WipeStatusUpdate) error {
	switch update.Status {
	case protocol.WipePending, protocol.WipeInProgress, protocol.WipeCompleted, protocol.WipeFailed:
	default:
		return fmt.Errorf("invalid wipe status: %s", update.Status)
	}

	res, err := s.execContext(ctx, `
		UPDATE wipe_operations SET status = ?, total_files = ?, files_deleted = ?,
			error_message = ?, updated_at = `+s.dialect.CurrentTimestamp()+`
		WHERE operation_id = ?`,
		update.Status, update.TotalFiles, update.FilesDeleted,
		update.ErrorMessage, update.OperationID)
	if err != nil {
		return err
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	if protocol.WipeTerminal(update.Status) {
		logInfo("Wipe operation finished", "operation_id", update.OperationID,
			"status", update.Status, "files_deleted", update.FilesDeleted)
	}
	return nil
}

// ============================================================================
// Browse requests
// ============================================================================

const browseColumns = `id, request_id, device_id, path, pending, items_json, error_message, created_at, resolved_at`

func scanBrowse(row interface{ Scan(...interface{}) error }) (*BrowseRequest, error) {
	var b BrowseRequest
	var itemsJSON, errMsg sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(&b.ID, &b.RequestID, &b.DeviceID, &b.Path, &b.Pending,
		&itemsJSON, &errMsg, &b.CreatedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if itemsJSON.Valid && itemsJSON.String != "" {
		if err := json.Unmarshal([]byte(itemsJSON.String), &b.Items); err != nil {
			return nil, fmt.Errorf("corrupt items for browse request %s: %w", b.RequestID, err)
		}
	}
	b.Error = errMsg.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		b.ResolvedAt = &t
	}
	return &b, nil
}

// CreateBrowseRequest records a pending directory-listing request.
// Re-requesting the same path supersedes any earlier pending request
// for it.
func (s *BaseStore) CreateBrowseRequest(ctx context.Context, deviceID, path string) (*BrowseRequest, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if _, err := s.GetDevice(ctx, deviceID); err != nil {
		return nil, err
	}

	// Supersede older pending requests for the same path
	if _, err := s.execContext(ctx, `
		DELETE FROM browse_requests WHERE device_id = ? AND path = ? AND pending = ?`,
		deviceID, path, true); err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	_, err := s.execContext(ctx, `
		INSERT INTO browse_requests (request_id, device_id, path, pending, created_at)
		VALUES (?, ?, ?, ?, `+s.dialect.CurrentTimestamp()+`)`,
		requestID, deviceID, path, true)
	if err != nil {
		return nil, err
	}

	return s.getBrowseByID(ctx, requestID)
}

func (s *BaseStore) getBrowseByID(ctx context.Context, requestID string) (*BrowseRequest, error) {
	row := s.queryRowContext(ctx,
		`SELECT `+browseColumns+` FROM browse_requests WHERE request_id = ?`, requestID)
	return scanBrowse(row)
}

// GetPendingBrowseRequests returns unresolved requests for a device,
// oldest first
func (s *BaseStore) GetPendingBrowseRequests(ctx context.Context, deviceID string) ([]*BrowseRequest, error) {
	rows, err := s.queryContext(ctx, `
		SELECT `+browseColumns+` FROM browse_requests
		WHERE device_id = ? AND pending = ? ORDER BY id ASC`,
		deviceID, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []*BrowseRequest
	for rows.Next() {
		b, err := scanBrowse(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, b)
	}
	return reqs, rows.Err()
}

// ResolveBrowseRequest stores the agent's listing and clears pending
func (s *BaseStore) ResolveBrowseRequest(ctx context.Context, result *protocol.BrowseResult) error {
	itemsJSON, err := json.Marshal(result.Items)
	if err != nil {
		return err
	}

	res, err := s.execContext(ctx, `
		UPDATE browse_requests SET pending = ?, items_json = ?, error_message = ?,
			resolved_at = `+s.dialect.CurrentTimestamp()+`
		WHERE request_id = ?`,
		false, string(itemsJSON), result.Error, result.RequestID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// GetBrowseRequest returns the latest request for (device, path)
func (s *BaseStore) GetBrowseRequest(ctx context.Context, deviceID, path string) (*BrowseRequest, error) {
	row := s.queryRowContext(ctx, `
		SELECT `+browseColumns+` FROM browse_requests
		WHERE device_id = ? AND path = ? ORDER BY id DESC `+s.dialect.LimitOffset(1, 0),
		deviceID, path)
	return scanBrowse(row)
}

// ExpireBrowseRequests deletes requests older than the given age.
// Browse requests are ephemeral; the dashboard stops polling after its
// own bounded retry window.
func (s *BaseStore) ExpireBrowseRequests(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC()
	res, err := s.execContext(ctx, `DELETE FROM browse_requests WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ============================================================================
// Activity log
// ============================================================================

// AddActivity appends an entry to the device's audit trail
func (s *BaseStore) AddActivity(ctx context.Context, deviceID, action, details string) error {
	_, err := s.execContext(ctx, `
		INSERT INTO activity_log (device_id, action, details, created_at)
		VALUES (?, ?, ?, `+s.dialect.CurrentTimestamp()+`)`,
		deviceID, action, details)
	return err
}

// ListActivity returns recent activity for a device, newest first
func (s *BaseStore) ListActivity(ctx context.Context, deviceID string, limit int) ([]*ActivityEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.queryContext(ctx, `
		SELECT id, device_id, action, details, created_at FROM activity_log
		WHERE device_id = ? ORDER BY id DESC `+s.dialect.LimitOffset(limit, 0),
		deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*ActivityEntry
	for rows.Next() {
		var e ActivityEntry
		var details sql.NullString
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.Action, &details, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Details = details.String
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
