package agent

import (
	"context"
	"time"

	"lockwatch/common/protocol"
)

// serverAPI is the slice of ServerClient the poller drives, narrowed
// for testing
type serverAPI interface {
	GetState(ctx context.Context, deviceID string) (*protocol.DeviceState, error)
	Report(ctx context.Context, deviceID string, report *protocol.StatusReport) error
	AckMessage(ctx context.Context, deviceID, messageID string) error
	GetPendingWipe(ctx context.Context, deviceID string) (*protocol.WipeOperationSnapshot, error)
	wipeReporter
	browseClient
}

// Poller runs the agent's main loop: fetch the canonical device state,
// act on status transitions, pick up pending wipe and browse work, and
// upload telemetry. Every exchange is agent-initiated; a poll tick that
// fails is retried on the next tick, never escalated into a crash.
type Poller struct {
	client       serverAPI
	deviceID     string
	interval     time.Duration
	agentVersion string

	executor *Executor
	wiper    *WipeExecutor
	monitor  *GeofenceMonitor
	wifi     WiFiSampler

	// approvedFolders supplies the locally held wipe allowlist; it is
	// read fresh each tick so owner edits take effect without restart
	approvedFolders func() []string

	// locate supplies a GPS fix when the host has one; nil otherwise
	locate func() (lat, lng *float64)

	// battery supplies the charge percentage; nil when unavailable
	battery func() *int

	// onStatus observes applied status transitions, used to persist the
	// last status across restarts
	onStatus func(status string)

	lastStatus   string
	lastShownMsg string
	failures     int
}

// PollerOptions configures a Poller
type PollerOptions struct {
	DeviceID        string
	Interval        time.Duration
	AgentVersion    string
	Executor        *Executor
	Wiper           *WipeExecutor
	WiFi            WiFiSampler
	ApprovedFolders func() []string
	Locate          func() (lat, lng *float64)
	Battery         func() *int
	OnStatus        func(status string)
}

// NewPoller creates a poller. Interval defaults to 5 seconds.
func NewPoller(client serverAPI, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.ApprovedFolders == nil {
		opts.ApprovedFolders = func() []string { return nil }
	}
	return &Poller{
		client:          client,
		deviceID:        opts.DeviceID,
		interval:        opts.Interval,
		agentVersion:    opts.AgentVersion,
		executor:        opts.Executor,
		wiper:           opts.Wiper,
		monitor:         NewGeofenceMonitor(),
		wifi:            opts.WiFi,
		approvedFolders: opts.ApprovedFolders,
		locate:          opts.Locate,
		battery:         opts.Battery,
		onStatus:        opts.OnStatus,
		lastStatus:      protocol.StatusActive,
	}
}

// Run polls until the context is cancelled. The first tick fires
// immediately.
func (p *Poller) Run(ctx context.Context) {
	logInfo("Poller started", "device_id", p.deviceID, "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			logInfo("Poller stopped")
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs one full poll cycle
func (p *Poller) Tick(ctx context.Context) {
	state, err := p.client.GetState(ctx, p.deviceID)
	if err != nil {
		p.failures++
		// Log the first failure and then every 10th, the server being
		// down for a while is normal for a roaming laptop
		if p.failures == 1 || p.failures%10 == 0 {
			logWarn("Failed to fetch device state", "consecutive_failures", p.failures, "error", err)
		}
		return
	}
	if p.failures > 0 {
		logInfo("Server reachable again", "missed_polls", p.failures)
		p.failures = 0
	}

	actionResult := p.executor.HandleTransition(p.lastStatus, state)

	// Owner cleared the alarm: end the breach episode so a continuing
	// out-of-bounds condition can trigger again later
	if p.lastStatus == protocol.StatusAlarm && state.Status != protocol.StatusAlarm {
		p.monitor.Reset()
	}
	if state.Status != p.lastStatus && p.onStatus != nil {
		p.onStatus(state.Status)
	}
	p.lastStatus = state.Status

	if result := p.handlePendingMessage(ctx, state); result != nil && actionResult == nil {
		actionResult = result
	}

	if p.wiper != nil {
		if op, err := p.client.GetPendingWipe(ctx, p.deviceID); err != nil {
			logDebug("Failed to check for pending wipe", "error", err)
		} else if op != nil {
			p.wiper.Execute(ctx, op, p.approvedFolders())
		}
	}

	HandleBrowseRequests(ctx, p.client, p.deviceID, p.approvedFolders())

	report := p.buildReport(state, actionResult)
	if err := p.client.Report(ctx, p.deviceID, report); err != nil {
		logWarn("Failed to upload status report", "error", err)
	}
}

// handlePendingMessage shows a one-shot owner message and acknowledges
// it by id. The id check guards against re-showing when a previous ack
// was lost in transit.
func (p *Poller) handlePendingMessage(ctx context.Context, state *protocol.DeviceState) *protocol.ActionResult {
	msg := state.PendingMessage
	if msg == nil || msg.ID == "" || msg.ID == p.lastShownMsg {
		return nil
	}

	result := p.executor.ShowMessage(msg)
	p.lastShownMsg = msg.ID

	if err := p.client.AckMessage(ctx, p.deviceID, msg.ID); err != nil {
		logWarn("Failed to acknowledge message", "message_id", msg.ID, "error", err)
	}
	return result
}

func (p *Poller) buildReport(state *protocol.DeviceState, actionResult *protocol.ActionResult) *protocol.StatusReport {
	report := &protocol.StatusReport{
		AgentVersion: p.agentVersion,
		ActionResult: actionResult,
	}

	obs := Observation{}
	if p.wifi != nil {
		if sample, err := p.wifi.Sample(); err != nil {
			logDebug("WiFi sample failed", "error", err)
		} else {
			obs.WiFi = &sample
			report.WiFiSSID = sample.SSID
			signal := sample.SignalPercent
			report.SignalPercent = &signal
		}
	}
	if p.locate != nil {
		obs.Lat, obs.Lng = p.locate()
		report.Lat, report.Lng = obs.Lat, obs.Lng
	}
	if p.battery != nil {
		report.BatteryPercent = p.battery()
	}

	report.Breach = p.monitor.Evaluate(state.Geofence, obs)
	return report
}
