package agent

import (
	"lockwatch/common/geo"
	"lockwatch/common/protocol"
)

// Observation is one sampling cycle's worth of geofence inputs
type Observation struct {
	WiFi *WiFiSample
	Lat  *float64
	Lng  *float64
}

// GeofenceMonitor evaluates observations against the owner-configured
// safe zone and raises a breach exactly once per breach episode.
// Signal attenuation is the detection proxy for "device physically
// moved away"; false positives from normal roaming are an accepted
// trade-off of the heuristic.
type GeofenceMonitor struct {
	breached bool
}

// NewGeofenceMonitor creates a monitor with no active breach episode
func NewGeofenceMonitor() *GeofenceMonitor {
	return &GeofenceMonitor{}
}

// Evaluate checks one observation. It returns a BreachReport only on
// the first breached sample of an episode; while the breach persists
// subsequent samples return nil. The episode resets when the
// observation is back within bounds (or via Reset when the owner
// clears the alarm).
func (m *GeofenceMonitor) Evaluate(cfg protocol.GeofenceConfig, obs Observation) *protocol.BreachReport {
	if !cfg.Enabled {
		m.breached = false
		return nil
	}

	report := m.check(cfg, obs)
	if report == nil {
		m.breached = false
		return nil
	}
	if m.breached {
		return nil // still inside the same episode
	}
	m.breached = true
	return report
}

// Reset ends the current breach episode, e.g. after the owner clears
// the alarm while the device is still out of bounds
func (m *GeofenceMonitor) Reset() {
	m.breached = false
}

// Breached reports whether a breach episode is active
func (m *GeofenceMonitor) Breached() bool {
	return m.breached
}

func (m *GeofenceMonitor) check(cfg protocol.GeofenceConfig, obs Observation) *protocol.BreachReport {
	switch cfg.Mode {
	case protocol.GeofenceModeGPS:
		return checkGPS(cfg, obs)
	default:
		// WiFi is the default mode
		return checkWiFi(cfg, obs)
	}
}

func checkWiFi(cfg protocol.GeofenceConfig, obs Observation) *protocol.BreachReport {
	if obs.WiFi == nil {
		// No sample this cycle, no decision
		return nil
	}

	if !obs.WiFi.Connected {
		return &protocol.BreachReport{Reason: protocol.BreachDisconnected}
	}
	if cfg.WiFiSSID != "" && obs.WiFi.SSID != cfg.WiFiSSID {
		return &protocol.BreachReport{
			Reason:       protocol.BreachSSIDMismatch,
			ObservedSSID: obs.WiFi.SSID,
		}
	}
	if cfg.SignalThresholdPercent > 0 && obs.WiFi.SignalPercent < cfg.SignalThresholdPercent {
		signal := obs.WiFi.SignalPercent
		return &protocol.BreachReport{
			Reason:        protocol.BreachSignalLow,
			ObservedSSID:  obs.WiFi.SSID,
			SignalPercent: &signal,
		}
	}
	return nil
}

func checkGPS(cfg protocol.GeofenceConfig, obs Observation) *protocol.BreachReport {
	if cfg.CenterLat == nil || cfg.CenterLng == nil || cfg.RadiusM <= 0 {
		return nil
	}
	if obs.Lat == nil || obs.Lng == nil {
		// No fix this cycle, no decision
		return nil
	}

	distance := geo.HaversineDistance(*cfg.CenterLat, *cfg.CenterLng, *obs.Lat, *obs.Lng)
	if distance > cfg.RadiusM {
		return &protocol.BreachReport{
			Reason:    protocol.BreachOutOfRadius,
			DistanceM: &distance,
		}
	}
	return nil
}
