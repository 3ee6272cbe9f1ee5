package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lockwatch/common/protocol"
)

func wifiConfig(ssid string, threshold int) protocol.GeofenceConfig {
	return protocol.GeofenceConfig{
		Enabled:                true,
		Mode:                   protocol.GeofenceModeWiFi,
		WiFiSSID:               ssid,
		SignalThresholdPercent: threshold,
	}
}

func wifiObs(connected bool, ssid string, signal int) Observation {
	return Observation{WiFi: &WiFiSample{Connected: connected, SSID: ssid, SignalPercent: signal}}
}

func TestGeofenceDisabledNeverBreaches(t *testing.T) {
	m := NewGeofenceMonitor()
	cfg := protocol.GeofenceConfig{Enabled: false}

	assert.Nil(t, m.Evaluate(cfg, wifiObs(false, "", 0)))
	assert.False(t, m.Breached())
}

func TestGeofenceSSIDMismatch(t *testing.T) {
	m := NewGeofenceMonitor()
	cfg := wifiConfig("HomeNet", 0)

	report := m.Evaluate(cfg, wifiObs(true, "CoffeeShop", 80))
	require.NotNil(t, report)
	assert.Equal(t, protocol.BreachSSIDMismatch, report.Reason)
	assert.Equal(t, "CoffeeShop", report.ObservedSSID)
}

func TestGeofenceSignalBelowThreshold(t *testing.T) {
	m := NewGeofenceMonitor()
	cfg := wifiConfig("HomeNet", 40)

	report := m.Evaluate(cfg, wifiObs(true, "HomeNet", 25))
	require.NotNil(t, report)
	assert.Equal(t, protocol.BreachSignalLow, report.Reason)
	require.NotNil(t, report.SignalPercent)
	assert.Equal(t, 25, *report.SignalPercent)
}

func TestGeofenceDisconnected(t *testing.T) {
	m := NewGeofenceMonitor()
	cfg := wifiConfig("HomeNet", 40)

	report := m.Evaluate(cfg, wifiObs(false, "", 0))
	require.NotNil(t, report)
	assert.Equal(t, protocol.BreachDisconnected, report.Reason)
}

func TestGeofenceSingleTriggerPerEpisode(t *testing.T) {
	m := NewGeofenceMonitor()
	cfg := wifiConfig("HomeNet", 40)

	// Continuous breach across 5 samples produces exactly one report
	var reports int
	for i := 0; i < 5; i++ {
		if m.Evaluate(cfg, wifiObs(true, "HomeNet", 10)) != nil {
			reports++
		}
	}
	assert.Equal(t, 1, reports)
	assert.True(t, m.Breached())
}

func TestGeofenceEpisodeResetsWhenBackInBounds(t *testing.T) {
	m := NewGeofenceMonitor()
	cfg := wifiConfig("HomeNet", 40)

	require.NotNil(t, m.Evaluate(cfg, wifiObs(true, "HomeNet", 10)))
	assert.Nil(t, m.Evaluate(cfg, wifiObs(true, "HomeNet", 10)))

	// Signal recovers: episode ends
	assert.Nil(t, m.Evaluate(cfg, wifiObs(true, "HomeNet", 80)))
	assert.False(t, m.Breached())

	// A new breach is a new episode
	require.NotNil(t, m.Evaluate(cfg, wifiObs(true, "HomeNet", 10)))
}

func TestGeofenceManualResetAllowsRetrigger(t *testing.T) {
	m := NewGeofenceMonitor()
	cfg := wifiConfig("HomeNet", 40)

	require.NotNil(t, m.Evaluate(cfg, wifiObs(true, "HomeNet", 10)))

	// Owner clears the alarm while still out of bounds
	m.Reset()

	// The continuing breach triggers again as a fresh episode
	require.NotNil(t, m.Evaluate(cfg, wifiObs(true, "HomeNet", 10)))
}

func TestGeofenceNoSampleNoDecision(t *testing.T) {
	m := NewGeofenceMonitor()
	cfg := wifiConfig("HomeNet", 40)

	assert.Nil(t, m.Evaluate(cfg, Observation{}))
	assert.False(t, m.Breached())
}

func TestGeofenceGPSOutOfRadius(t *testing.T) {
	m := NewGeofenceMonitor()
	lat, lng := 51.5074, -0.1278
	cfg := protocol.GeofenceConfig{
		Enabled:   true,
		Mode:      protocol.GeofenceModeGPS,
		CenterLat: &lat,
		CenterLng: &lng,
		RadiusM:   100,
	}

	// Inside the radius
	inLat, inLng := 51.5075, -0.1279
	assert.Nil(t, m.Evaluate(cfg, Observation{Lat: &inLat, Lng: &inLng}))

	// Paris is very much outside a 100 m radius around London
	outLat, outLng := 48.8566, 2.3522
	report := m.Evaluate(cfg, Observation{Lat: &outLat, Lng: &outLng})
	require.NotNil(t, report)
	assert.Equal(t, protocol.BreachOutOfRadius, report.Reason)
	require.NotNil(t, report.DistanceM)
	assert.Greater(t, *report.DistanceM, 300000.0)
}

func TestGeofenceGPSNoFixNoDecision(t *testing.T) {
	m := NewGeofenceMonitor()
	lat, lng := 51.5, -0.12
	cfg := protocol.GeofenceConfig{
		Enabled:   true,
		Mode:      protocol.GeofenceModeGPS,
		CenterLat: &lat,
		CenterLng: &lng,
		RadiusM:   100,
	}

	assert.Nil(t, m.Evaluate(cfg, Observation{}))
}

func TestParseNetshOutput(t *testing.T) {
	out := `
    Name                   : Wi-Fi
    State                  : connected
    SSID                   : HomeNet
    Signal                 : 87%
`
	sample := parseNetshOutput(out)
	assert.True(t, sample.Connected)
	assert.Equal(t, "HomeNet", sample.SSID)
	assert.Equal(t, 87, sample.SignalPercent)
}

func TestParseNmcliOutput(t *testing.T) {
	out := "no:OtherNet:90\nyes:HomeNet:72\nno:Neighbor:44\n"
	sample := parseNmcliOutput(out)
	assert.True(t, sample.Connected)
	assert.Equal(t, "HomeNet", sample.SSID)
	assert.Equal(t, 72, sample.SignalPercent)
}

func TestParseNmcliOutputDisconnected(t *testing.T) {
	sample := parseNmcliOutput("no:OtherNet:90\n")
	assert.False(t, sample.Connected)
}

func TestRSSIToPercent(t *testing.T) {
	assert.Equal(t, 100, rssiToPercent(-25))
	assert.Equal(t, 0, rssiToPercent(-95))
	assert.Equal(t, 50, rssiToPercent(-60))
}
