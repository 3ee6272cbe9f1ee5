package agent

import (
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// WiFiSample is one observation of the current wireless link
type WiFiSample struct {
	Connected     bool
	SSID          string
	SignalPercent int
}

// WiFiSampler reads the current WiFi association. Implementations are
// OS-specific; tests substitute their own.
type WiFiSampler interface {
	Sample() (WiFiSample, error)
}

// NewWiFiSampler returns the sampler for the host OS
func NewWiFiSampler() WiFiSampler {
	return &osWiFiSampler{}
}

type osWiFiSampler struct{}

func (s *osWiFiSampler) Sample() (WiFiSample, error) {
	switch runtime.GOOS {
	case "windows":
		out, err := exec.Command("netsh", "wlan", "show", "interfaces").Output()
		if err != nil {
			return WiFiSample{}, err
		}
		return parseNetshOutput(string(out)), nil
	case "darwin":
		out, err := exec.Command("/System/Library/PrivateFrameworks/Apple80211.framework/Versions/Current/Resources/airport", "-I").Output()
		if err != nil {
			return WiFiSample{}, err
		}
		return parseAirportOutput(string(out)), nil
	default:
		out, err := exec.Command("nmcli", "-t", "-f", "ACTIVE,SSID,SIGNAL", "dev", "wifi").Output()
		if err != nil {
			return WiFiSample{}, err
		}
		return parseNmcliOutput(string(out)), nil
	}
}

// parseNetshOutput reads `netsh wlan show interfaces` output
func parseNetshOutput(out string) WiFiSample {
	var sample WiFiSample
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := splitField(line, ":")
		if !ok {
			continue
		}
		switch key {
		case "State":
			sample.Connected = strings.EqualFold(value, "connected")
		case "SSID":
			sample.SSID = value
		case "Signal":
			sample.SignalPercent = parsePercent(value)
		}
	}
	return sample
}

// parseAirportOutput reads `airport -I` output. agrCtlRSSI is in dBm;
// map the usable range (-90..-30) onto 0..100.
func parseAirportOutput(out string) WiFiSample {
	var sample WiFiSample
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := splitField(line, ":")
		if !ok {
			continue
		}
		switch key {
		case "SSID":
			sample.SSID = value
			sample.Connected = value != ""
		case "agrCtlRSSI":
			if rssi, err := strconv.Atoi(value); err == nil {
				sample.SignalPercent = rssiToPercent(rssi)
			}
		}
	}
	return sample
}

// parseNmcliOutput reads `nmcli -t -f ACTIVE,SSID,SIGNAL dev wifi`
// terse output, one "yes:MyNet:72" line per visible network
func parseNmcliOutput(out string) WiFiSample {
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(strings.TrimSpace(line), ":", 3)
		if len(parts) != 3 || parts[0] != "yes" {
			continue
		}
		return WiFiSample{
			Connected:     true,
			SSID:          parts[1],
			SignalPercent: parsePercent(parts[2]),
		}
	}
	return WiFiSample{}
}

func splitField(line, sep string) (key, value string, ok bool) {
	idx := strings.Index(line, sep)
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

func parsePercent(s string) int {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

func rssiToPercent(rssi int) int {
	if rssi >= -30 {
		return 100
	}
	if rssi <= -90 {
		return 0
	}
	return (rssi + 90) * 100 / 60
}
