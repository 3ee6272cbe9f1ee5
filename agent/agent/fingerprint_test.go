package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lockwatch/common/protocol"
)

func TestFingerprintDeterministic(t *testing.T) {
	hw := protocol.HardwareInfo{
		MachineID:    "abcd-1234",
		SystemSerial: "SN001",
		MACAddresses: []string{"aa:bb:cc:dd:ee:ff", "11:22:33:44:55:66"},
	}

	first := Fingerprint(hw, "laptop-01", "linux")
	second := Fingerprint(hw, "laptop-01", "linux")
	assert.Equal(t, first, second)
	assert.Len(t, first, 64, "sha-256 hex digest")
}

func TestFingerprintMACOrderIrrelevant(t *testing.T) {
	a := protocol.HardwareInfo{
		MachineID:    "abcd-1234",
		MACAddresses: []string{"aa:bb:cc:dd:ee:ff", "11:22:33:44:55:66"},
	}
	b := protocol.HardwareInfo{
		MachineID:    "abcd-1234",
		MACAddresses: []string{"11:22:33:44:55:66", "aa:bb:cc:dd:ee:ff"},
	}

	assert.Equal(t, Fingerprint(a, "h", "linux"), Fingerprint(b, "h", "linux"))
}

func TestFingerprintIgnoresHostnameWithStrongIdentity(t *testing.T) {
	hw := protocol.HardwareInfo{SystemSerial: "SN001"}

	// Hostname changes must not alter a hardware-backed identity
	assert.Equal(t,
		Fingerprint(hw, "old-name", "linux"),
		Fingerprint(hw, "new-name", "linux"))
}

func TestFingerprintDistinguishesHardware(t *testing.T) {
	a := protocol.HardwareInfo{SystemSerial: "SN001"}
	b := protocol.HardwareInfo{SystemSerial: "SN002"}

	assert.NotEqual(t, Fingerprint(a, "h", "linux"), Fingerprint(b, "h", "linux"))
}

func TestFingerprintHostnameFallback(t *testing.T) {
	empty := protocol.HardwareInfo{}

	a := Fingerprint(empty, "laptop-01", "linux")
	b := Fingerprint(empty, "laptop-01", "linux")
	c := Fingerprint(empty, "laptop-02", "linux")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c, "fallback identity tracks the hostname")
}

func TestFingerprintOSFamilyAlwaysIncluded(t *testing.T) {
	hw := protocol.HardwareInfo{SystemSerial: "SN001"}

	assert.NotEqual(t,
		Fingerprint(hw, "h", "linux"),
		Fingerprint(hw, "h", "windows"))
}

func TestFingerprintSkipsNullMAC(t *testing.T) {
	a := protocol.HardwareInfo{
		SystemSerial: "SN001",
		MACAddresses: []string{"00:00:00:00:00:00"},
	}
	b := protocol.HardwareInfo{SystemSerial: "SN001"}

	assert.Equal(t, Fingerprint(a, "h", "linux"), Fingerprint(b, "h", "linux"))
}

func TestHasStrongIdentity(t *testing.T) {
	assert.True(t, HasStrongIdentity(protocol.HardwareInfo{MachineID: "x"}))
	assert.True(t, HasStrongIdentity(protocol.HardwareInfo{MACAddresses: []string{"aa:bb:cc:dd:ee:ff"}}))
	assert.False(t, HasStrongIdentity(protocol.HardwareInfo{}))
	assert.False(t, HasStrongIdentity(protocol.HardwareInfo{MACAddresses: []string{"00:00:00:00:00:00"}}))
}
