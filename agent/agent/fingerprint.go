package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"lockwatch/common/protocol"
)

// Fingerprint derives the device identity hash from hardware
// identifiers. It is deterministic across reboots on unchanged
// hardware and unaffected by superficial changes like IP address or
// running processes.
//
// Identifiers are concatenated in a fixed priority order as
// "key:value" parts joined with "|", with MAC addresses sorted since
// their enumeration order is not meaningful. The OS family is always
// appended so the same board reinstalled with a different OS family
// registers as a distinct device.
//
// When no hardware identifier is available the fingerprint degrades to
// hostname plus OS family. That composite is NOT unique across cloned
// or identically named machines; it is a documented fallback, not an
// error.
func Fingerprint(hw protocol.HardwareInfo, hostname, osFamily string) string {
	var parts []string

	add := func(key, value string) {
		value = strings.TrimSpace(value)
		if value != "" {
			parts = append(parts, key+":"+value)
		}
	}

	add("machine", hw.MachineID)
	add("serial", hw.SystemSerial)
	add("board", hw.BoardSerial)
	add("bios", hw.BIOSSerial)
	add("cpu", hw.CPUID)

	macs := make([]string, 0, len(hw.MACAddresses))
	for _, mac := range hw.MACAddresses {
		mac = strings.ToLower(strings.TrimSpace(mac))
		if mac != "" && mac != "00:00:00:00:00:00" {
			macs = append(macs, mac)
		}
	}
	sort.Strings(macs)
	for _, mac := range macs {
		add("mac", mac)
	}

	if len(parts) == 0 {
		// Weak fallback identity
		add("hostname", hostname)
	}
	add("os", osFamily)

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// HasStrongIdentity reports whether the hardware info carries at least
// one identifier stronger than the hostname fallback
func HasStrongIdentity(hw protocol.HardwareInfo) bool {
	if hw.MachineID != "" || hw.SystemSerial != "" || hw.BoardSerial != "" ||
		hw.BIOSSerial != "" || hw.CPUID != "" {
		return true
	}
	for _, mac := range hw.MACAddresses {
		mac = strings.TrimSpace(mac)
		if mac != "" && mac != "00:00:00:00:00:00" {
			return true
		}
	}
	return false
}
