package agent

import (
	"net"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"lockwatch/common/protocol"
)

// CollectHardwareInfo gathers whatever hardware identifiers the host
// OS exposes. Missing identifiers are left empty; the fingerprint
// degrades gracefully.
func CollectHardwareInfo() protocol.HardwareInfo {
	var hw protocol.HardwareInfo

	switch runtime.GOOS {
	case "linux":
		hw.MachineID = readTrimmed("/etc/machine-id")
		hw.SystemSerial = readTrimmed("/sys/class/dmi/id/product_serial")
		hw.BoardSerial = readTrimmed("/sys/class/dmi/id/board_serial")
		hw.Manufacturer = readTrimmed("/sys/class/dmi/id/sys_vendor")
		hw.Model = readTrimmed("/sys/class/dmi/id/product_name")
	case "darwin":
		out := runCommand("ioreg", "-rd1", "-c", "IOPlatformExpertDevice")
		hw.MachineID = extractQuoted(out, "IOPlatformUUID")
		hw.SystemSerial = extractQuoted(out, "IOPlatformSerialNumber")
		hw.Model = extractQuoted(out, "model")
	case "windows":
		hw.MachineID = wmicValue("csproduct", "UUID")
		hw.SystemSerial = wmicValue("bios", "SerialNumber")
		hw.BoardSerial = wmicValue("baseboard", "SerialNumber")
		hw.Model = wmicValue("csproduct", "Name")
		hw.Manufacturer = wmicValue("csproduct", "Vendor")
	}

	hw.MACAddresses = collectMACs()
	return hw
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func runCommand(name string, args ...string) string {
	out, err := exec.Command(name, args...).Output()
	if err != nil {
		return ""
	}
	return string(out)
}

// extractQuoted pulls `"key" = "value"` out of ioreg output
func extractQuoted(out, key string) string {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "\""+key+"\"") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		return strings.Trim(strings.TrimSpace(parts[1]), "\"<>")
	}
	return ""
}

// wmicValue runs `wmic <class> get <property>` and returns the first
// non-header value line
func wmicValue(class, property string) string {
	out := runCommand("wmic", class, "get", property)
	for i, line := range strings.Split(out, "\n") {
		if i == 0 {
			continue // header
		}
		value := strings.TrimSpace(line)
		if value != "" && !strings.EqualFold(value, property) {
			return value
		}
	}
	return ""
}

// collectMACs returns MAC addresses of physical-looking interfaces.
// Loopback and down interfaces without an address are skipped.
func collectMACs() []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var macs []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		mac := iface.HardwareAddr.String()
		if mac == "" {
			continue
		}
		// Virtual bridges and tunnels churn across reboots
		name := strings.ToLower(iface.Name)
		if strings.HasPrefix(name, "docker") || strings.HasPrefix(name, "veth") ||
			strings.HasPrefix(name, "br-") || strings.HasPrefix(name, "virbr") {
			continue
		}
		macs = append(macs, mac)
	}
	return macs
}
