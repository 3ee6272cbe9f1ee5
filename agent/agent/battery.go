package agent

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ReadBatteryPercent returns the battery charge percentage, or nil when
// the host has no readable battery (desktops, unsupported platforms).
// Linux sysfs only; other platforms report nothing rather than shelling
// out to power management tools every tick.
func ReadBatteryPercent() *int {
	matches, err := filepath.Glob("/sys/class/power_supply/BAT*/capacity")
	if err != nil || len(matches) == 0 {
		return nil
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		return nil
	}
	pct, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pct < 0 || pct > 100 {
		return nil
	}
	return &pct
}
