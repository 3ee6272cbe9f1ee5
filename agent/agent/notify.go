package agent

import (
	"sync"
	"time"

	"github.com/gen2brain/beeep"
)

// Notifier produces the device-local alerts for owner commands.
// Implementations must be safe for repeated Start/Stop calls.
type Notifier interface {
	StartAlarm()
	StopAlarm()
	ShowMessage(text string) error
}

// BeeepNotifier implements Notifier with desktop notifications and a
// repeating audible beep
type BeeepNotifier struct {
	mu   sync.Mutex
	stop chan struct{}
}

// NewNotifier creates the default notifier
func NewNotifier() *BeeepNotifier {
	return &BeeepNotifier{}
}

// StartAlarm raises an alert notification and starts a repeating beep
// that runs until StopAlarm
func (n *BeeepNotifier) StartAlarm() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stop != nil {
		return // already sounding
	}

	if err := beeep.Alert("LockWatch Alarm", "This device has been reported missing.", ""); err != nil {
		logWarn("Failed to show alarm notification", "error", err)
	}

	n.stop = make(chan struct{})
	go func(stop chan struct{}) {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := beeep.Beep(beeep.DefaultFreq, 500); err != nil {
					logDebug("Beep failed", "error", err)
				}
			}
		}
	}(n.stop)

	logInfo("Alarm started")
}

// StopAlarm silences a running alarm
func (n *BeeepNotifier) StopAlarm() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stop == nil {
		return
	}
	close(n.stop)
	n.stop = nil
	logInfo("Alarm stopped")
}

// ShowMessage displays owner text without blocking input
func (n *BeeepNotifier) ShowMessage(text string) error {
	return beeep.Notify("Message from the owner", text, "")
}
