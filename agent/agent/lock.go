package agent

import (
	"fmt"
	"os/exec"
	"runtime"
	"sync"
)

// ScreenLocker engages the OS session lock and tracks the owner-set
// unlock password. The password comparison is exact and case-sensitive.
// Local unlock attempts arrive through the loopback discovery endpoint.
type ScreenLocker struct {
	mu       sync.Mutex
	locked   bool
	password string
	message  string

	// lockSession is swappable for tests
	lockSession func() error
}

// NewScreenLocker creates a locker using the host OS lock command
func NewScreenLocker() *ScreenLocker {
	return &ScreenLocker{lockSession: osLockSession}
}

// Engage records the lock parameters and locks the OS session. An
// error means the lock could not start and must be reported as a
// failure, not silently swallowed.
func (l *ScreenLocker) Engage(password, message string) error {
	if password == "" {
		return fmt.Errorf("refusing to lock without an unlock password")
	}

	l.mu.Lock()
	l.locked = true
	l.password = password
	l.message = message
	l.mu.Unlock()

	if err := l.lockSession(); err != nil {
		return fmt.Errorf("failed to lock session: %w", err)
	}

	logInfo("Screen locked")
	return nil
}

// TryUnlock compares the candidate against the owner-set password.
// On an exact match the lock disengages.
func (l *ScreenLocker) TryUnlock(candidate string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.locked {
		return true
	}
	if candidate != l.password {
		logWarn("Rejected unlock attempt")
		return false
	}

	l.locked = false
	l.password = ""
	l.message = ""
	logInfo("Screen unlocked by local password entry")
	return true
}

// Disengage clears the lock without a password, used when the owner
// changes the device status away from locked
func (l *ScreenLocker) Disengage() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked {
		l.locked = false
		l.password = ""
		l.message = ""
		logInfo("Screen lock released by server")
	}
}

// Locked reports whether the lock is engaged
func (l *ScreenLocker) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}

// Message returns the owner-set lock message
func (l *ScreenLocker) Message() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.message
}

func osLockSession() error {
	switch runtime.GOOS {
	case "windows":
		return exec.Command("rundll32.exe", "user32.dll,LockWorkStation").Run()
	case "darwin":
		return exec.Command("/System/Library/CoreServices/Menu Extras/User.menu/Contents/Resources/CGSession", "-suspend").Run()
	default:
		// loginctl covers systemd desktops; xdg-screensaver is the fallback
		if err := exec.Command("loginctl", "lock-session").Run(); err == nil {
			return nil
		}
		return exec.Command("xdg-screensaver", "lock").Run()
	}
}
