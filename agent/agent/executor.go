package agent

import (
	"lockwatch/common/protocol"
)

// Locker is the screen-lock surface the executor drives
type Locker interface {
	Engage(password, message string) error
	Disengage()
}

// ExecutorState tracks where the executor is in its action cycle
type ExecutorState int

const (
	StateIdle ExecutorState = iota
	StateExecuting
	StateReported
)

// Executor applies owner commands locally. It acts only on status
// transitions handed to it by the poller, which is what makes command
// application idempotent: a status that stays locked across N polls
// executes the lock exactly once. Failures are returned as an
// ActionResult for the next report, never pretended away; the owner
// re-triggering the action is the retry path.
type Executor struct {
	locker   Locker
	notifier Notifier
	state    ExecutorState
}

// NewExecutor creates an executor over the given locker and notifier
func NewExecutor(locker Locker, notifier Notifier) *Executor {
	return &Executor{locker: locker, notifier: notifier}
}

// State returns the executor's current cycle state
func (e *Executor) State() ExecutorState {
	return e.state
}

// HandleTransition executes whatever local action the status
// transition implies and returns the result to report, or nil when no
// action is needed
func (e *Executor) HandleTransition(prev string, state *protocol.DeviceState) *protocol.ActionResult {
	if prev == state.Status {
		return nil
	}

	e.state = StateExecuting
	defer func() { e.state = StateReported }()

	switch state.Status {
	case protocol.StatusLocked:
		logInfo("Server status changed to locked, engaging lock")
		if err := e.locker.Engage(state.UnlockPassword, state.LockMessage); err != nil {
			logError("Lock failed", "error", err)
			return &protocol.ActionResult{Action: protocol.ActionLock, Success: false, Error: err.Error()}
		}
		return &protocol.ActionResult{Action: protocol.ActionLock, Success: true}

	case protocol.StatusAlarm:
		logInfo("Server status changed to alarm, sounding alarm")
		e.notifier.StartAlarm()
		return &protocol.ActionResult{Action: protocol.ActionAlarm, Success: true}

	case protocol.StatusActive, protocol.StatusMissing:
		var result *protocol.ActionResult
		switch prev {
		case protocol.StatusAlarm:
			logInfo("Alarm cleared by server")
			e.notifier.StopAlarm()
			result = &protocol.ActionResult{Action: protocol.ActionClearAlarm, Success: true}
		case protocol.StatusLocked:
			e.locker.Disengage()
		}
		return result

	default:
		// wiped and unknown future statuses need no local action
		return nil
	}
}

// ShowMessage displays a one-shot owner message. The caller
// acknowledges it by id afterwards so it is shown exactly once.
func (e *Executor) ShowMessage(msg *protocol.PendingMessage) *protocol.ActionResult {
	e.state = StateExecuting
	defer func() { e.state = StateReported }()

	if err := e.notifier.ShowMessage(msg.Text); err != nil {
		logError("Failed to display owner message", "message_id", msg.ID, "error", err)
		return &protocol.ActionResult{Action: protocol.ActionMessage, Success: false, Error: err.Error()}
	}
	logInfo("Displayed owner message", "message_id", msg.ID)
	return &protocol.ActionResult{Action: protocol.ActionMessage, Success: true}
}
