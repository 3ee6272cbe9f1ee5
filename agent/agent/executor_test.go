package agent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lockwatch/common/protocol"
)

type fakeLocker struct {
	engageCalls    int
	disengageCalls int
	engageErr      error
	password       string
	message        string
}

func (f *fakeLocker) Engage(password, message string) error {
	f.engageCalls++
	f.password = password
	f.message = message
	return f.engageErr
}

func (f *fakeLocker) Disengage() { f.disengageCalls++ }

type fakeNotifier struct {
	alarmStarts  int
	alarmStops   int
	messages     []string
	messageErr   error
}

func (f *fakeNotifier) StartAlarm() { f.alarmStarts++ }
func (f *fakeNotifier) StopAlarm()  { f.alarmStops++ }
func (f *fakeNotifier) ShowMessage(text string) error {
	f.messages = append(f.messages, text)
	return f.messageErr
}

func lockedState(password, message string) *protocol.DeviceState {
	return &protocol.DeviceState{
		Status:         protocol.StatusLocked,
		UnlockPassword: password,
		LockMessage:    message,
	}
}

func TestExecutorLockTransition(t *testing.T) {
	locker := &fakeLocker{}
	executor := NewExecutor(locker, &fakeNotifier{})

	result := executor.HandleTransition(protocol.StatusActive, lockedState("Secret1", "Return me"))
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, protocol.ActionLock, result.Action)
	assert.Equal(t, 1, locker.engageCalls)
	assert.Equal(t, "Secret1", locker.password)
	assert.Equal(t, StateReported, executor.State())
}

func TestExecutorIdempotentWhileStatusUnchanged(t *testing.T) {
	locker := &fakeLocker{}
	executor := NewExecutor(locker, &fakeNotifier{})

	state := lockedState("Secret1", "")
	require.NotNil(t, executor.HandleTransition(protocol.StatusActive, state))

	// Status stays locked for N more polls: no re-execution
	for i := 0; i < 5; i++ {
		assert.Nil(t, executor.HandleTransition(protocol.StatusLocked, state))
	}
	assert.Equal(t, 1, locker.engageCalls)
}

func TestExecutorLockFailureReported(t *testing.T) {
	locker := &fakeLocker{engageErr: errors.New("display unavailable")}
	executor := NewExecutor(locker, &fakeNotifier{})

	result := executor.HandleTransition(protocol.StatusActive, lockedState("Secret1", ""))
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "display unavailable")
}

func TestExecutorAlarmAndClear(t *testing.T) {
	notifier := &fakeNotifier{}
	executor := NewExecutor(&fakeLocker{}, notifier)

	result := executor.HandleTransition(protocol.StatusActive,
		&protocol.DeviceState{Status: protocol.StatusAlarm})
	require.NotNil(t, result)
	assert.Equal(t, protocol.ActionAlarm, result.Action)
	assert.Equal(t, 1, notifier.alarmStarts)

	// Owner clears the alarm: status goes back to active
	result = executor.HandleTransition(protocol.StatusAlarm,
		&protocol.DeviceState{Status: protocol.StatusActive})
	require.NotNil(t, result)
	assert.Equal(t, protocol.ActionClearAlarm, result.Action)
	assert.Equal(t, 1, notifier.alarmStops)
}

func TestExecutorUnlockOnStatusChange(t *testing.T) {
	locker := &fakeLocker{}
	executor := NewExecutor(locker, &fakeNotifier{})

	require.NotNil(t, executor.HandleTransition(protocol.StatusActive, lockedState("pw", "")))

	// Server moves the device back to active: lock releases locally
	result := executor.HandleTransition(protocol.StatusLocked,
		&protocol.DeviceState{Status: protocol.StatusActive})
	assert.Nil(t, result, "release needs no action report")
	assert.Equal(t, 1, locker.disengageCalls)
}

func TestExecutorShowMessage(t *testing.T) {
	notifier := &fakeNotifier{}
	executor := NewExecutor(&fakeLocker{}, notifier)

	result := executor.ShowMessage(&protocol.PendingMessage{ID: "msg-1", Text: "call me"})
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"call me"}, notifier.messages)
}

func TestScreenLockerPasswordCaseSensitive(t *testing.T) {
	locker := &ScreenLocker{lockSession: func() error { return nil }}

	require.NoError(t, locker.Engage("Secret1", "note"))
	assert.True(t, locker.Locked())
	assert.Equal(t, "note", locker.Message())

	assert.False(t, locker.TryUnlock("secret1"), "comparison is case-sensitive")
	assert.False(t, locker.TryUnlock(""))
	assert.True(t, locker.Locked())

	assert.True(t, locker.TryUnlock("Secret1"))
	assert.False(t, locker.Locked())
}

func TestScreenLockerRequiresPassword(t *testing.T) {
	locker := &ScreenLocker{lockSession: func() error { return nil }}
	assert.Error(t, locker.Engage("", ""))
}
