package protocol

import (
	"encoding/json"
	"fmt"
)

// Action kinds
const (
	ActionLock       = "lock"
	ActionAlarm      = "alarm"
	ActionClearAlarm = "clear_alarm"
	ActionMessage    = "message"
	ActionWipe       = "wipe"
)

// Action is the tagged union of owner-issued commands. Type selects the
// variant; only the fields belonging to that variant are meaningful.
type Action struct {
	Type string `json:"action"`

	// lock
	Password    string `json:"password,omitempty"`
	LockMessage string `json:"lock_message,omitempty"`

	// message
	Text string `json:"text,omitempty"`

	// wipe
	OperationID string   `json:"operation_id,omitempty"`
	Paths       []string `json:"paths,omitempty"`
}

// Validate checks that the action is well formed for its type
func (a *Action) Validate() error {
	switch a.Type {
	case ActionLock:
		if a.Password == "" {
			return fmt.Errorf("lock action requires a password")
		}
	case ActionAlarm, ActionClearAlarm:
		// no parameters
	case ActionMessage:
		if a.Text == "" {
			return fmt.Errorf("message action requires text")
		}
	case ActionWipe:
		if a.OperationID == "" {
			return fmt.Errorf("wipe action requires an operation_id")
		}
		if len(a.Paths) == 0 {
			return fmt.Errorf("wipe action requires at least one path")
		}
	case "":
		return fmt.Errorf("action type is required")
	default:
		return fmt.Errorf("unknown action type: %s", a.Type)
	}
	return nil
}

// DecodeAction parses and validates an action from JSON
func DecodeAction(data []byte) (*Action, error) {
	var a Action
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("invalid action payload: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}
