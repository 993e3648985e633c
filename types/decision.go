package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Action is the reviewer's verdict for one iteration.
type Action string

const (
	// ActionContinue lets the worker keep going.
	ActionContinue Action = "continue"
	// ActionAbort ends the run.
	ActionAbort Action = "abort"
)

// ErrInvalidAction is returned when a decision carries an unrecognized action.
var ErrInvalidAction = errors.New("invalid action")

// Label returns the display form of the action ("Continue" or "Abort").
func (a Action) Label() string {
	switch a {
	case ActionContinue:
		return "Continue"
	case ActionAbort:
		return "Abort"
	default:
		return string(a)
	}
}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	return a == ActionContinue || a == ActionAbort
}

// Decision is the reviewer's judgement of the current sample.
// Serialized as {"action": "continue"|"abort", "reason": "..."}.
type Decision struct {
	Action Action `json:"action" msgpack:"action"`
	Reason string `json:"reason" msgpack:"reason"`
}

// ContinueDecision builds a continue decision with the given reason.
func ContinueDecision(reason string) Decision {
	return Decision{Action: ActionContinue, Reason: reason}
}

// AbortDecision builds an abort decision with the given reason.
func AbortDecision(reason string) Decision {
	return Decision{Action: ActionAbort, Reason: reason}
}

// ParseDecision decodes a decision from JSON.
// Both fields are required and matched by exact name; unknown extra fields
// are ignored.
func ParseDecision(data []byte) (Decision, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Decision{}, fmt.Errorf("decode decision: %w", err)
	}
	action, err := stringField(raw, "action")
	if err != nil {
		return Decision{}, err
	}
	reason, err := stringField(raw, "reason")
	if err != nil {
		return Decision{}, err
	}

	if !Action(action).Valid() {
		return Decision{}, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	return Decision{Action: Action(action), Reason: reason}, nil
}

func stringField(raw map[string]json.RawMessage, key string) (string, error) {
	v, ok := raw[key]
	if !ok || string(v) == "null" {
		return "", fmt.Errorf("decode decision: missing field %q", key)
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("decode decision: field %q: %w", key, err)
	}
	return s, nil
}
