package bot

import (
	"fmt"

	"nextmsgbot/core/telegram/state"
)

// TransportError wraps a failed Bot API call.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("telegram %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }
func (e *TransportError) Code() string  { return "TRANSPORT_ERROR" }

// ValidationError reports input that cannot drive the requested operation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }
func (e *ValidationError) Code() string  { return "VALIDATION_ERROR" }

// StateConflictError reports an action that no longer matches the stored
// conversation phase, e.g. a button pressed after the flow moved on.
type StateConflictError struct {
	Phase state.Phase
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("state conflict: conversation is in phase %q", e.Phase)
}
func (e *StateConflictError) Code() string { return "STATE_CONFLICT" }

// NotFoundError reports a missing directory or binding record.
type NotFoundError struct {
	Entity string
	Key    int64
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %d not found", e.Entity, e.Key) }
func (e *NotFoundError) Code() string  { return "NOT_FOUND" }
