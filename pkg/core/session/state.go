package session

import "errors"

// State is a position in the call lifecycle:
//
//	Incoming -> Rejected -> Closed
//	Incoming -> AssemblingContext -> Active -> Closed -> Persisted
type State string

const (
	StateIncoming          State = "incoming"
	StateRejected          State = "rejected"
	StateAssemblingContext State = "assembling_context"
	StateActive            State = "active"
	StateClosed            State = "closed"
	StatePersisted         State = "persisted"
)

var (
	// ErrNotActive is returned for conversational operations on a call that
	// was never authorized.
	ErrNotActive = errors.New("session: call is not active")
	// ErrClosed is returned once the runtime has reported the end of the call.
	ErrClosed = errors.New("session: call is closed")
)

// Conversational reports whether actions may run in s.
func (s State) Conversational() bool {
	return s == StateAssemblingContext || s == StateActive
}
