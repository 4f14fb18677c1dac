package session

import "sync/atomic"

// State is the connection state of a Session.
type State uint32

// Session states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// stateManager handles atomic state transitions.
type stateManager struct {
	state atomic.Uint32
}

// get returns the current state.
func (sm *stateManager) get() State {
	return State(sm.state.Load())
}

// set unconditionally sets the state and returns the previous one.
func (sm *stateManager) set(s State) State {
	return State(sm.state.Swap(uint32(s)))
}

// transition attempts to move from one state to another.
// Returns true if successful.
func (sm *stateManager) transition(from, to State) bool {
	return sm.state.CompareAndSwap(uint32(from), uint32(to))
}

// isConnected returns true if the session is connected.
func (sm *stateManager) isConnected() bool {
	return sm.get() == StateConnected
}
