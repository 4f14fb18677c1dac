package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Subscribe, Unsubscribe and Publish
	// when the session is not connected. No state is changed.
	ErrNotConnected = errors.New("session: not connected")

	// ErrConnectTimeout is returned when no CONNACK arrives within the
	// connect timeout.
	ErrConnectTimeout = errors.New("session: connect timed out")

	// ErrConnectRefused matches every *ConnectRefusedError via errors.Is.
	ErrConnectRefused = errors.New("session: connection refused")

	// ErrAlreadyConnected is returned by Connect unless the session is
	// disconnected.
	ErrAlreadyConnected = errors.New("session: already connected or connecting")

	// ErrClosed is returned to the transport when a message arrives after
	// the pump has stopped.
	ErrClosed = errors.New("session: closed")
)

// Reason classifies a refused connection.
type Reason byte

// Refusal reasons, numbered as the MQTT 3.1.1 CONNACK return codes.
const (
	ReasonUnknown           Reason = 0
	ReasonProtocolVersion   Reason = 1
	ReasonBadIdentifier     Reason = 2
	ReasonServerUnavailable Reason = 3
	ReasonBadCredentials    Reason = 4
	ReasonNotAuthorized     Reason = 5
)

// ReasonFor maps a CONNACK return code to a Reason. Codes outside 1-5 map
// to ReasonUnknown.
func ReasonFor(code byte) Reason {
	if code >= byte(ReasonProtocolVersion) && code <= byte(ReasonNotAuthorized) {
		return Reason(code)
	}
	return ReasonUnknown
}

// String returns a human-readable description.
func (r Reason) String() string {
	switch r {
	case ReasonProtocolVersion:
		return "invalid protocol version"
	case ReasonBadIdentifier:
		return "invalid client identifier"
	case ReasonServerUnavailable:
		return "server unavailable"
	case ReasonBadCredentials:
		return "bad username or password"
	case ReasonNotAuthorized:
		return "not authorized"
	default:
		return "unknown error"
	}
}

// ConnectRefusedError is returned when the broker answers CONNACK with a
// non-zero return code.
type ConnectRefusedError struct {
	Code   byte
	Reason Reason
}

func (e *ConnectRefusedError) Error() string {
	return fmt.Sprintf("session: connection refused: %s (code %d)", e.Reason, e.Code)
}

// Is makes errors.Is(err, ErrConnectRefused) true.
func (e *ConnectRefusedError) Is(target error) bool {
	return target == ErrConnectRefused
}

// TransportError wraps a failure reported by the transport.
type TransportError struct {
	// Op is the session operation: connect, subscribe, unsubscribe or publish.
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("session: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
