package mqtt

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Client. Operation failures wrap the
// underlying paho error, so both can be matched with errors.Is.
var (
	ErrNotConnected      = errors.New("mqtt: client not connected")
	ErrConnectionFailed  = errors.New("mqtt: connection failed")
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")
	ErrTimeout           = errors.New("mqtt: operation timed out")

	// ErrInvalidQoS rejects anything outside 0, 1 and 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic covers empty topics, misplaced wildcards and
	// wildcards in a publish topic.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrTLSConfig means a CA, certificate or key file could not be used.
	ErrTLSConfig = errors.New("mqtt: invalid TLS configuration")

	// ErrPayloadTooLarge is a publish failure raised before anything is sent.
	ErrPayloadTooLarge = fmt.Errorf("%w: payload too large", ErrPublishFailed)
)
