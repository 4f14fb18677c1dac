package journal

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Entry is a single received message. It is immutable once created:
// NewEntry copies the payload and nothing in this module writes to it
// afterwards.
type Entry struct {
	// Timestamp is the local capture time at arrival, not a broker time.
	Timestamp time.Time

	// Topic is the concrete topic the message was published on.
	Topic string

	// Payload is the raw message body. It may hold non-text data.
	Payload []byte

	// QoS is the delivery QoS (0, 1 or 2).
	QoS byte

	// Retain is true when the broker delivered a retained message.
	Retain bool
}

// NewEntry creates an Entry, taking a private copy of payload.
func NewEntry(ts time.Time, topic string, payload []byte, qos byte, retain bool) Entry {
	var p []byte
	if payload != nil {
		p = make([]byte, len(payload))
		copy(p, payload)
	}
	return Entry{
		Timestamp: ts,
		Topic:     topic,
		Payload:   p,
		QoS:       qos,
		Retain:    retain,
	}
}

// Text decodes the payload as UTF-8. Invalid byte sequences are replaced
// with U+FFFD; decoding never fails.
func (e Entry) Text() string {
	return DecodeText(e.Payload)
}

// IsText reports whether the payload is valid UTF-8.
func (e Entry) IsText() bool {
	return utf8.Valid(e.Payload)
}

// DecodeText is the lossy UTF-8 decoding used for display and persistence.
func DecodeText(b []byte) string {
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}
