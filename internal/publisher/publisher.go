// Package publisher sends JSON payloads through a session, optionally
// repeated at a fixed rate.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/time/rate"
)

// DefaultPayloadFile is the payload file used when none is given.
const DefaultPayloadFile = "payload.json"

var (
	// ErrInvalidJSON is returned when a payload file is not valid JSON.
	ErrInvalidJSON = errors.New("publisher: invalid JSON payload")

	// ErrInvalidOptions is returned for a negative repeat count or rate.
	ErrInvalidOptions = errors.New("publisher: invalid options")
)

// Sender publishes one message. *session.Session satisfies it.
type Sender interface {
	Publish(topic string, payload []byte, qos byte, retain bool) error
}

// Options controls repeated publishing.
type Options struct {
	// Repeat is the number of sends. Zero means one.
	Repeat int

	// Rate is the maximum sends per second. Zero means unpaced.
	Rate float64
}

// LoadPayload reads a JSON file and returns it compacted.
//
// Returns:
//   - []byte: Compact JSON
//   - error: Wrapped read error, or ErrInvalidJSON
func LoadPayload(path string) ([]byte, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied
	if err != nil {
		return nil, fmt.Errorf("reading payload file: %w", err)
	}

	payload, err := Compact(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return payload, nil
}

// Compact validates data as JSON and strips insignificant whitespace.
func Compact(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	return buf.Bytes(), nil
}

// MarshalJSON encodes v compactly with HTML escaping disabled.
func MarshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// PublishJSON marshals v and publishes it.
func PublishJSON(s Sender, topic string, v any, qos byte, retain bool) error {
	payload, err := MarshalJSON(v)
	if err != nil {
		return err
	}
	return s.Publish(topic, payload, qos, retain)
}

// Publish sends payload opts.Repeat times, waiting between sends to respect
// opts.Rate. It stops at the first failure or when ctx is cancelled.
//
// Returns:
//   - int: Number of successful sends
//   - error: The first publish or context error
func Publish(ctx context.Context, s Sender, topic string, payload []byte, qos byte, retain bool, opts Options) (int, error) {
	if opts.Repeat < 0 || opts.Rate < 0 {
		return 0, fmt.Errorf("%w: repeat=%d rate=%v", ErrInvalidOptions, opts.Repeat, opts.Rate)
	}
	repeat := opts.Repeat
	if repeat == 0 {
		repeat = 1
	}

	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	limiter := rate.NewLimiter(limit, 1)

	sent := 0
	for i := 0; i < repeat; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return sent, err
		}
		if err := s.Publish(topic, payload, qos, retain); err != nil {
			return sent, fmt.Errorf("publish %d of %d: %w", i+1, repeat, err)
		}
		sent++
	}
	return sent, nil
}

// PublishFile loads a JSON payload file and publishes it with Publish.
func PublishFile(ctx context.Context, s Sender, path, topic string, qos byte, retain bool, opts Options) (int, error) {
	payload, err := LoadPayload(path)
	if err != nil {
		return 0, err
	}
	return Publish(ctx, s, topic, payload, qos, retain, opts)
}
