package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/mqtt-journal/internal/infrastructure/config"
)

const (
	// pingTimeout bounds the connectivity check in Connect and HealthCheck.
	pingTimeout = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds

	// clientIDTag is added to every point so several journals can share a
	// bucket.
	clientIDTag = "client_id"
)

// WriteStats counts points handed to the write API and points the server
// rejected.
type WriteStats struct {
	Queued uint64
	Failed uint64
}

// Client writes arrival and session points to InfluxDB.
//
// Writes are non-blocking: points are batched by the library and sent in
// the background, so OnMessage is safe to call from the session pump.
// Rejected batches are counted and passed to the SetOnError callback.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	// mu orders writes before Close so no point reaches a closed write API.
	mu     sync.RWMutex
	closed bool

	queued atomic.Uint64
	failed atomic.Uint64

	onErrorMu sync.RWMutex
	onError   func(error)
}

// Connect creates a client for cfg and verifies the server answers a ping.
//
// Parameters:
//   - ctx: Bounds the initial ping together with pingTimeout
//   - cfg: The influxdb section of config.yaml
//   - clientID: MQTT client id, added as the client_id tag on every point
//
// Returns:
//   - *Client: Ready for writes
//   - error: ErrDisabled, or ErrUnreachable wrapping the ping failure
func Connect(ctx context.Context, cfg config.InfluxDBConfig, clientID string) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushSeconds := cfg.FlushInterval
	if flushSeconds <= 0 {
		flushSeconds = defaultFlushInterval
	}

	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(batchSize)). //nolint:gosec // positive after defaulting
		SetFlushInterval(uint((time.Duration(flushSeconds) * time.Second).Milliseconds())) //nolint:gosec // positive after defaulting
	if clientID != "" {
		opts.AddDefaultTag(clientIDTag, clientID)
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, err
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
	}
	go c.watchErrors(c.writeAPI.Errors())
	return c, nil
}

func ping(ctx context.Context, client influxdb2.Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if !healthy {
		return fmt.Errorf("%w: unhealthy ping response", ErrUnreachable)
	}
	return nil
}

// watchErrors drains the write API's error channel until the client closes.
func (c *Client) watchErrors(errs <-chan error) {
	for err := range errs {
		c.failed.Add(1)

		c.onErrorMu.RLock()
		callback := c.onError
		c.onErrorMu.RUnlock()
		if callback != nil {
			callback(err)
		}
	}
}

// SetOnError sets the callback for rejected batches. It runs on the
// library's error goroutine.
func (c *Client) SetOnError(callback func(err error)) {
	c.onErrorMu.Lock()
	defer c.onErrorMu.Unlock()
	c.onError = callback
}

// Flush sends buffered points now. It is a no-op after Close.
func (c *Client) Flush() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.closed {
		c.writeAPI.Flush()
	}
}

// Stats returns the write counters.
func (c *Client) Stats() WriteStats {
	return WriteStats{Queued: c.queued.Load(), Failed: c.failed.Load()}
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.Closed() {
		return ErrClosed
	}
	return ping(ctx, c.client)
}

// Close flushes pending points and releases the client. Closing a nil or
// closed client is a no-op.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
