package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mqtt-journal/internal/infrastructure/config"
)

// connackRefusedMax is the largest MQTT 3.1.1 CONNACK refusal code. paho
// uses higher values for its own failures, which are not broker answers.
const connackRefusedMax = 5

// Logger is the subset of logging.Logger (and *slog.Logger) the client uses.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Message is one PUBLISH received from the broker.
type Message struct {
	Topic      string
	Payload    []byte
	QoS        byte
	Retained   bool
	ReceivedAt time.Time
}

// MessageHandler receives messages on paho's delivery goroutine, so a slow
// handler holds up later messages. A returned error is only logged.
type MessageHandler func(msg Message) error

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// Client adapts paho.mqtt.golang to the session layer: a context-aware
// Connect that reports the CONNACK code, validated publish and subscribe
// calls, and subscriptions that survive automatic reconnects.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	connected atomic.Bool

	// wanted is true from Connect until the attempt fails or Disconnect is
	// called. An OnConnect outside that window belongs to an abandoned
	// attempt and is dropped.
	wanted atomic.Bool

	subMu         sync.RWMutex
	subscriptions map[string]subscription

	hookMu    sync.RWMutex
	onConnect func()
	onLost    func(err error)
	logger    Logger
}

// New prepares a Client for cfg. Nothing is dialled until Connect.
//
// Returns:
//   - error: ErrTLSConfig when TLS is enabled and the files are unusable
func New(cfg config.MQTTConfig) (*Client, error) {
	opts, err := buildClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:           cfg,
		subscriptions: make(map[string]subscription),
	}
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleConnectionLost(err) })

	c.client = pahomqtt.NewClient(opts)
	return c, nil
}

// Connect dials the broker and waits for its CONNACK, for at most the
// configured connect timeout or until ctx ends, whichever is first.
//
// Returns:
//   - byte: CONNACK return code, 1-5 when the broker refused; 0 when
//     accepted or when no CONNACK arrived
//   - error: nil when accepted, otherwise ErrConnectionFailed wrapping the cause
func (c *Client) Connect(ctx context.Context) (byte, error) {
	c.wanted.Store(true)
	token := c.client.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		c.wanted.Store(false)
		c.client.Disconnect(0)
		return 0, fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	}

	var code byte
	if ct, ok := token.(*pahomqtt.ConnectToken); ok && ct.ReturnCode() <= connackRefusedMax {
		code = ct.ReturnCode()
	}

	switch err := token.Error(); {
	case err != nil:
		c.wanted.Store(false)
		return code, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	case code != 0:
		c.wanted.Store(false)
		return code, fmt.Errorf("%w: broker refused with code %d", ErrConnectionFailed, code)
	}

	// paho runs the OnConnect handler on its own goroutine; mark the
	// connection up now so callers can subscribe straight away.
	c.connected.Store(true)
	return 0, nil
}

// Disconnect closes the connection after a short quiesce and cancels any
// reconnect in progress. Calling it on a client that never connected is fine.
func (c *Client) Disconnect() {
	c.wanted.Store(false)
	if c.client == nil {
		return
	}
	if c.client.IsConnected() {
		c.client.Disconnect(defaultDisconnectQuiesce)
	}
	c.connected.Store(false)
}

// Close is Disconnect in io.Closer form. It never fails.
func (c *Client) Close() error {
	c.Disconnect()
	return nil
}

// IsConnected reports whether the client is connected and not in the
// middle of a reconnect.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client != nil && c.client.IsConnected()
}

// HealthCheck returns ErrNotConnected while the broker connection is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// BrokerURL is the tcp:// or ssl:// address handed to paho.
func (c *Client) BrokerURL() string {
	return brokerURL(c.cfg)
}

// SetOnConnect registers fn to run after the initial connect and after
// every automatic reconnect.
func (c *Client) SetOnConnect(fn func()) {
	c.hookMu.Lock()
	c.onConnect = fn
	c.hookMu.Unlock()
}

// SetOnConnectionLost registers fn for unexpected connection drops. A
// requested Disconnect does not trigger it.
func (c *Client) SetOnConnectionLost(fn func(err error)) {
	c.hookMu.Lock()
	c.onLost = fn
	c.hookMu.Unlock()
}

// SetLogger enables logging of lost connections and of handler errors and
// panics. Without a logger they are dropped.
func (c *Client) SetLogger(logger Logger) {
	c.hookMu.Lock()
	c.logger = logger
	c.hookMu.Unlock()
}

func (c *Client) hooks() (onConnect func(), onLost func(error), logger Logger) {
	c.hookMu.RLock()
	defer c.hookMu.RUnlock()
	return c.onConnect, c.onLost, c.logger
}

func (c *Client) handleConnect() {
	if !c.wanted.Load() {
		// A CONNACK that arrived after Connect gave up; close the stray
		// connection instead of reporting it.
		if _, _, logger := c.hooks(); logger != nil {
			logger.Warn("mqtt connection completed after the attempt was abandoned", "broker", c.BrokerURL())
		}
		c.client.Disconnect(0)
		return
	}
	c.connected.Store(true)

	c.subMu.RLock()
	for _, s := range c.subscriptions {
		// Nobody is waiting on a restore; a failure shows up as missing
		// messages and the next reconnect tries again.
		c.client.Subscribe(s.topic, s.qos, c.wrapHandler(s.handler))
	}
	c.subMu.RUnlock()

	if onConnect, _, _ := c.hooks(); onConnect != nil {
		onConnect()
	}
}

func (c *Client) handleConnectionLost(err error) {
	c.connected.Store(false)

	_, onLost, logger := c.hooks()
	if logger != nil {
		logger.Warn("mqtt connection lost", "broker", c.BrokerURL(), "error", err)
	}
	if onLost != nil {
		onLost(err)
	}
}

// wrapHandler converts paho messages and shields paho from handler panics.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, pm pahomqtt.Message) {
		msg := Message{
			Topic:      pm.Topic(),
			Payload:    pm.Payload(),
			QoS:        pm.Qos(),
			Retained:   pm.Retained(),
			ReceivedAt: time.Now(),
		}

		defer func() {
			if r := recover(); r != nil {
				if _, _, logger := c.hooks(); logger != nil {
					logger.Error("mqtt handler panicked", "topic", msg.Topic, "panic", r)
				}
			}
		}()

		if err := handler(msg); err != nil {
			if _, _, logger := c.hooks(); logger != nil {
				logger.Warn("mqtt handler failed", "topic", msg.Topic, "error", err)
			}
		}
	}
}
