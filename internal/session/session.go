package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/mqtt-journal/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt-journal/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt-journal/internal/journal"
)

// Defaults applied by New.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultBufferSize     = 256
)

// maxQoS is the highest MQTT QoS level.
const maxQoS = 2

// Transport is the MQTT client the session drives.
//
// Connect returns the CONNACK return code; a non-zero code means the broker
// refused the connection. Subscribe and Unsubscribe return once the broker
// acknowledged; Publish returns once the send was accepted.
type Transport interface {
	Connect(ctx context.Context) (byte, error)
	Disconnect()
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte, qos byte, retain bool) error
	SetOnConnect(callback func())
	SetOnConnectionLost(callback func(err error))
}

// Observer receives every delivered message.
//
// seq is the message's 1-based position in the session's all-time count.
// Observers run on the pump goroutine, one after another; a slow observer
// delays the others and, once the buffer fills, the transport.
type Observer interface {
	OnMessage(seq uint64, e journal.Entry)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(seq uint64, e journal.Entry)

// OnMessage calls f(seq, e).
func (f ObserverFunc) OnMessage(seq uint64, e journal.Entry) {
	f(seq, e)
}

// Options configures a Session.
type Options struct {
	// ConnectTimeout bounds the wait for CONNACK. Zero means DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// BufferSize is the capacity of the event channel. Zero means DefaultBufferSize.
	BufferSize int

	// Logger receives connection and subscription events. Nil means logging.Default().
	Logger *logging.Logger
}

// Status is a point-in-time view of a session.
type Status struct {
	State            string   `json:"state"`
	Connected        bool     `json:"connected"`
	SubscribedTopics []string `json:"subscribed_topics"`
	MessageCount     uint64   `json:"message_count"`
}

// Session is one MQTT session with its subscriptions and message count.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Observers must be registered before Run starts.
type Session struct {
	transport      Transport
	state          stateManager
	connectTimeout time.Duration
	logger         *logging.Logger

	topics   map[string]byte
	topicsMu sync.RWMutex

	messageCount atomic.Uint64

	// established is set by an accepted Connect and cleared by a failed
	// attempt or Disconnect. Transport reconnects are only honoured while
	// it is set.
	established atomic.Bool

	events    chan journal.Entry
	done      chan struct{}
	closeOnce sync.Once

	// deliverMu orders in-flight deliveries against shutdown; closed is
	// set under the write lock once the pump stops accepting events.
	deliverMu sync.RWMutex
	closed    bool

	observers   []Observer
	observersMu sync.RWMutex

	onStateChange func(State)
	stateMu       sync.RWMutex
}

// New creates a disconnected Session over transport and registers the
// transport's connection callbacks.
func New(transport Transport, opts Options) *Session {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}

	s := &Session{
		transport:      transport,
		connectTimeout: opts.ConnectTimeout,
		logger:         opts.Logger.With("component", "session"),
		topics:         make(map[string]byte),
		events:         make(chan journal.Entry, opts.BufferSize),
		done:           make(chan struct{}),
	}

	transport.SetOnConnect(s.handleReconnect)
	transport.SetOnConnectionLost(s.handleConnectionLost)

	return s
}

// AddObserver registers o to receive every delivered message.
func (s *Session) AddObserver(o Observer) {
	s.observersMu.Lock()
	s.observers = append(s.observers, o)
	s.observersMu.Unlock()
}

// SetOnStateChange registers a callback invoked after every state change.
func (s *Session) SetOnStateChange(callback func(State)) {
	s.stateMu.Lock()
	s.onStateChange = callback
	s.stateMu.Unlock()
}

// setState stores st and notifies the state callback when it changed.
func (s *Session) setState(st State) {
	if prev := s.state.set(st); prev != st {
		s.notifyState(st)
	}
}

func (s *Session) notifyState(st State) {
	s.stateMu.RLock()
	callback := s.onStateChange
	s.stateMu.RUnlock()
	if callback != nil {
		callback(st)
	}
}

// Connect opens the connection and waits for the CONNACK.
//
// The wait is bounded by the connect timeout and by ctx. The attempt is not
// retried.
//
// Returns:
//   - nil when the broker accepted the connection
//   - *ConnectRefusedError (errors.Is ErrConnectRefused) on a non-zero CONNACK
//   - ErrConnectTimeout when the timeout expired first
//   - ctx.Err() when ctx was cancelled first
//   - *TransportError for any other transport failure
//   - ErrAlreadyConnected unless the session was disconnected
func (s *Session) Connect(ctx context.Context) error {
	if !s.state.transition(StateDisconnected, StateConnecting) {
		return ErrAlreadyConnected
	}
	s.notifyState(StateConnecting)

	connectCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	code, err := s.transport.Connect(connectCtx)
	if code != 0 {
		return s.OnConnectResult(code)
	}
	if err != nil {
		s.established.Store(false)
		s.setState(StateDisconnected)
		switch {
		case ctx.Err() != nil:
			s.logger.Info("connection attempt cancelled")
			return ctx.Err()
		case errors.Is(connectCtx.Err(), context.DeadlineExceeded):
			s.logger.Error("connection timed out", "timeout", s.connectTimeout)
			return ErrConnectTimeout
		default:
			s.logger.Error("connection failed", "error", err)
			return &TransportError{Op: "connect", Err: err}
		}
	}

	return s.OnConnectResult(0)
}

// OnConnectResult applies a CONNACK return code: 0 marks the session
// connected, anything else marks it disconnected and returns a
// *ConnectRefusedError.
func (s *Session) OnConnectResult(code byte) error {
	if code == 0 {
		s.established.Store(true)
		s.setState(StateConnected)
		s.logger.Info("connected to broker")
		return nil
	}

	s.established.Store(false)
	s.setState(StateDisconnected)
	err := &ConnectRefusedError{Code: code, Reason: ReasonFor(code)}
	s.logger.Error("connection refused", "code", code, "reason", err.Reason.String())
	return err
}

// OnDisconnectResult marks the session disconnected. Code 0 is a clean
// disconnect; any other code is an unexpected loss.
func (s *Session) OnDisconnectResult(code int) {
	s.setState(StateDisconnected)
	if code == 0 {
		s.logger.Info("disconnected from broker")
		return
	}
	s.logger.Warn("connection unexpectedly lost", "code", code)
}

// handleReconnect follows an automatic reconnect by the transport. The
// initial connection is handled by Connect; a CONNACK that arrives after
// Connect gave up, or after Disconnect, is ignored.
func (s *Session) handleReconnect() {
	if !s.established.Load() {
		s.logger.Warn("ignoring transport connect without an active session connection")
		return
	}
	if s.state.transition(StateDisconnected, StateConnected) {
		s.notifyState(StateConnected)
		s.logger.Info("reconnected to broker")
	}
}

func (s *Session) handleConnectionLost(err error) {
	s.logger.Warn("transport reported connection loss", "error", err)
	s.OnDisconnectResult(1)
}

// Disconnect closes the transport connection and marks the session
// disconnected. Subscriptions are kept in the topic set.
func (s *Session) Disconnect() {
	s.established.Store(false)
	s.transport.Disconnect()
	s.OnDisconnectResult(0)
}

// Subscribe subscribes to a topic filter. The filter is added to the
// subscribed set once the broker acknowledged; subscribing twice is
// idempotent.
//
// Returns:
//   - mqtt.ErrInvalidTopic / mqtt.ErrInvalidQoS for bad arguments
//   - ErrNotConnected unless connected
//   - *TransportError when the transport fails
func (s *Session) Subscribe(topic string, qos byte) error {
	if err := mqtt.ValidateTopicFilter(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return mqtt.ErrInvalidQoS
	}
	if !s.state.isConnected() {
		return ErrNotConnected
	}

	if err := s.transport.Subscribe(topic, qos, s.deliver); err != nil {
		s.logger.Error("subscribe failed", "topic", topic, "error", err)
		return &TransportError{Op: "subscribe", Err: err}
	}

	s.topicsMu.Lock()
	s.topics[topic] = qos
	s.topicsMu.Unlock()

	s.logger.Info("subscribed", "topic", topic, "qos", qos)
	return nil
}

// Unsubscribe removes a topic filter. Unsubscribing from a filter that is
// not in the subscribed set succeeds without contacting the broker.
func (s *Session) Unsubscribe(topic string) error {
	if err := mqtt.ValidateTopicFilter(topic); err != nil {
		return err
	}
	if !s.state.isConnected() {
		return ErrNotConnected
	}

	s.topicsMu.RLock()
	_, subscribed := s.topics[topic]
	s.topicsMu.RUnlock()
	if !subscribed {
		return nil
	}

	if err := s.transport.Unsubscribe(topic); err != nil {
		s.logger.Error("unsubscribe failed", "topic", topic, "error", err)
		return &TransportError{Op: "unsubscribe", Err: err}
	}

	s.topicsMu.Lock()
	delete(s.topics, topic)
	s.topicsMu.Unlock()

	s.logger.Info("unsubscribed", "topic", topic)
	return nil
}

// Publish sends payload to topic. It returns once the transport accepted
// the send request.
func (s *Session) Publish(topic string, payload []byte, qos byte, retain bool) error {
	if err := mqtt.ValidateTopicName(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return mqtt.ErrInvalidQoS
	}
	if !s.state.isConnected() {
		return ErrNotConnected
	}

	if err := s.transport.Publish(topic, payload, qos, retain); err != nil {
		s.logger.Error("publish failed", "topic", topic, "error", err)
		return &TransportError{Op: "publish", Err: err}
	}

	s.logger.Debug("published", "topic", topic, "qos", qos, "retain", retain, "bytes", len(payload))
	return nil
}

// deliver is the transport message handler. It blocks while the event
// channel is full.
func (s *Session) deliver(msg mqtt.Message) error {
	ts := msg.ReceivedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	e := journal.NewEntry(ts, msg.Topic, msg.Payload, msg.QoS, msg.Retained)

	s.deliverMu.RLock()
	defer s.deliverMu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	select {
	case s.events <- e:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// Run consumes delivered messages until ctx is cancelled, then dispatches
// whatever is still buffered and returns nil. Run must be called at most
// once.
func (s *Session) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case e := <-s.events:
			s.dispatch(e)
		}
	}
}

// shutdown stops accepting deliveries and dispatches what was accepted.
// Closing done releases blocked senders; taking the write lock waits for
// every delivery already past the closed check, so drain sees all of them.
func (s *Session) shutdown() {
	s.closeOnce.Do(func() { close(s.done) })

	s.deliverMu.Lock()
	s.closed = true
	s.deliverMu.Unlock()

	s.drain()
}

// drain dispatches buffered events without blocking.
func (s *Session) drain() {
	for {
		select {
		case e := <-s.events:
			s.dispatch(e)
		default:
			return
		}
	}
}

// dispatch counts one message and hands it to every observer.
func (s *Session) dispatch(e journal.Entry) {
	seq := s.messageCount.Add(1)

	s.observersMu.RLock()
	observers := s.observers
	s.observersMu.RUnlock()

	for _, o := range observers {
		s.notify(o, seq, e)
	}
}

// notify calls one observer, recovering from panics so the pump survives.
func (s *Session) notify(o Observer, seq uint64, e journal.Entry) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("observer panic recovered", "topic", e.Topic, "seq", seq, "panic", r)
		}
	}()
	o.OnMessage(seq, e)
}

// State returns the current connection state.
func (s *Session) State() State {
	return s.state.get()
}

// IsConnected reports whether the session is connected.
func (s *Session) IsConnected() bool {
	return s.state.isConnected()
}

// MessageCount returns the number of messages delivered since creation.
func (s *Session) MessageCount() uint64 {
	return s.messageCount.Load()
}

// SubscribedTopics returns the acknowledged topic filters, sorted.
func (s *Session) SubscribedTopics() []string {
	s.topicsMu.RLock()
	topics := make([]string, 0, len(s.topics))
	for t := range s.topics {
		topics = append(topics, t)
	}
	s.topicsMu.RUnlock()

	sort.Strings(topics)
	return topics
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	st := s.state.get()
	return Status{
		State:            st.String(),
		Connected:        st == StateConnected,
		SubscribedTopics: s.SubscribedTopics(),
		MessageCount:     s.MessageCount(),
	}
}

// HealthCheck returns ErrNotConnected unless the session is connected.
func (s *Session) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.state.isConnected() {
		return ErrNotConnected
	}
	return nil
}
