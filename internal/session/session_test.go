package session

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/mqtt-journal/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-journal/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt-journal/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt-journal/internal/journal"
)

// fakeTransport is an in-memory Transport.
type fakeTransport struct {
	mu sync.Mutex

	connectCode  byte
	connectErr   error
	connectBlock bool

	subscribeErr   error
	unsubscribeErr error
	publishErr     error

	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
	published    []string
	disconnects  int

	onConnect        func()
	onConnectionLost func(error)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeTransport) Connect(ctx context.Context) (byte, error) {
	f.mu.Lock()
	block, code, err := f.connectBlock, f.connectCode, f.connectErr
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return 0, fmt.Errorf("%w: %w", mqtt.ErrConnectionFailed, ctx.Err())
	}
	return code, err
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()
}

func (f *fakeTransport) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.handlers[topic] = handler
	return nil
}

func (f *fakeTransport) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unsubscribeErr != nil {
		return f.unsubscribeErr
	}
	f.unsubscribed = append(f.unsubscribed, topic)
	delete(f.handlers, topic)
	return nil
}

func (f *fakeTransport) Publish(topic string, _ []byte, _ byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, topic)
	return nil
}

func (f *fakeTransport) SetOnConnect(callback func())               { f.onConnect = callback }
func (f *fakeTransport) SetOnConnectionLost(callback func(err error)) { f.onConnectionLost = callback }

// deliver pushes a message through the handler registered for filter.
func (f *fakeTransport) deliver(t *testing.T, filter, topic, payload string) {
	t.Helper()
	f.mu.Lock()
	h := f.handlers[filter]
	f.mu.Unlock()
	if h == nil {
		t.Fatalf("no handler registered for %q", filter)
	}
	if err := h(mqtt.Message{Topic: topic, Payload: []byte(payload), QoS: 1, ReceivedAt: time.Now()}); err != nil {
		t.Fatalf("handler error = %v", err)
	}
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "discard"}, "test")
}

func newTestSession(t *testing.T, ft *fakeTransport, opts Options) *Session {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = testLogger()
	}
	return New(ft, opts)
}

// connected returns a session that completed Connect.
func connected(t *testing.T) (*Session, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	s := newTestSession(t, ft, Options{})
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return s, ft
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect_Success(t *testing.T) {
	ft := newFakeTransport()
	s := newTestSession(t, ft, Options{})

	var states []State
	s.SetOnStateChange(func(st State) { states = append(states, st) })

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !s.IsConnected() || s.State() != StateConnected {
		t.Errorf("State() = %v, want connected", s.State())
	}
	want := []State{StateConnecting, StateConnected}
	if !reflect.DeepEqual(states, want) {
		t.Errorf("state changes = %v, want %v", states, want)
	}

	if err := s.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect() error = %v, want ErrAlreadyConnected", err)
	}
}

func TestConnect_Refused(t *testing.T) {
	tests := []struct {
		code   byte
		reason Reason
	}{
		{1, ReasonProtocolVersion},
		{2, ReasonBadIdentifier},
		{3, ReasonServerUnavailable},
		{4, ReasonBadCredentials},
		{5, ReasonNotAuthorized},
	}

	for _, tt := range tests {
		t.Run(tt.reason.String(), func(t *testing.T) {
			ft := newFakeTransport()
			ft.connectCode = tt.code
			ft.connectErr = mqtt.ErrConnectionFailed
			s := newTestSession(t, ft, Options{})

			err := s.Connect(context.Background())
			if !errors.Is(err, ErrConnectRefused) {
				t.Fatalf("Connect() error = %v, want ErrConnectRefused", err)
			}
			var refused *ConnectRefusedError
			if !errors.As(err, &refused) {
				t.Fatalf("Connect() error = %T, want *ConnectRefusedError", err)
			}
			if refused.Code != tt.code || refused.Reason != tt.reason {
				t.Errorf("refused = %+v, want code %d reason %v", refused, tt.code, tt.reason)
			}
			if s.State() != StateDisconnected {
				t.Errorf("State() = %v, want disconnected", s.State())
			}
		})
	}
}

func TestReasonFor_Unknown(t *testing.T) {
	for _, code := range []byte{0, 6, 128, 255} {
		if got := ReasonFor(code); got != ReasonUnknown {
			t.Errorf("ReasonFor(%d) = %v, want ReasonUnknown", code, got)
		}
	}
}

func TestConnect_Timeout(t *testing.T) {
	ft := newFakeTransport()
	ft.connectBlock = true
	s := newTestSession(t, ft, Options{ConnectTimeout: 20 * time.Millisecond})

	err := s.Connect(context.Background())
	if !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("Connect() error = %v, want ErrConnectTimeout", err)
	}
	if s.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", s.State())
	}
}

func TestConnect_Cancelled(t *testing.T) {
	ft := newFakeTransport()
	ft.connectBlock = true
	s := newTestSession(t, ft, Options{ConnectTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := s.Connect(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Connect() error = %v, want context.Canceled", err)
	}
	if s.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", s.State())
	}
}

func TestConnect_TransportError(t *testing.T) {
	ft := newFakeTransport()
	cause := errors.New("dial tcp: connection refused")
	ft.connectErr = fmt.Errorf("%w: %w", mqtt.ErrConnectionFailed, cause)
	s := newTestSession(t, ft, Options{})

	err := s.Connect(context.Background())
	var te *TransportError
	if !errors.As(err, &te) || te.Op != "connect" {
		t.Fatalf("Connect() error = %v, want *TransportError{Op: connect}", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("error does not unwrap to cause: %v", err)
	}
}

func TestDisconnect(t *testing.T) {
	s, ft := connected(t)
	if err := s.Subscribe("a/b", 0); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	s.Disconnect()

	if s.IsConnected() {
		t.Error("IsConnected() = true after Disconnect()")
	}
	if ft.disconnects != 1 {
		t.Errorf("transport disconnects = %d, want 1", ft.disconnects)
	}
	if got := s.SubscribedTopics(); !reflect.DeepEqual(got, []string{"a/b"}) {
		t.Errorf("SubscribedTopics() = %v, want [a/b]", got)
	}
}

func TestConnectionLostAndReconnect(t *testing.T) {
	s, ft := connected(t)

	ft.onConnectionLost(errors.New("EOF"))
	if s.State() != StateDisconnected {
		t.Fatalf("State() after loss = %v, want disconnected", s.State())
	}

	ft.onConnect()
	if s.State() != StateConnected {
		t.Errorf("State() after reconnect = %v, want connected", s.State())
	}
}

func TestConnect_LateConnackAfterTimeoutIsIgnored(t *testing.T) {
	ft := newFakeTransport()
	ft.connectBlock = true
	s := newTestSession(t, ft, Options{ConnectTimeout: 20 * time.Millisecond})

	var states []State
	s.SetOnStateChange(func(st State) { states = append(states, st) })

	if err := s.Connect(context.Background()); !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("Connect() error = %v, want ErrConnectTimeout", err)
	}

	// The broker answers after the session gave up.
	ft.onConnect()

	if s.State() != StateDisconnected {
		t.Fatalf("State() = %v, want disconnected", s.State())
	}
	if err := s.Subscribe("a/b", 0); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
	if err := s.Publish("a/b", nil, 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
	want := []State{StateConnecting, StateDisconnected}
	if !reflect.DeepEqual(states, want) {
		t.Errorf("state changes = %v, want %v", states, want)
	}
}

func TestConnect_ReconnectIgnoredAfterFailure(t *testing.T) {
	tests := []struct {
		name  string
		setup func(ft *fakeTransport)
	}{
		{"refused", func(ft *fakeTransport) {
			ft.connectCode = 5
			ft.connectErr = mqtt.ErrConnectionFailed
		}},
		{"transport error", func(ft *fakeTransport) { ft.connectErr = mqtt.ErrConnectionFailed }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := newFakeTransport()
			tt.setup(ft)
			s := newTestSession(t, ft, Options{})

			if err := s.Connect(context.Background()); err == nil {
				t.Fatal("Connect() error = nil, want failure")
			}
			ft.onConnect()
			if s.State() != StateDisconnected {
				t.Errorf("State() = %v, want disconnected", s.State())
			}
		})
	}
}

func TestDisconnect_IgnoresLaterReconnect(t *testing.T) {
	s, ft := connected(t)

	s.Disconnect()
	ft.onConnect()

	if s.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", s.State())
	}

	// A fresh Connect re-enables reconnect handling.
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	ft.onConnectionLost(errors.New("EOF"))
	ft.onConnect()
	if s.State() != StateConnected {
		t.Errorf("State() after reconnect = %v, want connected", s.State())
	}
}

func TestOnConnectResult(t *testing.T) {
	ft := newFakeTransport()
	s := newTestSession(t, ft, Options{})

	if err := s.OnConnectResult(0); err != nil {
		t.Fatalf("OnConnectResult(0) error = %v", err)
	}
	if !s.IsConnected() {
		t.Error("IsConnected() = false after OnConnectResult(0)")
	}

	s.OnDisconnectResult(7)
	if s.IsConnected() {
		t.Error("IsConnected() = true after OnDisconnectResult(7)")
	}

	if err := s.OnConnectResult(4); !errors.Is(err, ErrConnectRefused) {
		t.Errorf("OnConnectResult(4) error = %v, want ErrConnectRefused", err)
	}
}

// =============================================================================
// Operation Tests
// =============================================================================

// TestOperations_NotConnected checks that operations on a disconnected
// session fail with ErrNotConnected and change nothing.
func TestOperations_NotConnected(t *testing.T) {
	ft := newFakeTransport()
	s := newTestSession(t, ft, Options{})

	before := s.Status()

	ops := map[string]func() error{
		"subscribe":   func() error { return s.Subscribe("a/#", 1) },
		"unsubscribe": func() error { return s.Unsubscribe("a/#") },
		"publish":     func() error { return s.Publish("a/b", []byte("x"), 0, false) },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			if err := op(); !errors.Is(err, ErrNotConnected) {
				t.Errorf("error = %v, want ErrNotConnected", err)
			}
		})
	}

	if after := s.Status(); !reflect.DeepEqual(before, after) {
		t.Errorf("Status() changed: before %+v, after %+v", before, after)
	}
	if len(ft.handlers) != 0 || len(ft.published) != 0 {
		t.Error("transport was called while disconnected")
	}
}

func TestOperations_InvalidArguments(t *testing.T) {
	s, _ := connected(t)

	tests := []struct {
		name    string
		op      func() error
		wantErr error
	}{
		{"subscribe empty", func() error { return s.Subscribe("", 0) }, mqtt.ErrInvalidTopic},
		{"subscribe qos", func() error { return s.Subscribe("a", 3) }, mqtt.ErrInvalidQoS},
		{"unsubscribe empty", func() error { return s.Unsubscribe("") }, mqtt.ErrInvalidTopic},
		{"publish wildcard", func() error { return s.Publish("a/#", nil, 0, false) }, mqtt.ErrInvalidTopic},
		{"publish qos", func() error { return s.Publish("a", nil, 9, false) }, mqtt.ErrInvalidQoS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.op(); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribe_Idempotent(t *testing.T) {
	s, _ := connected(t)

	for i := 0; i < 2; i++ {
		if err := s.Subscribe("sensors/+/temp", 1); err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
	}
	if err := s.Subscribe("alerts/#", 0); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	want := []string{"alerts/#", "sensors/+/temp"}
	if got := s.SubscribedTopics(); !reflect.DeepEqual(got, want) {
		t.Errorf("SubscribedTopics() = %v, want %v", got, want)
	}
}

func TestSubscribe_TransportFailureLeavesSetUnchanged(t *testing.T) {
	s, ft := connected(t)
	ft.subscribeErr = mqtt.ErrSubscribeFailed

	err := s.Subscribe("a/b", 0)
	var te *TransportError
	if !errors.As(err, &te) || te.Op != "subscribe" {
		t.Fatalf("Subscribe() error = %v, want *TransportError", err)
	}
	if !errors.Is(err, mqtt.ErrSubscribeFailed) {
		t.Errorf("error does not unwrap to mqtt.ErrSubscribeFailed")
	}
	if len(s.SubscribedTopics()) != 0 {
		t.Errorf("SubscribedTopics() = %v, want empty", s.SubscribedTopics())
	}
}

func TestUnsubscribe(t *testing.T) {
	s, ft := connected(t)
	if err := s.Subscribe("a/b", 0); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := s.Unsubscribe("never/subscribed"); err != nil {
		t.Errorf("Unsubscribe(unknown) error = %v, want nil", err)
	}
	if len(ft.unsubscribed) != 0 {
		t.Errorf("transport called for unknown topic: %v", ft.unsubscribed)
	}

	if err := s.Unsubscribe("a/b"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if len(s.SubscribedTopics()) != 0 {
		t.Errorf("SubscribedTopics() = %v, want empty", s.SubscribedTopics())
	}
}

func TestUnsubscribe_TransportFailureKeepsTopic(t *testing.T) {
	s, ft := connected(t)
	if err := s.Subscribe("a/b", 0); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	ft.unsubscribeErr = mqtt.ErrUnsubscribeFailed

	if err := s.Unsubscribe("a/b"); !errors.Is(err, mqtt.ErrUnsubscribeFailed) {
		t.Fatalf("Unsubscribe() error = %v, want ErrUnsubscribeFailed", err)
	}
	if got := s.SubscribedTopics(); !reflect.DeepEqual(got, []string{"a/b"}) {
		t.Errorf("SubscribedTopics() = %v, want [a/b]", got)
	}
}

func TestPublish(t *testing.T) {
	s, ft := connected(t)

	if err := s.Publish("test/topic", []byte("hello"), 1, true); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if !reflect.DeepEqual(ft.published, []string{"test/topic"}) {
		t.Errorf("published = %v", ft.published)
	}

	ft.publishErr = mqtt.ErrPublishFailed
	var te *TransportError
	if err := s.Publish("test/topic", nil, 0, false); !errors.As(err, &te) {
		t.Errorf("Publish() error = %v, want *TransportError", err)
	}
}

// =============================================================================
// Message Flow Tests
// =============================================================================

func TestRun_DispatchesToObserversInOrder(t *testing.T) {
	s, ft := connected(t)
	if err := s.Subscribe("sensors/#", 1); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	j := journal.New(2)
	s.AddObserver(ObserverFunc(j.Appender()))

	var mu sync.Mutex
	var seqs []uint64
	done := make(chan struct{})
	s.AddObserver(ObserverFunc(func(seq uint64, _ journal.Entry) {
		mu.Lock()
		seqs = append(seqs, seq)
		n := len(seqs)
		mu.Unlock()
		if n == 3 {
			close(done)
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(ctx) }()

	ft.deliver(t, "sensors/#", "sensors/a", "1")
	ft.deliver(t, "sensors/#", "sensors/b", "2")
	ft.deliver(t, "sensors/#", "sensors/c", "3")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for dispatch")
	}
	cancel()
	if err := <-runDone; err != nil {
		t.Errorf("Run() error = %v", err)
	}

	if !reflect.DeepEqual(seqs, []uint64{1, 2, 3}) {
		t.Errorf("seqs = %v, want [1 2 3]", seqs)
	}
	if s.MessageCount() != 3 {
		t.Errorf("MessageCount() = %d, want 3", s.MessageCount())
	}

	// The journal evicted one entry; the count did not change.
	snap := j.Snapshot()
	if len(snap) != 2 || snap[0].Topic != "sensors/b" || snap[1].Topic != "sensors/c" {
		t.Errorf("journal = %+v, want sensors/b, sensors/c", snap)
	}
	if s.Status().MessageCount != 3 {
		t.Errorf("Status().MessageCount = %d, want 3", s.Status().MessageCount)
	}
}

func TestRun_DrainsBufferOnShutdown(t *testing.T) {
	s, ft := connected(t)
	if err := s.Subscribe("a", 0); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// Buffered before Run starts.
	for i := 0; i < 5; i++ {
		ft.deliver(t, "a", "a", fmt.Sprint(i))
	}

	var count int
	s.AddObserver(ObserverFunc(func(uint64, journal.Entry) { count++ }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if count != 5 {
		t.Errorf("dispatched = %d, want 5", count)
	}

	// After Run returned, deliveries are rejected rather than blocking.
	ft.mu.Lock()
	h := ft.handlers["a"]
	ft.mu.Unlock()
	for i := 0; i < DefaultBufferSize+1; i++ {
		if err := h(mqtt.Message{Topic: "a"}); err != nil {
			if !errors.Is(err, ErrClosed) {
				t.Fatalf("handler error = %v, want ErrClosed", err)
			}
			return
		}
	}
	t.Error("handler never reported ErrClosed after Run returned")
}

func TestRun_EveryAcceptedDeliveryIsDispatched(t *testing.T) {
	ft := newFakeTransport()
	s := newTestSession(t, ft, Options{BufferSize: 4})
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := s.Subscribe("a", 0); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	ft.mu.Lock()
	h := ft.handlers["a"]
	ft.mu.Unlock()

	var dispatched atomic.Uint64
	s.AddObserver(ObserverFunc(func(uint64, journal.Entry) { dispatched.Add(1) }))

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		s.Run(ctx) //nolint:errcheck // returns nil on cancel
		close(runDone)
	}()

	const producers, perProducer = 8, 500
	var accepted atomic.Uint64
	var wg sync.WaitGroup
	for range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perProducer {
				err := h(mqtt.Message{Topic: "a"})
				if err == nil {
					accepted.Add(1)
					continue
				}
				if !errors.Is(err, ErrClosed) {
					t.Errorf("handler error = %v, want nil or ErrClosed", err)
				}
				return
			}
		}()
	}

	time.Sleep(5 * time.Millisecond)
	cancel()
	<-runDone
	wg.Wait()

	if got, want := dispatched.Load(), accepted.Load(); got != want {
		t.Errorf("dispatched = %d, accepted = %d; every accepted message must be dispatched", got, want)
	}
	if s.MessageCount() != accepted.Load() {
		t.Errorf("MessageCount() = %d, want %d", s.MessageCount(), accepted.Load())
	}
}

func TestRun_BackpressureBlocksDelivery(t *testing.T) {
	ft := newFakeTransport()
	s := newTestSession(t, ft, Options{BufferSize: 1})
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := s.Subscribe("a", 0); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	ft.deliver(t, "a", "a", "fills buffer")

	delivered := make(chan struct{})
	go func() {
		ft.deliver(t, "a", "a", "blocks")
		close(delivered)
	}()

	select {
	case <-delivered:
		t.Fatal("delivery did not block on a full buffer")
	case <-time.After(50 * time.Millisecond):
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx) //nolint:errcheck // returns nil on cancel

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery still blocked after Run started")
	}
}

func TestRun_ObserverPanicDoesNotStopPump(t *testing.T) {
	s, ft := connected(t)
	if err := s.Subscribe("a", 0); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	got := make(chan uint64, 2)
	s.AddObserver(ObserverFunc(func(seq uint64, _ journal.Entry) {
		if seq == 1 {
			panic("bad observer")
		}
	}))
	s.AddObserver(ObserverFunc(func(seq uint64, _ journal.Entry) { got <- seq }))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx) //nolint:errcheck // returns nil on cancel

	ft.deliver(t, "a", "a", "1")
	ft.deliver(t, "a", "a", "2")

	for _, want := range []uint64{1, 2} {
		select {
		case seq := <-got:
			if seq != want {
				t.Errorf("seq = %d, want %d", seq, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for seq %d", want)
		}
	}
}

func TestStatus(t *testing.T) {
	ft := newFakeTransport()
	s := newTestSession(t, ft, Options{})

	st := s.Status()
	if st.State != "disconnected" || st.Connected || len(st.SubscribedTopics) != 0 || st.MessageCount != 0 {
		t.Errorf("initial Status() = %+v", st)
	}

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := s.Subscribe("b", 0); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := s.Subscribe("a", 0); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	st = s.Status()
	if st.State != "connected" || !st.Connected {
		t.Errorf("Status() state = %q/%v, want connected/true", st.State, st.Connected)
	}
	if !reflect.DeepEqual(st.SubscribedTopics, []string{"a", "b"}) {
		t.Errorf("SubscribedTopics = %v, want [a b]", st.SubscribedTopics)
	}

	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
