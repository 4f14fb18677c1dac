package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/mqtt-journal/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-journal/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt-journal/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt-journal/internal/journal"
	"github.com/nerrad567/mqtt-journal/internal/persist"
	"github.com/nerrad567/mqtt-journal/internal/query"
	"github.com/nerrad567/mqtt-journal/internal/session"
)

// Frame types on the live message stream.
const (
	// Client to server.
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"

	// Server to client.
	FramePong    = "pong"
	FrameAck     = "ack"
	FrameMessage = "message"
	FrameState   = "state"
	FrameError   = "error"
)

const (
	// streamSendBuffer is the per-client outbound frame queue.
	streamSendBuffer = 256

	// maxReplay caps how many journal entries a subscribe may replay.
	maxReplay = 100

	defaultMaxFrameSize = 8192
	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

// Frame is one JSON text frame on the stream, in either direction.
//
// Clients send {"type":"subscribe","filter":"sensors/#","replay":10} to
// receive message frames for topics matching filter, optionally preceded by
// the last replay matching journal entries. State frames go to every client.
type Frame struct {
	Type     string          `json:"type"`
	ID       string          `json:"id,omitempty"`
	Filter   string          `json:"filter,omitempty"`
	Replay   int             `json:"replay,omitempty"`
	Seq      uint64          `json:"seq,omitempty"`
	Replayed bool            `json:"replayed,omitempty"`
	Message  *persist.Record `json:"message,omitempty"`
	State    string          `json:"state,omitempty"`
	Filters  []string        `json:"filters,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Hub fans session messages out to stream clients by topic filter.
//
// It implements session.Observer; OnMessage runs on the session pump and
// never blocks on a slow client. Frames for a client whose queue is full are
// dropped and counted.
//
// Thread Safety: All methods are safe for concurrent use.
type Hub struct {
	cfg     config.WebSocketConfig
	journal *journal.Journal
	logger  *logging.Logger

	mu      sync.RWMutex
	clients map[*streamClient]struct{}

	dropped atomic.Uint64
}

// NewHub creates a hub. j is the replay source and may be nil, in which case
// subscribe requests replay nothing.
func NewHub(cfg config.WebSocketConfig, j *journal.Journal, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		journal: j,
		logger:  logger,
		clients: make(map[*streamClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}

// OnMessage sends a message frame to every client with a matching filter.
func (h *Hub) OnMessage(seq uint64, e journal.Entry) {
	clients := h.snapshot()
	if len(clients) == 0 {
		return
	}

	var data []byte
	for _, c := range clients {
		if !c.wants(e.Topic) {
			continue
		}
		if data == nil {
			rec := persist.NewRecord(e)
			var err error
			if data, err = json.Marshal(Frame{Type: FrameMessage, Seq: seq, Message: &rec}); err != nil {
				h.logger.Error("encoding stream frame", "error", err)
				return
			}
		}
		if !c.enqueue(data) {
			h.dropped.Add(1)
		}
	}
}

// OnStateChange sends a state frame to every client.
func (h *Hub) OnStateChange(st session.State) {
	clients := h.snapshot()
	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(Frame{Type: FrameState, State: st.String()})
	if err != nil {
		h.logger.Error("encoding stream frame", "error", err)
		return
	}
	for _, c := range clients {
		if !c.enqueue(data) {
			h.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many frames were discarded for slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) add(c *streamClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("stream client connected", "clients", n)
}

func (h *Hub) remove(c *streamClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("stream client disconnected", "clients", n)
}

func (h *Hub) snapshot() []*streamClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*streamClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

// replay returns up to n of the newest journal entries matching filter.
func (h *Hub) replay(filter string, n int) []journal.Entry {
	if h.journal == nil || n <= 0 {
		return nil
	}
	return query.Tail(query.MatchFilter(h.journal.Snapshot(), filter), min(n, maxReplay))
}

func (h *Hub) maxFrameSize() int64 {
	if h.cfg.MaxMessageSize > 0 {
		return int64(h.cfg.MaxMessageSize)
	}
	return defaultMaxFrameSize
}

func (h *Hub) pingInterval() time.Duration {
	if h.cfg.PingInterval > 0 {
		return time.Duration(h.cfg.PingInterval) * time.Second
	}
	return defaultPingInterval
}

func (h *Hub) pongTimeout() time.Duration {
	if h.cfg.PongTimeout > 0 {
		return time.Duration(h.cfg.PongTimeout) * time.Second
	}
	return defaultPongTimeout
}

// handleStream upgrades the request to a WebSocket stream. Clients receive
// state frames at once and message frames after their first subscribe.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.isAllowedOrigin(origin)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Warn("stream upgrade failed", "error", err)
		return
	}

	c := newStreamClient(s.hub, conn)
	s.hub.add(c)
	go c.writeLoop()
	go c.readLoop()
}

// streamClient is one WebSocket connection. The send queue is never closed;
// done signals the write loop to stop.
type streamClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	mu      sync.RWMutex
	filters map[string]struct{}
}

func newStreamClient(hub *Hub, conn *websocket.Conn) *streamClient {
	return &streamClient{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, streamSendBuffer),
		done:    make(chan struct{}),
		filters: make(map[string]struct{}),
	}
}

// wants reports whether any of the client's filters matches topic.
func (c *streamClient) wants(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for f := range c.filters {
		if query.TopicMatches(f, topic) {
			return true
		}
	}
	return false
}

func (c *streamClient) filterList() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.filters))
	for f := range c.filters {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// enqueue queues data without blocking. It reports false when the client is
// closed or its queue is full.
func (c *streamClient) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *streamClient) close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close() //nolint:errcheck // connection is being torn down
		}
	})
}

// reply encodes f and queues it for this client only.
func (c *streamClient) reply(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	if !c.enqueue(data) {
		c.hub.dropped.Add(1)
	}
}

func (c *streamClient) replyError(id, msg string) {
	c.reply(Frame{Type: FrameError, ID: id, Error: msg})
}

// readLoop handles client frames until the connection fails.
func (c *streamClient) readLoop() {
	defer func() {
		c.hub.remove(c)
		c.close()
	}()

	wait := c.hub.pingInterval() + c.hub.pongTimeout()
	c.conn.SetReadLimit(c.hub.maxFrameSize())
	_ = c.conn.SetReadDeadline(time.Now().Add(wait)) //nolint:errcheck // a failed deadline surfaces on the next read
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("stream read error", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(wait)) //nolint:errcheck // as above

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.replyError("", "invalid JSON frame")
			continue
		}
		c.handle(f)
	}
}

// writeLoop drains the send queue and keeps the connection alive with pings.
func (c *streamClient) writeLoop() {
	ticker := time.NewTicker(c.hub.pingInterval())
	defer func() {
		ticker.Stop()
		c.close()
	}()

	writeWait := c.hub.pongTimeout()
	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage, //nolint:errcheck // best-effort close frame
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write error caught below
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write error caught below
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *streamClient) handle(f Frame) {
	switch f.Type {
	case FrameSubscribe:
		if err := mqtt.ValidateTopicFilter(f.Filter); err != nil {
			c.replyError(f.ID, err.Error())
			return
		}
		c.mu.Lock()
		c.filters[f.Filter] = struct{}{}
		c.mu.Unlock()

		c.reply(Frame{Type: FrameAck, ID: f.ID, Filters: c.filterList()})
		for _, e := range c.hub.replay(f.Filter, f.Replay) {
			rec := persist.NewRecord(e)
			c.reply(Frame{Type: FrameMessage, Replayed: true, Message: &rec})
		}

	case FrameUnsubscribe:
		c.mu.Lock()
		delete(c.filters, f.Filter)
		c.mu.Unlock()
		c.reply(Frame{Type: FrameAck, ID: f.ID, Filters: c.filterList()})

	case FramePing:
		c.reply(Frame{Type: FramePong, ID: f.ID})

	default:
		c.replyError(f.ID, "unknown frame type: "+f.Type)
	}
}
