package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/mqtt-journal/internal/journal"
)

// Measurement names.
const (
	MeasurementMessages = "mqtt_messages"
	MeasurementSession  = "mqtt_session"
)

// SessionStats is the session snapshot written by WriteSessionStats.
type SessionStats struct {
	Connected     bool
	MessageCount  uint64
	JournalSize   int
	Subscriptions int
}

// OnMessage records one arrival in mqtt_messages, timestamped with the
// capture time and tagged by topic, qos and retain. It satisfies
// session.Observer.
func (c *Client) OnMessage(seq uint64, e journal.Entry) {
	c.write(write.NewPoint(
		MeasurementMessages,
		map[string]string{
			"topic":  e.Topic,
			"qos":    strconv.Itoa(int(e.QoS)),
			"retain": strconv.FormatBool(e.Retain),
		},
		map[string]any{
			"bytes": int64(len(e.Payload)),
			"seq":   int64(seq), //nolint:gosec // sequence numbers stay far below MaxInt64
		},
		e.Timestamp,
	))
}

// WriteSessionStats records the session counters in mqtt_session at the
// current time.
//
// Example:
//
//	client.WriteSessionStats(influxdb.SessionStats{
//	    Connected:    sess.IsConnected(),
//	    MessageCount: sess.MessageCount(),
//	    JournalSize:  j.Size(),
//	})
func (c *Client) WriteSessionStats(s SessionStats) {
	c.write(write.NewPoint(
		MeasurementSession,
		nil,
		map[string]any{
			"connected":     s.Connected,
			"message_count": int64(s.MessageCount), //nolint:gosec // counter stays far below MaxInt64
			"journal_size":  int64(s.JournalSize),
			"subscriptions": int64(s.Subscriptions),
		},
		time.Now(),
	))
}

// WritePoint writes an arbitrary point at the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.write(write.NewPoint(measurement, tags, fields, time.Now()))
}

// write queues p unless the client is closed.
func (c *Client) write(p *write.Point) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	c.queued.Add(1)
	c.writeAPI.WritePoint(p)
}
