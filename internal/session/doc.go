// Package session tracks the state of one MQTT connection and routes
// received messages to observers.
//
// A Session owns:
//   - the connection state machine (disconnected, connecting, connected)
//   - the set of acknowledged topic subscriptions
//   - the all-time count of delivered messages
//
// The wire protocol is delegated to a Transport, normally the paho adapter
// in internal/infrastructure/mqtt.
//
// # Message flow
//
// The transport delivers each message on its own goroutine into a bounded
// channel. Run is the single consumer: it numbers the message, increments
// the message count and calls every registered Observer in registration
// order. When the channel is full the transport's delivery goroutine blocks
// until the pump catches up, so messages are never dropped silently.
//
//	transport ──► events (bounded) ──► Run ──► journal appender
//	                                        ├─► console printer
//	                                        └─► archive, metrics, websocket
//
// # Connection state
//
//	Disconnected ──Connect──► Connecting ──CONNACK 0──► Connected
//	      ▲                        │                        │
//	      └──refused / timeout─────┘                        │
//	      └────────────────Disconnect / connection lost─────┘
//
// Only a Connected session accepts Subscribe, Unsubscribe and Publish. A
// refused or timed-out connection is reported to the caller and never
// retried by the session.
package session
