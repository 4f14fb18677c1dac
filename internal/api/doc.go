// Package api implements the HTTP API and live message stream for the
// journal.
//
// Endpoints live under /api/v1: session status, journal statistics and
// message listings, publish, subscription management, journal clear and
// save, and archive queries when the SQLite archive is enabled.
//
// # Live Stream
//
// GET /api/v1/ws upgrades to a WebSocket carrying JSON frames. A client
// sends {"type":"subscribe","filter":"sensors/#","replay":10} and then
// receives a "message" frame for every arrival whose topic matches one of
// its filters. "state" frames report session state changes to everyone.
// Frames for a slow client are dropped rather than delaying the session.
//
// # Graceful Degradation
//
// The server keeps running while the session is disconnected: reads and
// streams keep working, and operations that need the broker return
// 503 Service Unavailable.
package api
