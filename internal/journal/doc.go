// Package journal provides the bounded in-memory log of received MQTT messages.
//
// A Journal holds at most Capacity entries in arrival order. When an append
// would exceed the capacity the single oldest entry is evicted first, so the
// newest entry is never dropped.
//
// # Concurrency
//
// The journal is written by one goroutine (the session's arrival pump) and
// read by any number of goroutines (statistics, saves, HTTP handlers).
// Appends take the write lock for an O(1) slot update; Snapshot copies the
// live entries under the read lock and returns a slice the caller owns.
//
// # Usage
//
//	j := journal.New(1000)
//	j.Append(journal.NewEntry(time.Now(), "sensors/a", payload, 1, false))
//	for _, e := range j.Snapshot() {
//	    fmt.Println(e.Topic, e.Text())
//	}
package journal
