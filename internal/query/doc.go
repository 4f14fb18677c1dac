// Package query computes statistics and filtered views over journal
// snapshots.
//
// Every function here is pure: it takes a []journal.Entry (normally the
// result of journal.Snapshot) and never touches the live journal, so callers
// can run queries without holding any lock.
package query
