// Package archive keeps every received message in SQLite.
//
// The in-memory journal is bounded; the archive is not. A Writer is
// registered as a session observer and batches arrivals into the messages
// table created by the migrations package. Repository answers the read side
// and prunes rows older than the configured retention.
//
// Usage:
//
//	repo := archive.NewRepository(db)
//	w := archive.NewWriter(repo, archive.WriterOptions{Retention: 30 * 24 * time.Hour})
//	sess.AddObserver(w)
//	go w.Run(ctx)
package archive
