package archive

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/mqtt-journal/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt-journal/internal/journal"
)

// Writer defaults.
const (
	DefaultBatchSize     = 100
	DefaultFlushInterval = time.Second
	DefaultQueueSize     = 1024

	// pruneInterval is how often expired rows are removed when a retention is set.
	pruneInterval = time.Hour

	// shutdownTimeout bounds the final flush after Run's context ends.
	shutdownTimeout = 5 * time.Second
)

// WriterOptions configures a Writer. Zero values select the defaults.
type WriterOptions struct {
	BatchSize     int
	FlushInterval time.Duration
	QueueSize     int

	// Retention prunes rows older than this once at start and then hourly.
	// Zero keeps everything.
	Retention time.Duration

	Logger *logging.Logger
}

// Writer is a session observer that archives arrivals in batches.
//
// OnMessage never blocks the session pump: when the queue is full the
// message is counted in Dropped and discarded.
//
// Thread Safety:
//   - OnMessage may be called from any goroutine.
//   - Run must be called exactly once.
type Writer struct {
	repo   *Repository
	opts   WriterOptions
	queue  chan Message
	logger *logging.Logger

	written atomic.Uint64
	dropped atomic.Uint64
}

// NewWriter creates a Writer storing into repo.
func NewWriter(repo *Repository, opts WriterOptions) *Writer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Writer{
		repo:   repo,
		opts:   opts,
		queue:  make(chan Message, opts.QueueSize),
		logger: logger.With("component", "archive"),
	}
}

// OnMessage queues the entry for the next batch.
func (w *Writer) OnMessage(seq uint64, e journal.Entry) {
	select {
	case w.queue <- FromEntry(seq, e):
	default:
		if w.dropped.Add(1) == 1 {
			w.logger.Warn("archive queue full, dropping messages", "queue_size", w.opts.QueueSize)
		}
	}
}

// Written returns the number of messages stored so far.
func (w *Writer) Written() uint64 {
	return w.written.Load()
}

// Dropped returns the number of messages discarded because the queue was full.
func (w *Writer) Dropped() uint64 {
	return w.dropped.Load()
}

// Run batches queued messages into the repository until ctx is done, then
// flushes whatever is still queued. It always returns nil; storage errors
// are logged and the failed batch is discarded.
func (w *Writer) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.FlushInterval)
	defer ticker.Stop()

	var pruneC <-chan time.Time
	if w.opts.Retention > 0 {
		w.prune(ctx)
		pruneTicker := time.NewTicker(pruneInterval)
		defer pruneTicker.Stop()
		pruneC = pruneTicker.C
	}

	batch := make([]Message, 0, w.opts.BatchSize)
	for {
		select {
		case <-ctx.Done():
			w.shutdown(batch)
			return nil

		case m := <-w.queue:
			batch = append(batch, m)
			if len(batch) >= w.opts.BatchSize {
				batch = w.flush(ctx, batch)
			}

		case <-ticker.C:
			batch = w.flush(ctx, batch)

		case <-pruneC:
			w.prune(ctx)
		}
	}
}

// shutdown drains the queue and stores the remainder with a fresh context.
func (w *Writer) shutdown(batch []Message) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for {
		select {
		case m := <-w.queue:
			batch = append(batch, m)
		default:
			w.flush(ctx, batch)
			return
		}
	}
}

// flush stores batch and returns it emptied for reuse.
func (w *Writer) flush(ctx context.Context, batch []Message) []Message {
	if len(batch) == 0 {
		return batch
	}
	if err := w.repo.Insert(ctx, batch); err != nil {
		w.logger.Error("archiving messages failed", "count", len(batch), "error", err)
	} else {
		w.written.Add(uint64(len(batch)))
	}
	return batch[:0]
}

func (w *Writer) prune(ctx context.Context) {
	n, err := w.repo.Prune(ctx, w.opts.Retention)
	if err != nil {
		w.logger.Error("pruning archive failed", "error", err)
		return
	}
	if n > 0 {
		w.logger.Info("pruned archive", "deleted", n, "retention", w.opts.Retention.String())
	}
}
