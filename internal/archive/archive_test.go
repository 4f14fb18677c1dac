package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/mqtt-journal/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-journal/internal/infrastructure/database"
	"github.com/nerrad567/mqtt-journal/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt-journal/internal/journal"
	"github.com/nerrad567/mqtt-journal/migrations"
)

// setupTestRepo opens an in-memory database with the real schema applied.
func setupTestRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return NewRepository(db)
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "discard"}, "test")
}

func msg(seq uint64, topic string, at time.Time) Message {
	return Message{
		Seq:        seq,
		ReceivedAt: at,
		Topic:      topic,
		Payload:    []byte("payload"),
		QoS:        1,
		Retain:     seq%2 == 0,
	}
}

// ============================================================
// Repository
// ============================================================

func TestRepository_InsertAndRecent(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 123456789, time.UTC)

	batch := []Message{
		msg(1, "sensors/a", base),
		msg(2, "sensors/b", base.Add(time.Second)),
		msg(3, "sensors/a", base.Add(2*time.Second)),
	}
	if err := repo.Insert(ctx, batch); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	tests := []struct {
		name     string
		topic    string
		limit    int
		wantSeqs []uint64
	}{
		{name: "all topics newest first", wantSeqs: []uint64{3, 2, 1}},
		{name: "exact topic", topic: "sensors/a", wantSeqs: []uint64{3, 1}},
		{name: "limit", limit: 1, wantSeqs: []uint64{3}},
		{name: "unknown topic", topic: "nope", wantSeqs: []uint64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.Recent(ctx, tt.topic, tt.limit)
			if err != nil {
				t.Fatalf("Recent() error = %v", err)
			}
			if len(got) != len(tt.wantSeqs) {
				t.Fatalf("Recent() returned %d rows, want %d", len(got), len(tt.wantSeqs))
			}
			for i, m := range got {
				if m.Seq != tt.wantSeqs[i] {
					t.Errorf("row %d seq = %d, want %d", i, m.Seq, tt.wantSeqs[i])
				}
			}
		})
	}

	got, err := repo.Recent(ctx, "sensors/b", 0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	m := got[0]
	if !m.ReceivedAt.Equal(base.Add(time.Second)) {
		t.Errorf("ReceivedAt = %v, want %v", m.ReceivedAt, base.Add(time.Second))
	}
	if string(m.Payload) != "payload" || m.QoS != 1 || !m.Retain {
		t.Errorf("row = %+v, want payload/qos 1/retain", m)
	}
}

func TestRepository_InsertEmptyPayload(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	e := journal.NewEntry(time.Now(), "empty", nil, 0, false)
	if err := repo.Insert(ctx, []Message{FromEntry(7, e)}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, err := repo.Recent(ctx, "empty", 1)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 1 || len(got[0].Payload) != 0 {
		t.Errorf("Recent() = %+v, want one row with empty payload", got)
	}
}

func TestRepository_InsertEmptyBatch(t *testing.T) {
	repo := setupTestRepo(t)

	if err := repo.Insert(context.Background(), nil); err != nil {
		t.Errorf("Insert(nil) error = %v", err)
	}
}

func TestRepository_Count(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	n, err := repo.Count(ctx)
	if err != nil || n != 0 {
		t.Fatalf("Count() = %d, %v; want 0, nil", n, err)
	}

	now := time.Now()
	if err := repo.Insert(ctx, []Message{msg(1, "a", now), msg(2, "b", now)}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	n, err = repo.Count(ctx)
	if err != nil || n != 2 {
		t.Errorf("Count() = %d, %v; want 2, nil", n, err)
	}
}

func TestRepository_Prune(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	if err := repo.Insert(ctx, []Message{
		msg(1, "old", now.Add(-48*time.Hour)),
		msg(2, "old", now.Add(-25*time.Hour)),
		msg(3, "new", now.Add(-time.Hour)),
	}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	deleted, err := repo.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("Prune() deleted %d, want 2", deleted)
	}

	remaining, err := repo.Recent(ctx, "", 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(remaining) != 1 || remaining[0].Topic != "new" {
		t.Errorf("remaining = %+v, want only the new row", remaining)
	}

	if _, err := repo.Prune(ctx, 0); !errors.Is(err, ErrInvalidRetention) {
		t.Errorf("Prune(0) error = %v, want ErrInvalidRetention", err)
	}
}

func TestMessage_Entry(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e := journal.NewEntry(ts, "t", []byte{0xff}, 2, true)

	got := FromEntry(9, e).Entry()
	if got.Topic != "t" || got.QoS != 2 || !got.Retain || !got.Timestamp.Equal(ts) || string(got.Payload) != "\xff" {
		t.Errorf("round trip = %+v, want %+v", got, e)
	}
}

// ============================================================
// Writer
// ============================================================

func TestWriter_FlushesOnShutdown(t *testing.T) {
	repo := setupTestRepo(t)
	w := NewWriter(repo, WriterOptions{
		BatchSize:     1000,
		FlushInterval: time.Hour,
		Logger:        testLogger(),
	})

	for i := range 5 {
		w.OnMessage(uint64(i+1), journal.NewEntry(time.Now(), "t", []byte("x"), 0, false))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	n, err := repo.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 5 || w.Written() != 5 {
		t.Errorf("stored %d (Written %d), want 5", n, w.Written())
	}
}

func TestWriter_FlushesOnBatchSize(t *testing.T) {
	repo := setupTestRepo(t)
	w := NewWriter(repo, WriterOptions{
		BatchSize:     2,
		FlushInterval: time.Hour,
		Logger:        testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx) //nolint:errcheck // Run always returns nil

	w.OnMessage(1, journal.NewEntry(time.Now(), "t", nil, 0, false))
	w.OnMessage(2, journal.NewEntry(time.Now(), "t", nil, 0, false))

	deadline := time.Now().Add(5 * time.Second)
	for w.Written() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("Written() = %d after 5s, want 2", w.Written())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWriter_DropsWhenQueueFull(t *testing.T) {
	repo := setupTestRepo(t)
	w := NewWriter(repo, WriterOptions{QueueSize: 2, Logger: testLogger()})

	for i := range 5 {
		w.OnMessage(uint64(i+1), journal.NewEntry(time.Now(), "t", nil, 0, false))
	}

	if w.Dropped() != 3 {
		t.Errorf("Dropped() = %d, want 3", w.Dropped())
	}
}

func TestWriter_PrunesAtStart(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.Insert(ctx, []Message{msg(1, "old", time.Now().Add(-72*time.Hour))}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	w := NewWriter(repo, WriterOptions{Retention: 24 * time.Hour, Logger: testLogger()})
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go w.Run(runCtx) //nolint:errcheck // Run always returns nil

	deadline := time.Now().Add(5 * time.Second)
	for {
		n, err := repo.Count(ctx)
		if err != nil {
			t.Fatalf("Count() error = %v", err)
		}
		if n == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("Count() = %d after 5s, want 0", n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
