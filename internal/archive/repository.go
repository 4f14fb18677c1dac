package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/mqtt-journal/internal/infrastructure/database"
	"github.com/nerrad567/mqtt-journal/internal/journal"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 1000
)

// ErrInvalidRetention is returned by Prune for a non-positive duration.
var ErrInvalidRetention = errors.New("archive: retention must be positive")

// Message is one archived arrival.
type Message struct {
	ID         int64     `json:"id"`
	Seq        uint64    `json:"seq"`
	ReceivedAt time.Time `json:"received_at"`
	Topic      string    `json:"topic"`
	Payload    []byte    `json:"payload"`
	QoS        byte      `json:"qos"`
	Retain     bool      `json:"retain"`
}

// FromEntry builds a Message from a journal entry and its session sequence.
func FromEntry(seq uint64, e journal.Entry) Message {
	return Message{
		Seq:        seq,
		ReceivedAt: e.Timestamp,
		Topic:      e.Topic,
		Payload:    e.Payload,
		QoS:        e.QoS,
		Retain:     e.Retain,
	}
}

// Entry converts the archived row back into a journal entry.
func (m Message) Entry() journal.Entry {
	return journal.NewEntry(m.ReceivedAt, m.Topic, m.Payload, m.QoS, m.Retain)
}

// Repository reads and writes the messages table.
//
// Thread Safety: safe for concurrent use; database/sql serialises access.
type Repository struct {
	db *database.DB
}

// NewRepository creates a Repository over an open, migrated database.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Insert stores msgs in a single transaction. An empty batch is a no-op.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - msgs: Messages to store, in arrival order
//
// Returns:
//   - error: nil on success; on failure nothing from the batch is stored
func (r *Repository) Insert(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO messages (seq, received_at, topic, payload, qos, retain) VALUES (?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		payload := m.Payload
		if payload == nil {
			payload = []byte{}
		}
		if _, err := stmt.ExecContext(ctx,
			int64(m.Seq), //nolint:gosec // sequence numbers stay far below MaxInt64
			m.ReceivedAt.UTC().UnixNano(),
			m.Topic,
			payload,
			int64(m.QoS),
			m.Retain,
		); err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing messages: %w", err)
	}
	return nil
}

// Recent returns the newest archived messages, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - topic: Exact topic to restrict to; empty means every topic
//   - limit: Maximum rows (default 50, max 1000)
//
// Returns:
//   - []Message: Matching rows ordered by arrival DESC
//   - error: nil on success, otherwise the underlying query error
func (r *Repository) Recent(ctx context.Context, topic string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, seq, received_at, topic, payload, qos, retain
		 FROM messages
		 WHERE (? = '' OR topic = ?)
		 ORDER BY received_at DESC, id DESC
		 LIMIT ?`,
		topic, topic, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]Message, 0, limit)
	for rows.Next() {
		var (
			m          Message
			seq        int64
			receivedAt int64
			qos        int64
		)
		if err := rows.Scan(&m.ID, &seq, &receivedAt, &m.Topic, &m.Payload, &qos, &m.Retain); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Seq = uint64(seq) //nolint:gosec // written from a uint64
		m.QoS = byte(qos)   //nolint:gosec // CHECK constraint keeps 0..2
		m.ReceivedAt = time.Unix(0, receivedAt).UTC()
		msgs = append(msgs, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return msgs, nil
}

// Count returns the number of archived messages.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return n, nil
}

// Prune deletes messages received more than olderThan ago.
//
// Returns:
//   - int64: Number of rows deleted
//   - error: ErrInvalidRetention, or the underlying database error
func (r *Repository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := time.Now().UTC().Add(-olderThan).UnixNano()
	result, err := r.db.ExecContext(ctx, "DELETE FROM messages WHERE received_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting messages: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// HealthCheck verifies the archive database is reachable.
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}
