package journal

import "sync"

// DefaultCapacity is used when New is called with a non-positive capacity.
const DefaultCapacity = 1000

// Journal is a fixed-capacity, concurrency-safe ring of entries in arrival
// order with FIFO eviction.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - The buffer is allocated once; Append never reallocates.
type Journal struct {
	mu       sync.RWMutex
	buf      []Entry
	head     int // index of the oldest entry
	size     int
	capacity int
}

// New creates an empty Journal holding at most capacity entries.
func New(capacity int) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Journal{
		buf:      make([]Entry, capacity),
		capacity: capacity,
	}
}

// Append adds e as the newest entry. When the journal is full the oldest
// entry is evicted first. Append never fails.
func (j *Journal) Append(e Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.size < j.capacity {
		j.buf[(j.head+j.size)%j.capacity] = e
		j.size++
		return
	}

	// Full: overwrite the oldest slot and advance head.
	j.buf[j.head] = e
	j.head = (j.head + 1) % j.capacity
}

// Snapshot returns a copy of the current entries, oldest first.
//
// The returned slice is owned by the caller; later appends neither modify
// it nor are reflected in it.
func (j *Journal) Snapshot() []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]Entry, j.size)
	first := j.capacity - j.head
	if first > j.size {
		first = j.size
	}
	n := copy(out, j.buf[j.head:j.head+first])
	copy(out[n:], j.buf[:j.size-n])
	return out
}

// Size returns the current number of entries, 0 <= Size() <= Capacity().
func (j *Journal) Size() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.size
}

// Capacity returns the maximum number of entries.
func (j *Journal) Capacity() int {
	return j.capacity
}

// Clear removes all entries. Only explicit user action calls this.
func (j *Journal) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()

	clear(j.buf)
	j.head = 0
	j.size = 0
}

// Appender returns a message observer that appends every delivered entry.
// The sequence number is ignored; the journal keeps arrival order only.
func (j *Journal) Appender() func(seq uint64, e Entry) {
	return func(_ uint64, e Entry) {
		j.Append(e)
	}
}
