package persist

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/nerrad567/mqtt-journal/internal/journal"
)

const (
	// filePermissions for saved journals.
	filePermissions = 0o600

	// dirPermissions for directories created on save.
	dirPermissions = 0o750

	// filenameLayout is the timestamp part of DefaultFilename.
	filenameLayout = "20060102_150405"
)

// Record is the persisted form of a journal entry.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Topic     string    `json:"topic"`
	Payload   string    `json:"payload"`
	QoS       byte      `json:"qos"`
	Retain    bool      `json:"retain"`
}

// NewRecord converts an entry to its persisted form.
func NewRecord(e journal.Entry) Record {
	return Record{
		Timestamp: e.Timestamp,
		Topic:     e.Topic,
		Payload:   e.Text(),
		QoS:       e.QoS,
		Retain:    e.Retain,
	}
}

// Entry converts the record back into a journal entry.
func (r Record) Entry() journal.Entry {
	return journal.NewEntry(r.Timestamp, r.Topic, []byte(r.Payload), r.QoS, r.Retain)
}

// DefaultFilename returns mqtt_messages_<YYYYMMDD>_<HHMMSS>.json for t.
func DefaultFilename(t time.Time) string {
	return "mqtt_messages_" + t.Format(filenameLayout) + ".json"
}

// Encode renders entries in the persisted JSON format: two-space
// indentation, non-ASCII text kept as-is, HTML characters not escaped.
func Encode(entries []journal.Entry) ([]byte, error) {
	records := make([]Record, len(entries))
	for i, e := range entries {
		records[i] = NewRecord(e)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes entries to path.
//
// The data is written to a temporary file in the same directory, synced and
// then renamed over path. Missing parent directories are created. Any
// failure is returned as *IOError and the temporary file is removed.
//
// Parameters:
//   - entries: Snapshot to persist, oldest first
//   - path: Destination file
//
// Returns:
//   - error: *IOError on failure, nil otherwise
func Save(entries []journal.Entry, path string) error {
	data, err := Encode(entries)
	if err != nil {
		return &IOError{Op: "encode", Path: path, Err: err}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return &IOError{Op: "mkdir", Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &IOError{Op: "create", Path: path, Err: err}
	}
	tmpPath := tmp.Name()

	fail := func(op string, err error) error {
		_ = tmp.Close()        //nolint:errcheck // already failing
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return &IOError{Op: op, Path: path, Err: err}
	}

	if _, err := tmp.Write(data); err != nil {
		return fail("write", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := tmp.Chmod(filePermissions); err != nil {
		return fail("chmod", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return &IOError{Op: "close", Path: path, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return &IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// Load reads a file written by Save.
func Load(path string) ([]Record, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &IOError{Op: "decode", Path: path, Err: err}
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// LoadEntries reads a file written by Save and returns journal entries.
func LoadEntries(path string) ([]journal.Entry, error) {
	records, err := Load(path)
	if err != nil {
		return nil, err
	}
	entries := make([]journal.Entry, len(records))
	for i, r := range records {
		entries[i] = r.Entry()
	}
	return entries, nil
}
