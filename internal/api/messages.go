package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nerrad567/mqtt-journal/internal/journal"
	"github.com/nerrad567/mqtt-journal/internal/persist"
	"github.com/nerrad567/mqtt-journal/internal/query"
)

// maxListLimit caps the limit query parameter.
const maxListLimit = 10000

// messagesResponse is the body of the message list endpoints.
type messagesResponse struct {
	Messages []persist.Record `json:"messages"`
	Count    int              `json:"count"`
}

// journalSummary describes the in-memory journal in status responses.
type journalSummary struct {
	Size     int `json:"size"`
	Capacity int `json:"capacity"`
}

func newMessagesResponse(entries []journal.Entry) messagesResponse {
	records := make([]persist.Record, len(entries))
	for i, e := range entries {
		records[i] = persist.NewRecord(e)
	}
	return messagesResponse{Messages: records, Count: len(records)}
}

// parseLimit reads the limit query parameter. Absent means 0 (no limit).
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}

// selectEntries applies the topic (substring, "*" for all) and filter (MQTT
// wildcard) query parameters to a journal snapshot.
func selectEntries(r *http.Request, entries []journal.Entry) []journal.Entry {
	q := r.URL.Query()
	if q.Has("topic") {
		entries = query.FilterByTopic(entries, q.Get("topic"))
	}
	if filter := q.Get("filter"); filter != "" {
		entries = query.MatchFilter(entries, filter)
	}
	return entries
}

// streamSummary describes the live stream in status responses.
type streamSummary struct {
	Clients int    `json:"clients"`
	Dropped uint64 `json:"dropped"`
}

// handleStatus returns the session status, journal occupancy and live
// stream counters.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"session": s.deps.Session.Status(),
		"journal": journalSummary{Size: s.deps.Journal.Size(), Capacity: s.deps.Journal.Capacity()},
		"stream":  streamSummary{Clients: s.hub.ClientCount(), Dropped: s.hub.Dropped()},
	})
}

// handleStats returns statistics over the journal, optionally narrowed by
// the topic and filter query parameters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	entries := selectEntries(r, s.deps.Journal.Snapshot())
	writeJSON(w, http.StatusOK, query.Compute(entries))
}

// handleListMessages returns journal entries, oldest first.
//
// Query parameters: topic (substring, "*" for all, empty for none),
// filter (MQTT topic filter), limit (newest N after filtering).
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entries := selectEntries(r, s.deps.Journal.Snapshot())
	if limit > 0 {
		entries = query.Tail(entries, limit)
	}
	writeJSON(w, http.StatusOK, newMessagesResponse(entries))
}

// handleClearMessages empties the journal. The session message count is
// not reset.
func (s *Server) handleClearMessages(w http.ResponseWriter, _ *http.Request) {
	s.deps.Journal.Clear()
	s.logger.Info("journal cleared via API")
	w.WriteHeader(http.StatusNoContent)
}

// handleArchivedMessages returns archived messages, newest first.
func (s *Server) handleArchivedMessages(w http.ResponseWriter, r *http.Request) {
	if s.deps.Archive == nil {
		writeNotFound(w, "archive is not enabled")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	msgs, err := s.deps.Archive.Recent(r.Context(), r.URL.Query().Get("topic"), limit)
	if err != nil {
		s.logger.Error("archive query failed", "error", err)
		writeInternalError(w, "archive query failed")
		return
	}

	entries := make([]journal.Entry, len(msgs))
	for i, m := range msgs {
		entries[i] = m.Entry()
	}
	writeJSON(w, http.StatusOK, newMessagesResponse(entries))
}

// saveRequest is the optional body of POST /journal/save.
type saveRequest struct {
	Filename string `json:"filename"`
}

// handleSaveJournal writes the journal to the persistence directory. The
// filename defaults to mqtt_messages_<timestamp>.json; only its base name
// is used.
func (s *Server) handleSaveJournal(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	name := filepath.Base(req.Filename)
	if req.Filename == "" || name == "." || name == string(filepath.Separator) {
		name = persist.DefaultFilename(time.Now())
	}
	path := filepath.Join(s.deps.Persistence.Directory, name)

	entries := s.deps.Journal.Snapshot()
	if err := persist.Save(entries, path); err != nil {
		s.logger.Error("saving journal failed", "path", path, "error", err)
		writeInternalError(w, "saving journal failed")
		return
	}

	s.logger.Info("journal saved via API", "path", path, "count", len(entries))
	writeJSON(w, http.StatusOK, map[string]any{
		"path":  path,
		"count": len(entries),
	})
}
