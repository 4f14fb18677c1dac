package query

import (
	"strings"
	"time"

	"github.com/nerrad567/mqtt-journal/internal/journal"
)

// MatchAll is the FilterByTopic pattern that selects every entry.
const MatchAll = "*"

// Statistics summarises a journal snapshot.
type Statistics struct {
	TotalMessages    int            `json:"total_messages"`
	UniqueTopics     int            `json:"unique_topics"`
	TopicsCount      map[string]int `json:"topics_count"`
	FirstMessageTime *time.Time     `json:"first_message_time"`
	LastMessageTime  *time.Time     `json:"last_message_time"`
}

// Compute builds Statistics for entries from scratch.
//
// For an empty input TotalMessages and UniqueTopics are 0, TopicsCount is an
// empty (non-nil) map and both times are nil. Otherwise the first and last
// times are taken from the first and last entries, which are in arrival
// order.
func Compute(entries []journal.Entry) Statistics {
	stats := Statistics{
		TotalMessages: len(entries),
		TopicsCount:   make(map[string]int),
	}
	if len(entries) == 0 {
		return stats
	}

	for _, e := range entries {
		stats.TopicsCount[e.Topic]++
	}
	stats.UniqueTopics = len(stats.TopicsCount)

	first := entries[0].Timestamp
	last := entries[len(entries)-1].Timestamp
	stats.FirstMessageTime = &first
	stats.LastMessageTime = &last

	return stats
}

// FilterByTopic returns the entries whose topic contains pattern as a
// substring, in their original order.
//
// The pattern "*" selects every entry. An empty pattern selects nothing.
func FilterByTopic(entries []journal.Entry, pattern string) []journal.Entry {
	if pattern == "" {
		return []journal.Entry{}
	}
	if pattern == MatchAll {
		out := make([]journal.Entry, len(entries))
		copy(out, entries)
		return out
	}

	out := make([]journal.Entry, 0)
	for _, e := range entries {
		if strings.Contains(e.Topic, pattern) {
			out = append(out, e)
		}
	}
	return out
}

// MatchFilter returns the entries whose topic matches the MQTT topic filter,
// which may use the + and # wildcards. Order is preserved.
func MatchFilter(entries []journal.Entry, filter string) []journal.Entry {
	out := make([]journal.Entry, 0)
	for _, e := range entries {
		if TopicMatches(filter, e.Topic) {
			out = append(out, e)
		}
	}
	return out
}

// Tail returns the last n entries. A non-positive n returns an empty slice;
// n larger than len(entries) returns all of them.
func Tail(entries []journal.Entry, n int) []journal.Entry {
	if n <= 0 {
		return []journal.Entry{}
	}
	if n > len(entries) {
		n = len(entries)
	}
	out := make([]journal.Entry, n)
	copy(out, entries[len(entries)-n:])
	return out
}
