package mqtt

import (
	"fmt"
	"strings"
)

// Topic wildcards.
const (
	// WildcardSingle matches exactly one topic level.
	WildcardSingle = "+"

	// WildcardMulti matches the parent level and any number of children.
	// It must be the last level of a filter.
	WildcardMulti = "#"

	// topicSeparator separates topic levels.
	topicSeparator = "/"
)

// ValidateTopicFilter checks a subscription filter.
//
// A filter is valid when it is non-empty, "#" appears only as the whole last
// level, and "+" appears only as a whole level.
//
// Returns:
//   - error: ErrInvalidTopic wrapped with the reason, or nil
func ValidateTopicFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}

	levels := strings.Split(filter, topicSeparator)
	for i, level := range levels {
		switch {
		case level == WildcardMulti:
			if i != len(levels)-1 {
				return fmt.Errorf("%w: %q: # must be the last level", ErrInvalidTopic, filter)
			}
		case level == WildcardSingle:
		case strings.ContainsAny(level, WildcardSingle+WildcardMulti):
			return fmt.Errorf("%w: %q: wildcards must occupy a whole level", ErrInvalidTopic, filter)
		}
	}
	return nil
}

// ValidateTopicName checks a topic used for publishing. Topic names must be
// non-empty and must not contain wildcards.
func ValidateTopicName(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	if strings.ContainsAny(topic, WildcardSingle+WildcardMulti) {
		return fmt.Errorf("%w: %q: wildcards are not allowed in a publish topic", ErrInvalidTopic, topic)
	}
	return nil
}
