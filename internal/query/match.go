package query

import "strings"

// TopicMatches reports whether topic matches the MQTT topic filter.
//
// "+" matches exactly one level and "#" matches the parent level and any
// number of children; "#" must be the last level. Topics starting with "$"
// are only matched by filters whose first level is not a wildcard.
func TopicMatches(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}
	if filter == topic {
		return true
	}

	filterLevels := strings.Split(filter, "/")
	topicLevels := strings.Split(topic, "/")

	if strings.HasPrefix(topic, "$") && (filterLevels[0] == "+" || filterLevels[0] == "#") {
		return false
	}

	for i, level := range filterLevels {
		if level == "#" {
			return i == len(filterLevels)-1
		}
		if i >= len(topicLevels) {
			return false
		}
		if level != "+" && level != topicLevels[i] {
			return false
		}
	}

	return len(filterLevels) == len(topicLevels)
}
