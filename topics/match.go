// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topics

import "strings"

// Match checks if the topic matches the given filter according to MQTT
// wildcard rules. It works on the wire representation and agrees with the
// routing trie: '+' matches exactly one level (including an empty one) and
// a trailing '#' matches the rest of the topic at any depth, including zero
// further levels. The retained store uses it to scan stored topics against
// a new subscription.
func Match(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}
	if filter == topic {
		return true
	}

	filterLevels := strings.Split(filter, Separator)
	topicLevels := strings.Split(topic, Separator)

	for i, fLevel := range filterLevels {
		if fLevel == MultiLevel {
			// Matches the parent and everything below it.
			return true
		}

		if i >= len(topicLevels) {
			// Filter is longer than the topic and the extra level is
			// not '#', so "a/+" does not match "a".
			return false
		}

		if fLevel == SingleLevel {
			continue
		}

		if fLevel != topicLevels[i] {
			return false
		}
	}

	return len(filterLevels) == len(topicLevels)
}
