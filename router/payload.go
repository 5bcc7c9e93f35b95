// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package router

import "github.com/absmach/voltmq/topics"

// SessionSet is the payload the broker stores in its subscription trie: the
// set of session keys subscribed to a filter. Union is the insert combine,
// set difference the unsubscribe operation; both are idempotent.
type SessionSet map[uint64]struct{}

// NewSessionSet builds a set from the given keys.
func NewSessionSet(keys ...uint64) SessionSet {
	s := make(SessionSet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Union returns a new set holding every key of s and other. Neither operand
// is mutated; trie payloads may be shared across snapshots.
func (s SessionSet) Union(other SessionSet) SessionSet {
	merged := make(SessionSet, len(s)+len(other))
	for k := range s {
		merged[k] = struct{}{}
	}
	for k := range other {
		merged[k] = struct{}{}
	}
	return merged
}

// Diff returns s minus other and reports whether anything remains.
func (s SessionSet) Diff(other SessionSet) (SessionSet, bool) {
	remaining := make(SessionSet, len(s))
	for k := range s {
		if _, drop := other[k]; !drop {
			remaining[k] = struct{}{}
		}
	}
	return remaining, len(remaining) > 0
}

// Without returns s minus a single key and reports whether anything remains.
func (s SessionSet) Without(key uint64) (SessionSet, bool) {
	return s.Diff(NewSessionSet(key))
}

// Contains reports membership.
func (s SessionSet) Contains(key uint64) bool {
	_, ok := s[key]
	return ok
}

// Clone returns an independent copy of the set.
func (s SessionSet) Clone() SessionSet {
	c := make(SessionSet, len(s))
	for k := range s {
		c[k] = struct{}{}
	}
	return c
}

// Sessions returns the union of the payloads of every filter in the trie
// matching the topic. It is the publish-side entry point of the broker.
func Sessions(t *Trie[SessionSet], topic topics.Topic) SessionSet {
	set, ok := t.LookupWith(SessionSet.Union, topic)
	if !ok {
		return nil
	}
	return set
}

// QoS is the MQTT delivery quality-of-service level. The levels are totally
// ordered, QoS0 < QoS1 < QoS2, and combine as max: subscribing to
// overlapping filters yields the strongest grant.
type QoS byte

const (
	QoS0 QoS = iota
	QoS1
	QoS2
)

func (q QoS) String() string {
	switch q {
	case QoS0:
		return "qos0"
	case QoS1:
		return "qos1"
	case QoS2:
		return "qos2"
	default:
		return "invalid"
	}
}

// Valid reports whether q is one of the three defined levels.
func (q QoS) Valid() bool {
	return q <= QoS2
}

// MaxQoS is the combine for QoS payloads. It is an explicit max, not a
// right-biased pick, so overlapping subscriptions always keep the strongest
// grant regardless of insertion order.
func MaxQoS(a, b QoS) QoS {
	if a > b {
		return a
	}
	return b
}
