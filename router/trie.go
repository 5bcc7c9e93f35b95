// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package router implements the level-indexed routing trie that maps topic
// filters to payloads and matches published topics against them. The trie is
// generic over its payload type; the broker stores session-key sets in it and
// each session stores its granted QoS per filter.
//
// The structure itself is not synchronized. The broker and session hold it
// inside their own mutex-guarded state, so all mutation happens under the
// owner's lock.
package router

import (
	"github.com/absmach/voltmq/topics"
)

// Trie is an indexed map from topic filter to payload. Wildcard children
// live under the "+" and "#" keys of the children map; topic levels can
// never collide with them because the topic parser rejects wildcards.
type Trie[V any] struct {
	root *node[V]
}

type node[V any] struct {
	children map[string]*node[V]
	value    V
	ok       bool
}

// New returns an empty trie.
func New[V any]() *Trie[V] {
	return &Trie[V]{root: newNode[V]()}
}

func newNode[V any]() *node[V] {
	return &node[V]{children: make(map[string]*node[V])}
}

func (n *node[V]) empty() bool {
	return !n.ok && len(n.children) == 0
}

func (n *node[V]) clear() {
	var zero V
	n.value = zero
	n.ok = false
}

// InsertWith stores v at the node keyed by the filter. If a payload already
// exists there, it is replaced by combine(existing, v). Inserting the same
// filter twice never duplicates structure.
func (t *Trie[V]) InsertWith(combine func(old, v V) V, f topics.Filter, v V) {
	n := t.root
	for _, level := range f {
		child, ok := n.children[level]
		if !ok {
			child = newNode[V]()
			n.children[level] = child
		}
		n = child
	}
	if n.ok {
		n.value = combine(n.value, v)
		return
	}
	n.value = v
	n.ok = true
}

// Delete removes the payload stored exactly at the filter and prunes any
// nodes left without payload or children.
func (t *Trie[V]) Delete(f topics.Filter) {
	deleteLevels(t.root, f)
}

func deleteLevels[V any](n *node[V], levels []string) {
	if len(levels) == 0 {
		n.clear()
		return
	}
	child, ok := n.children[levels[0]]
	if !ok {
		return
	}
	deleteLevels(child, levels[1:])
	if child.empty() {
		delete(n.children, levels[0])
	}
}

// Adjust replaces the payload at the filter with fn(v). When fn reports the
// result as empty (keep == false), the payload is removed and the branch
// pruned. Filters with no payload are left untouched.
func (t *Trie[V]) Adjust(f topics.Filter, fn func(V) (V, bool)) {
	adjustLevels(t.root, f, fn)
}

func adjustLevels[V any](n *node[V], levels []string, fn func(V) (V, bool)) {
	if len(levels) == 0 {
		if !n.ok {
			return
		}
		v, keep := fn(n.value)
		if keep {
			n.value = v
			return
		}
		n.clear()
		return
	}
	child, ok := n.children[levels[0]]
	if !ok {
		return
	}
	adjustLevels(child, levels[1:], fn)
	if child.empty() {
		delete(n.children, levels[0])
	}
}

// DifferenceWith zips the trie with other. Where both carry a payload at the
// same filter, the payload becomes sub(left, right), or is removed when sub
// reports it empty. Left-only payloads are kept, right-only payloads are
// ignored. Emptied branches are pruned.
func (t *Trie[V]) DifferenceWith(sub func(left, right V) (V, bool), other *Trie[V]) {
	differenceLevels(t.root, other.root, sub)
}

func differenceLevels[V any](n, o *node[V], sub func(left, right V) (V, bool)) {
	if n.ok && o.ok {
		v, keep := sub(n.value, o.value)
		if keep {
			n.value = v
		} else {
			n.clear()
		}
	}
	for level, child := range n.children {
		ochild, ok := o.children[level]
		if !ok {
			continue
		}
		differenceLevels(child, ochild, sub)
		if child.empty() {
			delete(n.children, level)
		}
	}
}

// MapValues transforms every payload of t into a new trie, leaving t
// untouched. The broker uses it to project a session's QoS trie into a trie
// of singleton session-key sets when tearing the session down.
func MapValues[V, W any](t *Trie[V], fn func(V) W) *Trie[W] {
	return &Trie[W]{root: mapNode(t.root, fn)}
}

func mapNode[V, W any](n *node[V], fn func(V) W) *node[W] {
	m := newNode[W]()
	if n.ok {
		m.value = fn(n.value)
		m.ok = true
	}
	for level, child := range n.children {
		m.children[level] = mapNode(child, fn)
	}
	return m
}

// LookupWith returns the payload of every filter matching the topic,
// combined with the given associative combine. The second return value is
// false when no stored filter matches.
//
// Matching walks the trie in lockstep with the topic: at each level it
// descends into the literal child and the "+" child, and takes the "#"
// child's payload directly since "#" matches the remainder unconditionally,
// including zero further levels. After the last topic level the payload of
// the current node contributes as well.
func (t *Trie[V]) LookupWith(combine func(a, b V) V, topic topics.Topic) (V, bool) {
	var acc V
	found := false
	add := func(v V) {
		if found {
			acc = combine(acc, v)
			return
		}
		acc = v
		found = true
	}
	lookupLevels(t.root, topic, add)
	return acc, found
}

func lookupLevels[V any](n *node[V], levels []string, add func(V)) {
	if hash, ok := n.children[topics.MultiLevel]; ok && hash.ok {
		add(hash.value)
	}
	if len(levels) == 0 {
		if n.ok {
			add(n.value)
		}
		return
	}
	if child, ok := n.children[levels[0]]; ok {
		lookupLevels(child, levels[1:], add)
	}
	if child, ok := n.children[topics.SingleLevel]; ok {
		lookupLevels(child, levels[1:], add)
	}
}

// Lookup returns the payload stored exactly at the filter, without any
// wildcard matching.
func (t *Trie[V]) Lookup(f topics.Filter) (V, bool) {
	n := t.root
	for _, level := range f {
		child, ok := n.children[level]
		if !ok {
			var zero V
			return zero, false
		}
		n = child
	}
	return n.value, n.ok
}

// Walk visits every stored (filter, payload) pair. Visit order is
// unspecified.
func (t *Trie[V]) Walk(fn func(topics.Filter, V)) {
	walkNode(t.root, nil, fn)
}

func walkNode[V any](n *node[V], prefix []string, fn func(topics.Filter, V)) {
	if n.ok {
		f := make(topics.Filter, len(prefix))
		copy(f, prefix)
		fn(f, n.value)
	}
	for level, child := range n.children {
		walkNode(child, append(prefix, level), fn)
	}
}

// Len returns the number of stored payloads.
func (t *Trie[V]) Len() int {
	count := 0
	t.Walk(func(topics.Filter, V) { count++ })
	return count
}

// IsEmpty reports whether the trie holds no payloads at all.
func (t *Trie[V]) IsEmpty() bool {
	return t.root.empty()
}
