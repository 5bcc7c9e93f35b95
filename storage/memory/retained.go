// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package memory provides the in-process retained-message store.
package memory

import (
	"context"
	"sync"

	"github.com/absmach/voltmq/storage"
	"github.com/absmach/voltmq/topics"
)

var _ storage.RetainedStore = (*RetainedStore)(nil)

// RetainedStore is an in-memory implementation of storage.RetainedStore.
type RetainedStore struct {
	mu   sync.RWMutex
	data map[string]*storage.Message // topic -> message
}

// NewRetainedStore creates a new in-memory retained message store.
func NewRetainedStore() *RetainedStore {
	return &RetainedStore{
		data: make(map[string]*storage.Message),
	}
}

// Set stores or updates a retained message. An empty payload deletes the
// retained message per the MQTT contract.
func (s *RetainedStore) Set(_ context.Context, topic string, msg *storage.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg == nil || len(msg.Payload) == 0 {
		delete(s.data, topic)
		return nil
	}

	s.data[topic] = storage.CopyMessage(msg)
	return nil
}

// Get retrieves a retained message by exact topic.
func (s *RetainedStore) Get(_ context.Context, topic string) (*storage.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.data[topic]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return storage.CopyMessage(msg), nil
}

// Delete removes a retained message.
func (s *RetainedStore) Delete(_ context.Context, topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, topic)
	return nil
}

// Match returns all retained messages matching a filter.
func (s *RetainedStore) Match(_ context.Context, filter string) ([]*storage.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*storage.Message
	for topic, msg := range s.data {
		if topics.Match(filter, topic) {
			result = append(result, storage.CopyMessage(msg))
		}
	}

	return result, nil
}
