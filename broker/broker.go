// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package broker implements the MQTT broker state machine: the session
// registry, the broker-wide subscription index, and publish dispatch into
// per-session queues. Transport servers accept connections and hand them to
// HandleConnection; everything else in this package is transport-agnostic.
package broker

import (
	"log/slog"
	"sync"

	"github.com/absmach/voltmq/broker/events"
	"github.com/absmach/voltmq/router"
	"github.com/absmach/voltmq/server/otel"
	"github.com/absmach/voltmq/storage"
	"github.com/absmach/voltmq/topics"
)

// DefaultQueueDepth bounds each per-QoS session queue unless configured
// otherwise.
const DefaultQueueDepth = 1000

// Notifier receives broker lifecycle events. Implementations deliver them to
// external systems; a nil notifier disables eventing.
type Notifier interface {
	Notify(event events.Event)
}

// Broker is the core broker state. All fields behind mu form one mutually
// exclusive cell; read-only snapshots are copied out under the lock. Any
// operation that needs both a session lock and the broker lock acquires the
// session lock first (see Session).
type Broker struct {
	mu             sync.Mutex
	nextSessionKey uint64
	subscriptions  *router.Trie[router.SessionSet]
	sessions       map[uint64]*Session
	clientIDs      map[string]uint64

	logger     *slog.Logger
	retained   storage.RetainedStore
	auth       Authenticator
	notifier   Notifier
	metrics    *otel.Metrics
	maxQoS     router.QoS
	queueDepth int
}

// Option configures a broker.
type Option func(*Broker)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) { b.logger = logger }
}

// WithRetainedStore sets the retained-message store.
func WithRetainedStore(store storage.RetainedStore) Option {
	return func(b *Broker) { b.retained = store }
}

// WithAuthenticator sets the CONNECT authentication backend.
func WithAuthenticator(auth Authenticator) Option {
	return func(b *Broker) { b.auth = auth }
}

// WithNotifier sets the lifecycle event notifier.
func WithNotifier(n Notifier) Option {
	return func(b *Broker) { b.notifier = n }
}

// WithMetrics sets the OTel metric instruments.
func WithMetrics(m *otel.Metrics) Option {
	return func(b *Broker) { b.metrics = m }
}

// WithMaxQoS caps the QoS granted on subscriptions.
func WithMaxQoS(q router.QoS) Option {
	return func(b *Broker) { b.maxQoS = q }
}

// WithQueueDepth bounds each per-QoS session queue.
func WithQueueDepth(depth int) Option {
	return func(b *Broker) { b.queueDepth = depth }
}

// New creates an empty broker.
func New(opts ...Option) *Broker {
	b := &Broker{
		subscriptions: router.New[router.SessionSet](),
		sessions:      make(map[uint64]*Session),
		clientIDs:     make(map[string]uint64),
		logger:        slog.Default(),
		maxQoS:        router.QoS2,
		queueDepth:    DefaultQueueDepth,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.queueDepth <= 0 {
		b.queueDepth = DefaultQueueDepth
	}
	return b
}

// CreateSession allocates a fresh session, registers it, and returns the
// handle. Session keys are strictly increasing and never reused within a
// broker lifetime.
func (b *Broker) CreateSession(clientID string) *Session {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSessionKey++
	s := newSession(b, b.nextSessionKey, clientID, b.queueDepth)
	b.sessions[s.key] = s
	b.clientIDs[clientID] = s.key

	b.metrics.SessionOpened()
	return s
}

// CloseSession removes the session's contributions from the broker-wide
// subscription index and drops it from the registry. It is idempotent;
// publishes racing with the close are dropped for this session.
func (b *Broker) CloseSession(s *Session) {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return
	}
	s.state = StateClosing

	// Project the session's filters into singleton key sets; differencing
	// this out of the broker trie removes exactly this session's entries.
	key := s.key
	contributed := router.MapValues(s.subscriptions, func(router.QoS) router.SessionSet {
		return router.NewSessionSet(key)
	})
	removed := s.subscriptions.Len()

	b.mu.Lock()
	b.subscriptions.DifferenceWith(router.SessionSet.Diff, contributed)
	delete(b.sessions, s.key)
	if b.clientIDs[s.clientID] == s.key {
		delete(b.clientIDs, s.clientID)
	}
	b.mu.Unlock()

	s.state = StateClosed
	close(s.done)
	s.mu.Unlock()

	b.metrics.SessionClosed()
	b.metrics.SubscriptionsRemoved(removed)
	b.logger.Debug("session closed",
		slog.Uint64("session_key", s.key),
		slog.String("client_id", s.clientID))
}

// Publish dispatches the message to every session subscribed to a filter
// matching the topic and returns the number of deliveries. The broker lock
// is held only long enough to snapshot the matching session handles, so
// deliveries to different sessions proceed concurrently.
func (b *Broker) Publish(topic topics.Topic, msg *storage.Message) int {
	b.mu.Lock()
	keys := router.Sessions(b.subscriptions, topic)
	recipients := make([]*Session, 0, len(keys))
	for key := range keys {
		if s, ok := b.sessions[key]; ok {
			recipients = append(recipients, s)
		}
	}
	b.mu.Unlock()

	delivered := 0
	for _, s := range recipients {
		if s.deliver(topic, msg) {
			delivered++
		}
	}

	b.metrics.MessagesDelivered(delivered)
	return delivered
}

// Session returns the session handle for a key, if still registered.
func (b *Broker) Session(key uint64) (*Session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[key]
	return s, ok
}

// SessionByClientID returns the session currently registered for a client
// identifier, used for session takeover on reconnect.
func (b *Broker) SessionByClientID(clientID string) (*Session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key, ok := b.clientIDs[clientID]
	if !ok {
		return nil, false
	}
	s, ok := b.sessions[key]
	return s, ok
}

// SessionCount returns the number of registered sessions.
func (b *Broker) SessionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// Subscribers returns the keys of every session subscribed to a filter
// matching the topic.
func (b *Broker) Subscribers(topic topics.Topic) router.SessionSet {
	b.mu.Lock()
	defer b.mu.Unlock()
	return router.Sessions(b.subscriptions, topic).Clone()
}

func (b *Broker) notify(event events.Event) {
	if b.notifier == nil {
		return
	}
	b.notifier.Notify(event)
}
