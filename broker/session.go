// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"sync"
	"sync/atomic"

	"github.com/absmach/voltmq/router"
	"github.com/absmach/voltmq/storage"
	"github.com/absmach/voltmq/topics"
)

// State represents the session lifecycle state. Transitions are one-way:
// open -> closing -> closed.
type State int

const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SubscriptionRequest pairs a parsed filter with the QoS the client asked
// for.
type SubscriptionRequest struct {
	Filter topics.Filter
	QoS    router.QoS
}

// Session is the per-client state the broker holds: the client's own
// subscription trie (filter -> granted QoS) and one FIFO queue per QoS
// level. Sessions are independent mutually exclusive cells; when a session
// lock and the broker lock are both needed, the session lock is always
// taken first.
type Session struct {
	broker *Broker // non-owning back-reference; the broker controls lifetime

	key      uint64
	clientID string

	mu            sync.Mutex
	state         State
	subscriptions *router.Trie[router.QoS]
	qos0          *messageQueue
	qos1          *messageQueue
	qos2          *messageQueue

	wake chan struct{} // pulsed on enqueue, consumed by the dispatch loop
	done chan struct{} // closed when the session reaches StateClosed

	// onOverflow tears down the session's connection when a QoS 1/2 queue
	// overflows. Set by the connection handler; may be nil.
	onOverflow func()

	nextPacketID uint32
}

func newSession(b *Broker, key uint64, clientID string, queueDepth int) *Session {
	return &Session{
		broker:        b,
		key:           key,
		clientID:      clientID,
		state:         StateOpen,
		subscriptions: router.New[router.QoS](),
		qos0:          newMessageQueue(queueDepth),
		qos1:          newMessageQueue(queueDepth),
		qos2:          newMessageQueue(queueDepth),
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
}

// Key returns the broker-assigned session key.
func (s *Session) Key() uint64 {
	return s.key
}

// ClientID returns the client identifier the session was created for.
func (s *Session) ClientID() string {
	return s.clientID
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers the filters in both the session trie and the broker
// index as one observable transition: the session lock is taken first, then
// the broker lock, and both tries are updated before either is released.
// QoS grants for overlapping inserts combine as max.
func (s *Session) Subscribe(reqs []SubscriptionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return ErrSessionClosed
	}

	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	added := 0
	for _, req := range reqs {
		if _, ok := s.subscriptions.Lookup(req.Filter); !ok {
			added++
		}
		s.subscriptions.InsertWith(router.MaxQoS, req.Filter, req.QoS)
		b.subscriptions.InsertWith(router.SessionSet.Union, req.Filter, router.NewSessionSet(s.key))
	}

	b.metrics.SubscriptionsAdded(added)
	return nil
}

// Unsubscribe removes the filters from the session trie and withdraws this
// session's key from the broker index, pruning emptied entries. Unknown
// filters are ignored.
func (s *Session) Unsubscribe(filters []topics.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return ErrSessionClosed
	}

	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for _, f := range filters {
		if _, ok := s.subscriptions.Lookup(f); ok {
			removed++
		}
		s.subscriptions.Delete(f)
		b.subscriptions.Adjust(f, func(set router.SessionSet) (router.SessionSet, bool) {
			return set.Without(s.key)
		})
	}

	b.metrics.SubscriptionsRemoved(removed)
	return nil
}

// SubscribedQoS returns the effective QoS the session holds for a topic:
// the max across all of its matching filters.
func (s *Session) SubscribedQoS(topic topics.Topic) (router.QoS, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscriptions.LookupWith(router.MaxQoS, topic)
}

// deliver enqueues the message onto the queue matching the session's
// effective QoS for the topic. Messages for unmatched topics and sessions
// that are closing are dropped. QoS 0 queue overflow drops silently per the
// MQTT contract; QoS 1/2 overflow signals connection teardown.
func (s *Session) deliver(topic topics.Topic, msg *storage.Message) bool {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return false
	}

	qos, ok := s.subscriptions.LookupWith(router.MaxQoS, topic)
	if !ok {
		s.mu.Unlock()
		return false
	}

	queued := storage.CopyMessage(msg)
	queued.Topic = topic.String()
	queued.QoS = byte(qos)

	err := s.queue(qos).enqueue(queued)
	overflow := s.onOverflow
	s.mu.Unlock()

	if err != nil {
		if qos == router.QoS0 {
			return false
		}
		if overflow != nil {
			overflow()
		}
		return false
	}

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// Dequeue pops the next queued message, draining higher-QoS queues first.
// It returns false when every queue is empty.
func (s *Session) Dequeue() (*storage.Message, router.QoS, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, qos := range []router.QoS{router.QoS2, router.QoS1, router.QoS0} {
		if msg := s.queue(qos).dequeue(); msg != nil {
			return msg, qos, true
		}
	}
	return nil, router.QoS0, false
}

// QueueLen returns the number of messages waiting on the queue for the
// given QoS level.
func (s *Session) QueueLen(qos router.QoS) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue(qos).len()
}

// Wake signals that at least one message was enqueued since the last drain.
func (s *Session) Wake() <-chan struct{} {
	return s.wake
}

// Done is closed once the session is fully closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// NextPacketID generates the next outbound packet identifier, skipping the
// reserved zero value.
func (s *Session) NextPacketID() uint16 {
	for {
		id := uint16(atomic.AddUint32(&s.nextPacketID, 1) & 0xFFFF)
		if id != 0 {
			return id
		}
	}
}

// setOnOverflow installs the teardown hook invoked on QoS 1/2 queue
// overflow.
func (s *Session) setOnOverflow(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onOverflow = fn
}

// queue must be called with s.mu held.
func (s *Session) queue(qos router.QoS) *messageQueue {
	switch qos {
	case router.QoS2:
		return s.qos2
	case router.QoS1:
		return s.qos1
	default:
		return s.qos0
	}
}
