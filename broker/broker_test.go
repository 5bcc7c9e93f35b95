// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/voltmq/router"
	"github.com/absmach/voltmq/storage"
	"github.com/absmach/voltmq/topics"
)

func mustTopic(t *testing.T, s string) topics.Topic {
	t.Helper()
	topic, err := topics.ParseTopic(s)
	require.NoError(t, err)
	return topic
}

func mustFilter(t *testing.T, s string) topics.Filter {
	t.Helper()
	f, err := topics.ParseFilter(s)
	require.NoError(t, err)
	return f
}

func subscribe(t *testing.T, s *Session, filter string, qos router.QoS) {
	t.Helper()
	require.NoError(t, s.Subscribe([]SubscriptionRequest{{Filter: mustFilter(t, filter), QoS: qos}}))
}

func TestSessionKeysStrictlyIncreasing(t *testing.T) {
	b := New()

	s1 := b.CreateSession("c1")
	s2 := b.CreateSession("c2")
	s3 := b.CreateSession("c3")

	assert.Equal(t, uint64(1), s1.Key())
	assert.Equal(t, uint64(2), s2.Key())
	assert.Equal(t, uint64(3), s3.Key())

	// Keys are never reused, even after a close.
	b.CloseSession(s3)
	s4 := b.CreateSession("c4")
	assert.Equal(t, uint64(4), s4.Key())
}

func TestPublishDeliversToMatchingSession(t *testing.T) {
	b := New()
	s1 := b.CreateSession("c1")
	s2 := b.CreateSession("c2")

	subscribe(t, s1, "a/+", router.QoS1)

	delivered := b.Publish(mustTopic(t, "a/x"), &storage.Message{Topic: "a/x", Payload: []byte("m")})
	assert.Equal(t, 1, delivered)

	require.Equal(t, 1, s1.QueueLen(router.QoS1))
	assert.Zero(t, s1.QueueLen(router.QoS0))
	assert.Zero(t, s1.QueueLen(router.QoS2))

	msg, qos, ok := s1.Dequeue()
	require.True(t, ok)
	assert.Equal(t, router.QoS1, qos)
	assert.Equal(t, "a/x", msg.Topic)
	assert.Equal(t, []byte("m"), msg.Payload)

	for _, q := range []router.QoS{router.QoS0, router.QoS1, router.QoS2} {
		assert.Zero(t, s2.QueueLen(q), "non-subscriber queues stay empty")
	}
}

func TestPublishMaxQoSWins(t *testing.T) {
	b := New()
	s1 := b.CreateSession("c1")

	subscribe(t, s1, "a/+", router.QoS0)
	subscribe(t, s1, "a/#", router.QoS2)

	b.Publish(mustTopic(t, "a/b"), &storage.Message{Topic: "a/b", Payload: []byte("m")})

	assert.Equal(t, 1, s1.QueueLen(router.QoS2), "max of the matching grants wins")
	assert.Zero(t, s1.QueueLen(router.QoS0))
	assert.Zero(t, s1.QueueLen(router.QoS1))
}

func TestCloseSessionRemovesSubscriptions(t *testing.T) {
	b := New()
	s1 := b.CreateSession("c1")

	subscribe(t, s1, "a/b", router.QoS1)
	require.True(t, b.Subscribers(mustTopic(t, "a/b")).Contains(s1.Key()))

	b.CloseSession(s1)

	assert.Empty(t, b.Subscribers(mustTopic(t, "a/b")), "broker index holds no entry after close")
	assert.Zero(t, b.Publish(mustTopic(t, "a/b"), &storage.Message{Topic: "a/b"}))
	assert.Equal(t, StateClosed, s1.State())
	assert.Zero(t, b.SessionCount())
}

func TestCloseSessionIdempotent(t *testing.T) {
	b := New()
	s := b.CreateSession("c1")
	b.CloseSession(s)
	b.CloseSession(s)
	assert.Equal(t, StateClosed, s.State())
}

func TestClosedSessionRejectsOperations(t *testing.T) {
	b := New()
	s := b.CreateSession("c1")
	subscribe(t, s, "a", router.QoS0)
	b.CloseSession(s)

	err := s.Subscribe([]SubscriptionRequest{{Filter: mustFilter(t, "b"), QoS: router.QoS0}})
	assert.ErrorIs(t, err, ErrSessionClosed)

	err = s.Unsubscribe([]topics.Filter{mustFilter(t, "a")})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestPublishPreservesOrder(t *testing.T) {
	b := New()
	s := b.CreateSession("c1")
	subscribe(t, s, "a", router.QoS1)

	const count = 50
	for i := 0; i < count; i++ {
		b.Publish(mustTopic(t, "a"), &storage.Message{
			Topic:   "a",
			Payload: []byte(fmt.Sprintf("m%03d", i)),
		})
	}

	for i := 0; i < count; i++ {
		msg, _, ok := s.Dequeue()
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("m%03d", i), string(msg.Payload), "per-queue FIFO preserves publish order")
	}
}

func TestConcurrentPublishesAllArrive(t *testing.T) {
	b := New(WithQueueDepth(10000))
	s := b.CreateSession("c1")
	subscribe(t, s, "a", router.QoS1)

	const publishers = 8
	const perPublisher = 100

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				b.Publish(mustTopic(t, "a"), &storage.Message{Topic: "a", Payload: []byte("m")})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, publishers*perPublisher, s.QueueLen(router.QoS1))
}

func TestUnsubscribePrunesBrokerIndex(t *testing.T) {
	b := New()
	s1 := b.CreateSession("c1")
	s2 := b.CreateSession("c2")

	subscribe(t, s1, "a/+", router.QoS1)
	subscribe(t, s2, "a/+", router.QoS1)

	require.NoError(t, s1.Unsubscribe([]topics.Filter{mustFilter(t, "a/+")}))

	set := b.Subscribers(mustTopic(t, "a/x"))
	assert.False(t, set.Contains(s1.Key()))
	assert.True(t, set.Contains(s2.Key()))

	require.NoError(t, s2.Unsubscribe([]topics.Filter{mustFilter(t, "a/+")}))
	assert.Empty(t, b.Subscribers(mustTopic(t, "a/x")), "last unsubscribe prunes the entry")
}

func TestDeliverDropsWithoutMatchingFilter(t *testing.T) {
	b := New()
	s := b.CreateSession("c1")
	subscribe(t, s, "a", router.QoS0)

	// The broker index can briefly hold stale keys during races; deliver
	// re-checks the session's own trie and drops unmatched topics.
	assert.False(t, s.deliver(mustTopic(t, "b"), &storage.Message{Topic: "b"}))
	assert.Zero(t, s.QueueLen(router.QoS0))
}

func TestQoS0OverflowDropsSilently(t *testing.T) {
	b := New(WithQueueDepth(1))
	s := b.CreateSession("c1")
	subscribe(t, s, "a", router.QoS0)

	overflowed := false
	s.setOnOverflow(func() { overflowed = true })

	b.Publish(mustTopic(t, "a"), &storage.Message{Topic: "a", Payload: []byte("1")})
	b.Publish(mustTopic(t, "a"), &storage.Message{Topic: "a", Payload: []byte("2")})

	assert.Equal(t, 1, s.QueueLen(router.QoS0))
	assert.False(t, overflowed, "QoS 0 overflow drops without teardown")
}

func TestQoS1OverflowSignalsTeardown(t *testing.T) {
	b := New(WithQueueDepth(1))
	s := b.CreateSession("c1")
	subscribe(t, s, "a", router.QoS1)

	overflowed := false
	s.setOnOverflow(func() { overflowed = true })

	b.Publish(mustTopic(t, "a"), &storage.Message{Topic: "a", Payload: []byte("1")})
	b.Publish(mustTopic(t, "a"), &storage.Message{Topic: "a", Payload: []byte("2")})

	assert.True(t, overflowed, "QoS 1 overflow tears the connection down")
}

func TestSubscribeGrantCombinesAsMax(t *testing.T) {
	b := New()
	s := b.CreateSession("c1")

	subscribe(t, s, "a/+", router.QoS0)
	subscribe(t, s, "a/+", router.QoS2)
	subscribe(t, s, "a/+", router.QoS1)

	qos, ok := s.SubscribedQoS(mustTopic(t, "a/x"))
	require.True(t, ok)
	assert.Equal(t, router.QoS2, qos)
}

func TestSessionByClientID(t *testing.T) {
	b := New()
	s := b.CreateSession("c1")

	got, ok := b.SessionByClientID("c1")
	require.True(t, ok)
	assert.Same(t, s, got)

	b.CloseSession(s)
	_, ok = b.SessionByClientID("c1")
	assert.False(t, ok)
}

func TestQueuedMessageDoesNotAliasPublisherBuffer(t *testing.T) {
	b := New()
	s := b.CreateSession("c1")
	subscribe(t, s, "a", router.QoS0)

	payload := []byte("original")
	b.Publish(mustTopic(t, "a"), &storage.Message{Topic: "a", Payload: payload})
	payload[0] = 'X'

	msg, _, ok := s.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "original", string(msg.Payload))
}
