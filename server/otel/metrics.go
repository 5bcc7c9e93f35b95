// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package otel holds the OpenTelemetry metric instruments the broker
// records into. Instruments are created against the global meter provider;
// with no SDK installed they are no-ops, so the broker can always record.
package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the broker's metric instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	connectionsTotal  metric.Int64Counter
	messagesReceived  metric.Int64Counter
	messagesDelivered metric.Int64Counter

	sessionsActive      metric.Int64UpDownCounter
	subscriptionsActive metric.Int64UpDownCounter
}

// NewMetrics creates a Metrics instance with all instruments initialized.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{}
	meter := otel.Meter("voltmq")

	var err error

	m.connectionsTotal, err = meter.Int64Counter(
		"mqtt.connections.total",
		metric.WithDescription("Total number of accepted MQTT connections"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connectionsTotal counter: %w", err)
	}

	m.messagesReceived, err = meter.Int64Counter(
		"mqtt.messages.received.total",
		metric.WithDescription("Total PUBLISH packets received from clients"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messagesReceived counter: %w", err)
	}

	m.messagesDelivered, err = meter.Int64Counter(
		"mqtt.messages.delivered.total",
		metric.WithDescription("Total messages enqueued for delivery to sessions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messagesDelivered counter: %w", err)
	}

	m.sessionsActive, err = meter.Int64UpDownCounter(
		"mqtt.sessions.active",
		metric.WithDescription("Currently registered sessions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sessionsActive counter: %w", err)
	}

	m.subscriptionsActive, err = meter.Int64UpDownCounter(
		"mqtt.subscriptions.active",
		metric.WithDescription("Currently registered subscriptions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriptionsActive counter: %w", err)
	}

	return m, nil
}

// ConnectionAccepted records an accepted transport connection.
func (m *Metrics) ConnectionAccepted() {
	if m == nil {
		return
	}
	m.connectionsTotal.Add(context.Background(), 1)
}

// MessageReceived records an inbound PUBLISH.
func (m *Metrics) MessageReceived() {
	if m == nil {
		return
	}
	m.messagesReceived.Add(context.Background(), 1)
}

// MessagesDelivered records messages enqueued for delivery.
func (m *Metrics) MessagesDelivered(n int) {
	if m == nil || n == 0 {
		return
	}
	m.messagesDelivered.Add(context.Background(), int64(n))
}

// SessionOpened records a session registration.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Add(context.Background(), 1)
}

// SessionClosed records a session teardown.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Add(context.Background(), -1)
}

// SubscriptionsAdded records granted subscription filters.
func (m *Metrics) SubscriptionsAdded(n int) {
	if m == nil || n == 0 {
		return
	}
	m.subscriptionsActive.Add(context.Background(), int64(n))
}

// SubscriptionsRemoved records removed subscription filters.
func (m *Metrics) SubscriptionsRemoved(n int) {
	if m == nil || n == 0 {
		return
	}
	m.subscriptionsActive.Add(context.Background(), int64(-n))
}
