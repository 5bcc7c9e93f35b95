// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package events defines the broker lifecycle events handed to external
// notifiers.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type constants.
const (
	TypeClientConnected     = "client.connected"
	TypeClientDisconnected  = "client.disconnected"
	TypeSubscriptionCreated = "subscription.created"
	TypeSubscriptionRemoved = "subscription.removed"
)

// Event is the common interface for all lifecycle events.
type Event interface {
	// Type returns the event type identifier (e.g., "client.connected")
	Type() string

	// Wrap wraps the event in a common envelope with metadata
	Wrap(brokerID string) *Envelope
}

// Envelope is the common wrapper for all events.
type Envelope struct {
	EventType string `json:"event_type"`
	EventID   string `json:"event_id"`
	Timestamp string `json:"timestamp"`
	BrokerID  string `json:"broker_id"`
	Data      any    `json:"data"`
}

// MarshalJSON serializes the envelope to JSON.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(*e)
}

func wrap(event Event, brokerID string) *Envelope {
	return &Envelope{
		EventType: event.Type(),
		EventID:   uuid.New().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		BrokerID:  brokerID,
		Data:      event,
	}
}

// ClientConnected is emitted when a client successfully connects.
type ClientConnected struct {
	ClientID   string `json:"client_id"`
	SessionKey uint64 `json:"session_key"`
	CleanStart bool   `json:"clean_start"`
	KeepAlive  uint16 `json:"keep_alive"`
	RemoteAddr string `json:"remote_addr"`
}

func (e ClientConnected) Type() string { return TypeClientConnected }
func (e ClientConnected) Wrap(brokerID string) *Envelope {
	return wrap(e, brokerID)
}

// ClientDisconnected is emitted when a client disconnects.
type ClientDisconnected struct {
	ClientID   string `json:"client_id"`
	SessionKey uint64 `json:"session_key"`
	Reason     string `json:"reason"` // "normal", "error", "takeover"
	RemoteAddr string `json:"remote_addr"`
}

func (e ClientDisconnected) Type() string { return TypeClientDisconnected }
func (e ClientDisconnected) Wrap(brokerID string) *Envelope {
	return wrap(e, brokerID)
}

// SubscriptionCreated is emitted for each granted subscription filter.
type SubscriptionCreated struct {
	ClientID string `json:"client_id"`
	Filter   string `json:"filter"`
	QoS      byte   `json:"qos"`
}

func (e SubscriptionCreated) Type() string { return TypeSubscriptionCreated }
func (e SubscriptionCreated) Wrap(brokerID string) *Envelope {
	return wrap(e, brokerID)
}

// SubscriptionRemoved is emitted for each removed subscription filter.
type SubscriptionRemoved struct {
	ClientID string `json:"client_id"`
	Filter   string `json:"filter"`
}

func (e SubscriptionRemoved) Type() string { return TypeSubscriptionRemoved }
func (e SubscriptionRemoved) Wrap(brokerID string) *Envelope {
	return wrap(e, brokerID)
}
