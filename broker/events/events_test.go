// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapEnvelope(t *testing.T) {
	event := ClientConnected{
		ClientID:   "c1",
		SessionKey: 42,
		CleanStart: true,
		KeepAlive:  30,
	}

	env := event.Wrap("broker-1")
	assert.Equal(t, TypeClientConnected, env.EventType)
	assert.Equal(t, "broker-1", env.BrokerID)
	assert.NotEmpty(t, env.EventID)
	assert.NotEmpty(t, env.Timestamp)

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, TypeClientConnected, decoded["event_type"])

	data, ok := decoded["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "c1", data["client_id"])
	assert.Equal(t, float64(42), data["session_key"])
}

func TestEventTypes(t *testing.T) {
	assert.Equal(t, TypeClientDisconnected, ClientDisconnected{}.Type())
	assert.Equal(t, TypeSubscriptionCreated, SubscriptionCreated{}.Type())
	assert.Equal(t, TypeSubscriptionRemoved, SubscriptionRemoved{}.Type())
}

func TestEnvelopeIDsUnique(t *testing.T) {
	a := ClientConnected{ClientID: "c"}.Wrap("b")
	b := ClientConnected{ClientID: "c"}.Wrap("b")
	assert.NotEqual(t, a.EventID, b.EventID)
}
