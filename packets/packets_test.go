// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, pkt ControlPacket) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, pkt.Pack(&buf))
	return buf.Bytes()
}

func sampleConnect() *Connect {
	return &Connect{
		FixedHeader:      FixedHeader{PacketType: ConnectType},
		ProtocolName:     ProtocolName,
		ProtocolVersion:  ProtocolVersion,
		CleanSession:     true,
		KeepAlive:        30,
		ClientIdentifier: "sensor-17",
		UsernameFlag:     true,
		Username:         "user",
		PasswordFlag:     true,
		Password:         []byte("secret"),
	}
}

func TestDecodeConnect(t *testing.T) {
	raw := encode(t, sampleConnect())

	pkt, n, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, len(raw), n, "decode must consume exactly the packet's bytes")

	connect, ok := pkt.(*Connect)
	require.True(t, ok)
	assert.Equal(t, "sensor-17", connect.ClientIdentifier)
	assert.Equal(t, ProtocolName, connect.ProtocolName)
	assert.Equal(t, byte(ProtocolVersion), connect.ProtocolVersion)
	assert.True(t, connect.CleanSession)
	assert.Equal(t, uint16(30), connect.KeepAlive)
	assert.Equal(t, "user", connect.Username)
	assert.Equal(t, []byte("secret"), connect.Password)
}

func TestDecodeNeedMoreData(t *testing.T) {
	raw := encode(t, sampleConnect())

	// Every strict prefix must ask for more bytes rather than fail.
	for i := 0; i < len(raw); i++ {
		_, _, err := Decode(raw[:i])
		assert.ErrorIs(t, err, ErrNeedMoreData, "prefix of %d bytes", i)
	}
}

func TestDecodeLeavesTrailingBytes(t *testing.T) {
	first := encode(t, sampleConnect())
	second := encode(t, &PingReq{FixedHeader: FixedHeader{PacketType: PingReqType}})
	raw := append(append([]byte{}, first...), second...)

	pkt, n, err := Decode(raw)
	require.NoError(t, err)
	assert.IsType(t, &Connect{}, pkt)
	assert.Equal(t, len(first), n)

	pkt, n, err = Decode(raw[n:])
	require.NoError(t, err)
	assert.IsType(t, &PingReq{}, pkt)
	assert.Equal(t, len(second), n)
}

func TestDecodeMalformedVBI(t *testing.T) {
	// Four remaining-length bytes with the continuation bit set.
	raw := []byte{ConnectType << 4, 0x80, 0x80, 0x80, 0x80, 0x00}
	_, _, err := Decode(raw)
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestDecodeUnknownType(t *testing.T) {
	raw := []byte{0xF0, 0x00}
	_, _, err := Decode(raw)
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestPublishRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		pkt  *Publish
	}{
		{
			name: "qos0",
			pkt: &Publish{
				FixedHeader: FixedHeader{PacketType: PublishType},
				TopicName:   "a/b",
				Payload:     []byte("hello"),
			},
		},
		{
			name: "qos1 with id",
			pkt: &Publish{
				FixedHeader: FixedHeader{PacketType: PublishType, QoS: 1},
				TopicName:   "sensors/room1/temp",
				ID:          7,
				Payload:     []byte("21.5"),
			},
		},
		{
			name: "qos2 retained empty payload",
			pkt: &Publish{
				FixedHeader: FixedHeader{PacketType: PublishType, QoS: 2, Retain: true},
				TopicName:   "a",
				ID:          9,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := encode(t, tt.pkt)
			decoded, n, err := Decode(raw)
			require.NoError(t, err)
			assert.Equal(t, len(raw), n)

			pub, ok := decoded.(*Publish)
			require.True(t, ok)
			assert.Equal(t, tt.pkt.TopicName, pub.TopicName)
			assert.Equal(t, tt.pkt.ID, pub.ID)
			assert.Equal(t, tt.pkt.QoS, pub.QoS)
			assert.Equal(t, tt.pkt.Retain, pub.Retain)
			if len(tt.pkt.Payload) > 0 {
				assert.Equal(t, tt.pkt.Payload, pub.Payload)
			} else {
				assert.Empty(t, pub.Payload)
			}
		})
	}
}

func TestSubscribeRoundTrip(t *testing.T) {
	sub := &Subscribe{
		FixedHeader: FixedHeader{PacketType: SubscribeType},
		ID:          11,
		Topics:      []string{"a/+", "b/#"},
		QoSs:        []byte{1, 2},
	}
	raw := encode(t, sub)

	decoded, _, err := Decode(raw)
	require.NoError(t, err)
	got, ok := decoded.(*Subscribe)
	require.True(t, ok)
	assert.Equal(t, uint16(11), got.ID)
	assert.Equal(t, []string{"a/+", "b/#"}, got.Topics)
	assert.Equal(t, []byte{1, 2}, got.QoSs)
	assert.Equal(t, byte(1), got.FixedHeader.QoS)
}

func TestReadPacketStream(t *testing.T) {
	var stream bytes.Buffer
	require.NoError(t, sampleConnect().Pack(&stream))
	require.NoError(t, (&Subscribe{
		FixedHeader: FixedHeader{PacketType: SubscribeType},
		ID:          1,
		Topics:      []string{"a"},
		QoSs:        []byte{0},
	}).Pack(&stream))

	pkt, err := ReadPacket(&stream)
	require.NoError(t, err)
	assert.IsType(t, &Connect{}, pkt)

	pkt, err = ReadPacket(&stream)
	require.NoError(t, err)
	assert.IsType(t, &Subscribe{}, pkt)
}

func TestConnAckPack(t *testing.T) {
	ack := &ConnAck{
		FixedHeader:    FixedHeader{PacketType: ConnAckType},
		SessionPresent: true,
		ReturnCode:     ErrRefusedNotAuthorized,
	}
	raw := encode(t, ack)
	assert.Equal(t, []byte{ConnAckType << 4, 2, 1, ErrRefusedNotAuthorized}, raw)
}
