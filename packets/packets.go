// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package packets implements the MQTT 3.1.1 control packet set: parsing,
// serialization, and an incremental buffer decoder used by the framing
// layer. One file per packet type; primitive field codecs live in the codec
// subpackage.
package packets

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/absmach/voltmq/packets/codec"
)

// Protocol constants for MQTT 3.1.1.
const (
	ProtocolName    = "MQTT"
	ProtocolVersion = 0x04
)

var (
	// ErrNeedMoreData is returned by Decode when the buffer holds less than
	// one complete packet. The caller reads more bytes and retries.
	ErrNeedMoreData = errors.New("need more data")

	// ErrProtocolViolation is returned for malformed packets. It is fatal
	// for the connection that produced it.
	ErrProtocolViolation = errors.New("protocol violation")
)

// Packet type constants.
const (
	ConnectType = iota + 1 // 0 value is forbidden
	ConnAckType
	PublishType
	PubAckType
	PubRecType
	PubRelType
	PubCompType
	SubscribeType
	SubAckType
	UnsubscribeType
	UnsubAckType
	PingReqType
	PingRespType
	DisconnectType
)

// PacketNames maps packet type constants to string names.
var PacketNames = map[byte]string{
	ConnectType:     "CONNECT",
	ConnAckType:     "CONNACK",
	PublishType:     "PUBLISH",
	PubAckType:      "PUBACK",
	PubRecType:      "PUBREC",
	PubRelType:      "PUBREL",
	PubCompType:     "PUBCOMP",
	SubscribeType:   "SUBSCRIBE",
	SubAckType:      "SUBACK",
	UnsubscribeType: "UNSUBSCRIBE",
	UnsubAckType:    "UNSUBACK",
	PingReqType:     "PINGREQ",
	PingRespType:    "PINGRESP",
	DisconnectType:  "DISCONNECT",
}

// ControlPacket is the interface all MQTT control packets satisfy.
type ControlPacket interface {
	// Pack writes the encoded packet to the writer.
	Pack(w io.Writer) error

	// Unpack deserializes the packet body after the fixed header has been
	// read.
	Unpack(r io.Reader) error

	// Type returns the packet type constant.
	Type() byte

	// String returns a human-readable representation.
	String() string
}

// NewControlPacketWithHeader creates an empty packet for the given fixed
// header.
func NewControlPacketWithHeader(fh FixedHeader) (ControlPacket, error) {
	switch fh.PacketType {
	case ConnectType:
		return &Connect{FixedHeader: fh}, nil
	case ConnAckType:
		return &ConnAck{FixedHeader: fh}, nil
	case PublishType:
		return &Publish{FixedHeader: fh}, nil
	case PubAckType:
		return &PubAck{FixedHeader: fh}, nil
	case PubRecType:
		return &PubRec{FixedHeader: fh}, nil
	case PubRelType:
		return &PubRel{FixedHeader: fh}, nil
	case PubCompType:
		return &PubComp{FixedHeader: fh}, nil
	case SubscribeType:
		return &Subscribe{FixedHeader: fh}, nil
	case SubAckType:
		return &SubAck{FixedHeader: fh}, nil
	case UnsubscribeType:
		return &Unsubscribe{FixedHeader: fh}, nil
	case UnsubAckType:
		return &UnsubAck{FixedHeader: fh}, nil
	case PingReqType:
		return &PingReq{FixedHeader: fh}, nil
	case PingRespType:
		return &PingResp{FixedHeader: fh}, nil
	case DisconnectType:
		return &Disconnect{FixedHeader: fh}, nil
	}
	return nil, fmt.Errorf("%w: unsupported packet type 0x%x", ErrProtocolViolation, fh.PacketType)
}

// Decode parses exactly one packet from the front of buf. It returns the
// packet and the number of bytes consumed, or ErrNeedMoreData when buf does
// not yet hold a complete packet. Any other failure is a protocol violation.
func Decode(buf []byte) (ControlPacket, int, error) {
	var fh FixedHeader
	n, err := fh.DecodeFromBytes(buf)
	switch {
	case errors.Is(err, codec.ErrBufferTooShort):
		return nil, 0, ErrNeedMoreData
	case err != nil:
		return nil, 0, fmt.Errorf("%w: fixed header: %v", ErrProtocolViolation, err)
	}

	if len(buf) < n+fh.RemainingLength {
		return nil, 0, ErrNeedMoreData
	}

	pkt, err := NewControlPacketWithHeader(fh)
	if err != nil {
		return nil, 0, err
	}

	body := buf[n : n+fh.RemainingLength]
	if err := pkt.Unpack(bytes.NewReader(body)); err != nil {
		return nil, 0, fmt.Errorf("%w: unpack %s: %v", ErrProtocolViolation, PacketNames[fh.PacketType], err)
	}
	return pkt, n + fh.RemainingLength, nil
}

// ReadPacket reads one packet from a blocking byte stream. It is the
// stream-oriented counterpart of Decode, used by tests and by writers of
// synthetic packet sequences.
func ReadPacket(r io.Reader) (ControlPacket, error) {
	typeAndFlags, err := codec.DecodeByte(r)
	if err != nil {
		return nil, err
	}

	var fh FixedHeader
	if err := fh.Decode(typeAndFlags, r); err != nil {
		return nil, err
	}

	pkt, err := NewControlPacketWithHeader(fh)
	if err != nil {
		return nil, err
	}

	body := make([]byte, fh.RemainingLength)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	if err := pkt.Unpack(bytes.NewReader(body)); err != nil {
		return nil, fmt.Errorf("%w: unpack %s: %v", ErrProtocolViolation, PacketNames[fh.PacketType], err)
	}
	return pkt, nil
}

func boolToByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
