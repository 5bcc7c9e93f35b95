// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/absmach/voltmq/packets/codec"
)

// ErrPublishInvalidLength represents invalid length of a PUBLISH packet.
var ErrPublishInvalidLength = errors.New("error unpacking publish, payload length < 0")

// Publish is an internal representation of the fields of the PUBLISH MQTT
// packet.
type Publish struct {
	FixedHeader
	TopicName string
	ID        uint16
	Payload   []byte
}

func (pkt *Publish) Type() byte {
	return PublishType
}

func (pkt *Publish) String() string {
	return pkt.FixedHeader.String() + " " +
		fmt.Sprintf("topic_name: %s packet_id: %d payload: %s", pkt.TopicName, pkt.ID, pkt.Payload)
}

func (pkt *Publish) Pack(w io.Writer) error {
	var body bytes.Buffer

	body.Write(codec.EncodeString(pkt.TopicName))
	if pkt.QoS > 0 {
		body.Write(codec.EncodeUint16(pkt.ID))
	}

	pkt.FixedHeader.RemainingLength = body.Len() + len(pkt.Payload)
	packet := pkt.FixedHeader.Encode()
	packet.Write(body.Bytes())
	packet.Write(pkt.Payload)
	_, err := packet.WriteTo(w)

	return err
}

// Unpack decodes the details of a ControlPacket after the fixed header has
// been read.
func (pkt *Publish) Unpack(r io.Reader) error {
	payloadLength := pkt.FixedHeader.RemainingLength
	var err error
	pkt.TopicName, err = codec.DecodeString(r)
	if err != nil {
		return err
	}

	if pkt.QoS > 0 {
		pkt.ID, err = codec.DecodeUint16(r)
		if err != nil {
			return err
		}
		payloadLength -= len(pkt.TopicName) + 4
	} else {
		payloadLength -= len(pkt.TopicName) + 2
	}
	if payloadLength < 0 {
		return ErrPublishInvalidLength
	}
	pkt.Payload = make([]byte, payloadLength)
	_, err = io.ReadFull(r, pkt.Payload)

	return err
}

// Copy creates a new Publish with the same topic and payload but a fresh
// fixed header, useful for delivering a message with a different QoS.
func (pkt *Publish) Copy() *Publish {
	return &Publish{
		FixedHeader: FixedHeader{PacketType: PublishType},
		TopicName:   pkt.TopicName,
		Payload:     pkt.Payload,
	}
}
