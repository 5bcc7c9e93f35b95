// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"bytes"
	"fmt"
	"io"

	"github.com/absmach/voltmq/packets/codec"
)

// Subscribe is an internal representation of the fields of the SUBSCRIBE
// MQTT packet. Its fixed header carries QoS 1 flags per the protocol.
type Subscribe struct {
	FixedHeader
	ID     uint16
	Topics []string
	QoSs   []byte
}

func (pkt *Subscribe) Type() byte {
	return SubscribeType
}

func (pkt *Subscribe) String() string {
	return pkt.FixedHeader.String() + " " + fmt.Sprintf("packet_id: %d topics: %s", pkt.ID, pkt.Topics)
}

func (pkt *Subscribe) Pack(w io.Writer) error {
	var body bytes.Buffer

	body.Write(codec.EncodeUint16(pkt.ID))
	for i, topic := range pkt.Topics {
		body.Write(codec.EncodeString(topic))
		body.WriteByte(pkt.QoSs[i])
	}

	pkt.FixedHeader.QoS = 1
	pkt.FixedHeader.RemainingLength = body.Len()
	packet := pkt.FixedHeader.Encode()
	packet.Write(body.Bytes())
	_, err := packet.WriteTo(w)

	return err
}

// Unpack decodes the details of a ControlPacket after the fixed header has
// been read.
func (pkt *Subscribe) Unpack(r io.Reader) error {
	var err error
	pkt.ID, err = codec.DecodeUint16(r)
	if err != nil {
		return err
	}
	payloadLength := pkt.FixedHeader.RemainingLength - 2
	for payloadLength > 0 {
		topic, err := codec.DecodeString(r)
		if err != nil {
			return err
		}
		pkt.Topics = append(pkt.Topics, topic)
		qos, err := codec.DecodeByte(r)
		if err != nil {
			return err
		}
		pkt.QoSs = append(pkt.QoSs, qos)
		payloadLength -= 2 + len(topic) + 1 // 2 bytes of string length, plus string, plus 1 byte for QoS
	}

	return nil
}
