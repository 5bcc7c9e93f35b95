// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"fmt"
	"io"

	"github.com/absmach/voltmq/packets/codec"
)

// PubAck is an internal representation of the fields of the PUBACK MQTT
// packet, the response to a QoS 1 PUBLISH.
type PubAck struct {
	FixedHeader
	ID uint16
}

func (pkt *PubAck) Type() byte {
	return PubAckType
}

func (pkt *PubAck) String() string {
	return pkt.FixedHeader.String() + " " + fmt.Sprintf("packet_id: %d", pkt.ID)
}

func (pkt *PubAck) Pack(w io.Writer) error {
	pkt.FixedHeader.RemainingLength = 2
	packet := pkt.FixedHeader.Encode()
	packet.Write(codec.EncodeUint16(pkt.ID))
	_, err := packet.WriteTo(w)

	return err
}

func (pkt *PubAck) Unpack(r io.Reader) error {
	var err error
	pkt.ID, err = codec.DecodeUint16(r)

	return err
}
