// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"fmt"
	"io"

	"github.com/absmach/voltmq/packets/codec"
)

// UnsubAck is an internal representation of the fields of the UNSUBACK MQTT
// packet.
type UnsubAck struct {
	FixedHeader
	ID uint16
}

func (pkt *UnsubAck) Type() byte {
	return UnsubAckType
}

func (pkt *UnsubAck) String() string {
	return pkt.FixedHeader.String() + " " + fmt.Sprintf("packet_id: %d", pkt.ID)
}

func (pkt *UnsubAck) Pack(w io.Writer) error {
	pkt.FixedHeader.RemainingLength = 2
	packet := pkt.FixedHeader.Encode()
	packet.Write(codec.EncodeUint16(pkt.ID))
	_, err := packet.WriteTo(w)

	return err
}

func (pkt *UnsubAck) Unpack(r io.Reader) error {
	var err error
	pkt.ID, err = codec.DecodeUint16(r)

	return err
}
