// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"fmt"
	"io"

	"github.com/absmach/voltmq/packets/codec"
)

// PubRel is an internal representation of the fields of the PUBREL MQTT
// packet. Its fixed header carries QoS 1 flags per the protocol.
type PubRel struct {
	FixedHeader
	ID uint16
}

func (pkt *PubRel) Type() byte {
	return PubRelType
}

func (pkt *PubRel) String() string {
	return pkt.FixedHeader.String() + " " + fmt.Sprintf("packet_id: %d", pkt.ID)
}

func (pkt *PubRel) Pack(w io.Writer) error {
	pkt.FixedHeader.QoS = 1
	pkt.FixedHeader.RemainingLength = 2
	packet := pkt.FixedHeader.Encode()
	packet.Write(codec.EncodeUint16(pkt.ID))
	_, err := packet.WriteTo(w)

	return err
}

func (pkt *PubRel) Unpack(r io.Reader) error {
	var err error
	pkt.ID, err = codec.DecodeUint16(r)

	return err
}
