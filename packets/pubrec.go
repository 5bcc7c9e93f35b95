// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"fmt"
	"io"

	"github.com/absmach/voltmq/packets/codec"
)

// PubRec is an internal representation of the fields of the PUBREC MQTT
// packet, the first response step of the QoS 2 flow.
type PubRec struct {
	FixedHeader
	ID uint16
}

func (pkt *PubRec) Type() byte {
	return PubRecType
}

func (pkt *PubRec) String() string {
	return pkt.FixedHeader.String() + " " + fmt.Sprintf("packet_id: %d", pkt.ID)
}

func (pkt *PubRec) Pack(w io.Writer) error {
	pkt.FixedHeader.RemainingLength = 2
	packet := pkt.FixedHeader.Encode()
	packet.Write(codec.EncodeUint16(pkt.ID))
	_, err := packet.WriteTo(w)

	return err
}

func (pkt *PubRec) Unpack(r io.Reader) error {
	var err error
	pkt.ID, err = codec.DecodeUint16(r)

	return err
}
