// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"bytes"
	"fmt"
	"io"

	"github.com/absmach/voltmq/packets/codec"
)

// SubAckFailure is the return code granted for a rejected subscription.
const SubAckFailure = 0x80

// SubAck is an internal representation of the fields of the SUBACK MQTT
// packet. ReturnCodes holds a granted QoS or SubAckFailure per requested
// filter, in request order.
type SubAck struct {
	FixedHeader
	ID          uint16
	ReturnCodes []byte
}

func (pkt *SubAck) Type() byte {
	return SubAckType
}

func (pkt *SubAck) String() string {
	return pkt.FixedHeader.String() + " " + fmt.Sprintf("packet_id: %d return_codes: %v", pkt.ID, pkt.ReturnCodes)
}

func (pkt *SubAck) Pack(w io.Writer) error {
	var body bytes.Buffer

	body.Write(codec.EncodeUint16(pkt.ID))
	body.Write(pkt.ReturnCodes)

	pkt.FixedHeader.RemainingLength = body.Len()
	packet := pkt.FixedHeader.Encode()
	packet.Write(body.Bytes())
	_, err := packet.WriteTo(w)

	return err
}

func (pkt *SubAck) Unpack(r io.Reader) error {
	var err error
	pkt.ID, err = codec.DecodeUint16(r)
	if err != nil {
		return err
	}

	pkt.ReturnCodes = make([]byte, pkt.FixedHeader.RemainingLength-2)
	_, err = io.ReadFull(r, pkt.ReturnCodes)

	return err
}
