// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"fmt"
	"io"

	"github.com/absmach/voltmq/packets/codec"
)

// CONNACK return codes.
const (
	Accepted                        = 0x00
	ErrRefusedBadProtocolVersion    = 0x01
	ErrRefusedIDRejected            = 0x02
	ErrRefusedServerUnavailable     = 0x03
	ErrRefusedBadUsernameOrPassword = 0x04
	ErrRefusedNotAuthorized         = 0x05
)

// ConnackReturnCodes maps CONNACK return codes to string descriptions.
var ConnackReturnCodes = map[uint8]string{
	Accepted:                        "Connection Accepted",
	ErrRefusedBadProtocolVersion:    "Connection Refused: Bad Protocol Version",
	ErrRefusedIDRejected:            "Connection Refused: Client Identifier Rejected",
	ErrRefusedServerUnavailable:     "Connection Refused: Server Unavailable",
	ErrRefusedBadUsernameOrPassword: "Connection Refused: Username or Password in unknown format",
	ErrRefusedNotAuthorized:         "Connection Refused: Not Authorised",
}

// ConnAck is an internal representation of the fields of the CONNACK MQTT
// packet.
type ConnAck struct {
	FixedHeader
	SessionPresent bool
	ReturnCode     byte
}

func (pkt *ConnAck) Type() byte {
	return ConnAckType
}

func (pkt *ConnAck) String() string {
	return pkt.FixedHeader.String() + " " +
		fmt.Sprintf("session_present: %t return_code: %d", pkt.SessionPresent, pkt.ReturnCode)
}

func (pkt *ConnAck) Pack(w io.Writer) error {
	pkt.FixedHeader.RemainingLength = 2
	packet := pkt.FixedHeader.Encode()
	packet.WriteByte(boolToByte(pkt.SessionPresent))
	packet.WriteByte(pkt.ReturnCode)
	_, err := packet.WriteTo(w)

	return err
}

func (pkt *ConnAck) Unpack(r io.Reader) error {
	flags, err := codec.DecodeByte(r)
	if err != nil {
		return err
	}
	pkt.SessionPresent = 1&flags > 0
	pkt.ReturnCode, err = codec.DecodeByte(r)

	return err
}
