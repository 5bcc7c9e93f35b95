// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import "io"

// PingResp is an internal representation of the fields of the PINGRESP MQTT
// packet.
type PingResp struct {
	FixedHeader
}

func (pkt *PingResp) Type() byte {
	return PingRespType
}

func (pkt *PingResp) String() string {
	return pkt.FixedHeader.String()
}

func (pkt *PingResp) Pack(w io.Writer) error {
	pkt.FixedHeader.RemainingLength = 0
	packet := pkt.FixedHeader.Encode()
	_, err := packet.WriteTo(w)

	return err
}

func (pkt *PingResp) Unpack(io.Reader) error {
	return nil
}
