// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import "io"

// Disconnect is an internal representation of the fields of the DISCONNECT
// MQTT packet.
type Disconnect struct {
	FixedHeader
}

func (pkt *Disconnect) Type() byte {
	return DisconnectType
}

func (pkt *Disconnect) String() string {
	return pkt.FixedHeader.String()
}

func (pkt *Disconnect) Pack(w io.Writer) error {
	pkt.FixedHeader.RemainingLength = 0
	packet := pkt.FixedHeader.Encode()
	_, err := packet.WriteTo(w)

	return err
}

func (pkt *Disconnect) Unpack(io.Reader) error {
	return nil
}
