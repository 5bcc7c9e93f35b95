// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packets

import (
	"bytes"
	"fmt"
	"io"

	"github.com/absmach/voltmq/packets/codec"
)

const connectFormat = `protocol_version: %d
protocol_name: %s
clean_session: %t
will: %t
will_qos: %d
will_retain: %t
username_flag: %t
password_flag: %t
keepalive: %d
client_id: %s`

// Connect is an internal representation of the fields of the CONNECT MQTT
// packet.
type Connect struct {
	FixedHeader
	ProtocolName    string
	ProtocolVersion byte
	CleanSession    bool
	WillFlag        bool
	WillQoS         byte
	WillRetain      bool
	UsernameFlag    bool
	PasswordFlag    bool
	ReservedBit     byte
	KeepAlive       uint16

	ClientIdentifier string
	WillTopic        string
	WillMessage      []byte
	Username         string
	Password         []byte
}

func (pkt *Connect) Type() byte {
	return ConnectType
}

func (pkt *Connect) String() string {
	return pkt.FixedHeader.String() + " " + fmt.Sprintf(connectFormat, pkt.ProtocolVersion, pkt.ProtocolName,
		pkt.CleanSession, pkt.WillFlag, pkt.WillQoS, pkt.WillRetain, pkt.UsernameFlag, pkt.PasswordFlag,
		pkt.KeepAlive, pkt.ClientIdentifier)
}

func (pkt *Connect) Pack(w io.Writer) error {
	var body bytes.Buffer

	body.Write(codec.EncodeString(pkt.ProtocolName))
	body.WriteByte(pkt.ProtocolVersion)
	body.WriteByte(boolToByte(pkt.CleanSession)<<1 | boolToByte(pkt.WillFlag)<<2 | pkt.WillQoS<<3 |
		boolToByte(pkt.WillRetain)<<5 | boolToByte(pkt.PasswordFlag)<<6 | boolToByte(pkt.UsernameFlag)<<7)
	body.Write(codec.EncodeUint16(pkt.KeepAlive))
	body.Write(codec.EncodeString(pkt.ClientIdentifier))
	if pkt.WillFlag {
		body.Write(codec.EncodeString(pkt.WillTopic))
		body.Write(codec.EncodeBytes(pkt.WillMessage))
	}
	if pkt.UsernameFlag {
		body.Write(codec.EncodeString(pkt.Username))
	}
	if pkt.PasswordFlag {
		body.Write(codec.EncodeBytes(pkt.Password))
	}

	pkt.FixedHeader.RemainingLength = body.Len()
	packet := pkt.FixedHeader.Encode()
	packet.Write(body.Bytes())
	_, err := packet.WriteTo(w)

	return err
}

// Unpack decodes the details of a ControlPacket after the fixed header has
// been read.
func (pkt *Connect) Unpack(r io.Reader) error {
	var err error
	pkt.ProtocolName, err = codec.DecodeString(r)
	if err != nil {
		return err
	}
	pkt.ProtocolVersion, err = codec.DecodeByte(r)
	if err != nil {
		return err
	}
	options, err := codec.DecodeByte(r)
	if err != nil {
		return err
	}
	pkt.ReservedBit = 1 & options
	pkt.CleanSession = 1&(options>>1) > 0
	pkt.WillFlag = 1&(options>>2) > 0
	pkt.WillQoS = 3 & (options >> 3)
	pkt.WillRetain = 1&(options>>5) > 0
	pkt.PasswordFlag = 1&(options>>6) > 0
	pkt.UsernameFlag = 1&(options>>7) > 0
	pkt.KeepAlive, err = codec.DecodeUint16(r)
	if err != nil {
		return err
	}
	pkt.ClientIdentifier, err = codec.DecodeString(r)
	if err != nil {
		return err
	}
	if pkt.WillFlag {
		pkt.WillTopic, err = codec.DecodeString(r)
		if err != nil {
			return err
		}
		pkt.WillMessage, err = codec.DecodeBytes(r)
		if err != nil {
			return err
		}
	}
	if pkt.UsernameFlag {
		pkt.Username, err = codec.DecodeString(r)
		if err != nil {
			return err
		}
	}
	if pkt.PasswordFlag {
		pkt.Password, err = codec.DecodeBytes(r)
		if err != nil {
			return err
		}
	}

	return nil
}
