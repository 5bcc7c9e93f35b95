// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package core provides the MQTT framing layer: a connection that turns any
// byte-stream net.Conn into a stream of parsed control packets. It sits on
// top of whichever transport stack produced the net.Conn — plain TCP, TLS,
// or the WebSocket adapter — and is the last layer below the broker.
package core

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/absmach/voltmq/packets"
)

const readChunk = 4096

var _ Connection = (*Conn)(nil)

// Connection reads and writes MQTT packets over some transport.
type Connection interface {
	PacketReader
	PacketWriter
	Close() error
	RemoteAddr() net.Addr
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// PacketWriter is an interface for writing packets.
type PacketWriter interface {
	WritePacket(pkt packets.ControlPacket) error
}

// PacketReader is an interface for reading packets.
type PacketReader interface {
	ReadPacket() (packets.ControlPacket, error)
}

// Conn wraps a byte-stream connection and parses MQTT packets from it
// incrementally. Bytes read from the transport but not yet consumed by a
// parse are held in a per-connection leftover buffer, serialized across
// receive calls, so a packet split over several transport reads — or several
// packets arriving in one read — frame correctly.
type Conn struct {
	conn net.Conn

	rmu      sync.Mutex // serializes receives and guards leftover
	leftover []byte

	wmu sync.Mutex // serializes packet writes
}

// NewConn creates an MQTT framing connection on top of conn.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn}
}

// ReadPacket returns exactly one packet, reading more bytes from the
// underlying connection as needed. Trailing bytes of the last transport read
// are retained as the new leftover. Malformed input surfaces as
// packets.ErrProtocolViolation and is fatal for the connection.
func (c *Conn) ReadPacket() (packets.ControlPacket, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	return c.readPacketLocked()
}

func (c *Conn) readPacketLocked() (packets.ControlPacket, error) {
	for {
		pkt, n, err := packets.Decode(c.leftover)
		if err == nil {
			c.leftover = c.leftover[n:]
			return pkt, nil
		}
		if !errors.Is(err, packets.ErrNeedMoreData) {
			return nil, err
		}

		buf := make([]byte, readChunk)
		n, rerr := c.conn.Read(buf)
		if n > 0 {
			c.leftover = append(c.leftover, buf[:n]...)
		}
		if rerr != nil && n == 0 {
			return nil, rerr
		}
	}
}

// ConsumeMessages parses packets repeatedly and invokes fn for each one.
// It stops when fn reports done or fails, preserving the remaining leftover
// for the next receive call.
func (c *Conn) ConsumeMessages(fn func(pkt packets.ControlPacket) (done bool, err error)) error {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	for {
		pkt, err := c.readPacketLocked()
		if err != nil {
			return err
		}
		done, err := fn(pkt)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// WritePacket serializes the packet onto the underlying connection. Writes
// are serialized so concurrent senders never interleave packet bytes.
func (c *Conn) WritePacket(pkt packets.ControlPacket) error {
	if pkt == nil {
		return errors.New("cannot encode nil packet")
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return pkt.Pack(c.conn)
}

// Buffered returns the number of unparsed leftover bytes.
func (c *Conn) Buffered() int {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	return len(c.leftover)
}

// NetConn returns the underlying transport connection, through which
// transport details such as the TLS peer certificate chain can be inspected
// (see pkg/tls.PeerCertificates).
func (c *Conn) NetConn() net.Conn {
	return c.conn
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}
