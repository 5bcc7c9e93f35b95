// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"errors"
	"fmt"

	"github.com/absmach/voltmq/packets"
)

var (
	// ErrSessionClosed indicates an operation on a session that has begun
	// closing.
	ErrSessionClosed = errors.New("session closed")

	// ErrQueueFull indicates a session queue at capacity.
	ErrQueueFull = errors.New("session queue full")
)

// ConnectionRefusedError is raised during CONNECT processing. The handler
// sends a CONNACK carrying the code, then closes the connection.
type ConnectionRefusedError struct {
	Code   byte
	Reason string
}

func (e *ConnectionRefusedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("connection refused: %s: %s", packets.ConnackReturnCodes[e.Code], e.Reason)
	}
	return "connection refused: " + packets.ConnackReturnCodes[e.Code]
}
