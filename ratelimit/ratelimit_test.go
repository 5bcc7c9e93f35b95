// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func tcpAddr(ip string) *net.TCPAddr {
	return &net.TCPAddr{IP: net.ParseIP(ip), Port: 12345}
}

func TestIPRateLimiterAllowsWithinBurst(t *testing.T) {
	l := NewIPRateLimiter(1, 3, time.Minute)
	defer l.Stop()

	addr := tcpAddr("10.0.0.1")
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(addr), "attempt %d within burst", i)
	}
	assert.False(t, l.Allow(addr), "burst exhausted")
}

func TestIPRateLimiterIsolatesIPs(t *testing.T) {
	l := NewIPRateLimiter(1, 1, time.Minute)
	defer l.Stop()

	assert.True(t, l.Allow(tcpAddr("10.0.0.1")))
	assert.False(t, l.Allow(tcpAddr("10.0.0.1")))
	assert.True(t, l.Allow(tcpAddr("10.0.0.2")), "other IPs have their own budget")
}

func TestIPRateLimiterRefills(t *testing.T) {
	l := NewIPRateLimiter(100, 1, time.Minute)
	defer l.Stop()

	addr := tcpAddr("10.0.0.1")
	assert.True(t, l.Allow(addr))
	assert.False(t, l.Allow(addr))

	time.Sleep(20 * time.Millisecond) // 100/s refills within 10ms
	assert.True(t, l.Allow(addr))
}

func TestIPRateLimiterUnknownAddr(t *testing.T) {
	l := NewIPRateLimiter(1, 1, time.Minute)
	defer l.Stop()

	assert.True(t, l.Allow(&net.UnixAddr{Name: "@sock", Net: "unix"}), "addresses without an IP are not limited")
}
