// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package tcp implements the socket transport layer: it binds a configured
// address, accepts connections, and hands each one to the broker over the
// MQTT framing layer. When a TLS configuration is present the accepted
// socket is wrapped before framing; the handshake runs inside the
// per-connection goroutine so a slow handshake never stalls the accept
// loop.
package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/absmach/voltmq/broker"
	"github.com/absmach/voltmq/core"
	pkgtls "github.com/absmach/voltmq/pkg/tls"
	"github.com/absmach/voltmq/ratelimit"
)

// ErrShutdownTimeout is returned when graceful shutdown exceeds the
// configured timeout.
var ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

// Config holds the TCP server configuration.
type Config struct {
	Address         string
	TLSConfig       *tls.Config
	Logger          *slog.Logger
	ShutdownTimeout time.Duration
	TCPKeepAlive    time.Duration
	MaxConnections  int

	// Connection attempts per second per source IP; zero disables limiting.
	ConnectRate  float64
	ConnectBurst int
}

// Server is a TCP server that accepts connections and delegates them to a
// broker.
type Server struct {
	mu       sync.Mutex
	wg       sync.WaitGroup
	config   Config
	handler  *broker.Broker
	listener net.Listener
	connSem  chan struct{}
	limiter  *ratelimit.IPRateLimiter
}

// New creates a new TCP server with the given configuration and broker.
func New(cfg Config, h *broker.Broker) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.TCPKeepAlive == 0 {
		cfg.TCPKeepAlive = 15 * time.Second
	}

	var connSem chan struct{}
	if cfg.MaxConnections > 0 {
		connSem = make(chan struct{}, cfg.MaxConnections)
	}

	var limiter *ratelimit.IPRateLimiter
	if cfg.ConnectRate > 0 {
		burst := cfg.ConnectBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = ratelimit.NewIPRateLimiter(cfg.ConnectRate, burst, time.Minute)
	}

	return &Server{
		config:  cfg,
		handler: h,
		connSem: connSem,
		limiter: limiter,
	}
}

// Listen starts the TCP server and blocks until the context is cancelled.
// It implements graceful shutdown with connection draining.
func (s *Server) Listen(ctx context.Context) error {
	listener, err := s.createListener()
	if err != nil {
		return err
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	defer connCancel()

	acceptDone := s.runAcceptLoop(ctx, connCtx, listener)

	<-ctx.Done()
	return s.gracefulShutdown(listener, acceptDone, connCancel)
}

func (s *Server) createListener() (net.Listener, error) {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.config.Logger.Info("TCP server started",
		slog.String("address", listener.Addr().String()),
		slog.String("security", pkgtls.SecurityStatus(s.config.TLSConfig)))
	return listener, nil
}

// runAcceptLoop runs the connection accept loop in a separate goroutine.
// The loop itself never blocks on a handshake: accepted connections are
// handed to their own goroutine immediately.
func (s *Server) runAcceptLoop(ctx, connCtx context.Context, listener net.Listener) <-chan struct{} {
	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.config.Logger.Error("failed to accept connection", slog.String("error", err.Error()))
				continue
			}

			if s.limiter != nil && !s.limiter.Allow(conn.RemoteAddr()) {
				s.config.Logger.Warn("connection rate limited",
					slog.String("remote", conn.RemoteAddr().String()))
				conn.Close()
				continue
			}

			if !s.tryAcquireConnectionSlot(ctx, conn) {
				continue
			}

			if tcpConn, ok := conn.(*net.TCPConn); ok {
				if err := s.configureTCPConn(tcpConn); err != nil {
					s.config.Logger.Error("failed to configure TCP connection",
						slog.String("error", err.Error()))
					s.releaseConnectionSlot()
					conn.Close()
					continue
				}
			}

			s.wg.Add(1)
			go s.handleConnection(connCtx, conn)
		}
	}()
	return acceptDone
}

func (s *Server) tryAcquireConnectionSlot(ctx context.Context, conn net.Conn) bool {
	if s.connSem == nil {
		return true
	}

	select {
	case s.connSem <- struct{}{}:
		return true
	case <-ctx.Done():
		conn.Close()
		return false
	default:
		s.config.Logger.Warn("connection limit reached, rejecting connection",
			slog.String("remote", conn.RemoteAddr().String()))
		conn.Close()
		return false
	}
}

func (s *Server) releaseConnectionSlot() {
	if s.connSem != nil {
		<-s.connSem
	}
}

// handleConnection handles a single connection in a goroutine. The socket
// is closed when the handler returns, even on failure.
func (s *Server) handleConnection(connCtx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer s.releaseConnectionSlot()
	// Closed via closure so that, once TLS wraps the socket, Close sends the
	// close-notify alert.
	defer func() { conn.Close() }()

	s.config.Logger.Debug("connection established",
		slog.String("remote", conn.RemoteAddr().String()))

	if s.config.TLSConfig != nil {
		tlsConn := tls.Server(conn, s.config.TLSConfig)
		if err := tlsConn.HandshakeContext(connCtx); err != nil {
			s.config.Logger.Error("TLS handshake failed", slog.String("error", err.Error()))
			return
		}
		if cert, err := pkgtls.ClientCert(tlsConn); err == nil && cert.Subject.CommonName != "" {
			s.config.Logger.Debug("TLS client certificate",
				slog.String("subject", cert.Subject.CommonName))
		}
		conn = tlsConn
	}

	broker.HandleConnection(s.handler, core.NewConn(conn))

	s.config.Logger.Debug("connection closed",
		slog.String("remote", conn.RemoteAddr().String()))
}

func (s *Server) gracefulShutdown(listener net.Listener, acceptDone <-chan struct{}, connCancel context.CancelFunc) error {
	s.config.Logger.Info("shutdown signal received, closing listener")

	if err := listener.Close(); err != nil {
		s.config.Logger.Error("error closing listener", slog.String("error", err.Error()))
	}

	<-acceptDone

	if s.limiter != nil {
		s.limiter.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.config.Logger.Info("all connections closed gracefully")
		return nil
	case <-time.After(s.config.ShutdownTimeout):
		s.config.Logger.Warn("shutdown timeout exceeded, forcing connection closure")
		connCancel()

		select {
		case <-done:
			return ErrShutdownTimeout
		case <-time.After(1 * time.Second):
			return ErrShutdownTimeout
		}
	}
}

func (s *Server) configureTCPConn(conn *net.TCPConn) error {
	if s.config.TCPKeepAlive > 0 {
		if err := conn.SetKeepAlive(true); err != nil {
			return fmt.Errorf("failed to enable keepalive: %w", err)
		}
		if err := conn.SetKeepAlivePeriod(s.config.TCPKeepAlive); err != nil {
			return fmt.Errorf("failed to set keepalive period: %w", err)
		}
	}

	if err := conn.SetNoDelay(true); err != nil {
		return fmt.Errorf("failed to set TCP_NODELAY: %w", err)
	}

	return nil
}

// Addr returns the listener's network address, useful when binding to an
// ephemeral port.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
