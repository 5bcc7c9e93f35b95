// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package websocket implements the WebSocket transport layer. It reads the
// HTTP upgrade request, accepts it, and adapts the resulting binary-message
// stream to a byte-stream net.Conn so the MQTT framing layer composes on
// top unchanged. The original upgrade request head stays available through
// the adapter for connection info.
package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/absmach/voltmq/broker"
	"github.com/absmach/voltmq/core"
)

// Config holds the WebSocket server configuration.
type Config struct {
	Address         string
	Path            string
	ShutdownTimeout time.Duration
}

// Server is a WebSocket server that upgrades HTTP requests and delegates
// the resulting connections to a broker.
type Server struct {
	config   Config
	broker   *broker.Broker
	logger   *slog.Logger
	server   *http.Server
	upgrader websocket.Upgrader
}

// New creates a new WebSocket server with the given configuration and
// broker.
func New(cfg Config, b *broker.Broker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		cfg.Path = "/mqtt"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		config: cfg,
		broker: b,
		logger: logger,
		upgrader: websocket.Upgrader{
			Subprotocols: []string{"mqtt"},
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, s.handleWebSocket)

	s.server = &http.Server{
		Addr:    cfg.Address,
		Handler: mux,
	}

	return s
}

// Listen starts the WebSocket server and blocks until the context is
// cancelled.
func (s *Server) Listen(ctx context.Context) error {
	s.logger.Info("websocket server started",
		slog.String("address", s.config.Address),
		slog.String("path", s.config.Path))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("websocket server shutdown error", slog.String("error", err.Error()))
			return err
		}

		s.logger.Info("websocket server stopped")
		return nil
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	s.logger.Debug("websocket connection accepted", slog.String("remote", r.RemoteAddr))

	conn := NewConn(ws, r)
	defer conn.Close()

	broker.HandleConnection(s.broker, core.NewConn(conn))
}

// Conn adapts a WebSocket connection to a byte-stream net.Conn. Reads drain
// the current binary message before fetching the next one; each Write emits
// one binary message. Close sends a close frame before tearing the socket
// down.
type Conn struct {
	ws      *websocket.Conn
	request *http.Request

	rmu      sync.Mutex
	pending  []byte
	closed   bool
	closedMu sync.Mutex
}

var _ net.Conn = (*Conn)(nil)

// NewConn wraps an upgraded WebSocket connection. The upgrade request head
// is retained and available via Request.
func NewConn(ws *websocket.Conn, r *http.Request) *Conn {
	return &Conn{ws: ws, request: r}
}

// Request returns the HTTP request that initiated the upgrade.
func (c *Conn) Request() *http.Request {
	return c.request
}

func (c *Conn) Read(b []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	for len(c.pending) == 0 {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return 0, err
		}
		if messageType != websocket.BinaryMessage {
			return 0, errors.New("expected binary message")
		}
		c.pending = data
	}

	n := copy(b, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *Conn) Write(b []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (c *Conn) Close() error {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	// Best-effort close frame so well-behaved peers see a clean shutdown.
	deadline := time.Now().Add(time.Second)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)

	return c.ws.Close()
}

func (c *Conn) LocalAddr() net.Addr {
	return c.ws.LocalAddr()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

func (c *Conn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.ws.SetWriteDeadline(t)
}
