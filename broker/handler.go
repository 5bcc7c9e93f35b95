// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/absmach/voltmq/broker/events"
	"github.com/absmach/voltmq/core"
	"github.com/absmach/voltmq/packets"
	"github.com/absmach/voltmq/router"
	"github.com/absmach/voltmq/storage"
	"github.com/absmach/voltmq/topics"
)

// connectTimeout bounds the wait for the initial CONNECT packet.
const connectTimeout = 10 * time.Second

// HandleConnection runs the MQTT protocol for one framed connection. It
// blocks until the connection is done; transport servers call it from the
// per-connection goroutine. Transport errors are fatal for this connection
// only; broker state persists.
func HandleConnection(b *Broker, conn *core.Conn) {
	defer conn.Close()

	b.metrics.ConnectionAccepted()

	h := &connHandler{
		broker: b,
		conn:   conn,
		logger: b.logger.With(slog.String("remote", conn.RemoteAddr().String())),
	}
	h.run()
}

// connHandler holds the per-connection protocol state.
type connHandler struct {
	broker  *Broker
	conn    *core.Conn
	logger  *slog.Logger
	session *Session

	keepAlive time.Duration
	wg        sync.WaitGroup

	// QoS 2 publishes already dispatched, awaiting the client's PUBREL.
	pendingQoS2 map[uint16]struct{}
}

func (h *connHandler) run() {
	if err := h.connect(); err != nil {
		h.logger.Debug("connect failed", slog.String("error", err.Error()))
		return
	}

	reason := "error"
	defer func() {
		h.broker.CloseSession(h.session)
		h.wg.Wait()
		h.broker.notify(events.ClientDisconnected{
			ClientID:   h.session.ClientID(),
			SessionKey: h.session.Key(),
			Reason:     reason,
			RemoteAddr: h.conn.RemoteAddr().String(),
		})
	}()

	h.wg.Add(1)
	go h.writeLoop()

	if err := h.readLoop(); err != nil {
		if errors.Is(err, errGracefulDisconnect) {
			reason = "normal"
		} else {
			h.logger.Debug("connection closed", slog.String("error", err.Error()))
		}
	}
}

var errGracefulDisconnect = errors.New("graceful disconnect")

// connect waits for the initial CONNECT, authenticates it, and registers
// the session. Refusals are answered with a CONNACK carrying the code, then
// the connection is torn down.
func (h *connHandler) connect() error {
	if err := h.conn.SetReadDeadline(time.Now().Add(connectTimeout)); err != nil {
		return err
	}

	pkt, err := h.conn.ReadPacket()
	if err != nil {
		return err
	}

	connect, ok := pkt.(*packets.Connect)
	if !ok {
		return errors.New("first packet is not CONNECT")
	}

	clientID, err := h.checkConnect(connect)
	if err != nil {
		var refused *ConnectionRefusedError
		if errors.As(err, &refused) {
			ack := &packets.ConnAck{
				FixedHeader: packets.FixedHeader{PacketType: packets.ConnAckType},
				ReturnCode:  refused.Code,
			}
			if werr := h.conn.WritePacket(ack); werr != nil {
				return werr
			}
		}
		return err
	}

	// A reconnecting client takes over its previous session.
	if prev, ok := h.broker.SessionByClientID(clientID); ok {
		h.logger.Info("session takeover", slog.String("client_id", clientID))
		h.broker.CloseSession(prev)
		h.broker.notify(events.ClientDisconnected{
			ClientID:   clientID,
			SessionKey: prev.Key(),
			Reason:     "takeover",
		})
	}

	h.session = h.broker.CreateSession(clientID)
	h.session.setOnOverflow(func() {
		h.logger.Warn("session queue overflow, closing connection",
			slog.String("client_id", clientID))
		h.conn.Close()
	})

	if connect.KeepAlive > 0 {
		// The server allows one and a half keep-alive periods of silence.
		h.keepAlive = time.Duration(connect.KeepAlive) * time.Second * 3 / 2
	}

	ack := &packets.ConnAck{
		FixedHeader: packets.FixedHeader{PacketType: packets.ConnAckType},
		ReturnCode:  packets.Accepted,
	}
	if err := h.conn.WritePacket(ack); err != nil {
		return err
	}

	h.logger.Info("client connected",
		slog.String("client_id", clientID),
		slog.Uint64("session_key", h.session.Key()))
	h.broker.notify(events.ClientConnected{
		ClientID:   clientID,
		SessionKey: h.session.Key(),
		CleanStart: connect.CleanSession,
		KeepAlive:  connect.KeepAlive,
		RemoteAddr: h.conn.RemoteAddr().String(),
	})

	return nil
}

// checkConnect validates the CONNECT packet and returns the effective
// client identifier. Refusals are reported as *ConnectionRefusedError.
func (h *connHandler) checkConnect(connect *packets.Connect) (string, error) {
	if connect.ProtocolName != packets.ProtocolName || connect.ProtocolVersion != packets.ProtocolVersion {
		return "", &ConnectionRefusedError{Code: packets.ErrRefusedBadProtocolVersion}
	}

	clientID := connect.ClientIdentifier
	if clientID == "" {
		// Zero-byte client identifiers are allowed only with a clean
		// session; the server assigns one.
		if !connect.CleanSession {
			return "", &ConnectionRefusedError{Code: packets.ErrRefusedIDRejected, Reason: "empty client identifier"}
		}
		clientID = uuid.NewString()
	}

	if h.broker.auth != nil {
		ok, err := h.broker.auth.Authenticate(clientID, connect.Username, connect.Password)
		if err != nil {
			return "", &ConnectionRefusedError{Code: packets.ErrRefusedServerUnavailable, Reason: err.Error()}
		}
		if !ok {
			return "", &ConnectionRefusedError{Code: packets.ErrRefusedNotAuthorized}
		}
	}

	return clientID, nil
}

// readLoop processes packets until the client disconnects or an error tears
// the connection down.
func (h *connHandler) readLoop() error {
	for {
		if h.keepAlive > 0 {
			if err := h.conn.SetReadDeadline(time.Now().Add(h.keepAlive)); err != nil {
				return err
			}
		} else if err := h.conn.SetReadDeadline(time.Time{}); err != nil {
			return err
		}

		pkt, err := h.conn.ReadPacket()
		if err != nil {
			return err
		}

		switch p := pkt.(type) {
		case *packets.Publish:
			err = h.handlePublish(p)
		case *packets.PubRel:
			err = h.handlePubRel(p)
		case *packets.PubAck, *packets.PubRec, *packets.PubComp:
			// Outbound QoS acknowledgements; no inflight tracking here.
		case *packets.Subscribe:
			err = h.handleSubscribe(p)
		case *packets.Unsubscribe:
			err = h.handleUnsubscribe(p)
		case *packets.PingReq:
			err = h.conn.WritePacket(&packets.PingResp{
				FixedHeader: packets.FixedHeader{PacketType: packets.PingRespType},
			})
		case *packets.Disconnect:
			return errGracefulDisconnect
		default:
			return errors.New("unexpected packet type " + packets.PacketNames[pkt.Type()])
		}
		if err != nil {
			return err
		}
	}
}

func (h *connHandler) handlePublish(pub *packets.Publish) error {
	topic, err := topics.ParseTopic(pub.TopicName)
	if err != nil {
		return err
	}

	h.broker.metrics.MessageReceived()

	msg := &storage.Message{
		Topic:   pub.TopicName,
		Payload: pub.Payload,
		QoS:     pub.QoS,
		Retain:  pub.Retain,
	}

	if pub.Retain && h.broker.retained != nil {
		if err := h.broker.retained.Set(context.Background(), pub.TopicName, msg); err != nil {
			h.logger.Warn("failed to store retained message",
				slog.String("topic", pub.TopicName),
				slog.String("error", err.Error()))
		}
	}

	h.broker.Publish(topic, msg)

	switch pub.QoS {
	case 1:
		return h.conn.WritePacket(&packets.PubAck{
			FixedHeader: packets.FixedHeader{PacketType: packets.PubAckType},
			ID:          pub.ID,
		})
	case 2:
		if h.pendingQoS2 == nil {
			h.pendingQoS2 = make(map[uint16]struct{})
		}
		h.pendingQoS2[pub.ID] = struct{}{}
		return h.conn.WritePacket(&packets.PubRec{
			FixedHeader: packets.FixedHeader{PacketType: packets.PubRecType},
			ID:          pub.ID,
		})
	}
	return nil
}

func (h *connHandler) handlePubRel(rel *packets.PubRel) error {
	delete(h.pendingQoS2, rel.ID)
	return h.conn.WritePacket(&packets.PubComp{
		FixedHeader: packets.FixedHeader{PacketType: packets.PubCompType},
		ID:          rel.ID,
	})
}

func (h *connHandler) handleSubscribe(sub *packets.Subscribe) error {
	if len(sub.Topics) == 0 {
		return errors.New("subscribe with no filters")
	}

	reqs := make([]SubscriptionRequest, 0, len(sub.Topics))
	codes := make([]byte, 0, len(sub.Topics))
	for i, raw := range sub.Topics {
		filter, err := topics.ParseFilter(raw)
		if err != nil {
			return err
		}
		qos := router.QoS(sub.QoSs[i])
		if !qos.Valid() {
			return errors.New("subscribe with invalid QoS")
		}
		granted := qos
		if granted > h.broker.maxQoS {
			granted = h.broker.maxQoS
		}
		reqs = append(reqs, SubscriptionRequest{Filter: filter, QoS: granted})
		codes = append(codes, byte(granted))
	}

	if err := h.session.Subscribe(reqs); err != nil {
		return err
	}

	if err := h.conn.WritePacket(&packets.SubAck{
		FixedHeader: packets.FixedHeader{PacketType: packets.SubAckType},
		ID:          sub.ID,
		ReturnCodes: codes,
	}); err != nil {
		return err
	}

	for _, req := range reqs {
		h.broker.notify(events.SubscriptionCreated{
			ClientID: h.session.ClientID(),
			Filter:   req.Filter.String(),
			QoS:      byte(req.QoS),
		})
	}

	h.deliverRetained(reqs)
	return nil
}

// deliverRetained pushes stored retained messages matching the new filters
// through the regular dispatch path.
func (h *connHandler) deliverRetained(reqs []SubscriptionRequest) {
	if h.broker.retained == nil {
		return
	}
	for _, req := range reqs {
		matched, err := h.broker.retained.Match(context.Background(), req.Filter.String())
		if err != nil {
			h.logger.Warn("retained lookup failed",
				slog.String("filter", req.Filter.String()),
				slog.String("error", err.Error()))
			continue
		}
		for _, msg := range matched {
			topic, err := topics.ParseTopic(msg.Topic)
			if err != nil {
				continue
			}
			h.session.deliver(topic, msg)
		}
	}
}

func (h *connHandler) handleUnsubscribe(unsub *packets.Unsubscribe) error {
	filters := make([]topics.Filter, 0, len(unsub.Topics))
	for _, raw := range unsub.Topics {
		filter, err := topics.ParseFilter(raw)
		if err != nil {
			return err
		}
		filters = append(filters, filter)
	}

	if err := h.session.Unsubscribe(filters); err != nil {
		return err
	}

	if err := h.conn.WritePacket(&packets.UnsubAck{
		FixedHeader: packets.FixedHeader{PacketType: packets.UnsubAckType},
		ID:          unsub.ID,
	}); err != nil {
		return err
	}

	for _, f := range filters {
		h.broker.notify(events.SubscriptionRemoved{
			ClientID: h.session.ClientID(),
			Filter:   f.String(),
		})
	}
	return nil
}

// writeLoop drains the session queues into PUBLISH packets. It runs until
// the session closes or a write fails; no lock is held across the write.
func (h *connHandler) writeLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.session.Done():
			// The session may have been closed out from under us, e.g. by a
			// takeover; closing the connection unblocks the read loop.
			h.conn.Close()
			return
		case <-h.session.Wake():
			if err := h.drainQueues(); err != nil {
				h.conn.Close()
				return
			}
		}
	}
}

func (h *connHandler) drainQueues() error {
	for {
		msg, qos, ok := h.session.Dequeue()
		if !ok {
			return nil
		}

		pub := &packets.Publish{
			FixedHeader: packets.FixedHeader{PacketType: packets.PublishType, QoS: byte(qos)},
			TopicName:   msg.Topic,
			Payload:     msg.Payload,
		}
		if qos > router.QoS0 {
			pub.ID = h.session.NextPacketID()
		}

		if err := h.conn.WritePacket(pub); err != nil {
			return err
		}
	}
}
