/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/cenkalti/backoff/v4"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/messagetype"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/dispatcher"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/protocol/decorator"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/transport"
	"github.com/hyperledger/aries-mediator-go/pkg/internal/instrument"
	"github.com/hyperledger/aries-mediator-go/pkg/store/connection"
)

var logger = log.New("aries-framework/dispatcher/inbound")

type connectionLookup interface {
	GetConnectionRecordByTheirKey(theirKey string) (*connection.Record, error)
}

type provider interface {
	Packager() transport.Packager
	Registry() *dispatcher.Registry
	ConnectionLookup() *connection.Lookup
	OutboundDispatcher() dispatcher.Outbound
	Sessions() *transport.SessionRegistry
	GetConnectionBackOffDuration() time.Duration
	GetConnectionMaxRetries() uint64
}

// MessageHandler handles inbound envelopes, processing then dispatching to the handler registered for the
// message type.
type MessageHandler struct {
	packager          transport.Packager
	registry          *dispatcher.Registry
	connections       connectionLookup
	outbound          dispatcher.Outbound
	sessions          *transport.SessionRegistry
	getConnBackOff    time.Duration
	getConnMaxRetries uint64
	initialized       bool
}

// NewInboundMessageHandler creates an inbound message handler, that processes inbound envelopes
// and dispatches them to the registered handlers.
func NewInboundMessageHandler(p provider) *MessageHandler {
	h := MessageHandler{}
	h.Initialize(p)

	return &h
}

// Initialize initializes the MessageHandler. Any call beyond the first is a no-op.
func (handler *MessageHandler) Initialize(p provider) {
	if handler.initialized {
		return
	}

	handler.packager = p.Packager()
	handler.registry = p.Registry()
	handler.connections = p.ConnectionLookup()
	handler.outbound = p.OutboundDispatcher()
	handler.sessions = p.Sessions()
	handler.getConnBackOff = p.GetConnectionBackOffDuration()
	handler.getConnMaxRetries = p.GetConnectionMaxRetries()

	handler.initialized = true
}

// HandlerFunc returns the MessageHandler's transport.InboundMessageHandler function.
func (handler *MessageHandler) HandlerFunc() transport.InboundMessageHandler {
	return handler.HandleInboundPayload
}

// HandleInboundPayload unpacks an inbound payload and handles the enclosed message. session may be nil for
// payloads that did not arrive over a transport, such as messages fetched from a mediator.
func (handler *MessageHandler) HandleInboundPayload(ctx context.Context, payload []byte,
	session transport.Session) error {
	envelope, err := handler.packager.UnpackMessage(payload)
	if err != nil {
		instrument.Rejected()

		return fmt.Errorf("unpack inbound message: %w", err)
	}

	return handler.HandleInboundEnvelope(ctx, envelope, session)
}

// HandleInboundEnvelope handles an unpacked envelope, dispatching the message to the handler resolved from
// the registry. The reply, if any, is sent back over session when the message asked for a return route,
// otherwise it is handed to the outbound dispatcher.
func (handler *MessageHandler) HandleInboundEnvelope(ctx context.Context, envelope *transport.Envelope,
	session transport.Session) error {
	msg, err := handler.parse(envelope)
	if err != nil {
		instrument.Rejected()

		return err
	}

	h, err := handler.registry.Resolve(msg.Type())
	if err != nil {
		instrument.Rejected()

		return err
	}

	dctx, err := handler.didcommContext(envelope, session)
	if err != nil {
		return err
	}

	returnRoute := returnRouteRequested(msg)
	if returnRoute && session != nil {
		handler.sessions.Bind(dctx.ConnectionID, session)
	}

	reply, err := h.HandleInbound(msg, dctx)
	if err != nil {
		instrument.Rejected()

		return fmt.Errorf("handle inbound message '%s': %w", msg.Type(), err)
	}

	if mt, e := messagetype.ParseMessageType(msg.Type()); e == nil {
		instrument.Inbound(mt.ProtocolName)
	}

	if reply == nil {
		return nil
	}

	connectionID := dctx.ConnectionID
	if reply.ConnectionID != "" {
		connectionID = reply.ConnectionID
	}

	if returnRoute && session != nil && replyOnThread(msg, reply) {
		handler.sessions.Bind(connectionID, session)

		return handler.replyOnSession(ctx, envelope, reply, session)
	}

	if err = handler.outbound.Send(reply, connectionID); err != nil {
		return fmt.Errorf("send reply to connection %s: %w", connectionID, err)
	}

	return nil
}

func (handler *MessageHandler) parse(envelope *transport.Envelope) (service.DIDCommMsgMap, error) {
	if envelope == nil {
		return nil, errors.New("nil envelope")
	}

	msg, err := service.ParseDIDCommMsgMap(envelope.Message)
	if err != nil {
		return nil, err
	}

	if err = service.ValidateMessageID(msg.ID()); err != nil {
		return nil, err
	}

	return msg, nil
}

func (handler *MessageHandler) didcommContext(envelope *transport.Envelope,
	session transport.Session) (service.DIDCommContext, error) {
	dctx := service.DIDCommContext{}

	if len(envelope.ToKey) > 0 {
		dctx.MyKey = base58.Encode(envelope.ToKey)
	}

	if session != nil {
		dctx.SessionID = session.ID()
	}

	if len(envelope.FromKey) == 0 {
		return dctx, nil
	}

	dctx.TheirKey = base58.Encode(envelope.FromKey)

	connectionID, err := handler.getConnectionID(dctx.TheirKey)
	if err != nil {
		return dctx, fmt.Errorf("inbound message handler: %w", err)
	}

	dctx.ConnectionID = connectionID

	return dctx, nil
}

// getConnectionID returns the connection of the sender key, or an empty id for unknown senders.
func (handler *MessageHandler) getConnectionID(theirKey string) (string, error) {
	var connectionID string

	err := backoff.Retry(func() error {
		record, err := handler.connections.GetConnectionRecordByTheirKey(theirKey)
		if errors.Is(err, connection.ErrNotFound) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("failed to get connection of key %s: %w", theirKey, err)
		}

		connectionID = record.ConnectionID

		return nil
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(handler.getConnBackOff), handler.getConnMaxRetries))

	return connectionID, err
}

func (handler *MessageHandler) replyOnSession(ctx context.Context, envelope *transport.Envelope,
	reply *service.OutboundMessage, session transport.Session) error {
	msgBytes, err := json.Marshal(reply.Msg)
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}

	packed, err := handler.packager.PackMessage(&transport.Envelope{
		Message: msgBytes,
		FromKey: envelope.ToKey,
		ToKey:   envelope.FromKey,
	})
	if err != nil {
		return fmt.Errorf("pack reply: %w", err)
	}

	if err = session.Send(ctx, packed); err != nil {
		return fmt.Errorf("send reply on session %s: %w", session.ID(), err)
	}

	logger.Debugf("reply %s sent on session %s", reply.Msg.Type(), session.ID())

	return nil
}

func returnRouteRequested(msg service.DIDCommMsgMap) bool {
	route, _ := msg.ReturnRoute()

	return route == decorator.TransportReturnRouteAll || route == decorator.TransportReturnRouteThread
}

// replyOnThread reports whether reply may travel on the inbound channel: always for return route "all", and
// for "thread" only when the reply belongs to the requested thread.
func replyOnThread(msg service.DIDCommMsgMap, reply *service.OutboundMessage) bool {
	route, thread := msg.ReturnRoute()
	if route != decorator.TransportReturnRouteThread {
		return true
	}

	if thread == "" {
		thread, _ = msg.ThreadID() //nolint:errcheck
	}

	thid, err := reply.Msg.ThreadID()

	return err == nil && thid == thread
}
