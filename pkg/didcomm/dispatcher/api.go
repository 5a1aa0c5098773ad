/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package dispatcher

//go:generate mockgen -destination ../../internal/gomocks/didcomm/dispatcher/mocks.gen.go -package dispatcher . Outbound,Handler

import (
	"errors"

	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/messagetype"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/service"
)

// ErrNoRoute is returned when a message can neither be delivered over an open session nor queued.
var ErrNoRoute = errors.New("no route to connection")

// Handler handles inbound messages. A non nil OutboundMessage is the reply to the message.
type Handler interface {
	HandleInbound(msg service.DIDCommMsgMap, ctx service.DIDCommContext) (*service.OutboundMessage, error)
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(msg service.DIDCommMsgMap, ctx service.DIDCommContext) (*service.OutboundMessage, error)

// HandleInbound calls f.
func (f HandlerFunc) HandleInbound(msg service.DIDCommMsgMap,
	ctx service.DIDCommContext) (*service.OutboundMessage, error) {
	return f(msg, ctx)
}

// ProtocolService is a protocol implementation handling a set of message types.
type ProtocolService interface {
	Handler
	Name() string
	MessageTypes() []messagetype.MessageType
}

// Outbound sends messages to a connection.
type Outbound interface {
	Send(msg *service.OutboundMessage, connectionID string) error
}
