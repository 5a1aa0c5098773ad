/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package outbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/recipientkey"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/dispatcher"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/protocol/messagepickup"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/transport"
	"github.com/hyperledger/aries-mediator-go/pkg/internal/instrument"
	"github.com/hyperledger/aries-mediator-go/pkg/store/connection"
	"github.com/hyperledger/aries-mediator-go/pkg/store/mailbox"
)

var logger = log.New("aries-framework/didcomm/dispatcher")

const defaultSendTimeout = 10 * time.Second

// provider interface for outbound ctx.
type provider interface {
	Packager() transport.Packager
	Sessions() *transport.SessionRegistry
	ConnectionLookup() *connection.Lookup
	Mailbox() mailbox.Store
	MessagePickupService() messagepickup.ProtocolService
}

type connectionLookup interface {
	GetConnectionRecord(connectionID string) (*connection.Record, error)
}

// Dispatcher sends messages to connections over their open session, queueing them in the mailbox when the
// message allows it.
type Dispatcher struct {
	packager    transport.Packager
	sessions    *transport.SessionRegistry
	connections connectionLookup
	mailbox     mailbox.Store
	pickup      func() messagepickup.ProtocolService
	sendTimeout time.Duration
}

// NewOutbound return new dispatcher outbound instance.
func NewOutbound(prov provider) (*Dispatcher, error) {
	if prov.Mailbox() == nil {
		return nil, errors.New("new outbound dispatcher: mailbox is mandatory")
	}

	if prov.ConnectionLookup() == nil {
		return nil, errors.New("new outbound dispatcher: connection lookup is mandatory")
	}

	return &Dispatcher{
		packager:    prov.Packager(),
		sessions:    prov.Sessions(),
		connections: prov.ConnectionLookup(),
		mailbox:     prov.Mailbox(),
		pickup:      prov.MessagePickupService,
		sendTimeout: defaultSendTimeout,
	}, nil
}

// Send packs msg for the connection and pushes it over the connection's session. Without a usable session
// the message is queued under the connection's recipient verkey if msg.AllowQueue is set, otherwise
// dispatcher.ErrNoRoute is returned.
func (o *Dispatcher) Send(msg *service.OutboundMessage, connectionID string) error {
	record, err := o.connections.GetConnectionRecord(connectionID)
	if err != nil {
		return fmt.Errorf("outbound dispatcher: connection %s: %w", connectionID, err)
	}

	if record.TheirKey == "" {
		return fmt.Errorf("outbound dispatcher: connection %s has no recipient key", connectionID)
	}

	theirKey, err := recipientkey.VerKey(record.TheirKey)
	if err != nil {
		return fmt.Errorf("outbound dispatcher: connection %s: %w", connectionID, err)
	}

	packed, err := o.pack(msg, record.MyKey, theirKey)
	if err != nil {
		return err
	}

	if s, ok := o.sessions.Find(connectionID); ok {
		ctx, cancel := context.WithTimeout(context.Background(), o.sendTimeout)
		defer cancel()

		err = s.Send(ctx, packed)
		if err == nil {
			logger.Debugf("message %s sent on session %s of connection %s", msg.Msg.Type(), s.ID(), connectionID)

			return nil
		}

		logger.Warnf("send on session %s of connection %s failed : %s", s.ID(), connectionID, err)

		if !msg.AllowQueue {
			return fmt.Errorf("outbound dispatcher: %w", err)
		}
	}

	if !msg.AllowQueue {
		return fmt.Errorf("%w: %s", dispatcher.ErrNoRoute, connectionID)
	}

	if err = o.queue(theirKey, packed); err != nil {
		return fmt.Errorf("outbound dispatcher: queue message: %w", err)
	}

	logger.Debugf("message %s queued for connection %s", msg.Msg.Type(), connectionID)

	return nil
}

// queue hands the packed message to message pickup, which serializes it with the other operations on
// the key's queue. The mailbox is written directly only when no pickup service is registered.
func (o *Dispatcher) queue(verKey string, packed []byte) error {
	if pickup := o.pickup(); pickup != nil {
		return pickup.AddMessage(verKey, packed)
	}

	if _, err := o.mailbox.Add(verKey, packed); err != nil {
		return err
	}

	instrument.Queued()

	return nil
}

func (o *Dispatcher) pack(msg *service.OutboundMessage, myKey, theirKey string) ([]byte, error) {
	msgBytes, err := json.Marshal(msg.Msg)
	if err != nil {
		return nil, fmt.Errorf("outbound dispatcher: marshal message: %w", err)
	}

	env := &transport.Envelope{Message: msgBytes, ToKey: base58.Decode(theirKey)}

	if myKey != "" {
		from, err := recipientkey.VerKey(myKey)
		if err != nil {
			return nil, fmt.Errorf("outbound dispatcher: sender key: %w", err)
		}

		env.FromKey = base58.Decode(from)
	}

	packed, err := o.packager.PackMessage(env)
	if err != nil {
		return nil, fmt.Errorf("outbound dispatcher: pack message: %w", err)
	}

	return packed, nil
}
