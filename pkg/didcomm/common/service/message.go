/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidMessageID is returned when a message id does not match the DIDComm id grammar.
var ErrInvalidMessageID = errors.New("invalid message id")

var messageIDRegex = regexp.MustCompile(`^[-_./a-zA-Z0-9]{8,64}$`)

// ValidateMessageID checks the message id grammar.
func ValidateMessageID(id string) error {
	if !messageIDRegex.MatchString(id) {
		return fmt.Errorf("%w: '%s'", ErrInvalidMessageID, id)
	}

	return nil
}

// DIDCommContext carries information about the connection an inbound message arrived on.
type DIDCommContext struct {
	// ConnectionID is empty when the sender is not (yet) a known connection.
	ConnectionID string
	MyKey        string
	TheirKey     string
	// SessionID identifies the transport session the message arrived on, if any.
	SessionID string
}

// OutboundMessage is a message produced by a protocol handler.
type OutboundMessage struct {
	Msg DIDCommMsgMap
	// AllowQueue permits the message to be queued in the mediator mailbox when no live session to the
	// recipient exists. Protocol control messages that only make sense on the current channel set it false.
	AllowQueue bool
	// ConnectionID, when set, names the connection a reply goes to. It is used when the inbound message
	// established the connection.
	ConnectionID string
}

// NewOutboundMessage wraps a message struct.
func NewOutboundMessage(msg interface{}, allowQueue bool) *OutboundMessage {
	return &OutboundMessage{Msg: NewDIDCommMsgMap(msg), AllowQueue: allowQueue}
}
