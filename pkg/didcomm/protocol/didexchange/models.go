/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package didexchange

import (
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/messagetype"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/protocol/decorator"
)

const (
	// DIDExchange is the name of the protocol.
	DIDExchange = "didexchange"
	// PIURI is the did-exchange protocol URI.
	PIURI = messagetype.DocumentURI + "/didexchange/1.1"
)

// nolint:gochecknoglobals
var (
	// InvitationMsgType is the invitation message type. Invitations travel out of band.
	InvitationMsgType = messagetype.MustParseMessageType(PIURI + "/invitation")
	// RequestMsgType defines the did-exchange request message type.
	RequestMsgType = messagetype.MustParseMessageType(PIURI + "/request")
	// ResponseMsgType defines the did-exchange response message type.
	ResponseMsgType = messagetype.MustParseMessageType(PIURI + "/response")
	// CompleteMsgType defines the did-exchange complete message type.
	CompleteMsgType = messagetype.MustParseMessageType(PIURI + "/complete")
)

// Invitation to exchange DIDs.
type Invitation struct {
	Type            string   `json:"@type,omitempty"`
	ID              string   `json:"@id,omitempty"`
	Label           string   `json:"label,omitempty"`
	RecipientKeys   []string `json:"recipientKeys,omitempty"`
	ServiceEndpoint string   `json:"serviceEndpoint,omitempty"`
	RoutingKeys     []string `json:"routingKeys,omitempty"`
}

// Request defines a2a DID exchange request.
type Request struct {
	Type   string            `json:"@type,omitempty"`
	ID     string            `json:"@id,omitempty"`
	Label  string            `json:"label,omitempty"`
	DID    string            `json:"did,omitempty"`
	Thread *decorator.Thread `json:"~thread,omitempty"`
	// DocAttach carries the requester's DID document.
	DocAttach *decorator.Attachment `json:"did_doc~attach,omitempty"`
}

// Response defines a2a DID exchange response.
type Response struct {
	Type      string                `json:"@type,omitempty"`
	ID        string                `json:"@id,omitempty"`
	DID       string                `json:"did,omitempty"`
	Thread    *decorator.Thread     `json:"~thread,omitempty"`
	DocAttach *decorator.Attachment `json:"did_doc~attach,omitempty"`
}

// Complete defines the did-exchange complete message.
type Complete struct {
	Type   string            `json:"@type,omitempty"`
	ID     string            `json:"@id,omitempty"`
	Thread *decorator.Thread `json:"~thread,omitempty"`
}
