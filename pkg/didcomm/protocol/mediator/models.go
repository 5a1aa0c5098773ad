/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

import (
	"encoding/json"

	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/messagetype"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/protocol/decorator"
)

// constants for mediation coordination spec types.
const (
	// Coordination mediation coordination protocol.
	Coordination = "coordinatemediation"
	// PIURI is the mediation coordination protocol URI.
	PIURI = messagetype.DocumentURI + "/coordinate-mediation/1.0"
	// RoutingPIURI is the routing protocol URI.
	RoutingPIURI = messagetype.DocumentURI + "/routing/1.0"
)

// nolint:gochecknoglobals
var (
	// RequestMsgType defines the mediate request message type.
	RequestMsgType = messagetype.MustParseMessageType(PIURI + "/mediate-request")
	// GrantMsgType defines the mediate grant message type.
	GrantMsgType = messagetype.MustParseMessageType(PIURI + "/mediate-grant")
	// DenyMsgType defines the mediate deny message type.
	DenyMsgType = messagetype.MustParseMessageType(PIURI + "/mediate-deny")
	// KeylistUpdateMsgType defines the keylist update message type.
	KeylistUpdateMsgType = messagetype.MustParseMessageType(PIURI + "/keylist-update")
	// KeylistUpdateResponseMsgType defines the keylist update response message type.
	KeylistUpdateResponseMsgType = messagetype.MustParseMessageType(PIURI + "/keylist-update-response")
	// KeylistQueryMsgType defines the keylist query message type.
	KeylistQueryMsgType = messagetype.MustParseMessageType(PIURI + "/keylist-query")
	// KeylistMsgType defines the keylist message type.
	KeylistMsgType = messagetype.MustParseMessageType(PIURI + "/keylist")
	// ForwardMsgType defines the routing forward message type.
	ForwardMsgType = messagetype.MustParseMessageType(RoutingPIURI + "/forward")
)

// Action of a keylist update.
type Action string

// constants for key list update processing
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0211-route-coordination#keylist-update
const (
	// ActionAdd adds a key to the keylist.
	ActionAdd Action = "add"
	// ActionRemove removes a key from the keylist.
	ActionRemove Action = "remove"
)

// Result of one keylist update.
type Result string

const (
	// ResultSuccess the keylist changed.
	ResultSuccess Result = "success"
	// ResultNoChange the key was already present (add) or absent (remove).
	ResultNoChange Result = "no_change"
	// ResultClientError the update was malformed or not allowed.
	ResultClientError Result = "client_error"
	// ResultServerError the update could not be stored.
	ResultServerError Result = "server_error"
)

// Request is the mediate request message.
type Request struct {
	Type   string            `json:"@type,omitempty"`
	ID     string            `json:"@id,omitempty"`
	Thread *decorator.Thread `json:"~thread,omitempty"`
}

// Grant is the mediate grant message.
type Grant struct {
	Type        string            `json:"@type,omitempty"`
	ID          string            `json:"@id,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`
	RoutingKeys []string          `json:"routing_keys"`
	Thread      *decorator.Thread `json:"~thread,omitempty"`
}

// Deny is the mediate deny message.
type Deny struct {
	Type   string            `json:"@type,omitempty"`
	ID     string            `json:"@id,omitempty"`
	Thread *decorator.Thread `json:"~thread,omitempty"`
}

// KeylistUpdate is the keylist update message.
type KeylistUpdate struct {
	Type    string            `json:"@type,omitempty"`
	ID      string            `json:"@id,omitempty"`
	Updates []Update          `json:"updates"`
	Thread  *decorator.Thread `json:"~thread,omitempty"`
}

// Update is one change of a keylist.
type Update struct {
	RecipientKey string `json:"recipient_key"`
	Action       Action `json:"action"`
}

// KeylistUpdateResponse reports the result of each update, in request order.
type KeylistUpdateResponse struct {
	Type    string            `json:"@type,omitempty"`
	ID      string            `json:"@id,omitempty"`
	Updated []UpdateResponse  `json:"updated"`
	Thread  *decorator.Thread `json:"~thread,omitempty"`
}

// UpdateResponse is the result of one update.
type UpdateResponse struct {
	RecipientKey string `json:"recipient_key"`
	Action       Action `json:"action"`
	Result       Result `json:"result"`
}

// KeylistQuery asks for the keys registered by the connection.
type KeylistQuery struct {
	Type     string            `json:"@type,omitempty"`
	ID       string            `json:"@id,omitempty"`
	Paginate *Paginate         `json:"paginate,omitempty"`
	Thread   *decorator.Thread `json:"~thread,omitempty"`
}

// Paginate selects a page of the keylist.
type Paginate struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Keylist lists the keys registered by the connection.
type Keylist struct {
	Type       string            `json:"@type,omitempty"`
	ID         string            `json:"@id,omitempty"`
	Keys       []KeylistKey      `json:"keys"`
	Pagination *Pagination       `json:"pagination,omitempty"`
	Thread     *decorator.Thread `json:"~thread,omitempty"`
}

// KeylistKey is one registered key.
type KeylistKey struct {
	RecipientKey string `json:"recipient_key"`
}

// Pagination describes the returned page.
type Pagination struct {
	Count     int `json:"count"`
	Offset    int `json:"offset"`
	Remaining int `json:"remaining"`
}

// Forward wraps a packed message for a recipient key the mediator routes for.
type Forward struct {
	Type string          `json:"@type,omitempty"`
	ID   string          `json:"@id,omitempty"`
	To   string          `json:"to"`
	Msg  json.RawMessage `json:"msg"`
}
