/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package discoverfeatures

import (
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/messagetype"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/protocol/decorator"
)

const (
	// DiscoverFeatures protocol name.
	DiscoverFeatures = "discover-features"
	// PIURI is the discover features protocol URI.
	PIURI = messagetype.DocumentURI + "/discover-features/1.0"
)

// nolint:gochecknoglobals
var (
	// QueryMsgType defines the query message type.
	QueryMsgType = messagetype.MustParseMessageType(PIURI + "/query")
	// DiscloseMsgType defines the disclose message type.
	DiscloseMsgType = messagetype.MustParseMessageType(PIURI + "/disclose")
)

// Query asks which protocols the receiver supports. A trailing '*' matches any protocol URI with the
// preceding prefix.
type Query struct {
	Type    string `json:"@type,omitempty"`
	ID      string `json:"@id,omitempty"`
	Query   string `json:"query"`
	Comment string `json:"comment,omitempty"`
}

// Disclose lists the supported protocols matching a query.
type Disclose struct {
	Type      string            `json:"@type,omitempty"`
	ID        string            `json:"@id,omitempty"`
	Protocols []Protocol        `json:"protocols"`
	Thread    *decorator.Thread `json:"~thread,omitempty"`
}

// Protocol is one disclosed protocol.
type Protocol struct {
	PID   string   `json:"pid"`
	Roles []string `json:"roles,omitempty"`
}
