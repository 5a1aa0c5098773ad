/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

import (
	"time"

	"github.com/hyperledger/aries-mediator-go/pkg/store/connection"
)

// FeaturesRequest selects protocols by a discover-features query. An empty query matches everything.
type FeaturesRequest struct {
	Query string `json:"query"`
}

// FeaturesResponse lists the protocol URIs matching a query.
type FeaturesResponse struct {
	Protocols []string `json:"protocols"`
}

// ConnectionIDArg identifies a connection.
type ConnectionIDArg struct {
	ID string `json:"id"`
}

// ConnectionResponse model
//
// response of get connection action.
type ConnectionResponse struct {
	Result *connection.Record `json:"result"`
}

// KeylistResponse lists the recipient keys routed to a connection.
type KeylistResponse struct {
	ConnectionID string   `json:"connectionID"`
	Keys         []string `json:"keys"`
}

// MailboxStatusRequest is request for the queue status of a recipient key.
type MailboxStatusRequest struct {
	RecipientKey string `json:"recipient_key"`
}

// MailboxStatusResponse is the queue status of a recipient key.
type MailboxStatusResponse struct {
	RecipientKey     string     `json:"recipient_key"`
	MessageCount     int        `json:"message_count"`
	TotalBytes       int64      `json:"total_bytes"`
	OldestReceivedAt *time.Time `json:"oldest_received_time,omitempty"`
	NewestReceivedAt *time.Time `json:"newest_received_time,omitempty"`
}
