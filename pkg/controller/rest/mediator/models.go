/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

import "github.com/hyperledger/aries-mediator-go/pkg/controller/command/mediator"

// featuresReq model
//
// swagger:parameters features
type featuresReq struct { // nolint: unused,deadcode
	// Discover-features query, e.g. https://didcomm.org/messagepickup/*
	//
	// in: query
	Query string `json:"query"`
}

// featuresResponse model
//
// swagger:response featuresResponse
type featuresResponse struct { // nolint: unused,deadcode
	// in: body
	mediator.FeaturesResponse
}

// connectionIDReq model
//
// swagger:parameters getConnection getKeylist
type connectionIDReq struct { // nolint: unused,deadcode
	// The ID of the connection
	//
	// in: path
	// required: true
	ID string `json:"id"`
}

// getConnectionResponse model
//
// swagger:response getConnectionResponse
type getConnectionResponse struct { // nolint: unused,deadcode
	// in: body
	mediator.ConnectionResponse
}

// keylistResponse model
//
// swagger:response keylistResponse
type keylistResponse struct { // nolint: unused,deadcode
	// in: body
	mediator.KeylistResponse
}

// mailboxStatusReq model
//
// swagger:parameters mailboxStatus
type mailboxStatusReq struct { // nolint: unused,deadcode
	// Base58 verkey or did:key of the recipient
	//
	// in: path
	// required: true
	RecipientKey string `json:"recipientKey"`
}

// mailboxStatusResponse model
//
// swagger:response mailboxStatusResponse
type mailboxStatusResponse struct { // nolint: unused,deadcode
	// in: body
	mediator.MailboxStatusResponse
}
