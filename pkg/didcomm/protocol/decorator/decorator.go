/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package decorator

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

const (
	// TransportReturnRouteNone return route option none.
	TransportReturnRouteNone = "none"

	// TransportReturnRouteAll return route option all.
	TransportReturnRouteAll = "all"

	// TransportReturnRouteThread return route option thread.
	TransportReturnRouteThread = "thread"
)

// Thread thread data.
type Thread struct {
	ID             string         `json:"thid,omitempty"`
	PID            string         `json:"pthid,omitempty"`
	SenderOrder    int            `json:"sender_order,omitempty"`
	ReceivedOrders map[string]int `json:"received_orders,omitempty"`
}

// Timing keeps expiration time.
type Timing struct {
	InTime      *time.Time `json:"in_time,omitempty"`
	OutTime     *time.Time `json:"out_time,omitempty"`
	ExpiresTime *time.Time `json:"expires_time,omitempty"`
}

// TransportDecorator is the value of the ~transport decorator.
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0092-transport-return-route
type TransportDecorator struct {
	ReturnRoute       string `json:"return_route,omitempty"`
	ReturnRouteThread string `json:"return_route_thread,omitempty"`
}

// ReturnRouteAll returns a transport decorator requesting every reply on the current channel.
func ReturnRouteAll() *TransportDecorator {
	return &TransportDecorator{ReturnRoute: TransportReturnRouteAll}
}

// ErrNoAttachmentData is returned when an attachment carries neither json nor base64 data.
var ErrNoAttachmentData = errors.New("attachment has no data")

// Attachment is intended to provide the possibility to include files, links or even JSON payload to the message.
// https://github.com/hyperledger/aries-rfcs/tree/main/concepts/0017-attachments
type Attachment struct {
	ID          string         `json:"@id,omitempty"`
	Description string         `json:"description,omitempty"`
	MimeType    string         `json:"mime-type,omitempty"`
	LastModTime *time.Time     `json:"lastmod_time,omitempty"`
	ByteCount   int64          `json:"byte_count,omitempty"`
	Data        AttachmentData `json:"data,omitempty"`
}

// AttachmentData contains attachment payload.
type AttachmentData struct {
	// Base64 is base64-encoded content of the attachment.
	Base64 string `json:"base64,omitempty"`
	// JSON is a directly embedded JSON payload.
	JSON json.RawMessage `json:"json,omitempty"`
}

// Fetch returns the attachment payload: embedded JSON as is, base64 content decoded.
func (d *AttachmentData) Fetch() ([]byte, error) {
	if len(d.JSON) > 0 {
		return d.JSON, nil
	}

	if d.Base64 != "" {
		return base64.StdEncoding.DecodeString(d.Base64)
	}

	return nil, ErrNoAttachmentData
}

// NewJSONAttachment returns an attachment embedding payload as JSON when it is a JSON document and as
// base64 otherwise.
func NewJSONAttachment(id string, payload []byte, lastMod time.Time) Attachment {
	a := Attachment{ID: id, LastModTime: &lastMod}

	if json.Valid(payload) {
		a.Data.JSON = payload
	} else {
		a.Data.Base64 = base64.StdEncoding.EncodeToString(payload)
	}

	return a
}
