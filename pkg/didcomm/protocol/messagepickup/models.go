/*
Copyright Scoir Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package messagepickup

import (
	"encoding/json"
	"time"

	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/messagetype"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/protocol/decorator"
)

const (
	// MessagePickup defines the protocol name.
	MessagePickup = "messagepickup"
	// PIURIV1 is the batch pickup protocol URI.
	PIURIV1 = messagetype.DocumentURI + "/messagepickup/1.0"
	// PIURIV2 is the status/delivery pickup protocol URI.
	PIURIV2 = messagetype.DocumentURI + "/messagepickup/2.0"
)

// nolint:gochecknoglobals
var (
	// BatchPickupMsgType requests a batch of queued messages.
	BatchPickupMsgType = messagetype.MustParseMessageType(PIURIV1 + "/batch-pickup")
	// BatchMsgType carries a batch of queued messages.
	BatchMsgType = messagetype.MustParseMessageType(PIURIV1 + "/batch")
	// NoopMsgType keeps a return route open.
	NoopMsgType = messagetype.MustParseMessageType(PIURIV1 + "/noop")

	// StatusRequestMsgType asks for the queue status.
	StatusRequestMsgType = messagetype.MustParseMessageType(PIURIV2 + "/status-request")
	// StatusMsgType describes a queue.
	StatusMsgType = messagetype.MustParseMessageType(PIURIV2 + "/status")
	// DeliveryRequestMsgType asks for queued messages.
	DeliveryRequestMsgType = messagetype.MustParseMessageType(PIURIV2 + "/delivery-request")
	// DeliveryMsgType carries queued messages as attachments.
	DeliveryMsgType = messagetype.MustParseMessageType(PIURIV2 + "/delivery")
	// MessagesReceivedMsgType acknowledges delivered messages.
	MessagesReceivedMsgType = messagetype.MustParseMessageType(PIURIV2 + "/messages-received")
	// LiveDeliveryChangeMsgType toggles live delivery.
	LiveDeliveryChangeMsgType = messagetype.MustParseMessageType(PIURIV2 + "/live-delivery-change")
)

// BatchPickup a request to have multiple waiting messages sent inside a batch message.
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0212-pickup#batch-pickup
type BatchPickup struct {
	Type      string                        `json:"@type,omitempty"`
	ID        string                        `json:"@id,omitempty"`
	BatchSize int                           `json:"batch_size"`
	Thread    *decorator.Thread             `json:"~thread,omitempty"`
	Transport *decorator.TransportDecorator `json:"~transport,omitempty"`
}

// Batch a message that contains multiple waiting messages.
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0212-pickup#batch
type Batch struct {
	Type      string                        `json:"@type,omitempty"`
	ID        string                        `json:"@id,omitempty"`
	Messages  []*BatchMessage               `json:"messages~attach"`
	Thread    *decorator.Thread             `json:"~thread,omitempty"`
	Transport *decorator.TransportDecorator `json:"~transport,omitempty"`
}

// BatchMessage is one queued message in a batch. Payloads that are not JSON travel as base64 strings.
type BatchMessage struct {
	ID      string          `json:"id"`
	Message json.RawMessage `json:"message"`
}

// Noop message
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0212-pickup#noop
type Noop struct {
	Type      string                        `json:"@type,omitempty"`
	ID        string                        `json:"@id,omitempty"`
	Transport *decorator.TransportDecorator `json:"~transport,omitempty"`
}

// StatusRequest asks the mediator for the status of a queue.
// https://github.com/hyperledger/aries-rfcs/tree/main/features/0685-pickup-v2#status-request
type StatusRequest struct {
	Type         string                        `json:"@type,omitempty"`
	ID           string                        `json:"@id,omitempty"`
	RecipientKey string                        `json:"recipient_key,omitempty"`
	Thread       *decorator.Thread             `json:"~thread,omitempty"`
	Transport    *decorator.TransportDecorator `json:"~transport,omitempty"`
}

// Status describes a queue without consuming it.
type Status struct {
	Type                 string                        `json:"@type,omitempty"`
	ID                   string                        `json:"@id,omitempty"`
	RecipientKey         string                        `json:"recipient_key,omitempty"`
	MessageCount         int                           `json:"message_count"`
	LongestWaitedSeconds int64                         `json:"longest_waited_seconds,omitempty"`
	NewestReceivedTime   *time.Time                    `json:"newest_received_time,omitempty"`
	OldestReceivedTime   *time.Time                    `json:"oldest_received_time,omitempty"`
	TotalBytes           int64                         `json:"total_bytes,omitempty"`
	LiveDelivery         *bool                         `json:"live_delivery,omitempty"`
	Thread               *decorator.Thread             `json:"~thread,omitempty"`
	Transport            *decorator.TransportDecorator `json:"~transport,omitempty"`
}

// DeliveryRequest asks for up to Limit queued messages.
type DeliveryRequest struct {
	Type         string                        `json:"@type,omitempty"`
	ID           string                        `json:"@id,omitempty"`
	Limit        int                           `json:"limit"`
	RecipientKey string                        `json:"recipient_key,omitempty"`
	Thread       *decorator.Thread             `json:"~thread,omitempty"`
	Transport    *decorator.TransportDecorator `json:"~transport,omitempty"`
}

// Delivery carries queued messages. Attachment ids are the queued message ids.
type Delivery struct {
	Type         string                        `json:"@type,omitempty"`
	ID           string                        `json:"@id,omitempty"`
	RecipientKey string                        `json:"recipient_key,omitempty"`
	Attachments  []decorator.Attachment        `json:"~attach"`
	Thread       *decorator.Thread             `json:"~thread,omitempty"`
	Transport    *decorator.TransportDecorator `json:"~transport,omitempty"`
}

// MessagesReceived acknowledges delivered messages.
type MessagesReceived struct {
	Type          string                        `json:"@type,omitempty"`
	ID            string                        `json:"@id,omitempty"`
	MessageIDList []string                      `json:"message_id_list"`
	Thread        *decorator.Thread             `json:"~thread,omitempty"`
	Transport     *decorator.TransportDecorator `json:"~transport,omitempty"`
}

// LiveDeliveryChange toggles live delivery on the current session.
type LiveDeliveryChange struct {
	Type         string                        `json:"@type,omitempty"`
	ID           string                        `json:"@id,omitempty"`
	LiveDelivery bool                          `json:"live_delivery"`
	Thread       *decorator.Thread             `json:"~thread,omitempty"`
	Transport    *decorator.TransportDecorator `json:"~transport,omitempty"`
}
