/*
Copyright Scoir Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package messagepickup

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/protocol/decorator"
)

// NewStatusRequest creates a status request. An empty recipientKey asks about every key of the connection.
func NewStatusRequest(recipientKey string) *StatusRequest {
	return &StatusRequest{
		Type:         StatusRequestMsgType.String(),
		ID:           uuid.New().String(),
		RecipientKey: recipientKey,
		Transport:    decorator.ReturnRouteAll(),
	}
}

// NewDeliveryRequest creates a delivery request for up to limit messages.
func NewDeliveryRequest(limit int, recipientKey string) *DeliveryRequest {
	return &DeliveryRequest{
		Type:         DeliveryRequestMsgType.String(),
		ID:           uuid.New().String(),
		Limit:        limit,
		RecipientKey: recipientKey,
		Transport:    decorator.ReturnRouteAll(),
	}
}

// NewMessagesReceived acknowledges the given message ids.
func NewMessagesReceived(ids []string) *MessagesReceived {
	return &MessagesReceived{
		Type:          MessagesReceivedMsgType.String(),
		ID:            uuid.New().String(),
		MessageIDList: ids,
		Transport:     decorator.ReturnRouteAll(),
	}
}

// NewLiveDeliveryChange asks the mediator to switch live delivery.
func NewLiveDeliveryChange(live bool) *LiveDeliveryChange {
	return &LiveDeliveryChange{
		Type:         LiveDeliveryChangeMsgType.String(),
		ID:           uuid.New().String(),
		LiveDelivery: live,
		Transport:    decorator.ReturnRouteAll(),
	}
}

// NewBatchPickup asks for a batch of up to size messages.
func NewBatchPickup(size int) *BatchPickup {
	return &BatchPickup{
		Type:      BatchPickupMsgType.String(),
		ID:        uuid.New().String(),
		BatchSize: size,
		Transport: decorator.ReturnRouteAll(),
	}
}

// NewNoop creates a noop message.
func NewNoop() *Noop {
	return &Noop{
		Type:      NoopMsgType.String(),
		ID:        uuid.New().String(),
		Transport: decorator.ReturnRouteAll(),
	}
}

// handleStatus asks for the queued messages the mediator reports, at most a batch at a time.
func (s *Service) handleStatus(msg service.DIDCommMsgMap, ctx service.DIDCommContext) (*service.OutboundMessage, error) {
	status := &Status{}

	if err := msg.Decode(status); err != nil {
		return nil, errors.Wrap(err, "status message unmarshal")
	}

	if status.MessageCount == 0 {
		thid, _ := msg.ThreadID() //nolint:errcheck

		s.Notify(service.StateMsg{
			ProtocolName: MessagePickup,
			Type:         service.PostState,
			StateID:      CompletedState,
			Msg:          msg,
			Properties:   map[string]interface{}{"connectionID": ctx.ConnectionID, "threadID": thid},
		})

		return nil, nil
	}

	limit := status.MessageCount
	if limit > s.maxBatchSize {
		limit = s.maxBatchSize
	}

	return s.reply(msg, &DeliveryRequest{Limit: limit, RecipientKey: status.RecipientKey})
}

// handleDelivery hands each delivered message to the inbound handler and acknowledges all of them.
func (s *Service) handleDelivery(msg service.DIDCommMsgMap, _ service.DIDCommContext) (*service.OutboundMessage, error) {
	delivery := &Delivery{}

	if err := msg.Decode(delivery); err != nil {
		return nil, errors.Wrap(err, "delivery message unmarshal")
	}

	if len(delivery.Attachments) == 0 {
		return nil, errors.New("delivery has no attachments")
	}

	ids := make([]string, 0, len(delivery.Attachments))

	for i := range delivery.Attachments {
		a := delivery.Attachments[i]
		ids = append(ids, a.ID)

		payload, err := a.Data.Fetch()
		if err != nil {
			logger.Errorf("delivered message %s: %s", a.ID, err)

			continue
		}

		if err = s.handleInboundPayload(payload); err != nil {
			logger.Errorf("error handling delivered message %s: %s", a.ID, err)
		}
	}

	return s.reply(msg, &MessagesReceived{MessageIDList: ids})
}

// handleBatch hands each message of a v1 batch to the inbound handler.
func (s *Service) handleBatch(msg service.DIDCommMsgMap, _ service.DIDCommContext) (*service.OutboundMessage, error) {
	batch := &Batch{}

	if err := msg.Decode(batch); err != nil {
		return nil, errors.Wrap(err, "batch message unmarshal")
	}

	for _, m := range batch.Messages {
		payload, err := batchPayload(m.Message)
		if err != nil {
			logger.Errorf("batch message %s: %s", m.ID, err)

			continue
		}

		if err = s.handleInboundPayload(payload); err != nil {
			logger.Errorf("error handling batch message %s: %s", m.ID, err)
		}
	}

	return nil, nil
}

func batchPayload(raw json.RawMessage) ([]byte, error) {
	if len(raw) > 0 && raw[0] == '"' {
		var b []byte

		err := json.Unmarshal(raw, &b)

		return b, err
	}

	return raw, nil
}
