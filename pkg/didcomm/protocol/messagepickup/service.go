/*
Copyright Scoir Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package messagepickup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/pkg/errors"

	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/messagetype"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/recipientkey"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/dispatcher"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/protocol/decorator"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/transport"
	"github.com/hyperledger/aries-mediator-go/pkg/internal/instrument"
	"github.com/hyperledger/aries-mediator-go/pkg/internal/lockbox"
	"github.com/hyperledger/aries-mediator-go/pkg/store/connection"
	"github.com/hyperledger/aries-mediator-go/pkg/store/mailbox"
)

const (
	defaultMaxBatchSize      = 10
	defaultPushRetries       = 3
	defaultPushRetryInterval = time.Second

	// CompletedState is the StateID notified when the mediator reports an empty queue to the recipient.
	CompletedState = "pickup-completed"
)

var (
	// ErrConnectionNotFound is returned when the connection a pickup message arrived on is not stored.
	ErrConnectionNotFound = errors.New("connection not found")
	// ErrMissingRecipientKey is returned when no recipient key can be resolved for a pickup request.
	ErrMissingRecipientKey = errors.New("missing recipient key")
	// ErrRecipientKeyNotOwned is returned when a request names a key its connection did not register.
	ErrRecipientKeyNotOwned = errors.New("recipient key is not registered by the connection")
	logger                  = log.New("aries-framework/messagepickup")
)

type provider interface {
	StorageProvider() storage.Provider
	Mailbox() mailbox.Store
	OutboundDispatcher() dispatcher.Outbound
	InboundMessageHandler() transport.InboundMessageHandler
}

type connections interface {
	GetConnectionRecord(string) (*connection.Record, error)
	GetConnectionRecordByTheirKey(string) (*connection.Record, error)
	GetRouteConnectionID(string) (string, error)
	GetRoutes(string) ([]string, error)
}

// Opt configures the service.
type Opt func(*Service)

// WithMaxBatchSize bounds the number of messages a recipient asks for at once.
func WithMaxBatchSize(n int) Opt {
	return func(s *Service) {
		s.maxBatchSize = n
	}
}

// WithPushRetry sets how live delivery pushes are retried.
func WithPushRetry(interval time.Duration, retries uint64) Opt {
	return func(s *Service) {
		s.pushRetryInterval = interval
		s.pushRetries = retries
	}
}

// Service for the messagepickup protocol. It plays the mediator role for status-request, delivery-request,
// messages-received, live-delivery-change and batch-pickup and the recipient role for status, delivery
// and batch.
type Service struct {
	service.Message
	connections       connections
	mailbox           mailbox.Store
	outbound          dispatcher.Outbound
	msgHandler        transport.InboundMessageHandler
	sessions          *SessionManager
	locks             *lockbox.Lockbox
	maxBatchSize      int
	pushRetries       uint64
	pushRetryInterval time.Duration
}

// New returns the messagepickup service.
func New(prov provider, opts ...Opt) (*Service, error) {
	connectionLookup, err := connection.NewLookup(prov)
	if err != nil {
		return nil, errors.Wrap(err, "new messagepickup service")
	}

	if prov.Mailbox() == nil {
		return nil, errors.New("new messagepickup service: mailbox is mandatory")
	}

	svc := &Service{
		connections:       connectionLookup,
		mailbox:           prov.Mailbox(),
		outbound:          prov.OutboundDispatcher(),
		msgHandler:        prov.InboundMessageHandler(),
		sessions:          NewSessionManager(),
		locks:             lockbox.New(),
		maxBatchSize:      defaultMaxBatchSize,
		pushRetries:       defaultPushRetries,
		pushRetryInterval: defaultPushRetryInterval,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Name of the service.
func (s *Service) Name() string {
	return MessagePickup
}

// MessageTypes returns the message types the service handles.
func (s *Service) MessageTypes() []messagetype.MessageType {
	return []messagetype.MessageType{
		BatchPickupMsgType, BatchMsgType, NoopMsgType,
		StatusRequestMsgType, StatusMsgType, DeliveryRequestMsgType, DeliveryMsgType,
		MessagesReceivedMsgType, LiveDeliveryChangeMsgType,
	}
}

// Sessions returns the pickup sessions.
func (s *Service) Sessions() *SessionManager {
	return s.sessions
}

// SessionClosed drops the pickup session of a connection whose transport session went away.
func (s *Service) SessionClosed(connectionID string) {
	logger.Debugf("transport session of connection %s closed", connectionID)

	s.sessions.Destroy(connectionID)
}

// HandleInbound handles inbound message pick up messages.
func (s *Service) HandleInbound(msg service.DIDCommMsgMap,
	ctx service.DIDCommContext) (*service.OutboundMessage, error) {
	mt, err := messagetype.ParseMessageType(msg.Type())
	if err != nil {
		return nil, err
	}

	handlers := []struct {
		msgType messagetype.MessageType
		handle  func(service.DIDCommMsgMap, service.DIDCommContext) (*service.OutboundMessage, error)
	}{
		{StatusRequestMsgType, s.handleStatusRequest},
		{DeliveryRequestMsgType, s.handleDeliveryRequest},
		{MessagesReceivedMsgType, s.handleMessagesReceived},
		{LiveDeliveryChangeMsgType, s.handleLiveDeliveryChange},
		{BatchPickupMsgType, s.handleBatchPickup},
		{NoopMsgType, s.handleNoop},
		{StatusMsgType, s.handleStatus},
		{DeliveryMsgType, s.handleDelivery},
		{BatchMsgType, s.handleBatch},
	}

	for _, h := range handlers {
		if messagetype.SupportsMessageType(mt, h.msgType) {
			return h.handle(msg, ctx)
		}
	}

	return nil, fmt.Errorf("messagepickup: unexpected message type %s", msg.Type())
}

func (s *Service) handleStatusRequest(msg service.DIDCommMsgMap,
	ctx service.DIDCommContext) (*service.OutboundMessage, error) {
	request := &StatusRequest{}

	if err := msg.Decode(request); err != nil {
		return nil, errors.Wrap(err, "status request message unmarshal")
	}

	keys, err := s.recipientKeys(request.RecipientKey, ctx)
	if err != nil {
		return nil, err
	}

	status, err := s.status(keys, ctx.ConnectionID)
	if err != nil {
		return nil, err
	}

	status.RecipientKey = request.RecipientKey

	return s.reply(msg, status)
}

func (s *Service) handleDeliveryRequest(msg service.DIDCommMsgMap,
	ctx service.DIDCommContext) (*service.OutboundMessage, error) {
	request := &DeliveryRequest{}

	if err := msg.Decode(request); err != nil {
		return nil, errors.Wrap(err, "delivery request message unmarshal")
	}

	if request.Limit < 1 {
		return nil, errors.Errorf("delivery request limit must be positive, got %d", request.Limit)
	}

	keys, err := s.recipientKeys(request.RecipientKey, ctx)
	if err != nil {
		return nil, err
	}

	msgs, err := s.take(keys, request.Limit)
	if err != nil {
		return nil, err
	}

	if len(msgs) == 0 {
		return s.reply(msg, &Status{RecipientKey: request.RecipientKey})
	}

	instrument.Delivered(len(msgs))

	return s.reply(msg, newDelivery(request.RecipientKey, msgs))
}

func (s *Service) handleMessagesReceived(msg service.DIDCommMsgMap,
	ctx service.DIDCommContext) (*service.OutboundMessage, error) {
	request := &MessagesReceived{}

	if err := msg.Decode(request); err != nil {
		return nil, errors.Wrap(err, "messages received message unmarshal")
	}

	keys, err := s.recipientKeys("", ctx)
	if err != nil {
		return nil, err
	}

	if len(request.MessageIDList) > 0 {
		removed, err := s.remove(keys, request.MessageIDList)
		if err != nil {
			return nil, err
		}

		instrument.Removed(removed)

		logger.Debugf("connection %s acknowledged %d messages, removed %d",
			ctx.ConnectionID, len(request.MessageIDList), removed)
	}

	status, err := s.status(keys, ctx.ConnectionID)
	if err != nil {
		return nil, err
	}

	return s.reply(msg, status)
}

func (s *Service) handleLiveDeliveryChange(msg service.DIDCommMsgMap,
	ctx service.DIDCommContext) (*service.OutboundMessage, error) {
	request := &LiveDeliveryChange{}

	if err := msg.Decode(request); err != nil {
		return nil, errors.Wrap(err, "live delivery change message unmarshal")
	}

	keys, err := s.recipientKeys("", ctx)
	if err != nil {
		return nil, err
	}

	if request.LiveDelivery && ctx.SessionID != "" {
		s.sessions.SetLiveDelivery(ctx.ConnectionID, true, ctx.SessionID)
	} else {
		s.sessions.SetLiveDelivery(ctx.ConnectionID, false, "")
	}

	status, err := s.status(keys, ctx.ConnectionID)
	if err != nil {
		return nil, err
	}

	return s.reply(msg, status)
}

func (s *Service) handleBatchPickup(msg service.DIDCommMsgMap,
	ctx service.DIDCommContext) (*service.OutboundMessage, error) {
	request := &BatchPickup{}

	if err := msg.Decode(request); err != nil {
		return nil, errors.Wrap(err, "batch pickup message unmarshal")
	}

	if request.BatchSize < 1 {
		return nil, errors.Errorf("batch size must be positive, got %d", request.BatchSize)
	}

	keys, err := s.recipientKeys("", ctx)
	if err != nil {
		return nil, err
	}

	batch := &Batch{Messages: []*BatchMessage{}}

	for _, key := range keys {
		remaining := request.BatchSize - len(batch.Messages)
		if remaining <= 0 {
			break
		}

		// v1 has no acknowledgement: messages leave the queue as they are handed out
		err = s.locks.Do(key, func() error {
			msgs, e := s.mailbox.Peek(key, remaining)
			if e != nil {
				return e
			}

			ids := make([]string, 0, len(msgs))

			for _, m := range msgs {
				ids = append(ids, m.ID)
				batch.Messages = append(batch.Messages, &BatchMessage{ID: m.ID, Message: payloadJSON(m.Payload)})
			}

			_, e = s.mailbox.Remove(key, ids)

			return e
		})
		if err != nil {
			return nil, errors.Wrap(err, "batch pickup")
		}
	}

	instrument.Delivered(len(batch.Messages))
	instrument.Removed(len(batch.Messages))

	return s.reply(msg, batch)
}

func (s *Service) handleNoop(msg service.DIDCommMsgMap, _ service.DIDCommContext) (*service.OutboundMessage, error) {
	request := &Noop{}

	if err := msg.Decode(request); err != nil {
		return nil, errors.Wrap(err, "noop message unmarshal")
	}

	return nil, nil
}

// AddMessage queues payload for recipientKey and pushes it to live sessions of the owning connection.
func (s *Service) AddMessage(recipientKey string, payload []byte) error {
	var queued *mailbox.Message

	err := s.locks.Do(recipientKey, func() error {
		var e error

		queued, e = s.mailbox.Add(recipientKey, payload)

		return e
	})
	if err != nil {
		return errors.Wrapf(err, "queue message for %s", recipientKey)
	}

	instrument.Queued()

	for _, sess := range s.sessions.LiveSessions(s.ownerOf(recipientKey), recipientKey) {
		go s.push(sess.ConnectionID, queued)
	}

	return nil
}

// Expire drops queued messages received before the given time.
func (s *Service) Expire(before time.Time) (int, error) {
	n, err := s.mailbox.ExpireBefore(before)
	if err != nil {
		return 0, errors.Wrap(err, "expire messages")
	}

	instrument.Expired(n)

	return n, nil
}

// push delivers one queued message to a live session. The message stays queued until acknowledged.
func (s *Service) push(connectionID string, m *mailbox.Message) {
	delivery := newDelivery(m.RecipientKey, []*mailbox.Message{m})
	delivery.Type = DeliveryMsgType.String()
	delivery.ID = uuid.New().String()
	delivery.Transport = decorator.ReturnRouteAll()

	err := backoff.Retry(func() error {
		return s.outbound.Send(service.NewOutboundMessage(delivery, false), connectionID)
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(s.pushRetryInterval), s.pushRetries))
	if err != nil {
		instrument.LivePushFailed()
		logger.Warnf("live delivery of message %s to connection %s failed: %s", m.ID, connectionID, err)

		return
	}

	instrument.LivePush()
}

func (s *Service) ownerOf(recipientKey string) string {
	if connectionID, err := s.connections.GetRouteConnectionID(recipientKey); err == nil {
		return connectionID
	}

	if record, err := s.connections.GetConnectionRecordByTheirKey(recipientKey); err == nil {
		return record.ConnectionID
	}

	return ""
}

// recipientKeys resolves the queues a request addresses: an explicitly requested key the connection owns,
// else the key bound to the pickup session, else every key the connection owns.
func (s *Service) recipientKeys(requested string, ctx service.DIDCommContext) ([]string, error) {
	if ctx.ConnectionID == "" {
		return nil, errors.Wrap(ErrMissingRecipientKey, "anonymous sender has no connection")
	}

	record, err := s.connections.GetConnectionRecord(ctx.ConnectionID)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, ErrConnectionNotFound
		}

		return nil, errors.Wrap(err, "fetch connection record from store")
	}

	owned, err := s.connections.GetRoutes(ctx.ConnectionID)
	if err != nil {
		return nil, errors.Wrap(err, "fetch connection routes")
	}

	if record.TheirKey != "" {
		owned = append([]string{record.TheirKey}, owned...)
	}

	if requested != "" {
		for _, k := range owned {
			if sameKey(k, requested) {
				s.sessions.BindRecipientKey(ctx.ConnectionID, k)

				return []string{k}, nil
			}
		}

		return nil, errors.Wrapf(ErrRecipientKeyNotOwned, "key %s", requested)
	}

	if sess, ok := s.sessions.Get(ctx.ConnectionID); ok && sess.RecipientKey != "" {
		return []string{sess.RecipientKey}, nil
	}

	if len(owned) == 0 {
		return nil, ErrMissingRecipientKey
	}

	return owned, nil
}

func (s *Service) status(keys []string, connectionID string) (*Status, error) {
	total := &mailbox.Stats{}

	for _, key := range keys {
		var stats *mailbox.Stats

		err := s.locks.Do(key, func() error {
			var e error

			stats, e = s.mailbox.Stats(key)

			return e
		})
		if err != nil {
			return nil, errors.Wrap(err, "queue status")
		}

		total.Merge(stats)
	}

	status := &Status{
		MessageCount: total.MessageCount,
		TotalBytes:   total.TotalBytes,
	}

	if total.MessageCount > 0 {
		oldest, newest := total.OldestReceivedAt, total.NewestReceivedAt
		status.OldestReceivedTime = &oldest
		status.NewestReceivedTime = &newest
		status.LongestWaitedSeconds = int64(time.Since(oldest).Seconds())
	}

	sess, _ := s.sessions.Get(connectionID)
	live := sess.LiveDelivery
	status.LiveDelivery = &live

	return status, nil
}

func (s *Service) take(keys []string, limit int) ([]*mailbox.Message, error) {
	var msgs []*mailbox.Message

	for _, key := range keys {
		remaining := limit - len(msgs)
		if remaining <= 0 {
			break
		}

		err := s.locks.Do(key, func() error {
			m, e := s.mailbox.Peek(key, remaining)
			msgs = append(msgs, m...)

			return e
		})
		if err != nil {
			return nil, errors.Wrap(err, "take from queue")
		}
	}

	return msgs, nil
}

func (s *Service) remove(keys, ids []string) (int, error) {
	var removed int

	for _, key := range keys {
		err := s.locks.Do(key, func() error {
			n, e := s.mailbox.Remove(key, ids)
			removed += n

			return e
		})
		if err != nil {
			return removed, errors.Wrap(err, "remove from queue")
		}
	}

	return removed, nil
}

// reply threads res to msg. Pickup replies only make sense on the channel the request came in on.
func (s *Service) reply(msg service.DIDCommMsgMap, res interface{}) (*service.OutboundMessage, error) {
	thid, err := msg.ThreadID()
	if err != nil {
		return nil, err
	}

	thread := &decorator.Thread{ID: thid}
	id := uuid.New().String()

	switch r := res.(type) {
	case *Status:
		r.Type, r.ID, r.Thread, r.Transport = StatusMsgType.String(), id, thread, decorator.ReturnRouteAll()
	case *Delivery:
		r.Type, r.ID, r.Thread, r.Transport = DeliveryMsgType.String(), id, thread, decorator.ReturnRouteAll()
	case *Batch:
		r.Type, r.ID, r.Thread = BatchMsgType.String(), id, thread
	case *DeliveryRequest:
		r.Type, r.ID, r.Thread, r.Transport = DeliveryRequestMsgType.String(), id, thread, decorator.ReturnRouteAll()
	case *MessagesReceived:
		r.Type, r.ID, r.Thread, r.Transport = MessagesReceivedMsgType.String(), id, thread, decorator.ReturnRouteAll()
	default:
		return nil, fmt.Errorf("messagepickup: unexpected reply %T", res)
	}

	return service.NewOutboundMessage(res, false), nil
}

func newDelivery(recipientKey string, msgs []*mailbox.Message) *Delivery {
	d := &Delivery{RecipientKey: recipientKey}

	for _, m := range msgs {
		d.Attachments = append(d.Attachments, decorator.NewJSONAttachment(m.ID, m.Payload, m.ReceivedAt))
	}

	return d
}

func sameKey(a, b string) bool {
	if a == b {
		return true
	}

	if didKey, err := recipientkey.DIDKey(a); err == nil && didKey == b {
		return true
	}

	didKey, err := recipientkey.DIDKey(b)

	return err == nil && didKey == a
}

func payloadJSON(payload []byte) json.RawMessage {
	if json.Valid(payload) {
		return payload
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil
	}

	return b
}

func (s *Service) handleInboundPayload(payload []byte) error {
	if s.msgHandler == nil {
		return errors.New("no inbound message handler")
	}

	return s.msgHandler(context.Background(), payload, nil)
}
