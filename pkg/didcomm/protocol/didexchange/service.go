/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package didexchange

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/messagetype"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/protocol/decorator"
	"github.com/hyperledger/aries-mediator-go/pkg/internal/lockbox"
	connectionstore "github.com/hyperledger/aries-mediator-go/pkg/store/connection"
)

var logger = log.New("aries-framework/didexchange")

// ConnectionIDProperty is the StateMsg property holding the connection id.
const ConnectionIDProperty = "connectionID"

// ErrMissingKey is returned when a peer did not disclose a verification key.
var ErrMissingKey = errors.New("did-exchange: peer verification key is missing")

type provider interface {
	StorageProvider() storage.Provider
}

// Options configure the service.
type Options struct {
	// ServiceEndpoint is advertised in invitations and responses.
	ServiceEndpoint string
	RoutingKeys     []string
}

// Service runs the did-exchange protocol over connection records.
type Service struct {
	service.Message
	recorder *connectionstore.Recorder
	locks    *lockbox.Lockbox
	opts     Options
}

// New returns the did-exchange service.
func New(prov provider, opts Options) (*Service, error) {
	recorder, err := connectionstore.NewRecorder(prov)
	if err != nil {
		return nil, fmt.Errorf("new did-exchange service: %w", err)
	}

	return &Service{
		recorder: recorder,
		locks:    lockbox.New(),
		opts:     opts,
	}, nil
}

// Name returns the protocol name.
func (s *Service) Name() string {
	return DIDExchange
}

// MessageTypes returns the message types the service handles.
func (s *Service) MessageTypes() []messagetype.MessageType {
	return []messagetype.MessageType{RequestMsgType, ResponseMsgType, CompleteMsgType}
}

// Connections gives read access to the connection records.
func (s *Service) Connections() *connectionstore.Lookup {
	return s.recorder.Lookup
}

// CreateInvitation creates an invitation and the responder connection waiting for a request to it.
// Until a request arrives the invitation id is the thread of the connection.
func (s *Service) CreateInvitation(label, myKey string) (*Invitation, *connectionstore.Record, error) {
	if myKey == "" {
		return nil, nil, ErrMissingKey
	}

	inv := &Invitation{
		Type:            InvitationMsgType.String(),
		ID:              uuid.New().String(),
		Label:           label,
		RecipientKeys:   []string{myKey},
		ServiceEndpoint: s.opts.ServiceEndpoint,
		RoutingKeys:     s.opts.RoutingKeys,
	}

	record := &connectionstore.Record{
		ConnectionID: uuid.New().String(),
		State:        string(StateInvitationSent),
		Role:         string(RoleResponder),
		ThreadID:     inv.ID,
		InvitationID: inv.ID,
		MyKey:        myKey,
	}

	if err := s.recorder.SaveConnectionRecord(record); err != nil {
		return nil, nil, fmt.Errorf("save invitation connection: %w", err)
	}

	s.notify(service.PostState, record, nil)

	return inv, record, nil
}

// ReceiveInvitation creates the requester side connection for inv.
func (s *Service) ReceiveInvitation(inv *Invitation, myKey string) (*connectionstore.Record, error) {
	if inv == nil || inv.ID == "" {
		return nil, errors.New("did-exchange: invitation id is missing")
	}

	if len(inv.RecipientKeys) == 0 || myKey == "" {
		return nil, ErrMissingKey
	}

	record := &connectionstore.Record{
		ConnectionID:    uuid.New().String(),
		State:           string(StateInvitationReceived),
		Role:            string(RoleRequester),
		ParentThreadID:  inv.ID,
		InvitationID:    inv.ID,
		TheirLabel:      inv.Label,
		MyKey:           myKey,
		TheirKey:        inv.RecipientKeys[0],
		ServiceEndpoint: inv.ServiceEndpoint,
		RoutingKeys:     inv.RoutingKeys,
	}

	if err := s.recorder.SaveConnectionRecord(record); err != nil {
		return nil, fmt.Errorf("save invited connection: %w", err)
	}

	s.notify(service.PostState, record, nil)

	return record, nil
}

// CreateRequest creates the request answering the invitation of connectionID.
func (s *Service) CreateRequest(connectionID, label string) (*Request, error) {
	var req *Request

	err := s.transition(connectionID, RequestMsgType.String(), AssertCreateMessageState,
		func(record *connectionstore.Record) (service.DIDCommMsgMap, error) {
			doc, attach, err := s.didDocAttachment(record)
			if err != nil {
				return nil, err
			}

			req = &Request{
				Type:      RequestMsgType.String(),
				ID:        uuid.New().String(),
				Label:     label,
				DID:       doc.ID,
				Thread:    &decorator.Thread{PID: record.InvitationID},
				DocAttach: attach,
			}

			record.MyDID = doc.ID

			record.ThreadID = req.ID

			return service.NewDIDCommMsgMap(req), nil
		})
	if err != nil {
		return nil, err
	}

	return req, nil
}

// CreateResponse creates the response to the request received on connectionID.
func (s *Service) CreateResponse(connectionID string) (*Response, error) {
	var res *Response

	err := s.transition(connectionID, ResponseMsgType.String(), AssertCreateMessageState,
		func(record *connectionstore.Record) (service.DIDCommMsgMap, error) {
			doc, attach, err := s.didDocAttachment(record)
			if err != nil {
				return nil, err
			}

			res = &Response{
				Type:      ResponseMsgType.String(),
				ID:        uuid.New().String(),
				DID:       doc.ID,
				Thread:    &decorator.Thread{ID: record.ThreadID, PID: record.ParentThreadID},
				DocAttach: attach,
			}

			record.MyDID = doc.ID

			return service.NewDIDCommMsgMap(res), nil
		})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// CreateComplete creates the message completing the exchange on connectionID.
func (s *Service) CreateComplete(connectionID string) (*Complete, error) {
	var complete *Complete

	err := s.transition(connectionID, CompleteMsgType.String(), AssertCreateMessageState,
		func(record *connectionstore.Record) (service.DIDCommMsgMap, error) {
			complete = &Complete{
				Type:   CompleteMsgType.String(),
				ID:     uuid.New().String(),
				Thread: &decorator.Thread{ID: record.ThreadID, PID: record.ParentThreadID},
			}

			return service.NewDIDCommMsgMap(complete), nil
		})
	if err != nil {
		return nil, err
	}

	return complete, nil
}

// HandleInbound processes request, response and complete messages. Requests and responses are
// answered automatically.
func (s *Service) HandleInbound(msg service.DIDCommMsgMap,
	ctx service.DIDCommContext) (*service.OutboundMessage, error) {
	mt, err := messagetype.ParseMessageType(msg.Type())
	if err != nil {
		return nil, err
	}

	logger.Debugf("did-exchange inbound: type=%s id=%s", msg.Type(), msg.ID())

	switch {
	case messagetype.SupportsMessageType(mt, RequestMsgType):
		return s.handleRequest(msg, ctx)
	case messagetype.SupportsMessageType(mt, ResponseMsgType):
		return s.handleResponse(msg, ctx)
	case messagetype.SupportsMessageType(mt, CompleteMsgType):
		return nil, s.handleComplete(msg)
	default:
		return nil, fmt.Errorf("did-exchange: unexpected message type %s", msg.Type())
	}
}

func (s *Service) handleRequest(msg service.DIDCommMsgMap,
	ctx service.DIDCommContext) (*service.OutboundMessage, error) {
	req := &Request{}
	if err := msg.Decode(req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}

	pthid := msg.ParentThreadID()
	if pthid == "" {
		return nil, errors.New("did-exchange: request does not reference an invitation")
	}

	record, err := s.recorder.GetConnectionRecordByThreadID(pthid)
	if err != nil {
		return nil, fmt.Errorf("find invitation %s: %w", pthid, err)
	}

	thid, err := msg.ThreadID()
	if err != nil {
		return nil, err
	}

	err = s.transition(record.ConnectionID, msg.Type(), AssertProcessMessageState,
		func(record *connectionstore.Record) (service.DIDCommMsgMap, error) {
			record.TheirDID = req.DID

			if err := applyPeerDoc(record, req.DocAttach, ctx.TheirKey); err != nil {
				return nil, err
			}

			record.ThreadID = thid
			record.ParentThreadID = pthid
			record.TheirLabel = req.Label

			return msg, nil
		})
	if err != nil {
		return nil, err
	}

	res, err := s.CreateResponse(record.ConnectionID)
	if err != nil {
		return nil, err
	}

	reply := service.NewOutboundMessage(res, true)
	reply.ConnectionID = record.ConnectionID

	return reply, nil
}

func (s *Service) handleResponse(msg service.DIDCommMsgMap,
	ctx service.DIDCommContext) (*service.OutboundMessage, error) {
	res := &Response{}
	if err := msg.Decode(res); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	record, err := s.recordByThread(msg)
	if err != nil {
		return nil, err
	}

	err = s.transition(record.ConnectionID, msg.Type(), AssertProcessMessageState,
		func(record *connectionstore.Record) (service.DIDCommMsgMap, error) {
			record.TheirDID = res.DID

			return msg, applyPeerDoc(record, res.DocAttach, ctx.TheirKey)
		})
	if err != nil {
		return nil, err
	}

	complete, err := s.CreateComplete(record.ConnectionID)
	if err != nil {
		return nil, err
	}

	reply := service.NewOutboundMessage(complete, true)
	reply.ConnectionID = record.ConnectionID

	return reply, nil
}

func (s *Service) handleComplete(msg service.DIDCommMsgMap) error {
	record, err := s.recordByThread(msg)
	if err != nil {
		return err
	}

	return s.transition(record.ConnectionID, msg.Type(), AssertProcessMessageState,
		func(*connectionstore.Record) (service.DIDCommMsgMap, error) {
			return msg, nil
		})
}

func (s *Service) recordByThread(msg service.DIDCommMsgMap) (*connectionstore.Record, error) {
	thid, err := msg.ThreadID()
	if err != nil {
		return nil, err
	}

	record, err := s.recorder.GetConnectionRecordByThreadID(thid)
	if err != nil {
		return nil, fmt.Errorf("find connection for thread %s: %w", thid, err)
	}

	return record, nil
}

type assertFunc func(msgType string, record *connectionstore.Record) error

// transition asserts, applies and persists one state change of a connection while holding its lock.
func (s *Service) transition(connectionID, msgType string, assert assertFunc,
	apply func(*connectionstore.Record) (service.DIDCommMsgMap, error)) error {
	return s.locks.Do(connectionID, func() error {
		record, err := s.recorder.GetConnectionRecord(connectionID)
		if err != nil {
			return err
		}

		if err = assert(msgType, record); err != nil {
			return err
		}

		next, err := NextState(msgType, record)
		if err != nil {
			return err
		}

		msg, err := apply(record)
		if err != nil {
			return err
		}

		s.notify(service.PreState, record, msg)

		prev := record.State
		record.State = string(next)

		if err = s.recorder.SaveConnectionRecord(record); err != nil {
			return fmt.Errorf("save connection %s: %w", connectionID, err)
		}

		logger.Infof("connection %s: %s -> %s", connectionID, prev, next)

		s.notify(service.PostState, record, msg)

		return nil
	})
}

func (s *Service) notify(t service.StateMsgType, record *connectionstore.Record, msg service.DIDCommMsgMap) {
	s.Notify(service.StateMsg{
		ProtocolName: DIDExchange,
		Type:         t,
		StateID:      record.State,
		Msg:          msg,
		Properties:   map[string]interface{}{ConnectionIDProperty: record.ConnectionID},
	})
}
