/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/messagetype"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/recipientkey"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/protocol/decorator"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/protocol/didexchange"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/protocol/messagepickup"
	"github.com/hyperledger/aries-mediator-go/pkg/internal/instrument"
	"github.com/hyperledger/aries-mediator-go/pkg/internal/lockbox"
	"github.com/hyperledger/aries-mediator-go/pkg/store/connection"
)

var logger = log.New("aries-framework/route/service")

// mediation states of a connection record.
const (
	MediationGranted = "granted"
	MediationDenied  = "denied"
)

var (
	// ErrConnectionNotFound connection not found error.
	ErrConnectionNotFound = errors.New("connection not found")
	// ErrMediationNotGranted is returned for keylist messages from connections without granted mediation.
	ErrMediationNotGranted = errors.New("mediation not granted")
	// ErrRouteNotFound is returned when a forward message names a key no connection registered.
	ErrRouteNotFound = errors.New("no route for recipient key")
)

type provider interface {
	StorageProvider() storage.Provider
	MessagePickupService() messagepickup.ProtocolService
}

// Service handles mediation coordination and forward messages.
type Service struct {
	service.Message
	connections *connection.Recorder
	pickup      messagepickup.ProtocolService
	config      *Config
	locks       *lockbox.Lockbox
}

// New returns the mediator service.
func New(prov provider, config *Config) (*Service, error) {
	recorder, err := connection.NewRecorder(prov)
	if err != nil {
		return nil, fmt.Errorf("new mediator service: %w", err)
	}

	if prov.MessagePickupService() == nil {
		return nil, errors.New("new mediator service: message pickup service is mandatory")
	}

	if config == nil {
		config = NewConfig("", nil)
	}

	return &Service{
		connections: recorder,
		pickup:      prov.MessagePickupService(),
		config:      config,
		locks:       lockbox.New(),
	}, nil
}

// Name returns the protocol name.
func (s *Service) Name() string {
	return Coordination
}

// MessageTypes returns the message types the service handles.
func (s *Service) MessageTypes() []messagetype.MessageType {
	return []messagetype.MessageType{
		RequestMsgType, KeylistUpdateMsgType, KeylistQueryMsgType, ForwardMsgType,
	}
}

// Config returns the mediator configuration.
func (s *Service) Config() *Config {
	return s.config
}

// Keylist returns the recipient keys connectionID registered, sorted.
func (s *Service) Keylist(connectionID string) ([]string, error) {
	keys, err := s.connections.GetRoutes(connectionID)
	if err != nil {
		return nil, err
	}

	sort.Strings(keys)

	return keys, nil
}

// HandleInbound handles mediation coordination and forward messages.
func (s *Service) HandleInbound(msg service.DIDCommMsgMap,
	ctx service.DIDCommContext) (*service.OutboundMessage, error) {
	mt, err := messagetype.ParseMessageType(msg.Type())
	if err != nil {
		return nil, err
	}

	switch {
	case messagetype.SupportsMessageType(mt, ForwardMsgType):
		return nil, s.handleForward(msg)
	case messagetype.SupportsMessageType(mt, RequestMsgType):
		return s.handleRequest(msg, ctx)
	case messagetype.SupportsMessageType(mt, KeylistUpdateMsgType):
		return s.handleKeylistUpdate(msg, ctx)
	case messagetype.SupportsMessageType(mt, KeylistQueryMsgType):
		return s.handleKeylistQuery(msg, ctx)
	default:
		return nil, fmt.Errorf("mediator: unexpected message type %s", msg.Type())
	}
}

func (s *Service) handleRequest(msg service.DIDCommMsgMap,
	ctx service.DIDCommContext) (*service.OutboundMessage, error) {
	thread, err := replyThread(msg)
	if err != nil {
		return nil, err
	}

	var state string

	err = s.locks.Do(ctx.ConnectionID, func() error {
		record, e := s.connection(ctx.ConnectionID)
		if e != nil {
			return e
		}

		// mediation is granted to connections that completed the exchange
		state = MediationDenied
		if record.State == string(didexchange.StateCompleted) {
			state = MediationGranted
		}

		record.MediationState = state

		return s.connections.SaveConnectionRecord(record)
	})
	if err != nil {
		return nil, fmt.Errorf("mediate request: %w", err)
	}

	s.Notify(service.StateMsg{
		ProtocolName: Coordination,
		Type:         service.PostState,
		StateID:      state,
		Msg:          msg,
		Properties:   map[string]interface{}{"connectionID": ctx.ConnectionID},
	})

	if state != MediationGranted {
		logger.Warnf("mediation denied to connection %s: exchange not completed", ctx.ConnectionID)

		return service.NewOutboundMessage(&Deny{
			Type: DenyMsgType.String(), ID: uuid.New().String(), Thread: thread,
		}, true), nil
	}

	logger.Infof("mediation granted to connection %s", ctx.ConnectionID)

	return service.NewOutboundMessage(s.config.grant(thread), true), nil
}

func (s *Service) handleKeylistUpdate(msg service.DIDCommMsgMap,
	ctx service.DIDCommContext) (*service.OutboundMessage, error) {
	keyUpdate := &KeylistUpdate{}

	if err := msg.Decode(keyUpdate); err != nil {
		return nil, fmt.Errorf("route key list update message unmarshal : %w", err)
	}

	thread, err := replyThread(msg)
	if err != nil {
		return nil, err
	}

	if err = s.assertGranted(ctx.ConnectionID); err != nil {
		return nil, err
	}

	updates := make([]UpdateResponse, 0, len(keyUpdate.Updates))

	for _, u := range keyUpdate.Updates {
		result := s.applyUpdate(ctx.ConnectionID, u)
		instrument.KeylistUpdate(string(result))

		updates = append(updates, UpdateResponse{
			RecipientKey: u.RecipientKey,
			Action:       u.Action,
			Result:       result,
		})
	}

	return service.NewOutboundMessage(&KeylistUpdateResponse{
		Type:    KeylistUpdateResponseMsgType.String(),
		ID:      uuid.New().String(),
		Updated: updates,
		Thread:  thread,
	}, true), nil
}

// applyUpdate applies one keylist update. Errors are reported in the result, never returned, so one bad
// update does not stop the others.
func (s *Service) applyUpdate(connectionID string, u Update) Result {
	key, err := recipientkey.VerKey(u.RecipientKey)
	if err != nil {
		logger.Debugf("keylist update of connection %s: %s", connectionID, err)

		return ResultClientError
	}

	if u.Action != ActionAdd && u.Action != ActionRemove {
		logger.Debugf("keylist update of connection %s: unknown action '%s'", connectionID, u.Action)

		return ResultClientError
	}

	var result Result

	// nolint:errcheck
	s.locks.Do(key, func() error {
		owner, err := s.connections.GetRouteConnectionID(key)

		switch {
		case errors.Is(err, storage.ErrDataNotFound):
			owner = ""
		case err != nil:
			logger.Errorf("failed to look up the route of %s : %s", key, err)

			result = ResultServerError

			return nil
		}

		result = s.updateRoute(connectionID, owner, key, u.Action)

		return nil
	})

	return result
}

func (s *Service) updateRoute(connectionID, owner, key string, action Action) Result {
	switch {
	case action == ActionRemove && owner != connectionID:
		// the key is not in this connection's keylist, whoever else routes it
		return ResultNoChange
	case owner != "" && owner != connectionID:
		logger.Warnf("connection %s tried to add key %s registered by connection %s", connectionID, key, owner)

		return ResultClientError
	case action == ActionAdd && owner == connectionID:
		return ResultNoChange
	case action == ActionAdd:
		if err := s.connections.SaveRoute(key, connectionID); err != nil {
			logger.Errorf("failed to add the route key to store : %s", err)

			return ResultServerError
		}
	default:
		if err := s.connections.RemoveRoute(key); err != nil {
			logger.Errorf("failed to remove the route key from store : %s", err)

			return ResultServerError
		}
	}

	return ResultSuccess
}

func (s *Service) handleKeylistQuery(msg service.DIDCommMsgMap,
	ctx service.DIDCommContext) (*service.OutboundMessage, error) {
	query := &KeylistQuery{}

	if err := msg.Decode(query); err != nil {
		return nil, fmt.Errorf("keylist query message unmarshal : %w", err)
	}

	thread, err := replyThread(msg)
	if err != nil {
		return nil, err
	}

	if err = s.assertGranted(ctx.ConnectionID); err != nil {
		return nil, err
	}

	keys, err := s.Keylist(ctx.ConnectionID)
	if err != nil {
		return nil, fmt.Errorf("keylist query: %w", err)
	}

	res := &Keylist{
		Type:   KeylistMsgType.String(),
		ID:     uuid.New().String(),
		Keys:   []KeylistKey{},
		Thread: thread,
	}

	if p := query.Paginate; p != nil {
		offset := p.Offset
		if offset < 0 || offset > len(keys) {
			offset = len(keys)
		}

		end := len(keys)
		if p.Limit > 0 && offset+p.Limit < end {
			end = offset + p.Limit
		}

		res.Pagination = &Pagination{Count: end - offset, Offset: offset, Remaining: len(keys) - end}
		keys = keys[offset:end]
	}

	for _, k := range keys {
		res.Keys = append(res.Keys, KeylistKey{RecipientKey: k})
	}

	return service.NewOutboundMessage(res, true), nil
}

func (s *Service) handleForward(msg service.DIDCommMsgMap) error {
	forward := &Forward{}

	if err := msg.Decode(forward); err != nil {
		return fmt.Errorf("forward message unmarshal : %w", err)
	}

	key, err := recipientkey.VerKey(forward.To)
	if err != nil {
		return fmt.Errorf("forward: %w", err)
	}

	if len(forward.Msg) == 0 {
		return errors.New("forward: message is missing")
	}

	connectionID, err := s.connections.GetRouteConnectionID(key)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return fmt.Errorf("%w: %s", ErrRouteNotFound, forward.To)
		}

		return fmt.Errorf("route key fetch : %w", err)
	}

	logger.Debugf("forward for %s queued for connection %s", key, connectionID)

	return s.pickup.AddMessage(key, forward.Msg)
}

func (s *Service) assertGranted(connectionID string) error {
	record, err := s.connection(connectionID)
	if err != nil {
		return err
	}

	if record.MediationState != MediationGranted {
		return fmt.Errorf("%w: connection %s", ErrMediationNotGranted, connectionID)
	}

	return nil
}

func (s *Service) connection(connectionID string) (*connection.Record, error) {
	if connectionID == "" {
		return nil, ErrConnectionNotFound
	}

	record, err := s.connections.GetConnectionRecord(connectionID)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, ErrConnectionNotFound
		}

		return nil, fmt.Errorf("fetch connection record from store : %w", err)
	}

	return record, nil
}

func replyThread(msg service.DIDCommMsgMap) (*decorator.Thread, error) {
	thid, err := msg.ThreadID()
	if err != nil {
		return nil, err
	}

	return &decorator.Thread{ID: thid}, nil
}
