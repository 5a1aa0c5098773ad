/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package discoverfeatures

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/messagetype"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/dispatcher"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/protocol/decorator"
)

var logger = log.New("aries-framework/discoverfeatures")

const wildcard = "*"

// DisclosedState is notified when a disclose message is received.
const DisclosedState = "disclosed"

// Registry is the discovery surface of the handler registry.
type Registry interface {
	SupportedProtocolURIs() []messagetype.ProtocolURI
	FilterSupportedProtocolsByProtocolURIs(candidates []messagetype.ProtocolURI) []messagetype.ProtocolURI
}

type provider interface {
	Registry() *dispatcher.Registry
}

// Service answers discover features queries.
type Service struct {
	service.Message
	registry Registry
}

// New returns the discover features service.
func New(prov provider) (*Service, error) {
	if prov.Registry() == nil {
		return nil, errors.New("new discover features service: registry is mandatory")
	}

	return &Service{registry: prov.Registry()}, nil
}

// Name returns the protocol name.
func (s *Service) Name() string {
	return DiscoverFeatures
}

// MessageTypes returns the message types the service handles.
func (s *Service) MessageTypes() []messagetype.MessageType {
	return []messagetype.MessageType{QueryMsgType, DiscloseMsgType}
}

// NewQuery returns a query message.
func NewQuery(query, comment string) *Query {
	return &Query{
		Type:    QueryMsgType.String(),
		ID:      uuid.New().String(),
		Query:   query,
		Comment: comment,
	}
}

// HandleInbound answers queries with a disclose message and notifies received disclosures.
func (s *Service) HandleInbound(msg service.DIDCommMsgMap,
	ctx service.DIDCommContext) (*service.OutboundMessage, error) {
	mt, err := messagetype.ParseMessageType(msg.Type())
	if err != nil {
		return nil, err
	}

	switch {
	case messagetype.SupportsMessageType(mt, QueryMsgType):
		return s.handleQuery(msg)
	case messagetype.SupportsMessageType(mt, DiscloseMsgType):
		return nil, s.handleDisclose(msg, ctx)
	default:
		return nil, fmt.Errorf("discover features: unexpected message type %s", msg.Type())
	}
}

func (s *Service) handleQuery(msg service.DIDCommMsgMap) (*service.OutboundMessage, error) {
	query := &Query{}

	if err := msg.Decode(query); err != nil {
		return nil, fmt.Errorf("query message unmarshal : %w", err)
	}

	thid, err := msg.ThreadID()
	if err != nil {
		return nil, err
	}

	protocols := []Protocol{}
	for _, p := range s.Match(query.Query) {
		protocols = append(protocols, Protocol{PID: p.String()})
	}

	logger.Debugf("query '%s' matched %d protocols", query.Query, len(protocols))

	return service.NewOutboundMessage(&Disclose{
		Type:      DiscloseMsgType.String(),
		ID:        uuid.New().String(),
		Protocols: protocols,
		Thread:    &decorator.Thread{ID: thid},
	}, true), nil
}

func (s *Service) handleDisclose(msg service.DIDCommMsgMap, ctx service.DIDCommContext) error {
	disclose := &Disclose{}

	if err := msg.Decode(disclose); err != nil {
		return fmt.Errorf("disclose message unmarshal : %w", err)
	}

	s.Notify(service.StateMsg{
		ProtocolName: DiscoverFeatures,
		Type:         service.PostState,
		StateID:      DisclosedState,
		Msg:          msg,
		Properties:   map[string]interface{}{"connectionID": ctx.ConnectionID},
	})

	return nil
}

// Match returns the supported protocols matching query. A query ending with '*' matches by prefix,
// any other query must be a protocol URI and matches by version compatibility.
func (s *Service) Match(query string) []messagetype.ProtocolURI {
	if strings.HasSuffix(query, wildcard) {
		prefix := messagetype.ReplaceLegacyPrefix(strings.TrimSuffix(query, wildcard))

		var matched []messagetype.ProtocolURI

		for _, p := range s.registry.SupportedProtocolURIs() {
			if strings.HasPrefix(p.String(), prefix) {
				matched = append(matched, p)
			}
		}

		return matched
	}

	candidate, err := messagetype.ParseProtocolURI(query)
	if err != nil {
		logger.Debugf("query '%s' is not a protocol uri: %s", query, err)

		return nil
	}

	return s.registry.FilterSupportedProtocolsByProtocolURIs([]messagetype.ProtocolURI{candidate})
}
