/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package context creates a framework Provider context to add optional (non default) framework services and provides
// simple accessor methods to those same services.
package context

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/messagetype"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/dispatcher"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/dispatcher/inbound"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/packer/noop"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/protocol/messagepickup"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/transport"
	"github.com/hyperledger/aries-mediator-go/pkg/store/connection"
	"github.com/hyperledger/aries-mediator-go/pkg/store/mailbox"
)

const (
	defaultGetConnectionMaxRetries = 3
)

// ErrSvcNotFound is returned when a protocol service is not registered.
var ErrSvcNotFound = errors.New("service not found")

// Provider supplies the framework configuration to client objects.
type Provider struct {
	mu                     sync.RWMutex
	services               []dispatcher.ProtocolService
	registry               *dispatcher.Registry
	matchOpts              []messagetype.MatchOption
	storeProvider          storage.Provider
	mailbox                mailbox.Store
	packager               transport.Packager
	outboundDispatcher     dispatcher.Outbound
	sessions               *transport.SessionRegistry
	serviceEndpoint        string
	getConnMaxRetries      uint64
	getConnBackOffDuration time.Duration
	inboundOnce            sync.Once
	inboundEnvelopeHandler *inbound.MessageHandler
	connectionRecorder     *connection.Recorder
}

// New instantiates a new context provider. Storage defaults to an in-memory provider, the mailbox to a queue
// on that storage and the packager to the plaintext NOOP packager.
func New(opts ...ProviderOption) (*Provider, error) {
	ctxProvider := Provider{
		getConnMaxRetries:      defaultGetConnectionMaxRetries,
		getConnBackOffDuration: time.Second,
	}

	for _, opt := range opts {
		err := opt(&ctxProvider)
		if err != nil {
			return nil, fmt.Errorf("option failed: %w", err)
		}
	}

	if ctxProvider.storeProvider == nil {
		ctxProvider.storeProvider = mem.NewProvider()
	}

	if ctxProvider.packager == nil {
		ctxProvider.packager = noop.New()
	}

	if ctxProvider.sessions == nil {
		ctxProvider.sessions = transport.NewSessionRegistry()
	}

	ctxProvider.registry = dispatcher.NewRegistry(ctxProvider.matchOpts...)

	recorder, err := connection.NewRecorder(&ctxProvider)
	if err != nil {
		return nil, fmt.Errorf("initialize context connection recorder: %w", err)
	}

	ctxProvider.connectionRecorder = recorder

	if ctxProvider.mailbox == nil {
		ctxProvider.mailbox, err = mailbox.New(ctxProvider.storeProvider)
		if err != nil {
			return nil, fmt.Errorf("initialize context mailbox: %w", err)
		}
	}

	return &ctxProvider, nil
}

// RegisterService adds a protocol service and registers its message types, after the ones already registered.
func (p *Provider) RegisterService(svc dispatcher.ProtocolService) {
	p.mu.Lock()
	p.services = append(p.services, svc)
	p.mu.Unlock()

	p.registry.RegisterService(svc)
}

// Service return protocol service.
func (p *Provider) Service(id string) (interface{}, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, v := range p.services {
		if v.Name() == id {
			return v, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrSvcNotFound, id)
}

// AllServices returns a copy of the Provider's list of ProtocolServices.
func (p *Provider) AllServices() []dispatcher.ProtocolService {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ret := make([]dispatcher.ProtocolService, len(p.services))
	copy(ret, p.services)

	return ret
}

// MessagePickupService returns the registered message pickup service, nil if none is registered.
func (p *Provider) MessagePickupService() messagepickup.ProtocolService {
	svc, err := p.Service(messagepickup.MessagePickup)
	if err != nil {
		return nil
	}

	pickup, ok := svc.(messagepickup.ProtocolService)
	if !ok {
		return nil
	}

	return pickup
}

// Registry returns the message handler registry.
func (p *Provider) Registry() *dispatcher.Registry {
	return p.registry
}

// ConnectionLookup returns a connection.Lookup initialized on this context's stores.
func (p *Provider) ConnectionLookup() *connection.Lookup {
	return p.connectionRecorder.Lookup
}

// OutboundDispatcher returns an outbound dispatcher.
func (p *Provider) OutboundDispatcher() dispatcher.Outbound {
	return p.outboundDispatcher
}

// SetOutboundDispatcher sets the outbound dispatcher. The dispatcher is built on the provider, so it is set
// once the provider exists.
func (p *Provider) SetOutboundDispatcher(o dispatcher.Outbound) {
	p.outboundDispatcher = o
}

// Packager returns a packager service.
func (p *Provider) Packager() transport.Packager {
	return p.packager
}

// Mailbox returns the queue store of the mediator.
func (p *Provider) Mailbox() mailbox.Store {
	return p.mailbox
}

// Sessions returns the registry of open transport sessions.
func (p *Provider) Sessions() *transport.SessionRegistry {
	return p.sessions
}

// ServiceEndpoint returns an service endpoint. This endpoint is used in Out-Of-Band messages (invitations).
func (p *Provider) ServiceEndpoint() string {
	return p.serviceEndpoint
}

// StorageProvider return a storage provider.
func (p *Provider) StorageProvider() storage.Provider {
	return p.storeProvider
}

// GetConnectionMaxRetries returns how often the connection of a sender key is looked up.
func (p *Provider) GetConnectionMaxRetries() uint64 {
	return p.getConnMaxRetries
}

// GetConnectionBackOffDuration returns the pause between connection lookups.
func (p *Provider) GetConnectionBackOffDuration() time.Duration {
	return p.getConnBackOffDuration
}

// InboundMessageHandler return an inbound message handler. The handler is built on first use, so services
// created before the outbound dispatcher is set may hold it.
func (p *Provider) InboundMessageHandler() transport.InboundMessageHandler {
	return func(ctx context.Context, payload []byte, session transport.Session) error {
		p.inboundOnce.Do(func() {
			p.inboundEnvelopeHandler = inbound.NewInboundMessageHandler(p)
		})

		return p.inboundEnvelopeHandler.HandleInboundPayload(ctx, payload, session)
	}
}

// ProviderOption configures the framework.
type ProviderOption func(opts *Provider) error

// WithGetConnectionMaxRetries sets max retries.
func WithGetConnectionMaxRetries(retries uint64) ProviderOption {
	return func(opts *Provider) error {
		opts.getConnMaxRetries = retries
		return nil
	}
}

// WithGetConnectionBackOffDuration sets backoff duration.
func WithGetConnectionBackOffDuration(duration time.Duration) ProviderOption {
	return func(opts *Provider) error {
		opts.getConnBackOffDuration = duration
		return nil
	}
}

// WithOutboundDispatcher injects an outbound dispatcher into the context.
func WithOutboundDispatcher(outboundDispatcher dispatcher.Outbound) ProviderOption {
	return func(opts *Provider) error {
		opts.outboundDispatcher = outboundDispatcher
		return nil
	}
}

// WithServiceEndpoint injects an service transport endpoint into the context.
func WithServiceEndpoint(endpoint string) ProviderOption {
	return func(opts *Provider) error {
		opts.serviceEndpoint = endpoint
		return nil
	}
}

// WithStorageProvider injects a storage provider into the context.
func WithStorageProvider(s storage.Provider) ProviderOption {
	return func(opts *Provider) error {
		opts.storeProvider = s
		return nil
	}
}

// WithMailbox injects the queue store into the context.
func WithMailbox(m mailbox.Store) ProviderOption {
	return func(opts *Provider) error {
		opts.mailbox = m
		return nil
	}
}

// WithPackager injects a packager into the context.
func WithPackager(p transport.Packager) ProviderOption {
	return func(opts *Provider) error {
		opts.packager = p
		return nil
	}
}

// WithSessions injects the transport session registry into the context.
func WithSessions(s *transport.SessionRegistry) ProviderOption {
	return func(opts *Provider) error {
		opts.sessions = s
		return nil
	}
}

// WithMatchOptions sets the message type compatibility options of the registry.
func WithMatchOptions(matchOpts ...messagetype.MatchOption) ProviderOption {
	return func(opts *Provider) error {
		opts.matchOpts = matchOpts
		return nil
	}
}
