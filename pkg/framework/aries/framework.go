/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package aries

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/messagetype"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/dispatcher/outbound"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/transport"
	"github.com/hyperledger/aries-mediator-go/pkg/framework/aries/api"
	"github.com/hyperledger/aries-mediator-go/pkg/framework/context"
	"github.com/hyperledger/aries-mediator-go/pkg/store/mailbox"
)

var logger = log.New("aries-framework/framework")

// Aries provides access to the context being managed by the framework.
type Aries struct {
	storeProvider       storage.Provider
	mailbox             mailbox.Store
	packager            transport.Packager
	protocolSvcCreators []api.ProtocolSvcCreator
	inboundTransports   []transport.InboundTransport
	serviceEndpoint     string
	routingKeys         []string
	maxBatchSize        int
	legacyPrefix        bool
	retention           time.Duration
	sweepInterval       time.Duration
	ctx                 *context.Provider
	stopSweep           chan struct{}
	sweepDone           sync.WaitGroup
}

// Option configures the framework.
type Option func(opts *Aries) error

// New initializes the framework based on the set of options provided. Protocol services are created and
// registered, then the inbound transports are started.
func New(opts ...Option) (*Aries, error) {
	frameworkOpts := &Aries{legacyPrefix: true}

	// generate framework configs from options
	for _, option := range opts {
		err := option(frameworkOpts)
		if err != nil {
			closeErr := frameworkOpts.Close()
			return nil, fmt.Errorf("close err: %v Error in option passed to New: %w", closeErr, err)
		}
	}

	// get the default framework options
	err := defFrameworkOpts(frameworkOpts)
	if err != nil {
		return nil, fmt.Errorf("default option initialization failed: %w", err)
	}

	return initializeServices(frameworkOpts)
}

func initializeServices(frameworkOpts *Aries) (*Aries, error) {
	// Order of initializing service is important
	// Create the context the services and dispatchers share
	if err := createContext(frameworkOpts); err != nil {
		return nil, err
	}

	// Create outbound dispatcher
	if err := createOutboundDispatcher(frameworkOpts); err != nil {
		return nil, err
	}

	// Load services
	if err := loadServices(frameworkOpts); err != nil {
		return nil, err
	}

	// Start inbound transports
	if err := startTransports(frameworkOpts); err != nil {
		return nil, err
	}

	startRetentionSweep(frameworkOpts)

	return frameworkOpts, nil
}

// WithInboundTransport injects an inbound transport to the framework.
func WithInboundTransport(inboundTransport ...transport.InboundTransport) Option {
	return func(opts *Aries) error {
		opts.inboundTransports = append(opts.inboundTransports, inboundTransport...)
		return nil
	}
}

// WithStoreProvider injects a storage provider to the framework.
func WithStoreProvider(prov storage.Provider) Option {
	return func(opts *Aries) error {
		opts.storeProvider = prov
		return nil
	}
}

// WithMailbox injects the queue store of the mediator. It defaults to a queue on the store provider.
func WithMailbox(m mailbox.Store) Option {
	return func(opts *Aries) error {
		opts.mailbox = m
		return nil
	}
}

// WithPackager injects the envelope packager. It defaults to the plaintext NOOP packager.
func WithPackager(p transport.Packager) Option {
	return func(opts *Aries) error {
		opts.packager = p
		return nil
	}
}

// WithProtocols injects protocol services to the framework. They are registered before the default ones, so
// they take precedence when a message type matches both.
func WithProtocols(protocolSvcCreator ...api.ProtocolSvcCreator) Option {
	return func(opts *Aries) error {
		opts.protocolSvcCreators = append(opts.protocolSvcCreators, protocolSvcCreator...)
		return nil
	}
}

// WithServiceEndpoint sets the endpoint advertised in mediation grants and invitations. It defaults to the
// endpoint of the first inbound transport.
func WithServiceEndpoint(endpoint string) Option {
	return func(opts *Aries) error {
		opts.serviceEndpoint = endpoint
		return nil
	}
}

// WithRoutingKeys sets the routing keys advertised in mediation grants.
func WithRoutingKeys(keys ...string) Option {
	return func(opts *Aries) error {
		opts.routingKeys = keys
		return nil
	}
}

// WithMaxBatchSize bounds the number of messages handed out per pickup request.
func WithMaxBatchSize(n int) Option {
	return func(opts *Aries) error {
		if n < 1 {
			return fmt.Errorf("invalid max batch size : %d", n)
		}

		opts.maxBatchSize = n

		return nil
	}
}

// WithMessageRetention deletes queued messages older than retention, checking every interval. A zero
// retention keeps messages until they are delivered.
func WithMessageRetention(retention, interval time.Duration) Option {
	return func(opts *Aries) error {
		if retention < 0 || (retention > 0 && interval <= 0) {
			return errors.New("invalid message retention")
		}

		opts.retention = retention
		opts.sweepInterval = interval

		return nil
	}
}

// WithLegacyPrefixMismatch sets whether message types sent with the legacy did:sov document URI match
// handlers registered with https://didcomm.org. It is enabled by default.
func WithLegacyPrefixMismatch(allow bool) Option {
	return func(opts *Aries) error {
		opts.legacyPrefix = allow
		return nil
	}
}

// Context provides a handle to the framework context.
func (a *Aries) Context() (*context.Provider, error) {
	if a.ctx == nil {
		return nil, errors.New("framework is not initialized")
	}

	return a.ctx, nil
}

// Close frees resources being maintained by the framework.
func (a *Aries) Close() error {
	if a.stopSweep != nil {
		close(a.stopSweep)
		a.sweepDone.Wait()
		a.stopSweep = nil
	}

	for _, inbound := range a.inboundTransports {
		if err := inbound.Stop(); err != nil {
			return fmt.Errorf("inbound transport close failed: %w", err)
		}
	}

	if c, ok := a.mailbox.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("failed to close the mailbox: %w", err)
		}
	}

	if a.storeProvider != nil {
		err := a.storeProvider.Close()
		if err != nil {
			return fmt.Errorf("failed to close the store: %w", err)
		}
	}

	return nil
}

func createContext(frameworkOpts *Aries) error {
	ctx, err := context.New(
		context.WithStorageProvider(frameworkOpts.storeProvider),
		context.WithMailbox(frameworkOpts.mailbox),
		context.WithPackager(frameworkOpts.packager),
		context.WithServiceEndpoint(serviceEndpoint(frameworkOpts)),
		context.WithMatchOptions(messagetype.WithLegacyPrefixMismatch(frameworkOpts.legacyPrefix)),
	)
	if err != nil {
		return fmt.Errorf("create context failed: %w", err)
	}

	frameworkOpts.ctx = ctx
	frameworkOpts.mailbox = ctx.Mailbox()

	return nil
}

func createOutboundDispatcher(frameworkOpts *Aries) error {
	o, err := outbound.NewOutbound(frameworkOpts.ctx)
	if err != nil {
		return fmt.Errorf("failed to init outbound dispatcher: %w", err)
	}

	frameworkOpts.ctx.SetOutboundDispatcher(o)

	return nil
}

func loadServices(frameworkOpts *Aries) error {
	for _, v := range frameworkOpts.protocolSvcCreators {
		svc, err := v.Create(frameworkOpts.ctx)
		if err != nil {
			return fmt.Errorf("new protocol service failed: %w", err)
		}

		// after service was successfully created we need to add it to the context
		// since the mediator depends on message pickup
		frameworkOpts.ctx.RegisterService(svc)

		logger.Debugf("protocol service %s loaded", svc.Name())
	}

	if pickup := frameworkOpts.ctx.MessagePickupService(); pickup != nil {
		frameworkOpts.ctx.Sessions().OnClose(pickup.SessionClosed)
	}

	return nil
}

func startTransports(frameworkOpts *Aries) error {
	for _, inbound := range frameworkOpts.inboundTransports {
		// Start the inbound transport
		if err := inbound.Start(frameworkOpts.ctx); err != nil {
			return fmt.Errorf("inbound transport start failed: %w", err)
		}

		logger.Infof("inbound transport listening, endpoint: %s", inbound.Endpoint())
	}

	return nil
}

func startRetentionSweep(frameworkOpts *Aries) {
	pickup := frameworkOpts.ctx.MessagePickupService()
	if pickup == nil || frameworkOpts.retention == 0 {
		return
	}

	frameworkOpts.stopSweep = make(chan struct{})
	frameworkOpts.sweepDone.Add(1)

	go func(stop <-chan struct{}) {
		defer frameworkOpts.sweepDone.Done()

		ticker := time.NewTicker(frameworkOpts.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				if _, err := pickup.Expire(now.Add(-frameworkOpts.retention)); err != nil {
					logger.Warnf("message retention sweep failed: %s", err)
				}
			}
		}
	}(frameworkOpts.stopSweep)
}

func serviceEndpoint(frameworkOpts *Aries) string {
	if frameworkOpts.serviceEndpoint != "" {
		return frameworkOpts.serviceEndpoint
	}

	if len(frameworkOpts.inboundTransports) > 0 {
		return frameworkOpts.inboundTransports[0].Endpoint()
	}

	return ""
}
