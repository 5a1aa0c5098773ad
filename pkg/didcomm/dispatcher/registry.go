/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package dispatcher

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bluele/gcache"

	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/messagetype"
)

const resolveCacheSize = 256

// ErrUnsupportedMessageType is returned when no registered handler supports a message type.
var ErrUnsupportedMessageType = errors.New("unsupported message type")

type entry struct {
	messageType messagetype.MessageType
	handler     Handler
}

// Registry holds message handlers in registration order. Resolution returns the first registered entry whose
// message type supports the incoming one.
type Registry struct {
	mu        sync.RWMutex
	entries   []entry
	matchOpts []messagetype.MatchOption
	cache     gcache.Cache
}

// NewRegistry returns an empty registry. opts apply to every compatibility check the registry makes.
func NewRegistry(opts ...messagetype.MatchOption) *Registry {
	return &Registry{
		matchOpts: opts,
		cache:     gcache.New(resolveCacheSize).LRU().Build(),
	}
}

// Register adds a handler for a message type.
func (r *Registry) Register(mt messagetype.MessageType, h Handler) {
	r.mu.Lock()
	r.entries = append(r.entries, entry{messageType: mt, handler: h})
	r.mu.Unlock()

	r.cache.Purge()
}

// RegisterService registers svc for each of its message types.
func (r *Registry) RegisterService(svc ProtocolService) {
	for _, mt := range svc.MessageTypes() {
		r.Register(mt, svc)
	}
}

// Resolve returns the handler for a message type string.
func (r *Registry) Resolve(msgType string) (Handler, error) {
	if h, err := r.cache.Get(msgType); err == nil {
		return h.(Handler), nil
	}

	incoming, err := messagetype.ParseMessageType(msgType)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if messagetype.SupportsMessageType(incoming, e.messageType, r.matchOpts...) {
			_ = r.cache.Set(msgType, e.handler) //nolint:errcheck

			return e.handler, nil
		}
	}

	return nil, fmt.Errorf("%w: '%s'", ErrUnsupportedMessageType, msgType)
}

// SupportedMessageTypes returns the registered message types in registration order.
func (r *Registry) SupportedMessageTypes() []messagetype.MessageType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]messagetype.MessageType, 0, len(r.entries))
	for _, e := range r.entries {
		types = append(types, e.messageType)
	}

	return types
}

// SupportedProtocolURIs returns the distinct protocols of the registered message types, in order of first
// registration.
func (r *Registry) SupportedProtocolURIs() []messagetype.ProtocolURI {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})

	var protocols []messagetype.ProtocolURI

	for _, e := range r.entries {
		key := e.messageType.ProtocolURI.String()
		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}

		protocols = append(protocols, e.messageType.ProtocolURI)
	}

	return protocols
}

// FilterSupportedProtocolsByProtocolURIs returns the candidates supported by a registered protocol, keeping
// the order of candidates.
func (r *Registry) FilterSupportedProtocolsByProtocolURIs(
	candidates []messagetype.ProtocolURI) []messagetype.ProtocolURI {
	supported := r.SupportedProtocolURIs()

	var filtered []messagetype.ProtocolURI

	for _, c := range candidates {
		for _, p := range supported {
			if messagetype.SupportsProtocolURI(c, p, r.matchOpts...) {
				filtered = append(filtered, c)

				break
			}
		}
	}

	return filtered
}
