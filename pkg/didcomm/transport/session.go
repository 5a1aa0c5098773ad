/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package transport

import (
	"sync"

	"github.com/hyperledger/aries-framework-go/component/log"
)

var logger = log.New("aries-framework/transport")

// SessionRegistry keeps the return route sessions agents have opened to this agent, by connection.
type SessionRegistry struct {
	mu             sync.RWMutex
	byConnection   map[string]Session
	connections    map[string]string
	closeListeners []func(connectionID string)
}

// NewSessionRegistry returns an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		byConnection: make(map[string]Session),
		connections:  make(map[string]string),
	}
}

// Bind makes s the session used to reach connectionID. A session can serve a single connection; binding it
// again moves it.
func (r *SessionRegistry) Bind(connectionID string, s Session) {
	if connectionID == "" || s == nil || !s.Persistent() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.connections[s.ID()]; ok && prev != connectionID {
		delete(r.byConnection, prev)
	}

	r.byConnection[connectionID] = s
	r.connections[s.ID()] = connectionID

	logger.Debugf("session %s bound to connection %s", s.ID(), connectionID)
}

// Find returns the session bound to connectionID.
func (r *SessionRegistry) Find(connectionID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byConnection[connectionID]

	return s, ok
}

// Close forgets the session. Close listeners are notified when the session was the one bound to its connection.
func (r *SessionRegistry) Close(sessionID string) {
	r.mu.Lock()

	connectionID, ok := r.connections[sessionID]
	if !ok {
		r.mu.Unlock()

		return
	}

	delete(r.connections, sessionID)

	current, bound := r.byConnection[connectionID]
	if bound && current.ID() == sessionID {
		delete(r.byConnection, connectionID)
	} else {
		bound = false
	}

	listeners := append(r.closeListeners[:0:0], r.closeListeners...)
	r.mu.Unlock()

	if !bound {
		return
	}

	for _, l := range listeners {
		l(connectionID)
	}
}

// OnClose registers f to be called with the connection id whenever a bound session closes.
func (r *SessionRegistry) OnClose(f func(connectionID string)) {
	r.mu.Lock()
	r.closeListeners = append(r.closeListeners, f)
	r.mu.Unlock()
}
