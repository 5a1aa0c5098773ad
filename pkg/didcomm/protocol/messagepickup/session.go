/*
Copyright Scoir Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package messagepickup

import "sync"

// Session is the pickup state of one connection.
type Session struct {
	ConnectionID string
	// RecipientKey is bound by the first request naming a key explicitly.
	RecipientKey string
	LiveDelivery bool
	// TransportSessionID is the transport session live delivery was enabled on.
	TransportSessionID string
}

// SessionManager keeps the pickup sessions by connection id.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewSessionManager returns an empty session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: map[string]Session{}}
}

// Get returns the session of connectionID.
func (m *SessionManager) Get(connectionID string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[connectionID]

	return s, ok
}

// BindRecipientKey binds recipientKey to the session of connectionID, creating it if needed.
func (m *SessionManager) BindRecipientKey(connectionID, recipientKey string) {
	m.update(connectionID, func(s *Session) {
		s.RecipientKey = recipientKey
	})
}

// SetLiveDelivery switches live delivery of connectionID over the given transport session.
func (m *SessionManager) SetLiveDelivery(connectionID string, live bool, transportSessionID string) {
	m.update(connectionID, func(s *Session) {
		s.LiveDelivery = live
		s.TransportSessionID = transportSessionID
	})
}

// Destroy forgets the session of connectionID.
func (m *SessionManager) Destroy(connectionID string) {
	m.mu.Lock()
	delete(m.sessions, connectionID)
	m.mu.Unlock()
}

// LiveSessions returns the live sessions of the given connection or bound to recipientKey.
func (m *SessionManager) LiveSessions(connectionID, recipientKey string) []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var live []Session

	for id, s := range m.sessions {
		if !s.LiveDelivery {
			continue
		}

		if (connectionID != "" && id == connectionID) || (recipientKey != "" && s.RecipientKey == recipientKey) {
			live = append(live, s)
		}
	}

	return live
}

func (m *SessionManager) update(connectionID string, f func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[connectionID]
	if !ok {
		s = Session{ConnectionID: connectionID}
	}

	f(&s)

	m.sessions[connectionID] = s
}
