/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import (
	"errors"
	"sync"
)

// ErrNilChannel is returned when a nil channel is registered.
var ErrNilChannel = errors.New("nil channel")

// StateMsgType state msg type.
type StateMsgType int

const (
	// PreState is emitted before a transition is persisted.
	PreState StateMsgType = iota

	// PostState is emitted after a transition is persisted.
	PostState
)

// StateMsg describes a protocol state transition.
type StateMsg struct {
	ProtocolName string
	Type         StateMsgType
	StateID      string
	Msg          DIDCommMsgMap
	// Properties carry protocol specific data such as the connection id.
	Properties map[string]interface{}
}

// Message is a thread-safe registry of state message listeners.
type Message struct {
	mu     sync.RWMutex
	events []chan<- StateMsg
}

// MsgEvents returns the registered channels.
func (m *Message) MsgEvents() []chan<- StateMsg {
	m.mu.RLock()
	events := append(m.events[:0:0], m.events...)
	m.mu.RUnlock()

	return events
}

// RegisterMsgEvent registers a listener for state messages.
func (m *Message) RegisterMsgEvent(ch chan<- StateMsg) error {
	if ch == nil {
		return ErrNilChannel
	}

	m.mu.Lock()
	m.events = append(m.events, ch)
	m.mu.Unlock()

	return nil
}

// UnregisterMsgEvent removes a listener registered with RegisterMsgEvent.
func (m *Message) UnregisterMsgEvent(ch chan<- StateMsg) error {
	m.mu.Lock()
	for i := 0; i < len(m.events); i++ {
		if m.events[i] == ch {
			m.events = append(m.events[:i], m.events[i+1:]...)
			i--
		}
	}
	m.mu.Unlock()

	return nil
}

// Notify sends msg to every listener. Listeners that are not ready to receive are skipped.
func (m *Message) Notify(msg StateMsg) {
	for _, ch := range m.MsgEvents() {
		select {
		case ch <- msg:
		default:
		}
	}
}
