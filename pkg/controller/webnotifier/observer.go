/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package webnotifier

import (
	"encoding/json"

	"github.com/hyperledger/aries-mediator-go/pkg/controller/command"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/service"
)

const (
	preState  = "pre_state"
	postState = "post_state"
)

// StateMsg is the notification payload of a protocol state transition.
type StateMsg struct {
	ProtocolName string                 `json:"protocol"`
	StateID      string                 `json:"state_id"`
	Type         string                 `json:"type"`
	Message      service.DIDCommMsgMap  `json:"message,omitempty"`
	Properties   map[string]interface{} `json:"properties,omitempty"`
}

// Observer forwards protocol state messages to a notifier.
type Observer struct {
	notifier command.Notifier
}

// NewObserver returns an Observer notifying notifier.
func NewObserver(notifier command.Notifier) *Observer {
	return &Observer{notifier: notifier}
}

// RegisterStateMsg notifies every state message received on stateMsgs under topic, until the channel is closed.
func (o *Observer) RegisterStateMsg(topic string, stateMsgs <-chan service.StateMsg) {
	go func() {
		for msg := range stateMsgs {
			o.notify(topic, toStateMsg(msg))
		}
	}()
}

func (o *Observer) notify(topic string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		logger.Errorf("observer marshal %s: %s", topic, err)

		return
	}

	if err = o.notifier.Notify(topic, payload); err != nil {
		logger.Warnf("observer notify %s: %s", topic, err)
	}
}

func toStateMsg(msg service.StateMsg) *StateMsg {
	msgType := postState
	if msg.Type == service.PreState {
		msgType = preState
	}

	var m service.DIDCommMsgMap
	if msg.Msg != nil {
		m = msg.Msg.Clone()
	}

	return &StateMsg{
		ProtocolName: msg.ProtocolName,
		StateID:      msg.StateID,
		Type:         msgType,
		Message:      m,
		Properties:   msg.Properties,
	}
}
