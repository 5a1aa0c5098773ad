/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package didexchange

import (
	"fmt"

	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/messagetype"
	connectionstore "github.com/hyperledger/aries-mediator-go/pkg/store/connection"
)

// State is the state of a connection in the did-exchange protocol.
type State string

const (
	// StateInvitationSent the responder has issued an invitation.
	StateInvitationSent State = "invitation-sent"
	// StateInvitationReceived the requester has received an invitation.
	StateInvitationReceived State = "invitation-received"
	// StateRequestSent the requester has sent a request.
	StateRequestSent State = "request-sent"
	// StateRequestReceived the responder has received a request.
	StateRequestReceived State = "request-received"
	// StateResponseSent the responder has answered the request.
	StateResponseSent State = "response-sent"
	// StateResponseReceived the requester has received the response.
	StateResponseReceived State = "response-received"
	// StateCompleted the exchange is done.
	StateCompleted State = "completed"
)

// Role of a party in the did-exchange protocol.
type Role string

const (
	// RoleRequester is the party answering an invitation.
	RoleRequester Role = "requester"
	// RoleResponder is the party that issued the invitation.
	RoleResponder Role = "responder"
)

// StateError is returned when a message cannot be created or processed in the current state of a connection.
type StateError struct {
	MessageType   string
	State         State
	Role          Role
	ExpectedState State
	ExpectedRole  Role
}

func (e *StateError) Error() string {
	if e.ExpectedState == "" {
		return fmt.Sprintf("no state transition for message '%s' in role '%s' (state '%s')",
			e.MessageType, e.Role, e.State)
	}

	return fmt.Sprintf("invalid state for message '%s': state '%s' role '%s', expected state '%s' role '%s'",
		e.MessageType, e.State, e.Role, e.ExpectedState, e.ExpectedRole)
}

type ruleKey struct {
	messageType string
	role        Role
}

type rule struct {
	requiredState State
	nextState     State
}

type ruleTable map[ruleKey]rule

// createRules are asserted before the local party constructs a message.
// nolint:gochecknoglobals
var createRules = ruleTable{
	{RequestMsgType.Identity(), RoleRequester}:  {StateInvitationReceived, StateRequestSent},
	{ResponseMsgType.Identity(), RoleResponder}: {StateRequestReceived, StateResponseSent},
	{CompleteMsgType.Identity(), RoleRequester}: {StateResponseReceived, StateCompleted},
}

// processRules are asserted on receipt of a message.
// nolint:gochecknoglobals
var processRules = ruleTable{
	{RequestMsgType.Identity(), RoleResponder}:  {StateInvitationSent, StateRequestReceived},
	{ResponseMsgType.Identity(), RoleRequester}: {StateRequestSent, StateResponseReceived},
	{CompleteMsgType.Identity(), RoleResponder}: {StateResponseSent, StateCompleted},
}

// AssertCreateMessageState checks that the local party may create a message of msgType for the connection.
func AssertCreateMessageState(msgType string, record *connectionstore.Record) error {
	return assertState(createRules, msgType, record)
}

// AssertProcessMessageState checks that an inbound message of msgType may be processed for the connection.
func AssertProcessMessageState(msgType string, record *connectionstore.Record) error {
	return assertState(processRules, msgType, record)
}

// NextState returns the state the connection moves to with a message of msgType, whether created or
// processed.
func NextState(msgType string, record *connectionstore.Record) (State, error) {
	key, err := newRuleKey(msgType, record)
	if err != nil {
		return "", err
	}

	if r, ok := createRules[key]; ok {
		return r.nextState, nil
	}

	if r, ok := processRules[key]; ok {
		return r.nextState, nil
	}

	return "", &StateError{MessageType: msgType, State: State(record.State), Role: Role(record.Role)}
}

func assertState(rules ruleTable, msgType string, record *connectionstore.Record) error {
	key, err := newRuleKey(msgType, record)
	if err != nil {
		return err
	}

	stateErr := &StateError{MessageType: msgType, State: State(record.State), Role: Role(record.Role)}

	r, ok := rules[key]
	if !ok {
		// report what the message would require from the other role, if anything
		for k, other := range rules {
			if k.messageType == key.messageType {
				stateErr.ExpectedState, stateErr.ExpectedRole = other.requiredState, k.role
			}
		}

		return stateErr
	}

	if r.requiredState != State(record.State) {
		stateErr.ExpectedState, stateErr.ExpectedRole = r.requiredState, key.role

		return stateErr
	}

	return nil
}

func newRuleKey(msgType string, record *connectionstore.Record) (ruleKey, error) {
	if record == nil {
		return ruleKey{}, fmt.Errorf("nil connection record for message '%s'", msgType)
	}

	mt, err := messagetype.ParseMessageType(msgType)
	if err != nil {
		return ruleKey{}, err
	}

	return ruleKey{messageType: mt.Identity(), role: Role(record.Role)}, nil
}
