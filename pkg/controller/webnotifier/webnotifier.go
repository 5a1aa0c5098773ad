/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package webnotifier

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-mediator-go/pkg/controller/command"
	"github.com/hyperledger/aries-mediator-go/pkg/controller/rest"
)

var logger = log.New("aries-framework/webnotifier")

const (
	notificationSendTimeout = 10 * time.Second
	emptyTopicErrMsg        = "cannot notify with an empty topic"
	emptyMessageErrMsg      = "cannot notify with an empty message"
	failedToCreateErrMsg    = "failed to create topic message : %w"
)

// WebNotifier fans a notification out to webhook subscribers and websocket clients.
type WebNotifier struct {
	notifiers []command.Notifier
	handlers  []rest.Handler
}

// New returns a WebNotifier serving websocket clients on wsPath and posting to webhookURLs.
func New(wsPath string, webhookURLs []string) *WebNotifier {
	ws := NewWSNotifier(wsPath)

	return &WebNotifier{
		notifiers: []command.Notifier{ws, NewHTTPNotifier(webhookURLs)},
		handlers:  ws.GetRESTHandlers(),
	}
}

// Notify sends the message to every subscriber of every notifier.
func (n *WebNotifier) Notify(topic string, message []byte) error {
	var allErrs error

	for _, notifier := range n.notifiers {
		allErrs = appendError(allErrs, notifier.Notify(topic, message))
	}

	return allErrs
}

// GetRESTHandlers returns the websocket subscription handler.
func (n *WebNotifier) GetRESTHandlers() []rest.Handler {
	return n.handlers
}

// topic is the envelope of every notification.
type topic struct {
	ID      string          `json:"id"`
	Topic   string          `json:"topic"`
	Message json.RawMessage `json:"message"`
}

// PrepareTopicMessage wraps message, which must be JSON, in a topic envelope with a fresh id.
func PrepareTopicMessage(topicName string, message []byte) ([]byte, error) {
	return json.Marshal(&topic{
		ID:      uuid.New().String(),
		Topic:   topicName,
		Message: message,
	})
}

func appendError(errToAppendTo, err error) error {
	if errToAppendTo == nil {
		return err
	}

	if err == nil {
		return errToAppendTo
	}

	return fmt.Errorf("%v; %w", errToAppendTo, err)
}
