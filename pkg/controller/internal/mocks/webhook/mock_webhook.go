/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package webhook

import "sync"

// NewMockWebhookNotifier returns mock webhook notifier implementation.
func NewMockWebhookNotifier() *Notifier {
	return &Notifier{notified: make(chan Notification, 16)}
}

// Notification is one recorded Notify call.
type Notification struct {
	Topic   string
	Message []byte
}

// Notifier is mock implementation of webhook notifier. It records every notification.
type Notifier struct {
	NotifyFunc func(topic string, message []byte) error

	mu       sync.Mutex
	notified chan Notification
}

// Notify is mock implementation of webhook notifier Notify().
func (n *Notifier) Notify(topic string, message []byte) error {
	n.mu.Lock()
	if n.notified != nil {
		select {
		case n.notified <- Notification{Topic: topic, Message: message}:
		default:
		}
	}
	n.mu.Unlock()

	if n.NotifyFunc != nil {
		return n.NotifyFunc(topic, message)
	}

	return nil
}

// Notifications returns the recorded notifications.
func (n *Notifier) Notifications() <-chan Notification {
	return n.notified
}
