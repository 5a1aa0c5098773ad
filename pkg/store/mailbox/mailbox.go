/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package mailbox stores the encrypted messages a mediator holds for its recipients until they are picked up.
//
// Messages are kept per recipient key in receipt order. Callers serialize operations on the same recipient
// key; stores only guarantee that each single operation is atomic.
package mailbox

import (
	"errors"
	"time"
)

// ErrInvalidRecipientKey is returned for an empty recipient key.
var ErrInvalidRecipientKey = errors.New("recipient key is mandatory")

// Message is a queued encrypted message.
type Message struct {
	ID           string    `json:"id"`
	RecipientKey string    `json:"recipientKey"`
	Payload      []byte    `json:"payload"`
	ReceivedAt   time.Time `json:"receivedAt"`
	Seq          uint64    `json:"seq"`
}

// Stats aggregates the queue of a recipient key. Times are zero for an empty queue.
type Stats struct {
	MessageCount     int
	TotalBytes       int64
	OldestReceivedAt time.Time
	NewestReceivedAt time.Time
}

// Add accounts for m in the stats.
func (s *Stats) Add(m *Message) {
	s.MessageCount++
	s.TotalBytes += int64(len(m.Payload))

	if s.OldestReceivedAt.IsZero() || m.ReceivedAt.Before(s.OldestReceivedAt) {
		s.OldestReceivedAt = m.ReceivedAt
	}

	if m.ReceivedAt.After(s.NewestReceivedAt) {
		s.NewestReceivedAt = m.ReceivedAt
	}
}

// Merge folds o into s.
func (s *Stats) Merge(o *Stats) {
	if o == nil || o.MessageCount == 0 {
		return
	}

	s.MessageCount += o.MessageCount
	s.TotalBytes += o.TotalBytes

	if s.OldestReceivedAt.IsZero() || o.OldestReceivedAt.Before(s.OldestReceivedAt) {
		s.OldestReceivedAt = o.OldestReceivedAt
	}

	if o.NewestReceivedAt.After(s.NewestReceivedAt) {
		s.NewestReceivedAt = o.NewestReceivedAt
	}
}

// Store is a per recipient key message queue.
type Store interface {
	// Add appends payload to the queue of recipientKey.
	Add(recipientKey string, payload []byte) (*Message, error)
	// Peek returns up to limit messages from the head of the queue without removing them.
	Peek(recipientKey string, limit int) ([]*Message, error)
	// Remove deletes exactly the given message ids from the queue and returns how many were deleted.
	// Unknown ids are ignored.
	Remove(recipientKey string, ids []string) (int, error)
	// Stats describes the queue of recipientKey.
	Stats(recipientKey string) (*Stats, error)
	// ExpireBefore deletes every message received before t, for all recipient keys.
	ExpireBefore(t time.Time) (int, error)
}
