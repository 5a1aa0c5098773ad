/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mailbox

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/spi/storage"
)

const (
	// Namespace is the name of the mailbox store.
	Namespace = "mailbox"

	keyPattern      = "%s_%s"
	msgKeyPrefix    = "msg"
	recipientKeyTag = "rkey"
	mailboxTag      = "mailbox"
)

var logger = log.New("aries-framework/store/mailbox")

// StorageStore is a mailbox on top of an aries storage provider.
type StorageStore struct {
	store storage.Store
	mu    sync.Mutex
	seq   uint64
}

// New returns a mailbox backed by a store of p.
func New(p storage.Provider) (*StorageStore, error) {
	store, err := p.OpenStore(Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to open mailbox store: %w", err)
	}

	err = p.SetStoreConfig(Namespace, storage.StoreConfiguration{TagNames: []string{recipientKeyTag, mailboxTag}})
	if err != nil {
		return nil, fmt.Errorf("failed to set mailbox store config: %w", err)
	}

	return &StorageStore{store: store}, nil
}

// Add appends payload to the queue of recipientKey.
func (s *StorageStore) Add(recipientKey string, payload []byte) (*Message, error) {
	if recipientKey == "" {
		return nil, ErrInvalidRecipientKey
	}

	now := time.Now().UTC()

	msg := &Message{
		ID:           uuid.New().String(),
		RecipientKey: recipientKey,
		Payload:      payload,
		ReceivedAt:   now,
		Seq:          s.nextSeq(now),
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal queued message: %w", err)
	}

	err = s.store.Put(messageKey(msg.ID), raw,
		storage.Tag{Name: recipientKeyTag, Value: encodeTagValue(recipientKey)},
		storage.Tag{Name: mailboxTag},
	)
	if err != nil {
		return nil, fmt.Errorf("store queued message: %w", err)
	}

	return msg, nil
}

// Peek returns up to limit messages in receipt order.
func (s *StorageStore) Peek(recipientKey string, limit int) ([]*Message, error) {
	if recipientKey == "" {
		return nil, ErrInvalidRecipientKey
	}

	msgs, err := s.query(recipientKeyTag + ":" + encodeTagValue(recipientKey))
	if err != nil {
		return nil, err
	}

	if limit >= 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}

	return msgs, nil
}

// Remove deletes the given ids from the queue of recipientKey.
func (s *StorageStore) Remove(recipientKey string, ids []string) (int, error) {
	if recipientKey == "" {
		return 0, ErrInvalidRecipientKey
	}

	queued, err := s.query(recipientKeyTag + ":" + encodeTagValue(recipientKey))
	if err != nil {
		return 0, err
	}

	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	var ops []storage.Operation

	for _, m := range queued {
		if _, ok := want[m.ID]; ok {
			ops = append(ops, storage.Operation{Key: messageKey(m.ID)})
		}
	}

	if len(ops) == 0 {
		return 0, nil
	}

	if err := s.store.Batch(ops); err != nil {
		return 0, fmt.Errorf("remove queued messages: %w", err)
	}

	return len(ops), nil
}

// Stats describes the queue of recipientKey.
func (s *StorageStore) Stats(recipientKey string) (*Stats, error) {
	if recipientKey == "" {
		return nil, ErrInvalidRecipientKey
	}

	msgs, err := s.query(recipientKeyTag + ":" + encodeTagValue(recipientKey))
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	for _, m := range msgs {
		stats.Add(m)
	}

	return stats, nil
}

// ExpireBefore deletes every message received before t.
func (s *StorageStore) ExpireBefore(t time.Time) (int, error) {
	msgs, err := s.query(mailboxTag)
	if err != nil {
		return 0, err
	}

	var ops []storage.Operation

	for _, m := range msgs {
		if m.ReceivedAt.Before(t) {
			ops = append(ops, storage.Operation{Key: messageKey(m.ID)})
		}
	}

	if len(ops) == 0 {
		return 0, nil
	}

	if err := s.store.Batch(ops); err != nil {
		return 0, fmt.Errorf("expire queued messages: %w", err)
	}

	return len(ops), nil
}

// query returns the matching messages in queue order. The underlying stores return query results unordered.
func (s *StorageStore) query(expression string) ([]*Message, error) {
	itr, err := s.store.Query(expression)
	if err != nil {
		return nil, fmt.Errorf("query mailbox: %w", err)
	}

	defer storage.Close(itr, logger)

	var msgs []*Message

	more, err := itr.Next()
	if err != nil {
		return nil, fmt.Errorf("query mailbox: %w", err)
	}

	for more {
		value, err := itr.Value()
		if err != nil {
			return nil, fmt.Errorf("query mailbox: %w", err)
		}

		m := &Message{}
		if err := json.Unmarshal(value, m); err != nil {
			return nil, fmt.Errorf("unmarshal queued message: %w", err)
		}

		msgs = append(msgs, m)

		more, err = itr.Next()
		if err != nil {
			return nil, fmt.Errorf("query mailbox: %w", err)
		}
	}

	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Seq < msgs[j].Seq })

	return msgs, nil
}

// nextSeq is strictly increasing within the process and follows the clock across restarts.
func (s *StorageStore) nextSeq(now time.Time) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := uint64(now.UnixNano())
	if seq <= s.seq {
		seq = s.seq + 1
	}

	s.seq = seq

	return seq
}

func messageKey(id string) string {
	return fmt.Sprintf(keyPattern, msgKeyPrefix, id)
}

func encodeTagValue(v string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(v))
}
