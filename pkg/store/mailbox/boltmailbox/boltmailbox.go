/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package boltmailbox implements the mediator mailbox on a bbolt database.
//
// Every recipient key owns a bucket under the root bucket holding two buckets: the messages keyed by a big
// endian sequence number, which gives receipt order, and an index from message id to sequence number.
package boltmailbox

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/hyperledger/aries-mediator-go/pkg/store/mailbox"
)

const (
	rootBucket  = "mailbox"
	msgsBucket  = "msgs"
	indexBucket = "ids"

	openTimeout = time.Second
)

// Store is a bbolt backed mailbox.
type Store struct {
	db *bolt.DB
}

// New opens (or creates) the database at path.
func New(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("boltmailbox: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(rootBucket))

		return err
	})
	if err != nil {
		_ = db.Close() //nolint:errcheck

		return nil, fmt.Errorf("boltmailbox: init: %w", err)
	}

	return &Store{db: db}, nil
}

// Close syncs and closes the database.
func (s *Store) Close() error {
	if err := s.db.Sync(); err != nil {
		return err
	}

	return s.db.Close()
}

// Add appends payload to the queue of recipientKey.
func (s *Store) Add(recipientKey string, payload []byte) (*mailbox.Message, error) {
	if recipientKey == "" {
		return nil, mailbox.ErrInvalidRecipientKey
	}

	msg := &mailbox.Message{
		ID:           uuid.New().String(),
		RecipientKey: recipientKey,
		Payload:      payload,
		ReceivedAt:   time.Now().UTC(),
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		kBkt, err := tx.Bucket([]byte(rootBucket)).CreateBucketIfNotExists([]byte(recipientKey))
		if err != nil {
			return err
		}

		mBkt, err := kBkt.CreateBucketIfNotExists([]byte(msgsBucket))
		if err != nil {
			return err
		}

		iBkt, err := kBkt.CreateBucketIfNotExists([]byte(indexBucket))
		if err != nil {
			return err
		}

		msg.Seq, err = mBkt.NextSequence()
		if err != nil {
			return err
		}

		raw, err := json.Marshal(msg)
		if err != nil {
			return err
		}

		seq := seqKey(msg.Seq)

		if err := mBkt.Put(seq, raw); err != nil {
			return err
		}

		return iBkt.Put([]byte(msg.ID), seq)
	})
	if err != nil {
		return nil, fmt.Errorf("boltmailbox: add: %w", err)
	}

	return msg, nil
}

// Peek returns up to limit messages in receipt order.
func (s *Store) Peek(recipientKey string, limit int) ([]*mailbox.Message, error) {
	if recipientKey == "" {
		return nil, mailbox.ErrInvalidRecipientKey
	}

	var msgs []*mailbox.Message

	err := s.db.View(func(tx *bolt.Tx) error {
		mBkt := messages(tx, recipientKey)
		if mBkt == nil {
			return nil
		}

		cur := mBkt.Cursor()
		for k, v := cur.First(); k != nil && (limit < 0 || len(msgs) < limit); k, v = cur.Next() {
			m := &mailbox.Message{}
			if err := json.Unmarshal(v, m); err != nil {
				return err
			}

			msgs = append(msgs, m)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("boltmailbox: peek: %w", err)
	}

	return msgs, nil
}

// Remove deletes the given ids from the queue of recipientKey.
func (s *Store) Remove(recipientKey string, ids []string) (int, error) {
	if recipientKey == "" {
		return 0, mailbox.ErrInvalidRecipientKey
	}

	removed := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		kBkt := tx.Bucket([]byte(rootBucket)).Bucket([]byte(recipientKey))
		if kBkt == nil {
			return nil
		}

		mBkt, iBkt := kBkt.Bucket([]byte(msgsBucket)), kBkt.Bucket([]byte(indexBucket))

		for _, id := range ids {
			seq := iBkt.Get([]byte(id))
			if seq == nil {
				continue
			}

			seq = append([]byte{}, seq...)

			if err := mBkt.Delete(seq); err != nil {
				return err
			}

			if err := iBkt.Delete([]byte(id)); err != nil {
				return err
			}

			removed++
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("boltmailbox: remove: %w", err)
	}

	return removed, nil
}

// Stats describes the queue of recipientKey.
func (s *Store) Stats(recipientKey string) (*mailbox.Stats, error) {
	if recipientKey == "" {
		return nil, mailbox.ErrInvalidRecipientKey
	}

	stats := &mailbox.Stats{}

	err := s.db.View(func(tx *bolt.Tx) error {
		mBkt := messages(tx, recipientKey)
		if mBkt == nil {
			return nil
		}

		return mBkt.ForEach(func(_, v []byte) error {
			m := &mailbox.Message{}
			if err := json.Unmarshal(v, m); err != nil {
				return err
			}

			stats.Add(m)

			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("boltmailbox: stats: %w", err)
	}

	return stats, nil
}

// ExpireBefore deletes every message received before t.
func (s *Store) ExpireBefore(t time.Time) (int, error) {
	expired := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(rootBucket))

		var keys [][]byte

		if err := root.ForEach(func(k, _ []byte) error {
			keys = append(keys, append([]byte{}, k...))

			return nil
		}); err != nil {
			return err
		}

		for _, k := range keys {
			n, err := expireBucket(root.Bucket(k), t)
			if err != nil {
				return err
			}

			expired += n
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("boltmailbox: expire: %w", err)
	}

	return expired, nil
}

func expireBucket(kBkt *bolt.Bucket, t time.Time) (int, error) {
	mBkt, iBkt := kBkt.Bucket([]byte(msgsBucket)), kBkt.Bucket([]byte(indexBucket))

	var stale []*mailbox.Message

	err := mBkt.ForEach(func(_, v []byte) error {
		m := &mailbox.Message{}
		if err := json.Unmarshal(v, m); err != nil {
			return err
		}

		if m.ReceivedAt.Before(t) {
			stale = append(stale, m)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, m := range stale {
		if err := mBkt.Delete(seqKey(m.Seq)); err != nil {
			return 0, err
		}

		if err := iBkt.Delete([]byte(m.ID)); err != nil {
			return 0, err
		}
	}

	return len(stale), nil
}

func messages(tx *bolt.Tx, recipientKey string) *bolt.Bucket {
	kBkt := tx.Bucket([]byte(rootBucket)).Bucket([]byte(recipientKey))
	if kBkt == nil {
		return nil
	}

	return kBkt.Bucket([]byte(msgsBucket))
}

func seqKey(seq uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], seq)

	return k[:]
}
