/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package mailboxtest contains the behaviour every mailbox.Store implementation must show.
package mailboxtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-mediator-go/pkg/store/mailbox"
)

// TestAll runs every common test against the store returned by newStore. Each test gets a fresh store.
func TestAll(t *testing.T, newStore func(t *testing.T) mailbox.Store) {
	t.Run("fifo per recipient key", func(t *testing.T) {
		TestFIFO(t, newStore(t))
	})
	t.Run("remove exactly acknowledged ids", func(t *testing.T) {
		TestRemove(t, newStore(t))
	})
	t.Run("stats", func(t *testing.T) {
		TestStats(t, newStore(t))
	})
	t.Run("expire", func(t *testing.T) {
		TestExpire(t, newStore(t))
	})
	t.Run("invalid recipient key", func(t *testing.T) {
		TestInvalidRecipientKey(t, newStore(t))
	})
}

// TestFIFO checks that messages come back in receipt order and are kept per recipient key.
func TestFIFO(t *testing.T, s mailbox.Store) {
	for i := 0; i < 5; i++ {
		_, err := s.Add("key-a", []byte(fmt.Sprintf("a%d", i)))
		require.NoError(t, err)

		_, err = s.Add("did:key:z6MkpTHR8VNsBxYAAWHut2Geadd9jSwuBV8xRoAnwWsdvktH", []byte(fmt.Sprintf("b%d", i)))
		require.NoError(t, err)
	}

	msgs, err := s.Peek("key-a", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	for i, m := range msgs {
		require.Equal(t, fmt.Sprintf("a%d", i), string(m.Payload))
		require.Equal(t, "key-a", m.RecipientKey)
		require.NotEmpty(t, m.ID)
		require.False(t, m.ReceivedAt.IsZero())
	}

	msgs, err = s.Peek("did:key:z6MkpTHR8VNsBxYAAWHut2Geadd9jSwuBV8xRoAnwWsdvktH", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	require.Equal(t, "b4", string(msgs[4].Payload))

	// peeking does not consume
	msgs, err = s.Peek("key-a", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 5)

	msgs, err = s.Peek("key-unknown", 10)
	require.NoError(t, err)
	require.Empty(t, msgs)

	msgs, err = s.Peek("key-a", 0)
	require.NoError(t, err)
	require.Empty(t, msgs)
}

// TestRemove checks that only the named ids are deleted.
func TestRemove(t *testing.T, s mailbox.Store) {
	var ids []string

	for i := 0; i < 3; i++ {
		m, err := s.Add("key-a", []byte(fmt.Sprintf("a%d", i)))
		require.NoError(t, err)

		ids = append(ids, m.ID)
	}

	other, err := s.Add("key-b", []byte("b0"))
	require.NoError(t, err)

	n, err := s.Remove("key-a", []string{ids[1], "unknown-id", other.ID})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	msgs, err := s.Peek("key-a", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, ids[0], msgs[0].ID)
	require.Equal(t, ids[2], msgs[1].ID)

	msgs, err = s.Peek("key-b", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	n, err = s.Remove("key-a", nil)
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = s.Remove("key-unknown", []string{ids[0]})
	require.NoError(t, err)
	require.Zero(t, n)
}

// TestStats checks the queue aggregates.
func TestStats(t *testing.T, s mailbox.Store) {
	stats, err := s.Stats("key-a")
	require.NoError(t, err)
	require.Zero(t, stats.MessageCount)
	require.True(t, stats.OldestReceivedAt.IsZero())

	first, err := s.Add("key-a", []byte("12345"))
	require.NoError(t, err)

	last, err := s.Add("key-a", []byte("123"))
	require.NoError(t, err)

	stats, err = s.Stats("key-a")
	require.NoError(t, err)
	require.Equal(t, 2, stats.MessageCount)
	require.EqualValues(t, 8, stats.TotalBytes)
	require.True(t, stats.OldestReceivedAt.Equal(first.ReceivedAt))
	require.True(t, stats.NewestReceivedAt.Equal(last.ReceivedAt))
}

// TestExpire checks retention.
func TestExpire(t *testing.T, s mailbox.Store) {
	_, err := s.Add("key-a", []byte("old"))
	require.NoError(t, err)

	_, err = s.Add("key-b", []byte("old"))
	require.NoError(t, err)

	n, err := s.ExpireBefore(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = s.ExpireBefore(time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	msgs, err := s.Peek("key-a", 10)
	require.NoError(t, err)
	require.Empty(t, msgs)
}

// TestInvalidRecipientKey checks the empty key is rejected.
func TestInvalidRecipientKey(t *testing.T, s mailbox.Store) {
	_, err := s.Add("", []byte("x"))
	require.ErrorIs(t, err, mailbox.ErrInvalidRecipientKey)

	_, err = s.Peek("", 1)
	require.ErrorIs(t, err, mailbox.ErrInvalidRecipientKey)

	_, err = s.Remove("", []string{"x"})
	require.ErrorIs(t, err, mailbox.ErrInvalidRecipientKey)

	_, err = s.Stats("")
	require.ErrorIs(t, err, mailbox.ErrInvalidRecipientKey)
}
