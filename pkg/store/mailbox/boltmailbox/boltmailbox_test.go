/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package boltmailbox

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-mediator-go/pkg/store/mailbox"
	"github.com/hyperledger/aries-mediator-go/pkg/store/mailbox/mailboxtest"
)

func newStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "mailbox.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})

	return s
}

func TestStore(t *testing.T) {
	mailboxtest.TestAll(t, func(t *testing.T) mailbox.Store {
		return newStore(t)
	})
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mailbox.db")

	s, err := New(path)
	require.NoError(t, err)

	first, err := s.Add("key-a", []byte("one"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)

	defer func() { require.NoError(t, s.Close()) }()

	second, err := s.Add("key-a", []byte("two"))
	require.NoError(t, err)
	require.Greater(t, second.Seq, first.Seq)

	msgs, err := s.Peek("key-a", -1)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, first.ID, msgs[0].ID)
}

func TestNew_Error(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing", "dir", "mailbox.db"))
	require.Error(t, err)
}
