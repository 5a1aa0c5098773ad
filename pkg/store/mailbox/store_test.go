/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mailbox_test

import (
	"errors"
	"testing"
	"time"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	mockstorage "github.com/hyperledger/aries-framework-go/component/storageutil/mock/storage"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-mediator-go/pkg/store/mailbox"
	"github.com/hyperledger/aries-mediator-go/pkg/store/mailbox/mailboxtest"
)

func TestStorageStore(t *testing.T) {
	mailboxtest.TestAll(t, func(t *testing.T) mailbox.Store {
		s, err := mailbox.New(mem.NewProvider())
		require.NoError(t, err)

		return s
	})
}

func TestStorageStore_Errors(t *testing.T) {
	t.Run("open store", func(t *testing.T) {
		_, err := mailbox.New(&mockstorage.MockStoreProvider{ErrOpenStoreHandle: errors.New("open failed")})
		require.Contains(t, err.Error(), "open failed")
	})

	t.Run("store config", func(t *testing.T) {
		p := mockstorage.NewMockStoreProvider()
		p.ErrSetStoreConfig = errors.New("config failed")

		_, err := mailbox.New(p)
		require.Contains(t, err.Error(), "config failed")
	})

	t.Run("put", func(t *testing.T) {
		p := mockstorage.NewMockStoreProvider()
		p.Store.ErrPut = errors.New("put failed")

		s, err := mailbox.New(p)
		require.NoError(t, err)

		_, err = s.Add("key", []byte("x"))
		require.Contains(t, err.Error(), "put failed")
	})

	t.Run("query", func(t *testing.T) {
		p := mockstorage.NewMockStoreProvider()
		p.Store.ErrQuery = errors.New("query failed")

		s, err := mailbox.New(p)
		require.NoError(t, err)

		_, err = s.Peek("key", 1)
		require.Contains(t, err.Error(), "query failed")

		_, err = s.Stats("key")
		require.Contains(t, err.Error(), "query failed")

		_, err = s.Remove("key", []string{"id"})
		require.Contains(t, err.Error(), "query failed")

		_, err = s.ExpireBefore(time.Now())
		require.Contains(t, err.Error(), "query failed")
	})

	t.Run("batch", func(t *testing.T) {
		p := mockstorage.NewMockStoreProvider()

		s, err := mailbox.New(p)
		require.NoError(t, err)

		m, err := s.Add("key", []byte("x"))
		require.NoError(t, err)

		p.Store.ErrBatch = errors.New("batch failed")

		_, err = s.Remove("key", []string{m.ID})
		require.Contains(t, err.Error(), "batch failed")
	})
}
