/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package connection

import (
	"errors"
	"testing"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	mockstorage "github.com/hyperledger/aries-framework-go/component/storageutil/mock/storage"
	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	store storage.Provider
}

func (m *mockProvider) StorageProvider() storage.Provider {
	return m.store
}

func newRecorder(t *testing.T) *Recorder {
	t.Helper()

	r, err := NewRecorder(&mockProvider{store: mem.NewProvider()})
	require.NoError(t, err)

	return r
}

func TestNewRecorder(t *testing.T) {
	t.Run("open store error", func(t *testing.T) {
		_, err := NewRecorder(&mockProvider{store: &mockstorage.MockStoreProvider{
			ErrOpenStoreHandle: errors.New("open failed"),
		}})
		require.Contains(t, err.Error(), "open failed")
	})

	t.Run("store config error", func(t *testing.T) {
		p := mockstorage.NewMockStoreProvider()
		p.ErrSetStoreConfig = errors.New("config failed")

		_, err := NewRecorder(&mockProvider{store: p})
		require.Contains(t, err.Error(), "config failed")
	})
}

func TestRecorder_ConnectionRecord(t *testing.T) {
	t.Run("save and get", func(t *testing.T) {
		r := newRecorder(t)

		rec := &Record{
			ConnectionID: "conn-1",
			State:        "request-received",
			Role:         "responder",
			ThreadID:     "thread-1",
			TheirKey:     "did:key:z6MkpTHR8VNsBxYAAWHut2Geadd9jSwuBV8xRoAnwWsdvktH",
		}
		require.NoError(t, r.SaveConnectionRecord(rec))
		require.False(t, rec.CreatedAt.IsZero())

		got, err := r.GetConnectionRecord("conn-1")
		require.NoError(t, err)
		require.Equal(t, "request-received", got.State)

		got, err = r.GetConnectionRecordByTheirKey(rec.TheirKey)
		require.NoError(t, err)
		require.Equal(t, "conn-1", got.ConnectionID)

		got, err = r.GetConnectionRecordByThreadID("thread-1")
		require.NoError(t, err)
		require.Equal(t, "conn-1", got.ConnectionID)

		require.NoError(t, r.SaveConnectionRecord(&Record{ConnectionID: "conn-2", State: "invitation-sent"}))

		records, err := r.QueryConnectionRecords()
		require.NoError(t, err)
		require.Len(t, records, 2)
	})

	t.Run("not found", func(t *testing.T) {
		r := newRecorder(t)

		_, err := r.GetConnectionRecord("missing")
		require.ErrorIs(t, err, ErrNotFound)
		require.ErrorIs(t, err, storage.ErrDataNotFound)

		_, err = r.GetConnectionRecordByTheirKey("missing")
		require.ErrorIs(t, err, ErrNotFound)

		_, err = r.GetConnectionRecordByThreadID("missing")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("invalid record", func(t *testing.T) {
		r := newRecorder(t)

		require.Error(t, r.SaveConnectionRecord(nil))
		require.Error(t, r.SaveConnectionRecord(&Record{ConnectionID: "conn-1"}))
	})

	t.Run("store errors", func(t *testing.T) {
		p := mockstorage.NewMockStoreProvider()
		r, err := NewRecorder(&mockProvider{store: p})
		require.NoError(t, err)

		p.Store.ErrPut = errors.New("put failed")
		require.EqualError(t, r.SaveConnectionRecord(&Record{ConnectionID: "c", State: "s"}), "put failed")

		p.Store.ErrGet = errors.New("get failed")
		_, err = r.GetConnectionRecord("c")
		require.EqualError(t, err, "get failed")

		p.Store.ErrQuery = errors.New("query failed")
		_, err = r.QueryConnectionRecords()
		require.Contains(t, err.Error(), "query failed")
	})
}

func TestRecorder_Routes(t *testing.T) {
	r := newRecorder(t)

	require.NoError(t, r.SaveConnectionRecord(&Record{ConnectionID: "conn-1", State: "completed"}))
	require.NoError(t, r.SaveRoute("did:key:z6MkpTHR8VNsBxYAAWHut2Geadd9jSwuBV8xRoAnwWsdvktH", "conn-1"))
	require.NoError(t, r.SaveRoute("8HH5gYEeNc3z7PYXmd54d4x6qAfCNrqQqEB3nS7Zfu7K", "conn-1"))
	require.NoError(t, r.SaveRoute("other-key", "conn-2"))

	connID, err := r.GetRouteConnectionID("8HH5gYEeNc3z7PYXmd54d4x6qAfCNrqQqEB3nS7Zfu7K")
	require.NoError(t, err)
	require.Equal(t, "conn-1", connID)

	keys, err := r.GetRoutes("conn-1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{
		"did:key:z6MkpTHR8VNsBxYAAWHut2Geadd9jSwuBV8xRoAnwWsdvktH",
		"8HH5gYEeNc3z7PYXmd54d4x6qAfCNrqQqEB3nS7Zfu7K",
	}, keys)

	require.NoError(t, r.RemoveRoute("8HH5gYEeNc3z7PYXmd54d4x6qAfCNrqQqEB3nS7Zfu7K"))

	_, err = r.GetRouteConnectionID("8HH5gYEeNc3z7PYXmd54d4x6qAfCNrqQqEB3nS7Zfu7K")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.RemoveConnectionRecord("conn-1"))

	_, err = r.GetConnectionRecord("conn-1")
	require.ErrorIs(t, err, ErrNotFound)

	keys, err = r.GetRoutes("conn-1")
	require.NoError(t, err)
	require.Empty(t, keys)

	connID, err = r.GetRouteConnectionID("other-key")
	require.NoError(t, err)
	require.Equal(t, "conn-2", connID)

	require.Error(t, r.SaveRoute("", "conn-1"))
	require.Error(t, r.RemoveRoute(""))
}
