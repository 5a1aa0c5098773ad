/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type mockSession struct {
	id         string
	persistent bool
}

func (m *mockSession) ID() string                            { return m.id }
func (m *mockSession) Send(_ context.Context, _ []byte) error { return nil }
func (m *mockSession) Persistent() bool                      { return m.persistent }

func TestSessionRegistry(t *testing.T) {
	t.Run("bind and find", func(t *testing.T) {
		r := NewSessionRegistry()

		r.Bind("conn-1", &mockSession{id: "s1", persistent: true})
		r.Bind("conn-2", &mockSession{id: "s2"})
		r.Bind("", &mockSession{id: "s3", persistent: true})

		s, ok := r.Find("conn-1")
		require.True(t, ok)
		require.Equal(t, "s1", s.ID())

		_, ok = r.Find("conn-2")
		require.False(t, ok)
	})

	t.Run("close notifies listeners", func(t *testing.T) {
		r := NewSessionRegistry()

		var closed []string
		r.OnClose(func(connectionID string) { closed = append(closed, connectionID) })

		r.Bind("conn-1", &mockSession{id: "s1", persistent: true})
		r.Close("s1")
		r.Close("unknown")

		_, ok := r.Find("conn-1")
		require.False(t, ok)
		require.Equal(t, []string{"conn-1"}, closed)
	})

	t.Run("replaced session close is silent", func(t *testing.T) {
		r := NewSessionRegistry()

		var closed []string
		r.OnClose(func(connectionID string) { closed = append(closed, connectionID) })

		r.Bind("conn-1", &mockSession{id: "s1", persistent: true})
		r.Bind("conn-1", &mockSession{id: "s2", persistent: true})
		r.Close("s1")

		s, ok := r.Find("conn-1")
		require.True(t, ok)
		require.Equal(t, "s2", s.ID())
		require.Empty(t, closed)
	})

	t.Run("rebinding moves the session", func(t *testing.T) {
		r := NewSessionRegistry()

		s := &mockSession{id: "s1", persistent: true}
		r.Bind("conn-1", s)
		r.Bind("conn-2", s)

		_, ok := r.Find("conn-1")
		require.False(t, ok)

		_, ok = r.Find("conn-2")
		require.True(t, ok)
	})
}

func TestSupportedMediaType(t *testing.T) {
	require.True(t, SupportedMediaType(MediaTypeV1EncryptedEnvelope))
	require.True(t, SupportedMediaType(MediaTypeJSON))
	require.False(t, SupportedMediaType("text/plain"))
}
