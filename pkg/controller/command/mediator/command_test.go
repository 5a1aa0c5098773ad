/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	mockstorage "github.com/hyperledger/aries-framework-go/component/storageutil/mock/storage"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-mediator-go/pkg/controller/command"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/protocol/discoverfeatures"
	"github.com/hyperledger/aries-mediator-go/pkg/framework/aries"
	"github.com/hyperledger/aries-mediator-go/pkg/framework/context"
	"github.com/hyperledger/aries-mediator-go/pkg/store/connection"
	"github.com/hyperledger/aries-mediator-go/pkg/store/mailbox"
)

func TestNew(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		cmd, err := New(newContext(t))
		require.NoError(t, err)
		require.Len(t, cmd.GetHandlers(), 4)
	})

	t.Run("missing services", func(t *testing.T) {
		_, err := New(&mockProvider{err: errors.New("no service")})
		require.ErrorContains(t, err, "lookup discover features service")

		_, err = New(&mockProvider{services: map[string]interface{}{
			discoverfeatures.DiscoverFeatures: "not a service",
		}})
		require.ErrorContains(t, err, "cast service to discover features service failed")
	})
}

func TestCommand_Features(t *testing.T) {
	cmd, err := New(newContext(t))
	require.NoError(t, err)

	var b bytes.Buffer

	cmdErr := cmd.Features(&b, bytes.NewBufferString(`{"query":"https://didcomm.org/messagepickup/*"}`))
	require.NoError(t, cmdErr)

	res := FeaturesResponse{}
	require.NoError(t, json.Unmarshal(b.Bytes(), &res))
	require.ElementsMatch(t, []string{"https://didcomm.org/messagepickup/1.0", "https://didcomm.org/messagepickup/2.0"},
		res.Protocols)

	cmdErr = cmd.Features(&b, bytes.NewBufferString(`--`))
	require.Error(t, cmdErr)
	require.Equal(t, InvalidRequestErrorCode, cmdErr.Code())
	require.Equal(t, command.ValidationError, cmdErr.Type())
}

func TestCommand_Connection(t *testing.T) {
	ctx := newContext(t)

	recorder, err := connection.NewRecorder(ctx)
	require.NoError(t, err)
	require.NoError(t, recorder.SaveConnectionRecord(&connection.Record{ConnectionID: "conn-1", State: "completed"}))

	cmd, err := New(ctx)
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		var b bytes.Buffer

		require.NoError(t, cmd.Connection(&b, bytes.NewBufferString(`{"id":"conn-1"}`)))

		res := ConnectionResponse{}
		require.NoError(t, json.Unmarshal(b.Bytes(), &res))
		require.Equal(t, "conn-1", res.Result.ConnectionID)
	})

	t.Run("validation", func(t *testing.T) {
		var b bytes.Buffer

		cmdErr := cmd.Connection(&b, bytes.NewBufferString(`{}`))
		require.Error(t, cmdErr)
		require.Equal(t, MissingConnIDCode, cmdErr.Code())

		cmdErr = cmd.Keylist(&b, bytes.NewBufferString(`{"id":`))
		require.Error(t, cmdErr)
		require.Equal(t, InvalidRequestErrorCode, cmdErr.Code())
	})

	t.Run("not found", func(t *testing.T) {
		var b bytes.Buffer

		cmdErr := cmd.Connection(&b, bytes.NewBufferString(`{"id":"conn-2"}`))
		require.Error(t, cmdErr)
		require.Equal(t, ConnectionNotFoundCode, cmdErr.Code())
		require.Equal(t, command.NotFoundError, cmdErr.Type())
	})
}

func TestCommand_StoreErrors(t *testing.T) {
	store := mockstorage.NewMockStoreProvider()

	framework, err := aries.New(aries.WithStoreProvider(store))
	require.NoError(t, err)

	defer func() { require.NoError(t, framework.Close()) }()

	ctx, err := framework.Context()
	require.NoError(t, err)

	cmd, err := New(ctx)
	require.NoError(t, err)

	store.Store.ErrGet = errors.New("store down")

	var b bytes.Buffer

	cmdErr := cmd.Connection(&b, bytes.NewBufferString(`{"id":"conn-1"}`))
	require.Error(t, cmdErr)
	require.Equal(t, GetConnectionErrorCode, cmdErr.Code())
	require.Equal(t, command.ExecuteError, cmdErr.Type())

	cmdErr = cmd.Keylist(&b, bytes.NewBufferString(`{"id":"conn-1"}`))
	require.Error(t, cmdErr)
	require.Equal(t, GetConnectionErrorCode, cmdErr.Code())
}

func TestCommand_MailboxStatus(t *testing.T) {
	ctx := newContext(t)

	cmd, err := New(ctx)
	require.NoError(t, err)

	const key = "8HH5gYEeNc3z7PYXmd54d4x6qAfCNrqQqEB3nS7Zfu7K"

	_, err = ctx.Mailbox().Add(key, []byte("payload"))
	require.NoError(t, err)

	var b bytes.Buffer

	require.NoError(t, cmd.MailboxStatus(&b, bytes.NewBufferString(`{"recipient_key":"`+key+`"}`)))

	res := MailboxStatusResponse{}
	require.NoError(t, json.Unmarshal(b.Bytes(), &res))
	require.Equal(t, 1, res.MessageCount)
	require.Equal(t, int64(len("payload")), res.TotalBytes)

	cmdErr := cmd.MailboxStatus(&b, bytes.NewBufferString(`{"recipient_key":""}`))
	require.Error(t, cmdErr)
	require.Equal(t, MissingRecipientKeyCode, cmdErr.Code())
}

func newContext(t *testing.T) *context.Provider {
	t.Helper()

	framework, err := aries.New()
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, framework.Close()) })

	ctx, err := framework.Context()
	require.NoError(t, err)

	return ctx
}

type mockProvider struct {
	services map[string]interface{}
	err      error
}

func (p *mockProvider) Service(id string) (interface{}, error) {
	if p.err != nil {
		return nil, p.err
	}

	return p.services[id], nil
}

func (p *mockProvider) ConnectionLookup() *connection.Lookup { return nil }

func (p *mockProvider) Mailbox() mailbox.Store { return nil }
