/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package context

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	mockstorage "github.com/hyperledger/aries-framework-go/component/storageutil/mock/storage"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/messagetype"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/packer/noop"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/protocol/messagepickup"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/transport"
	mocks "github.com/hyperledger/aries-mediator-go/pkg/internal/gomocks/didcomm/dispatcher"
	"github.com/hyperledger/aries-mediator-go/pkg/store/mailbox"
)

type mockService struct {
	name     string
	handled  []service.DIDCommMsgMap
	msgTypes []messagetype.MessageType
}

func (m *mockService) Name() string                            { return m.name }
func (m *mockService) MessageTypes() []messagetype.MessageType { return m.msgTypes }

func (m *mockService) HandleInbound(msg service.DIDCommMsgMap,
	_ service.DIDCommContext) (*service.OutboundMessage, error) {
	m.handled = append(m.handled, msg)

	return nil, nil
}

func TestNewProvider(t *testing.T) {
	t.Run("test new with default", func(t *testing.T) {
		prov, err := New()
		require.NoError(t, err)
		require.Empty(t, prov.OutboundDispatcher())
		require.NotNil(t, prov.StorageProvider())
		require.NotNil(t, prov.Mailbox())
		require.NotNil(t, prov.Packager())
		require.NotNil(t, prov.Sessions())
		require.NotNil(t, prov.ConnectionLookup())
		require.Empty(t, prov.Registry().SupportedMessageTypes())
		require.Nil(t, prov.MessagePickupService())
		require.EqualValues(t, defaultGetConnectionMaxRetries, prov.GetConnectionMaxRetries())
		require.Equal(t, time.Second, prov.GetConnectionBackOffDuration())
	})

	t.Run("test new with options", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		outbound := mocks.NewMockOutbound(ctrl)
		store := mem.NewProvider()
		sessions := transport.NewSessionRegistry()

		mb, err := mailbox.New(store)
		require.NoError(t, err)

		prov, err := New(
			WithOutboundDispatcher(outbound),
			WithStorageProvider(store),
			WithMailbox(mb),
			WithPackager(noop.New()),
			WithSessions(sessions),
			WithServiceEndpoint("ws://mediator.example"),
			WithGetConnectionMaxRetries(1),
			WithGetConnectionBackOffDuration(time.Millisecond),
			WithMatchOptions(messagetype.WithLegacyPrefixMismatch(false)),
		)
		require.NoError(t, err)
		require.Equal(t, outbound, prov.OutboundDispatcher())
		require.Equal(t, store, prov.StorageProvider())
		require.Equal(t, mb, prov.Mailbox())
		require.Equal(t, sessions, prov.Sessions())
		require.Equal(t, "ws://mediator.example", prov.ServiceEndpoint())
		require.EqualValues(t, 1, prov.GetConnectionMaxRetries())
		require.Equal(t, time.Millisecond, prov.GetConnectionBackOffDuration())

		prov.SetOutboundDispatcher(nil)
		require.Nil(t, prov.OutboundDispatcher())
	})

	t.Run("test error return from options", func(t *testing.T) {
		_, err := New(func(opts *Provider) error {
			return errors.New("error creating the framework option")
		})
		require.Error(t, err)
	})

	t.Run("test storage error", func(t *testing.T) {
		_, err := New(WithStorageProvider(&mockstorage.MockStoreProvider{ErrOpenStoreHandle: errors.New("open")}))
		require.ErrorContains(t, err, "open")
	})
}

func TestProvider_Services(t *testing.T) {
	prov, err := New()
	require.NoError(t, err)

	svc := &mockService{
		name:     "ping",
		msgTypes: []messagetype.MessageType{messagetype.MustParseMessageType("https://didcomm.org/ping/1.0/ping")},
	}

	prov.RegisterService(svc)

	found, err := prov.Service("ping")
	require.NoError(t, err)
	require.Equal(t, svc, found)

	_, err = prov.Service("other")
	require.ErrorIs(t, err, ErrSvcNotFound)

	require.Len(t, prov.AllServices(), 1)
	require.Len(t, prov.Registry().SupportedMessageTypes(), 1)

	pickup, err := messagepickup.New(prov)
	require.NoError(t, err)

	prov.RegisterService(pickup)
	require.Equal(t, pickup, prov.MessagePickupService())

	t.Run("inbound message handler dispatches through the registry", func(t *testing.T) {
		msg, err := json.Marshal(map[string]interface{}{
			"@id": "ping-12345", "@type": "https://didcomm.org/ping/1.0/ping",
		})
		require.NoError(t, err)

		packed, err := prov.Packager().PackMessage(&transport.Envelope{Message: msg, ToKey: []byte("mediator-key")})
		require.NoError(t, err)

		require.NoError(t, prov.InboundMessageHandler()(context.Background(), packed, nil))
		require.Len(t, svc.handled, 1)
	})
}
