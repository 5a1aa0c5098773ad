/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package controller

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	mocks "github.com/hyperledger/aries-mediator-go/pkg/controller/internal/mocks/webhook"
	"github.com/hyperledger/aries-mediator-go/pkg/controller/rest"
	"github.com/hyperledger/aries-mediator-go/pkg/controller/webnotifier"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/protocol/mediator"
	"github.com/hyperledger/aries-mediator-go/pkg/framework/aries"
	"github.com/hyperledger/aries-mediator-go/pkg/framework/context"
	"github.com/hyperledger/aries-mediator-go/pkg/store/connection"
)

func TestGetRESTHandlers(t *testing.T) {
	t.Run("default notifier", func(t *testing.T) {
		handlers, err := GetRESTHandlers(newContext(t), WithWebhookURLs("http://localhost:8080"))
		require.NoError(t, err)

		paths := []string{}
		for _, h := range handlers {
			paths = append(paths, h.Path())
		}

		require.ElementsMatch(t, []string{
			"/features", "/connections/{id}", "/connections/{id}/keys", "/mailbox/{recipientKey}/status",
			metricsPath, wsPath,
		}, paths)
	})

	t.Run("metrics", func(t *testing.T) {
		handlers, err := GetRESTHandlers(newContext(t), WithNotifier(mocks.NewMockWebhookNotifier()))
		require.NoError(t, err)
		require.Len(t, handlers, 5)

		rr := httptest.NewRecorder()
		lookup(t, handlers, metricsPath).Handle()(rr, httptest.NewRequest(http.MethodGet, metricsPath, nil))
		require.Equal(t, http.StatusOK, rr.Code)
		require.Contains(t, rr.Body.String(), "go_goroutines")
	})

	t.Run("missing services", func(t *testing.T) {
		_, err := GetRESTHandlers(emptyContext(t), WithNotifier(mocks.NewMockWebhookNotifier()))
		require.Error(t, err)
	})
}

func TestGetRESTHandlers_StateNotifications(t *testing.T) {
	ctx := newContext(t)
	notifier := mocks.NewMockWebhookNotifier()

	_, err := GetRESTHandlers(ctx, WithNotifier(notifier))
	require.NoError(t, err)

	recorder, err := connection.NewRecorder(ctx)
	require.NoError(t, err)
	require.NoError(t, recorder.SaveConnectionRecord(&connection.Record{ConnectionID: "conn-1", State: "completed"}))

	svc, err := ctx.Service(mediator.Coordination)
	require.NoError(t, err)

	_, err = svc.(*mediator.Service).HandleInbound(service.NewDIDCommMsgMap(&mediator.Request{
		Type: mediator.RequestMsgType.String(),
		ID:   "mediate-request-1",
	}), service.DIDCommContext{ConnectionID: "conn-1"})
	require.NoError(t, err)

	n := <-notifier.Notifications()
	require.Equal(t, mediator.Coordination, n.Topic)

	msg := webnotifier.StateMsg{}
	require.NoError(t, json.Unmarshal(n.Message, &msg))
	require.Equal(t, mediator.MediationGranted, msg.StateID)
	require.Equal(t, "conn-1", msg.Properties["connectionID"])
}

func TestGetCommandHandlers(t *testing.T) {
	handlers, err := GetCommandHandlers(newContext(t))
	require.NoError(t, err)
	require.Len(t, handlers, 4)

	_, err = GetCommandHandlers(emptyContext(t))
	require.Error(t, err)
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

func emptyContext(t *testing.T) *context.Provider {
	t.Helper()

	ctx, err := context.New()
	require.NoError(t, err)

	return ctx
}

func lookup(t *testing.T, handlers []rest.Handler, path string) rest.Handler {
	t.Helper()

	for _, h := range handlers {
		if h.Path() == path {
			return h
		}
	}

	require.Fail(t, "unable to find handler")

	return nil
}
