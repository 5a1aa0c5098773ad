/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package webnotifier

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

const wsPath = "/ws"

func TestWSNotifier_Subscribers(t *testing.T) {
	n := NewWSNotifier(wsPath)
	url := startWSListener(t, n)

	require.Zero(t, n.count())

	tests := []struct {
		name   string
		status websocket.StatusCode
	}{
		{name: "normal closure", status: websocket.StatusNormalClosure},
		{name: "abnormal closure", status: websocket.StatusInternalError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			conn := dialWS(t, url)
			requireSubscribers(t, n, 1)

			require.NoError(t, conn.Close(tc.status, "bye"))
			requireSubscribers(t, n, 0)
		})
	}

	t.Run("several subscribers", func(t *testing.T) {
		first := dialWS(t, url)
		second := dialWS(t, url+"?topics=coordinatemediation")
		requireSubscribers(t, n, 2)

		require.NoError(t, first.Close(websocket.StatusNormalClosure, ""))
		requireSubscribers(t, n, 1)

		require.NoError(t, second.Close(websocket.StatusNormalClosure, ""))
		requireSubscribers(t, n, 0)
	})
}

func TestWSNotifier_Notify(t *testing.T) {
	n := NewWSNotifier(wsPath)
	url := startWSListener(t, n)

	t.Run("empty topic or message", func(t *testing.T) {
		require.EqualError(t, n.Notify("", []byte(`{}`)), emptyTopicErrMsg)
		require.EqualError(t, n.Notify("didexchange", nil), emptyMessageErrMsg)
	})

	t.Run("invalid message", func(t *testing.T) {
		err := n.Notify("didexchange", []byte("not json"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to create topic message")
	})

	t.Run("state messages arrive in order", func(t *testing.T) {
		conn := dialWS(t, url)
		requireSubscribers(t, n, 1)

		states := []string{"requested", "responded", "completed"}

		for _, state := range states {
			require.NoError(t, n.Notify("didexchange", []byte(`{"state_id":"`+state+`"}`)))
		}

		for _, state := range states {
			topic, message := readTopic(t, conn)
			require.Equal(t, "didexchange", topic)
			require.JSONEq(t, `{"state_id":"`+state+`"}`, message)
		}

		require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
		requireSubscribers(t, n, 0)
	})

	t.Run("topic filter", func(t *testing.T) {
		all := dialWS(t, url)
		pickupOnly := dialWS(t, url+"?topics=messagepickup,%20")
		requireSubscribers(t, n, 2)

		require.NoError(t, n.Notify("didexchange", []byte(`{"state_id":"completed"}`)))
		require.NoError(t, n.Notify("messagepickup", []byte(`{"state_id":"delivered"}`)))

		topic, _ := readTopic(t, all)
		require.Equal(t, "didexchange", topic)

		topic, _ = readTopic(t, all)
		require.Equal(t, "messagepickup", topic)

		topic, message := readTopic(t, pickupOnly)
		require.Equal(t, "messagepickup", topic)
		require.JSONEq(t, `{"state_id":"delivered"}`, message)

		require.NoError(t, all.Close(websocket.StatusNormalClosure, ""))
		require.NoError(t, pickupOnly.Close(websocket.StatusNormalClosure, ""))
		requireSubscribers(t, n, 0)
	})
}

func TestParseTopics(t *testing.T) {
	require.Empty(t, parseTopics(""))
	require.Equal(t, map[string]struct{}{"a": {}, "b": {}}, parseTopics(" a, ,b,a"))

	sub := &subscriber{topics: parseTopics("didexchange")}
	require.True(t, sub.accepts("didexchange"))
	require.False(t, sub.accepts("messagepickup"))
	require.True(t, (&subscriber{}).accepts("anything"))
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(context.Background(), url, nil) //nolint:bodyclose
	require.NoError(t, err)

	return conn
}

func readTopic(t *testing.T, conn *websocket.Conn) (string, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msgType, payload, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, msgType)

	var env struct {
		ID      string          `json:"id"`
		Topic   string          `json:"topic"`
		Message json.RawMessage `json:"message"`
	}
	require.NoError(t, json.Unmarshal(payload, &env))
	require.NotEmpty(t, env.ID)

	return env.Topic, string(env.Message)
}

func requireSubscribers(t *testing.T, n *WSNotifier, expected int) {
	t.Helper()

	require.Eventually(t, func() bool { return n.count() == expected },
		time.Second, 20*time.Millisecond, "expected %d subscribers", expected)
}

func startWSListener(t *testing.T, n *WSNotifier) string {
	t.Helper()

	router := mux.NewRouter()

	for _, h := range n.GetRESTHandlers() {
		router.HandleFunc(h.Path(), h.Handle()).Methods(h.Method())
	}

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return "ws://" + strings.TrimPrefix(srv.URL, "http://") + wsPath
}
