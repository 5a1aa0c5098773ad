/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package webnotifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"nhooyr.io/websocket"

	"github.com/hyperledger/aries-mediator-go/pkg/controller/internal/cmdutil"
	"github.com/hyperledger/aries-mediator-go/pkg/controller/rest"
)

// topicsQueryParam restricts a websocket subscriber to a comma separated list of protocol topics.
const topicsQueryParam = "topics"

type subscriber struct {
	conn   *websocket.Conn
	topics map[string]struct{}
}

// accepts reports whether the subscriber asked for topic. No filter means every topic.
func (s *subscriber) accepts(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}

	_, ok := s.topics[topic]

	return ok
}

func parseTopics(raw string) map[string]struct{} {
	topics := make(map[string]struct{})

	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics[t] = struct{}{}
		}
	}

	return topics
}

// WSNotifier pushes protocol state notifications to websocket subscribers.
type WSNotifier struct {
	mu          sync.RWMutex
	subscribers map[*websocket.Conn]*subscriber
	handlers    []rest.Handler
}

// NewWSNotifier returns a notifier accepting subscribers on path.
func NewWSNotifier(path string) *WSNotifier {
	n := &WSNotifier{subscribers: make(map[*websocket.Conn]*subscriber)}

	n.handlers = []rest.Handler{
		cmdutil.NewHTTPHandler(path, http.MethodGet, n.subscribe),
	}

	return n
}

// Notify sends the topic message to every subscriber of topic. A subscriber whose write fails is
// closed and dropped.
func (n *WSNotifier) Notify(topic string, message []byte) error {
	if topic == "" {
		return fmt.Errorf(emptyTopicErrMsg)
	}

	if len(message) == 0 {
		return fmt.Errorf(emptyMessageErrMsg)
	}

	topicMsg, err := PrepareTopicMessage(topic, message)
	if err != nil {
		return fmt.Errorf(failedToCreateErrMsg, err)
	}

	for _, sub := range n.subscribersFor(topic) {
		ctx, cancel := context.WithTimeout(context.Background(), notificationSendTimeout)
		err = sub.conn.Write(ctx, websocket.MessageText, topicMsg)

		cancel()

		if err != nil {
			logger.Warnf("websocket notification for topic %s failed: %s", topic, err)

			n.drop(sub.conn, websocket.StatusGoingAway, "write failed")
		}
	}

	return nil
}

func (n *WSNotifier) subscribersFor(topic string) []*subscriber {
	n.mu.RLock()
	defer n.mu.RUnlock()

	var subs []*subscriber

	for _, sub := range n.subscribers {
		if sub.accepts(topic) {
			subs = append(subs, sub)
		}
	}

	return subs
}

func (n *WSNotifier) count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return len(n.subscribers)
}

func (n *WSNotifier) subscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		logger.Infof("websocket notification upgrade failed: %v", err)

		return
	}

	sub := &subscriber{conn: conn, topics: parseTopics(r.URL.Query().Get(topicsQueryParam))}

	n.mu.Lock()
	n.subscribers[conn] = sub
	n.mu.Unlock()

	logger.Debugf("websocket notification subscriber added, topics=%d", len(sub.topics))

	// subscribers only listen; any frame or a close ends the subscription
	_, _, err = conn.Reader(context.Background())
	if err != nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		logger.Infof("websocket notification subscriber read failed: %v", err)
	}

	n.drop(conn, websocket.StatusPolicyViolation, "unexpected message")
}

func (n *WSNotifier) drop(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	n.mu.Lock()
	_, ok := n.subscribers[conn]
	delete(n.subscribers, conn)
	n.mu.Unlock()

	if !ok {
		return
	}

	if err := conn.Close(code, reason); err != nil {
		logger.Debugf("closing websocket notification subscriber: %v", err)
	}
}

// GetRESTHandlers returns the subscription endpoint.
func (n *WSNotifier) GetRESTHandlers() []rest.Handler {
	return n.handlers
}
