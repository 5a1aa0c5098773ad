/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ws

import (
	"context"
	"fmt"
	"sync"

	"nhooyr.io/websocket"
)

type session struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *session) ID() string {
	return s.id
}

func (s *session) Persistent() bool {
	return true
}

func (s *session) Send(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("websocket session %s write: %w", s.id, err)
	}

	return nil
}

func (s *session) close() {
	if err := s.conn.Close(websocket.StatusNormalClosure,
		"closing the connection"); err != nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		logger.Debugf("websocket session %s close: %v", s.id, err)
	}
}
