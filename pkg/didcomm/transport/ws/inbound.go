/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/transport"
)

var logger = log.New("aries-framework/ws")

// Inbound http(ws) type.
type Inbound struct {
	externalAddr string
	server       *http.Server
}

// NewInbound creates a new WebSocket inbound transport instance.
func NewInbound(internalAddr, externalAddr string) (*Inbound, error) {
	if internalAddr == "" {
		return nil, errors.New("websocket address is mandatory")
	}

	if externalAddr == "" {
		externalAddr = internalAddr
	}

	return &Inbound{externalAddr: externalAddr, server: &http.Server{Addr: internalAddr}}, nil //nolint:gosec
}

// Start the http(ws) server.
func (i *Inbound) Start(prov transport.InboundProvider) error {
	handler, err := NewHandler(prov)
	if err != nil {
		return fmt.Errorf("websocket server start failed: %w", err)
	}

	i.server.Handler = handler

	go func() {
		if err := i.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("websocket server start with address [%s] failed, cause:  %s", i.server.Addr, err)
		}
	}()

	return nil
}

// Stop the http(ws) server.
func (i *Inbound) Stop() error {
	if err := i.server.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("websocket server shutdown failed: %w", err)
	}

	return nil
}

// Endpoint provides the http(ws) connection details.
func (i *Inbound) Endpoint() string {
	return i.externalAddr
}

// NewHandler returns the http handler accepting websocket connections. Each websocket is a persistent
// transport session: replies and pushed messages for the connection bound to it are written to the socket.
func NewHandler(prov transport.InboundProvider) (http.Handler, error) {
	if prov == nil || prov.InboundMessageHandler() == nil || prov.Sessions() == nil {
		logger.Errorf("Error creating a new inbound handler: message handler function is nil")

		return nil, errors.New("creation of inbound handler failed")
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			logger.Errorf("failed to upgrade the connection : %v", err)

			return
		}

		s := &session{id: uuid.New().String(), conn: conn}

		listen(r.Context(), s, prov)
	}), nil
}

func listen(ctx context.Context, s *session, prov transport.InboundProvider) {
	defer func() {
		prov.Sessions().Close(s.id)
		s.close()
	}()

	handle := prov.InboundMessageHandler()

	for {
		_, message, err := s.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				logger.Debugf("websocket session %s read: %v", s.id, err)
			}

			return
		}

		if err := handle(ctx, message, s); err != nil {
			logger.Errorf("incoming msg processing failed: %v", err)
		}
	}
}
