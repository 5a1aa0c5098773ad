/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/transport"
)

var logger = log.New("aries-framework/http")

const (
	maxPayloadSize    = 10 << 20
	readHeaderTimeout = 10 * time.Second
)

// Inbound http type.
type Inbound struct {
	externalAddr string
	server       *http.Server
}

// NewInbound creates a new HTTP inbound transport instance.
func NewInbound(internalAddr, externalAddr string) (*Inbound, error) {
	if internalAddr == "" {
		return nil, errors.New("http address is mandatory")
	}

	if externalAddr == "" {
		externalAddr = internalAddr
	}

	return &Inbound{
		externalAddr: externalAddr,
		server:       &http.Server{Addr: internalAddr, ReadHeaderTimeout: readHeaderTimeout},
	}, nil
}

// Start the http server.
func (i *Inbound) Start(prov transport.InboundProvider) error {
	handler, err := NewInboundHandler(prov)
	if err != nil {
		return fmt.Errorf("http server start failed: %w", err)
	}

	i.server.Handler = handler

	go func() {
		if err := i.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server start with address [%s] failed, cause:  %s", i.server.Addr, err)
		}
	}()

	return nil
}

// Stop the http server.
func (i *Inbound) Stop() error {
	if err := i.server.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}

	return nil
}

// Endpoint provides the http connection details.
func (i *Inbound) Endpoint() string {
	return i.externalAddr
}

// NewInboundHandler will create a new handler to enforce Did-Comm HTTP transport specs
// then routes processing to the provider's inbound message handler. Replies produced while the
// request is being handled are returned in the response body; otherwise the request is answered
// with 202 Accepted.
func NewInboundHandler(prov transport.InboundProvider) (http.Handler, error) {
	if prov == nil || prov.InboundMessageHandler() == nil {
		logger.Errorf("Error creating a new inbound handler: message handler function is nil")

		return nil, errors.New("creation of inbound handler failed")
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		processPOSTRequest(w, r, prov.InboundMessageHandler())
	}), nil
}

func processPOSTRequest(w http.ResponseWriter, r *http.Request, handle transport.InboundMessageHandler) {
	if valid := validateHTTPMethod(w, r); !valid {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadSize))
	if err != nil {
		logger.Errorf("Error reading request body: %s - returning Code: %d", err, http.StatusInternalServerError)
		http.Error(w, "Failed to read payload", http.StatusInternalServerError)

		return
	}

	if len(body) == 0 {
		http.Error(w, "Empty payload", http.StatusBadRequest)

		return
	}

	s := &session{id: uuid.New().String()}

	if err = handle(r.Context(), body, s); err != nil {
		logger.Errorf("incoming msg processing failed: %v", err)
		http.Error(w, "failed to process the message", http.StatusInternalServerError)

		return
	}

	reply := s.reply()
	if reply == nil {
		w.WriteHeader(http.StatusAccepted)

		return
	}

	w.Header().Set("Content-Type", transport.MediaTypeV1EncryptedEnvelope)
	w.WriteHeader(http.StatusOK)

	if _, err = w.Write(reply); err != nil {
		logger.Errorf("failed to write reply: %v", err)
	}
}

// validateHTTPMethod validate HTTP method and content-type.
func validateHTTPMethod(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "HTTP Method not allowed", http.StatusMethodNotAllowed)

		return false
	}

	ct := r.Header.Get("Content-Type")
	if !transport.SupportedMediaType(ct) {
		http.Error(w, fmt.Sprintf("Unsupported Content-type \"%s\"", ct), http.StatusUnsupportedMediaType)

		return false
	}

	return true
}

// session holds the single reply an HTTP request can carry.
type session struct {
	id   string
	mu   sync.Mutex
	data []byte
}

func (s *session) ID() string {
	return s.id
}

func (s *session) Persistent() bool {
	return false
}

func (s *session) Send(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data != nil {
		return errors.New("http session already carries a reply")
	}

	s.data = payload

	return nil
}

func (s *session) reply() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.data
}
