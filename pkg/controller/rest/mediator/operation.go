/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hyperledger/aries-mediator-go/pkg/controller/command/mediator"
	"github.com/hyperledger/aries-mediator-go/pkg/controller/internal/cmdutil"
	"github.com/hyperledger/aries-mediator-go/pkg/controller/rest"
	"github.com/hyperledger/aries-mediator-go/pkg/store/connection"
	"github.com/hyperledger/aries-mediator-go/pkg/store/mailbox"
)

// constants for the mediator operations.
const (
	FeaturesPath      = "/features"
	ConnectionsPath   = "/connections"
	ConnectionPath    = ConnectionsPath + "/{id}"
	KeylistPath       = ConnectionPath + "/keys"
	MailboxStatusPath = "/mailbox/{recipientKey}/status"
)

// provider contains dependencies for the mediator operations and is typically created by using aries.Context().
type provider interface {
	Service(id string) (interface{}, error)
	ConnectionLookup() *connection.Lookup
	Mailbox() mailbox.Store
}

// Operation contains the mediator admin operations provided by controller REST API.
type Operation struct {
	handlers []rest.Handler
	command  *mediator.Command
}

// New returns new mediator operations rest client instance.
func New(ctx provider) (*Operation, error) {
	cmd, err := mediator.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("create mediator command : %w", err)
	}

	o := &Operation{command: cmd}

	o.registerHandler()

	return o, nil
}

// GetRESTHandlers get all controller API handler available for this service.
func (o *Operation) GetRESTHandlers() []rest.Handler {
	return o.handlers
}

// registerHandler register handlers to be exposed from this protocol service as REST API endpoints.
func (o *Operation) registerHandler() {
	o.handlers = []rest.Handler{
		cmdutil.NewHTTPHandler(FeaturesPath, http.MethodGet, o.Features),
		cmdutil.NewHTTPHandler(ConnectionPath, http.MethodGet, o.Connection),
		cmdutil.NewHTTPHandler(KeylistPath, http.MethodGet, o.Keylist),
		cmdutil.NewHTTPHandler(MailboxStatusPath, http.MethodGet, o.MailboxStatus),
	}
}

// Features swagger:route GET /features mediator features
//
// Lists the supported protocols, optionally filtered by a discover-features query.
//
// Responses:
//    default: genericError
//    200: featuresResponse
func (o *Operation) Features(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(o.command.Features, rw, toJSON(&mediator.FeaturesRequest{
		Query: req.URL.Query().Get("query"),
	}))
}

// Connection swagger:route GET /connections/{id} mediator getConnection
//
// Fetches the connection record.
//
// Responses:
//    default: genericError
//    200: getConnectionResponse
func (o *Operation) Connection(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(o.command.Connection, rw, toJSON(&mediator.ConnectionIDArg{ID: mux.Vars(req)["id"]}))
}

// Keylist swagger:route GET /connections/{id}/keys mediator getKeylist
//
// Lists the recipient keys the connection registered for routing.
//
// Responses:
//    default: genericError
//    200: keylistResponse
func (o *Operation) Keylist(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(o.command.Keylist, rw, toJSON(&mediator.ConnectionIDArg{ID: mux.Vars(req)["id"]}))
}

// MailboxStatus swagger:route GET /mailbox/{recipientKey}/status mediator mailboxStatus
//
// Reports the queued messages of a recipient key.
//
// Responses:
//    default: genericError
//    200: mailboxStatusResponse
func (o *Operation) MailboxStatus(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(o.command.MailboxStatus, rw, toJSON(&mediator.MailboxStatusRequest{
		RecipientKey: mux.Vars(req)["recipientKey"],
	}))
}

func toJSON(v interface{}) *bytes.Buffer {
	// request models are plain strings, marshalling cannot fail
	b, _ := json.Marshal(v) // nolint: errcheck

	return bytes.NewBuffer(b)
}
