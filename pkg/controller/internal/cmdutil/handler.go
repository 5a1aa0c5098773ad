/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package cmdutil

import (
	"net/http"

	"github.com/hyperledger/aries-mediator-go/pkg/controller/command"
)

// HTTPHandler binds an admin route to its handler func.
type HTTPHandler struct {
	path   string
	method string
	handle http.HandlerFunc
}

// NewHTTPHandler creates a route for method on path.
func NewHTTPHandler(path, method string, handle http.HandlerFunc) *HTTPHandler {
	return &HTTPHandler{path: path, method: method, handle: handle}
}

// Path of the route.
func (h *HTTPHandler) Path() string { return h.path }

// Method of the route.
func (h *HTTPHandler) Method() string { return h.method }

// Handle serves the route.
func (h *HTTPHandler) Handle() http.HandlerFunc { return h.handle }

// CommandHandler binds a mediator command name to its executor.
type CommandHandler struct {
	name   string
	method string
	handle command.Exec
}

// NewCommandHandler creates the command method of the named command group.
func NewCommandHandler(name, method string, exec command.Exec) *CommandHandler {
	return &CommandHandler{name: name, method: method, handle: exec}
}

// Name of the command group.
func (c *CommandHandler) Name() string { return c.name }

// Method of the command.
func (c *CommandHandler) Method() string { return c.method }

// Handle executes the command.
func (c *CommandHandler) Handle() command.Exec { return c.handle }
