/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

import (
	"github.com/google/uuid"

	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/protocol/decorator"
)

// Config is what the mediator hands out in a mediation grant.
type Config struct {
	endpoint    string
	routingKeys []string
}

// NewConfig creates a grant configuration. keys are copied.
func NewConfig(endpoint string, keys []string) *Config {
	return &Config{
		endpoint:    endpoint,
		routingKeys: append([]string{}, keys...),
	}
}

// Endpoint returns the endpoint recipients publish for their inbound messages.
func (c *Config) Endpoint() string {
	return c.endpoint
}

// Keys returns a copy of the routing keys, never nil.
func (c *Config) Keys() []string {
	return append([]string{}, c.routingKeys...)
}

func (c *Config) grant(thread *decorator.Thread) *Grant {
	return &Grant{
		Type:        GrantMsgType.String(),
		ID:          uuid.New().String(),
		Endpoint:    c.endpoint,
		RoutingKeys: c.Keys(),
		Thread:      thread,
	}
}
