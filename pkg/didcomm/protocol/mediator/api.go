/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

// ProtocolService service interface for the mediator.
type ProtocolService interface {
	// Config gives back the mediator configuration
	Config() *Config
	// Keylist returns the recipient keys a connection registered
	Keylist(connectionID string) ([]string, error)
}
