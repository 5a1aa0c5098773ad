/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package api

import (
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/dispatcher"
	"github.com/hyperledger/aries-mediator-go/pkg/framework/context"
)

// ProtocolSvcCreator creates a protocol service on the framework context. Services are created in order, so a
// service can use the ones created before it.
type ProtocolSvcCreator struct {
	Create func(prv *context.Provider) (dispatcher.ProtocolService, error)
}
