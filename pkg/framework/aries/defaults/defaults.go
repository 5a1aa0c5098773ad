/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package defaults

import (
	"fmt"

	"github.com/hyperledger/aries-framework-go/component/storage/leveldb"

	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/transport/http"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/transport/ws"
	"github.com/hyperledger/aries-mediator-go/pkg/framework/aries"
	"github.com/hyperledger/aries-mediator-go/pkg/store/mailbox/boltmailbox"
)

// WithStorePath return new default store provider instantiate with db path.
func WithStorePath(storePath string) aries.Option {
	return func(opts *aries.Aries) error {
		if storePath == "" {
			return fmt.Errorf("storage initialization failed : db path is mandatory")
		}

		return aries.WithStoreProvider(leveldb.NewProvider(storePath))(opts)
	}
}

// WithBoltMailbox queues mediated messages in a bbolt database at path.
func WithBoltMailbox(path string) aries.Option {
	return func(opts *aries.Aries) error {
		mb, err := boltmailbox.New(path)
		if err != nil {
			return fmt.Errorf("bolt mailbox initialization failed : %w", err)
		}

		return aries.WithMailbox(mb)(opts)
	}
}

// WithInboundHTTPAddr return new default http inbound transport.
func WithInboundHTTPAddr(internalAddr, externalAddr string) aries.Option {
	return func(opts *aries.Aries) error {
		inbound, err := http.NewInbound(internalAddr, externalAddr)
		if err != nil {
			return fmt.Errorf("http inbound transport initialization failed : %w", err)
		}

		return aries.WithInboundTransport(inbound)(opts)
	}
}

// WithInboundWSAddr return new default ws inbound transport.
func WithInboundWSAddr(internalAddr, externalAddr string) aries.Option {
	return func(opts *aries.Aries) error {
		inbound, err := ws.NewInbound(internalAddr, externalAddr)
		if err != nil {
			return fmt.Errorf("ws inbound transport initialization failed : %w", err)
		}

		return aries.WithInboundTransport(inbound)(opts)
	}
}
