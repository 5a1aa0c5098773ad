/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package aries

import (
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"

	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/dispatcher"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/protocol/didexchange"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/protocol/discoverfeatures"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/protocol/mediator"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/protocol/messagepickup"
	"github.com/hyperledger/aries-mediator-go/pkg/framework/aries/api"
	"github.com/hyperledger/aries-mediator-go/pkg/framework/context"
)

// defFrameworkOpts provides default framework options.
func defFrameworkOpts(frameworkOpts *Aries) error {
	if frameworkOpts.storeProvider == nil {
		frameworkOpts.storeProvider = mem.NewProvider()
	}

	// order is important:
	// - Mediator depends on MessagePickup
	frameworkOpts.protocolSvcCreators = append(frameworkOpts.protocolSvcCreators,
		newMessagePickupSvc(frameworkOpts), newMediatorSvc(frameworkOpts), newExchangeSvc(frameworkOpts),
		newDiscoverFeaturesSvc())

	return nil
}

func newExchangeSvc(frameworkOpts *Aries) api.ProtocolSvcCreator {
	return api.ProtocolSvcCreator{
		Create: func(prv *context.Provider) (dispatcher.ProtocolService, error) {
			return didexchange.New(prv, didexchange.Options{
				ServiceEndpoint: serviceEndpoint(frameworkOpts),
				RoutingKeys:     frameworkOpts.routingKeys,
			})
		},
	}
}

func newMediatorSvc(frameworkOpts *Aries) api.ProtocolSvcCreator {
	return api.ProtocolSvcCreator{
		Create: func(prv *context.Provider) (dispatcher.ProtocolService, error) {
			return mediator.New(prv, mediator.NewConfig(serviceEndpoint(frameworkOpts), frameworkOpts.routingKeys))
		},
	}
}

func newMessagePickupSvc(frameworkOpts *Aries) api.ProtocolSvcCreator {
	return api.ProtocolSvcCreator{
		Create: func(prv *context.Provider) (dispatcher.ProtocolService, error) {
			var opts []messagepickup.Opt

			if frameworkOpts.maxBatchSize > 0 {
				opts = append(opts, messagepickup.WithMaxBatchSize(frameworkOpts.maxBatchSize))
			}

			return messagepickup.New(prv, opts...)
		},
	}
}

func newDiscoverFeaturesSvc() api.ProtocolSvcCreator {
	return api.ProtocolSvcCreator{
		Create: func(prv *context.Provider) (dispatcher.ProtocolService, error) {
			return discoverfeatures.New(prv)
		},
	}
}
