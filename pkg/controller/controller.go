/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package controller

import (
	"fmt"
	"net/http"

	"github.com/hyperledger/aries-mediator-go/pkg/controller/command"
	mediatorcmd "github.com/hyperledger/aries-mediator-go/pkg/controller/command/mediator"
	"github.com/hyperledger/aries-mediator-go/pkg/controller/internal/cmdutil"
	"github.com/hyperledger/aries-mediator-go/pkg/controller/rest"
	mediatorrest "github.com/hyperledger/aries-mediator-go/pkg/controller/rest/mediator"
	"github.com/hyperledger/aries-mediator-go/pkg/controller/webnotifier"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-mediator-go/pkg/framework/context"
	"github.com/hyperledger/aries-mediator-go/pkg/internal/instrument"
)

type allOpts struct {
	webhookURLs []string
	notifier    command.Notifier
}

const (
	wsPath      = "/ws"
	metricsPath = "/metrics"

	stateMsgBuffer = 64
)

// Opt represents a controller option.
type Opt func(opts *allOpts)

// WithWebhookURLs is an option for setting up a webhook dispatcher which will notify clients of events.
func WithWebhookURLs(webhookURLs ...string) Opt {
	return func(opts *allOpts) {
		opts.webhookURLs = webhookURLs
	}
}

// WithNotifier is an option for setting up a notifier which will notify clients of events.
func WithNotifier(notifier command.Notifier) Opt {
	return func(opts *allOpts) {
		opts.notifier = notifier
	}
}

// GetRESTHandlers returns all REST handlers provided by controller. Protocol state transitions of every
// service are published to the notifier under the service name.
func GetRESTHandlers(ctx *context.Provider, opts ...Opt) ([]rest.Handler, error) {
	restAPIOpts := &allOpts{}
	// Apply options
	for _, opt := range opts {
		opt(restAPIOpts)
	}

	notifier := restAPIOpts.notifier
	if notifier == nil {
		notifier = webnotifier.New(wsPath, restAPIOpts.webhookURLs)
	}

	if err := observeServices(ctx, notifier); err != nil {
		return nil, err
	}

	mediatorOp, err := mediatorrest.New(ctx)
	if err != nil {
		return nil, err
	}

	var allHandlers []rest.Handler
	allHandlers = append(allHandlers, mediatorOp.GetRESTHandlers()...)
	allHandlers = append(allHandlers, cmdutil.NewHTTPHandler(metricsPath, http.MethodGet,
		instrument.Handler().ServeHTTP))

	nhp, ok := notifier.(handlerProvider)
	if ok {
		allHandlers = append(allHandlers, nhp.GetRESTHandlers()...)
	}

	return allHandlers, nil
}

type handlerProvider interface {
	GetRESTHandlers() []rest.Handler
}

type stateMsgSource interface {
	RegisterMsgEvent(ch chan<- service.StateMsg) error
}

func observeServices(ctx *context.Provider, notifier command.Notifier) error {
	obs := webnotifier.NewObserver(notifier)

	for _, svc := range ctx.AllServices() {
		src, ok := svc.(stateMsgSource)
		if !ok {
			continue
		}

		msgs := make(chan service.StateMsg, stateMsgBuffer)

		if err := src.RegisterMsgEvent(msgs); err != nil {
			return fmt.Errorf("register %s state messages: %w", svc.Name(), err)
		}

		obs.RegisterStateMsg(svc.Name(), msgs)
	}

	return nil
}

// GetCommandHandlers returns all command handlers provided by controller.
func GetCommandHandlers(ctx *context.Provider) ([]command.Handler, error) {
	mediatorCmd, err := mediatorcmd.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed initialized mediator command: %w", err)
	}

	return mediatorCmd.GetHandlers(), nil
}
