/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package instrument exposes the mediator mailbox and pickup counters to prometheus.
package instrument

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// nolint:gochecknoglobals
var (
	inboundMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aries_mediator_inbound_messages_total",
			Help: "Number of inbound messages by protocol",
		},
		[]string{"protocol"},
	)
	rejectedMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aries_mediator_rejected_messages_total",
			Help: "Number of inbound messages that could not be handled",
		},
	)
	queuedMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aries_mediator_queued_messages_total",
			Help: "Number of messages added to the mailbox",
		},
	)
	deliveredMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aries_mediator_delivered_messages_total",
			Help: "Number of queued messages handed to recipients",
		},
	)
	removedMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aries_mediator_removed_messages_total",
			Help: "Number of messages removed from the mailbox after acknowledgement or batch pickup",
		},
	)
	expiredMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aries_mediator_expired_messages_total",
			Help: "Number of messages dropped by the retention sweep",
		},
	)
	livePushes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aries_mediator_live_pushes_total",
			Help: "Number of live delivery pushes",
		},
	)
	livePushFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aries_mediator_live_push_failures_total",
			Help: "Number of live delivery pushes that failed after retries",
		},
	)
	keylistUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aries_mediator_keylist_updates_total",
			Help: "Number of keylist update items by result",
		},
		[]string{"result"},
	)

	registry = prometheus.NewRegistry()
	initOnce sync.Once
)

// Init registers the counters. It is safe to call more than once.
func Init() {
	initOnce.Do(func() {
		registry.MustRegister(
			inboundMessages,
			rejectedMessages,
			queuedMessages,
			deliveredMessages,
			removedMessages,
			expiredMessages,
			livePushes,
			livePushFailures,
			keylistUpdates,
			collectors.NewGoCollector(),
		)
	})
}

// Handler serves the registered metrics.
func Handler() http.Handler {
	Init()

	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func Inbound(protocol string) {
	inboundMessages.With(prometheus.Labels{"protocol": protocol}).Inc()
}

func Rejected() {
	rejectedMessages.Inc()
}

func Queued() {
	queuedMessages.Inc()
}

func Delivered(n int) {
	deliveredMessages.Add(float64(n))
}

func Removed(n int) {
	removedMessages.Add(float64(n))
}

func Expired(n int) {
	expiredMessages.Add(float64(n))
}

func LivePush() {
	livePushes.Inc()
}

func LivePushFailed() {
	livePushFailures.Inc()
}

func KeylistUpdate(result string) {
	keylistUpdates.With(prometheus.Labels{"result": result}).Inc()
}
