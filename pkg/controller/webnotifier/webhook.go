/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package webnotifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	webhookAttempts      = 3
	webhookRetryInterval = 500 * time.Millisecond
)

// HTTPNotifier posts notifications to webhook subscribers. Transport errors and 5xx answers are
// retried; any other non-2xx answer fails at once.
type HTTPNotifier struct {
	urls          []string
	client        *http.Client
	retryInterval time.Duration
}

// NewHTTPNotifier returns a new instance of an HTTPNotifier.
func NewHTTPNotifier(webhookURLs []string) *HTTPNotifier {
	return &HTTPNotifier{
		urls:          webhookURLs,
		client:        &http.Client{Timeout: notificationSendTimeout},
		retryInterval: webhookRetryInterval,
	}
}

// Notify posts the topic message to every subscriber URL. Errors of all subscribers are joined.
func (n *HTTPNotifier) Notify(topic string, message []byte) error {
	if topic == "" {
		return fmt.Errorf(emptyTopicErrMsg)
	}

	if len(message) == 0 {
		return fmt.Errorf(emptyMessageErrMsg)
	}

	topicMsg, err := PrepareTopicMessage(topic, message)
	if err != nil {
		return fmt.Errorf(failedToCreateErrMsg, err)
	}

	var allErrs error

	for _, webhookURL := range n.urls {
		allErrs = appendError(allErrs, n.deliver(webhookURL, topicMsg))
	}

	return allErrs
}

func (n *HTTPNotifier) deliver(destination string, message []byte) error {
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(n.retryInterval), webhookAttempts-1)

	return backoff.RetryNotify(func() error {
		return n.post(destination, message)
	}, policy, func(err error, wait time.Duration) {
		logger.Debugf("webhook %s failed, retrying in %s: %s", destination, wait, err)
	})
}

func (n *HTTPNotifier) post(destination string, message []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), notificationSendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, bytes.NewReader(message))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create new http post request for %s: %w", destination, err))
	}

	req.Header.Add("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post notification to %s: %w", destination, err)
	}

	defer closeResponse(resp.Body)

	switch {
	case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
		logger.Debugf("notification sent to %s", destination)

		return nil
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("notification was sent to %s, but %s was received", destination, resp.Status)
	default:
		return backoff.Permanent(
			fmt.Errorf("notification was sent to %s, but %s was received", destination, resp.Status))
	}
}

func closeResponse(c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Errorf("failed to close response body: %s", err)
	}
}
