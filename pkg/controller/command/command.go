/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package command

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperledger/aries-framework-go/spi/log"
)

// Exec runs a command: req carries the JSON request, rw receives the JSON response.
type Exec func(rw io.Writer, req io.Reader) Error

// Handler exposes one command of a command group.
type Handler interface {
	Name() string
	Method() string
	Handle() Exec
}

// Notifier receives protocol state notifications, keyed by topic.
type Notifier interface {
	Notify(topic string, message []byte) error
}

// DecodeRequest reads the JSON request into v. Decode failures are validation errors with code.
func DecodeRequest(req io.Reader, v interface{}, code Code) Error {
	if err := json.NewDecoder(req).Decode(v); err != nil {
		return NewValidationError(code, fmt.Errorf("request decode : %w", err))
	}

	return nil
}

// WriteNillableResponse writes v as JSON, or an empty object when v is nil.
func WriteNillableResponse(w io.Writer, v interface{}, l log.Logger) {
	obj := v
	if v == nil {
		obj = map[string]interface{}{}
	}

	if err := json.NewEncoder(w).Encode(obj); err != nil {
		l.Errorf("Unable to send error response, %s", err)
	}
}
