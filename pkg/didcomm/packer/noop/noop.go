/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package noop provides a packager that transmits messages IN PLAINTEXT, with only a header identifying the
// format and the base58 sender and recipient keys. Never use it in production.
package noop

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/base58"

	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/transport"
)

// encodingType is the `typ` string identifier in a message that identifies the format as being NOOP.
const encodingType = "NOOP"

type envelope struct {
	Header    string          `json:"protected,omitempty"`
	Sender    string          `json:"spk,omitempty"`
	Recipient string          `json:"kid,omitempty"`
	Message   json.RawMessage `json:"msg,omitempty"`
}

type header struct {
	Type string `json:"typ,omitempty"`
}

// Packager packs messages using the NOOP format.
type Packager struct{}

// New returns a NOOP packager.
func New() *Packager {
	return &Packager{}
}

// PackMessage wraps the plaintext message in a NOOP envelope.
func (p *Packager) PackMessage(env *transport.Envelope) ([]byte, error) {
	if env == nil {
		return nil, errors.New("nil envelope")
	}

	if len(env.ToKey) == 0 {
		return nil, fmt.Errorf("no recipients")
	}

	if !json.Valid(env.Message) {
		return nil, errors.New("message is not valid JSON")
	}

	headerBytes, err := json.Marshal(&header{Type: encodingType})
	if err != nil {
		return nil, err
	}

	return json.Marshal(&envelope{
		Header:    base64.URLEncoding.EncodeToString(headerBytes),
		Sender:    base58.Encode(env.FromKey),
		Recipient: base58.Encode(env.ToKey),
		Message:   env.Message,
	})
}

// UnpackMessage decodes a NOOP envelope.
func (p *Packager) UnpackMessage(encMessage []byte) (*transport.Envelope, error) {
	var env envelope

	err := json.Unmarshal(encMessage, &env)
	if err != nil {
		return nil, fmt.Errorf("unpack: %w", err)
	}

	headerBytes, err := base64.URLEncoding.DecodeString(env.Header)
	if err != nil {
		return nil, fmt.Errorf("unpack header: %w", err)
	}

	var head header

	err = json.Unmarshal(headerBytes, &head)
	if err != nil {
		return nil, fmt.Errorf("unpack header: %w", err)
	}

	if head.Type != encodingType {
		return nil, fmt.Errorf("unsupported envelope type '%s'", head.Type)
	}

	return &transport.Envelope{
		Message: env.Message,
		FromKey: base58.Decode(env.Sender),
		ToKey:   base58.Decode(env.Recipient),
	}, nil
}
