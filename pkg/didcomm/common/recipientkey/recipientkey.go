/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package recipientkey validates the recipient key formats a mediator accepts in keylist updates and
// routing requests: raw base58 Ed25519 verkeys and did:key identifiers of Ed25519 keys.
package recipientkey

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"github.com/multiformats/go-multibase"
)

const (
	didKeyPrefix   = "did:key:"
	ed25519KeySize = 32
)

// ed25519-pub multicodec, varint encoded.
var ed25519Codec = []byte{0xed, 0x01}

// ErrMalformedKey is returned for keys that are neither a base58 Ed25519 verkey nor an Ed25519 did:key.
var ErrMalformedKey = errors.New("malformed recipient key")

// Validate checks the key format.
func Validate(key string) error {
	if strings.HasPrefix(key, didKeyPrefix) {
		_, err := decodeDIDKey(key)

		return err
	}

	if key == "" || len(base58.Decode(key)) != ed25519KeySize {
		return fmt.Errorf("%w: '%s' is not a base58 encoded Ed25519 key", ErrMalformedKey, key)
	}

	return nil
}

// VerKey returns the base58 verkey of key, converting a did:key.
func VerKey(key string) (string, error) {
	if !strings.HasPrefix(key, didKeyPrefix) {
		return key, Validate(key)
	}

	raw, err := decodeDIDKey(key)
	if err != nil {
		return "", err
	}

	return base58.Encode(raw), nil
}

func decodeDIDKey(key string) ([]byte, error) {
	id := strings.TrimPrefix(key, didKeyPrefix)
	if i := strings.Index(id, "#"); i >= 0 {
		id = id[:i]
	}

	enc, raw, err := multibase.Decode(id)
	if err != nil {
		return nil, fmt.Errorf("%w: '%s': %s", ErrMalformedKey, key, err.Error())
	}

	if enc != multibase.Base58BTC {
		return nil, fmt.Errorf("%w: '%s' is not base58btc multibase encoded", ErrMalformedKey, key)
	}

	if len(raw) != len(ed25519Codec)+ed25519KeySize || raw[0] != ed25519Codec[0] || raw[1] != ed25519Codec[1] {
		return nil, fmt.Errorf("%w: '%s' is not an Ed25519 did:key", ErrMalformedKey, key)
	}

	return raw[len(ed25519Codec):], nil
}

// DIDKey returns the did:key identifier of a base58 Ed25519 verkey.
func DIDKey(verKey string) (string, error) {
	raw := base58.Decode(verKey)
	if len(raw) != ed25519KeySize {
		return "", fmt.Errorf("%w: '%s' is not a base58 encoded Ed25519 key", ErrMalformedKey, verKey)
	}

	id, err := multibase.Encode(multibase.Base58BTC, append(append([]byte{}, ed25519Codec...), raw...))
	if err != nil {
		return "", fmt.Errorf("encode did:key: %w", err)
	}

	return didKeyPrefix + id, nil
}
