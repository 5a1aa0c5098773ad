/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package recipientkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcutil/base58"
	"github.com/stretchr/testify/require"
)

func newVerKey(t *testing.T) string {
	t.Helper()

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	return base58.Encode(pub)
}

func TestValidate(t *testing.T) {
	t.Run("verkey", func(t *testing.T) {
		require.NoError(t, Validate(newVerKey(t)))
	})

	t.Run("did:key", func(t *testing.T) {
		didKey, err := DIDKey(newVerKey(t))
		require.NoError(t, err)
		require.Contains(t, didKey, "did:key:z6Mk")
		require.NoError(t, Validate(didKey))

		id := didKey[len("did:key:"):]
		require.NoError(t, Validate(didKey+"#"+id))
	})

	t.Run("known did:key", func(t *testing.T) {
		require.NoError(t, Validate("did:key:z6MkpTHR8VNsBxYAAWHut2Geadd9jSwuBV8xRoAnwWsdvktH"))
	})

	t.Run("malformed", func(t *testing.T) {
		for _, key := range []string{
			"",
			"not-a-key",
			base58.Encode([]byte("short")),
			"did:key:",
			"did:key:zzzz",
			"did:key:mAAAA",
			// secp256k1 did:key
			"did:key:zQ3shokFTS3brHcDQrn82RUDfCZESWL1ZdCEJwekUDPQiYBme",
		} {
			require.ErrorIs(t, Validate(key), ErrMalformedKey, key)
		}
	})

	t.Run("did key of malformed verkey", func(t *testing.T) {
		_, err := DIDKey("abc")
		require.ErrorIs(t, err, ErrMalformedKey)
	})
}

func TestVerKey(t *testing.T) {
	verKey := newVerKey(t)

	didKey, err := DIDKey(verKey)
	require.NoError(t, err)

	got, err := VerKey(didKey)
	require.NoError(t, err)
	require.Equal(t, verKey, got)

	got, err = VerKey(didKey + "#key-1")
	require.NoError(t, err)
	require.Equal(t, verKey, got)

	got, err = VerKey(verKey)
	require.NoError(t, err)
	require.Equal(t, verKey, got)

	_, err = VerKey("did:key:zzzz")
	require.ErrorIs(t, err, ErrMalformedKey)

	_, err = VerKey("abc")
	require.ErrorIs(t, err, ErrMalformedKey)
}
