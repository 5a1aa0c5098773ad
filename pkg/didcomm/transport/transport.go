/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package transport

import "context"

const (
	// MediaTypeV1EncryptedEnvelope is the media type for DIDComm V1 encrypted envelopes as per Aries RFC 0044.
	MediaTypeV1EncryptedEnvelope = "application/didcomm-enc-env"

	// MediaTypeV1LegacyEncryptedEnvelope is the media type still sent by older agents.
	MediaTypeV1LegacyEncryptedEnvelope = "application/didcomm-envelope-enc"

	// MediaTypeLegacyWire is the pre RFC 0044 media type.
	MediaTypeLegacyWire = "application/ssi-agent-wire"

	// MediaTypeJSON is accepted for plaintext development packers.
	MediaTypeJSON = "application/json"
)

// Envelope holds a plaintext DIDComm message together with the keys it was exchanged with.
type Envelope struct {
	Message []byte
	FromKey []byte
	ToKey   []byte
}

// Packager packs plaintext messages into envelopes and unpacks received envelopes.
type Packager interface {
	PackMessage(envelope *Envelope) ([]byte, error)
	UnpackMessage(encMessage []byte) (*Envelope, error)
}

// Session is a channel back to the sender of an inbound message.
type Session interface {
	ID() string
	Send(ctx context.Context, payload []byte) error
	// Persistent reports whether the session stays usable after the inbound message that opened it is handled.
	Persistent() bool
}

// InboundMessageHandler handles an encrypted inbound payload that arrived over session.
type InboundMessageHandler func(ctx context.Context, payload []byte, session Session) error

// InboundProvider contains dependencies for starting an inbound transport.
type InboundProvider interface {
	InboundMessageHandler() InboundMessageHandler
	Sessions() *SessionRegistry
}

// InboundTransport is a server side transport.
type InboundTransport interface {
	Start(prov InboundProvider) error
	Stop() error
	Endpoint() string
}

// SupportedMediaType reports whether an inbound content type is accepted.
func SupportedMediaType(contentType string) bool {
	switch contentType {
	case MediaTypeV1EncryptedEnvelope, MediaTypeV1LegacyEncryptedEnvelope, MediaTypeLegacyWire, MediaTypeJSON:
		return true
	default:
		return false
	}
}
