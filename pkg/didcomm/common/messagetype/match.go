/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package messagetype

import "fmt"

type matchOpts struct {
	allowLegacyPrefixMismatch bool
}

// MatchOption configures compatibility matching.
type MatchOption func(opts *matchOpts)

// WithLegacyPrefixMismatch toggles acceptance of the legacy did:sov document URI in place of the
// canonical one. It is enabled by default.
func WithLegacyPrefixMismatch(allow bool) MatchOption {
	return func(opts *matchOpts) {
		opts.allowLegacyPrefixMismatch = allow
	}
}

func newMatchOpts(opts []MatchOption) *matchOpts {
	o := &matchOpts{allowLegacyPrefixMismatch: true}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// SupportsProtocolURI reports whether an incoming protocol URI can be handled by an implementation of the
// expected one. Document URI, protocol name and major version must be equal; the minor version never
// gates compatibility.
func SupportsProtocolURI(incoming, expected ProtocolURI, opts ...MatchOption) bool {
	return supports(incoming, expected, newMatchOpts(opts))
}

// SupportsMessageType is SupportsProtocolURI plus an exact message name comparison.
func SupportsMessageType(incoming, expected MessageType, opts ...MatchOption) bool {
	return supports(incoming.ProtocolURI, expected.ProtocolURI, newMatchOpts(opts)) &&
		incoming.MessageName == expected.MessageName
}

func supports(incoming, expected ProtocolURI, o *matchOpts) bool {
	return normalizeDocumentURI(incoming.DocumentURI, o) == expected.DocumentURI &&
		incoming.ProtocolName == expected.ProtocolName &&
		incoming.MajorVersion == expected.MajorVersion
}

// normalizeDocumentURI maps the legacy document URI of an incoming type to the canonical one when the
// legacy mismatch is allowed. Only the incoming side is rewritten, and only the single legacy identifier.
func normalizeDocumentURI(uri string, o *matchOpts) string {
	if o.allowLegacyPrefixMismatch && uri == LegacyDocumentURI {
		return DocumentURI
	}

	return uri
}

// ReplaceLegacyPrefix rewrites a message type or protocol URI string sent with the legacy document URI to
// use the canonical one. Other strings are returned unchanged.
func ReplaceLegacyPrefix(s string) string {
	if len(s) > len(LegacyDocumentURI) && s[:len(LegacyDocumentURI)] == LegacyDocumentURI &&
		s[len(LegacyDocumentURI)] == '/' {
		return DocumentURI + s[len(LegacyDocumentURI):]
	}

	return s
}

// Identity returns a key that is equal for every message type SupportsMessageType would accept against m:
// the minor version is dropped and the legacy document URI is normalized unless disabled by opts.
func (m MessageType) Identity(opts ...MatchOption) string {
	return fmt.Sprintf("%s/%s/%d/%s",
		normalizeDocumentURI(m.DocumentURI, newMatchOpts(opts)), m.ProtocolName, m.MajorVersion, m.MessageName)
}
