/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package messagetype parses DIDComm protocol and message type URIs and decides whether an incoming
// identifier is acceptable against a locally supported one.
//
// A message type URI has the form <documentURI>/<protocolName>/<major>.<minor>/<messageName>; a protocol
// URI is the same without the trailing message name.
package messagetype

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

const (
	// DocumentURI is the canonical document URI of the community protocols.
	DocumentURI = "https://didcomm.org"
	// LegacyDocumentURI is the historical did:sov document URI still sent by older agents.
	LegacyDocumentURI = "did:sov:BzCbsNYhMrjHiqZDTUASHg;spec"
)

var (
	// ErrInvalidMessageType is returned when a string is not a valid message type URI.
	ErrInvalidMessageType = errors.New("invalid message type")
	// ErrInvalidProtocolURI is returned when a string is not a valid protocol URI.
	ErrInvalidProtocolURI = errors.New("invalid protocol uri")
)

var (
	messageTypeRegex = regexp.MustCompile(`^(.+)/([^/\\]+)/(\d+)\.(\d+)/([^/\\]+)$`)
	protocolURIRegex = regexp.MustCompile(`^(.+)/([^/\\]+)/(\d+)\.(\d+)$`)
)

// ProtocolURI identifies a protocol family and version.
type ProtocolURI struct {
	DocumentURI  string
	ProtocolName string
	MajorVersion uint64
	MinorVersion uint64
}

// Version returns "<major>.<minor>".
func (p ProtocolURI) Version() string {
	return fmt.Sprintf("%d.%d", p.MajorVersion, p.MinorVersion)
}

func (p ProtocolURI) String() string {
	return fmt.Sprintf("%s/%s/%s", p.DocumentURI, p.ProtocolName, p.Version())
}

// MessageType returns the message type URI for the given message name within this protocol.
func (p ProtocolURI) MessageType(messageName string) MessageType {
	return MessageType{ProtocolURI: p, MessageName: messageName}
}

// MessageType identifies one message kind of a protocol.
type MessageType struct {
	ProtocolURI
	MessageName string
}

func (m MessageType) String() string {
	return m.ProtocolURI.String() + "/" + m.MessageName
}

// ParseMessageType parses a message type URI.
func ParseMessageType(s string) (MessageType, error) {
	parts := messageTypeRegex.FindStringSubmatch(s)
	if parts == nil {
		return MessageType{}, fmt.Errorf("%w: '%s'", ErrInvalidMessageType, s)
	}

	major, minor, err := parseVersion(parts[3], parts[4])
	if err != nil {
		return MessageType{}, fmt.Errorf("%w: '%s': %s", ErrInvalidMessageType, s, err.Error())
	}

	return MessageType{
		ProtocolURI: ProtocolURI{
			DocumentURI:  parts[1],
			ProtocolName: parts[2],
			MajorVersion: major,
			MinorVersion: minor,
		},
		MessageName: parts[5],
	}, nil
}

// ParseProtocolURI parses a protocol URI.
func ParseProtocolURI(s string) (ProtocolURI, error) {
	parts := protocolURIRegex.FindStringSubmatch(s)
	if parts == nil {
		return ProtocolURI{}, fmt.Errorf("%w: '%s'", ErrInvalidProtocolURI, s)
	}

	major, minor, err := parseVersion(parts[3], parts[4])
	if err != nil {
		return ProtocolURI{}, fmt.Errorf("%w: '%s': %s", ErrInvalidProtocolURI, s, err.Error())
	}

	return ProtocolURI{
		DocumentURI:  parts[1],
		ProtocolName: parts[2],
		MajorVersion: major,
		MinorVersion: minor,
	}, nil
}

// MustParseMessageType is like ParseMessageType but panics on error. It is meant for package level
// declarations of well-known message types.
func MustParseMessageType(s string) MessageType {
	t, err := ParseMessageType(s)
	if err != nil {
		panic(err)
	}

	return t
}

// MustParseProtocolURI is like ParseProtocolURI but panics on error.
func MustParseProtocolURI(s string) ProtocolURI {
	p, err := ParseProtocolURI(s)
	if err != nil {
		panic(err)
	}

	return p
}

// parseVersion rejects version parts with a leading zero, which would not survive reserialization.
func parseVersion(majorStr, minorStr string) (uint64, uint64, error) {
	major, err := parseVersionPart(majorStr)
	if err != nil {
		return 0, 0, err
	}

	minor, err := parseVersionPart(minorStr)
	if err != nil {
		return 0, 0, err
	}

	return major, minor, nil
}

func parseVersionPart(s string) (uint64, error) {
	if len(s) > 1 && s[0] == '0' {
		return 0, fmt.Errorf("version part '%s' has a leading zero", s)
	}

	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("version part '%s': %w", s, err)
	}

	return v, nil
}
