/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

const (
	jsonID             = "@id"
	jsonType           = "@type"
	jsonThread         = "~thread"
	jsonThreadID       = "thid"
	jsonParentThreadID = "pthid"
	jsonMetadata       = "_internal_metadata"
	jsonTransport      = "~transport"
	jsonReturnRoute    = "return_route"
	jsonReturnThread   = "return_route_thread"
)

// ErrThreadIDNotFound is returned when a message carries neither a thread id nor a message id.
var ErrThreadIDNotFound = errors.New("threadID not found")

// DIDCommMsgMap is a plaintext DIDComm message in its generic form.
type DIDCommMsgMap map[string]interface{}

// ParseDIDCommMsgMap returns a DIDComm message map parsed from the given JSON payload.
func ParseDIDCommMsgMap(payload []byte) (DIDCommMsgMap, error) {
	var msg DIDCommMsgMap

	err := json.Unmarshal(payload, &msg)
	if err != nil {
		return nil, fmt.Errorf("invalid payload data format: %w", err)
	}

	if msg == nil {
		return nil, errors.New("invalid payload data format: not a JSON object")
	}

	return msg, nil
}

// NewDIDCommMsgMap converts a message struct into a DIDComm message map. The struct is expected to carry
// json tags; a value that cannot be represented as a JSON object yields an empty map.
func NewDIDCommMsgMap(payload interface{}) DIDCommMsgMap {
	raw, err := json.Marshal(payload)
	if err != nil {
		return DIDCommMsgMap{}
	}

	msg := DIDCommMsgMap{}

	if err = json.Unmarshal(raw, &msg); err != nil || msg == nil {
		return DIDCommMsgMap{}
	}

	return msg
}

// ID returns the message id.
func (m DIDCommMsgMap) ID() string {
	return m.stringValue(jsonID)
}

// Type returns the message type.
func (m DIDCommMsgMap) Type() string {
	return m.stringValue(jsonType)
}

// ThreadID returns the thread id of the message, falling back to the message id when the message starts a
// new thread.
func (m DIDCommMsgMap) ThreadID() (string, error) {
	if m == nil {
		return "", ErrThreadIDNotFound
	}

	if thread, ok := m[jsonThread].(map[string]interface{}); ok {
		if thid, ok := thread[jsonThreadID].(string); ok && thid != "" {
			return thid, nil
		}
	}

	if id := m.ID(); id != "" {
		return id, nil
	}

	return "", ErrThreadIDNotFound
}

// ParentThreadID returns the parent thread id, or an empty string.
func (m DIDCommMsgMap) ParentThreadID() string {
	if m == nil {
		return ""
	}

	thread, ok := m[jsonThread].(map[string]interface{})
	if !ok {
		return ""
	}

	pthid, _ := thread[jsonParentThreadID].(string) //nolint:errcheck

	return pthid
}

// ReturnRoute returns the return route hint of the ~transport decorator and, for the "thread" option, the
// thread it applies to.
func (m DIDCommMsgMap) ReturnRoute() (string, string) {
	if m == nil {
		return "", ""
	}

	transport, ok := m[jsonTransport].(map[string]interface{})
	if !ok {
		return "", ""
	}

	route, _ := transport[jsonReturnRoute].(string)   //nolint:errcheck
	thread, _ := transport[jsonReturnThread].(string) //nolint:errcheck

	return route, thread
}

// Metadata returns internal metadata attached to the message, never nil.
func (m DIDCommMsgMap) Metadata() map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}

	md, ok := m[jsonMetadata].(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}

	return md
}

// SetMetadata stores a value in the internal metadata. Metadata is stripped on serialization.
func (m DIDCommMsgMap) SetMetadata(key string, value interface{}) {
	md, ok := m[jsonMetadata].(map[string]interface{})
	if !ok {
		md = map[string]interface{}{}
		m[jsonMetadata] = md
	}

	md[key] = value
}

// Clone returns a shallow copy of the message.
func (m DIDCommMsgMap) Clone() DIDCommMsgMap {
	if m == nil {
		return nil
	}

	msg := DIDCommMsgMap{}
	for k, v := range m {
		msg[k] = v
	}

	return msg
}

// MarshalJSON drops the internal metadata.
func (m DIDCommMsgMap) MarshalJSON() ([]byte, error) {
	msg := make(map[string]interface{}, len(m))

	for k, v := range m {
		if k == jsonMetadata {
			continue
		}

		msg[k] = v
	}

	return json.Marshal(msg)
}

// Decode converts the message map into the given struct using its json tags.
func (m DIDCommMsgMap) Decode(v interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       decodeHook,
		WeaklyTypedInput: true,
		Result:           v,
		TagName:          "json",
		Squash:           true,
	})
	if err != nil {
		return err
	}

	return decoder.Decode(m)
}

func (m DIDCommMsgMap) stringValue(key string) string {
	if m == nil {
		return ""
	}

	res, _ := m[key].(string) //nolint:errcheck

	return res
}

func decodeHook(rt1, rt2 reflect.Type, v interface{}) (interface{}, error) {
	if rt1.Kind() == reflect.String {
		switch {
		case rt2 == reflect.TypeOf(time.Time{}):
			return time.Parse(time.RFC3339Nano, v.(string))
		case rt2 == reflect.TypeOf(json.RawMessage{}):
			return json.Marshal(v)
		case rt2.Kind() == reflect.Slice && rt2.Elem().Kind() == reflect.Uint8:
			return base64.StdEncoding.DecodeString(v.(string))
		}
	}

	if rt2 == reflect.TypeOf(json.RawMessage{}) {
		return json.Marshal(v)
	}

	return v, nil
}
