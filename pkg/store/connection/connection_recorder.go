/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hyperledger/aries-framework-go/spi/storage"
)

const errMsgInvalidKey = "invalid key"

// Recorder manages connection records and the routing keys connections register with the mediator.
type Recorder struct {
	*Lookup
}

// NewRecorder returns new connection recorder.
func NewRecorder(p provider) (*Recorder, error) {
	lookup, err := NewLookup(p)
	if err != nil {
		return nil, fmt.Errorf("failed to create new connection recorder : %w", err)
	}

	return &Recorder{Lookup: lookup}, nil
}

// SaveConnectionRecord saves the record, replacing an existing one with the same connection id.
func (c *Recorder) SaveConnectionRecord(record *Record) error {
	if err := isValidConnection(record); err != nil {
		return err
	}

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	record.UpdatedAt = now

	tags := []storage.Tag{
		{Name: connIDKeyPrefix},
		{Name: stateTag, Value: encodeTagValue(record.State)},
	}

	if record.TheirKey != "" {
		tags = append(tags, storage.Tag{Name: theirKeyTag, Value: encodeTagValue(record.TheirKey)})
	}

	if record.ThreadID != "" {
		tags = append(tags, storage.Tag{Name: threadTag, Value: encodeTagValue(record.ThreadID)})
	}

	return marshalAndSave(connectionKey(record.ConnectionID), record, c.store, tags...)
}

// RemoveConnectionRecord deletes a connection record and every route it registered.
func (c *Recorder) RemoveConnectionRecord(connectionID string) error {
	routes, err := c.GetRoutes(connectionID)
	if err != nil {
		return err
	}

	ops := []storage.Operation{{Key: connectionKey(connectionID)}}

	for _, k := range routes {
		ops = append(ops, storage.Operation{Key: routeKey(k)})
	}

	if err := c.store.Batch(ops); err != nil {
		return fmt.Errorf("remove connection %s: %w", connectionID, err)
	}

	return nil
}

// SaveRoute records that messages for recipientKey are held for connectionID.
func (c *Recorder) SaveRoute(recipientKey, connectionID string) error {
	if recipientKey == "" || connectionID == "" {
		return errors.New(errMsgInvalidKey)
	}

	err := c.store.Put(routeKey(recipientKey), []byte(connectionID),
		storage.Tag{Name: routeConnTag, Value: encodeTagValue(connectionID)})
	if err != nil {
		return fmt.Errorf("save route: %w", err)
	}

	return nil
}

// RemoveRoute deletes the route of recipientKey.
func (c *Recorder) RemoveRoute(recipientKey string) error {
	if recipientKey == "" {
		return errors.New(errMsgInvalidKey)
	}

	if err := c.store.Delete(routeKey(recipientKey)); err != nil {
		return fmt.Errorf("remove route: %w", err)
	}

	return nil
}

func marshalAndSave(k string, v interface{}, store storage.Store, tags ...storage.Tag) error {
	bytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("save connection record: %w", err)
	}

	return store.Put(k, bytes, tags...)
}

func isValidConnection(r *Record) error {
	if r == nil || r.ConnectionID == "" || r.State == "" {
		return errors.New("connection ID and connection state are mandatory")
	}

	return nil
}
