/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package connection

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/spi/storage"
)

const (
	// Namespace is namespace of connection store name.
	Namespace = "connection"

	keyPattern      = "%s_%s"
	connIDKeyPrefix = "conn"
	routeKeyPrefix  = "route"
	theirKeyTag     = "theirkey"
	threadTag       = "thread"
	stateTag        = "state"
	routeConnTag    = "routeconn"
)

var logger = log.New("aries-framework/store/connection")

// ErrNotFound is returned when a connection record or route does not exist.
var ErrNotFound = fmt.Errorf("connection %w", storage.ErrDataNotFound)

type provider interface {
	StorageProvider() storage.Provider
}

// Record contain info about a DIDComm connection.
type Record struct {
	ConnectionID    string    `json:"connectionID"`
	State           string    `json:"state"`
	Role            string    `json:"role"`
	ThreadID        string    `json:"threadID,omitempty"`
	ParentThreadID  string    `json:"parentThreadID,omitempty"`
	InvitationID    string    `json:"invitationID,omitempty"`
	TheirLabel      string    `json:"theirLabel,omitempty"`
	MyDID           string    `json:"myDID,omitempty"`
	TheirDID        string    `json:"theirDID,omitempty"`
	MyKey           string    `json:"myKey,omitempty"`
	TheirKey        string    `json:"theirKey,omitempty"`
	ServiceEndpoint string    `json:"serviceEndpoint,omitempty"`
	RoutingKeys     []string  `json:"routingKeys,omitempty"`
	MediationState  string    `json:"mediationState,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// NewLookup returns new connection lookup instance.
// Lookup is read only connection store. It provides connection record related query features.
func NewLookup(p provider) (*Lookup, error) {
	store, err := p.StorageProvider().OpenStore(Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to open store to create new connection lookup: %w", err)
	}

	err = p.StorageProvider().SetStoreConfig(Namespace, storage.StoreConfiguration{
		TagNames: []string{connIDKeyPrefix, theirKeyTag, threadTag, stateTag, routeConnTag},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set store config: %w", err)
	}

	return &Lookup{store: store}, nil
}

// Lookup takes care of connection related queries.
type Lookup struct {
	store storage.Store
}

// GetConnectionRecord return connection record based on the connection ID.
func (c *Lookup) GetConnectionRecord(connectionID string) (*Record, error) {
	var rec Record

	err := getAndUnmarshal(connectionKey(connectionID), &rec, c.store)
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

// GetConnectionRecordByTheirKey returns the connection with the given remote key.
func (c *Lookup) GetConnectionRecordByTheirKey(theirKey string) (*Record, error) {
	return c.queryOne(theirKeyTag, encodeTagValue(theirKey))
}

// GetConnectionRecordByThreadID returns the connection whose exchange runs on the given thread.
func (c *Lookup) GetConnectionRecordByThreadID(threadID string) (*Record, error) {
	return c.queryOne(threadTag, encodeTagValue(threadID))
}

// QueryConnectionRecords returns all connection records.
func (c *Lookup) QueryConnectionRecords() ([]*Record, error) {
	return c.query(connIDKeyPrefix)
}

// GetRouteConnectionID returns the connection that registered recipientKey for routing.
func (c *Lookup) GetRouteConnectionID(recipientKey string) (string, error) {
	connectionID, err := c.store.Get(routeKey(recipientKey))
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return "", fmt.Errorf("route for key '%s': %w", recipientKey, ErrNotFound)
		}

		return "", fmt.Errorf("get route: %w", err)
	}

	return string(connectionID), nil
}

// GetRoutes returns the recipient keys a connection registered for routing.
func (c *Lookup) GetRoutes(connectionID string) ([]string, error) {
	itr, err := c.store.Query(routeConnTag + ":" + encodeTagValue(connectionID))
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}

	defer storage.Close(itr, logger)

	var keys []string

	more, err := itr.Next()
	if err != nil {
		return nil, fmt.Errorf("failed to get next route: %w", err)
	}

	for more {
		key, err := itr.Key()
		if err != nil {
			return nil, fmt.Errorf("failed to get key from iterator: %w", err)
		}

		keys = append(keys, key[len(routeKeyPrefix)+1:])

		more, err = itr.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to get next route: %w", err)
		}
	}

	return keys, nil
}

func (c *Lookup) queryOne(tagName, tagValue string) (*Record, error) {
	records, err := c.query(tagName + ":" + tagValue)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, ErrNotFound
	}

	if len(records) > 1 {
		logger.Warnf("%d connection records match %s, using the most recently updated", len(records), tagName)
	}

	latest := records[0]

	for _, r := range records[1:] {
		if r.UpdatedAt.After(latest.UpdatedAt) {
			latest = r
		}
	}

	return latest, nil
}

func (c *Lookup) query(expression string) ([]*Record, error) {
	itr, err := c.store.Query(expression)
	if err != nil {
		return nil, fmt.Errorf("failed to query connection store: %w", err)
	}

	defer storage.Close(itr, logger)

	var records []*Record

	more, err := itr.Next()
	if err != nil {
		return nil, fmt.Errorf("failed to get next set of data from iterator: %w", err)
	}

	for more {
		value, err := itr.Value()
		if err != nil {
			return nil, fmt.Errorf("failed to get value from iterator: %w", err)
		}

		var record Record

		err = json.Unmarshal(value, &record)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal connection record: %w", err)
		}

		records = append(records, &record)

		more, err = itr.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to get next set of data from iterator: %w", err)
		}
	}

	return records, nil
}

func getAndUnmarshal(key string, target interface{}, store storage.Store) error {
	bytes, err := store.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return fmt.Errorf("get '%s': %w", key, ErrNotFound)
		}

		return err
	}

	return json.Unmarshal(bytes, target)
}

func connectionKey(connectionID string) string {
	return fmt.Sprintf(keyPattern, connIDKeyPrefix, connectionID)
}

func routeKey(recipientKey string) string {
	return fmt.Sprintf(keyPattern, routeKeyPrefix, recipientKey)
}
// encodeTagValue makes v usable as a tag value, which may not contain ':'.
// tag values may not contain ':'.
func encodeTagValue(v string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(v))
}
