/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package didexchange

import (
	"encoding/base64"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/models/did"
	"github.com/hyperledger/aries-framework-go/component/models/did/endpoint"

	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/recipientkey"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/protocol/decorator"
	connectionstore "github.com/hyperledger/aries-mediator-go/pkg/store/connection"
)

const (
	didCommServiceType         = "did-communication"
	ed25519VerificationKey2018 = "Ed25519VerificationKey2018"
	docMimeType                = "application/json"
)

// didDoc builds the DID document of our side of the connection. A record without a DID is given the
// did:key of its verification key.
func (s *Service) didDoc(record *connectionstore.Record) (*did.Doc, error) {
	verKey, err := recipientkey.VerKey(record.MyKey)
	if err != nil {
		return nil, fmt.Errorf("did-exchange: my key: %w", err)
	}

	didKey, err := recipientkey.DIDKey(verKey)
	if err != nil {
		return nil, fmt.Errorf("did-exchange: my key: %w", err)
	}

	id := record.MyDID
	if id == "" {
		id = didKey
	}

	vm := did.NewVerificationMethodFromBytes(id+"#key-1", ed25519VerificationKey2018, id, base58.Decode(verKey))

	doc := &did.Doc{
		Context:            []string{did.ContextV1},
		ID:                 id,
		VerificationMethod: []did.VerificationMethod{*vm},
		Authentication:     []did.Verification{*did.NewReferencedVerification(vm, did.Authentication)},
	}

	if s.opts.ServiceEndpoint != "" {
		doc.Service = []did.Service{{
			ID:              id + "#didcomm",
			Type:            didCommServiceType,
			Priority:        0,
			RecipientKeys:   []string{didKey},
			RoutingKeys:     s.opts.RoutingKeys,
			ServiceEndpoint: endpoint.NewDIDCommV1Endpoint(s.opts.ServiceEndpoint),
		}}
	}

	return doc, nil
}

func (s *Service) didDocAttachment(record *connectionstore.Record) (*did.Doc, *decorator.Attachment, error) {
	doc, err := s.didDoc(record)
	if err != nil {
		return nil, nil, err
	}

	docBytes, err := doc.JSONBytes()
	if err != nil {
		return nil, nil, fmt.Errorf("did-exchange: marshal did doc: %w", err)
	}

	return doc, &decorator.Attachment{
		ID:       uuid.New().String(),
		MimeType: docMimeType,
		Data:     decorator.AttachmentData{Base64: base64.StdEncoding.EncodeToString(docBytes)},
	}, nil
}

// applyPeerDoc takes the peer key, DID and service from the attached DID document. Without an
// attachment the envelope sender key is the peer key.
func applyPeerDoc(record *connectionstore.Record, attach *decorator.Attachment, senderKey string) error {
	if attach == nil {
		if senderKey == "" {
			return ErrMissingKey
		}

		record.TheirKey = senderKey

		return nil
	}

	data, err := attach.Data.Fetch()
	if err != nil {
		return fmt.Errorf("did-exchange: read did_doc~attach: %w", err)
	}

	doc, err := did.ParseDocument(data)
	if err != nil {
		return fmt.Errorf("did-exchange: parse did document: %w", err)
	}

	key, err := recipientKey(doc)
	if err != nil {
		return err
	}

	record.TheirKey = key

	if record.TheirDID == "" {
		record.TheirDID = doc.ID
	}

	if svc, ok := did.LookupService(doc, didCommServiceType); ok {
		if uri, e := svc.ServiceEndpoint.URI(); e == nil && uri != "" {
			record.ServiceEndpoint = uri
			record.RoutingKeys = svc.RoutingKeys
		}
	}

	return nil
}

// recipientKey returns the base58 verkey of the first DIDComm recipient key of doc. A document
// without a did-communication service falls back to its first Ed25519 verification method.
func recipientKey(doc *did.Doc) (string, error) {
	if keys, ok := did.LookupDIDCommRecipientKeys(doc); ok {
		key, err := recipientkey.VerKey(keys[0])
		if err != nil {
			return "", fmt.Errorf("did-exchange: recipient key of %s: %w", doc.ID, err)
		}

		return key, nil
	}

	for i := range doc.VerificationMethod {
		vm := doc.VerificationMethod[i]
		if vm.Type == ed25519VerificationKey2018 && len(vm.Value) > 0 {
			return base58.Encode(vm.Value), nil
		}
	}

	return "", fmt.Errorf("%w: did document %s has no recipient key", ErrMissingKey, doc.ID)
}
