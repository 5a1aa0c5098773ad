/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package didexchange

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	"github.com/btcsuite/btcutil/base58"
	"github.com/hyperledger/aries-framework-go/component/models/did"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	mockstorage "github.com/hyperledger/aries-framework-go/component/storageutil/mock/storage"
	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/recipientkey"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/protocol/decorator"
	connectionstore "github.com/hyperledger/aries-mediator-go/pkg/store/connection"
)

type storageProvider struct {
	p storage.Provider
}

func (s *storageProvider) StorageProvider() storage.Provider {
	return s.p
}

func newService(t *testing.T) *Service {
	t.Helper()

	svc, err := New(&storageProvider{p: mem.NewProvider()}, Options{ServiceEndpoint: "ws://mediator.example"})
	require.NoError(t, err)

	return svc
}

func newVerKey(t *testing.T) string {
	t.Helper()

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	return base58.Encode(pub)
}

func connState(t *testing.T, svc *Service, connectionID string) State {
	t.Helper()

	rec, err := svc.Connections().GetConnectionRecord(connectionID)
	require.NoError(t, err)

	return State(rec.State)
}

func TestNew(t *testing.T) {
	_, err := New(&storageProvider{p: &mockstorage.MockStoreProvider{
		ErrOpenStoreHandle: errors.New("open"),
	}}, Options{})
	require.ErrorContains(t, err, "open")
}

func TestService_Exchange(t *testing.T) {
	responder := newService(t)
	requester := newService(t)

	require.Equal(t, DIDExchange, responder.Name())
	require.Len(t, responder.MessageTypes(), 3)

	events := make(chan service.StateMsg, 20)
	require.NoError(t, responder.RegisterMsgEvent(events))

	responderKey, requesterKey := newVerKey(t), newVerKey(t)

	inv, respRec, err := responder.CreateInvitation("mediator", responderKey)
	require.NoError(t, err)
	require.Equal(t, []string{responderKey}, inv.RecipientKeys)
	require.Equal(t, "ws://mediator.example", inv.ServiceEndpoint)

	reqRec, err := requester.ReceiveInvitation(inv, requesterKey)
	require.NoError(t, err)
	require.Equal(t, responderKey, reqRec.TheirKey)

	req, err := requester.CreateRequest(reqRec.ConnectionID, "alice")
	require.NoError(t, err)
	require.Equal(t, inv.ID, req.Thread.PID)
	require.Equal(t, StateRequestSent, connState(t, requester, reqRec.ConnectionID))

	// the request is answered with a response on the invited connection
	reply, err := responder.HandleInbound(service.NewDIDCommMsgMap(req),
		service.DIDCommContext{TheirKey: newVerKey(t)})
	require.NoError(t, err)
	require.Equal(t, respRec.ConnectionID, reply.ConnectionID)
	require.Equal(t, ResponseMsgType.String(), reply.Msg.Type())

	thid, err := reply.Msg.ThreadID()
	require.NoError(t, err)
	require.Equal(t, req.ID, thid)

	rec, err := responder.Connections().GetConnectionRecord(respRec.ConnectionID)
	require.NoError(t, err)
	require.Equal(t, string(StateResponseSent), rec.State)
	require.Equal(t, requesterKey, rec.TheirKey)
	require.Equal(t, req.DID, rec.TheirDID)
	require.Equal(t, "ws://mediator.example", rec.ServiceEndpoint)
	require.Equal(t, "alice", rec.TheirLabel)

	reply, err = requester.HandleInbound(reply.Msg, service.DIDCommContext{ConnectionID: reqRec.ConnectionID})
	require.NoError(t, err)
	require.Equal(t, CompleteMsgType.String(), reply.Msg.Type())
	require.Equal(t, StateCompleted, connState(t, requester, reqRec.ConnectionID))

	rec, err = requester.Connections().GetConnectionRecord(reqRec.ConnectionID)
	require.NoError(t, err)
	require.Equal(t, responderKey, rec.TheirKey)
	require.NotEmpty(t, rec.TheirDID)

	reply, err = responder.HandleInbound(reply.Msg, service.DIDCommContext{ConnectionID: respRec.ConnectionID})
	require.NoError(t, err)
	require.Nil(t, reply)
	require.Equal(t, StateCompleted, connState(t, responder, respRec.ConnectionID))

	var states []string

	for len(events) > 0 {
		e := <-events
		if e.Type == service.PostState {
			states = append(states, e.StateID)
		}

		require.Equal(t, respRec.ConnectionID, e.Properties[ConnectionIDProperty])
	}

	require.Equal(t, []string{
		string(StateInvitationSent), string(StateRequestReceived),
		string(StateResponseSent), string(StateCompleted),
	}, states)
}

func TestService_StateErrors(t *testing.T) {
	responder := newService(t)
	requester := newService(t)

	inv, respRec, err := responder.CreateInvitation("mediator", newVerKey(t))
	require.NoError(t, err)

	t.Run("response cannot be created before a request arrived", func(t *testing.T) {
		_, err := responder.CreateResponse(respRec.ConnectionID)

		var stateErr *StateError
		require.ErrorAs(t, err, &stateErr)
		require.Equal(t, StateInvitationSent, connState(t, responder, respRec.ConnectionID))
	})

	reqRec, err := requester.ReceiveInvitation(inv, newVerKey(t))
	require.NoError(t, err)

	t.Run("complete cannot be created from invitation-received", func(t *testing.T) {
		_, err := requester.CreateComplete(reqRec.ConnectionID)

		var stateErr *StateError
		require.ErrorAs(t, err, &stateErr)
	})

	req, err := requester.CreateRequest(reqRec.ConnectionID, "alice")
	require.NoError(t, err)

	t.Run("second request is rejected", func(t *testing.T) {
		_, err := requester.CreateRequest(reqRec.ConnectionID, "alice")

		var stateErr *StateError
		require.ErrorAs(t, err, &stateErr)
		require.Equal(t, StateRequestSent, connState(t, requester, reqRec.ConnectionID))
	})

	_, err = responder.HandleInbound(service.NewDIDCommMsgMap(req), service.DIDCommContext{})
	require.NoError(t, err)

	t.Run("replayed request is rejected", func(t *testing.T) {
		_, err := responder.HandleInbound(service.NewDIDCommMsgMap(req), service.DIDCommContext{})
		require.Error(t, err)
		require.Equal(t, StateResponseSent, connState(t, responder, respRec.ConnectionID))
	})

	t.Run("unknown connection", func(t *testing.T) {
		_, err := requester.CreateRequest("unknown", "alice")
		require.ErrorIs(t, err, connectionstore.ErrNotFound)
	})
}

func TestService_HandleInboundErrors(t *testing.T) {
	svc := newService(t)

	t.Run("invalid type", func(t *testing.T) {
		_, err := svc.HandleInbound(service.DIDCommMsgMap{"@type": "request"}, service.DIDCommContext{})
		require.Error(t, err)
	})

	t.Run("unexpected type", func(t *testing.T) {
		_, err := svc.HandleInbound(service.DIDCommMsgMap{"@type": PIURI + "/problem-report"}, service.DIDCommContext{})
		require.ErrorContains(t, err, "unexpected message type")
	})

	t.Run("request without invitation", func(t *testing.T) {
		_, err := svc.HandleInbound(service.DIDCommMsgMap{
			"@type": RequestMsgType.String(), "@id": "12345678",
		}, service.DIDCommContext{})
		require.ErrorContains(t, err, "does not reference an invitation")
	})

	t.Run("request for unknown invitation", func(t *testing.T) {
		_, err := svc.HandleInbound(service.DIDCommMsgMap{
			"@type":   RequestMsgType.String(),
			"@id":     "12345678",
			"~thread": map[string]interface{}{"pthid": "unknown"},
		}, service.DIDCommContext{})
		require.ErrorIs(t, err, connectionstore.ErrNotFound)
	})

	t.Run("request without key", func(t *testing.T) {
		inv, _, err := svc.CreateInvitation("mediator", newVerKey(t))
		require.NoError(t, err)

		_, err = svc.HandleInbound(service.DIDCommMsgMap{
			"@type":   RequestMsgType.String(),
			"@id":     "12345678",
			"~thread": map[string]interface{}{"pthid": inv.ID},
		}, service.DIDCommContext{})
		require.ErrorIs(t, err, ErrMissingKey)
	})

	t.Run("response for unknown thread", func(t *testing.T) {
		_, err := svc.HandleInbound(service.DIDCommMsgMap{
			"@type": ResponseMsgType.String(), "@id": "12345678",
		}, service.DIDCommContext{})
		require.ErrorIs(t, err, connectionstore.ErrNotFound)
	})

	t.Run("invitation errors", func(t *testing.T) {
		_, _, err := svc.CreateInvitation("mediator", "")
		require.ErrorIs(t, err, ErrMissingKey)

		_, err = svc.ReceiveInvitation(&Invitation{ID: "inv"}, "key")
		require.ErrorIs(t, err, ErrMissingKey)

		_, err = svc.ReceiveInvitation(nil, "key")
		require.Error(t, err)
	})
}

func TestService_DIDDocAttachment(t *testing.T) {
	svc, err := New(&storageProvider{p: mem.NewProvider()}, Options{
		ServiceEndpoint: "https://mediator.example/didcomm",
		RoutingKeys:     []string{"did:key:z6MkroutingKey"},
	})
	require.NoError(t, err)

	myKey := newVerKey(t)

	inv, _, err := newService(t).CreateInvitation("mediator", newVerKey(t))
	require.NoError(t, err)

	rec, err := svc.ReceiveInvitation(inv, myKey)
	require.NoError(t, err)

	req, err := svc.CreateRequest(rec.ConnectionID, "alice")
	require.NoError(t, err)
	require.Equal(t, "application/json", req.DocAttach.MimeType)

	data, err := base64.StdEncoding.DecodeString(req.DocAttach.Data.Base64)
	require.NoError(t, err)

	doc, err := did.ParseDocument(data)
	require.NoError(t, err)

	didKey, err := recipientkey.DIDKey(myKey)
	require.NoError(t, err)
	require.Equal(t, didKey, doc.ID)
	require.Equal(t, req.DID, doc.ID)

	require.Len(t, doc.VerificationMethod, 1)
	require.Equal(t, base58.Decode(myKey), doc.VerificationMethod[0].Value)

	didComm, ok := did.LookupService(doc, didCommServiceType)
	require.True(t, ok)
	require.Equal(t, []string{didKey}, didComm.RecipientKeys)
	require.Equal(t, []string{"did:key:z6MkroutingKey"}, didComm.RoutingKeys)

	uri, err := didComm.ServiceEndpoint.URI()
	require.NoError(t, err)
	require.Equal(t, "https://mediator.example/didcomm", uri)

	key, err := recipientKey(doc)
	require.NoError(t, err)
	require.Equal(t, myKey, key)

	rec, err = svc.Connections().GetConnectionRecord(rec.ConnectionID)
	require.NoError(t, err)
	require.Equal(t, doc.ID, rec.MyDID)
}

func TestApplyPeerDoc(t *testing.T) {
	peerKey := newVerKey(t)

	docless := newService(t)
	doc, err := docless.didDoc(&connectionstore.Record{MyKey: peerKey, MyDID: "did:peer:alice"})
	require.NoError(t, err)

	attachment := func(t *testing.T, doc *did.Doc) *decorator.Attachment {
		t.Helper()

		docBytes, err := doc.JSONBytes()
		require.NoError(t, err)

		return &decorator.Attachment{Data: decorator.AttachmentData{JSON: docBytes}}
	}

	t.Run("key, did and service come from the document", func(t *testing.T) {
		record := &connectionstore.Record{}

		require.NoError(t, applyPeerDoc(record, attachment(t, doc), newVerKey(t)))
		require.Equal(t, peerKey, record.TheirKey)
		require.Equal(t, "did:peer:alice", record.TheirDID)
		require.Equal(t, "ws://mediator.example", record.ServiceEndpoint)
	})

	t.Run("document without a service falls back to the verification method", func(t *testing.T) {
		bare := *doc
		bare.Service = nil

		record := &connectionstore.Record{ServiceEndpoint: "http://invitation"}

		require.NoError(t, applyPeerDoc(record, attachment(t, &bare), ""))
		require.Equal(t, peerKey, record.TheirKey)
		require.Equal(t, "http://invitation", record.ServiceEndpoint)
	})

	t.Run("document without keys", func(t *testing.T) {
		bare := *doc
		bare.Service = nil
		bare.VerificationMethod = nil
		bare.Authentication = nil

		err := applyPeerDoc(&connectionstore.Record{}, attachment(t, &bare), newVerKey(t))
		require.ErrorIs(t, err, ErrMissingKey)
	})

	t.Run("no attachment uses the sender key", func(t *testing.T) {
		record := &connectionstore.Record{}

		require.NoError(t, applyPeerDoc(record, nil, peerKey))
		require.Equal(t, peerKey, record.TheirKey)
		require.ErrorIs(t, applyPeerDoc(record, nil, ""), ErrMissingKey)
	})

	t.Run("unreadable attachments", func(t *testing.T) {
		err := applyPeerDoc(&connectionstore.Record{}, &decorator.Attachment{}, peerKey)
		require.ErrorIs(t, err, decorator.ErrNoAttachmentData)

		err = applyPeerDoc(&connectionstore.Record{}, &decorator.Attachment{
			Data: decorator.AttachmentData{JSON: []byte(`{"verkey":"` + peerKey + `"}`)},
		}, peerKey)
		require.ErrorContains(t, err, "parse did document")
	})
}

func TestService_CreateRequestInvalidKey(t *testing.T) {
	responder, requester := newService(t), newService(t)

	inv, _, err := responder.CreateInvitation("mediator", newVerKey(t))
	require.NoError(t, err)

	rec, err := requester.ReceiveInvitation(inv, "not-a-key")
	require.NoError(t, err)

	_, err = requester.CreateRequest(rec.ConnectionID, "alice")
	require.ErrorIs(t, err, recipientkey.ErrMalformedKey)
	require.Equal(t, StateInvitationReceived, connState(t, requester, rec.ConnectionID))
}

func TestService_ConcurrentTransitions(t *testing.T) {
	const workers = 20

	responder, requester := newService(t), newService(t)

	inv, _, err := responder.CreateInvitation("mediator", newVerKey(t))
	require.NoError(t, err)

	rec, err := requester.ReceiveInvitation(inv, newVerKey(t))
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		errs      []error
	)

	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			<-start

			_, err := requester.CreateRequest(rec.ConnectionID, "alice")

			mu.Lock()
			defer mu.Unlock()

			if err == nil {
				succeeded++
				return
			}

			errs = append(errs, err)
		}()
	}

	close(start)
	wg.Wait()

	require.Equal(t, 1, succeeded)
	require.Len(t, errs, workers-1)

	for _, err := range errs {
		var stateErr *StateError
		require.ErrorAs(t, err, &stateErr)
	}

	require.Equal(t, StateRequestSent, connState(t, requester, rec.ConnectionID))
}
