/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package mediator is a DIDComm mediator built on Hyperledger Aries protocols
// (https://www.hyperledger.org/projects/aries).
//
// Packages for end developer usage
//
// pkg/framework/aries: creates the mediator from options (storage, mailbox, inbound transports, protocols)
// and hands out the context the protocol services run against.
//
// pkg/didcomm/protocol: DID Exchange, Coordinate Mediation, Message Pickup (1.0 and 2.0) and Discover Features.
//
// pkg/controller: admin REST handlers, metrics and protocol state notifications over webhooks or websockets.
//
// cmd/aries-mediator: the mediator server.
//
// Basic workflow
//
//      1) Instantiate a mediator with aries.New and its options.
//      2) Get the context with Context() and wire it into the controller handlers.
//      3) Agents connect over DID Exchange, request mediation, and update their keylist.
//      4) Forwarded messages are delivered live or queued until picked up.
//      5) Call Close() to release resources.
package mediator
