/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

import (
	"errors"
	"fmt"
	"io"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/hyperledger/aries-mediator-go/pkg/controller/command"
	"github.com/hyperledger/aries-mediator-go/pkg/controller/internal/cmdutil"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/common/recipientkey"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/protocol/discoverfeatures"
	"github.com/hyperledger/aries-mediator-go/pkg/didcomm/protocol/mediator"
	"github.com/hyperledger/aries-mediator-go/pkg/internal/logutil"
	"github.com/hyperledger/aries-mediator-go/pkg/store/connection"
	"github.com/hyperledger/aries-mediator-go/pkg/store/mailbox"
)

var logger = log.New("aries-framework/command/mediator")

// Error codes.
const (
	// InvalidRequestErrorCode for invalid requests.
	InvalidRequestErrorCode = command.Code(iota + command.Mediator)

	// MissingConnIDCode for connection ID validation error.
	MissingConnIDCode

	// ConnectionNotFoundCode for unknown connections.
	ConnectionNotFoundCode

	// GetConnectionErrorCode for connection lookup failures.
	GetConnectionErrorCode

	// KeylistErrorCode for keylist lookup failures.
	KeylistErrorCode

	// MissingRecipientKeyCode for recipient key validation error.
	MissingRecipientKeyCode

	// MailboxStatusErrorCode for mailbox status failures.
	MailboxStatusErrorCode
)

// constant for the mediator controller.
const (
	// command name
	CommandName = "mediator"

	// command methods
	FeaturesCommandMethod      = "Features"
	ConnectionCommandMethod    = "Connection"
	KeylistCommandMethod       = "Keylist"
	MailboxStatusCommandMethod = "MailboxStatus"

	// log constants
	connectionID  = "connectionID"
	recipientKey  = "recipientKey"
	successString = "success"
)

// provider contains dependencies for the mediator commands and is typically created by using aries.Context().
type provider interface {
	Service(id string) (interface{}, error)
	ConnectionLookup() *connection.Lookup
	Mailbox() mailbox.Store
}

// Command contains command operations provided by the mediator controller.
type Command struct {
	features    *discoverfeatures.Service
	mediator    *mediator.Service
	connections *connection.Lookup
	mailbox     mailbox.Store
}

// New returns new mediator controller command instance.
func New(ctx provider) (*Command, error) {
	f, err := ctx.Service(discoverfeatures.DiscoverFeatures)
	if err != nil {
		return nil, fmt.Errorf("lookup discover features service : %w", err)
	}

	features, ok := f.(*discoverfeatures.Service)
	if !ok {
		return nil, errors.New("cast service to discover features service failed")
	}

	m, err := ctx.Service(mediator.Coordination)
	if err != nil {
		return nil, fmt.Errorf("lookup mediator service : %w", err)
	}

	med, ok := m.(*mediator.Service)
	if !ok {
		return nil, errors.New("cast service to mediator service failed")
	}

	return &Command{
		features:    features,
		mediator:    med,
		connections: ctx.ConnectionLookup(),
		mailbox:     ctx.Mailbox(),
	}, nil
}

// GetHandlers returns list of all commands supported by this controller command.
func (o *Command) GetHandlers() []command.Handler {
	return []command.Handler{
		cmdutil.NewCommandHandler(CommandName, FeaturesCommandMethod, o.Features),
		cmdutil.NewCommandHandler(CommandName, ConnectionCommandMethod, o.Connection),
		cmdutil.NewCommandHandler(CommandName, KeylistCommandMethod, o.Keylist),
		cmdutil.NewCommandHandler(CommandName, MailboxStatusCommandMethod, o.MailboxStatus),
	}
}

// Features lists the supported protocols matching the query.
func (o *Command) Features(rw io.Writer, req io.Reader) command.Error {
	var request FeaturesRequest

	if err := command.DecodeRequest(req, &request, InvalidRequestErrorCode); err != nil {
		logutil.LogInfo(logger, CommandName, FeaturesCommandMethod, err.Error())
		return err
	}

	if request.Query == "" {
		request.Query = "*"
	}

	protocols := []string{}
	for _, uri := range o.features.Match(request.Query) {
		protocols = append(protocols, uri.String())
	}

	command.WriteNillableResponse(rw, &FeaturesResponse{Protocols: protocols}, logger)

	logutil.LogDebug(logger, CommandName, FeaturesCommandMethod, successString)

	return nil
}

// Connection returns the connection record.
func (o *Command) Connection(rw io.Writer, req io.Reader) command.Error {
	request, cmdErr := decodeConnectionID(req, ConnectionCommandMethod)
	if cmdErr != nil {
		return cmdErr
	}

	record, cmdErr := o.connectionRecord(ConnectionCommandMethod, request.ID)
	if cmdErr != nil {
		return cmdErr
	}

	command.WriteNillableResponse(rw, &ConnectionResponse{Result: record}, logger)

	logutil.LogDebug(logger, CommandName, ConnectionCommandMethod, successString,
		logutil.CreateKeyValueString(connectionID, request.ID))

	return nil
}

// Keylist returns the recipient keys routed to the connection.
func (o *Command) Keylist(rw io.Writer, req io.Reader) command.Error {
	request, cmdErr := decodeConnectionID(req, KeylistCommandMethod)
	if cmdErr != nil {
		return cmdErr
	}

	if _, cmdErr = o.connectionRecord(KeylistCommandMethod, request.ID); cmdErr != nil {
		return cmdErr
	}

	keys, err := o.mediator.Keylist(request.ID)
	if err != nil {
		logutil.LogError(logger, CommandName, KeylistCommandMethod, err.Error(),
			logutil.CreateKeyValueString(connectionID, request.ID))

		return command.NewExecuteError(KeylistErrorCode, err)
	}

	if keys == nil {
		keys = []string{}
	}

	command.WriteNillableResponse(rw, &KeylistResponse{ConnectionID: request.ID, Keys: keys}, logger)

	logutil.LogDebug(logger, CommandName, KeylistCommandMethod, successString,
		logutil.CreateKeyValueString(connectionID, request.ID))

	return nil
}

// MailboxStatus returns the queue status of a recipient key.
func (o *Command) MailboxStatus(rw io.Writer, req io.Reader) command.Error {
	var request MailboxStatusRequest

	if err := command.DecodeRequest(req, &request, InvalidRequestErrorCode); err != nil {
		logutil.LogInfo(logger, CommandName, MailboxStatusCommandMethod, err.Error())
		return err
	}

	key, err := recipientkey.VerKey(request.RecipientKey)
	if err != nil {
		logutil.LogDebug(logger, CommandName, MailboxStatusCommandMethod, "invalid recipient key",
			logutil.CreateKeyValueString(recipientKey, request.RecipientKey))
		return command.NewValidationError(MissingRecipientKeyCode, err)
	}

	stats, err := o.mailbox.Stats(key)
	if err != nil {
		logutil.LogError(logger, CommandName, MailboxStatusCommandMethod, err.Error(),
			logutil.CreateKeyValueString(recipientKey, key))
		return command.NewExecuteError(MailboxStatusErrorCode, err)
	}

	res := &MailboxStatusResponse{
		RecipientKey: key,
		MessageCount: stats.MessageCount,
		TotalBytes:   stats.TotalBytes,
	}

	if stats.MessageCount > 0 {
		oldest, newest := stats.OldestReceivedAt, stats.NewestReceivedAt
		res.OldestReceivedAt, res.NewestReceivedAt = &oldest, &newest
	}

	command.WriteNillableResponse(rw, res, logger)

	logutil.LogDebug(logger, CommandName, MailboxStatusCommandMethod, successString,
		logutil.CreateKeyValueString(recipientKey, key))

	return nil
}

func (o *Command) connectionRecord(method, id string) (*connection.Record, command.Error) {
	record, err := o.connections.GetConnectionRecord(id)
	if errors.Is(err, connection.ErrNotFound) {
		logutil.LogWarn(logger, CommandName, method, err.Error(), logutil.CreateKeyValueString(connectionID, id))

		return nil, command.NewNotFoundError(ConnectionNotFoundCode, err)
	}

	if err != nil {
		logutil.LogError(logger, CommandName, method, err.Error(), logutil.CreateKeyValueString(connectionID, id))

		return nil, command.NewExecuteError(GetConnectionErrorCode, err)
	}

	return record, nil
}

func decodeConnectionID(req io.Reader, method string) (*ConnectionIDArg, command.Error) {
	var request ConnectionIDArg

	if err := command.DecodeRequest(req, &request, InvalidRequestErrorCode); err != nil {
		logutil.LogInfo(logger, CommandName, method, err.Error())
		return nil, err
	}

	if request.ID == "" {
		logutil.LogDebug(logger, CommandName, method, "missing connectionID")
		return nil, command.NewValidationError(MissingConnIDCode, errors.New("connectionID is mandatory"))
	}

	return &request, nil
}
