/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package command

// Type classifies a command error; the REST layer maps it to an HTTP status.
type Type int32

const (
	// ValidationError marks a malformed or incomplete request.
	ValidationError Type = iota
	// ExecuteError marks a failure while running a valid request.
	ExecuteError
	// NotFoundError marks a request for a connection, key or message the mediator does not hold.
	NotFoundError
)

// Code identifies a command error inside its Group.
type Code int32

// UnknownStatus is the code of errors raised outside any command group.
const UnknownStatus Code = 0

// Group is the first code of a command error range, a multiple of 1000.
type Group int32

// Mediator is the error group of the mediator admin commands.
const Mediator Group = 2000

// Error is a command failure carrying its code and type. A nil Error means success.
type Error interface {
	error
	Code() Code
	Type() Type
}

// NewValidationError wraps err as a ValidationError.
func NewValidationError(code Code, err error) Error {
	return &commandError{error: err, code: code, errType: ValidationError}
}

// NewExecuteError wraps err as an ExecuteError.
func NewExecuteError(code Code, err error) Error {
	return &commandError{error: err, code: code, errType: ExecuteError}
}

// NewNotFoundError wraps err as a NotFoundError.
func NewNotFoundError(code Code, err error) Error {
	return &commandError{error: err, code: code, errType: NotFoundError}
}

type commandError struct {
	error
	code    Code
	errType Type
}

func (c *commandError) Code() Code { return c.code }

func (c *commandError) Type() Type { return c.errType }
