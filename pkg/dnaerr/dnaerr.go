// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

// Package dnaerr defines the stable integer error-code taxonomy that every
// public API completion callback surfaces (see spec §6/§7). Individual
// packages still keep their own sentinel errors; this package only maps
// them onto the wire-stable Code a caller across process/FFI boundaries can
// rely on.
package dnaerr

import "errors"

// Code is a stable integer error code. Values must never be renumbered once
// released, since external bindings persist them.
type Code int

const (
	OK Code = iota
	Init
	NotInitialized
	Network
	Database
	Timeout
	Busy
	NoIdentity
	AlreadyExists
	Permission
	PasswordRequired
	WrongPassword
	InvalidSignature
	InvalidArg
	NotFound
	Crypto
	Internal
	InvalidParam
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case Init:
		return "INIT"
	case NotInitialized:
		return "NOT_INITIALIZED"
	case Network:
		return "NETWORK"
	case Database:
		return "DATABASE"
	case Timeout:
		return "TIMEOUT"
	case Busy:
		return "BUSY"
	case NoIdentity:
		return "NO_IDENTITY"
	case AlreadyExists:
		return "ALREADY_EXISTS"
	case Permission:
		return "PERMISSION"
	case PasswordRequired:
		return "PASSWORD_REQUIRED"
	case WrongPassword:
		return "WRONG_PASSWORD"
	case InvalidSignature:
		return "INVALID_SIGNATURE"
	case InvalidArg:
		return "INVALID_ARG"
	case NotFound:
		return "NOT_FOUND"
	case Crypto:
		return "CRYPTO"
	case Internal:
		return "INTERNAL"
	case InvalidParam:
		return "INVALID_PARAM"
	default:
		return "UNKNOWN"
	}
}

// CodedError pairs a stable Code with the underlying Go error so internal
// logs keep full detail while callers across the API boundary only ever see
// the integer.
type CodedError struct {
	code Code
	err  error
}

// New wraps err with a stable Code. A nil err with a non-OK code is valid
// (some codes, like PasswordRequired, don't wrap an underlying error).
func New(code Code, err error) *CodedError {
	return &CodedError{code: code, err: err}
}

func (e *CodedError) Error() string {
	if e.err == nil {
		return e.code.String()
	}
	return e.code.String() + ": " + e.err.Error()
}

func (e *CodedError) Unwrap() error {
	return e.err
}

func (e *CodedError) Code() Code {
	if e == nil {
		return OK
	}
	return e.code
}

// CodeOf extracts the stable Code from any error, defaulting to Internal
// for errors that did not originate from this package and OK for nil.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.code
	}
	return Internal
}
