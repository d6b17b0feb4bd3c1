// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package pdiffcopy implements parallel block-delta synchronization of a
// single large file between two hosts.
package pdiffcopy

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies a TransferError without requiring callers to match
// on error strings.
type ErrorKind int

const (
	// ErrIO covers disk read/write failures.
	ErrIO ErrorKind = iota
	// ErrSizeMismatch means the local and remote files have different sizes.
	ErrSizeMismatch
	// ErrUnknownHash means a hash_method name is not registered on one side.
	ErrUnknownHash
	// ErrProtocol covers malformed or out-of-order hash streams, unexpected
	// HTTP statuses, and truncated block responses.
	ErrProtocol
	// ErrNetwork covers transport-level failures talking to a remote endpoint.
	ErrNetwork
	// ErrNotFound means the remote path does not exist.
	ErrNotFound
	// ErrCancelled means the transfer was cancelled externally.
	ErrCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case ErrIO:
		return "IO_ERROR"
	case ErrSizeMismatch:
		return "SIZE_MISMATCH"
	case ErrUnknownHash:
		return "UNKNOWN_HASH"
	case ErrProtocol:
		return "PROTOCOL_ERROR"
	case ErrNetwork:
		return "NETWORK_ERROR"
	case ErrNotFound:
		return "NOT_FOUND"
	case ErrCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// TransferError wraps an underlying error with the operation it occurred in
// and the error kind the caller should branch on.
type TransferError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *TransferError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("pdiffcopy: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("pdiffcopy: %s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes the wrapped error to errors.Is/errors.As.
func (e *TransferError) Unwrap() error {
	return e.Err
}

// newErr builds a TransferError, wrapping cause with pkg/errors so a stack
// trace is attached the way the rest of this package reports failures.
func newErr(kind ErrorKind, op string, cause error) error {
	if cause == nil {
		return &TransferError{Kind: kind, Op: op}
	}
	return &TransferError{Kind: kind, Op: op, Err: errors.Wrapf(cause, "pdiffcopy: %s", op)}
}

// KindOf returns the ErrorKind carried by err, or a false ok if err was not
// produced by this package.
func KindOf(err error) (ErrorKind, bool) {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return 0, false
}
