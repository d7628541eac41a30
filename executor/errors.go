// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies why a command failed. The string values are
// part of the diagnostic wire format.
type ErrorKind string

const (
	KindURIConstruction  ErrorKind = "uri_construction"
	KindRequestExecution ErrorKind = "request_execution"
	KindBodyRead         ErrorKind = "body_read"
	KindBodyTooLarge     ErrorKind = "body_too_large"
	KindSerialization    ErrorKind = "serialization"
	KindResultDelivery   ErrorKind = "result_delivery"

	// KindCancelled is reported when the executor's context is
	// cancelled while the command is queued for a slot or running.
	KindCancelled ErrorKind = "cancelled"

	// KindInternal is a recovered panic inside a unit.
	KindInternal ErrorKind = "internal"
)

// Error is a failure tagged with its kind.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain. Bare
// context cancellation maps to KindCancelled and anything else to
// KindInternal.
func KindOf(err error) ErrorKind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindInternal
}

var (
	// ErrQueueClosed is returned by CommandQueue.Push after Close.
	ErrQueueClosed = errors.New("command queue closed")

	// ErrSourceClosed is returned by Source.Next once the source is
	// closed and drained. The executor loop exits cleanly on it.
	ErrSourceClosed = errors.New("command source closed")

	// ErrSinkClosed is returned by Sink.Send after Close, and by
	// Sink.Receive once the sink is closed and drained.
	ErrSinkClosed = errors.New("result sink closed")
)
