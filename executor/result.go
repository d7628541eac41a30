// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"fmt"

	"github.com/bureau-foundation/clusterbridge/lib/codec"
)

// ResultKind says whether a command produced a response.
type ResultKind string

const (
	// ResultSuccess means the cluster answered. Any HTTP status,
	// including 4xx and 5xx, is a success at this layer. The payload
	// is an encoded envelope.
	ResultSuccess ResultKind = "success"

	// ResultFailure means no response could be produced. The payload
	// is an encoded Diagnostic.
	ResultFailure ResultKind = "failure"
)

// AsyncResult is the single outcome delivered for a command.
type AsyncResult struct {
	Controller string
	RequestID  uint64
	Kind       ResultKind
	Payload    []byte
}

// ID returns the result's correlation identity.
func (r AsyncResult) ID() CorrelationID {
	return CorrelationID{Controller: r.Controller, RequestID: r.RequestID}
}

// Diagnostic is the failure payload.
type Diagnostic struct {
	Kind    ErrorKind `cbor:"kind"`
	Message string    `cbor:"message"`
	Method  string    `cbor:"method,omitempty"`
	URI     string    `cbor:"uri,omitempty"`
}

// DecodeDiagnostic parses the payload of a Failure result.
func DecodeDiagnostic(payload []byte) (Diagnostic, error) {
	var diagnostic Diagnostic
	if err := codec.Unmarshal(payload, &diagnostic); err != nil {
		return Diagnostic{}, fmt.Errorf("decoding diagnostic: %w", err)
	}
	return diagnostic, nil
}

// failureResult builds the Failure result for command. target is the
// rewritten URI when the failure happened after rewriting.
func failureResult(command Command, target string, err error) AsyncResult {
	diagnostic := Diagnostic{
		Kind:    KindOf(err),
		Message: err.Error(),
		Method:  command.Request.Method,
		URI:     target,
	}
	payload, marshalErr := codec.Marshal(diagnostic)
	if marshalErr != nil {
		// Strings only; this cannot fail in practice, but the caller
		// must still get something readable.
		payload = []byte(string(diagnostic.Kind) + ": " + diagnostic.Message)
	}
	return AsyncResult{
		Controller: command.Controller,
		RequestID:  command.RequestID,
		Kind:       ResultFailure,
		Payload:    payload,
	}
}
