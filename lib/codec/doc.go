// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the single CBOR configuration used by the cluster
// bridge for everything that crosses a process boundary: response
// envelopes, failure diagnostics, and controller socket frames.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2), so a
// given value always produces the same bytes. Controllers rely on this
// when they compare or cache envelopes. Decoding ignores unknown
// fields, which lets either side add optional fields without a
// version bump.
//
// Callers import this package rather than fxamacker/cbor directly so
// the encoder options live in one place.
package codec
