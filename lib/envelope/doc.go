// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package envelope defines the binary form in which the cluster bridge
// hands an HTTP response back to a controller.
//
// A [ResponseEnvelope] holds the status code, the response headers as
// an ordered multimap, and the fully buffered body. [Encode] turns it
// into a single CBOR map using Core Deterministic Encoding:
//
//	{
//	  "v":        1,              format version
//	  "status":   200,
//	  "headers":  [[name, value], ...],
//	  "encoding": "none" | "zstd" | "lz4",
//	  "size":     uncompressed body length,
//	  "digest":   BLAKE3 keyed hash of the uncompressed body,
//	  "body":     body bytes, compressed per "encoding"
//	}
//
// The version field is the only negotiation the format needs: a
// decoder that sees a version it does not know rejects the envelope.
// Equal envelopes encoded with equal [Options] produce equal bytes.
//
// Header values are byte strings rather than text because HTTP allows
// obs-text in field values. Repeated header names are kept as separate
// entries in the order the server sent them.
//
// Envelopes built by [FromHTTP] list header names in sorted canonical
// order, not wire order. net/http hands responses over as an
// [net/http.Header] map, which does not record the order of distinct
// names, so the order cannot be reproduced. Only the relative order of
// values under one name is preserved.
//
// [Decode] bounds the uncompressed body size before allocating;
// [DecodeLimit] takes an explicit bound.
package envelope
