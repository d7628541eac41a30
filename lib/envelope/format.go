// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/bureau-foundation/clusterbridge/lib/codec"
	"github.com/bureau-foundation/clusterbridge/lib/netutil"
)

// FormatVersion is written into every envelope. Decode rejects any
// other value.
const FormatVersion uint8 = 1

// DefaultMinCompressSize is the smallest body Encode will try to
// compress. Below this the compression frame overhead rarely pays off.
const DefaultMinCompressSize = 1024

// Options controls encoding. The zero value encodes bodies
// uncompressed.
type Options struct {
	Compression Compression

	// MinCompressSize is the body length at which compression is
	// attempted. Zero means DefaultMinCompressSize.
	MinCompressSize int
}

// ErrUnsupportedVersion is returned by Decode for an envelope written
// by an unknown format version.
var ErrUnsupportedVersion = errors.New("unsupported envelope version")

// ErrDigestMismatch is returned by Decode when the body does not match
// the recorded digest.
var ErrDigestMismatch = errors.New("envelope body digest mismatch")

type wireEnvelope struct {
	Version  uint8         `cbor:"v"`
	Status   uint16        `cbor:"status"`
	Headers  []HeaderField `cbor:"headers"`
	Encoding Compression   `cbor:"encoding"`
	Size     uint64        `cbor:"size"`
	Digest   []byte        `cbor:"digest"`
	Body     []byte        `cbor:"body"`
}

// Encode serializes envelope. Nil and empty header lists or bodies
// encode identically.
func Encode(envelope ResponseEnvelope, options Options) ([]byte, error) {
	compression := options.Compression
	if compression == "" {
		compression = CompressionNone
	}
	minimum := options.MinCompressSize
	if minimum <= 0 {
		minimum = DefaultMinCompressSize
	}

	body := envelope.Body
	if body == nil {
		body = []byte{}
	}
	headers := envelope.Headers
	if headers == nil {
		headers = []HeaderField{}
	}

	wire := wireEnvelope{
		Version:  FormatVersion,
		Status:   envelope.StatusCode,
		Headers:  headers,
		Encoding: CompressionNone,
		Size:     uint64(len(body)),
		Digest:   Digest(body),
		Body:     body,
	}

	if compression != CompressionNone && len(body) >= minimum {
		compressed, err := compress(body, compression)
		switch {
		case err == nil:
			wire.Encoding = compression
			wire.Body = compressed
		case errors.Is(err, errIncompressible):
		default:
			return nil, err
		}
	}

	data, err := codec.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	return data, nil
}

// Decode parses and verifies an envelope produced by Encode. The
// returned body is always uncompressed. Envelopes recording a body
// larger than netutil.DefaultMaxBodySize are rejected; use DecodeLimit
// for a different bound.
func Decode(data []byte) (ResponseEnvelope, error) {
	return DecodeLimit(data, netutil.DefaultMaxBodySize)
}

// DecodeLimit is Decode with an explicit bound on the uncompressed body
// size. The recorded size is checked against maxSize before any buffer
// is allocated; a larger envelope fails with netutil.ErrBodyTooLarge.
// A non-positive maxSize means netutil.DefaultMaxBodySize.
func DecodeLimit(data []byte, maxSize int64) (ResponseEnvelope, error) {
	if maxSize <= 0 {
		maxSize = netutil.DefaultMaxBodySize
	}
	var wire wireEnvelope
	if err := codec.Unmarshal(data, &wire); err != nil {
		return ResponseEnvelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	if wire.Version != FormatVersion {
		return ResponseEnvelope{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, wire.Version)
	}
	if wire.Size > uint64(maxSize) {
		return ResponseEnvelope{}, fmt.Errorf("envelope records a %d byte body, limit %d: %w",
			wire.Size, maxSize, netutil.ErrBodyTooLarge)
	}
	encoding, err := ParseCompression(string(wire.Encoding))
	if err != nil {
		return ResponseEnvelope{}, err
	}

	body, err := decompress(wire.Body, encoding, int(wire.Size))
	if err != nil {
		return ResponseEnvelope{}, err
	}
	if !bytes.Equal(Digest(body), wire.Digest) {
		return ResponseEnvelope{}, ErrDigestMismatch
	}

	return ResponseEnvelope{
		StatusCode: wire.Status,
		Headers:    wire.Headers,
		Body:       body,
	}, nil
}
