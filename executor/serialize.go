// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bureau-foundation/clusterbridge/lib/envelope"
	"github.com/bureau-foundation/clusterbridge/lib/netutil"
)

// SerializerConfig configures a Serializer.
type SerializerConfig struct {
	// MaxBodySize caps how many body bytes are buffered per response.
	// Zero means netutil.DefaultMaxBodySize.
	MaxBodySize int64

	// Envelope controls body compression in the encoded envelope.
	Envelope envelope.Options
}

// Serializer turns HTTP responses into encoded envelopes. It holds no
// mutable state and is safe for concurrent use.
type Serializer struct {
	maxBodySize int64
	options     envelope.Options
}

// NewSerializer returns a Serializer for config.
func NewSerializer(config SerializerConfig) *Serializer {
	maxBodySize := config.MaxBodySize
	if maxBodySize <= 0 {
		maxBodySize = netutil.DefaultMaxBodySize
	}
	return &Serializer{maxBodySize: maxBodySize, options: config.Envelope}
}

// MaxBodySize returns the configured body limit.
func (s *Serializer) MaxBodySize() int64 {
	return s.maxBodySize
}

// Serialize reads the whole body of response and encodes the response
// as an envelope. It does not close the body. Errors are *Error values
// of kind KindBodyTooLarge, KindBodyRead, or KindSerialization.
func (s *Serializer) Serialize(response *http.Response) ([]byte, error) {
	body, err := netutil.ReadBounded(response.Body, s.maxBodySize, response.ContentLength)
	if err != nil {
		if errors.Is(err, netutil.ErrBodyTooLarge) {
			return nil, &Error{Kind: KindBodyTooLarge, Err: err}
		}
		return nil, &Error{Kind: KindBodyRead, Err: fmt.Errorf("reading response body: %w", err)}
	}

	responseEnvelope, err := envelope.FromHTTP(response.StatusCode, response.Header, body)
	if err != nil {
		return nil, &Error{Kind: KindSerialization, Err: err}
	}
	data, err := envelope.Encode(responseEnvelope, s.options)
	if err != nil {
		return nil, &Error{Kind: KindSerialization, Err: err}
	}
	return data, nil
}
