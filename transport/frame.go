// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/bureau-foundation/clusterbridge/executor"
	"github.com/bureau-foundation/clusterbridge/lib/codec"
	"github.com/bureau-foundation/clusterbridge/lib/envelope"
)

// Frame types. A controller sends hello once, then any number of
// requests. The bridge answers hello with ready (or error), and each
// request with exactly one result or rejected frame.
const (
	frameHello    = "hello"
	frameRequest  = "request"
	frameReady    = "ready"
	frameResult   = "result"
	frameRejected = "rejected"
	frameError    = "error"
)

// DefaultMaxFrameSize bounds one frame when no limit is configured.
const DefaultMaxFrameSize int64 = 64 << 20

// ErrFrameTooLarge is returned when a peer sends a frame over the
// configured limit. The connection cannot be resynchronized afterwards.
var ErrFrameTooLarge = errors.New("frame exceeds size limit")

// frame is the single wire shape for every message. Fields not used by
// a frame type are omitted.
type frame struct {
	Type       string                 `cbor:"type"`
	Controller string                 `cbor:"controller,omitempty"`
	ID         uint64                 `cbor:"id,omitempty"`
	Method     string                 `cbor:"method,omitempty"`
	URI        string                 `cbor:"uri,omitempty"`
	Headers    []envelope.HeaderField `cbor:"headers,omitempty"`
	Body       []byte                 `cbor:"body,omitempty"`
	Kind       executor.ResultKind    `cbor:"kind,omitempty"`
	Payload    []byte                 `cbor:"payload,omitempty"`
	Error      string                 `cbor:"error,omitempty"`
}

func requestFrame(id uint64, request executor.Request) frame {
	return frame{
		Type:    frameRequest,
		ID:      id,
		Method:  request.Method,
		URI:     request.URI,
		Headers: request.Headers,
		Body:    request.Body,
	}
}

func (f frame) request() executor.Request {
	return executor.Request{
		Method:  f.Method,
		URI:     f.URI,
		Headers: f.Headers,
		Body:    f.Body,
	}
}

// frameLimiter caps the bytes read for one frame. Call reset before
// decoding each frame. The decoder reads ahead, so the bound is
// approximate by at most one read buffer.
type frameLimiter struct {
	reader    io.Reader
	limit     int64
	remaining int64
}

func newFrameLimiter(reader io.Reader, limit int64) *frameLimiter {
	if limit <= 0 {
		limit = DefaultMaxFrameSize
	}
	return &frameLimiter{reader: reader, limit: limit, remaining: limit}
}

func (l *frameLimiter) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		return 0, ErrFrameTooLarge
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.reader.Read(p)
	l.remaining -= int64(n)
	return n, err
}

func (l *frameLimiter) reset() {
	l.remaining = l.limit
}

// frameReader decodes successive frames from a stream.
type frameReader struct {
	limiter *frameLimiter
	decoder *codec.Decoder
}

func newFrameReader(reader io.Reader, limit int64) *frameReader {
	limiter := newFrameLimiter(reader, limit)
	return &frameReader{limiter: limiter, decoder: codec.NewDecoder(limiter)}
}

func (r *frameReader) read() (frame, error) {
	r.limiter.reset()
	var f frame
	if err := r.decoder.Decode(&f); err != nil {
		return frame{}, err
	}
	if f.Type == "" {
		return frame{}, errors.New("frame has no type")
	}
	return f, nil
}

// writeFrame encodes f to conn under a write deadline. Callers
// serialize concurrent writes.
func writeFrame(conn net.Conn, f frame, timeout time.Duration) error {
	if timeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(timeout))
		defer conn.SetWriteDeadline(time.Time{})
	}
	if err := codec.NewEncoder(conn).Encode(f); err != nil {
		return fmt.Errorf("writing %s frame: %w", f.Type, err)
	}
	return nil
}
