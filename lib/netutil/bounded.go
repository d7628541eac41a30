// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxBodySize applies when a caller passes a non-positive
// limit to ReadBounded: 64 MiB.
const DefaultMaxBodySize int64 = 64 << 20

// ErrBodyTooLarge is returned by ReadBounded when the body has more
// bytes than the limit allows.
var ErrBodyTooLarge = errors.New("body exceeds size limit")

// ReadBounded reads body to EOF and returns its contents, or
// ErrBodyTooLarge (wrapped with the limit) if more than limit bytes
// are available. At most limit+1 bytes are ever buffered.
//
// sizeHint is the advertised length (Content-Length), or -1 when
// unknown. A hint larger than the limit fails immediately without
// reading.
func ReadBounded(body io.Reader, limit int64, sizeHint int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}
	if sizeHint > limit {
		return nil, fmt.Errorf("%w: content length %d, limit %d", ErrBodyTooLarge, sizeHint, limit)
	}

	var buffer bytes.Buffer
	if sizeHint > 0 {
		buffer.Grow(int(sizeHint))
	}
	read, err := buffer.ReadFrom(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if read > limit {
		return nil, fmt.Errorf("%w: limit %d", ErrBodyTooLarge, limit)
	}
	return buffer.Bytes(), nil
}
