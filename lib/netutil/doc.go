// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides I/O helpers shared by the executor and the
// controller socket.
//
// [ReadBounded] reads an HTTP response body into memory but refuses to
// grow past a caller-chosen limit, returning [ErrBodyTooLarge] instead.
// The cluster bridge buffers every response it forwards, so an
// unbounded read would let one oversized response exhaust the host.
//
// [IsExpectedCloseError] classifies the errors a stream reader sees
// when its peer disconnects normally, so socket loops can tell a
// controller going away from a real fault.
package netutil
