// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"testing"
)

func TestReadBounded(t *testing.T) {
	t.Run("within limit", func(t *testing.T) {
		data, err := ReadBounded(strings.NewReader("hello"), 16, -1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(data) != "hello" {
			t.Fatalf("got %q, want %q", data, "hello")
		}
	})

	t.Run("exactly at limit", func(t *testing.T) {
		data, err := ReadBounded(strings.NewReader("12345678"), 8, 8)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(data) != 8 {
			t.Fatalf("got %d bytes, want 8", len(data))
		}
	})

	t.Run("one byte over", func(t *testing.T) {
		_, err := ReadBounded(strings.NewReader("123456789"), 8, -1)
		if !errors.Is(err, ErrBodyTooLarge) {
			t.Fatalf("expected ErrBodyTooLarge, got %v", err)
		}
	})

	t.Run("content length over limit fails without reading", func(t *testing.T) {
		reader := &countingReader{reader: strings.NewReader("x")}
		_, err := ReadBounded(reader, 8, 1<<30)
		if !errors.Is(err, ErrBodyTooLarge) {
			t.Fatalf("expected ErrBodyTooLarge, got %v", err)
		}
		if reader.reads != 0 {
			t.Fatalf("body was read %d times", reader.reads)
		}
	})

	t.Run("large stream stops at limit plus one", func(t *testing.T) {
		reader := &countingReader{reader: io.LimitReader(zeroReader{}, 1<<30)}
		_, err := ReadBounded(reader, 1024, -1)
		if !errors.Is(err, ErrBodyTooLarge) {
			t.Fatalf("expected ErrBodyTooLarge, got %v", err)
		}
		if reader.bytes > 1025 {
			t.Fatalf("read %d bytes, want at most 1025", reader.bytes)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		data, err := ReadBounded(bytes.NewReader(nil), 8, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(data) != 0 {
			t.Fatalf("expected empty, got %d bytes", len(data))
		}
	})

	t.Run("read error propagates", func(t *testing.T) {
		_, err := ReadBounded(&failReader{}, 8, -1)
		if err == nil || errors.Is(err, ErrBodyTooLarge) {
			t.Fatalf("expected read failure, got %v", err)
		}
	})
}

func TestIsExpectedCloseError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"eof", io.EOF, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"wrapped eof", fmt.Errorf("decoding frame: %w", io.EOF), true},
		{"closed", net.ErrClosed, true},
		{"broken pipe", &net.OpError{Op: "write", Err: syscall.EPIPE}, true},
		{"reset", &net.OpError{Op: "read", Err: syscall.ECONNRESET}, true},
		{"refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, false},
		{"other", errors.New("boom"), false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsExpectedCloseError(test.err); got != test.want {
				t.Errorf("IsExpectedCloseError(%v) = %v, want %v", test.err, got, test.want)
			}
		})
	}
}

type countingReader struct {
	reader io.Reader
	reads  int
	bytes  int
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.reads++
	n, err := c.reader.Read(p)
	c.bytes += n
	return n, err
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

// failReader always returns an error on Read.
type failReader struct{}

func (*failReader) Read([]byte) (int, error) {
	return 0, fmt.Errorf("simulated read failure")
}
