// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/clusterbridge/executor"
)

// ErrClientClosed is returned by Call after Close or after the
// connection to the bridge is lost.
var ErrClientClosed = errors.New("transport client closed")

// RejectedError is returned by Call when the bridge refused the
// request without executing it.
type RejectedError struct {
	RequestID uint64
	Reason    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("request %d rejected: %s", e.RequestID, e.Reason)
}

// Client is the controller side of the socket protocol. It is safe for
// concurrent use; each Call gets its own request id and waits for the
// matching result.
type Client struct {
	controller string
	conn       net.Conn

	writeMu sync.Mutex
	nextID  atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan frame
	err     error

	done chan struct{}
}

// Dial connects to the bridge at socketPath and identifies as
// controller. It returns once the bridge has accepted the session.
func Dial(ctx context.Context, socketPath, controller string) (*Client, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", socketPath, err)
	}

	// Bound the handshake by ctx.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := writeFrame(conn, frame{Type: frameHello, Controller: controller}, writeTimeout); err != nil {
		conn.Close()
		return nil, err
	}
	reader := newFrameReader(conn, DefaultMaxFrameSize)
	reply, err := reader.read()
	if err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("waiting for ready: %w", err)
	}
	switch reply.Type {
	case frameReady:
	case frameError:
		conn.Close()
		return nil, fmt.Errorf("bridge refused session: %s", reply.Error)
	default:
		conn.Close()
		return nil, fmt.Errorf("unexpected %s frame during handshake", reply.Type)
	}

	client := &Client{
		controller: controller,
		conn:       conn,
		pending:    make(map[uint64]chan frame),
		done:       make(chan struct{}),
	}
	go client.readLoop(reader)
	return client, nil
}

// Controller returns the name this client identified as.
func (c *Client) Controller() string {
	return c.controller
}

// Call sends request and waits for its result. A Failure result is a
// successful Call; inspect the result's Kind. Cancelling ctx abandons
// the wait but not the request, whose result is discarded on arrival.
func (c *Client) Call(ctx context.Context, request executor.Request) (executor.AsyncResult, error) {
	id := c.nextID.Add(1)
	reply := make(chan frame, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return executor.AsyncResult{}, err
	}
	c.pending[id] = reply
	c.mu.Unlock()

	c.writeMu.Lock()
	err := writeFrame(c.conn, requestFrame(id, request), writeTimeout)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return executor.AsyncResult{}, err
	}

	select {
	case f := <-reply:
		if f.Type == frameRejected {
			return executor.AsyncResult{}, &RejectedError{RequestID: id, Reason: f.Error}
		}
		return executor.AsyncResult{
			Controller: c.controller,
			RequestID:  id,
			Kind:       f.Kind,
			Payload:    f.Payload,
		}, nil
	case <-c.done:
		c.forget(id)
		return executor.AsyncResult{}, c.closeErr()
	case <-ctx.Done():
		c.forget(id)
		return executor.AsyncResult{}, ctx.Err()
	}
}

// Close disconnects from the bridge. Pending calls fail with
// ErrClientClosed.
func (c *Client) Close() error {
	c.fail(ErrClientClosed)
	return c.conn.Close()
}

func (c *Client) readLoop(reader *frameReader) {
	for {
		f, err := reader.read()
		if err != nil {
			c.fail(fmt.Errorf("%w: %v", ErrClientClosed, err))
			c.conn.Close()
			return
		}
		switch f.Type {
		case frameResult, frameRejected:
			c.mu.Lock()
			reply, ok := c.pending[f.ID]
			delete(c.pending, f.ID)
			c.mu.Unlock()
			if ok {
				reply <- f
			}
		case frameError:
			c.fail(fmt.Errorf("%w: bridge error: %s", ErrClientClosed, f.Error))
			c.conn.Close()
			return
		}
	}
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	c.err = err
	close(c.done)
}

func (c *Client) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
