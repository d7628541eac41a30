// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"sync"
)

// DefaultSinkCapacity is used when NewSink is given a non-positive
// capacity.
const DefaultSinkCapacity = 1024

// Sink carries results from execution units to the correlator. It is
// bounded: Send suspends while the buffer is full. Any number of
// goroutines may Send concurrently.
//
// The result channel itself is never closed, so a late Send can never
// panic. Close marks the sink closed instead: further Sends fail with
// ErrSinkClosed and Receive drains what is buffered before reporting
// ErrSinkClosed. A Send that returns nil is always drained, even when
// it races with Close.
type Sink struct {
	results chan AsyncResult

	// sendMu is held for reading by each Send. Close takes it for
	// writing between closing closed and sealed, so every Send that
	// got into the buffer has finished before Receive stops draining.
	sendMu    sync.RWMutex
	closed    chan struct{}
	sealed    chan struct{}
	closeOnce sync.Once
}

// NewSink returns a sink buffering up to capacity results.
func NewSink(capacity int) *Sink {
	if capacity <= 0 {
		capacity = DefaultSinkCapacity
	}
	return &Sink{
		results: make(chan AsyncResult, capacity),
		closed:  make(chan struct{}),
		sealed:  make(chan struct{}),
	}
}

// Send delivers result, waiting for buffer space if necessary. It
// returns ErrSinkClosed if the sink is or becomes closed first, or
// ctx.Err() if ctx ends first.
func (s *Sink) Send(ctx context.Context, result AsyncResult) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()

	// Checked first so a closed sink fails deterministically even
	// when the buffer has room.
	select {
	case <-s.closed:
		return ErrSinkClosed
	default:
	}

	select {
	case s.results <- result:
		return nil
	case <-s.closed:
		return ErrSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next result. After Close it keeps returning
// buffered results until none remain, then ErrSinkClosed.
func (s *Sink) Receive(ctx context.Context) (AsyncResult, error) {
	select {
	case result := <-s.results:
		return result, nil
	case <-s.sealed:
		select {
		case result := <-s.results:
			return result, nil
		default:
			return AsyncResult{}, ErrSinkClosed
		}
	case <-ctx.Done():
		return AsyncResult{}, ctx.Err()
	}
}

// Close stops the sink from accepting results and waits for Sends in
// progress to return. Safe to call more than once.
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.sendMu.Lock()
		close(s.sealed)
		s.sendMu.Unlock()
	})
}

// Done is closed when the sink is closed.
func (s *Sink) Done() <-chan struct{} {
	return s.closed
}

// Len returns the number of buffered results.
func (s *Sink) Len() int {
	return len(s.results)
}

// Cap returns the buffer capacity.
func (s *Sink) Cap() int {
	return cap(s.results)
}
