// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"sync"
)

// CommandQueue is an unbounded FIFO of commands with one consumer.
// Producers never block: backpressure on controllers is applied by the
// executor's worker slots, not by the queue.
type CommandQueue struct {
	mu     sync.Mutex
	items  []Command
	closed bool

	// notify holds at most one pending wakeup for the consumer.
	notify chan struct{}
}

// NewCommandQueue returns an empty open queue.
func NewCommandQueue() *CommandQueue {
	return &CommandQueue{notify: make(chan struct{}, 1)}
}

// Push appends command. It returns ErrQueueClosed after Close.
func (q *CommandQueue) Push(command Command) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, command)
	q.mu.Unlock()
	q.wake()
	return nil
}

// Next implements Source. Commands pushed before Close are still
// returned after it.
func (q *CommandQueue) Next(ctx context.Context) (Command, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			command := q.items[0]
			q.items[0] = Command{}
			q.items = q.items[1:]
			if len(q.items) == 0 {
				// Drop the backing array so a burst does not pin
				// memory forever.
				q.items = nil
			}
			q.mu.Unlock()
			return command, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return Command{}, ErrSourceClosed
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			return Command{}, ctx.Err()
		}
	}
}

// Close stops accepting commands. Safe to call more than once.
func (q *CommandQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

// Len returns the number of queued commands.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *CommandQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
