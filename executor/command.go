// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/clusterbridge/lib/envelope"
)

// CorrelationID binds a command to its result. Request ids are unique
// among one controller's outstanding requests; two controllers may
// use the same id.
type CorrelationID struct {
	Controller string
	RequestID  uint64
}

func (c CorrelationID) String() string {
	return fmt.Sprintf("%s#%d", c.Controller, c.RequestID)
}

// Request is the HTTP request a controller wants executed. URI may be
// origin-form ("/api/v1/pods?limit=5") or absolute; only its path and
// query are used. Headers keep their order and repeated names.
type Request struct {
	Method  string
	URI     string
	Headers []envelope.HeaderField
	Body    []byte
}

// Command is one request submitted by a controller.
type Command struct {
	Controller string
	RequestID  uint64
	Request    Request
}

// ID returns the command's correlation identity.
func (c Command) ID() CorrelationID {
	return CorrelationID{Controller: c.Controller, RequestID: c.RequestID}
}

// Source yields commands to the executor loop. Next blocks until a
// command is available, the source is closed and drained (returning
// ErrSourceClosed), or ctx is done (returning ctx.Err()).
type Source interface {
	Next(ctx context.Context) (Command, error)
}

// ChannelSource adapts a channel to Source. Closing the channel closes
// the source once buffered commands are consumed.
type ChannelSource <-chan Command

// Next implements Source.
func (c ChannelSource) Next(ctx context.Context) (Command, error) {
	select {
	case command, ok := <-c:
		if !ok {
			return Command{}, ErrSourceClosed
		}
		return command, nil
	case <-ctx.Done():
		return Command{}, ctx.Err()
	}
}
