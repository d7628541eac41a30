// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bureau-foundation/clusterbridge/executor"
)

// ResultSource yields completed results. *executor.Sink implements it.
type ResultSource interface {
	Receive(ctx context.Context) (executor.AsyncResult, error)
}

// Router moves results from the executor's sink to controller
// sessions. It is the sink's only consumer.
type Router struct {
	source ResultSource
	server *Server
	logger *slog.Logger
}

// NewRouter returns a Router delivering from source to server.
func NewRouter(source ResultSource, server *Server, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{source: source, server: server, logger: logger}
}

// Run delivers results until the source is closed and drained
// (returning nil) or ctx is done. A result whose controller is gone is
// logged and dropped; nothing else is waiting for it.
func (r *Router) Run(ctx context.Context) error {
	for {
		result, err := r.source.Receive(ctx)
		if err != nil {
			if errors.Is(err, executor.ErrSinkClosed) {
				return nil
			}
			return err
		}

		if err := r.server.Deliver(result); err != nil {
			r.logger.Warn("dropping result",
				"controller", result.Controller,
				"request_id", result.RequestID,
				"result", result.Kind,
				"error", err,
			)
		}
	}
}
