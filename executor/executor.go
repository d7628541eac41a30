// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/clusterbridge/lib/version"
)

const (
	// DefaultWorkers is the number of requests that may execute at
	// once when Config.Workers is zero.
	DefaultWorkers = 64

	// DefaultRequestTimeout bounds one request, from sending it to the
	// last body byte, when Config.RequestTimeout is zero.
	DefaultRequestTimeout = 30 * time.Second
)

// Doer executes one HTTP request. *http.Client satisfies it and must be
// safe for concurrent use, as it is shared by every unit.
type Doer interface {
	Do(request *http.Request) (*http.Response, error)
}

// Config holds the executor's collaborators. Everything here is
// constructed once at startup and shared read-only by all units.
type Config struct {
	Rewriter   *Rewriter
	Client     Doer
	Serializer *Serializer
	Sink       *Sink

	// Workers is the admission limit on concurrently executing
	// requests.
	Workers int

	// RequestTimeout bounds each request including its body read.
	RequestTimeout time.Duration

	Logger *slog.Logger
}

// Stats is a snapshot of executor counters.
type Stats struct {
	Received         uint64
	Succeeded        uint64
	Failed           uint64
	DeliveryFailures uint64
	InFlight         int64
}

// Executor is the command execution loop. See the package
// documentation for the lifecycle.
type Executor struct {
	rewriter   *Rewriter
	client     Doer
	serializer *Serializer
	sink       *Sink
	timeout    time.Duration
	logger     *slog.Logger

	// slots is the admission semaphore: one token per running unit.
	slots chan struct{}

	// units tracks every goroutine that owes a result to the sink.
	units sync.WaitGroup

	received         atomic.Uint64
	succeeded        atomic.Uint64
	failed           atomic.Uint64
	deliveryFailures atomic.Uint64
	inFlight         atomic.Int64
}

// New validates config and returns an Executor.
func New(config Config) (*Executor, error) {
	if config.Rewriter == nil {
		return nil, errors.New("executor: Rewriter is required")
	}
	if config.Client == nil {
		return nil, errors.New("executor: Client is required")
	}
	if config.Sink == nil {
		return nil, errors.New("executor: Sink is required")
	}
	if config.Workers < 0 {
		return nil, fmt.Errorf("executor: Workers must not be negative, got %d", config.Workers)
	}
	if config.RequestTimeout < 0 {
		return nil, fmt.Errorf("executor: RequestTimeout must not be negative, got %v", config.RequestTimeout)
	}

	serializer := config.Serializer
	if serializer == nil {
		serializer = NewSerializer(SerializerConfig{})
	}
	workers := config.Workers
	if workers == 0 {
		workers = DefaultWorkers
	}
	timeout := config.RequestTimeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		rewriter:   config.Rewriter,
		client:     config.Client,
		serializer: serializer,
		sink:       config.Sink,
		timeout:    timeout,
		logger:     logger,
		slots:      make(chan struct{}, workers),
	}, nil
}

// Run consumes commands from source until it is closed (returning nil)
// or ctx is done (returning ctx.Err()). Each command runs in its own
// goroutine once a worker slot is free. Run does not wait for running
// units; use Wait.
//
// Cancelling ctx also cancels running units, which then deliver
// KindCancelled failures. A command already taken from the source but
// still waiting for a slot is resolved the same way. Commands left in
// the source are not touched.
func (e *Executor) Run(ctx context.Context, source Source) error {
	e.logger.Info("request executor started",
		"workers", cap(e.slots),
		"request_timeout", e.timeout,
		"max_body_size", e.serializer.MaxBodySize(),
		"cluster", e.rewriter.Base(),
	)

	for {
		command, err := source.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrSourceClosed) {
				e.logger.Info("command source closed, request executor stopping",
					"in_flight", e.inFlight.Load(),
				)
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("receiving command: %w", err)
		}
		e.received.Add(1)

		select {
		case e.slots <- struct{}{}:
		case <-ctx.Done():
			e.units.Add(1)
			go func() {
				defer e.units.Done()
				e.deliver(ctx, failureResult(command, "",
					&Error{Kind: KindCancelled, Err: fmt.Errorf("cancelled before execution: %w", ctx.Err())}))
			}()
			return ctx.Err()
		}

		e.units.Add(1)
		e.inFlight.Add(1)
		go e.execute(ctx, command)
	}
}

// Wait blocks until every started unit has finished delivering.
func (e *Executor) Wait() {
	e.units.Wait()
}

// Stats returns a snapshot of the executor counters.
func (e *Executor) Stats() Stats {
	return Stats{
		Received:         e.received.Load(),
		Succeeded:        e.succeeded.Load(),
		Failed:           e.failed.Load(),
		DeliveryFailures: e.deliveryFailures.Load(),
		InFlight:         e.inFlight.Load(),
	}
}

func (e *Executor) execute(ctx context.Context, command Command) {
	defer func() {
		<-e.slots
		e.inFlight.Add(-1)
		e.units.Done()
	}()

	result := e.process(ctx, command)
	e.deliver(ctx, result)
}

// process takes a command through rewrite, execution, and
// serialization. It always returns a result; panics become
// KindInternal failures.
func (e *Executor) process(ctx context.Context, command Command) (result AsyncResult) {
	logger := e.logger.With(
		"controller", command.Controller,
		"request_id", command.RequestID,
	)

	target := ""
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("request unit panicked",
				"panic", recovered,
				"stack", string(debug.Stack()),
			)
			result = failureResult(command, target,
				&Error{Kind: KindInternal, Err: fmt.Errorf("panic: %v", recovered)})
		}
	}()

	logger.Debug("request received",
		"method", command.Request.Method,
		"uri", command.Request.URI,
	)

	targetURL, err := e.rewriter.Rewrite(command.Request.URI)
	if err != nil {
		logger.Warn("request URI rejected", "uri", command.Request.URI, "error", err)
		return failureResult(command, "", err)
	}
	target = targetURL.String()
	logger.Debug("request rewritten", "target", target)

	requestContext, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	outbound, err := buildRequest(requestContext, command.Request, targetURL)
	if err != nil {
		return failureResult(command, target, err)
	}

	startTime := time.Now()
	logger.Debug("request executing", "method", outbound.Method, "target", target)
	response, err := e.client.Do(outbound)
	if err != nil {
		err = e.classify(ctx, requestContext, KindRequestExecution, err)
		logger.Warn("request failed",
			"method", outbound.Method,
			"target", target,
			"duration", time.Since(startTime),
			"error", err,
		)
		return failureResult(command, target, err)
	}
	defer response.Body.Close()

	payload, err := e.serializer.Serialize(response)
	if err != nil {
		if KindOf(err) == KindBodyRead {
			err = e.classify(ctx, requestContext, KindBodyRead, err)
		}
		logger.Warn("response serialization failed",
			"method", outbound.Method,
			"target", target,
			"status", response.StatusCode,
			"duration", time.Since(startTime),
			"error", err,
		)
		return failureResult(command, target, err)
	}

	logger.Debug("request completed",
		"method", outbound.Method,
		"target", target,
		"status", response.StatusCode,
		"bytes", len(payload),
		"duration", time.Since(startTime),
	)
	return AsyncResult{
		Controller: command.Controller,
		RequestID:  command.RequestID,
		Kind:       ResultSuccess,
		Payload:    payload,
	}
}

// classify tags a transport or body error. Cancellation of the
// executor context wins over everything; the per-request deadline is
// reported as a request execution timeout wherever it struck.
func (e *Executor) classify(ctx, requestContext context.Context, kind ErrorKind, err error) error {
	if ctx.Err() != nil {
		return &Error{Kind: KindCancelled, Err: err}
	}
	if errors.Is(requestContext.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindRequestExecution, Err: fmt.Errorf("timed out after %v: %w", e.timeout, err)}
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return err
	}
	return &Error{Kind: kind, Err: err}
}

// deliver hands result to the sink. Delivery is detached from ctx so
// cancelled units still report; it ends only when the sink accepts the
// result or is closed.
func (e *Executor) deliver(ctx context.Context, result AsyncResult) {
	if result.Kind == ResultSuccess {
		e.succeeded.Add(1)
	} else {
		e.failed.Add(1)
	}

	if err := e.sink.Send(context.WithoutCancel(ctx), result); err != nil {
		e.deliveryFailures.Add(1)
		e.logger.Error("result delivery failed",
			"controller", result.Controller,
			"request_id", result.RequestID,
			"result", result.Kind,
			"error", &Error{Kind: KindResultDelivery, Err: err},
		)
		return
	}
	e.logger.Debug("result delivered",
		"controller", result.Controller,
		"request_id", result.RequestID,
		"result", result.Kind,
	)
}

// buildRequest creates the outbound request. Header order is kept;
// hop-by-hop headers, Host, and Content-Length are dropped because the
// client derives them for the new destination.
func buildRequest(ctx context.Context, request Request, target *url.URL) (*http.Request, error) {
	method := request.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader = http.NoBody
	if len(request.Body) > 0 {
		body = bytes.NewReader(request.Body)
	}

	outbound, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, &Error{Kind: KindRequestExecution, Err: fmt.Errorf("building request: %w", err)}
	}

	for _, field := range request.Headers {
		if isHopByHopHeader(field.Name) || strings.EqualFold(field.Name, "Host") ||
			strings.EqualFold(field.Name, "Content-Length") {
			continue
		}
		outbound.Header.Add(field.Name, string(field.Value))
	}
	if outbound.Header.Get("User-Agent") == "" {
		outbound.Header.Set("User-Agent", version.UserAgent())
	}
	return outbound, nil
}

var hopByHopHeaders = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"proxy-connection":    true,
	"te":                  true,
	"trailer":             true,
	"transfer-encoding":   true,
	"upgrade":             true,
}

func isHopByHopHeader(name string) bool {
	return hopByHopHeaders[strings.ToLower(name)]
}
