// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package executor runs outbound HTTP requests against a cluster on
// behalf of controllers that have no network stack of their own.
//
// A controller submits a [Command]: an HTTP request plus the
// correlation identity (controller name, request id) it will use to
// match the answer. The [Executor] takes commands one at a time from a
// [Source], usually a [CommandQueue], and gives each its own goroutine
// so a slow request never holds up the next one. A fixed number of
// worker slots bounds how many requests run at once; when all slots
// are busy the loop waits for one to free up while new commands keep
// queueing.
//
// Each unit of work:
//
//  1. rewrites the request URI onto the cluster base with [Rewriter]
//     (only path and query survive from the original),
//  2. executes it with the shared HTTP client under a per-request
//     timeout,
//  3. turns the response into an envelope with [Serializer], reading
//     at most the configured number of body bytes, and
//  4. sends exactly one [AsyncResult] to the [Sink].
//
// Every failure along the way becomes a Failure result whose payload
// is an encoded [Diagnostic] naming the [ErrorKind]. Panics inside a
// unit are recovered into KindInternal failures. The only outcome that
// cannot travel through the sink is a failure of the sink itself
// (KindResultDelivery); that is logged and counted in [Stats].
//
// Run returns when the source closes, without waiting for units that
// are still executing. Call [Executor.Wait] before closing the sink to
// let them deliver.
package executor
