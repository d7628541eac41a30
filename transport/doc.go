// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport connects controllers to the cluster bridge over a
// local Unix socket.
//
// A connection carries a stream of CBOR frames. CBOR is
// self-delimiting, so frames need no length prefix; each inbound frame
// is bounded by a configurable size limit. The controller opens with
// hello naming itself, the bridge answers ready, and from then on the
// controller sends request frames whenever it likes. Every request is
// answered by exactly one frame carrying the same id: result when the
// executor produced an outcome (success or failure), or rejected when
// the request never reached the executor because its id is already
// outstanding for that controller or the bridge is shutting down.
//
// [Server] owns the socket and one session per connected controller
// name. Request ids are scoped per controller: two controllers may use
// the same id at the same time, one controller may not. [Router] is
// the consumer of the executor's result sink and writes each result to
// the session that submitted it; results for a session that has
// disconnected are logged and dropped. Outstanding ids outlive the
// session, so a controller that reconnects cannot reuse an id whose
// command is still running.
//
// When allowed uids are configured, the server checks the peer's uid
// with SO_PEERCRED before reading anything. Platforms without peer
// credentials skip the check.
//
// [Client] is the controller side, used by clusterbridge-call and by
// tests.
package transport
