// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clusterclient builds the HTTP client the bridge uses to reach
// the cluster API server.
//
// One client is built at startup and shared by every request. Its
// transport pools connections to the API server, speaks TLS with the
// configured CA bundle and optional client certificate, and never
// follows redirects: a 3xx from the API server is a response to be
// returned to the controller, not an instruction to the bridge.
//
// When a bearer token file is configured, requests without an
// Authorization header get one. The file is re-read whenever its
// modification time changes so projected service account tokens keep
// working across rotation.
package clusterclient
