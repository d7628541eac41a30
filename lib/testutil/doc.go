// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern so executor and transport tests never hang when a result
// goes missing; a missing result is exactly the defect those tests
// look for.
//
// [SocketPath] returns a short Unix socket path. sun_path is limited to
// 108 bytes and t.TempDir() paths can exceed that.
//
// [UniqueID] and [UniqueRequestID] generate identifiers that do not
// collide across tests sharing a bridge.
package testutil
