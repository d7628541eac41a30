// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the cluster bridge.
//
// Configuration is loaded from a single file specified by either the
// CLUSTERBRIDGE_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks and no automatic file
// search. A missing file is an error, not an empty configuration.
//
// Files ending in .json or .jsonc are read as JSON with comments and
// trailing commas permitted; everything else is YAML. Both forms use
// the same snake_case keys.
//
// Values from the file overlay [Default]. After loading, ${VAR} and
// ${VAR:-default} patterns in path fields are expanded from the
// process environment. No other environment variables override config
// values.
//
// Key exports:
//
//   - [Config] -- master struct with Cluster, Client, Executor, Socket, Log
//   - [Default] -- returns a Config with every field populated
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- reports every invalid field at once
//
// This package depends on no other bridge packages.
package config
