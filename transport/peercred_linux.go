// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package transport

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

const peerCredentialsSupported = true

// peerUID returns the uid of the process on the other end of a Unix
// socket connection, as recorded by the kernel at connect time.
func peerUID(conn net.Conn) (uint32, error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return 0, fmt.Errorf("peer credentials need a unix socket, got %T", conn)
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("accessing socket: %w", err)
	}

	var credentials *unix.Ucred
	var credentialsErr error
	if err := raw.Control(func(fd uintptr) {
		credentials, credentialsErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return 0, fmt.Errorf("accessing socket: %w", err)
	}
	if credentialsErr != nil {
		return 0, fmt.Errorf("reading SO_PEERCRED: %w", credentialsErr)
	}
	return credentials.Uid, nil
}
