// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build linux

package plugin

import (
	"net"

	"golang.org/x/sys/unix"
)

// peerPID returns the process id of the peer on a Unix socket, or 0 when it
// cannot be determined.
func peerPID(conn net.Conn) int {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return 0
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return 0
	}

	var pid int
	ctrlErr := raw.Control(func(fd uintptr) {
		cred, err := unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED) //nolint:gosec // fd fits in int
		if err == nil {
			pid = int(cred.Pid)
		}
	})
	if ctrlErr != nil {
		return 0
	}
	return pid
}
