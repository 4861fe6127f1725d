// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build !linux

package plugin

import "net"

func peerPID(net.Conn) int {
	return 0
}
