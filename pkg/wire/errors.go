// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package wire

import "errors"

// Connection errors. Every error returned by [Conn] wraps exactly one of
// these (a truncated frame wraps both ErrConnectionReset and ErrFraming) and
// all of them are terminal for the connection.
var (
	// ErrFraming means a frame header disagrees with the bytes that follow it.
	ErrFraming = errors.New("framing error")
	// ErrDecode means a complete payload did not decode to the expected message.
	ErrDecode = errors.New("decode error")
	// ErrConnectionReset means the peer went away part way through a frame.
	ErrConnectionReset = errors.New("connection reset by peer")
	// ErrIO means the underlying stream rejected a read or write.
	ErrIO = errors.New("i/o error")
)

// oops codes attached to connection errors.
const (
	CodeFraming         = "FRAMING_ERROR"
	CodeDecode          = "DECODE_ERROR"
	CodeConnectionReset = "CONNECTION_RESET"
	CodeIO              = "IO_ERROR"
)
