// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import "errors"

// Runtime errors. None of these end a connection; the bridge logs them and
// counts the dropped event.
var (
	// ErrRegistryInvariant means an event contradicts the registry state,
	// such as a second registration for a live id.
	ErrRegistryInvariant = errors.New("registry invariant violated")
	// ErrUnknownPlugin means no registered plugin has the given id.
	ErrUnknownPlugin = errors.New("unknown plugin")
	// ErrQueueFull means a plugin's outbound queue had no room for an event.
	ErrQueueFull = errors.New("outbound queue full")
)

// oops codes attached to runtime errors.
const (
	CodeRegistryInvariant = "REGISTRY_INVARIANT"
	CodeUnknownPlugin     = "UNKNOWN_PLUGIN"
	CodeQueueFull         = "QUEUE_FULL"
)
