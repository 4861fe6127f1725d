// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import "github.com/holomush/canvas/pkg/wire"

// EventKind discriminates registry events.
type EventKind uint8

// Registry event kinds.
const (
	EventRegistered EventKind = iota + 1
	EventRequestReceived
	EventUnregistered
)

func (k EventKind) String() string {
	switch k {
	case EventRegistered:
		return "registered"
	case EventRequestReceived:
		return "request_received"
	case EventUnregistered:
		return "unregistered"
	default:
		return "unknown"
	}
}

// RegistryEvent is a lifecycle or request event flowing from an exchange
// loop (or the host surface) into the registry.
type RegistryEvent struct {
	Kind    EventKind
	ID      ID
	Plugin  *Plugin
	Request wire.Request
}

// Registered announces a newly accepted plugin.
func Registered(p *Plugin) RegistryEvent {
	return RegistryEvent{Kind: EventRegistered, ID: p.ID, Plugin: p}
}

// RequestReceived carries a request sent by the plugin with the given id.
func RequestReceived(id ID, req wire.Request) RegistryEvent {
	return RegistryEvent{Kind: EventRequestReceived, ID: id, Request: req}
}

// Unregistered announces that the plugin's connection has ended.
func Unregistered(id ID) RegistryEvent {
	return RegistryEvent{Kind: EventUnregistered, ID: id}
}
