// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package wire

import (
	"github.com/samber/oops"

	"github.com/holomush/canvas/pkg/view"
)

// EventKind discriminates host-to-plugin events.
type EventKind uint8

// Event kinds.
const (
	// EventRenderRequested asks the plugin to recompute its view.
	EventRenderRequested EventKind = iota + 1
	// EventInputDelivered carries an application message for the plugin.
	EventInputDelivered
	// EventThemeChanged carries the current host theme.
	EventThemeChanged
)

// String returns the event kind name used in logs and metrics.
func (k EventKind) String() string {
	switch k {
	case EventRenderRequested:
		return "render_requested"
	case EventInputDelivered:
		return "input_delivered"
	case EventThemeChanged:
		return "theme_changed"
	default:
		return "unknown"
	}
}

// Event is a message sent from the host to one plugin.
type Event struct {
	_     struct{} `cbor:",toarray"`
	Kind  EventKind
	Input []byte
	Theme *view.Theme
}

// RenderRequested returns an event asking for a fresh view.
func RenderRequested() Event {
	return Event{Kind: EventRenderRequested}
}

// InputDelivered returns an event carrying opaque application bytes.
func InputDelivered(msg []byte) Event {
	return Event{Kind: EventInputDelivered, Input: msg}
}

// ThemeChanged returns an event carrying a theme snapshot.
func ThemeChanged(theme view.Theme) Event {
	return Event{Kind: EventThemeChanged, Theme: &theme}
}

// Validate checks that the fields required by Kind are present.
func (e *Event) Validate() error {
	errb := oops.In("wire").Code(CodeDecode).With("kind", e.Kind.String())
	switch e.Kind {
	case EventRenderRequested, EventInputDelivered:
		return nil
	case EventThemeChanged:
		if e.Theme == nil {
			return errb.Wrapf(ErrDecode, "theme_changed without theme")
		}
		return nil
	default:
		return errb.Wrapf(ErrDecode, "unknown event kind %d", e.Kind)
	}
}

// RequestKind discriminates plugin-to-host requests.
type RequestKind uint8

// Request kinds.
const (
	// RequestViewProduced replaces the plugin's view.
	RequestViewProduced RequestKind = iota + 1
	// RequestInputEmitted carries opaque application bytes for the host.
	RequestInputEmitted
)

// String returns the request kind name used in logs and metrics.
func (k RequestKind) String() string {
	switch k {
	case RequestViewProduced:
		return "view_produced"
	case RequestInputEmitted:
		return "input_emitted"
	default:
		return "unknown"
	}
}

// Request is a message sent from a plugin to the host.
type Request struct {
	_     struct{} `cbor:",toarray"`
	Kind  RequestKind
	View  *view.Node
	Input []byte
}

// ViewProduced returns a request carrying a view tree.
func ViewProduced(root view.Node) Request {
	return Request{Kind: RequestViewProduced, View: &root}
}

// InputEmitted returns a request carrying opaque application bytes.
func InputEmitted(msg []byte) Request {
	return Request{Kind: RequestInputEmitted, Input: msg}
}

// Validate checks that the fields required by Kind are present and that a
// carried view tree is well formed.
func (r *Request) Validate() error {
	errb := oops.In("wire").Code(CodeDecode).With("kind", r.Kind.String())
	switch r.Kind {
	case RequestViewProduced:
		if r.View == nil {
			return errb.Wrapf(ErrDecode, "view_produced without view")
		}
		if err := r.View.Validate(); err != nil {
			return errb.Wrapf(ErrDecode, "invalid view: %v", err)
		}
		return nil
	case RequestInputEmitted:
		return nil
	default:
		return errb.Wrapf(ErrDecode, "unknown request kind %d", r.Kind)
	}
}
