// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"time"

	"github.com/samber/oops"

	"github.com/holomush/canvas/pkg/wire"
)

// Plugin is the host's handle on one connected plugin process.
//
// The registry owns the Plugin after registration and is the only sender on
// its outbound queue; the exchange loop owns the receiving end.
type Plugin struct {
	ID          ID
	PID         int
	ConnectedAt time.Time

	outbound chan wire.Event
}

// NewPlugin creates a plugin handle with an outbound queue of the given
// capacity and returns the queue's receiving end.
func NewPlugin(id ID, pid, queueSize int) (*Plugin, <-chan wire.Event) {
	if queueSize < 1 {
		queueSize = 1
	}
	ch := make(chan wire.Event, queueSize)
	return &Plugin{
		ID:          id,
		PID:         pid,
		ConnectedAt: time.Now(),
		outbound:    ch,
	}, ch
}

// deliver queues ev without blocking.
func (p *Plugin) deliver(ev wire.Event) error {
	select {
	case p.outbound <- ev:
		return nil
	default:
		return oops.In("plugin").Code(CodeQueueFull).
			With("plugin_id", uint64(p.ID)).
			With("event", ev.Kind.String()).
			With("capacity", cap(p.outbound)).
			Wrapf(ErrQueueFull, "plugin %d outbound queue full", p.ID)
	}
}

// PluginInfo is a point-in-time description of a registered plugin.
type PluginInfo struct {
	ID          ID        `json:"id"`
	PID         int       `json:"pid,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
	HasView     bool      `json:"has_view"`
}
