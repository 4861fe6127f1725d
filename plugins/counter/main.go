// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package main implements a counter plugin for the canvas host.
//
// Run it next to a host:
//
//	canvas serve --draw &
//	go run ./plugins/counter
//
// The plugin draws its count and three buttons. Pressing "+5" makes the
// plugin emit five increments back to itself through the host.
package main

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/holomush/canvas/internal/logging"
	"github.com/holomush/canvas/pkg/pluginsdk"
	"github.com/holomush/canvas/pkg/view"
)

// Messages understood by Update.
const (
	msgIncrement = "increment"
	msgDecrement = "decrement"
	msgReset     = "reset"
	msgAddFive   = "add5"
)

type counter struct {
	value   int
	pending int
}

// Update applies msg. A pending burst re-emits one increment per round
// trip until it is spent.
func (c *counter) Update(msg []byte) ([]byte, error) {
	switch string(msg) {
	case msgIncrement:
		c.value++
		if c.pending > 0 {
			c.pending--
			if c.pending > 0 {
				return []byte(msgIncrement), nil
			}
		}
	case msgDecrement:
		c.value--
	case msgReset:
		c.value = 0
		c.pending = 0
	case msgAddFive:
		c.pending = 5
		return []byte(msgIncrement), nil
	default:
		slog.Warn("unknown message", "message", string(msg))
	}
	return nil, nil
}

func (c *counter) View(theme view.Theme) view.Node {
	return view.Container(view.Column(8,
		view.Text(theme.Name+" counter"),
		view.Text("count: "+strconv.Itoa(c.value)),
		view.Row(4,
			view.Button(view.Text("-"), []byte(msgDecrement)),
			view.Button(view.Text("+"), []byte(msgIncrement)),
			view.Button(view.Text("+5"), []byte(msgAddFive)),
			view.Button(view.Text("reset"), []byte(msgReset)),
		),
	), 8)
}

func main() {
	logging.SetDefault("canvas-counter", "dev", "text", logging.ParseLevel(os.Getenv("CANVAS_LOG_LEVEL")))
	pluginsdk.Serve(&counter{})
}
