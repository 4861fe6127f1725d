// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package surface draws the aggregated plugin views as terminal text and
// resolves button presses against them.
package surface

import (
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/holomush/canvas/internal/plugin"
	"github.com/holomush/canvas/pkg/view"
)

// Logical pixels per terminal cell.
const (
	cellWidth  = 8
	cellHeight = 16
)

// Renderer draws views using one theme.
type Renderer struct {
	theme       view.Theme
	lip         *lipgloss.Renderer
	buttonPaths bool
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithColor emits true-color escape sequences. Output is plain text by
// default.
func WithColor() Option {
	return func(r *Renderer) {
		r.lip = newLipRenderer(termenv.TrueColor)
	}
}

// WithButtonPaths annotates every button with the path Press expects.
func WithButtonPaths() Option {
	return func(r *Renderer) {
		r.buttonPaths = true
	}
}

// New returns a renderer for theme.
func New(theme view.Theme, opts ...Option) *Renderer {
	r := &Renderer{
		theme: theme,
		lip:   newLipRenderer(termenv.Ascii),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func newLipRenderer(profile termenv.Profile) *lipgloss.Renderer {
	lr := lipgloss.NewRenderer(io.Discard, termenv.WithProfile(profile))
	lr.SetColorProfile(profile)
	return lr
}

// Render draws one bordered panel per plugin, ordered by plugin id.
func (r *Renderer) Render(views map[plugin.ID]view.Node) string {
	if len(views) == 0 {
		return r.lip.NewStyle().Faint(true).Render("no plugin views")
	}

	ids := make([]plugin.ID, 0, len(views))
	for id := range views {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	panels := make([]string, 0, len(ids))
	for _, id := range ids {
		root := views[id]
		title := r.lip.NewStyle().Bold(true).Foreground(color(r.theme.Palette.Primary)).
			Render(fmt.Sprintf("plugin %d", id))
		body := r.node(&root, nil)
		panels = append(panels, r.lip.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(color(r.theme.Palette.Primary)).
			Padding(0, 1).
			Render(lipgloss.JoinVertical(lipgloss.Left, title, body)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, panels...)
}

func (r *Renderer) node(n *view.Node, path []int) string {
	switch n.Kind {
	case view.KindText:
		return r.lip.NewStyle().Foreground(color(r.theme.Palette.Text)).Render(n.Text)
	case view.KindSpace:
		return r.space(n)
	case view.KindButton:
		return r.button(n, path)
	case view.KindContainer:
		pad := cells(n.Padding, cellWidth)
		return r.lip.NewStyle().Padding(cells(n.Padding, cellHeight), pad).
			Render(r.node(&n.Children[0], childPath(path, 0)))
	case view.KindColumn:
		parts := r.children(n, path)
		gap := strings.Repeat("\n", cells(n.Spacing, cellHeight))
		return lipgloss.JoinVertical(lipgloss.Left, interleave(parts, gap)...)
	case view.KindRow:
		parts := r.children(n, path)
		gap := strings.Repeat(" ", max(cells(n.Spacing, cellWidth), 1))
		return lipgloss.JoinHorizontal(lipgloss.Top, interleave(parts, gap)...)
	case view.KindStack:
		// Text cannot overlap, so a stack shows its topmost layer sized to
		// the largest one.
		parts := r.children(n, path)
		if len(parts) == 0 {
			return ""
		}
		w, h := 0, 0
		for _, p := range parts {
			w = max(w, lipgloss.Width(p))
			h = max(h, lipgloss.Height(p))
		}
		return lipgloss.Place(w, h, lipgloss.Left, lipgloss.Top, parts[len(parts)-1])
	default:
		return ""
	}
}

func (r *Renderer) children(n *view.Node, path []int) []string {
	parts := make([]string, 0, len(n.Children))
	for i := range n.Children {
		parts = append(parts, r.node(&n.Children[i], childPath(path, i)))
	}
	return parts
}

func (r *Renderer) button(n *view.Node, path []int) string {
	label := r.node(&n.Children[0], childPath(path, 0))
	style := r.lip.NewStyle().Bold(true).Foreground(color(r.theme.Palette.Primary))
	out := style.Render("[ ") + label + style.Render(" ]")
	if r.buttonPaths {
		out += r.lip.NewStyle().Faint(true).Render(" (" + FormatPath(path) + ")")
	}
	return out
}

func (r *Renderer) space(n *view.Node) string {
	w, h := 1, 1
	if n.Width.Mode == view.Fixed {
		w = max(cells(n.Width.Value, cellWidth), 1)
	}
	if n.Height.Mode == view.Fixed {
		h = max(cells(n.Height.Value, cellHeight), 1)
	}
	line := strings.Repeat(" ", w)
	return strings.TrimSuffix(strings.Repeat(line+"\n", h), "\n")
}

func cells(px float32, per int) int {
	if px <= 0 {
		return 0
	}
	return int(math.Round(float64(px) / float64(per)))
}

func interleave(parts []string, gap string) []string {
	if gap == "" || len(parts) < 2 {
		return parts
	}
	out := make([]string, 0, 2*len(parts)-1)
	for i, p := range parts {
		if i > 0 {
			out = append(out, gap)
		}
		out = append(out, p)
	}
	return out
}

func childPath(path []int, idx int) []int {
	out := make([]int, len(path)+1)
	copy(out, path)
	out[len(path)] = idx
	return out
}

// color converts a linear [0, 1] color to a lipgloss hex color.
func color(c view.Color) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", channel(c.R), channel(c.G), channel(c.B)))
}

func channel(v float32) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, float64(v))) * 255)) //nolint:gosec // clamped to [0, 255]
}
