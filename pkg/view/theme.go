// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package view

import (
	"sort"

	"github.com/samber/oops"
)

// Color is a linear RGBA color with components in [0, 1].
type Color struct {
	_ struct{} `cbor:",toarray"`
	R float32
	G float32
	B float32
	A float32
}

// RGB returns an opaque color from 8-bit components.
func RGB(r, g, b uint8) Color {
	return Color{R: float32(r) / 255, G: float32(g) / 255, B: float32(b) / 255, A: 1}
}

// Palette is the set of base colors a theme is generated from.
type Palette struct {
	_          struct{} `cbor:",toarray"`
	Background Color
	Text       Color
	Primary    Color
	Success    Color
	Danger     Color
}

// Theme is the snapshot of host styling pushed to every plugin.
type Theme struct {
	_       struct{} `cbor:",toarray"`
	Name    string
	Palette Palette
}

var themes = map[string]Theme{
	"light": {
		Name: "light",
		Palette: Palette{
			Background: RGB(0xff, 0xff, 0xff),
			Text:       RGB(0x00, 0x00, 0x00),
			Primary:    RGB(0x5e, 0x7c, 0xe2),
			Success:    RGB(0x12, 0x66, 0x4f),
			Danger:     RGB(0xc3, 0x42, 0x3f),
		},
	},
	"dark": {
		Name: "dark",
		Palette: Palette{
			Background: RGB(0x2b, 0x2d, 0x31),
			Text:       RGB(0xff, 0xff, 0xff),
			Primary:    RGB(0x5e, 0x7c, 0xe2),
			Success:    RGB(0x12, 0x66, 0x4f),
			Danger:     RGB(0xc3, 0x42, 0x3f),
		},
	},
}

// DefaultTheme is the theme used when none is configured.
const DefaultTheme = "light"

// ThemeByName returns a built-in theme.
func ThemeByName(name string) (Theme, error) {
	t, ok := themes[name]
	if !ok {
		return Theme{}, oops.In("view").Code("UNKNOWN_THEME").With("theme", name).Errorf("unknown theme %q", name)
	}
	return t, nil
}

// ThemeNames lists the built-in themes in sorted order.
func ThemeNames() []string {
	names := make([]string, 0, len(themes))
	for name := range themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
