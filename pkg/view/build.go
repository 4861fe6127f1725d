// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package view

// Text returns a text leaf.
func Text(s string) Node {
	return Node{Kind: KindText, Text: s}
}

// Space returns an empty spacer of the given size.
func Space(width, height Length) Node {
	return Node{Kind: KindSpace, Width: width, Height: height}
}

// Button returns a button around content. When pressed, the host routes
// msg back to the plugin that produced the view.
func Button(content Node, msg []byte) Node {
	return Node{Kind: KindButton, OnPress: msg, Children: []Node{content}}
}

// Container wraps a single child with padding.
func Container(content Node, padding float32) Node {
	return Node{Kind: KindContainer, Padding: padding, Children: []Node{content}}
}

// Column stacks children vertically.
func Column(spacing float32, children ...Node) Node {
	return Node{Kind: KindColumn, Spacing: spacing, Children: children}
}

// Row lays children out horizontally.
func Row(spacing float32, children ...Node) Node {
	return Node{Kind: KindRow, Spacing: spacing, Children: children}
}

// Stack layers children on top of each other.
func Stack(children ...Node) Node {
	return Node{Kind: KindStack, Children: children}
}
