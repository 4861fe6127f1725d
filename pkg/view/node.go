// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package view defines the UI artifact plugins ship to the host.
//
// A view is a closed tree of [Node] values discriminated by [Kind]. Every
// variant the host understands is enumerated here; the host never looks up
// widget types at runtime. Once a plugin hands a tree to the transport it is
// treated as immutable and may be shared between readers.
package view

import (
	"fmt"

	"github.com/samber/oops"
)

// Kind identifies the widget a Node represents.
type Kind uint8

// Widget kinds.
const (
	KindColumn Kind = iota + 1
	KindRow
	KindStack
	KindContainer
	KindText
	KindButton
	KindSpace
)

// MaxDepth bounds how deeply a tree may nest.
const MaxDepth = 64

// String returns the lower-case widget name.
// Unrecognized kinds return "unknown".
func (k Kind) String() string {
	switch k {
	case KindColumn:
		return "column"
	case KindRow:
		return "row"
	case KindStack:
		return "stack"
	case KindContainer:
		return "container"
	case KindText:
		return "text"
	case KindButton:
		return "button"
	case KindSpace:
		return "space"
	default:
		return "unknown"
	}
}

// LengthMode selects how a Length is resolved by the layout engine.
type LengthMode uint8

// Length modes.
const (
	Shrink LengthMode = iota
	Fill
	FillPortion
	Fixed
)

// Length is a sizing hint along one axis.
type Length struct {
	_     struct{} `cbor:",toarray"`
	Mode  LengthMode
	Value float32
}

// FixedLength returns a fixed length in logical pixels.
func FixedLength(px float32) Length {
	return Length{Mode: Fixed, Value: px}
}

// FillLength returns a length that takes all remaining space.
func FillLength() Length {
	return Length{Mode: Fill}
}

// Node is one widget in a view tree.
//
// Which fields are meaningful depends on Kind: Text for text and buttons
// without children, OnPress for buttons, Spacing for columns and rows,
// Children for containers.
type Node struct {
	_        struct{} `cbor:",toarray"`
	Kind     Kind
	Text     string
	OnPress  []byte
	Width    Length
	Height   Length
	Padding  float32
	Spacing  float32
	Children []Node
}

// Validate checks that the tree only uses known kinds with the right arity.
func (n *Node) Validate() error {
	return n.validate(0, "")
}

func (n *Node) validate(depth int, path string) error {
	errb := oops.In("view").Code("INVALID_VIEW").With("path", pathOrRoot(path)).With("kind", n.Kind.String())
	if depth > MaxDepth {
		return errb.Errorf("view tree deeper than %d", MaxDepth)
	}

	switch n.Kind {
	case KindText, KindSpace:
		if len(n.Children) != 0 {
			return errb.Errorf("%s must not have children", n.Kind)
		}
	case KindButton, KindContainer:
		if len(n.Children) != 1 {
			return errb.Errorf("%s must have exactly one child, got %d", n.Kind, len(n.Children))
		}
	case KindColumn, KindRow, KindStack:
	default:
		return errb.Errorf("unknown widget kind %d", n.Kind)
	}

	for i := range n.Children {
		if err := n.Children[i].validate(depth+1, childPath(path, i)); err != nil {
			return err
		}
	}
	return nil
}

// Find returns the node addressed by path, where path lists child indexes
// from the root. An empty path addresses the root itself.
func (n *Node) Find(path []int) (*Node, bool) {
	cur := n
	for _, idx := range path {
		if idx < 0 || idx >= len(cur.Children) {
			return nil, false
		}
		cur = &cur.Children[idx]
	}
	return cur, true
}

func childPath(parent string, idx int) string {
	if parent == "" {
		return fmt.Sprintf("%d", idx)
	}
	return fmt.Sprintf("%s.%d", parent, idx)
}

func pathOrRoot(path string) string {
	if path == "" {
		return "root"
	}
	return path
}
