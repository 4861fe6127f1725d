// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package surface

import (
	"errors"
	"strconv"
	"strings"

	"github.com/samber/oops"

	"github.com/holomush/canvas/internal/plugin"
	"github.com/holomush/canvas/pkg/view"
)

// ErrNotPressable means the addressed node is missing or is not a button.
var ErrNotPressable = errors.New("node is not a button")

// Press returns the message bound to the button at path in the view of the
// plugin with the given id. The host injects it back to that plugin as an
// InputEmitted request.
func Press(views map[plugin.ID]view.Node, id plugin.ID, path []int) ([]byte, error) {
	root, ok := views[id]
	if !ok {
		return nil, oops.In("surface").Code(plugin.CodeUnknownPlugin).With("plugin_id", uint64(id)).
			Wrapf(plugin.ErrUnknownPlugin, "plugin %d has no view", id)
	}

	errb := oops.In("surface").Code("NOT_PRESSABLE").With("plugin_id", uint64(id)).With("path", FormatPath(path))
	n, ok := root.Find(path)
	if !ok {
		return nil, errb.Wrapf(ErrNotPressable, "no node at path %s", FormatPath(path))
	}
	if n.Kind != view.KindButton {
		return nil, errb.With("kind", n.Kind.String()).Wrapf(ErrNotPressable, "node at path %s is a %s", FormatPath(path), n.Kind)
	}
	return n.OnPress, nil
}

// ParsePath parses a dotted child index path such as "0.2.1". The empty
// string addresses the root.
func ParsePath(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	fields := strings.Split(s, ".")
	path := make([]int, 0, len(fields))
	for _, f := range fields {
		idx, err := strconv.Atoi(f)
		if err != nil || idx < 0 {
			return nil, oops.In("surface").Code("INVALID_PATH").With("path", s).Errorf("invalid path element %q", f)
		}
		path = append(path, idx)
	}
	return path, nil
}

// FormatPath is the inverse of ParsePath.
func FormatPath(path []int) string {
	parts := make([]string, len(path))
	for i, idx := range path {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, ".")
}
