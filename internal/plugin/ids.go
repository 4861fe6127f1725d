// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"strconv"
	"sync/atomic"
)

// ID identifies one plugin connection for the lifetime of the host.
type ID uint64

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// IDAllocator hands out connection ids. Ids increase monotonically and are
// never reused, even after the plugin holding one disconnects.
type IDAllocator struct {
	next atomic.Uint64
}

// NewIDAllocator returns an allocator whose first id is start.
func NewIDAllocator(start ID) *IDAllocator {
	a := &IDAllocator{}
	a.next.Store(uint64(start))
	return a
}

// Next returns a fresh id. It is safe for concurrent use.
func (a *IDAllocator) Next() ID {
	return ID(a.next.Add(1) - 1)
}
