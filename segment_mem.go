// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package galloc

import (
	"fmt"
	"unsafe"
)

// defaultMemReserve is smaller than defaultOSReserve because, unlike
// the mmap-backed source, every byte of it is actually committed Go
// memory from the moment NewMemSegmentSource is called.
const defaultMemReserve = 1 << 20 // 1 MiB

// memSegmentSource is a syscall-free SegmentSource backed by a single
// pinned Go byte slice, playing the same role for Allocator tests that
// lldb.MemFiler plays for the teacher package's Filer-based tests: it
// lets the full allocation/coalescing/arena-growth machinery run
// without the OS primitives segment_unix.go depends on.
//
// Go's garbage collector does not move live heap allocations, so
// holding raw addresses into region for the lifetime of the
// memSegmentSource (which itself holds region alive) is safe.
type memSegmentSource struct {
	region    []byte
	base      uintptr
	committed uintptr
	capacity  uintptr
}

// NewMemSegmentSource returns a SegmentSource backed by ordinary Go
// memory instead of the OS. capacity bounds how much the arena can
// grow to; 0 selects defaultMemReserve.
func NewMemSegmentSource(capacity uintptr) SegmentSource {
	if capacity == 0 {
		capacity = defaultMemReserve
	}
	region := make([]byte, capacity)
	return &memSegmentSource{
		region:   region,
		base:     uintptr(unsafe.Pointer(&region[0])),
		capacity: capacity,
	}
}

func (s *memSegmentSource) Extend(n uintptr) (uintptr, error) {
	if s.committed+n > s.capacity {
		return 0, fmt.Errorf("galloc: mem segment capacity of %d bytes exhausted", s.capacity)
	}
	base := s.base + s.committed
	s.committed += n
	return base, nil
}

func (s *memSegmentSource) Close() error {
	s.region = nil
	return nil
}
