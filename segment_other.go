// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !unix

package galloc

import "fmt"

// NewOSSegmentSource is unavailable on non-unix targets: the arena
// manager needs a contiguous, incrementally committable virtual
// address reservation, which this module only knows how to build on
// top of mmap/mprotect (see segment_unix.go). Use Options.Segment with
// NewMemSegmentSource, or another SegmentSource, instead.
func NewOSSegmentSource(reserve uintptr) (SegmentSource, error) {
	return nil, fmt.Errorf("galloc: NewOSSegmentSource is not implemented on this platform")
}
