// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package galloc

// SegmentSource abstracts "extend the process's data segment by n
// bytes and return a pointer to the newly mapped, aligned region, or
// fail" - the single OS collaborator spec.md's arena manager depends
// on. It plays the role the teacher package (cznic/exp/lldb) gives to
// its Filer interface: isolate the allocator core from the concrete
// storage backend so it can run unmodified over a real OS region or
// over a pure-Go test double.
//
// Implementations MUST return addresses 8-byte aligned and MUST
// guarantee that the region returned by call N+1 is physically
// contiguous with (immediately follows) the region returned by call N,
// for as long as the same SegmentSource value is used - that
// contiguity is what the cross-chunk coalescing protocol in arena.go
// relies on to be anything other than a no-op.
type SegmentSource interface {
	// Extend grows the segment by n bytes and returns the start
	// address of the new region. n is always a positive multiple of
	// the Allocator's granularity (4096 by default). Extend(0) is
	// never called; querying the current break is not
	// needed by this abstraction because each Allocator tracks it
	// itself from the addresses Extend has already returned.
	Extend(n uintptr) (base uintptr, err error)

	// Close releases any OS resources held by the source. It is safe
	// to call once, from Allocator.Close.
	Close() error
}
