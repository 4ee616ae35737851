// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*

Package galloc implements a general purpose dynamic heap allocator
servicing requests for variable sized byte regions drawn from a
contiguous, monotonically growable arena obtained from the OS.

It exposes the classic four operation surface - Allocate, Free, Calloc
and Resize - with thread safe semantics: every exported method of
Allocator takes a single process-wide (per Allocator value) mutex
before touching shared state and releases it before returning.

Block layout

Every block managed by an Allocator is a physically contiguous region
made of a fixed size header immediately followed by a payload:

	+--------+--------+-------- ... --------+
	| header | header |       payload       |
	| word 0 | word 1 |                     |
	+--------+--------+-------- ... --------+

The header carries two machine words. The first packs the payload size
together with a 3 bit state tag (free, allocated or fencepost) into
the low bits, relying on the fact the minimum payload alignment is 8
so those bits are otherwise always zero. The second is the boundary
tag: the payload size of the block immediately to the left in memory,
which gives O(1) left-neighbour lookup for coalescing without needing
a footer in the left block itself.

Free blocks additionally store their free list `next`/`prev` links in
the first two words of their own payload; this overhead disappears
once the block is handed to a caller.

Arenas and fenceposts

Storage is acquired from the OS in chunks through a SegmentSource
(see NewOSSegmentSource and the mem-backed implementation used by
tests). Each chunk is bracketed by two zero-payload fencepost blocks
so that physical traversal from either end of a chunk always
terminates cleanly, and so that the allocator can detect, and stitch
across, the case where two chunks happen to be physically adjacent
(see Allocator.growArena).

Concurrency

An Allocator is safe for concurrent use by multiple goroutines. There
is no lock-free fast path: Allocate, Free, Calloc and Resize all
acquire the same non-recursive mutex. Operations are linearizable with
respect to that mutex and run to completion once entered - there is no
cancellation.

*/
package galloc
