// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package galloc

import (
	"math"
	"sync"
	"unsafe"

	"github.com/cznic/mathutil"
	"github.com/rs/zerolog"
)

// Allocator is a process-local dynamic heap: a single arena grown from
// a SegmentSource on demand, carved into blocks tracked by a boundary
// tag scheme and a doubly linked free list. The zero value is not
// usable; construct one with New.
//
// Following the Design Notes' Open Question disposition (SPEC_FULL.md
// section A), Allocator is an ordinary Go value, not a package-level
// singleton: a process may hold as many independent Allocators as it
// needs, each with its own arena and its own mutex.
type Allocator struct {
	mu sync.Mutex

	seg         SegmentSource
	fit         FitPolicy
	granularity uintptr

	freeList freeList

	origBreak          uintptr // address of the first chunk's left fencepost
	lastRightFencepost uintptr // address of the most recently created right fencepost
	chunks             []chunk

	log  *zerolog.Logger
	exit func(code int)
}

// New constructs an Allocator per opts. A nil opts.Segment selects
// NewOSSegmentSource(0), matching the teacher's pattern of resolving
// Options fields at construction time, once.
func New(opts Options) (*Allocator, error) {
	opts = opts.normalize()

	seg := opts.Segment
	if seg == nil {
		var err error
		seg, err = NewOSSegmentSource(0)
		if err != nil {
			return nil, err
		}
	}

	return &Allocator{
		seg:         seg,
		fit:         opts.Fit,
		granularity: opts.Granularity,
		log:         opts.Logger,
		exit:        opts.Exit,
	}, nil
}

// Close releases the Allocator's backing SegmentSource. An Allocator
// must not be used after Close returns. Not part of spec.md's core
// surface, but necessary for a library whose tests construct and tear
// down arenas repeatedly rather than living for the process lifetime.
func (a *Allocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.seg.Close()
}

// normalizeSize applies spec.md section 3's payload rules: a minimum
// of two words, rounded up to 8 bytes. n is the caller-requested
// payload size in bytes. n==0 is reported as (0, nil) - nothing to
// allocate, not a misuse - while n<0 is reported as ErrInvalid: there
// is no such thing as a negative-size allocation request.
func normalizeSize(n int) (uintptr, error) {
	if n == 0 {
		return 0, nil
	}
	if n < 0 {
		return 0, &ErrInvalid{Msg: "size must not be negative", Arg: n}
	}
	size := uintptr(n)
	if size < minPayload {
		size = minPayload
	}
	return roundUp8(size), nil
}

// Allocate returns a payload pointer to a block of at least n usable
// bytes, growing the arena if the free list cannot satisfy the
// request. n==0 returns (nil, nil): not an error, simply nothing to
// allocate. n<0 returns (nil, *ErrInvalid).
func (a *Allocator) Allocate(n int) (unsafe.Pointer, error) {
	size, err := normalizeSize(n)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocLocked(size)
}

// allocLocked is Allocate's body once size has already been normalized
// and a.mu is held.
func (a *Allocator) allocLocked(size uintptr) (unsafe.Pointer, error) {
	b := a.freeList.find(size, a.fit)
	if b == 0 {
		if err := a.growArena(size); err != nil {
			return nil, err
		}
		b = a.freeList.find(size, a.fit)
		if b == 0 {
			return nil, ErrOutOfMemory
		}
	}

	a.freeList.remove(b)

	h := headerAt(b)
	if canSplit(h.size(), size) {
		split(&a.freeList, b, size)
		h = headerAt(b)
	}
	h.setState(stateAllocated)

	return unsafe.Pointer(payloadAddr(b)), nil
}

// Free returns p, previously obtained from Allocate/Calloc/Resize, to
// the free list, coalescing with its left and/or right neighbour per
// the four-case table in spec.md section 4.3. Freeing nil is a no-op.
//
// Freeing a pointer that is not currently allocated (a double free) is
// one of the two conditions this package treats as fatal: it logs a
// structured diagnostic and terminates the process, per spec.md
// section 7.
func (a *Allocator) Free(p unsafe.Pointer) {
	if p == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	blockAddr := headerFromPayload(uintptr(p))
	h := headerAt(blockAddr)
	if h.state() != stateAllocated {
		a.fatalf("double free", map[string]interface{}{
			"addr":  uintptr(p),
			"state": h.state(),
		})
		return
	}

	coalesceOnFree(&a.freeList, blockAddr)
}

// mulSize multiplies the caller-supplied element count n by the element
// size size, with the same guard spec.md's Calloc requires before the multiplication
// ever reaches normalizeSize. A negative n or size is a misuse of the
// API (err is ErrInvalid); an overflowing product is reported via
// overflow rather than wrapping, and is not itself an error - spec.md
// section 8's "zero-init overflow" case returns null, not a failure.
func mulSize(n, size int) (total int, overflow bool, err error) {
	if n < 0 || size < 0 {
		return 0, false, &ErrInvalid{Msg: "Calloc count and size must not be negative", Arg: [2]int{n, size}}
	}
	if n == 0 || size == 0 {
		return 0, false, nil
	}
	if n > math.MaxInt/size {
		return 0, true, nil
	}
	return n * size, false, nil
}

// Calloc allocates space for n elements of size bytes each and zeroes
// the payload before returning it, per spec.md section 6. A negative n
// or size returns (nil, *ErrInvalid); an overflowing n*size, or either
// argument being 0, returns (nil, nil).
func (a *Allocator) Calloc(n, size int) (unsafe.Pointer, error) {
	total, overflow, err := mulSize(n, size)
	if err != nil {
		return nil, err
	}
	if overflow || total == 0 {
		return nil, nil
	}

	p, err := a.Allocate(total)
	if err != nil || p == nil {
		return p, err
	}

	clear(unsafe.Slice((*byte)(p), total))
	return p, nil
}

// blockSize returns the payload size currently recorded for the block
// backing payload pointer p.
func (a *Allocator) blockSize(p unsafe.Pointer) uintptr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return headerAt(headerFromPayload(uintptr(p))).size()
}

// Resize changes the size of the allocation at p to n bytes, preserving
// the lesser of the old and new sizes' worth of content, per spec.md
// section 6. p==nil behaves as Allocate(n); n<=0 behaves as Free(p)
// followed by returning (nil, nil).
//
// There is no in-place grow/shrink fast path: every Resize is an
// allocate-copy-free, the simplest correct realization of the
// operation and the one the Open Questions section leaves to the
// implementer's discretion.
func (a *Allocator) Resize(p unsafe.Pointer, n int) (unsafe.Pointer, error) {
	if n <= 0 {
		a.Free(p)
		return nil, nil
	}
	if p == nil {
		return a.Allocate(n)
	}

	oldSize := a.blockSize(p)

	newP, err := a.Allocate(n)
	if err != nil || newP == nil {
		return newP, err
	}

	copyLen := uintptr(mathutil.MinInt64(int64(oldSize), int64(n)))
	copy(unsafe.Slice((*byte)(newP), copyLen), unsafe.Slice((*byte)(p), copyLen))

	a.Free(p)
	return newP, nil
}

// Stats summarizes the current state of an Allocator's arena, modeled
// on lldb.AllocStats in the teacher package.
type Stats struct {
	Chunks         int
	FreeBlocks     int
	BytesAllocated uintptr
	BytesFree      uintptr
	BytesFencepost uintptr
}

// Stats walks the whole arena under lock and reports aggregate counts.
// It is read-only and safe to call concurrently with other Allocator
// methods, modulo the usual mutex serialization.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := Stats{Chunks: len(a.chunks)}
	a.walk(func(addr uintptr, h *header) {
		switch h.state() {
		case stateAllocated:
			st.BytesAllocated += h.size()
		case stateFree:
			st.BytesFree += h.size()
			st.FreeBlocks++
		case stateFencepost:
			st.BytesFencepost += headerSize
		}
	})
	return st
}

// walk visits every header from the arena's original break to its
// current one, in address order. Because the SegmentSource contract
// guarantees physical contiguity, this is always a single linear walk
// regardless of how many times growArena has run - cross-chunk
// coalescing (arena.go) guarantees a merged block's recorded size
// already spans whatever chunk boundaries it absorbed.
func (a *Allocator) walk(fn func(addr uintptr, h *header)) {
	if a.origBreak == 0 {
		return
	}
	end := a.lastRightFencepost + headerSize
	for cur := a.origBreak; cur < end; cur = rightNeighbour(cur) {
		fn(cur, headerAt(cur))
	}
}

// Verify walks the whole arena checking the invariants listed in
// spec.md section 3 (fencepost bracketing, boundary tag agreement
// between neighbours, no two adjacent free blocks) and returns the
// first violation found, or nil. Modeled on the Verify method
// mentioned in lldb.AllocStats' doc comment.
func (a *Allocator) Verify() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.origBreak == 0 {
		return nil
	}

	end := a.lastRightFencepost + headerSize
	var prevFree bool
	for cur := a.origBreak; cur < end; cur = rightNeighbour(cur) {
		h := headerAt(cur)

		if cur != a.origBreak {
			left := leftNeighbour(cur)
			lh := headerAt(left)
			if lh.size() != h.prevPayloadSize {
				return &ErrCorrupt{
					Msg:      "boundary tag disagrees with left neighbour's size",
					Off:      cur - a.origBreak,
					Expected: int64(lh.size()),
					Actual:   int64(h.prevPayloadSize),
				}
			}
		}

		if h.state() == stateFree && prevFree {
			return &ErrCorrupt{
				Msg: "two adjacent free blocks were not coalesced",
				Off: cur - a.origBreak,
			}
		}
		prevFree = h.state() == stateFree
	}

	if headerAt(a.origBreak).state() != stateFencepost {
		return &ErrCorrupt{Msg: "missing left fencepost at arena start", Off: 0}
	}
	if headerAt(a.lastRightFencepost).state() != stateFencepost {
		return &ErrCorrupt{Msg: "missing right fencepost at arena end", Off: a.lastRightFencepost - a.origBreak}
	}

	return nil
}
