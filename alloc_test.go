// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package galloc

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T, opts Options) *Allocator {
	t.Helper()
	if opts.Segment == nil {
		opts.Segment = NewMemSegmentSource(0)
	}
	if opts.Exit == nil {
		opts.Exit = func(code int) { t.Fatalf("unexpected fatal exit, code %d", code) }
	}
	a, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func blockAddrOf(p unsafe.Pointer) uintptr {
	return headerFromPayload(uintptr(p))
}

func TestAllocateZeroReturnsNil(t *testing.T) {
	a := newTestAllocator(t, Options{})
	p, err := a.Allocate(0)
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestAllocateNegativeIsInvalid(t *testing.T) {
	a := newTestAllocator(t, Options{})
	p, err := a.Allocate(-1)
	require.Nil(t, p)
	var invalid *ErrInvalid
	require.ErrorAs(t, err, &invalid)
}

func TestCallocNegativeIsInvalid(t *testing.T) {
	a := newTestAllocator(t, Options{})

	p, err := a.Calloc(-1, 8)
	require.Nil(t, p)
	var invalid *ErrInvalid
	require.ErrorAs(t, err, &invalid)

	p, err = a.Calloc(8, -1)
	require.Nil(t, p)
	require.ErrorAs(t, err, &invalid)
}

func TestFreeNilIsNoop(t *testing.T) {
	a := newTestAllocator(t, Options{})
	a.Free(nil) // must not panic
}

// TestS1SingleSmallAllocation matches spec.md's worked example S1: the
// first allocate(1) splits the arena's initial free block, producing a
// 16 byte allocated block at offset 16 and a free remainder at offset
// 48, bracketed by fenceposts at offset 0 and offset 4080.
func TestS1SingleSmallAllocation(t *testing.T) {
	a := newTestAllocator(t, Options{})

	p, err := a.Allocate(1)
	require.NoError(t, err)
	require.NotNil(t, p)

	blk := blockAddrOf(p)
	require.Equal(t, a.origBreak+16, blk)
	require.Equal(t, uintptr(16), headerAt(blk).size())
	require.Equal(t, stateAllocated, headerAt(blk).state())

	require.Equal(t, stateFencepost, headerAt(a.origBreak).state())

	free := a.freeList.head
	require.Equal(t, a.origBreak+48, free)
	require.Equal(t, uintptr(4016), headerAt(free).size())

	require.Equal(t, a.origBreak+4080, a.lastRightFencepost)
	require.Equal(t, stateFencepost, headerAt(a.lastRightFencepost).state())
}

// TestS2SplitAndFreeInMiddle matches spec.md's S2: three 16 byte
// allocations A@16, B@48, C@80; freeing A then B coalesces A+B into one
// 48 byte free block at offset 16, leaving two free-list entries.
func TestS2SplitAndFreeInMiddle(t *testing.T) {
	a := newTestAllocator(t, Options{})

	pa, err := a.Allocate(16)
	require.NoError(t, err)
	pb, err := a.Allocate(16)
	require.NoError(t, err)
	pc, err := a.Allocate(16)
	require.NoError(t, err)

	require.Equal(t, a.origBreak+16, blockAddrOf(pa))
	require.Equal(t, a.origBreak+48, blockAddrOf(pb))
	require.Equal(t, a.origBreak+80, blockAddrOf(pc))

	a.Free(pa)
	a.Free(pb)

	merged := a.origBreak + 16
	require.Equal(t, uintptr(48), headerAt(merged).size())
	require.Equal(t, stateFree, headerAt(merged).state())
	require.Equal(t, stateAllocated, headerAt(blockAddrOf(pc)).state())

	var n int
	a.freeList.each(func(uintptr) { n++ })
	require.Equal(t, 2, n)
}

// TestS3CoalesceWithRightOnly matches spec.md's S3: allocate A@16,
// B@48; free B (merges right into the tail free block), then free A
// (merges right into B's now-enlarged block), producing a single free
// block at offset 16 with payload 4048.
func TestS3CoalesceWithRightOnly(t *testing.T) {
	a := newTestAllocator(t, Options{})

	pa, err := a.Allocate(16)
	require.NoError(t, err)
	pb, err := a.Allocate(16)
	require.NoError(t, err)

	require.Equal(t, a.origBreak+16, blockAddrOf(pa))
	require.Equal(t, a.origBreak+48, blockAddrOf(pb))

	a.Free(pb)
	a.Free(pa)

	require.Equal(t, a.origBreak+16, a.freeList.head)
	require.Equal(t, uintptr(4048), headerAt(a.freeList.head).size())

	var n int
	a.freeList.each(func(uintptr) { n++ })
	require.Equal(t, 1, n)
}

// TestS4ArenaGrowthAndStitching matches spec.md's S4: a 16 byte
// allocation followed by a 4017 byte request that cannot be satisfied
// from the first chunk forces arena growth; because the SegmentSource
// guarantees contiguity, cross-chunk coalescing absorbs both
// fenceposts and the first chunk's tail free block into one 8112 byte
// free block at offset 48 spanning both chunks. The 4017 byte request
// (4024 once rounded) is then split off the front of that block,
// leaving a 4072 byte free remainder that straddles the old seam.
func TestS4ArenaGrowthAndStitching(t *testing.T) {
	a := newTestAllocator(t, Options{Segment: NewMemSegmentSource(1 << 20)})

	_, err := a.Allocate(16)
	require.NoError(t, err)
	require.Equal(t, 1, len(a.chunks))

	p, err := a.Allocate(4017)
	require.NoError(t, err)
	require.Equal(t, 2, len(a.chunks))

	spanning := a.origBreak + 48
	require.Equal(t, spanning, blockAddrOf(p))
	require.Equal(t, uintptr(4024), headerAt(spanning).size())
	require.Equal(t, stateAllocated, headerAt(spanning).state())

	rest := rightNeighbour(spanning)
	require.Equal(t, a.origBreak+4088, rest)
	require.Equal(t, uintptr(8112-4024)-headerSize, headerAt(rest).size())
	require.Equal(t, stateFree, headerAt(rest).state())
	require.NoError(t, a.Verify())
}

// TestS5BestFitSelection matches spec.md's S5: with BestFit configured,
// after freeing a 32 byte and a 128 byte allocation, a subsequent
// allocate(32) must reuse the 32 byte hole, not the larger one.
func TestS5BestFitSelection(t *testing.T) {
	a := newTestAllocator(t, Options{Fit: BestFit})

	_, err := a.Allocate(16)
	require.NoError(t, err)
	pBig, err := a.Allocate(128)
	require.NoError(t, err)
	_, err = a.Allocate(16)
	require.NoError(t, err)
	pSmall, err := a.Allocate(32)
	require.NoError(t, err)
	_, err = a.Allocate(16)
	require.NoError(t, err)

	smallAddr := blockAddrOf(pSmall)

	a.Free(pSmall)
	a.Free(pBig)

	p, err := a.Allocate(32)
	require.NoError(t, err)
	require.Equal(t, smallAddr, blockAddrOf(p))
}

// TestS6ZeroInitOverflow matches spec.md's S6: calloc(size_max, 2)
// returns nil without touching the heap.
func TestS6ZeroInitOverflow(t *testing.T) {
	a := newTestAllocator(t, Options{})

	p, err := a.Calloc(math.MaxInt, 2)
	require.NoError(t, err)
	require.Nil(t, p)
	require.Equal(t, 0, len(a.chunks))
}

func TestCallocZeroesPayload(t *testing.T) {
	a := newTestAllocator(t, Options{})

	p, err := a.Allocate(64)
	require.NoError(t, err)
	b := unsafe.Slice((*byte)(p), 64)
	for i := range b {
		b[i] = 0xff
	}
	a.Free(p)

	p, err = a.Calloc(8, 8)
	require.NoError(t, err)
	require.NotNil(t, p)
	b = unsafe.Slice((*byte)(p), 64)
	for _, v := range b {
		require.Equal(t, byte(0), v)
	}
}

func TestResizeGrowPreservesContent(t *testing.T) {
	a := newTestAllocator(t, Options{})

	p, err := a.Allocate(16)
	require.NoError(t, err)
	src := unsafe.Slice((*byte)(p), 16)
	for i := range src {
		src[i] = byte(i + 1)
	}

	p2, err := a.Resize(p, 64)
	require.NoError(t, err)
	require.NotNil(t, p2)

	dst := unsafe.Slice((*byte)(p2), 16)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}, dst)
}

func TestResizeToZeroFrees(t *testing.T) {
	a := newTestAllocator(t, Options{})

	p, err := a.Allocate(16)
	require.NoError(t, err)

	p2, err := a.Resize(p, 0)
	require.NoError(t, err)
	require.Nil(t, p2)
	require.Equal(t, stateFree, headerAt(blockAddrOf(p)).state())
}

func TestResizeNilActsAsAllocate(t *testing.T) {
	a := newTestAllocator(t, Options{})
	p, err := a.Resize(nil, 32)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, stateAllocated, headerAt(blockAddrOf(p)).state())
}

func TestDoubleFreeIsFatal(t *testing.T) {
	var exitCode int
	var exitCalled bool
	a := newTestAllocator(t, Options{Exit: func(code int) {
		exitCalled = true
		exitCode = code
	}})

	p, err := a.Allocate(16)
	require.NoError(t, err)

	a.Free(p)
	require.False(t, exitCalled)

	a.Free(p) // double free
	require.True(t, exitCalled)
	require.Equal(t, 1, exitCode)
}

type misalignedSegment struct{}

func (misalignedSegment) Extend(n uintptr) (uintptr, error) { return 1, nil }
func (misalignedSegment) Close() error                      { return nil }

func TestInitMisalignmentIsFatal(t *testing.T) {
	var exitCalled bool
	a := newTestAllocator(t, Options{
		Segment: misalignedSegment{},
		Exit:    func(int) { exitCalled = true },
	})

	p, err := a.Allocate(16)
	require.Nil(t, p)
	require.ErrorIs(t, err, ErrOutOfMemory)
	require.True(t, exitCalled)
}

func TestVerifyCleanHeap(t *testing.T) {
	a := newTestAllocator(t, Options{})
	_, err := a.Allocate(16)
	require.NoError(t, err)
	require.NoError(t, a.Verify())
}

func TestNormalizeSizeTableDriven(t *testing.T) {
	for _, n := range []int{1, 7, 8, 9, 16, 17, 4095, 4096, 4097} {
		size, err := normalizeSize(n)
		require.NoError(t, err)
		require.GreaterOrEqual(t, size, uintptr(minPayload))
		require.Zero(t, size%8)
		require.GreaterOrEqual(t, size, uintptr(n))
	}
}

// TestAllocateRoundTripSizes exercises spec.md section 8's properties
// #1 (Alignment: every returned pointer is 8-aligned) and #7
// (Round-trip: allocate(n), write a pattern across the full requested
// length, read it back unchanged, free) over the documented size
// matrix.
func TestAllocateRoundTripSizes(t *testing.T) {
	for _, n := range []int{1, 7, 8, 9, 16, 17, 4095, 4096, 4097} {
		a := newTestAllocator(t, Options{Segment: NewMemSegmentSource(1 << 20)})

		p, err := a.Allocate(n)
		require.NoError(t, err, "n=%d", n)
		require.NotNil(t, p, "n=%d", n)
		require.Zero(t, uintptr(p)%8, "n=%d: pointer %#x is not 8-aligned", n, uintptr(p))

		want := make([]byte, n)
		for i := range want {
			want[i] = byte(i)
		}

		b := unsafe.Slice((*byte)(p), n)
		copy(b, want)
		require.Equal(t, want, append([]byte(nil), b...), "n=%d", n)

		a.Free(p)
	}
}

func TestStatsAccounting(t *testing.T) {
	a := newTestAllocator(t, Options{})

	p1, err := a.Allocate(16)
	require.NoError(t, err)
	_, err = a.Allocate(32)
	require.NoError(t, err)

	st := a.Stats()
	require.Equal(t, 1, st.Chunks)
	require.Equal(t, uintptr(48), st.BytesAllocated)
	require.Equal(t, 1, st.FreeBlocks)

	a.Free(p1)
	st = a.Stats()
	require.Equal(t, uintptr(32), st.BytesAllocated)
}
