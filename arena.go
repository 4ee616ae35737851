// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package galloc

// chunk records the extent of one SegmentSource.Extend call, for
// Stats' chunk count. base is where the newly committed bytes started;
// limit is just past the chunk's right fencepost.
type chunk struct {
	base  uintptr
	limit uintptr
}

// roundUpGranularity rounds raw up to the next multiple of granularity.
func roundUpGranularity(raw, granularity uintptr) uintptr {
	return (raw + granularity - 1) / granularity * granularity
}

// growArena asks the SegmentSource for at least want bytes of new
// payload capacity, lays out a freshly bracketed chunk (fencepost,
// interior free block, fencepost), and - if the new chunk turns out to
// be physically adjacent to the most recently created one - stitches
// the two together by absorbing the shared pair of fenceposts, per the
// cross-chunk coalescing protocol.
func (a *Allocator) growArena(want uintptr) error {
	raw := want + 3*headerSize
	raw = roundUpGranularity(raw, a.granularity)

	base, err := a.seg.Extend(raw)
	if err != nil {
		return ErrOutOfMemory
	}

	firstGrowth := a.origBreak == 0

	if base%wordSize != 0 {
		if firstGrowth {
			// spec.md section 7: a misaligned segment break at init
			// is fatal, not just a failed allocation - nothing built
			// on top of this arena could ever be trusted.
			a.fatalf("initial segment break is not 8-aligned", map[string]interface{}{
				"base": base,
			})
		}
		return ErrOutOfMemory
	}

	if firstGrowth {
		a.origBreak = base
	}

	// The right fencepost's own address only depends on base and raw,
	// never on whatever sat to its left - compute it up front.
	rightFenceAddr := base + raw - headerSize
	rf := headerAt(rightFenceAddr)
	rf.setSizeAndState(0, stateFencepost)

	// base is one past the end of the previous chunk's right fencepost
	// header (that header occupies [lastRightFencepost,
	// lastRightFencepost+headerSize)), not the fencepost's own address -
	// a SegmentSource hands back where new bytes start, not a header
	// location.
	adjacent := a.lastRightFencepost != 0 && base == a.lastRightFencepost+headerSize

	switch {
	case !adjacent:
		interiorSize := raw - 3*headerSize
		interiorAddr := base + headerSize

		lf := headerAt(base)
		lf.setSizeAndState(0, stateFencepost)
		lf.prevPayloadSize = 0

		ih := headerAt(interiorAddr)
		ih.setSizeAndState(interiorSize, stateFree)
		ih.prevPayloadSize = 0

		rf.prevPayloadSize = interiorSize
		a.freeList.insert(interiorAddr)

	default:
		// Read the previous chunk's tail state before overwriting
		// anything: the old right fencepost's own header holds the
		// boundary tag (prevPayloadSize) needed to find it.
		oldFenceAddr := a.lastRightFencepost
		prevTailAddr := leftNeighbour(oldFenceAddr)
		prevTailFree := headerAt(prevTailAddr).state() == stateFree

		var mergeAddr uintptr
		if prevTailFree {
			// The old tail is already a free block; absorb the old
			// fencepost and the whole new chunk into it in place.
			// insert below gives it a fresh head position - arena
			// growth is not one of the on-free coalescing cases, so
			// there is no position to preserve.
			a.freeList.remove(prevTailAddr)
			mergeAddr = prevTailAddr
		} else {
			// No free predecessor: the old fencepost's header slot
			// becomes the new free block's header.
			mergeAddr = oldFenceAddr
			headerAt(mergeAddr).prevPayloadSize = headerAt(prevTailAddr).size()
		}

		merged := rightFenceAddr - mergeAddr - headerSize
		headerAt(mergeAddr).setSizeAndState(merged, stateFree)
		rf.prevPayloadSize = merged
		a.freeList.insert(mergeAddr)
	}

	a.lastRightFencepost = rightFenceAddr
	a.chunks = append(a.chunks, chunk{base: base, limit: rightFenceAddr + headerSize})
	return nil
}
