// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package galloc

// splitThreshold is the minimum amount, over the requested size, that a
// free block must have so that splitting it leaves a remainder able to
// hold a header plus the minimum free-link payload.
const splitThreshold = headerSize + minPayload

// canSplit reports whether a free block of blockSize bytes payload is
// eligible to be split when servicing a request for want bytes.
func canSplit(blockSize, want uintptr) bool {
	return blockSize-want >= splitThreshold
}

// split shrinks the free block at blockAddr to a want-byte payload and
// creates a new free block with the remainder immediately to its
// right, linking the remainder at the head of fl and fixing up the
// boundary tag of the block beyond the remainder. blockAddr remains
// free; the caller (Allocator.allocLocked) marks it allocated afterwards.
//
// Precondition: canSplit(headerAt(blockAddr).size(), want).
func split(fl *freeList, blockAddr, want uintptr) {
	h := headerAt(blockAddr)
	total := h.size()
	remainderSize := total - want - headerSize

	h.setSize(want)

	remainderAddr := blockAddr + headerSize + want
	rh := headerAt(remainderAddr)
	rh.setSizeAndState(remainderSize, stateFree)
	rh.prevPayloadSize = want

	headerAt(rightNeighbour(remainderAddr)).prevPayloadSize = remainderSize

	fl.insert(remainderAddr)
}

// coalesceOnFree folds the newly-freed block at blockAddr into the
// free list, merging it with whichever of its physical neighbours are
// themselves free so that invariant 4 (no two adjacent free blocks)
// keeps holding. It implements this four-way table:
//
//	left  right  action
//	----  -----  ------
//	used  used   mark free, insert at head
//	used  free   merge right into this block, inheriting right's
//	             free-list position (not a fresh head-insert)
//	free  used   merge this block into left; left keeps its position
//	free  free   unlink right, merge both into left
func coalesceOnFree(fl *freeList, blockAddr uintptr) {
	h := headerAt(blockAddr)

	leftAddr := leftNeighbour(blockAddr)
	rightAddr := rightNeighbour(blockAddr)

	leftFree := headerAt(leftAddr).state() == stateFree
	rightFree := headerAt(rightAddr).state() == stateFree

	switch {
	case !leftFree && !rightFree:
		h.setState(stateFree)
		fl.insert(blockAddr)

	case !leftFree && rightFree:
		mergeRightInPlace(fl, blockAddr, rightAddr)

	case leftFree && !rightFree:
		mergeIntoLeft(leftAddr, blockAddr)

	case leftFree && rightFree:
		fl.remove(rightAddr)
		mergeIntoLeft(leftAddr, rightAddr)
	}
}

// mergeRightInPlace merges the free block at rightAddr into the
// soon-to-be-free block at blockAddr. blockAddr inherits rightAddr's
// exact free-list position (same neighbours, same head-or-not status)
// rather than being unlinked and head-inserted; this is an observable
// policy choice that affects first-fit search order.
func mergeRightInPlace(fl *freeList, blockAddr, rightAddr uintptr) {
	h := headerAt(blockAddr)
	rh := headerAt(rightAddr)
	merged := h.size() + headerSize + rh.size()

	rl := linksAt(rightAddr)
	next, prev := rl.next, rl.prev

	h.setSizeAndState(merged, stateFree)

	bl := linksAt(blockAddr)
	bl.next, bl.prev = next, prev
	if prev != 0 {
		linksAt(prev).next = blockAddr
	} else {
		fl.head = blockAddr
	}
	if next != 0 {
		linksAt(next).prev = blockAddr
	}

	headerAt(rightNeighbour(blockAddr)).prevPayloadSize = merged
}

// mergeIntoLeft absorbs everything physically between leftAddr
// (exclusive) and farBoundary (inclusive) into the free block at
// leftAddr, which keeps its current free-list position untouched.
// farBoundary is the just-freed block itself in the left+used case, or
// its already-unlinked right neighbour in the left+free+right+free
// case.
func mergeIntoLeft(leftAddr, farBoundary uintptr) {
	merged := mergedPayload(leftAddr, farBoundary)

	headerAt(leftAddr).setSizeAndState(merged, stateFree)
	headerAt(rightNeighbour(leftAddr)).prevPayloadSize = merged
}

// mergedPayload computes the payload size that block leftAddr must
// have after absorbing every block physically between it (exclusive)
// and farBoundary (inclusive), given all of them - headers included -
// become part of one contiguous free payload.
func mergedPayload(leftAddr, farBoundary uintptr) uintptr {
	lh := headerAt(leftAddr)
	total := lh.size()
	cur := rightNeighbour(leftAddr)
	for {
		ch := headerAt(cur)
		total += headerSize + ch.size()
		if cur == farBoundary {
			return total
		}
		cur = rightNeighbour(cur)
	}
}
