// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package galloc

import "unsafe"

// state is the 3 bit tag packed into the low bits of a header's
// sizeAndState word.
type state uintptr

const (
	stateFree      state = 0
	stateAllocated state = 1
	stateFencepost state = 2

	stateMask  = uintptr(0x7)
	sizeMask   = ^stateMask
	wordSize   = unsafe.Sizeof(uintptr(0))
	minPayload = 2 * wordSize
)

// header is the two-word, in-band metadata prefix of every block. It is
// never instantiated by value; instances are obtained by overlaying
// this type on arena memory via headerAt.
type header struct {
	sizeAndState    uintptr
	prevPayloadSize uintptr
}

// headerSize is the logical header size: two machine words. The
// free-list link fields live in the payload of free blocks instead, so
// they are not part of this struct.
const headerSize = unsafe.Sizeof(header{})

// headerAt overlays a *header on the arena at the given address. addr
// must be the address of a block (the start of its header), not of its
// payload.
func headerAt(addr uintptr) *header {
	return (*header)(unsafe.Pointer(addr))
}

// size returns the block's payload size in bytes.
func (h *header) size() uintptr { return h.sizeAndState & sizeMask }

// state returns the block's state tag.
func (h *header) state() state { return state(h.sizeAndState & stateMask) }

// setSizeAndState packs size and st into the header's size word. It
// masks rather than assumes the low bits of size are zero, per the
// codec's own invariant.
func (h *header) setSizeAndState(size uintptr, st state) {
	h.sizeAndState = (size &^ stateMask) | (uintptr(st) & stateMask)
}

// setSize rewrites the size while preserving the current state tag.
func (h *header) setSize(size uintptr) {
	h.setSizeAndState(size, h.state())
}

// setState rewrites the state tag while preserving the current size.
func (h *header) setState(st state) {
	h.setSizeAndState(h.size(), st)
}

// addrOf returns the block's own header address as a uintptr, suitable
// for storing as a free-list link or a boundary tag target.
func addrOf(h *header) uintptr { return uintptr(unsafe.Pointer(h)) }

// payloadAddr returns the address of blockAddr's payload, i.e. the
// first byte past its header.
func payloadAddr(blockAddr uintptr) uintptr { return blockAddr + headerSize }

// headerFromPayload returns the header address for a payload pointer
// previously handed to a caller by Allocate/Calloc/Resize.
func headerFromPayload(p uintptr) uintptr { return p - headerSize }

// rightNeighbour returns the address of the block immediately to the
// right, in memory, of the block at blockAddr.
func rightNeighbour(blockAddr uintptr) uintptr {
	h := headerAt(blockAddr)
	return blockAddr + headerSize + h.size()
}

// leftNeighbour returns the address of the block immediately to the
// left, in memory, of the block at blockAddr, using the boundary tag
// (prevPayloadSize) stored in blockAddr's own header.
func leftNeighbour(blockAddr uintptr) uintptr {
	h := headerAt(blockAddr)
	return blockAddr - headerSize - h.prevPayloadSize
}

// freeLinks overlays the doubly linked free-list pointers stored in the
// payload of a free block. It must never be read or written for a
// block whose state is not stateFree.
type freeLinks struct {
	next uintptr
	prev uintptr
}

func linksAt(blockAddr uintptr) *freeLinks {
	return (*freeLinks)(unsafe.Pointer(payloadAddr(blockAddr)))
}

// roundUp8 rounds n up to the next multiple of 8, the payload and
// address alignment this allocator guarantees.
func roundUp8(n uintptr) uintptr {
	return (n + 7) &^ 7
}
