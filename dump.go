// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package galloc

import (
	"fmt"
	"io"
)

// DumpHeap writes one line per block between start and end, in address
// order, to out. start==0 defaults to the arena's original break;
// end==0 defaults to its current break. Intended for interactive
// debugging, per spec.md section 4.6; it takes the lock for the
// duration of the walk.
func (a *Allocator) DumpHeap(out io.Writer, start, end uintptr) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.origBreak == 0 {
		return nil
	}
	if start == 0 {
		start = a.origBreak
	}
	if end == 0 {
		end = a.lastRightFencepost + headerSize
	}

	for cur := start; cur < end; cur = rightNeighbour(cur) {
		h := headerAt(cur)
		if _, err := fmt.Fprintf(out, "%#x\tstate=%s\tsize=%d\tprev=%d\n",
			cur, dumpState(h.state()), h.size(), h.prevPayloadSize); err != nil {
			return err
		}
	}
	return nil
}

// DumpFreeList writes one line per block currently on the free list,
// head to tail, to out. Unlike DumpHeap, the order here is list order,
// not address order, which is useful for diagnosing a corrupted link.
func (a *Allocator) DumpFreeList(out io.Writer) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var walkErr error
	a.freeList.each(func(blockAddr uintptr) {
		if walkErr != nil {
			return
		}
		h := headerAt(blockAddr)
		links := linksAt(blockAddr)
		_, walkErr = fmt.Fprintf(out, "%#x\tsize=%d\tnext=%#x\tprev=%#x\n",
			blockAddr, h.size(), links.next, links.prev)
	})
	return walkErr
}

func dumpState(s state) string {
	switch s {
	case stateFree:
		return "free"
	case stateAllocated:
		return "alloc"
	case stateFencepost:
		return "fence"
	default:
		return "?"
	}
}
