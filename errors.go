// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package galloc

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrOutOfMemory is returned by Allocate, Calloc and Resize when the
// arena cannot be grown to satisfy a request: the SegmentSource failed
// or returned a misaligned base address.
var ErrOutOfMemory = errors.New("galloc: out of memory")

// ErrInvalid reports a misuse of the API: an out of range or otherwise
// nonsensical argument.
type ErrInvalid struct {
	Msg string
	Arg interface{}
}

func (e *ErrInvalid) Error() string {
	return fmt.Sprintf("galloc: invalid argument: %s (%v)", e.Msg, e.Arg)
}

// ErrCorrupt reports a violation of one of the heap invariants checked
// by Verify, the only function that returns it. Off is the byte offset,
// relative to the arena's original break (the first chunk's left
// fencepost), at which the violation was observed.
type ErrCorrupt struct {
	Msg      string
	Off      uintptr
	Expected int64
	Actual   int64
}

func (e *ErrCorrupt) Error() string {
	return fmt.Sprintf("galloc: corrupt heap at +%#x: %s (expected %d, got %d)", e.Off, e.Msg, e.Expected, e.Actual)
}

// fatalf logs a structured diagnostic at Fatal level and then invokes
// a.exit(1). Used for the two conditions spec.md declares fatal:
// double free and init-time misalignment of the segment break. The
// exit call is routed through a.exit (Options.Exit), rather than
// relying on zerolog's own Fatal-implies-os.Exit behavior, so tests
// can observe the fatal path without killing the test binary.
func (a *Allocator) fatalf(msg string, fields map[string]interface{}) {
	ev := a.log.WithLevel(zerolog.FatalLevel)
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
	a.exit(1)
}
