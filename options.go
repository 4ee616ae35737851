// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package galloc

import (
	"os"

	"github.com/rs/zerolog"
)

// Options are passed to New to amend the behavior of the Allocator it
// produces. Following the teacher package's own Options convention
// (cznic/exp/dbm.Options), the zero value is a usable default and
// fields are only consulted once, by New.
type Options struct {
	// Fit selects the free-list search policy. The zero value,
	// FirstFit, is the default. This is this module's rendering of
	// spec.md's "single compile-time switch" between first-fit and
	// best-fit: it is fixed for the Allocator's lifetime.
	Fit FitPolicy

	// Granularity is the unit arena growth is rounded up to. 0
	// selects 4096, spec.md's default.
	Granularity uintptr

	// Segment supplies the arena's backing storage. A nil Segment
	// selects NewOSSegmentSource(0) on platforms where that is
	// available; tests typically pass NewMemSegmentSource(0) instead.
	Segment SegmentSource

	// Logger receives the structured diagnostics emitted for fatal
	// conditions (double free, init-time misalignment); nothing else is
	// logged, and allocations are not traced. The zero value logs to
	// os.Stderr with timestamps and no minimum level set.
	Logger *zerolog.Logger

	// Exit is invoked with a non-zero code after a fatal condition
	// has been logged, to terminate the process per spec.md's "emit a
	// diagnostic and terminate the process" contract. The zero value
	// is os.Exit. Tests override it to observe the fatal path without
	// killing the test binary.
	Exit func(code int)
}

func (o Options) normalize() Options {
	if o.Granularity == 0 {
		o.Granularity = 4096
	}
	if o.Logger == nil {
		l := zerolog.New(os.Stderr).With().Timestamp().Logger()
		o.Logger = &l
	}
	if o.Exit == nil {
		o.Exit = os.Exit
	}
	return o
}
