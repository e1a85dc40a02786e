// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package codeheap

import "github.com/sirupsen/logrus"

// placementStrategy attempts to choose a ReservedBase/ReservedSize for
// a heap being created to satisfy a constrained [lo, hi] request. It
// returns ok=false to mean "try the next strategy," not an error: the
// chain in spec.md §4.2 is a sequence of increasingly desperate
// placements, not parallel attempts.
type placementStrategy func(lo, hi, minSize uintptr) (base, size uintptr, ok bool)

// centeredStrategy places the new heap's reservation centered within
// [lo, hi], which maximizes slack on both sides for future constrained
// requests sharing this heap.
func centeredStrategy(lo, hi, minSize uintptr) (uintptr, uintptr, bool) {
	window := hi - lo
	if window < minSize {
		return 0, 0, false
	}
	base := lo + (window-minSize)/2
	return base, minSize, true
}

// wholeWindowStrategy uses the entire [lo, hi] window as the
// reservation when it is at least minSize, sacrificing centering for
// maximum room.
func wholeWindowStrategy(lo, hi, minSize uintptr) (uintptr, uintptr, bool) {
	window := hi - lo
	if window < minSize {
		return 0, 0, false
	}
	return lo, window, true
}

// coarserGranularityStrategy rounds the window inward to the platform
// allocation granularity (lo up, hi down) and tries again against the
// (now possibly smaller, but OS-aligned) window; coarser requests
// succeed more often against OS reservation APIs that only grant
// aligned regions.
func coarserGranularityStrategy(granularity uintptr) placementStrategy {
	return func(lo, hi, minSize uintptr) (uintptr, uintptr, bool) {
		alignedLo := (lo + granularity - 1) &^ (granularity - 1)
		alignedHi := hi &^ (granularity - 1)
		if alignedHi <= alignedLo || alignedHi-alignedLo < minSize {
			return 0, 0, false
		}
		return alignedLo, alignedHi - alignedLo, true
	}
}

// emergencyReserveStrategy is the last resort: carve out of a
// pre-reserved low-memory region the platform sets aside specifically
// for jump-stub-reachable allocations (e.g. near the image base on
// platforms with a 32-bit relative call range). EmergencyBase/Size of
// zero means the platform maintains no such reserve, and this strategy
// declines.
func emergencyReserveStrategy(emergencyBase, emergencySize uintptr) placementStrategy {
	return func(lo, hi, minSize uintptr) (uintptr, uintptr, bool) {
		if emergencySize == 0 {
			return 0, 0, false
		}
		base := emergencyBase
		if base < lo {
			base = lo
		}
		end := emergencyBase + emergencySize
		if end > hi {
			end = hi
		}
		if end <= base || end-base < minSize {
			return 0, 0, false
		}
		return base, end - base, true
	}
}

// PlatformHints configures the coarser-granularity and emergency
// strategies; a Pool carries exactly one set, established at engine
// construction.
type PlatformHints struct {
	AllocationGranularity uintptr
	EmergencyReserveBase  uintptr
	EmergencyReserveSize  uintptr
}

// NewHeapForRange creates a heap sized to satisfy a constrained
// request, trying each placement strategy in order until one
// succeeds, per spec.md §4.2.
//
// The chosen base/size feed Config.ReservedBase/ReservedSize, and New
// honors a nonzero ReservedBase via the reserver's ReserveAt (an
// address hint that must be granted exactly on unix; a recorded
// logical base over ordinary memory on the portable build). A strategy
// whose chosen base the platform cannot actually honor (already
// mapped, out of the addressable range, ...) simply fails New and the
// loop below falls through to the next, increasingly desperate
// strategy. When every strategy fails, a heap at a platform-chosen
// address is kept if its whole window happens to lie inside [lo, hi].
func NewHeapForRange(cfg Config, lo, hi, minSize uintptr, hints PlatformHints, log *logrus.Entry) (*Heap, error) {
	strategies := []placementStrategy{
		centeredStrategy,
		wholeWindowStrategy,
	}
	if hints.AllocationGranularity > 0 {
		strategies = append(strategies, coarserGranularityStrategy(hints.AllocationGranularity))
	}
	strategies = append(strategies, emergencyReserveStrategy(hints.EmergencyReserveBase, hints.EmergencyReserveSize))

	for _, strat := range strategies {
		base, size, ok := strat(lo, hi, minSize)
		if !ok {
			continue
		}
		c := cfg
		c.ReservedBase = base
		c.ReservedSize = size
		if c.MaxSize == 0 || c.MaxSize > size {
			c.MaxSize = size
		}
		h, err := New(c, log)
		if err != nil {
			continue
		}
		return h, nil
	}
	c := cfg
	c.ReservedBase = 0
	if h, err := New(c, log); err == nil {
		if h.reservedBase >= lo && h.reservedBase+h.maxSize <= hi {
			return h, nil
		}
		_ = defaultReserver.Release(h.reservation)
	}
	return nil, ErrOutOfMemoryWithinRange
}
