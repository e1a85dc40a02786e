// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package segments implements StructSegments: a sorted, coalesced set
// of half-open integer intervals supporting add, subtract, covering
// segment, and emptiness (spec.md §4.7). It is a JIT-side utility used
// by the decomposition planner to track an aggregate's remainder
// byte-ranges.
package segments

import "sort"

// Segment is a half-open [Start, End) byte range.
type Segment struct {
	Start, End uint32
}

func (s Segment) touches(o Segment) bool {
	return s.Start <= o.End && o.Start <= s.End
}

// Set is a sorted, non-overlapping, non-touching collection of
// Segments.
type Set struct {
	segs []Segment
}

// NewSet builds a Set from an initial (possibly unsorted, possibly
// overlapping) list of segments by adding them one at a time.
func NewSet(initial ...Segment) *Set {
	s := &Set{}
	for _, seg := range initial {
		s.Add(seg)
	}
	return s
}

// IsEmpty reports whether the set has no segments.
func (s *Set) IsEmpty() bool { return len(s.segs) == 0 }

// Segments returns the segments in ascending order; callers must not
// mutate the returned slice.
func (s *Set) Segments() []Segment { return s.segs }

// CoveringSegment returns (first.Start, last.End) if the set is
// non-empty, for deciding whether the remainder is a single hole.
func (s *Set) CoveringSegment() (Segment, bool) {
	if len(s.segs) == 0 {
		return Segment{}, false
	}
	return Segment{s.segs[0].Start, s.segs[len(s.segs)-1].End}, true
}

// Add inserts seg, merging with any segment it intersects or touches.
// Per spec.md §4.7: binary-search by end, insert, then repeatedly
// merge with the neighbor to the right while intersecting-or-adjacent.
func (s *Set) Add(seg Segment) {
	if seg.Start >= seg.End {
		return
	}
	i := sort.Search(len(s.segs), func(i int) bool { return s.segs[i].End >= seg.Start })

	// Merge with every existing segment that seg touches, starting from
	// i and walking right.
	merged := seg
	j := i
	for j < len(s.segs) && s.segs[j].touches(merged) {
		if s.segs[j].Start < merged.Start {
			merged.Start = s.segs[j].Start
		}
		if s.segs[j].End > merged.End {
			merged.End = s.segs[j].End
		}
		j++
	}
	out := make([]Segment, 0, len(s.segs)-(j-i)+1)
	out = append(out, s.segs[:i]...)
	out = append(out, merged)
	out = append(out, s.segs[j:]...)
	s.segs = out
}

// Subtract removes seg from the set, splitting, trimming, or deleting
// segments as needed, per spec.md §4.7.
func (s *Set) Subtract(seg Segment) {
	if seg.Start >= seg.End {
		return
	}
	var out []Segment
	for _, e := range s.segs {
		if e.End <= seg.Start || e.Start >= seg.End {
			// no overlap
			out = append(out, e)
			continue
		}
		if e.Start < seg.Start {
			out = append(out, Segment{e.Start, seg.Start})
		}
		if e.End > seg.End {
			out = append(out, Segment{seg.End, e.End})
		}
	}
	s.segs = out
}

// Equal reports whether a and b hold identical segments.
func Equal(a, b *Set) bool {
	if len(a.segs) != len(b.segs) {
		return false
	}
	for i := range a.segs {
		if a.segs[i] != b.segs[i] {
			return false
		}
	}
	return true
}
