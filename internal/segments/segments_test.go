// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package segments

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestS5StructSegmentsSubtraction(t *testing.T) {
	s := NewSet(Segment{0, 32})

	s.Subtract(Segment{8, 16})
	require.Equal(t, []Segment{{0, 8}, {16, 32}}, s.Segments())

	s.Subtract(Segment{4, 28})
	require.Equal(t, []Segment{{0, 4}, {28, 32}}, s.Segments())

	s.Add(Segment{4, 28})
	require.Equal(t, []Segment{{0, 32}}, s.Segments())
}

// TestP6Idempotence: add(s); subtract(s) restores the set exactly.
func TestP6Idempotence(t *testing.T) {
	base := NewSet(Segment{0, 10}, Segment{20, 30})
	before := base.Segments()
	wantCopy := append([]Segment(nil), before...)

	base.Add(Segment{12, 18})
	base.Subtract(Segment{12, 18})

	require.Equal(t, wantCopy, base.Segments())
}

// TestP7Coalescing: after any mutation, no two stored segments touch.
func TestP7Coalescing(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	s := &Set{}
	for i := 0; i < 300; i++ {
		start := uint32(rng.Intn(200))
		end := start + uint32(1+rng.Intn(20))
		if rng.Intn(2) == 0 {
			s.Add(Segment{start, end})
		} else {
			s.Subtract(Segment{start, end})
		}
		segs := s.Segments()
		for j := 1; j < len(segs); j++ {
			require.Less(t, segs[j-1].End, segs[j].Start, "adjacent/overlapping segments must be coalesced")
		}
		for j := 0; j < len(segs); j++ {
			require.Less(t, segs[j].Start, segs[j].End)
		}
	}
}

func TestCoveringSegmentAndEmpty(t *testing.T) {
	s := &Set{}
	require.True(t, s.IsEmpty())
	_, ok := s.CoveringSegment()
	require.False(t, ok)

	s.Add(Segment{5, 10})
	s.Add(Segment{20, 25})
	cov, ok := s.CoveringSegment()
	require.True(t, ok)
	require.Equal(t, Segment{5, 25}, cov)
}
