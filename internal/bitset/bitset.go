// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bitset provides a dense, fixed-width bit vector used by the
// liveness package wherever a raw bit-packed integer
// would otherwise leak through the API. The packing direction is
// always explicit at the type level rather than left as a convention
// comment, per the teacher's Design Notes on unchecked bit-packed
// integers.
package bitset

import "math/bits"

const wordBits = 64

// Set is a fixed-size bit vector backed by a []uint64.
type Set struct {
	words []uint64
	n     int
}

// New returns a Set with n bits, all clear.
func New(n int) *Set {
	return &Set{words: make([]uint64, (n+wordBits-1)/wordBits), n: n}
}

// Len returns the number of addressable bits.
func (s *Set) Len() int { return s.n }

// Set sets bit i.
func (s *Set) Set(i int) {
	s.words[i/wordBits] |= 1 << uint(i%wordBits)
}

// Clear clears bit i.
func (s *Set) Clear(i int) {
	s.words[i/wordBits] &^= 1 << uint(i%wordBits)
}

// Test reports whether bit i is set.
func (s *Set) Test(i int) bool {
	return s.words[i/wordBits]&(1<<uint(i%wordBits)) != 0
}

// ClearAll clears every bit.
func (s *Set) ClearAll() {
	for i := range s.words {
		s.words[i] = 0
	}
}

// IsEmpty reports whether no bit is set.
func (s *Set) IsEmpty() bool {
	for _, w := range s.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// UnionInto ORs src into dst, returning whether dst changed.
func UnionInto(dst, src *Set) bool {
	changed := false
	for i := range dst.words {
		nv := dst.words[i] | src.words[i]
		if nv != dst.words[i] {
			changed = true
		}
		dst.words[i] = nv
	}
	return changed
}

// AndNot computes dst &^= src, in place.
func AndNot(dst, src *Set) {
	for i := range dst.words {
		dst.words[i] &^= src.words[i]
	}
}

// Copy returns an independent copy of s.
func (s *Set) Copy() *Set {
	words := make([]uint64, len(s.words))
	copy(words, s.words)
	return &Set{words: words, n: s.n}
}

// CopyFrom overwrites s's contents with src's (same length).
func (s *Set) CopyFrom(src *Set) {
	copy(s.words, src.words)
}

// Equal reports whether a and b have identical bits.
func Equal(a, b *Set) bool {
	if a.n != b.n {
		return false
	}
	for i := range a.words {
		if a.words[i] != b.words[i] {
			return false
		}
	}
	return true
}

// PopCount returns the number of set bits.
func (s *Set) PopCount() int {
	c := 0
	for _, w := range s.words {
		c += bits.OnesCount64(w)
	}
	return c
}

// Range calls f for every set bit index in ascending order.
func (s *Set) Range(f func(i int)) {
	for wi, w := range s.words {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			f(wi*wordBits + b)
			w &= w - 1
		}
	}
}
