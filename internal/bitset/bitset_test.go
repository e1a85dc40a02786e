// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bitset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetClearTest(t *testing.T) {
	s := New(130) // spans three words
	require.True(t, s.IsEmpty())

	s.Set(0)
	s.Set(63)
	s.Set(64)
	s.Set(129)
	require.True(t, s.Test(0))
	require.True(t, s.Test(63))
	require.True(t, s.Test(64))
	require.True(t, s.Test(129))
	require.False(t, s.Test(1))
	require.Equal(t, 4, s.PopCount())

	s.Clear(64)
	require.False(t, s.Test(64))
	require.Equal(t, 3, s.PopCount())
}

func TestClearAll(t *testing.T) {
	s := New(70)
	s.Set(5)
	s.Set(65)
	s.ClearAll()
	require.True(t, s.IsEmpty())
}

func TestUnionIntoReportsChange(t *testing.T) {
	dst := New(70)
	src := New(70)
	src.Set(65)

	require.True(t, UnionInto(dst, src))
	require.True(t, dst.Test(65))
	require.False(t, UnionInto(dst, src), "second union of the same bits changes nothing")
}

func TestAndNot(t *testing.T) {
	dst := New(64)
	src := New(64)
	dst.Set(1)
	dst.Set(2)
	src.Set(2)

	AndNot(dst, src)
	require.True(t, dst.Test(1))
	require.False(t, dst.Test(2))
}

func TestCopyIsIndependent(t *testing.T) {
	s := New(64)
	s.Set(3)
	c := s.Copy()
	c.Set(4)

	require.True(t, Equal(s, s))
	require.False(t, Equal(s, c))
	require.False(t, s.Test(4))
}

func TestCopyFrom(t *testing.T) {
	src := New(64)
	src.Set(10)
	dst := New(64)
	dst.CopyFrom(src)
	require.True(t, Equal(src, dst))
}

func TestRangeVisitsAscending(t *testing.T) {
	s := New(200)
	s.Set(199)
	s.Set(3)
	s.Set(64)

	var got []int
	s.Range(func(i int) { got = append(got, i) })
	require.Equal(t, []int{3, 64, 199}, got)
}
