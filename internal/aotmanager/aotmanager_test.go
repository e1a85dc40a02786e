// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aotmanager

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMethodLookup(t *testing.T) {
	m := New("image.a", []MethodRange{
		{Lo: 0x2000, Hi: 0x2100, MethodID: 2},
		{Lo: 0x1000, Hi: 0x1100, MethodID: 1},
	})

	id, ok := m.MethodAt(0x1050)
	require.True(t, ok)
	require.Equal(t, uint64(1), id)

	require.True(t, m.IsManagedCode(0x2050))
	require.False(t, m.IsManagedCode(0x1800))

	_, ok = m.MethodAt(0x1100)
	require.False(t, ok)

	lo, hi, ok := m.Bounds()
	require.True(t, ok)
	require.Equal(t, uintptr(0x1000), lo)
	require.Equal(t, uintptr(0x2100), hi)
}

func TestOverlapPanics(t *testing.T) {
	require.Panics(t, func() {
		New("bad", []MethodRange{{Lo: 0, Hi: 0x100, MethodID: 1}, {Lo: 0x80, Hi: 0x200, MethodID: 2}})
	})
}
