// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jumpstub

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anttech/mrtrt/internal/codeheap"
)

func TestS4JumpStubWithinWindow(t *testing.T) {
	pool := codeheap.NewPool(codeheap.Config{
		ReservedSize: 1 << 20,
		MaxSize:      1 << 20,
	}, codeheap.PlatformHints{}, nil)
	mgr := New(pool, 1, false)

	// The literal window from spec.md §8 scenario S4.
	lo := uintptr(0xFFFF_F000)
	hi := uintptr(0x1_0000_8000)

	s1, err := mgr.GetOrCreate(0x1_0000_0000, lo, hi)
	require.NoError(t, err)
	require.GreaterOrEqual(t, s1, lo)
	require.LessOrEqual(t, s1, hi)

	s1Again, err := mgr.GetOrCreate(0x1_0000_0000, lo, hi)
	require.NoError(t, err)
	require.Equal(t, s1, s1Again, "same target+window must return the same stub")

	s2, err := mgr.GetOrCreate(0x1_0000_0100, lo, hi)
	require.NoError(t, err)
	require.NotEqual(t, s1, s2)
	require.GreaterOrEqual(t, s2, lo)
	require.LessOrEqual(t, s2, hi)
}

func TestGetOrCreateFailsOutsideWindow(t *testing.T) {
	pool := codeheap.NewPool(codeheap.Config{
		ReservedSize: 1 << 20,
		MaxSize:      1 << 20,
	}, codeheap.PlatformHints{}, nil)
	mgr := New(pool, 1, false)

	_, err := mgr.GetOrCreate(0x1_0000_0000, 0x2, 0x3)
	require.ErrorIs(t, err, ErrOutOfMemoryWithinRange)
}

func TestLCGTeardownDoesNotShareStubs(t *testing.T) {
	pool := codeheap.NewPool(codeheap.Config{
		ReservedSize: 1 << 20,
		MaxSize:      1 << 20,
	}, codeheap.PlatformHints{}, nil)

	m1 := New(pool, 100, true)
	m2 := New(pool, 200, true)

	s1, err := m1.GetOrCreate(0xABCD, 0, ^uintptr(0))
	require.NoError(t, err)
	s2, err := m2.GetOrCreate(0xABCD, 0, ^uintptr(0))
	require.NoError(t, err)
	require.NotEqual(t, s1, s2, "LCG methods must never share jump stubs")

	m1.TeardownMethod()
	require.Empty(t, m1.blocks)
}
