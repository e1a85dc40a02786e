// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package execmgr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anttech/mrtrt/internal/aotmanager"
	"github.com/anttech/mrtrt/internal/codeheap"
	"github.com/anttech/mrtrt/internal/rangesection"
)

func newTestManager(t *testing.T) (*Manager, *codeheap.Pool) {
	t.Helper()
	pool := codeheap.NewPool(codeheap.Config{
		ReservedSize: 1 << 20,
		MaxSize:      1 << 20,
	}, codeheap.PlatformHints{}, nil)
	reg := rangesection.NewRegistry(false)
	return New(reg, pool, nil), pool
}

func TestAddCodeRangeAndLookup(t *testing.T) {
	m, pool := newTestManager(t)

	h, err := pool.EnsureHeap(1, codeheap.KindStatic, 64)
	require.NoError(t, err)
	addr, err := h.AllocateCode(0, 64, 8, 0)
	require.NoError(t, err)
	h.MarkReal(addr, 42)

	require.NoError(t, m.AddCodeRange(h, h.ReservedBase()+1<<20, 0, nil))

	require.True(t, m.IsManagedCode(addr))
	id, ok := m.CodeMethod(addr)
	require.True(t, ok)
	require.Equal(t, uint64(42), id)

	sec, ok := m.FindCodeRange(addr)
	require.True(t, ok)
	require.Equal(t, h.MapBase(), sec.Range.Lo)

	require.NoError(t, m.DeleteRange(h.MapBase()))
	require.False(t, m.IsManagedCode(addr))
}

func TestJumpStubThroughFacade(t *testing.T) {
	m, _ := newTestManager(t)

	lo, hi := uintptr(0), ^uintptr(0)
	addr, ok, err := m.JumpStub(0x1_0000_0000, lo, hi, 1, 0, false, false)
	require.NoError(t, err)
	require.True(t, ok)
	require.GreaterOrEqual(t, addr, lo)
	require.LessOrEqual(t, addr, hi)

	_, ok, err = m.JumpStub(0x1_0000_0000, 0x2, 0x3, 1, 0, false, false)
	require.NoError(t, err)
	require.False(t, ok, "out-of-range-within-window returns ok=false, not an error")

	_, _, err = m.JumpStub(0x1_0000_0000, 0x2, 0x3, 1, 0, false, true)
	require.Error(t, err, "throwOnFailure must propagate the error")
}

func TestAOTRangeSharesRegistry(t *testing.T) {
	m, _ := newTestManager(t)

	aot := aotmanager.New("image", []aotmanager.MethodRange{{Lo: 0x5000, Hi: 0x5100, MethodID: 9}})
	lo, hi, ok := aot.Bounds()
	require.True(t, ok)
	require.NoError(t, m.AddAOTRange(aot, lo, hi))

	require.True(t, m.IsManagedCode(0x5050))
	id, ok := m.CodeMethod(0x5050)
	require.True(t, ok)
	require.Equal(t, uint64(9), id)
}
