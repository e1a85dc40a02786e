// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package codeheap

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestHeap(t *testing.T, kind Kind, maxSize uintptr) *Heap {
	t.Helper()
	h, err := New(Config{
		AllocatorID:  1,
		Kind:         kind,
		ReservedSize: maxSize,
		MaxSize:      maxSize,
	}, nil)
	require.NoError(t, err)
	return h
}

func TestAllocateCodeBumpsAndMarks(t *testing.T) {
	h := newTestHeap(t, KindStatic, 1<<20)

	a1, err := h.AllocateCode(0, 64, 8, 0)
	require.NoError(t, err)

	a2, err := h.AllocateCode(0, 32, 8, 0)
	require.NoError(t, err)
	require.Greater(t, a2, a1)

	got, ok := h.NibbleMap().FindBlockStart(a1)
	require.True(t, ok)
	require.Equal(t, a1, got)

	got, ok = h.NibbleMap().FindBlockStart(a2)
	require.True(t, ok)
	require.Equal(t, a2, got)
}

// TestP2BucketUniquenessUnderRandomSizes checks property P2: for any
// sequence of allocations of varying size, no two distinct code-block
// start addresses fall in the same 32-byte bucket.
func TestP2BucketUniquenessUnderRandomSizes(t *testing.T) {
	h := newTestHeap(t, KindStatic, 4<<20)
	rng := rand.New(rand.NewSource(7))

	seen := map[uintptr]uintptr{} // bucket -> start addr
	for i := 0; i < 500; i++ {
		size := uintptr(1 + rng.Intn(200))
		addr, err := h.AllocateCode(0, size, 4, 0)
		require.NoError(t, err)
		bucket := bucketBase(addr)
		if prev, ok := seen[bucket]; ok {
			t.Fatalf("bucket %x reused: %x and %x", bucket, prev, addr)
		}
		seen[bucket] = addr
	}
}

func TestAllocateCodeOutOfMemory(t *testing.T) {
	h := newTestHeap(t, KindStatic, 128)
	_, err := h.AllocateCode(0, 64, 8, 0)
	require.NoError(t, err)
	_, err = h.AllocateCode(0, 256, 8, 0)
	require.ErrorIs(t, err, ErrOutOfMemory)
}

func TestJumpStubReserveBlocksNormalAllocationButNotReserveAlloc(t *testing.T) {
	h := newTestHeap(t, KindStatic, 256)
	h.jumpStubReserve = 128

	// Normal allocation must leave room for the reserve.
	_, err := h.AllocateCode(0, 200, 1, 0)
	require.ErrorIs(t, err, ErrOutOfMemory)

	// AllocateFromReserve may eat into it.
	addr, err := h.AllocateFromReserve(0, 200, 1)
	require.NoError(t, err)
	require.Equal(t, h.reservedBase, addr)
}

func TestCollectibleHeapFreeListReuse(t *testing.T) {
	h := newTestHeap(t, KindCollectible, 1<<16)

	a1, err := h.AllocateCode(0, 64, 8, 0)
	require.NoError(t, err)

	require.NoError(t, h.Free(a1, 64))

	a2, err := h.AllocateCode(0, 32, 8, 0)
	require.NoError(t, err)
	require.Equal(t, a1, a2, "should reuse the freed cell rather than bump past it")
}
