// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rangesection

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeJitManager struct{ name string }

func (f fakeJitManager) Name() string                                 { return f.name }
func (f fakeJitManager) IsManagedCode(pc uintptr) bool                 { return true }
func (f fakeJitManager) MethodAt(pc uintptr) (uint64, bool)            { return 0, true }

func TestS3RangeLookup(t *testing.T) {
	r := NewRegistry(false)
	require.NoError(t, r.Add(&Section{Range: Range{0x10000, 0x11000}, Owner: fakeJitManager{"a"}}))
	require.NoError(t, r.Add(&Section{Range: Range{0x20000, 0x21000}, Owner: fakeJitManager{"b"}}))

	sec, ok := r.Get(0x105FF)
	require.True(t, ok)
	require.Equal(t, "a", sec.Owner.(fakeJitManager).name)

	_, ok = r.Get(0x11000)
	require.False(t, ok)

	sec, ok = r.Get(0x20800)
	require.True(t, ok)
	require.Equal(t, "b", sec.Owner.(fakeJitManager).name)
}

func TestAddRejectsOverlap(t *testing.T) {
	r := NewRegistry(false)
	require.NoError(t, r.Add(&Section{Range: Range{0x1000, 0x2000}, Owner: fakeJitManager{"a"}}))
	err := r.Add(&Section{Range: Range{0x1800, 0x2800}, Owner: fakeJitManager{"b"}})
	require.Error(t, err)
}

// TestP3Sortedness checks property P3: after any sequence of Add and
// Delete calls, the registry contains exactly the added-but-not-deleted
// ranges, in sorted, non-overlapping order.
func TestP3Sortedness(t *testing.T) {
	r := NewRegistry(true)
	rng := rand.New(rand.NewSource(42))

	live := map[uintptr]Range{}
	for i := 0; i < 100; i++ {
		lo := uintptr(rng.Intn(1_000_000)) * 0x1000
		hi := lo + uintptr(1+rng.Intn(8))*0x1000
		sec := &Section{Range: Range{lo, hi}, Owner: fakeJitManager{"x"}}
		if err := r.Add(sec); err == nil {
			live[lo] = sec.Range
		}
	}

	for lo := range live {
		if rng.Intn(2) == 0 {
			_, err := r.Delete(lo)
			require.NoError(t, err)
			delete(live, lo)
		}
	}

	got := r.All()
	require.Len(t, got, len(live))

	var want []Range
	for _, rg := range live {
		want = append(want, rg)
	}
	sort.Slice(want, func(i, j int) bool { return want[i].Lo < want[j].Lo })

	require.Equal(t, want, got)

	for i := 1; i < len(got); i++ {
		require.Less(t, got[i-1].Hi, got[i].Lo+1, "ranges must not overlap")
		require.Less(t, got[i-1].Lo, got[i].Lo, "ranges must be sorted")
	}
}
