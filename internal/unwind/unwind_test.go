// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unwind

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeRegistrar struct {
	fail       bool
	registered int
}

func (f *fakeRegistrar) Register(entries []RuntimeFunction) (Handle, error) {
	if f.fail {
		return nil, errors.New("injected failure")
	}
	f.registered++
	return f.registered, nil
}
func (f *fakeRegistrar) Grow(h Handle, entries []RuntimeFunction) error {
	if f.fail {
		return errors.New("injected failure")
	}
	return nil
}
func (f *fakeRegistrar) Unregister(h Handle) {}

func TestAppendKeepsSortedOrder(t *testing.T) {
	reg := &fakeRegistrar{}
	tbl := NewTable(reg, nil)

	require.NoError(t, tbl.Append(RuntimeFunction{BeginRVA: 10, EndRVA: 20, UnwindDataRVA: 1}))
	require.NoError(t, tbl.Append(RuntimeFunction{BeginRVA: 30, EndRVA: 40, UnwindDataRVA: 2}))
	require.NoError(t, tbl.Append(RuntimeFunction{BeginRVA: 5, EndRVA: 9, UnwindDataRVA: 3}))

	live := tbl.LiveEntries()
	require.Len(t, live, 3)
	for i := 1; i < len(live); i++ {
		require.Less(t, live[i-1].BeginRVA, live[i].BeginRVA)
	}
}

// TestP5SortednessUnderRandomOps checks property P5: the live entries
// of an unwind table are sorted by BeginRVA at every observable point,
// across a randomized sequence of appends and removals.
func TestP5SortednessUnderRandomOps(t *testing.T) {
	reg := &fakeRegistrar{}
	tbl := NewTable(reg, nil)
	rng := rand.New(rand.NewSource(3))

	var begins []uint32
	for i := 0; i < 300; i++ {
		if len(begins) > 0 && rng.Intn(3) == 0 {
			idx := rng.Intn(len(begins))
			tbl.Remove(begins[idx])
			begins = append(begins[:idx], begins[idx+1:]...)
			continue
		}
		b := uint32(rng.Intn(1_000_000))
		if err := tbl.Append(RuntimeFunction{BeginRVA: b, EndRVA: b + 4, UnwindDataRVA: 1}); err != nil {
			t.Fatal(err)
		}
		begins = append(begins, b)

		live := tbl.LiveEntries()
		for j := 1; j < len(live); j++ {
			require.LessOrEqual(t, live[j-1].BeginRVA, live[j].BeginRVA)
		}
	}
}

func TestOSPublicationFailureDegradesGracefully(t *testing.T) {
	reg := &fakeRegistrar{fail: true}
	tbl := NewTable(reg, nil)

	require.NoError(t, tbl.Append(RuntimeFunction{BeginRVA: 1, EndRVA: 2, UnwindDataRVA: 1}))
	require.False(t, tbl.published)
	require.Len(t, tbl.LiveEntries(), 1, "table stays logically correct even though unpublished")
}
