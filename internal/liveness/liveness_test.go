// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package liveness

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anttech/mrtrt/internal/ir"
	"github.com/anttech/mrtrt/internal/layout"
	"github.com/anttech/mrtrt/internal/promote"
)

func buildLinearFunc(t *testing.T) (*ir.Func, ir.LocalID, *promote.AggregateInfo) {
	t.Helper()
	fn := ir.NewFunc()
	v := ir.LocalID(1)
	l := &layout.ClassLayout{Size: 4, Fields: []layout.Field{{Offset: 0, Type: layout.TypeInt32}}}
	fn.AddAggregate(v, l, false)
	scalar := fn.NewLocal(layout.TypeInt32)

	b1 := fn.EntryScratch
	fn.NewNode(b1, ir.Node{Op: ir.OpFieldStore, Local: v, Offset: 0, Type: layout.TypeInt32})

	b2 := fn.NewBlock()
	b1.Succs = []ir.BlockID{b2.ID}
	fn.NewNode(b2, ir.Node{Op: ir.OpFieldLoad, Local: v, Offset: 0, Type: layout.TypeInt32})

	info := &promote.AggregateInfo{
		ParentLocal:  v,
		Replacements: []*promote.Replacement{{Offset: 0, Type: layout.TypeInt32, LocalID: scalar}},
	}
	return fn, v, info
}

func TestLiveOutAcrossLinearBlocks(t *testing.T) {
	fn, v, info := buildLinearFunc(t)
	infos := map[ir.LocalID]*promote.AggregateInfo{v: info}

	result := Compute(fn, infos)

	scalar := info.Replacements[0].LocalID
	require.True(t, result.IsReplacementLiveOut(fn.Blocks[0].ID, scalar))
	require.False(t, result.IsReplacementLiveOut(fn.Blocks[1].ID, scalar))
}

func TestDeathRecordedAtLastUse(t *testing.T) {
	fn, v, info := buildLinearFunc(t)
	infos := map[ir.LocalID]*promote.AggregateInfo{v: info}

	result := Compute(fn, infos)

	loadNode := fn.Blocks[1].Nodes[0]
	deaths := result.DeathsForNode(loadNode.ID)
	require.Equal(t, []ir.LocalID{info.Replacements[0].LocalID}, deaths)
}

// TestEHRegionUnion verifies a replacement only live-in to a handler
// block is also treated as live-out of the block it protects.
func TestEHRegionUnion(t *testing.T) {
	fn := ir.NewFunc()
	v := ir.LocalID(1)
	l := &layout.ClassLayout{Size: 4, Fields: []layout.Field{{Offset: 0, Type: layout.TypeInt32}}}
	fn.AddAggregate(v, l, false)
	scalar := fn.NewLocal(layout.TypeInt32)

	protected := fn.EntryScratch
	handler := fn.NewBlock()
	fn.NewNode(protected, ir.Node{Op: ir.OpFieldStore, Local: v, Offset: 0, Type: layout.TypeInt32})
	fn.NewNode(handler, ir.Node{Op: ir.OpFieldLoad, Local: v, Offset: 0, Type: layout.TypeInt32})
	fn.SetTryRegion([]ir.BlockID{protected.ID}, []ir.BlockID{handler.ID}, nil)

	info := &promote.AggregateInfo{
		ParentLocal:  v,
		Replacements: []*promote.Replacement{{Offset: 0, Type: layout.TypeInt32, LocalID: scalar}},
	}
	infos := map[ir.LocalID]*promote.AggregateInfo{v: info}

	result := Compute(fn, infos)
	require.True(t, result.IsReplacementLiveOut(protected.ID, scalar))
}

func TestAcyclicFastPathMatchesFixpoint(t *testing.T) {
	fn, v, info := buildLinearFunc(t)
	require.False(t, fn.HasBackEdges())
	infos := map[ir.LocalID]*promote.AggregateInfo{v: info}
	result := Compute(fn, infos)
	require.NotNil(t, result)
}
