// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package access

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anttech/mrtrt/internal/ir"
	"github.com/anttech/mrtrt/internal/layout"
)

func fourInt32Layout() *layout.ClassLayout {
	return &layout.ClassLayout{
		Size: 16,
		Fields: []layout.Field{
			{Offset: 0, Type: layout.TypeInt32},
			{Offset: 4, Type: layout.TypeInt32},
			{Offset: 8, Type: layout.TypeInt32},
			{Offset: 12, Type: layout.TypeInt32},
		},
	}
}

func TestProfileFindKeepsOffsetsSorted(t *testing.T) {
	p := NewProfile(1)
	p.Record(8, layout.TypeInt32, 0, 1)
	p.Record(0, layout.TypeInt32, 0, 1)
	p.Record(4, layout.TypeInt32, 0, 1)

	var offsets []uint32
	for _, a := range p.Accesses() {
		offsets = append(offsets, a.Offset)
	}
	require.Equal(t, []uint32{0, 4, 8}, offsets)
}

func TestProfileFindDistinguishesTypeAtSameOffset(t *testing.T) {
	p := NewProfile(1)
	p.Record(0, layout.TypeInt32, 0, 1)
	p.Record(0, layout.TypeFloat32, 0, 1)
	require.Len(t, p.Accesses(), 2, "a union field read as two types is two distinct entries")
}

func TestRecordWholeLeavesBaselineCountUntouched(t *testing.T) {
	p := NewProfile(1)
	p.RecordWhole(0, layout.TypeInt32, IsAssignmentSource, 3)

	a := p.find(0, layout.TypeInt32)
	require.Zero(t, a.Count)
	require.Zero(t, a.CountWtd)
	require.Equal(t, 3.0, a.CountAssignSrcWtd)
}

func TestRecordAccumulatesBaselineAndFlagCounters(t *testing.T) {
	p := NewProfile(1)
	p.Record(0, layout.TypeInt32, IsAssignmentDestination, 2)
	p.Record(0, layout.TypeInt32, IsAssignmentDestination, 5)

	a := p.find(0, layout.TypeInt32)
	require.Equal(t, uint64(2), a.Count)
	require.Equal(t, 7.0, a.CountWtd)
	require.Equal(t, 7.0, a.CountAssignDstWtd)
}

func TestBuildProfilesFieldLoads(t *testing.T) {
	fn := ir.NewFunc()
	fn.AddAggregate(1, fourInt32Layout(), false)

	for i := 0; i < 3; i++ {
		fn.NewNode(fn.EntryScratch, ir.Node{Op: ir.OpFieldLoad, Local: 1, Offset: 0, Type: layout.TypeInt32})
	}

	profiles := BuildProfiles(fn, UniformWeight)
	p, ok := profiles[1]
	require.True(t, ok)
	require.Len(t, p.Accesses(), 1)
	require.Equal(t, uint64(3), p.Accesses()[0].Count)
}

func TestBuildProfilesSkipsAddressExposedLocal(t *testing.T) {
	fn := ir.NewFunc()
	fn.AddAggregate(1, fourInt32Layout(), false)
	fn.Locals[1].AddressExposed = true
	fn.NewNode(fn.EntryScratch, ir.Node{Op: ir.OpFieldLoad, Local: 1, Offset: 0, Type: layout.TypeInt32})

	profiles := BuildProfiles(fn, UniformWeight)
	_, ok := profiles[1]
	require.False(t, ok, "address-exposed locals are never profiled")
}

func TestBuildProfilesBlockCopyRecordsEveryFieldAsWholeUse(t *testing.T) {
	fn := ir.NewFunc()
	fn.AddAggregate(1, fourInt32Layout(), false)
	fn.AddAggregate(2, fourInt32Layout(), false)
	fn.NewNode(fn.EntryScratch, ir.Node{Op: ir.OpBlockCopy, Local: 1, SrcLocal: 2})

	profiles := BuildProfiles(fn, UniformWeight)

	dst := profiles[1]
	require.Len(t, dst.Accesses(), 4, "a block copy touches every field of the destination's layout")
	for _, a := range dst.Accesses() {
		require.Zero(t, a.Count, "whole-aggregate uses never contribute to the baseline count")
		require.Equal(t, 1.0, a.CountAssignDstWtd)
	}

	src := profiles[2]
	require.Len(t, src.Accesses(), 4)
	for _, a := range src.Accesses() {
		require.Equal(t, 1.0, a.CountAssignSrcWtd)
	}
}

func TestBuildProfilesWeightsByBlock(t *testing.T) {
	fn := ir.NewFunc()
	fn.AddAggregate(1, fourInt32Layout(), false)
	loop := fn.NewBlock()
	fn.NewNode(loop, ir.Node{Op: ir.OpFieldLoad, Local: 1, Offset: 0, Type: layout.TypeInt32})

	weight := func(b ir.BlockID) float64 {
		if b == loop.ID {
			return 10
		}
		return 1
	}

	profiles := BuildProfiles(fn, weight)
	a := profiles[1].Accesses()[0]
	require.Equal(t, uint64(1), a.Count)
	require.Equal(t, 10.0, a.CountWtd)
}
