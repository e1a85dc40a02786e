// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decompose

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anttech/mrtrt/internal/ir"
	"github.com/anttech/mrtrt/internal/layout"
	"github.com/anttech/mrtrt/internal/liveness"
	"github.com/anttech/mrtrt/internal/promote"
)

func TestFieldLoadRewriteInsertsReadBackWhenStale(t *testing.T) {
	fn := ir.NewFunc()
	v := ir.LocalID(1)
	l := &layout.ClassLayout{Size: 4, Fields: []layout.Field{{Offset: 0, Type: layout.TypeInt32}}}
	fn.AddAggregate(v, l, false)
	scalar := fn.NewLocal(layout.TypeInt32)
	rep := &promote.Replacement{Offset: 0, Type: layout.TypeInt32, LocalID: scalar, NeedsReadBack: true}
	info := &promote.AggregateInfo{ParentLocal: v, Replacements: []*promote.Replacement{rep}}
	infos := map[ir.LocalID]*promote.AggregateInfo{v: info}

	b := fn.EntryScratch
	fn.NewNode(b, ir.Node{Op: ir.OpFieldLoad, Local: v, Offset: 0, Type: layout.TypeInt32})

	live := liveness.Compute(fn, infos)
	NewPlanner(fn, infos, live).Run()

	require.Len(t, b.Nodes, 2)
	require.Equal(t, ir.OpReadBack, b.Nodes[0].Op)
	require.Equal(t, scalar, b.Nodes[0].ScalarLocal)
	require.Equal(t, ir.OpLocalLoad, b.Nodes[1].Op)
	require.Equal(t, scalar, b.Nodes[1].Local)
	require.False(t, rep.NeedsReadBack)
}

func TestFieldStoreSetsWriteBack(t *testing.T) {
	fn := ir.NewFunc()
	v := ir.LocalID(1)
	l := &layout.ClassLayout{Size: 4, Fields: []layout.Field{{Offset: 0, Type: layout.TypeInt32}}}
	fn.AddAggregate(v, l, false)
	scalar := fn.NewLocal(layout.TypeInt32)
	rep := &promote.Replacement{Offset: 0, Type: layout.TypeInt32, LocalID: scalar}
	info := &promote.AggregateInfo{ParentLocal: v, Replacements: []*promote.Replacement{rep}}
	infos := map[ir.LocalID]*promote.AggregateInfo{v: info}

	b := fn.EntryScratch
	fn.NewNode(b, ir.Node{Op: ir.OpFieldStore, Local: v, Offset: 0, Type: layout.TypeInt32})

	live := liveness.Compute(fn, infos)
	NewPlanner(fn, infos, live).Run()

	require.Len(t, b.Nodes, 1)
	require.Equal(t, ir.OpLocalStore, b.Nodes[0].Op)
	require.True(t, rep.NeedsWriteBack)
}

func TestCallArgEmitsWriteBackAndClearsFlag(t *testing.T) {
	fn := ir.NewFunc()
	v := ir.LocalID(1)
	l := &layout.ClassLayout{Size: 4, Fields: []layout.Field{{Offset: 0, Type: layout.TypeInt32}}}
	fn.AddAggregate(v, l, false)
	scalar := fn.NewLocal(layout.TypeInt32)
	rep := &promote.Replacement{Offset: 0, Type: layout.TypeInt32, LocalID: scalar, NeedsWriteBack: true}
	info := &promote.AggregateInfo{ParentLocal: v, Replacements: []*promote.Replacement{rep}}
	infos := map[ir.LocalID]*promote.AggregateInfo{v: info}

	b := fn.EntryScratch
	fn.NewNode(b, ir.Node{Op: ir.OpCall, CallArgs: []ir.CallArg{{Local: v, LastUse: true}}})

	live := liveness.Compute(fn, infos)
	NewPlanner(fn, infos, live).Run()

	require.Len(t, b.Nodes, 2)
	require.Equal(t, ir.OpWriteBack, b.Nodes[0].Op)
	require.Equal(t, ir.OpCall, b.Nodes[1].Op)
	require.True(t, b.Nodes[1].VariableDeath)
	require.False(t, rep.NeedsWriteBack)
}

func TestCallRetBufMarksReadBack(t *testing.T) {
	fn := ir.NewFunc()
	v := ir.LocalID(1)
	l := &layout.ClassLayout{Size: 4, Fields: []layout.Field{{Offset: 0, Type: layout.TypeInt32}}}
	fn.AddAggregate(v, l, false)
	scalar := fn.NewLocal(layout.TypeInt32)
	rep := &promote.Replacement{Offset: 0, Type: layout.TypeInt32, LocalID: scalar}
	info := &promote.AggregateInfo{ParentLocal: v, Replacements: []*promote.Replacement{rep}}
	infos := map[ir.LocalID]*promote.AggregateInfo{v: info}

	b2 := fn.NewBlock()
	b1 := fn.EntryScratch
	b1.Succs = []ir.BlockID{b2.ID}
	fn.NewNode(b1, ir.Node{Op: ir.OpCall, RetBuf: v})
	fn.NewNode(b2, ir.Node{Op: ir.OpFieldLoad, Local: v, Offset: 0, Type: layout.TypeInt32})

	live := liveness.Compute(fn, infos)
	NewPlanner(fn, infos, live).Run()

	// The call marks needs_read_back; since the read in b2 makes the
	// replacement live-out of b1, the end-of-block flush in b1 emits a
	// read-back rather than silently dropping it.
	require.Equal(t, ir.OpReadBack, b1.Nodes[len(b1.Nodes)-1].Op)
}

// TestS6BlockCopyDecomposition reproduces the spec's end-to-end
// scenario: V[0] promoted, other = V becomes a write-back of the
// scalar into other's memory plus a remainder copy for the rest.
func TestS6BlockCopyDecomposition(t *testing.T) {
	fn := ir.NewFunc()
	v := ir.LocalID(1)
	other := ir.LocalID(2)
	l := &layout.ClassLayout{
		Size: 16,
		Fields: []layout.Field{
			{Offset: 0, Type: layout.TypeInt32},
			{Offset: 4, Type: layout.TypeInt32},
			{Offset: 8, Type: layout.TypeInt32},
			{Offset: 12, Type: layout.TypeInt32},
		},
	}
	fn.AddAggregate(v, l, false)
	fn.AddAggregate(other, l, false)
	scalar := fn.NewLocal(layout.TypeInt32)
	rep := &promote.Replacement{Offset: 0, Type: layout.TypeInt32, LocalID: scalar, NeedsWriteBack: true}
	vInfo := &promote.AggregateInfo{ParentLocal: v, Replacements: []*promote.Replacement{rep}}
	infos := map[ir.LocalID]*promote.AggregateInfo{v: vInfo}

	b := fn.EntryScratch
	fn.NewNode(b, ir.Node{Op: ir.OpBlockCopy, Local: other, SrcLocal: v})

	live := liveness.Compute(fn, infos)
	NewPlanner(fn, infos, live).Run()

	require.GreaterOrEqual(t, len(b.Nodes), 2)
	require.Equal(t, ir.OpWriteBack, b.Nodes[0].Op)
	require.Equal(t, other, b.Nodes[0].Local)
	require.Equal(t, uint32(0), b.Nodes[0].Offset)

	last := b.Nodes[len(b.Nodes)-1]
	require.Equal(t, ir.OpBlockCopy, last.Op)
	require.Equal(t, uint32(4), last.Offset)
	require.Equal(t, uint32(12), last.Size)
}

// TestBlockCopyOrderingExceptionRunsRemainderFirst covers spec.md
// §4.11 step 4: when the two other fields leave a discontiguous
// remainder (forcing a full-block copy) and the source has a
// replacement the destination doesn't take, that replacement's
// write-back must land after the bulk copy, not before it — otherwise
// the copy's stale source bytes would clobber it.
func TestBlockCopyOrderingExceptionRunsRemainderFirst(t *testing.T) {
	fn := ir.NewFunc()
	v := ir.LocalID(1)
	other := ir.LocalID(2)
	l := &layout.ClassLayout{
		Size: 24,
		Fields: []layout.Field{
			{Offset: 0, Type: layout.TypeInt32},
			{Offset: 8, Type: layout.TypeInt32},
			{Offset: 16, Type: layout.TypeInt32},
		},
	}
	fn.AddAggregate(v, l, false)
	fn.AddAggregate(other, l, false)
	scalar := fn.NewLocal(layout.TypeInt32)
	rep := &promote.Replacement{Offset: 0, Type: layout.TypeInt32, LocalID: scalar, NeedsWriteBack: true}
	vInfo := &promote.AggregateInfo{ParentLocal: v, Replacements: []*promote.Replacement{rep}}
	infos := map[ir.LocalID]*promote.AggregateInfo{v: vInfo}

	b := fn.EntryScratch
	fn.NewNode(b, ir.Node{Op: ir.OpBlockCopy, Local: other, SrcLocal: v})

	live := liveness.Compute(fn, infos)
	NewPlanner(fn, infos, live).Run()

	require.Len(t, b.Nodes, 2)
	require.Equal(t, ir.OpBlockCopy, b.Nodes[0].Op, "discontiguous remainder forces a full-block copy, emitted first")
	require.Equal(t, uint32(0), b.Nodes[0].Offset)
	require.Equal(t, uint32(24), b.Nodes[0].Size)
	require.Equal(t, ir.OpWriteBack, b.Nodes[1].Op, "the unmatched source replacement's value lands after the bulk copy")
	require.Equal(t, other, b.Nodes[1].Local)
	require.Equal(t, uint32(0), b.Nodes[1].Offset)
	require.False(t, rep.NeedsWriteBack)
}

// TestBlockCopyOrderingExceptionPreWriteBackForGCRef covers the
// GC-bearing half of the same exception: a reference-typed
// replacement the destination doesn't take gets written back into the
// source's own home before the bulk copy runs, so its final value
// reaches the destination through the copy's write barrier.
func TestBlockCopyOrderingExceptionPreWriteBackForGCRef(t *testing.T) {
	fn := ir.NewFunc()
	v := ir.LocalID(1)
	other := ir.LocalID(2)
	l := &layout.ClassLayout{
		Size:              24,
		ContainsGCPointer: true,
		Fields: []layout.Field{
			{Offset: 0, Type: layout.TypeRef},
			{Offset: 8, Type: layout.TypeInt32},
			{Offset: 16, Type: layout.TypeInt32},
		},
	}
	fn.AddAggregate(v, l, false)
	fn.AddAggregate(other, l, false)
	scalar := fn.NewLocal(layout.TypeRef)
	rep := &promote.Replacement{Offset: 0, Type: layout.TypeRef, LocalID: scalar, NeedsWriteBack: true}
	vInfo := &promote.AggregateInfo{ParentLocal: v, Replacements: []*promote.Replacement{rep}}
	infos := map[ir.LocalID]*promote.AggregateInfo{v: vInfo}

	b := fn.EntryScratch
	fn.NewNode(b, ir.Node{Op: ir.OpBlockCopy, Local: other, SrcLocal: v})

	live := liveness.Compute(fn, infos)
	NewPlanner(fn, infos, live).Run()

	require.Len(t, b.Nodes, 2)
	require.Equal(t, ir.OpWriteBack, b.Nodes[0].Op, "reference replacement is pre-written back into the source's home")
	require.Equal(t, v, b.Nodes[0].Local)
	require.Equal(t, uint32(0), b.Nodes[0].Offset)
	require.Equal(t, ir.OpBlockCopy, b.Nodes[1].Op)
	require.Equal(t, uint32(0), b.Nodes[1].Offset)
	require.Equal(t, uint32(24), b.Nodes[1].Size)
	require.False(t, rep.NeedsWriteBack)
}

func TestBlockInitSkipsNonZeroGCRef(t *testing.T) {
	fn := ir.NewFunc()
	v := ir.LocalID(1)
	l := &layout.ClassLayout{
		Size:              8,
		ContainsGCPointer: true,
		Fields: []layout.Field{
			{Offset: 0, Type: layout.TypeRef},
		},
	}
	fn.AddAggregate(v, l, false)
	scalar := fn.NewLocal(layout.TypeRef)
	rep := &promote.Replacement{Offset: 0, Type: layout.TypeRef, LocalID: scalar}
	info := &promote.AggregateInfo{ParentLocal: v, Replacements: []*promote.Replacement{rep}}
	infos := map[ir.LocalID]*promote.AggregateInfo{v: info}

	b2 := fn.NewBlock()
	b := fn.EntryScratch
	b.Succs = []ir.BlockID{b2.ID}
	fn.NewNode(b, ir.Node{Op: ir.OpBlockInit, Local: v, Pattern: 0xFF})
	fn.NewNode(b2, ir.Node{Op: ir.OpFieldLoad, Local: v, Offset: 0, Type: layout.TypeRef})

	live := liveness.Compute(fn, infos)
	NewPlanner(fn, infos, live).Run()

	require.Equal(t, ir.OpReadBack, b.Nodes[len(b.Nodes)-1].Op)
	for _, n := range b.Nodes {
		require.NotEqual(t, ir.OpLocalStore, n.Op)
	}
}

func TestFallbackForIndirectSource(t *testing.T) {
	fn := ir.NewFunc()
	v := ir.LocalID(1)
	l := &layout.ClassLayout{Size: 4, Fields: []layout.Field{{Offset: 0, Type: layout.TypeInt32}}}
	fn.AddAggregate(v, l, false)
	scalar := fn.NewLocal(layout.TypeInt32)
	rep := &promote.Replacement{Offset: 0, Type: layout.TypeInt32, LocalID: scalar, NeedsWriteBack: true}
	info := &promote.AggregateInfo{ParentLocal: v, Replacements: []*promote.Replacement{rep}}
	infos := map[ir.LocalID]*promote.AggregateInfo{v: info}

	b2 := fn.NewBlock()
	b := fn.EntryScratch
	b.Succs = []ir.BlockID{b2.ID}
	addr := fn.NewLocal(layout.TypeInt64)
	fn.NewNode(b, ir.Node{Op: ir.OpBlockCopy, Local: v, SrcLocal: addr, SrcIsIndir: true})
	fn.NewNode(b2, ir.Node{Op: ir.OpFieldLoad, Local: v, Offset: 0, Type: layout.TypeInt32})

	live := liveness.Compute(fn, infos)
	NewPlanner(fn, infos, live).Run()

	require.Equal(t, ir.OpBlockCopy, b.Nodes[len(b.Nodes)-2].Op)
	require.Equal(t, ir.OpReadBack, b.Nodes[len(b.Nodes)-1].Op)
	require.False(t, rep.NeedsWriteBack)
}
