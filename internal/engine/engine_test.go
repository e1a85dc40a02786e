// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anttech/mrtrt/internal/ir"
	"github.com/anttech/mrtrt/internal/layout"
)

// TestPromoteMethodEndToEnd runs the strict AccessProfile ->
// PromotionPicker -> Liveness -> DecompositionPlanner pipeline
// (spec.md §5) over a hand-built method with a single aggregate local
// read many times at one offset, in the shape of scenario S6 (spec.md
// §8): the cost model must favor promoting the hot field, and the
// planner must leave no raw field reads behind.
func TestPromoteMethodEndToEnd(t *testing.T) {
	fn := ir.NewFunc()
	l := &layout.ClassLayout{
		Size: 16,
		Fields: []layout.Field{
			{Offset: 0, Type: layout.TypeInt32},
			{Offset: 4, Type: layout.TypeInt32},
			{Offset: 8, Type: layout.TypeInt32},
			{Offset: 12, Type: layout.TypeInt32},
		},
	}
	v := ir.LocalID(1)
	fn.AddAggregate(v, l, false)

	b := fn.EntryScratch
	for i := 0; i < 100; i++ {
		fn.NewNode(b, ir.Node{Op: ir.OpFieldLoad, Local: v, Offset: 0, Type: layout.TypeInt32})
	}

	e := New(DefaultConfig(), 4)
	result := e.PromoteMethod(fn, nil)

	info := result.Infos[v]
	require.Len(t, info.Replacements, 1)
	require.Equal(t, uint32(0), info.Replacements[0].Offset)

	for _, n := range b.Nodes {
		require.NotEqual(t, ir.OpFieldLoad, n.Op, "every field read of a promoted offset must be rewritten")
	}
}

// TestPromoteMethodDecomposesBlockCopy exercises the other half of the
// pipeline: a block copy touching a promoted aggregate must come out
// decomposed into field-local operations (spec.md §4.11), not left as
// a single raw OpBlockCopy.
func TestPromoteMethodDecomposesBlockCopy(t *testing.T) {
	fn := ir.NewFunc()
	l := &layout.ClassLayout{Size: 4, Fields: []layout.Field{{Offset: 0, Type: layout.TypeInt32}}}
	v := ir.LocalID(1)
	fn.AddAggregate(v, l, false)
	other := ir.LocalID(2)
	fn.AddAggregate(other, l, false)

	b := fn.EntryScratch
	for i := 0; i < 50; i++ {
		fn.NewNode(b, ir.Node{Op: ir.OpFieldLoad, Local: v, Offset: 0, Type: layout.TypeInt32})
	}
	fn.NewNode(b, ir.Node{Op: ir.OpBlockCopy, Local: other, SrcLocal: v, Size: 4})

	e := New(DefaultConfig(), 4)
	e.PromoteMethod(fn, nil)

	for _, n := range b.Nodes {
		require.NotEqual(t, ir.OpBlockCopy, n.Op, "a copy touching a promoted aggregate must be decomposed")
	}
}

func TestShouldPromoteHonorsMethodHashRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MethodHashLo = 100
	cfg.MethodHashHi = 200
	e := New(cfg, 4)

	require.True(t, e.ShouldPromote(150))
	require.False(t, e.ShouldPromote(50))

	cfg.PromotionEnabled = false
	e2 := New(cfg, 4)
	require.False(t, e2.ShouldPromote(150))
}
