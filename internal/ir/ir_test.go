// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anttech/mrtrt/internal/layout"
)

func TestHasBackEdges(t *testing.T) {
	fn := NewFunc()
	b1 := fn.NewBlock()
	fn.Blocks[0].Succs = []BlockID{b1.ID}
	require.False(t, fn.HasBackEdges())

	b1.Succs = []BlockID{fn.Blocks[0].ID}
	require.True(t, fn.HasBackEdges(), "b1 -> entry closes a loop")
}

func TestInsertBeforeSplicesAtIndex(t *testing.T) {
	fn := NewFunc()
	b := fn.EntryScratch
	fn.NewNode(b, Node{Op: OpFieldLoad})
	fn.NewNode(b, Node{Op: OpFieldStore})

	fn.InsertBefore(b, 1, Node{Op: OpReadBack})
	require.Len(t, b.Nodes, 3)
	require.Equal(t, OpFieldLoad, b.Nodes[0].Op)
	require.Equal(t, OpReadBack, b.Nodes[1].Op)
	require.Equal(t, OpFieldStore, b.Nodes[2].Op)
}

func TestHandlerEntriesForUnionsFilterEnclosedFaultFinally(t *testing.T) {
	fn := NewFunc()
	tryBlock := fn.NewBlock()
	handler := fn.NewBlock()
	enclosedFinally := fn.NewBlock()

	fn.SetTryRegion([]BlockID{tryBlock.ID}, []BlockID{handler.ID}, []BlockID{enclosedFinally.ID})

	entries := fn.HandlerEntriesFor(tryBlock.ID)
	require.ElementsMatch(t, []BlockID{handler.ID, enclosedFinally.ID}, entries)
}

func TestIsCandidateForPromotion(t *testing.T) {
	cases := []struct {
		name string
		l    *Local
		want bool
	}{
		{"plain aggregate", &Local{Aggregate: true}, true},
		{"address exposed", &Local{Aggregate: true, AddressExposed: true}, false},
		{"already promoted", &Local{Aggregate: true, AlreadyPromoted: true}, false},
		{"scalar", &Local{Aggregate: false}, false},
	}
	for _, c := range cases {
		require.Equal(t, c.want, IsCandidateForPromotion(c.l), c.name)
	}
}

func TestIsStoreAndOpPredicates(t *testing.T) {
	require.True(t, IsStore(&Node{Op: OpFieldStore}))
	require.True(t, IsStore(&Node{Op: OpBlockCopy}))
	require.False(t, IsStore(&Node{Op: OpFieldLoad}))

	require.True(t, IsCall(&Node{Op: OpCall}))
	require.True(t, IsReturn(&Node{Op: OpReturn}))
	require.True(t, CouldThrow(&Node{Op: OpCall}))
	require.True(t, CouldThrow(&Node{Op: OpFieldLoad, MayThrow: true}))
	require.False(t, CouldThrow(&Node{Op: OpFieldLoad}))
}

func TestOpString(t *testing.T) {
	require.Equal(t, "FieldLoad", OpFieldLoad.String())
	require.Equal(t, "Op(?)", Op(999).String())
}

func TestAddAggregateAdvancesNextLocal(t *testing.T) {
	fn := NewFunc()
	fn.AddAggregate(5, &layout.ClassLayout{Size: 8}, true)
	next := fn.NewLocal(layout.TypeInt32)
	require.Equal(t, LocalID(6), next)
}
