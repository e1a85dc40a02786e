// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package liveness computes, per basic block, which promotion
// replacement locals are live-out, by backwards iterative dataflow
// over the CFG with exception-handler regions unioned in (spec.md
// §4.10).
package liveness

import (
	"github.com/anttech/mrtrt/internal/bitset"
	"github.com/anttech/mrtrt/internal/ir"
	"github.com/anttech/mrtrt/internal/promote"
)

// index assigns each replacement local across every promoted
// aggregate a dense bit position, shared by every block's bitset.
type index struct {
	pos map[ir.LocalID]int
	n   int
}

func newIndex(infos []*promote.AggregateInfo) *index {
	idx := &index{pos: make(map[ir.LocalID]int)}
	for _, info := range infos {
		for _, r := range info.Replacements {
			idx.pos[r.LocalID] = idx.n
			idx.n++
		}
	}
	return idx
}

// Result holds the per-block live-out sets plus, for each IR node
// that is the last use of a replacement before the owning aggregate's
// storage dies, the set of replacements whose write-back becomes moot.
type Result struct {
	idx      *index
	liveIn   map[ir.BlockID]*bitset.Set
	liveOut  map[ir.BlockID]*bitset.Set
	deaths   map[ir.NodeID]*bitset.Set
}

// IsReplacementLiveOut reports whether local is live-out of block b.
func (r *Result) IsReplacementLiveOut(b ir.BlockID, local ir.LocalID) bool {
	pos, ok := r.idx.pos[local]
	if !ok {
		return false
	}
	set := r.liveOut[b]
	if set == nil {
		return false
	}
	return set.Test(pos)
}

// DeathsForNode returns the replacement locals whose last use is n,
// i.e. which need no further write-back after n executes.
func (r *Result) DeathsForNode(n ir.NodeID) []ir.LocalID {
	set := r.deaths[n]
	if set == nil {
		return nil
	}
	var out []ir.LocalID
	for local, pos := range r.idx.pos {
		if set.Test(pos) {
			out = append(out, local)
		}
	}
	return out
}

// use/def per block, computed once from the node stream: a field
// load/store through a promoted offset counts as a use or def of the
// corresponding replacement once DecompositionPlanner has rewritten
// the node to refer to it directly. Liveness runs ahead of rewriting,
// so it derives use/def from the original aggregate-offset accesses
// via the same Replacement table the planner will consult.
func useDef(fn *ir.Func, infos map[ir.LocalID]*promote.AggregateInfo, idx *index) (use, def map[ir.BlockID]*bitset.Set) {
	use = make(map[ir.BlockID]*bitset.Set)
	def = make(map[ir.BlockID]*bitset.Set)
	for _, b := range fn.Blocks {
		use[b.ID] = bitset.New(idx.n)
		def[b.ID] = bitset.New(idx.n)
	}

	mark := func(b ir.BlockID, local ir.LocalID, offset uint32, isDef bool) {
		info, ok := infos[local]
		if !ok {
			return
		}
		r, ok := info.ReplacementAt(offset)
		if !ok {
			return
		}
		pos := idx.pos[r.LocalID]
		if isDef {
			if !use[b].Test(pos) {
				def[b].Set(pos)
			}
		} else {
			use[b].Set(pos)
		}
	}

	for _, b := range fn.Blocks {
		for _, n := range b.Nodes {
			switch n.Op {
			case ir.OpFieldLoad:
				mark(b.ID, n.Local, n.Offset, false)
			case ir.OpFieldStore:
				mark(b.ID, n.Local, n.Offset, true)
			}
		}
	}
	return use, def
}

// Compute runs the backwards dataflow fixpoint and the finalization
// pass. infos maps each promoted aggregate local to its
// AggregateInfo. fn.HasBackEdges() gates the documented single-pass
// fast path: acyclic CFGs need only one postorder sweep (the
// reverse-postorder list walked from its end).
func Compute(fn *ir.Func, infos map[ir.LocalID]*promote.AggregateInfo) *Result {
	idx := newIndex(valuesOf(infos))
	use, def := useDef(fn, infos, idx)

	liveIn := make(map[ir.BlockID]*bitset.Set)
	liveOut := make(map[ir.BlockID]*bitset.Set)
	for _, b := range fn.Blocks {
		liveIn[b.ID] = bitset.New(idx.n)
		liveOut[b.ID] = bitset.New(idx.n)
	}

	order := reversePostorder(fn)
	single := !fn.HasBackEdges()

	for {
		changed := false
		for i := len(order) - 1; i >= 0; i-- {
			b := order[i]
			out := liveOut[b.ID]
			for _, s := range fn.Block(b.ID).Succs {
				if bitset.UnionInto(out, liveIn[s]) {
					changed = true
				}
			}
			if ehLive := ehLiveSet(fn, b.ID, liveIn, idx); ehLive != nil {
				if bitset.UnionInto(out, ehLive) {
					changed = true
				}
			}

			in := liveIn[b.ID]
			nv := out.Copy()
			bitset.AndNot(nv, def[b.ID])
			bitset.UnionInto(nv, use[b.ID])
			if !bitset.Equal(nv, in) {
				in.CopyFrom(nv)
				changed = true
			}
		}
		if single || !changed {
			break
		}
	}

	deaths := computeDeaths(fn, infos, idx, liveOut)

	return &Result{idx: idx, liveIn: liveIn, liveOut: liveOut, deaths: deaths}
}

func valuesOf(infos map[ir.LocalID]*promote.AggregateInfo) []*promote.AggregateInfo {
	out := make([]*promote.AggregateInfo, 0, len(infos))
	for _, v := range infos {
		out = append(out, v)
	}
	return out
}

// ehLiveSet unions LiveIn of every handler/filter entry (plus enclosed
// fault/finally entries) an exception raised in b can reach, per
// spec.md §4.10's "EH region union" rule: any replacement live into a
// handler must also be considered live-out of every block inside the
// protected region, since the handler may observe it mid-statement.
func ehLiveSet(fn *ir.Func, b ir.BlockID, liveIn map[ir.BlockID]*bitset.Set, idx *index) *bitset.Set {
	entries := fn.HandlerEntriesFor(b)
	if len(entries) == 0 {
		return nil
	}
	out := bitset.New(idx.n)
	for _, e := range entries {
		bitset.UnionInto(out, liveIn[e])
	}
	return out
}

// computeDeaths walks each block forward, tracking which replacements
// remain needed after each node, and records at each node the set of
// replacements whose next use, if any, is strictly in a different
// block that is unreachable without going back through a definition --
// in practice: a node is a death point for local X if X is used or
// defined there and X is not live-out of the block and no later node
// in the same block uses or defines X.
func computeDeaths(fn *ir.Func, infos map[ir.LocalID]*promote.AggregateInfo, idx *index, liveOut map[ir.BlockID]*bitset.Set) map[ir.NodeID]*bitset.Set {
	deaths := make(map[ir.NodeID]*bitset.Set)

	touches := func(n *ir.Node) (ir.LocalID, uint32, bool) {
		switch n.Op {
		case ir.OpFieldLoad, ir.OpFieldStore:
			return n.Local, n.Offset, true
		default:
			return 0, 0, false
		}
	}
	replacementFor := func(local ir.LocalID, offset uint32) (ir.LocalID, bool) {
		info, ok := infos[local]
		if !ok {
			return 0, false
		}
		r, ok := info.ReplacementAt(offset)
		if !ok {
			return 0, false
		}
		return r.LocalID, true
	}

	for _, b := range fn.Blocks {
		lastUse := make(map[ir.LocalID]ir.NodeID)
		for _, n := range b.Nodes {
			local, offset, ok := touches(n)
			if !ok {
				continue
			}
			rep, ok := replacementFor(local, offset)
			if !ok {
				continue
			}
			lastUse[rep] = n.ID
		}

		out := liveOut[b.ID]
		for rep, nodeID := range lastUse {
			pos, ok := idx.pos[rep]
			if !ok || out.Test(pos) {
				continue
			}
			set, ok := deaths[nodeID]
			if !ok {
				set = bitset.New(idx.n)
				deaths[nodeID] = set
			}
			set.Set(pos)
		}
	}
	return deaths
}

// reversePostorder returns fn's blocks in reverse-postorder from
// block 0, treating each block's EH handler entries as successors so
// handler blocks are ordered (and reached) like CFG successors. The
// fixpoint loop walks this list from its end, so a block's successors
// and handlers are processed before the block itself.
func reversePostorder(fn *ir.Func) []*ir.Block {
	visited := make(map[ir.BlockID]bool)
	var post []*ir.Block
	var visit func(ir.BlockID)
	visit = func(b ir.BlockID) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range fn.Block(b).Succs {
			visit(s)
		}
		for _, h := range fn.HandlerEntriesFor(b) {
			visit(h)
		}
		post = append(post, fn.Block(b))
	}
	visit(0)

	out := make([]*ir.Block, len(post))
	for i, b := range post {
		out[len(post)-1-i] = b
	}
	return out
}
