// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package decompose implements the DecompositionPlanner: the final
// promotion phase that rewrites every reference to a promoted
// replacement in place and replaces struct-typed stores/copies/inits
// touching a promoted aggregate with a sequence of field-local
// operations plus a minimal remainder operation (spec.md §4.11).
package decompose

import (
	"github.com/anttech/mrtrt/internal/ir"
	"github.com/anttech/mrtrt/internal/layout"
	"github.com/anttech/mrtrt/internal/liveness"
	"github.com/anttech/mrtrt/internal/promote"
	"github.com/anttech/mrtrt/internal/segments"
)

// Planner runs once, after PromotionPicker and PromotionLiveness have
// produced their results, and never fails: any shape it cannot prove
// safe to rewrite is left as the original block operation, guarded by
// conservative write-back/read-back bookkeeping.
type Planner struct {
	fn    *ir.Func
	infos map[ir.LocalID]*promote.AggregateInfo
	live  *liveness.Result
}

// NewPlanner builds a planner over fn's promotion results.
func NewPlanner(fn *ir.Func, infos map[ir.LocalID]*promote.AggregateInfo, live *liveness.Result) *Planner {
	return &Planner{fn: fn, infos: infos, live: live}
}

// Run rewrites every block of the function in place.
func (p *Planner) Run() {
	for _, b := range p.fn.Blocks {
		p.runBlock(b)
	}
}

func (p *Planner) replacementFor(local ir.LocalID, offset uint32) (*promote.Replacement, bool) {
	info, ok := p.infos[local]
	if !ok {
		return nil, false
	}
	return info.ReplacementAt(offset)
}

// inTryRegion reports whether an exception raised in b could be
// observed by a handler (i.e. b lies within a protected region).
func (p *Planner) inTryRegion(b ir.BlockID) bool {
	return len(p.fn.HandlerEntriesFor(b)) > 0
}

// pendingReadBacks returns every replacement, across every promoted
// aggregate, whose needs_read_back bit is currently set.
func (p *Planner) pendingReadBacks() []struct {
	agg ir.LocalID
	rep *promote.Replacement
} {
	var out []struct {
		agg ir.LocalID
		rep *promote.Replacement
	}
	for agg, info := range p.infos {
		for _, r := range info.Replacements {
			if r.NeedsReadBack {
				out = append(out, struct {
					agg ir.LocalID
					rep *promote.Replacement
				}{agg, r})
			}
		}
	}
	return out
}

func (p *Planner) flushPendingReadBacks(b *ir.Block) []*ir.Node {
	var out []*ir.Node
	for _, pr := range p.pendingReadBacks() {
		out = append(out, p.fn.NewFreeNode(b, ir.Node{
			Op: ir.OpReadBack, Local: pr.agg, Offset: pr.rep.Offset, Type: pr.rep.Type, ScalarLocal: pr.rep.LocalID,
		}))
		pr.rep.NeedsReadBack = false
	}
	return out
}

func (p *Planner) runBlock(b *ir.Block) {
	var out []*ir.Node
	for _, n := range b.Nodes {
		if p.inTryRegion(b.ID) && ir.CouldThrow(n) {
			out = append(out, p.flushPendingReadBacks(b)...)
		}

		switch n.Op {
		case ir.OpFieldLoad:
			out = append(out, p.rewriteFieldLoad(b, n)...)
		case ir.OpFieldStore:
			out = append(out, p.rewriteFieldStore(n)...)
		case ir.OpCall:
			out = append(out, p.rewriteCall(b, n)...)
		case ir.OpReturn:
			out = append(out, p.rewriteReturn(b, n)...)
		case ir.OpBlockCopy:
			out = append(out, p.decomposeBlockCopy(b, n)...)
		case ir.OpBlockInit:
			out = append(out, p.decomposeBlockInit(b, n)...)
		default:
			out = append(out, n)
		}
	}
	out = append(out, p.endOfBlockFlush(b)...)
	b.Nodes = out
}

// rewriteFieldLoad replaces a primitive read of a promoted replacement
// with a read of the fresh scalar, prepending a read-back if the
// scalar is currently stale.
func (p *Planner) rewriteFieldLoad(b *ir.Block, n *ir.Node) []*ir.Node {
	r, ok := p.replacementFor(n.Local, n.Offset)
	if !ok {
		return []*ir.Node{n}
	}
	var out []*ir.Node
	if r.NeedsReadBack {
		out = append(out, p.fn.NewFreeNode(b, ir.Node{
			Op: ir.OpReadBack, Local: n.Local, Offset: r.Offset, Type: r.Type, ScalarLocal: r.LocalID,
		}))
		r.NeedsReadBack = false
	}
	load := *n
	load.Op = ir.OpLocalLoad
	load.Local = r.LocalID
	return append(out, &load)
}

// rewriteFieldStore replaces a primitive write of a promoted
// replacement with a write of the fresh scalar.
func (p *Planner) rewriteFieldStore(n *ir.Node) []*ir.Node {
	r, ok := p.replacementFor(n.Local, n.Offset)
	if !ok {
		return []*ir.Node{n}
	}
	store := *n
	store.Op = ir.OpLocalStore
	store.Local = r.LocalID
	r.NeedsWriteBack = true
	r.NeedsReadBack = false
	return []*ir.Node{&store}
}

// rewriteCall handles the call-boundary rules: argument write-backs,
// return-buffer read-back marking, and variable-death propagation.
func (p *Planner) rewriteCall(b *ir.Block, n *ir.Node) []*ir.Node {
	var out []*ir.Node
	for _, arg := range n.CallArgs {
		info, ok := p.infos[arg.Local]
		if !ok {
			continue
		}
		for _, r := range info.Replacements {
			if !r.NeedsWriteBack {
				continue
			}
			out = append(out, p.fn.NewFreeNode(b, ir.Node{
				Op: ir.OpWriteBack, Local: arg.Local, Offset: r.Offset, Type: r.Type, ScalarLocal: r.LocalID,
			}))
			r.NeedsWriteBack = false
		}
		if arg.LastUse {
			n.VariableDeath = true
		}
	}
	if n.RetBuf != 0 {
		if info, ok := p.infos[n.RetBuf]; ok {
			for _, r := range info.Replacements {
				r.NeedsReadBack = true
				r.NeedsWriteBack = false
			}
		}
	}
	return append(out, n)
}

// rewriteReturn emits write-backs for a returned promoted aggregate
// before the return node.
func (p *Planner) rewriteReturn(b *ir.Block, n *ir.Node) []*ir.Node {
	if !n.ReturnsAggregate {
		return []*ir.Node{n}
	}
	var out []*ir.Node
	if info, ok := p.infos[n.Local]; ok {
		for _, r := range info.Replacements {
			if !r.NeedsWriteBack {
				continue
			}
			out = append(out, p.fn.NewFreeNode(b, ir.Node{
				Op: ir.OpWriteBack, Local: n.Local, Offset: r.Offset, Type: r.Type, ScalarLocal: r.LocalID,
			}))
			r.NeedsWriteBack = false
		}
	}
	return append(out, n)
}

// endOfBlockFlush emits a read-back for every replacement that is
// still needs_read_back and live-out of b, then clears both flags on
// every replacement so the next block begins clean.
func (p *Planner) endOfBlockFlush(b *ir.Block) []*ir.Node {
	var out []*ir.Node
	for agg, info := range p.infos {
		for _, r := range info.Replacements {
			if r.NeedsReadBack && p.live.IsReplacementLiveOut(b.ID, r.LocalID) {
				out = append(out, p.fn.NewFreeNode(b, ir.Node{
					Op: ir.OpReadBack, Local: agg, Offset: r.Offset, Type: r.Type, ScalarLocal: r.LocalID,
				}))
			}
			r.NeedsReadBack = false
			r.NeedsWriteBack = false
		}
	}
	return out
}

func repRange(r *promote.Replacement) segments.Segment {
	return segments.Segment{Start: r.Offset, End: r.Offset + r.Type.Size()}
}

// decomposeBlockCopy implements the block-copy decomposition
// described in spec.md §4.11: a parallel walk of the sorted
// destination/source replacement lists, followed by a remainder
// strategy over whatever bytes no entry covered.
//
// Narrow (non-full-aggregate) copies and indirect sources are not
// proven safe to decompose in place here and take the documented
// never-fails fallback instead.
func (p *Planner) decomposeBlockCopy(b *ir.Block, n *ir.Node) []*ir.Node {
	dstInfo, dstOk := p.infos[n.Local]
	srcInfo, srcOk := p.infos[n.SrcLocal]
	dstLocal := p.fn.Locals[n.Local]

	full := n.Offset == 0 && (dstLocal == nil || dstLocal.Layout == nil || n.Size == 0 || n.Size == dstLocal.Layout.Size)
	if n.SrcIsIndir || !full {
		return p.fallback(b, n, dstInfo, srcInfo)
	}

	var l *layout.ClassLayout
	if dstOk {
		l = dstLocal.Layout
	} else if srcOk {
		l = p.fn.Locals[n.SrcLocal].Layout
	} else {
		return []*ir.Node{n}
	}

	var dstReps, srcReps []*promote.Replacement
	if dstOk {
		dstReps = dstInfo.Replacements
	}
	if srcOk {
		srcReps = srcInfo.Replacements
	}

	// matched holds rep<->rep moves and dst-only read-backs: both only
	// ever touch replacement locals or the source aggregate's own
	// memory, so their position relative to the remainder never
	// matters. srcOnly holds source replacements whose current value
	// has nowhere to land but destination memory (no destination
	// replacement claims that range) — those interact with a
	// full-block remainder and are handled by the ordering exception
	// below (spec.md §4.11 step 4).
	var matched []*ir.Node
	var srcOnly []*promote.Replacement
	covered := &segments.Set{}
	i, j := 0, 0
	for i < len(dstReps) && j < len(srcReps) {
		d, s := dstReps[i], srcReps[j]
		switch {
		case d.Offset == s.Offset && d.Type == s.Type:
			matched = append(matched, p.fn.NewFreeNode(b, ir.Node{Op: ir.OpLocalStore, Local: d.LocalID, SrcLocal: s.LocalID}))
			covered.Add(repRange(d))
			d.NeedsWriteBack, d.NeedsReadBack = true, false
			i++
			j++
		case s.Offset+s.Type.Size() <= d.Offset:
			srcOnly = append(srcOnly, s)
			covered.Add(repRange(s))
			j++
		case d.Offset+d.Type.Size() <= s.Offset:
			matched = append(matched, p.fn.NewFreeNode(b, ir.Node{Op: ir.OpReadBack, Local: n.SrcLocal, Offset: d.Offset, Type: d.Type, ScalarLocal: d.LocalID}))
			covered.Add(repRange(d))
			d.NeedsWriteBack, d.NeedsReadBack = false, false
			i++
		default:
			// Partial overlap: the source replacement's value must
			// reach destination memory; the destination replacement is
			// deferred and picked up by the remainder strategy below.
			srcOnly = append(srcOnly, s)
			covered.Add(repRange(s))
			d.NeedsReadBack = true
			j++
		}
	}
	for ; i < len(dstReps); i++ {
		d := dstReps[i]
		if srcOk || n.SrcLocal != 0 {
			matched = append(matched, p.fn.NewFreeNode(b, ir.Node{Op: ir.OpReadBack, Local: n.SrcLocal, Offset: d.Offset, Type: d.Type, ScalarLocal: d.LocalID}))
			covered.Add(repRange(d))
			d.NeedsWriteBack, d.NeedsReadBack = false, false
		}
	}
	for ; j < len(srcReps); j++ {
		srcOnly = append(srcOnly, srcReps[j])
		covered.Add(repRange(srcReps[j]))
	}

	remainder, isFullBlock := p.remainderNode(b, n, l, covered)

	var out []*ir.Node
	if isFullBlock && len(srcOnly) > 0 {
		// Step 4's ordering exception: a full-block remainder copies
		// raw bytes out of the source's own home memory, which none of
		// srcOnly's values have reached yet. Writing them straight into
		// destination memory and then letting the remainder run after
		// would have the bulk copy clobber them with the stale source
		// bytes, so the remainder must run first here. GC-reference
		// replacements instead get written back into the *source's*
		// home ahead of the copy, so their final value reaches the
		// destination through the block copy's own write barrier
		// rather than a separate per-field one.
		var preWriteBack, postWriteBack []*ir.Node
		for _, s := range srcOnly {
			if l.ContainsGCPointer && s.Type.IsGCRef() {
				preWriteBack = append(preWriteBack, p.fn.NewFreeNode(b, ir.Node{Op: ir.OpWriteBack, Local: n.SrcLocal, Offset: s.Offset, Type: s.Type, ScalarLocal: s.LocalID}))
			} else {
				postWriteBack = append(postWriteBack, p.fn.NewFreeNode(b, ir.Node{Op: ir.OpWriteBack, Local: n.Local, Offset: s.Offset, Type: s.Type, ScalarLocal: s.LocalID}))
			}
			s.NeedsWriteBack = false
		}
		out = append(out, preWriteBack...)
		out = append(out, remainder)
		out = append(out, matched...)
		out = append(out, postWriteBack...)
		return out
	}

	out = append(out, matched...)
	for _, s := range srcOnly {
		out = append(out, p.fn.NewFreeNode(b, ir.Node{Op: ir.OpWriteBack, Local: n.Local, Offset: s.Offset, Type: s.Type, ScalarLocal: s.LocalID}))
		s.NeedsWriteBack = false
	}
	if remainder != nil {
		out = append(out, remainder)
	}
	return out
}

// remainderOps computes SignificantSegments(l) minus covered and
// emits either nothing (empty remainder), a narrowed copy of just the
// remaining hole (when it is a single contiguous range), or a full
// block copy otherwise (multiple discontiguous holes, which no single
// Offset/Size node can represent).
func (p *Planner) remainderOps(b *ir.Block, n *ir.Node, l *layout.ClassLayout, covered *segments.Set) []*ir.Node {
	node, _ := p.remainderNode(b, n, l, covered)
	if node == nil {
		return nil
	}
	return []*ir.Node{node}
}

// remainderNode is remainderOps' single-node form, additionally
// reporting whether the chosen strategy is a full-block copy — the
// condition decomposeBlockCopy needs to apply step 4's ordering
// exception.
func (p *Planner) remainderNode(b *ir.Block, n *ir.Node, l *layout.ClassLayout, covered *segments.Set) (*ir.Node, bool) {
	sig := layout.SignificantSegments(l)
	for _, seg := range covered.Segments() {
		sig.Subtract(seg)
	}
	if sig.IsEmpty() {
		return nil, false
	}
	cov, _ := sig.CoveringSegment()
	if len(sig.Segments()) == 1 {
		// A single contiguous hole narrows the copy/init node to just
		// that range: it stays a block op (not a primitive load/store),
		// so any byte length is representable, and unlike the
		// full-aggregate fallback below it never re-touches bytes an
		// entry already made fresh.
		copyNode := *n
		copyNode.Offset = cov.Start
		copyNode.Size = cov.End - cov.Start
		return p.fn.NewFreeNode(b, copyNode), false
	}
	full := *n
	full.Offset = 0
	full.Size = l.Size
	return p.fn.NewFreeNode(b, full), true
}

// decomposeBlockInit implements init decomposition: every replacement
// that can represent the init pattern directly gets
// rep := const_of_type(rep.ty, pattern); the rest is left for the
// remainder strategy (spec.md §4.11, "Init decomposition").
func (p *Planner) decomposeBlockInit(b *ir.Block, n *ir.Node) []*ir.Node {
	info, ok := p.infos[n.Local]
	if !ok {
		return []*ir.Node{n}
	}
	l := p.fn.Locals[n.Local].Layout

	var out []*ir.Node
	covered := &segments.Set{}
	for _, r := range info.Replacements {
		if !canRepresentPattern(r.Type, n.Pattern) {
			r.NeedsReadBack = true
			continue
		}
		out = append(out, p.fn.NewFreeNode(b, ir.Node{Op: ir.OpLocalStore, Local: r.LocalID, Pattern: n.Pattern}))
		covered.Add(repRange(r))
		r.NeedsWriteBack, r.NeedsReadBack = true, false
	}
	out = append(out, p.remainderOps(b, n, l, covered)...)
	return out
}

func canRepresentPattern(t layout.PrimitiveType, pattern byte) bool {
	if pattern == 0 {
		return true
	}
	return !t.IsSIMD() && !t.IsGCRef()
}

// fallback is the never-fails path: it issues write-backs for every
// replacement of both sides in the aggregate's range, marks every
// destination replacement for read-back, and leaves the original
// block op unchanged, per spec.md §4.11 "Failure modes".
func (p *Planner) fallback(b *ir.Block, n *ir.Node, dstInfo, srcInfo *promote.AggregateInfo) []*ir.Node {
	var out []*ir.Node
	if srcInfo != nil {
		for _, r := range srcInfo.Replacements {
			out = append(out, p.fn.NewFreeNode(b, ir.Node{Op: ir.OpWriteBack, Local: n.SrcLocal, Offset: r.Offset, Type: r.Type, ScalarLocal: r.LocalID}))
			r.NeedsWriteBack = false
		}
	}
	if dstInfo != nil {
		for _, r := range dstInfo.Replacements {
			out = append(out, p.fn.NewFreeNode(b, ir.Node{Op: ir.OpWriteBack, Local: n.Local, Offset: r.Offset, Type: r.Type, ScalarLocal: r.LocalID}))
			r.NeedsWriteBack = false
			r.NeedsReadBack = true
		}
	}
	return append(out, n)
}
