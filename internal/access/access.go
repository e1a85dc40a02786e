// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package access builds, per aggregate local, a catalogue of distinct
// (offset, primitive-type) accesses with weighted counts classified by
// use kind (spec.md §4.8). The layout is not part of an access's key:
// accesses at the same offset and type share one entry whatever layout
// they go through.
package access

import (
	"sort"

	"github.com/anttech/mrtrt/internal/ir"
	"github.com/anttech/mrtrt/internal/layout"
)

// Flags is a bit set of the access kinds a single use may carry.
type Flags uint8

const (
	IsAssignmentSource Flags = 1 << iota
	IsAssignmentDestination
	IsCallArg
	IsCallRetBuf
	IsAssignedFromCall
	IsReturned
)

// Access is one distinct (offset, type) entry in an aggregate's
// profile. Distinct entries may share an offset (e.g. a union field
// read as int32 in one place and as float32 in another).
type Access struct {
	Offset uint32
	Type   layout.PrimitiveType

	Count    uint64
	CountWtd float64

	CountAssignSrcWtd   float64
	CountAssignDstWtd   float64
	CountCallArgWtd     float64
	CountCallRetBufWtd  float64
	CountAssignedFromCallWtd float64
	CountReturnedWtd    float64
}

// Profile is the sorted, per-aggregate catalogue of accesses.
type Profile struct {
	Local    ir.LocalID
	accesses []*Access
}

// NewProfile starts an empty profile for a local.
func NewProfile(local ir.LocalID) *Profile {
	return &Profile{Local: local}
}

// Accesses returns the profile's entries, sorted by Offset (entries
// sharing an offset are grouped together but otherwise unordered).
func (p *Profile) Accesses() []*Access { return p.accesses }

// find locates (or creates, maintaining sorted order) the entry for
// (offset, ty), per the binary-search-then-linear-scan algorithm of
// spec.md §4.8.
func (p *Profile) find(offset uint32, ty layout.PrimitiveType) *Access {
	i := sort.Search(len(p.accesses), func(i int) bool { return p.accesses[i].Offset >= offset })
	for j := i; j < len(p.accesses) && p.accesses[j].Offset == offset; j++ {
		if p.accesses[j].Type == ty {
			return p.accesses[j]
		}
	}
	found := &Access{Offset: offset, Type: ty}
	p.accesses = append(p.accesses, nil)
	copy(p.accesses[i+1:], p.accesses[i:])
	p.accesses[i] = found
	return found
}

// Record accounts for a genuine scalar (primitive-typed) access at
// offset — a real read or write of that byte range, not a
// whole-aggregate decomposable assignment — and so contributes to the
// entry's baseline Count/CountWtd (the w(access) the cost model's
// cost_without/cost_with terms are built from), plus whichever
// use-kind flags apply to it.
func (p *Profile) Record(offset uint32, ty layout.PrimitiveType, flags Flags, weight float64) {
	found := p.find(offset, ty)
	found.Count++
	found.CountWtd += weight
	p.applyFlags(found, flags, weight)
}

// RecordWhole accounts for one field's participation in a
// whole-aggregate decomposable assignment (a struct copy, a call
// argument, a call return buffer, an assigned-from-call, or a
// returned aggregate). Per spec.md §4.9, "decomposable assignments do
// not contribute either side" of the base cost comparison, so this
// does not touch Count/CountWtd — only the specific use-kind counters
// the readback/writeback cost terms read from.
func (p *Profile) RecordWhole(offset uint32, ty layout.PrimitiveType, flags Flags, weight float64) {
	found := p.find(offset, ty)
	p.applyFlags(found, flags, weight)
}

func (p *Profile) applyFlags(found *Access, flags Flags, weight float64) {
	if flags&IsAssignmentSource != 0 {
		found.CountAssignSrcWtd += weight
	}
	if flags&IsAssignmentDestination != 0 {
		found.CountAssignDstWtd += weight
	}
	if flags&IsCallArg != 0 {
		found.CountCallArgWtd += weight
	}
	if flags&IsCallRetBuf != 0 {
		found.CountCallRetBufWtd += weight
	}
	if flags&IsAssignedFromCall != 0 {
		found.CountAssignedFromCallWtd += weight
	}
	if flags&IsReturned != 0 {
		found.CountReturnedWtd += weight
	}
}

// BlockWeight maps a block to its profiling weight (loop nesting
// multiplier); the visitor multiplies every access recorded in that
// block by this weight.
type BlockWeight func(b ir.BlockID) float64

// UniformWeight treats every block as weight 1, for tests and for
// methods compiled without profile data.
func UniformWeight(ir.BlockID) float64 { return 1 }

// BuildProfiles walks every statement of fn, identifies aggregate
// local reads/writes, classifies their immediate use, and records them
// into one Profile per candidate aggregate local. Locals that are
// address-exposed, already promoted, or not aggregate-typed are
// skipped entirely, per spec.md §4.8/§6.
func BuildProfiles(fn *ir.Func, weight BlockWeight) map[ir.LocalID]*Profile {
	profiles := make(map[ir.LocalID]*Profile)
	candidate := func(id ir.LocalID) bool {
		l := fn.Locals[id]
		return l != nil && ir.IsCandidateForPromotion(l)
	}
	profileFor := func(id ir.LocalID) *Profile {
		p, ok := profiles[id]
		if !ok {
			p = NewProfile(id)
			profiles[id] = p
		}
		return p
	}

	for _, b := range fn.Blocks {
		w := weight(b.ID)
		for _, n := range b.Nodes {
			recordNode(fn, n, w, candidate, profileFor)
		}
	}
	return profiles
}

func recordNode(fn *ir.Func, n *ir.Node, w float64, candidate func(ir.LocalID) bool, profileFor func(ir.LocalID) *Profile) {
	switch n.Op {
	case ir.OpFieldLoad:
		if candidate(n.Local) {
			profileFor(n.Local).Record(n.Offset, n.Type, 0, w)
		}
	case ir.OpFieldStore:
		if candidate(n.Local) {
			profileFor(n.Local).Record(n.Offset, n.Type, IsAssignmentDestination, w)
		}
	case ir.OpBlockCopy:
		if candidate(n.Local) {
			flags := IsAssignmentDestination
			profileFor(n.Local).recordWhole(fn, n.Local, flags, w)
		}
		if !n.SrcIsIndir && candidate(n.SrcLocal) {
			profileFor(n.SrcLocal).recordWhole(fn, n.SrcLocal, IsAssignmentSource, w)
		}
	case ir.OpCall:
		for _, arg := range n.CallArgs {
			if candidate(arg.Local) {
				profileFor(arg.Local).recordWhole(fn, arg.Local, IsCallArg, w)
			}
		}
		if n.RetBuf != 0 && candidate(n.RetBuf) {
			profileFor(n.RetBuf).recordWhole(fn, n.RetBuf, IsCallRetBuf, w)
		}
		if n.AssignedFromCall != 0 && candidate(n.AssignedFromCall) {
			profileFor(n.AssignedFromCall).recordWhole(fn, n.AssignedFromCall, IsAssignedFromCall, w)
		}
	case ir.OpReturn:
		if n.ReturnsAggregate && candidate(n.Local) {
			profileFor(n.Local).recordWhole(fn, n.Local, IsReturned, w)
		}
	}
}

// recordWhole records every field of the aggregate's significant
// segments as touched by a whole-aggregate use (a call arg, retbuf,
// or decomposable assignment), since such uses touch the entire
// layout rather than one scalar offset.
func (p *Profile) recordWhole(fn *ir.Func, local ir.LocalID, flags Flags, weight float64) {
	l := fn.Locals[local]
	if l == nil || l.Layout == nil {
		return
	}
	for _, f := range l.Layout.Fields {
		p.RecordWhole(f.Offset, f.Type, flags, weight)
	}
}
