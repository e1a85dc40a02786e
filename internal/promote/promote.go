// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package promote implements the PromotionPicker: a cost model
// selecting which accesses of a promotion-candidate aggregate to
// replace with scalar locals (spec.md §4.9).
package promote

import (
	"math/rand"

	"github.com/anttech/mrtrt/internal/access"
	"github.com/anttech/mrtrt/internal/ir"
	"github.com/anttech/mrtrt/internal/layout"
	"github.com/anttech/mrtrt/internal/segments"
)

// Cost model constants from spec.md §4.9.
const (
	costWithoutFactor = 3.0
	costWithFactor    = 0.5
	readbackFactor    = 3.0
	writebackRefByrefFactor = 10.0 // checked write barrier on an implicit-byref param's reference field
	writebackPlainFactor    = 3.0
)

// Replacement maps the half-open byte range [Offset, Offset+Type.Size())
// of the parent aggregate to a fresh primitive local.
type Replacement struct {
	Offset         uint32
	Type           layout.PrimitiveType
	LocalID        ir.LocalID
	NeedsWriteBack bool
	NeedsReadBack  bool
}

func (r *Replacement) end() uint32 { return r.Offset + r.Type.Size() }

// AggregateInfo is the per-aggregate promotion outcome: the
// replacements chosen, sorted by offset and never overlapping, plus
// the covering range of whatever bytes remain unpromoted.
type AggregateInfo struct {
	ParentLocal   ir.LocalID
	Replacements  []*Replacement
	UnpromotedMin uint32
	UnpromotedMax uint32
}

// FullyPromoted reports whether every significant byte of the
// aggregate was replaced.
func (a *AggregateInfo) FullyPromoted() bool { return a.UnpromotedMin == a.UnpromotedMax }

// ReplacementAt returns the replacement covering offset, if any.
func (a *AggregateInfo) ReplacementAt(offset uint32) (*Replacement, bool) {
	for _, r := range a.Replacements {
		if offset >= r.Offset && offset < r.end() {
			return r, true
		}
	}
	return nil, false
}

// Config tunes the picker, mirroring the process-wide configuration
// consulted once at engine construction (spec.md §6).
type Config struct {
	// CostStress force-promotes a seeded-random fraction of candidates
	// that the cost model would otherwise reject, reproducing the
	// heuristic faithfully per the Open Question in spec.md §9 rather
	// than "fixing" it.
	CostStress     bool
	StressFraction float64
	StressSeed     int64
}

// Pick runs the cost model over every candidate access in profile and
// returns the resulting AggregateInfo. local must be the profile's
// owning aggregate local; l is its class layout.
func Pick(local ir.LocalID, l *layout.ClassLayout, profile *access.Profile, isParamOrOSR bool, isImplicitByref bool, cfg Config) *AggregateInfo {
	info := &AggregateInfo{ParentLocal: local}
	nextLocal := ir.LocalID(1) // caller overwrites via AllocateReplacementLocals

	var rng *rand.Rand
	if cfg.CostStress {
		rng = rand.New(rand.NewSource(cfg.StressSeed))
	}

	accesses := profile.Accesses()
	for _, a := range accesses {
		if overlapsIncompatibleType(a, accesses) {
			continue
		}

		costWithout := costWithoutFactor * a.CountWtd

		readbackEvents := a.CountCallRetBufWtd + a.CountAssignedFromCallWtd
		if isParamOrOSR {
			readbackEvents += 1
		}
		readback := readbackFactor * readbackEvents

		w := writebackPlainFactor
		if isImplicitByref && a.Type.IsGCRef() {
			w = writebackRefByrefFactor
		}
		writeback := w * a.CountCallArgWtd

		costWith := costWithFactor*a.CountWtd + readback + writeback

		promote := costWith < costWithout
		if !promote && rng != nil && rng.Float64() < cfg.StressFraction {
			promote = true
		}
		if !promote {
			continue
		}

		info.Replacements = append(info.Replacements, &Replacement{
			Offset:  a.Offset,
			Type:    a.Type,
			LocalID: nextLocal, // placeholder; AllocateReplacementLocals assigns real IDs
		})
		nextLocal++
	}

	computeUnpromotedRange(info, l)
	return info
}

// overlapsIncompatibleType disqualifies a candidate whose byte range
// overlaps another access at a different primitive type — the
// candidate overlaps incompatible scalar uses (spec.md §4.9).
func overlapsIncompatibleType(a *access.Access, all []*access.Access) bool {
	aEnd := a.Offset + a.Type.Size()
	for _, b := range all {
		if b == a || b.Type == a.Type {
			continue
		}
		bEnd := b.Offset + b.Type.Size()
		if a.Offset < bEnd && b.Offset < aEnd {
			return true
		}
	}
	return false
}

// computeUnpromotedRange sets UnpromotedMin/Max to the covering
// segment of SignificantSegments(layout) minus the union of
// replacement ranges.
func computeUnpromotedRange(info *AggregateInfo, l *layout.ClassLayout) {
	sig := layout.SignificantSegments(l)
	for _, r := range info.Replacements {
		sig.Subtract(toSegment(r))
	}
	cov, ok := sig.CoveringSegment()
	if !ok {
		info.UnpromotedMin, info.UnpromotedMax = 0, 0
		return
	}
	info.UnpromotedMin, info.UnpromotedMax = cov.Start, cov.End
}

func toSegment(r *Replacement) segments.Segment {
	return segments.Segment{Start: r.Offset, End: r.end()}
}

// AllocateReplacementLocals replaces the placeholder local ids chosen
// during Pick with real fresh scalar locals from fn, in offset order
// (the order Pick already produced them in since accesses are
// processed in ascending-offset profile order).
func AllocateReplacementLocals(fn *ir.Func, info *AggregateInfo) {
	for _, r := range info.Replacements {
		r.LocalID = fn.NewLocal(r.Type)
	}
}
