// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package execmgr is the ExecutionManager facade of spec.md §4.6: a
// thin composition of the RangeSection registry, the per-allocator
// CodeHeap pool, and the JumpStubManager, plus whatever JitManager(s)
// (code-heap backed or AOT) have registered ranges with it.
package execmgr

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/anttech/mrtrt/internal/codeheap"
	"github.com/anttech/mrtrt/internal/jumpstub"
	"github.com/anttech/mrtrt/internal/rangesection"
	"github.com/anttech/mrtrt/internal/unwind"
)

// Manager is the facade described in spec.md §4.6: find_code_range,
// is_managed_code, code_method, jump_stub, add_code_range,
// delete_range.
type Manager struct {
	Registry *rangesection.Registry
	Heaps    *codeheap.Pool

	mu        sync.Mutex
	jumpstubs map[uint64]*jumpstub.Manager // allocatorID -> shared manager
	lcg       map[uint64]*jumpstub.Manager // lcg method id -> unshared manager

	log *logrus.Entry
}

// New composes a facade over an existing registry and heap pool. Both
// are constructed once at engine startup per Design Notes §9
// ("process-wide mutable globals... model as long-lived context
// passed explicitly").
func New(reg *rangesection.Registry, heaps *codeheap.Pool, log *logrus.Entry) *Manager {
	return &Manager{
		Registry:  reg,
		Heaps:     heaps,
		jumpstubs: make(map[uint64]*jumpstub.Manager),
		lcg:       make(map[uint64]*jumpstub.Manager),
		log:       log,
	}
}

// FindCodeRange delegates to the registry (spec.md §4.6).
func (m *Manager) FindCodeRange(pc uintptr) (*rangesection.Section, bool) {
	return m.Registry.Get(pc)
}

// IsManagedCode asks the owning section's JitManager whether pc lies
// in a real (non-stub) code block.
func (m *Manager) IsManagedCode(pc uintptr) bool {
	sec, ok := m.Registry.Get(pc)
	if !ok {
		return false
	}
	return sec.Owner.IsManagedCode(pc)
}

// AllocateMethod allocates a real method body from h and records it in
// the heap's header table as BlockReal/methodID, so IsManagedCode and
// CodeMethod (spec.md §4.6) report it correctly once the heap's range
// is registered via AddCodeRange. This is the facade entry point any
// caller outside tests should use instead of h.AllocateCode directly:
// a block allocated through AllocateCode alone carries no header and
// is invisible to IsManagedCode. Jump-stub blocks take the separate
// path in jumpstub.Manager.GetOrCreate, which marks BlockStub itself.
func (m *Manager) AllocateMethod(h *codeheap.Heap, headerBytes, bodyBytes, align uintptr, methodID uint64) (uintptr, error) {
	addr, err := h.AllocateCode(headerBytes, bodyBytes, align, 0)
	if err != nil {
		return 0, errors.Wrap(err, "execmgr: allocate method")
	}
	h.MarkReal(addr, methodID)
	return addr, nil
}

// CodeMethod returns the identity of the method owning pc.
func (m *Manager) CodeMethod(pc uintptr) (uint64, bool) {
	sec, ok := m.Registry.Get(pc)
	if !ok {
		return 0, false
	}
	return sec.Owner.MethodAt(pc)
}

// jumpStubManagerFor returns the shared manager for a normal
// allocator, or a fresh unshared manager for an LCG method, creating
// it on first use. LCG methods never share jump stubs so that
// TeardownMethod can free them independently (spec.md §4.4).
func (m *Manager) jumpStubManagerFor(allocatorID uint64, lcgMethodID uint64, isLCG bool) *jumpstub.Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	if isLCG {
		if js, ok := m.lcg[lcgMethodID]; ok {
			return js
		}
		js := jumpstub.New(m.Heaps, lcgMethodID, true)
		m.lcg[lcgMethodID] = js
		return js
	}
	if js, ok := m.jumpstubs[allocatorID]; ok {
		return js
	}
	js := jumpstub.New(m.Heaps, allocatorID, false)
	m.jumpstubs[allocatorID] = js
	return js
}

// JumpStub returns a thunk address in [lo, hi] that unconditionally
// jumps to target, per spec.md §4.4/§4.6. ok=false with a nil error
// means "no stub could be placed, not an error" (the caller retries
// with a relaxed window); a non-nil error is only returned when
// throwOnFailure is set, per spec.md §7's OutOfMemoryWithinRange
// propagation policy.
func (m *Manager) JumpStub(target, lo, hi uintptr, allocatorID, lcgMethodID uint64, isLCG, throwOnFailure bool) (addr uintptr, ok bool, err error) {
	js := m.jumpStubManagerFor(allocatorID, lcgMethodID, isLCG)
	addr, err = js.GetOrCreate(target, lo, hi)
	if err != nil {
		if throwOnFailure {
			return 0, false, errors.Wrap(err, "execmgr: jump stub")
		}
		return 0, false, nil
	}
	return addr, true, nil
}

// TeardownLCGMethod releases every jump-stub block and backing heap
// owned by an LCG method, matching the per-method teardown path in
// spec.md §3 (JumpStubBlock's "pointer back to its host heap").
func (m *Manager) TeardownLCGMethod(lcgMethodID uint64) {
	m.mu.Lock()
	js, ok := m.lcg[lcgMethodID]
	if ok {
		delete(m.lcg, lcgMethodID)
	}
	m.mu.Unlock()
	if ok {
		js.TeardownMethod()
	}
}

// AddCodeRange registers a newly created CodeHeap's address window as
// a RangeSection, writer-side (spec.md §4.6 "add_code_range").
func (m *Manager) AddCodeRange(h *codeheap.Heap, hi uintptr, flags uint32, table *unwind.Table) error {
	sec := &rangesection.Section{
		Range: rangesection.Range{Lo: h.MapBase(), Hi: hi},
		Owner: h,
		Flags: flags,
	}
	if table != nil {
		sec.Unwind = table
	}
	if err := m.Registry.Add(sec); err != nil {
		return errors.Wrap(err, "execmgr: add code range")
	}
	if m.log != nil {
		m.log.WithFields(logrus.Fields{
			"lo": sec.Range.Lo, "hi": sec.Range.Hi, "owner": h.Name(),
		}).Debug("execmgr: code range added")
	}
	return nil
}

// AddAOTRange registers a loaded AOT/ReadyToRun image's address
// window as a RangeSection, exercising the same writer path as
// AddCodeRange against the other JitManager implementation (spec.md
// §1).
func (m *Manager) AddAOTRange(owner rangesection.JitManager, lo, hi uintptr) error {
	return m.Registry.Add(&rangesection.Section{Range: rangesection.Range{Lo: lo, Hi: hi}, Owner: owner})
}

// DeleteRange unregisters the range starting at lo (spec.md §4.6
// "delete_range").
func (m *Manager) DeleteRange(lo uintptr) error {
	_, err := m.Registry.Delete(lo)
	if err != nil {
		return errors.Wrap(err, "execmgr: delete range")
	}
	return nil
}
