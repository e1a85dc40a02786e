// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package engine wires the two halves of the system together: the
// code-heap side (codeheap, rangesection, jumpstub, unwind, execmgr)
// and the JIT-side struct-promotion pipeline (access, promote,
// liveness, decompose), behind the single long-lived context
// Design Notes §9 asks for in place of process-wide mutable globals.
package engine

import (
	"github.com/sirupsen/logrus"

	"github.com/anttech/mrtrt/internal/access"
	"github.com/anttech/mrtrt/internal/codeheap"
	"github.com/anttech/mrtrt/internal/decompose"
	"github.com/anttech/mrtrt/internal/execmgr"
	"github.com/anttech/mrtrt/internal/ir"
	"github.com/anttech/mrtrt/internal/liveness"
	"github.com/anttech/mrtrt/internal/obs"
	"github.com/anttech/mrtrt/internal/promote"
	"github.com/anttech/mrtrt/internal/rangesection"
	"github.com/anttech/mrtrt/internal/unwind"
)

// Config is the process-wide configuration consulted once at
// construction (spec.md §6): nothing here is hot-reloaded.
type Config struct {
	// Code-heap side.
	DefaultHeapSize             uintptr
	DefaultHeapMaxSize          uintptr
	JumpStubWindowDefault       uintptr
	JumpStubReserve             uintptr
	DisableLastUsedCacheAboveCPUs int

	// JIT side.
	PromotionEnabled  bool
	MethodHashLo      uint64
	MethodHashHi      uint64
	CostStress        bool
	StressFraction    float64
	StressSeed        int64
}

// DefaultConfig returns sane defaults mirroring the teacher runtime's
// out-of-the-box heap sizing.
func DefaultConfig() Config {
	return Config{
		DefaultHeapSize:       4 << 20,
		DefaultHeapMaxSize:    4 << 20,
		JumpStubWindowDefault: 1 << 31,
		JumpStubReserve:       4096,
		PromotionEnabled:      true,
		MethodHashLo:          0,
		MethodHashHi:          ^uint64(0),
	}
}

// Engine is the top-level, long-lived context. Each cmd/mrtrtctl
// subcommand constructs its own instance when it runs; nothing below
// is a package-level global.
type Engine struct {
	Config Config

	Heaps    *codeheap.Pool
	Registry *rangesection.Registry
	ExecMgr  *execmgr.Manager

	log *logrus.Entry
}

// New constructs an Engine from cfg. numCPU is threaded through only
// to decide whether the RangeSection registry's last-used cache should
// be disabled (spec.md §4.3); it is not consulted anywhere else.
func New(cfg Config, numCPU int) *Engine {
	log := obs.For("engine")
	disableCache := cfg.DisableLastUsedCacheAboveCPUs > 0 && numCPU > cfg.DisableLastUsedCacheAboveCPUs

	reg := rangesection.NewRegistry(disableCache)
	heaps := codeheap.NewPool(codeheap.Config{
		ReservedSize:    cfg.DefaultHeapSize,
		MaxSize:         cfg.DefaultHeapMaxSize,
		JumpStubReserve: cfg.JumpStubReserve,
	}, codeheap.PlatformHints{}, obs.For("codeheap"))

	return &Engine{
		Config:   cfg,
		Heaps:    heaps,
		Registry: reg,
		ExecMgr:  execmgr.New(reg, heaps, obs.For("execmgr")),
		log:      log,
	}
}

// NewUnwindTable builds a fresh, unpublished unwind table using reg
// as the OS registrar; callers attach it to a Section via
// ExecMgr.AddCodeRange.
func (e *Engine) NewUnwindTable(reg unwind.OSRegistrar) *unwind.Table {
	return unwind.NewTable(reg, obs.For("unwind"))
}

// ShouldPromote applies the process-wide enable flag and method-hash
// range gate (spec.md §6 "Process-wide configuration") before the JIT
// invokes the promotion pipeline at all.
func (e *Engine) ShouldPromote(methodHash uint64) bool {
	return e.Config.PromotionEnabled && methodHash >= e.Config.MethodHashLo && methodHash <= e.Config.MethodHashHi
}

// PromotionResult bundles the per-method products of the promotion
// pipeline, useful to callers (mrtrtctl, tests) that want to inspect
// intermediate state rather than just the side-effected ir.Func.
type PromotionResult struct {
	Infos    map[ir.LocalID]*promote.AggregateInfo
	Liveness *liveness.Result
}

// PromoteMethod runs the JIT-side pipeline in the strict order spec.md
// §5 mandates: AccessProfile -> PromotionPicker -> Liveness ->
// DecompositionPlanner, each stage reading only state produced by
// earlier stages. fn is rewritten in place.
func (e *Engine) PromoteMethod(fn *ir.Func, weight access.BlockWeight) *PromotionResult {
	if weight == nil {
		weight = access.UniformWeight
	}

	profiles := access.BuildProfiles(fn, weight)

	cfg := promote.Config{
		CostStress:     e.Config.CostStress,
		StressFraction: e.Config.StressFraction,
		StressSeed:     e.Config.StressSeed,
	}

	infos := make(map[ir.LocalID]*promote.AggregateInfo, len(profiles))
	for local, profile := range profiles {
		l := fn.Locals[local]
		info := promote.Pick(local, l.Layout, profile, l.IsParam || l.IsOSR, l.ImplicitByref, cfg)
		promote.AllocateReplacementLocals(fn, info)
		infos[local] = info
	}

	live := liveness.Compute(fn, infos)
	decompose.NewPlanner(fn, infos, live).Run()

	return &PromotionResult{Infos: infos, Liveness: live}
}
