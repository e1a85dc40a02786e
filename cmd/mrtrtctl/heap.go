// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anttech/mrtrt/internal/codeheap"
	"github.com/anttech/mrtrt/internal/engine"
)

func newHeapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "heap",
		Short: "exercise CodeHeap allocation and the nibble map",
	}
	cmd.AddCommand(newHeapAllocCmd())
	cmd.AddCommand(newHeapFindCmd())
	return cmd
}

func newHeapAllocCmd() *cobra.Command {
	var (
		allocator uint64
		kindFlag  string
		heapSize  uint64
		sizes     []int
	)
	cmd := &cobra.Command{
		Use:   "alloc",
		Short: "allocate a sequence of code blocks from a fresh heap and print their addresses",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(kindFlag)
			if err != nil {
				return err
			}
			cfg := engine.DefaultConfig()
			cfg.DefaultHeapSize = uintptr(heapSize)
			cfg.DefaultHeapMaxSize = uintptr(heapSize)
			e := engine.New(cfg, 4)
			h, err := e.Heaps.EnsureHeap(allocator, kind, uintptr(heapSize))
			if err != nil {
				return err
			}
			for i, size := range sizes {
				addr, err := e.ExecMgr.AllocateMethod(h, 0, uintptr(size), 8, uint64(i+1))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "alloc[%d] size=%d addr=0x%x\n", i, size, addr)
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&allocator, "allocator", 1, "allocator id")
	cmd.Flags().StringVar(&kindFlag, "kind", "static", "heap kind: static|collectible|dynamic")
	cmd.Flags().Uint64Var(&heapSize, "heap-size", 1<<20, "reserved/max heap size in bytes")
	cmd.Flags().IntSliceVar(&sizes, "sizes", []int{64, 32, 128}, "byte sizes of successive allocations")
	return cmd
}

func newHeapFindCmd() *cobra.Command {
	var (
		allocator uint64
		heapSize  uint64
		sizes     []int
		deltas    []int
	)
	cmd := &cobra.Command{
		Use:   "find",
		Short: "allocate blocks then query the nibble map at addr+delta for each delta",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := engine.DefaultConfig()
			cfg.DefaultHeapSize = uintptr(heapSize)
			cfg.DefaultHeapMaxSize = uintptr(heapSize)
			e := engine.New(cfg, 4)
			h, err := e.Heaps.EnsureHeap(allocator, codeheap.KindStatic, uintptr(heapSize))
			if err != nil {
				return err
			}
			var starts []uintptr
			for i, size := range sizes {
				addr, err := e.ExecMgr.AllocateMethod(h, 0, uintptr(size), 8, uint64(i+1))
				if err != nil {
					return err
				}
				starts = append(starts, addr)
			}
			for i, start := range starts {
				for _, d := range deltas {
					pc := start + uintptr(d)
					got, ok := h.NibbleMap().FindBlockStart(pc)
					fmt.Fprintf(cmd.OutOrStdout(), "block[%d] start=0x%x pc=0x%x -> found=%v start=0x%x\n", i, start, pc, ok, got)
				}
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&allocator, "allocator", 1, "allocator id")
	cmd.Flags().Uint64Var(&heapSize, "heap-size", 1<<20, "reserved/max heap size in bytes")
	cmd.Flags().IntSliceVar(&sizes, "sizes", []int{64, 32}, "byte sizes of successive allocations")
	cmd.Flags().IntSliceVar(&deltas, "deltas", []int{0, 16}, "byte offsets from each block start to query")
	return cmd
}

func parseKind(s string) (codeheap.Kind, error) {
	switch s {
	case "static":
		return codeheap.KindStatic, nil
	case "collectible":
		return codeheap.KindCollectible, nil
	case "dynamic":
		return codeheap.KindDynamic, nil
	default:
		return 0, fmt.Errorf("unknown heap kind %q", s)
	}
}
