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

func newRangeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "range",
		Short: "exercise the RangeSection registry",
	}
	cmd.AddCommand(newRangeListCmd())
	return cmd
}

func newRangeListCmd() *cobra.Command {
	var (
		allocatorCount int
		heapSize       uint64
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "register one heap per allocator and list the resulting sorted RangeSection table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := engine.DefaultConfig()
			cfg.DefaultHeapSize = uintptr(heapSize)
			cfg.DefaultHeapMaxSize = uintptr(heapSize)
			e := engine.New(cfg, 4)

			for i := 0; i < allocatorCount; i++ {
				allocatorID := uint64(i + 1)
				h, err := e.Heaps.EnsureHeap(allocatorID, codeheap.KindStatic, 64)
				if err != nil {
					return err
				}
				if err := e.ExecMgr.AddCodeRange(h, h.ReservedBase()+uintptr(heapSize), 0, nil); err != nil {
					return err
				}
			}

			for _, r := range e.Registry.All() {
				fmt.Fprintf(cmd.OutOrStdout(), "[0x%x, 0x%x)\n", r.Lo, r.Hi)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&allocatorCount, "allocators", 3, "number of distinct allocators, each getting one heap")
	cmd.Flags().Uint64Var(&heapSize, "heap-size", 1<<16, "reserved/max heap size per allocator")
	return cmd
}
