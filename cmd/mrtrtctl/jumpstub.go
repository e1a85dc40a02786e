// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/anttech/mrtrt/internal/engine"
)

func newJumpStubCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jumpstub",
		Short: "exercise JumpStubManager allocation within an address window",
	}
	cmd.AddCommand(newJumpStubGetCmd())
	return cmd
}

func newJumpStubGetCmd() *cobra.Command {
	var (
		targetStr string
		loStr     string
		hiStr     string
		allocator uint64
		throwOnFailure bool
	)
	cmd := &cobra.Command{
		Use:   "get",
		Short: "request a jump stub for a target within [lo, hi], twice, to show caching",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseAddr(targetStr)
			if err != nil {
				return err
			}
			lo, err := parseAddr(loStr)
			if err != nil {
				return err
			}
			hi, err := parseAddr(hiStr)
			if err != nil {
				return err
			}

			e := engine.New(engine.DefaultConfig(), 4)
			addr1, ok, err := e.ExecMgr.JumpStub(target, lo, hi, allocator, 0, false, throwOnFailure)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "first request: ok=%v addr=0x%x\n", ok, addr1)

			addr2, ok, err := e.ExecMgr.JumpStub(target, lo, hi, allocator, 0, false, throwOnFailure)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "second request (should be cached): ok=%v addr=0x%x same=%v\n", ok, addr2, addr1 == addr2)
			return nil
		},
	}
	cmd.Flags().StringVar(&targetStr, "target", "0x100000000", "jump target address (hex)")
	cmd.Flags().StringVar(&loStr, "lo", "0x0", "window lower bound (hex)")
	cmd.Flags().StringVar(&hiStr, "hi", "0xffffffffffffffff", "window upper bound (hex)")
	cmd.Flags().Uint64Var(&allocator, "allocator", 1, "allocator id")
	cmd.Flags().BoolVar(&throwOnFailure, "throw-on-failure", false, "propagate OutOfMemoryWithinRange instead of returning ok=false")
	return cmd
}

func parseAddr(s string) (uintptr, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return uintptr(v), nil
}
