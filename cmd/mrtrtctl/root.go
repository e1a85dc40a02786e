// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command mrtrtctl exercises the managed-code-heap and
// struct-promotion engine end to end, without needing a live JIT or
// a real OS: heap alloc, heap find, range list, jumpstub get, and
// promote run all build a throwaway engine.Engine inside the process
// and print what it decided (SPEC_FULL.md §1).
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/anttech/mrtrt/internal/obs"
)

var verbose bool

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mrtrtctl",
		Short: "exercise the managed code heap and struct-promotion engine",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				obs.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newHeapCmd())
	root.AddCommand(newRangeCmd())
	root.AddCommand(newJumpStubCmd())
	root.AddCommand(newPromoteCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
