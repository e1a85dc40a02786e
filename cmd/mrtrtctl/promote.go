// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anttech/mrtrt/internal/engine"
)

func newPromoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "promote",
		Short: "exercise the struct-promotion pipeline (access -> promote -> liveness -> decompose)",
	}
	cmd.AddCommand(newPromoteRunCmd())
	return cmd
}

func newPromoteRunCmd() *cobra.Command {
	var costStress bool
	cmd := &cobra.Command{
		Use:   "run <scenario.json>",
		Short: "run the promotion pipeline over a scenario file and print the resulting replacements and rewritten ops",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fn, err := loadScenario(args[0])
			if err != nil {
				return err
			}

			cfg := engine.DefaultConfig()
			cfg.CostStress = costStress
			e := engine.New(cfg, 4)

			result := e.PromoteMethod(fn, nil)

			for local, info := range result.Infos {
				fmt.Fprintf(cmd.OutOrStdout(), "local %d: %d replacement(s), unpromoted=[%d,%d)\n",
					local, len(info.Replacements), info.UnpromotedMin, info.UnpromotedMax)
				for _, r := range info.Replacements {
					fmt.Fprintf(cmd.OutOrStdout(), "  offset=%d type=%v -> local %d\n", r.Offset, r.Type, r.LocalID)
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), "rewritten method body:")
			for _, b := range fn.Blocks {
				for _, n := range b.Nodes {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", describeOp(n))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&costStress, "cost-stress", false, "force-promote a random fraction of otherwise-rejected candidates")
	return cmd
}
