// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// reshard_explain loads a function described in YAML (see package irload) and explains how the explicit reshards
// pass changes it.
//
// Usage:
//
//	reshard_explain plan model.yaml   # Per operation: chosen axes per factor and planned edits.
//	reshard_explain run model.yaml    # Function before and after the pass.
package main

import (
	"flag"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

var flagNoColor bool

var rootCmd = &cobra.Command{
	Use:   "reshard_explain",
	Short: "Explains the explicit reshards inserted in a sharded function",
	Long: `reshard_explain loads a function described in YAML, with its meshes and sharded values, and explains
how the factors of each operation are reconciled and which reshards are inserted.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagNoColor {
			lipgloss.SetColorProfile(termenv.Ascii)
		}
	},
}

func init() {
	klog.InitFlags(nil)
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no_color", false, "Disable colors in the output.")
	rootCmd.AddCommand(planCmd, runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		klog.Errorf("reshard_explain failed: %+v", err)
		os.Exit(1)
	}
}
