// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/reshard/pkg/core/distributed"
	"github.com/gomlx/reshard/pkg/core/ir"
	"github.com/gomlx/reshard/pkg/core/ir/irload"
	"github.com/gomlx/reshard/pkg/passes/explicitreshards"
	"github.com/gomlx/reshard/pkg/reshard"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan <file.yaml>",
	Short: "Shows, for each operation, the axes chosen for each factor and the planned edits",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fn, meshes, err := irload.LoadFile(args[0])
		if err != nil {
			return err
		}
		return reportPlans(cmd.OutOrStdout(), fn, meshes)
	},
}

var runCmd = &cobra.Command{
	Use:   "run <file.yaml>",
	Short: "Runs the explicit reshards pass and prints the function before and after",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fn, meshes, err := irload.LoadFile(args[0])
		if err != nil {
			return err
		}
		return reportRun(cmd.OutOrStdout(), fn, meshes)
	},
}

func reportMeshes(w io.Writer, meshes *distributed.MeshTable) {
	_, _ = fmt.Fprintln(w, titleStyle.Render("Meshes"))
	table := newHighlightTable("mesh", "axes", "# devices")
	for _, mesh := range meshes.Meshes() {
		sizes := mesh.AxesSizes()
		axes := make([]string, mesh.Rank())
		for i, name := range mesh.AxesNames() {
			axes[i] = fmt.Sprintf("%s=%d", name, sizes[i])
		}
		table.Row(false, "@"+mesh.Name(), strings.Join(axes, ", "), humanize.Comma(int64(mesh.NumDevices())))
	}
	_, _ = fmt.Fprintln(w, table.Table.Render())
}

func reportPlans(w io.Writer, fn *ir.Function, meshes *distributed.MeshTable) error {
	reportMeshes(w, meshes)
	_, _ = fmt.Fprintln(w, titleStyle.Render("Operations of @"+fn.Name))
	table := newHighlightTable("#", "op", "rule", "outcome", "factor axes", "edits")
	reconciler := reshard.New(meshes)
	for idx, op := range fn.Ops() {
		if op.Kind == ir.ReturnKind {
			continue
		}
		plan, err := reconciler.Reconcile(op)
		if err != nil {
			return err
		}
		rule := "-"
		if op.Rule != nil {
			rule = op.Rule.String()
		}
		outcome := "reconciled"
		if plan.Skip != reshard.NotSkipped {
			outcome = plan.Skip.String()
		}
		var factors []string
		for factor, axes := range plan.FactorAxes {
			factors = append(factors, op.Rule.FactorName(factor)+": "+distributed.AxesString(axes))
		}
		edits := make([]string, len(plan.Edits))
		for i, edit := range plan.Edits {
			edits[i] = edit.String()
		}
		table.Row(len(plan.Edits) > 0, strconv.Itoa(idx), op.Kind, rule, outcome,
			strings.Join(factors, "\n"), strings.Join(edits, "\n"))
	}
	_, _ = fmt.Fprintln(w, table.Table.Render())

	if returnOp := fn.ReturnOp(); returnOp != nil {
		edits := reshard.ReconcileReturn(fn.ResultShardings, returnOp.OperandShardings())
		_, _ = fmt.Fprintln(w, titleStyle.Render("Return"))
		returnTable := newHighlightTable("#", "edit")
		for _, edit := range edits {
			returnTable.Row(true, strconv.Itoa(edit.Index), edit.String())
		}
		if len(edits) == 0 {
			returnTable.Row(false, "-", "returned values match the declared results")
		}
		_, _ = fmt.Fprintln(w, returnTable.Table.Render())
	}
	return nil
}

func reportRun(w io.Writer, fn *ir.Function, meshes *distributed.MeshTable) error {
	reportMeshes(w, meshes)
	_, _ = fmt.Fprintln(w, titleStyle.Render("Before"))
	_, _ = fmt.Fprint(w, fn)
	stats, err := explicitreshards.Run(fn, meshes, explicitreshards.WithVerify())
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, titleStyle.Render("After"))
	_, _ = fmt.Fprint(w, fn)

	_, _ = fmt.Fprintln(w, titleStyle.Render("Summary"))
	table := newHighlightTable()
	table.Row(false, "ops visited", humanize.Comma(int64(stats.OpsVisited)))
	table.Row(stats.ReshardsInserted > 0, "reshards inserted", humanize.Comma(int64(stats.ReshardsInserted)))
	for _, reason := range reshard.SkipReasonValues() {
		if reason == reshard.NotSkipped {
			continue
		}
		table.Row(false, "skipped: "+reason.String(), humanize.Comma(int64(stats.Skipped[reason])))
	}
	_, _ = fmt.Fprintln(w, table.Table.Render())
	return nil
}
