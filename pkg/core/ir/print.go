// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// String prints the function in an MLIR-like notation. Unnamed values are numbered in order of definition.
//
// Example:
//
//	func @main(%arg0: <@mesh, [{}, {"y"}]>, %arg1: <@mesh, [{"y"}, {"x"}]>) -> (<@mesh, [{"x"}, {}]>) {
//	  %0 = reshard %arg1 <@mesh, [{"y"}, {}]>
//	  %1 = dot(%arg0, %0) <@mesh, [{}, {}]> rule=([i, k], [k, j])->([i, j]) {i=8, j=16, k=32}
//	  return %1
//	}
func (fn *Function) String() string {
	names := make(map[*Value]string)
	nameOf := func(v *Value) string {
		if name, found := names[v]; found {
			return name
		}
		return "%<undefined>"
	}
	for i, arg := range fn.Args {
		if arg.Name != "" {
			names[arg] = "%" + arg.Name
		} else {
			names[arg] = "%arg" + strconv.Itoa(i)
		}
	}

	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "func @%s(", fn.Name)
	for i, arg := range fn.Args {
		if i > 0 {
			sb.WriteString(", ")
		}
		_, _ = fmt.Fprintf(&sb, "%s: %s", names[arg], arg.Sharding)
	}
	sb.WriteString(")")
	if len(fn.ResultShardings) > 0 {
		parts := make([]string, len(fn.ResultShardings))
		for i, sharding := range fn.ResultShardings {
			parts[i] = sharding.String()
		}
		_, _ = fmt.Fprintf(&sb, " -> (%s)", strings.Join(parts, ", "))
	}
	sb.WriteString(" {\n")

	counter := 0
	for _, op := range fn.body {
		operands := make([]string, len(op.Operands))
		for i, operand := range op.Operands {
			operands[i] = nameOf(operand)
		}
		results := make([]string, len(op.Results))
		shardings := make([]string, len(op.Results))
		for i, result := range op.Results {
			if result.Name != "" {
				names[result] = "%" + result.Name
			} else {
				names[result] = "%" + strconv.Itoa(counter)
				counter++
			}
			results[i] = names[result]
			shardings[i] = result.Sharding.String()
		}
		sb.WriteString("  ")
		if len(results) > 0 {
			_, _ = fmt.Fprintf(&sb, "%s = ", strings.Join(results, ", "))
		}
		switch op.Kind {
		case ReturnKind, ReshardKind:
			_, _ = fmt.Fprintf(&sb, "%s %s", op.Kind, strings.Join(operands, ", "))
		default:
			_, _ = fmt.Fprintf(&sb, "%s(%s)", op.Kind, strings.Join(operands, ", "))
		}
		if len(shardings) > 0 {
			_, _ = fmt.Fprintf(&sb, " %s", strings.Join(shardings, ", "))
		}
		if op.Rule != nil {
			_, _ = fmt.Fprintf(&sb, " rule=%s", op.Rule)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n")
	return sb.String()
}
