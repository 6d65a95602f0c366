// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/reshard/pkg/reshard"
)

// ApplyEdits applies the edits planned for op, and returns the number of reshards inserted.
//
// Operand edits insert a reshard right before op and make op use it. Result edits insert a reshard right after op
// (after the previous result reshards), redirect all the other users of the result to it, and only then change
// the sharding of the result itself.
func (fn *Function) ApplyEdits(op *Op, edits []reshard.Edit) int {
	after := op
	for _, edit := range edits {
		switch edit.Kind {
		case reshard.ReshardOperand, reshard.ReshardReturnOperand:
			reshardOp := fn.NewReshard(op.Operands[edit.Index], edit.Target)
			fn.InsertBefore(op, reshardOp)
			op.SetOperand(edit.Index, reshardOp.Result(0))
		case reshard.ReshardResult:
			result := op.Result(edit.Index)
			reshardOp := fn.NewReshard(result, edit.Original)
			fn.InsertAfter(after, reshardOp)
			after = reshardOp
			fn.ReplaceAllUsesExcept(result, reshardOp.Result(0), reshardOp)
			result.Sharding = edit.Target
		default:
			exceptions.Panicf("ir: unknown edit kind %s", edit.Kind)
		}
	}
	return len(edits)
}
