// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ir is a minimal in-memory representation of a function over sharded tensors: enough to drive the
// insertion of explicit reshards and to print the result.
//
// A Function has arguments, a body with a linear list of operations ending with a "return", and optionally the
// declared sharding of each of its results. Each Op consumes Values (function arguments or results of previous
// operations) and produces new ones. Each Value carries its ShardingSpec (nil if not sharded).
package ir

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/reshard/pkg/core/distributed"
	"github.com/gomlx/reshard/pkg/core/shardingrule"
	"github.com/pkg/errors"
)

const (
	// ReshardKind is the kind of the operations that change the sharding of a value.
	ReshardKind = "reshard"

	// ReturnKind is the kind of the operation that ends a function.
	ReturnKind = "return"
)

// Value is an argument of a function or a result of an operation.
type Value struct {
	// Sharding of the value, nil if not sharded.
	Sharding *distributed.ShardingSpec

	// Name is optional, used for printing.
	Name string

	// op that produced the value, nil for function arguments.
	op *Op
}

// Op returns the operation that produced the value, or nil if it is a function argument.
func (v *Value) Op() *Op {
	return v.op
}

// Op is an operation in a function.
type Op struct {
	Kind     string
	Operands []*Value
	Results  []*Value

	// Rule is the sharding rule of the operation, or nil if it doesn't have one.
	Rule *shardingrule.OpShardingRule

	fn *Function
}

// ShardingRule implements reshard.OpView.
func (op *Op) ShardingRule() *shardingrule.OpShardingRule {
	return op.Rule
}

// OperandShardings implements reshard.OpView.
func (op *Op) OperandShardings() []*distributed.ShardingSpec {
	shardings := make([]*distributed.ShardingSpec, len(op.Operands))
	for i, operand := range op.Operands {
		shardings[i] = operand.Sharding
	}
	return shardings
}

// ResultShardings implements reshard.OpView.
func (op *Op) ResultShardings() []*distributed.ShardingSpec {
	shardings := make([]*distributed.ShardingSpec, len(op.Results))
	for i, result := range op.Results {
		shardings[i] = result.Sharding
	}
	return shardings
}

// Result returns the i-th result of the operation.
func (op *Op) Result(i int) *Value {
	return op.Results[i]
}

// SetOperand replaces the i-th operand of the operation.
func (op *Op) SetOperand(i int, value *Value) {
	op.Operands[i] = value
}

// Function holds a list of operations.
type Function struct {
	Name string
	Args []*Value

	// ResultShardings are the declared shardings of the function results. Entries may be nil.
	ResultShardings []*distributed.ShardingSpec

	body []*Op
}

// NewFunction creates an empty function.
func NewFunction(name string) *Function {
	return &Function{Name: name}
}

// AddArg adds a new function argument with the given sharding (it can be nil).
func (fn *Function) AddArg(name string, sharding *distributed.ShardingSpec) *Value {
	v := &Value{Name: name, Sharding: sharding}
	fn.Args = append(fn.Args, v)
	return v
}

// Ops returns a copy of the list of operations of the function body.
// It is safe to modify the function while iterating over the returned list.
func (fn *Function) Ops() []*Op {
	return slices.Clone(fn.body)
}

// NewOp creates an operation, not yet inserted in the function, with one result per given sharding.
func (fn *Function) NewOp(kind string, rule *shardingrule.OpShardingRule, operands []*Value,
	resultShardings ...*distributed.ShardingSpec) *Op {
	op := &Op{Kind: kind, Rule: rule, Operands: slices.Clone(operands), fn: fn}
	for _, sharding := range resultShardings {
		op.Results = append(op.Results, &Value{Sharding: sharding, op: op})
	}
	return op
}

// AddOp creates an operation and appends it to the end of the function body.
func (fn *Function) AddOp(kind string, rule *shardingrule.OpShardingRule, operands []*Value,
	resultShardings ...*distributed.ShardingSpec) *Op {
	op := fn.NewOp(kind, rule, operands, resultShardings...)
	fn.body = append(fn.body, op)
	return op
}

// Return appends the return operation of the function.
func (fn *Function) Return(values ...*Value) *Op {
	return fn.AddOp(ReturnKind, nil, values)
}

// ReturnOp returns the return operation, or nil if the function has none yet.
func (fn *Function) ReturnOp() *Op {
	for _, op := range slices.Backward(fn.body) {
		if op.Kind == ReturnKind {
			return op
		}
	}
	return nil
}

func (fn *Function) position(op *Op) int {
	idx := slices.Index(fn.body, op)
	if idx < 0 {
		exceptions.Panicf("ir: operation %q is not in function %q", op.Kind, fn.Name)
	}
	return idx
}

// InsertBefore inserts newOp right before op.
func (fn *Function) InsertBefore(op, newOp *Op) {
	fn.body = slices.Insert(fn.body, fn.position(op), newOp)
}

// InsertAfter inserts newOp right after op.
func (fn *Function) InsertAfter(op, newOp *Op) {
	fn.body = slices.Insert(fn.body, fn.position(op)+1, newOp)
}

// NewReshard creates a reshard of value to the given sharding, not yet inserted in the function.
func (fn *Function) NewReshard(value *Value, sharding *distributed.ShardingSpec) *Op {
	return fn.NewOp(ReshardKind, nil, []*Value{value}, sharding)
}

// ReplaceAllUsesExcept makes every operation using from use to instead, except the operation except.
func (fn *Function) ReplaceAllUsesExcept(from, to *Value, except *Op) {
	for _, op := range fn.body {
		if op == except {
			continue
		}
		for i, operand := range op.Operands {
			if operand == from {
				op.Operands[i] = to
			}
		}
	}
}

// Verify checks that every operand is defined before being used, and that the function ends with a return.
func (fn *Function) Verify() error {
	defined := make(map[*Value]bool)
	for _, arg := range fn.Args {
		defined[arg] = true
	}
	for idx, op := range fn.body {
		for i, operand := range op.Operands {
			if !defined[operand] {
				return errors.Errorf("function %q: operation #%d (%s) operand #%d is used before being defined",
					fn.Name, idx, op.Kind, i)
			}
		}
		for _, result := range op.Results {
			defined[result] = true
		}
		if op.Kind == ReturnKind && idx != len(fn.body)-1 {
			return errors.Errorf("function %q: return is not the last operation", fn.Name)
		}
	}
	if fn.ReturnOp() == nil {
		return errors.Errorf("function %q has no return", fn.Name)
	}
	return nil
}
