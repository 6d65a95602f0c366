// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package reshard makes operations with conflicting operand and result shardings executable, by choosing one
// sharding per factor and listing the explicit reshards needed to bring every operand and result to it.
//
// Operations relate the dimensions of their operands and results through factors (see package shardingrule).
// When a factor is sharded differently in different tensors, Reconcile picks, for each factor, the axes with the
// most votes among the tensors (see findCommonAxes) and returns a Plan with the Edits to apply:
//
//   - ReshardOperand: reshard an operand before the operation.
//   - ReshardResult: the operation produces the new sharding, and a reshard after it restores the original sharding
//     for the users of the result.
//
// ReconcileReturn handles the special case of a function return, whose operands must match the declared function
// result shardings.
//
// The package doesn't modify any IR: applying the edits is left to the caller, see package ir.
package reshard

import (
	"fmt"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/reshard/pkg/core/distributed"
	"github.com/gomlx/reshard/pkg/core/shardingrule"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// OpView is what Reconcile needs to know about an operation.
type OpView interface {
	// ShardingRule of the operation, or nil if the operation has none.
	ShardingRule() *shardingrule.OpShardingRule

	// OperandShardings returns the sharding of each operand. Entries can be nil for unsharded values.
	OperandShardings() []*distributed.ShardingSpec

	// ResultShardings returns the sharding of each result. Entries can be nil for unsharded values.
	ResultShardings() []*distributed.ShardingSpec
}

// SkipReason tells why an operation was left unchanged.
type SkipReason int

//go:generate go tool enumer -type=SkipReason -output=gen_skipreason_enumer.go reshard.go

const (
	// NotSkipped means the plan may hold edits.
	NotSkipped SkipReason = iota

	// NoShardingRule means the operation has no sharding rule.
	NoShardingRule

	// NoCommonMesh means none of the operands and results is sharded, or their shardings use different meshes.
	NoCommonMesh

	// OverflowAxes means some factor sharding has overflow axes, which is not handled.
	OverflowAxes

	// AlreadyCompatible means all factors are sharded the same way in all operands and results.
	AlreadyCompatible
)

// EditKind enumerates the kinds of Edit.
type EditKind int

//go:generate go tool enumer -type=EditKind -output=gen_editkind_enumer.go reshard.go

const (
	// ReshardOperand inserts a reshard of the operand to Target right before the operation, and makes the
	// operation use it.
	ReshardOperand EditKind = iota

	// ReshardResult sets the sharding of the result to Target, and inserts a reshard back to Original right after
	// the operation, used by all the former users of the result.
	ReshardResult

	// ReshardReturnOperand inserts a reshard of the returned value to Target right before the return.
	ReshardReturnOperand
)

// Edit is a change to apply to an operation to make it compatible.
type Edit struct {
	Kind EditKind

	// Index of the operand or result.
	Index int

	// Target is the sharding the operation uses for the operand or result after the edit.
	Target *distributed.ShardingSpec

	// Original is the sharding of the operand or result before the edit.
	Original *distributed.ShardingSpec
}

// String implements fmt.Stringer.
func (e Edit) String() string {
	return fmt.Sprintf("%s #%d: %s -> %s", e.Kind, e.Index, e.Original, e.Target)
}

// Plan is the outcome of Reconcile for one operation.
type Plan struct {
	// Skip is NotSkipped if the operation was reconciled, otherwise it tells why it was left unchanged.
	Skip SkipReason

	// MeshName is the mesh common to all shardings of the operation, if one was found.
	MeshName string

	// FactorAxes holds the axes chosen for each factor. Only set if the operation was reconciled.
	FactorAxes [][]distributed.AxisRef

	// Edits to apply, operand edits first, each group in increasing index order.
	Edits []Edit
}

// Reconciler reconciles the shardings of operations. It is stateless across operations, and the zero value
// is not usable: create it with New.
type Reconciler struct {
	meshes *distributed.MeshTable
	less   CandidateLess
}

// New creates a Reconciler that resolves mesh names with meshes.
func New(meshes *distributed.MeshTable) *Reconciler {
	return &Reconciler{meshes: meshes, less: DefaultCandidateLess}
}

// WithCandidateLess sets the order used to pick the best candidate at each round.
// The default is DefaultCandidateLess. It returns the Reconciler, so calls can be chained.
func (r *Reconciler) WithCandidateLess(less CandidateLess) *Reconciler {
	r.less = less
	return r
}

// Reconcile returns the plan to make the factor shardings of op compatible: each factor sharded the same way
// across all its operands and results.
//
// Operations are skipped (left unchanged) if they don't have a sharding rule, if there is no single mesh used by
// their shardings, if some factor sharding has overflow axes, or if they are already compatible.
//
// It returns an error if the shardings don't agree with the sharding rule or the mesh (wrong rank, unknown axes).
// It panics (with exceptions.Panicf) if the common mesh name is not in the mesh table.
func (r *Reconciler) Reconcile(op OpView) (*Plan, error) {
	rule := op.ShardingRule()
	if rule == nil {
		return &Plan{Skip: NoShardingRule}, nil
	}
	operands, results := op.OperandShardings(), op.ResultShardings()
	meshName, found := distributed.CommonMeshName(operands, results)
	if !found {
		klog.V(2).Infof("reshard: skipping op with rule %s: no common mesh", rule)
		return &Plan{Skip: NoCommonMesh}, nil
	}
	mesh := r.meshes.Lookup(meshName)
	if mesh == nil {
		exceptions.Panicf("reshard: unknown mesh @%s", meshName)
	}
	projection, err := shardingrule.BuildProjection(operands, results, rule, mesh)
	if err != nil {
		return nil, errors.WithMessagef(err, "reshard: operation with sharding rule %s", rule)
	}
	if projection.HasOverflowAxes() {
		klog.V(2).Infof("reshard: skipping op with rule %s: factor shardings with overflow axes", rule)
		return &Plan{Skip: OverflowAxes, MeshName: meshName}, nil
	}
	if hasCompatibleFactorShardings(projection) {
		return &Plan{Skip: AlreadyCompatible, MeshName: meshName}, nil
	}

	plan := &Plan{MeshName: meshName, FactorAxes: make([][]distributed.AxisRef, rule.NumFactors())}
	update := shardingrule.NewUpdateTensorShardings(rule.NumOperands(), rule.NumResults())
	for factor, axes := range findCommonAxes(projection, rule.NumFactors(), mesh, r.less) {
		plan.FactorAxes[factor] = axes.ToSlice()
		update.Or(projection.UpdateSharding(factor, plan.FactorAxes[factor], nil))
	}
	for _, operandIdx := range update.OperandIndices() {
		plan.Edits = append(plan.Edits, Edit{
			Kind:     ReshardOperand,
			Index:    operandIdx,
			Target:   projection.Operand(operandIdx).TensorSharding(rule.OperandMapping(operandIdx), meshName, mesh),
			Original: operands[operandIdx],
		})
	}
	for _, resultIdx := range update.ResultIndices() {
		mapping := rule.ResultMapping(resultIdx)
		original := results[resultIdx]
		if original == nil {
			original = distributed.NewOpenShardingSpec(meshName, len(mapping))
		}
		plan.Edits = append(plan.Edits, Edit{
			Kind:     ReshardResult,
			Index:    resultIdx,
			Target:   projection.Result(resultIdx).TensorSharding(mapping, meshName, mesh),
			Original: original,
		})
	}
	if klog.V(2).Enabled() {
		klog.Infof("reshard: op with rule %s on mesh @%s: factor axes %v, %d edits",
			rule, meshName, plan.FactorAxes, len(plan.Edits))
	}
	return plan, nil
}

// hasCompatibleFactorShardings returns whether each factor is sharded by the same axes in all operands and
// results where it appears. It ignores overflow axes.
func hasCompatibleFactorShardings(projection *shardingrule.ShardingProjection) bool {
	commonAxes := make(map[int][]distributed.AxisRef)
	for _, tensor := range projection.All() {
		for _, factor := range tensor.Factors() {
			axes := tensor.FactorIndexToSharding[factor].AxisRefs
			common, found := commonAxes[factor]
			if !found {
				commonAxes[factor] = axes
				continue
			}
			if !slices.Equal(axes, common) {
				return false
			}
		}
	}
	return true
}

// ReconcileReturn returns the edits needed for the values returned by a function to match the function's declared
// result shardings.
//
// A position is left unchanged if both the returned value and the declared result are fully replicated, or if
// their shardings are equal. Otherwise, the returned value is resharded to the declared sharding, or to a fully
// closed and replicated sharding (see ShardingSpec.FullyClosedLike) if the function result has no declared sharding.
func ReconcileReturn(declared, returned []*distributed.ShardingSpec) []Edit {
	var edits []Edit
	for i, operandSharding := range returned {
		var resultSharding *distributed.ShardingSpec
		if i < len(declared) {
			resultSharding = declared[i]
		}
		if operandSharding.IsReplicated() && resultSharding.IsReplicated() {
			continue
		}
		if resultSharding.Equal(operandSharding) {
			continue
		}
		target := resultSharding
		if target == nil {
			target = operandSharding.FullyClosedLike()
		}
		edits = append(edits, Edit{Kind: ReshardReturnOperand, Index: i, Target: target, Original: operandSharding})
	}
	return edits
}
