// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shardingrule

import (
	"maps"
	"slices"

	"github.com/gomlx/reshard/pkg/core/distributed"
	"github.com/pkg/errors"
)

// FactorSharding is the sharding of one factor in one tensor.
type FactorSharding struct {
	// AxisRefs are the mesh axes (major to minor) sharding the factor.
	AxisRefs []distributed.AxisRef

	// OverflowAxes are the axes of the tensor dimension that could not be absorbed by the factor, because its
	// extent was exhausted. Only the minor-most factor of a dimension can have overflow axes.
	OverflowAxes []distributed.AxisRef

	// IsClosed is false if the tensor dimension was open to further sharding.
	IsClosed bool
}

// TensorFactorShardings maps factor indices to their sharding, for one operand or result.
type TensorFactorShardings struct {
	FactorIndexToSharding map[int]FactorSharding
}

// Factors returns the factor indices present in the tensor, in increasing order.
func (t TensorFactorShardings) Factors() []int {
	return slices.Sorted(maps.Keys(t.FactorIndexToSharding))
}

// Each calls fn for each factor of the tensor, in increasing factor order.
func (t TensorFactorShardings) Each(fn func(factor int, sharding FactorSharding)) {
	for _, factor := range t.Factors() {
		fn(factor, t.FactorIndexToSharding[factor])
	}
}

// updateShardingAxes replaces the axes of the factor, if present in the tensor. It returns whether it changed.
func (t TensorFactorShardings) updateShardingAxes(factor int, axes, overflowAxes []distributed.AxisRef) bool {
	sharding, found := t.FactorIndexToSharding[factor]
	if !found {
		return false
	}
	if slices.Equal(sharding.AxisRefs, axes) && slices.Equal(sharding.OverflowAxes, overflowAxes) {
		return false
	}
	sharding.AxisRefs = slices.Clone(axes)
	sharding.OverflowAxes = slices.Clone(overflowAxes)
	t.FactorIndexToSharding[factor] = sharding
	return true
}

// TensorSharding reconstructs the ShardingSpec of the tensor from its factor shardings.
//
// Each dimension is sharded by the concatenation of the axes of its factors (major to minor), with adjacent
// sub-axes merged. A dimension is open only if all its factors are open.
func (t TensorFactorShardings) TensorSharding(mapping TensorMapping, meshName string,
	mesh *distributed.DeviceMesh) *distributed.ShardingSpec {
	spec := distributed.NewReplicatedShardingSpec(meshName, len(mapping))
	for dim, factors := range mapping {
		var axes []distributed.AxisRef
		isClosed := len(factors) == 0
		for _, factor := range factors {
			sharding := t.FactorIndexToSharding[factor]
			axes = append(axes, sharding.AxisRefs...)
			axes = append(axes, sharding.OverflowAxes...)
			isClosed = isClosed || sharding.IsClosed
		}
		spec.Axes[dim] = distributed.AxisSpec{
			MeshAxes: distributed.MergeAdjacent(mesh, axes),
			Opened:   !isClosed,
		}
	}
	return spec
}

// buildTensorFactorShardings projects one tensor sharding onto its factors.
//
// For each dimension, the axes are assigned to its factors from major to minor: a factor absorbs axes while their
// size divides what is left of its extent. An axis that only partially divides it is split into a prefix sub-axis
// (absorbed) and a suffix that moves on to the next factor. Whatever the minor-most factor can't absorb becomes
// its overflow axes.
func buildTensorFactorShardings(spec *distributed.ShardingSpec, mapping TensorMapping, factorSizes []int,
	mesh *distributed.DeviceMesh) (TensorFactorShardings, error) {
	t := TensorFactorShardings{FactorIndexToSharding: make(map[int]FactorSharding)}
	if spec == nil {
		spec = distributed.NewOpenShardingSpec(mesh.Name(), len(mapping))
	}
	if spec.Rank() != len(mapping) {
		return t, errors.Errorf("sharding %s has rank %d, but the sharding rule maps %d dimensions",
			spec, spec.Rank(), len(mapping))
	}
	if err := spec.Validate(mesh); err != nil {
		return t, err
	}
	for dim, factors := range mapping {
		axisSpec := spec.Axes[dim]
		pending := slices.Clone(axisSpec.MeshAxes)
		if len(factors) == 0 {
			if len(pending) > 0 {
				return t, errors.Errorf("dimension %d is sharded as %s but has no factors in the sharding rule",
					dim, distributed.AxesString(pending))
			}
			continue
		}
		for j, factor := range factors {
			sharding := FactorSharding{IsClosed: !axisSpec.Opened}
			remaining := factorSizes[factor]
			for len(pending) > 0 && remaining > 1 {
				axis := pending[0]
				size := axis.Size(mesh)
				if remaining%size == 0 {
					sharding.AxisRefs = append(sharding.AxisRefs, axis)
					remaining /= size
					pending = pending[1:]
					continue
				}
				gcd := distributed.GCD(remaining, size)
				if gcd > 1 {
					prefix, suffix, err := axis.SplitPrefix(mesh, gcd)
					if err != nil {
						return t, err
					}
					sharding.AxisRefs = append(sharding.AxisRefs, prefix)
					pending[0] = suffix
				}
				break
			}
			if j == len(factors)-1 && len(pending) > 0 {
				sharding.OverflowAxes = pending
				pending = nil
			}
			t.FactorIndexToSharding[factor] = sharding
		}
	}
	return t, nil
}

// ShardingProjection holds the factor shardings of all operands and results of an operation.
type ShardingProjection struct {
	operands, results []TensorFactorShardings
}

// BuildProjection projects the operands and results shardings onto the factors of the rule.
//
// A nil sharding is taken as fully open and replicated. All shardings must use the given mesh.
func BuildProjection(operands, results []*distributed.ShardingSpec, rule *OpShardingRule,
	mesh *distributed.DeviceMesh) (*ShardingProjection, error) {
	if err := rule.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "invalid sharding rule %s", rule)
	}
	if len(operands) != rule.NumOperands() || len(results) != rule.NumResults() {
		return nil, errors.Errorf("operation has %d operands and %d results, but its sharding rule %s has %d and %d",
			len(operands), len(results), rule, rule.NumOperands(), rule.NumResults())
	}
	p := &ShardingProjection{
		operands: make([]TensorFactorShardings, len(operands)),
		results:  make([]TensorFactorShardings, len(results)),
	}
	var err error
	for i, spec := range operands {
		p.operands[i], err = buildTensorFactorShardings(spec, rule.OperandMapping(i), rule.FactorSizes, mesh)
		if err != nil {
			return nil, errors.WithMessagef(err, "projecting operand #%d", i)
		}
	}
	for i, spec := range results {
		p.results[i], err = buildTensorFactorShardings(spec, rule.ResultMapping(i), rule.FactorSizes, mesh)
		if err != nil {
			return nil, errors.WithMessagef(err, "projecting result #%d", i)
		}
	}
	return p, nil
}

// NumOperands in the projection.
func (p *ShardingProjection) NumOperands() int { return len(p.operands) }

// NumResults in the projection.
func (p *ShardingProjection) NumResults() int { return len(p.results) }

// Operand returns the factor shardings of the i-th operand.
func (p *ShardingProjection) Operand(i int) TensorFactorShardings { return p.operands[i] }

// Result returns the factor shardings of the i-th result.
func (p *ShardingProjection) Result(i int) TensorFactorShardings { return p.results[i] }

// All returns the factor shardings of all operands followed by all results.
func (p *ShardingProjection) All() []TensorFactorShardings {
	all := make([]TensorFactorShardings, 0, len(p.operands)+len(p.results))
	all = append(all, p.operands...)
	return append(all, p.results...)
}

// HasOverflowAxes returns true iff any factor sharding has non-empty overflow axes.
func (p *ShardingProjection) HasOverflowAxes() bool {
	for _, tensor := range p.All() {
		for _, sharding := range tensor.FactorIndexToSharding {
			if len(sharding.OverflowAxes) > 0 {
				return true
			}
		}
	}
	return false
}

// UpdateSharding sets the axes of the factor in every tensor where it appears, and returns which operands and
// results changed.
func (p *ShardingProjection) UpdateSharding(factor int, axes, overflowAxes []distributed.AxisRef) UpdateTensorShardings {
	update := NewUpdateTensorShardings(len(p.operands), len(p.results))
	for i, tensor := range p.operands {
		update.Operands[i] = tensor.updateShardingAxes(factor, axes, overflowAxes)
	}
	for i, tensor := range p.results {
		update.Results[i] = tensor.updateShardingAxes(factor, axes, overflowAxes)
	}
	return update
}

// UpdateTensorShardings marks which operands and results had their sharding changed.
type UpdateTensorShardings struct {
	Operands, Results []bool
}

// NewUpdateTensorShardings returns an UpdateTensorShardings with nothing marked.
func NewUpdateTensorShardings(numOperands, numResults int) UpdateTensorShardings {
	return UpdateTensorShardings{Operands: make([]bool, numOperands), Results: make([]bool, numResults)}
}

// Or marks in u everything marked in other. Both must have the same number of operands and results.
func (u UpdateTensorShardings) Or(other UpdateTensorShardings) {
	for i, updated := range other.Operands {
		u.Operands[i] = u.Operands[i] || updated
	}
	for i, updated := range other.Results {
		u.Results[i] = u.Results[i] || updated
	}
}

// Any returns whether any operand or result is marked.
func (u UpdateTensorShardings) Any() bool {
	return slices.Contains(u.Operands, true) || slices.Contains(u.Results, true)
}

// OperandIndices returns the marked operands indices, in increasing order.
func (u UpdateTensorShardings) OperandIndices() []int {
	return setIndices(u.Operands)
}

// ResultIndices returns the marked results indices, in increasing order.
func (u UpdateTensorShardings) ResultIndices() []int {
	return setIndices(u.Results)
}

func setIndices(marks []bool) []int {
	var indices []int
	for i, marked := range marks {
		if marked {
			indices = append(indices, i)
		}
	}
	return indices
}
