// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shardingrule defines the sharding rule of an operation -- how the dimensions of its operands and results
// map to shared "factors" -- and the ShardingProjection of tensor shardings onto those factors.
//
// Example: the rule of a matrix multiplication `C = A @ B` is ([i, k], [k, j])->([i, j]) {i=8, j=16, k=32}:
// the contracting dimension k appears in both operands, and i and j each in one operand and in the result.
package shardingrule

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// DimMapping lists the factors (indices) that make up one tensor dimension, from major to minor.
// Usually a dimension maps to exactly one factor, but reshapes can merge or split dimensions.
type DimMapping []int

// TensorMapping holds the DimMapping of each dimension of a tensor.
type TensorMapping []DimMapping

// OpShardingRule maps the operands and results dimensions of an operation to factors.
type OpShardingRule struct {
	// FactorSizes holds the extent of each factor.
	FactorSizes []int

	// FactorNames is optional and only used for printing. By default, factors are named i, j, k, ...
	FactorNames []string

	OperandMappings []TensorMapping
	ResultMappings  []TensorMapping
}

// NumFactors returns the number of factors in the rule.
func (r *OpShardingRule) NumFactors() int {
	return len(r.FactorSizes)
}

// NumOperands returns the number of operands described by the rule.
func (r *OpShardingRule) NumOperands() int {
	return len(r.OperandMappings)
}

// NumResults returns the number of results described by the rule.
func (r *OpShardingRule) NumResults() int {
	return len(r.ResultMappings)
}

// OperandMapping returns the mapping of the i-th operand.
func (r *OpShardingRule) OperandMapping(i int) TensorMapping {
	return r.OperandMappings[i]
}

// ResultMapping returns the mapping of the i-th result.
func (r *OpShardingRule) ResultMapping(i int) TensorMapping {
	return r.ResultMappings[i]
}

// FactorName returns the name used to print the factor.
func (r *OpShardingRule) FactorName(factor int) string {
	if factor >= 0 && factor < len(r.FactorNames) && r.FactorNames[factor] != "" {
		return r.FactorNames[factor]
	}
	if factor < 'z'-'i'+1 {
		return string(rune('i' + factor))
	}
	return fmt.Sprintf("z_%d", factor-('z'-'i'))
}

// Validate checks that factor sizes are positive, that all factor indices are valid, and that no factor
// appears more than once in the same tensor.
func (r *OpShardingRule) Validate() error {
	for factor, size := range r.FactorSizes {
		if size <= 0 {
			return errors.Errorf("factor %s has non-positive size %d", r.FactorName(factor), size)
		}
	}
	check := func(kind string, idx int, mapping TensorMapping) error {
		seen := make(map[int]bool)
		for dim, factors := range mapping {
			for _, factor := range factors {
				if factor < 0 || factor >= r.NumFactors() {
					return errors.Errorf("%s #%d dimension %d refers to invalid factor index %d (only %d factors)",
						kind, idx, dim, factor, r.NumFactors())
				}
				if seen[factor] {
					return errors.Errorf("%s #%d uses factor %s more than once", kind, idx, r.FactorName(factor))
				}
				seen[factor] = true
			}
		}
		return nil
	}
	for i, mapping := range r.OperandMappings {
		if err := check("operand", i, mapping); err != nil {
			return err
		}
	}
	for i, mapping := range r.ResultMappings {
		if err := check("result", i, mapping); err != nil {
			return err
		}
	}
	return nil
}

// String returns the rule in Shardy's notation, e.g.: ([i, k], [k, j])->([i, j]) {i=8, j=16, k=32}
func (r *OpShardingRule) String() string {
	if r == nil {
		return "<nil>"
	}
	tensors := func(mappings []TensorMapping) string {
		parts := make([]string, len(mappings))
		for i, mapping := range mappings {
			dims := make([]string, len(mapping))
			for d, factors := range mapping {
				var sb strings.Builder
				for _, factor := range factors {
					sb.WriteString(r.FactorName(factor))
				}
				dims[d] = sb.String()
			}
			parts[i] = "[" + strings.Join(dims, ", ") + "]"
		}
		return strings.Join(parts, ", ")
	}
	sizes := make([]string, len(r.FactorSizes))
	for factor, size := range r.FactorSizes {
		sizes[factor] = fmt.Sprintf("%s=%d", r.FactorName(factor), size)
	}
	return fmt.Sprintf("(%s)->(%s) {%s}", tensors(r.OperandMappings), tensors(r.ResultMappings),
		strings.Join(sizes, ", "))
}

// Builder builds an OpShardingRule using factor names.
type Builder struct {
	rule         *OpShardingRule
	nameToFactor map[string]int
	err          error
}

// Build returns a Builder of OpShardingRule.
//
// Example:
//
//	rule, err := shardingrule.Build().
//		Factor("i", 8).Factor("j", 16).Factor("k", 32).
//		Operand("i", "k").Operand("k", "j").
//		Result("i", "j").
//		Done()
//
// A dimension made of more than one factor is given as a comma-separated list of names, major to minor: "i,j".
// An empty string is a dimension without factors.
func Build() *Builder {
	return &Builder{rule: &OpShardingRule{}, nameToFactor: make(map[string]int)}
}

// Factor defines a new factor with the given name and size.
func (b *Builder) Factor(name string, size int) *Builder {
	if b.err != nil {
		return b
	}
	if _, found := b.nameToFactor[name]; found {
		b.err = errors.Errorf("factor %q defined more than once", name)
		return b
	}
	b.nameToFactor[name] = len(b.rule.FactorSizes)
	b.rule.FactorSizes = append(b.rule.FactorSizes, size)
	b.rule.FactorNames = append(b.rule.FactorNames, name)
	return b
}

func (b *Builder) tensorMapping(dims []string) TensorMapping {
	mapping := make(TensorMapping, len(dims))
	for d, dim := range dims {
		if strings.TrimSpace(dim) == "" {
			continue
		}
		for _, name := range strings.Split(dim, ",") {
			name = strings.TrimSpace(name)
			factor, found := b.nameToFactor[name]
			if !found {
				b.err = errors.Errorf("unknown factor %q used in dimension %d", name, d)
				return nil
			}
			mapping[d] = append(mapping[d], factor)
		}
	}
	return mapping
}

// Operand adds the mapping of the next operand, one string per dimension.
func (b *Builder) Operand(dims ...string) *Builder {
	if b.err != nil {
		return b
	}
	b.rule.OperandMappings = append(b.rule.OperandMappings, b.tensorMapping(dims))
	return b
}

// Result adds the mapping of the next result, one string per dimension.
func (b *Builder) Result(dims ...string) *Builder {
	if b.err != nil {
		return b
	}
	b.rule.ResultMappings = append(b.rule.ResultMappings, b.tensorMapping(dims))
	return b
}

// Done returns the validated rule, or the first error found.
func (b *Builder) Done() (*OpShardingRule, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := b.rule.Validate(); err != nil {
		return nil, err
	}
	return b.rule, nil
}
