// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package reshard

import (
	"testing"

	"github.com/gomlx/reshard/pkg/core/distributed"
	"github.com/gomlx/reshard/pkg/core/shardingrule"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shardings builds one ShardingSpec per list of dimensions, each dimension given by its mesh axes names.
func shardings(dimsPerTensor ...[][]string) []*distributed.ShardingSpec {
	specs := make([]*distributed.ShardingSpec, len(dimsPerTensor))
	for i, dims := range dimsPerTensor {
		specs[i] = distributed.NewShardingSpec("mesh")
		for _, dim := range dims {
			specs[i].Axes = append(specs[i].Axes, distributed.AxisSpec{MeshAxes: distributed.Axes(dim...)})
		}
	}
	return specs
}

func dims(axesPerDim ...[]string) [][]string {
	return axesPerDim
}

func names(axesNames ...string) []string {
	return axesNames
}

func mustProjection(t *testing.T, operands, results []*distributed.ShardingSpec, rule *shardingrule.OpShardingRule,
	mesh *distributed.DeviceMesh) *shardingrule.ShardingProjection {
	projection, err := shardingrule.BuildProjection(operands, results, rule, mesh)
	require.NoError(t, err)
	return projection
}

// elementwiseRule of an operation with numOperands operands and one result, all of shape [size].
func elementwiseRule(numOperands, size int) *shardingrule.OpShardingRule {
	b := shardingrule.Build().Factor("i", size)
	for range numOperands {
		b.Operand("i")
	}
	return must.M1(b.Result("i").Done())
}

func TestFindFactorAxesCandidates(t *testing.T) {
	mesh := must.M1(distributed.NewDeviceMesh("mesh", []int{2, 2, 2}, []string{"x", "y", "z"}))

	// Factor i sharded [x, y] twice and [x, z] once.
	projection := mustProjection(t,
		shardings(dims(names("x", "y")), dims(names("x", "y"))),
		shardings(dims(names("x", "z"))),
		elementwiseRule(2, 64), mesh)
	candidates := findFactorAxesCandidates(projection, 1, mesh)
	require.Len(t, candidates, 3)

	type summary struct {
		axes        string
		count, size int
	}
	var got []summary
	for _, c := range candidates {
		assert.Equal(t, 0, c.Factor)
		got = append(got, summary{c.Axes.String(), c.Count, c.ShardingSize})
	}
	assert.Equal(t, []summary{
		{`{"x", "y"}`, 2, 4},
		{`{"x"}`, 3, 2},
		{`{"x", "z"}`, 1, 4},
	}, got)
}

func TestFindCommonAxes(t *testing.T) {
	t.Run("PrefixWinsThenExtends", func(t *testing.T) {
		mesh := must.M1(distributed.NewDeviceMesh("mesh", []int{2, 2, 2}, []string{"x", "y", "z"}))
		projection := mustProjection(t,
			shardings(dims(names("x", "y")), dims(names("x", "y"))),
			shardings(dims(names("x", "z"))),
			elementwiseRule(2, 64), mesh)
		// [x] wins first with 3 votes, then [x, y] extends it with 2 votes over [x, z] with 1.
		factorAxes := findCommonAxes(projection, 1, mesh, DefaultCandidateLess)
		require.Len(t, factorAxes, 1)
		assert.Equal(t, []distributed.AxisRef{axisX, axisY}, factorAxes[0].ToSlice())
	})

	t.Run("LargerShardingSizeWins", func(t *testing.T) {
		mesh := must.M1(distributed.NewDeviceMesh("mesh", []int{2, 4}, []string{"x", "y"}))
		projection := mustProjection(t,
			shardings(dims(names("x")), dims(names("y"))),
			[]*distributed.ShardingSpec{nil},
			elementwiseRule(2, 16), mesh)
		factorAxes := findCommonAxes(projection, 1, mesh, DefaultCandidateLess)
		assert.Equal(t, []distributed.AxisRef{axisY}, factorAxes[0].ToSlice())
	})

	t.Run("MarginalShardingSize", func(t *testing.T) {
		// After [y] is assigned to i, the extension [y, x] of i only adds size 4, which ties with j's [x], and j
		// wins the tie. Scored by its total size 8, [y, x] would have won instead.
		mesh := must.M1(distributed.NewDeviceMesh("mesh", []int{4, 2}, []string{"x", "y"}))
		rule := must.M1(shardingrule.Build().
			Factor("i", 64).Factor("j", 64).
			Operand("i", "j").Operand("i", "j").Operand("i", "j").
			Result("i", "j").
			Done())
		projection := mustProjection(t,
			shardings(dims(names("y", "x"), nil), dims(names("y"), nil), dims(names("y"), names("x"))),
			shardings(dims(nil, nil)),
			rule, mesh)
		factorAxes := findCommonAxes(projection, 2, mesh, DefaultCandidateLess)
		assert.Equal(t, []distributed.AxisRef{axisY}, factorAxes[0].ToSlice())
		assert.Equal(t, []distributed.AxisRef{axisX}, factorAxes[1].ToSlice())
	})

	t.Run("OverlappingAxesAreExclusive", func(t *testing.T) {
		// Both factors want "x": only one gets it, the other one is replicated.
		mesh := must.M1(distributed.NewDeviceMesh("mesh", []int{4}, []string{"x"}))
		rule := must.M1(shardingrule.Build().
			Factor("i", 8).Factor("j", 8).
			Operand("i", "j").Operand("i", "j").Operand("i", "j").
			Result("i", "j").
			Done())
		projection := mustProjection(t,
			shardings(dims(names("x"), nil), dims(names("x"), nil), dims(nil, names("x"))),
			shardings(dims(nil, names("x"))),
			rule, mesh)
		factorAxes := findCommonAxes(projection, 2, mesh, DefaultCandidateLess)
		// Tie of 2 votes each: the larger factor index wins.
		assert.True(t, factorAxes[0].Empty())
		assert.Equal(t, []distributed.AxisRef{axisX}, factorAxes[1].ToSlice())

		// Reversing the tie break.
		smallerFactorFirst := func(a, b FactorAxesCandidate) bool {
			if a.Count != b.Count {
				return a.Count < b.Count
			}
			if a.ShardingSize != b.ShardingSize {
				return a.ShardingSize < b.ShardingSize
			}
			return a.FactorAxesPair.Compare(b.FactorAxesPair) > 0
		}
		factorAxes = findCommonAxes(projection, 2, mesh, smallerFactorFirst)
		assert.Equal(t, []distributed.AxisRef{axisX}, factorAxes[0].ToSlice())
		assert.True(t, factorAxes[1].Empty())
	})

	t.Run("SubAxesAreNotOverlapping", func(t *testing.T) {
		// i is sharded by the major half of "x" and j by the minor half: both can keep theirs.
		mesh := must.M1(distributed.NewDeviceMesh("mesh", []int{4}, []string{"x"}))
		xMajor, xMinor := distributed.SubAxis("x", 1, 2), distributed.SubAxis("x", 2, 2)
		rule := must.M1(shardingrule.Build().
			Factor("i", 8).Factor("j", 8).
			Operand("i", "j").
			Result("i", "j").
			Done())
		operand := must.M1(distributed.BuildSpec("mesh").A(xMajor).A(xMinor).Done())
		projection := mustProjection(t, []*distributed.ShardingSpec{operand}, []*distributed.ShardingSpec{nil},
			rule, mesh)
		factorAxes := findCommonAxes(projection, 2, mesh, DefaultCandidateLess)
		assert.Equal(t, []distributed.AxisRef{xMajor}, factorAxes[0].ToSlice())
		assert.Equal(t, []distributed.AxisRef{xMinor}, factorAxes[1].ToSlice())
	})
}

// TestFindCommonAxesProperties checks, on a few operations with conflicting shardings, that no two factors get
// overlapping axes, that every factor gets axes that some tensor used (or a prefix of them), and that the results
// are deterministic.
func TestFindCommonAxesProperties(t *testing.T) {
	mesh := must.M1(distributed.NewDeviceMesh("mesh", []int{2, 4, 2}, []string{"x", "y", "z"}))
	rule := must.M1(shardingrule.Build().
		Factor("b", 16).Factor("i", 32).Factor("k", 64).
		Operand("b", "i", "k").Operand("b", "k").
		Result("b", "i").
		Done())
	tests := []struct {
		name              string
		operands, results []*distributed.ShardingSpec
	}{
		{"conflicting",
			shardings(dims(names("x"), names("y"), names("z")), dims(names("y"), names("x", "z"))),
			shardings(dims(names("z"), names("x", "y")))},
		{"all on one axis",
			shardings(dims(names("y"), nil, nil), dims(nil, names("y"))),
			shardings(dims(nil, names("y")))},
		{"nested prefixes",
			shardings(dims(names("x", "y", "z"), nil, nil), dims(names("x", "y"), nil)),
			shardings(dims(names("x"), names("z")))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			projection := mustProjection(t, tt.operands, tt.results, rule, mesh)
			factorAxes := findCommonAxes(projection, rule.NumFactors(), mesh, DefaultCandidateLess)

			for f1 := range factorAxes {
				for f2 := f1 + 1; f2 < len(factorAxes); f2++ {
					assert.Falsef(t, factorAxes[f1].Overlaps(factorAxes[f2]), "factors %d and %d overlap: %s, %s",
						f1, f2, factorAxes[f1], factorAxes[f2])
				}
			}

			for factor, chosen := range factorAxes {
				if chosen.Empty() {
					continue
				}
				found := false
				for _, tensor := range projection.All() {
					sharding, ok := tensor.FactorIndexToSharding[factor]
					if !ok {
						continue
					}
					used := NewAxesWithTail(sharding.AxisRefs)
					if chosen.Equal(used) || chosen.StrictPrefixOf(used) {
						found = true
						break
					}
				}
				assert.Truef(t, found, "factor %d got axes %s not used by any tensor", factor, chosen)
			}

			again := findCommonAxes(mustProjection(t, tt.operands, tt.results, rule, mesh), rule.NumFactors(), mesh,
				DefaultCandidateLess)
			for factor := range factorAxes {
				assert.True(t, factorAxes[factor].Equal(again[factor]))
			}
		})
	}
}
