// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package reshard

import (
	"github.com/gomlx/reshard/pkg/core/distributed"
	"github.com/gomlx/reshard/pkg/core/shardingrule"
	"github.com/gomlx/reshard/pkg/support/orderedset"
)

// findFactorAxesCandidates returns all (factor, axes) candidates with their counts.
//
// For each factor, every prefix of every axes sharding the factor in some tensor is a candidate. An occurrence of
// the factor sharded by axes A counts towards A and towards every strict prefix of A that is itself a candidate,
// so if a factor is sharded [x, y] in two tensors and [x, z] in a third, [x] gets a count of 3.
//
// Candidates are returned in the order they are first found: operands then results, factors in increasing order.
func findFactorAxesCandidates(projection *shardingrule.ShardingProjection, numFactors int,
	mesh *distributed.DeviceMesh) []FactorAxesCandidate {
	tensors := projection.All()

	// Find the sets of candidate axes per factor.
	axesSets := make([]*orderedset.Set[string, AxesWithTail], numFactors)
	for factor := range axesSets {
		axesSets[factor] = orderedset.Make(AxesWithTail.Key)
	}
	for _, tensor := range tensors {
		tensor.Each(func(factor int, sharding shardingrule.FactorSharding) {
			axes := sharding.AxisRefs
			for len(axes) > 0 {
				axesSets[factor].Insert(NewAxesWithTail(axes))
				axes = axes[:len(axes)-1]
			}
		})
	}

	// Count factor-axes pairs.
	candidates := orderedset.Make(func(c FactorAxesCandidate) factorAxesKey { return c.key() })
	increment := func(pair FactorAxesPair) {
		candidate := FactorAxesCandidate{FactorAxesPair: pair, Count: 1, ShardingSize: pair.Axes.ShardingSize(mesh)}
		if stored, inserted := candidates.Insert(candidate); !inserted {
			stored.Count++
		}
	}
	for _, tensor := range tensors {
		tensor.Each(func(factor int, sharding shardingrule.FactorSharding) {
			if len(sharding.AxisRefs) == 0 {
				return
			}
			pair := FactorAxesPair{Factor: factor, Axes: NewAxesWithTail(sharding.AxisRefs)}
			increment(pair)
			for axes := range axesSets[factor].All() {
				if axes.StrictPrefixOf(pair.Axes) {
					increment(FactorAxesPair{Factor: factor, Axes: axes})
				}
			}
		})
	}
	return candidates.Slice()
}
