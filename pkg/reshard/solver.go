// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package reshard

import (
	"github.com/gomlx/reshard/pkg/core/distributed"
	"github.com/gomlx/reshard/pkg/core/shardingrule"
	"k8s.io/klog/v2"
)

// findCommonAxes picks the axes of each factor using a majority vote heuristic.
//
// At each round it takes the largest candidate from a list initialized with all (factor, axes) candidates, assigns
// the axes to the factor, and drops from the list every candidate of the same factor that doesn't extend the
// picked axes, and every candidate of other factors whose axes overlap with the picked ones. It continues until the
// list is empty.
//
// Factors with no axes assigned are replicated.
func findCommonAxes(projection *shardingrule.ShardingProjection, numFactors int, mesh *distributed.DeviceMesh,
	less CandidateLess) []AxesWithTail {
	factorAxes := make([]AxesWithTail, numFactors)
	candidates := findFactorAxesCandidates(projection, numFactors, mesh)

	// The first round only finds the initial best.
	var best FactorAxesPair
	hasBest := false
	for len(candidates) > 0 {
		if hasBest {
			factorAxes[best.Factor] = best.Axes
			if klog.V(3).Enabled() {
				klog.Infof("reshard: factor #%d assigned axes %s", best.Factor, best.Axes)
			}
		}
		var next FactorAxesCandidate
		hasNext := false
		kept := candidates[:0]
		for _, candidate := range candidates {
			if hasBest {
				if candidate.Factor == best.Factor {
					// Only candidates that extend the axes just assigned remain useful for this factor. This also
					// drops the best candidate itself.
					if !best.Axes.StrictPrefixOf(candidate.Axes) {
						continue
					}
					// Score only the part that extends the current assignment.
					candidate.ShardingSize = candidate.Axes.ShardingSizeExcluding(mesh, best.Axes)
				} else if candidate.Overlaps(best) {
					// A mesh axis can't shard two different factors of the same operation.
					continue
				}
			}
			kept = append(kept, candidate)
			if !hasNext || less(next, candidate) {
				next = candidate
				hasNext = true
			}
		}
		candidates = kept
		best, hasBest = next.FactorAxesPair, hasNext
	}
	return factorAxes
}
