// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package reshard

import (
	"cmp"
	"slices"
	"strings"

	"github.com/gomlx/reshard/pkg/core/distributed"
)

// AxesWithTail holds the axes assigned to one factor occurrence, split into all-but-the-last axes (head) and the
// last one (tail), so prefixes can be compared and built cheaply.
//
// The zero value is the empty AxesWithTail: no axes, that is, fully replicated.
type AxesWithTail struct {
	head []distributed.AxisRef
	tail distributed.AxisRef
}

// NewAxesWithTail creates an AxesWithTail with the given axes. It shares the underlying array with axes.
func NewAxesWithTail(axes []distributed.AxisRef) AxesWithTail {
	if len(axes) == 0 {
		return AxesWithTail{}
	}
	return AxesWithTail{head: axes[:len(axes)-1], tail: axes[len(axes)-1]}
}

// Empty returns whether there are no axes.
func (a AxesWithTail) Empty() bool {
	// If tail is empty, head is empty as well.
	return a.tail.Name == ""
}

// Len returns the number of axes.
func (a AxesWithTail) Len() int {
	if a.Empty() {
		return 0
	}
	return len(a.head) + 1
}

// at returns the i-th axis.
func (a AxesWithTail) at(i int) distributed.AxisRef {
	if i == len(a.head) {
		return a.tail
	}
	return a.head[i]
}

// ToSlice returns a new slice with all the axes. It returns nil if empty.
func (a AxesWithTail) ToSlice() []distributed.AxisRef {
	if a.Empty() {
		return nil
	}
	axes := make([]distributed.AxisRef, 0, a.Len())
	axes = append(axes, a.head...)
	return append(axes, a.tail)
}

// Compare orders first by the number of axes, then lexicographically by the axes.
func (a AxesWithTail) Compare(b AxesWithTail) int {
	if c := cmp.Compare(a.Len(), b.Len()); c != 0 {
		return c
	}
	if c := slices.CompareFunc(a.head, b.head, distributed.AxisRef.Compare); c != 0 {
		return c
	}
	if a.Empty() {
		return 0
	}
	return a.tail.Compare(b.tail)
}

// Equal returns whether a and b hold the same axes.
func (a AxesWithTail) Equal(b AxesWithTail) bool {
	return a.tail == b.tail && slices.Equal(a.head, b.head)
}

// OverlapsAxis returns whether axis overlaps with any of the axes in a.
func (a AxesWithTail) OverlapsAxis(axis distributed.AxisRef) bool {
	if a.Empty() {
		return false
	}
	if axis.Overlaps(a.tail) {
		return true
	}
	return slices.ContainsFunc(a.head, axis.Overlaps)
}

// Overlaps returns whether any two axes, one from a and the other from b, overlap.
func (a AxesWithTail) Overlaps(b AxesWithTail) bool {
	if a.Empty() {
		return false
	}
	if b.OverlapsAxis(a.tail) {
		return true
	}
	return slices.ContainsFunc(a.head, b.OverlapsAxis)
}

// StrictPrefixOf returns whether a is a strict prefix of b: all but the last axis of a are equal to b's, and the
// last one is a prefix of b's corresponding axis (strict if a and b have the same length).
//
// The empty AxesWithTail is a strict prefix of any non-empty one.
func (a AxesWithTail) StrictPrefixOf(b AxesWithTail) bool {
	if a.Empty() {
		return !b.Empty()
	}
	if a.Len() > b.Len() {
		return false
	}
	for i, axis := range a.head {
		if axis != b.at(i) {
			return false
		}
	}
	if a.Len() == b.Len() {
		return a.tail.StrictPrefixOf(b.tail)
	}
	return a.tail.PrefixOf(b.head[len(a.head)])
}

// ShardingSize returns the product of the sizes of all axes. It is 1 if empty.
func (a AxesWithTail) ShardingSize(mesh *distributed.DeviceMesh) int {
	if a.Empty() {
		return 1
	}
	return distributed.AxesSize(mesh, a.head) * a.tail.Size(mesh)
}

// ShardingSizeExcluding returns the product of the sizes of all axes, excluding the given prefix.
//
// It assumes prefix is a prefix of a.
func (a AxesWithTail) ShardingSizeExcluding(mesh *distributed.DeviceMesh, prefix AxesWithTail) int {
	return a.ShardingSize(mesh) / prefix.ShardingSize(mesh)
}

// Key returns a string that uniquely identifies the axes, used for hashing.
func (a AxesWithTail) Key() string {
	if a.Empty() {
		return ""
	}
	var sb strings.Builder
	for _, axis := range a.head {
		sb.WriteString(axis.String())
		sb.WriteByte(',')
	}
	sb.WriteString(a.tail.String())
	return sb.String()
}

// String implements fmt.Stringer, using Shardy's notation.
func (a AxesWithTail) String() string {
	return distributed.AxesString(a.ToSlice())
}

// FactorAxesPair binds a factor to some axes: a candidate assignment.
type FactorAxesPair struct {
	Factor int
	Axes   AxesWithTail
}

// Compare orders by factor index, then by axes.
func (p FactorAxesPair) Compare(other FactorAxesPair) int {
	if c := cmp.Compare(p.Factor, other.Factor); c != 0 {
		return c
	}
	return p.Axes.Compare(other.Axes)
}

// key uniquely identifies the pair, used for hashing.
func (p FactorAxesPair) key() factorAxesKey {
	return factorAxesKey{factor: p.Factor, axes: p.Axes.Key()}
}

// Overlaps returns whether any axes of p overlaps with any axes of other.
func (p FactorAxesPair) Overlaps(other FactorAxesPair) bool {
	return p.Axes.Overlaps(other.Axes)
}

type factorAxesKey struct {
	factor int
	axes   string
}

// FactorAxesCandidate is a FactorAxesPair with its score.
type FactorAxesCandidate struct {
	FactorAxesPair

	// Count of the tensors where the factor is sharded by these axes, or by axes they are a prefix of.
	Count int

	// ShardingSize is the size of the further sharding of the factor: if the factor was already assigned axes A,
	// and this candidate has axes B (A a strict prefix of B), it is size(B)/size(A).
	ShardingSize int
}

// CandidateLess defines the order of candidates: the solver picks the largest candidate at each round.
type CandidateLess func(a, b FactorAxesCandidate) bool

// DefaultCandidateLess orders candidates by Count, then ShardingSize, and ties are broken by the factor index and
// then the axes.
func DefaultCandidateLess(a, b FactorAxesCandidate) bool {
	if a.Count != b.Count {
		return a.Count < b.Count
	}
	if a.ShardingSize != b.ShardingSize {
		return a.ShardingSize < b.ShardingSize
	}
	return a.FactorAxesPair.Compare(b.FactorAxesPair) < 0
}
