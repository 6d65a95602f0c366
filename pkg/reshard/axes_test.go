// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package reshard

import (
	"slices"
	"testing"

	"github.com/gomlx/reshard/pkg/core/distributed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	axisX = distributed.Axis("x")
	axisY = distributed.Axis("y")
	axisZ = distributed.Axis("z")
)

func axes(refs ...distributed.AxisRef) AxesWithTail {
	return NewAxesWithTail(refs)
}

func TestAxesWithTail(t *testing.T) {
	mesh, err := distributed.NewDeviceMesh("mesh", []int{4, 2, 2}, []string{"x", "y", "z"})
	require.NoError(t, err)
	xMajor := distributed.SubAxis("x", 1, 2)
	xMinor := distributed.SubAxis("x", 2, 2)

	t.Run("Basics", func(t *testing.T) {
		empty := AxesWithTail{}
		assert.True(t, empty.Empty())
		assert.Zero(t, empty.Len())
		assert.Nil(t, empty.ToSlice())
		assert.Equal(t, 1, empty.ShardingSize(mesh))
		assert.True(t, empty.Equal(axes()))
		assert.Equal(t, "{}", empty.String())

		a := axes(axisX, xMajor, axisY)
		assert.False(t, a.Empty())
		assert.Equal(t, 3, a.Len())
		assert.Equal(t, []distributed.AxisRef{axisX, xMajor, axisY}, a.ToSlice())
		assert.Equal(t, `{"x", "x":(1)2, "y"}`, a.String())
		assert.True(t, a.Equal(axes(axisX, xMajor, axisY)))
		assert.False(t, a.Equal(axes(axisX, xMajor)))
	})

	t.Run("Compare", func(t *testing.T) {
		sorted := []AxesWithTail{
			axes(),
			axes(axisX),
			axes(xMajor),
			axes(axisY),
			axes(axisX, axisY),
			axes(axisX, axisZ),
			axes(axisY, axisX),
			axes(axisX, axisY, axisZ),
		}
		shuffled := slices.Clone(sorted)
		slices.Reverse(shuffled)
		shuffled[2], shuffled[5] = shuffled[5], shuffled[2]
		slices.SortFunc(shuffled, AxesWithTail.Compare)
		for i := range sorted {
			assert.Truef(t, sorted[i].Equal(shuffled[i]), "position %d: want %s, got %s", i, sorted[i], shuffled[i])
		}
	})

	t.Run("StrictPrefixOf", func(t *testing.T) {
		tests := []struct {
			a, b AxesWithTail
			want bool
		}{
			{axes(), axes(axisX), true},
			{axes(), axes(), false},
			{axes(axisX), axes(axisX, axisY), true},
			{axes(axisX), axes(axisX), false},
			{axes(axisX, axisY), axes(axisX), false},
			{axes(axisY), axes(axisX, axisY), false},
			{axes(xMajor), axes(axisX), true},
			{axes(xMinor), axes(axisX), false},
			{axes(xMajor), axes(axisX, axisY), true},
			{axes(axisY, xMajor), axes(axisY, axisX, axisZ), true},
			{axes(axisY, axisZ), axes(axisY, axisX, axisZ), false},
		}
		for _, tt := range tests {
			assert.Equalf(t, tt.want, tt.a.StrictPrefixOf(tt.b), "%s.StrictPrefixOf(%s)", tt.a, tt.b)
		}
	})

	t.Run("Overlaps", func(t *testing.T) {
		assert.True(t, axes(axisX).Overlaps(axes(axisY, xMinor)))
		assert.False(t, axes(xMajor).Overlaps(axes(axisY, xMinor)))
		assert.False(t, axes().Overlaps(axes(axisX)))
		assert.False(t, axes(axisX).Overlaps(axes()))
		assert.True(t, axes(axisY, axisZ).OverlapsAxis(axisY))
		assert.False(t, axes(axisY, axisZ).OverlapsAxis(axisX))
	})

	t.Run("ShardingSize", func(t *testing.T) {
		a := axes(axisX, axisY)
		assert.Equal(t, 8, a.ShardingSize(mesh))
		assert.Equal(t, 2, a.ShardingSizeExcluding(mesh, axes(axisX)))
		assert.Equal(t, 8, a.ShardingSizeExcluding(mesh, axes()))
		assert.Equal(t, 2, axes(xMinor).ShardingSize(mesh))
	})

	t.Run("Key", func(t *testing.T) {
		assert.Equal(t, "", axes().Key())
		assert.Equal(t, "x,x:(1)2", axes(axisX, xMajor).Key())
		assert.NotEqual(t, axes(axisX, axisY).Key(), axes(axisY, axisX).Key())
	})
}

func TestFactorAxesPair(t *testing.T) {
	p1 := FactorAxesPair{Factor: 0, Axes: axes(axisX, axisY)}
	p2 := FactorAxesPair{Factor: 1, Axes: axes(axisX)}
	p3 := FactorAxesPair{Factor: 1, Axes: axes(axisZ)}
	assert.Negative(t, p1.Compare(p2))
	assert.Positive(t, p2.Compare(p1))
	assert.Negative(t, p2.Compare(p3))
	assert.Zero(t, p3.Compare(FactorAxesPair{Factor: 1, Axes: axes(axisZ)}))
	assert.True(t, p1.Overlaps(p2))
	assert.False(t, p1.Overlaps(p3))
	assert.Equal(t, p3.key(), FactorAxesPair{Factor: 1, Axes: axes(axisZ)}.key())
	assert.NotEqual(t, p2.key(), FactorAxesPair{Factor: 0, Axes: axes(axisX)}.key())

	// Ties in count and size are broken by the factor index: the larger one wins.
	c1 := FactorAxesCandidate{FactorAxesPair: p1, Count: 2, ShardingSize: 2}
	c2 := FactorAxesCandidate{FactorAxesPair: p2, Count: 1, ShardingSize: 8}
	assert.True(t, DefaultCandidateLess(c2, c1))
	c2.Count = 2
	assert.True(t, DefaultCandidateLess(c1, c2))
	c2.ShardingSize = 2
	assert.True(t, DefaultCandidateLess(c1, c2))
	assert.False(t, DefaultCandidateLess(c2, c1))
	assert.False(t, DefaultCandidateLess(c1, c1))
}
