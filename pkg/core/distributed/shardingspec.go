// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package distributed

import (
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// ShardingSpec (also known as PartitionSpec in JAX) defines how a logical tensor is sharded (partitioned) across
// a DeviceMesh. It is based on Shardy's sharding representation [1].
//
// The definition is per axis of the logical tensor -- and not per axis of the Mesh, a common confusion.
// If not all axes of the Tensor are defined, the tail axes are considered simply to be replicated across the whole
// mesh.
//
// Each tensor axis can be replicated or sharded across one or more mesh axes or sub-axes, major to minor.
//
// Example:
//
//	// First axis is replicated, second is sharded across "model" devices.
//	variableSharding, err := BuildSpec("mesh").R().S("model").Done()
//
//	// Second axis is sharded across both "data" and "model" devices, and open to further sharding.
//	largeWeights, err := BuildSpec("mesh").R().S("data", "model").Open().Done()
//
// The mesh is referred to by name, and resolved with a MeshTable.
//
// [1] https://github.com/openxla/shardy/blob/main/docs/sharding_representation.md
type ShardingSpec struct {
	MeshName string
	Axes     []AxisSpec
}

// AxisSpec specifies how a tensor axis is to be sharded (or replicated).
// See details in ShardingSpec.
//
// An empty list of MeshAxes means the axis is replicated. Opened marks the axis as open to further sharding
// (in Shardy's notation a trailing "?").
type AxisSpec struct {
	MeshAxes []AxisRef
	Opened   bool
}

// ReplicatedAxis is a closed, replicated AxisSpec.
var ReplicatedAxis = AxisSpec{}

// NewShardingSpec creates a new ShardingSpec for a tensor. It takes an AxisSpec for each axis of the tensor.
//
// There is also the BuildSpec function for a more ergonomic spec creation.
func NewShardingSpec(meshName string, axisSpec ...AxisSpec) *ShardingSpec {
	return &ShardingSpec{MeshName: meshName, Axes: axisSpec}
}

// NewReplicatedShardingSpec creates a fully replicated ShardingSpec with rank closed axes.
func NewReplicatedShardingSpec(meshName string, rank int) *ShardingSpec {
	return &ShardingSpec{MeshName: meshName, Axes: make([]AxisSpec, rank)}
}

// NewOpenShardingSpec creates a replicated ShardingSpec with rank axes, all open to further sharding.
func NewOpenShardingSpec(meshName string, rank int) *ShardingSpec {
	s := NewReplicatedShardingSpec(meshName, rank)
	for i := range s.Axes {
		s.Axes[i].Opened = true
	}
	return s
}

// Validate the spec against the mesh, returning an error if it refers to unknown axes, malformed sub-axes
// or uses overlapping mesh axes more than once.
func (s *ShardingSpec) Validate(mesh *DeviceMesh) error {
	if s.MeshName != mesh.Name() {
		return errors.Errorf("ShardingSpec refers to mesh @%s, but validated against mesh @%s", s.MeshName, mesh.Name())
	}
	var used []AxisRef
	for axisIdx, tensorAxisSpec := range s.Axes {
		for _, axisRef := range tensorAxisSpec.MeshAxes {
			if err := axisRef.Validate(mesh); err != nil {
				return errors.WithMessagef(err, "ShardingSpec axis #%d", axisIdx)
			}
			for _, prev := range used {
				if prev.Overlaps(axisRef) {
					return errors.Errorf("mesh axis %s overlaps with %s, used more than once in ShardingSpec",
						axisRef, prev)
				}
			}
			used = append(used, axisRef)
		}
	}
	return nil
}

// Rank returns the rank of the tensor this ShardingSpec describes.
func (s *ShardingSpec) Rank() int {
	return len(s.Axes)
}

// IsReplicated returns true if the tensor is fully replicated (i.e., not sharded along any axis).
// A nil ShardingSpec is considered replicated.
func (s *ShardingSpec) IsReplicated() bool {
	if s == nil {
		return true
	}
	for _, axisSpec := range s.Axes {
		if len(axisSpec.MeshAxes) > 0 {
			return false
		}
	}
	return true
}

// Equal returns whether s and s2 describe the same sharding, including the open/closed state of each axis.
// Two nil specs are equal.
func (s *ShardingSpec) Equal(s2 *ShardingSpec) bool {
	if s == nil || s2 == nil {
		return s == s2
	}
	if s.MeshName != s2.MeshName || len(s.Axes) != len(s2.Axes) {
		return false
	}
	for i, axisSpec := range s.Axes {
		if axisSpec.Opened != s2.Axes[i].Opened || !slices.Equal(axisSpec.MeshAxes, s2.Axes[i].MeshAxes) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the spec.
func (s *ShardingSpec) Clone() *ShardingSpec {
	if s == nil {
		return nil
	}
	clone := &ShardingSpec{MeshName: s.MeshName, Axes: make([]AxisSpec, len(s.Axes))}
	for i, axisSpec := range s.Axes {
		clone.Axes[i] = AxisSpec{MeshAxes: slices.Clone(axisSpec.MeshAxes), Opened: axisSpec.Opened}
	}
	return clone
}

// FullyClosedLike returns a fully replicated spec on the same mesh and with the same rank as s, with all axes
// closed. It returns nil if s is nil.
func (s *ShardingSpec) FullyClosedLike() *ShardingSpec {
	if s == nil {
		return nil
	}
	return NewReplicatedShardingSpec(s.MeshName, s.Rank())
}

// String returns the Shardy notation of the spec, e.g. <@mesh, [{"x"}, {"y", ?}, {}]>.
// Returns "<nil>" if s is nil.
func (s *ShardingSpec) String() string {
	if s == nil {
		return "<nil>"
	}
	var sb strings.Builder
	sb.WriteString("<@")
	sb.WriteString(s.MeshName)
	sb.WriteString(", [")
	for i, axisSpec := range s.Axes {
		if i > 0 {
			sb.WriteString(", ")
		}
		axes := AxesString(axisSpec.MeshAxes)
		if axisSpec.Opened {
			if len(axisSpec.MeshAxes) == 0 {
				axes = "{?}"
			} else {
				axes = axes[:len(axes)-1] + ", ?}"
			}
		}
		sb.WriteString(axes)
	}
	sb.WriteString("]>")
	return sb.String()
}

// SpecBuilder is a more ergonomic way of building ShardingSpec.
type SpecBuilder struct {
	spec *ShardingSpec
	err  error
}

// BuildSpec is a more ergonomic way of building ShardingSpec.
//
// Example:
//
//	spec, err := distributed.BuildSpec("mesh").R().S("model").Sub("data", 1, 2).Done()
func BuildSpec(meshName string) *SpecBuilder {
	return &SpecBuilder{spec: &ShardingSpec{MeshName: meshName}}
}

// R adds a replicated axis to the ShardingSpec being built.
func (b *SpecBuilder) R() *SpecBuilder {
	b.spec.Axes = append(b.spec.Axes, AxisSpec{})
	return b
}

// S adds a sharded axis along the full meshAxes to the ShardingSpec being built.
func (b *SpecBuilder) S(meshAxes ...string) *SpecBuilder {
	b.spec.Axes = append(b.spec.Axes, AxisSpec{MeshAxes: Axes(meshAxes...)})
	return b
}

// A adds a sharded axis along the given axis references (axes or sub-axes).
func (b *SpecBuilder) A(axisRefs ...AxisRef) *SpecBuilder {
	b.spec.Axes = append(b.spec.Axes, AxisSpec{MeshAxes: slices.Clone(axisRefs)})
	return b
}

// Sub appends the sub-axis meshAxis:(preSize)size to the last axis added.
func (b *SpecBuilder) Sub(meshAxis string, preSize, size int) *SpecBuilder {
	if len(b.spec.Axes) == 0 {
		b.err = errors.Errorf("SpecBuilder.Sub(%q) called before any axis was added", meshAxis)
		return b
	}
	last := &b.spec.Axes[len(b.spec.Axes)-1]
	last.MeshAxes = append(last.MeshAxes, SubAxis(meshAxis, preSize, size))
	return b
}

// Open marks the last axis added as open to further sharding.
func (b *SpecBuilder) Open() *SpecBuilder {
	if len(b.spec.Axes) == 0 {
		b.err = errors.New("SpecBuilder.Open() called before any axis was added")
		return b
	}
	b.spec.Axes[len(b.spec.Axes)-1].Opened = true
	return b
}

// Done returns the ShardingSpec built, or the first error found.
// Use ShardingSpec.Validate to check it against a mesh.
func (b *SpecBuilder) Done() (*ShardingSpec, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.spec, nil
}
