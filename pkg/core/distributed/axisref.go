// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package distributed

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// AxisRef references either a whole mesh axis or a contiguous sub-range of it (a "sub-axis").
//
// PreSize is the product of the sizes of the sub-axes to the left (major) of this one. If one reshapes axis "x"
// of size n into [PreSize, SubSize, n/(PreSize*SubSize)], the sub-axis is the middle one. So for an axis "x"
// of size 8:
//
//   - "x":(1)2 is the major-most factor of 2 of "x".
//   - "x":(2)4 is the minor factor of 4, and the two together make up "x".
//
// The zero values of PreSize and SubSize mean the whole axis. AxisRef is comparable with ==.
//
// See details in https://github.com/openxla/shardy/blob/main/docs/sharding_representation.md
type AxisRef struct {
	Name string

	// PreSize and SubSize are only set for sub-axes.
	PreSize, SubSize int
}

// Axis returns a reference to the whole mesh axis axisName.
func Axis(axisName string) AxisRef {
	return AxisRef{Name: axisName}
}

// SubAxis returns a reference to the sub-axis axisName:(preSize)size.
//
// No validation is done here, see AxisRef.Validate.
func SubAxis(axisName string, preSize, size int) AxisRef {
	return AxisRef{Name: axisName, PreSize: preSize, SubSize: size}
}

// Axes is a shortcut to create a list of full axes references.
func Axes(axesNames ...string) []AxisRef {
	refs := make([]AxisRef, len(axesNames))
	for i, name := range axesNames {
		refs[i] = Axis(name)
	}
	return refs
}

// IsSubAxis returns whether a refers to only part of a mesh axis.
func (a AxisRef) IsSubAxis() bool {
	return a.SubSize > 0
}

// preSize returns the sub-axis PreSize, or 1 for a full axis.
func (a AxisRef) preSize() int {
	if !a.IsSubAxis() {
		return 1
	}
	return a.PreSize
}

// Size returns the number of devices a spans in the given mesh.
// It returns 0 if the axis is not in the mesh.
func (a AxisRef) Size(mesh *DeviceMesh) int {
	if a.IsSubAxis() {
		return a.SubSize
	}
	return mesh.axisSize(a.Name)
}

// nextPreSize is the PreSize of the sub-axis that would immediately follow a.
func (a AxisRef) nextPreSize(mesh *DeviceMesh) int {
	return a.preSize() * a.Size(mesh)
}

// Validate checks that a refers to an existing axis of the mesh, and that sub-axes are well-formed.
func (a AxisRef) Validate(mesh *DeviceMesh) error {
	axisSize, err := mesh.AxisSize(a.Name)
	if err != nil {
		return err
	}
	if !a.IsSubAxis() {
		if a.PreSize != 0 {
			return errors.Errorf("axis reference %s has a PreSize but no SubSize", a)
		}
		return nil
	}
	if a.PreSize < 1 || a.SubSize < 2 {
		return errors.Errorf("sub-axis %s must have PreSize >= 1 and size >= 2", a)
	}
	if axisSize%(a.PreSize*a.SubSize) != 0 {
		return errors.Errorf("sub-axis %s does not divide axis %q of size %d", a, a.Name, axisSize)
	}
	if a.PreSize*a.SubSize == axisSize && a.PreSize == 1 {
		return errors.Errorf("sub-axis %s spans the whole axis %q, use the full axis instead", a, a.Name)
	}
	return nil
}

// Overlaps returns whether a and b address intersecting device ranges. It is symmetric.
func (a AxisRef) Overlaps(b AxisRef) bool {
	if a.Name != b.Name {
		return false
	}
	if !a.IsSubAxis() || !b.IsSubAxis() {
		return true
	}
	return a.PreSize < b.PreSize*b.SubSize && b.PreSize < a.PreSize*a.SubSize
}

// PrefixOf returns whether the devices addressed by a are an initial block of the ones addressed by b.
// An axis is a prefix of itself.
func (a AxisRef) PrefixOf(b AxisRef) bool {
	if a.Name != b.Name {
		return false
	}
	if !a.IsSubAxis() || !b.IsSubAxis() {
		if !a.IsSubAxis() {
			return !b.IsSubAxis()
		}
		return a.PreSize == 1
	}
	return a.PreSize == b.PreSize && b.SubSize%a.SubSize == 0
}

// StrictPrefixOf returns whether a is a prefix of b and a != b.
func (a AxisRef) StrictPrefixOf(b AxisRef) bool {
	return a != b && a.PrefixOf(b)
}

// Compare defines a total order of axis references: by name, then the full axis before any of its sub-axes,
// then by PreSize and finally by SubSize.
func (a AxisRef) Compare(b AxisRef) int {
	if c := cmp.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	if a.IsSubAxis() != b.IsSubAxis() {
		if !a.IsSubAxis() {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(a.PreSize, b.PreSize); c != 0 {
		return c
	}
	return cmp.Compare(a.SubSize, b.SubSize)
}

// String returns x or x:(2)4 for sub-axes.
func (a AxisRef) String() string {
	if !a.IsSubAxis() {
		return a.Name
	}
	return fmt.Sprintf("%s:(%d)%d", a.Name, a.PreSize, a.SubSize)
}

// quoted returns the Shardy notation, with the axis name quoted: "x" or "x":(2)4.
func (a AxisRef) quoted() string {
	if !a.IsSubAxis() {
		return fmt.Sprintf("%q", a.Name)
	}
	return fmt.Sprintf("%q:(%d)%d", a.Name, a.PreSize, a.SubSize)
}

// ParseAxisRef parses the notation returned by AxisRef.String: "x" or "x:(2)4".
// Quotes around the axis name are accepted.
func ParseAxisRef(text string) (AxisRef, error) {
	text = strings.TrimSpace(text)
	name, rest, isSub := strings.Cut(text, ":")
	name = strings.Trim(name, `"`)
	if !IsNameValid(name) {
		return AxisRef{}, errors.Errorf("invalid axis name in %q", text)
	}
	if !isSub {
		return Axis(name), nil
	}
	var preSize, size int
	if _, err := fmt.Sscanf(rest, "(%d)%d", &preSize, &size); err != nil {
		return AxisRef{}, errors.Wrapf(err, "invalid sub-axis %q, expected format name:(preSize)size", text)
	}
	return SubAxis(name, preSize, size), nil
}

// normalize returns the full axis if a is a sub-axis covering the whole axis.
func (a AxisRef) normalize(mesh *DeviceMesh) AxisRef {
	if a.IsSubAxis() && a.PreSize == 1 && a.SubSize == mesh.axisSize(a.Name) {
		return Axis(a.Name)
	}
	return a
}

// SplitPrefix splits a into its prefix sub-axis of the given size and the remaining suffix.
//
// It requires 1 < size < a.Size(mesh) and a.Size(mesh) divisible by size.
func (a AxisRef) SplitPrefix(mesh *DeviceMesh, size int) (prefix, suffix AxisRef, err error) {
	total := a.Size(mesh)
	if size <= 1 || size >= total || total%size != 0 {
		err = errors.Errorf("cannot split prefix of size %d from axis %s of size %d", size, a, total)
		return
	}
	pre := a.preSize()
	prefix = SubAxis(a.Name, pre, size)
	suffix = SubAxis(a.Name, pre*size, total/size)
	return
}

// canMerge returns whether b immediately follows a within the same mesh axis.
func (a AxisRef) canMerge(mesh *DeviceMesh, b AxisRef) bool {
	return a.Name == b.Name && a.IsSubAxis() && b.IsSubAxis() && a.nextPreSize(mesh) == b.PreSize
}

// MergeAdjacent merges consecutive sub-axes of the same axis, e.g. "x":(1)2,"x":(2)2 becomes "x":(1)4, or
// simply "x" if that covers the whole axis of the mesh.
func MergeAdjacent(mesh *DeviceMesh, axes []AxisRef) []AxisRef {
	if len(axes) < 2 {
		return axes
	}
	merged := make([]AxisRef, 0, len(axes))
	for _, axis := range axes {
		if n := len(merged); n > 0 && merged[n-1].canMerge(mesh, axis) {
			last := merged[n-1]
			merged[n-1] = SubAxis(last.Name, last.PreSize, last.SubSize*axis.SubSize).normalize(mesh)
			continue
		}
		merged = append(merged, axis)
	}
	return merged
}

// AxesSize returns the product of the sizes of the given axes.
func AxesSize(mesh *DeviceMesh, axes []AxisRef) int {
	size := 1
	for _, axis := range axes {
		size *= axis.Size(mesh)
	}
	return size
}

// AxesString returns the axes in Shardy notation, e.g.: {"x", "y":(1)2}.
func AxesString(axes []AxisRef) string {
	parts := make([]string, len(axes))
	for i, axis := range axes {
		parts[i] = axis.quoted()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// GCD returns the greatest common divisor of a and b.
func GCD[T constraints.Integer](a, b T) T {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}
