// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package distributed

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// DeviceMesh defines the logical topology of a set of devices: an ordered list of named axes, each with a size.
//
// It is immutable once created.
type DeviceMesh struct {
	name string

	// axesNames are the names of the mesh axes.
	axesNames []string

	// axesSizes defines the number of devices along each mesh axis.
	axesSizes []int

	// nameToAxis maps axis names to their index.
	nameToAxis map[string]int

	// numDevices is the total number of devices in the mesh.
	numDevices int
}

const DefaultMeshName = "mesh"

// IsNameValid checks whether a name is a valid identifier for a mesh name or axis name.
func IsNameValid(name string) bool {
	if name == "" {
		return false
	}
	if name[0] >= '0' && name[0] <= '9' {
		return false
	}
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			continue
		}
		return false
	}
	return true
}

// NewDeviceMesh creates a new logical topology of a set of devices.
//
//   - name: the mesh name, referred to by ShardingSpec.MeshName. If empty, DefaultMeshName is used.
//   - axesSizes: defines the number of devices along each mesh axis, one value per axis.
//   - axesNames: the names of the mesh axes. One value per axis.
func NewDeviceMesh(name string, axesSizes []int, axesNames []string) (*DeviceMesh, error) {
	if name == "" {
		name = DefaultMeshName
	}
	if !IsNameValid(name) {
		return nil, errors.Errorf("DeviceMesh name %q is not a valid identifier", name)
	}
	if len(axesSizes) != len(axesNames) {
		return nil, errors.Errorf("axesSizes and axesNames must have the same length, got %d and %d",
			len(axesSizes), len(axesNames))
	}
	if len(axesSizes) == 0 {
		return nil, errors.New("DeviceMesh axesSizes cannot be empty")
	}

	numDevices := 1
	nameToAxis := make(map[string]int, len(axesSizes))
	for i, axisName := range axesNames {
		if axisName == "" {
			return nil, errors.Errorf("DeviceMesh axis name at index %d cannot be empty", i)
		}
		if !IsNameValid(axisName) {
			return nil, errors.Errorf(
				"DeviceMesh axis name %q at index %d is not a valid identifier, it must start with a ASCII letter "+
					"and be followed only by letters, numbers or underscore", axisName, i)
		}
		if _, found := nameToAxis[axisName]; found {
			return nil, errors.Errorf("DeviceMesh axis name %q is duplicated", axisName)
		}
		if axesSizes[i] <= 0 {
			return nil, errors.Errorf("DeviceMesh axis %q must have a positive size, got %d", axisName, axesSizes[i])
		}
		nameToAxis[axisName] = i
		numDevices *= axesSizes[i]
	}

	return &DeviceMesh{
		name:       name,
		axesNames:  slices.Clone(axesNames),
		axesSizes:  slices.Clone(axesSizes),
		nameToAxis: nameToAxis,
		numDevices: numDevices,
	}, nil
}

// Name returns the mesh name.
func (m *DeviceMesh) Name() string {
	return m.name
}

// NumDevices returns the total number of devices in the mesh.
func (m *DeviceMesh) NumDevices() int {
	return m.numDevices
}

// Rank returns the number of axes in the mesh.
func (m *DeviceMesh) Rank() int {
	return len(m.axesSizes)
}

// AxesNames returns a copy of the mesh's axis names.
func (m *DeviceMesh) AxesNames() []string {
	return slices.Clone(m.axesNames)
}

// AxesSizes returns a copy of the mesh's axesSizes.
func (m *DeviceMesh) AxesSizes() []int {
	return slices.Clone(m.axesSizes)
}

// AxisSize returns the number of devices along the given mesh axis.
func (m *DeviceMesh) AxisSize(axisName string) (int, error) {
	idx, found := m.nameToAxis[axisName]
	if !found {
		return 0, errors.Errorf("mesh axis %q not found", axisName)
	}
	return m.axesSizes[idx], nil
}

// axisSize is like AxisSize but returns 0 for unknown axes.
func (m *DeviceMesh) axisSize(axisName string) int {
	idx, found := m.nameToAxis[axisName]
	if !found {
		return 0
	}
	return m.axesSizes[idx]
}

// String implements the fmt.Stringer interface.
func (m *DeviceMesh) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "DeviceMesh(@%s, axesSizes={", m.name)
	for i, name := range m.axesNames {
		if i > 0 {
			sb.WriteString(", ")
		}
		_, _ = fmt.Fprintf(&sb, "%s: %d", name, m.axesSizes[i])
	}
	sb.WriteString("})")
	return sb.String()
}

// MeshTable resolves mesh names to meshes. It plays the role of the symbol table of a module.
type MeshTable struct {
	meshes map[string]*DeviceMesh
	order  []string
}

// NewMeshTable creates a MeshTable with the given meshes. Mesh names must be unique.
func NewMeshTable(meshes ...*DeviceMesh) (*MeshTable, error) {
	t := &MeshTable{meshes: make(map[string]*DeviceMesh, len(meshes))}
	for _, m := range meshes {
		if err := t.Add(m); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Add a mesh to the table.
func (t *MeshTable) Add(mesh *DeviceMesh) error {
	if mesh == nil {
		return errors.New("MeshTable.Add: nil mesh")
	}
	if _, found := t.meshes[mesh.name]; found {
		return errors.Errorf("mesh @%s defined more than once", mesh.name)
	}
	t.meshes[mesh.name] = mesh
	t.order = append(t.order, mesh.name)
	return nil
}

// Lookup returns the mesh with the given name, or nil if it is not known.
func (t *MeshTable) Lookup(name string) *DeviceMesh {
	if t == nil {
		return nil
	}
	return t.meshes[name]
}

// Meshes returns the meshes in the order they were added.
func (t *MeshTable) Meshes() []*DeviceMesh {
	meshes := make([]*DeviceMesh, 0, len(t.order))
	for _, name := range t.order {
		meshes = append(meshes, t.meshes[name])
	}
	return meshes
}

// CommonMeshName returns the mesh name shared by all non-nil shardings of operands and results.
//
// It returns false if none of them has a sharding, or if they refer to different meshes.
func CommonMeshName(operands, results []*ShardingSpec) (string, bool) {
	var common string
	for _, specs := range [][]*ShardingSpec{operands, results} {
		for _, spec := range specs {
			if spec == nil {
				continue
			}
			if common == "" {
				common = spec.MeshName
				continue
			}
			if spec.MeshName != common {
				return "", false
			}
		}
	}
	return common, common != ""
}
