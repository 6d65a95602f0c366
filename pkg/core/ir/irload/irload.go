// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package irload builds meshes and an ir.Function from a YAML description.
//
// Example:
//
//	meshes:
//	  - name: mesh
//	    axes:
//	      - {name: x, size: 2}
//	      - {name: y, size: 4}
//	function:
//	  name: main
//	  args:
//	    - {name: a, sharding: {mesh: mesh, dims: [[], [y]]}}
//	    - {name: b, sharding: {mesh: mesh, dims: [[y], [x]]}}
//	  results:
//	    - {mesh: mesh, dims: [[x], []]}
//	  ops:
//	    - kind: dot
//	      operands: [a, b]
//	      rule:
//	        factors: [{name: i, size: 8}, {name: j, size: 16}, {name: k, size: 32}]
//	        operands: [[i, k], [k, j]]
//	        results: [[i, j]]
//	      results:
//	        - {name: c, sharding: {mesh: mesh, dims: [[x], []]}}
//	  return: [c]
//
// Sharding dims list the mesh axes of each tensor dimension, major to minor: "x" for a full axis, "x:(1)2" for a
// sub-axis, and a final "?" marks the dimension as open. Rule dims name the factors of each tensor dimension, with
// "i,j" for a dimension made of more than one factor.
package irload

import (
	"bytes"
	"os"

	"github.com/gomlx/reshard/pkg/core/distributed"
	"github.com/gomlx/reshard/pkg/core/ir"
	"github.com/gomlx/reshard/pkg/core/shardingrule"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// File is the top-level YAML document.
type File struct {
	Meshes   []Mesh   `yaml:"meshes"`
	Function Function `yaml:"function"`
}

// Mesh definition.
type Mesh struct {
	Name string `yaml:"name"`
	Axes []Axis `yaml:"axes"`
}

// Axis of a mesh.
type Axis struct {
	Name string `yaml:"name"`
	Size int    `yaml:"size"`
}

// Sharding of a value. A nil *Sharding means the value is not sharded.
type Sharding struct {
	Mesh string     `yaml:"mesh"`
	Dims [][]string `yaml:"dims"`
}

// Value is a function argument or an operation result.
type Value struct {
	Name     string    `yaml:"name"`
	Sharding *Sharding `yaml:"sharding"`
}

// Rule is a sharding rule, with factors referred to by name.
type Rule struct {
	Factors  []Axis     `yaml:"factors"`
	Operands [][]string `yaml:"operands"`
	Results  [][]string `yaml:"results"`
}

// Op is one operation of the function body.
type Op struct {
	Kind     string   `yaml:"kind"`
	Operands []string `yaml:"operands"`
	Rule     *Rule    `yaml:"rule"`
	Results  []Value  `yaml:"results"`
}

// Function definition.
type Function struct {
	Name    string      `yaml:"name"`
	Args    []Value     `yaml:"args"`
	Results []*Sharding `yaml:"results"`
	Ops     []Op        `yaml:"ops"`
	Return  []string    `yaml:"return"`
}

// LoadFile reads and builds the YAML file at path. See Load.
func LoadFile(path string) (*ir.Function, *distributed.MeshTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "irload: failed to read %q", path)
	}
	fn, meshes, err := Load(data)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "irload: %s", path)
	}
	return fn, meshes, nil
}

// Load parses the YAML document and builds the meshes and the function it describes.
func Load(data []byte) (*ir.Function, *distributed.MeshTable, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil, errors.New("irload: empty document")
	}
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, nil, errors.Wrap(err, "irload: failed to decode YAML")
	}
	return file.Build()
}

// Build the meshes and the function described by the file.
func (f *File) Build() (*ir.Function, *distributed.MeshTable, error) {
	meshes, err := distributed.NewMeshTable()
	if err != nil {
		return nil, nil, err
	}
	for _, m := range f.Meshes {
		sizes := make([]int, len(m.Axes))
		names := make([]string, len(m.Axes))
		for i, axis := range m.Axes {
			sizes[i], names[i] = axis.Size, axis.Name
		}
		mesh, err := distributed.NewDeviceMesh(m.Name, sizes, names)
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "mesh %q", m.Name)
		}
		if err = meshes.Add(mesh); err != nil {
			return nil, nil, err
		}
	}
	fn, err := f.Function.build(meshes)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "function %q", f.Function.Name)
	}
	return fn, meshes, nil
}

func (f *Function) build(meshes *distributed.MeshTable) (*ir.Function, error) {
	if f.Name == "" {
		return nil, errors.New("function has no name")
	}
	fn := ir.NewFunction(f.Name)
	values := make(map[string]*ir.Value)
	define := func(name string, v *ir.Value) error {
		if name == "" {
			return nil
		}
		if _, found := values[name]; found {
			return errors.Errorf("value %q defined more than once", name)
		}
		values[name] = v
		return nil
	}
	lookup := func(names []string) ([]*ir.Value, error) {
		vs := make([]*ir.Value, len(names))
		for i, name := range names {
			v, found := values[name]
			if !found {
				return nil, errors.Errorf("value %q used before being defined", name)
			}
			vs[i] = v
		}
		return vs, nil
	}

	for i, arg := range f.Args {
		sharding, err := arg.Sharding.build(meshes)
		if err != nil {
			return nil, errors.WithMessagef(err, "argument #%d", i)
		}
		if err = define(arg.Name, fn.AddArg(arg.Name, sharding)); err != nil {
			return nil, err
		}
	}
	for i, result := range f.Results {
		sharding, err := result.build(meshes)
		if err != nil {
			return nil, errors.WithMessagef(err, "result #%d", i)
		}
		fn.ResultShardings = append(fn.ResultShardings, sharding)
	}
	for i, op := range f.Ops {
		if op.Kind == "" || op.Kind == ir.ReturnKind {
			return nil, errors.Errorf("operation #%d has invalid kind %q", i, op.Kind)
		}
		operands, err := lookup(op.Operands)
		if err != nil {
			return nil, errors.WithMessagef(err, "operation #%d (%s)", i, op.Kind)
		}
		var rule *shardingrule.OpShardingRule
		if op.Rule != nil {
			if rule, err = op.Rule.build(); err != nil {
				return nil, errors.WithMessagef(err, "operation #%d (%s) rule", i, op.Kind)
			}
		}
		shardings := make([]*distributed.ShardingSpec, len(op.Results))
		for j, result := range op.Results {
			if shardings[j], err = result.Sharding.build(meshes); err != nil {
				return nil, errors.WithMessagef(err, "operation #%d (%s) result #%d", i, op.Kind, j)
			}
		}
		newOp := fn.AddOp(op.Kind, rule, operands, shardings...)
		for j, result := range op.Results {
			newOp.Results[j].Name = result.Name
			if err = define(result.Name, newOp.Results[j]); err != nil {
				return nil, err
			}
		}
	}
	returned, err := lookup(f.Return)
	if err != nil {
		return nil, errors.WithMessage(err, "return")
	}
	fn.Return(returned...)
	if err = fn.Verify(); err != nil {
		return nil, err
	}
	return fn, nil
}

func (s *Sharding) build(meshes *distributed.MeshTable) (*distributed.ShardingSpec, error) {
	if s == nil {
		return nil, nil
	}
	mesh := meshes.Lookup(s.Mesh)
	if mesh == nil {
		return nil, errors.Errorf("unknown mesh %q", s.Mesh)
	}
	spec := distributed.NewShardingSpec(mesh.Name())
	for d, dim := range s.Dims {
		var axisSpec distributed.AxisSpec
		for k, text := range dim {
			if text == "?" {
				if k != len(dim)-1 {
					return nil, errors.Errorf("dimension %d: the open marker \"?\" must be the last element", d)
				}
				axisSpec.Opened = true
				continue
			}
			axis, err := distributed.ParseAxisRef(text)
			if err != nil {
				return nil, errors.WithMessagef(err, "dimension %d", d)
			}
			axisSpec.MeshAxes = append(axisSpec.MeshAxes, axis)
		}
		spec.Axes = append(spec.Axes, axisSpec)
	}
	if err := spec.Validate(mesh); err != nil {
		return nil, err
	}
	return spec, nil
}

func (r *Rule) build() (*shardingrule.OpShardingRule, error) {
	b := shardingrule.Build()
	for _, factor := range r.Factors {
		b.Factor(factor.Name, factor.Size)
	}
	for _, dims := range r.Operands {
		b.Operand(dims...)
	}
	for _, dims := range r.Results {
		b.Result(dims...)
	}
	return b.Done()
}
