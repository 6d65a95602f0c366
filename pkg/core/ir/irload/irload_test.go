// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package irload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/reshard/pkg/core/distributed"
	"github.com/gomlx/reshard/pkg/core/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dotYAML = `
meshes:
  - name: mesh
    axes:
      - {name: x, size: 2}
      - {name: y, size: 4}
function:
  name: main
  args:
    - {name: a, sharding: {mesh: mesh, dims: [[], [y]]}}
    - {name: b, sharding: {mesh: mesh, dims: [[y], [x]]}}
  results:
    - {mesh: mesh, dims: [[x], []]}
  ops:
    - kind: dot
      operands: [a, b]
      rule:
        factors: [{name: i, size: 8}, {name: j, size: 16}, {name: k, size: 32}]
        operands: [[i, k], [k, j]]
        results: [[i, j]]
      results:
        - {name: c, sharding: {mesh: mesh, dims: [[x], []]}}
    - kind: negate
      operands: [c]
      rule:
        factors: [{name: i, size: 8}, {name: j, size: 16}]
        operands: [[i, j]]
        results: [[i, j]]
      results:
        - sharding: {mesh: mesh, dims: [["x", "?"], ["?"]]}
  return: [c]
`

func TestLoad(t *testing.T) {
	fn, meshes, err := Load([]byte(dotYAML))
	require.NoError(t, err)

	mesh := meshes.Lookup("mesh")
	require.NotNil(t, mesh)
	assert.Equal(t, []string{"x", "y"}, mesh.AxesNames())
	assert.Equal(t, 8, mesh.NumDevices())

	assert.Equal(t, "main", fn.Name)
	require.Len(t, fn.Args, 2)
	assert.Equal(t, `<@mesh, [{}, {"y"}]>`, fn.Args[0].Sharding.String())
	require.Len(t, fn.ResultShardings, 1)
	assert.Equal(t, `<@mesh, [{"x"}, {}]>`, fn.ResultShardings[0].String())

	ops := fn.Ops()
	require.Len(t, ops, 3)
	dot, negate, ret := ops[0], ops[1], ops[2]
	assert.Equal(t, "dot", dot.Kind)
	assert.Equal(t, "([i, k], [k, j])->([i, j]) {i=8, j=16, k=32}", dot.Rule.String())
	assert.Equal(t, []*ir.Value{fn.Args[0], fn.Args[1]}, dot.Operands)
	assert.Equal(t, "c", dot.Result(0).Name)
	assert.Same(t, dot.Result(0), negate.Operands[0])
	assert.Equal(t, `<@mesh, [{"x", ?}, {?}]>`, negate.Result(0).Sharding.String())
	assert.Equal(t, ir.ReturnKind, ret.Kind)
	assert.Same(t, dot.Result(0), ret.Operands[0])
}

func TestLoadSubAxesAndUnsharded(t *testing.T) {
	fn, _, err := Load([]byte(`
meshes:
  - name: mesh
    axes: [{name: x, size: 4}]
function:
  name: f
  args:
    - {name: a, sharding: {mesh: mesh, dims: [["x:(1)2"], ["x:(2)2"]]}}
    - {name: b}
  ops:
    - kind: custom_call
      operands: [a, b]
      results: [{name: r}]
  return: [r]
`))
	require.NoError(t, err)
	assert.Equal(t, []distributed.AxisRef{distributed.SubAxis("x", 1, 2)}, fn.Args[0].Sharding.Axes[0].MeshAxes)
	assert.Nil(t, fn.Args[1].Sharding)
	op := fn.Ops()[0]
	assert.Nil(t, op.Rule)
	assert.Nil(t, op.Result(0).Sharding)
}

func TestLoadErrors(t *testing.T) {
	const header = `
meshes:
  - name: mesh
    axes: [{name: x, size: 2}]
`
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"empty", "  \n", "empty document"},
		{"invalid YAML", "meshes: [", "failed to decode YAML"},
		{"bad mesh", `
meshes:
  - name: mesh
    axes: [{name: x, size: 0}]
function: {name: f, return: []}
`, "must have a positive size"},
		{"duplicate mesh", `
meshes:
  - {name: mesh, axes: [{name: x, size: 2}]}
  - {name: mesh, axes: [{name: y, size: 2}]}
function: {name: f, return: []}
`, "defined more than once"},
		{"no function name", header + "function: {return: []}\n", "function has no name"},
		{"unknown mesh", header + `
function:
  name: f
  args: [{name: a, sharding: {mesh: other, dims: [[x]]}}]
  return: [a]
`, "unknown mesh \"other\""},
		{"unknown axis", header + `
function:
  name: f
  args: [{name: a, sharding: {mesh: mesh, dims: [[z]]}}]
  return: [a]
`, "argument #0"},
		{"misplaced open marker", header + `
function:
  name: f
  args: [{name: a, sharding: {mesh: mesh, dims: [["?", x]]}}]
  return: [a]
`, "must be the last element"},
		{"undefined value", header + `
function:
  name: f
  ops: [{kind: negate, operands: [a], results: [{name: b}]}]
  return: [b]
`, "value \"a\" used before being defined"},
		{"redefined value", header + `
function:
  name: f
  args: [{name: a}]
  ops: [{kind: negate, operands: [a], results: [{name: a}]}]
  return: [a]
`, "value \"a\" defined more than once"},
		{"explicit return op", header + `
function:
  name: f
  args: [{name: a}]
  ops: [{kind: return, operands: [a]}]
  return: [a]
`, "invalid kind \"return\""},
		{"bad rule", header + `
function:
  name: f
  args: [{name: a}]
  ops:
    - kind: negate
      operands: [a]
      rule: {factors: [{name: i, size: 2}], operands: [[j]], results: [[i]]}
      results: [{name: b}]
  return: [b]
`, "unknown factor \"j\""},
		{"undefined return", header + "function: {name: f, return: [z]}\n", "return"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Load([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(dotYAML), 0o644))
	fn, _, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "main", fn.Name)

	_, _, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
}
