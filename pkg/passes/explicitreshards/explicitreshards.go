// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package explicitreshards inserts explicit reshards in a function, so that every operation with a sharding rule
// has its factors sharded the same way across all its operands and results, and the values returned match the
// declared function result shardings.
//
// Example: given
//
//	func @main(%arg0: <@mesh, [{}, {"y"}]>, %arg1: <@mesh, [{"y"}, {"x"}]>) -> (<@mesh, [{"x"}, {}]>) {
//	  %0 = dot(%arg0, %arg1) <@mesh, [{"x"}, {}]> rule=([i, k], [k, j])->([i, j]) {i=8, j=16, k=32}
//	  %1 = negate(%0) <@mesh, [{"x"}, {}]> rule=([i, j])->([i, j]) {i=8, j=16}
//	  return %1
//	}
//
// k is sharded by "y" in both operands of the dot, so it wins first. Then i and j are both sharded by "x" once,
// so the tie is broken by the factor order, and j gets "x". The result of the dot is resharded back for negate:
//
//	func @main(%arg0: <@mesh, [{}, {"y"}]>, %arg1: <@mesh, [{"y"}, {"x"}]>) -> (<@mesh, [{"x"}, {}]>) {
//	  %0 = dot(%arg0, %arg1) <@mesh, [{}, {"x"}]> rule=([i, k], [k, j])->([i, j]) {i=8, j=16, k=32}
//	  %1 = reshard %0 <@mesh, [{"x"}, {}]>
//	  %2 = negate(%1) <@mesh, [{"x"}, {}]> rule=([i, j])->([i, j]) {i=8, j=16}
//	  return %2
//	}
//
// Notice the operand and result shardings of negate are unchanged.
package explicitreshards

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/reshard/pkg/core/distributed"
	"github.com/gomlx/reshard/pkg/core/ir"
	"github.com/gomlx/reshard/pkg/reshard"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Stats of one run of the pass.
type Stats struct {
	// OpsVisited counts the operations visited, excluding the return.
	OpsVisited int

	// Skipped counts the operations left unchanged, per reason.
	Skipped map[reshard.SkipReason]int

	// ReshardsInserted counts all the reshards inserted, including the ones before the return.
	ReshardsInserted int
}

type config struct {
	less              reshard.CandidateLess
	skipReturn        bool
	skipInteriorOps   bool
	verifyAfterChange bool
}

// Option configures Run.
type Option func(*config)

// WithCandidateLess sets the order used to break ties between candidate factor axes.
// See reshard.Reconciler.WithCandidateLess.
func WithCandidateLess(less reshard.CandidateLess) Option {
	return func(c *config) { c.less = less }
}

// WithoutReturn disables the reconciliation of the returned values with the declared function results.
func WithoutReturn() Option {
	return func(c *config) { c.skipReturn = true }
}

// WithoutInteriorOps disables the reconciliation of operations other than the return.
func WithoutInteriorOps() Option {
	return func(c *config) { c.skipInteriorOps = true }
}

// WithVerify verifies the function is well-formed after it is changed.
func WithVerify() Option {
	return func(c *config) { c.verifyAfterChange = true }
}

// Run the pass on fn, using meshes to resolve the mesh names.
//
// The return operation is handled first, then every operation with a sharding rule, in order. Operations inserted
// by the pass (reshards) are not visited.
//
// An error is returned if some operation has shardings that don't match its rule, or if a contract is violated
// (e.g.: a sharding refers to a mesh that is not in meshes).
func Run(fn *ir.Function, meshes *distributed.MeshTable, options ...Option) (stats Stats, err error) {
	cfg := config{less: reshard.DefaultCandidateLess}
	for _, option := range options {
		option(&cfg)
	}
	stats.Skipped = make(map[reshard.SkipReason]int)
	err = exceptions.TryCatch[error](func() {
		// Snapshot before any reshard is inserted, so the ones added for the return aren't visited either.
		ops := fn.Ops()
		if !cfg.skipReturn {
			stats.ReshardsInserted += reconcileReturn(fn)
		}
		if cfg.skipInteriorOps {
			return
		}
		reconciler := reshard.New(meshes).WithCandidateLess(cfg.less)
		for _, op := range ops {
			if op.Kind == ir.ReturnKind {
				continue
			}
			stats.OpsVisited++
			plan, err := reconciler.Reconcile(op)
			if err != nil {
				panic(errors.WithMessagef(err, "function %q, operation %q", fn.Name, op.Kind))
			}
			if plan.Skip != reshard.NotSkipped {
				stats.Skipped[plan.Skip]++
				continue
			}
			stats.ReshardsInserted += fn.ApplyEdits(op, plan.Edits)
		}
	})
	if err != nil {
		return
	}
	if cfg.verifyAfterChange && stats.ReshardsInserted > 0 {
		err = fn.Verify()
	}
	klog.V(1).Infof("explicitreshards: function %q: %d ops visited, %d reshards inserted, skipped %v",
		fn.Name, stats.OpsVisited, stats.ReshardsInserted, stats.Skipped)
	return
}

// reconcileReturn reshards the returned values that don't match the declared function results.
func reconcileReturn(fn *ir.Function) int {
	returnOp := fn.ReturnOp()
	if returnOp == nil {
		return 0
	}
	edits := reshard.ReconcileReturn(fn.ResultShardings, returnOp.OperandShardings())
	return fn.ApplyEdits(returnOp, edits)
}
