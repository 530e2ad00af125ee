// Copyright 2026 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package layout provides the public API for ONNX graph layout optimization.
//
// The optimizer pushes Transpose nodes through the operators that consume
// them so that each node runs in the memory layout its execution provider
// prefers, with as few physical reorderings as possible.
//
// Example:
//
//	g, err := layout.Load("model.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	layout.AssignBackend(g, layout.CPUExecutionProvider)
//	n := layout.Optimize(g)
//	fmt.Printf("applied %d rewrites\n", n)
//	if err := layout.Save(g, "model.opt.onnx"); err != nil {
//	    log.Fatal(err)
//	}
package layout

import (
	"github.com/born-ml/relayout/internal/backend"
	"github.com/born-ml/relayout/internal/graph"
	internal "github.com/born-ml/relayout/internal/layout"
	"github.com/born-ml/relayout/internal/onnx"
)

// Graph is a mutable view over an ONNX model graph.
type Graph = graph.Graph

// Node is a handle to one operation in a Graph.
type Node = graph.Node

// HandlerTable maps qualified operator types to their rewrite handlers.
type HandlerTable = internal.HandlerTable

// HandlerEntry pairs an input selector with its transform.
type HandlerEntry = internal.HandlerEntry

// HandlerArgs bundles the inputs to one transform invocation.
type HandlerArgs = internal.HandlerArgs

// CostCheckResult is the cost oracle's verdict on pushing a transpose.
type CostCheckResult = internal.CostCheckResult

// Cost oracle verdicts.
const (
	PushTranspose = internal.PushTranspose
	FallThrough   = internal.FallThrough
)

// Execution provider identifiers.
const (
	CPUExecutionProvider             = backend.CPUExecutionProvider
	WebGPUExecutionProvider          = backend.WebGPUExecutionProvider
	InternalTestingExecutionProvider = backend.InternalTestingExecutionProvider
)

// Load parses an ONNX model file into a mutable graph view.
func Load(path string) (*Graph, error) {
	model, err := onnx.ParseFile(path)
	if err != nil {
		return nil, err
	}
	return graph.New(model)
}

// Save writes the graph back to an ONNX model file.
func Save(g *Graph, path string) error {
	return onnx.WriteFile(g.Proto(), path)
}

// AvailableBackends returns the execution providers usable on this machine.
func AvailableBackends() []string {
	return backend.Available()
}

// AssignBackend places every unassigned node on the given provider and
// returns the number of nodes assigned.
func AssignBackend(g *Graph, provider string) int {
	return backend.Assign(g, provider)
}

// Optimize runs the transpose-pushing pass to fixpoint and returns the
// number of rewrites applied.
func Optimize(g *Graph) int {
	return internal.Optimize(g)
}

// Handlers returns the base handler table.
func Handlers() HandlerTable {
	return internal.Handlers()
}

// ExtendedHandlers returns the extended handler table. It contains every
// base entry; extended entries win on collision.
func ExtendedHandlers() HandlerTable {
	return internal.ExtendedHandlers()
}

// BackendCostCheck is the backend-specific cost oracle consulted before the
// generic cost heuristic.
func BackendCostCheck(g *Graph, node *Node, perm []int64, outputsLeadingToTranspose map[string]bool) CostCheckResult {
	return internal.BackendCostCheck(g, node, perm, outputsLeadingToTranspose)
}

// ChannelLastToFirstPerm returns the canonical channel-last to channel-first
// permutation for the given rank.
func ChannelLastToFirstPerm(rank int) []int64 {
	return internal.ChannelLastToFirstPerm(rank)
}
