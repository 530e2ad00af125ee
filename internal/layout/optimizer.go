package layout

import (
	"k8s.io/klog/v2"

	"github.com/born-ml/relayout/internal/graph"
)

// maxOptimizePasses bounds the fixpoint iteration. Each applied rewrite can
// expose at most a handful of new candidates, so the cap is never reached on
// well-formed graphs.
const maxOptimizePasses = 8

// Optimize pushes Transpose nodes through their consumers wherever a handler
// applies, repeating until a pass makes no progress. Returns the number of
// rewrites applied.
//
// The pass is single-threaded and owns the graph for its duration.
func Optimize(g *graph.Graph) int {
	handlers := ExtendedHandlers()
	total := 0
	for pass := 0; pass < maxOptimizePasses; pass++ {
		applied := 0
		for _, node := range g.Nodes() {
			if !g.Contains(node) || !node.IsOp("Transpose") {
				continue
			}
			if tryPush(g, handlers, node) {
				applied++
			}
		}
		klog.V(2).Infof("layout pass %d: %d rewrites", pass, applied)
		total += applied
		if applied == 0 {
			break
		}
	}
	return total
}

// tryPush attempts to push one Transpose node into its sole consumer.
func tryPush(g *graph.Graph, handlers HandlerTable, node *graph.Node) bool {
	outputs := node.Outputs()
	if len(outputs) != 1 || g.IsGraphOutput(outputs[0]) {
		return false
	}
	perm := transposePerm(g, node)
	if perm == nil || !IsValidPerm(perm) {
		return false
	}

	consumers := g.Consumers(outputs[0])
	if len(consumers) != 1 {
		return false
	}
	consumer := consumers[0]
	entry, ok := handlers[graph.QualifiedOpType(consumer)]
	if !ok {
		return false
	}

	if BackendCostCheck(g, consumer, perm, nil) == FallThrough && !worthPushing(perm) {
		return false
	}

	args := &HandlerArgs{
		Ctx:     &Context{Graph: g},
		Backend: consumer.Backend(),
		Node:    consumer,
		Perm:    perm,
		PermInv: InvertPerm(perm),
	}
	if !entry.Transform(args) {
		return false
	}
	removeIfDangling(g, node)
	return true
}

// worthPushing is the default heuristic applied when the cost oracle falls
// through: layout-conversion permutations are the profitable case.
func worthPushing(perm []int64) bool {
	if len(perm) < 2 {
		return false
	}
	p := ChannelLastToFirstPerm(len(perm))
	return EqualPerm(perm, p) || EqualPerm(InvertPerm(perm), p)
}

// transposePerm returns the permutation of a Transpose node. When the perm
// attribute is absent, ONNX specifies reversing the input dimensions.
func transposePerm(g *graph.Graph, node *graph.Node) []int64 {
	if perm := node.GetAttrInts("perm"); perm != nil {
		return perm
	}
	rank, ok := g.Rank(node.Input(0))
	if !ok {
		return nil
	}
	perm := make([]int64, rank)
	for i := range perm {
		perm[i] = int64(rank - 1 - i)
	}
	return perm
}

// removeIfDangling drops a node whose outputs are no longer consumed.
func removeIfDangling(g *graph.Graph, node *graph.Node) {
	if !g.Contains(node) {
		return
	}
	for _, out := range node.Outputs() {
		if out == "" {
			continue
		}
		if g.IsGraphOutput(out) || len(g.Consumers(out)) > 0 {
			return
		}
	}
	g.RemoveNode(node)
}
