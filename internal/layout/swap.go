package layout

import (
	"github.com/born-ml/relayout/internal/graph"
)

// swapNode replaces a node with a structural copy under a new operator
// identity. Every bound output binding moves to the same slot index on the
// copy; unbound optional slots stay unbound. The original node is removed
// exactly once, and at no point is an output bound to both nodes.
//
// The copy has the same output arity as the original. Callers must only
// swap to operator signatures with compatible slot counts; this is not
// validated here, and violating it leaves the graph in an undefined state.
func swapNode(g *graph.Graph, node *graph.Node, opType, domain string, sinceVersion int64) *graph.Node {
	outputs := node.Outputs()
	newNode := g.CopyNode(node, opType, domain, sinceVersion)

	for j := range outputs {
		if outputs[j] != "" {
			g.MoveOutput(node, j, newNode, j)
		}
	}
	g.RemoveNode(node)
	return newNode
}

// SwapNodeOpTypeAndDomain replaces node with an equivalent node of the given
// operator type and domain.
func SwapNodeOpTypeAndDomain(g *graph.Graph, node *graph.Node, opType, domain string) *graph.Node {
	return swapNode(g, node, opType, domain, 0)
}

// SwapNodeOpTypeDomainAndSinceVersion replaces node with an equivalent node
// of the given operator type and domain, registering the domain's opset
// version when it is not imported yet.
func SwapNodeOpTypeDomainAndSinceVersion(g *graph.Graph, node *graph.Node, opType, domain string, sinceVersion int64) *graph.Node {
	return swapNode(g, node, opType, domain, sinceVersion)
}
