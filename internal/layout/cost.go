package layout

import (
	"github.com/born-ml/relayout/internal/backend"
	"github.com/born-ml/relayout/internal/graph"
	"github.com/born-ml/relayout/internal/onnx"
)

// CostCheckResult is the cost oracle's verdict on pushing a transpose
// through a node.
type CostCheckResult int

const (
	// PushTranspose forces the push regardless of the generic cost model.
	// Legality stays with the per-operator handler.
	PushTranspose CostCheckResult = iota
	// FallThrough defers to the generic, backend-agnostic cost heuristic.
	FallThrough
)

func (r CostCheckResult) String() string {
	switch r {
	case PushTranspose:
		return "PushTranspose"
	case FallThrough:
		return "FallThrough"
	default:
		return "Unknown"
	}
}

// BackendCostCheck special cases kernels based on execution provider
// implementation details. The perm and outputsLeadingToTranspose arguments
// are part of the oracle contract but unused by the current rules.
func BackendCostCheck(g *graph.Graph, node *graph.Node, _ []int64, _ map[string]bool) CostCheckResult {
	if node.Backend() == backend.CPUExecutionProvider {
		if node.IsOp("MaxPool") {
			// MaxPool has higher perf in the NHWC variant when supported.
			// handleMaxPool does the support checks.
			return PushTranspose
		}

		if node.IsOp("Resize") {
			// Resize has higher perf in the NHWC variant when the input is a
			// 4D 8-bit tensor and the mode is linear.
			shape, hasShape := g.Shape(node.Input(0))
			dtype, hasType := g.DType(node.Input(0))
			mode := node.GetAttrString("mode", "")
			if hasShape && len(shape) == 4 && hasType &&
				(dtype == onnx.TensorProtoUint8 || dtype == onnx.TensorProtoInt8) &&
				mode == "linear" {
				return PushTranspose
			}
		}
	}

	return FallThrough
}
