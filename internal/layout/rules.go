package layout

import (
	"github.com/born-ml/relayout/internal/backend"
	"github.com/born-ml/relayout/internal/onnx"
)

// handleResizeBackendAware pushes a transpose through a Resize only once the
// node has been assigned to an execution provider whose Resize kernel
// handles both layouts. Resize itself is not layout sensitive, but some
// providers implement it for a single fixed layout, so the decision cannot
// be made before placement.
func handleResizeBackendAware(args *HandlerArgs) bool {
	layoutSensitive := LayoutSensitiveResizeBackends()
	if args.Backend == "" || layoutSensitive[args.Backend] {
		return false
	}
	return HandleResize(args)
}

func handleQLinearConcat(args *HandlerArgs) bool {
	return HandleSimpleNodeWithAxis(args)
}

func handleQLinearBinaryOp(args *HandlerArgs) bool {
	return HandleSimpleNodeBroadcast(args)
}

// handleQLinearPoolOp swaps a quantized pooling operator between its
// channel-first and channel-last forms via the channels_last attribute.
// Only works for the canonical layout permutation.
func handleQLinearPoolOp(args *HandlerArgs) bool {
	channelsLast := args.Node.GetAttrInt("channels_last", 0)
	rank := len(args.Perm)
	if rank < 2 {
		return false
	}
	p := ChannelLastToFirstPerm(rank)
	if (channelsLast == 0 && EqualPerm(args.Perm, p)) || (channelsLast != 0 && EqualPerm(args.PermInv, p)) {
		args.Node.SetAttrInt("channels_last", 1-channelsLast)
		TransposeFirstInput(args, args.PermInv)
		TransposeOutputs(args, args.Perm)
		return true
	}
	return false
}

// handleMaxPool replaces an 8-bit MaxPool on the CPU provider with the
// layout-fixed NhwcMaxPool contrib kernel, which outperforms the generic
// one. The optional indices output must not be requested: NhwcMaxPool does
// not produce it.
func handleMaxPool(args *HandlerArgs) bool {
	if args.Backend != backend.CPUExecutionProvider {
		return false
	}

	outputs := args.Node.Outputs()
	if len(outputs) == 2 && outputs[1] != "" {
		// Can't optimize if the optional "indices" output is provided.
		return false
	}

	dtype, ok := args.Ctx.Graph.DType(outputs[0])
	if !ok || (dtype != onnx.TensorProtoUint8 && dtype != onnx.TensorProtoInt8) {
		return false
	}

	rank := len(args.Perm)
	if !EqualPerm(args.Perm, ChannelLastToFirstPerm(rank)) {
		return false
	}

	newNode := SwapNodeOpTypeDomainAndSinceVersion(args.Ctx.Graph, args.Node, "NhwcMaxPool", "com.microsoft", 1)
	newNode.ClearAttr("storage_order") // Only relevant for the indices output. Prohibited for NhwcMaxPool.

	swapped := *args
	swapped.Node = newNode
	TransposeFirstInput(&swapped, args.PermInv)
	TransposeOutputs(&swapped, args.Perm)
	return true
}
