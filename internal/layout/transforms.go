package layout

import (
	"sort"

	"github.com/born-ml/relayout/internal/graph"
	"github.com/born-ml/relayout/internal/onnx"
)

// The transforms in this file are the generic, backend-agnostic layer:
// they know how to physically relocate a transpose around a node, while the
// per-operator rules in rules.go decide whether doing so is legal.

// FirstInput selects input slot 0 as the only layout-sensitive input.
func FirstInput(_ *Context, _ *graph.Node) []int {
	return []int{0}
}

// QLinearBinaryOpInputs selects the two data operands of a quantized binary
// operator. Inputs are [A, A_scale, A_zero_point, B, B_scale, B_zero_point,
// C_scale, C_zero_point]; we want [A, B].
func QLinearBinaryOpInputs(_ *Context, _ *graph.Node) []int {
	return []int{0, 3}
}

// QLinearConcatInputs selects the data member of every [data, scale,
// zero_point] triple, starting at offset 2.
func QLinearConcatInputs(_ *Context, node *graph.Node) []int {
	var indices []int
	numInputs := len(node.Inputs())
	for i := 2; i < numInputs; i += 3 {
		indices = append(indices, i)
	}
	return indices
}

// permuteDims returns dims reordered so that out[i] = dims[perm[i]].
func permuteDims(dims []onnx.DimensionProto, perm []int64) []onnx.DimensionProto {
	out := make([]onnx.DimensionProto, len(perm))
	for i, p := range perm {
		out[i] = dims[p]
	}
	return out
}

// transposeProto builds a Transpose node proto.
func transposeProto(input, output string, perm []int64) *onnx.NodeProto {
	permCopy := make([]int64, len(perm))
	copy(permCopy, perm)
	return &onnx.NodeProto{
		OpType:  "Transpose",
		Inputs:  []string{input},
		Outputs: []string{output},
		Attributes: []onnx.AttributeProto{
			{Name: "perm", Type: onnx.AttributeProtoInts, Ints: permCopy},
		},
	}
}

// transposeInput applies an additional transpose by perm to the value bound
// to the given input slot of args.Node.
//
// When the value is itself produced by a Transpose consumed only here, the
// permutations are composed in place; an identity composition eliminates
// the producer entirely. Otherwise a new Transpose node is inserted.
func transposeInput(args *HandlerArgs, slot int, perm []int64) {
	g := args.Ctx.Graph
	value := args.Node.Input(slot)

	if producer := g.Producer(value); producer != nil && producer.IsOp("Transpose") {
		soleConsumer := len(g.Consumers(value)) == 1 && !g.IsGraphOutput(value)
		if prodPerm := producer.GetAttrInts("perm"); soleConsumer && IsValidPerm(prodPerm) && len(prodPerm) == len(perm) {
			combined := ComposePerms(prodPerm, perm)
			source := producer.Input(0)
			if IsIdentityPerm(combined) {
				args.Node.SetInput(slot, source)
				g.RemoveNode(producer)
				return
			}
			producer.SetAttrInts("perm", combined)
			if dims, ok := g.ValueDims(source); ok && len(dims) == len(combined) {
				g.SetValueDims(value, permuteDims(dims, combined))
			} else {
				// The recorded shape reflects the old perm; drop it rather
				// than let later passes read a stale layout.
				g.SetValueDims(value, nil)
			}
			return
		}
	}

	fresh := g.UniqueValueName(value + "_t")
	g.InsertBefore(args.Node, transposeProto(value, fresh, perm))
	if dtype, ok := g.DType(value); ok {
		if dims, ok := g.ValueDims(value); ok && len(dims) == len(perm) {
			g.AddShapedValue(fresh, dtype, permuteDims(dims, perm))
		} else {
			g.AddShapedValue(fresh, dtype, nil)
		}
	}
	args.Node.SetInput(slot, fresh)
}

// TransposeFirstInput applies a transpose by perm to input slot 0.
func TransposeFirstInput(args *HandlerArgs, perm []int64) {
	transposeInput(args, 0, perm)
}

// TransposeOutputs inserts a transpose by perm after every bound output of
// args.Node. Downstream consumers keep reading the original value names;
// the node's own outputs are renamed to fresh internal values.
func TransposeOutputs(args *HandlerArgs, perm []int64) {
	g := args.Ctx.Graph
	node := args.Node
	permInv := InvertPerm(perm)
	for i, out := range node.Outputs() {
		if out == "" {
			continue
		}
		fresh := g.UniqueValueName(out + "_t")
		node.SetOutput(i, fresh)
		g.InsertAfter(node, transposeProto(fresh, out, perm))
		if dtype, ok := g.DType(out); ok {
			if dims, ok := g.ValueDims(out); ok && len(dims) == len(perm) {
				g.AddShapedValue(fresh, dtype, permuteDims(dims, permInv))
			} else {
				g.AddShapedValue(fresh, dtype, nil)
			}
		}
	}
}

// HandleSimpleNode pushes the pending transpose through a node whose
// selected inputs all share the data layout: the selected inputs are
// transposed by the inverse permutation (cancelling the adjacent transpose
// where one is present) and every output is transposed by the forward
// permutation.
func HandleSimpleNode(args *HandlerArgs) bool {
	return handleSimpleNodeSelected(args, selectedInputs(args))
}

func selectedInputs(args *HandlerArgs) []int {
	entry, ok := ExtendedHandlers()[graph.QualifiedOpType(args.Node)]
	if !ok || entry.SelectInputs == nil {
		return []int{0}
	}
	return entry.SelectInputs(args.Ctx, args.Node)
}

func handleSimpleNodeSelected(args *HandlerArgs, slots []int) bool {
	for _, slot := range slots {
		transposeInput(args, slot, args.PermInv)
	}
	TransposeOutputs(args, args.Perm)
	return true
}

// HandleSimpleNodeBroadcast pushes the pending transpose through a
// broadcasting node. Lower-rank selected inputs are unsqueezed to full rank
// before being transposed so that broadcast alignment survives the layout
// change. Refuses (without mutation) when a selected input's rank is
// unknown.
func HandleSimpleNodeBroadcast(args *HandlerArgs) bool {
	g := args.Ctx.Graph
	rank := len(args.Perm)
	slots := selectedInputs(args)

	// Validate every selected input before touching the graph.
	ranks := make(map[int]int, len(slots))
	for _, slot := range slots {
		value := args.Node.Input(slot)
		r, ok := g.Rank(value)
		if !ok || r > rank {
			return false
		}
		ranks[slot] = r
	}

	for _, slot := range slots {
		r := ranks[slot]
		if r < rank {
			unsqueezeInput(args, slot, rank-r)
		}
		transposeInput(args, slot, args.PermInv)
	}
	TransposeOutputs(args, args.Perm)
	return true
}

// unsqueezeInput lifts the value bound to the given input slot to a higher
// rank by prepending `count` axes of extent one.
func unsqueezeInput(args *HandlerArgs, slot, count int) {
	g := args.Ctx.Graph
	value := args.Node.Input(slot)
	axes := make([]int64, count)
	for i := range axes {
		axes[i] = int64(i)
	}

	fresh := g.UniqueValueName(value + "_u")
	proto := &onnx.NodeProto{
		OpType:  "Unsqueeze",
		Inputs:  []string{value},
		Outputs: []string{fresh},
	}
	if g.OpsetVersion() >= 13 {
		// Unsqueeze takes axes as an input from opset 13.
		axesName := g.UniqueValueName(value + "_u_axes")
		g.AddInitializer(onnx.TensorProto{
			Name:      axesName,
			DataType:  onnx.TensorProtoInt64,
			Dims:      []int64{int64(count)},
			Int64Data: axes,
		})
		proto.Inputs = append(proto.Inputs, axesName)
	} else {
		proto.Attributes = []onnx.AttributeProto{
			{Name: "axes", Type: onnx.AttributeProtoInts, Ints: axes},
		}
	}
	g.InsertBefore(args.Node, proto)

	if dtype, ok := g.DType(value); ok {
		if dims, ok := g.ValueDims(value); ok {
			lifted := make([]onnx.DimensionProto, 0, count+len(dims))
			for i := 0; i < count; i++ {
				lifted = append(lifted, onnx.DimensionProto{DimValue: 1})
			}
			lifted = append(lifted, dims...)
			g.AddShapedValue(fresh, dtype, lifted)
		} else {
			g.AddShapedValue(fresh, dtype, nil)
		}
	}
	args.Node.SetInput(slot, fresh)
}

// HandleSimpleNodeWithAxis pushes the pending transpose through a node with
// an integer "axis" attribute, remapping the axis through the permutation.
func HandleSimpleNodeWithAxis(args *HandlerArgs) bool {
	if !args.Node.HasAttr("axis") {
		return false
	}
	rank := int64(len(args.Perm))
	axis := args.Node.GetAttrInt("axis", 0)
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		return false
	}

	if !handleSimpleNodeSelected(args, selectedInputs(args)) {
		return false
	}
	args.Node.SetAttrInt("axis", args.Perm[axis])
	return true
}

// HandleReduceOps pushes the pending transpose through a reduction node,
// remapping its "axes" attribute through the permutation. Reductions that
// drop dimensions (keepdims=0) change output rank and are not handled.
func HandleReduceOps(args *HandlerArgs) bool {
	if args.Node.GetAttrInt("keepdims", 1) == 0 {
		return false
	}
	rank := int64(len(args.Perm))
	axes := args.Node.GetAttrInts("axes")
	remapped := make([]int64, len(axes))
	for i, a := range axes {
		if a < 0 {
			a += rank
		}
		if a < 0 || a >= rank {
			return false
		}
		remapped[i] = args.Perm[a]
	}
	sort.Slice(remapped, func(i, j int) bool { return remapped[i] < remapped[j] })

	TransposeFirstInput(args, args.PermInv)
	if len(remapped) > 0 {
		args.Node.SetAttrInts("axes", remapped)
	}
	TransposeOutputs(args, args.Perm)
	return true
}

// HandleResize pushes the pending transpose through a Resize node. The roi,
// scales, and sizes inputs are expressed per-axis, so their constant values
// are reordered to match; a Resize whose auxiliary inputs are not
// initializers (or are shared and cannot be repermuted) is refused without
// mutation.
func HandleResize(args *HandlerArgs) bool {
	g := args.Ctx.Graph
	inputs := args.Node.Inputs()

	// Auxiliary inputs: roi carries [starts..., ends...] (two groups),
	// scales and sizes carry one value per axis.
	type auxEdit struct {
		slot   int
		groups int
		tensor *onnx.TensorProto
	}
	var edits []auxEdit
	for _, aux := range []auxEdit{{slot: 1, groups: 2}, {slot: 2, groups: 1}, {slot: 3, groups: 1}} {
		slot, groups := aux.slot, aux.groups
		if slot >= len(inputs) || inputs[slot] == "" {
			continue
		}
		t, ok := g.Initializer(inputs[slot])
		if !ok {
			return false
		}
		if !canPermuteTensorValues(t, len(args.Perm), groups) {
			return false
		}
		edits = append(edits, auxEdit{slot: slot, groups: groups, tensor: t})
	}

	TransposeFirstInput(args, args.PermInv)
	for _, edit := range edits {
		permuted := permuteTensorValues(edit.tensor, args.PermInv, edit.groups)
		permuted.Name = g.UniqueValueName(edit.tensor.Name + "_t")
		g.AddInitializer(permuted)
		args.Node.SetInput(edit.slot, permuted.Name)
	}
	TransposeOutputs(args, args.Perm)
	return true
}

// canPermuteTensorValues reports whether the tensor holds groups*rank
// fixed-size elements in a representation permuteTensorValues understands.
func canPermuteTensorValues(t *onnx.TensorProto, rank, groups int) bool {
	want := rank * groups
	switch {
	case len(t.FloatData) > 0:
		return len(t.FloatData) == want
	case len(t.Int64Data) > 0:
		return len(t.Int64Data) == want
	case len(t.RawData) > 0:
		size := elementSize(t.DataType)
		return size > 0 && len(t.RawData) == want*size
	default:
		return false
	}
}

// permuteTensorValues returns a copy of the tensor with each group of
// per-axis values reordered by perm.
func permuteTensorValues(t *onnx.TensorProto, perm []int64, groups int) onnx.TensorProto {
	rank := len(perm)
	out := onnx.TensorProto{
		Name:     t.Name,
		DataType: t.DataType,
		Dims:     append([]int64(nil), t.Dims...),
	}
	switch {
	case len(t.FloatData) > 0:
		out.FloatData = make([]float32, len(t.FloatData))
		for grp := 0; grp < groups; grp++ {
			for i, p := range perm {
				out.FloatData[grp*rank+i] = t.FloatData[grp*rank+int(p)]
			}
		}
	case len(t.Int64Data) > 0:
		out.Int64Data = make([]int64, len(t.Int64Data))
		for grp := 0; grp < groups; grp++ {
			for i, p := range perm {
				out.Int64Data[grp*rank+i] = t.Int64Data[grp*rank+int(p)]
			}
		}
	default:
		size := elementSize(t.DataType)
		out.RawData = make([]byte, len(t.RawData))
		for grp := 0; grp < groups; grp++ {
			for i, p := range perm {
				dst := (grp*rank + i) * size
				src := (grp*rank + int(p)) * size
				copy(out.RawData[dst:dst+size], t.RawData[src:src+size])
			}
		}
	}
	return out
}

// elementSize returns the byte size of a fixed-width ONNX element type,
// or 0 for variable-width and unknown types.
func elementSize(dtype int32) int {
	switch dtype {
	case onnx.TensorProtoUint8, onnx.TensorProtoInt8, onnx.TensorProtoBool:
		return 1
	case onnx.TensorProtoUint16, onnx.TensorProtoInt16, onnx.TensorProtoFloat16:
		return 2
	case onnx.TensorProtoFloat, onnx.TensorProtoInt32, onnx.TensorProtoUint32:
		return 4
	case onnx.TensorProtoDouble, onnx.TensorProtoInt64, onnx.TensorProtoUint64:
		return 8
	default:
		return 0
	}
}
