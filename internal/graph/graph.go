package graph

import (
	"fmt"
	"strconv"

	"github.com/born-ml/relayout/internal/onnx"
)

// valueInfo caches the element type and shape known for a value name.
type valueInfo struct {
	elemType int32
	dims     []onnx.DimensionProto
	hasType  bool
	hasShape bool
}

// Graph is the mutable view over an ONNX model graph.
type Graph struct {
	model *onnx.ModelProto
	nodes []*Node

	values    map[string]*valueInfo
	inits     map[string]*onnx.TensorProto
	initOrder []string
	outputs   map[string]bool // graph output names

	nameSeq int
}

// New builds a mutable view over the given model's graph.
func New(model *onnx.ModelProto) (*Graph, error) {
	if model == nil || model.Graph == nil {
		return nil, fmt.Errorf("model has no graph")
	}
	gp := model.Graph
	g := &Graph{
		model:   model,
		values:  make(map[string]*valueInfo),
		inits:   make(map[string]*onnx.TensorProto),
		outputs: make(map[string]bool),
	}
	for _, vis := range [][]onnx.ValueInfoProto{gp.Inputs, gp.Outputs, gp.ValueInfo} {
		for i := range vis {
			g.indexValueInfo(&vis[i])
		}
	}
	for i := range gp.Outputs {
		g.outputs[gp.Outputs[i].Name] = true
	}
	for i := range gp.Initializers {
		t := gp.Initializers[i]
		g.inits[t.Name] = &t
		g.initOrder = append(g.initOrder, t.Name)
	}
	g.nodes = make([]*Node, 0, len(gp.Nodes))
	for _, np := range gp.Nodes {
		g.nodes = append(g.nodes, &Node{proto: np})
	}
	return g, nil
}

func (g *Graph) indexValueInfo(vi *onnx.ValueInfoProto) {
	info := &valueInfo{}
	if tt := tensorTypeOf(vi); tt != nil {
		info.elemType = tt.ElemType
		info.hasType = tt.ElemType != onnx.TensorProtoUndefined
		if tt.Shape != nil {
			info.dims = append(info.dims, tt.Shape.Dims...)
			info.hasShape = true
		}
	}
	g.values[vi.Name] = info
}

func tensorTypeOf(vi *onnx.ValueInfoProto) *onnx.TensorTypeProto {
	if vi.Type == nil {
		return nil
	}
	return vi.Type.TensorType
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.model.Graph.Name }

// Nodes returns a snapshot of the current node list in graph order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// NumNodes returns the number of nodes currently in the graph.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// Shape returns the shape known for a value name. Dynamic dimensions are
// reported as -1. The second result is false when no shape is recorded.
func (g *Graph) Shape(name string) ([]int64, bool) {
	if t, ok := g.inits[name]; ok {
		dims := make([]int64, len(t.Dims))
		copy(dims, t.Dims)
		return dims, true
	}
	info, ok := g.values[name]
	if !ok || !info.hasShape {
		return nil, false
	}
	dims := make([]int64, len(info.dims))
	for i, d := range info.dims {
		if d.DimParam != "" {
			dims[i] = -1
		} else {
			dims[i] = d.DimValue
		}
	}
	return dims, true
}

// Rank returns the rank known for a value name.
func (g *Graph) Rank(name string) (int, bool) {
	shape, ok := g.Shape(name)
	if !ok {
		return 0, false
	}
	return len(shape), true
}

// DType returns the element type known for a value name.
func (g *Graph) DType(name string) (int32, bool) {
	if t, ok := g.inits[name]; ok {
		return t.DataType, true
	}
	info, ok := g.values[name]
	if !ok || !info.hasType {
		return onnx.TensorProtoUndefined, false
	}
	return info.elemType, true
}

// Initializer returns the initializer tensor for a value name, if any.
func (g *Graph) Initializer(name string) (*onnx.TensorProto, bool) {
	t, ok := g.inits[name]
	return t, ok
}

// AddInitializer registers a new initializer tensor. The tensor name must
// not collide with an existing value.
func (g *Graph) AddInitializer(t onnx.TensorProto) {
	g.inits[t.Name] = &t
	g.initOrder = append(g.initOrder, t.Name)
}

// OpsetVersion returns the model's default-domain opset version, or 0 if
// none is declared.
func (g *Graph) OpsetVersion() int64 {
	for _, opset := range g.model.OpsetImport {
		if opset.Domain == "" || opset.Domain == "ai.onnx" {
			return opset.Version
		}
	}
	return 0
}

// IsGraphOutput reports whether the value name is a graph output.
func (g *Graph) IsGraphOutput(name string) bool { return g.outputs[name] }

// Producer returns the node producing the given value, or nil.
func (g *Graph) Producer(name string) *Node {
	if name == "" {
		return nil
	}
	for _, n := range g.nodes {
		for _, out := range n.proto.Outputs {
			if out == name {
				return n
			}
		}
	}
	return nil
}

// Consumers returns the nodes reading the given value, in graph order.
// A node consuming the value through several slots appears once.
func (g *Graph) Consumers(name string) []*Node {
	if name == "" {
		return nil
	}
	var out []*Node
	for _, n := range g.nodes {
		for _, in := range n.proto.Inputs {
			if in == name {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

// UniqueValueName returns a value name derived from base that is not used by
// any value, node output, or initializer in the graph.
func (g *Graph) UniqueValueName(base string) string {
	for {
		g.nameSeq++
		name := base + "_" + strconv.Itoa(g.nameSeq)
		if !g.nameInUse(name) {
			return name
		}
	}
}

func (g *Graph) nameInUse(name string) bool {
	if _, ok := g.values[name]; ok {
		return true
	}
	if _, ok := g.inits[name]; ok {
		return true
	}
	for _, n := range g.nodes {
		for _, out := range n.proto.Outputs {
			if out == name {
				return true
			}
		}
	}
	return false
}

// ValueDims returns the raw dimension entries recorded for a value name.
// Unlike Shape, dynamic dimensions keep their symbolic names.
func (g *Graph) ValueDims(name string) ([]onnx.DimensionProto, bool) {
	if t, ok := g.inits[name]; ok {
		dims := make([]onnx.DimensionProto, len(t.Dims))
		for i, d := range t.Dims {
			dims[i] = onnx.DimensionProto{DimValue: d}
		}
		return dims, true
	}
	info, ok := g.values[name]
	if !ok || !info.hasShape {
		return nil, false
	}
	dims := make([]onnx.DimensionProto, len(info.dims))
	copy(dims, info.dims)
	return dims, true
}

// AddShapedValue records element type and shape for a new intermediate value.
func (g *Graph) AddShapedValue(name string, elemType int32, dims []onnx.DimensionProto) {
	g.values[name] = &valueInfo{
		elemType: elemType,
		dims:     dims,
		hasType:  elemType != onnx.TensorProtoUndefined,
		hasShape: dims != nil,
	}
}

// SetValueDims replaces the shape recorded for an existing value.
func (g *Graph) SetValueDims(name string, dims []onnx.DimensionProto) {
	info, ok := g.values[name]
	if !ok {
		info = &valueInfo{}
		g.values[name] = info
	}
	info.dims = dims
	info.hasShape = dims != nil
}

// Contains reports whether the node is still part of the graph.
func (g *Graph) Contains(n *Node) bool { return g.indexOf(n) >= 0 }

func (g *Graph) indexOf(n *Node) int {
	for i, cand := range g.nodes {
		if cand == n {
			return i
		}
	}
	return -1
}

// InsertBefore adds a new node immediately before ref in graph order.
func (g *Graph) InsertBefore(ref *Node, proto *onnx.NodeProto) *Node {
	return g.insertAt(g.indexOf(ref), proto)
}

// InsertAfter adds a new node immediately after ref in graph order.
func (g *Graph) InsertAfter(ref *Node, proto *onnx.NodeProto) *Node {
	return g.insertAt(g.indexOf(ref)+1, proto)
}

// AddNode appends a new node at the end of the graph.
func (g *Graph) AddNode(proto *onnx.NodeProto) *Node {
	return g.insertAt(len(g.nodes), proto)
}

func (g *Graph) insertAt(idx int, proto *onnx.NodeProto) *Node {
	if idx < 0 {
		idx = len(g.nodes)
	}
	n := &Node{proto: proto}
	g.nodes = append(g.nodes, nil)
	copy(g.nodes[idx+1:], g.nodes[idx:])
	g.nodes[idx] = n
	return n
}

// CopyNode creates a structural copy of the given node under a new operator
// type and domain, placed at the same position in graph order. The copy
// carries the same inputs and attributes; its output slots have the same
// arity but start unbound. A sinceVersion > 0 registers an opset import for
// the new domain if one is not present.
func (g *Graph) CopyNode(n *Node, opType, domain string, sinceVersion int64) *Node {
	attrs := make([]onnx.AttributeProto, len(n.proto.Attributes))
	copy(attrs, n.proto.Attributes)
	inputs := make([]string, len(n.proto.Inputs))
	copy(inputs, n.proto.Inputs)
	proto := &onnx.NodeProto{
		Name:       n.proto.Name,
		OpType:     opType,
		Domain:     domain,
		Inputs:     inputs,
		Outputs:    make([]string, len(n.proto.Outputs)),
		Attributes: attrs,
	}
	if sinceVersion > 0 {
		g.ensureOpset(domain, sinceVersion)
	}
	return g.InsertBefore(n, proto)
}

func (g *Graph) ensureOpset(domain string, version int64) {
	for _, opset := range g.model.OpsetImport {
		if opset.Domain == domain {
			return
		}
	}
	g.model.OpsetImport = append(g.model.OpsetImport, onnx.OperatorSetID{
		Domain:  domain,
		Version: version,
	})
}

// MoveOutput transfers the output binding of src slot i to dst slot j.
// The src slot is left unbound. Consumers are untouched since they reference
// the value by name.
func (g *Graph) MoveOutput(src *Node, i int, dst *Node, j int) {
	dst.proto.Outputs[j] = src.proto.Outputs[i]
	src.proto.Outputs[i] = ""
}

// RemoveNode removes the node from the graph. The caller must have rewired
// or abandoned its outputs beforehand.
func (g *Graph) RemoveNode(n *Node) {
	idx := g.indexOf(n)
	if idx < 0 {
		return
	}
	g.nodes = append(g.nodes[:idx], g.nodes[idx+1:]...)
}

// QualifiedOpType returns the handler-table key for a node: the bare
// operator type for the default domain, "domain.OpType" otherwise.
func QualifiedOpType(n *Node) string {
	if n.proto.Domain == "" || n.proto.Domain == "ai.onnx" {
		return n.proto.OpType
	}
	return n.proto.Domain + "." + n.proto.OpType
}

// Proto writes the current node order and value metadata back into the
// underlying model and returns it.
func (g *Graph) Proto() *onnx.ModelProto {
	gp := g.model.Graph
	gp.Nodes = make([]*onnx.NodeProto, len(g.nodes))
	for i, n := range g.nodes {
		gp.Nodes[i] = n.proto
	}

	gp.Initializers = make([]onnx.TensorProto, 0, len(g.initOrder))
	for _, name := range g.initOrder {
		if t, ok := g.inits[name]; ok {
			gp.Initializers = append(gp.Initializers, *t)
		}
	}

	// Rebuild intermediate value infos from the tracked metadata. Graph
	// inputs and outputs keep their original entries.
	skip := make(map[string]bool, len(gp.Inputs)+len(gp.Outputs))
	for i := range gp.Inputs {
		skip[gp.Inputs[i].Name] = true
	}
	for i := range gp.Outputs {
		skip[gp.Outputs[i].Name] = true
	}
	var infos []onnx.ValueInfoProto
	for _, n := range g.nodes {
		for _, out := range n.proto.Outputs {
			if out == "" || skip[out] {
				continue
			}
			info, ok := g.values[out]
			if !ok {
				continue
			}
			skip[out] = true
			infos = append(infos, makeValueInfo(out, info))
		}
	}
	gp.ValueInfo = infos
	return g.model
}

func makeValueInfo(name string, info *valueInfo) onnx.ValueInfoProto {
	vi := onnx.ValueInfoProto{Name: name}
	if !info.hasType && !info.hasShape {
		return vi
	}
	tt := &onnx.TensorTypeProto{ElemType: info.elemType}
	if info.hasShape {
		tt.Shape = &onnx.TensorShapeProto{Dims: info.dims}
	}
	vi.Type = &onnx.TypeProto{TensorType: tt}
	return vi
}
