package graph

import (
	"testing"

	"github.com/born-ml/relayout/internal/onnx"
)

func addModel() *onnx.ModelProto {
	return &onnx.ModelProto{
		IRVersion:   8,
		OpsetImport: []onnx.OperatorSetID{{Version: 13}},
		Graph: &onnx.GraphProto{
			Name: "add",
			Nodes: []*onnx.NodeProto{
				{
					Name:    "add0",
					OpType:  "Add",
					Inputs:  []string{"x", "w"},
					Outputs: []string{"s"},
				},
				{
					Name:    "relu0",
					OpType:  "Relu",
					Inputs:  []string{"s"},
					Outputs: []string{"y"},
				},
			},
			Inputs: []onnx.ValueInfoProto{{
				Name: "x",
				Type: &onnx.TypeProto{TensorType: &onnx.TensorTypeProto{
					ElemType: onnx.TensorProtoFloat,
					Shape: &onnx.TensorShapeProto{Dims: []onnx.DimensionProto{
						{DimParam: "batch"}, {DimValue: 4},
					}},
				}},
			}},
			Outputs: []onnx.ValueInfoProto{{
				Name: "y",
				Type: &onnx.TypeProto{TensorType: &onnx.TensorTypeProto{
					ElemType: onnx.TensorProtoFloat,
					Shape: &onnx.TensorShapeProto{Dims: []onnx.DimensionProto{
						{DimParam: "batch"}, {DimValue: 4},
					}},
				}},
			}},
			Initializers: []onnx.TensorProto{{
				Name:      "w",
				DataType:  onnx.TensorProtoFloat,
				Dims:      []int64{4},
				FloatData: []float32{1, 2, 3, 4},
			}},
		},
	}
}

func newTestGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := New(addModel())
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestNewRejectsMissingGraph(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("New(nil) should fail")
	}
	if _, err := New(&onnx.ModelProto{}); err == nil {
		t.Error("New without graph should fail")
	}
}

func TestShapeAndDType(t *testing.T) {
	g := newTestGraph(t)

	shape, ok := g.Shape("x")
	if !ok {
		t.Fatal("no shape for x")
	}
	// Symbolic dims are reported as -1.
	if len(shape) != 2 || shape[0] != -1 || shape[1] != 4 {
		t.Errorf("shape of x = %v", shape)
	}

	dtype, ok := g.DType("x")
	if !ok || dtype != onnx.TensorProtoFloat {
		t.Errorf("dtype of x = %d, %v", dtype, ok)
	}

	// Initializer shape and dtype come from the tensor itself.
	shape, ok = g.Shape("w")
	if !ok || len(shape) != 1 || shape[0] != 4 {
		t.Errorf("shape of w = %v, %v", shape, ok)
	}

	if _, ok := g.Shape("s"); ok {
		t.Error("intermediate value without value_info should have no shape")
	}
	if r, ok := g.Rank("x"); !ok || r != 2 {
		t.Errorf("rank of x = %d, %v", r, ok)
	}
}

func TestProducerAndConsumers(t *testing.T) {
	g := newTestGraph(t)

	if p := g.Producer("s"); p == nil || p.Name() != "add0" {
		t.Errorf("producer of s = %v", p)
	}
	if p := g.Producer("x"); p != nil {
		t.Error("graph input has no producer")
	}
	if p := g.Producer(""); p != nil {
		t.Error("empty name has no producer")
	}

	cons := g.Consumers("s")
	if len(cons) != 1 || cons[0].Name() != "relu0" {
		t.Errorf("consumers of s = %v", cons)
	}
	if cons := g.Consumers(""); cons != nil {
		t.Error("empty name has no consumers")
	}
}

func TestIsGraphOutput(t *testing.T) {
	g := newTestGraph(t)
	if !g.IsGraphOutput("y") {
		t.Error("y is a graph output")
	}
	if g.IsGraphOutput("s") || g.IsGraphOutput("x") {
		t.Error("s and x are not graph outputs")
	}
}

func TestUniqueValueName(t *testing.T) {
	g := newTestGraph(t)
	seen := map[string]bool{"x": true, "w": true, "s": true, "y": true}
	for i := 0; i < 10; i++ {
		name := g.UniqueValueName("s_t")
		if seen[name] {
			t.Fatalf("name %q not unique", name)
		}
		seen[name] = true
	}
}

func TestInsertAndRemove(t *testing.T) {
	g := newTestGraph(t)
	relu := g.Nodes()[1]

	inserted := g.InsertBefore(relu, &onnx.NodeProto{
		OpType:  "Identity",
		Inputs:  []string{"s"},
		Outputs: []string{"s2"},
	})
	if g.NumNodes() != 3 {
		t.Fatalf("node count = %d, want 3", g.NumNodes())
	}
	if got := g.Nodes()[1]; got != inserted {
		t.Error("InsertBefore placed node at wrong position")
	}

	g.RemoveNode(inserted)
	if g.NumNodes() != 2 || g.Contains(inserted) {
		t.Error("RemoveNode did not remove the node")
	}
	// Removing twice is a no-op.
	g.RemoveNode(inserted)
	if g.NumNodes() != 2 {
		t.Error("double remove changed the graph")
	}
}

func TestCopyNodeAndMoveOutput(t *testing.T) {
	g := newTestGraph(t)
	add := g.Nodes()[0]
	add.SetAttrInt("extra", 7)

	cp := g.CopyNode(add, "AddV2", "custom.domain", 3)

	if cp.OpType() != "AddV2" || cp.Domain() != "custom.domain" {
		t.Errorf("copy identity = %s.%s", cp.Domain(), cp.OpType())
	}
	if got := cp.Inputs(); len(got) != 2 || got[0] != "x" || got[1] != "w" {
		t.Errorf("copy inputs = %v", got)
	}
	if got := cp.Outputs(); len(got) != 1 || got[0] != "" {
		t.Errorf("copy outputs = %v, want one unbound slot", got)
	}
	if cp.GetAttrInt("extra", 0) != 7 {
		t.Error("attributes not carried over")
	}
	// Copy sits immediately before the original.
	if g.Nodes()[0] != cp || g.Nodes()[1] != add {
		t.Error("copy not placed before original")
	}

	g.MoveOutput(add, 0, cp, 0)
	if cp.Outputs()[0] != "s" || add.Outputs()[0] != "" {
		t.Error("MoveOutput did not transfer the binding")
	}

	// sinceVersion > 0 registered the new domain.
	model := g.Proto()
	found := false
	for _, opset := range model.OpsetImport {
		if opset.Domain == "custom.domain" && opset.Version == 3 {
			found = true
		}
	}
	if !found {
		t.Error("custom.domain opset not registered")
	}
}

func TestAddInitializer(t *testing.T) {
	g := newTestGraph(t)
	g.AddInitializer(onnx.TensorProto{
		Name:      "b",
		DataType:  onnx.TensorProtoFloat,
		Dims:      []int64{2},
		FloatData: []float32{5, 6},
	})

	tensor, ok := g.Initializer("b")
	if !ok || len(tensor.FloatData) != 2 {
		t.Fatalf("initializer b = %v, %v", tensor, ok)
	}

	model := g.Proto()
	if len(model.Graph.Initializers) != 2 {
		t.Errorf("proto has %d initializers, want 2", len(model.Graph.Initializers))
	}
	if model.Graph.Initializers[1].Name != "b" {
		t.Error("new initializer not appended in order")
	}
}

func TestQualifiedOpType(t *testing.T) {
	tests := []struct {
		domain string
		want   string
	}{
		{"", "MaxPool"},
		{"ai.onnx", "MaxPool"},
		{"com.microsoft", "com.microsoft.MaxPool"},
	}
	for _, tt := range tests {
		n := &Node{proto: &onnx.NodeProto{OpType: "MaxPool", Domain: tt.domain}}
		if got := QualifiedOpType(n); got != tt.want {
			t.Errorf("QualifiedOpType(domain=%q) = %q, want %q", tt.domain, got, tt.want)
		}
	}
}

func TestProtoRebuildsValueInfo(t *testing.T) {
	g := newTestGraph(t)
	g.AddShapedValue("s", onnx.TensorProtoFloat, []onnx.DimensionProto{
		{DimParam: "batch"}, {DimValue: 4},
	})

	model := g.Proto()

	var names []string
	for _, vi := range model.Graph.ValueInfo {
		names = append(names, vi.Name)
	}
	if len(names) != 1 || names[0] != "s" {
		t.Errorf("value_info names = %v, want [s]", names)
	}
	vi := model.Graph.ValueInfo[0]
	if vi.Type == nil || vi.Type.TensorType == nil || vi.Type.TensorType.Shape == nil {
		t.Fatal("value_info for s lost its shape")
	}
	dims := vi.Type.TensorType.Shape.Dims
	if len(dims) != 2 || dims[0].DimParam != "batch" || dims[1].DimValue != 4 {
		t.Errorf("value_info dims = %v", dims)
	}
}

func TestOpsetVersion(t *testing.T) {
	g := newTestGraph(t)
	if got := g.OpsetVersion(); got != 13 {
		t.Errorf("opset = %d, want 13", got)
	}

	g2, err := New(&onnx.ModelProto{Graph: &onnx.GraphProto{}})
	if err != nil {
		t.Fatal(err)
	}
	if got := g2.OpsetVersion(); got != 0 {
		t.Errorf("opset of empty model = %d, want 0", got)
	}
}

func TestNodeAttributes(t *testing.T) {
	g := newTestGraph(t)
	n := g.Nodes()[0]

	if n.HasAttr("axis") {
		t.Error("unexpected axis attr")
	}
	n.SetAttrInt("axis", -1)
	if got := n.GetAttrInt("axis", 0); got != -1 {
		t.Errorf("axis = %d", got)
	}
	n.SetAttrInt("axis", 2)
	if got := n.GetAttrInt("axis", 0); got != 2 {
		t.Errorf("axis after update = %d", got)
	}

	n.SetAttrInts("pads", []int64{0, 1, 0, 1})
	if got := n.GetAttrInts("pads"); len(got) != 4 || got[1] != 1 {
		t.Errorf("pads = %v", got)
	}

	n.ClearAttr("axis")
	if n.HasAttr("axis") {
		t.Error("axis not cleared")
	}
	if !n.HasAttr("pads") {
		t.Error("pads lost by unrelated ClearAttr")
	}
}
