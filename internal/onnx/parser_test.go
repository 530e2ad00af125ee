package onnx

import (
	"bytes"
	"path/filepath"
	"reflect"
	"testing"
)

func roundTripModel() *ModelProto {
	return &ModelProto{
		IRVersion:     8,
		ProducerName:  "relayout-test",
		OpsetImport:   []OperatorSetID{{Version: 13}, {Domain: "com.microsoft", Version: 1}},
		Graph: &GraphProto{
			Name: "round_trip",
			Nodes: []*NodeProto{
				{
					Name:    "t0",
					OpType:  "Transpose",
					Inputs:  []string{"x"},
					Outputs: []string{"xt"},
					Attributes: []AttributeProto{
						{Name: "perm", Type: AttributeProtoInts, Ints: []int64{0, 3, 1, 2}},
					},
				},
				{
					OpType:  "Resize",
					Inputs:  []string{"xt", "", "scales"},
					Outputs: []string{"y"},
					Attributes: []AttributeProto{
						{Name: "mode", Type: AttributeProtoString, S: []byte("linear")},
						{Name: "exclude_outside", Type: AttributeProtoInt, I: 0},
					},
				},
			},
			Inputs: []ValueInfoProto{{
				Name: "x",
				Type: &TypeProto{TensorType: &TensorTypeProto{
					ElemType: TensorProtoUint8,
					Shape: &TensorShapeProto{Dims: []DimensionProto{
						{DimParam: "batch"}, {DimValue: 8}, {DimValue: 8}, {DimValue: 3},
					}},
				}},
			}},
			Outputs: []ValueInfoProto{{
				Name: "y",
				Type: &TypeProto{TensorType: &TensorTypeProto{
					ElemType: TensorProtoUint8,
					Shape: &TensorShapeProto{Dims: []DimensionProto{
						{DimParam: "batch"}, {DimValue: 3}, {DimValue: 16}, {DimValue: 16},
					}},
				}},
			}},
			ValueInfo: []ValueInfoProto{{
				Name: "xt",
				Type: &TypeProto{TensorType: &TensorTypeProto{
					ElemType: TensorProtoUint8,
				}},
			}},
			Initializers: []TensorProto{
				{
					Name:      "scales",
					DataType:  TensorProtoFloat,
					Dims:      []int64{4},
					FloatData: []float32{1, 1, 2, 2},
				},
				{
					Name:      "axes",
					DataType:  TensorProtoInt64,
					Dims:      []int64{2},
					Int64Data: []int64{0, 1},
				},
				{
					Name:     "zero_point",
					DataType: TensorProtoUint8,
					Dims:     []int64{1},
					RawData:  []byte{128},
				},
			},
		},
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	want := roundTripModel()

	data, err := Encode(want)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}

	if got.IRVersion != want.IRVersion {
		t.Errorf("ir_version = %d, want %d", got.IRVersion, want.IRVersion)
	}
	if got.ProducerName != want.ProducerName {
		t.Errorf("producer = %q", got.ProducerName)
	}
	if !reflect.DeepEqual(got.OpsetImport, want.OpsetImport) {
		t.Errorf("opset_import = %v, want %v", got.OpsetImport, want.OpsetImport)
	}
	if got.Graph == nil {
		t.Fatal("graph missing after round trip")
	}
	if got.Graph.Name != want.Graph.Name {
		t.Errorf("graph name = %q", got.Graph.Name)
	}

	if len(got.Graph.Nodes) != 2 {
		t.Fatalf("node count = %d", len(got.Graph.Nodes))
	}
	transpose := got.Graph.Nodes[0]
	if transpose.OpType != "Transpose" || transpose.Name != "t0" {
		t.Errorf("node 0 = %s %s", transpose.Name, transpose.OpType)
	}
	if !reflect.DeepEqual(transpose.Attributes[0].Ints, []int64{0, 3, 1, 2}) {
		t.Errorf("perm = %v", transpose.Attributes[0].Ints)
	}

	resize := got.Graph.Nodes[1]
	// The empty optional slot must survive so that slot indices stay stable.
	if !reflect.DeepEqual(resize.Inputs, []string{"xt", "", "scales"}) {
		t.Errorf("resize inputs = %v", resize.Inputs)
	}
	if len(resize.Attributes) != 2 {
		t.Fatalf("resize attrs = %v", resize.Attributes)
	}
	if string(resize.Attributes[0].S) != "linear" || resize.Attributes[0].Type != AttributeProtoString {
		t.Errorf("mode attr = %+v", resize.Attributes[0])
	}
	// Integer attributes with value zero still round trip with their type.
	if resize.Attributes[1].Type != AttributeProtoInt || resize.Attributes[1].I != 0 {
		t.Errorf("exclude_outside attr = %+v", resize.Attributes[1])
	}

	if len(got.Graph.Initializers) != 3 {
		t.Fatalf("initializer count = %d", len(got.Graph.Initializers))
	}
	if !reflect.DeepEqual(got.Graph.Initializers[0].FloatData, []float32{1, 1, 2, 2}) {
		t.Errorf("scales = %v", got.Graph.Initializers[0].FloatData)
	}
	if !reflect.DeepEqual(got.Graph.Initializers[1].Int64Data, []int64{0, 1}) {
		t.Errorf("axes = %v", got.Graph.Initializers[1].Int64Data)
	}
	if !reflect.DeepEqual(got.Graph.Initializers[2].RawData, []byte{128}) {
		t.Errorf("zero_point = %v", got.Graph.Initializers[2].RawData)
	}

	if len(got.Graph.Inputs) != 1 {
		t.Fatalf("input count = %d", len(got.Graph.Inputs))
	}
	dims := got.Graph.Inputs[0].Type.TensorType.Shape.Dims
	if len(dims) != 4 || dims[0].DimParam != "batch" || dims[3].DimValue != 3 {
		t.Errorf("input dims = %v", dims)
	}
	if len(got.Graph.ValueInfo) != 1 || got.Graph.ValueInfo[0].Name != "xt" {
		t.Errorf("value_info = %v", got.Graph.ValueInfo)
	}
}

func TestWriteParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.onnx")
	if err := WriteFile(roundTripModel(), path); err != nil {
		t.Fatal(err)
	}
	got, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Graph == nil || len(got.Graph.Nodes) != 2 {
		t.Fatalf("unexpected model: %+v", got)
	}
}

func TestParseFileMissing(t *testing.T) {
	if _, err := ParseFile(filepath.Join(t.TempDir(), "nope.onnx")); err == nil {
		t.Error("expected error for missing file")
	}
}

// TestParseHandBuiltBuffer feeds a hand-assembled wire buffer through the
// parser, including an unknown field that must be skipped.
func TestParseHandBuiltBuffer(t *testing.T) {
	nodeMsg := append([]byte{0x22, 0x04}, "Relu"...) // op_type = "Relu"
	graphMsg := append([]byte{0x0a, byte(len(nodeMsg))}, nodeMsg...)
	buf := []byte{
		0x08, 0x08, // ir_version = 8
		0xf8, 0x06, 0x2a, // field 111, varint, value 42 (unknown, skipped)
	}
	buf = append(buf, 0x3a, byte(len(graphMsg))) // graph
	buf = append(buf, graphMsg...)

	model, err := Parse(buf)
	if err != nil {
		t.Fatal(err)
	}
	if model.IRVersion != 8 {
		t.Errorf("ir_version = %d", model.IRVersion)
	}
	if model.Graph == nil || len(model.Graph.Nodes) != 1 {
		t.Fatalf("graph = %+v", model.Graph)
	}
	if model.Graph.Nodes[0].OpType != "Relu" {
		t.Errorf("op_type = %q", model.Graph.Nodes[0].OpType)
	}
}

// TestParseAttributeFieldNumbers parses a hand-assembled buffer holding a
// perm attribute with the official onnx.proto field numbering (floats=7,
// ints=8, strings=9; the enum values are 6/7/8 and must not be confused
// with the field numbers). Models produced by other exporters depend on it.
func TestParseAttributeFieldNumbers(t *testing.T) {
	attrMsg := []byte{0x0a, 0x04}
	attrMsg = append(attrMsg, "perm"...)
	attrMsg = append(attrMsg, 0x42, 0x04, 0x00, 0x03, 0x01, 0x02) // field 8 packed ints
	attrMsg = append(attrMsg, 0xa0, 0x01, 0x07)                   // field 20 type = INTS

	nodeMsg := []byte{0x22, 0x09}
	nodeMsg = append(nodeMsg, "Transpose"...)
	nodeMsg = append(nodeMsg, 0x2a, byte(len(attrMsg)))
	nodeMsg = append(nodeMsg, attrMsg...)

	graphMsg := append([]byte{0x0a, byte(len(nodeMsg))}, nodeMsg...)
	buf := append([]byte{0x3a, byte(len(graphMsg))}, graphMsg...)

	model, err := Parse(buf)
	if err != nil {
		t.Fatal(err)
	}
	attrs := model.Graph.Nodes[0].Attributes
	if len(attrs) != 1 || attrs[0].Name != "perm" {
		t.Fatalf("attributes = %+v", attrs)
	}
	if attrs[0].Type != AttributeProtoInts {
		t.Errorf("type = %d, want %d", attrs[0].Type, AttributeProtoInts)
	}
	if !reflect.DeepEqual(attrs[0].Ints, []int64{0, 3, 1, 2}) {
		t.Errorf("ints = %v, want [0 3 1 2]", attrs[0].Ints)
	}
	if len(attrs[0].Strings) != 0 {
		t.Errorf("strings = %v, want none", attrs[0].Strings)
	}
}

// TestEncodeAttributeFieldNumbers checks the write side against the same
// official numbering: packed ints go to field 8, not the INTS enum value.
func TestEncodeAttributeFieldNumbers(t *testing.T) {
	model := &ModelProto{
		Graph: &GraphProto{
			Nodes: []*NodeProto{{
				OpType:  "Transpose",
				Inputs:  []string{"x"},
				Outputs: []string{"y"},
				Attributes: []AttributeProto{
					{Name: "perm", Type: AttributeProtoInts, Ints: []int64{0, 3, 1, 2}},
				},
			}},
		},
	}
	data, err := Encode(model)
	if err != nil {
		t.Fatal(err)
	}

	// field 8, wire type 2 (length-delimited), payload [0 3 1 2].
	want := []byte{0x42, 0x04, 0x00, 0x03, 0x01, 0x02}
	if !bytes.Contains(data, want) {
		t.Errorf("encoded model missing ints field 8: % x", data)
	}
	// The INTS enum value as a field tag would be field 7 (0x3a).
	if bytes.Contains(data, append([]byte{0x3a, 0x04}, want[2:]...)) {
		t.Errorf("encoded model wrote ints under field 7: % x", data)
	}
}

func TestParseTruncatedBuffer(t *testing.T) {
	data, err := Encode(roundTripModel())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(data[:len(data)/2]); err == nil {
		t.Error("expected error for truncated buffer")
	}
}
