package onnx

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// WriteFile encodes an ONNX model and writes it to path.
func WriteFile(model *ModelProto, path string) error {
	data, err := Encode(model)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // G306: model files are not secrets
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Encode serializes an ONNX model to protobuf wire format.
//
// Only the fields the parser reads are written back; fields the parser
// skipped are not preserved.
func Encode(model *ModelProto) ([]byte, error) {
	if model == nil || model.Graph == nil {
		return nil, fmt.Errorf("cannot encode model without a graph")
	}
	w := &writer{}
	w.writeModelProto(model)
	return w.buf, nil
}

// writer implements a minimal protobuf wire format encoder.
type writer struct {
	buf []byte
}

func (w *writer) writeModelProto(m *ModelProto) {
	w.writeVarintField(1, m.IRVersion)
	w.writeStringField(2, m.ProducerName)
	w.writeStringField(3, m.ProducerVersion)
	w.writeStringField(4, m.Domain)
	w.writeVarintField(5, m.ModelVersion)
	w.writeMessage(7, func(sub *writer) { sub.writeGraphProto(m.Graph) })
	for i := range m.OpsetImport {
		opset := &m.OpsetImport[i]
		w.writeMessage(8, func(sub *writer) {
			sub.writeStringField(1, opset.Domain)
			sub.writeVarintAlways(2, opset.Version)
		})
	}
}

func (w *writer) writeGraphProto(m *GraphProto) {
	for _, node := range m.Nodes {
		w.writeMessage(1, func(sub *writer) { sub.writeNodeProto(node) })
	}
	w.writeStringField(2, m.Name)
	for i := range m.Initializers {
		tensor := &m.Initializers[i]
		w.writeMessage(5, func(sub *writer) { sub.writeTensorProto(tensor) })
	}
	for i := range m.Inputs {
		vi := &m.Inputs[i]
		w.writeMessage(11, func(sub *writer) { sub.writeValueInfoProto(vi) })
	}
	for i := range m.Outputs {
		vi := &m.Outputs[i]
		w.writeMessage(12, func(sub *writer) { sub.writeValueInfoProto(vi) })
	}
	for i := range m.ValueInfo {
		vi := &m.ValueInfo[i]
		w.writeMessage(13, func(sub *writer) { sub.writeValueInfoProto(vi) })
	}
}

func (w *writer) writeNodeProto(m *NodeProto) {
	// Inputs and outputs are positional: empty names mark unbound optional
	// slots and must be written out to keep slot indices stable.
	for _, in := range m.Inputs {
		w.writeBytesField(1, []byte(in))
	}
	for _, out := range m.Outputs {
		w.writeBytesField(2, []byte(out))
	}
	w.writeStringField(3, m.Name)
	w.writeStringField(4, m.OpType)
	for i := range m.Attributes {
		attr := &m.Attributes[i]
		w.writeMessage(5, func(sub *writer) { sub.writeAttributeProto(attr) })
	}
	w.writeStringField(7, m.Domain)
}

func (w *writer) writeTensorProto(m *TensorProto) {
	if len(m.Dims) > 0 {
		w.writePackedVarints(1, m.Dims)
	}
	if m.DataType != 0 {
		w.writeVarintField(2, int64(m.DataType))
	}
	if len(m.FloatData) > 0 {
		w.writePackedFloats(4, m.FloatData)
	}
	if len(m.Int64Data) > 0 {
		w.writePackedVarints(7, m.Int64Data)
	}
	w.writeStringField(8, m.Name)
	if len(m.RawData) > 0 {
		w.writeBytesField(9, m.RawData)
	}
}

func (w *writer) writeValueInfoProto(m *ValueInfoProto) {
	w.writeStringField(1, m.Name)
	if m.Type != nil {
		w.writeMessage(2, func(sub *writer) { sub.writeTypeProto(m.Type) })
	}
}

func (w *writer) writeTypeProto(m *TypeProto) {
	if m.TensorType != nil {
		w.writeMessage(1, func(sub *writer) { sub.writeTensorTypeProto(m.TensorType) })
	}
}

func (w *writer) writeTensorTypeProto(m *TensorTypeProto) {
	if m.ElemType != 0 {
		w.writeVarintField(1, int64(m.ElemType))
	}
	if m.Shape != nil {
		w.writeMessage(2, func(sub *writer) {
			for i := range m.Shape.Dims {
				dim := &m.Shape.Dims[i]
				sub.writeMessage(1, func(d *writer) {
					if dim.DimParam != "" {
						d.writeStringField(2, dim.DimParam)
					} else {
						d.writeVarintField(1, dim.DimValue)
					}
				})
			}
		})
	}
}

func (w *writer) writeAttributeProto(m *AttributeProto) {
	w.writeStringField(1, m.Name)
	switch m.Type {
	case AttributeProtoFloat:
		w.writeFloat32Field(2, m.F)
	case AttributeProtoInt:
		w.writeVarintAlways(3, m.I)
	case AttributeProtoString:
		w.writeBytesField(4, m.S)
	case AttributeProtoFloats:
		w.writePackedFloats(7, m.Floats)
	case AttributeProtoInts:
		w.writePackedVarints(8, m.Ints)
	case AttributeProtoStrings:
		for _, s := range m.Strings {
			w.writeBytesField(9, s)
		}
	}
	w.writeVarintField(20, int64(m.Type))
}

// writeVarintField writes a varint field, omitting zero values.
func (w *writer) writeVarintField(fieldNum int, v int64) {
	if v == 0 {
		return
	}
	w.writeVarintAlways(fieldNum, v)
}

// writeVarintAlways writes a varint field unconditionally. Attribute int
// values must round-trip even when zero (e.g. channels_last=0).
func (w *writer) writeVarintAlways(fieldNum int, v int64) {
	w.writeRawVarint(int64(fieldNum)<<3 | wireVarint)
	w.writeRawVarint(v)
}

// writeStringField writes a string field, omitting empty strings.
func (w *writer) writeStringField(fieldNum int, s string) {
	if s == "" {
		return
	}
	w.writeBytesField(fieldNum, []byte(s))
}

// writeBytesField writes a length-delimited field (including empty payloads).
func (w *writer) writeBytesField(fieldNum int, data []byte) {
	w.writeRawVarint(int64(fieldNum)<<3 | wireBytes)
	w.writeRawVarint(int64(len(data)))
	w.buf = append(w.buf, data...)
}

// writeFloat32Field writes a 32-bit float field.
func (w *writer) writeFloat32Field(fieldNum int, f float32) {
	w.writeRawVarint(int64(fieldNum)<<3 | wire32Bit)
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
	w.buf = append(w.buf, b[:]...)
}

// writePackedVarints writes a packed repeated varint field.
func (w *writer) writePackedVarints(fieldNum int, vals []int64) {
	payload := &writer{}
	for _, v := range vals {
		payload.writeRawVarint(v)
	}
	w.writeBytesField(fieldNum, payload.buf)
}

// writePackedFloats writes a packed repeated float field.
func (w *writer) writePackedFloats(fieldNum int, vals []float32) {
	payload := make([]byte, 0, len(vals)*4)
	var b [4]byte
	for _, v := range vals {
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
		payload = append(payload, b[:]...)
	}
	w.writeBytesField(fieldNum, payload)
}

// writeMessage writes an embedded message field via encode.
func (w *writer) writeMessage(fieldNum int, encode func(*writer)) {
	sub := &writer{}
	encode(sub)
	w.writeBytesField(fieldNum, sub.buf)
}

// writeRawVarint appends a varint-encoded value.
func (w *writer) writeRawVarint(v int64) {
	u := uint64(v)
	for u >= 0x80 {
		w.buf = append(w.buf, byte(u)|0x80)
		u >>= 7
	}
	w.buf = append(w.buf, byte(u))
}
