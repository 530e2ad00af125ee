// Package graph provides a mutable view over an ONNX graph for rewrite
// passes.
//
// The view owns the node list and value metadata while a pass runs; the
// underlying protobuf structures are updated when Proto() is called. Rewrite
// rules mutate nodes through this package only, so a pass holds exclusive
// ownership of the graph for its duration.
package graph

import (
	"github.com/born-ml/relayout/internal/onnx"
)

// Node is a handle to one operation in the graph.
//
// Beside the protobuf fields, a node carries the identifier of the execution
// provider it has been assigned to. An empty identifier means the node has
// not been placed yet.
type Node struct {
	proto   *onnx.NodeProto
	backend string
}

// Name returns the node name (may be empty).
func (n *Node) Name() string { return n.proto.Name }

// OpType returns the operator type, e.g. "Transpose".
func (n *Node) OpType() string { return n.proto.OpType }

// Domain returns the operator domain (empty for the default ONNX domain).
func (n *Node) Domain() string { return n.proto.Domain }

// IsOp reports whether the node is the given default-domain operator.
func (n *Node) IsOp(opType string) bool {
	return n.proto.OpType == opType && (n.proto.Domain == "" || n.proto.Domain == "ai.onnx")
}

// Inputs returns a copy of the node's input value names.
// Empty names mark unbound optional slots.
func (n *Node) Inputs() []string {
	out := make([]string, len(n.proto.Inputs))
	copy(out, n.proto.Inputs)
	return out
}

// Outputs returns a copy of the node's output value names.
// Empty names mark unbound optional slots.
func (n *Node) Outputs() []string {
	out := make([]string, len(n.proto.Outputs))
	copy(out, n.proto.Outputs)
	return out
}

// Input returns the value name bound to input slot i.
func (n *Node) Input(i int) string { return n.proto.Inputs[i] }

// SetInput rebinds input slot i to the given value name.
func (n *Node) SetInput(i int, name string) { n.proto.Inputs[i] = name }

// SetOutput rebinds output slot i to the given value name.
func (n *Node) SetOutput(i int, name string) { n.proto.Outputs[i] = name }

// Backend returns the execution provider identifier assigned to the node,
// or "" if the node is unassigned.
func (n *Node) Backend() string { return n.backend }

// SetBackend assigns the node to an execution provider.
func (n *Node) SetBackend(provider string) { n.backend = provider }

// GetAttrInt returns an integer attribute or the default value.
func (n *Node) GetAttrInt(name string, defaultVal int64) int64 {
	for i := range n.proto.Attributes {
		if n.proto.Attributes[i].Name == name {
			return n.proto.Attributes[i].I
		}
	}
	return defaultVal
}

// GetAttrInts returns an integer array attribute, or nil if absent.
func (n *Node) GetAttrInts(name string) []int64 {
	for i := range n.proto.Attributes {
		if n.proto.Attributes[i].Name == name {
			return n.proto.Attributes[i].Ints
		}
	}
	return nil
}

// GetAttrString returns a string attribute or the default value.
func (n *Node) GetAttrString(name, defaultVal string) string {
	for i := range n.proto.Attributes {
		if n.proto.Attributes[i].Name == name {
			return string(n.proto.Attributes[i].S)
		}
	}
	return defaultVal
}

// HasAttr reports whether the named attribute is present.
func (n *Node) HasAttr(name string) bool {
	for i := range n.proto.Attributes {
		if n.proto.Attributes[i].Name == name {
			return true
		}
	}
	return false
}

// SetAttrInt sets an integer attribute, replacing any existing value.
func (n *Node) SetAttrInt(name string, v int64) {
	for i := range n.proto.Attributes {
		if n.proto.Attributes[i].Name == name {
			n.proto.Attributes[i].Type = onnx.AttributeProtoInt
			n.proto.Attributes[i].I = v
			return
		}
	}
	n.proto.Attributes = append(n.proto.Attributes, onnx.AttributeProto{
		Name: name,
		Type: onnx.AttributeProtoInt,
		I:    v,
	})
}

// SetAttrInts sets an integer array attribute, replacing any existing value.
func (n *Node) SetAttrInts(name string, vals []int64) {
	for i := range n.proto.Attributes {
		if n.proto.Attributes[i].Name == name {
			n.proto.Attributes[i].Type = onnx.AttributeProtoInts
			n.proto.Attributes[i].Ints = vals
			return
		}
	}
	n.proto.Attributes = append(n.proto.Attributes, onnx.AttributeProto{
		Name: name,
		Type: onnx.AttributeProtoInts,
		Ints: vals,
	})
}

// ClearAttr removes the named attribute if present.
func (n *Node) ClearAttr(name string) {
	attrs := n.proto.Attributes
	for i := range attrs {
		if attrs[i].Name == name {
			n.proto.Attributes = append(attrs[:i], attrs[i+1:]...)
			return
		}
	}
}
