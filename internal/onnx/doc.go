// Package onnx provides the ONNX model structures and wire codec used by the
// layout optimizer.
//
// The package implements a hand-written protobuf decoder and encoder for
// .onnx files without external dependencies. Only the messages and fields the
// optimizer reads or rewrites are decoded; unknown fields are skipped on read
// and therefore dropped on write.
//
// Key components:
//   - ModelProto: Top-level ONNX model structure with metadata and graph
//   - GraphProto: Computation graph with nodes, value infos, and initializers
//   - NodeProto: Single operation in the graph (e.g., Transpose, MaxPool)
//   - ValueInfoProto: Shape and element-type information for a value
//   - AttributeProto: Node attribute (int, string, ints, ...)
//
// Example usage:
//
//	model, err := onnx.ParseFile("resnet50.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Graph: %s with %d nodes\n", model.Graph.Name, len(model.Graph.Nodes))
package onnx
