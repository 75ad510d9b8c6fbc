// Package onnx reads ONNX model files for inspection.
//
// It decodes the protobuf wire format of .onnx files directly, keeping only
// the messages needed to report graph structure and tensor shapes: the model
// header, the graph with its nodes, inputs, outputs and initializers, and the
// type information attached to values. Weight payloads are retained as raw
// bytes and never interpreted except where shape inference needs a constant
// (e.g. a Reshape target).
//
// InferShapes propagates shapes from graph inputs, value_info entries and
// initializers through the node list, so that output shapes depending on
// dynamic input dimensions stay symbolic instead of failing.
package onnx
