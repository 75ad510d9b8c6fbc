package onnx

// ONNX protobuf messages, reduced to the fields inspection needs.

// Model is the decoded ModelProto.
type Model struct {
	IRVersion       int64
	OpsetImports    []OpsetImport
	ProducerName    string
	ProducerVersion string
	ModelVersion    int64
	Graph           *Graph
}

// OpsetVersion returns the default-domain opset version, or 0 if absent.
func (m *Model) OpsetVersion() int64 {
	for _, op := range m.OpsetImports {
		if op.Domain == "" || op.Domain == "ai.onnx" {
			return op.Version
		}
	}
	return 0
}

// OpsetImport is one OperatorSetIdProto entry.
type OpsetImport struct {
	Domain  string
	Version int64
}

// Graph is the decoded GraphProto.
type Graph struct {
	Name         string
	Nodes        []Node
	Inputs       []ValueInfo
	Outputs      []ValueInfo
	Initializers []Tensor
	ValueInfos   []ValueInfo
}

// Node is one operation in the graph.
type Node struct {
	Name       string
	OpType     string
	Inputs     []string
	Outputs    []string
	Attributes []Attribute
}

// Attr returns the named attribute, or nil.
func (n *Node) Attr(name string) *Attribute {
	for i := range n.Attributes {
		if n.Attributes[i].Name == name {
			return &n.Attributes[i]
		}
	}
	return nil
}

// AttrInt returns the named integer attribute or def when absent.
func (n *Node) AttrInt(name string, def int64) int64 {
	if a := n.Attr(name); a != nil {
		return a.I
	}
	return def
}

// AttrInts returns the named integer-list attribute or nil when absent.
func (n *Node) AttrInts(name string) []int64 {
	if a := n.Attr(name); a != nil {
		return a.Ints
	}
	return nil
}

// Attribute is a node attribute. Only the value kinds shape inference
// consumes are decoded.
type Attribute struct {
	Name   string
	Type   int32
	I      int64
	F      float32
	S      []byte
	Ints   []int64
	Floats []float32
}

// Tensor is a decoded TensorProto (weights and constants).
type Tensor struct {
	Name      string
	DataType  int32
	Dims      []int64
	RawData   []byte
	Int64Data []int64
}

// ValueInfo describes one graph input, output or intermediate value.
type ValueInfo struct {
	Name string
	Type *TensorType
}

// TensorType carries the element type and shape of a value.
type TensorType struct {
	ElemType int32
	Dims     []Dimension
}

// Dimension is one declared dimension: fixed via Value, symbolic via Param.
type Dimension struct {
	Value int64
	Param string
}
