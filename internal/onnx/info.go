package onnx

import "github.com/Malagurti/face-pro/shape"

// IOTensor is one named graph input or output with its declared shape.
type IOTensor struct {
	Name     string
	Shape    shape.Shape
	ElemType int32
}

// DType returns the human name of the tensor element type.
func (t IOTensor) DType() string {
	return shape.DataTypeName(t.ElemType)
}

// shapeOf converts declared dimensions into a shape descriptor. A dim_value
// of 0 with no dim_param means the dimension is unknown.
func shapeOf(vi ValueInfo) shape.Shape {
	if vi.Type == nil {
		return nil
	}
	s := make(shape.Shape, 0, len(vi.Type.Dims))
	for _, d := range vi.Type.Dims {
		switch {
		case d.Value > 0:
			s = append(s, shape.Fixed(d.Value))
		case d.Param != "":
			s = append(s, shape.Symbolic(d.Param))
		default:
			s = append(s, shape.Dynamic())
		}
	}
	return s
}

func elemTypeOf(vi ValueInfo) int32 {
	if vi.Type == nil {
		return shape.DTUndefined
	}
	return vi.Type.ElemType
}

// InputTensors returns the graph's true inputs (initializers excluded; older
// exporters list weights as graph inputs too).
func (g *Graph) InputTensors() []IOTensor {
	isInit := make(map[string]bool, len(g.Initializers))
	for i := range g.Initializers {
		isInit[g.Initializers[i].Name] = true
	}
	var out []IOTensor
	for _, vi := range g.Inputs {
		if isInit[vi.Name] {
			continue
		}
		out = append(out, IOTensor{Name: vi.Name, Shape: shapeOf(vi), ElemType: elemTypeOf(vi)})
	}
	return out
}

// OutputTensors returns the graph outputs with their declared shapes.
func (g *Graph) OutputTensors() []IOTensor {
	out := make([]IOTensor, 0, len(g.Outputs))
	for _, vi := range g.Outputs {
		out = append(out, IOTensor{Name: vi.Name, Shape: shapeOf(vi), ElemType: elemTypeOf(vi)})
	}
	return out
}

// Summary carries header-level model facts for the inspect command.
type Summary struct {
	IRVersion        int64
	OpsetVersion     int64
	ProducerName     string
	ProducerVersion  string
	GraphName        string
	NodeCount        int
	InitializerCount int
}

// Summarize extracts header-level facts from a parsed model.
func Summarize(m *Model) Summary {
	s := Summary{
		IRVersion:       m.IRVersion,
		OpsetVersion:    m.OpsetVersion(),
		ProducerName:    m.ProducerName,
		ProducerVersion: m.ProducerVersion,
	}
	if m.Graph != nil {
		s.GraphName = m.Graph.Name
		s.NodeCount = len(m.Graph.Nodes)
		s.InitializerCount = len(m.Graph.Initializers)
	}
	return s
}
