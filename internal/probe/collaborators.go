package probe

import (
	"github.com/Malagurti/face-pro/internal/onnx"
	"github.com/Malagurti/face-pro/internal/session"
)

// onnxGraph adapts internal/onnx into the GraphInspector collaborator.
type onnxGraph struct{}

// NewONNXGraph returns the static-graph collaborator backed by the in-repo
// ONNX reader and shape propagation.
func NewONNXGraph() GraphInspector {
	return onnxGraph{}
}

func (onnxGraph) InferShapes(path string) ([]TensorMeta, []TensorMeta, error) {
	m, err := onnx.ParseFile(path)
	if err != nil {
		return nil, nil, err
	}
	return toMetas(m.Graph.InputTensors()), toMetas(onnx.InferredOutputs(m)), nil
}

func toMetas(ts []onnx.IOTensor) []TensorMeta {
	out := make([]TensorMeta, len(ts))
	for i, t := range ts {
		out[i] = TensorMeta{Name: t.Name, Shape: t.Shape, DType: t.DType()}
	}
	return out
}

// ortOpener adapts internal/session into the SessionOpener collaborator.
type ortOpener struct {
	opts session.Options
}

// NewORTOpener returns the runtime-session collaborator backed by
// onnxruntime.
func NewORTOpener(opts session.Options) SessionOpener {
	return ortOpener{opts: opts}
}

func (o ortOpener) Open(path string) (Session, error) {
	m, err := session.Open(path, o.opts)
	if err != nil {
		return nil, err
	}
	return ortSession{m: m}, nil
}

type ortSession struct {
	m *session.Model
}

func (s ortSession) Inputs() []TensorMeta  { return infoMetas(s.m.Inputs()) }
func (s ortSession) Outputs() []TensorMeta { return infoMetas(s.m.Outputs()) }
func (s ortSession) Close() error          { return s.m.Close() }

func (s ortSession) Run(inputs map[string]Tensor) ([]RunOutput, error) {
	bound := make(map[string]session.Tensor, len(inputs))
	for name, t := range inputs {
		bound[name] = session.Tensor{Dims: t.Dims, Data: t.Data}
	}
	results, err := s.m.Run(bound)
	if err != nil {
		return nil, err
	}
	outs := make([]RunOutput, len(results))
	for i, r := range results {
		outs[i] = RunOutput{Name: r.Name, Dims: r.Dims, DType: r.DType}
	}
	return outs, nil
}

func infoMetas(infos []session.TensorInfo) []TensorMeta {
	out := make([]TensorMeta, len(infos))
	for i, info := range infos {
		out[i] = TensorMeta{Name: info.Name, Shape: info.Shape, DType: info.DType}
	}
	return out
}
