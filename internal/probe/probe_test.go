package probe_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Malagurti/face-pro/internal/probe"
	"github.com/Malagurti/face-pro/shape"
)

type fakeGraph struct {
	inputs  []probe.TensorMeta
	outputs []probe.TensorMeta
	err     error
}

func (f fakeGraph) InferShapes(string) ([]probe.TensorMeta, []probe.TensorMeta, error) {
	return f.inputs, f.outputs, f.err
}

type fakeSession struct {
	inputs  []probe.TensorMeta
	outputs []probe.TensorMeta
	results []probe.RunOutput
	runErr  error
	gotRun  map[string]probe.Tensor
	closed  bool
}

func (f *fakeSession) Inputs() []probe.TensorMeta  { return f.inputs }
func (f *fakeSession) Outputs() []probe.TensorMeta { return f.outputs }
func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func (f *fakeSession) Run(inputs map[string]probe.Tensor) ([]probe.RunOutput, error) {
	f.gotRun = inputs
	return f.results, f.runErr
}

type fakeOpener struct {
	sess *fakeSession
	err  error
}

func (f fakeOpener) Open(string) (probe.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sess, nil
}

func meta(name string, s shape.Shape, dtype string) probe.TensorMeta {
	return probe.TensorMeta{Name: name, Shape: s, DType: dtype}
}

func TestProbeEndToEnd(t *testing.T) {
	dynamic := shape.Shape{
		shape.Fixed(1), shape.Symbolic("h"), shape.Symbolic("w"), shape.Fixed(3),
	}
	sess := &fakeSession{
		inputs:  []probe.TensorMeta{meta("x", dynamic, "float32")},
		outputs: []probe.TensorMeta{meta("y", shape.Of(1, 10), "float32")},
		results: []probe.RunOutput{{Name: "y", Dims: []int64{1, 10}, DType: "float32"}},
	}
	graph := fakeGraph{
		inputs:  []probe.TensorMeta{meta("x", dynamic, "float32")},
		outputs: []probe.TensorMeta{meta("y", shape.Of(1, 10), "float32")},
	}

	var buf bytes.Buffer
	p := probe.New(graph, fakeOpener{sess: sess}, &buf)
	require.NoError(t, p.Run("model.onnx"))

	out := buf.String()
	assert.Contains(t, out, "== static graph (with shape inference) ==")
	assert.Contains(t, out, "input[0]: x (1, h, w, 3)")
	assert.Contains(t, out, "output[0]: y (1, 10)")
	assert.Contains(t, out, "== runtime session (declared shapes) ==")
	assert.Contains(t, out, "rt input[0]: x (1, h, w, 3) float32")
	assert.Contains(t, out, "== materialized shapes after one inference ==")

	// Exactly one materialized line for y, with shape and a dtype label.
	var materialized []string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "y (1, 10)") {
			materialized = append(materialized, line)
		}
	}
	require.Len(t, materialized, 3, "static, declared and materialized reports each mention y (1, 10)")
	assert.Equal(t, "y (1, 10) float32", materialized[len(materialized)-1])

	// The probe tensor resolved every dynamic dim to the placeholder.
	require.Contains(t, sess.gotRun, "x")
	probeTensor := sess.gotRun["x"]
	assert.Equal(t, []int64{1, 640, 640, 3}, probeTensor.Dims)
	assert.Len(t, probeTensor.Data, 1*640*640*3)
	for _, v := range probeTensor.Data[:16] {
		assert.Zero(t, v)
	}
	assert.True(t, sess.closed)
}

func TestProbeCustomPlaceholder(t *testing.T) {
	sess := &fakeSession{
		inputs:  []probe.TensorMeta{meta("x", shape.Of(1, -1), "float32")},
		results: []probe.RunOutput{{Name: "y", Dims: []int64{1, 2}, DType: "float32"}},
	}
	var buf bytes.Buffer
	p := probe.New(fakeGraph{}, fakeOpener{sess: sess}, &buf)
	p.Placeholder = 320
	require.NoError(t, p.Run("model.onnx"))
	assert.Equal(t, []int64{1, 320}, sess.gotRun["x"].Dims)
}

func TestProbeLoadFailureStopsBeforeLaterPhases(t *testing.T) {
	var buf bytes.Buffer
	p := probe.New(fakeGraph{err: errors.New("no such file")}, fakeOpener{}, &buf)

	err := p.Run("missing.onnx")
	require.Error(t, err)
	assert.ErrorContains(t, err, "no such file")

	out := buf.String()
	assert.Contains(t, out, "== static graph (with shape inference) ==")
	assert.NotContains(t, out, "== runtime session (declared shapes) ==")
	assert.NotContains(t, out, "== materialized shapes after one inference ==")
}

func TestProbeSessionOpenFailure(t *testing.T) {
	var buf bytes.Buffer
	p := probe.New(fakeGraph{}, fakeOpener{err: errors.New("unsupported model")}, &buf)

	err := p.Run("model.onnx")
	require.Error(t, err)
	assert.NotContains(t, buf.String(), "== materialized shapes after one inference ==")
}

func TestProbeRunFailurePropagates(t *testing.T) {
	sess := &fakeSession{
		inputs: []probe.TensorMeta{meta("x", shape.Of(1, 4), "float32")},
		runErr: errors.New("missing input: attention_mask"),
	}
	var buf bytes.Buffer
	p := probe.New(fakeGraph{}, fakeOpener{sess: sess}, &buf)

	err := p.Run("model.onnx")
	require.Error(t, err)
	assert.ErrorContains(t, err, "attention_mask")
	assert.NotContains(t, buf.String(), "== materialized shapes after one inference ==")
}

func TestProbeNoInputs(t *testing.T) {
	var buf bytes.Buffer
	p := probe.New(fakeGraph{}, fakeOpener{sess: &fakeSession{}}, &buf)
	assert.Error(t, p.Run("model.onnx"))
}
