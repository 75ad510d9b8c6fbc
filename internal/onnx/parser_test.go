package onnx

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// enc builds protobuf wire data for test models.
type enc struct {
	buf []byte
}

func (e *enc) key(field, wire int) {
	e.uvarint(uint64(field)<<3 | uint64(wire))
}

func (e *enc) uvarint(v uint64) {
	e.buf = binary.AppendUvarint(e.buf, v)
}

func (e *enc) varint(field int, v int64) {
	e.key(field, wireVarint)
	e.uvarint(uint64(v))
}

func (e *enc) bytes(field int, b []byte) {
	e.key(field, wireBytes)
	e.uvarint(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *enc) str(field int, s string) {
	e.bytes(field, []byte(s))
}

func (e *enc) msg(field int, sub *enc) {
	e.bytes(field, sub.buf)
}

type testDim struct {
	value int64
	param string
}

func encValueInfo(name string, elemType int32, dims []testDim) *enc {
	shapeMsg := &enc{}
	for _, d := range dims {
		dim := &enc{}
		if d.param != "" {
			dim.str(2, d.param)
		} else {
			dim.varint(1, d.value)
		}
		shapeMsg.msg(1, dim)
	}
	tensorType := &enc{}
	tensorType.varint(1, int64(elemType))
	tensorType.msg(2, shapeMsg)
	typ := &enc{}
	typ.msg(1, tensorType)
	vi := &enc{}
	vi.str(1, name)
	vi.msg(2, typ)
	return vi
}

func encNode(opType string, inputs, outputs []string, attrs *enc) *enc {
	n := &enc{}
	for _, in := range inputs {
		n.str(1, in)
	}
	for _, out := range outputs {
		n.str(2, out)
	}
	n.str(4, opType)
	if attrs != nil {
		n.msg(5, attrs)
	}
	return n
}

func encIntsAttr(name string, vals []int64) *enc {
	a := &enc{}
	a.str(1, name)
	packed := &enc{}
	for _, v := range vals {
		packed.uvarint(uint64(v))
	}
	a.bytes(7, packed.buf)
	a.varint(20, 7) // INTS
	return a
}

// buildConvModel encodes a one-node Conv model with a dynamic batch dim.
func buildConvModel(t *testing.T) []byte {
	t.Helper()

	graph := &enc{}
	graph.str(2, "scrfd_stem")
	graph.msg(1, encNode("Conv", []string{"input.1", "W"}, []string{"feat"},
		encIntsAttr("strides", []int64{2, 2})))

	// initializer W: float32 [16, 3, 3, 3]
	w := &enc{}
	for _, d := range []int64{16, 3, 3, 3} {
		w.varint(1, d)
	}
	w.varint(2, 1) // float32
	w.str(8, "W")
	w.bytes(9, make([]byte, 16*3*3*3*4))
	graph.msg(5, w)

	graph.msg(11, encValueInfo("input.1", 1, []testDim{
		{param: "batch"}, {value: 3}, {value: 640}, {value: 640},
	}))
	graph.msg(12, encValueInfo("feat", 1, []testDim{
		{param: "batch"}, {value: 16}, {value: 320}, {value: 320},
	}))

	opset := &enc{}
	opset.str(1, "")
	opset.varint(2, 13)

	model := &enc{}
	model.varint(1, 8)
	model.str(2, "pytorch")
	model.str(3, "2.1")
	model.msg(7, graph)
	model.msg(8, opset)
	return model.buf
}

func TestParseConvModel(t *testing.T) {
	m, err := Parse(buildConvModel(t))
	require.NoError(t, err)

	assert.Equal(t, int64(8), m.IRVersion)
	assert.Equal(t, "pytorch", m.ProducerName)
	assert.Equal(t, int64(13), m.OpsetVersion())

	require.NotNil(t, m.Graph)
	assert.Equal(t, "scrfd_stem", m.Graph.Name)
	require.Len(t, m.Graph.Nodes, 1)

	node := m.Graph.Nodes[0]
	assert.Equal(t, "Conv", node.OpType)
	assert.Equal(t, []string{"input.1", "W"}, node.Inputs)
	assert.Equal(t, []string{"feat"}, node.Outputs)
	assert.Equal(t, []int64{2, 2}, node.AttrInts("strides"))

	require.Len(t, m.Graph.Initializers, 1)
	w := m.Graph.Initializers[0]
	assert.Equal(t, "W", w.Name)
	assert.Equal(t, []int64{16, 3, 3, 3}, w.Dims)
	assert.Len(t, w.RawData, 16*3*3*3*4)
}

func TestParseDeclaredShapes(t *testing.T) {
	m, err := Parse(buildConvModel(t))
	require.NoError(t, err)

	inputs := m.Graph.InputTensors()
	require.Len(t, inputs, 1, "initializer W must not count as an input")
	assert.Equal(t, "input.1", inputs[0].Name)
	assert.Equal(t, "(batch, 3, 640, 640)", inputs[0].Shape.String())
	assert.Equal(t, "float32", inputs[0].DType())

	outputs := m.Graph.OutputTensors()
	require.Len(t, outputs, 1)
	assert.Equal(t, "feat", outputs[0].Name)
	assert.Equal(t, "(batch, 16, 320, 320)", outputs[0].Shape.String())
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, os.WriteFile(path, buildConvModel(t), 0o644))

	m, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "scrfd_stem", m.Graph.Name)
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "nope.onnx"))
	assert.Error(t, err)
}

func TestParseNoGraph(t *testing.T) {
	model := &enc{}
	model.varint(1, 8)
	_, err := Parse(model.buf)
	assert.Error(t, err)
}

func TestParseTruncated(t *testing.T) {
	data := buildConvModel(t)
	_, err := Parse(data[:len(data)/2])
	assert.Error(t, err)
}

func TestParseFloatAttr(t *testing.T) {
	a := &enc{}
	a.str(1, "alpha")
	a.key(2, wire32Bit)
	a.buf = binary.LittleEndian.AppendUint32(a.buf, math.Float32bits(0.25))
	a.varint(20, 1) // FLOAT

	node := encNode("LeakyRelu", []string{"x"}, []string{"y"}, a)
	graph := &enc{}
	graph.msg(1, node)
	graph.msg(11, encValueInfo("x", 1, []testDim{{value: 4}}))
	graph.msg(12, encValueInfo("y", 1, []testDim{{value: 4}}))
	model := &enc{}
	model.msg(7, graph)

	m, err := Parse(model.buf)
	require.NoError(t, err)
	attr := m.Graph.Nodes[0].Attr("alpha")
	require.NotNil(t, attr)
	assert.InDelta(t, 0.25, attr.F, 1e-6)
}

func TestSummarize(t *testing.T) {
	m, err := Parse(buildConvModel(t))
	require.NoError(t, err)

	s := Summarize(m)
	assert.Equal(t, int64(8), s.IRVersion)
	assert.Equal(t, int64(13), s.OpsetVersion)
	assert.Equal(t, "pytorch", s.ProducerName)
	assert.Equal(t, 1, s.NodeCount)
	assert.Equal(t, 1, s.InitializerCount)
}
