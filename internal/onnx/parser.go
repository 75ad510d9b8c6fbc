package onnx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"golang.org/x/exp/mmap"
)

// Protobuf wire types.
const (
	wireVarint = 0
	wire64Bit  = 1
	wireBytes  = 2
	wire32Bit  = 5
)

// ParseFile reads and decodes an ONNX model. The file is memory-mapped since
// model files routinely run to hundreds of megabytes.
func ParseFile(path string) (*Model, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model %s: %w", path, err)
	}
	defer r.Close()

	data := make([]byte, r.Len())
	if _, err := r.ReadAt(data, 0); err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes an ONNX model from raw bytes.
func Parse(data []byte) (*Model, error) {
	m := &Model{}
	if err := decodeModel(data, m); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if m.Graph == nil {
		return nil, errors.New("decode model: no graph present")
	}
	return m, nil
}

func decodeModel(data []byte, m *Model) error {
	c := cursor{data: data}
	for !c.done() {
		field, wire, err := c.tag()
		if err != nil {
			return err
		}
		switch field {
		case 1: // ir_version
			m.IRVersion, err = c.varint()
		case 2: // producer_name
			m.ProducerName, err = c.str()
		case 3: // producer_version
			m.ProducerVersion, err = c.str()
		case 5: // model_version
			m.ModelVersion, err = c.varint()
		case 7: // graph
			var body []byte
			if body, err = c.bytes(); err == nil {
				m.Graph = &Graph{}
				err = decodeGraph(body, m.Graph)
			}
		case 8: // opset_import
			var body []byte
			if body, err = c.bytes(); err == nil {
				var op OpsetImport
				if err = decodeOpsetImport(body, &op); err == nil {
					m.OpsetImports = append(m.OpsetImports, op)
				}
			}
		default:
			err = c.skip(wire)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func decodeOpsetImport(data []byte, op *OpsetImport) error {
	c := cursor{data: data}
	for !c.done() {
		field, wire, err := c.tag()
		if err != nil {
			return err
		}
		switch field {
		case 1:
			op.Domain, err = c.str()
		case 2:
			op.Version, err = c.varint()
		default:
			err = c.skip(wire)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func decodeGraph(data []byte, g *Graph) error {
	c := cursor{data: data}
	for !c.done() {
		field, wire, err := c.tag()
		if err != nil {
			return err
		}
		switch field {
		case 1: // node
			var body []byte
			if body, err = c.bytes(); err == nil {
				var n Node
				if err = decodeNode(body, &n); err == nil {
					g.Nodes = append(g.Nodes, n)
				}
			}
		case 2: // name
			g.Name, err = c.str()
		case 5: // initializer
			var body []byte
			if body, err = c.bytes(); err == nil {
				var t Tensor
				if err = decodeTensor(body, &t); err == nil {
					g.Initializers = append(g.Initializers, t)
				}
			}
		case 11: // input
			err = appendValueInfo(&c, &g.Inputs)
		case 12: // output
			err = appendValueInfo(&c, &g.Outputs)
		case 13: // value_info
			err = appendValueInfo(&c, &g.ValueInfos)
		default:
			err = c.skip(wire)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func appendValueInfo(c *cursor, dst *[]ValueInfo) error {
	body, err := c.bytes()
	if err != nil {
		return err
	}
	var vi ValueInfo
	if err := decodeValueInfo(body, &vi); err != nil {
		return err
	}
	*dst = append(*dst, vi)
	return nil
}

func decodeNode(data []byte, n *Node) error {
	c := cursor{data: data}
	for !c.done() {
		field, wire, err := c.tag()
		if err != nil {
			return err
		}
		switch field {
		case 1: // input
			var s string
			if s, err = c.str(); err == nil {
				n.Inputs = append(n.Inputs, s)
			}
		case 2: // output
			var s string
			if s, err = c.str(); err == nil {
				n.Outputs = append(n.Outputs, s)
			}
		case 3: // name
			n.Name, err = c.str()
		case 4: // op_type
			n.OpType, err = c.str()
		case 5: // attribute
			var body []byte
			if body, err = c.bytes(); err == nil {
				var a Attribute
				if err = decodeAttribute(body, &a); err == nil {
					n.Attributes = append(n.Attributes, a)
				}
			}
		default:
			err = c.skip(wire)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func decodeAttribute(data []byte, a *Attribute) error {
	c := cursor{data: data}
	for !c.done() {
		field, wire, err := c.tag()
		if err != nil {
			return err
		}
		switch field {
		case 1: // name
			a.Name, err = c.str()
		case 2: // f
			a.F, err = c.float32()
		case 3: // i
			a.I, err = c.varint()
		case 4: // s
			a.S, err = c.bytes()
		case 6: // floats (packed)
			var body []byte
			if body, err = c.bytes(); err == nil {
				for i := 0; i+4 <= len(body); i += 4 {
					bits := binary.LittleEndian.Uint32(body[i:])
					a.Floats = append(a.Floats, math.Float32frombits(bits))
				}
			}
		case 7: // ints (packed)
			a.Ints, err = appendPackedVarints(&c, a.Ints)
		case 20: // type
			var v int64
			if v, err = c.varint(); err == nil {
				a.Type = int32(v)
			}
		default:
			err = c.skip(wire)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func decodeTensor(data []byte, t *Tensor) error {
	c := cursor{data: data}
	for !c.done() {
		field, wire, err := c.tag()
		if err != nil {
			return err
		}
		switch field {
		case 1: // dims
			if wire == wireBytes {
				t.Dims, err = appendPackedVarints(&c, t.Dims)
			} else {
				var v int64
				if v, err = c.varint(); err == nil {
					t.Dims = append(t.Dims, v)
				}
			}
		case 2: // data_type
			var v int64
			if v, err = c.varint(); err == nil {
				t.DataType = int32(v)
			}
		case 7: // int64_data (packed)
			t.Int64Data, err = appendPackedVarints(&c, t.Int64Data)
		case 8: // name
			t.Name, err = c.str()
		case 9: // raw_data
			t.RawData, err = c.bytes()
		default:
			err = c.skip(wire)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func decodeValueInfo(data []byte, vi *ValueInfo) error {
	c := cursor{data: data}
	for !c.done() {
		field, wire, err := c.tag()
		if err != nil {
			return err
		}
		switch field {
		case 1: // name
			vi.Name, err = c.str()
		case 2: // type
			var body []byte
			if body, err = c.bytes(); err == nil {
				vi.Type, err = decodeType(body)
			}
		default:
			err = c.skip(wire)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// decodeType unwraps TypeProto -> TypeProto.Tensor. Sequence and map types
// are skipped; their values report no shape.
func decodeType(data []byte) (*TensorType, error) {
	c := cursor{data: data}
	for !c.done() {
		field, wire, err := c.tag()
		if err != nil {
			return nil, err
		}
		if field != 1 { // tensor_type
			if err := c.skip(wire); err != nil {
				return nil, err
			}
			continue
		}
		body, err := c.bytes()
		if err != nil {
			return nil, err
		}
		return decodeTensorType(body)
	}
	return nil, nil
}

func decodeTensorType(data []byte) (*TensorType, error) {
	tt := &TensorType{}
	c := cursor{data: data}
	for !c.done() {
		field, wire, err := c.tag()
		if err != nil {
			return nil, err
		}
		switch field {
		case 1: // elem_type
			var v int64
			if v, err = c.varint(); err == nil {
				tt.ElemType = int32(v)
			}
		case 2: // shape
			var body []byte
			if body, err = c.bytes(); err == nil {
				err = decodeShape(body, tt)
			}
		default:
			err = c.skip(wire)
		}
		if err != nil {
			return nil, err
		}
	}
	return tt, nil
}

func decodeShape(data []byte, tt *TensorType) error {
	c := cursor{data: data}
	for !c.done() {
		field, wire, err := c.tag()
		if err != nil {
			return err
		}
		if field != 1 { // dim
			if err := c.skip(wire); err != nil {
				return err
			}
			continue
		}
		body, err := c.bytes()
		if err != nil {
			return err
		}
		var d Dimension
		if err := decodeDimension(body, &d); err != nil {
			return err
		}
		tt.Dims = append(tt.Dims, d)
	}
	return nil
}

func decodeDimension(data []byte, d *Dimension) error {
	c := cursor{data: data}
	for !c.done() {
		field, wire, err := c.tag()
		if err != nil {
			return err
		}
		switch field {
		case 1: // dim_value
			d.Value, err = c.varint()
		case 2: // dim_param
			d.Param, err = c.str()
		default:
			err = c.skip(wire)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func appendPackedVarints(c *cursor, dst []int64) ([]int64, error) {
	body, err := c.bytes()
	if err != nil {
		return dst, err
	}
	sub := cursor{data: body}
	for !sub.done() {
		v, err := sub.varint()
		if err != nil {
			return dst, err
		}
		dst = append(dst, v)
	}
	return dst, nil
}

// cursor is a protobuf wire-format reader over a byte slice.
type cursor struct {
	data []byte
	pos  int
}

func (c *cursor) done() bool {
	return c.pos >= len(c.data)
}

func (c *cursor) tag() (field, wire int, err error) {
	v, err := c.varint()
	if err != nil {
		return 0, 0, err
	}
	return int(v >> 3), int(v & 0x7), nil
}

func (c *cursor) varint() (int64, error) {
	var result uint64
	var shift uint
	for {
		if c.pos >= len(c.data) {
			return 0, io.ErrUnexpectedEOF
		}
		b := c.data[c.pos]
		c.pos++
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift >= 64 {
			return 0, errors.New("varint overflow")
		}
	}
	return int64(result), nil
}

func (c *cursor) bytes() ([]byte, error) {
	n, err := c.varint()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, errors.New("negative length")
	}
	end := c.pos + int(n)
	if end > len(c.data) || end < c.pos {
		return nil, io.ErrUnexpectedEOF
	}
	out := c.data[c.pos:end]
	c.pos = end
	return out, nil
}

func (c *cursor) str() (string, error) {
	b, err := c.bytes()
	return string(b), err
}

func (c *cursor) float32() (float32, error) {
	if c.pos+4 > len(c.data) {
		return 0, io.ErrUnexpectedEOF
	}
	bits := binary.LittleEndian.Uint32(c.data[c.pos:])
	c.pos += 4
	return math.Float32frombits(bits), nil
}

func (c *cursor) skip(wire int) error {
	switch wire {
	case wireVarint:
		_, err := c.varint()
		return err
	case wire64Bit:
		if c.pos+8 > len(c.data) {
			return io.ErrUnexpectedEOF
		}
		c.pos += 8
		return nil
	case wireBytes:
		_, err := c.bytes()
		return err
	case wire32Bit:
		if c.pos+4 > len(c.data) {
			return io.ErrUnexpectedEOF
		}
		c.pos += 4
		return nil
	default:
		return fmt.Errorf("unknown wire type %d", wire)
	}
}
