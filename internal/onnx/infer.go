package onnx

import (
	"encoding/binary"

	"github.com/Malagurti/face-pro/shape"
)

// InferShapes propagates tensor shapes through the graph and returns a map
// from value name to inferred shape. Seeding order: declared inputs, embedded
// value_info entries, initializer dimensions; then node-by-node propagation
// in graph order. Ops the propagator does not understand simply contribute
// nothing, leaving their outputs to whatever the model declares.
func InferShapes(m *Model) map[string]shape.Shape {
	g := m.Graph
	known := make(map[string]shape.Shape)
	if g == nil {
		return known
	}

	for _, vi := range g.Inputs {
		if s := shapeOf(vi); s != nil {
			known[vi.Name] = s
		}
	}
	for _, vi := range g.ValueInfos {
		if s := shapeOf(vi); s != nil {
			known[vi.Name] = s
		}
	}
	consts := make(map[string]*Tensor, len(g.Initializers))
	for i := range g.Initializers {
		t := &g.Initializers[i]
		known[t.Name] = shape.Of(t.Dims...)
		consts[t.Name] = t
	}

	p := propagator{known: known, consts: consts}
	for i := range g.Nodes {
		p.node(&g.Nodes[i])
	}
	return known
}

// InferredOutputs reports the graph outputs, preferring propagated shapes
// over declared ones when propagation produced a result.
func InferredOutputs(m *Model) []IOTensor {
	known := InferShapes(m)
	outs := m.Graph.OutputTensors()
	for i := range outs {
		if s, ok := known[outs[i].Name]; ok && len(s) > 0 {
			outs[i].Shape = s
		}
	}
	return outs
}

type propagator struct {
	known  map[string]shape.Shape
	consts map[string]*Tensor
}

func (p *propagator) in(n *Node, i int) (shape.Shape, bool) {
	if i >= len(n.Inputs) || n.Inputs[i] == "" {
		return nil, false
	}
	s, ok := p.known[n.Inputs[i]]
	return s, ok
}

func (p *propagator) set(n *Node, i int, s shape.Shape) {
	if i < len(n.Outputs) && n.Outputs[i] != "" && s != nil {
		p.known[n.Outputs[i]] = s
	}
}

func (p *propagator) node(n *Node) {
	switch n.OpType {
	case "Relu", "Sigmoid", "Tanh", "Softmax", "LogSoftmax", "LeakyRelu",
		"Elu", "Selu", "HardSigmoid", "HardSwish", "Erf", "Exp", "Log",
		"Sqrt", "Neg", "Abs", "Ceil", "Floor", "Round", "Reciprocal",
		"Clip", "Cast", "Identity", "Dropout", "BatchNormalization",
		"InstanceNormalization", "LayerNormalization", "LRN", "Sign",
		"Sin", "Cos", "PRelu":
		if s, ok := p.in(n, 0); ok {
			p.set(n, 0, s)
		}
	case "Add", "Sub", "Mul", "Div", "Pow", "Min", "Max":
		a, aok := p.in(n, 0)
		b, bok := p.in(n, 1)
		if aok && bok {
			p.set(n, 0, broadcast(a, b))
		}
	case "Conv":
		p.conv(n)
	case "MaxPool", "AveragePool":
		p.pool(n)
	case "GlobalAveragePool", "GlobalMaxPool":
		if s, ok := p.in(n, 0); ok && len(s) >= 2 {
			out := shape.Shape{s[0], s[1]}
			for i := 2; i < len(s); i++ {
				out = append(out, shape.Fixed(1))
			}
			p.set(n, 0, out)
		}
	case "Gemm":
		p.gemm(n)
	case "MatMul":
		p.matmul(n)
	case "Transpose":
		p.transpose(n)
	case "Flatten":
		p.flatten(n)
	case "Reshape":
		p.reshape(n)
	case "Concat":
		p.concat(n)
	case "Unsqueeze":
		p.unsqueeze(n)
	case "Squeeze":
		p.squeeze(n)
	}
	// Anything else: output shapes stay unknown.
}

// broadcast applies numpy-style broadcasting, aligned on trailing dims.
// A dynamic dimension paired with anything but a literal 1 stays dynamic.
func broadcast(a, b shape.Shape) shape.Shape {
	if len(b) > len(a) {
		a, b = b, a
	}
	out := make(shape.Shape, len(a))
	copy(out, a)
	off := len(a) - len(b)
	for i, db := range b {
		da := a[off+i]
		switch {
		case !da.IsDynamic() && da.Value == 1:
			out[off+i] = db
		case !db.IsDynamic() && db.Value == 1:
			out[off+i] = da
		case da.IsDynamic() && db.IsDynamic():
			out[off+i] = da
		case da.IsDynamic() || db.IsDynamic():
			out[off+i] = shape.Dynamic()
		default:
			out[off+i] = da
		}
	}
	return out
}

func (p *propagator) conv(n *Node) {
	x, xok := p.in(n, 0)
	w, wok := p.in(n, 1)
	if !xok || !wok || len(x) < 3 || len(w) < 3 {
		return
	}
	spatial := len(x) - 2
	kernel := n.AttrInts("kernel_shape")
	if kernel == nil {
		kernel = make([]int64, 0, spatial)
		for _, d := range w[2:] {
			if d.IsDynamic() {
				return
			}
			kernel = append(kernel, d.Value)
		}
	}
	out := shape.Shape{x[0], w[0]}
	out = append(out, convSpatial(n, x[2:], kernel)...)
	p.set(n, 0, out)
}

func (p *propagator) pool(n *Node) {
	x, ok := p.in(n, 0)
	kernel := n.AttrInts("kernel_shape")
	if !ok || len(x) < 3 || kernel == nil {
		return
	}
	out := shape.Shape{x[0], x[1]}
	out = append(out, convSpatial(n, x[2:], kernel)...)
	p.set(n, 0, out)
}

// convSpatial computes output spatial dims shared by Conv and pooling.
func convSpatial(n *Node, in shape.Shape, kernel []int64) shape.Shape {
	spatial := len(in)
	strides := attrIntsOrOnes(n, "strides", spatial)
	dilations := attrIntsOrOnes(n, "dilations", spatial)
	pads := n.AttrInts("pads")
	if pads == nil {
		pads = make([]int64, 2*spatial)
	}
	autoPad := ""
	if a := n.Attr("auto_pad"); a != nil {
		autoPad = string(a.S)
	}
	ceilMode := n.AttrInt("ceil_mode", 0) != 0

	out := make(shape.Shape, spatial)
	for i := 0; i < spatial; i++ {
		if in[i].IsDynamic() || i >= len(kernel) {
			out[i] = shape.Dynamic()
			continue
		}
		switch autoPad {
		case "", "NOTSET", "VALID":
			padded := in[i].Value
			if autoPad != "VALID" && len(pads) >= 2*spatial {
				padded += pads[i] + pads[i+spatial]
			}
			eff := dilations[i]*(kernel[i]-1) + 1
			num := padded - eff
			if num < 0 {
				out[i] = shape.Dynamic()
				continue
			}
			v := num/strides[i] + 1
			if ceilMode && num%strides[i] != 0 {
				v++
			}
			out[i] = shape.Fixed(v)
		case "SAME_UPPER", "SAME_LOWER":
			out[i] = shape.Fixed((in[i].Value + strides[i] - 1) / strides[i])
		default:
			out[i] = shape.Dynamic()
		}
	}
	return out
}

func attrIntsOrOnes(n *Node, name string, count int) []int64 {
	if v := n.AttrInts(name); len(v) >= count {
		return v
	}
	ones := make([]int64, count)
	for i := range ones {
		ones[i] = 1
	}
	return ones
}

func (p *propagator) gemm(n *Node) {
	a, aok := p.in(n, 0)
	b, bok := p.in(n, 1)
	if !aok || !bok || len(a) != 2 || len(b) != 2 {
		return
	}
	m := a[0]
	if n.AttrInt("transA", 0) != 0 {
		m = a[1]
	}
	o := b[1]
	if n.AttrInt("transB", 0) != 0 {
		o = b[0]
	}
	p.set(n, 0, shape.Shape{m, o})
}

func (p *propagator) matmul(n *Node) {
	a, aok := p.in(n, 0)
	b, bok := p.in(n, 1)
	if !aok || !bok || len(a) < 2 || len(b) < 2 {
		return
	}
	batch := broadcast(a[:len(a)-2], b[:len(b)-2])
	out := make(shape.Shape, 0, len(batch)+2)
	out = append(out, batch...)
	out = append(out, a[len(a)-2], b[len(b)-1])
	p.set(n, 0, out)
}

func (p *propagator) transpose(n *Node) {
	x, ok := p.in(n, 0)
	if !ok {
		return
	}
	perm := n.AttrInts("perm")
	out := make(shape.Shape, len(x))
	if perm == nil {
		for i := range x {
			out[i] = x[len(x)-1-i]
		}
	} else {
		if len(perm) != len(x) {
			return
		}
		for i, ax := range perm {
			if ax < 0 || int(ax) >= len(x) {
				return
			}
			out[i] = x[ax]
		}
	}
	p.set(n, 0, out)
}

func (p *propagator) flatten(n *Node) {
	x, ok := p.in(n, 0)
	if !ok {
		return
	}
	axis := int(n.AttrInt("axis", 1))
	if axis < 0 {
		axis += len(x)
	}
	if axis < 0 || axis > len(x) {
		return
	}
	p.set(n, 0, shape.Shape{dimProduct(x[:axis]), dimProduct(x[axis:])})
}

func dimProduct(dims shape.Shape) shape.Dim {
	if len(dims) == 1 {
		return dims[0]
	}
	n := int64(1)
	for _, d := range dims {
		if d.IsDynamic() {
			return shape.Dynamic()
		}
		n *= d.Value
	}
	return shape.Fixed(n)
}

func (p *propagator) reshape(n *Node) {
	x, ok := p.in(n, 0)
	if !ok || len(n.Inputs) < 2 {
		return
	}
	target, ok := constInt64s(p.consts[n.Inputs[1]])
	if !ok {
		return
	}
	out := make(shape.Shape, len(target))
	inferAt := -1
	for i, v := range target {
		switch {
		case v == 0 && i < len(x):
			out[i] = x[i]
		case v == -1:
			inferAt = i
			out[i] = shape.Dynamic()
		case v > 0:
			out[i] = shape.Fixed(v)
		default:
			return
		}
	}
	if inferAt >= 0 {
		total := x.NumElements()
		rest := int64(1)
		for i, d := range out {
			if i == inferAt {
				continue
			}
			if d.IsDynamic() {
				rest = -1
				break
			}
			rest *= d.Value
		}
		if total > 0 && rest > 0 && total%rest == 0 {
			out[inferAt] = shape.Fixed(total / rest)
		}
	}
	p.set(n, 0, out)
}

// constInt64s reads an int64 constant tensor, covering both the typed field
// and raw little-endian storage.
func constInt64s(t *Tensor) ([]int64, bool) {
	if t == nil {
		return nil, false
	}
	if len(t.Int64Data) > 0 {
		return t.Int64Data, true
	}
	if t.DataType == shape.DTInt64 && len(t.RawData)%8 == 0 && len(t.RawData) > 0 {
		out := make([]int64, len(t.RawData)/8)
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint64(t.RawData[i*8:]))
		}
		return out, true
	}
	return nil, false
}

func (p *propagator) concat(n *Node) {
	first, ok := p.in(n, 0)
	if !ok {
		return
	}
	axis := int(n.AttrInt("axis", 0))
	if axis < 0 {
		axis += len(first)
	}
	if axis < 0 || axis >= len(first) {
		return
	}
	out := make(shape.Shape, len(first))
	copy(out, first)
	sum := int64(0)
	dynamic := false
	for i := range n.Inputs {
		s, ok := p.in(n, i)
		if !ok || len(s) != len(first) {
			return
		}
		if s[axis].IsDynamic() {
			dynamic = true
		} else {
			sum += s[axis].Value
		}
	}
	if dynamic {
		out[axis] = shape.Dynamic()
	} else {
		out[axis] = shape.Fixed(sum)
	}
	p.set(n, 0, out)
}

func (p *propagator) unsqueeze(n *Node) {
	x, ok := p.in(n, 0)
	if !ok {
		return
	}
	axes := n.AttrInts("axes")
	if axes == nil && len(n.Inputs) > 1 {
		axes, _ = constInt64s(p.consts[n.Inputs[1]])
	}
	if axes == nil {
		return
	}
	outRank := len(x) + len(axes)
	insert := make(map[int]bool, len(axes))
	for _, a := range axes {
		if a < 0 {
			a += int64(outRank)
		}
		if a < 0 || int(a) >= outRank {
			return
		}
		insert[int(a)] = true
	}
	out := make(shape.Shape, 0, outRank)
	src := 0
	for i := 0; i < outRank; i++ {
		if insert[i] {
			out = append(out, shape.Fixed(1))
		} else if src < len(x) {
			out = append(out, x[src])
			src++
		}
	}
	p.set(n, 0, out)
}

func (p *propagator) squeeze(n *Node) {
	x, ok := p.in(n, 0)
	if !ok {
		return
	}
	axes := n.AttrInts("axes")
	if axes == nil && len(n.Inputs) > 1 {
		axes, _ = constInt64s(p.consts[n.Inputs[1]])
	}
	if axes == nil {
		// Squeeze-all only has a defined result when every dim is known.
		if !x.IsFullyDefined() {
			return
		}
		out := shape.Shape{}
		for _, d := range x {
			if d.Value != 1 {
				out = append(out, d)
			}
		}
		p.set(n, 0, out)
		return
	}
	drop := make(map[int]bool, len(axes))
	for _, a := range axes {
		if a < 0 {
			a += int64(len(x))
		}
		if a < 0 || int(a) >= len(x) {
			return
		}
		drop[int(a)] = true
	}
	out := shape.Shape{}
	for i, d := range x {
		if !drop[i] {
			out = append(out, d)
		}
	}
	p.set(n, 0, out)
}
