// Package probe reports a model's tensor shapes three ways: as the static
// graph declares them, as the runtime session sees them, and as they
// materialize after one real inference with a zero-filled input.
//
// The three phases run strictly in order and any failure stops the probe;
// a model that cannot be loaded, opened or run is exactly what the probe
// exists to reveal, so nothing is retried or recovered.
package probe

import (
	"errors"
	"fmt"
	"io"

	"github.com/Malagurti/face-pro/shape"
)

// DefaultPlaceholder substitutes for dynamic dimensions when building the
// zero probe tensor. 640 matches the input resolution of the face-detection
// models this tool was built around; override it for other model families.
const DefaultPlaceholder = 640

// TensorMeta is one named tensor with its shape descriptor and element type.
type TensorMeta struct {
	Name  string
	Shape shape.Shape
	DType string
}

// GraphInspector is the static-graph collaborator: it loads a model file and
// reports shape-inferred inputs and outputs.
type GraphInspector interface {
	InferShapes(path string) (inputs, outputs []TensorMeta, err error)
}

// Session is an open runtime-session collaborator.
type Session interface {
	Inputs() []TensorMeta
	Outputs() []TensorMeta
	// Run executes one inference with the supplied named inputs and reports
	// the produced outputs with their concrete shapes.
	Run(inputs map[string]Tensor) ([]RunOutput, error)
	Close() error
}

// SessionOpener opens the runtime-session collaborator for a model path.
type SessionOpener interface {
	Open(path string) (Session, error)
}

// Tensor is a concrete zero-filled probe input.
type Tensor struct {
	Dims []int64
	Data []float32
}

// RunOutput is one materialized output of the probe inference.
type RunOutput struct {
	Name  string
	Dims  []int64
	DType string
}

// Probe drives the three inspection phases.
type Probe struct {
	Graph       GraphInspector
	Opener      SessionOpener
	Placeholder int64
	Out         io.Writer
}

// New wires a probe with the given collaborators and default placeholder.
func New(graph GraphInspector, opener SessionOpener, out io.Writer) *Probe {
	return &Probe{Graph: graph, Opener: opener, Placeholder: DefaultPlaceholder, Out: out}
}

// Run inspects the model at path. Each phase prints its header before doing
// its work, so output up to the point of failure shows which phase died.
func (p *Probe) Run(path string) error {
	placeholder := p.Placeholder
	if placeholder <= 0 {
		placeholder = DefaultPlaceholder
	}

	fmt.Fprintln(p.Out, "== static graph (with shape inference) ==")
	inputs, outputs, err := p.Graph.InferShapes(path)
	if err != nil {
		return fmt.Errorf("static shape query: %w", err)
	}
	for i, t := range inputs {
		fmt.Fprintf(p.Out, "input[%d]: %s %s\n", i, t.Name, t.Shape)
	}
	for i, t := range outputs {
		fmt.Fprintf(p.Out, "output[%d]: %s %s\n", i, t.Name, t.Shape)
	}

	fmt.Fprintln(p.Out, "\n== runtime session (declared shapes) ==")
	sess, err := p.Opener.Open(path)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()

	declared := sess.Inputs()
	for i, t := range declared {
		fmt.Fprintf(p.Out, "rt input[%d]: %s %s %s\n", i, t.Name, t.Shape, t.DType)
	}
	for i, t := range sess.Outputs() {
		fmt.Fprintf(p.Out, "rt output[%d]: %s %s %s\n", i, t.Name, t.Shape, t.DType)
	}

	if len(declared) == 0 {
		return errors.New("model declares no inputs; nothing to probe")
	}

	// One zero-filled inference against the first input materializes any
	// dynamic output shapes. Models needing more inputs fail here, which is
	// itself useful probe output.
	first := declared[0]
	dims := first.Shape.Resolve(placeholder)
	outs, err := sess.Run(map[string]Tensor{first.Name: zeros(dims)})
	if err != nil {
		return fmt.Errorf("probe inference: %w", err)
	}

	fmt.Fprintln(p.Out, "\n== materialized shapes after one inference ==")
	for _, o := range outs {
		fmt.Fprintf(p.Out, "%s %s %s\n", o.Name, shape.FormatInts(o.Dims), o.DType)
	}
	return nil
}

func zeros(dims []int64) Tensor {
	n := int64(1)
	for _, d := range dims {
		n *= d
	}
	return Tensor{Dims: dims, Data: make([]float32, n)}
}
