// Package session wraps onnxruntime for on-model inference. It is the
// runtime-side counterpart to internal/onnx: shapes and types come from the
// runtime's own view of the model, which may disagree with the static graph,
// and inference runs on the real execution provider.
package session

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Malagurti/face-pro/shape"
)

// SharedLibraryEnv names the environment variable consulted for the
// onnxruntime shared library path when no explicit path is given.
const SharedLibraryEnv = "ONNXRUNTIME_SHARED_LIBRARY"

var (
	initOnce sync.Once
	initErr  error
)

// Initialize prepares the onnxruntime environment. Safe to call more than
// once; only the first call's library path takes effect.
func Initialize(libraryPath string) error {
	initOnce.Do(func() {
		if libraryPath == "" {
			libraryPath = os.Getenv(SharedLibraryEnv)
		}
		if libraryPath == "" {
			libraryPath = defaultSharedLibraryPath()
		}
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		initErr = ort.InitializeEnvironment()
	})
	return initErr
}

// Shutdown tears down the onnxruntime environment.
func Shutdown() {
	if ort.IsInitialized() {
		_ = ort.DestroyEnvironment()
	}
}

func defaultSharedLibraryPath() string {
	switch runtime.GOOS {
	case "darwin":
		return "/usr/local/lib/libonnxruntime.dylib"
	case "linux":
		return "/usr/local/lib/libonnxruntime.so"
	}
	return ""
}

// Options configures how a model session executes.
type Options struct {
	LibraryPath    string // onnxruntime shared library; env/default when empty
	UseCUDA        bool   // append the CUDA execution provider
	IntraOpThreads int    // 0 keeps the runtime default
}

// TensorInfo is one declared input or output of an open model.
type TensorInfo struct {
	Name  string
	Shape shape.Shape
	DType string
}

// Tensor is a concrete float32 input bound by name.
type Tensor struct {
	Dims []int64
	Data []float32
}

// Zeros allocates an all-zero tensor of the given concrete shape.
func Zeros(dims []int64) Tensor {
	n := int64(1)
	for _, d := range dims {
		n *= d
	}
	if n < 0 {
		n = 0
	}
	return Tensor{Dims: dims, Data: make([]float32, n)}
}

// Result describes one output produced by a run. Data is only populated for
// float32 outputs; shape and dtype are always reported.
type Result struct {
	Name  string
	Dims  []int64
	DType string
	Data  []float32
}

// Model is an inspectable, runnable model file. The underlying onnxruntime
// session is created per run, bound to exactly the inputs the caller
// supplies, so that missing-input errors surface from the runtime itself.
type Model struct {
	path    string
	opts    Options
	inputs  []TensorInfo
	outputs []TensorInfo

	inputInfo   []ort.InputOutputInfo
	outputNames []string
}

// Open validates the model with onnxruntime and reads its declared IO
// metadata. Initialize must have succeeded first (Open calls it with the
// options' library path).
func Open(path string, opts Options) (*Model, error) {
	if err := Initialize(opts.LibraryPath); err != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", err)
	}
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("open session for %s: %w", path, err)
	}

	m := &Model{path: path, opts: opts, inputInfo: inputs}
	for _, info := range inputs {
		m.inputs = append(m.inputs, convertInfo(info))
	}
	for _, info := range outputs {
		m.outputs = append(m.outputs, convertInfo(info))
		m.outputNames = append(m.outputNames, info.Name)
	}
	return m, nil
}

func convertInfo(info ort.InputOutputInfo) TensorInfo {
	return TensorInfo{
		Name:  info.Name,
		Shape: shape.Of(info.Dimensions...),
		DType: info.DataType.String(),
	}
}

// Inputs returns the declared input metadata in model order.
func (m *Model) Inputs() []TensorInfo { return m.inputs }

// Outputs returns the declared output metadata in model order.
func (m *Model) Outputs() []TensorInfo { return m.outputs }

// Close releases the model. Present for symmetry; per-run sessions are
// destroyed as soon as the run finishes.
func (m *Model) Close() error { return nil }

func (m *Model) sessionOptions() (*ort.SessionOptions, error) {
	if !m.opts.UseCUDA && m.opts.IntraOpThreads == 0 {
		return nil, nil
	}
	so, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	if m.opts.IntraOpThreads > 0 {
		if err := so.SetIntraOpNumThreads(m.opts.IntraOpThreads); err != nil {
			so.Destroy()
			return nil, fmt.Errorf("set intra-op threads: %w", err)
		}
	}
	if m.opts.UseCUDA {
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			so.Destroy()
			return nil, fmt.Errorf("create CUDA provider options: %w", err)
		}
		defer cuda.Destroy()
		if err := so.AppendExecutionProviderCUDA(cuda); err != nil {
			so.Destroy()
			return nil, fmt.Errorf("append CUDA execution provider: %w", err)
		}
	}
	return so, nil
}

// Run executes one inference with the supplied named inputs. Inputs the
// model declares but the caller omits are not bound; if the model requires
// them, the runtime's error propagates unchanged. Outputs are allocated by
// the runtime, so dynamic output shapes materialize to whatever the model
// actually produced.
func (m *Model) Run(inputs map[string]Tensor) ([]Result, error) {
	if len(inputs) == 0 {
		return nil, errors.New("run: no inputs supplied")
	}

	// Bind supplied inputs in declared order for determinism.
	var names []string
	var values []ort.Value
	destroy := func() {
		for _, v := range values {
			if v != nil {
				v.Destroy()
			}
		}
	}
	for _, info := range m.inputInfo {
		in, ok := inputs[info.Name]
		if !ok {
			continue
		}
		tensor, err := ort.NewTensor(ort.NewShape(in.Dims...), in.Data)
		if err != nil {
			destroy()
			return nil, fmt.Errorf("create tensor %s: %w", info.Name, err)
		}
		names = append(names, info.Name)
		values = append(values, tensor)
	}
	defer destroy()
	if len(names) != len(inputs) {
		return nil, fmt.Errorf("run: %d supplied inputs not declared by the model", len(inputs)-len(names))
	}

	so, err := m.sessionOptions()
	if err != nil {
		return nil, err
	}
	if so != nil {
		defer so.Destroy()
	}

	sess, err := ort.NewDynamicAdvancedSession(m.path, names, m.outputNames, so)
	if err != nil {
		return nil, fmt.Errorf("open session for %s: %w", m.path, err)
	}
	defer sess.Destroy()

	outputs := make([]ort.Value, len(m.outputNames))
	if err := sess.Run(values, outputs); err != nil {
		return nil, fmt.Errorf("inference on %s: %w", m.path, err)
	}

	results := make([]Result, 0, len(outputs))
	for i, v := range outputs {
		if v == nil {
			continue
		}
		r := Result{
			Name:  m.outputNames[i],
			Dims:  v.GetShape(),
			DType: m.outputs[i].DType,
		}
		if t, ok := v.(*ort.Tensor[float32]); ok {
			r.Data = append([]float32(nil), t.GetData()...)
		}
		v.Destroy()
		results = append(results, r)
	}
	return results, nil
}
