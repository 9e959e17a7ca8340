package inference

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

// Backend selects the ONNX Runtime execution provider.
type Backend string

const (
	// BackendCPU runs on the default CPU provider.
	BackendCPU Backend = "cpu"
	// BackendCoreML uses Apple CoreML.
	BackendCoreML Backend = "coreml"
	// BackendCUDA uses NVIDIA CUDA.
	BackendCUDA Backend = "cuda"
	// BackendOpenVINO uses Intel OpenVINO.
	BackendOpenVINO Backend = "openvino"
)

// DefaultStrides are the YOLOv3 output strides, finest scale first.
var DefaultStrides = []int{8, 16, 32}

// ONNXOptions configures an ONNXNetwork.
type ONNXOptions struct {
	// ModelPath is the ONNX model file.
	ModelPath string `json:"model_path" yaml:"model_path"`
	// SharedLibraryPath overrides GetSharedLibPath.
	SharedLibraryPath string `json:"shared_library_path" yaml:"shared_library_path"`
	// InputName is the network input name.
	InputName string `json:"input_name" yaml:"input_name"`
	// OutputNames are the network output names, one per stride.
	OutputNames []string `json:"output_names" yaml:"output_names"`
	// InputSize is the side of the square network input.
	InputSize int `json:"input_size" yaml:"input_size"`
	// NumClasses sizes the output tensors.
	NumClasses int `json:"num_classes" yaml:"num_classes"`
	// Strides holds the downsampling factor of each output. Empty means DefaultStrides.
	Strides []int `json:"strides" yaml:"strides"`
	// Backend is the execution provider. Empty means BackendCPU.
	Backend Backend `json:"backend" yaml:"backend"`
	// IntraOpThreads parallelizes execution within graph nodes. 0 uses the runtime default.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	// InterOpThreads parallelizes execution across graph nodes. 0 uses the runtime default.
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`

	Logger *zap.Logger `json:"-" yaml:"-"`
}

func (o ONNXOptions) strides() []int {
	if len(o.Strides) == 0 {
		return DefaultStrides
	}
	return o.Strides
}

// Validate checks the options without touching the runtime.
func (o ONNXOptions) Validate() error {
	var errs error
	if o.ModelPath == "" {
		errs = multierr.Append(errs, errors.New("model_path is required"))
	}
	if o.InputName == "" {
		errs = multierr.Append(errs, errors.New("input_name is required"))
	}
	if o.InputSize <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("input_size must be positive, got %d", o.InputSize))
	}
	if o.NumClasses < 1 {
		errs = multierr.Append(errs, fmt.Errorf("num_classes must be >= 1, got %d", o.NumClasses))
	}
	strides := o.strides()
	if len(o.OutputNames) != len(strides) {
		errs = multierr.Append(errs, fmt.Errorf("%d output names for %d strides", len(o.OutputNames), len(strides)))
	}
	for _, s := range strides {
		if s <= 0 || (o.InputSize > 0 && o.InputSize%s != 0) {
			errs = multierr.Append(errs, fmt.Errorf("input_size %d is not divisible by stride %d", o.InputSize, s))
		}
	}
	switch o.Backend {
	case "", BackendCPU, BackendCoreML, BackendCUDA, BackendOpenVINO:
	default:
		errs = multierr.Append(errs, fmt.Errorf("unsupported backend %q", o.Backend))
	}
	return errs
}

// ONNXNetwork runs a YOLOv3 ONNX model through ONNX Runtime.
//
// The input and output tensors are preallocated and bound to the session, so
// Forward calls are serialized.
type ONNXNetwork struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	outputs []*ort.Tensor[float32]
	shape   tensor.Shape
	logger  *zap.Logger
}

// GetSharedLibPath returns the default path to the ONNX Runtime shared library for the current platform.
//
// Returns:
//   - string: The path to the shared library.
func GetSharedLibPath() string {
	if path := os.Getenv("ONNXRUNTIME_LIB"); path != "" {
		return path
	}
	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/libonnxruntime.dylib"
	default:
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	}
}

// NewONNXNetwork creates an ONNX Runtime session with preallocated tensors.
//
// Order of operations:
//  1. Option validation: Nothing native is touched for invalid options.
//  2. Library path check: Ensures the native runtime is accessible.
//  3. Environment setup: Initialized once per process.
//  4. Tensor allocation: (1, 3, S, S) input and (1, C, S/stride, S/stride) outputs.
//  5. Session options and execution provider.
//  6. Session creation, binding the tensors.
//
// Arguments:
//   - opts: The network options.
//
// Returns:
//   - *ONNXNetwork: The network. Call Close to release native resources.
//   - error: An error if the options are invalid or the session can't be created.
func NewONNXNetwork(opts ONNXOptions) (*ONNXNetwork, error) {
	if err := opts.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid onnx options")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("onnx")

	libPath := opts.SharedLibraryPath
	if libPath == "" {
		libPath = GetSharedLibPath()
	}
	if _, err := os.Stat(libPath); err != nil {
		return nil, errors.Wrapf(err, "ONNX Runtime library not found at %s", libPath)
	}

	if !ort.IsInitialized() {
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errors.Wrap(err, "initializing ORT environment")
		}
	}

	n := &ONNXNetwork{
		shape:  tensor.Shape{1, 3, opts.InputSize, opts.InputSize},
		logger: logger,
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(opts.InputSize), int64(opts.InputSize)))
	if err != nil {
		return nil, errors.Wrap(err, "creating input tensor")
	}
	n.input = input

	channels := int64(3 * (5 + opts.NumClasses))
	for _, stride := range opts.strides() {
		side := int64(opts.InputSize / stride)
		out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, channels, side, side))
		if err != nil {
			n.Close()
			return nil, errors.Wrapf(err, "creating output tensor for stride %d", stride)
		}
		n.outputs = append(n.outputs, out)
	}

	options, err := sessionOptions(opts)
	if err != nil {
		n.Close()
		return nil, err
	}
	defer options.Destroy()

	outputs := make([]ort.ArbitraryTensor, len(n.outputs))
	for i, out := range n.outputs {
		outputs[i] = out
	}

	session, err := ort.NewAdvancedSession(
		opts.ModelPath,
		[]string{opts.InputName},
		opts.OutputNames,
		[]ort.ArbitraryTensor{n.input},
		outputs,
		options,
	)
	if err != nil {
		n.Close()
		return nil, errors.Wrap(err, "creating ORT session")
	}
	n.session = session

	logger.Info("onnx session ready",
		zap.String("model", opts.ModelPath),
		zap.String("backend", string(opts.Backend)),
		zap.Int("input_size", opts.InputSize),
		zap.Strings("outputs", opts.OutputNames),
	)

	return n, nil
}

func sessionOptions(opts ONNXOptions) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "creating ORT session options")
	}

	if err := multierr.Combine(
		options.SetIntraOpNumThreads(opts.IntraOpThreads),
		options.SetInterOpNumThreads(opts.InterOpThreads),
		options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended),
	); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "configuring ORT session options")
	}

	switch opts.Backend {
	case BackendCoreML:
		err = options.AppendExecutionProviderCoreML(0)
	case BackendOpenVINO:
		err = options.AppendExecutionProviderOpenVINO(map[string]string{
			"device_type": "CPU",
			"precision":   "FP32",
		})
	case BackendCUDA:
		var cuda *ort.CUDAProviderOptions
		cuda, err = ort.NewCUDAProviderOptions()
		if err == nil {
			err = options.AppendExecutionProviderCUDA(cuda)
			cuda.Destroy()
		}
	}
	if err != nil {
		options.Destroy()
		return nil, errors.Wrapf(err, "enabling %s execution provider", opts.Backend)
	}

	return options, nil
}

// Forward copies input into the session, runs it, and returns copies of the outputs.
//
// Arguments:
//   - ctx: Checked before the run starts.
//   - input: A (1, 3, S, S) float32 tensor.
//
// Returns:
//   - []*tensor.Dense: One (1, C, side, side) tensor per stride.
//   - error: ErrInputShape or a runtime failure.
func (n *ONNXNetwork) Forward(ctx context.Context, input *tensor.Dense) ([]*tensor.Dense, error) {
	if err := checkInputShape(input, n.shape); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.session == nil {
		return nil, errors.New("onnx network is closed")
	}

	copy(n.input.GetData(), input.Float32s())
	if err := n.session.Run(); err != nil {
		return nil, errors.Wrap(err, "running ORT session")
	}

	results := make([]*tensor.Dense, len(n.outputs))
	for i, out := range n.outputs {
		data := make([]float32, len(out.GetData()))
		copy(data, out.GetData())

		dims := out.GetShape()
		shape := make([]int, len(dims))
		for j, d := range dims {
			shape[j] = int(d)
		}
		results[i] = tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
	}

	return results, nil
}

// Close releases the session and its tensors.
func (n *ONNXNetwork) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	var err error
	if n.session != nil {
		err = multierr.Append(err, n.session.Destroy())
		n.session = nil
	}
	if n.input != nil {
		err = multierr.Append(err, n.input.Destroy())
		n.input = nil
	}
	for _, out := range n.outputs {
		err = multierr.Append(err, out.Destroy())
	}
	n.outputs = nil
	return err
}
