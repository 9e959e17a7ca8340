package yolov3

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-yolo/models/model"
	"github.com/nvr-ai/go-yolo/models/postprocess"
)

var (
	// DefaultInputs are the network input names used when none are given.
	DefaultInputs = []string{"input"}
	// DefaultOutputs are the network output names used when none are given,
	// one per scale in anchor-group order.
	DefaultOutputs = []string{"output0", "output1", "output2"}
)

// YOLOv3 is the instance of the YOLOv3 model.
type YOLOv3 struct {
	options    model.BaseModel
	config     Config
	suppressor postprocess.Suppressor
	logger     *zap.Logger
}

// Option customizes a YOLOv3 model.
type Option func(*YOLOv3)

// WithSuppressor replaces the default ClassNMS suppressor.
func WithSuppressor(s postprocess.Suppressor) Option {
	return func(m *YOLOv3) {
		m.suppressor = s
	}
}

// Options returns the options for the YOLOv3 model.
//
// Returns:
//   - The options for the YOLOv3 model.
func (m *YOLOv3) Options() model.BaseModel {
	return m.options
}

// Config returns a copy of the configuration the model was built with.
// Changing the copy doesn't affect the model.
func (m *YOLOv3) Config() Config {
	return m.config.clone()
}

// Label returns the configured name of a class index.
func (m *YOLOv3) Label(class int) string {
	return m.config.Label(class)
}

// NewModel creates a new model.
//
// Arguments:
//   - args: The arguments for creating a new model. Empty Inputs/Outputs fall
//     back to DefaultInputs/DefaultOutputs.
//   - cfg: The pipeline configuration. It is validated here and never modified.
//   - opts: Optional overrides.
//
// Returns:
//   - The model.
//   - An error wrapping ErrInvalidConfig if cfg or args are invalid.
func NewModel(args model.NewModelArgs, cfg Config, opts ...Option) (*YOLOv3, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	inputs := args.Inputs
	if len(inputs) == 0 {
		inputs = DefaultInputs
	}
	outputs := args.Outputs
	if len(outputs) == 0 {
		outputs = DefaultOutputs
	}
	if len(outputs) != NumScales {
		return nil, errors.Wrap(ErrInvalidConfig,
			fmt.Sprintf("NewModel requires %d outputs, got %d", NumScales, len(outputs)))
	}

	logger := args.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg = cfg.clone()

	m := &YOLOv3{
		options: model.BaseModel{
			Name:      model.ModelNameYOLOv3,
			Family:    model.ModelFamilyYOLO,
			Path:      args.Path,
			Inputs:    inputs,
			Outputs:   outputs,
			InputSize: cfg.InputSize,
		},
		config: cfg,
		logger: logger.Named("yolov3"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.suppressor == nil {
		m.suppressor = postprocess.NewClassNMS(cfg.NMS, m.logger)
	}

	return m, nil
}
