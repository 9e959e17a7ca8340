package yolov3

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-yolo/models/postprocess"
)

const (
	// NumScales is the number of detection scales (network outputs).
	NumScales = 3
	// AnchorsPerScale is the number of anchor priors predicted per grid cell.
	AnchorsPerScale = 3
	// NumAnchors is the size of the full anchor prior set.
	NumAnchors = NumScales * AnchorsPerScale
	// BoxFields is the number of non-class fields per anchor slot:
	// center x, center y, width, height, objectness.
	BoxFields = 5
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("invalid yolov3 configuration")

// Anchor is an anchor prior in network input pixels.
type Anchor struct {
	Width  float32 `json:"width" yaml:"width"`
	Height float32 `json:"height" yaml:"height"`
}

// Config is the read-only configuration of the post-processing pipeline.
//
// It is built once, validated by NewModel, and then only read, so one Config
// can be shared across concurrent inference calls.
type Config struct {
	// NumClasses is the number of class logits per anchor slot.
	NumClasses int `json:"num_classes" yaml:"num_classes"`
	// InputSize is the side of the square network input.
	InputSize int `json:"input_size" yaml:"input_size"`
	// Anchors holds NumAnchors priors; scale i uses Anchors[i*3 : i*3+3].
	Anchors []Anchor `json:"anchors" yaml:"anchors"`
	// NMS holds the suppression thresholds and policy.
	NMS postprocess.NMSConfig `json:"nms" yaml:"nms"`
	// ClampBoxes clamps final boxes to the original image bounds.
	ClampBoxes bool `json:"clamp_boxes" yaml:"clamp_boxes"`
	// Labels optionally names each class index.
	Labels []string `json:"labels" yaml:"labels"`
}

// COCOAnchors are the standard YOLOv3 COCO priors, finest scale first.
var COCOAnchors = []Anchor{
	{10, 13}, {16, 30}, {33, 23},
	{30, 61}, {62, 45}, {59, 119},
	{116, 90}, {156, 198}, {373, 326},
}

// DefaultConfig returns the COCO YOLOv3 configuration at 416x416.
func DefaultConfig() Config {
	anchors := make([]Anchor, len(COCOAnchors))
	copy(anchors, COCOAnchors)

	return Config{
		NumClasses: 80,
		InputSize:  416,
		Anchors:    anchors,
		NMS: postprocess.NMSConfig{
			ScoreThreshold: 0.5,
			IoUThreshold:   0.45,
			ClassAware:     true,
			MaxDetections:  100,
		},
	}
}

// clone returns a copy of c that shares no slices with it.
func (c Config) clone() Config {
	c.Anchors = append([]Anchor(nil), c.Anchors...)
	if c.Labels != nil {
		c.Labels = append([]string(nil), c.Labels...)
	}
	return c
}

// ScaleAnchors returns the anchor triplet assigned to scale.
func (c Config) ScaleAnchors(scale int) [AnchorsPerScale]Anchor {
	var out [AnchorsPerScale]Anchor
	copy(out[:], c.Anchors[scale*AnchorsPerScale:(scale+1)*AnchorsPerScale])
	return out
}

// Channels returns the expected channel count of every feature tensor.
func (c Config) Channels() int {
	return AnchorsPerScale * (BoxFields + c.NumClasses)
}

// Label returns the name of a class index, or "" if none is configured.
func (c Config) Label(class int) string {
	if class < 0 || class >= len(c.Labels) {
		return ""
	}
	return c.Labels[class]
}

// Validate checks every field and reports all problems at once.
func (c Config) Validate() error {
	var errs error

	if c.NumClasses < 1 {
		errs = multierr.Append(errs, fmt.Errorf("num_classes must be >= 1, got %d", c.NumClasses))
	}
	if c.InputSize <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("input_size must be positive, got %d", c.InputSize))
	}
	if len(c.Anchors) != NumAnchors {
		errs = multierr.Append(errs, fmt.Errorf("expected %d anchors, got %d", NumAnchors, len(c.Anchors)))
	}
	for i, a := range c.Anchors {
		if !(a.Width > 0) || !(a.Height > 0) {
			errs = multierr.Append(errs, fmt.Errorf("anchor %d (%gx%g) must be positive", i, a.Width, a.Height))
		}
	}
	if !inUnitRange(c.NMS.ScoreThreshold) {
		errs = multierr.Append(errs, fmt.Errorf("score_threshold must be in [0,1], got %g", c.NMS.ScoreThreshold))
	}
	if !inUnitRange(c.NMS.IoUThreshold) {
		errs = multierr.Append(errs, fmt.Errorf("iou_threshold must be in [0,1], got %g", c.NMS.IoUThreshold))
	}
	if c.NMS.MaxDetections < 0 {
		errs = multierr.Append(errs, fmt.Errorf("max_detections must not be negative, got %d", c.NMS.MaxDetections))
	}
	if len(c.Labels) > 0 && len(c.Labels) != c.NumClasses {
		errs = multierr.Append(errs, fmt.Errorf("%d labels for %d classes", len(c.Labels), c.NumClasses))
	}

	if errs != nil {
		return errors.Wrap(ErrInvalidConfig, errs.Error())
	}
	return nil
}

func inUnitRange(v float32) bool {
	return v >= 0 && v <= 1
}

// fileConfig is the on-disk layout, sectioned like the training configuration.
type fileConfig struct {
	Model struct {
		NumClasses int      `yaml:"num_classes"`
		Labels     []string `yaml:"labels"`
	} `yaml:"model"`
	Train struct {
		InputSize int       `yaml:"input_size"`
		Anchor    []float32 `yaml:"anchor"`
	} `yaml:"train"`
	NMS struct {
		ScoreThreshold *float32 `yaml:"score_threshold"`
		IoUThreshold   *float32 `yaml:"iou_threshold"`
		ClassAware     *bool    `yaml:"class_aware"`
		MaxDetections  *int     `yaml:"max_detections"`
		ClampBoxes     bool     `yaml:"clamp_boxes"`
	} `yaml:"nms"`
}

// ParseConfig decodes a YAML configuration. Missing NMS fields keep the
// DefaultConfig values. The result is not validated.
//
// Arguments:
//   - data: The YAML document.
//
// Returns:
//   - Config: The decoded configuration.
//   - error: An error if the document is malformed or the anchor list has an odd length.
func ParseConfig(data []byte) (Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, errors.Wrap(err, "decoding yolov3 config")
	}
	if len(fc.Train.Anchor)%2 != 0 {
		return Config{}, errors.Wrapf(ErrInvalidConfig, "anchor list has odd length %d", len(fc.Train.Anchor))
	}

	cfg := DefaultConfig()
	cfg.NumClasses = fc.Model.NumClasses
	cfg.Labels = fc.Model.Labels
	cfg.InputSize = fc.Train.InputSize
	cfg.ClampBoxes = fc.NMS.ClampBoxes

	cfg.Anchors = make([]Anchor, 0, len(fc.Train.Anchor)/2)
	for i := 0; i+1 < len(fc.Train.Anchor); i += 2 {
		cfg.Anchors = append(cfg.Anchors, Anchor{Width: fc.Train.Anchor[i], Height: fc.Train.Anchor[i+1]})
	}

	if fc.NMS.ScoreThreshold != nil {
		cfg.NMS.ScoreThreshold = *fc.NMS.ScoreThreshold
	}
	if fc.NMS.IoUThreshold != nil {
		cfg.NMS.IoUThreshold = *fc.NMS.IoUThreshold
	}
	if fc.NMS.ClassAware != nil {
		cfg.NMS.ClassAware = *fc.NMS.ClassAware
	}
	if fc.NMS.MaxDetections != nil {
		cfg.NMS.MaxDetections = *fc.NMS.MaxDetections
	}

	return cfg, nil
}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading yolov3 config %s", path)
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
