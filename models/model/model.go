// Package model - Definitions shared by every detection model.
package model

import (
	"context"
	"image"

	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolo/models/postprocess"
)

// Family is the family of models.
type Family string

const (
	// ModelFamilyYOLO is the YOLO model family.
	ModelFamilyYOLO Family = "yolo"
)

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNameYOLOv3 is the name of the YOLOv3 model.
	ModelNameYOLOv3 Name = "yolov3"
)

// BaseModel describes a model and how to reach its network.
type BaseModel struct {
	Name   Name   `json:"name" yaml:"name"`
	Family Family `json:"family" yaml:"family"`
	// Path is the network file (ONNX) the model was built for. May be empty
	// when the network is supplied some other way.
	Path string `json:"path" yaml:"path"`
	// Inputs are the network input names.
	Inputs []string `json:"inputs" yaml:"inputs"`
	// Outputs are the network output names, one per detection scale.
	Outputs []string `json:"outputs" yaml:"outputs"`
	// InputSize is the side of the square network input.
	InputSize int `json:"input_size" yaml:"input_size"`
}

// Model turns raw network outputs into final detections.
type Model interface {
	// Options returns the model description.
	Options() BaseModel
	// PostProcess decodes the network outputs for an image of imageSize
	// (width, height) pixels and returns the final detection set.
	PostProcess(ctx context.Context, outputs []*tensor.Dense, imageSize image.Point) (postprocess.Detections, error)
	// Label returns the name of a class index, or "" if unknown.
	Label(class int) string
}

// NewModelArgs is the arguments for creating a new model.
type NewModelArgs struct {
	Name       Name     `json:"name" yaml:"name"`
	Path       string   `json:"path" yaml:"path"`
	ConfigPath string   `json:"config_path" yaml:"config_path"`
	Family     Family   `json:"family" yaml:"family"`
	Inputs     []string `json:"inputs" yaml:"inputs"`
	Outputs    []string `json:"outputs" yaml:"outputs"`

	Logger *zap.Logger `json:"-" yaml:"-"`
}
