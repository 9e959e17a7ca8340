package models

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-yolo/models/model"
	"github.com/nvr-ai/go-yolo/models/yolov3"
)

// ErrUnsupportedModel is returned by NewModel for an unknown model name.
var ErrUnsupportedModel = errors.New("unsupported model name")

// NewModel creates a new detection model instance based on the specified model name.
//
// The YOLOv3 configuration is read from args.ConfigPath when set, otherwise
// yolov3.DefaultConfig is used. A configuration without labels gets the
// built-in label set matching its class count, if there is one.
//
// Arguments:
//   - args: Configuration parameters specifying the model type and location.
//     An empty Name selects YOLOv3.
//
// Returns:
//   - model.Model: A fully configured model instance implementing the Model interface.
//   - error: An error if the configuration can't be loaded or validated, or the
//     model name is unsupported.
//
// Example:
//
//	detectionModel, err := models.NewModel(model.NewModelArgs{
//	    Name:       model.ModelNameYOLOv3,
//	    Path:       "/models/yolov3.onnx",
//	    ConfigPath: "/models/yolov3.yaml",
//	})
//	if err != nil {
//	    log.Fatalf("Failed to create detection model: %v", err)
//	}
func NewModel(args model.NewModelArgs) (model.Model, error) {
	switch args.Name {
	case model.ModelNameYOLOv3, "":
		cfg, err := loadYOLOv3Config(args.ConfigPath)
		if err != nil {
			return nil, err
		}
		m, err := yolov3.NewModel(args, cfg)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedModel, "%q", args.Name)
	}
}

func loadYOLOv3Config(path string) (yolov3.Config, error) {
	cfg := yolov3.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = yolov3.LoadConfig(path); err != nil {
			return yolov3.Config{}, err
		}
	}

	if len(cfg.Labels) == 0 {
		if set, ok := SetForClassCount(cfg.NumClasses); ok {
			cfg.Labels = set.Names()
		}
	}
	return cfg, nil
}
