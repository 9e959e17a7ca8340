package inference

import (
	"context"
	"image"
	"image/color"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/models/model"
	"github.com/nvr-ai/go-yolo/models/postprocess"
	"github.com/nvr-ai/go-yolo/profiler"
)

// Pipeline stage names recorded by WithProfiler.
const (
	StageLetterbox   = "letterbox"
	StageForward     = "forward"
	StagePostProcess = "postprocess"
)

// Detector runs the full pipeline on one image: letterbox, tensor conversion,
// network forward pass and post-processing.
type Detector struct {
	model    model.Model
	network  Network
	fill     color.Color
	logger   *zap.Logger
	profiler *profiler.Profiler
}

// DetectorOption customizes a Detector.
type DetectorOption func(*Detector)

// WithLogger sets the detector logger.
func WithLogger(logger *zap.Logger) DetectorOption {
	return func(d *Detector) {
		d.logger = logger
	}
}

// WithPadColor sets the letterbox padding color.
func WithPadColor(c color.Color) DetectorOption {
	return func(d *Detector) {
		d.fill = c
	}
}

// WithProfiler records the duration of every pipeline stage in p.
func WithProfiler(p *profiler.Profiler) DetectorOption {
	return func(d *Detector) {
		d.profiler = p
	}
}

// NewDetector creates a detector.
//
// Arguments:
//   - m: The model that post-processes the network outputs.
//   - network: The network to run.
//   - opts: Optional overrides.
//
// Returns:
//   - *Detector: The detector.
//   - error: An error if m or network is nil.
func NewDetector(m model.Model, network Network, opts ...DetectorOption) (*Detector, error) {
	if m == nil {
		return nil, errors.New("model not configured")
	}
	if network == nil {
		return nil, errors.New("network not configured")
	}

	d := &Detector{
		model:   m,
		network: network,
		fill:    images.DefaultLetterboxColor,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.Named("detector")
	return d, nil
}

// Model returns the detector's model.
func (d *Detector) Model() model.Model {
	return d.model
}

// Detect runs the pipeline on img. The context is checked between stages.
//
// Arguments:
//   - ctx: Cancels the call between stages.
//   - img: The original image.
//
// Returns:
//   - postprocess.Detections: Boxes in img pixel coordinates.
//   - error: An error from any stage.
func (d *Detector) Detect(ctx context.Context, img image.Image) (postprocess.Detections, error) {
	if img == nil {
		return postprocess.Detections{}, errors.Wrap(images.ErrInvalidImage, "nil image")
	}
	start := time.Now()

	done := d.stage(StageLetterbox)
	boxed, lb, err := images.LetterboxImage(img, d.model.Options().InputSize, d.fill)
	done()
	if err != nil {
		return postprocess.Detections{}, errors.Wrap(err, "letterboxing image")
	}
	if err := ctx.Err(); err != nil {
		return postprocess.Detections{}, err
	}

	done = d.stage(StageForward)
	outputs, err := d.network.Forward(ctx, images.ToTensor(boxed))
	done()
	if err != nil {
		return postprocess.Detections{}, errors.Wrap(err, "running network")
	}
	if err := ctx.Err(); err != nil {
		return postprocess.Detections{}, err
	}

	size := image.Pt(lb.SrcWidth, lb.SrcHeight)
	done = d.stage(StagePostProcess)
	dets, err := d.model.PostProcess(ctx, outputs, size)
	done()
	if err != nil {
		return postprocess.Detections{}, errors.Wrap(err, "post-processing outputs")
	}

	d.logger.Debug("detected",
		zap.Int("width", size.X),
		zap.Int("height", size.Y),
		zap.Int("detections", dets.Len()),
		zap.Duration("elapsed", time.Since(start)),
	)

	return dets, nil
}

func (d *Detector) stage(name string) func() {
	if d.profiler == nil {
		return func() {}
	}
	return d.profiler.StartOperation(name)
}
