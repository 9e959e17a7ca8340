package yolov3

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/models/postprocess"
)

// PostProcess postprocesses the outputs of the YOLOv3 network.
//
// The three feature tensors are decoded, remapped into the original image
// frame through the inverse letterbox, concatenated, and handed to the
// suppressor. Nothing is retained between calls, so one model can serve
// concurrent calls.
//
// Arguments:
//   - ctx: Checked before work starts and passed to the suppressor.
//   - outputs: The NumScales network outputs in anchor-group order.
//   - imageSize: The original image width (X) and height (Y).
//
// Returns:
//   - postprocess.Detections: The final detections. Empty is a valid result.
//   - error: A precondition violation (ErrScaleCount, ErrShapeMismatch,
//     images.ErrInvalidImage) or a suppressor failure.
func (m *YOLOv3) PostProcess(
	ctx context.Context,
	outputs []*tensor.Dense,
	imageSize image.Point,
) (postprocess.Detections, error) {
	if err := ctx.Err(); err != nil {
		return postprocess.Detections{}, err
	}

	lb, err := images.NewLetterbox(imageSize.X, imageSize.Y, m.config.InputSize)
	if err != nil {
		return postprocess.Detections{}, err
	}

	candidates, err := Aggregate(outputs, m.config, lb)
	if err != nil {
		return postprocess.Detections{}, err
	}

	detections, err := m.suppressor.Suppress(
		ctx,
		candidates.Boxes,
		candidates.Scores,
		m.config.NMS.ScoreThreshold,
		m.config.NMS.IoUThreshold,
	)
	if err != nil {
		return postprocess.Detections{}, errors.Wrap(err, "suppressing candidates")
	}

	if m.config.ClampBoxes {
		detections.ClampTo(imageSize.X, imageSize.Y)
	}

	m.logger.Debug("post-processed outputs",
		zap.Int("width", imageSize.X),
		zap.Int("height", imageSize.Y),
		zap.Float64("scale", lb.Scale),
		zap.Int("pad_left", lb.PadLeft),
		zap.Int("pad_top", lb.PadTop),
		zap.Int("candidates", candidates.Len()),
		zap.Int("detections", detections.Len()),
	)

	return detections, nil
}
