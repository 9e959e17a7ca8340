package yolov3

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolo/images"
)

// ErrScaleCount is returned when the number of network outputs doesn't match NumScales.
var ErrScaleCount = errors.New("unexpected number of detection scales")

// Candidates are the flattened boxes and per-class scores of every scale.
//
// Row i of Boxes and row i of Scores describe the same anchor slot. Rows are
// grouped by scale in the order the outputs were supplied, and within a scale
// follow the (row, col, anchor) order of ScaleDecoding.
type Candidates struct {
	// Boxes is an (N, 4) float32 matrix of (xmin, ymin, xmax, ymax) image pixels.
	Boxes *tensor.Dense
	// Scores is an (N, numClasses) float32 matrix of objectness * class probability.
	Scores *tensor.Dense
}

// Len returns the number of candidate rows.
func (c Candidates) Len() int {
	if c.Boxes == nil {
		return 0
	}
	return c.Boxes.Shape()[0]
}

// Aggregate decodes and remaps every scale and concatenates the results.
//
// Scale i is decoded with anchor group i of the configuration, so outputs must
// be supplied in the same order as the anchor groups. Any failing scale fails
// the whole call.
//
// Arguments:
//   - outputs: NumScales feature tensors.
//   - cfg: The pipeline configuration.
//   - lb: The letterbox applied to the original image.
//
// Returns:
//   - Candidates: sum(side_i^2 * AnchorsPerScale) rows.
//   - error: ErrScaleCount or a wrapped ErrShapeMismatch.
func Aggregate(outputs []*tensor.Dense, cfg Config, lb images.Letterbox) (Candidates, error) {
	if len(outputs) != NumScales {
		return Candidates{}, errors.Wrapf(ErrScaleCount, "got %d outputs, want %d", len(outputs), NumScales)
	}

	decoded := make([]ScaleDecoding, NumScales)
	total := 0
	for i, out := range outputs {
		dec, err := DecodeScale(out, cfg.ScaleAnchors(i), cfg.NumClasses, cfg.InputSize)
		if err != nil {
			return Candidates{}, errors.Wrapf(err, "decoding scale %d", i)
		}
		decoded[i] = dec
		total += len(dec.Predictions)
	}

	boxData := make([]float32, 0, total*4)
	scoreData := make([]float32, 0, total*cfg.NumClasses)
	for _, dec := range decoded {
		for _, box := range RemapScale(dec, lb) {
			boxData = append(boxData, box.X1, box.Y1, box.X2, box.Y2)
		}
		for _, p := range dec.Predictions {
			for _, prob := range p.ClassProbs {
				scoreData = append(scoreData, p.Objectness*prob)
			}
		}
	}

	return Candidates{
		Boxes:  tensor.New(tensor.WithShape(total, 4), tensor.WithBacking(boxData)),
		Scores: tensor.New(tensor.WithShape(total, cfg.NumClasses), tensor.WithBacking(scoreData)),
	}, nil
}
