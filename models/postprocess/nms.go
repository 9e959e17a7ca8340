// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"context"
	"sort"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
	"gorgonia.org/tensor/native"

	"github.com/nvr-ai/go-yolo/images"
)

// ErrCandidateShape is returned when the candidate box and score matrices don't line up.
var ErrCandidateShape = errors.New("candidate boxes and scores are misaligned")

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	// ScoreThreshold drops candidates scoring at or below it before sorting.
	ScoreThreshold float32 `json:"score_threshold" yaml:"score_threshold"`
	// IoUThreshold is the overlap above which a lower-scoring box is suppressed.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`
	// ClassAware suppresses only within the same class when true.
	ClassAware bool `json:"class_aware" yaml:"class_aware"`
	// MaxDetections caps the number of returned detections. 0 means no cap.
	MaxDetections int `json:"max_detections" yaml:"max_detections"`
}

// Suppressor reduces aggregated candidates to the final detection set.
//
// boxes is an (N, 4) float32 matrix of (xmin, ymin, xmax, ymax) pixel
// rectangles and scores is an (N, numClasses) float32 matrix whose row i scores
// box i. The returned Detections are the final set; callers do not deduplicate
// them further.
type Suppressor interface {
	Suppress(ctx context.Context, boxes, scores *tensor.Dense, scoreThreshold, iouThreshold float32) (Detections, error)
}

// ClassNMS is the default Suppressor: per-class greedy Non-Maximum Suppression.
type ClassNMS struct {
	classAware    bool
	maxDetections int
	logger        *zap.Logger
}

// NewClassNMS creates a suppressor from an NMS configuration.
//
// Arguments:
//   - config: ClassAware and MaxDetections are taken from it. The thresholds are
//     passed per call to Suppress.
//   - logger: Debug logger. Nil means no logging.
//
// Returns:
//   - *ClassNMS: The suppressor.
func NewClassNMS(config NMSConfig, logger *zap.Logger) *ClassNMS {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassNMS{
		classAware:    config.ClassAware,
		maxDetections: config.MaxDetections,
		logger:        logger,
	}
}

type candidate struct {
	Result
	index int
}

// Suppress filters, sorts and suppresses the candidates.
//
// For every box and class the score must be strictly greater than
// scoreThreshold to survive (NaN never does). Survivors are ordered by score
// descending, ties broken by class then candidate index, and greedily kept while
// their IoU with every kept box of the same class (any class when class-agnostic)
// is at most iouThreshold. In class-agnostic mode each box competes only with its
// best-scoring class.
//
// Arguments:
//   - ctx: Checked once before work starts.
//   - boxes: (N, 4) float32 candidate boxes.
//   - scores: (N, numClasses) float32 candidate scores.
//   - scoreThreshold: Minimum score, exclusive.
//   - iouThreshold: Maximum allowed overlap between kept boxes.
//
// Returns:
//   - Detections: The kept boxes ordered by descending score. Empty is valid.
//   - error: ErrCandidateShape if the matrices don't line up.
func (n *ClassNMS) Suppress(
	ctx context.Context,
	boxes, scores *tensor.Dense,
	scoreThreshold, iouThreshold float32,
) (Detections, error) {
	if err := ctx.Err(); err != nil {
		return Detections{}, err
	}

	rows, err := candidateRows(boxes, scores)
	if err != nil {
		return Detections{}, err
	}
	if rows == 0 {
		return NewDetections(nil), nil
	}

	boxMat, err := native.MatrixF32(boxes)
	if err != nil {
		return Detections{}, errors.Wrap(err, "reading candidate boxes")
	}
	scoreMat, err := native.MatrixF32(scores)
	if err != nil {
		return Detections{}, errors.Wrap(err, "reading candidate scores")
	}

	candidates := make([]candidate, 0, 64)
	for i := 0; i < rows; i++ {
		box := images.Rect{X1: boxMat[i][0], Y1: boxMat[i][1], X2: boxMat[i][2], Y2: boxMat[i][3]}

		if !n.classAware {
			best, class := bestClass(scoreMat[i])
			if best > scoreThreshold {
				candidates = append(candidates, candidate{Result{Box: box, Score: best, Class: class}, i})
			}
			continue
		}

		for c, s := range scoreMat[i] {
			if s > scoreThreshold {
				candidates = append(candidates, candidate{Result{Box: box, Score: s, Class: c}, i})
			}
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		ca, cb := candidates[a], candidates[b]
		if ca.Score != cb.Score {
			return ca.Score > cb.Score
		}
		if ca.Class != cb.Class {
			return ca.Class < cb.Class
		}
		return ca.index < cb.index
	})

	sorted := make([]Result, len(candidates))
	for i, c := range candidates {
		sorted[i] = c.Result
	}

	kept := ApplyGreedyNMS(sorted, iouThreshold, n.classAware)
	if n.maxDetections > 0 && len(kept) > n.maxDetections {
		kept = kept[:n.maxDetections]
	}

	n.logger.Debug("suppression finished",
		zap.Int("boxes", rows),
		zap.Int("candidates", len(candidates)),
		zap.Int("kept", len(kept)),
	)

	return NewDetections(kept), nil
}

// candidateRows validates the candidate matrices and returns the row count.
func candidateRows(boxes, scores *tensor.Dense) (int, error) {
	if boxes == nil || scores == nil {
		return 0, errors.Wrap(ErrCandidateShape, "nil matrix")
	}
	if boxes.Dtype() != tensor.Float32 || scores.Dtype() != tensor.Float32 {
		return 0, errors.Wrapf(ErrCandidateShape, "dtypes %v and %v, want float32", boxes.Dtype(), scores.Dtype())
	}

	bs, ss := boxes.Shape(), scores.Shape()
	if len(bs) != 2 || bs[1] != 4 {
		return 0, errors.Wrapf(ErrCandidateShape, "boxes shape %v, want (N, 4)", bs)
	}
	if len(ss) != 2 || ss[1] < 1 {
		return 0, errors.Wrapf(ErrCandidateShape, "scores shape %v, want (N, numClasses)", ss)
	}
	if bs[0] != ss[0] {
		return 0, errors.Wrapf(ErrCandidateShape, "%d boxes but %d score rows", bs[0], ss[0])
	}
	return bs[0], nil
}

// bestClass returns the highest score and its class; the lowest index wins ties.
func bestClass(scores []float32) (float32, int) {
	best, class := scores[0], 0
	for c := 1; c < len(scores); c++ {
		if scores[c] > best || (math32.IsNaN(best) && !math32.IsNaN(scores[c])) {
			best, class = scores[c], c
		}
	}
	return best, class
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// Arguments:
//   - detections: Slice of detections sorted by descending score.
//   - iouThreshold: IoU threshold above which overlapping boxes are suppressed.
//   - classAware: If true, a box only suppresses boxes of its own class.
//
// Returns:
//   - Filtered slice of detections, still in input order. Nil if no
//     detections are provided.
func ApplyGreedyNMS(detections []Result, iouThreshold float32, classAware bool) []Result {
	n := len(detections)
	if n == 0 {
		return nil
	}

	filtered := make([]Result, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := detections[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if classAware && detections[j].Class != anchor.Class {
				continue
			}

			if images.CalculateIoU(anchor.Box, detections[j].Box) > iouThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
