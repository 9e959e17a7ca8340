package yolov3

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/tensor/native"
)

// ErrShapeMismatch is returned when a feature tensor doesn't have the
// (1, AnchorsPerScale*(BoxFields+numClasses), side, side) float32 layout.
var ErrShapeMismatch = errors.New("feature tensor shape mismatch")

// Field offsets inside one anchor's channel block.
const (
	fieldX = iota
	fieldY
	fieldW
	fieldH
	fieldObjectness
	fieldClasses
)

// Prediction is one decoded anchor slot in network space.
type Prediction struct {
	// Cell is the grid cell the slot belongs to.
	Cell Cell
	// Anchor is the slot's index within the scale's anchor triplet.
	Anchor int
	// X, Y is the box center normalized to [0,1] over the feature map.
	X, Y float32
	// W, H is the box size normalized by the network input size.
	W, H float32
	// Objectness is the sigmoid-activated object confidence.
	Objectness float32
	// ClassProbs holds one sigmoid-activated probability per class.
	ClassProbs []float32
}

// ScaleDecoding holds every decoded slot of one scale.
type ScaleDecoding struct {
	// Side is the feature map height and width.
	Side int
	// Predictions holds Side*Side*AnchorsPerScale slots in (row, col, anchor) order.
	Predictions []Prediction
}

// At returns the slot for a cell and anchor.
func (s ScaleDecoding) At(row, col, anchor int) Prediction {
	return s.Predictions[(row*s.Side+col)*AnchorsPerScale+anchor]
}

func sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

// DecodeScale decodes one scale's raw feature tensor.
//
// The channel axis is read as AnchorsPerScale consecutive blocks of
// [tx, ty, tw, th, objectness, class_0 .. class_{n-1}]. Objectness and every
// class logit go through a sigmoid independently (multi-label). The center is
// (cell + sigmoid(t)) / side and the size is (anchor / inputSize) * exp(t);
// exp overflow is not guarded and yields +Inf sizes.
//
// Arguments:
//   - feature: A (1, C, side, side) float32 tensor.
//   - anchors: The anchor triplet assigned to this scale, in network input pixels.
//   - numClasses: The number of class logits per slot.
//   - inputSize: The side of the square network input.
//
// Returns:
//   - ScaleDecoding: The decoded slots in (row, col, anchor) order.
//   - error: ErrShapeMismatch if the tensor layout doesn't match.
func DecodeScale(
	feature *tensor.Dense,
	anchors [AnchorsPerScale]Anchor,
	numClasses, inputSize int,
) (ScaleDecoding, error) {
	side, err := featureSide(feature, numClasses)
	if err != nil {
		return ScaleDecoding{}, err
	}

	channels := AnchorsPerScale * (BoxFields + numClasses)
	view := feature.ShallowClone()
	if err := view.Reshape(channels, side, side); err != nil {
		return ScaleDecoding{}, errors.Wrap(err, "reshaping feature tensor")
	}
	data, err := native.Tensor3F32(view)
	if err != nil {
		return ScaleDecoding{}, errors.Wrap(err, "reading feature tensor")
	}

	var anchorW, anchorH [AnchorsPerScale]float32
	for a, anchor := range anchors {
		anchorW[a] = anchor.Width / float32(inputSize)
		anchorH[a] = anchor.Height / float32(inputSize)
	}

	slots := ReplicatePerAnchor(GridIndex(side), AnchorsPerScale)
	predictions := make([]Prediction, len(slots))
	probs := make([]float32, len(slots)*numClasses)
	fside := float32(side)

	for k, cell := range slots {
		a := k % AnchorsPerScale
		base := a * (BoxFields + numClasses)
		r, c := cell.Row, cell.Col

		classProbs := probs[k*numClasses : (k+1)*numClasses : (k+1)*numClasses]
		for n := range classProbs {
			classProbs[n] = sigmoid(data[base+fieldClasses+n][r][c])
		}

		predictions[k] = Prediction{
			Cell:       cell,
			Anchor:     a,
			X:          (float32(c) + sigmoid(data[base+fieldX][r][c])) / fside,
			Y:          (float32(r) + sigmoid(data[base+fieldY][r][c])) / fside,
			W:          anchorW[a] * math32.Exp(data[base+fieldW][r][c]),
			H:          anchorH[a] * math32.Exp(data[base+fieldH][r][c]),
			Objectness: sigmoid(data[base+fieldObjectness][r][c]),
			ClassProbs: classProbs,
		}
	}

	return ScaleDecoding{Side: side, Predictions: predictions}, nil
}

// featureSide validates a feature tensor and returns its grid side.
func featureSide(feature *tensor.Dense, numClasses int) (int, error) {
	if feature == nil {
		return 0, errors.Wrap(ErrShapeMismatch, "nil feature tensor")
	}
	if feature.Dtype() != tensor.Float32 {
		return 0, errors.Wrapf(ErrShapeMismatch, "dtype %v, want float32", feature.Dtype())
	}

	shape := feature.Shape()
	channels := AnchorsPerScale * (BoxFields + numClasses)
	switch {
	case len(shape) != 4:
		return 0, errors.Wrapf(ErrShapeMismatch, "shape %v, want rank 4", shape)
	case shape[0] != 1:
		return 0, errors.Wrapf(ErrShapeMismatch, "batch %d, want 1", shape[0])
	case shape[1] != channels:
		return 0, errors.Wrapf(ErrShapeMismatch, "%d channels, want %d for %d classes", shape[1], channels, numClasses)
	case shape[2] != shape[3]:
		return 0, errors.Wrapf(ErrShapeMismatch, "feature map %dx%d is not square", shape[2], shape[3])
	case shape[2] <= 0:
		return 0, errors.Wrapf(ErrShapeMismatch, "empty feature map %v", shape)
	}
	return shape[2], nil
}
