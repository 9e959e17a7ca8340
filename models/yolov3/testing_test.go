package yolov3

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

var negInf = float32(math.Inf(-1))

// newFeature builds a (1, C, side, side) feature tensor with every value set to fill.
func newFeature(side, numClasses int, fill float32) *tensor.Dense {
	channels := AnchorsPerScale * (BoxFields + numClasses)
	data := make([]float32, channels*side*side)
	for i := range data {
		data[i] = fill
	}
	return tensor.New(tensor.WithShape(1, channels, side, side), tensor.WithBacking(data))
}

// randomFeature builds a feature tensor with values drawn uniformly from [-spread, spread].
func randomFeature(rng *rand.Rand, side, numClasses int, spread float32) *tensor.Dense {
	channels := AnchorsPerScale * (BoxFields + numClasses)
	data := make([]float32, channels*side*side)
	for i := range data {
		data[i] = (rng.Float32()*2 - 1) * spread
	}
	return tensor.New(tensor.WithShape(1, channels, side, side), tensor.WithBacking(data))
}

// slot writes the raw values of one anchor slot into a feature tensor.
type slot struct {
	row, col, anchor int
	tx, ty, tw, th   float32
	objectness       float32
	classes          map[int]float32
}

func setSlot(t *testing.T, feature *tensor.Dense, numClasses int, s slot) {
	t.Helper()

	base := s.anchor * (BoxFields + numClasses)
	values := map[int]float32{
		fieldX:          s.tx,
		fieldY:          s.ty,
		fieldW:          s.tw,
		fieldH:          s.th,
		fieldObjectness: s.objectness,
	}
	for c, v := range s.classes {
		values[fieldClasses+c] = v
	}
	for field, v := range values {
		require.NoError(t, feature.SetAt(v, 0, base+field, s.row, s.col))
	}
}

// uniformAnchorConfig returns a small configuration whose nine anchors are all size x size.
func uniformAnchorConfig(numClasses, inputSize int, size float32) Config {
	cfg := DefaultConfig()
	cfg.NumClasses = numClasses
	cfg.InputSize = inputSize
	cfg.Anchors = make([]Anchor, NumAnchors)
	for i := range cfg.Anchors {
		cfg.Anchors[i] = Anchor{Width: size, Height: size}
	}
	cfg.NMS.ScoreThreshold = 0.3
	cfg.NMS.IoUThreshold = 0.45
	return cfg
}
