package inference

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/models/model"
	"github.com/nvr-ai/go-yolo/models/yolov3"
	"github.com/nvr-ai/go-yolo/profiler"
)

const (
	testInputSize  = 64
	testNumClasses = 1
)

var negInf = float32(math.Inf(-1))

// testModel is a one-class YOLOv3 model whose nine anchors are all 16x16.
func testModel(t *testing.T) *yolov3.YOLOv3 {
	t.Helper()

	cfg := yolov3.DefaultConfig()
	cfg.NumClasses = testNumClasses
	cfg.InputSize = testInputSize
	cfg.Labels = []string{"thing"}
	for i := range cfg.Anchors {
		cfg.Anchors[i] = yolov3.Anchor{Width: 16, Height: 16}
	}

	m, err := yolov3.NewModel(model.NewModelArgs{Logger: zaptest.NewLogger(t)}, cfg)
	require.NoError(t, err)
	return m
}

// backgroundOutputs returns 8/4/2 feature maps with every logit at -Inf.
func backgroundOutputs() []*tensor.Dense {
	channels := yolov3.AnchorsPerScale * (yolov3.BoxFields + testNumClasses)
	outputs := make([]*tensor.Dense, 0, 3)
	for _, side := range []int{8, 4, 2} {
		data := make([]float32, channels*side*side)
		for i := range data {
			data[i] = negInf
		}
		outputs = append(outputs, tensor.New(tensor.WithShape(1, channels, side, side), tensor.WithBacking(data)))
	}
	return outputs
}

// liveOutputs has one confident 16x16 box centered at network pixel (16, 16).
func liveOutputs(t *testing.T) []*tensor.Dense {
	t.Helper()
	outputs := backgroundOutputs()
	for field, v := range []float32{0, 0, 0, 0, 3, 3} {
		require.NoError(t, outputs[2].SetAt(v, 0, field, 0, 0))
	}
	return outputs
}

func solidImage(width, height int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func TestDetector_Detect(t *testing.T) {
	var calls int32
	network := NetworkFunc(func(_ context.Context, input *tensor.Dense) ([]*tensor.Dense, error) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, tensor.Shape{1, 3, testInputSize, testInputSize}, input.Shape())

		// 640x480 scales to 64x48 with 8 rows of padding on top.
		pad, err := input.At(0, 0, 0, 0)
		require.NoError(t, err)
		assert.InDelta(t, 114.0/255, pad, 1e-6)
		content, err := input.At(0, 0, 32, 32)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, content, 1e-2)

		return liveOutputs(t), nil
	})

	d, err := NewDetector(testModel(t), network, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	dets, err := d.Detect(context.Background(), solidImage(640, 480, color.White))
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	require.Equal(t, 1, dets.Len())
	assert.Equal(t, 0, dets.Classes[0])
	assert.InDelta(t, 80, dets.Boxes[0].X1, 1e-3)
	assert.InDelta(t, 0, dets.Boxes[0].Y1, 1e-3)
	assert.InDelta(t, 240, dets.Boxes[0].X2, 1e-3)
	assert.InDelta(t, 160, dets.Boxes[0].Y2, 1e-3)
	assert.Equal(t, []string{"thing"}, dets.Labels(d.Model().Label))
}

func TestDetector_Profiler(t *testing.T) {
	p := profiler.New(0)
	d, err := NewDetector(testModel(t), NetworkFunc(func(context.Context, *tensor.Dense) ([]*tensor.Dense, error) {
		return backgroundOutputs(), nil
	}), WithProfiler(p))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := d.Detect(context.Background(), solidImage(48, 48, color.White))
		require.NoError(t, err)
	}

	for _, stage := range []string{StageLetterbox, StageForward, StagePostProcess} {
		s, ok := p.Stats(stage)
		require.True(t, ok, stage)
		assert.Equal(t, int64(3), s.Count, stage)
	}
}

func TestDetector_PadColor(t *testing.T) {
	network := NetworkFunc(func(_ context.Context, input *tensor.Dense) ([]*tensor.Dense, error) {
		pad, err := input.At(0, 2, 0, 0)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, pad, 1e-6)
		return backgroundOutputs(), nil
	})

	d, err := NewDetector(testModel(t), network, WithPadColor(color.RGBA{B: 255, A: 255}))
	require.NoError(t, err)

	dets, err := d.Detect(context.Background(), solidImage(64, 32, color.Black))
	require.NoError(t, err)
	assert.Equal(t, 0, dets.Len())
}

func TestDetector_Errors(t *testing.T) {
	m := testModel(t)

	t.Run("missing parts", func(t *testing.T) {
		_, err := NewDetector(nil, NetworkFunc(nil))
		assert.Error(t, err)
		_, err = NewDetector(m, nil)
		assert.Error(t, err)
	})

	t.Run("network failure", func(t *testing.T) {
		boom := errors.New("boom")
		d, err := NewDetector(m, NetworkFunc(func(context.Context, *tensor.Dense) ([]*tensor.Dense, error) {
			return nil, boom
		}))
		require.NoError(t, err)

		_, err = d.Detect(context.Background(), solidImage(32, 32, color.White))
		require.Error(t, err)
		assert.True(t, errors.Is(err, boom))
	})

	t.Run("bad network outputs", func(t *testing.T) {
		d, err := NewDetector(m, NetworkFunc(func(context.Context, *tensor.Dense) ([]*tensor.Dense, error) {
			return backgroundOutputs()[:1], nil
		}))
		require.NoError(t, err)

		_, err = d.Detect(context.Background(), solidImage(32, 32, color.White))
		require.Error(t, err)
		assert.True(t, errors.Is(err, yolov3.ErrScaleCount))
	})

	t.Run("empty image", func(t *testing.T) {
		d, err := NewDetector(m, NetworkFunc(func(context.Context, *tensor.Dense) ([]*tensor.Dense, error) {
			t.Fatal("network must not run")
			return nil, nil
		}))
		require.NoError(t, err)

		_, err = d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 0, 10)))
		require.Error(t, err)
		assert.True(t, errors.Is(err, images.ErrInvalidImage))

		_, err = d.Detect(context.Background(), nil)
		assert.True(t, errors.Is(err, images.ErrInvalidImage))
	})

	t.Run("cancelled", func(t *testing.T) {
		var called bool
		d, err := NewDetector(m, NetworkFunc(func(context.Context, *tensor.Dense) ([]*tensor.Dense, error) {
			called = true
			return backgroundOutputs(), nil
		}))
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = d.Detect(ctx, solidImage(32, 32, color.White))
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, called)
	})
}

func TestDetectBatch(t *testing.T) {
	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	network := NetworkFunc(func(_ context.Context, _ *tensor.Dense) ([]*tensor.Dense, error) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		defer func() {
			mu.Lock()
			inFlight--
			mu.Unlock()
		}()
		return liveOutputs(t), nil
	})

	d, err := NewDetector(testModel(t), network)
	require.NoError(t, err)

	// Square images of growing size: the box scales with the image.
	sizes := []int{64, 128, 192, 256, 320, 384}
	imgs := make([]image.Image, len(sizes))
	for i, s := range sizes {
		imgs[i] = solidImage(s, s, color.White)
	}

	results, err := DetectBatch(context.Background(), d, imgs, 2)
	require.NoError(t, err)
	require.Len(t, results, len(imgs))
	assert.LessOrEqual(t, peak, 2)

	for i, s := range sizes {
		require.Equal(t, 1, results[i].Len(), "image %d", i)
		scale := float32(s) / testInputSize
		assert.InDelta(t, 8*scale, results[i].Boxes[0].X1, 1e-3, "image %d", i)
		assert.InDelta(t, 24*scale, results[i].Boxes[0].X2, 1e-3, "image %d", i)
	}
}

func TestDetectBatch_FirstErrorWins(t *testing.T) {
	d, err := NewDetector(testModel(t), NetworkFunc(func(context.Context, *tensor.Dense) ([]*tensor.Dense, error) {
		return backgroundOutputs(), nil
	}))
	require.NoError(t, err)

	imgs := []image.Image{
		solidImage(32, 32, color.White),
		image.NewRGBA(image.Rect(0, 0, 10, 0)),
		solidImage(32, 32, color.White),
	}

	_, err = DetectBatch(context.Background(), d, imgs, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, images.ErrInvalidImage))
	assert.Contains(t, err.Error(), "image 1")
}

func TestDetectBatch_Empty(t *testing.T) {
	d, err := NewDetector(testModel(t), NetworkFunc(func(context.Context, *tensor.Dense) ([]*tensor.Dense, error) {
		return backgroundOutputs(), nil
	}))
	require.NoError(t, err)

	results, err := DetectBatch(context.Background(), d, nil, 4)
	require.NoError(t, err)
	assert.Empty(t, results)
}
