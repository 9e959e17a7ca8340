package images

import (
	"image"
	"image/color"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLetterbox(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		size          int
		expected      Letterbox
	}{
		{
			name:  "landscape 640x480 into 416",
			width: 640, height: 480, size: 416,
			expected: Letterbox{
				Size: 416, SrcWidth: 640, SrcHeight: 480, Scale: 0.65, ScaleX: 0.65, ScaleY: 0.65,
				NewWidth: 416, NewHeight: 312, PadLeft: 0, PadTop: 52,
			},
		},
		{
			name:  "portrait 480x640 into 416",
			width: 480, height: 640, size: 416,
			expected: Letterbox{
				Size: 416, SrcWidth: 480, SrcHeight: 640, Scale: 0.65, ScaleX: 0.65, ScaleY: 0.65,
				NewWidth: 312, NewHeight: 416, PadLeft: 52, PadTop: 0,
			},
		},
		{
			name:  "square upscale",
			width: 208, height: 208, size: 416,
			expected: Letterbox{
				Size: 416, SrcWidth: 208, SrcHeight: 208, Scale: 2, ScaleX: 2, ScaleY: 2,
				NewWidth: 416, NewHeight: 416, PadLeft: 0, PadTop: 0,
			},
		},
		{
			name:  "odd leftover floors the padding",
			width: 100, height: 33, size: 100,
			expected: Letterbox{
				Size: 100, SrcWidth: 100, SrcHeight: 33, Scale: 1, ScaleX: 1, ScaleY: 1,
				NewWidth: 100, NewHeight: 33, PadLeft: 0, PadTop: 33,
			},
		},
		{
			name:  "limiting side rounds to the full size",
			width: 720, height: 540, size: 416,
			expected: Letterbox{
				Size: 416, SrcWidth: 720, SrcHeight: 540, Scale: 416.0 / 720, ScaleX: 416.0 / 720, ScaleY: 312.0 / 540,
				NewWidth: 416, NewHeight: 312, PadLeft: 0, PadTop: 52,
			},
		},
		{
			name:  "thin image keeps one content pixel",
			width: 10000, height: 1, size: 416,
			expected: Letterbox{
				Size: 416, SrcWidth: 10000, SrcHeight: 1, Scale: 0.0416, ScaleX: 0.0416, ScaleY: 1,
				NewWidth: 416, NewHeight: 1, PadLeft: 0, PadTop: 207,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lb, err := NewLetterbox(tt.width, tt.height, tt.size)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected.Scale, lb.Scale, 1e-9)
			assert.InDelta(t, tt.expected.ScaleX, lb.ScaleX, 1e-9)
			assert.InDelta(t, tt.expected.ScaleY, lb.ScaleY, 1e-9)
			tt.expected.Scale = lb.Scale
			tt.expected.ScaleX = lb.ScaleX
			tt.expected.ScaleY = lb.ScaleY
			assert.Equal(t, tt.expected, lb)
		})
	}
}

func TestNewLetterbox_InvalidDimensions(t *testing.T) {
	for _, dims := range [][3]int{{0, 480, 416}, {640, 0, 416}, {-1, -1, 416}, {640, 480, 0}} {
		_, err := NewLetterbox(dims[0], dims[1], dims[2])
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidImage), "expected ErrInvalidImage for %v", dims)
	}
}

// TestLetterbox_RoundTrip checks Inverse(Forward(p)) == p for points and boxes.
func TestLetterbox_RoundTrip(t *testing.T) {
	sizes := [][2]int{{640, 480}, {480, 640}, {1920, 1080}, {333, 777}, {416, 416}, {17, 5}}
	for _, s := range sizes {
		lb, err := NewLetterbox(s[0], s[1], 416)
		require.NoError(t, err)

		box := Rect{X1: float32(s[0]) * 0.1, Y1: float32(s[1]) * 0.2, X2: float32(s[0]) * 0.7, Y2: float32(s[1]) * 0.9}
		back := lb.InverseRect(lb.ForwardRect(box))

		assert.InEpsilon(t, box.X1, back.X1, 1e-4)
		assert.InEpsilon(t, box.Y1, back.Y1, 1e-4)
		assert.InEpsilon(t, box.X2, back.X2, 1e-4)
		assert.InEpsilon(t, box.Y2, back.Y2, 1e-4)
	}
}

func TestLetterbox_ForwardStaysInsideContent(t *testing.T) {
	lb, err := NewLetterbox(640, 480, 416)
	require.NoError(t, err)

	x, y := lb.Forward(0, 0)
	assert.Equal(t, float32(lb.PadLeft), x)
	assert.Equal(t, float32(lb.PadTop), y)

	x, y = lb.Forward(640, 480)
	assert.InDelta(t, float32(lb.PadLeft+lb.NewWidth), x, 1e-3)
	assert.InDelta(t, float32(lb.PadTop+lb.NewHeight), y, 1e-3)
}

func TestLetterboxImage(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 64, 32))
	red := color.RGBA{R: 255, A: 255}
	for y := 0; y < 32; y++ {
		for x := 0; x < 64; x++ {
			src.Set(x, y, red)
		}
	}

	out, lb, err := LetterboxImage(src, 32, nil)
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 32, 32), out.Bounds())
	assert.Equal(t, 32, lb.NewWidth)
	assert.Equal(t, 16, lb.NewHeight)
	assert.Equal(t, 8, lb.PadTop)

	// Padding rows carry the fill color, the content rows carry the image.
	assert.Equal(t, DefaultLetterboxColor, out.RGBAAt(16, 2))
	assert.Equal(t, DefaultLetterboxColor, out.RGBAAt(16, 29))
	content := out.RGBAAt(16, 16)
	assert.Greater(t, content.R, uint8(250))
	assert.Less(t, content.G, uint8(5))
	assert.Less(t, content.B, uint8(5))
}

func solid(width, height int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// TestLetterboxImage_ContentEdgesInvert checks the pixels LetterboxImage writes
// against Inverse: the content edges map back to the image edges and the first
// padding pixel past them maps outside the image.
func TestLetterboxImage_ContentEdgesInvert(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	sizes := [][2]int{{629, 471}, {720, 540}, {45, 45}, {471, 629}, {1000, 999}}

	for _, s := range sizes {
		w, h := s[0], s[1]
		out, lb, err := LetterboxImage(solid(w, h, red), 416, nil)
		require.NoError(t, err)

		if w >= h {
			assert.Equal(t, 416, lb.NewWidth, "%dx%d", w, h)
		} else {
			assert.Equal(t, 416, lb.NewHeight, "%dx%d", w, h)
		}

		left, top := lb.PadLeft, lb.PadTop
		right, bottom := lb.PadLeft+lb.NewWidth, lb.PadTop+lb.NewHeight
		midX, midY := (left+right)/2, (top+bottom)/2

		// Last content column and row carry the image.
		assert.Greater(t, out.RGBAAt(right-1, midY).R, uint8(250), "%dx%d right edge", w, h)
		assert.Greater(t, out.RGBAAt(midX, bottom-1).R, uint8(250), "%dx%d bottom edge", w, h)
		if right < 416 {
			assert.Equal(t, DefaultLetterboxColor, out.RGBAAt(right, midY), "%dx%d right pad", w, h)
		}
		if bottom < 416 {
			assert.Equal(t, DefaultLetterboxColor, out.RGBAAt(midX, bottom), "%dx%d bottom pad", w, h)
		}

		x, y := lb.Inverse(float32(left), float32(top))
		assert.InDelta(t, 0, x, 1e-3)
		assert.InDelta(t, 0, y, 1e-3)

		x, y = lb.Inverse(float32(right), float32(bottom))
		assert.InDelta(t, float32(w), x, 1e-3, "%dx%d", w, h)
		assert.InDelta(t, float32(h), y, 1e-3, "%dx%d", w, h)

		// A pixel center inside the last content column stays inside the image.
		x, _ = lb.Inverse(float32(right)-0.5, float32(midY))
		assert.Less(t, x, float32(w))
		assert.Greater(t, x, float32(w-1)-float32(1/lb.ScaleX))
	}
}

func TestLetterbox_LargeImageBottomEdge(t *testing.T) {
	lb, err := NewLetterbox(4000, 3001, 416)
	require.NoError(t, err)

	_, y := lb.Inverse(0, float32(lb.PadTop+lb.NewHeight))
	assert.InDelta(t, 3001, y, 1e-2)

	_, y = lb.Forward(0, 3001)
	assert.InDelta(t, float32(lb.PadTop+lb.NewHeight), y, 1e-3)
}

func TestLetterboxImage_Empty(t *testing.T) {
	_, _, err := LetterboxImage(image.NewRGBA(image.Rect(0, 0, 0, 0)), 416, color.Black)
	assert.True(t, errors.Is(err, ErrInvalidImage))
}

func TestToTensor(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	img.Set(1, 0, color.RGBA{R: 255, G: 0, B: 51, A: 255})

	tt := ToTensor(img)
	assert.Equal(t, []int{1, 3, 2, 4}, []int(tt.Shape()))

	data := tt.Data().([]float32)
	require.Len(t, data, 24)

	// Pixel (x=1, y=0) lives at offset 1 within each 8-value channel plane.
	assert.InDelta(t, 1.0, data[1], 1e-6)
	assert.InDelta(t, 0.0, data[8+1], 1e-6)
	assert.InDelta(t, 0.2, data[16+1], 1e-6)

	for _, v := range data {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}
}
