package images

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// ErrInvalidImage is returned when an image has a non-positive width or height.
var ErrInvalidImage = errors.New("invalid image dimensions")

// DefaultLetterboxColor is the neutral gray used to fill letterbox padding.
var DefaultLetterboxColor = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// Letterbox describes how an image of SrcWidth x SrcHeight was fitted into a
// Size x Size square.
//
// The image is scaled by Scale (aspect ratio preserved) and rounded to whole
// NewWidth x NewHeight pixels, then centered: PadLeft and PadTop are the integer
// floor of half the leftover space on each axis. Rounding makes the applied
// per-axis scale differ slightly from Scale, so Forward and Inverse use
// ScaleX = NewWidth/SrcWidth and ScaleY = NewHeight/SrcHeight, which describe
// the pixels LetterboxImage actually produces.
type Letterbox struct {
	// Size is the side of the square network input.
	Size int `json:"size" yaml:"size"`
	// SrcWidth is the original image width.
	SrcWidth int `json:"src_width" yaml:"src_width"`
	// SrcHeight is the original image height.
	SrcHeight int `json:"src_height" yaml:"src_height"`
	// Scale is min(Size/SrcWidth, Size/SrcHeight).
	Scale float64 `json:"scale" yaml:"scale"`
	// ScaleX is the horizontal scale of the resized content, NewWidth/SrcWidth.
	ScaleX float64 `json:"scale_x" yaml:"scale_x"`
	// ScaleY is the vertical scale of the resized content, NewHeight/SrcHeight.
	ScaleY float64 `json:"scale_y" yaml:"scale_y"`
	// NewWidth is the width of the scaled content.
	NewWidth int `json:"new_width" yaml:"new_width"`
	// NewHeight is the height of the scaled content.
	NewHeight int `json:"new_height" yaml:"new_height"`
	// PadLeft is the padding added to the left edge.
	PadLeft int `json:"pad_left" yaml:"pad_left"`
	// PadTop is the padding added to the top edge.
	PadTop int `json:"pad_top" yaml:"pad_top"`
}

// NewLetterbox computes the letterbox parameters for an image.
//
// Arguments:
//   - srcWidth: The original image width.
//   - srcHeight: The original image height.
//   - size: The side of the square the image is fitted into.
//
// Returns:
//   - Letterbox: The scale and padding that the forward transform applies.
//   - error: ErrInvalidImage if any dimension is not positive.
//
// @example
// lb, _ := NewLetterbox(640, 480, 416)
// // lb.Scale == 0.65, lb.NewWidth == 416, lb.NewHeight == 312, lb.PadLeft == 0, lb.PadTop == 52
func NewLetterbox(srcWidth, srcHeight, size int) (Letterbox, error) {
	if srcWidth <= 0 || srcHeight <= 0 {
		return Letterbox{}, errors.Wrapf(ErrInvalidImage, "source %dx%d", srcWidth, srcHeight)
	}
	if size <= 0 {
		return Letterbox{}, errors.Wrapf(ErrInvalidImage, "letterbox size %d", size)
	}

	scale := math.Min(float64(size)/float64(srcWidth), float64(size)/float64(srcHeight))
	newWidth := contentSide(srcWidth, scale, size)
	newHeight := contentSide(srcHeight, scale, size)

	return Letterbox{
		Size:      size,
		SrcWidth:  srcWidth,
		SrcHeight: srcHeight,
		Scale:     scale,
		ScaleX:    float64(newWidth) / float64(srcWidth),
		ScaleY:    float64(newHeight) / float64(srcHeight),
		NewWidth:  newWidth,
		NewHeight: newHeight,
		PadLeft:   (size - newWidth) / 2,
		PadTop:    (size - newHeight) / 2,
	}, nil
}

// contentSide rounds a scaled side to whole pixels within [1, size]. The
// limiting side lands on size exactly even when src*scale is 415.999...
func contentSide(src int, scale float64, size int) int {
	side := int(math.Round(float64(src) * scale))
	return min(max(side, 1), size)
}

// Forward maps a point from original image pixels into the padded square.
func (l Letterbox) Forward(x, y float32) (float32, float32) {
	fx := float64(x)*l.ScaleX + float64(l.PadLeft)
	fy := float64(y)*l.ScaleY + float64(l.PadTop)
	return float32(fx), float32(fy)
}

// Inverse maps a point from the padded square back into original image pixels.
func (l Letterbox) Inverse(x, y float32) (float32, float32) {
	ix := (float64(x) - float64(l.PadLeft)) / l.ScaleX
	iy := (float64(y) - float64(l.PadTop)) / l.ScaleY
	return float32(ix), float32(iy)
}

// InverseSize maps a width/height from the padded square back into original pixels.
func (l Letterbox) InverseSize(w, h float32) (float32, float32) {
	return float32(float64(w) / l.ScaleX), float32(float64(h) / l.ScaleY)
}

// ForwardRect maps a box from original image pixels into the padded square.
func (l Letterbox) ForwardRect(r Rect) Rect {
	x1, y1 := l.Forward(r.X1, r.Y1)
	x2, y2 := l.Forward(r.X2, r.Y2)
	return Rect{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// InverseRect maps a box from the padded square back into original image pixels.
func (l Letterbox) InverseRect(r Rect) Rect {
	x1, y1 := l.Inverse(r.X1, r.Y1)
	x2, y2 := l.Inverse(r.X2, r.Y2)
	return Rect{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// LetterboxImage resizes img to fit a size x size square, preserving aspect
// ratio, and pads the remainder with fill.
//
// Arguments:
//   - img: The image to letterbox.
//   - size: The side of the output square.
//   - fill: The padding color. Nil means DefaultLetterboxColor.
//
// Returns:
//   - *image.RGBA: The size x size letterboxed image.
//   - Letterbox: The parameters that were applied.
//   - error: ErrInvalidImage if img is empty or size is not positive.
func LetterboxImage(img image.Image, size int, fill color.Color) (*image.RGBA, Letterbox, error) {
	bounds := img.Bounds()
	lb, err := NewLetterbox(bounds.Dx(), bounds.Dy(), size)
	if err != nil {
		return nil, Letterbox{}, err
	}
	if fill == nil {
		fill = DefaultLetterboxColor
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: fill}, image.Point{}, draw.Src)

	scaled := resize.Resize(uint(lb.NewWidth), uint(lb.NewHeight), img, resize.Bilinear)
	target := image.Rect(lb.PadLeft, lb.PadTop, lb.PadLeft+lb.NewWidth, lb.PadTop+lb.NewHeight)
	draw.Draw(dst, target, scaled, scaled.Bounds().Min, draw.Src)

	return dst, lb, nil
}
