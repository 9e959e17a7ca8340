// Package images - Geometry and pixel plumbing shared by the detection pipeline.
package images

import "fmt"

// Rect is a bounding box in pixel space.
//
// Corners are float32 so that decoded detections keep sub-pixel precision until
// something downstream (drawing, serialization) decides to round them.
type Rect struct {
	// X1,Y1 is the top-left corner (xmin, ymin).
	X1, Y1 float32
	// X2,Y2 is the bottom-right corner (xmax, ymax).
	X2, Y2 float32
}

// RectFromCenter builds a Rect from a center point and a size.
//
// Arguments:
//   - cx, cy: The center of the box.
//   - w, h: The width and height of the box.
//
// Returns:
//   - Rect: The box as (cx-w/2, cy-h/2, cx+w/2, cy+h/2).
func RectFromCenter(cx, cy, w, h float32) Rect {
	return Rect{
		X1: cx - w/2,
		Y1: cy - h/2,
		X2: cx + w/2,
		Y2: cy + h/2,
	}
}

// Width returns the horizontal extent of the box.
func (r Rect) Width() float32 { return r.X2 - r.X1 }

// Height returns the vertical extent of the box.
func (r Rect) Height() float32 { return r.Y2 - r.Y1 }

// Area returns the area of the box, or 0 for an inverted box.
func (r Rect) Area() float32 {
	w, h := r.Width(), r.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Center returns the center point of the box.
func (r Rect) Center() (float32, float32) {
	return (r.X1 + r.X2) / 2, (r.Y1 + r.Y2) / 2
}

// Clamp restricts the box to the [0,width]x[0,height] frame.
//
// Arguments:
//   - width: The frame width in pixels.
//   - height: The frame height in pixels.
//
// Returns:
//   - Rect: The clamped box.
func (r Rect) Clamp(width, height int) Rect {
	w, h := float32(width), float32(height)
	return Rect{
		X1: min(max(r.X1, 0), w),
		Y1: min(max(r.Y1, 0), h),
		X2: min(max(r.X2, 0), w),
		Y2: min(max(r.Y2, 0), h),
	}
}

// String formats the box for logs and CLI output.
func (r Rect) String() string {
	return fmt.Sprintf("(%.2f, %.2f)-(%.2f, %.2f)", r.X1, r.Y1, r.X2, r.Y2)
}

// CalculateIoU returns the Intersection over Union of two boxes.
//
// IoU is the area where the boxes overlap divided by the area they cover together:
//
//	IoU = Area of Intersection / Area of Union
//
//   - 1.0 means the boxes are identical.
//   - 0.0 means they don't overlap at all.
//
// The intersection corners are the maximum of the two top-left corners and the
// minimum of the two bottom-right corners. If the resulting width or height is
// zero or negative the boxes are disjoint and the result is 0. The union follows
// inclusion-exclusion: Area(A) + Area(B) - Area(A∩B).
//
// Arguments:
//   - r: The first box.
//   - o: The other box to compare against.
//
// Returns:
//   - float32: A value between 0.0 and 1.0. Degenerate inputs (zero union, NaN
//     corners) return 0.
//
// Example Usage:
// ```go
//
//	a := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	b := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
//	iou := CalculateIoU(a, b) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	ix1 := max(r.X1, o.X1)
	iy1 := max(r.Y1, o.Y1)
	ix2 := min(r.X2, o.X2)
	iy2 := min(r.Y2, o.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if !(interW > 0) || !(interH > 0) {
		return 0
	}
	interArea := interW * interH

	unionArea := r.Area() + o.Area() - interArea
	if !(unionArea > 0) {
		return 0
	}

	return interArea / unionArea
}
