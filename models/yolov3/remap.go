package yolov3

import "github.com/nvr-ai/go-yolo/images"

// Remap converts a network-space prediction into an original-image box.
//
// The normalized center and size are first scaled by the network input size
// into pixels of the padded square, then the letterbox is undone: padding is
// subtracted from the center and both center and size are divided by the
// letterbox scale. Boxes are not clamped to the image bounds.
//
// Arguments:
//   - p: The decoded prediction.
//   - lb: The letterbox that was applied to the original image.
//
// Returns:
//   - images.Rect: (xmin, ymin, xmax, ymax) in original image pixels.
func Remap(p Prediction, lb images.Letterbox) images.Rect {
	size := float32(lb.Size)
	x, y := lb.Inverse(p.X*size, p.Y*size)
	w, h := lb.InverseSize(p.W*size, p.H*size)
	return images.RectFromCenter(x, y, w, h)
}

// RemapScale converts every prediction of a decoded scale, preserving order.
func RemapScale(dec ScaleDecoding, lb images.Letterbox) []images.Rect {
	boxes := make([]images.Rect, len(dec.Predictions))
	for i, p := range dec.Predictions {
		boxes[i] = Remap(p, lb)
	}
	return boxes
}
