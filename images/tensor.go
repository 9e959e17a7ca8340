package images

import (
	"image"

	"gorgonia.org/tensor"
)

// ToTensor converts an image into a (1, 3, H, W) float32 tensor in RGB order
// with pixel values scaled to [0, 1].
//
// Arguments:
//   - img: The image to convert.
//
// Returns:
//   - *tensor.Dense: The CHW tensor with a leading batch dimension of 1.
func ToTensor(img image.Image) *tensor.Dense {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	plane := width * height

	data := make([]float32, 3*plane)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := y*width + x
			data[i] = float32(r>>8) / 255
			data[plane+i] = float32(g>>8) / 255
			data[2*plane+i] = float32(b>>8) / 255
		}
	}

	return tensor.New(
		tensor.WithShape(1, 3, height, width),
		tensor.WithBacking(data),
	)
}
