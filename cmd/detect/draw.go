package main

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-yolo/models/postprocess"
)

// palette cycles per class so neighbouring classes are easy to tell apart.
var palette = []color.RGBA{
	{0, 255, 0, 0},
	{255, 0, 0, 0},
	{0, 0, 255, 0},
	{255, 255, 0, 0},
	{0, 255, 255, 0},
	{255, 0, 255, 0},
}

// drawDetections draws each box with its label and score onto mat.
func drawDetections(mat *gocv.Mat, dets postprocess.Detections, names []string) {
	bounds := image.Rect(0, 0, mat.Cols(), mat.Rows())

	for i, res := range dets.Results() {
		box := res.Box.Clamp(bounds.Dx(), bounds.Dy())
		rect := image.Rect(int(box.X1), int(box.Y1), int(box.X2), int(box.Y2))
		c := palette[res.Class%len(palette)]

		gocv.Rectangle(mat, rect, c, 2)

		label := fmt.Sprintf("%s %.2f", names[i], res.Score)
		origin := rect.Min.Add(image.Pt(0, -4))
		if origin.Y < 12 {
			origin.Y = rect.Min.Y + 12
		}
		gocv.PutText(mat, label, origin, gocv.FontHersheyPlain, 0.8, c, 1)
	}
}
