// Package postprocess - Postprocessing utilities for models.
package postprocess

import (
	"fmt"

	"github.com/nvr-ai/go-yolo/images"
)

// Result represents a single detection result.
type Result struct {
	// The bounding box of the result in original image pixels.
	Box images.Rect `json:"box" yaml:"box"`
	// The confidence score of the result.
	Score float32 `json:"score" yaml:"score"`
	// The predicted class index of the result.
	Class int `json:"class" yaml:"class"`
}

// String formats the result for logs and CLI output.
func (r Result) String() string {
	return fmt.Sprintf("class %d (score %f): %s", r.Class, r.Score, r.Box)
}

// Detections is the final detection set as three aligned sequences: entry i of
// Boxes, Scores and Classes describe the same detection.
type Detections struct {
	Boxes   []images.Rect `json:"boxes" yaml:"boxes"`
	Scores  []float32     `json:"scores" yaml:"scores"`
	Classes []int         `json:"classes" yaml:"classes"`
}

// NewDetections splits results into aligned sequences, preserving order.
func NewDetections(results []Result) Detections {
	d := Detections{
		Boxes:   make([]images.Rect, len(results)),
		Scores:  make([]float32, len(results)),
		Classes: make([]int, len(results)),
	}
	for i, r := range results {
		d.Boxes[i] = r.Box
		d.Scores[i] = r.Score
		d.Classes[i] = r.Class
	}
	return d
}

// Len returns the number of detections.
func (d Detections) Len() int {
	return len(d.Boxes)
}

// Results zips the aligned sequences back into Result values.
func (d Detections) Results() []Result {
	results := make([]Result, d.Len())
	for i := range results {
		results[i] = Result{Box: d.Boxes[i], Score: d.Scores[i], Class: d.Classes[i]}
	}
	return results
}

// Labels maps every class index to a name using lookup.
//
// Arguments:
//   - lookup: Returns the name for a class index, or "" if unknown.
//
// Returns:
//   - []string: One label per detection. Unknown indices become "class_<n>".
func (d Detections) Labels(lookup func(int) string) []string {
	labels := make([]string, d.Len())
	for i, c := range d.Classes {
		if name := lookup(c); name != "" {
			labels[i] = name
			continue
		}
		labels[i] = fmt.Sprintf("class_%d", c)
	}
	return labels
}

// ClampTo restricts every box to a width x height frame in place.
func (d Detections) ClampTo(width, height int) {
	for i := range d.Boxes {
		d.Boxes[i] = d.Boxes[i].Clamp(width, height)
	}
}
