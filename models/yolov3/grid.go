// Package yolov3 - decodes YOLOv3 multi-scale outputs into image-space detections.
package yolov3

// Cell is the integer coordinate of one grid cell of a square feature map.
type Cell struct {
	// Row indexes the feature map height axis and offsets box centers along y.
	Row int
	// Col indexes the feature map width axis and offsets box centers along x.
	Col int
}

// GridIndex enumerates the cells of a side x side feature map in row-major
// order: entry i is Cell{Row: i / side, Col: i % side}. This is the same order
// in which DecodeScale walks the feature tensor, so entry i of the grid and
// cell i of a decoded scale always describe the same location.
func GridIndex(side int) []Cell {
	if side <= 0 {
		return nil
	}

	cells := make([]Cell, 0, side*side)
	for row := 0; row < side; row++ {
		for col := 0; col < side; col++ {
			cells = append(cells, Cell{Row: row, Col: col})
		}
	}
	return cells
}

// ReplicatePerAnchor repeats every cell n times, keeping the copies of one cell
// adjacent: entries i*n .. i*n+n-1 are cells[i]. With n = AnchorsPerScale this
// lines up with the anchor-major-within-cell order of decoded predictions.
func ReplicatePerAnchor(cells []Cell, n int) []Cell {
	out := make([]Cell, 0, len(cells)*n)
	for _, c := range cells {
		for a := 0; a < n; a++ {
			out = append(out, c)
		}
	}
	return out
}
