// Package detect runs SCRFD face detection over ONNX Runtime sessions.
package detect

import "sort"

// Box is one detection in pixel coordinates with a confidence score.
type Box struct {
	X1, Y1, X2, Y2 float32
	Score          float32
}

// Area returns the box area, zero for degenerate boxes.
func (b Box) Area() float32 {
	w := b.X2 - b.X1
	h := b.Y2 - b.Y1
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return w * h
}

// IoU computes intersection over union of two boxes.
func IoU(a, b Box) float32 {
	x1 := max(a.X1, b.X1)
	y1 := max(a.Y1, b.Y1)
	x2 := min(a.X2, b.X2)
	y2 := min(a.Y2, b.Y2)
	w := x2 - x1
	h := y2 - y1
	if w <= 0 || h <= 0 {
		return 0
	}
	inter := w * h
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// NonMaxSuppression keeps the highest scoring boxes, discarding any box whose
// IoU with an already kept box reaches the threshold.
func NonMaxSuppression(boxes []Box, iouThreshold float32) []Box {
	if len(boxes) == 0 {
		return nil
	}
	sorted := make([]Box, len(boxes))
	copy(sorted, boxes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	kept := make([]Box, 0, len(sorted))
	for _, candidate := range sorted {
		suppressed := false
		for _, k := range kept {
			if IoU(candidate, k) >= iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, candidate)
		}
	}
	return kept
}
