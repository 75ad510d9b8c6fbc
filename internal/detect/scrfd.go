package detect

import (
	"fmt"
	"image"
	"math"

	"github.com/Malagurti/face-pro/internal/session"
)

// Runner executes one inference over named input tensors. *session.Model
// satisfies it.
type Runner interface {
	Run(inputs map[string]session.Tensor) ([]session.Result, error)
}

// Detector decodes SCRFD detection heads. The model emits per-stride score
// and bbox grids; boxes are distances from anchor centers in stride units.
type Detector struct {
	Runner Runner

	InputW, InputH int
	Mean, Std      [3]float32
	ScoreThreshold float32
	IoUThreshold   float32

	InputName      string
	ScoreOutputs   [3]string
	BBoxOutputs    [3]string
	KPSOutputs     [3]string
	Strides        [3]int
	AnchorsPerCell int
}

// NewDetector returns a detector tuned for the SCRFD 2.5G export, whose
// output tensors keep their numeric graph names.
func NewDetector(r Runner, inputW, inputH int) *Detector {
	return &Detector{
		Runner:         r,
		InputW:         inputW,
		InputH:         inputH,
		Mean:           [3]float32{0.5, 0.5, 0.5},
		Std:            [3]float32{0.5, 0.5, 0.5},
		ScoreThreshold: 0.5,
		IoUThreshold:   0.4,
		InputName:      "input.1",
		ScoreOutputs:   [3]string{"446", "466", "486"},
		BBoxOutputs:    [3]string{"449", "469", "489"},
		KPSOutputs:     [3]string{"452", "472", "492"},
		Strides:        [3]int{8, 16, 32},
		AnchorsPerCell: 2,
	}
}

// Detect runs one frame through the model and returns face boxes in the
// original image's pixel coordinates.
func (d *Detector) Detect(img image.Image) ([]Box, error) {
	frame, mapping := Letterbox(img, d.InputW, d.InputH)
	data := Normalize(frame, d.Mean, d.Std)

	inputs := map[string]session.Tensor{
		d.InputName: {
			Dims: []int64{1, 3, int64(d.InputH), int64(d.InputW)},
			Data: data,
		},
	}
	results, err := d.Runner.Run(inputs)
	if err != nil {
		return nil, fmt.Errorf("run detection model: %w", err)
	}

	byName := make(map[string]session.Result, len(results))
	for _, r := range results {
		byName[r.Name] = r
	}

	var boxes []Box
	for i, stride := range d.Strides {
		score, ok := byName[d.ScoreOutputs[i]]
		if !ok {
			return nil, fmt.Errorf("model output %q missing", d.ScoreOutputs[i])
		}
		bbox, ok := byName[d.BBoxOutputs[i]]
		if !ok {
			return nil, fmt.Errorf("model output %q missing", d.BBoxOutputs[i])
		}
		gridW := d.InputW / stride
		gridH := d.InputH / stride
		decoded, err := d.decodeStride(score.Data, bbox.Data, gridW, gridH, stride)
		if err != nil {
			return nil, err
		}
		boxes = append(boxes, decoded...)
	}

	boxes = NonMaxSuppression(boxes, d.IoUThreshold)
	mapped := make([]Box, len(boxes))
	for i, b := range boxes {
		mapped[i] = mapping.ToOriginal(b)
	}
	return mapped, nil
}

// decodeStride converts one stride's raw score (N, 1) and bbox (N, 4) grids
// into boxes. Anchor centers sit at cell centers; bbox values are left, top,
// right, bottom distances in stride units.
func (d *Detector) decodeStride(score, bbox []float32, gridW, gridH, stride int) ([]Box, error) {
	num := gridW * gridH * d.AnchorsPerCell
	if len(score) != num {
		return nil, fmt.Errorf("stride %d: score grid has %d values, want %d", stride, len(score), num)
	}
	if len(bbox) != num*4 {
		return nil, fmt.Errorf("stride %d: bbox grid has %d values, want %d", stride, len(bbox), num*4)
	}

	var boxes []Box
	for i := 0; i < num; i++ {
		s := sigmoid(score[i])
		if s < d.ScoreThreshold {
			continue
		}
		cell := i / d.AnchorsPerCell
		cx := (float32(cell%gridW) + 0.5) * float32(stride)
		cy := (float32(cell/gridW) + 0.5) * float32(stride)
		b := Box{
			X1:    cx - bbox[i*4]*float32(stride),
			Y1:    cy - bbox[i*4+1]*float32(stride),
			X2:    cx + bbox[i*4+2]*float32(stride),
			Y2:    cy + bbox[i*4+3]*float32(stride),
			Score: s,
		}
		if b.X2 > b.X1 && b.Y2 > b.Y1 {
			boxes = append(boxes, b)
		}
	}
	return boxes, nil
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(float64(-x))))
}
