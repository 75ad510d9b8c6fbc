package detect

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/nfnt/resize"

	"github.com/Malagurti/face-pro/internal/parallel"
)

// Mapping records how a letterboxed frame relates to the original image, so
// detections can be mapped back to source pixel coordinates.
type Mapping struct {
	OrigW, OrigH int
	NewW, NewH   int
	OffsetX      int
	OffsetY      int
}

// Letterbox scales img to fit targetW x targetH preserving aspect ratio and
// centers it on a black canvas.
func Letterbox(img image.Image, targetW, targetH int) (*image.RGBA, Mapping) {
	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()

	r := min(float64(targetW)/float64(origW), float64(targetH)/float64(origH))
	newW := int(float64(origW)*r + 0.5)
	newH := int(float64(origH)*r + 0.5)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	scaled := resize.Resize(uint(newW), uint(newH), img, resize.Bilinear)

	canvas := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	dx := (targetW - newW) / 2
	dy := (targetH - newH) / 2
	draw.Draw(canvas, image.Rect(dx, dy, dx+newW, dy+newH), scaled, image.Point{}, draw.Src)

	return canvas, Mapping{
		OrigW: origW, OrigH: origH,
		NewW: newW, NewH: newH,
		OffsetX: dx, OffsetY: dy,
	}
}

// Normalize converts a letterboxed frame to a CHW float tensor, applying the
// per-channel mean and std to each pixel scaled into [0, 1].
func Normalize(img *image.RGBA, mean, std [3]float32) []float32 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	numel := w * h
	out := make([]float32, 3*numel)
	parallel.For(h, func(y int) {
		for x := 0; x < w; x++ {
			off := img.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			idx := y*w + x
			out[idx] = (float32(img.Pix[off])/255 - mean[0]) / std[0]
			out[numel+idx] = (float32(img.Pix[off+1])/255 - mean[1]) / std[1]
			out[2*numel+idx] = (float32(img.Pix[off+2])/255 - mean[2]) / std[2]
		}
	}, parallel.DefaultConfig())
	return out
}

// ToOriginal maps a box from letterboxed coordinates back into the original
// image, clamping to its bounds.
func (m Mapping) ToOriginal(b Box) Box {
	scaleX := float32(m.OrigW) / float32(m.NewW)
	scaleY := float32(m.OrigH) / float32(m.NewH)
	clampX := func(v float32) float32 {
		return min(max(v, 0), float32(m.OrigW)-1)
	}
	clampY := func(v float32) float32 {
		return min(max(v, 0), float32(m.OrigH)-1)
	}
	return Box{
		X1:    clampX((b.X1 - float32(m.OffsetX)) * scaleX),
		Y1:    clampY((b.Y1 - float32(m.OffsetY)) * scaleY),
		X2:    clampX((b.X2 - float32(m.OffsetX)) * scaleX),
		Y2:    clampY((b.Y2 - float32(m.OffsetY)) * scaleY),
		Score: b.Score,
	}
}
