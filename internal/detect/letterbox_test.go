package detect_test

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Malagurti/face-pro/internal/detect"
)

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestLetterboxWideImage(t *testing.T) {
	img := solidImage(128, 64, color.RGBA{R: 255, A: 255})
	frame, mapping := detect.Letterbox(img, 64, 64)

	assert.Equal(t, 64, frame.Bounds().Dx())
	assert.Equal(t, 64, frame.Bounds().Dy())
	assert.Equal(t, detect.Mapping{
		OrigW: 128, OrigH: 64,
		NewW: 64, NewH: 32,
		OffsetX: 0, OffsetY: 16,
	}, mapping)

	// Bands above and below the scaled image stay black.
	_, _, _, a := frame.At(32, 2).RGBA()
	r, _, _, _ := frame.At(32, 2).RGBA()
	assert.NotZero(t, a)
	assert.Zero(t, r)
	r, _, _, _ = frame.At(32, 32).RGBA()
	assert.Equal(t, uint32(0xffff), r)
}

func TestLetterboxSquareIsIdentityMapping(t *testing.T) {
	img := solidImage(64, 64, color.RGBA{G: 255, A: 255})
	_, mapping := detect.Letterbox(img, 64, 64)

	assert.Equal(t, detect.Mapping{
		OrigW: 64, OrigH: 64,
		NewW: 64, NewH: 64,
	}, mapping)
}

func TestNormalizeSolidColor(t *testing.T) {
	img := solidImage(4, 4, color.RGBA{R: 255, G: 0, B: 128, A: 255})
	data := detect.Normalize(img, [3]float32{0.5, 0.5, 0.5}, [3]float32{0.5, 0.5, 0.5})

	require.Len(t, data, 3*16)
	// Channel planes are laid out R, G, B.
	assert.InDelta(t, 1.0, data[0], 1e-5)
	assert.InDelta(t, -1.0, data[16], 1e-5)
	assert.InDelta(t, float64((128.0/255-0.5)/0.5), data[32], 1e-5)
}

func TestMappingToOriginal(t *testing.T) {
	mapping := detect.Mapping{
		OrigW: 128, OrigH: 64,
		NewW: 64, NewH: 32,
		OffsetX: 0, OffsetY: 16,
	}
	got := mapping.ToOriginal(detect.Box{X1: 10, Y1: 20, X2: 30, Y2: 40, Score: 0.8})

	assert.InDelta(t, 20, got.X1, 1e-5)
	assert.InDelta(t, 8, got.Y1, 1e-5)
	assert.InDelta(t, 60, got.X2, 1e-5)
	assert.InDelta(t, 48, got.Y2, 1e-5)
	assert.Equal(t, float32(0.8), got.Score)
}

func TestMappingToOriginalClamps(t *testing.T) {
	mapping := detect.Mapping{
		OrigW: 100, OrigH: 100,
		NewW: 100, NewH: 100,
	}
	got := mapping.ToOriginal(detect.Box{X1: -5, Y1: -5, X2: 500, Y2: 500})

	assert.Equal(t, float32(0), got.X1)
	assert.Equal(t, float32(99), got.X2)
	assert.Equal(t, float32(99), got.Y2)
}
