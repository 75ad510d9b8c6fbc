// Package pad derives presentation attack signals from a frame stream.
//
// Three cheap signals are tracked per frame: timestamps regressing beyond the
// allowed clock skew (replayed capture), perceptual-hash duplicates inside the
// replay window (frozen or looped frames), and luminance flicker against the
// previous frame (screen re-capture).
package pad

import (
	"bytes"
	"image"
	"image/color"
	"math"
	"math/bits"

	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"

	"github.com/Malagurti/face-pro/internal/parallel"
)

// Config tunes the per-frame signal extraction.
type Config struct {
	ReplayWindowMS            uint64  `json:"replayWindowMs"`
	AllowClockSkewMS          uint64  `json:"allowClockSkewMs"`
	MaxRecentHashes           int     `json:"maxRecentHashes"`
	DuplicateHammingThreshold int     `json:"duplicateHammingThreshold"`
	FlickerSize               int     `json:"flickerSize"`
	FlickerSuspectThreshold   float32 `json:"flickerSuspectThreshold"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ReplayWindowMS:            5000,
		AllowClockSkewMS:          1000,
		MaxRecentHashes:           32,
		DuplicateHammingThreshold: 0,
		FlickerSize:               32,
		FlickerSuspectThreshold:   0.2,
	}
}

type hashEntry struct {
	hash uint64
	ts   uint64
}

// State carries per-stream history between frames. The zero value is ready.
type State struct {
	lastTS        uint64
	haveTS        bool
	recentHashes  []hashEntry
	lastSmallGray []uint8
}

// Signals is the per-frame verdict.
type Signals struct {
	SuspectedReplay bool    `json:"suspectedReplay"`
	DuplicateHash   bool    `json:"duplicateHash"`
	Flicker         float32 `json:"flicker"`
}

// ProcessFrame folds one encoded frame with its client timestamp (millis)
// into the state and returns the extracted signals. Undecodable frames still
// update the timestamp track but skip the image-based signals.
func ProcessFrame(cfg Config, state *State, ts uint64, frame []byte) Signals {
	var signals Signals

	if state.haveTS && ts+cfg.AllowClockSkewMS < state.lastTS {
		signals.SuspectedReplay = true
	}
	state.lastTS = ts
	state.haveTS = true

	img, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return signals
	}

	hash := PerceptualHash(img)
	// Timestamps may regress; only evict entries genuinely older than the
	// window.
	for len(state.recentHashes) > 0 &&
		ts > state.recentHashes[0].ts &&
		ts-state.recentHashes[0].ts > cfg.ReplayWindowMS {
		state.recentHashes = state.recentHashes[1:]
	}
	for _, entry := range state.recentHashes {
		if HammingDistance(entry.hash, hash) <= cfg.DuplicateHammingThreshold {
			signals.DuplicateHash = true
			break
		}
	}
	state.recentHashes = append(state.recentHashes, hashEntry{hash: hash, ts: ts})
	if len(state.recentHashes) > cfg.MaxRecentHashes {
		state.recentHashes = state.recentHashes[1:]
	}

	small := downscaleGray(img, cfg.FlickerSize, cfg.FlickerSize)
	if prev := state.lastSmallGray; len(prev) == len(small) && len(small) > 0 {
		var acc float32
		for i := range small {
			d := int(prev[i]) - int(small[i])
			if d < 0 {
				d = -d
			}
			acc += float32(d) / 255
		}
		signals.Flicker = acc / float32(len(small))
	}
	state.lastSmallGray = small

	return signals
}

// hashSize is the DCT input side; the hash keeps the top-left 8x8 block.
const hashSize = 32

// PerceptualHash computes a 63-bit DCT hash: the image is reduced to a 32x32
// grayscale grid, transformed, and each low-frequency coefficient (DC
// excluded) contributes one bit by comparison against their median.
func PerceptualHash(img image.Image) uint64 {
	gray := downscaleGray(img, hashSize, hashSize)

	var f [hashSize][hashSize]float64
	for y := 0; y < hashSize; y++ {
		for x := 0; x < hashSize; x++ {
			f[y][x] = float64(gray[y*hashSize+x])
		}
	}

	// Naive 2D DCT-II over the low 8x8 frequencies only, one coefficient per
	// work item.
	var coeffs [64]float64
	parallel.For(64, func(i int) {
		u, v := i/8, i%8
		var sum float64
		for y := 0; y < hashSize; y++ {
			for x := 0; x < hashSize; x++ {
				cx := math.Cos(math.Pi / hashSize * (float64(x) + 0.5) * float64(u))
				cy := math.Cos(math.Pi / hashSize * (float64(y) + 0.5) * float64(v))
				sum += f[y][x] * cx * cy
			}
		}
		alphaU := 1.0
		if u == 0 {
			alphaU = 1 / math.Sqrt2
		}
		alphaV := 1.0
		if v == 0 {
			alphaV = 1 / math.Sqrt2
		}
		coeffs[i] = 0.25 * alphaU * alphaV * sum
	}, parallel.DefaultConfig())

	ac := append([]float64(nil), coeffs[1:]...)
	median := medianOf(ac)

	var hash uint64
	for i, c := range coeffs[1:] {
		if c > median {
			hash |= 1 << i
		}
	}
	return hash
}

// HammingDistance counts differing bits between two hashes.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

func medianOf(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return sorted[len(sorted)/2]
}

func downscaleGray(img image.Image, w, h int) []uint8 {
	small := resize.Resize(uint(w), uint(h), img, resize.Bilinear)
	out := make([]uint8, w*h)
	bounds := small.Bounds()
	i := 0
	for y := bounds.Min.Y; y < bounds.Min.Y+h; y++ {
		for x := bounds.Min.X; x < bounds.Min.X+w; x++ {
			out[i] = color.GrayModel.Convert(small.At(x, y)).(color.Gray).Y
			i++
		}
	}
	return out
}
