package detect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Malagurti/face-pro/internal/detect"
)

func TestIoU(t *testing.T) {
	tests := []struct {
		name string
		a, b detect.Box
		want float32
	}{
		{
			name: "identical",
			a:    detect.Box{X1: 0, Y1: 0, X2: 10, Y2: 10},
			b:    detect.Box{X1: 0, Y1: 0, X2: 10, Y2: 10},
			want: 1,
		},
		{
			name: "disjoint",
			a:    detect.Box{X1: 0, Y1: 0, X2: 10, Y2: 10},
			b:    detect.Box{X1: 20, Y1: 20, X2: 30, Y2: 30},
			want: 0,
		},
		{
			name: "half overlap",
			a:    detect.Box{X1: 0, Y1: 0, X2: 10, Y2: 10},
			b:    detect.Box{X1: 5, Y1: 0, X2: 15, Y2: 10},
			want: 50.0 / 150.0,
		},
		{
			name: "touching edges",
			a:    detect.Box{X1: 0, Y1: 0, X2: 10, Y2: 10},
			b:    detect.Box{X1: 10, Y1: 0, X2: 20, Y2: 10},
			want: 0,
		},
		{
			name: "degenerate",
			a:    detect.Box{X1: 5, Y1: 5, X2: 5, Y2: 5},
			b:    detect.Box{X1: 0, Y1: 0, X2: 10, Y2: 10},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, detect.IoU(tt.a, tt.b), 1e-6)
		})
	}
}

func TestBoxArea(t *testing.T) {
	assert.Equal(t, float32(100), detect.Box{X1: 0, Y1: 0, X2: 10, Y2: 10}.Area())
	assert.Equal(t, float32(0), detect.Box{X1: 10, Y1: 10, X2: 0, Y2: 0}.Area())
}

func TestNonMaxSuppressionKeepsBestOfCluster(t *testing.T) {
	boxes := []detect.Box{
		{X1: 0, Y1: 0, X2: 10, Y2: 10, Score: 0.6},
		{X1: 1, Y1: 1, X2: 11, Y2: 11, Score: 0.9},
		{X1: 2, Y1: 0, X2: 12, Y2: 10, Score: 0.7},
		{X1: 50, Y1: 50, X2: 60, Y2: 60, Score: 0.5},
	}
	kept := detect.NonMaxSuppression(boxes, 0.4)

	require.Len(t, kept, 2)
	assert.Equal(t, float32(0.9), kept[0].Score)
	assert.Equal(t, float32(0.5), kept[1].Score)
}

func TestNonMaxSuppressionDisjointBoxesSurvive(t *testing.T) {
	boxes := []detect.Box{
		{X1: 0, Y1: 0, X2: 10, Y2: 10, Score: 0.6},
		{X1: 20, Y1: 20, X2: 30, Y2: 30, Score: 0.7},
		{X1: 40, Y1: 40, X2: 50, Y2: 50, Score: 0.8},
	}
	kept := detect.NonMaxSuppression(boxes, 0.4)

	require.Len(t, kept, 3)
	// Sorted by descending score.
	assert.Equal(t, float32(0.8), kept[0].Score)
	assert.Equal(t, float32(0.6), kept[2].Score)
}

func TestNonMaxSuppressionEmpty(t *testing.T) {
	assert.Empty(t, detect.NonMaxSuppression(nil, 0.4))
}
