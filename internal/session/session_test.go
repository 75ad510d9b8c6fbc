package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZeros(t *testing.T) {
	tr := Zeros([]int64{2, 3, 4})
	assert.Equal(t, []int64{2, 3, 4}, tr.Dims)
	assert.Len(t, tr.Data, 24)
	for _, v := range tr.Data {
		assert.Zero(t, v)
	}
}

func TestZerosScalar(t *testing.T) {
	tr := Zeros(nil)
	assert.Empty(t, tr.Dims)
	assert.Len(t, tr.Data, 1)
}

func TestZerosNegativeDim(t *testing.T) {
	// A negative dim means an unresolved shape slipped through; allocate
	// nothing rather than panicking.
	tr := Zeros([]int64{1, -1, 3})
	assert.Empty(t, tr.Data)
}
