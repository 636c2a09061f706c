package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilaritySelf(t *testing.T) {
	v := []float32{0.3, -1.2, 4.5, 0.01}
	sim, err := CosineSimilarity(v, v)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-6)
}

func TestCosineSimilaritySymmetric(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{-2, 0.5, 7}
	ab, err := CosineSimilarity(a, b)
	require.NoError(t, err)
	ba, err := CosineSimilarity(b, a)
	require.NoError(t, err)
	assert.InDelta(t, ab, ba, 1e-6)
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sim, 1e-6)
}

func TestCosineSimilarityZeroMagnitude(t *testing.T) {
	sim, err := CosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, float32(0), sim)
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
	assert.Error(t, err)
}

func TestCosineSimilarityEmpty(t *testing.T) {
	_, err := CosineSimilarity(nil, []float32{1})
	assert.Error(t, err)
}
