package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankTopKCardinality(t *testing.T) {
	r := CosineRanker{}
	cands := []Candidate{
		{Vector: []float32{1, 0}, Text: "a"},
		{Vector: []float32{0, 1}, Text: "b"},
		{Vector: []float32{1, 1}, Text: "c"},
	}

	got := r.Rank([]float32{1, 0}, cands, 2)
	require.Len(t, got, 2)

	got = r.Rank([]float32{1, 0}, cands, 10)
	assert.Len(t, got, 3, "topK beyond candidate count returns all candidates")
}

func TestRankDescendingOrder(t *testing.T) {
	r := CosineRanker{}
	cands := []Candidate{
		{Vector: []float32{0, 1}, Text: "orthogonal"},
		{Vector: []float32{1, 0}, Text: "identical"},
		{Vector: []float32{1, 1}, Text: "diagonal"},
	}

	got := r.Rank([]float32{1, 0}, cands, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "identical", got[0].Text)
	assert.Equal(t, "diagonal", got[1].Text)
	assert.Equal(t, "orthogonal", got[2].Text)
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i].Score, got[i-1].Score)
	}
}

func TestRankStableTies(t *testing.T) {
	r := CosineRanker{}
	// identical vectors -> identical scores; insertion order must hold
	cands := []Candidate{
		{Vector: []float32{1, 2}, Text: "first"},
		{Vector: []float32{1, 2}, Text: "second"},
		{Vector: []float32{1, 2}, Text: "third"},
	}

	got := r.Rank([]float32{1, 2}, cands, 3)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"first", "second", "third"},
		[]string{got[0].Text, got[1].Text, got[2].Text})
}

func TestRankSkipsUnusableCandidates(t *testing.T) {
	r := CosineRanker{}
	cands := []Candidate{
		{Vector: nil, Text: "empty"},
		{Vector: []float32{1, 2, 3}, Text: "wrong dimension"},
		{Vector: []float32{1, 0}, Text: "usable"},
	}

	got := r.Rank([]float32{1, 0}, cands, 5)
	require.Len(t, got, 1)
	assert.Equal(t, "usable", got[0].Text)
}

func TestRankTopKOnePicksHighest(t *testing.T) {
	r := CosineRanker{}
	// scores ~0.9 and ~0.4 against the query
	cands := []Candidate{
		{Vector: []float32{0.4, 0.9165151}, Text: "weak"},
		{Vector: []float32{0.9, 0.4358899}, Text: "strong"},
	}

	got := r.Rank([]float32{1, 0}, cands, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "strong", got[0].Text)
	assert.InDelta(t, 0.9, got[0].Score, 1e-4)
}

func TestRankZeroTopK(t *testing.T) {
	r := CosineRanker{}
	assert.Empty(t, r.Rank([]float32{1}, []Candidate{{Vector: []float32{1}}}, 0))
}
