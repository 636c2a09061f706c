package core

import (
	"log/slog"
	"sort"

	"github.com/aimine/bunshin/internal/utils"
)

// Candidate is one stored (vector, text) pair offered to the ranker.
// Callers pre-filter candidates to the relevant (company, user, bot)
// partition; the ranker itself is partition-agnostic and pure.
type Candidate struct {
	Vector    []float32
	Text      string
	MessageID string
}

type ScoredCandidate struct {
	Candidate
	Score float32
}

// Ranker returns the topK candidates most similar to the query vector,
// best first. Kept as an interface so the linear scan below can be
// replaced by an indexed nearest-neighbor structure without touching
// callers.
type Ranker interface {
	Rank(query []float32, candidates []Candidate, topK int) []ScoredCandidate
}

// CosineRanker scores every candidate with cosine similarity. A linear
// scan is acceptable here: candidate sets are scoped per user+bot and
// expected to stay in the hundreds.
type CosineRanker struct{}

func (CosineRanker) Rank(query []float32, candidates []Candidate, topK int) []ScoredCandidate {
	if topK <= 0 || len(query) == 0 {
		return nil
	}

	scored := make([]ScoredCandidate, 0, len(candidates))
	for _, cand := range candidates {
		if len(cand.Vector) == 0 {
			continue
		}
		score, err := utils.CosineSimilarity(query, cand.Vector)
		if err != nil {
			slog.Debug("skipping candidate with incompatible vector", "message_id", cand.MessageID, "error", err)
			continue
		}
		scored = append(scored, ScoredCandidate{Candidate: cand, Score: score})
	}

	// stable sort keeps insertion order for equal scores, so output is
	// deterministic for testing
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}
