package embedstore

import "github.com/zoobzio/embedstore/internal/shared"

// CosineSimilarity returns the cosine similarity of a and b in [-1, 1].
// Returns ErrDimensionMismatch if the dimensions differ.
func CosineSimilarity(a, b Embedding) (float64, error) {
	return shared.CosineSimilarity(a.raw(), b.raw())
}

// RelevanceScore maps a cosine similarity onto [0, 1] as (cos + 1) / 2.
// Every provider in this module reports scores with this mapping.
func RelevanceScore(cos float64) float64 {
	return shared.RelevanceScore(cos)
}

// Rank scores candidates against query and returns at most k results whose
// relevance score is at least minScore, highest first. Candidates must be
// supplied in the provider's tie-break order; equal scores keep that order.
// Brute-force providers use it to implement Search.
func Rank(query []float32, candidates []VectorRecord, k int, minScore float64) ([]VectorResult, error) {
	return shared.Rank(query, candidates, k, minScore)
}
