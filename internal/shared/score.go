package shared //nolint:revive // internal shared package is intentional

import (
	"fmt"
	"math"
	"slices"
)

// CosineSimilarity returns the cosine of the angle between a and b in [-1, 1].
// A zero-norm vector has similarity 0 with everything.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(-1, math.Min(1, cos)), nil
}

// RelevanceScore maps a cosine similarity onto [0, 1] as (cos + 1) / 2.
func RelevanceScore(cos float64) float64 {
	score := (cos + 1) / 2
	return math.Max(0, math.Min(1, score))
}

// CosineFromRelevance is the inverse of RelevanceScore.
func CosineFromRelevance(score float64) float64 {
	return 2*score - 1
}

// Rank scores candidates against query and returns at most k results whose
// score is at least minScore, highest first. Candidates must arrive in the
// provider's tie-break order; equal scores keep that order.
func Rank(query []float32, candidates []VectorRecord, k int, minScore float64) ([]VectorResult, error) {
	if k <= 0 {
		return []VectorResult{}, nil
	}
	results := make([]VectorResult, 0, len(candidates))
	for _, c := range candidates {
		cos, err := CosineSimilarity(query, c.Vector)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", c.ID, err)
		}
		score := RelevanceScore(cos)
		if score < minScore {
			continue
		}
		r := c.Result()
		r.Score = score
		results = append(results, r)
	}
	slices.SortStableFunc(results, func(a, b VectorResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
