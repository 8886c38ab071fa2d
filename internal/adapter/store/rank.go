package store

import (
	"cmp"
	"math"
	"slices"

	"docchat/internal/domain"
)

// Rank scores chunks against query and returns the k best, highest cosine
// similarity first. chunks must be in insertion order: equal scores keep it.
func Rank(query []float32, chunks []domain.DocumentChunk, k int) []domain.ScoredChunk {
	if k <= 0 {
		k = domain.DefaultTopK
	}

	scored := make([]domain.ScoredChunk, len(chunks))
	for i, c := range chunks {
		scored[i] = domain.ScoredChunk{
			Chunk: c,
			Score: CosineSimilarity(query, c.Embedding),
		}
	}

	slices.SortStableFunc(scored, func(a, b domain.ScoredChunk) int {
		return cmp.Compare(b.Score, a.Score)
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}

// CosineSimilarity returns 0 for vectors of different length or zero norm.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
