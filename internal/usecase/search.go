package usecase

import (
	"context"

	"docchat/internal/domain"
	"docchat/internal/port"
)

// SearchUseCase exposes raw retrieval for inspection.
type SearchUseCase struct {
	index             port.VectorIndex
	minScoreThreshold float64 // Filter results below this score (0 = disabled)
}

func NewSearchUseCase(index port.VectorIndex, minScoreThreshold float64) *SearchUseCase {
	return &SearchUseCase{
		index:             index,
		minScoreThreshold: minScoreThreshold,
	}
}

// Search returns up to topK chunks for query, best first.
func (u *SearchUseCase) Search(ctx context.Context, query string, topK int) ([]ScoredChunkResult, error) {
	results, err := u.index.Search(ctx, query, topK)
	if err != nil {
		return nil, err
	}

	out := make([]ScoredChunkResult, 0, len(results))
	for _, r := range results {
		if u.minScoreThreshold > 0 && r.Score < u.minScoreThreshold {
			continue
		}
		out = append(out, ScoredChunkResult{
			Source: domain.SourceOf(r.Chunk),
			Seq:    r.Chunk.Seq,
			Score:  r.Score,
			Text:   r.Chunk.Text,
		})
	}
	return out, nil
}

// ScoredChunkResult is a simplified result for CLI output.
type ScoredChunkResult struct {
	Source string  `json:"source"`
	Seq    int     `json:"seq"`
	Score  float64 `json:"score"`
	Text   string  `json:"text"`
}
