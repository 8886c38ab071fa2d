package port

import (
	"context"

	"docchat/internal/domain"
)

// VectorIndex stores embedded chunks and answers k-nearest-neighbour queries.
type VectorIndex interface {
	// Add inserts chunks. Chunks are never de-duplicated.
	Add(ctx context.Context, chunks []domain.DocumentChunk) error

	// Search embeds queryText and returns the k most similar chunks, best
	// first, ties broken by insertion order. An empty index yields no results.
	Search(ctx context.Context, queryText string, k int) ([]domain.ScoredChunk, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	Stats(ctx context.Context) (domain.IndexStats, error)

	Close() error
}
