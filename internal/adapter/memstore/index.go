package memstore

import (
	"context"
	"fmt"
	"sync"

	"docchat/internal/adapter/store"
	"docchat/internal/domain"
	"docchat/internal/port"
)

// Index is a process-local vector index. Nothing survives Close.
type Index struct {
	mu         sync.RWMutex
	collection string
	embedder   port.Embedder
	chunks     []domain.DocumentChunk
	dimension  int
}

func NewIndex(collection string, embedder port.Embedder) *Index {
	return &Index{
		collection: collection,
		embedder:   embedder,
	}
}

func (s *Index) Add(ctx context.Context, chunks []domain.DocumentChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dimension := s.dimension
	for _, c := range chunks {
		if c.Text == "" || len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %s needs text and an embedding", c.ID)
		}
		if dimension == 0 {
			dimension = len(c.Embedding)
		}
		if len(c.Embedding) != dimension {
			return fmt.Errorf("vector dimension mismatch: expected %d, got %d", dimension, len(c.Embedding))
		}
	}

	s.chunks = append(s.chunks, chunks...)
	s.dimension = dimension
	return nil
}

func (s *Index) Search(ctx context.Context, queryText string, k int) ([]domain.ScoredChunk, error) {
	s.mu.RLock()
	empty := len(s.chunks) == 0
	s.mu.RUnlock()
	if empty {
		return []domain.ScoredChunk{}, nil
	}

	vecs, err := s.embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed query: %w", domain.ErrModelUnavailable, err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vecs))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return store.Rank(vecs[0], s.chunks, k), nil
}

func (s *Index) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

func (s *Index) Stats(ctx context.Context) (domain.IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sources := make(map[string]struct{})
	for _, c := range s.chunks {
		sources[domain.SourceOf(c)] = struct{}{}
	}

	return domain.IndexStats{
		Collection: s.collection,
		Chunks:     len(s.chunks),
		Sources:    len(sources),
		Dimension:  s.dimension,
		Model:      s.embedder.ModelName(),
	}, nil
}

func (s *Index) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	return nil
}
