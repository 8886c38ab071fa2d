package cache

import (
	"context"
	"testing"
	"time"

	"docchat/internal/adapter/embedding"
	"docchat/internal/adapter/memstore"
	"docchat/internal/domain"
)

// countingIndex counts searches that reach the wrapped index.
type countingIndex struct {
	*memstore.Index
	searches int
}

func (c *countingIndex) Search(ctx context.Context, q string, k int) ([]domain.ScoredChunk, error) {
	c.searches++
	return c.Index.Search(ctx, q, k)
}

func seed(t *testing.T, idx *CachedIndex, texts ...string) {
	t.Helper()
	emb := embedding.NewHashEmbedder(64)
	vecs, err := emb.Embed(context.Background(), texts)
	if err != nil {
		t.Fatal(err)
	}
	var chunks []domain.DocumentChunk
	for i, text := range texts {
		chunks = append(chunks, domain.DocumentChunk{ID: text, Text: text, Embedding: vecs[i]})
	}
	if err := idx.Add(context.Background(), chunks); err != nil {
		t.Fatal(err)
	}
}

func TestCachedIndexServesRepeats(t *testing.T) {
	inner := &countingIndex{Index: memstore.NewIndex("rag_documents", embedding.NewHashEmbedder(64))}
	idx := NewCachedIndex(inner, NewQueryCache(10, time.Minute))
	seed(t, idx, "The sky is blue.")

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		results, err := idx.Search(ctx, "sky", 3)
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 1 {
			t.Fatalf("expected 1 result, got %d", len(results))
		}
	}

	if inner.searches != 1 {
		t.Errorf("expected 1 search to reach the index, got %d", inner.searches)
	}
	if hits, misses := idx.Cache().Ratio(); hits != 2 || misses != 1 {
		t.Errorf("expected 2 hits and 1 miss, got %d/%d", hits, misses)
	}
}

func TestCachedIndexInvalidatesOnAdd(t *testing.T) {
	inner := &countingIndex{Index: memstore.NewIndex("rag_documents", embedding.NewHashEmbedder(64))}
	idx := NewCachedIndex(inner, NewQueryCache(10, time.Minute))
	seed(t, idx, "The sky is blue.")

	ctx := context.Background()
	if _, err := idx.Search(ctx, "sky", 3); err != nil {
		t.Fatal(err)
	}

	seed(t, idx, "The sky is grey in winter.")

	results, err := idx.Search(ctx, "sky", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("expected fresh results after Add, got %d", len(results))
	}
	if inner.searches != 2 {
		t.Errorf("expected 2 searches to reach the index, got %d", inner.searches)
	}
}

func TestQueryCacheTTL(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Put("q", 3, c.Generation(), []domain.ScoredChunk{{Score: 1}})
	if _, ok := c.Get("q", 3); !ok {
		t.Fatal("expected a hit before expiry")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("q", 3); ok {
		t.Error("expected entry to expire")
	}
	if c.Size() != 0 {
		t.Errorf("expired entry should be dropped, size=%d", c.Size())
	}
}

func TestQueryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewQueryCache(2, time.Minute)
	gen := c.Generation()

	c.Put("a", 3, gen, nil)
	c.Put("b", 3, gen, nil)
	c.Get("a", 3) // a becomes most recent
	c.Put("c", 3, gen, nil)

	if _, ok := c.Get("b", 3); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("a", 3); !ok {
		t.Error("expected a to survive")
	}
	if _, ok := c.Get("c", 3); !ok {
		t.Error("expected c to be cached")
	}
}

func TestQueryCacheIgnoresStaleGeneration(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	gen := c.Generation()
	c.Invalidate()

	c.Put("q", 3, gen, []domain.ScoredChunk{{Score: 1}})
	if _, ok := c.Get("q", 3); ok {
		t.Error("results computed before Invalidate must not be cached")
	}
}

func TestQueryCacheKeysIncludeK(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	c.Put("q", 3, c.Generation(), []domain.ScoredChunk{{Score: 1}})
	if _, ok := c.Get("q", 5); ok {
		t.Error("different k must miss")
	}
}
