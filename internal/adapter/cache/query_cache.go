package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"slices"
	"sync"
	"time"

	"docchat/internal/domain"
	"docchat/internal/port"
)

// QueryCache is an LRU of search results keyed by query text and k. Entries
// expire after ttl and are dropped wholesale when the index changes.
type QueryCache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	order      []string // least recently used first
	maxSize    int
	ttl        time.Duration
	generation uint64
	now        func() time.Time

	hits, misses int
}

type cacheEntry struct {
	results    []domain.ScoredChunk
	storedAt   time.Time
	generation uint64
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 128
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{
		entries: make(map[string]*cacheEntry),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

func cacheKey(query string, k int) string {
	var kb [8]byte
	binary.BigEndian.PutUint64(kb[:], uint64(k))
	h := sha256.New()
	h.Write(kb[:])
	h.Write([]byte(query))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// Generation identifies the current index state. Pass it back to Put so
// results computed before an Invalidate are not cached.
func (c *QueryCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *QueryCache) Get(query string, k int) ([]domain.ScoredChunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(query, k)
	entry, ok := c.entries[key]
	if ok && (entry.generation != c.generation || c.now().Sub(entry.storedAt) > c.ttl) {
		delete(c.entries, key)
		c.removeFromOrder(key)
		ok = false
	}
	if !ok {
		c.misses++
		return nil, false
	}

	c.hits++
	c.moveToEnd(key)
	return slices.Clone(entry.results), true
}

func (c *QueryCache) Put(query string, k int, generation uint64, results []domain.ScoredChunk) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return
	}

	key := cacheKey(query, k)
	if _, exists := c.entries[key]; exists {
		c.moveToEnd(key)
	} else {
		if len(c.entries) >= c.maxSize {
			c.evictOldest()
		}
		c.order = append(c.order, key)
	}

	c.entries[key] = &cacheEntry{
		results:    slices.Clone(results),
		storedAt:   c.now(),
		generation: c.generation,
	}
}

func (c *QueryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.order = c.order[:0]
	c.generation++
}

func (c *QueryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Ratio returns hit and miss counts since creation.
func (c *QueryCache) Ratio() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *QueryCache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *QueryCache) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *QueryCache) removeFromOrder(key string) {
	if i := slices.Index(c.order, key); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
}

// CachedIndex serves repeated searches from a QueryCache. Add goes straight
// to the wrapped index and invalidates the cache.
type CachedIndex struct {
	port.VectorIndex
	cache *QueryCache
}

func NewCachedIndex(index port.VectorIndex, cache *QueryCache) *CachedIndex {
	return &CachedIndex{
		VectorIndex: index,
		cache:       cache,
	}
}

func (r *CachedIndex) Search(ctx context.Context, queryText string, k int) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		k = domain.DefaultTopK
	}

	if results, hit := r.cache.Get(queryText, k); hit {
		return results, nil
	}

	generation := r.cache.Generation()
	results, err := r.VectorIndex.Search(ctx, queryText, k)
	if err != nil {
		return nil, err
	}

	r.cache.Put(queryText, k, generation, results)
	return results, nil
}

func (r *CachedIndex) Add(ctx context.Context, chunks []domain.DocumentChunk) error {
	defer r.cache.Invalidate()
	return r.VectorIndex.Add(ctx, chunks)
}

func (r *CachedIndex) Cache() *QueryCache {
	return r.cache
}
