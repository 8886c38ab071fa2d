package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"

	"docchat/internal/domain"
	"docchat/internal/port"
)

// BoltIndex is a vector index persisted in one bbolt bucket per collection.
// Keys are big-endian insertion sequence numbers, so a bucket scan yields
// chunks in insertion order. All chunks are mirrored in memory and searched
// by brute force.
type BoltIndex struct {
	db         *bbolt.DB
	ownsDB     bool
	collection []byte
	embedder   port.Embedder

	mu        sync.RWMutex
	chunks    []domain.DocumentChunk
	dimension int
}

// OpenBoltIndex opens the index file at path and loads collection from it.
// Close releases the file.
func OpenBoltIndex(path, collection string, embedder port.Embedder) (*BoltIndex, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	idx, err := NewBoltIndex(db, collection, embedder)
	if err != nil {
		db.Close()
		return nil, err
	}
	idx.ownsDB = true
	return idx, nil
}

// NewBoltIndex loads collection from an already open db. Close leaves db open.
func NewBoltIndex(db *bbolt.DB, collection string, embedder port.Embedder) (*BoltIndex, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(collection))
		return err
	})
	if err != nil {
		return nil, domain.StorageError("create collection", err)
	}

	idx := &BoltIndex{
		db:         db,
		collection: []byte(collection),
		embedder:   embedder,
	}

	if err := idx.load(); err != nil {
		return nil, domain.StorageError("load collection", err)
	}

	return idx, nil
}

func (s *BoltIndex) load() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.collection)
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var chunk domain.DocumentChunk
			if err := json.Unmarshal(v, &chunk); err != nil {
				return fmt.Errorf("corrupt chunk at key %x: %w", k, err)
			}
			s.chunks = append(s.chunks, chunk)
			if s.dimension == 0 {
				s.dimension = len(chunk.Embedding)
			}
			return nil
		})
	})
}

// Add appends chunks in one transaction. Every chunk needs text and an
// embedding of the index dimension. Duplicates are stored again.
func (s *BoltIndex) Add(ctx context.Context, chunks []domain.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dimension := s.dimension
	if dimension == 0 {
		dimension = len(chunks[0].Embedding)
	}
	for _, c := range chunks {
		if c.Text == "" {
			return fmt.Errorf("chunk %s has no text", c.ID)
		}
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", c.ID)
		}
		if len(c.Embedding) != dimension {
			return fmt.Errorf("vector dimension mismatch: expected %d, got %d", dimension, len(c.Embedding))
		}
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.collection)
		if b == nil {
			return fmt.Errorf("collection %s not found", s.collection)
		}

		for _, c := range chunks {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			data, err := json.Marshal(c)
			if err != nil {
				return err
			}
			if err := b.Put(seqKey(seq), data); err != nil {
				return err
			}
		}

		return putSchemaInfo(tx, s.collection, currentSchemaInfo(s.embedder, dimension))
	})
	if err != nil {
		return domain.StorageError("add chunks", err)
	}

	s.chunks = append(s.chunks, chunks...)
	s.dimension = dimension
	return nil
}

// Search embeds queryText and returns the k most similar chunks.
func (s *BoltIndex) Search(ctx context.Context, queryText string, k int) ([]domain.ScoredChunk, error) {
	if s.isEmpty() {
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

	if len(vecs[0]) != s.dimension {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", s.dimension, len(vecs[0]))
	}

	return Rank(vecs[0], s.chunks, k), nil
}

func (s *BoltIndex) isEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks) == 0
}

func (s *BoltIndex) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

func (s *BoltIndex) Stats(ctx context.Context) (domain.IndexStats, error) {
	info, err := s.SchemaInfo()
	if err != nil {
		return domain.IndexStats{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sources := make(map[string]struct{})
	for _, c := range s.chunks {
		sources[domain.SourceOf(c)] = struct{}{}
	}

	model := info.Model
	if model == "" {
		model = s.embedder.ModelName()
	}

	return domain.IndexStats{
		Collection: string(s.collection),
		Chunks:     len(s.chunks),
		Sources:    len(sources),
		Dimension:  s.dimension,
		Model:      model,
	}, nil
}

// Clear drops every chunk of the collection and its schema info.
func (s *BoltIndex) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(s.collection) != nil {
			if err := tx.DeleteBucket(s.collection); err != nil {
				return err
			}
		}
		if _, err := tx.CreateBucket(s.collection); err != nil {
			return err
		}
		return deleteSchemaInfo(tx, s.collection)
	})
	if err != nil {
		return domain.StorageError("clear collection", err)
	}

	s.chunks = nil
	s.dimension = 0
	return nil
}

func (s *BoltIndex) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
