package port

import (
	"iter"

	"docchat/internal/domain"
)

// Chunker splits document text into overlapping segments.
type Chunker interface {
	// Split lazily yields the chunk texts of text. The sequence is finite and
	// can be ranged over more than once.
	Split(text string) iter.Seq[string]

	// Chunk materialises the chunks of doc without embeddings.
	Chunk(doc domain.SourceDocument) ([]domain.DocumentChunk, error)
}
