package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	// UnknownSource is reported for retrieved chunks that carry no source id.
	UnknownSource = "unknown"

	DefaultTemperature = 0.7
	DefaultMaxTokens   = 500
	DefaultTopK        = 3
)

// SourceDocument is raw document text paired with the identifier of where it
// came from. Text extraction happens before a SourceDocument exists.
type SourceDocument struct {
	SourceID string
	Path     string
	Text     string
}

// DocumentChunk is the unit of indexing and retrieval.
type DocumentChunk struct {
	ID        string    `json:"id"`
	SourceID  string    `json:"source_id,omitempty"`
	Seq       int       `json:"seq"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"vector"`
}

type ScoredChunk struct {
	Chunk DocumentChunk
	Score float64
}

// MemoryEntry is one stored assistant answer of a conversation.
type MemoryEntry struct {
	ID             string
	ConversationID string
	Text           string
	Embedding      []float32
	CreatedAt      time.Time
}

type QueryRequest struct {
	Question       string   `json:"question"`
	ConversationID string   `json:"conversation_id"`
	Temperature    *float64 `json:"temperature,omitempty"`
	MaxTokens      *int     `json:"max_tokens,omitempty"`
}

// Validate checks the required fields of a query request.
func (r QueryRequest) Validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return fmt.Errorf("%w: question is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.ConversationID) == "" {
		return fmt.Errorf("%w: conversation_id is required", ErrInvalidRequest)
	}
	if r.MaxTokens != nil && *r.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive", ErrInvalidRequest)
	}
	if r.Temperature != nil && *r.Temperature < 0 {
		return fmt.Errorf("%w: temperature must not be negative", ErrInvalidRequest)
	}
	return nil
}

// GenerationParams resolves the optional generation controls against the
// given defaults.
func (r QueryRequest) GenerationParams(temperature float64, maxTokens int) (float64, int) {
	if r.Temperature != nil {
		temperature = *r.Temperature
	}
	if r.MaxTokens != nil {
		maxTokens = *r.MaxTokens
	}
	return temperature, maxTokens
}

type QueryResponse struct {
	Answer   string   `json:"answer"`
	Sources  []string `json:"sources"`
	Warnings []string `json:"warnings,omitempty"`
}

// IngestSummary reports what an ingestion run processed.
type IngestSummary struct {
	Documents int
	Chunks    int
	Skipped   int
	Errors    []string
}

type IndexStats struct {
	Collection string `json:"collection"`
	Chunks     int    `json:"chunks"`
	Sources    int    `json:"sources"`
	Dimension  int    `json:"dimension"`
	Model      string `json:"model"`
}

// SourceOf returns the chunk's source id or UnknownSource.
func SourceOf(c DocumentChunk) string {
	if c.SourceID == "" {
		return UnknownSource
	}
	return c.SourceID
}
