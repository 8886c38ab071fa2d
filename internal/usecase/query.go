package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"docchat/internal/domain"
	"docchat/internal/port"
)

const (
	warnMemoryRecall = "conversation memory unavailable; answered without it"
	warnMemoryWrite  = "answer was not saved to conversation memory"
)

// QueryUseCase answers a question from retrieved chunks and the
// conversation's recent memory, then remembers the answer.
type QueryUseCase struct {
	index    port.VectorIndex
	memory   port.MemoryStore
	llm      port.LLM
	embedder port.Embedder
	logger   *slog.Logger

	topK               int
	memoryTopK         int
	defaultTemperature float64
	defaultMaxTokens   int
}

// QueryOptions holds the tunables of QueryUseCase. Zero values select the
// defaults; Temperature is a pointer because 0 is a valid setting.
type QueryOptions struct {
	TopK        int
	MemoryTopK  int
	Temperature *float64
	MaxTokens   int
}

func NewQueryUseCase(
	index port.VectorIndex,
	memory port.MemoryStore,
	llm port.LLM,
	embedder port.Embedder,
	logger *slog.Logger,
	opts QueryOptions,
) *QueryUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	u := &QueryUseCase{
		index:              index,
		memory:             memory,
		llm:                llm,
		embedder:           embedder,
		logger:             logger,
		topK:               domain.DefaultTopK,
		memoryTopK:         domain.DefaultTopK,
		defaultTemperature: domain.DefaultTemperature,
		defaultMaxTokens:   domain.DefaultMaxTokens,
	}
	if opts.TopK > 0 {
		u.topK = opts.TopK
	}
	if opts.MemoryTopK > 0 {
		u.memoryTopK = opts.MemoryTopK
	}
	if opts.Temperature != nil {
		u.defaultTemperature = *opts.Temperature
	}
	if opts.MaxTokens > 0 {
		u.defaultMaxTokens = opts.MaxTokens
	}
	return u
}

// Query runs retrieve, recall, assemble, generate and remember.
//
// Retrieval and generation failures fail the request. A memory read failure
// degrades to empty memory and a memory write failure only drops the answer
// from memory; both are reported in Warnings.
func (u *QueryUseCase) Query(ctx context.Context, req domain.QueryRequest) (*domain.QueryResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	log := u.logger.With("conversation_id", req.ConversationID)

	var warnings []string

	chunks, err := u.index.Search(ctx, req.Question, u.topK)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}
	log.Debug("retrieved chunks", "count", len(chunks))

	memory, err := u.memory.Recent(ctx, req.ConversationID, u.memoryTopK)
	if err != nil {
		log.Warn("memory recall failed", "error", err)
		memory = ""
		warnings = append(warnings, warnMemoryRecall)
	}

	prompt, err := BuildPrompt(req.Question, chunks, memory)
	if err != nil {
		return nil, fmt.Errorf("failed to build prompt: %w", err)
	}

	temperature, maxTokens := req.GenerationParams(u.defaultTemperature, u.defaultMaxTokens)
	completion := u.llm.Complete(ctx, port.CompletionRequest{
		Prompt:      prompt,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	answer, err := domain.AnswerOf(completion)
	if err != nil {
		log.Error("generation failed", "model", u.llm.ModelName(), "error", err)
		return nil, err
	}

	if strings.TrimSpace(answer) != "" {
		if err := u.remember(ctx, req.ConversationID, answer); err != nil {
			log.Warn("memory write failed", "error", err)
			warnings = append(warnings, warnMemoryWrite)
		}
	}

	sources := make([]string, len(chunks))
	for i, c := range chunks {
		sources[i] = domain.SourceOf(c.Chunk)
	}

	return &domain.QueryResponse{
		Answer:   answer,
		Sources:  sources,
		Warnings: warnings,
	}, nil
}

// remember stores the answer, not the question.
func (u *QueryUseCase) remember(ctx context.Context, conversationID, answer string) error {
	vecs, err := u.embedder.Embed(ctx, []string{answer})
	if err != nil {
		return fmt.Errorf("failed to embed answer: %w", err)
	}
	if len(vecs) != 1 {
		return errors.New("embedder returned no vector for the answer")
	}
	_, err = u.memory.Append(ctx, conversationID, answer, vecs[0])
	return err
}
