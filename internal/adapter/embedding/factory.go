package embedding

import (
	"fmt"

	"docchat/config"
	"docchat/internal/port"
)

// New builds the embedder named by cfg.Provider.
func New(cfg config.EmbeddingConfig) (port.Embedder, error) {
	switch cfg.Provider {
	case "", "local":
		return NewHashEmbedder(cfg.Dimension), nil
	case "openai":
		e, err := NewOpenAICompatibleEmbedder(or(cfg.APIKeyEnv, "OPENAI_API_KEY"),
			or(cfg.Model, "text-embedding-3-small"),
			or(cfg.BaseURL, "https://api.openai.com/v1"),
			cfg.Dimension)
		if err != nil {
			return nil, err
		}
		return e.WithBatchSize(cfg.BatchSize), nil
	case "mistral":
		e, err := NewOpenAICompatibleEmbedder(or(cfg.APIKeyEnv, "MISTRAL_API_KEY"),
			or(cfg.Model, "mistral-embed"),
			or(cfg.BaseURL, "https://api.mistral.ai/v1"),
			cfg.Dimension)
		if err != nil {
			return nil, err
		}
		return e.WithBatchSize(cfg.BatchSize), nil
	case "ollama":
		return NewOllamaEmbedder(or(cfg.Model, "nomic-embed-text"), cfg.BaseURL).WithBatchSize(cfg.BatchSize), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

func or(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
