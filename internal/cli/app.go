package cli

import (
	"context"
	"errors"
	"fmt"

	"docchat/config"
	"docchat/internal/adapter/chunker"
	"docchat/internal/adapter/embedding"
	"docchat/internal/adapter/fs"
	"docchat/internal/adapter/llm"
	"docchat/internal/adapter/memory"
	"docchat/internal/adapter/memstore"
	"docchat/internal/adapter/store"
	"docchat/internal/domain"
	"docchat/internal/port"
	"docchat/internal/usecase"
)

// app holds the components one command runs with.
type app struct {
	cfg      *config.Config
	dir      string
	embedder port.Embedder
	index    *store.BoltIndex
	memory   port.MemoryStore
}

// openApp warms the embedder and opens the index. withMemory also opens the
// conversation memory store.
func openApp(ctx context.Context, withMemory bool) (*app, error) {
	cfg := GetConfig()
	dir := GetRootDir()

	emb, err := embedding.New(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	if err := emb.Warm(ctx); err != nil {
		if errors.Is(err, domain.ErrModelUnavailable) {
			return nil, fmt.Errorf("embedding model %s cannot be loaded: %w", emb.ModelName(), err)
		}
		return nil, err
	}

	if err := config.EnsureDataDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", config.DataDirName, err)
	}

	idx, err := store.OpenBoltIndex(cfg.IndexPath(dir), cfg.Index.Collection, emb)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	a := &app{cfg: cfg, dir: dir, embedder: emb, index: idx}

	if withMemory {
		a.memory, err = openMemory(ctx)
		if err != nil {
			idx.Close()
			return nil, err
		}
	}

	logger.Debug("components ready",
		"index", cfg.IndexPath(dir),
		"collection", cfg.Index.Collection,
		"embedding_model", emb.ModelName(),
		"memory", a.memory != nil)
	return a, nil
}

// openMemory opens the configured conversation memory, or a process-local one
// with --ephemeral.
func openMemory(ctx context.Context) (port.MemoryStore, error) {
	if ephemeral {
		return memstore.NewMemory(), nil
	}
	cfg := GetConfig()
	dir := GetRootDir()
	if cfg.Memory.Driver == "sqlite" {
		if err := config.EnsureDataDir(dir); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", config.DataDirName, err)
		}
	}
	mem, err := memory.Open(ctx, cfg.Memory.Driver, cfg.MemoryDSN(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation memory: %w", err)
	}
	return mem, nil
}

func (a *app) Close() error {
	var errs []error
	if a.memory != nil {
		errs = append(errs, a.memory.Close())
	}
	errs = append(errs, a.index.Close())
	return errors.Join(errs...)
}

// checkIndex refuses to search an index built with another embedding model.
func (a *app) checkIndex() error {
	rebuild, reason, err := a.index.NeedsRebuild()
	if err != nil {
		return err
	}
	if rebuild {
		return fmt.Errorf("index must be rebuilt (%s); run 'docchat ingest --rebuild'", reason)
	}
	return nil
}

func (a *app) ingestUseCase() (*usecase.IngestUseCase, *fs.Walker, error) {
	ch, err := chunker.NewRecursiveChunker(a.cfg.Ingest.ChunkSize, a.cfg.Ingest.ChunkOverlap)
	if err != nil {
		return nil, nil, err
	}
	walker := fs.NewWalker(a.cfg.Ingest.Includes, a.cfg.Ingest.Excludes)
	loader := fs.NewLoader(a.cfg.Ingest.PDFCommand)

	uc := usecase.NewIngestUseCase(a.index, a.embedder, ch, walker, loader, logger)
	if a.cfg.Embedding.BatchSize > 0 {
		uc.WithBatchSize(a.cfg.Embedding.BatchSize)
	}
	return uc, walker, nil
}

// queryUseCase builds the orchestrator over index, which may wrap a.index.
func (a *app) queryUseCase(index port.VectorIndex) *usecase.QueryUseCase {
	return a.queryUseCaseWith(index, llm.NewChatClient(a.cfg.LLM, logger))
}

func (a *app) queryUseCaseWith(index port.VectorIndex, client port.LLM) *usecase.QueryUseCase {
	temperature := a.cfg.LLM.Temperature
	return usecase.NewQueryUseCase(index, a.memory, client, a.embedder, logger, usecase.QueryOptions{
		TopK:        a.cfg.Retrieve.TopK,
		MemoryTopK:  a.cfg.Memory.TopK,
		Temperature: &temperature,
		MaxTokens:   a.cfg.LLM.MaxTokens,
	})
}
