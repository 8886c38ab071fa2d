package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"docchat/internal/domain"
	"docchat/internal/port"
)

// ProgressFunc is told how many of total units are done.
type ProgressFunc func(done, total int)

// IngestUseCase chunks, embeds and indexes documents. Ingesting the same
// document twice stores its chunks twice.
type IngestUseCase struct {
	index     port.VectorIndex
	embedder  port.Embedder
	chunker   port.Chunker
	walker    port.FileWalker
	loader    port.DocumentLoader
	logger    *slog.Logger
	batchSize int
}

// NewIngestUseCase creates a new ingest use case. walker and loader are only
// needed for IngestPaths and IngestFiles.
func NewIngestUseCase(
	index port.VectorIndex,
	embedder port.Embedder,
	chunker port.Chunker,
	walker port.FileWalker,
	loader port.DocumentLoader,
	logger *slog.Logger,
) *IngestUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestUseCase{
		index:     index,
		embedder:  embedder,
		chunker:   chunker,
		walker:    walker,
		loader:    loader,
		logger:    logger,
		batchSize: 64,
	}
}

// WithBatchSize sets how many chunks are embedded and added at once.
func (u *IngestUseCase) WithBatchSize(n int) *IngestUseCase {
	if n > 0 {
		u.batchSize = n
	}
	return u
}

// Ingest indexes docs in order. An embedder or index failure aborts the run;
// the summary then covers the documents finished before it.
func (u *IngestUseCase) Ingest(ctx context.Context, docs []domain.SourceDocument, progress ProgressFunc) (domain.IngestSummary, error) {
	var summary domain.IngestSummary

	for i, doc := range docs {
		n, err := u.ingestOne(ctx, doc)
		if err != nil {
			return summary, err
		}
		if n == 0 {
			summary.Skipped++
		} else {
			summary.Documents++
			summary.Chunks += n
		}
		if progress != nil {
			progress(i+1, len(docs))
		}
	}

	return summary, nil
}

func (u *IngestUseCase) ingestOne(ctx context.Context, doc domain.SourceDocument) (int, error) {
	chunks, err := u.chunker.Chunk(doc)
	if err != nil {
		return 0, fmt.Errorf("failed to chunk %s: %w", doc.SourceID, err)
	}
	if len(chunks) == 0 {
		u.logger.Debug("document has no text", "source", doc.SourceID)
		return 0, nil
	}

	for start := 0; start < len(chunks); start += u.batchSize {
		batch := chunks[start:min(start+u.batchSize, len(chunks))]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vecs, err := u.embedder.Embed(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("failed to embed %s: %w", doc.SourceID, err)
		}
		if len(vecs) != len(batch) {
			return 0, fmt.Errorf("failed to embed %s: got %d vectors for %d chunks", doc.SourceID, len(vecs), len(batch))
		}
		for i := range batch {
			batch[i].Embedding = vecs[i]
		}

		if err := u.index.Add(ctx, batch); err != nil {
			return 0, fmt.Errorf("failed to index %s: %w", doc.SourceID, err)
		}
	}

	u.logger.Debug("ingested document", "source", doc.SourceID, "chunks", len(chunks))
	return len(chunks), nil
}

// IngestPaths walks root and ingests every corpus file below it.
func (u *IngestUseCase) IngestPaths(ctx context.Context, root string, progress ProgressFunc) (domain.IngestSummary, error) {
	files, err := u.walker.Walk(root)
	if err != nil {
		return domain.IngestSummary{}, fmt.Errorf("failed to walk directory: %w", err)
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return u.IngestFiles(ctx, root, paths, progress)
}

// IngestFiles loads and ingests the given files. A file that cannot be
// loaded is recorded in the summary and skipped.
func (u *IngestUseCase) IngestFiles(ctx context.Context, root string, paths []string, progress ProgressFunc) (domain.IngestSummary, error) {
	var summary domain.IngestSummary

	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		doc, err := u.loader.Load(ctx, root, path)
		if err != nil {
			u.logger.Warn("failed to load document", "path", path, "error", err)
			summary.Errors = append(summary.Errors, err.Error())
			summary.Skipped++
		} else {
			n, err := u.ingestOne(ctx, doc)
			if err != nil {
				return summary, err
			}
			if n == 0 {
				summary.Skipped++
			} else {
				summary.Documents++
				summary.Chunks += n
			}
		}

		if progress != nil {
			progress(i+1, len(paths))
		}
	}

	u.logger.Info("ingestion finished",
		"documents", summary.Documents,
		"chunks", summary.Chunks,
		"skipped", summary.Skipped,
		"errors", len(summary.Errors))
	return summary, nil
}
