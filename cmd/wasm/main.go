//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"syscall/js"

	"docchat/internal/adapter/chunker"
	"docchat/internal/adapter/embedding"
	"docchat/internal/adapter/memstore"
	"docchat/internal/domain"
	"docchat/internal/usecase"
)

// The browser build has no network or disk, so it indexes into process
// memory with the local hash embedder and only exposes retrieval.
var (
	embedder *embedding.HashEmbedder
	chk      *chunker.RecursiveChunker
	index    *memstore.Index
	ingest   *usecase.IngestUseCase
	search   *usecase.SearchUseCase
)

func init() {
	embedder = embedding.NewHashEmbedder(0)
	var err error
	chk, err = chunker.NewRecursiveChunker(800, 100)
	if err != nil {
		panic(err)
	}
	reset()
}

func reset() {
	index = memstore.NewIndex("rag_documents", embedder)
	ingest = usecase.NewIngestUseCase(index, embedder, chk, nil, nil, nil)
	search = usecase.NewSearchUseCase(index, 0)
}

func main() {
	c := make(chan struct{})

	js.Global().Set("ragIndex", js.FuncOf(indexContent))
	js.Global().Set("ragQuery", js.FuncOf(queryContent))
	js.Global().Set("ragClear", js.FuncOf(clearIndex))
	js.Global().Set("ragStats", js.FuncOf(getStats))

	<-c
}

func indexContent(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return makeError("usage: ragIndex(filename, content)")
	}

	doc := domain.SourceDocument{
		SourceID: args[0].String(),
		Path:     args[0].String(),
		Text:     args[1].String(),
	}

	summary, err := ingest.Ingest(context.Background(), []domain.SourceDocument{doc}, nil)
	if err != nil {
		return makeError("indexing failed: " + err.Error())
	}

	return makeResult(map[string]interface{}{
		"success":  true,
		"chunks":   summary.Chunks,
		"filename": doc.SourceID,
	})
}

func queryContent(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeError("usage: ragQuery(query, [topK])")
	}

	query := args[0].String()
	topK := domain.DefaultTopK
	if len(args) > 1 {
		topK = args[1].Int()
	}

	results, err := search.Search(context.Background(), query, topK)
	if err != nil {
		return makeError("search failed: " + err.Error())
	}

	return makeResult(map[string]interface{}{
		"results": results,
		"query":   query,
	})
}

func clearIndex(this js.Value, args []js.Value) interface{} {
	reset()
	return makeResult(map[string]interface{}{
		"success": true,
	})
}

func getStats(this js.Value, args []js.Value) interface{} {
	stats, err := index.Stats(context.Background())
	if err != nil {
		return makeError(err.Error())
	}
	return makeResult(map[string]interface{}{
		"totalChunks":  stats.Chunks,
		"totalSources": stats.Sources,
		"dimension":    stats.Dimension,
		"model":        stats.Model,
	})
}

func makeError(msg string) interface{} {
	result, _ := json.Marshal(map[string]interface{}{
		"error": msg,
	})
	return string(result)
}

func makeResult(data map[string]interface{}) interface{} {
	result, _ := json.Marshal(data)
	return string(result)
}
