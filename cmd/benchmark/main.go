package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"docchat/config"
	"docchat/internal/adapter/embedding"
	"docchat/internal/adapter/store"
	"docchat/internal/domain"
)

func main() {
	dir := flag.String("dir", ".", "corpus directory holding .docchat/")
	query := flag.String("q", "", "query to test")
	topK := flag.Int("k", 10, "number of results")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -dir ./docs -q \"query\"")
		fmt.Println("\nReports:")
		fmt.Println("  1. Embedding model and index size")
		fmt.Println("  2. Query embedding and search latency")
		fmt.Println("  3. Similarity of the top matches")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedder init failed: %v\n", err)
		os.Exit(1)
	}
	if err := embedder.Warm(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Embedding model unavailable: %v\n", err)
		os.Exit(1)
	}

	index, err := store.OpenBoltIndex(cfg.IndexPath(*dir), cfg.Index.Collection, embedder)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening index: %v\n", err)
		os.Exit(1)
	}
	defer index.Close()

	stats, err := index.Stats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading index: %v\n", err)
		os.Exit(1)
	}
	if stats.Chunks == 0 {
		fmt.Fprintln(os.Stderr, "Index is empty - run 'docchat ingest' first")
		os.Exit(1)
	}

	fmt.Println("RETRIEVAL BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Chunks indexed: %d from %d sources\n", stats.Chunks, stats.Sources)
	fmt.Printf("Model: %s (%s)\n", stats.Model, cfg.Embedding.Provider)
	fmt.Printf("Dimension: %d\n", stats.Dimension)
	fmt.Println()

	fmt.Printf("Query: \"%s\"\n", *query)
	fmt.Println(strings.Repeat("-", 70))

	start := time.Now()
	results, err := index.Search(ctx, *query, *topK)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
		os.Exit(1)
	}
	elapsed := time.Since(start)

	fmt.Printf("Top %d matches in %s:\n\n", len(results), elapsed.Round(time.Microsecond))

	totalScore := 0.0
	for i, r := range results {
		preview := []rune(r.Chunk.Text)
		if len(preview) > 150 {
			preview = append(preview[:150], []rune("...")...)
		}

		totalScore += r.Score
		fmt.Printf("%d. [%s %.3f] %s#%d\n", i+1, rating(r.Score), r.Score, domain.SourceOf(r.Chunk), r.Chunk.Seq)
		fmt.Printf("   %s\n\n", strings.ReplaceAll(string(preview), "\n", " "))
	}

	avgScore := totalScore / float64(len(results))
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Average similarity: %.3f\n", avgScore)
	fmt.Printf("  Top-1 similarity:   %.3f\n", results[0].Score)

	switch {
	case avgScore > 0.5:
		fmt.Println("  Status: GOOD - retrieval working well")
	case avgScore > 0.3:
		fmt.Println("  Status: OK - results are somewhat related")
	default:
		fmt.Println("  Status: POOR - try another embedding provider or re-ingest")
	}
}

func rating(score float64) string {
	switch {
	case score > 0.7:
		return "HIGH"
	case score > 0.5:
		return "GOOD"
	case score > 0.3:
		return "OK"
	default:
		return "LOW"
	}
}
