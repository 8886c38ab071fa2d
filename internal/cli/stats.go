package cli

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"docchat/internal/adapter/embedding"
	"docchat/internal/adapter/memory"
	"docchat/internal/adapter/store"
	"docchat/internal/domain"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index and memory statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
}

type statsOutput struct {
	IndexPath     string              `json:"index_path"`
	Collections   []domain.IndexStats `json:"collections"`
	Conversations map[string]int      `json:"conversations,omitempty"`
	Rebuild       string              `json:"rebuild_required,omitempty"`
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()
	dir := GetRootDir()

	path := cfg.IndexPath(dir)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("no index found. Run 'docchat ingest' first")
	}

	// stats never embeds, so the configured provider is not warmed
	emb, err := embedding.New(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	db, err := store.OpenDB(path)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer db.Close()

	names, err := store.Collections(db)
	if err != nil {
		return err
	}

	out := statsOutput{IndexPath: path, Collections: []domain.IndexStats{}}
	for _, name := range names {
		idx, err := store.NewBoltIndex(db, name, emb)
		if err != nil {
			return err
		}
		s, err := idx.Stats(ctx)
		if err != nil {
			return err
		}
		out.Collections = append(out.Collections, s)

		if name == cfg.Index.Collection {
			rebuild, reason, err := idx.NeedsRebuild()
			if err != nil {
				return err
			}
			if rebuild {
				out.Rebuild = reason
			}
		}
	}

	if cfg.Memory.Driver != "sqlite" || fileExists(cfg.MemoryDSN(dir)) {
		mem, err := memory.Open(ctx, cfg.Memory.Driver, cfg.MemoryDSN(dir))
		if err != nil {
			return fmt.Errorf("failed to open conversation memory: %w", err)
		}
		defer mem.Close()
		out.Conversations, err = mem.Conversations(ctx)
		if err != nil {
			return err
		}
	}

	if statsJSON {
		output, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Index: %s\n", out.IndexPath)
	for _, s := range out.Collections {
		fmt.Printf("\n  Collection: %s\n", s.Collection)
		fmt.Printf("    Chunks:    %d\n", s.Chunks)
		fmt.Printf("    Sources:   %d\n", s.Sources)
		fmt.Printf("    Dimension: %d\n", s.Dimension)
		fmt.Printf("    Model:     %s\n", s.Model)
	}
	if out.Rebuild != "" {
		fmt.Printf("\nRebuild required: %s\n", out.Rebuild)
	}

	if len(out.Conversations) > 0 {
		fmt.Printf("\nConversations:\n")
		for _, id := range slices.Sorted(maps.Keys(out.Conversations)) {
			fmt.Printf("  %s: %d answers\n", id, out.Conversations[id])
		}
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
