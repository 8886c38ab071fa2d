package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"docchat/internal/usecase"
)

var (
	searchText     string
	searchTopK     int
	searchMinScore float64
	searchJSON     bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Show the chunks retrieved for a query",
	Long: `Rank indexed chunks by cosine similarity without calling the language model.

Examples:
  docchat search -q "sky color"
  docchat search -q "quarterly revenue" -k 10 --json`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVarP(&searchText, "query", "q", "", "search query (required)")
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "number of results (default from config)")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0, "drop results scoring below this")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
	searchCmd.MarkFlagRequired("query")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.checkIndex(); err != nil {
		return err
	}

	topK := a.cfg.Retrieve.TopK
	if searchTopK > 0 {
		topK = searchTopK
	}

	results, err := usecase.NewSearchUseCase(a.index, searchMinScore).Search(ctx, searchText, topK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	fmt.Printf("Found %d results for: %s\n\n", len(results), searchText)
	for i, r := range results {
		fmt.Printf("--- [%d] %s#%d (score: %.3f) ---\n", i+1, r.Source, r.Seq, r.Score)
		text := []rune(r.Text)
		if len(text) > 500 {
			text = append(text[:500], []rune("...")...)
		}
		fmt.Println(string(text))
		fmt.Println()
	}
	return nil
}
