package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"docchat/internal/domain"
)

var (
	queryText        string
	queryConv        string
	queryTemperature float64
	queryMaxTokens   int
	queryJSON        bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Answer a question from the indexed documents",
	Long: `Retrieve the most similar chunks, add the conversation's recent answers and
ask the language model. The answer is remembered for the conversation.

Examples:
  docchat query -q "What color is the sky?" -c demo
  docchat query -q "Summarise the report" -c demo --max-tokens 200 --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "question", "q", "", "question to ask (required)")
	queryCmd.Flags().StringVarP(&queryConv, "conversation", "c", "", "conversation id (required)")
	queryCmd.Flags().Float64Var(&queryTemperature, "temperature", 0, "sampling temperature (default from config)")
	queryCmd.Flags().IntVar(&queryMaxTokens, "max-tokens", 0, "answer length limit (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.MarkFlagRequired("question")
	queryCmd.MarkFlagRequired("conversation")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.checkIndex(); err != nil {
		return err
	}

	req := domain.QueryRequest{Question: queryText, ConversationID: queryConv}
	if cmd.Flags().Changed("temperature") {
		req.Temperature = &queryTemperature
	}
	if cmd.Flags().Changed("max-tokens") {
		req.MaxTokens = &queryMaxTokens
	}

	resp, err := a.queryUseCase(a.index).Query(ctx, req)
	if err != nil {
		return err
	}

	if queryJSON {
		output, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Println(resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, s := range resp.Sources {
			fmt.Printf("  - %s\n", s)
		}
	}
	for _, w := range resp.Warnings {
		fmt.Printf("\nWarning: %s\n", w)
	}
	return nil
}
