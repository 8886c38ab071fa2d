package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	memoryConv string
	memoryTopK int
	memoryJSON bool
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Show the remembered answers of a conversation",
	Long: `List the most recent answers stored for a conversation, newest first.

Examples:
  docchat memory -c demo
  docchat memory -c demo -k 10`,
	RunE: runMemory,
}

func init() {
	rootCmd.AddCommand(memoryCmd)
	memoryCmd.Flags().StringVarP(&memoryConv, "conversation", "c", "", "conversation id (required)")
	memoryCmd.Flags().IntVarP(&memoryTopK, "top-k", "k", 0, "number of entries (default from config)")
	memoryCmd.Flags().BoolVar(&memoryJSON, "json", false, "output as JSON")
	memoryCmd.MarkFlagRequired("conversation")
}

type memoryEntryOutput struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

func runMemory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	mem, err := openMemory(ctx)
	if err != nil {
		return err
	}
	defer mem.Close()

	topK := GetConfig().Memory.TopK
	if memoryTopK > 0 {
		topK = memoryTopK
	}

	entries, err := mem.Entries(ctx, memoryConv, topK)
	if err != nil {
		return err
	}

	if memoryJSON {
		out := make([]memoryEntryOutput, len(entries))
		for i, e := range entries {
			out[i] = memoryEntryOutput{ID: e.ID, Text: e.Text, CreatedAt: e.CreatedAt}
		}
		output, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(entries) == 0 {
		fmt.Printf("No memory for conversation %s.\n", memoryConv)
		return nil
	}
	for i, e := range entries {
		fmt.Printf("--- [%d] %s ---\n%s\n\n", i+1, e.CreatedAt.Local().Format(time.DateTime), e.Text)
	}
	return nil
}
