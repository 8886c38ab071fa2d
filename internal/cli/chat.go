package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"docchat/internal/tui"
)

var chatConv string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Hold an interactive conversation about the documents",
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatConv, "conversation", "c", "", "conversation id (required)")
	chatCmd.MarkFlagRequired("conversation")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.checkIndex(); err != nil {
		return err
	}

	m := tui.New(ctx, a.queryUseCase(a.index), chatConv)
	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("chat failed: %w", err)
	}
	return nil
}
