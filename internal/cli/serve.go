package cli

import (
	"github.com/spf13/cobra"

	"docchat/internal/adapter/cache"
	"docchat/internal/adapter/llm"
	"docchat/internal/port"
	"docchat/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query API over HTTP",
	Long: `Serve POST /query/ and GET /health until interrupted.

Example:
  curl -s localhost:8000/query/ -d '{"question":"What color is the sky?","conversation_id":"demo"}'`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.checkIndex(); err != nil {
		return err
	}

	var index port.VectorIndex = a.index
	if a.cfg.Retrieve.CacheSize > 0 {
		index = cache.NewCachedIndex(a.index, cache.NewQueryCache(a.cfg.Retrieve.CacheSize, a.cfg.Retrieve.CacheTTL))
	}

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	client := llm.NewChatClient(a.cfg.LLM, logger)
	return server.NewServer(a.queryUseCaseWith(index, client), index, addr, logger).
		WithModelBudget(client.Budget()).
		Start(ctx)
}
