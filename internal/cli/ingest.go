package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"docchat/internal/adapter/fs"
	"docchat/internal/domain"
	"docchat/internal/usecase"
)

var (
	ingestRebuild bool
	ingestWatch   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Index documents for retrieval",
	Long: `Chunk, embed and index the text, Markdown and PDF files below path
(default: the corpus directory). The index is stored in .docchat/index.db of
the corpus directory. Ingesting a file again adds its chunks again.

Examples:
  docchat ingest                  # Index the current directory
  docchat ingest ./docs --rebuild # Drop the collection first
  docchat ingest --watch          # Keep indexing new and changed files`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().BoolVar(&ingestRebuild, "rebuild", false, "clear the collection before ingesting")
	ingestCmd.Flags().BoolVar(&ingestWatch, "watch", false, "watch for new and changed files after ingesting")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.index.CheckMigration()
	if err != nil {
		return fmt.Errorf("failed to check index schema: %w", err)
	}
	switch {
	case ingestRebuild:
		fmt.Println("Clearing existing index...")
		if err := a.index.Clear(); err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
	case result.NeedsRebuild:
		fmt.Printf("Index rebuild required: %s\n", result.Reason)
		fmt.Println("Clearing existing index...")
		if err := a.index.Clear(); err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
	}

	uc, walker, err := a.ingestUseCase()
	if err != nil {
		return err
	}

	fmt.Printf("Scanning %s...\n", path)
	summary, err := uc.IngestPaths(ctx, path, newProgress("Ingesting"))
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	printSummary(summary)
	fmt.Printf("\nIndex stored at: %s\n", a.cfg.IndexPath(a.dir))

	if !ingestWatch {
		return nil
	}

	watcher := fs.NewWatcher(walker, 0, logger)
	changes, err := watcher.Watch(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	fmt.Printf("\nWatching %s for changes (Ctrl+C to stop)...\n", path)

	for batch := range changes {
		summary, err := uc.IngestFiles(ctx, path, batch, nil)
		if err != nil {
			return fmt.Errorf("ingestion failed: %w", err)
		}
		fmt.Printf("%s ingested %d file(s), %d chunk(s)\n",
			time.Now().Format(time.TimeOnly), summary.Documents, summary.Chunks)
		for _, e := range summary.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
	return nil
}

func printSummary(s domain.IngestSummary) {
	fmt.Printf("\nIngestion complete:\n")
	fmt.Printf("  Documents indexed: %d\n", s.Documents)
	fmt.Printf("  Documents skipped: %d\n", s.Skipped)
	fmt.Printf("  Chunks created:    %d\n", s.Chunks)

	if len(s.Errors) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, e := range s.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
}

// newProgress returns a ProgressFunc drawing a bar once the total is known.
func newProgress(label string) usecase.ProgressFunc {
	var bar *progressbar.ProgressBar
	var barMu sync.Mutex
	var startTime time.Time

	return func(done, total int) {
		barMu.Lock()
		defer barMu.Unlock()

		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]"+label+"[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}

		bar.Set(done)

		if done > 0 {
			elapsed := time.Since(startTime)
			rate := float64(done) / elapsed.Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-done)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]%s[reset] ETA: %s", label, formatDuration(eta)))
			}
		}
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
