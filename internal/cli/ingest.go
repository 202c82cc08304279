package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"vecsearch/internal/adapter/fs"
	"vecsearch/internal/usecase"
)

var (
	ingestTable   string
	ingestNoBar   bool
	ingestMaxFile int64
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Upsert the text files of a directory into a table",
	Long: `Walk a directory and upsert one row per text file. The row id is the
path relative to the directory, so running ingest again only adds new files.
Include and exclude patterns come from the ingest section of the config.

Examples:
  vecsearch ingest ./docs -t docs
  vecsearch ingest -t notes --no-progress`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVarP(&ingestTable, "table", "t", "", "table id (required)")
	ingestCmd.Flags().BoolVar(&ingestNoBar, "no-progress", false, "disable the progress bar")
	ingestCmd.Flags().Int64Var(&ingestMaxFile, "max-file-bytes", 0, "bytes embedded per file (default from config)")
	ingestCmd.MarkFlagRequired("table")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	log := GetLogger()

	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("failed to access path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", absPath)
	}

	maxBytes := cfg.Ingest.MaxFileBytes
	if ingestMaxFile > 0 {
		maxBytes = ingestMaxFile
	}

	a, err := newApp(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	// Files larger than the embedded prefix are still ingested, truncated.
	walker := fs.NewWalker(cfg.Ingest.Includes, cfg.Ingest.Excludes, 0)
	ingestUC := usecase.NewIngestUseCase(a.tables, walker, cfg.Ingest.BatchSize, maxBytes, log)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scanning %s...\n", absPath)

	var progress usecase.ProgressFunc
	if !ingestNoBar {
		progress = newProgress(out)
	}

	result, err := ingestUC.Ingest(cmd.Context(), ingestTable, absPath, progress)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	fmt.Fprintf(out, "\nIngest complete:\n")
	fmt.Fprintf(out, "  Files seen:     %d\n", result.FilesSeen)
	fmt.Fprintf(out, "  Files inserted: %d\n", result.FilesInserted)
	fmt.Fprintf(out, "  Files skipped:  %d\n", result.FilesSkipped)
	fmt.Fprintf(out, "  Duration:       %s\n", result.Duration.Round(time.Millisecond))
	if result.Resets > 0 {
		fmt.Fprintf(out, "\nWarning: table %s was reset %d time(s) by a dimension change\n", ingestTable, result.Resets)
	}
	if len(result.Errors) > 0 {
		fmt.Fprintf(out, "\nErrors (%d):\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - %s\n", e)
		}
	}
	return nil
}

// newProgress returns a ProgressFunc drawing a bar with an ETA. The bar is
// created on the first call, once the file count is known.
func newProgress(w io.Writer) usecase.ProgressFunc {
	var (
		bar       *progressbar.ProgressBar
		mu        sync.Mutex
		startTime time.Time
	)
	return func(processed, total int) {
		mu.Lock()
		defer mu.Unlock()

		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(w),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Ingesting[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(w)
				}),
			)
		}

		bar.Set(processed)

		if processed > 0 {
			rate := float64(processed) / time.Since(startTime).Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-processed)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Ingesting[reset] ETA: %s", formatDuration(eta)))
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
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
