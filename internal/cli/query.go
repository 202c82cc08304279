package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	searchTable string
	queryText   string
	queryTopK   int
	queryJSON   bool
)

var searchCmd = &cobra.Command{
	Use:     "search",
	Aliases: []string{"query"},
	Short:   "Search a table by text similarity",
	Long: `Embed the query text and return the closest rows of a table. Scores are
negated squared L2 distances: higher is closer.

Examples:
  vecsearch search -t notes -q "groceries"
  vecsearch search -t notes -q "groceries" --top-k 10 --json`,
	Args: cobra.NoArgs,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVarP(&searchTable, "table", "t", "", "table id (required)")
	searchCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	searchCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	searchCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	searchCmd.MarkFlagRequired("table")
	searchCmd.MarkFlagRequired("query")
}

func runSearch(cmd *cobra.Command, args []string) error {
	if queryTopK < 0 {
		return fmt.Errorf("--top-k must not be negative")
	}

	a, err := newApp(cmd.Context(), GetConfig(), GetLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.tables.Search(cmd.Context(), searchTable, queryText, queryTopK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if queryJSON {
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Fprintln(out, string(output))
		return nil
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}
	fmt.Fprintf(out, "Found %d results for: %s\n\n", len(results), queryText)
	for i, r := range results {
		fmt.Fprintf(out, "--- [%d] %s (score: %.4f) ---\n", i+1, r.RowID, r.Score)
		if len(r.Metadata) > 0 {
			meta, _ := json.Marshal(r.Metadata)
			text := string(meta)
			if len(text) > 500 {
				text = text[:500] + "..."
			}
			fmt.Fprintln(out, text)
		}
		fmt.Fprintln(out)
	}
	return nil
}
