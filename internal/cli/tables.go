package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"vecsearch/internal/domain"
)

var (
	tableID   string
	rowsFile  string
	rowIDFlag string
	rowText   string
	statsJSON bool
)

var upsertCmd = &cobra.Command{
	Use:   "upsert",
	Short: "Embed and insert rows into a table",
	Long: `Embed texts and insert them into a table. Rows whose row_id already exists
are skipped. Rows come from a JSON file (an array of {"row_id","text","metadata"},
"-" for stdin) or from --id and --text.

Examples:
  vecsearch upsert -t notes --id n1 --text "buy milk"
  vecsearch upsert -t notes -f rows.json`,
	Args: cobra.NoArgs,
	RunE: runUpsert,
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Replace a table with the given rows",
	Long: `Embed texts and replace the whole table with them. An empty input leaves
the table untouched.

Examples:
  vecsearch rebuild -t notes -f rows.json`,
	Args: cobra.NoArgs,
	RunE: runRebuild,
}

var deleteCmd = &cobra.Command{
	Use:   "delete ROW_ID...",
	Short: "Delete rows from a table",
	Long: `Delete rows by id. The table index is rebuilt from the remaining rows;
deleting the last row removes the table.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDelete,
}

var statsCmd = &cobra.Command{
	Use:   "stats TABLE_ID",
	Short: "Show the size and dimension of a table",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	for _, c := range []*cobra.Command{upsertCmd, rebuildCmd} {
		c.Flags().StringVarP(&tableID, "table", "t", "", "table id (required)")
		c.Flags().StringVarP(&rowsFile, "file", "f", "", "JSON file with rows, - for stdin")
		c.Flags().StringVar(&rowIDFlag, "id", "", "row id of a single row")
		c.Flags().StringVar(&rowText, "text", "", "text of a single row")
		c.MarkFlagRequired("table")
		rootCmd.AddCommand(c)
	}

	deleteCmd.Flags().StringVarP(&tableID, "table", "t", "", "table id (required)")
	deleteCmd.MarkFlagRequired("table")
	rootCmd.AddCommand(deleteCmd)

	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runUpsert(cmd *cobra.Command, args []string) error {
	rows, err := readRows(cmd.InOrStdin(), rowsFile, rowIDFlag, rowText)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), GetConfig(), GetLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.tables.Upsert(cmd.Context(), tableID, rows)
	if err != nil {
		return fmt.Errorf("upsert failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Upserted into %s:\n", tableID)
	fmt.Fprintf(out, "  Inserted: %d\n", report.Inserted)
	fmt.Fprintf(out, "  Skipped:  %d (already present)\n", report.Skipped)
	if report.Reset != nil {
		fmt.Fprintf(out, "\nWarning: table was reset (dimension %d -> %d), %d rows dropped\n",
			report.Reset.OldDimension, report.Reset.NewDimension, report.Reset.DroppedRows)
	}
	return nil
}

func runRebuild(cmd *cobra.Command, args []string) error {
	rows, err := readRows(cmd.InOrStdin(), rowsFile, rowIDFlag, rowText)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), GetConfig(), GetLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.tables.Rebuild(cmd.Context(), tableID, rows); err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt %s with %d rows\n", tableID, len(rows))
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), GetConfig(), GetLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.tables.Delete(cmd.Context(), tableID, args)
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Deleted %d rows from %s, %d remaining\n", report.Deleted, tableID, report.Remaining)
	if report.Dropped {
		fmt.Fprintf(out, "Table %s is now empty and was removed\n", tableID)
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), GetConfig(), GetLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.tables.Stats(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if statsJSON {
		output, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Fprintln(out, string(output))
		return nil
	}
	if !stats.Exists {
		fmt.Fprintf(out, "Table %s does not exist.\n", stats.TableID)
		return nil
	}
	fmt.Fprintf(out, "Table %s:\n", stats.TableID)
	fmt.Fprintf(out, "  Rows:      %d\n", stats.Rows)
	fmt.Fprintf(out, "  Dimension: %d\n", stats.Dimension)
	return nil
}

// readRows reads rows from a JSON file (or stdin for "-"), or builds a single
// row from id and text.
func readRows(stdin io.Reader, file, id, text string) ([]domain.TextRow, error) {
	switch {
	case file != "" && id != "":
		return nil, fmt.Errorf("use either --file or --id/--text, not both")
	case file != "":
		var r io.Reader = stdin
		if file != "-" {
			f, err := os.Open(file)
			if err != nil {
				return nil, fmt.Errorf("failed to open rows file: %w", err)
			}
			defer f.Close()
			r = f
		}
		var rows []domain.TextRow
		if err := json.NewDecoder(r).Decode(&rows); err != nil {
			return nil, fmt.Errorf("failed to parse rows: %w", err)
		}
		return rows, nil
	case id != "":
		return []domain.TextRow{{ID: id, Text: text}}, nil
	}
	return nil, fmt.Errorf("no rows given: use --file or --id/--text")
}
