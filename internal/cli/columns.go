package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/enrichr/internal/parser"
	"github.com/spf13/cobra"
)

var columnsSheet string

var columnsCmd = &cobra.Command{
	Use:   "columns <file>",
	Short: "List the columns of an input file",
	Long: `List the columns of an input file with their distinct non-empty value counts.

Use this to pick the --column for enrich.

Examples:
  enrichr columns companies.csv
  enrichr columns leads.xlsx --sheet Q3`,
	Args: cobra.ExactArgs(1),
	RunE: runColumns,
}

func init() {
	columnsCmd.Flags().StringVar(&columnsSheet, "sheet", "", "workbook sheet for .xlsx input (default first sheet)")
}

func runColumns(cmd *cobra.Command, args []string) error {
	path := args[0]
	out := cmd.OutOrStdout()

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		sheets, err := parser.Sheets(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Sheets: %s\n\n", strings.Join(sheets, ", "))
	}

	table, err := parser.Load(path, columnsSheet)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Columns (%d), rows: %d\n\n", len(table.Columns), len(table.Rows))
	for _, col := range table.Columns {
		values, err := table.DistinctValues(col)
		if err != nil {
			return err
		}
		sample := ""
		if len(values) > 0 {
			sample = "  e.g. " + values[0]
		}
		fmt.Fprintf(out, "- %-30s %6d distinct%s\n", col, len(values), sample)
	}

	return nil
}
