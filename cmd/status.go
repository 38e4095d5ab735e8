package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sells-group/posting-cli/internal/sheet"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show workbook progress",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("status"); err != nil {
			return err
		}
		wb, err := openWorkbook()
		if err != nil {
			return err
		}
		defer wb.Close() //nolint:errcheck

		fmt.Fprintln(os.Stdout, renderSheetStats(wb.Path(), wb.Stats()))
		return nil
	},
}

func renderSheetStats(path string, s sheet.Stats) string {
	rows := [][]string{
		{"Workbook", path},
		{"Total rows", strconv.Itoa(s.Total)},
		{"Filled", strconv.Itoa(s.Filled)},
		{"Errors", strconv.Itoa(s.Errors)},
		{"Pending", strconv.Itoa(s.Pending)},
		{"Completion", fmt.Sprintf("%.1f%%", s.CompletionRate)},
	}
	return renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}

// renderRunSummary reports one run next to the workbook before and after.
func renderRunSummary(r runStats, before, after sheet.Stats) string {
	rows := [][]string{
		{"Processed", strconv.Itoa(r.Processed), "", ""},
		{"Succeeded", strconv.Itoa(r.Succeeded), "", ""},
		{"Partial", strconv.Itoa(r.Partial), "", ""},
		{"Failed", strconv.Itoa(r.Failed), "", ""},
		{"Success rate", fmt.Sprintf("%.1f%%", r.SuccessRate()), "", ""},
		{"Filled", "", strconv.Itoa(before.Filled), strconv.Itoa(after.Filled)},
		{"Errors", "", strconv.Itoa(before.Errors), strconv.Itoa(after.Errors)},
		{"Pending", "", strconv.Itoa(before.Pending), strconv.Itoa(after.Pending)},
		{"Completion", "", fmt.Sprintf("%.1f%%", before.CompletionRate), fmt.Sprintf("%.1f%%", after.CompletionRate)},
	}
	return renderTable(
		[]string{"Metric", "Run", "Sheet before", "Sheet after"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
	)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
