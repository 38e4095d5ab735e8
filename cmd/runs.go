package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/posting-cli/internal/model"
	"github.com/sells-group/posting-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored analysis runs",
	Long:  "Every analyzed row leaves a run in the store: its record, outcome, cost and LLM transcript. These commands read them back.",
}

// storeCommand opens the configured store around fn.
func storeCommand(fn func(cmd *cobra.Command, args []string, st store.Store) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		return fn(cmd, args, st)
	}
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List analysis runs, newest first",
	RunE: storeCommand(func(cmd *cobra.Command, _ []string, st store.Store) error {
		f := model.RunFilter{}
		f.RowID, _ = cmd.Flags().GetInt("row")
		f.Limit, _ = cmd.Flags().GetInt("limit")
		f.Offset, _ = cmd.Flags().GetInt("offset")
		outcome, _ := cmd.Flags().GetString("outcome")
		if outcome != "" && !model.Outcome(outcome).Valid() {
			return eris.Errorf("runs list: unknown outcome %q", outcome)
		}
		f.Outcome = model.Outcome(outcome)

		runs, err := st.ListRuns(cmd.Context(), f)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		formatRunsList(os.Stdout, runs)
		return nil
	}),
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run with its LLM transcript",
	Args:  cobra.ExactArgs(1),
	RunE: storeCommand(func(cmd *cobra.Command, args []string, st store.Store) error {
		run, err := st.GetRun(cmd.Context(), args[0])
		if errors.Is(err, store.ErrNotFound) {
			return eris.Errorf("runs show: no run with id %s", args[0])
		}
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		return writeJSON(os.Stdout, run)
	}),
}

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count stored runs by outcome",
	RunE: storeCommand(func(cmd *cobra.Command, _ []string, st store.Store) error {
		counts, err := st.CountByOutcome(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}
		fmt.Fprintln(os.Stdout, renderOutcomeCounts(counts))
		return nil
	}),
}

var runsPruneCmd = &cobra.Command{
	Use:   "prune-cache",
	Short: "Delete expired entries from the page cache",
	RunE: storeCommand(func(cmd *cobra.Command, _ []string, st store.Store) error {
		n, err := st.DeleteExpiredPages(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "runs prune-cache")
		}
		zap.L().Info("page cache pruned", zap.Int("deleted", n))
		fmt.Fprintf(os.Stdout, "Deleted %d expired pages.\n", n)
		return nil
	}),
}

func formatRunsList(w io.Writer, runs []model.Run) {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		rows = append(rows, []string{
			id,
			strconv.Itoa(r.RowID),
			string(r.Outcome),
			fmt.Sprintf("$%.4f", r.CostUSD),
			r.CreatedAt.UTC().Format("2006-01-02 15:04"),
			truncateCell(r.Error, 60),
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"ID", "ROW", "OUTCOME", "COST", "CREATED", "ERROR"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignLeft, alignLeft},
	))
}

func renderOutcomeCounts(counts map[model.Outcome]int) string {
	outcomes := make([]string, 0, len(counts))
	total := 0
	for o, n := range counts {
		outcomes = append(outcomes, string(o))
		total += n
	}
	sort.Strings(outcomes)

	rows := make([][]string, 0, len(outcomes)+1)
	for _, o := range outcomes {
		rows = append(rows, []string{o, strconv.Itoa(counts[model.Outcome(o)])})
	}
	rows = append(rows, []string{"total", strconv.Itoa(total)})
	return renderTable([]string{"OUTCOME", "RUNS"}, rows, []columnAlignment{alignLeft, alignRight})
}

func truncateCell(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	runsListCmd.Flags().Int("row", 0, "filter by sheet row")
	runsListCmd.Flags().String("outcome", "", "filter by outcome (success, partial, failure)")
	runsListCmd.Flags().Int("limit", 20, "max runs to show")
	runsListCmd.Flags().Int("offset", 0, "runs to skip")

	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsStatsCmd, runsPruneCmd)
	rootCmd.AddCommand(runsCmd)
}
