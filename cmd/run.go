package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/posting-cli/internal/model"
	"github.com/sells-group/posting-cli/internal/pipeline"
	"github.com/sells-group/posting-cli/internal/sheet"
)

// Row error messages written to the Error column.
const (
	errRowUnavailable = "row data unavailable"
	errNoURL          = "no valid URL found"
	errFetchFailed    = "content fetch failed"
)

// rowAnalyzer is the part of *pipeline.Analyzer the row loop needs.
type rowAnalyzer interface {
	Process(ctx context.Context, in pipeline.Input) pipeline.Result
}

// rowFetcher fetches a posting and drops any PDF downloaded for it.
// *scrape.Router implements it.
type rowFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
	Cleanup() error
}

// runStats counts rows handled in one run. Partial rows count as
// succeeded.
type runStats struct {
	Processed int
	Succeeded int
	Partial   int
	Failed    int
}

// SuccessRate is the share of processed rows that succeeded, in percent.
func (s runStats) SuccessRate() float64 {
	if s.Processed == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Processed) * 100
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process unprocessed rows of the workbook",
	Long:  "Fetches each unprocessed row's posting, runs the three extraction stages, and writes the record back to the workbook after every row.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		limit, _ := cmd.Flags().GetInt("limit")
		rowID, _ := cmd.Flags().GetInt("row")

		if err := cfg.Validate("run"); err != nil {
			return err
		}

		wb, err := openWorkbook()
		if err != nil {
			return err
		}
		defer wb.Close() //nolint:errcheck

		ids := selectRows(wb.UnprocessedRows(), rowID, limit)
		if len(ids) == 0 {
			zap.L().Info("no rows to process")
			return nil
		}

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		before := wb.Stats()
		zap.L().Info("processing rows",
			zap.Int("rows", len(ids)),
			zap.Int("pending", before.Pending),
		)

		stats, runErr := processRows(ctx, wb, ids, env.Fetcher, env.Analyzer)

		tokens, jinaCost := env.JinaCost()
		zap.L().Info("run complete",
			zap.Int("processed", stats.Processed),
			zap.Int("succeeded", stats.Succeeded),
			zap.Int("partial", stats.Partial),
			zap.Int("failed", stats.Failed),
			zap.Float64("success_rate", stats.SuccessRate()),
			zap.Int("jina_tokens", tokens),
			zap.Float64("jina_cost_usd", jinaCost),
		)
		fmt.Fprintln(os.Stdout, renderRunSummary(stats, before, wb.Stats()))
		return runErr
	},
}

// selectRows narrows the unprocessed rows to --row or the first --limit.
func selectRows(unprocessed []int, rowID, limit int) []int {
	if rowID > 0 {
		for _, id := range unprocessed {
			if id == rowID {
				return []int{id}
			}
		}
		return nil
	}
	if limit > 0 && len(unprocessed) > limit {
		return unprocessed[:limit]
	}
	return unprocessed
}

func openWorkbook() (*sheet.Workbook, error) {
	var opts []sheet.Option
	if cfg.Sheet.LockPath != "" {
		opts = append(opts, sheet.WithLockPath(cfg.Sheet.LockPath))
	}
	wb, err := sheet.Open(cfg.Sheet.Path, cfg.Sheet.Name, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "open workbook")
	}
	return wb, nil
}

// processRows handles ids one at a time and saves the workbook after each
// row. A save failure or cancellation stops the loop.
func processRows(ctx context.Context, rows sheet.RowStore, ids []int, f rowFetcher, a rowAnalyzer) (runStats, error) {
	var stats runStats
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			zap.L().Warn("run interrupted, progress saved", zap.Int("processed", stats.Processed))
			return stats, eris.Wrap(err, "run interrupted")
		}

		outcome := processRow(ctx, rows, id, f, a)
		stats.Processed++
		switch outcome {
		case model.OutcomeSuccess:
			stats.Succeeded++
		case model.OutcomePartial:
			stats.Succeeded++
			stats.Partial++
		default:
			stats.Failed++
		}

		if err := rows.Save(); err != nil {
			return stats, eris.Wrapf(err, "save after row %d", id)
		}
		zap.L().Debug("row saved", zap.Int("row", id))
	}
	return stats, nil
}

// processRow runs fetch, analyze and write for one row. Every failure is
// written to the row's Error cell; nothing is returned.
func processRow(ctx context.Context, rows sheet.RowStore, id int, f rowFetcher, a rowAnalyzer) (outcome model.Outcome) {
	log := zap.L().With(zap.Int("row", id))
	outcome = model.OutcomeFailure

	defer func() {
		if err := f.Cleanup(); err != nil {
			log.Warn("pdf cleanup failed", zap.Error(err))
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("processing error: %v", r)
			log.Error("row panicked", zap.Any("panic", r))
			writeError(rows, id, msg)
			outcome = model.OutcomeFailure
		}
	}()

	row, ok := rows.Row(id)
	if !ok {
		log.Error(errRowUnavailable)
		writeError(rows, id, errRowUnavailable)
		return outcome
	}

	url, ok := rows.ExtractURL(row)
	if !ok {
		log.Warn(errNoURL)
		writeError(rows, id, errNoURL)
		return outcome
	}
	log = log.With(zap.String("url", url))

	text, err := f.Fetch(ctx, url)
	if err != nil {
		log.Error(errFetchFailed, zap.Error(err))
		writeError(rows, id, errFetchFailed)
		return outcome
	}

	res := a.Process(ctx, pipeline.Input{RowID: id, URL: url, Text: text})
	if !res.OK() {
		log.Error("analysis failed", zap.String("error", res.Error))
		writeError(rows, id, res.Error)
		return res.Outcome
	}

	// Only a full success marks the row verified.
	verifier := ""
	if res.Outcome == model.OutcomeSuccess {
		verifier = model.VerifierLLM
	}
	if err := rows.WriteResult(id, res.Record, res.Error, verifier); err != nil {
		msg := "result update failed"
		if res.Error != "" {
			msg += "; " + res.Error
		}
		log.Error(msg, zap.Error(err))
		writeError(rows, id, msg)
		return model.OutcomeFailure
	}

	if res.Error != "" {
		log.Warn("partial result written", zap.String("error", res.Error))
	} else {
		log.Info("row complete")
	}
	return res.Outcome
}

func writeError(rows sheet.RowStore, id int, msg string) {
	if err := rows.WriteError(id, msg); err != nil {
		zap.L().Error("write row error", zap.Int("row", id), zap.Error(err))
	}
}

func init() {
	runCmd.Flags().Int("limit", 0, "max rows to process (0 = all)")
	runCmd.Flags().Int("row", 0, "process only this row ID")
	rootCmd.AddCommand(runCmd)
}
