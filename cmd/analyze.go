package main

import (
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/posting-cli/internal/pipeline"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze one posting and print the record as JSON",
	Long:  "Runs the extraction stages over a single posting fetched from --url or read from --file. Nothing is written to the workbook.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		url, _ := cmd.Flags().GetString("url")
		file, _ := cmd.Flags().GetString("file")
		if (url == "") == (file == "") {
			return eris.New("analyze: exactly one of --url or --file is required")
		}

		env, err := initPipeline(ctx, "analyze")
		if err != nil {
			return err
		}
		defer env.Close()

		var text string
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return eris.Wrapf(err, "analyze: read %s", file)
			}
			text = string(data)
		} else {
			text, err = env.Fetcher.Fetch(ctx, url)
			if err != nil {
				return eris.Wrap(err, "analyze: fetch")
			}
		}

		res := env.Analyzer.Process(ctx, pipeline.Input{URL: url, Text: text})
		if err := writeJSON(os.Stdout, res); err != nil {
			return err
		}
		if !res.OK() {
			return eris.Errorf("analyze: %s", res.Error)
		}
		return nil
	},
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return eris.Wrap(enc.Encode(v), "encode json")
}

func init() {
	analyzeCmd.Flags().String("url", "", "posting URL to fetch")
	analyzeCmd.Flags().String("file", "", "file holding the posting text")
	rootCmd.AddCommand(analyzeCmd)
}
