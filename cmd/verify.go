package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/posting-cli/internal/model"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify one contact on the web and print the report",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
		institution, _ := cmd.Flags().GetString("institution")
		textFile, _ := cmd.Flags().GetString("text-file")

		var source string
		if textFile != "" {
			data, err := os.ReadFile(textFile)
			if err != nil {
				return eris.Wrapf(err, "verify: read %s", textFile)
			}
			source = string(data)
		}

		// The command is pointless with verification switched off.
		cfg.Verify.Enabled = true
		env, err := initPipeline(ctx, "verify")
		if err != nil {
			return err
		}
		defer env.Close()

		report := env.Verifier.Verify(ctx, contactRecord(name, email, institution), source)
		return writeJSON(os.Stdout, report)
	},
}

func contactRecord(name, email, institution string) model.Record {
	return model.Record{
		model.FieldContactName:  name,
		model.FieldContactEmail: email,
		model.FieldUniversityEN: institution,
	}
}

func init() {
	verifyCmd.Flags().String("name", "", "contact name as extracted")
	verifyCmd.Flags().String("email", "", "contact email as extracted")
	verifyCmd.Flags().String("institution", "", "institution name")
	verifyCmd.Flags().String("text-file", "", "posting text used for the pronoun fallback")
	_ = verifyCmd.MarkFlagRequired("name")
	_ = verifyCmd.MarkFlagRequired("institution")
	rootCmd.AddCommand(verifyCmd)
}
