package main

import (
	"github.com/enso-aikido/techmig/internal/technique"
	"github.com/spf13/cobra"
)

func newBackfillCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Add missing keyPoints, commonMistakes and context fields",
		Long: `Add empty localized fields to every version entry that lacks them:

  keyPoints       {"en": [], "de": []}
  commonMistakes  {"en": [], "de": []}
  context         {"en": "", "de": ""}

Existing values are never touched. Works on v1 and v2 records, and files that
need nothing are not rewritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBatch(cmd, technique.Backfill, batchLabels{
				changed:   "Fields added",
				dryRun:    "Would add fields",
				unchanged: "No fields needed",
				prompt:    "Add missing fields to technique files (%d found) in %s?",
			})
		},
	}
}
