package main

import (
	"github.com/enso-aikido/techmig/internal/technique"
	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Convert technique records from the v1 to the v2 schema",
		Long: `Rewrite every v1 technique record in the v2 layout:

  - drop the deprecated stance field
  - emit top-level fields in v2 order, with tags right after summary
  - rename version id v-official to v-standard
  - resolve sensei/dojo text to trainerId/dojoId via the lookup table
  - omit the default "Standard" label
  - move steps under stepsByEntry, keyed irimi or tenkan
  - default media to an empty list

Records already in the v2 layout are left untouched, so running migrate twice
is safe. Records missing a mandatory field (id, slug, name, jp, category,
attack, weapon, level, summary) are reported as errors.

Examples:
  techmig migrate --dir content/techniques
  techmig migrate --dry-run --exclude 'draft-*.json'
  TECHMIG_DIR=content/techniques techmig migrate --backup --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, err := a.lookupTables()
			if err != nil {
				return err
			}
			migrator := technique.NewMigrator(tables)

			return a.runBatch(cmd, migrator.Migrate, batchLabels{
				changed:   "Transformed",
				dryRun:    "Would transform",
				unchanged: "No change needed",
			current:   "Already migrated",
				prompt:    "Migrate %d technique files in %s to the v2 schema?",
			})
		},
	}
}
