package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/enso-aikido/techmig/internal/batch"
	"github.com/enso-aikido/techmig/internal/jsonfile"
	"github.com/enso-aikido/techmig/internal/technique"
	"github.com/enso-aikido/techmig/internal/ui"
	"github.com/spf13/cobra"
)

// fileStatus is one row of the status report.
type fileStatus struct {
	Path           string           `json:"path"`
	Schema         technique.Schema `json:"schema,omitempty"`
	NeedsMigration bool             `json:"needs_migration"`
	NeedsBackfill  bool             `json:"needs_backfill"`
	Error          string           `json:"error,omitempty"`
}

func newStatusCmd(a *app) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report the schema version of every technique record",
		Long: `Inspect every technique record without writing anything.

For each file shows the detected schema version, whether migrate would
rewrite it and whether backfill would add fields. Exits non-zero when a file
cannot be parsed or mixes v1 and v2 fields.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := batch.Discover(a.batchOptions())
			if err != nil {
				return err
			}

			statuses := make([]fileStatus, 0, len(paths))
			invalid := 0
			for _, path := range paths {
				st := inspectFile(path)
				if st.Error != "" {
					invalid++
				}
				statuses = append(statuses, st)
			}

			if jsonOutput {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				enc.SetEscapeHTML(false)
				if err := enc.Encode(statuses); err != nil {
					return fmt.Errorf("failed to encode status: %w", err)
				}
			} else {
				printStatus(a, statuses)
			}

			if invalid > 0 {
				return fmt.Errorf("%d of %d files are invalid", invalid, len(paths))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")
	return cmd
}

func inspectFile(path string) fileStatus {
	st := fileStatus{Path: path}

	data, err := jsonfile.Read(path)
	if err != nil {
		st.Error = err.Error()
		return st
	}

	schema, err := technique.Detect(data)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	st.Schema = schema
	st.NeedsMigration = technique.NeedsMigration(schema)

	_, changed, err := technique.Backfill(data)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	st.NeedsBackfill = changed
	return st
}

func printStatus(a *app, statuses []fileStatus) {
	var current, outdated, incomplete, invalid int

	fprintf(a.stdout, "\n%s Technique records in %s\n\n", ui.RenderAccent("📊"), a.cfg.Dir)
	for _, st := range statuses {
		name := filepath.Base(st.Path)
		switch {
		case st.Error != "":
			invalid++
			fprintf(a.stdout, "%s %s: %s\n", ui.RenderFail("✗"), name, st.Error)
			continue
		case st.NeedsMigration:
			outdated++
			fprintf(a.stdout, "%s %s: %s, needs migration\n", ui.RenderWarn("⚠"), name, st.Schema)
		default:
			current++
			fprintf(a.stdout, "%s %s: %s\n", ui.RenderPass("✓"), name, st.Schema)
		}
		if st.NeedsBackfill {
			incomplete++
			fprintf(a.stdout, "  %s\n", ui.RenderMuted("missing keyPoints, commonMistakes or context"))
		}
	}

	fprintf(a.stdout, "\nCurrent (%s): %d\n", technique.CurrentSchema, current)
	fprintf(a.stdout, "Needs migration: %d\n", outdated)
	fprintf(a.stdout, "Needs backfill: %d\n", incomplete)
	fprintf(a.stdout, "Invalid: %d\n", invalid)
}
