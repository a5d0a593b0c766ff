package main

import (
	"fmt"

	"github.com/enso-aikido/techmig/internal/batch"
	"github.com/enso-aikido/techmig/internal/ui"
	"github.com/spf13/cobra"
)

// batchLabels are the console wording of one batch command.
type batchLabels struct {
	changed   string // e.g. "Transformed"
	dryRun    string // e.g. "Would transform"
	unchanged string
	current   string // unchanged because the record is already current; unchanged if empty
	prompt    string // confirmation title, %d is the file count, %s the directory
}

func (a *app) batchOptions() batch.Options {
	return batch.Options{
		Dir:     a.cfg.Dir,
		Exclude: a.cfg.Exclude,
		DryRun:  a.cfg.DryRun,
		Backup:  a.cfg.Backup,
		Logger:  a.logger,
	}
}

// runBatch applies fn to every technique file, printing one line per file
// and a summary. It returns an error when any file failed.
func (a *app) runBatch(cmd *cobra.Command, fn batch.TransformFunc, labels batchLabels) error {
	opts := a.batchOptions()

	paths, err := batch.Discover(opts)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fprintf(a.stdout, "%s No technique files found in %s\n", ui.RenderWarn("⚠"), opts.Dir)
		return nil
	}

	if !opts.DryRun && !a.cfg.Yes {
		ok, err := a.confirm(fmt.Sprintf(labels.prompt, len(paths), opts.Dir))
		if err != nil {
			return fmt.Errorf("confirmation failed: %w", err)
		}
		if !ok {
			fprintf(a.stdout, "Aborted, no files written.\n")
			return nil
		}
	}

	report := func(fr batch.FileResult) {
		switch fr.Outcome {
		case batch.OutcomeChanged:
			label := labels.changed
			if opts.DryRun {
				label = labels.dryRun
			}
			fprintf(a.stdout, "%s %s: %s\n", ui.RenderPass("✓"), label, fr.Path)
			if fr.Backup != "" {
				fprintf(a.stdout, "  %s\n", ui.RenderMuted("backup: "+fr.Backup))
			}
		case batch.OutcomeUnchanged:
			label := labels.unchanged
			if fr.Current && labels.current != "" {
				label = labels.current
			}
			fprintf(a.stdout, "%s %s: %s\n", ui.RenderMuted("·"), label, fr.Path)
		case batch.OutcomeFailed:
			fprintf(a.stdout, "%s Error processing %s: %v\n", ui.RenderFail("✗"), fr.Path, fr.Err)
		}
	}

	result, err := batch.RunFiles(cmd.Context(), opts, paths, fn, report)
	if err != nil {
		return err
	}

	fprintf(a.stdout, "\n%s %d changed, %d unchanged, %d failed",
		ui.RenderAccent("Summary:"), result.Changed, result.Unchanged, result.Failed)
	if result.DryRun {
		fprintf(a.stdout, " %s", ui.RenderMuted("(dry run, nothing written)"))
	}
	fprintf(a.stdout, "\n")

	if result.Failed > 0 {
		return fmt.Errorf("%d of %d files failed", result.Failed, len(result.Files))
	}
	return nil
}
