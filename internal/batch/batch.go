// Package batch runs a record transform over every technique file in a
// directory.
//
// Files are processed one at a time in lexical order. A failure reading,
// transforming or writing one file is recorded and the batch moves on to the
// next file; only problems with the directory itself abort the run.
package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/enso-aikido/techmig/internal/jsonfile"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrNotDirectory is returned when Options.Dir is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// TransformFunc transforms one document. When changed is false, or the
// formatted output equals the file's current bytes, the file is left untouched.
type TransformFunc func(doc []byte) (out []byte, changed bool, err error)

// Reporter is called once per file, right after the file is handled.
type Reporter func(FileResult)

// Options configures a batch run.
type Options struct {
	Dir     string   // Directory holding *.json technique files
	Exclude []string // Base-name globs to skip
	DryRun  bool     // Transform without writing
	Backup  bool     // Copy each file aside before rewriting it

	Logger *zap.Logger      // Defaults to a no-op logger
	Now    func() time.Time // Clock for backup names; defaults to time.Now
}

// Outcome is the result of handling a single file.
type Outcome int

const (
	// OutcomeChanged means the transform produced new content.
	OutcomeChanged Outcome = iota
	// OutcomeUnchanged means the file needed no change.
	OutcomeUnchanged
	// OutcomeFailed means reading, transforming or writing failed.
	OutcomeFailed
)

// String returns a human-readable representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeChanged:
		return "changed"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// FileResult describes what happened to one file.
type FileResult struct {
	Path    string
	Outcome Outcome
	Backup  string // Backup path, if one was written
	Err     error

	// Current is set for unchanged files the transform itself declined to
	// change, as opposed to files whose new content matched the old bytes.
	Current bool
}

// Result contains statistics about a batch run.
type Result struct {
	Files     []FileResult
	Changed   int
	Unchanged int
	Failed    int
	DryRun    bool
}

// Err combines the errors of all failed files, or returns nil.
func (r *Result) Err() error {
	var errs error
	for _, f := range r.Files {
		if f.Err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", f.Path, f.Err))
		}
	}
	return errs
}

// Discover lists the technique files in opts.Dir, skipping excluded names.
func Discover(opts Options) ([]string, error) {
	info, err := os.Stat(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open techniques directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", opts.Dir, ErrNotDirectory)
	}

	for _, pattern := range opts.Exclude {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
	}

	// Glob returns matches in lexical order.
	matches, err := filepath.Glob(filepath.Join(opts.Dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list techniques directory: %w", err)
	}

	var paths []string
	for _, path := range matches {
		if excluded(filepath.Base(path), opts.Exclude) {
			continue
		}
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			continue
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func excluded(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// Run applies fn to every discovered file. The returned error is non-nil only
// when the directory cannot be listed or ctx is cancelled; per-file failures
// are reported through the Result.
func Run(ctx context.Context, opts Options, fn TransformFunc, report Reporter) (*Result, error) {
	paths, err := Discover(opts)
	if err != nil {
		return nil, err
	}
	return RunFiles(ctx, opts, paths, fn, report)
}

// RunFiles is Run over an explicit list of files.
func RunFiles(ctx context.Context, opts Options, paths []string, fn TransformFunc, report Reporter) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	result := &Result{DryRun: opts.DryRun}
	logger.Debug("starting batch", zap.String("dir", opts.Dir), zap.Int("files", len(paths)), zap.Bool("dry_run", opts.DryRun))

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("batch interrupted after %d of %d files: %w", len(result.Files), len(paths), err)
		}

		fr := processFile(path, opts, now, fn)
		switch fr.Outcome {
		case OutcomeChanged:
			result.Changed++
			logger.Info("file transformed", zap.String("path", path), zap.String("backup", fr.Backup), zap.Bool("dry_run", opts.DryRun))
		case OutcomeUnchanged:
			result.Unchanged++
			logger.Debug("file unchanged", zap.String("path", path))
		case OutcomeFailed:
			result.Failed++
			logger.Error("file failed", zap.String("path", path), zap.Error(fr.Err))
		}
		result.Files = append(result.Files, fr)

		if report != nil {
			report(fr)
		}
	}

	logger.Info("batch complete",
		zap.Int("changed", result.Changed),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("failed", result.Failed))

	return result, nil
}

func processFile(path string, opts Options, now func() time.Time, fn TransformFunc) FileResult {
	fr := FileResult{Path: path}
	fail := func(err error) FileResult {
		fr.Outcome = OutcomeFailed
		fr.Err = err
		return fr
	}

	data, err := jsonfile.Read(path)
	if err != nil {
		return fail(err)
	}

	out, changed, err := fn(data)
	if err != nil {
		return fail(err)
	}
	if !changed {
		fr.Outcome = OutcomeUnchanged
		fr.Current = true
		return fr
	}

	formatted, err := jsonfile.Format(out)
	if err != nil {
		return fail(err)
	}
	if bytes.Equal(formatted, data) {
		fr.Outcome = OutcomeUnchanged
		return fr
	}

	if !opts.DryRun {
		if opts.Backup {
			backupPath, err := jsonfile.Backup(path, now())
			if err != nil {
				return fail(err)
			}
			fr.Backup = backupPath
		}
		if err := jsonfile.WriteAtomic(path, formatted); err != nil {
			return fail(err)
		}
	}

	fr.Outcome = OutcomeChanged
	return fr
}
