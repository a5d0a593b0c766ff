// Command techmig migrates technique records between schema versions.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/enso-aikido/techmig/internal/config"
	"github.com/enso-aikido/techmig/internal/logging"
	"github.com/enso-aikido/techmig/internal/lookup"
	"github.com/enso-aikido/techmig/internal/ui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// app carries state shared by all subcommands of one invocation.
type app struct {
	settings *viper.Viper
	cfg      *config.Config
	logger   *zap.Logger

	stdout io.Writer

	// confirm asks the user before files are rewritten.
	confirm func(title string) (bool, error)
}

// confirmFunc is replaced in tests.
var confirmFunc = confirmRewrite

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		settings: config.NewViper(),
		logger:   zap.NewNop(),
		stdout:   stdout,
		confirm:  confirmFunc,
	}
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "techmig",
		Short: "Migrate technique records between schema versions",
		Long: `techmig rewrites the technique records (*.json) of a content directory.

Commands:
  migrate   Convert v1 records to the v2 layout
  backfill  Add empty keyPoints, commonMistakes and context to every version
  status    Report the schema version of every record without writing

The directory comes from --dir, the TECHMIG_DIR environment variable or the
dir key of a config file passed with --config. Files are processed one by one;
a broken file is reported and skipped, and the exit code is non-zero when any
file failed.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ReadFile(a.settings, configFile); err != nil {
				return err
			}
			cfg, err := config.Load(a.settings)
			if err != nil {
				return err
			}
			a.cfg = cfg
			if cfg.NoColor {
				ui.DisableColor()
			}
			a.logger = logging.New(logging.Options{
				Verbose: cfg.Verbose,
				File:    cfg.LogFile,
				Level:   cfg.LogLevel,
			})
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (.yaml or .toml)")
	flags.String(config.KeyDir, "", "Directory of technique *.json files (env "+config.EnvPrefix+"_DIR)")
	flags.StringSlice(config.KeyExclude, nil, "Glob of file names to skip (repeatable)")
	flags.String(config.KeyLookup, "", "Trainer/dojo lookup table (.yaml, .yml or .toml); built-in table if unset")
	flags.Bool(config.KeyDryRun, false, "Show what would change without writing files")
	flags.Bool(config.KeyBackup, false, "Keep a timestamped copy of every file before rewriting it")
	flags.BoolP(config.KeyYes, "y", false, "Do not ask for confirmation")
	flags.BoolP(config.KeyVerbose, "v", false, "Debug logging on stderr")
	flags.String(config.KeyLogFile, "", "Write JSON logs to this file (rotated)")
	flags.String(config.KeyLogLevel, "info", "Minimum level for the log file")
	flags.Bool(config.KeyNoColor, false, "Disable colored output (also NO_COLOR)")

	for _, key := range []string{
		config.KeyDir, config.KeyExclude, config.KeyLookup, config.KeyDryRun, config.KeyBackup,
		config.KeyYes, config.KeyVerbose, config.KeyLogFile, config.KeyLogLevel, config.KeyNoColor,
	} {
		// Lookup never returns nil here, so BindPFlag cannot fail.
		_ = a.settings.BindPFlag(key, flags.Lookup(key))
	}

	rootCmd.AddCommand(newMigrateCmd(a), newBackfillCmd(a), newStatusCmd(a))
	return rootCmd
}

// lookupTables returns the configured trainer/dojo tables.
func (a *app) lookupTables() (*lookup.Tables, error) {
	if a.cfg.Lookup == "" {
		return lookup.Default(), nil
	}
	tables, err := lookup.Load(a.cfg.Lookup)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("loaded lookup tables",
		zap.String("path", a.cfg.Lookup),
		zap.Int("trainers", len(tables.Trainers)),
		zap.Int("dojos", len(tables.Dojos)))
	return tables, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// fprintf writes to w, ignoring errors like fmt.Printf does.
func fprintf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
