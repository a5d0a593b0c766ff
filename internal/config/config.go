// Package config resolves techmig settings from flags, environment variables
// and an optional config file.
//
// Precedence, highest first: command-line flags, TECHMIG_* environment
// variables, the config file, defaults.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is the prefix of environment variables, e.g. TECHMIG_DIR.
const EnvPrefix = "TECHMIG"

// Config keys. Flags use the same names.
const (
	KeyDir      = "dir"
	KeyExclude  = "exclude"
	KeyLookup   = "lookup"
	KeyDryRun   = "dry-run"
	KeyBackup   = "backup"
	KeyYes      = "yes"
	KeyVerbose  = "verbose"
	KeyLogFile  = "log-file"
	KeyLogLevel = "log-level"
	KeyNoColor  = "no-color"
)

// ErrNoDir is returned when no techniques directory is configured.
var ErrNoDir = errors.New("techniques directory not set: pass --dir, set " + EnvPrefix + "_DIR or add dir to the config file")

// Config holds the resolved settings.
type Config struct {
	Dir      string   // Directory of technique *.json files
	Exclude  []string // Base-name globs to skip
	Lookup   string   // Optional trainer/dojo table file (.yaml, .yml, .toml)
	DryRun   bool
	Backup   bool
	Yes      bool // Skip the interactive confirmation
	Verbose  bool
	LogFile  string
	LogLevel zapcore.Level
	NoColor  bool // Plain console output, like NO_COLOR
}

// NewViper returns a viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyExclude, []string{})
	v.SetDefault(KeyLogLevel, "info")
	return v
}

// ReadFile merges a YAML or TOML config file into v.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// Load builds a validated Config from v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Dir:     strings.TrimSpace(v.GetString(KeyDir)),
		Exclude: v.GetStringSlice(KeyExclude),
		Lookup:  v.GetString(KeyLookup),
		DryRun:  v.GetBool(KeyDryRun),
		Backup:  v.GetBool(KeyBackup),
		Yes:     v.GetBool(KeyYes),
		Verbose: v.GetBool(KeyVerbose),
		LogFile: v.GetString(KeyLogFile),
		NoColor: v.GetBool(KeyNoColor),
	}

	if cfg.Dir == "" {
		return nil, ErrNoDir
	}

	level, err := zapcore.ParseLevel(v.GetString(KeyLogLevel))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", KeyLogLevel, err)
	}
	cfg.LogLevel = level

	return cfg, nil
}
