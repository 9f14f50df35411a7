// Package config provides unified configuration loading for targetdist.
// It supports loading from YAML files and environment variables.
package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvandessel/targetdist/internal/constants"
	"github.com/nvandessel/targetdist/internal/grid"
	"github.com/nvandessel/targetdist/internal/logging"
	"github.com/nvandessel/targetdist/internal/store"
	"github.com/nvandessel/targetdist/internal/targetdist"
	"gopkg.in/yaml.v3"
)

// Store kinds accepted in StoreConfig.Kind.
const (
	StoreMemory     = store.KindMemory
	StoreFile       = store.KindFile
	StoreCheckpoint = store.KindCheckpoint
	StoreSQLite     = store.KindSQLite
)

// Config contains all targetdist configuration settings.
type Config struct {
	// Grid is the primary grid and its collaborator grid files.
	Grid GridConfig `json:"grid" yaml:"grid"`

	// ReweightGrid enables the mirrored reweight grids when it has axes.
	ReweightGrid GridConfig `json:"reweight_grid,omitempty" yaml:"reweight_grid,omitempty"`

	// Distribution describes the target distribution.
	Distribution targetdist.Spec `json:"distribution" yaml:"distribution"`

	// Bias supplies the thermal context of the coordinating bias.
	Bias BiasConfig `json:"bias" yaml:"bias"`

	// Workers is the number of goroutines evaluating grid cells.
	Workers int `json:"workers" yaml:"workers"`

	// Store selects where grids are saved and restarted from.
	Store StoreConfig `json:"store" yaml:"store"`

	// Logging contains settings for operational logging and step tracing.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// GridConfig defines a grid and the collaborator grids linked to it.
type GridConfig struct {
	Axes []grid.Axis `json:"axes" yaml:"axes"`

	// FreeEnergy is a grid file read as the free energy collaborator.
	FreeEnergy string `json:"free_energy,omitempty" yaml:"free_energy,omitempty"`

	// Bias is a grid file read as the bias collaborator.
	Bias string `json:"bias,omitempty" yaml:"bias,omitempty"`

	// BiasWithoutCutoff is a grid file read as the uncut bias collaborator.
	BiasWithoutCutoff string `json:"bias_without_cutoff,omitempty" yaml:"bias_without_cutoff,omitempty"`
}

// Active reports whether the grid has axes.
func (g GridConfig) Active() bool { return len(g.Axes) > 0 }

// BiasConfig holds the inverse thermal energy. Set either Beta or KBT.
type BiasConfig struct {
	Beta float64 `json:"beta,omitempty" yaml:"beta,omitempty"`
	KBT  float64 `json:"kbt,omitempty" yaml:"kbt,omitempty"`
}

// BetaValue returns Beta, or 1/KBT when only KBT is set, or 0.
func (b BiasConfig) BetaValue() float64 {
	if b.Beta > 0 {
		return b.Beta
	}
	if b.KBT > 0 {
		return 1 / b.KBT
	}
	return 0
}

// StoreConfig selects a grid store backend.
type StoreConfig struct {
	// Kind is one of "memory", "file", "checkpoint" or "sqlite".
	Kind string `json:"kind" yaml:"kind"`

	// Path is the directory (file, checkpoint) or database file (sqlite).
	// Supports ${VAR} syntax for env vars.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Keep is the number of checkpoints retained per key.
	Keep int `json:"keep,omitempty" yaml:"keep,omitempty"`
}

// LoggingConfig configures targetdist's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "error", "warn", "info" (default),
	// "debug" or "trace". "debug" and "trace" enable step tracing to
	// <dir>/trace.jsonl.
	Level string `json:"level" yaml:"level"`

	// Dir is the directory for the step trace. Supports ${VAR} syntax.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// Default returns a Config with sensible defaults and no grid.
func Default() *Config {
	return &Config{
		Workers: constants.DefaultWorkers,
		Store: StoreConfig{
			Kind: StoreMemory,
			Keep: constants.DefaultCheckpointKeep,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   ".targetdist",
		},
	}
}

// DefaultPath returns ~/.targetdist/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, ".targetdist", "config.yaml"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.targetdist/config.yaml -> environment variables
func Load() (*Config, error) {
	config := Default()

	if configPath, err := DefaultPath(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	ApplyEnvOverrides(config)
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Store.Path = expandEnvVars(config.Store.Path)
	config.Logging.Dir = expandEnvVars(config.Logging.Dir)
	for _, g := range []*GridConfig{&config.Grid, &config.ReweightGrid} {
		g.FreeEnergy = expandEnvVars(g.FreeEnergy)
		g.Bias = expandEnvVars(g.Bias)
		g.BiasWithoutCutoff = expandEnvVars(g.BiasWithoutCutoff)
	}

	return config, nil
}

// Validate checks that the configuration is valid. Distribution keywords
// are checked by targetdist.New.
func (c *Config) Validate() error {
	if !c.Grid.Active() {
		return fmt.Errorf("grid.axes must define at least one axis")
	}
	for _, a := range c.Grid.Axes {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("grid: %w", err)
		}
	}
	if c.ReweightGrid.Active() {
		if len(c.ReweightGrid.Axes) != len(c.Grid.Axes) {
			return fmt.Errorf("reweight_grid has %d axes, grid has %d", len(c.ReweightGrid.Axes), len(c.Grid.Axes))
		}
		for _, a := range c.ReweightGrid.Axes {
			if err := a.Validate(); err != nil {
				return fmt.Errorf("reweight_grid: %w", err)
			}
		}
	}

	if c.Distribution.Type == "" {
		return fmt.Errorf("distribution.type is required")
	}

	if c.Bias.Beta < 0 || c.Bias.KBT < 0 {
		return fmt.Errorf("bias.beta and bias.kbt must be non-negative")
	}
	if c.Bias.Beta > 0 && c.Bias.KBT > 0 {
		return fmt.Errorf("set only one of bias.beta and bias.kbt")
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}

	switch c.Store.Kind {
	case StoreMemory:
	case StoreFile, StoreCheckpoint, StoreSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for store kind %s", c.Store.Kind)
		}
	default:
		return fmt.Errorf("invalid store kind: %s (valid: memory, file, checkpoint, sqlite)", c.Store.Kind)
	}
	if c.Store.Keep < 0 {
		return fmt.Errorf("store.keep must be non-negative, got %d", c.Store.Keep)
	}

	validLevels := map[string]bool{"error": true, "warn": true, "info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: error, warn, info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// EngineOptions returns the engine options implied by the configuration,
// plus the trace logger the caller must close.
func (c *Config) EngineOptions(w io.Writer) ([]targetdist.Option, *logging.TraceLogger) {
	tracer := logging.NewTraceLogger(c.Logging.Dir, c.Logging.Level)
	opts := []targetdist.Option{
		targetdist.WithLogger(logging.NewLogger(c.Logging.Level, w)),
		targetdist.WithWorkers(c.Workers),
	}
	if tracer != nil {
		opts = append(opts, targetdist.WithTracer(tracer))
	}
	return opts, tracer
}

// OpenStore opens the configured grid store.
func (c *Config) OpenStore(ctx context.Context) (store.GridStore, error) {
	return store.Open(ctx, c.Store.Kind, c.Store.Path, c.Store.Keep)
}

// ApplyEnvOverrides applies TARGETDIST_* environment variable overrides.
func ApplyEnvOverrides(config *Config) {
	if v := os.Getenv("TARGETDIST_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("TARGETDIST_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Workers = n
		}
	}

	if v := os.Getenv("TARGETDIST_STORE_KIND"); v != "" {
		config.Store.Kind = v
	}

	if v := os.Getenv("TARGETDIST_STORE_PATH"); v != "" {
		config.Store.Path = v
	}

	if v := os.Getenv("TARGETDIST_BETA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Bias.Beta = f
			config.Bias.KBT = 0
		}
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
