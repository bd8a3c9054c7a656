// Package config loads harness settings from a YAML or TOML file.
package config

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/plantest/internal/capability"
	"github.com/roach88/plantest/internal/parallelism"
)

// Config holds harness settings. Command-line flags override file values.
type Config struct {
	// SpecDir holds the <name>.test golden files.
	SpecDir string `yaml:"spec_dir" toml:"spec_dir"`
	// Manifest is the CUE suite catalogue.
	Manifest string `yaml:"manifest" toml:"manifest"`
	// Database is the default target database for suites that name none.
	Database     string   `yaml:"database" toml:"database"`
	Workers      int      `yaml:"workers" toml:"workers"`
	SuiteTimeout Duration `yaml:"suite_timeout" toml:"suite_timeout"`
	Planner      Planner  `yaml:"planner" toml:"planner"`
	// Capabilities overrides the <FEATURE>_IS_SUPPORTED environment.
	Capabilities map[string]bool `yaml:"capabilities" toml:"capabilities"`
	// Catalog is loaded into the store before suites run.
	Catalog []Database `yaml:"catalog" toml:"catalog"`
	// History is the SQLite file for catalog and run history.
	History  string `yaml:"history" toml:"history"`
	LogLevel string `yaml:"log_level" toml:"log_level"`
}

// Planner configures the external planner process.
type Planner struct {
	Command []string `yaml:"command" toml:"command"`
	Env     []string `yaml:"env" toml:"env"`
}

// Database seeds one catalog database.
type Database struct {
	Name    string  `yaml:"name" toml:"name"`
	Comment string  `yaml:"comment" toml:"comment"`
	Tables  []Table `yaml:"tables" toml:"tables"`
}

// Table seeds one catalog table.
type Table struct {
	Name   string `yaml:"name" toml:"name"`
	Format string `yaml:"format" toml:"format"`
}

// Duration is a time.Duration written as a string such as "90s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the settings used when no file is given.
func Default() *Config {
	return &Config{
		SpecDir:      "testdata/specs",
		Manifest:     "suites.cue",
		Database:     "default",
		Workers:      4,
		SuiteTimeout: Duration{5 * time.Minute},
		History:      filepath.Join(".plantest", "history.db"),
		LogLevel:     "info",
	}
}

// Load reads the file at path over the defaults. The format follows the
// extension: .yaml, .yml or .toml. Unknown keys are rejected. Relative paths
// in the file are resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("failed to parse TOML: unknown keys %s", strings.Join(keys, ", "))
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q: use .yaml, .yml or .toml", ext)
	}

	base := filepath.Dir(path)
	cfg.SpecDir = resolve(base, cfg.SpecDir)
	cfg.Manifest = resolve(base, cfg.Manifest)
	if cfg.History != ":memory:" {
		cfg.History = resolve(base, cfg.History)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Validate checks settings that cannot be fixed by defaults.
func (c *Config) Validate() error {
	if c.SpecDir == "" {
		return fmt.Errorf("spec_dir is required")
	}
	if c.Manifest == "" {
		return fmt.Errorf("manifest is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.SuiteTimeout.Duration < 0 {
		return fmt.Errorf("suite_timeout must not be negative")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	seen := make(map[string]bool)
	for i, db := range c.Catalog {
		if db.Name == "" {
			return fmt.Errorf("catalog[%d]: name is required", i)
		}
		if seen[db.Name] {
			return fmt.Errorf("catalog[%d]: duplicate database %q", i, db.Name)
		}
		seen[db.Name] = true
		for j, t := range db.Tables {
			if t.Name == "" {
				return fmt.Errorf("catalog[%d].tables[%d]: name is required", i, j)
			}
			if _, err := parallelism.ParseTableFormat(t.Format); err != nil {
				return fmt.Errorf("catalog[%d].tables[%d]: %w", i, j, err)
			}
		}
	}
	return nil
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// Probe returns the capability probe: configured capabilities first, then
// the environment.
func (c *Config) Probe() capability.Probe {
	static := make(capability.Static, len(c.Capabilities))
	for name, ok := range c.Capabilities {
		static[capability.Feature(strings.ToLower(name))] = ok
	}
	return capability.Chain{static, capability.EnvProbe{}}
}

// Seeder receives the configured catalog.
type Seeder interface {
	CreateDatabase(ctx context.Context, name, comment string) error
	CreateTable(ctx context.Context, db, name string, format parallelism.TableFormat) error
}

// SeedCatalog creates every configured database and table.
func (c *Config) SeedCatalog(ctx context.Context, s Seeder) error {
	for _, db := range c.Catalog {
		if err := s.CreateDatabase(ctx, db.Name, db.Comment); err != nil {
			return err
		}
		for _, t := range db.Tables {
			format, err := parallelism.ParseTableFormat(t.Format)
			if err != nil {
				return err
			}
			if err := s.CreateTable(ctx, db.Name, t.Name, format); err != nil {
				return err
			}
		}
	}
	return nil
}
