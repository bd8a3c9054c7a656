package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/plantest/internal/capability"
	"github.com/roach88/plantest/internal/config"
	"github.com/roach88/plantest/internal/harness"
	"github.com/roach88/plantest/internal/manifest"
	"github.com/roach88/plantest/internal/planner"
	"github.com/roach88/plantest/internal/store"
)

// session holds what a command needs once settings are loaded.
type session struct {
	cfg    *config.Config
	log    *slog.Logger
	store  *store.Store
	driver *harness.Driver
	out    *OutputFormatter
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// loadConfig reads --config, or returns the defaults when it is unset.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	if opts.Config == "" {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.Load(opts.Config)
}

func newLogger(opts *RootOptions, cfg *config.Config, cmd *cobra.Command) *slog.Logger {
	level, _ := cfg.Level()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// openSession loads settings, opens the store and seeds its catalog. The
// planner is required only when needPlanner is set; otherwise the driver has
// no planner unless one is configured.
func openSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command, needPlanner bool) (*session, error) {
	out := newFormatter(opts, cmd)

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, commandError(out, ErrCodeConfig, "failed to load config", err)
	}
	log := newLogger(opts, cfg, cmd)

	if cfg.History != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.History), 0755); err != nil {
			return nil, commandError(out, ErrCodeStore, "failed to create history directory", err)
		}
	}
	st, err := store.Open(cfg.History)
	if err != nil {
		return nil, commandError(out, ErrCodeStore, "failed to open store", err)
	}
	if err := cfg.SeedCatalog(ctx, st); err != nil {
		st.Close()
		return nil, commandError(out, ErrCodeStore, "failed to seed catalog", err)
	}

	p := opts.Planner
	if p == nil && len(cfg.Planner.Command) > 0 {
		cmdPlanner, err := planner.NewCommand(cfg.Planner.Command, cfg.Planner.Env...)
		if err != nil {
			st.Close()
			return nil, commandError(out, ErrCodePlanner, "invalid planner", err)
		}
		p = cmdPlanner
	}
	if p == nil && needPlanner {
		st.Close()
		return nil, commandError(out, ErrCodePlanner, "no planner configured",
			fmt.Errorf("set planner.command in the config file"))
	}
	log.Debug("session opened", "config", opts.Config, "history", cfg.History, "spec_dir", cfg.SpecDir)

	return &session{
		cfg:   cfg,
		log:   log,
		store: st,
		driver: &harness.Driver{
			Planner: p,
			Probe:   cfg.Probe(),
			Env:     capability.Default,
			Catalog: st,
			Logger:  log,
		},
		out: out,
	}, nil
}

func (s *session) Close() error {
	return s.store.Close()
}

// suites loads the manifest named by the settings.
func (s *session) suites() ([]harness.Suite, error) {
	suites, err := manifest.Load(s.cfg.Manifest)
	if err != nil {
		return nil, commandError(s.out, ErrCodeManifest, "failed to load manifest", err)
	}
	return suites, nil
}

// commandError reports err in JSON mode and returns it as a command error.
// In text mode the caller's error is printed by main.
func commandError(out *OutputFormatter, code, message string, err error) error {
	if out.Format == "json" {
		if encErr := out.Error(code, fmt.Sprintf("%s: %v", message, err), nil); encErr != nil {
			return encErr
		}
	}
	return WrapExitError(ExitCommandError, message, err)
}
