package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/plantest/internal/capability"
	"github.com/roach88/plantest/internal/golden"
	"github.com/roach88/plantest/internal/harness"
	"github.com/roach88/plantest/internal/manifest"
)

// SuiteInfo describes one manifest suite for the list command.
type SuiteInfo struct {
	Name     string   `json:"name"`
	File     string   `json:"file,omitempty"`
	Database string   `json:"database"`
	Cases    int      `json:"cases"`
	Degree   int      `json:"degree_checks,omitempty"`
	Requires []string `json:"requires,omitempty"`
	// Status is "ready", "skip" or "error".
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// ListResult is the JSON payload of the list command.
type ListResult struct {
	Suites []SuiteInfo `json:"suites"`
	// Unlisted names specification files no suite refers to.
	Unlisted []string `json:"unlisted,omitempty"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List manifest suites",
		Long: `List the suites of the manifest with their requirements.

A suite is skipped when a capability it or its specification requires is
unavailable. Capabilities come from the config file, then from
<FEATURE>_IS_SUPPORTED environment variables.

Examples:
  plantest list
  plantest list --config plantest.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listSuites(rootOpts, cmd)
		},
	}
	return cmd
}

func listSuites(opts *RootOptions, cmd *cobra.Command) error {
	out := newFormatter(opts, cmd)
	cfg, err := loadConfig(opts)
	if err != nil {
		return commandError(out, ErrCodeConfig, "failed to load config", err)
	}
	suites, err := manifest.Load(cfg.Manifest)
	if err != nil {
		return commandError(out, ErrCodeManifest, "failed to load manifest", err)
	}

	specs := golden.Dir{Root: cfg.SpecDir}
	probe := cfg.Probe()
	result := ListResult{Suites: make([]SuiteInfo, 0, len(suites))}
	used := make(map[string]bool)
	for _, s := range suites {
		used[s.File] = true
		result.Suites = append(result.Suites, describeSuite(s, specs, probe, cfg.Database))
	}

	names, err := specs.List()
	if err != nil {
		out.VerboseLog("cannot list %s: %v", cfg.SpecDir, err)
	}
	for _, name := range names {
		if !used[name] {
			result.Unlisted = append(result.Unlisted, name)
		}
	}

	return out.Result(result, nil, func(w io.Writer) {
		writeSuiteTable(w, result)
	})
}

func describeSuite(s harness.Suite, specs golden.Store, probe capability.Probe, defaultDB string) SuiteInfo {
	info := SuiteInfo{
		Name:     s.Name,
		File:     s.File,
		Database: s.Database,
		Degree:   len(s.DegreeChecks),
		Status:   "ready",
	}
	if info.Database == "" {
		info.Database = defaultDB
	}

	required := slices.Clone(s.Requires)
	if s.File != "" {
		spec, err := specs.Load(s.File)
		if err != nil {
			info.Status = "error"
			info.Reason = err.Error()
			return info
		}
		info.Cases = len(spec.Cases)
		required = append(required, spec.Requires...)
	}
	for _, f := range required {
		info.Requires = append(info.Requires, string(f))
	}
	if missing := capability.Missing(probe, required); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, f := range missing {
			names[i] = string(f)
		}
		info.Status = "skip"
		info.Reason = "missing capability: " + strings.Join(names, ", ")
	}
	return info
}

func writeSuiteTable(w io.Writer, result ListResult) {
	if len(result.Suites) == 0 {
		fmt.Fprintln(w, "No suites found.")
	} else {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SUITE\tFILE\tDATABASE\tCASES\tREQUIRES\tSTATUS")
		for _, s := range result.Suites {
			file := s.File
			if file == "" {
				file = "-"
			}
			requires := strings.Join(s.Requires, ",")
			if requires == "" {
				requires = "-"
			}
			status := s.Status
			if s.Reason != "" {
				status += " (" + s.Reason + ")"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", s.Name, file, s.Database, s.Cases, requires, status)
		}
		tw.Flush()
	}
	if len(result.Unlisted) > 0 {
		fmt.Fprintf(w, "\nUnlisted specifications: %s\n", strings.Join(result.Unlisted, ", "))
	}
}
