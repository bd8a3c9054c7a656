package cli

import (
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/plantest/internal/golden"
	"github.com/roach88/plantest/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Update  bool          // rewrite golden files of failing suites
	Workers int           // suites run at once; 0 uses the config
	Timeout time.Duration // per-suite deadline; 0 uses the config
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	RunID     string        `json:"run_id,omitempty"`
	Suites    []SuiteResult `json:"suites"`
	Passed    int           `json:"passed"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Errors    int           `json:"errors"`
	Rewritten []string      `json:"rewritten,omitempty"`
}

// SuiteResult is the outcome of one suite.
type SuiteResult struct {
	Name       string          `json:"name"`
	Outcome    string          `json:"outcome"`
	Passed     int             `json:"passed"`
	Failed     int             `json:"failed"`
	Skipped    int             `json:"skipped"`
	SkipReason string          `json:"skip_reason,omitempty"`
	Error      string          `json:"error,omitempty"`
	Failures   []FailureResult `json:"failures,omitempty"`
}

// FailureResult is one mismatching expected block.
type FailureResult struct {
	CaseID    string `json:"case_id"`
	Line      int    `json:"line"`
	Statement string `json:"statement"`
	Level     string `json:"level,omitempty"`
	Message   string `json:"message"`
	Diff      string `json:"diff,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [suite-glob...]",
		Short: "Run planner test suites",
		Long: `Run the suites of the manifest, or those whose names match a glob.

Every case of a suite is planned at each explain level its specification
lists and the plan text is compared with the expected block. Suites run in
parallel; cases within a suite run in order.

Exit codes:
  0 - All suites passed or were skipped
  1 - A case failed or a suite could not run
  2 - Command error (bad config, manifest, pattern, etc.)

Examples:
  plantest run
  plantest run 'tpch*' joins
  plantest run --update joins
  plantest run --workers 8 --timeout 2m --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuites(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden files with the actual plans")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "suites to run at once (default from config)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "per-suite deadline (default from config)")

	return cmd
}

func runSuites(opts *RunOptions, patterns []string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if opts.Workers < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--workers must not be negative, got %d", opts.Workers))
	}
	if opts.Timeout < 0 {
		return NewExitError(ExitCommandError, "--timeout must not be negative")
	}

	s, err := openSession(ctx, opts.RootOptions, cmd, true)
	if err != nil {
		return err
	}
	defer s.Close()

	all, err := s.suites()
	if err != nil {
		return err
	}
	suites, err := selectSuites(all, patterns)
	if err != nil {
		return commandError(s.out, ErrCodeGeneric, "invalid suite pattern", err)
	}
	if len(suites) == 0 {
		if len(patterns) > 0 {
			return commandError(s.out, ErrCodeManifest, "no suites match", fmt.Errorf("%v", patterns))
		}
		return s.out.Result(RunResult{Suites: []SuiteResult{}}, nil, func(w io.Writer) {
			fmt.Fprintln(w, "No suites found.")
		})
	}

	for i := range suites {
		if suites[i].Database == "" {
			suites[i].Database = s.cfg.Database
		}
	}

	runner := &harness.Runner{
		Driver:   s.driver,
		Specs:    golden.Dir{Root: s.cfg.SpecDir},
		History:  s.store,
		Workers:  s.cfg.Workers,
		Deadline: s.cfg.SuiteTimeout.Duration,
		Update:   opts.Update,
		Logger:   s.log,
	}
	if opts.Workers > 0 {
		runner.Workers = opts.Workers
	}
	if opts.Timeout > 0 {
		runner.Deadline = opts.Timeout
	}
	if opts.Verbose {
		var mu sync.Mutex
		runner.Progress = func(done, total int, r *harness.Report) {
			mu.Lock()
			defer mu.Unlock()
			s.out.VerboseLog("[%d/%d] %s: %s", done, total, r.Suite, r.Outcome)
		}
	}

	s.log.Info("running suites", "count", len(suites), "workers", runner.Workers, "deadline", runner.Deadline)
	summary := runner.RunAll(ctx, suites)

	var failure *CLIError
	if summary.Failed() {
		failure = &CLIError{
			Code:    ErrCodeFailed,
			Message: failureMessage(summary),
		}
	}
	err = s.out.Result(runResult(summary), failure, func(w io.Writer) {
		harness.WriteSummary(w, summary, opts.Verbose)
	})
	if err != nil {
		return err
	}
	if failure != nil {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, failure.Message)
	}
	return nil
}

// selectSuites keeps the suites whose names match any pattern, in manifest
// order. No patterns selects every suite.
func selectSuites(all []harness.Suite, patterns []string) ([]harness.Suite, error) {
	if len(patterns) == 0 {
		return all, nil
	}
	for _, p := range patterns {
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}
	}
	var selected []harness.Suite
	for _, s := range all {
		for _, p := range patterns {
			if ok, _ := path.Match(p, s.Name); ok {
				selected = append(selected, s)
				break
			}
		}
	}
	return selected, nil
}

func failureMessage(s *harness.Summary) string {
	return fmt.Sprintf("%d case(s) failed, %d suite error(s)", s.Totals.Failed, s.Totals.Errors)
}

func runResult(s *harness.Summary) RunResult {
	res := RunResult{
		RunID:     s.RunID,
		Suites:    make([]SuiteResult, 0, len(s.Reports)),
		Passed:    s.Totals.Passed,
		Failed:    s.Totals.Failed,
		Skipped:   s.Totals.Skipped,
		Errors:    s.Totals.Errors,
		Rewritten: s.Rewritten,
	}
	for _, r := range s.Reports {
		sr := SuiteResult{
			Name:       r.Suite,
			Outcome:    string(r.Outcome),
			Passed:     r.Passed,
			Failed:     r.Failed,
			Skipped:    r.Skipped,
			SkipReason: r.SkipReason,
		}
		if r.Err != nil {
			sr.Error = r.Err.Error()
		}
		for _, f := range r.Failures {
			fr := FailureResult{
				CaseID:    f.CaseID,
				Line:      f.Line,
				Statement: f.Statement,
				Message:   f.Message,
				Diff:      f.Diff,
			}
			if l, ok := f.Level.Get(); ok {
				fr.Level = l.String()
			}
			sr.Failures = append(sr.Failures, fr)
		}
		res.Suites = append(res.Suites, sr)
	}
	return res
}
