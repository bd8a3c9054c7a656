package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/plantest/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int    // runs to list; 0 lists all
	RunID string // show one run in detail
}

// RunInfo is one stored run.
type RunInfo struct {
	ID         string     `json:"id"`
	Seq        int64      `json:"seq"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Passed     int        `json:"passed"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
	Errors     int        `json:"errors"`
}

// RunDetail is the JSON payload of history --run.
type RunDetail struct {
	Run    RunInfo             `json:"run"`
	Suites []StoredSuiteResult `json:"suites"`
}

// StoredSuiteResult is a stored suite outcome.
type StoredSuiteResult struct {
	Name       string          `json:"name"`
	Outcome    string          `json:"outcome"`
	Passed     int             `json:"passed"`
	Failed     int             `json:"failed"`
	Skipped    int             `json:"skipped"`
	SkipReason string          `json:"skip_reason,omitempty"`
	Error      string          `json:"error,omitempty"`
	Failures   []StoredFailure `json:"failures,omitempty"`
}

// StoredFailure is a stored failure with the number of runs in which the
// same case has failed.
type StoredFailure struct {
	CaseID    string `json:"case_id"`
	Line      int    `json:"line"`
	Statement string `json:"statement"`
	Level     string `json:"level,omitempty"`
	Message   string `json:"message"`
	FailedIn  int    `json:"failed_in_runs"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past runs",
		Long: `Show runs recorded in the history database, newest first.

With --run, show one run's suites and failures. Each failure reports how many
runs the same case has failed in, so flaky and long-broken cases stand out.

Examples:
  plantest history
  plantest history --limit 3
  plantest history --run 01920d6e-7a3c-7c1e-9a4b-2f1f4e5d6c7b --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showHistory(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 10, "number of runs to show (0 for all)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show one run in detail")

	return cmd
}

func showHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--limit must not be negative, got %d", opts.Limit))
	}

	s, err := openSession(ctx, opts.RootOptions, cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	if opts.RunID != "" {
		return showRun(s, cmd, opts.RunID)
	}

	runs, err := s.store.Runs(ctx, opts.Limit)
	if err != nil {
		return commandError(s.out, ErrCodeStore, "failed to read history", err)
	}
	infos := make([]RunInfo, len(runs))
	for i, r := range runs {
		infos[i] = runInfo(r)
	}
	return s.out.Result(infos, nil, func(w io.Writer) {
		writeRuns(w, infos)
	})
}

func showRun(s *session, cmd *cobra.Command, id string) error {
	ctx := cmd.Context()
	run, err := s.store.Run(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return commandError(s.out, ErrCodeStore, "unknown run", err)
		}
		return commandError(s.out, ErrCodeStore, "failed to read run", err)
	}
	suites, err := s.store.Suites(ctx, id)
	if err != nil {
		return commandError(s.out, ErrCodeStore, "failed to read run", err)
	}

	detail := RunDetail{Run: runInfo(run), Suites: make([]StoredSuiteResult, 0, len(suites))}
	for _, rec := range suites {
		sr := StoredSuiteResult{
			Name:       rec.Suite,
			Outcome:    rec.Outcome,
			Passed:     rec.Passed,
			Failed:     rec.Failed,
			Skipped:    rec.Skipped,
			SkipReason: rec.SkipReason,
			Error:      rec.Error,
		}
		for _, f := range rec.Failures {
			n, err := s.store.CaseFailures(ctx, f.CaseID)
			if err != nil {
				return commandError(s.out, ErrCodeStore, "failed to read run", err)
			}
			sr.Failures = append(sr.Failures, StoredFailure{
				CaseID:    f.CaseID,
				Line:      f.Line,
				Statement: f.Statement,
				Level:     f.Level,
				Message:   f.Message,
				FailedIn:  n,
			})
		}
		detail.Suites = append(detail.Suites, sr)
	}

	return s.out.Result(detail, nil, func(w io.Writer) {
		writeRunDetail(w, detail)
	})
}

func runInfo(r store.Run) RunInfo {
	info := RunInfo{
		ID:        r.ID,
		Seq:       r.Seq,
		StartedAt: r.StartedAt,
		Passed:    r.Passed,
		Failed:    r.Failed,
		Skipped:   r.Skipped,
		Errors:    r.Errors,
	}
	if !r.FinishedAt.IsZero() {
		finished := r.FinishedAt
		info.FinishedAt = &finished
	}
	return info
}

func writeRuns(w io.Writer, runs []RunInfo) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tRUN\tSTARTED\tPASSED\tFAILED\tSKIPPED\tERRORS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.Seq, r.ID, r.StartedAt.UTC().Format(time.RFC3339), r.Passed, r.Failed, r.Skipped, r.Errors)
	}
	tw.Flush()
}

func writeRunDetail(w io.Writer, d RunDetail) {
	fmt.Fprintf(w, "Run %s (#%d) started %s\n", d.Run.ID, d.Run.Seq, d.Run.StartedAt.UTC().Format(time.RFC3339))
	if d.Run.FinishedAt == nil {
		fmt.Fprintln(w, "  (not finished)")
	}
	for _, s := range d.Suites {
		switch s.Outcome {
		case "passed":
			fmt.Fprintf(w, "✓ %s (%d passed)\n", s.Name, s.Passed)
		case "skipped":
			fmt.Fprintf(w, "- %s (skipped: %s)\n", s.Name, s.SkipReason)
		case "error":
			fmt.Fprintf(w, "✗ %s\n", s.Name)
			fmt.Fprintf(w, "  Error: %s\n", s.Error)
		default:
			fmt.Fprintf(w, "✗ %s (%d passed, %d failed)\n", s.Name, s.Passed, s.Failed)
			for _, f := range s.Failures {
				level := ""
				if f.Level != "" {
					level = " [" + f.Level + "]"
				}
				fmt.Fprintf(w, "  line %d: %s%s: %s (failed in %d run(s))\n",
					f.Line, oneLine(f.Statement), level, f.Message, f.FailedIn)
			}
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d skipped, %d errors\n",
		d.Run.Passed, d.Run.Failed, d.Run.Skipped, d.Run.Errors)
}

// oneLine collapses a statement to its first line.
func oneLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i] + " ..."
		}
	}
	return s
}
