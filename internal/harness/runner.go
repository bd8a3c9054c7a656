package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/plantest/internal/golden"
	"github.com/roach88/plantest/internal/store"
)

// History persists run results.
type History interface {
	BeginRun(ctx context.Context) (store.Run, error)
	RecordSuite(ctx context.Context, runID string, rec store.SuiteRecord) error
	FinishRun(ctx context.Context, runID string) (store.Run, error)
}

// Saver writes rewritten specifications back to the golden store.
type Saver interface {
	Save(spec *golden.Specification) error
}

// Runner runs suites in parallel.
type Runner struct {
	Driver *Driver
	Specs  golden.Store
	// History records the run when set.
	History History
	// Workers bounds the number of suites running at once. Zero means one.
	Workers int
	// Deadline bounds each suite. Zero means no deadline.
	Deadline time.Duration
	// Update rewrites the golden file of every failing suite with the
	// captured output. Specs must implement Saver. A file read by more than
	// one suite of the run is never rewritten.
	Update bool
	// Progress is called after each suite finishes.
	Progress func(done, total int, r *Report)
	Logger   *slog.Logger
}

// Totals aggregates reports. Passed, Failed and Skipped count cases; Errors
// counts suites that could not run.
type Totals struct {
	Passed  int
	Failed  int
	Skipped int
	Errors  int
}

// Summary is the result of RunAll. Reports are in suite order.
type Summary struct {
	RunID   string
	Reports []*Report
	Totals  Totals
	// Rewritten lists suites whose golden files were updated.
	Rewritten []string
}

// Failed reports whether any case failed or any suite errored. Skips do not
// count as failures.
func (s *Summary) Failed() bool {
	return s.Totals.Failed > 0 || s.Totals.Errors > 0
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r.Logger
}

// RunAll runs every suite and returns their reports. A suite that fails to
// load or set up gets an error report; it never affects the others.
func (r *Runner) RunAll(ctx context.Context, suites []Suite) *Summary {
	log := r.logger()
	summary := &Summary{Reports: make([]*Report, len(suites))}

	if r.History != nil {
		run, err := r.History.BeginRun(ctx)
		if err != nil {
			log.Warn("run history disabled", "error", err)
		} else {
			summary.RunID = run.ID
		}
	}

	workers := r.Workers
	if workers < 1 {
		workers = 1
	}
	var (
		g       errgroup.Group
		done    = atomic.NewInt64(0)
		failing = atomic.NewInt64(0)
		updates = make([]bool, len(suites))
		files   = make(map[string]int)
	)
	g.SetLimit(workers)
	for _, s := range suites {
		if s.File != "" {
			files[s.File]++
		}
	}

	for i, s := range suites {
		i, s := i, s
		g.Go(func() error {
			report, rewritten := r.runSuite(ctx, s, files[s.File] > 1)
			summary.Reports[i] = report
			updates[i] = rewritten

			if report.Outcome == OutcomeFailed || report.Outcome == OutcomeError {
				failing.Inc()
			}
			n := done.Inc()
			log.Debug("suite finished", "suite", s.Name, "outcome", report.Outcome,
				"done", n, "total", len(suites), "failing", failing.Load())
			if r.Progress != nil {
				r.Progress(int(n), len(suites), report)
			}
			return nil
		})
	}
	// Suite functions never return an error.
	_ = g.Wait()

	for i, report := range summary.Reports {
		summary.Totals.Passed += report.Passed
		summary.Totals.Failed += report.Failed
		summary.Totals.Skipped += report.Skipped
		if report.Outcome == OutcomeError {
			summary.Totals.Errors++
		}
		if updates[i] {
			summary.Rewritten = append(summary.Rewritten, report.Suite)
		}
	}

	if summary.RunID != "" {
		r.record(ctx, summary)
	}
	return summary
}

// runSuite runs s and rewrites its golden file when needed. sharedFile
// reports that another suite of the run reads the same file; such a file is
// never rewritten.
func (r *Runner) runSuite(ctx context.Context, s Suite, sharedFile bool) (*Report, bool) {
	d := r.Driver

	spec := &golden.Specification{Name: s.Name}
	if s.File != "" {
		loaded, err := r.Specs.Load(s.File)
		if err != nil {
			return errorReport(s.Name, err), false
		}
		spec = loaded
	}
	gated := *spec
	gated.Name = s.Name
	gated.Requires = append(append(gated.Requires[:0:0], spec.Requires...), s.Requires...)

	if report := d.gate(&gated); report != nil {
		return report, false
	}

	// The deadline starts only once the test mode is settled, after any wait
	// for another suite's test-mode scope.
	var report *Report
	if s.TestMode != nil {
		err := d.env().WithTestMode(*s.TestMode, func() error {
			report = r.runGated(ctx, s, &gated, *s.TestMode)
			return nil
		})
		if err != nil {
			return errorReport(s.Name, err), false
		}
	} else {
		report = r.runGated(ctx, s, &gated, d.env().Enabled())
	}
	if report.Outcome == OutcomeError {
		return report, false
	}

	if !r.Update || s.File == "" || report.Outcome != OutcomeFailed || report.Unexecuted > 0 {
		return report, false
	}
	if sharedFile {
		r.logger().Warn("golden update skipped: file shared by suites", "suite", s.Name, "file", s.File)
		return report, false
	}
	if err := r.rewrite(spec, report); err != nil {
		r.logger().Warn("golden update failed", "suite", s.Name, "error", err)
		return report, false
	}
	return report, true
}

// runGated sets up s, runs its cases and degree checks under the suite
// deadline with the given test mode.
func (r *Runner) runGated(ctx context.Context, s Suite, spec *golden.Specification, testMode bool) *Report {
	if r.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Deadline)
		defer cancel()
	}
	d := r.Driver

	if err := d.setup(ctx, s, testMode); err != nil {
		return errorReport(s.Name, err)
	}
	report := d.execute(ctx, spec, s.Options, &Scope{Database: s.Database}, testMode)
	d.checkDegrees(ctx, report, s, testMode)
	report.finish()
	return report
}

// rewrite replaces every captured block of spec with its actual text.
func (r *Runner) rewrite(spec *golden.Specification, report *Report) error {
	saver, ok := r.Specs.(Saver)
	if !ok {
		return fmt.Errorf("golden store %T cannot save", r.Specs)
	}
	updated := spec.Rewrite(func(c, b int) (string, bool) {
		text, ok := report.Actual[BlockKey{Case: c, Block: b}]
		return text, ok
	})
	return saver.Save(updated)
}

func (r *Runner) record(ctx context.Context, summary *Summary) {
	log := r.logger().With("run", summary.RunID)
	for _, report := range summary.Reports {
		if err := r.History.RecordSuite(ctx, summary.RunID, SuiteRecord(report)); err != nil {
			log.Warn("failed to record suite", "suite", report.Suite, "error", err)
		}
	}
	if _, err := r.History.FinishRun(ctx, summary.RunID); err != nil {
		log.Warn("failed to finish run", "error", err)
	}
}

// SuiteRecord converts a report to its stored form.
func SuiteRecord(r *Report) store.SuiteRecord {
	rec := store.SuiteRecord{
		Suite:      r.Suite,
		Outcome:    string(r.Outcome),
		Passed:     r.Passed,
		Failed:     r.Failed,
		Skipped:    r.Skipped,
		SkipReason: r.SkipReason,
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	for _, f := range r.Failures {
		level := ""
		if l, ok := f.Level.Get(); ok {
			level = l.String()
		}
		rec.Failures = append(rec.Failures, store.FailureRecord{
			CaseID:    f.CaseID,
			CaseIndex: f.Case,
			Line:      f.Line,
			Statement: f.Statement,
			Level:     level,
			Expected:  f.Expected,
			Actual:    f.Actual,
			Message:   f.Message,
		})
	}
	return rec
}
