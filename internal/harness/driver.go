package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/plantest/internal/capability"
	"github.com/roach88/plantest/internal/golden"
	"github.com/roach88/plantest/internal/options"
	"github.com/roach88/plantest/internal/parallelism"
	"github.com/roach88/plantest/internal/planner"
)

// Catalog is the part of the catalog service the harness needs.
type Catalog interface {
	CreateDatabase(ctx context.Context, name, comment string) error
	CreateView(ctx context.Context, db, name, definition string) error
	Tables(ctx context.Context, db string) ([]string, error)
	TableFormat(ctx context.Context, db, table string) (parallelism.TableFormat, error)
}

// Driver runs specifications against a planner.
type Driver struct {
	Planner planner.Planner
	// Probe gates specifications on capabilities. Nil means nothing is
	// supported.
	Probe capability.Probe
	// Env holds the test-mode flag. Nil means capability.Default.
	Env *capability.TestEnv
	// Catalog resolves table formats for degree checks and receives
	// setup objects. It may be nil when neither is used.
	Catalog Catalog
	Logger  *slog.Logger
}

func (d *Driver) env() *capability.TestEnv {
	if d.Env == nil {
		return capability.Default
	}
	return d.Env
}

func (d *Driver) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return d.Logger
}

// gate returns a skipped report if spec requires a missing capability.
func (d *Driver) gate(spec *golden.Specification) *Report {
	missing := capability.Missing(d.Probe, spec.Requires)
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, len(missing))
	for i, f := range missing {
		names[i] = string(f)
	}
	r := newReport(spec.Name)
	r.Skipped = len(spec.Cases)
	r.SkipReason = "missing capability: " + strings.Join(names, ", ")
	r.finish()
	d.logger().Info("specification skipped", "suite", spec.Name, "reason", r.SkipReason)
	return r
}

// Run executes every case of spec in order with the test mode currently
// set on Env. Case options are resolved against base and a case database
// overrides scope.
func (d *Driver) Run(ctx context.Context, spec *golden.Specification, base options.QueryOptions, scope *Scope) *Report {
	if r := d.gate(spec); r != nil {
		return r
	}
	return d.execute(ctx, spec, base, scope, d.env().Enabled())
}

// RunInTestMode is Run with the test mode set to enabled for the duration of
// the call. The previous mode is restored before returning.
func (d *Driver) RunInTestMode(ctx context.Context, spec *golden.Specification, base options.QueryOptions, scope *Scope, enabled bool) *Report {
	if r := d.gate(spec); r != nil {
		return r
	}
	var report *Report
	err := d.env().WithTestMode(enabled, func() error {
		report = d.execute(ctx, spec, base, scope, enabled)
		return nil
	})
	if err != nil {
		return errorReport(spec.Name, err)
	}
	return report
}

func (d *Driver) execute(ctx context.Context, spec *golden.Specification, base options.QueryOptions, scope *Scope, testMode bool) *Report {
	log := d.logger().With("suite", spec.Name)
	report := newReport(spec.Name)
	log.Debug("running specification", "cases", len(spec.Cases), "test_mode", testMode)

	for i, c := range spec.Cases {
		if ctx.Err() != nil {
			report.Unexecuted = len(spec.Cases) - i
			report.Failed += report.Unexecuted
			log.Warn("deadline expired", "unexecuted", report.Unexecuted)
			break
		}
		passed, aborted := d.runCase(ctx, report, spec.Name, c, base, scope, testMode)
		if passed {
			report.Passed++
		} else {
			report.Failed++
		}
		if aborted {
			report.Unexecuted = len(spec.Cases) - i - 1
			report.Failed += report.Unexecuted
			log.Warn("deadline expired", "line", c.Line, "unexecuted", report.Unexecuted)
			break
		}
	}

	report.finish()
	log.Debug("specification finished", "outcome", report.Outcome, "passed", report.Passed, "failed", report.Failed)
	return report
}

// runCase compares every expected block of c. aborted reports that ctx
// expired while the case was being planned.
func (d *Driver) runCase(ctx context.Context, report *Report, suite string, c golden.Case, base options.QueryOptions, scope *Scope, testMode bool) (passed, aborted bool) {
	opts := options.Resolve(base, c.Options)
	sc := scope.override(c.Database)
	id := CaseID(suite, c)
	passed = true

	for j, block := range c.Expected {
		level := block.Level.OrElse(opts.ExplainLevelOrDefault())
		failure := Failure{
			CaseID:    id,
			Case:      c.Index,
			Line:      c.Line,
			Statement: c.Statement,
			Level:     options.Some(level),
			Expected:  normalize(block.Text),
		}

		exec, err := Capture(ctx, d.Planner, c.Statement, opts.WithExplainLevel(level), sc, testMode)
		var actual string
		if err != nil {
			var capErr *CaptureError
			if !errors.As(err, &capErr) || !capErr.Planning {
				failure.Message = err.Error()
				report.addFailure(failure)
				passed = false
				if ctx.Err() != nil {
					return false, true
				}
				continue
			}
			actual = capErr.Message
		} else {
			actual = exec.Plan
		}

		actual = normalize(actual)
		report.Actual[BlockKey{Case: c.Index, Block: j}] = actual
		if actual != failure.Expected {
			failure.Actual = actual
			failure.Diff = unifiedDiff(failure.Expected, actual)
			failure.Message = "plan mismatch"
			report.addFailure(failure)
			passed = false
		}
	}
	return passed, false
}

// DegreeResult is the outcome of one parallelism degree check.
type DegreeResult struct {
	Statement string
	User      options.Optional[int32]
	Kind      parallelism.StatementKind
	Table     parallelism.TableRef
	Format    parallelism.TableFormat
	// Want is the degree the policy prescribes.
	Want int32
	// Got is the degree the planner put in its exec request.
	Got options.Optional[int32]
}

// Match reports whether the planner applied the prescribed degree. An exec
// request that omits the degree never matches, not even a prescribed 0.
func (r *DegreeResult) Match() bool {
	got, ok := r.Got.Get()
	return ok && got == r.Want
}

func (r *DegreeResult) String() string {
	return fmt.Sprintf("%s (mt_dop=%s): want %d, got %s", oneLine(r.Statement), r.User, r.Want, r.Got)
}

// CheckDegree plans stmt with the user's mt_dop and compares the degree in
// the planner's exec request against parallelism.EffectiveDegree. The table
// format comes from Catalog for compute-stats statements.
func (d *Driver) CheckDegree(ctx context.Context, stmt string, user options.Optional[int32], scope *Scope) (*DegreeResult, error) {
	return d.checkDegree(ctx, stmt, user, scope, d.env().Enabled())
}

func (d *Driver) checkDegree(ctx context.Context, stmt string, user options.Optional[int32], scope *Scope, testMode bool) (*DegreeResult, error) {
	sc := scope.override("")
	kind, ref := parallelism.Classify(stmt)
	res := &DegreeResult{Statement: stmt, User: user, Kind: kind}

	if kind == parallelism.KindComputeStats {
		res.Table = ref.Qualify(sc.Database)
		if d.Catalog == nil {
			return nil, fmt.Errorf("check degree: no catalog to resolve %s", res.Table)
		}
		format, err := d.Catalog.TableFormat(ctx, res.Table.Database, res.Table.Table)
		if err != nil {
			return nil, fmt.Errorf("check degree: %w", err)
		}
		res.Format = format
	}
	res.Want = parallelism.EffectiveDegree(user, kind, res.Format)

	opts := options.Defaults().WithMtDop(user)
	exec, err := Capture(ctx, d.Planner, stmt, opts, sc, testMode)
	if err != nil {
		return nil, err
	}
	res.Got = exec.Exec.MtDop
	d.logger().Debug("degree check", "statement", oneLine(stmt), "want", res.Want, "got", res.Got.String())
	return res, nil
}
