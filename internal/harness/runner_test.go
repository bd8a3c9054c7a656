package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plantest/internal/capability"
	"github.com/roach88/plantest/internal/golden"
	"github.com/roach88/plantest/internal/options"
	"github.com/roach88/plantest/internal/parallelism"
	"github.com/roach88/plantest/internal/planner"
	"github.com/roach88/plantest/internal/store"
	"github.com/roach88/plantest/internal/testutil"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func copySpec(t *testing.T, name string) golden.Dir {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata/specs", name+golden.Ext))
	require.NoError(t, err)
	dir := golden.Dir{Root: t.TempDir()}
	require.NoError(t, os.WriteFile(dir.Path(name), data, 0644))
	return dir
}

func TestRunner_GoldenSummary(t *testing.T) {
	r := &Runner{
		Driver:  newDriver(joinsPlanner(), capability.Static{}),
		Specs:   golden.Dir{Root: "testdata/specs"},
		Workers: 2,
	}
	suites := []Suite{
		{Name: "joins", File: "joins"},
		{Name: "kudu", File: "joins", Requires: []capability.Feature{capability.Kudu}},
		{Name: "missing", File: "missing"},
	}

	summary := r.RunAll(context.Background(), suites)

	assert.True(t, summary.Failed())
	assert.Equal(t, Totals{Passed: 2, Failed: 1, Skipped: 3, Errors: 1}, summary.Totals)
	AssertGolden(t, "summary", summary)
}

func TestRunner_AllSkippedIsNotFailure(t *testing.T) {
	r := &Runner{
		Driver: newDriver(joinsPlanner(), capability.Static{}),
		Specs:  golden.Dir{Root: "testdata/specs"},
	}
	summary := r.RunAll(context.Background(), []Suite{
		{Name: "kudu", File: "joins", Requires: []capability.Feature{capability.Kudu}},
	})

	assert.False(t, summary.Failed())
	assert.Equal(t, OutcomeSkipped, summary.Reports[0].Outcome)
}

func TestRunner_UpdateRewritesGoldenFile(t *testing.T) {
	dir := copySpec(t, "joins")
	r := &Runner{
		Driver: newDriver(joinsPlanner(), nil),
		Specs:  dir,
		Update: true,
	}

	first := r.RunAll(context.Background(), []Suite{{Name: "joins", File: "joins"}})
	assert.True(t, first.Failed())
	assert.Equal(t, []string{"joins"}, first.Rewritten)

	spec, err := dir.Load("joins")
	require.NoError(t, err)
	assert.Equal(t, "PLAN-ROOT SINK\n|\n01:AGGREGATE [FINALIZE]\n|  output: count(*)", spec.Cases[2].Expected[0].Text)

	r.Update = false
	second := r.RunAll(context.Background(), []Suite{{Name: "joins", File: "joins"}})
	assert.False(t, second.Failed())
	assert.Empty(t, second.Rewritten)
}

func TestRunner_RecordsHistory(t *testing.T) {
	st := openStore(t)
	r := &Runner{
		Driver:  newDriver(joinsPlanner(), capability.Static{}),
		Specs:   golden.Dir{Root: "testdata/specs"},
		History: st,
	}

	summary := r.RunAll(context.Background(), []Suite{
		{Name: "joins", File: "joins"},
		{Name: "kudu", File: "joins", Requires: []capability.Feature{capability.Kudu}},
	})
	require.NotEmpty(t, summary.RunID)

	run, err := st.Run(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, 2, run.Passed)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 3, run.Skipped)
	assert.False(t, run.FinishedAt.IsZero())

	suites, err := st.Suites(context.Background(), summary.RunID)
	require.NoError(t, err)
	require.Len(t, suites, 2)
	require.Len(t, suites[0].Failures, 1)
	assert.Equal(t, "STANDARD", suites[0].Failures[0].Level)
	assert.Equal(t, summary.Reports[0].Failures[0].CaseID, suites[0].Failures[0].CaseID)
	assert.Equal(t, "skipped", suites[1].Outcome)
}

func TestRunner_SetupCreatesViews(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	require.NoError(t, st.CreateDatabase(ctx, "tpch", ""))
	for _, table := range []string{"lineitem", "orders"} {
		require.NoError(t, st.CreateTable(ctx, "tpch", table, parallelism.FormatText))
	}

	p := testutil.NewPlanner().Accept("create view")
	d := newDriver(p, nil)
	d.Catalog = st
	r := &Runner{Driver: d, Specs: golden.Dir{Root: t.TempDir()}}

	summary := r.RunAll(ctx, []Suite{{
		Name:     "tpch-views",
		Database: "tpch_views",
		Setup:    []SetupStep{{CreateViews: &CreateViews{Database: "tpch_views", From: "tpch"}}},
	}})
	require.False(t, summary.Failed(), "reports: %+v", summary.Reports[0])

	tables, err := st.Tables(ctx, "tpch_views")
	require.NoError(t, err)
	assert.Equal(t, []string{"lineitem", "orders"}, tables)

	def, err := st.ViewDefinition(ctx, "tpch_views", "orders")
	require.NoError(t, err)
	assert.Equal(t, "create view tpch_views.orders as select * from tpch.orders", def)

	reqs := p.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "tpch_views", reqs[0].Database)
}

func TestRunner_SetupFailureIsolatedToSuite(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	require.NoError(t, st.CreateDatabase(ctx, "tpch", ""))
	require.NoError(t, st.CreateTable(ctx, "tpch", "lineitem", parallelism.FormatText))

	d := newDriver(joinsPlanner(), nil)
	d.Catalog = st
	r := &Runner{Driver: d, Specs: golden.Dir{Root: "testdata/specs"}, Workers: 2}

	summary := r.RunAll(ctx, []Suite{
		{Name: "tpch-views", Setup: []SetupStep{{CreateViews: &CreateViews{Database: "tpch_views", From: "tpch"}}}},
		{Name: "joins", File: "joins"},
	})

	assert.Equal(t, OutcomeError, summary.Reports[0].Outcome)
	assert.Contains(t, summary.Reports[0].Err.Error(), "setup step 1")
	assert.Equal(t, OutcomeFailed, summary.Reports[1].Outcome)
	assert.Equal(t, 2, summary.Reports[1].Passed)
	assert.Equal(t, 1, summary.Totals.Errors)
}

func TestRunner_DegreeChecks(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	require.NoError(t, st.CreateDatabase(ctx, "functional_parquet", ""))
	require.NoError(t, st.CreateTable(ctx, "functional_parquet", "alltypes", parallelism.FormatParquet))

	// Applies the columnar default only for unset mt_dop, like a correct planner.
	p := testutil.NewPlanner().Accept("compute stats")
	p.Degree = func(req planner.Request) options.Optional[int32] {
		if !req.Options.MtDop.IsSet() {
			return options.Some(parallelism.ComputeStatsColumnarDegree)
		}
		return req.Options.MtDop
	}
	d := newDriver(p, nil)
	d.Catalog = st
	r := &Runner{Driver: d, Specs: golden.Dir{Root: t.TempDir()}}

	summary := r.RunAll(ctx, []Suite{{
		Name:         "compute-stats-mt-dop",
		DegreeChecks: []DegreeCheck{{Statement: "compute stats functional_parquet.alltypes"}},
	}})

	report := summary.Reports[0]
	assert.Equal(t, OutcomePassed, report.Outcome, "failures: %v", report.Failures)
	assert.Equal(t, 1+len(DefaultDegrees), report.Passed)
}

func TestRunner_DegreeCheckMismatch(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	require.NoError(t, st.CreateDatabase(ctx, "functional_parquet", ""))
	require.NoError(t, st.CreateTable(ctx, "functional_parquet", "alltypes", parallelism.FormatParquet))

	d := newDriver(testutil.NewPlanner().Accept("compute stats"), nil)
	d.Catalog = st
	r := &Runner{Driver: d, Specs: golden.Dir{Root: t.TempDir()}}

	summary := r.RunAll(ctx, []Suite{{
		Name: "compute-stats-mt-dop",
		DegreeChecks: []DegreeCheck{{
			Statement: "compute stats functional_parquet.alltypes",
			Degrees:   DegreeGrid(2),
		}},
	}})

	report := summary.Reports[0]
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.Equal(t, 1, report.Passed)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0].Message, "mt_dop=unset")
	assert.False(t, report.Failures[0].Level.IsSet())
}

func TestRunner_SuiteTestModeOverride(t *testing.T) {
	p := joinsPlanner()
	d := newDriver(p, nil)
	r := &Runner{Driver: d, Specs: golden.Dir{Root: "testdata/specs"}}
	disabled := false

	r.RunAll(context.Background(), []Suite{{Name: "joins", File: "joins", TestMode: &disabled}})

	for _, req := range p.Requests() {
		assert.False(t, req.TestMode)
	}
	assert.True(t, d.Env.Enabled())
}

func TestRunner_PerSuiteDeadline(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	p := joinsPlanner().Block(joinStmt, release)

	var progress []string
	r := &Runner{
		Driver:   newDriver(p, nil),
		Specs:    golden.Dir{Root: "testdata/specs"},
		Deadline: 50 * time.Millisecond,
		Progress: func(done, total int, report *Report) {
			progress = append(progress, report.Suite)
		},
	}

	summary := r.RunAll(context.Background(), []Suite{{Name: "joins", File: "joins"}})

	report := summary.Reports[0]
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.Equal(t, 3, report.Failed)
	assert.Equal(t, 2, report.Unexecuted)
	assert.Equal(t, []string{"joins"}, progress)
}

func TestRunner_DeadlineExcludesTestModeWait(t *testing.T) {
	env := capability.NewTestEnv(true)
	held, release := make(chan struct{}), make(chan struct{})
	go func() {
		_ = env.WithTestMode(false, func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	p := joinsPlanner()
	d := newDriver(p, nil)
	d.Env = env
	r := &Runner{Driver: d, Specs: golden.Dir{Root: "testdata/specs"}, Deadline: 50 * time.Millisecond}

	done := make(chan *Summary)
	go func() { done <- r.RunAll(context.Background(), []Suite{{Name: "joins", File: "joins"}}) }()
	time.Sleep(150 * time.Millisecond)
	close(release)
	summary := <-done

	report := summary.Reports[0]
	assert.Equal(t, 0, report.Unexecuted)
	assert.Equal(t, 2, report.Passed)
	assert.Equal(t, 1, report.Failed)
	for _, req := range p.Requests() {
		assert.True(t, req.TestMode)
	}
}

func TestRunner_UpdateSkipsSharedFile(t *testing.T) {
	dir := copySpec(t, "joins")
	before, err := os.ReadFile(dir.Path("joins"))
	require.NoError(t, err)

	r := &Runner{
		Driver:  newDriver(joinsPlanner(), nil),
		Specs:   dir,
		Workers: 2,
		Update:  true,
	}
	summary := r.RunAll(context.Background(), []Suite{
		{Name: "joins", File: "joins"},
		{Name: "joins-functional", File: "joins", Database: "functional"},
	})

	assert.True(t, summary.Failed())
	assert.Empty(t, summary.Rewritten)
	after, err := os.ReadFile(dir.Path("joins"))
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestSuiteRecord(t *testing.T) {
	report := errorReport("broken", &golden.LoadError{Name: "broken", Err: golden.ErrNoCases})

	rec := SuiteRecord(report)
	assert.Equal(t, "broken", rec.Suite)
	assert.Equal(t, "error", rec.Outcome)
	assert.Equal(t, "broken: no test cases", rec.Error)
}
