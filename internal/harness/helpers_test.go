package harness

import (
	"github.com/roach88/plantest/internal/capability"
	"github.com/roach88/plantest/internal/options"
	"github.com/roach88/plantest/internal/testutil"
)

const (
	joinStmt  = "select * from functional.alltypes a join functional.alltypestiny b on a.id = b.id"
	badStmt   = "select * from functional.alltypes where id = 'x'"
	countStmt = "select count(*) from functional.alltypes"

	groupByStmt  = "select year, count(*) from functional.alltypes group by year"
	lineitemStmt = "select count(*) from tpch.lineitem"
)

// joinsPlanner plans testdata/specs/joins.test with one mismatching case.
func joinsPlanner() *testutil.Planner {
	return testutil.NewPlanner().
		On(joinStmt, options.ExplainStandard,
			"PLAN-ROOT SINK\n|\n02:HASH JOIN [INNER JOIN]\n|  hash predicates: a.id = b.id   \n\n").
		Fail(badStmt, "AnalysisException", "operands of type INT and STRING are not comparable: id = 'x'").
		On(countStmt, options.ExplainStandard,
			"PLAN-ROOT SINK\n|\n01:AGGREGATE [FINALIZE]\n|  output: count(*)")
}

// aggregationPlanner plans testdata/specs/aggregation.test exactly.
func aggregationPlanner() *testutil.Planner {
	return testutil.NewPlanner().
		On(groupByStmt, options.ExplainStandard,
			"PLAN-ROOT SINK\n|\n01:AGGREGATE [FINALIZE]\n|  output: count(*)\n|  group by: year\n|\n"+
				"00:SCAN HDFS [functional.alltypes]\n   partitions=24/24 files=24 size=478.45KB").
		On(lineitemStmt, options.ExplainStandard,
			"PLAN-ROOT SINK\n|\n01:AGGREGATE [FINALIZE]\n|  output: count(*)\n|\n00:SCAN HDFS [tpch.lineitem]").
		On(lineitemStmt, options.ExplainVerbose,
			"F00:PLAN FRAGMENT [UNPARTITIONED]\n  PLAN-ROOT SINK\n  |\n  01:AGGREGATE [FINALIZE]\n"+
				"  |  output: count(*)\n  |\n  00:SCAN HDFS [tpch.lineitem]\n").
		Fail(badStmt, "AnalysisException", "operands of type INT and STRING are not comparable: id = 'x'")
}

func newDriver(p *testutil.Planner, probe capability.Probe) *Driver {
	return &Driver{
		Planner: p,
		Probe:   probe,
		Env:     capability.NewTestEnv(true),
	}
}
