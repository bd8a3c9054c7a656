package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plantest/internal/harness"
	"github.com/roach88/plantest/internal/options"
	"github.com/roach88/plantest/internal/testutil"
)

const (
	unionStmt = "select 1"
	unionPlan = "PLAN-ROOT SINK\n|\n00:UNION\n   constant-operands=1"
	kuduStmt  = "select * from functional_kudu.alltypes"
)

const testManifest = `suite: simple: {}
suite: kudu: requires: ["kudu"]
`

const testConfig = `spec_dir: specs
manifest: suites.cue
history: history.db
workers: 2
log_level: warn
capabilities:
  kudu: false
catalog:
  - name: tpch_parquet
    tables:
      - name: lineitem
        format: parquet
  - name: tpch
    tables:
      - name: lineitem
        format: text
`

// writeFixture lays out a config, manifest and spec directory in a temp dir
// and returns the config path.
func writeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	specs := filepath.Join(dir, "specs")
	require.NoError(t, os.MkdirAll(specs, 0755))

	files := map[string]string{
		"plantest.yaml":     testConfig,
		"suites.cue":        testManifest,
		"specs/simple.test": unionStmt + "\n---- PLAN\n" + unionPlan + "\n====\n",
		"specs/kudu.test":   kuduStmt + "\n---- PLAN\nPLAN-ROOT SINK\n====\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return filepath.Join(dir, "plantest.yaml")
}

// unionPlanner plans simple.test as expected.
func unionPlanner() *testutil.Planner {
	return testutil.NewPlanner().On(unionStmt, options.ExplainStandard, unionPlan)
}

// execute runs cmd with args and returns stdout, stderr and the error.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func suitesNamed(names ...string) []harness.Suite {
	suites := make([]harness.Suite, len(names))
	for i, name := range names {
		suites[i] = harness.Suite{Name: name, File: name}
	}
	return suites
}
