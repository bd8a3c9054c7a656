package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plantest/internal/options"
	"github.com/roach88/plantest/internal/testutil"
)

func TestHistoryCommandEmpty(t *testing.T) {
	out, _, err := execute(NewHistoryCommand(&RootOptions{Format: "text", Config: writeFixture(t)}))

	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded.")
}

func TestHistoryCommandListsRuns(t *testing.T) {
	config := writeFixture(t)
	for i := 0; i < 3; i++ {
		_, _, err := execute(NewRunCommand(&RootOptions{Format: "text", Config: config, Planner: unionPlanner()}))
		require.NoError(t, err)
	}

	out, _, err := execute(NewHistoryCommand(&RootOptions{Format: "json", Config: config}), "--limit", "2")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   []RunInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, int64(3), resp.Data[0].Seq)
	assert.Equal(t, int64(2), resp.Data[1].Seq)
	assert.Equal(t, 1, resp.Data[0].Passed)
	assert.Equal(t, 1, resp.Data[0].Skipped)
	assert.NotNil(t, resp.Data[0].FinishedAt)

	out, _, err = execute(NewHistoryCommand(&RootOptions{Format: "text", Config: config}))
	require.NoError(t, err)
	assert.Contains(t, out, "SEQ")
	assert.Contains(t, out, resp.Data[0].ID)
}

func TestHistoryCommandRunDetail(t *testing.T) {
	config := writeFixture(t)
	p := testutil.NewPlanner().On(unionStmt, options.ExplainStandard, "PLAN-ROOT SINK")
	for i := 0; i < 2; i++ {
		_, _, err := execute(NewRunCommand(&RootOptions{Format: "text", Config: config, Planner: p}))
		require.Error(t, err)
	}

	out, _, err := execute(NewHistoryCommand(&RootOptions{Format: "json", Config: config}), "--limit", "1")
	require.NoError(t, err)
	var list struct {
		Data []RunInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list.Data, 1)
	id := list.Data[0].ID

	out, _, err = execute(NewHistoryCommand(&RootOptions{Format: "text", Config: config}), "--run", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Run "+id+" (#2)")
	assert.Contains(t, out, "- kudu (skipped: missing capability: kudu)")
	assert.Contains(t, out, "✗ simple (0 passed, 1 failed)")
	assert.Contains(t, out, "line 1: select 1 [STANDARD]: plan mismatch (failed in 2 run(s))")
	assert.Contains(t, out, "Test Summary: 0 passed, 1 failed, 1 skipped, 0 errors")
}

func TestHistoryCommandUnknownRun(t *testing.T) {
	_, _, err := execute(NewHistoryCommand(&RootOptions{Format: "text", Config: writeFixture(t)}), "--run", "nope")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "unknown run")
}

func TestHistoryCommandNegativeLimit(t *testing.T) {
	_, _, err := execute(NewHistoryCommand(&RootOptions{Format: "text", Config: writeFixture(t)}), "--limit", "-1")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
