package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plantest/internal/harness"
	"github.com/roach88/plantest/internal/options"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeManifest, "manifest invalid", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeManifest, resp.Error.Code)
	assert.Equal(t, "manifest invalid", resp.Error.Message)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error(ErrCodeManifest, "manifest invalid", nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E003]")
	assert.Contains(t, buf.String(), "manifest invalid")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	details := map[string]string{"file": "plantest.yaml"}
	err := formatter.Error(ErrCodeConfig, "unknown key", details)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E002]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			formatter.VerboseLog("Loading %s", "suites.cue")

			if tt.wantLog {
				assert.Contains(t, buf.String(), "Loading suites.cue")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestOutputFormatter_ResultText(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Result(map[string]int{"n": 1}, nil, func(w io.Writer) {
		io.WriteString(w, "rendered\n")
	})
	require.NoError(t, err)
	assert.Equal(t, "rendered\n", buf.String())
}

func TestOutputFormatter_ResultJSONEnvelope(t *testing.T) {
	failedSummary := &harness.Summary{
		RunID: "run-1",
		Reports: []*harness.Report{{
			Suite:   "joins",
			Outcome: harness.OutcomeFailed,
			Passed:  2,
			Failed:  1,
			Failures: []harness.Failure{{
				CaseID:    "joins:3",
				Line:      12,
				Statement: "select count(*) from functional.alltypes",
				Level:     options.Some(options.ExplainStandard),
				Message:   "plan mismatch",
				Diff:      "--- expected\n+++ actual\n",
			}},
		}},
		Totals: harness.Totals{Passed: 2, Failed: 1},
	}

	tests := []struct {
		name       string
		summary    *harness.Summary
		wantStatus string
		wantCode   string
		wantFailed int
	}{
		{"passing run", &harness.Summary{Reports: []*harness.Report{}}, "ok", "", 0},
		{"failing run keeps the data", failedSummary, "error", ErrCodeFailed, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: buf}

			var failure *CLIError
			if tt.summary.Failed() {
				failure = &CLIError{Code: ErrCodeFailed, Message: failureMessage(tt.summary)}
			}
			require.NoError(t, formatter.Result(runResult(tt.summary), failure, nil))

			var resp struct {
				Status string    `json:"status"`
				Data   RunResult `json:"data"`
				Error  *CLIError `json:"error"`
			}
			require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantFailed, resp.Data.Failed)
			if tt.wantCode == "" {
				assert.Nil(t, resp.Error)
				assert.NotNil(t, resp.Data.Suites)
				return
			}
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, "1 case(s) failed, 0 suite error(s)", resp.Error.Message)
			require.Len(t, resp.Data.Suites, 1)
			require.Len(t, resp.Data.Suites[0].Failures, 1)
			f := resp.Data.Suites[0].Failures[0]
			assert.Equal(t, "joins:3", f.CaseID)
			assert.Equal(t, "STANDARD", f.Level)
			assert.Equal(t, 12, f.Line)
			assert.NotEmpty(t, f.Diff)
			assert.Equal(t, "run-1", resp.Data.RunID)
		})
	}
}

func TestOutputFormatter_ResultTextRendersDespiteFailure(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Result(RunResult{Failed: 1}, &CLIError{Code: ErrCodeFailed, Message: "1 case(s) failed"}, func(w io.Writer) {
		io.WriteString(w, "FAIL joins\n")
	})
	require.NoError(t, err)
	assert.Equal(t, "FAIL joins\n", buf.String())
	assert.NotContains(t, buf.String(), "Error [")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))
	wrapped := fmt.Errorf("run: %w", WrapExitError(ExitFailure, "suites failed", errors.New("x")))
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
}
