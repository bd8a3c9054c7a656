package harness

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/roach88/plantest/internal/options"
)

// Outcome is the overall result of one specification.
type Outcome string

const (
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
	OutcomeError   Outcome = "error"
)

// Failure is one expected block that did not match, or one check that could
// not be completed.
type Failure struct {
	// CaseID fingerprints the case across runs. Empty for degree checks.
	CaseID    string
	Case      int
	Line      int
	Statement string
	// Level is unset for failures that are not tied to an explain level.
	Level    options.Optional[options.ExplainLevel]
	Expected string
	Actual   string
	// Diff is a unified diff of Expected against Actual.
	Diff string
	// Message describes failures that are not a plain text mismatch.
	Message string
}

func (f Failure) String() string {
	var b strings.Builder
	if f.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", f.Line)
	}
	fmt.Fprintf(&b, "%s", oneLine(f.Statement))
	if l, ok := f.Level.Get(); ok {
		fmt.Fprintf(&b, " [%s]", l)
	}
	if f.Message != "" {
		fmt.Fprintf(&b, ": %s", f.Message)
	}
	if f.Diff != "" {
		b.WriteString("\n")
		b.WriteString(f.Diff)
	}
	return b.String()
}

// BlockKey addresses one expected block of a specification.
type BlockKey struct {
	Case  int
	Block int
}

// Report is the result of running one specification.
type Report struct {
	Suite   string
	Outcome Outcome
	// Passed and Failed count cases; Skipped counts cases not executed
	// because a capability was missing.
	Passed  int
	Failed  int
	Skipped int
	// Unexecuted counts cases abandoned after the deadline expired. They are
	// included in Failed.
	Unexecuted int
	Failures   []Failure
	SkipReason string
	Err        error
	// Actual holds the normalised text captured for each block, including
	// planner error text. Blocks that could not be captured are absent.
	Actual map[BlockKey]string
}

func newReport(suite string) *Report {
	return &Report{Suite: suite, Actual: make(map[BlockKey]string)}
}

func errorReport(suite string, err error) *Report {
	r := newReport(suite)
	r.Err = err
	r.Outcome = OutcomeError
	return r
}

func (r *Report) addFailure(f Failure) {
	r.Failures = append(r.Failures, f)
}

// finish derives the outcome from the counters.
func (r *Report) finish() {
	switch {
	case r.Err != nil:
		r.Outcome = OutcomeError
	case r.SkipReason != "":
		r.Outcome = OutcomeSkipped
	case r.Failed > 0 || len(r.Failures) > 0:
		r.Outcome = OutcomeFailed
	default:
		r.Outcome = OutcomePassed
	}
}

// Total returns the number of cases the report accounts for.
func (r *Report) Total() int {
	return r.Passed + r.Failed + r.Skipped
}

// normalize trims trailing whitespace from every line and drops trailing
// blank lines. Golden comparison is exact after normalisation.
func normalize(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// unifiedDiff renders a diff of expected against actual. Both are
// normalised text without a trailing newline.
func unifiedDiff(expected, actual string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected),
		B:        difflib.SplitLines(actual),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return diff
}

// oneLine collapses whitespace and truncates s to 80 runes.
func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > 80 {
		return string([]rune(s)[:77]) + "..."
	}
	return s
}
