package harness

import (
	"fmt"
	"io"
	"strings"
)

// WriteReport renders one report as text. Failure diffs are included when
// verbose is set.
func WriteReport(w io.Writer, r *Report, verbose bool) {
	switch r.Outcome {
	case OutcomePassed:
		fmt.Fprintf(w, "✓ %s (%d passed)\n", r.Suite, r.Passed)
	case OutcomeSkipped:
		fmt.Fprintf(w, "- %s (skipped: %s)\n", r.Suite, r.SkipReason)
	case OutcomeError:
		fmt.Fprintf(w, "✗ %s\n", r.Suite)
		fmt.Fprintf(w, "  Error: %v\n", r.Err)
	default:
		fmt.Fprintf(w, "✗ %s (%d passed, %d failed)\n", r.Suite, r.Passed, r.Failed)
		for _, f := range r.Failures {
			text := f.String()
			if !verbose {
				text, _, _ = strings.Cut(text, "\n")
			}
			for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
				fmt.Fprintf(w, "  %s\n", line)
			}
		}
		if r.Unexecuted > 0 {
			fmt.Fprintf(w, "  %d case(s) not executed before the deadline\n", r.Unexecuted)
		}
	}
}

// WriteSummary renders every report followed by the totals line.
func WriteSummary(w io.Writer, s *Summary, verbose bool) {
	for _, r := range s.Reports {
		WriteReport(w, r, verbose)
	}
	for _, name := range s.Rewritten {
		fmt.Fprintf(w, "updated golden file for %s\n", name)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d skipped, %d errors\n",
		s.Totals.Passed, s.Totals.Failed, s.Totals.Skipped, s.Totals.Errors)
}
