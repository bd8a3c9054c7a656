// Package harness runs golden plan specifications against a planner.
//
// A specification is a list of statements, each with the plan text the
// planner is expected to produce at one or more explain levels. The harness
// resolves each case's query options against the suite's base options,
// captures the plan through the planner boundary, and compares it with the
// golden text after normalising trailing whitespace.
//
// # Outcomes
//
// Every specification run yields a Report with one of four outcomes:
//
//   - passed: every block of every case matched
//   - failed: at least one block mismatched or could not be captured
//   - skipped: a required capability is missing; no case was executed
//   - error: the specification could not be loaded or set up
//
// Failures never stop the remaining cases of a specification, and a failing
// specification never stops its siblings.
//
// # Test mode
//
// The planner's test mode is process-wide state. Driver.Run snapshots it once
// per specification; Driver.RunInTestMode overrides it for the duration of one
// specification and always restores the previous value. Either way the mode
// travels to the planner inside each request, never by re-reading the flag.
//
// # Usage
//
//	d := &harness.Driver{Planner: p, Probe: capability.EnvProbe{}, Env: capability.Default}
//	spec, err := golden.Dir{Root: "testdata/specs"}.Load("aggregation")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report := d.Run(ctx, spec, options.Defaults(), nil)
//	for _, f := range report.Failures {
//	    log.Println(f)
//	}
package harness
